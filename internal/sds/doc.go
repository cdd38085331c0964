// Package sds models the sequential data store resources exercised by the
// verification harness.
//
// # Resources
//
//   - Type: an ordered set of properties describing the shape of values.
//     Exactly one property is the key and it must be time-typed.
//   - Stream: an append-only, time-keyed sequence of values bound to one Type.
//   - Event: one value written to a stream. An event is either valued
//     (Value set, state fields absent) or stated (SystemStateCode and
//     DigitalStateName set, Value absent).
//
// # Store Capabilities
//
// The harness consumes a store through the Client interface, which groups
// the four remote capabilities it needs: type get-or-create, stream
// create-or-update, bulk value insertion, and deletion. Reader adds the
// read-side calls used for existence checks and readback validation.
//
// Store-side failures are reported as *StoreError so callers can tell them
// apart from local errors:
//
//	var se *sds.StoreError
//	if errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
//	    // resource already gone
//	}
package sds
