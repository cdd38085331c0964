// Package harness runs end-to-end verification of an SDS ingestion
// pipeline.
//
// A run provisions an event Type and a Stream, inserts four synthetic
// events covering the shapes a streaming value can take, invokes the
// pipeline under test in test mode and then deletes the Stream and the
// Type. Cleanup is armed before the first store call and runs exactly once
// per run, whatever failed before it; its own failures are reported but
// never change the verdict.
//
// # Scenarios
//
// Scenarios replay runs against the SQLite store double with injected
// faults and assert on the store's call log:
//
//	name: insert_fault
//	description: "A rejected insertion still removes stream and type"
//	namespace: ns1
//	type_id: T1
//	stream_id: S1
//	faults:
//	  - op: insert_values
//	    status: 503
//	    message: service unavailable
//	pipeline:
//	  outcome: ok
//	assertions:
//	  - type: verdict
//	    verdict: fail
//	    stage: INSERTING
//	  - type: call_order
//	    ops: [delete_stream, delete_type]
//
// Assertion types:
//
//   - call_order: operations first appear in the listed order
//   - call_count: an operation was called exactly N times
//   - remaining_resources: types and streams left in the namespace
//   - verdict: run verdict and failed stage
//
// Every scenario runs with a fixed clock, a seeded generator and a fixed
// run id, so its Snapshot is stable for golden comparison.
package harness
