// Package store provides a SQLite-backed sequential data store double.
//
// The store implements sds.Client and sds.Reader with the semantics the
// verification harness relies on:
//   - Types: get-or-create by id; an existing type is returned unchanged
//   - Streams: create-or-update; the referenced type must exist
//   - Values: bulk insert keyed by timestamp; a duplicate key fails the
//     whole request
//   - Deletion: a type cannot be deleted while a stream references it
//
// Every call is appended to a call log (seq-ordered) so tests can assert on
// invocation counts and ordering. Faults can be injected per operation.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Use Open(":memory:") for an isolated per-test store.
package store
