// Package pipeline adapts the pipeline under test to the orchestrator.
//
// The orchestrator treats a pipeline as an opaque operation: it runs once,
// in test mode, after the synthetic events have been inserted, and its
// returned error is the primary verdict signal.
package pipeline

import "context"

// Pipeline is the operation under test.
type Pipeline interface {
	// Run executes the pipeline end to end. testMode asks the pipeline to
	// run against the harness-provisioned namespace, type and stream.
	Run(ctx context.Context, testMode bool) error
}

// Func adapts an ordinary function to a Pipeline.
type Func func(ctx context.Context, testMode bool) error

// Run calls f.
func (f Func) Run(ctx context.Context, testMode bool) error {
	return f(ctx, testMode)
}
