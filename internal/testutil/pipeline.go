package testutil

import (
	"context"
	"sync"
)

// RecordingPipeline records its invocations and fails or panics on request.
type RecordingPipeline struct {
	// Err is returned from every Run.
	Err error

	// Panic, when non-nil, is panicked with instead of returning.
	Panic any

	// OnRun is called before the outcome is applied.
	OnRun func(ctx context.Context, testMode bool)

	mu    sync.Mutex
	modes []bool
}

// Run records the call and applies the configured outcome.
func (p *RecordingPipeline) Run(ctx context.Context, testMode bool) error {
	p.mu.Lock()
	p.modes = append(p.modes, testMode)
	p.mu.Unlock()

	if p.OnRun != nil {
		p.OnRun(ctx, testMode)
	}
	if p.Panic != nil {
		panic(p.Panic)
	}
	return p.Err
}

// Calls returns how many times Run was invoked.
func (p *RecordingPipeline) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.modes)
}

// TestModes returns the testMode argument of each call, in order.
func (p *RecordingPipeline) TestModes() []bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]bool(nil), p.modes...)
}
