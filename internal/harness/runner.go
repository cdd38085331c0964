package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/roach88/sdsverify/internal/pipeline"
	"github.com/roach88/sdsverify/internal/sds"
	"github.com/roach88/sdsverify/internal/store"
	"github.com/roach88/sdsverify/internal/synth"
	"github.com/roach88/sdsverify/internal/testutil"
)

// ScenarioEpoch is the reference instant of every scenario run.
var ScenarioEpoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// ScenarioResult is the outcome of a scenario: the run itself, the store's
// view afterwards, and the assertion verdict.
type ScenarioResult struct {
	Name string

	// Run is the orchestrator's result.
	Run *Result

	// Calls is the store call log, in order.
	Calls []store.Call

	// RemainingTypes and RemainingStreams count what is left in the
	// scenario's namespace after the run.
	RemainingTypes   int
	RemainingStreams int

	// Pass indicates every assertion held. It is independent of the run
	// verdict: a scenario may expect a failing run.
	Pass bool

	// Errors contains assertion failure messages.
	Errors []string
}

// AddError adds a validation error and marks the result as failed.
func (r *ScenarioResult) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// RunScenario executes a scenario against a fresh in-memory store.
//
// The run uses a fixed clock at ScenarioEpoch, a generator seeded from
// the scenario and a fixed run id, so identical scenarios produce
// identical traces. An error is returned only when the store double itself
// cannot be prepared or inspected.
func RunScenario(ctx context.Context, s *Scenario) (*ScenarioResult, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	if err := seedFixtures(ctx, st, s); err != nil {
		return nil, err
	}
	for _, f := range s.Faults {
		op, _ := sds.ParseOp(f.Op)
		st.FailOn(op, sds.NewStoreError(f.Op, f.Status, "%s", f.Message))
	}

	clock := testutil.NewFixedClock(ScenarioEpoch)
	orch := New(Options{
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:      clock.Now,
		Rand:     testutil.NewRand(s.Seed),
		NewRunID: func() string { return "scenario-" + s.Name },
	})

	tc := TestContext{
		NamespaceID: s.NamespaceID,
		TypeID:      s.TypeID,
		StreamID:    s.StreamID,
		Client:      st,
	}
	res := orch.Run(ctx, tc, scenarioPipeline(s, st))

	calls, err := st.Calls(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read call log: %w", err)
	}
	types, streams, err := st.Resources(ctx, s.NamespaceID)
	if err != nil {
		return nil, fmt.Errorf("failed to count resources: %w", err)
	}

	sr := &ScenarioResult{
		Name:             s.Name,
		Run:              res,
		Calls:            calls,
		RemainingTypes:   types,
		RemainingStreams: streams,
		Pass:             true,
	}
	for _, msg := range EvaluateAssertions(sr, s.Assertions) {
		sr.AddError(msg)
	}
	return sr, nil
}

func seedFixtures(ctx context.Context, st *store.Store, s *Scenario) error {
	for _, ft := range s.Fixtures.Types {
		t, err := ft.toType()
		if err != nil {
			return fmt.Errorf("fixture type %s: %w", ft.ID, err)
		}
		if err := st.SeedType(ctx, s.NamespaceID, t); err != nil {
			return err
		}
	}
	for _, fs := range s.Fixtures.Streams {
		if err := st.SeedStream(ctx, s.NamespaceID, sds.Stream{ID: fs.ID, TypeID: fs.TypeID}); err != nil {
			return err
		}
	}
	return nil
}

func scenarioPipeline(s *Scenario, st *store.Store) pipeline.Pipeline {
	switch s.Pipeline.Outcome {
	case OutcomeFail:
		return &testutil.RecordingPipeline{Err: errors.New(s.Pipeline.Message)}
	case OutcomePanic:
		return &testutil.RecordingPipeline{Panic: s.Pipeline.Message}
	case OutcomeReadback:
		return &pipeline.Readback{
			Reader:      st,
			NamespaceID: s.NamespaceID,
			TypeID:      s.TypeID,
			StreamID:    s.StreamID,
			Start:       ScenarioEpoch.Add(-time.Minute),
			End:         ScenarioEpoch,
			MinValues:   synth.Count,
		}
	default:
		return &testutil.RecordingPipeline{}
	}
}
