package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/sdsverify/internal/metrics"
	"github.com/roach88/sdsverify/internal/pipeline"
	"github.com/roach88/sdsverify/internal/schema"
	"github.com/roach88/sdsverify/internal/synth"
)

// Options configures an Orchestrator. Zero values select production
// defaults.
type Options struct {
	// Logger receives stage transitions. Defaults to a discarding logger.
	Logger *slog.Logger

	// Now is the reference instant for synthesized events. Defaults to
	// time.Now.
	Now func() time.Time

	// Rand draws event magnitudes. Defaults to a randomly seeded source.
	Rand *rand.Rand

	// Metrics may be nil.
	Metrics *metrics.Recorder

	// NewRunID names each run. Defaults to uuid.NewString.
	NewRunID func() string
}

// Orchestrator sequences a verification run:
//
//	INIT → PROVISIONING → SYNTHESIZING → INSERTING → RUNNING_PIPELINE → CLEANING_UP → DONE
//
// with FAILED reachable from every non-terminal stage. Once a run enters
// PROVISIONING, CLEANING_UP executes exactly once whatever happens after.
type Orchestrator struct {
	logger   *slog.Logger
	now      func() time.Time
	rand     *rand.Rand
	metrics  *metrics.Recorder
	newRunID func() string
}

// New creates an Orchestrator.
func New(opts Options) *Orchestrator {
	o := &Orchestrator{
		logger:   opts.Logger,
		now:      opts.Now,
		rand:     opts.Rand,
		metrics:  opts.Metrics,
		newRunID: opts.NewRunID,
	}
	if o.logger == nil {
		o.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if o.now == nil {
		o.now = time.Now
	}
	if o.rand == nil {
		o.rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if o.newRunID == nil {
		o.newRunID = uuid.NewString
	}
	return o
}

// run is the mutable state of one Run call.
type run struct {
	o       *Orchestrator
	tc      TestContext
	res     *Result
	logger  *slog.Logger
	stage   Stage
	entered time.Time
}

// Run executes one verification run of p against the resources named by
// tc. It never returns nil; failures are recorded in the Result.
//
// A configuration failure ends the run in INIT before any store call and
// without cleanup. Every later failure skips to CLEANING_UP.
func (o *Orchestrator) Run(ctx context.Context, tc TestContext, p pipeline.Pipeline) *Result {
	runID := o.newRunID()
	r := &run{
		o:      o,
		tc:     tc,
		res:    &Result{RunID: runID, Pass: true},
		logger: o.logger.With("run_id", runID),
	}

	r.enter(StageInit)
	if err := tc.Validate(); err != nil {
		r.failWith(CodeConfiguration, err)
		r.finish()
		return r.res
	}
	if p == nil {
		r.failWith(CodeConfiguration, fmt.Errorf("pipeline is required"))
		r.finish()
		return r.res
	}

	defer r.finish()
	defer r.cleanup(ctx)
	defer func() {
		if v := recover(); v != nil {
			r.failWith(stageCode(r.stage), fmt.Errorf("panic: %v", v))
			panic(v)
		}
	}()

	r.enter(StageProvisioning)
	b := schema.NewBuilder(tc.Client)
	if _, err := b.EnsureType(ctx, tc.NamespaceID, tc.TypeID); err != nil {
		r.failWith(CodeProvisioning, err)
		return r.res
	}
	if _, err := b.EnsureStream(ctx, tc.NamespaceID, tc.StreamID, tc.TypeID); err != nil {
		r.failWith(CodeProvisioning, err)
		return r.res
	}

	r.enter(StageSynthesizing)
	events := synth.Synthesize(o.now(), o.rand)
	r.res.Events = events

	r.enter(StageInserting)
	if err := tc.Client.InsertValues(ctx, tc.NamespaceID, tc.StreamID, events); err != nil {
		r.failWith(CodeInsertion, err)
		return r.res
	}
	o.metrics.EventsInserted(len(events))

	r.enter(StageRunningPipeline)
	if err := invoke(ctx, p); err != nil {
		r.failWith(CodePipeline, err)
		return r.res
	}
	return r.res
}

// invoke runs the pipeline in test mode, converting a panic into an error.
func invoke(ctx context.Context, p pipeline.Pipeline) (err error) {
	defer func() {
		if v := recover(); v != nil {
			err = fmt.Errorf("pipeline panicked: %v", v)
		}
	}()
	return p.Run(ctx, true)
}

// stageCode is the failure code for a panic raised while in s.
func stageCode(s Stage) ErrorCode {
	switch s {
	case StageInserting:
		return CodeInsertion
	case StageRunningPipeline:
		return CodePipeline
	default:
		return CodeProvisioning
	}
}

func (r *run) enter(s Stage) {
	now := time.Now()
	if r.stage != "" {
		r.o.metrics.ObserveStage(string(r.stage), now.Sub(r.entered))
	}
	r.stage = s
	r.entered = now
	r.res.Transitions = append(r.res.Transitions, Transition{
		Seq:   len(r.res.Transitions) + 1,
		Stage: s,
	})
	r.logger.Info("stage", "stage", string(s))
}

func (r *run) failWith(code ErrorCode, err error) {
	se := &StageError{Code: code, Stage: r.stage, Err: err}
	if r.res.fail(se) {
		r.logger.Error("stage failed", "stage", string(r.stage), "code", string(code), "error", err)
	}
}

// cleanup runs even when ctx is already cancelled.
func (r *run) cleanup(ctx context.Context) {
	r.enter(StageCleaningUp)
	errs := Cleanup(context.WithoutCancel(ctx), r.tc.Client, r.tc.NamespaceID, r.tc.TypeID, r.tc.StreamID, r.logger)
	for _, err := range errs {
		if se, ok := err.(*StageError); ok {
			r.o.metrics.CleanupFailed(se.Resource)
		}
	}
	r.res.CleanupErrors = errs
}

func (r *run) finish() {
	final := StageDone
	if !r.res.Pass {
		final = StageFailed
	}
	r.enter(final)
	r.res.Final = final
	r.o.metrics.RunFinished(r.res.Verdict())
	r.logger.Info("run finished", "verdict", r.res.Verdict())
}
