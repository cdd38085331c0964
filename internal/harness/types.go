package harness

import (
	"fmt"

	"github.com/roach88/sdsverify/internal/sds"
)

// Stage is a state of the run state machine.
type Stage string

const (
	StageInit            Stage = "INIT"
	StageProvisioning    Stage = "PROVISIONING"
	StageSynthesizing    Stage = "SYNTHESIZING"
	StageInserting       Stage = "INSERTING"
	StageRunningPipeline Stage = "RUNNING_PIPELINE"
	StageCleaningUp      Stage = "CLEANING_UP"
	StageDone            Stage = "DONE"
	StageFailed          Stage = "FAILED"
)

// Terminal reports whether the run ends in s.
func (s Stage) Terminal() bool {
	return s == StageDone || s == StageFailed
}

// Verdicts.
const (
	VerdictPass = "pass"
	VerdictFail = "fail"
)

// TestContext identifies the resources one run provisions and the client
// it provisions them through. It is built once per run and passed
// explicitly.
type TestContext struct {
	NamespaceID string
	TypeID      string
	StreamID    string
	Client      sds.Client
}

// Validate checks that every field is set.
func (tc TestContext) Validate() error {
	switch {
	case tc.NamespaceID == "":
		return fmt.Errorf("namespace id is required")
	case tc.TypeID == "":
		return fmt.Errorf("type id is required")
	case tc.StreamID == "":
		return fmt.Errorf("stream id is required")
	case tc.Client == nil:
		return fmt.Errorf("store client is required")
	}
	return nil
}

// Transition records entering a stage.
type Transition struct {
	Seq   int    `json:"seq"`
	Stage Stage  `json:"stage"`
	Error string `json:"error,omitempty"`
}

// Result is the outcome of one run.
type Result struct {
	RunID string

	// Pass is false once any stage failed. Cleanup never changes it.
	Pass bool

	// Final is DONE or FAILED.
	Final Stage

	// Failure is the first recorded failure, nil on a pass.
	Failure *StageError

	// CleanupErrors holds one *StageError per failed deletion.
	CleanupErrors []error

	// Events are the synthesized events, nil if synthesis was not reached.
	Events []sds.Event

	Transitions []Transition
}

// Verdict returns VerdictPass or VerdictFail.
func (r *Result) Verdict() string {
	if r.Pass {
		return VerdictPass
	}
	return VerdictFail
}

// FailedStage returns the stage of the recorded failure, or "".
func (r *Result) FailedStage() Stage {
	if r.Failure == nil {
		return ""
	}
	return r.Failure.Stage
}

// Stages returns the visited stages in order.
func (r *Result) Stages() []Stage {
	out := make([]Stage, len(r.Transitions))
	for i, t := range r.Transitions {
		out[i] = t.Stage
	}
	return out
}

// fail records err unless a failure is already recorded.
func (r *Result) fail(err *StageError) bool {
	if r.Failure != nil {
		return false
	}
	r.Failure = err
	r.Pass = false
	if n := len(r.Transitions); n > 0 {
		r.Transitions[n-1].Error = err.Error()
	}
	return true
}
