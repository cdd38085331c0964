package harness

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/sdsverify/internal/trace"
)

// Snapshot is the golden-comparable trace of a scenario run. Event
// magnitudes are left out; stage transitions and store calls are not.
type Snapshot struct {
	Scenario      string         `json:"scenario"`
	Verdict       string         `json:"verdict"`
	FailedStage   Stage          `json:"failed_stage,omitempty"`
	Transitions   []Transition   `json:"transitions"`
	Calls         []SnapshotCall `json:"calls"`
	CleanupErrors []string       `json:"cleanup_errors,omitempty"`
	Remaining     Remaining      `json:"remaining"`
}

// SnapshotCall is one store call in a Snapshot.
type SnapshotCall struct {
	Seq    int64  `json:"seq"`
	Op     string `json:"op"`
	Target string `json:"target"`
	Error  string `json:"error,omitempty"`
}

// Remaining counts resources left in the namespace.
type Remaining struct {
	Types   int `json:"types"`
	Streams int `json:"streams"`
}

// Snapshot builds the golden-comparable trace of r.
func (r *ScenarioResult) Snapshot() Snapshot {
	s := Snapshot{
		Scenario:    r.Name,
		Verdict:     r.Run.Verdict(),
		FailedStage: r.Run.FailedStage(),
		Transitions: r.Run.Transitions,
		Calls:       make([]SnapshotCall, len(r.Calls)),
		Remaining:   Remaining{Types: r.RemainingTypes, Streams: r.RemainingStreams},
	}
	for i, c := range r.Calls {
		s.Calls[i] = SnapshotCall{Seq: c.Seq, Op: string(c.Op), Target: c.Target, Error: c.Err}
	}
	for _, err := range r.Run.CleanupErrors {
		s.CleanupErrors = append(s.CleanupErrors, err.Error())
	}
	return s
}

// MarshalTrace encodes r's Snapshot as canonical JSON.
func (r *ScenarioResult) MarshalTrace() ([]byte, error) {
	return trace.Marshal(r.Snapshot())
}

// GoldenPath returns where the golden trace of a scenario file lives:
// a golden/ directory next to the scenario, named after the file.
func GoldenPath(scenarioFile string) string {
	dir := filepath.Dir(scenarioFile)
	base := filepath.Base(scenarioFile)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(dir, "golden", name+".golden")
}

// AssertGolden compares the result's trace against the golden file
// {fixtureDir}/{name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func AssertGolden(t *testing.T, fixtureDir, name string, r *ScenarioResult) error {
	t.Helper()

	data, err := r.MarshalTrace()
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir(fixtureDir),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
	return nil
}
