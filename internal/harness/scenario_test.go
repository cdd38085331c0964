package harness

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const scenariosDir = "testdata/scenarios"

func TestScenarios_Golden(t *testing.T) {
	files, err := filepath.Glob(filepath.Join(scenariosDir, "*.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, files)

	for _, file := range files {
		name := strings.TrimSuffix(filepath.Base(file), ".yaml")
		t.Run(name, func(t *testing.T) {
			scenario, err := LoadScenario(file)
			require.NoError(t, err)

			result, err := RunScenario(context.Background(), scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "assertions failed:\n%s", strings.Join(result.Errors, "\n"))

			require.NoError(t, AssertGolden(t, filepath.Join(scenariosDir, "golden"), name, result))
		})
	}
}

func TestRunScenario_Deterministic(t *testing.T) {
	scenario, err := LoadScenario(filepath.Join(scenariosDir, "end_to_end.yaml"))
	require.NoError(t, err)

	first, err := RunScenario(context.Background(), scenario)
	require.NoError(t, err)
	second, err := RunScenario(context.Background(), scenario)
	require.NoError(t, err)

	assert.Equal(t, first.Run.Events, second.Run.Events)
	a, err := first.MarshalTrace()
	require.NoError(t, err)
	b, err := second.MarshalTrace()
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestRunScenario_FailingAssertionsReported(t *testing.T) {
	scenario := &Scenario{
		Name:        "wrong_expectations",
		Description: "Expectations that do not hold",
		NamespaceID: "ns1",
		TypeID:      "T1",
		StreamID:    "S1",
		Pipeline:    PipelineSpec{Outcome: OutcomeOK},
		Assertions: []Assertion{
			{Type: AssertVerdict, Verdict: VerdictFail, Stage: "INSERTING"},
			{Type: AssertCallOrder, Ops: []string{"delete_type", "delete_stream"}},
			{Type: AssertCallCount, Op: "insert_values", Count: 2},
			{Type: AssertRemainingResources, Types: 1},
			{Type: AssertCallOrder, Ops: []string{"get_window_values"}},
		},
	}

	result, err := RunScenario(context.Background(), scenario)
	require.NoError(t, err)

	assert.True(t, result.Run.Pass)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 5)
	assert.Contains(t, result.Errors[0], "Expected: fail at INSERTING")
	assert.Contains(t, result.Errors[1], "delete_type (pos 5) should be before delete_stream (pos 4)")
	assert.Contains(t, result.Errors[2], "Actual: 1 call(s)")
	assert.Contains(t, result.Errors[3], "Actual: 0 type(s), 0 stream(s)")
	assert.Contains(t, result.Errors[4], "missing operation: get_window_values")
	assert.Contains(t, result.Errors[4], "Store calls:")
}

func TestParseScenario_Valid(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: ok
description: minimal
namespace: ns1
type_id: T1
stream_id: S1
pipeline:
  outcome: ok
assertions:
  - type: verdict
    verdict: pass
`))
	require.NoError(t, err)
	assert.Equal(t, "ns1", s.NamespaceID)
	assert.Equal(t, uint64(0), s.Seed)
}

func TestParseScenario_Rejects(t *testing.T) {
	base := `name: x
description: y
namespace: ns1
type_id: T1
stream_id: S1
`
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"unknown field", base + "pipeline: {outcome: ok}\nassertion: []\n", "field assertion not found"},
		{"missing name", strings.Replace(base, "name: x\n", "", 1) + "pipeline: {outcome: ok}\nassertions: [{type: verdict, verdict: pass}]\n", "name is required"},
		{"missing ids", "name: x\ndescription: y\npipeline: {outcome: ok}\nassertions: [{type: verdict, verdict: pass}]\n", "stream_id are required"},
		{"missing outcome", base + "assertions: [{type: verdict, verdict: pass}]\n", "pipeline.outcome is required"},
		{"unknown outcome", base + "pipeline: {outcome: maybe}\nassertions: [{type: verdict, verdict: pass}]\n", `unknown outcome "maybe"`},
		{"no assertions", base + "pipeline: {outcome: ok}\n", "assertions list is required"},
		{"unknown fault op", base + "faults: [{op: drop_table, status: 500, message: m}]\npipeline: {outcome: ok}\nassertions: [{type: verdict, verdict: pass}]\n", `unknown op "drop_table"`},
		{"fault status", base + "faults: [{op: insert_values, status: 200, message: m}]\npipeline: {outcome: ok}\nassertions: [{type: verdict, verdict: pass}]\n", "status must be 4xx or 5xx"},
		{"bad fixture kind", base + "fixtures: {types: [{id: T0, properties: [{id: Time, kind: Instant, key: true}]}]}\npipeline: {outcome: ok}\nassertions: [{type: verdict, verdict: pass}]\n", `unknown value kind "Instant"`},
		{"fixture without key", base + "fixtures: {types: [{id: T0, properties: [{id: V, kind: String}]}]}\npipeline: {outcome: ok}\nassertions: [{type: verdict, verdict: pass}]\n", "fixtures.types[0]"},
		{"unknown assertion", base + "pipeline: {outcome: ok}\nassertions: [{type: final_state}]\n", `unknown assertion type "final_state"`},
		{"call_order without ops", base + "pipeline: {outcome: ok}\nassertions: [{type: call_order}]\n", "ops list is required"},
		{"call_count bad op", base + "pipeline: {outcome: ok}\nassertions: [{type: call_count, op: nope, count: 1}]\n", "unknown op \"nope\" for call_count"},
		{"bad verdict", base + "pipeline: {outcome: ok}\nassertions: [{type: verdict, verdict: maybe}]\n", "verdict must be"},
		{"pass with stage", base + "pipeline: {outcome: ok}\nassertions: [{type: verdict, verdict: pass, stage: INSERTING}]\n", "no failed stage"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.ErrorContains(t, err, "failed to read scenario file")
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestGoldenPath(t *testing.T) {
	assert.Equal(t, filepath.Join("dir", "golden", "insert_fault.golden"), GoldenPath(filepath.Join("dir", "insert_fault.yaml")))
}
