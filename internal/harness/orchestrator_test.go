package harness

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sdsverify/internal/metrics"
	"github.com/roach88/sdsverify/internal/pipeline"
	"github.com/roach88/sdsverify/internal/sds"
	tu "github.com/roach88/sdsverify/internal/testutil"
)

var testNow = time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

// mockClient records calls in order and fails the operations it is told to.
type mockClient struct {
	mu     sync.Mutex
	calls  []sds.Op
	faults map[sds.Op]error
	panics map[sds.Op]any
}

func newMockClient() *mockClient {
	return &mockClient{faults: map[sds.Op]error{}, panics: map[sds.Op]any{}}
}

func (m *mockClient) record(op sds.Op) error {
	m.mu.Lock()
	m.calls = append(m.calls, op)
	m.mu.Unlock()
	if v, ok := m.panics[op]; ok {
		panic(v)
	}
	return m.faults[op]
}

func (m *mockClient) GetOrCreateType(_ context.Context, _ string, t sds.Type) (sds.Type, error) {
	if err := m.record(sds.OpGetOrCreateType); err != nil {
		return sds.Type{}, err
	}
	return t, nil
}

func (m *mockClient) CreateOrUpdateStream(context.Context, string, sds.Stream) error {
	return m.record(sds.OpCreateOrUpdateStream)
}

func (m *mockClient) InsertValues(context.Context, string, string, []sds.Event) error {
	return m.record(sds.OpInsertValues)
}

func (m *mockClient) DeleteStream(context.Context, string, string) error {
	return m.record(sds.OpDeleteStream)
}

func (m *mockClient) DeleteType(context.Context, string, string) error {
	return m.record(sds.OpDeleteType)
}

func (m *mockClient) count(op sds.Op) int {
	n := 0
	for _, c := range m.calls {
		if c == op {
			n++
		}
	}
	return n
}

func (m *mockClient) index(op sds.Op) int {
	for i, c := range m.calls {
		if c == op {
			return i
		}
	}
	return -1
}

func storeErr(op sds.Op, status int) error {
	return sds.NewStoreError(string(op), status, "injected")
}

func newTestOrchestrator(rec *metrics.Recorder) *Orchestrator {
	return New(Options{
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:      func() time.Time { return testNow },
		Rand:     tu.NewRand(1),
		Metrics:  rec,
		NewRunID: func() string { return "run-1" },
	})
}

func testContext(c sds.Client) TestContext {
	return TestContext{NamespaceID: "ns1", TypeID: "T1", StreamID: "S1", Client: c}
}

func TestRun_Pass(t *testing.T) {
	client := newMockClient()
	p := &tu.RecordingPipeline{}

	res := newTestOrchestrator(nil).Run(context.Background(), testContext(client), p)

	assert.True(t, res.Pass)
	assert.Equal(t, VerdictPass, res.Verdict())
	assert.Equal(t, StageDone, res.Final)
	assert.Nil(t, res.Failure)
	assert.Empty(t, res.CleanupErrors)
	assert.Equal(t, "run-1", res.RunID)
	assert.Len(t, res.Events, 4)
	assert.Equal(t, testNow, res.Events[0].Timestamp)
	assert.Equal(t, []Stage{
		StageInit, StageProvisioning, StageSynthesizing, StageInserting,
		StageRunningPipeline, StageCleaningUp, StageDone,
	}, res.Stages())
	assert.Equal(t, []bool{true}, p.TestModes())
	assert.Equal(t, []sds.Op{
		sds.OpGetOrCreateType, sds.OpCreateOrUpdateStream, sds.OpInsertValues,
		sds.OpDeleteStream, sds.OpDeleteType,
	}, client.calls)
}

func TestRun_FailuresStillCleanUpOnce(t *testing.T) {
	tests := []struct {
		name      string
		faultOp   sds.Op
		pipeErr   error
		pipePanic any
		code      ErrorCode
		stage     Stage
		sentinel  error
	}{
		{name: "ensure type", faultOp: sds.OpGetOrCreateType, code: CodeProvisioning, stage: StageProvisioning, sentinel: ErrProvisioning},
		{name: "ensure stream", faultOp: sds.OpCreateOrUpdateStream, code: CodeProvisioning, stage: StageProvisioning, sentinel: ErrProvisioning},
		{name: "insert", faultOp: sds.OpInsertValues, code: CodeInsertion, stage: StageInserting, sentinel: ErrInsertion},
		{name: "pipeline error", pipeErr: errors.New("transform failed"), code: CodePipeline, stage: StageRunningPipeline, sentinel: ErrPipeline},
		{name: "pipeline panic", pipePanic: "boom", code: CodePipeline, stage: StageRunningPipeline, sentinel: ErrPipeline},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newMockClient()
			if tt.faultOp != "" {
				client.faults[tt.faultOp] = storeErr(tt.faultOp, http.StatusServiceUnavailable)
			}
			p := &tu.RecordingPipeline{Err: tt.pipeErr, Panic: tt.pipePanic}

			res := newTestOrchestrator(nil).Run(context.Background(), testContext(client), p)

			assert.False(t, res.Pass)
			assert.Equal(t, StageFailed, res.Final)
			require.NotNil(t, res.Failure)
			assert.Equal(t, tt.code, res.Failure.Code)
			assert.Equal(t, tt.stage, res.FailedStage())
			assert.ErrorIs(t, res.Failure, tt.sentinel)

			assert.Equal(t, 1, client.count(sds.OpDeleteStream))
			assert.Equal(t, 1, client.count(sds.OpDeleteType))
			assert.Less(t, client.index(sds.OpDeleteStream), client.index(sds.OpDeleteType))
		})
	}
}

func TestRun_ProvisioningFailureSkipsLaterStages(t *testing.T) {
	client := newMockClient()
	client.faults[sds.OpCreateOrUpdateStream] = storeErr(sds.OpCreateOrUpdateStream, http.StatusInternalServerError)
	p := &tu.RecordingPipeline{}

	res := newTestOrchestrator(nil).Run(context.Background(), testContext(client), p)

	assert.Equal(t, []Stage{StageInit, StageProvisioning, StageCleaningUp, StageFailed}, res.Stages())
	assert.Zero(t, client.count(sds.OpInsertValues))
	assert.Zero(t, p.Calls())
	assert.Nil(t, res.Events)
}

func TestRun_StoreErrorReachesFailureUnmodified(t *testing.T) {
	client := newMockClient()
	injected := storeErr(sds.OpInsertValues, http.StatusConflict)
	client.faults[sds.OpInsertValues] = injected

	res := newTestOrchestrator(nil).Run(context.Background(), testContext(client), &tu.RecordingPipeline{})

	require.NotNil(t, res.Failure)
	assert.Same(t, injected, res.Failure.Err)
	assert.True(t, sds.IsConflict(res.Failure))
}

func TestRun_CleanupNeverChangesVerdict(t *testing.T) {
	t.Run("pass stays pass", func(t *testing.T) {
		client := newMockClient()
		client.faults[sds.OpDeleteStream] = storeErr(sds.OpDeleteStream, http.StatusInternalServerError)
		client.faults[sds.OpDeleteType] = storeErr(sds.OpDeleteType, http.StatusConflict)

		res := newTestOrchestrator(nil).Run(context.Background(), testContext(client), &tu.RecordingPipeline{})

		assert.True(t, res.Pass)
		assert.Equal(t, StageDone, res.Final)
		require.Len(t, res.CleanupErrors, 2)
		assert.ErrorIs(t, res.CleanupErrors[0], ErrCleanup)
		assert.ErrorIs(t, res.CleanupErrors[1], ErrCleanup)
	})

	t.Run("failure is not overwritten", func(t *testing.T) {
		client := newMockClient()
		client.faults[sds.OpDeleteStream] = storeErr(sds.OpDeleteStream, http.StatusInternalServerError)
		pipeErr := errors.New("pipeline failed")

		res := newTestOrchestrator(nil).Run(context.Background(), testContext(client), &tu.RecordingPipeline{Err: pipeErr})

		assert.False(t, res.Pass)
		require.NotNil(t, res.Failure)
		assert.ErrorIs(t, res.Failure, pipeErr)
		assert.Equal(t, CodePipeline, res.Failure.Code)
		assert.Len(t, res.CleanupErrors, 1)
	})
}

func TestRun_ConfigurationFailureMakesNoCalls(t *testing.T) {
	client := newMockClient()
	tc := testContext(client)
	tc.StreamID = ""

	res := newTestOrchestrator(nil).Run(context.Background(), tc, &tu.RecordingPipeline{})

	assert.False(t, res.Pass)
	assert.Equal(t, []Stage{StageInit, StageFailed}, res.Stages())
	assert.ErrorIs(t, res.Failure, ErrConfiguration)
	assert.Empty(t, client.calls)
}

func TestRun_NilPipelineIsConfigurationFailure(t *testing.T) {
	client := newMockClient()

	res := newTestOrchestrator(nil).Run(context.Background(), testContext(client), nil)

	assert.ErrorIs(t, res.Failure, ErrConfiguration)
	assert.Empty(t, client.calls)
}

func TestRun_CleanupSurvivesCancelledContext(t *testing.T) {
	client := newMockClient()
	ctx, cancel := context.WithCancel(context.Background())
	p := pipeline.Func(func(context.Context, bool) error {
		cancel()
		return context.Canceled
	})

	res := newTestOrchestrator(nil).Run(ctx, testContext(client), p)

	assert.False(t, res.Pass)
	assert.Equal(t, 1, client.count(sds.OpDeleteStream))
	assert.Equal(t, 1, client.count(sds.OpDeleteType))
}

const failedRunMetric = `
# HELP sdsverify_runs_total Verification runs by verdict
# TYPE sdsverify_runs_total counter
sdsverify_runs_total{verdict="fail"} 1
`

func TestRun_ClientPanicStillCleansUp(t *testing.T) {
	client := newMockClient()
	client.panics[sds.OpInsertValues] = "driver crashed"
	rec := metrics.New()

	assert.PanicsWithValue(t, "driver crashed", func() {
		newTestOrchestrator(rec).Run(context.Background(), testContext(client), &tu.RecordingPipeline{})
	})
	assert.Equal(t, 1, client.count(sds.OpDeleteStream))
	assert.Equal(t, 1, client.count(sds.OpDeleteType))

	assert.NoError(t, testutil.GatherAndCompare(rec.Registry(), strings.NewReader(failedRunMetric), "sdsverify_runs_total"))
}

func TestRun_ClientPanicRecordsFailure(t *testing.T) {
	tests := []struct {
		op    sds.Op
		code  ErrorCode
		stage Stage
	}{
		{sds.OpGetOrCreateType, CodeProvisioning, StageProvisioning},
		{sds.OpCreateOrUpdateStream, CodeProvisioning, StageProvisioning},
		{sds.OpInsertValues, CodeInsertion, StageInserting},
	}
	for _, tt := range tests {
		t.Run(string(tt.op), func(t *testing.T) {
			client := newMockClient()
			client.panics[tt.op] = "driver crashed"
			var logs bytes.Buffer
			rec := metrics.New()
			o := New(Options{
				Logger:   slog.New(slog.NewTextHandler(&logs, nil)),
				Now:      func() time.Time { return testNow },
				Rand:     tu.NewRand(1),
				Metrics:  rec,
				NewRunID: func() string { return "run-1" },
			})

			assert.Panics(t, func() {
				o.Run(context.Background(), testContext(client), &tu.RecordingPipeline{})
			})

			assert.NoError(t, testutil.GatherAndCompare(rec.Registry(), strings.NewReader(failedRunMetric), "sdsverify_runs_total"))
			assert.Contains(t, logs.String(), "stage="+string(tt.stage)+" code="+string(tt.code)+` error="panic: driver crashed"`)
			assert.Contains(t, logs.String(), "stage=FAILED")
			assert.Contains(t, logs.String(), "verdict=fail")
		})
	}
}

func TestRun_TransitionRecordsFailure(t *testing.T) {
	client := newMockClient()
	client.faults[sds.OpInsertValues] = sds.NewStoreError(string(sds.OpInsertValues), 503, "service unavailable")

	res := newTestOrchestrator(nil).Run(context.Background(), testContext(client), &tu.RecordingPipeline{})

	var inserting Transition
	for _, tr := range res.Transitions {
		if tr.Stage == StageInserting {
			inserting = tr
		}
	}
	assert.Equal(t, "INSERTION: insert_values: store returned 503: service unavailable", inserting.Error)
	for i, tr := range res.Transitions {
		assert.Equal(t, i+1, tr.Seq)
	}
}

func TestRun_Metrics(t *testing.T) {
	rec := metrics.New()
	client := newMockClient()
	client.faults[sds.OpDeleteType] = storeErr(sds.OpDeleteType, http.StatusConflict)

	newTestOrchestrator(rec).Run(context.Background(), testContext(client), &tu.RecordingPipeline{})

	runs, err := testutil.GatherAndCount(rec.Registry(), "sdsverify_runs_total")
	require.NoError(t, err)
	assert.Equal(t, 1, runs)

	cleanups, err := testutil.GatherAndCount(rec.Registry(), "sdsverify_cleanup_errors_total")
	require.NoError(t, err)
	assert.Equal(t, 1, cleanups)

	inserted, err := testutil.GatherAndCount(rec.Registry(), "sdsverify_events_inserted_total")
	require.NoError(t, err)
	assert.Equal(t, 1, inserted)
}

func TestNew_Defaults(t *testing.T) {
	o := New(Options{})
	assert.NotNil(t, o.logger)
	assert.NotNil(t, o.rand)
	assert.NotNil(t, o.now)

	res := o.Run(context.Background(), testContext(newMockClient()), &tu.RecordingPipeline{})
	assert.True(t, res.Pass)
	assert.Len(t, res.RunID, 36)
}
