package cli

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sdsverify/internal/sds"
	"github.com/roach88/sdsverify/internal/synth"
)

func executeSynth(format string, args ...string) (string, error) {
	buf := &bytes.Buffer{}
	cmd := NewSynthCommand(&RootOptions{Format: format})
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestSynth_SeededIsReproducible(t *testing.T) {
	args := []string{"--seed", "42", "--at", "2026-01-01T00:00:00Z"}

	first, err := executeSynth("text", args...)
	require.NoError(t, err)
	second, err := executeSynth("text", args...)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	var events []sds.Event
	require.NoError(t, json.Unmarshal([]byte(first), &events))
	require.Len(t, events, synth.Count)

	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.True(t, events[0].Timestamp.Equal(at))
	assert.True(t, events[3].Timestamp.Equal(at.Add(-3*time.Second)))
	assert.True(t, events[3].Stated())
	for _, e := range events {
		assert.NoError(t, e.Validate())
	}
}

func TestSynth_JSONEnvelope(t *testing.T) {
	out, err := executeSynth("json", "--seed", "7")
	require.NoError(t, err)

	var resp struct {
		Status string      `json:"status"`
		Data   []sds.Event `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Len(t, resp.Data, synth.Count)
}

func TestSynth_InvalidTimestamp(t *testing.T) {
	_, err := executeSynth("text", "--at", "yesterday")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
