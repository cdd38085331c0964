package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "sdsverify", cmd.Use)
	assert.Contains(t, cmd.Long, "test mode")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"run", "scenarios", "synth", "fake-server"}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)
}

func TestRunCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	runCmd, _, err := cmd.Find([]string{"run"})
	require.NoError(t, err)

	configFlag := runCmd.Flags().Lookup("config")
	require.NotNil(t, configFlag)
	assert.Equal(t, "c", configFlag.Shorthand)
	assert.Equal(t, "appsettings.json", configFlag.DefValue)

	testFlag := runCmd.Flags().Lookup("test-flag")
	require.NotNil(t, testFlag)
	assert.Equal(t, "--test", testFlag.DefValue)

	for _, name := range []string{"pipeline-cmd", "unique", "metrics-file", "timeout"} {
		assert.NotNil(t, runCmd.Flags().Lookup(name), name)
	}
	assert.Equal(t, "0s", runCmd.Flags().Lookup("timeout").DefValue)
}

func TestScenariosCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	scenariosCmd, _, err := cmd.Find([]string{"scenarios"})
	require.NoError(t, err)

	updateFlag := scenariosCmd.Flags().Lookup("update")
	require.NotNil(t, updateFlag)
	assert.Equal(t, "false", updateFlag.DefValue)

	filterFlag := scenariosCmd.Flags().Lookup("filter")
	require.NotNil(t, filterFlag)
}

func TestFakeServerCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	fakeCmd, _, err := cmd.Find([]string{"fake-server"})
	require.NoError(t, err)

	addrFlag := fakeCmd.Flags().Lookup("addr")
	require.NotNil(t, addrFlag)
	assert.Equal(t, ":8089", addrFlag.DefValue)

	dbFlag := fakeCmd.Flags().Lookup("db")
	require.NotNil(t, dbFlag)
	assert.Equal(t, ":memory:", dbFlag.DefValue)
}

func TestFormatValidation(t *testing.T) {
	assert.True(t, isValidFormat("text"))
	assert.True(t, isValidFormat("json"))

	assert.False(t, isValidFormat("xml"))
	assert.False(t, isValidFormat(""))
	assert.False(t, isValidFormat("TEXT"))
}

func TestFormatValidationIntegration(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--format", "invalid", "synth"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name      string
		opts      RootOptions
		wantDebug bool
		wantJSON  bool
	}{
		{"text info", RootOptions{Format: "text"}, false, false},
		{"text debug", RootOptions{Format: "text", Verbose: true}, true, false},
		{"json", RootOptions{Format: "json"}, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			logger := newLogger(&tt.opts, buf)
			logger.Debug("debug line")
			logger.Info("info line", "stage", "INIT")

			out := buf.String()
			assert.Contains(t, out, "info line")
			if tt.wantDebug {
				assert.Contains(t, out, "debug line")
			} else {
				assert.NotContains(t, out, "debug line")
			}
			if tt.wantJSON {
				assert.Contains(t, out, `"stage":"INIT"`)
			} else {
				assert.Contains(t, out, "stage=INIT")
			}
		})
	}
}
