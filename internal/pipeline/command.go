package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
)

// DefaultTestFlag is appended to the command line in test mode.
const DefaultTestFlag = "--test"

// maxStderrInError bounds how much stderr is quoted in a failure.
const maxStderrInError = 2048

// Command runs the pipeline as an external program.
type Command struct {
	Path string
	Args []string
	Dir  string

	// Env is appended to the current process environment.
	Env []string

	// TestFlag overrides DefaultTestFlag.
	TestFlag string

	// Stdout and Stderr receive the program's output when set.
	Stdout io.Writer
	Stderr io.Writer
}

// Run executes the program and waits for it. A non-zero exit is a failure
// that quotes the tail of stderr.
func (c *Command) Run(ctx context.Context, testMode bool) error {
	if c.Path == "" {
		return fmt.Errorf("pipeline command: path is required")
	}

	args := append([]string(nil), c.Args...)
	if testMode {
		flag := c.TestFlag
		if flag == "" {
			flag = DefaultTestFlag
		}
		args = append(args, flag)
	}

	cmd := exec.CommandContext(ctx, c.Path, args...)
	cmd.Dir = c.Dir
	cmd.Env = append(os.Environ(), c.Env...)

	var stderr bytes.Buffer
	cmd.Stdout = c.Stdout
	if c.Stderr != nil {
		cmd.Stderr = io.MultiWriter(&stderr, c.Stderr)
	} else {
		cmd.Stderr = &stderr
	}

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if len(msg) > maxStderrInError {
			msg = "…" + msg[len(msg)-maxStderrInError:]
		}
		if msg != "" {
			return fmt.Errorf("pipeline command %s: %w: %s", c.Path, err, msg)
		}
		return fmt.Errorf("pipeline command %s: %w", c.Path, err)
	}
	return nil
}
