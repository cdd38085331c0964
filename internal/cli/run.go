package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/sdsverify/internal/config"
	"github.com/roach88/sdsverify/internal/harness"
	"github.com/roach88/sdsverify/internal/metrics"
	"github.com/roach88/sdsverify/internal/pipeline"
	"github.com/roach88/sdsverify/internal/sdsclient"
	"github.com/roach88/sdsverify/internal/synth"
)

// Environment handed to an external pipeline so it targets the run's
// resources.
const (
	EnvNamespaceID = "SDS_NAMESPACE_ID"
	EnvTypeID      = "SDS_TYPE_ID"
	EnvStreamID    = "SDS_STREAM_ID"
)

// readbackWindow is how far before the synthesis instant readback looks.
const readbackWindow = time.Minute

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Config      string
	PipelineCmd string
	TestFlag    string
	Unique      bool
	MetricsFile string
	Timeout     time.Duration
}

// RunReport is the outcome of a run as printed by the run command.
type RunReport struct {
	RunID         string               `json:"run_id"`
	Verdict       string               `json:"verdict"`
	NamespaceID   string               `json:"namespace_id"`
	TypeID        string               `json:"type_id"`
	StreamID      string               `json:"stream_id"`
	FailedStage   harness.Stage        `json:"failed_stage,omitempty"`
	Failure       string               `json:"failure,omitempty"`
	Transitions   []harness.Transition `json:"transitions"`
	CleanupErrors []string             `json:"cleanup_errors,omitempty"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run [-- pipeline-args...]",
		Short: "Run one end-to-end verification",
		Long: `Provision the configured type and stream, insert the synthetic events,
run the pipeline in test mode and clean up.

Without --pipeline-cmd the inserted window is read back and validated
against the type's schema. With it, the program is executed with the test
flag appended and SDS_NAMESPACE_ID, SDS_TYPE_ID and SDS_STREAM_ID set.

Exit codes:
  0 - Verdict pass
  1 - Verdict fail
  2 - Command error (unreadable or invalid settings, etc.)

Examples:
  sdsverify run --config appsettings.json
  sdsverify run --config appsettings.json --unique --pipeline-cmd ./ingest -- --source demo
  sdsverify run --config appsettings.json --metrics-file /var/lib/node_exporter/sdsverify.prom`,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerification(opts, args, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Config, "config", "c", "appsettings.json", "path to the settings document")
	cmd.Flags().StringVar(&opts.PipelineCmd, "pipeline-cmd", "", "pipeline program to run in test mode")
	cmd.Flags().StringVar(&opts.TestFlag, "test-flag", pipeline.DefaultTestFlag, "flag appended to the pipeline command")
	cmd.Flags().BoolVar(&opts.Unique, "unique", false, "suffix type and stream ids with a random run id")
	cmd.Flags().StringVar(&opts.MetricsFile, "metrics-file", "", "write Prometheus metrics to this textfile")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 0, "overall run timeout (0 waits indefinitely)")

	return cmd
}

func runVerification(opts *RunOptions, pipelineArgs []string, cmd *cobra.Command) error {
	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())

	if len(pipelineArgs) > 0 && opts.PipelineCmd == "" {
		return NewExitError(ExitCommandError, "pipeline arguments given without --pipeline-cmd")
	}

	settings, err := config.Load(opts.Config)
	if err != nil {
		if opts.Format == "json" {
			_ = out.Error(CodeConfig, err.Error(), nil)
		}
		return WrapExitError(ExitCommandError, "failed to load settings", err)
	}
	if opts.Unique {
		settings = settings.Unique()
	}
	logger.Info("settings loaded", "settings", settings)

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	// Token fetches must still work during cleanup after a cancellation.
	client, err := newClient(context.WithoutCancel(ctx), settings)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create store client", err)
	}

	now := time.Now().UTC()

	var p pipeline.Pipeline
	if opts.PipelineCmd != "" {
		p = &pipeline.Command{
			Path:     opts.PipelineCmd,
			Args:     pipelineArgs,
			TestFlag: opts.TestFlag,
			Env: []string{
				EnvNamespaceID + "=" + settings.NamespaceID,
				EnvTypeID + "=" + settings.TypeID,
				EnvStreamID + "=" + settings.StreamID,
			},
			Stdout: cmd.ErrOrStderr(),
			Stderr: cmd.ErrOrStderr(),
		}
	} else {
		p = &pipeline.Readback{
			Reader:      client,
			NamespaceID: settings.NamespaceID,
			TypeID:      settings.TypeID,
			StreamID:    settings.StreamID,
			Start:       now.Add(-readbackWindow),
			End:         now,
			MinValues:   synth.Count,
		}
	}

	rec := metrics.New()
	o := harness.New(harness.Options{
		Logger:  logger,
		Now:     func() time.Time { return now },
		Metrics: rec,
	})
	result := o.Run(ctx, harness.TestContext{
		NamespaceID: settings.NamespaceID,
		TypeID:      settings.TypeID,
		StreamID:    settings.StreamID,
		Client:      client,
	}, p)

	if opts.MetricsFile != "" {
		if err := rec.WriteTextfile(opts.MetricsFile); err != nil {
			logger.Warn("metrics not written", "path", opts.MetricsFile, "error", err)
		}
	}

	report := newRunReport(settings, result)
	if opts.Format == "json" {
		return outputRunJSON(out, report)
	}
	return outputRunText(cmd.OutOrStdout(), report)
}

func newClient(ctx context.Context, s config.Settings) (*sdsclient.Client, error) {
	return sdsclient.New(ctx, sdsclient.Config{
		Resource:     s.Resource,
		TenantID:     s.TenantID,
		APIVersion:   s.APIVersion,
		ClientID:     s.ClientID,
		ClientSecret: s.ClientSecret,
	})
}

func newRunReport(s config.Settings, r *harness.Result) RunReport {
	report := RunReport{
		RunID:       r.RunID,
		Verdict:     r.Verdict(),
		NamespaceID: s.NamespaceID,
		TypeID:      s.TypeID,
		StreamID:    s.StreamID,
		FailedStage: r.FailedStage(),
		Transitions: r.Transitions,
	}
	if r.Failure != nil {
		report.Failure = r.Failure.Error()
	}
	for _, err := range r.CleanupErrors {
		report.CleanupErrors = append(report.CleanupErrors, err.Error())
	}
	return report
}

func outputRunJSON(out *OutputFormatter, report RunReport) error {
	resp := CLIResponse{Status: "ok", Data: report}
	if report.Verdict != harness.VerdictPass {
		resp.Status = "error"
		resp.Error = &CLIError{
			Code:    CodeRunFailed,
			Message: report.Failure,
			Details: map[string]any{"failed_stage": report.FailedStage},
		}
	}
	if err := out.Response(resp); err != nil {
		return err
	}
	if report.Verdict != harness.VerdictPass {
		return NewExitError(ExitFailure, "verification failed")
	}
	return nil
}

func outputRunText(w io.Writer, report RunReport) error {
	fmt.Fprintf(w, "Run %s (%s/%s/%s)\n", report.RunID, report.NamespaceID, report.TypeID, report.StreamID)
	stages := make([]string, len(report.Transitions))
	for i, t := range report.Transitions {
		stages[i] = string(t.Stage)
	}
	fmt.Fprintf(w, "Stages: %s\n", strings.Join(stages, " → "))
	for _, e := range report.CleanupErrors {
		fmt.Fprintf(w, "  cleanup: %s\n", e)
	}

	if report.Verdict != harness.VerdictPass {
		fmt.Fprintf(w, "✗ Verdict: fail at %s\n", report.FailedStage)
		fmt.Fprintf(w, "  %s\n", report.Failure)
		return NewExitError(ExitFailure, "verification failed")
	}
	fmt.Fprintln(w, "✓ Verdict: pass")
	return nil
}
