package cli

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/sdsverify/internal/synth"
	"github.com/roach88/sdsverify/internal/testutil"
)

// SynthOptions holds flags for the synth command.
type SynthOptions struct {
	*RootOptions
	Seed uint64
	At   string
}

// NewSynthCommand creates the synth command.
func NewSynthCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SynthOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "synth",
		Short: "Print the synthetic events a run would insert",
		Long: `Print the four synthetic events in the store's wire format: a positive
value, a negative value, a questionable value and an I/O timeout state.

A non-zero --seed makes the magnitudes reproducible.

Examples:
  sdsverify synth
  sdsverify synth --seed 42 --at 2026-01-01T00:00:00Z`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSynth(opts, cmd)
		},
	}

	cmd.Flags().Uint64Var(&opts.Seed, "seed", 0, "generator seed (0 picks a random one)")
	cmd.Flags().StringVar(&opts.At, "at", "", "reference timestamp, RFC 3339 (default now)")

	return cmd
}

func runSynth(opts *SynthOptions, cmd *cobra.Command) error {
	now := time.Now().UTC()
	if opts.At != "" {
		at, err := time.Parse(time.RFC3339Nano, opts.At)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid --at timestamp", err)
		}
		now = at
	}

	rnd := rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	if opts.Seed != 0 {
		rnd = testutil.NewRand(opts.Seed)
	}
	events := synth.Synthesize(now, rnd)

	if opts.Format == "json" {
		out := &OutputFormatter{Format: "json", Writer: cmd.OutOrStdout()}
		return out.Success(events)
	}

	data, err := json.MarshalIndent(events, "", "  ")
	if err != nil {
		return fmt.Errorf("encode events: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}
