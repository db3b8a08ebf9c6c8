package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"assist-service/internal/fusion"
	"assist-service/internal/replay"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	JSON bool
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay <file>",
		Short: "Run a recorded snapshot log through the pipeline",
		Long: `Feed a JSON-lines snapshot log through a fresh state fuser and engagement
machine and print one line per tick. Use "-" to read from stdin.

Each line holds the monotonic tick time in nanoseconds and the snapshot:
  {"t": 10000000, "snapshot": {"pt": {"ENGINE_DATA": {"signals": {...}, "updated_at": 10000000}}}}

Examples:
  assist-service replay --variant PILOT drive.jsonl
  assist-service replay -c config.yml --json drive.jsonl`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, cmd, args[0])
		},
	}

	cmd.Flags().BoolVar(&opts.JSON, "json", false, "print one JSON object per tick")

	return cmd
}

func runReplay(opts *ReplayOptions, cmd *cobra.Command, path string) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	schema, err := compileSchema(cfg)
	if err != nil {
		return err
	}

	var in io.Reader = cmd.InOrStdin()
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("failed to open snapshot log: %w", err)
		}
		defer f.Close()
		in = f
	}

	frames, err := replay.ReadFrames(in)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	trace, err := replay.Run(cmd.Context(), schema, frames, stderrLogger(cfg),
		fusion.WithStaleTolerance(cfg.StaleTolerance))
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if opts.JSON {
		enc := json.NewEncoder(out)
		for _, tick := range trace {
			if err := enc.Encode(tick); err != nil {
				return err
			}
		}
		return nil
	}
	_, err = io.WriteString(out, trace.String())
	return err
}
