package cli

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"assist-service/internal/config"
	"assist-service/internal/logger"
	"assist-service/internal/signals"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	Variant    string
	LogLevel   string
}

// NewRootCommand creates the root command for the assist service.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "assist-service",
		Short: "Driver-assist interface layer",
		Long: `Fuses decoded vehicle bus data into a canonical vehicle state and decides
lateral and longitudinal assist engagement from the steering wheel buttons.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to YAML config file")
	cmd.PersistentFlags().StringVar(&opts.Variant, "variant", "", "vehicle variant, overrides the config file")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log", "", "log level (none|error|warn|info|debug or 0-4)")

	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewReplayCommand(opts))
	cmd.AddCommand(NewSchemaCommand(opts))

	return cmd
}

// loadConfig reads the config file if one was given and applies the
// command line overrides.
func (o *RootOptions) loadConfig() (*config.Config, error) {
	overrides := []config.Override{config.WithVariant(o.Variant), config.WithLogLevel(o.LogLevel)}
	if o.ConfigPath != "" {
		return config.Load(o.ConfigPath, overrides...)
	}

	cfg := config.Default()
	for _, ov := range overrides {
		ov(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func compileSchema(cfg *config.Config) (*signals.Schema, error) {
	schema, err := signals.Compile(cfg.VehicleVariant(), cfg.Flags)
	if err != nil {
		return nil, fmt.Errorf("failed to compile signal set for %s: %w", cfg.Variant, err)
	}
	return schema, nil
}

// stderrLogger keeps stdout clean for the offline commands.
func stderrLogger(cfg *config.Config) *logger.Logger {
	return logger.NewLogger(log.New(os.Stderr, "", 0), cfg.Level())
}
