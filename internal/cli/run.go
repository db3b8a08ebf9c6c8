package cli

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"assist-service/internal/clock"
	"assist-service/internal/core"
	"assist-service/internal/fusion"
	"assist-service/internal/hardware"
	"assist-service/internal/logger"
	"assist-service/internal/messaging"
)

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the assist loop against Redis",
		Long: `Connect to Redis, compile the signal set for the configured variant and
run the fixed-rate loop until SIGINT or SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runService(rootOpts, cmd)
		},
	}
	return cmd
}

func runService(opts *RootOptions, cmd *cobra.Command) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	l := logger.New(cfg.Level())

	l.Infof("Starting assist service for %s...", cfg.Variant)

	schema, err := compileSchema(cfg)
	if err != nil {
		l.Errorf("%v", err)
		return err
	}

	redis := messaging.NewRedisClient(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.SnapshotKey, l.WithTag("redis"))

	var indicators core.IndicatorIO = hardware.NoopIndicators{}
	if len(cfg.Indicators) > 0 {
		indicators = hardware.NewGpioIndicators(cfg.Indicators, l.WithTag("indicators"))
	}

	system, err := core.NewAssistSystem(schema, redis, indicators, clock.NewMonotonic(), cfg.Period(), l,
		fusion.WithStaleTolerance(cfg.StaleTolerance))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := system.Start(ctx); err != nil {
		l.Errorf("Failed to start system: %v", err)
		return fmt.Errorf("failed to start system: %w", err)
	}
	l.Infof("System started successfully")

	err = system.Run(ctx)
	l.Infof("Shutting down...")
	system.Shutdown()
	l.Infof("Shutdown complete")

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
