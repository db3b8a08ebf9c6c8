package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"assist-service/internal/clock"
	"assist-service/internal/engagement"
	"assist-service/internal/fusion"
	"assist-service/internal/hardware"
	"assist-service/internal/logger"
	"assist-service/internal/signals"
	"assist-service/internal/types"
)

// AssistSystem runs the fixed-rate loop: load the snapshot, fuse it, step
// the engagement machine, then publish and drive the lamps.
type AssistSystem struct {
	schema  *signals.Schema
	fuser   *fusion.Fuser
	machine *engagement.Machine
	redis   MessagingClient
	io      IndicatorIO
	clock   clock.Clock
	period  time.Duration
	logger  *logger.Logger

	session string

	mu         sync.RWMutex
	state      types.VehicleState
	engagement types.EngagementState
	ticks      uint64

	// sourceFailing and publishFailing keep a persistent failure from
	// logging on every tick.
	sourceFailing  bool
	publishFailing bool
}

func NewAssistSystem(schema *signals.Schema, redis MessagingClient, io IndicatorIO, clk clock.Clock,
	period time.Duration, l *logger.Logger, opts ...fusion.Option) (*AssistSystem, error) {
	if period <= 0 {
		return nil, fmt.Errorf("tick period must be positive, got %s", period)
	}
	if io == nil {
		io = hardware.NoopIndicators{}
	}
	if clk == nil {
		clk = clock.NewMonotonic()
	}

	machine, err := engagement.New(schema, l.WithTag("engagement"))
	if err != nil {
		return nil, fmt.Errorf("failed to create engagement machine: %w", err)
	}

	opts = append([]fusion.Option{fusion.WithLogger(l.WithTag("fusion"))}, opts...)
	return &AssistSystem{
		schema:  schema,
		fuser:   fusion.NewFuser(schema, opts...),
		machine: machine,
		redis:   redis,
		io:      io,
		clock:   clk,
		period:  period,
		logger:  l,
	}, nil
}

// Start connects the outputs and starts the engagement machines. The
// machines stop when ctx is done.
func (s *AssistSystem) Start(ctx context.Context) error {
	s.logger.Infof("Starting assist system for %s (path %s)", s.schema.Variant, s.schema.Behavior.LongitudinalPath)

	if err := s.redis.Connect(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}

	if err := s.io.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize indicators: %w", err)
	}

	if err := s.machine.Start(ctx); err != nil {
		return fmt.Errorf("failed to start engagement machine: %w", err)
	}

	s.session = uuid.NewString()
	if err := s.redis.PublishSession(s.session, s.schema.Variant); err != nil {
		// not fatal, the tick data is still published
		s.logger.Warnf("Failed to publish session: %v", err)
	}

	s.logger.Infof("Assist system started, session %s", s.session)
	return nil
}

// Tick runs one pass of the pipeline at monotonic time now. It never fails;
// source and output errors are logged and the tick goes on.
func (s *AssistSystem) Tick(ctx context.Context, now time.Duration) engagement.Output {
	snap, err := s.redis.LoadSnapshot(ctx)
	if err != nil {
		if !s.sourceFailing {
			s.logger.Warnf("Failed to load snapshot: %v", err)
		}
		s.sourceFailing = true
		snap = nil
	} else if s.sourceFailing {
		s.logger.Infof("Snapshot source recovered")
		s.sourceFailing = false
	}

	vs := s.fuser.Update(fusion.Input{
		Snapshot:       snap,
		Now:            now,
		LateralEnabled: s.machine.LateralEnabled(),
	})
	out := s.machine.Step(vs, now)

	if err := s.redis.PublishTick(ctx, vs, out); err != nil {
		if !s.publishFailing {
			s.logger.Warnf("Failed to publish tick: %v", err)
		}
		s.publishFailing = true
	} else {
		s.publishFailing = false
	}

	if err := s.io.Set(hardware.IndicatorLateral, out.State.LateralEnabled); err != nil {
		s.logger.Debugf("Failed to set lateral indicator: %v", err)
	}
	if err := s.io.Set(hardware.IndicatorLongitudinal, out.State.LongitudinalEnabled); err != nil {
		s.logger.Debugf("Failed to set longitudinal indicator: %v", err)
	}

	for _, ev := range out.Events {
		s.logger.Debugf("Event %s (%s)", ev.Name, ev.Class)
	}

	s.mu.Lock()
	s.state = vs
	s.engagement = out.State
	s.ticks++
	s.mu.Unlock()

	return out
}

// Run ticks at the configured period until ctx is done.
func (s *AssistSystem) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.period)
	defer ticker.Stop()

	s.logger.Infof("Running at %s", s.period)
	for {
		select {
		case <-ctx.Done():
			s.logger.Infof("Stopping tick loop")
			return ctx.Err()
		case <-ticker.C:
			start := s.clock.Now()
			s.Tick(ctx, start)
			if took := s.clock.Now() - start; took > s.period {
				s.logger.Debugf("Tick overran: %s > %s", took, s.period)
			}
		}
	}
}

// State returns the last fused vehicle state and engagement state.
func (s *AssistSystem) State() (types.VehicleState, types.EngagementState) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state, s.engagement
}

func (s *AssistSystem) Ticks() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ticks
}

func (s *AssistSystem) Session() string {
	return s.session
}

func (s *AssistSystem) Shutdown() {
	s.logger.Infof("Shutting down assist system")
	s.io.Cleanup()
	if err := s.redis.Close(); err != nil {
		s.logger.Warnf("Failed to close Redis client: %v", err)
	}
}
