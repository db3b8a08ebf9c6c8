package core

import (
	"context"

	"assist-service/internal/engagement"
	"assist-service/internal/types"
)

// MessagingClient defines the interface for Redis messaging operations needed by AssistSystem
type MessagingClient interface {
	Connect() error
	Close() error

	// Snapshot source
	LoadSnapshot(ctx context.Context) (*types.Snapshot, error)

	// State and events
	PublishTick(ctx context.Context, vs types.VehicleState, out engagement.Output) error
	PublishSession(id string, variant types.VehicleVariant) error
}

// IndicatorIO defines the interface for the engagement lamps
type IndicatorIO interface {
	Initialize() error
	Set(name string, on bool) error
	Cleanup()
}
