package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"assist-service/internal/engagement"
	"assist-service/internal/logger"
	"assist-service/internal/types"
)

const (
	assistHash      = "assist"
	assistChannel   = "assist"
	buttonsChannel  = "assist:buttons"
	eventsStream    = "events:assist"
	eventsStreamMax = 1000
)

type RedisClient struct {
	client      *redis.Client
	logger      *logger.Logger
	snapshotKey string
	ctx         context.Context
	cancel      context.CancelFunc

	// last published engagement, to notify subscribers only on change
	published    bool
	lateral      bool
	longitudinal bool
}

func NewRedisClient(host string, port int, snapshotKey string, l *logger.Logger) *RedisClient {
	ctx, cancel := context.WithCancel(context.Background())
	return &RedisClient{
		client: redis.NewClient(&redis.Options{
			Addr: fmt.Sprintf("%s:%d", host, port),
			DB:   0,
		}),
		logger:      l,
		snapshotKey: snapshotKey,
		ctx:         ctx,
		cancel:      cancel,
	}
}

func (r *RedisClient) Connect() error {
	r.logger.Infof("Attempting to connect to Redis at %s", r.client.Options().Addr)

	if err := r.client.Ping(r.ctx).Err(); err != nil {
		r.logger.Errorf("Redis connection failed: %v", err)
		return fmt.Errorf("Redis connection failed: %w", err)
	}
	r.logger.Infof("Successfully connected to Redis")
	return nil
}

// LoadSnapshot reads the decoder's latest snapshot. A missing key returns
// nil without error; the fuser treats that tick as invalid.
func (r *RedisClient) LoadSnapshot(ctx context.Context) (*types.Snapshot, error) {
	data, err := r.client.Get(ctx, r.snapshotKey).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot %s: %w", r.snapshotKey, err)
	}

	var snap types.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return &snap, nil
}

// PublishTick writes the tick's state to the assist hash, appends its
// events to the event stream and notifies subscribers.
func (r *RedisClient) PublishTick(ctx context.Context, vs types.VehicleState, out engagement.Output) error {
	pipe := r.client.Pipeline()
	pipe.HSet(ctx, assistHash, stateFields(vs, out.State))

	for _, ev := range out.Events {
		pipe.XAdd(ctx, &redis.XAddArgs{
			Stream: eventsStream,
			MaxLen: eventsStreamMax,
			Approx: true,
			Values: map[string]interface{}{
				"name":  string(ev.Name),
				"class": ev.Class.String(),
			},
		})
	}
	if len(out.Events) > 0 {
		pipe.Publish(ctx, assistChannel, "events")
	}

	for _, be := range out.ButtonEvents {
		pipe.Publish(ctx, buttonsChannel, buttonPayload(be))
	}

	changed := !r.published ||
		r.lateral != out.State.LateralEnabled ||
		r.longitudinal != out.State.LongitudinalEnabled
	if changed {
		pipe.Publish(ctx, assistChannel, "engagement")
	}

	if _, err := pipe.Exec(ctx); err != nil {
		r.logger.Warnf("Failed to publish tick: %v", err)
		return err
	}

	r.published = true
	r.lateral = out.State.LateralEnabled
	r.longitudinal = out.State.LongitudinalEnabled
	return nil
}

// PublishSession announces a new drive session.
func (r *RedisClient) PublishSession(id string, variant types.VehicleVariant) error {
	r.logger.Infof("Publishing session %s for %s", id, variant)

	pipe := r.client.Pipeline()
	pipe.HSet(r.ctx, assistHash, map[string]interface{}{
		"session":           id,
		"variant":           string(variant),
		"session:timestamp": time.Now().Format(time.RFC3339),
	})
	pipe.Publish(r.ctx, assistChannel, "session")
	if _, err := pipe.Exec(r.ctx); err != nil {
		r.logger.Warnf("Failed to publish session: %v", err)
		return err
	}
	return nil
}

func (r *RedisClient) Close() error {
	r.logger.Infof("Closing Redis client")
	r.cancel()
	return r.client.Close()
}

func stateFields(vs types.VehicleState, es types.EngagementState) map[string]interface{} {
	return map[string]interface{}{
		"lateral":            strconv.FormatBool(es.LateralEnabled),
		"longitudinal":       strconv.FormatBool(es.LongitudinalEnabled),
		"distance-lines":     strconv.Itoa(es.DistanceLines),
		"main-on":            strconv.FormatBool(vs.MainOn),
		"valid":              strconv.FormatBool(vs.Valid),
		"v-ego":              strconv.FormatFloat(vs.VEgo, 'f', 3, 64),
		"a-ego":              strconv.FormatFloat(vs.AEgo, 'f', 3, 64),
		"cruise:enabled":     strconv.FormatBool(vs.Cruise.Enabled),
		"cruise:speed":       strconv.FormatFloat(vs.Cruise.Speed, 'f', 3, 64),
		"gear":               string(vs.Gear),
		"steer-fault":        string(vs.SteerFault),
		"brake-hold":         strconv.FormatBool(vs.BrakeHoldActive),
		"disengage-by-brake": strconv.FormatBool(es.DisengageByBrake),
	}
}

func buttonPayload(be types.ButtonEvent) string {
	action := "release"
	if be.Pressed {
		action = "press"
	}
	return string(be.Type) + ":" + action
}
