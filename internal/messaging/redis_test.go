package messaging

import (
	"testing"

	"assist-service/internal/types"
)

func TestStateFields(t *testing.T) {
	vs := types.VehicleState{
		VEgo:   20.123456,
		MainOn: true,
		Valid:  true,
		Gear:   types.GearDrive,
		Cruise: types.CruiseState{Enabled: true, Speed: 27.7778},
	}
	es := types.EngagementState{LateralEnabled: true, DistanceLines: 3}

	fields := stateFields(vs, es)

	want := map[string]string{
		"lateral":        "true",
		"longitudinal":   "false",
		"distance-lines": "3",
		"main-on":        "true",
		"v-ego":          "20.123",
		"cruise:speed":   "27.778",
		"gear":           "drive",
	}
	for k, v := range want {
		if fields[k] != v {
			t.Errorf("field %s = %v, want %s", k, fields[k], v)
		}
	}
}

func TestButtonPayload(t *testing.T) {
	tests := []struct {
		event types.ButtonEvent
		want  string
	}{
		{types.ButtonEvent{Type: types.ButtonLKAS, Pressed: true}, "lkas:press"},
		{types.ButtonEvent{Type: types.ButtonAccelCruise}, "accelCruise:release"},
	}
	for _, tt := range tests {
		if got := buttonPayload(tt.event); got != tt.want {
			t.Errorf("buttonPayload(%+v) = %s, want %s", tt.event, got, tt.want)
		}
	}
}

func TestNewRedisClient(t *testing.T) {
	r := NewRedisClient("127.0.0.1", 6390, "assist:snapshot", nil)
	defer r.client.Close()

	if got := r.client.Options().Addr; got != "127.0.0.1:6390" {
		t.Errorf("addr = %s", got)
	}
	if r.snapshotKey != "assist:snapshot" {
		t.Errorf("snapshot key = %s", r.snapshotKey)
	}
}
