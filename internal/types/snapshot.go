package types

import (
	"fmt"
	"time"
)

// Bus is a logical bus role. The physical bus index is decided by the
// signal set compiler.
type Bus int

const (
	BusPowertrain Bus = iota
	BusCamera
	BusBody
)

func (b Bus) String() string {
	switch b {
	case BusPowertrain:
		return "powertrain"
	case BusCamera:
		return "camera"
	case BusBody:
		return "body"
	default:
		return "unknown"
	}
}

func (b Bus) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

func (b *Bus) UnmarshalText(text []byte) error {
	switch string(text) {
	case "powertrain":
		*b = BusPowertrain
	case "camera":
		*b = BusCamera
	case "body":
		*b = BusBody
	default:
		return fmt.Errorf("unknown bus %q", text)
	}
	return nil
}

// MessageFrame holds the decoded values of one message and the monotonic
// time of its last update.
type MessageFrame struct {
	Signals   map[string]float64 `json:"signals"`
	UpdatedAt time.Duration      `json:"updated_at"`
}

// Snapshot is what the external decoder hands over once per tick.
type Snapshot struct {
	Powertrain map[string]MessageFrame `json:"pt,omitempty"`
	Camera     map[string]MessageFrame `json:"cam,omitempty"`
	Body       map[string]MessageFrame `json:"body,omitempty"`

	// Invalid is set by the decoder on checksum or counter errors.
	Invalid bool `json:"invalid,omitempty"`
}

// Frame returns the frame for msg on bus.
func (s *Snapshot) Frame(bus Bus, msg string) (MessageFrame, bool) {
	if s == nil {
		return MessageFrame{}, false
	}
	var frames map[string]MessageFrame
	switch bus {
	case BusPowertrain:
		frames = s.Powertrain
	case BusCamera:
		frames = s.Camera
	case BusBody:
		frames = s.Body
	}
	f, ok := frames[msg]
	return f, ok
}
