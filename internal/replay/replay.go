package replay

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"assist-service/internal/engagement"
	"assist-service/internal/fusion"
	"assist-service/internal/logger"
	"assist-service/internal/signals"
	"assist-service/internal/types"
)

const maxLineSize = 4 * 1024 * 1024

// Frame is one recorded tick: the monotonic tick time and the snapshot the
// decoder handed over.
type Frame struct {
	T        time.Duration   `json:"t"`
	Snapshot *types.Snapshot `json:"snapshot"`
}

// ReadFrames parses a JSON-lines snapshot log. Blank lines and lines
// starting with '#' are skipped. Tick times must not go backwards.
func ReadFrames(r io.Reader) ([]Frame, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	var frames []Frame
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 || line[0] == '#' {
			continue
		}

		var f Frame
		if err := json.Unmarshal(line, &f); err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		if n := len(frames); n > 0 && f.T < frames[n-1].T {
			return nil, fmt.Errorf("line %d: time goes backwards (%s after %s)", lineNo, f.T, frames[n-1].T)
		}
		frames = append(frames, f)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read snapshot log: %w", err)
	}
	return frames, nil
}

// WriteFrames writes frames in the format ReadFrames accepts.
func WriteFrames(w io.Writer, frames []Frame) error {
	enc := json.NewEncoder(w)
	for i, f := range frames {
		if err := enc.Encode(f); err != nil {
			return fmt.Errorf("frame %d: %w", i, err)
		}
	}
	return nil
}

// Tick is the pipeline output for one frame.
type Tick struct {
	T            time.Duration         `json:"t"`
	State        types.VehicleState    `json:"state"`
	Engagement   types.EngagementState `json:"engagement"`
	ButtonEvents []types.ButtonEvent   `json:"button_events,omitempty"`
	Events       types.Events          `json:"events,omitempty"`
}

type Trace []Tick

// Run feeds frames through a fresh fuser and engagement machine. The same
// frames always produce the same trace.
func Run(ctx context.Context, schema *signals.Schema, frames []Frame, l *logger.Logger, opts ...fusion.Option) (Trace, error) {
	if l == nil {
		l = logger.Discard()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	machine, err := engagement.New(schema, l.WithTag("engagement"))
	if err != nil {
		return nil, err
	}
	if err := machine.Start(ctx); err != nil {
		return nil, err
	}
	opts = append([]fusion.Option{fusion.WithLogger(l.WithTag("fusion"))}, opts...)
	fuser := fusion.NewFuser(schema, opts...)

	trace := make(Trace, 0, len(frames))
	for _, f := range frames {
		vs := fuser.Update(fusion.Input{
			Snapshot:       f.Snapshot,
			Now:            f.T,
			LateralEnabled: machine.LateralEnabled(),
		})
		out := machine.Step(vs, f.T)
		trace = append(trace, Tick{
			T:            f.T,
			State:        vs,
			Engagement:   out.State,
			ButtonEvents: out.ButtonEvents,
			Events:       out.Events,
		})
	}
	return trace, nil
}

// String renders one line per tick.
func (tr Trace) String() string {
	var sb strings.Builder
	for _, t := range tr {
		sb.WriteString(t.String())
		sb.WriteByte('\n')
	}
	return sb.String()
}

func (t Tick) String() string {
	return fmt.Sprintf("t=%.3f valid=%t main=%t cruise=%t lat=%t lon=%t v=%.2f buttons=%s events=%s",
		t.T.Seconds(), t.State.Valid, t.State.MainOn, t.State.Cruise.Enabled,
		t.Engagement.LateralEnabled, t.Engagement.LongitudinalEnabled, t.State.VEgo,
		renderButtons(t.ButtonEvents), renderEvents(t.Events))
}

func renderButtons(events []types.ButtonEvent) string {
	if len(events) == 0 {
		return "-"
	}
	parts := make([]string, len(events))
	for i, be := range events {
		action := "release"
		if be.Pressed {
			action = "press"
		}
		parts[i] = string(be.Type) + ":" + action
	}
	return "[" + strings.Join(parts, ",") + "]"
}

func renderEvents(events types.Events) string {
	if len(events) == 0 {
		return "-"
	}
	parts := make([]string, len(events))
	for i, name := range events.Names() {
		parts[i] = string(name)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// Signals is a set of powertrain signal values keyed by message then signal.
type Signals map[string]map[string]float64

// NewSnapshot builds a snapshot in which every message the schema checks was
// updated at now, carrying the given powertrain values. It is used to script
// recordings for tests and bench runs.
func NewSnapshot(schema *signals.Schema, now time.Duration, pt Signals) *types.Snapshot {
	snap := &types.Snapshot{
		Powertrain: map[string]types.MessageFrame{},
		Camera:     map[string]types.MessageFrame{},
		Body:       map[string]types.MessageFrame{},
	}
	for _, c := range schema.Checks {
		frames := snap.Powertrain
		switch c.Bus {
		case types.BusCamera:
			frames = snap.Camera
		case types.BusBody:
			frames = snap.Body
		}
		frames[c.Message] = types.MessageFrame{Signals: map[string]float64{}, UpdatedAt: now}
	}
	for msg, sigs := range pt {
		f, ok := snap.Powertrain[msg]
		if !ok {
			f = types.MessageFrame{Signals: map[string]float64{}, UpdatedAt: now}
		}
		for k, v := range sigs {
			f.Signals[k] = v
		}
		snap.Powertrain[msg] = f
	}
	return snap
}
