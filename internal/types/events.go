package types

import (
	"strings"
	"time"
)

type ButtonType string

const (
	ButtonUnknown     ButtonType = "unknown"
	ButtonAccelCruise ButtonType = "accelCruise"
	ButtonDecelCruise ButtonType = "decelCruise"
	ButtonCancel      ButtonType = "cancel"
	ButtonMain        ButtonType = "main"
	ButtonLKAS        ButtonType = "lkas"
	ButtonGapAdjust   ButtonType = "gapAdjust"
)

// ButtonEvent is derived from a change in a raw button code.
type ButtonEvent struct {
	Type    ButtonType    `json:"type"`
	Pressed bool          `json:"pressed"`
	Time    time.Duration `json:"time"`
}

type EventName string

const (
	EventManualRestart              EventName = "manualRestart"
	EventButtonCancel               EventName = "buttonCancel"
	EventManualSteeringRequired     EventName = "manualSteeringRequired"
	EventManualLongitudinalRequired EventName = "manualLongitudinalRequired"
	EventBrakeHold                  EventName = "brakeHold"
	EventSilentBrakeHold            EventName = "silentBrakeHold"
	EventParkBrake                  EventName = "parkBrake"
	EventBrakeUnavailable           EventName = "brakeUnavailable"
	EventButtonEnable               EventName = "buttonEnable"
	EventSilentButtonEnable         EventName = "silentButtonEnable"
)

// EventClass is a bit set describing how the alert consumer must react.
type EventClass uint8

const (
	ClassNoEntry EventClass = 1 << iota
	ClassUserDisable
	ClassImmediateDisable
	ClassWarning
	ClassEnable
	ClassSilent
)

func (c EventClass) Has(o EventClass) bool { return c&o != 0 }

func (c EventClass) String() string {
	var parts []string
	for _, p := range []struct {
		c    EventClass
		name string
	}{
		{ClassNoEntry, "noEntry"},
		{ClassUserDisable, "userDisable"},
		{ClassImmediateDisable, "immediateDisable"},
		{ClassWarning, "warning"},
		{ClassEnable, "enable"},
		{ClassSilent, "silent"},
	} {
		if c.Has(p.c) {
			parts = append(parts, p.name)
		}
	}
	return strings.Join(parts, "|")
}

var eventClasses = map[EventName]EventClass{
	EventManualRestart:              ClassNoEntry,
	EventButtonCancel:               ClassUserDisable,
	EventManualSteeringRequired:     ClassWarning,
	EventManualLongitudinalRequired: ClassWarning,
	EventBrakeHold:                  ClassNoEntry | ClassUserDisable,
	EventSilentBrakeHold:            ClassNoEntry | ClassUserDisable | ClassSilent,
	EventParkBrake:                  ClassNoEntry | ClassUserDisable,
	EventBrakeUnavailable:           ClassNoEntry | ClassImmediateDisable,
	EventButtonEnable:               ClassEnable,
	EventSilentButtonEnable:         ClassEnable | ClassSilent,
}

// Event is one alert for the alert consumer.
type Event struct {
	Name  EventName  `json:"name"`
	Class EventClass `json:"class"`
}

func NewEvent(name EventName) Event {
	return Event{Name: name, Class: eventClasses[name]}
}

// Events is the ordered alert list of a tick.
type Events []Event

func (e *Events) Add(name EventName) { *e = append(*e, NewEvent(name)) }

// Any reports whether some event carries class c.
func (e Events) Any(c EventClass) bool {
	for _, ev := range e {
		if ev.Class.Has(c) {
			return true
		}
	}
	return false
}

func (e Events) Names() []EventName {
	out := make([]EventName, len(e))
	for i, ev := range e {
		out[i] = ev.Name
	}
	return out
}
