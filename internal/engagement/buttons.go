package engagement

import (
	"time"

	"assist-service/internal/types"
)

// Raw steering wheel button codes.
const (
	cruiseButtonNone     = 0
	cruiseButtonMain     = 1
	cruiseButtonCancel   = 2
	cruiseButtonDecelSet = 3
	cruiseButtonResAccel = 4

	cruiseSettingLKAS     = 1
	cruiseSettingDistance = 3
)

func cruiseButtonType(code int) types.ButtonType {
	switch code {
	case cruiseButtonResAccel:
		return types.ButtonAccelCruise
	case cruiseButtonDecelSet:
		return types.ButtonDecelCruise
	case cruiseButtonCancel:
		return types.ButtonCancel
	case cruiseButtonMain:
		return types.ButtonMain
	default:
		return types.ButtonUnknown
	}
}

func cruiseSettingType(code int) types.ButtonType {
	switch code {
	case cruiseSettingLKAS:
		return types.ButtonLKAS
	case cruiseSettingDistance:
		return types.ButtonGapAdjust
	default:
		return types.ButtonUnknown
	}
}

// buttonEdge reports the event for a code change. The type comes from
// whichever of the two codes is non-zero.
func buttonEdge(prev, cur int, now time.Duration, classify func(int) types.ButtonType) (types.ButtonEvent, bool) {
	if prev == cur {
		return types.ButtonEvent{}, false
	}
	code := cur
	if cur == cruiseButtonNone {
		code = prev
	}
	return types.ButtonEvent{Type: classify(code), Pressed: cur != cruiseButtonNone, Time: now}, true
}

// action is the one engagement effect a tick's button edges may have.
// Higher values win when several edges arrive together.
type action int

const (
	actionNone action = iota
	actionLKAS
	actionAccelDecel
	actionDistance
	actionCancel
)

func (a action) String() string {
	switch a {
	case actionLKAS:
		return "lkas"
	case actionAccelDecel:
		return "accel/decel"
	case actionDistance:
		return "distance"
	case actionCancel:
		return "cancel"
	default:
		return "none"
	}
}

// resolve picks the highest precedence effect from the edges of one tick:
// cancel press, distance edge, accel/decel release, LKAS press.
// released records which accel/decel button was let go.
func resolve(events []types.ButtonEvent) (a action, released types.ButtonType) {
	for _, be := range events {
		var cand action
		switch {
		case be.Type == types.ButtonCancel && be.Pressed:
			cand = actionCancel
		case be.Type == types.ButtonGapAdjust:
			cand = actionDistance
		case (be.Type == types.ButtonAccelCruise || be.Type == types.ButtonDecelCruise) && !be.Pressed:
			cand = actionAccelDecel
		case be.Type == types.ButtonLKAS && be.Pressed:
			cand = actionLKAS
		}
		if cand > a {
			a = cand
			released = ""
			if cand == actionAccelDecel {
				released = be.Type
			}
		}
	}
	return a, released
}
