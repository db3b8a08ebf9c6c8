package fusion

import "assist-service/internal/types"

var steerStatusNames = map[int]string{
	0: "NORMAL",
	2: "NO_TORQUE_ALERT_1",
	3: "LOW_SPEED_LOCKOUT",
	4: "NO_TORQUE_ALERT_2",
	5: "FAULT_1",
	6: "TMP_FAULT",
}

// ClassifySteerStatus maps the EPS status code to its name and severity.
// Codes the EPS is not known to send are treated as errors.
func ClassifySteerStatus(code int) (string, types.FaultClass) {
	name, ok := steerStatusNames[code]
	if !ok {
		return "UNKNOWN", types.FaultError
	}
	switch name {
	case "NORMAL":
		return name, types.FaultNormal
	case "LOW_SPEED_LOCKOUT", "NO_TORQUE_ALERT_2":
		// Low speed lockout is expected and alert 2 follows a driver nudge
		// or a bump.
		return name, types.FaultIgnorable
	case "NO_TORQUE_ALERT_1", "TMP_FAULT":
		return name, types.FaultWarning
	default:
		return name, types.FaultError
	}
}

// steerFault evaluates the EPS status for an engaged lateral controller.
// A warning is held back while the driver signals a lane change above the
// lane change speed.
func steerFault(code int, blinkerOn, belowLaneChange bool) (name string, class types.FaultClass, warning, err bool) {
	name, class = ClassifySteerStatus(code)
	err = class == types.FaultError
	warning = class == types.FaultWarning || class == types.FaultError
	if warning && blinkerOn && !belowLaneChange {
		warning = false
	}
	return name, class, warning, err
}
