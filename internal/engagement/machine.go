package engagement

import (
	"context"
	"fmt"
	"time"

	"github.com/librescoot/librefsm"

	"assist-service/internal/fsm"
	"assist-service/internal/logger"
	"assist-service/internal/signals"
	"assist-service/internal/types"
)

const (
	// EnableWindow is both how long a pending enable stays valid and the
	// minimum spacing between two enable pulses.
	EnableWindow = 200 * time.Millisecond

	// standstillSpeed is the speed below which a car with a minimum enable
	// speed needs a manual restart.
	standstillSpeed = 0.001

	// never is the initial press/pulse time, far enough in the past to not
	// fall inside any window.
	never = -time.Hour
)

// Ensure Machine implements fsm.Actions
var _ fsm.Actions = (*Machine)(nil)

// Output is the result of one tick.
type Output struct {
	State        types.EngagementState `json:"state"`
	ButtonEvents []types.ButtonEvent   `json:"button_events"`
	Events       types.Events          `json:"events"`
}

// Machine decides lateral and longitudinal engagement from the fused
// vehicle state. Step must be called from a single goroutine.
type Machine struct {
	behavior signals.Behavior
	flags    types.FeatureFlags
	log      *logger.Logger

	lateral      *librefsm.Machine
	longitudinal *librefsm.Machine

	// vs is the state being processed, read by the guards.
	vs types.VehicleState

	prevCruiseButtons int
	prevCruiseSetting int
	prevCruiseEnabled bool

	lastEnablePressed time.Duration
	lastEnableSent    time.Duration
	// pendingSpeed marks a pending enable that also asks for longitudinal
	// control (accel/decel release or a brake release re-engage).
	pendingSpeed     bool
	disengageByBrake bool
	resumeAvailable  bool
}

// New builds the engagement machine for a compiled schema. Start must be
// called before the first Step.
func New(schema *signals.Schema, log *logger.Logger) (*Machine, error) {
	if log == nil {
		log = logger.Discard()
	}
	m := &Machine{
		behavior:          schema.Behavior,
		flags:             schema.Flags,
		log:               log,
		lastEnablePressed: never,
		lastEnableSent:    never,
	}

	lat, err := fsm.NewLateralDefinition(m).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build lateral machine: %w", err)
	}
	lon, err := fsm.NewLongitudinalDefinition(m).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build longitudinal machine: %w", err)
	}
	m.lateral = lat
	m.longitudinal = lon
	return m, nil
}

// Start runs both machines until ctx is done.
func (m *Machine) Start(ctx context.Context) error {
	if err := m.lateral.Start(ctx); err != nil {
		return fmt.Errorf("failed to start lateral machine: %w", err)
	}
	if err := m.longitudinal.Start(ctx); err != nil {
		return fmt.Errorf("failed to start longitudinal machine: %w", err)
	}
	return nil
}

func (m *Machine) LateralEnabled() bool {
	return m.lateral.CurrentState() == fsm.StateLateralOn
}

func (m *Machine) LongitudinalEnabled() bool {
	return m.longitudinal.CurrentState() == fsm.StateLongitudinalOn
}

func (m *Machine) setLateral(on bool) {
	if m.LateralEnabled() == on {
		return
	}
	ev := fsm.EvLateralDisengage
	if on {
		ev = fsm.EvLateralEngage
	}
	if err := m.lateral.SendSync(librefsm.Event{ID: ev}); err != nil {
		m.log.Debugf("Lateral event %s not applied: %v", ev, err)
	}
}

func (m *Machine) setLongitudinal(on bool) {
	if m.LongitudinalEnabled() == on {
		return
	}
	ev := fsm.EvLongitudinalDisengage
	if on {
		ev = fsm.EvLongitudinalEngage
	}
	if err := m.longitudinal.SendSync(librefsm.Event{ID: ev}); err != nil {
		m.log.Debugf("Longitudinal event %s not applied: %v", ev, err)
	}
}

// Step processes one tick. now is the monotonic tick time.
func (m *Machine) Step(vs types.VehicleState, now time.Duration) Output {
	m.vs = vs
	b := m.behavior
	var events types.Events

	// button edges
	var buttons []types.ButtonEvent
	if be, ok := buttonEdge(m.prevCruiseButtons, vs.CruiseButtons, now, cruiseButtonType); ok {
		buttons = append(buttons, be)
	}
	if be, ok := buttonEdge(m.prevCruiseSetting, vs.CruiseSetting, now, cruiseSettingType); ok {
		buttons = append(buttons, be)
	}
	m.prevCruiseButtons = vs.CruiseButtons
	m.prevCruiseSetting = vs.CruiseSetting
	act, released := resolve(buttons)
	if act != actionNone {
		m.log.Debugf("Button action %s (%d edges)", act, len(buttons))
	}

	cruiseRising := vs.Cruise.Enabled && !m.prevCruiseEnabled
	m.prevCruiseEnabled = vs.Cruise.Enabled

	// lateral
	if !vs.MainOn {
		m.setLateral(false)
		m.clearPending()
	} else {
		if act == actionLKAS {
			m.setLateral(!m.LateralEnabled())
		}
		if m.flags.CruiseEngagesLateral && cruiseRising {
			m.setLateral(true)
		}
	}
	lateral := m.LateralEnabled()

	// longitudinal sources
	longitudinal := m.LongitudinalEnabled()
	switch b.LongitudinalPath {
	case signals.PathInterceptor:
		if vs.MainOn && act == actionAccelDecel {
			if released == types.ButtonDecelCruise || m.resumeAvailable {
				longitudinal = true
			}
		}
		if act == actionCancel || vs.BrakePressed {
			longitudinal = false
		}
	case signals.PathCruise:
		if vs.BrakePressed {
			longitudinal = false
		}
		if vs.GasPressed && !vs.Cruise.Enabled {
			longitudinal = false
		}
		if cruiseRising {
			longitudinal = true
		}
		if act == actionCancel {
			longitudinal = false
		}
	default:
		if act == actionCancel || vs.BrakePressed {
			longitudinal = false
		}
	}
	if !vs.MainOn {
		longitudinal = false
	}

	cruiseEnabled := vs.Cruise.Enabled
	if b.LongitudinalPath == signals.PathInterceptor {
		cruiseEnabled = longitudinal
	}
	if cruiseEnabled {
		m.resumeAvailable = true
	}

	// condition events, in the order the alert consumer expects
	if vs.BrakeError {
		events.Add(types.EventBrakeUnavailable)
	}
	if vs.BrakeHoldActive && b.AssistLongitudinal {
		if lateral {
			m.disengageByBrake = true
		}
		if cruiseEnabled {
			events.Add(types.EventBrakeHold)
		} else {
			events.Add(types.EventSilentBrakeHold)
		}
	}
	if vs.BrakePressed && lateral && m.LongitudinalEnabled() {
		m.disengageByBrake = true
	}
	if vs.ParkBrake {
		events.Add(types.EventParkBrake)
	}
	if b.MinEnableSpeed > 0 && vs.VEgo < standstillSpeed {
		events.Add(types.EventManualRestart)
	}

	// enable requests
	enablePressed, fromBrake := false, false
	if m.disengageByBrake && !vs.BrakePressed && !vs.BrakeHoldActive && lateral {
		m.lastEnablePressed = now
		m.pendingSpeed = true
		enablePressed, fromBrake = true, true
	}
	if !vs.BrakePressed && !vs.BrakeHoldActive {
		m.disengageByBrake = false
	}

	switch act {
	case actionAccelDecel:
		if vs.MainOn {
			m.lastEnablePressed = now
			m.pendingSpeed = true
			enablePressed = true
		}
	case actionLKAS:
		if !vs.MainOn {
			break
		}
		if !lateral {
			if !cruiseEnabled {
				events.Add(types.EventButtonCancel)
			} else {
				events.Add(types.EventManualSteeringRequired)
			}
		} else if !cruiseEnabled {
			m.lastEnablePressed = now
			m.pendingSpeed = false
			enablePressed = true
		}
	case actionCancel:
		m.clearPending()
		enablePressed, fromBrake = false, false
		if !lateral {
			events.Add(types.EventButtonCancel)
		} else {
			events.Add(types.EventManualLongitudinalRequired)
		}
	}

	// enable pulse, always last
	pending := now-m.lastEnablePressed < EnableWindow
	gapOK := now-m.lastEnableSent > EnableWindow
	noEntry := events.Any(types.ClassNoEntry)
	// a pulse forced out by a no-entry press only carries the alert
	emit, engage := false, false
	if b.PCMCruise {
		ready := pending && (cruiseEnabled || lateral)
		forced := enablePressed && noEntry
		emit = gapOK && (ready || forced)
		engage = emit && ready && !noEntry
		if !gapOK && (ready || forced) {
			// drop the request so it cannot fire once the gap has passed
			m.clearPending()
		}
	} else {
		emit = enablePressed && gapOK
		engage = emit && !noEntry
		if enablePressed && !emit {
			m.clearPending()
		}
	}
	if emit {
		if fromBrake {
			events.Add(types.EventSilentButtonEnable)
		} else {
			events.Add(types.EventButtonEnable)
		}
		m.lastEnableSent = now
		if engage && m.pendingSpeed && b.LongitudinalPath == signals.PathButton && vs.MainOn {
			longitudinal = true
		}
		m.clearPending()
	}

	m.setLongitudinal(longitudinal)

	return Output{
		State: types.EngagementState{
			LateralEnabled:      m.LateralEnabled(),
			LongitudinalEnabled: m.LongitudinalEnabled(),
			LastEnablePressed:   m.lastEnablePressed,
			LastEnableSent:      m.lastEnableSent,
			DisengageByBrake:    m.disengageByBrake,
			ResumeAvailable:     m.resumeAvailable,
			DistanceLines:       vs.DistanceLines,
		},
		ButtonEvents: buttons,
		Events:       events,
	}
}

func (m *Machine) clearPending() {
	m.lastEnablePressed = never
	m.pendingSpeed = false
}

// === State Entry Actions ===

func (m *Machine) EnterLateralOn(c *librefsm.Context) error {
	m.log.Infof("Lateral assist engaged (from %s)", c.FromState)
	return nil
}

func (m *Machine) EnterLateralOff(c *librefsm.Context) error {
	if c.FromState != "" {
		m.log.Infof("Lateral assist disengaged")
	}
	return nil
}

func (m *Machine) EnterLongitudinalOn(c *librefsm.Context) error {
	m.log.Infof("Longitudinal assist engaged (path %s)", m.behavior.LongitudinalPath)
	return nil
}

func (m *Machine) EnterLongitudinalOff(c *librefsm.Context) error {
	if c.FromState != "" {
		m.log.Infof("Longitudinal assist disengaged")
	}
	return nil
}

// === Guards ===

func (m *Machine) IsMainOn(c *librefsm.Context) bool {
	return m.vs.MainOn
}
