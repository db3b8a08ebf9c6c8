package signals

import (
	"errors"
	"fmt"
	"time"

	"assist-service/internal/types"
)

// ErrUnsupportedVariant is returned by Compile for variants without a table entry.
var ErrUnsupportedVariant = errors.New("unsupported vehicle variant")

// Message names used by the compiler tables and read by the fuser.
const (
	MsgEngineData      = "ENGINE_DATA"
	MsgWheelSpeeds     = "WHEEL_SPEEDS"
	MsgSteeringSensors = "STEERING_SENSORS"
	MsgSeatbeltStatus  = "SEATBELT_STATUS"
	MsgCruise          = "CRUISE"
	MsgPowertrainData  = "POWERTRAIN_DATA"
	MsgVSAStatus       = "VSA_STATUS"
	MsgSteerStatus     = "STEER_STATUS"
	MsgSteerMotor      = "STEER_MOTOR_TORQUE"
	MsgSCMFeedback     = "SCM_FEEDBACK"
	MsgSCMButtons      = "SCM_BUTTONS"
	MsgGearbox         = "GEARBOX"
	MsgGearbox15T      = "GEARBOX_15T"
	MsgBrakeModule     = "BRAKE_MODULE"
	MsgGasPedal        = "GAS_PEDAL"
	MsgGasPedal2       = "GAS_PEDAL_2"
	MsgEPBStatus       = "EPB_STATUS"
	MsgACCHUD          = "ACC_HUD"
	MsgACCControl      = "ACC_CONTROL"
	MsgCruiseParams    = "CRUISE_PARAMS"
	MsgDoorsStatus     = "DOORS_STATUS"
	MsgStandstill      = "STANDSTILL"
	MsgGasSensor       = "GAS_SENSOR"
	MsgSteeringControl = "STEERING_CONTROL"
	MsgBrakeCommand    = "BRAKE_COMMAND"
	MsgBSMLeft         = "BSM_STATUS_LEFT"
	MsgBSMRight        = "BSM_STATUS_RIGHT"
)

// SignalSpec names one decoded signal and the value used when it is absent.
type SignalSpec struct {
	Name    string    `yaml:"name" json:"name"`
	Message string    `yaml:"message" json:"message"`
	Bus     types.Bus `yaml:"bus" json:"bus"`
	Default float64   `yaml:"default" json:"default"`
}

// MessageCheck is the expected update rate of a message. A zero rate is
// decoded but never considered stale.
type MessageCheck struct {
	Message string    `yaml:"message" json:"message"`
	Bus     types.Bus `yaml:"bus" json:"bus"`
	Address uint32    `yaml:"address,omitempty" json:"address,omitempty"`
	RateHz  float64   `yaml:"rate_hz" json:"rate_hz"`
}

// Period is the nominal interval between two updates, or 0 if unchecked.
func (c MessageCheck) Period() time.Duration {
	if c.RateHz <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / c.RateHz)
}

type LongitudinalPath string

const (
	// PathButton: accel/decel releases request an enable pulse.
	PathButton LongitudinalPath = "button"
	// PathCruise mirrors the stock cruise engagement.
	PathCruise LongitudinalPath = "cruise"
	// PathInterceptor engages on set/resume with a pedal interceptor fitted.
	PathInterceptor LongitudinalPath = "interceptor"
)

// Behavior is the set of per-variant switches the fuser and engagement
// machine read every tick.
type Behavior struct {
	Bosch              bool    `yaml:"bosch" json:"bosch"`
	AltBrakeSignal     bool    `yaml:"alt_brake_signal" json:"alt_brake_signal"`
	AssistLongitudinal bool    `yaml:"assist_longitudinal" json:"assist_longitudinal"`
	PCMCruise          bool    `yaml:"pcm_cruise" json:"pcm_cruise"`
	GasInterceptor     bool    `yaml:"gas_interceptor" json:"gas_interceptor"`
	StopAndGo          bool    `yaml:"stop_and_go" json:"stop_and_go"`
	MinEnableSpeed     float64 `yaml:"min_enable_speed" json:"min_enable_speed"`
	SpeedFactor        float64 `yaml:"speed_factor" json:"speed_factor"`
	SteerThreshold     float64 `yaml:"steer_threshold" json:"steer_threshold"`

	GearboxMessage   string           `yaml:"gearbox_message" json:"gearbox_message"`
	DoorSource       DoorSource       `yaml:"door_source" json:"door_source"`
	StandstillSource StandstillSource `yaml:"standstill_source" json:"standstill_source"`
	MainOnMessage    string           `yaml:"main_on_message" json:"main_on_message"`
	ParkBrakeMessage string           `yaml:"park_brake_message,omitempty" json:"park_brake_message,omitempty"`
	GasSource        GasSource        `yaml:"gas_source" json:"gas_source"`
	BrakeGrindFilter bool             `yaml:"brake_grind_filter" json:"brake_grind_filter"`
	BlindSpot        bool             `yaml:"blind_spot" json:"blind_spot"`

	SteeringControlAddress uint32           `yaml:"steering_control_address" json:"steering_control_address"`
	LongitudinalPath       LongitudinalPath `yaml:"longitudinal_path" json:"longitudinal_path"`
}

// Schema is the compiled, immutable description of what to read for one car.
type Schema struct {
	Variant  types.VehicleVariant `yaml:"variant" json:"variant"`
	Flags    types.FeatureFlags   `yaml:"flags" json:"flags"`
	Signals  []SignalSpec         `yaml:"signals" json:"signals"`
	Checks   []MessageCheck       `yaml:"checks" json:"checks"`
	Routing  map[types.Bus]int    `yaml:"routing" json:"routing"`
	Behavior Behavior             `yaml:"behavior" json:"behavior"`

	defaults map[signalKey]float64
}

type signalKey struct {
	bus     types.Bus
	message string
	signal  string
}

type checkKey struct {
	bus     types.Bus
	message string
}

// Default returns the schema default for a signal, or 0 for signals outside
// the schema.
func (s *Schema) Default(bus types.Bus, msg, sig string) float64 {
	return s.defaults[signalKey{bus, msg, sig}]
}

// Has reports whether the signal is part of the schema.
func (s *Schema) Has(bus types.Bus, msg, sig string) bool {
	_, ok := s.defaults[signalKey{bus, msg, sig}]
	return ok
}

var baselineChecks = []MessageCheck{
	ptCheck(MsgEngineData, 100),
	ptCheck(MsgWheelSpeeds, 50),
	ptCheck(MsgSteeringSensors, 100),
	ptCheck(MsgSeatbeltStatus, 10),
	ptCheck(MsgCruise, 10),
	ptCheck(MsgPowertrainData, 100),
	ptCheck(MsgVSAStatus, 50),
	ptCheck(MsgSteerStatus, 100),
	ptCheck(MsgSteerMotor, 0), // not present on every car
}

// BaselineChecks returns the message checks every variant carries.
func BaselineChecks() []MessageCheck {
	out := make([]MessageCheck, len(baselineChecks))
	copy(out, baselineChecks)
	return out
}

func baselineSignals(gearbox string) []SignalSpec {
	return []SignalSpec{
		pt("ENGINE_RPM", MsgPowertrainData, 0),
		pt("XMISSION_SPEED", MsgEngineData, 0),
		pt("WHEEL_SPEED_FL", MsgWheelSpeeds, 0),
		pt("WHEEL_SPEED_FR", MsgWheelSpeeds, 0),
		pt("WHEEL_SPEED_RL", MsgWheelSpeeds, 0),
		pt("WHEEL_SPEED_RR", MsgWheelSpeeds, 0),
		pt("STEER_ANGLE", MsgSteeringSensors, 0),
		pt("STEER_ANGLE_RATE", MsgSteeringSensors, 0),
		pt("MOTOR_TORQUE", MsgSteerMotor, 0),
		pt("STEER_TORQUE_SENSOR", MsgSteerStatus, 0),
		pt("LEFT_BLINKER", MsgSCMFeedback, 0),
		pt("RIGHT_BLINKER", MsgSCMFeedback, 0),
		pt("GEAR", gearbox, 0),
		pt("SEATBELT_DRIVER_LAMP", MsgSeatbeltStatus, 1),
		pt("SEATBELT_DRIVER_LATCHED", MsgSeatbeltStatus, 0),
		pt("BRAKE_PRESSED", MsgPowertrainData, 0),
		pt("BRAKE_SWITCH", MsgPowertrainData, 0),
		pt("CRUISE_BUTTONS", MsgSCMButtons, 0),
		pt("ESP_DISABLED", MsgVSAStatus, 1),
		pt("USER_BRAKE", MsgVSAStatus, 0),
		pt("BRAKE_HOLD_ACTIVE", MsgVSAStatus, 0),
		pt("STEER_STATUS", MsgSteerStatus, 5),
		pt("GEAR_SHIFTER", gearbox, 0),
		pt("PEDAL_GAS", MsgPowertrainData, 0),
		pt("CRUISE_SETTING", MsgSCMButtons, 0),
		pt("ACC_STATUS", MsgPowertrainData, 0),
	}
}

func cam(name, msg string) SignalSpec {
	return SignalSpec{Name: name, Message: msg, Bus: types.BusCamera}
}

func camCheck(msg string, rate float64) MessageCheck {
	return MessageCheck{Message: msg, Bus: types.BusCamera, RateHz: rate}
}

// Compile builds the schema and behavior for a variant. It is pure: the same
// inputs always give the same schema.
func Compile(v types.VehicleVariant, flags types.FeatureFlags) (*Schema, error) {
	info, ok := variantTable[v]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedVariant, v)
	}
	switch flags.Transmission {
	case "", types.TransmissionAutomatic, types.TransmissionCVT, types.TransmissionManual:
	default:
		return nil, fmt.Errorf("invalid transmission %q for %s", flags.Transmission, v)
	}

	b := behaviorFor(v, info, flags)

	c := &builder{
		signalSeen: make(map[signalKey]bool),
		checkSeen:  make(map[checkKey]bool),
	}
	c.signals(baselineSignals(b.GearboxMessage)...)
	c.checks(baselineChecks...)
	c.checks(ptCheck(MsgSCMFeedback, info.scmFeedbackRate), ptCheck(MsgSCMButtons, info.scmButtonsRate))
	c.checks(ptCheck(b.GearboxMessage, info.gearboxRate))

	if b.AltBrakeSignal {
		c.signals(pt("BRAKE_PRESSED", MsgBrakeModule, 0))
		c.checks(ptCheck(MsgBrakeModule, 50))
	}

	if info.bosch {
		c.signals(
			pt("CAR_GAS", MsgGasPedal2, 0),
			pt("MAIN_ON", MsgSCMFeedback, 0),
			pt("EPB_STATE", MsgEPBStatus, 0),
		)
		c.checks(ptCheck(MsgEPBStatus, 50), ptCheck(MsgGasPedal2, 100))
		if !b.AssistLongitudinal {
			c.signals(
				pt("CRUISE_CONTROL_LABEL", MsgACCHUD, 0),
				pt("CRUISE_SPEED", MsgACCHUD, 0),
				pt("ACCEL_COMMAND", MsgACCControl, 0),
				pt("AEB_STATUS", MsgACCControl, 0),
			)
			c.checks(ptCheck(MsgACCHUD, 10), ptCheck(MsgACCControl, 50))
		}
	} else {
		c.signals(
			pt("CRUISE_SPEED_PCM", MsgCruise, 0),
			pt("CRUISE_SPEED_OFFSET", MsgCruiseParams, 0),
		)
		c.checks(ptCheck(MsgCruiseParams, info.cruiseParamsRate))
	}

	switch info.doors {
	case DoorsSCMFeedback:
		c.signals(pt("DRIVERS_DOOR_OPEN", MsgSCMFeedback, 1))
	case DoorsSCMButtons:
		c.signals(pt("DRIVERS_DOOR_OPEN", MsgSCMButtons, 1))
		if info.standstill == StandstillWheelsMoving {
			c.signals(pt("WHEELS_MOVING", MsgStandstill, 1))
		}
	default:
		c.signals(
			pt("DOOR_OPEN_FL", MsgDoorsStatus, 1),
			pt("DOOR_OPEN_FR", MsgDoorsStatus, 1),
			pt("DOOR_OPEN_RL", MsgDoorsStatus, 1),
			pt("DOOR_OPEN_RR", MsgDoorsStatus, 1),
			pt("WHEELS_MOVING", MsgStandstill, 1),
		)
		c.checks(ptCheck(MsgDoorsStatus, 3), ptCheck(MsgStandstill, 50))
	}

	c.signals(info.body...)
	c.checks(info.bodyChecks...)

	if b.GasInterceptor {
		c.signals(pt("INTERCEPTOR_GAS", MsgGasSensor, 0), pt("INTERCEPTOR_GAS2", MsgGasSensor, 0))
		c.checks(ptCheck(MsgGasSensor, 50))
	}

	if b.AssistLongitudinal {
		c.signals(pt("BRAKE_ERROR_1", MsgStandstill, 1), pt("BRAKE_ERROR_2", MsgStandstill, 1))
		c.checks(ptCheck(MsgStandstill, 50))
	}

	c.checks(MessageCheck{
		Message: MsgSteeringControl,
		Bus:     types.BusCamera,
		Address: info.steerControlAddr,
		RateHz:  100,
	})
	if !info.bosch {
		c.signals(
			cam("COMPUTER_BRAKE", MsgBrakeCommand),
			cam("AEB_REQ_1", MsgBrakeCommand),
			cam("FCW", MsgBrakeCommand),
			cam("CHIME", MsgBrakeCommand),
			cam("FCM_OFF", MsgACCHUD),
			cam("FCM_OFF_2", MsgACCHUD),
			cam("FCM_PROBLEM", MsgACCHUD),
			cam("ICONS", MsgACCHUD),
		)
		c.checks(camCheck(MsgACCHUD, 10), camCheck(MsgBrakeCommand, 50))
	}

	routing := map[types.Bus]int{types.BusPowertrain: 0, types.BusCamera: 2}
	if info.bosch {
		routing[types.BusPowertrain] = 1
	}

	if b.BlindSpot {
		c.signals(
			SignalSpec{Name: "BSM_ALERT", Message: MsgBSMRight, Bus: types.BusBody},
			SignalSpec{Name: "BSM_ALERT", Message: MsgBSMLeft, Bus: types.BusBody},
		)
		c.checks(
			MessageCheck{Message: MsgBSMLeft, Bus: types.BusBody, RateHz: 3},
			MessageCheck{Message: MsgBSMRight, Bus: types.BusBody, RateHz: 3},
		)
		// B-CAN is forwarded onto the radar side of the harness.
		routing[types.BusBody] = 0
	}

	defaults := make(map[signalKey]float64, len(c.sigs))
	for _, s := range c.sigs {
		defaults[signalKey{s.Bus, s.Message, s.Name}] = s.Default
	}

	return &Schema{
		Variant:  v,
		Flags:    flags,
		Signals:  c.sigs,
		Checks:   c.chks,
		Routing:  routing,
		Behavior: b,
		defaults: defaults,
	}, nil
}

func behaviorFor(v types.VehicleVariant, info variantInfo, flags types.FeatureFlags) Behavior {
	b := Behavior{
		Bosch:                  info.bosch,
		AltBrakeSignal:         info.altBrake || (info.bosch && flags.AltBrakeSignal),
		StopAndGo:              info.stopAndGo,
		SpeedFactor:            info.speedFactor,
		SteerThreshold:         info.steerThreshold,
		GearboxMessage:         MsgGearbox,
		DoorSource:             info.doors,
		StandstillSource:       info.standstill,
		MainOnMessage:          info.mainOnMsg,
		GasSource:              info.gas,
		BrakeGrindFilter:       info.brakeGrind,
		BlindSpot:              info.bsm && flags.BlindSpot,
		SteeringControlAddress: info.steerControlAddr,
	}
	if v == types.VariantAccord && flags.Transmission == types.TransmissionCVT {
		b.GearboxMessage = MsgGearbox15T
	}
	if info.epb {
		b.ParkBrakeMessage = MsgEPBStatus
	}

	if info.bosch {
		b.AssistLongitudinal = flags.RadarDisabled
		b.PCMCruise = !b.AssistLongitudinal
	} else {
		// The pedal interceptor is only supported on cars with a stock
		// Nidec brake controller.
		b.GasInterceptor = flags.GasInterceptor
		b.AssistLongitudinal = true
		b.PCMCruise = !b.GasInterceptor
	}

	if b.StopAndGo || b.GasInterceptor {
		b.MinEnableSpeed = -1
	} else {
		b.MinEnableSpeed = 25.5 * mphToMS
	}

	switch {
	case b.GasInterceptor:
		b.LongitudinalPath = PathInterceptor
	case b.PCMCruise && b.MinEnableSpeed > 0:
		b.LongitudinalPath = PathCruise
	default:
		b.LongitudinalPath = PathButton
	}
	return b
}

type builder struct {
	sigs       []SignalSpec
	chks       []MessageCheck
	signalSeen map[signalKey]bool
	checkSeen  map[checkKey]bool
}

// signals appends specs, keeping the first definition of a repeated signal.
func (b *builder) signals(specs ...SignalSpec) {
	for _, s := range specs {
		k := signalKey{s.Bus, s.Message, s.Name}
		if b.signalSeen[k] {
			continue
		}
		b.signalSeen[k] = true
		b.sigs = append(b.sigs, s)
	}
}

func (b *builder) checks(checks ...MessageCheck) {
	for _, c := range checks {
		k := checkKey{c.Bus, c.Message}
		if b.checkSeen[k] {
			continue
		}
		b.checkSeen[k] = true
		b.chks = append(b.chks, c)
	}
}
