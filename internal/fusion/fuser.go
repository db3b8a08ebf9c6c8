package fusion

import (
	"math"
	"strings"
	"time"

	"assist-service/internal/logger"
	"assist-service/internal/signals"
	"assist-service/internal/types"
)

const (
	// blinkerHoldTicks keeps a blinker on between stalk flashes.
	blinkerHoldTicks = 250

	maxPlausibleKph = 300

	// cruise set speed pulses to 254/255 while being set
	maxCruiseSpeedKph  = 160
	cruiseSpeedStandby = 252

	gasInterceptorThreshold = 20
	brakeGrindThreshold     = 0.1
)

const (
	cruiseSettingLKAS     = 1
	cruiseSettingDistance = 3
)

var gearShifter = map[int]types.Gear{
	1:  types.GearPark,
	2:  types.GearReverse,
	4:  types.GearNeutral,
	8:  types.GearDrive,
	16: types.GearSport,
	32: types.GearLow,
}

// Input is everything the fuser needs for one tick.
type Input struct {
	Snapshot *types.Snapshot
	Now      time.Duration
	// LateralEnabled is the engagement state produced on the previous tick.
	LateralEnabled bool
}

// Fuser turns decoded snapshots into a VehicleState. It keeps the small
// amount of history the debouncing and latching rules need.
type Fuser struct {
	schema    *signals.Schema
	filter    SpeedFilter
	tolerance float64
	log       *logger.Logger

	brakeSwitchPrev   bool
	brakeSwitchPrevTS time.Duration
	pcmAccActive      bool
	cruiseSpeedPrev   float64
	cruiseSettingPrev int
	trMode            int

	leftBlinkerPrev  bool
	rightBlinkerPrev bool
	leftBlinkerCnt   int
	rightBlinkerCnt  int

	valid bool
}

type Option func(*Fuser)

// WithSpeedFilter replaces the default Kalman speed filter.
func WithSpeedFilter(f SpeedFilter) Option {
	return func(fu *Fuser) { fu.filter = f }
}

// WithStaleTolerance sets how many periods a message may be late.
func WithStaleTolerance(tol float64) Option {
	return func(fu *Fuser) { fu.tolerance = tol }
}

func WithLogger(l *logger.Logger) Option {
	return func(fu *Fuser) { fu.log = l }
}

func NewFuser(schema *signals.Schema, opts ...Option) *Fuser {
	f := &Fuser{
		schema:    schema,
		filter:    NewKalmanSpeedFilter(),
		tolerance: DefaultStaleTolerance,
		log:       logger.Discard(),
		valid:     true,
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// value reads a signal, falling back to the schema default when the message
// or signal is absent or not a finite number.
func (f *Fuser) value(snap *types.Snapshot, bus types.Bus, msg, sig string) float64 {
	if frame, ok := snap.Frame(bus, msg); ok {
		if v, ok := frame.Signals[sig]; ok && !math.IsNaN(v) && !math.IsInf(v, 0) {
			return v
		}
	}
	return f.schema.Default(bus, msg, sig)
}

func (f *Fuser) pt(snap *types.Snapshot, msg, sig string) float64 {
	return f.value(snap, types.BusPowertrain, msg, sig)
}

func (f *Fuser) flag(snap *types.Snapshot, msg, sig string) bool {
	return f.pt(snap, msg, sig) != 0
}

func clampSpeedKph(v float64) float64 {
	return math.Max(0, math.Min(v, maxPlausibleKph))
}

// Update produces the VehicleState for one tick. It never fails: missing
// data falls back to defaults and shows up as Valid=false.
func (f *Fuser) Update(in Input) types.VehicleState {
	snap := in.Snapshot
	if snap == nil {
		snap = &types.Snapshot{Invalid: true}
	}
	b := f.schema.Behavior
	var vs types.VehicleState

	// speed
	scale := kphToMS * b.SpeedFactor
	vs.WheelSpeeds = types.WheelSpeeds{
		FL: clampSpeedKph(f.pt(snap, signals.MsgWheelSpeeds, "WHEEL_SPEED_FL")) * scale,
		FR: clampSpeedKph(f.pt(snap, signals.MsgWheelSpeeds, "WHEEL_SPEED_FR")) * scale,
		RL: clampSpeedKph(f.pt(snap, signals.MsgWheelSpeeds, "WHEEL_SPEED_RL")) * scale,
		RR: clampSpeedKph(f.pt(snap, signals.MsgWheelSpeeds, "WHEEL_SPEED_RR")) * scale,
	}
	vWheel := (vs.WheelSpeeds.FL + vs.WheelSpeeds.FR + vs.WheelSpeeds.RL + vs.WheelSpeeds.RR) / 4
	xmissionKph := clampSpeedKph(f.pt(snap, signals.MsgEngineData, "XMISSION_SPEED"))
	vs.VEgoRaw = BlendSpeed(xmissionKph*scale, vWheel)
	vs.VEgo, vs.AEgo = f.filter.Filter(vs.VEgoRaw)
	vs.BelowLaneChangeSpeed = vs.VEgo < laneChangeSpeed

	switch b.StandstillSource {
	case signals.StandstillXmission:
		vs.Standstill = xmissionKph < 0.1
	default:
		vs.Standstill = !f.flag(snap, signals.MsgStandstill, "WHEELS_MOVING")
	}

	// body
	switch b.DoorSource {
	case signals.DoorsSCMFeedback:
		vs.DoorOpen = f.flag(snap, signals.MsgSCMFeedback, "DRIVERS_DOOR_OPEN")
	case signals.DoorsSCMButtons:
		vs.DoorOpen = f.flag(snap, signals.MsgSCMButtons, "DRIVERS_DOOR_OPEN")
	default:
		for _, d := range []string{"DOOR_OPEN_FL", "DOOR_OPEN_FR", "DOOR_OPEN_RL", "DOOR_OPEN_RR"} {
			vs.DoorOpen = vs.DoorOpen || f.flag(snap, signals.MsgDoorsStatus, d)
		}
	}
	vs.SeatbeltUnlatched = f.flag(snap, signals.MsgSeatbeltStatus, "SEATBELT_DRIVER_LAMP") ||
		!f.flag(snap, signals.MsgSeatbeltStatus, "SEATBELT_DRIVER_LATCHED")
	vs.ESPDisabled = f.flag(snap, signals.MsgVSAStatus, "ESP_DISABLED")
	if b.ParkBrakeMessage != "" {
		vs.ParkBrake = f.flag(snap, b.ParkBrakeMessage, "EPB_STATE")
	}
	if b.AssistLongitudinal {
		vs.BrakeError = f.flag(snap, signals.MsgStandstill, "BRAKE_ERROR_1") ||
			f.flag(snap, signals.MsgStandstill, "BRAKE_ERROR_2")
	}
	vs.EngineRPM = f.pt(snap, signals.MsgPowertrainData, "ENGINE_RPM")
	vs.Gear = parseGear(f.pt(snap, b.GearboxMessage, "GEAR_SHIFTER"))

	// steering
	vs.SteeringAngleDeg = f.pt(snap, signals.MsgSteeringSensors, "STEER_ANGLE")
	vs.SteeringRateDeg = f.pt(snap, signals.MsgSteeringSensors, "STEER_ANGLE_RATE")
	vs.SteeringTorque = f.pt(snap, signals.MsgSteerStatus, "STEER_TORQUE_SENSOR")
	vs.SteeringTorqueEps = f.pt(snap, signals.MsgSteerMotor, "MOTOR_TORQUE")
	vs.SteeringPressed = math.Abs(vs.SteeringTorque) > b.SteerThreshold

	// blinkers
	vs.LeftBlinkerOn = f.flag(snap, signals.MsgSCMFeedback, "LEFT_BLINKER")
	vs.RightBlinkerOn = f.flag(snap, signals.MsgSCMFeedback, "RIGHT_BLINKER")
	vs.LeftBlinker, vs.RightBlinker = f.holdBlinkers(vs.LeftBlinkerOn, vs.RightBlinkerOn)

	// gas
	pedalGas := f.pt(snap, signals.MsgPowertrainData, "PEDAL_GAS")
	switch b.GasSource {
	case signals.GasPowertrain:
		vs.Gas = pedalGas / 256
	default:
		vs.Gas = f.pt(snap, signals.MsgGasPedal2, "CAR_GAS") / 256
	}
	if b.GasInterceptor {
		userGas := (f.pt(snap, signals.MsgGasSensor, "INTERCEPTOR_GAS") + f.pt(snap, signals.MsgGasSensor, "INTERCEPTOR_GAS2")) / 2
		vs.GasPressed = userGas > gasInterceptorThreshold
	} else {
		vs.GasPressed = pedalGas > 1e-5
	}

	// brake
	vs.Brake = f.pt(snap, signals.MsgVSAStatus, "USER_BRAKE")
	vs.BrakeHoldActive = f.flag(snap, signals.MsgVSAStatus, "BRAKE_HOLD_ACTIVE")
	vs.BrakePressed = f.brakePressed(snap, b)
	if b.BrakeGrindFilter && vs.Brake > brakeGrindThreshold {
		vs.BrakePressed = true
	}

	// cruise
	vs.MainOn = f.flag(snap, b.MainOnMessage, "MAIN_ON")
	vs.Cruise.Available = vs.MainOn
	f.updateCruise(snap, b, &vs)

	// buttons
	vs.CruiseButtons = int(f.pt(snap, signals.MsgSCMButtons, "CRUISE_BUTTONS"))
	vs.CruiseSetting = int(f.pt(snap, signals.MsgSCMButtons, "CRUISE_SETTING"))
	if f.cruiseSettingPrev == cruiseSettingDistance && vs.CruiseSetting == 0 {
		f.trMode = (f.trMode + 3) % 4
	}
	f.cruiseSettingPrev = vs.CruiseSetting
	vs.DistanceLines = f.trMode + 1

	// steering fault
	vs.SteerFault = types.FaultNormal
	if in.LateralEnabled {
		code := int(f.pt(snap, signals.MsgSteerStatus, "STEER_STATUS"))
		vs.SteerStatus, vs.SteerFault, vs.SteerWarning, vs.SteerError =
			steerFault(code, vs.LeftBlinkerOn || vs.RightBlinkerOn, vs.BelowLaneChangeSpeed)
	}

	// stock ADAS
	if b.Bosch {
		vs.StockAEB = !b.AssistLongitudinal &&
			f.flag(snap, signals.MsgACCControl, "AEB_STATUS") &&
			f.pt(snap, signals.MsgACCControl, "ACCEL_COMMAND") < -1e-5
	} else {
		vs.StockAEB = f.value(snap, types.BusCamera, signals.MsgBrakeCommand, "AEB_REQ_1") != 0 &&
			f.value(snap, types.BusCamera, signals.MsgBrakeCommand, "COMPUTER_BRAKE") > 1e-5
		if f.schema.Flags.TrustStockFCW {
			vs.StockFCW = f.value(snap, types.BusCamera, signals.MsgBrakeCommand, "FCW") != 0
		}
	}
	if b.BlindSpot {
		vs.LeftBlindspot = f.value(snap, types.BusBody, signals.MsgBSMLeft, "BSM_ALERT") == 1
		vs.RightBlindspot = f.value(snap, types.BusBody, signals.MsgBSMRight, "BSM_ALERT") == 1
	}

	stale := CheckStaleness(f.schema, snap, in.Now, f.tolerance)
	vs.Valid = !snap.Invalid && len(stale) == 0
	f.logValidity(vs.Valid, snap.Invalid, stale)

	return vs
}

func parseGear(v float64) types.Gear {
	if g, ok := gearShifter[int(v)]; ok {
		return g
	}
	return types.GearUnknown
}

// brakePressed debounces BRAKE_SWITCH, which shows single sample noise: it
// only counts when set on two consecutive samples.
func (f *Fuser) brakePressed(snap *types.Snapshot, b signals.Behavior) bool {
	if b.AltBrakeSignal {
		return f.flag(snap, signals.MsgBrakeModule, "BRAKE_PRESSED")
	}
	sw := f.flag(snap, signals.MsgPowertrainData, "BRAKE_SWITCH")
	var ts time.Duration
	if frame, ok := snap.Frame(types.BusPowertrain, signals.MsgPowertrainData); ok {
		ts = frame.UpdatedAt
	}
	pressed := f.flag(snap, signals.MsgPowertrainData, "BRAKE_PRESSED") ||
		(sw && f.brakeSwitchPrev && ts != f.brakeSwitchPrevTS)
	f.brakeSwitchPrev = sw
	f.brakeSwitchPrevTS = ts
	return pressed
}

func (f *Fuser) updateCruise(snap *types.Snapshot, b signals.Behavior, vs *types.VehicleState) {
	if b.Bosch {
		if !b.AssistLongitudinal {
			setSpeed := f.pt(snap, signals.MsgACCHUD, "CRUISE_SPEED")
			vs.Cruise.NonAdaptive = f.flag(snap, signals.MsgACCHUD, "CRUISE_CONTROL_LABEL")
			vs.Cruise.Standstill = setSpeed == cruiseSpeedStandby
			if setSpeed > maxCruiseSpeedKph {
				vs.Cruise.Speed = f.cruiseSpeedPrev
			} else {
				vs.Cruise.Speed = setSpeed * kphToMS
			}
			f.cruiseSpeedPrev = vs.Cruise.Speed
		}
	} else {
		vs.Cruise.Speed = f.pt(snap, signals.MsgCruise, "CRUISE_SPEED_PCM") * kphToMS
	}

	accActive := f.flag(snap, signals.MsgPowertrainData, "ACC_STATUS")
	if accActive {
		f.pcmAccActive = true
	}
	if !vs.Cruise.Available {
		f.pcmAccActive = false
	}
	if f.pcmAccActive {
		vs.Cruise.Enabled = vs.Cruise.Available
	} else {
		vs.Cruise.Enabled = accActive
	}
}

func (f *Fuser) holdBlinkers(left, right bool) (bool, bool) {
	if left {
		f.rightBlinkerCnt = 0
		if !f.leftBlinkerPrev {
			f.leftBlinkerCnt = blinkerHoldTicks
		}
	}
	if right {
		f.leftBlinkerCnt = 0
		if !f.rightBlinkerPrev {
			f.rightBlinkerCnt = blinkerHoldTicks
		}
	}
	if f.leftBlinkerCnt > 0 {
		f.leftBlinkerCnt--
	}
	if f.rightBlinkerCnt > 0 {
		f.rightBlinkerCnt--
	}
	f.leftBlinkerPrev = left
	f.rightBlinkerPrev = right
	return left || f.leftBlinkerCnt > 0, right || f.rightBlinkerCnt > 0
}

func (f *Fuser) logValidity(valid, invalid bool, stale []signals.MessageCheck) {
	if valid == f.valid {
		return
	}
	f.valid = valid
	if valid {
		f.log.Infof("Vehicle state valid again")
		return
	}
	if invalid {
		f.log.Infof("Vehicle state invalid: decoder flagged snapshot")
		return
	}
	names := make([]string, len(stale))
	for i, c := range stale {
		names[i] = c.Bus.String() + "/" + c.Message
	}
	f.log.Infof("Vehicle state invalid: stale %s", strings.Join(names, ", "))
}
