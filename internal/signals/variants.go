package signals

import "assist-service/internal/types"

const (
	mphToMS = 0.44704

	steerControlAddr    uint32 = 0xE4
	steerControlAddrAlt uint32 = 0x194
)

type DoorSource string

const (
	DoorsStatus      DoorSource = "doors_status" // four door switches
	DoorsSCMFeedback DoorSource = "scm_feedback"
	DoorsSCMButtons  DoorSource = "scm_buttons"
)

type StandstillSource string

const (
	StandstillWheelsMoving StandstillSource = "wheels_moving"
	StandstillXmission     StandstillSource = "xmission_speed"
)

type GasSource string

const (
	GasPedal2     GasSource = "gas_pedal_2" // GAS_PEDAL_2.CAR_GAS
	GasPowertrain GasSource = "pedal_gas"   // POWERTRAIN_DATA.PEDAL_GAS
)

// variantInfo is the static hardware description of one variant.
type variantInfo struct {
	bosch          bool
	altBrake       bool
	stopAndGo      bool
	speedFactor    float64
	steerThreshold float64

	doors      DoorSource
	standstill StandstillSource
	gas        GasSource
	mainOnMsg  string
	epb        bool
	brakeGrind bool
	bsm        bool

	steerControlAddr uint32
	gearboxRate      float64
	scmFeedbackRate  float64
	scmButtonsRate   float64
	cruiseParamsRate float64

	// body lists the variant specific signals and checks beyond the shared
	// Bosch/Nidec sets.
	body       []SignalSpec
	bodyChecks []MessageCheck
}

func pt(name, msg string, def float64) SignalSpec {
	return SignalSpec{Name: name, Message: msg, Bus: types.BusPowertrain, Default: def}
}

func ptCheck(msg string, rate float64) MessageCheck {
	return MessageCheck{Message: msg, Bus: types.BusPowertrain, RateHz: rate}
}

func base(v variantInfo) variantInfo {
	if v.doors == "" {
		v.doors = DoorsStatus
	}
	if v.standstill == "" {
		v.standstill = StandstillWheelsMoving
	}
	if v.gas == "" {
		v.gas = GasPedal2
	}
	if v.speedFactor == 0 {
		v.speedFactor = 1
	}
	if v.steerThreshold == 0 {
		v.steerThreshold = 1200
	}
	if v.mainOnMsg == "" {
		v.mainOnMsg = MsgSCMButtons
	}
	if v.steerControlAddr == 0 {
		v.steerControlAddr = steerControlAddr
	}
	if v.gearboxRate == 0 {
		v.gearboxRate = 100
	}
	if v.scmFeedbackRate == 0 {
		v.scmFeedbackRate = 10
	}
	if v.scmButtonsRate == 0 {
		v.scmButtonsRate = 25
	}
	if v.cruiseParamsRate == 0 {
		v.cruiseParamsRate = 50
	}
	return v
}

// bosch variants share the radar-era powertrain layout.
func bosch(v variantInfo) variantInfo {
	v.bosch = true
	v.epb = true
	v.mainOnMsg = MsgSCMFeedback
	return base(v)
}

var variantTable = map[types.VehicleVariant]variantInfo{
	types.VariantAccord: bosch(variantInfo{
		altBrake: true, stopAndGo: true, doors: DoorsSCMFeedback, standstill: StandstillXmission,
	}),
	types.VariantAccordHybrid: bosch(variantInfo{
		stopAndGo: true, doors: DoorsSCMFeedback, standstill: StandstillXmission,
	}),
	types.VariantCivicBosch: bosch(variantInfo{
		stopAndGo: true, doors: DoorsSCMFeedback, standstill: StandstillXmission,
	}),
	types.VariantCivicBoschDiesel: bosch(variantInfo{
		stopAndGo: true, doors: DoorsSCMFeedback, standstill: StandstillXmission, gearboxRate: 50,
	}),
	types.VariantCRV5G: bosch(variantInfo{
		altBrake: true, stopAndGo: true, speedFactor: 1.025, bsm: true,
	}),
	types.VariantCRVHybrid: bosch(variantInfo{
		stopAndGo: true, speedFactor: 1.025, doors: DoorsSCMFeedback, standstill: StandstillXmission, gearboxRate: 50,
	}),
	types.VariantInsight: bosch(variantInfo{
		stopAndGo: true, doors: DoorsSCMFeedback, standstill: StandstillXmission,
	}),
	types.VariantAcuraRDX3G: bosch(variantInfo{
		altBrake: true, stopAndGo: true, doors: DoorsSCMFeedback, standstill: StandstillXmission, gearboxRate: 50,
	}),

	types.VariantCivic: base(variantInfo{
		stopAndGo: true, epb: true, brakeGrind: true, mainOnMsg: MsgSCMFeedback,
		body: []SignalSpec{
			pt("CAR_GAS", MsgGasPedal2, 0),
			pt("MAIN_ON", MsgSCMFeedback, 0),
			pt("IMPERIAL_UNIT", "HUD_SETTING", 0),
			pt("EPB_STATE", MsgEPBStatus, 0),
		},
		bodyChecks: []MessageCheck{ptCheck("HUD_SETTING", 50), ptCheck(MsgEPBStatus, 50), ptCheck(MsgGasPedal2, 100)},
	}),
	types.VariantAcuraILX: base(variantInfo{
		body:       []SignalSpec{pt("CAR_GAS", MsgGasPedal2, 0), pt("MAIN_ON", MsgSCMButtons, 0)},
		bodyChecks: []MessageCheck{ptCheck(MsgGasPedal2, 100)},
	}),
	types.VariantCRV: base(variantInfo{
		speedFactor: 1.025, gas: GasPowertrain, steerControlAddr: steerControlAddrAlt,
		body: []SignalSpec{pt("MAIN_ON", MsgSCMButtons, 0)},
	}),
	types.VariantCRVEU: base(variantInfo{
		speedFactor: 1.025, steerThreshold: 400, gas: GasPowertrain, steerControlAddr: steerControlAddrAlt,
		body: []SignalSpec{pt("MAIN_ON", MsgSCMButtons, 0)},
	}),
	types.VariantAcuraRDX: base(variantInfo{
		steerThreshold: 400, gas: GasPowertrain, steerControlAddr: steerControlAddrAlt,
		body: []SignalSpec{pt("MAIN_ON", MsgSCMButtons, 0)},
	}),
	types.VariantPilot2019: base(variantInfo{
		gas: GasPowertrain, brakeGrind: true,
		body: []SignalSpec{pt("MAIN_ON", MsgSCMButtons, 0)},
	}),
	types.VariantRidgeline: base(variantInfo{
		gas: GasPowertrain, brakeGrind: true,
		body: []SignalSpec{pt("MAIN_ON", MsgSCMButtons, 0)},
	}),
	types.VariantFit: base(variantInfo{
		body: []SignalSpec{
			pt("CAR_GAS", MsgGasPedal2, 0),
			pt("MAIN_ON", MsgSCMButtons, 0),
			pt("BRAKE_HOLD_ACTIVE", MsgVSAStatus, 0),
		},
		bodyChecks: []MessageCheck{ptCheck(MsgGasPedal2, 100)},
	}),
	types.VariantHRV: base(variantInfo{
		speedFactor: 1.025, gas: GasPowertrain, doors: DoorsSCMButtons,
		body: []SignalSpec{
			pt("CAR_GAS", MsgGasPedal, 0),
			pt("MAIN_ON", MsgSCMButtons, 0),
			pt("BRAKE_HOLD_ACTIVE", MsgVSAStatus, 0),
		},
		bodyChecks: []MessageCheck{ptCheck(MsgGasPedal, 100)},
	}),
	types.VariantOdyssey: base(variantInfo{
		gas: GasPowertrain, epb: true, mainOnMsg: MsgSCMFeedback,
		body:       []SignalSpec{pt("MAIN_ON", MsgSCMFeedback, 0), pt("EPB_STATE", MsgEPBStatus, 0)},
		bodyChecks: []MessageCheck{ptCheck(MsgEPBStatus, 50)},
	}),
	types.VariantPilot: base(variantInfo{
		brakeGrind: true,
		body:       []SignalSpec{pt("MAIN_ON", MsgSCMButtons, 0), pt("CAR_GAS", MsgGasPedal2, 0)},
		// GAS_PEDAL_2 is missing on some trims, so it is decoded but not checked.
		bodyChecks: []MessageCheck{ptCheck(MsgGasPedal2, 0)},
	}),
	types.VariantOdysseyCHN: base(variantInfo{
		gas: GasPowertrain, epb: true, doors: DoorsSCMButtons, standstill: StandstillXmission,
		steerControlAddr: steerControlAddrAlt,
		scmFeedbackRate:  25, scmButtonsRate: 50, cruiseParamsRate: 10,
		body:       []SignalSpec{pt("MAIN_ON", MsgSCMButtons, 0), pt("EPB_STATE", MsgEPBStatus, 0)},
		bodyChecks: []MessageCheck{ptCheck(MsgEPBStatus, 50)},
	}),
}
