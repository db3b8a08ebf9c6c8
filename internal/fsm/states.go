package fsm

import "github.com/librescoot/librefsm"

// Lateral (lane keeping) states
const (
	StateLateralOff librefsm.StateID = "lateral-off"
	StateLateralOn  librefsm.StateID = "lateral-on"
)

// Longitudinal (speed control) states
const (
	StateLongitudinalOff librefsm.StateID = "longitudinal-off"
	StateLongitudinalOn  librefsm.StateID = "longitudinal-on"
)

// Engagement events
const (
	EvLateralEngage    librefsm.EventID = "lateral-engage"
	EvLateralDisengage librefsm.EventID = "lateral-disengage"

	EvLongitudinalEngage    librefsm.EventID = "longitudinal-engage"
	EvLongitudinalDisengage librefsm.EventID = "longitudinal-disengage"
)
