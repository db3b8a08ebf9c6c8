package fsm

import "github.com/librescoot/librefsm"

// NewLateralDefinition creates the lane keeping enable machine.
// Engaging requires the main switch; disengaging is always allowed.
func NewLateralDefinition(actions Actions) *librefsm.Definition {
	return librefsm.NewDefinition().
		State(StateLateralOff,
			librefsm.WithOnEnter(actions.EnterLateralOff),
		).
		State(StateLateralOn,
			librefsm.WithOnEnter(actions.EnterLateralOn),
		).
		Transition(StateLateralOff, EvLateralEngage, StateLateralOn,
			librefsm.WithGuard(actions.IsMainOn),
		).
		Transition(StateLateralOn, EvLateralDisengage, StateLateralOff).
		Initial(StateLateralOff)
}

// NewLongitudinalDefinition creates the speed control enable machine.
func NewLongitudinalDefinition(actions Actions) *librefsm.Definition {
	return librefsm.NewDefinition().
		State(StateLongitudinalOff,
			librefsm.WithOnEnter(actions.EnterLongitudinalOff),
		).
		State(StateLongitudinalOn,
			librefsm.WithOnEnter(actions.EnterLongitudinalOn),
		).
		Transition(StateLongitudinalOff, EvLongitudinalEngage, StateLongitudinalOn,
			librefsm.WithGuard(actions.IsMainOn),
		).
		Transition(StateLongitudinalOn, EvLongitudinalDisengage, StateLongitudinalOff).
		Initial(StateLongitudinalOff)
}
