package fsm

import "github.com/librescoot/librefsm"

// Actions defines the callbacks of the engagement machines.
// The engagement machine implements this interface; entry actions only
// record and log, they never send further events.
type Actions interface {
	// State entry actions
	EnterLateralOn(c *librefsm.Context) error
	EnterLateralOff(c *librefsm.Context) error
	EnterLongitudinalOn(c *librefsm.Context) error
	EnterLongitudinalOff(c *librefsm.Context) error

	// Guards
	IsMainOn(c *librefsm.Context) bool // main cruise switch is on this tick
}
