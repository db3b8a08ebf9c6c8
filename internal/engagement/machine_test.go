package engagement

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"assist-service/internal/signals"
	"assist-service/internal/types"
)

const ms = time.Millisecond

type driver struct {
	m   *Machine
	vs  types.VehicleState
	now time.Duration
}

func newDriver(t *testing.T, v types.VehicleVariant, flags types.FeatureFlags) *driver {
	t.Helper()
	s, err := signals.Compile(v, flags)
	require.NoError(t, err)
	m, err := New(s, nil)
	require.NoError(t, err)
	require.NoError(t, m.Start(testContext(t)))

	return &driver{
		m: m,
		vs: types.VehicleState{
			VEgo:   20,
			MainOn: true,
			Cruise: types.CruiseState{Available: true},
			Valid:  true,
		},
	}
}

type mutation func(*types.VehicleState)

func buttons(code int) mutation { return func(vs *types.VehicleState) { vs.CruiseButtons = code } }
func setting(code int) mutation { return func(vs *types.VehicleState) { vs.CruiseSetting = code } }
func cruise(on bool) mutation   { return func(vs *types.VehicleState) { vs.Cruise.Enabled = on } }
func brake(on bool) mutation    { return func(vs *types.VehicleState) { vs.BrakePressed = on } }
func hold(on bool) mutation     { return func(vs *types.VehicleState) { vs.BrakeHoldActive = on } }
func gas(on bool) mutation      { return func(vs *types.VehicleState) { vs.GasPressed = on } }
func speed(v float64) mutation  { return func(vs *types.VehicleState) { vs.VEgo = v } }
func mainSwitch(on bool) mutation {
	return func(vs *types.VehicleState) {
		vs.MainOn = on
		vs.Cruise.Available = on
	}
}

func (d *driver) at(now time.Duration, muts ...mutation) Output {
	d.now = now
	for _, mut := range muts {
		mut(&d.vs)
	}
	return d.m.Step(d.vs, now)
}

func (d *driver) next(muts ...mutation) Output {
	return d.at(d.now+10*ms, muts...)
}

func countEnables(outs ...Output) int {
	n := 0
	for _, o := range outs {
		for _, ev := range o.Events {
			if ev.Class.Has(types.ClassEnable) {
				n++
			}
		}
	}
	return n
}

func TestButtonEdges(t *testing.T) {
	d := newDriver(t, types.VariantCivic, types.FeatureFlags{})

	out := d.next(buttons(4))
	require.Len(t, out.ButtonEvents, 1)
	assert.Equal(t, types.ButtonEvent{Type: types.ButtonAccelCruise, Pressed: true, Time: d.now}, out.ButtonEvents[0])

	out = d.next()
	assert.Empty(t, out.ButtonEvents, "no change, no event")

	out = d.next(buttons(0))
	require.Len(t, out.ButtonEvents, 1)
	assert.Equal(t, types.ButtonAccelCruise, out.ButtonEvents[0].Type, "type comes from the previous code on release")
	assert.False(t, out.ButtonEvents[0].Pressed)

	// going straight from one button to another is still one event
	d.next(buttons(3))
	out = d.next(buttons(2))
	require.Len(t, out.ButtonEvents, 1)
	assert.Equal(t, types.ButtonCancel, out.ButtonEvents[0].Type)
	assert.True(t, out.ButtonEvents[0].Pressed)

	out = d.next(buttons(7))
	require.Len(t, out.ButtonEvents, 1)
	assert.Equal(t, types.ButtonUnknown, out.ButtonEvents[0].Type)

	// both sources at once
	out = d.next(buttons(0), setting(3))
	require.Len(t, out.ButtonEvents, 2)
	assert.Equal(t, types.ButtonUnknown, out.ButtonEvents[0].Type)
	assert.Equal(t, types.ButtonGapAdjust, out.ButtonEvents[1].Type)
}

func TestButtonEdgeProperty(t *testing.T) {
	d := newDriver(t, types.VariantCivic, types.FeatureFlags{})
	codes := []int{0, 1, 1, 4, 0, 0, 3, 2, 5, 0, 4, 4, 0}
	prev := 0
	for _, c := range codes {
		out := d.next(buttons(c))
		if c == prev {
			assert.Empty(t, out.ButtonEvents)
		} else {
			require.Len(t, out.ButtonEvents, 1)
			assert.Equal(t, c != 0, out.ButtonEvents[0].Pressed)
		}
		prev = c
	}
}

// Scenario A: with the main switch off no press enables anything.
func TestMainOffBlocksEngagement(t *testing.T) {
	d := newDriver(t, types.VariantCivic, types.FeatureFlags{})
	d.vs.MainOn = false
	d.vs.Cruise.Available = false

	var outs []Output
	outs = append(outs, d.next(setting(1)), d.next(setting(0)))
	outs = append(outs, d.next(buttons(4)), d.next(buttons(0)))
	outs = append(outs, d.next(buttons(3)), d.next(buttons(0)))
	for i := 0; i < 30; i++ {
		outs = append(outs, d.next())
	}

	assert.Equal(t, 0, countEnables(outs...))
	for _, o := range outs {
		assert.False(t, o.State.LateralEnabled)
		assert.False(t, o.State.LongitudinalEnabled)
	}
	assert.Len(t, outs[0].ButtonEvents, 1, "edges are still reported")
}

func TestMainOffForcesLateralOff(t *testing.T) {
	d := newDriver(t, types.VariantCivic, types.FeatureFlags{})

	out := d.next(setting(1))
	assert.True(t, out.State.LateralEnabled)
	d.next(setting(0))

	out = d.next(mainSwitch(false))
	assert.False(t, out.State.LateralEnabled)

	// turning main back on does not restore it
	out = d.next(mainSwitch(true))
	assert.False(t, out.State.LateralEnabled)
}

func TestLateralToggle(t *testing.T) {
	d := newDriver(t, types.VariantCivic, types.FeatureFlags{})

	out := d.at(1000*ms, setting(1))
	assert.True(t, out.State.LateralEnabled)
	// lateral on without cruise asks for an enable pulse
	assert.Equal(t, []types.EventName{types.EventButtonEnable}, out.Events.Names())
	assert.False(t, out.State.LongitudinalEnabled, "lane keeping alone does not engage speed control")

	out = d.next(setting(0))
	assert.True(t, out.State.LateralEnabled, "release does not toggle")

	out = d.at(2000*ms, setting(1))
	assert.False(t, out.State.LateralEnabled)
	assert.Equal(t, []types.EventName{types.EventButtonCancel}, out.Events.Names())
	d.next(setting(0))

	// with cruise on the toggle-off warns about steering instead
	d.at(3000*ms, cruise(true), setting(1))
	d.next(setting(0))
	out = d.at(4000*ms, setting(1))
	assert.False(t, out.State.LateralEnabled)
	assert.Equal(t, []types.EventName{types.EventManualSteeringRequired}, out.Events.Names())
}

// Scenario B: the interceptor engages on the release of Set.
func TestInterceptorSetRelease(t *testing.T) {
	d := newDriver(t, types.VariantPilot, types.FeatureFlags{GasInterceptor: true})

	out := d.next(buttons(3))
	assert.False(t, out.State.LongitudinalEnabled)

	out = d.next(buttons(0))
	assert.True(t, out.State.LongitudinalEnabled)
	assert.True(t, out.State.ResumeAvailable)
	assert.Equal(t, []types.EventName{types.EventButtonEnable}, out.Events.Names())

	out = d.next(brake(true))
	assert.False(t, out.State.LongitudinalEnabled, "brake disables")

	// resume works once cruise has been engaged before
	d.at(1000*ms, brake(false), buttons(4))
	out = d.next(buttons(0))
	assert.True(t, out.State.LongitudinalEnabled)

	out = d.next(buttons(2))
	assert.False(t, out.State.LongitudinalEnabled, "cancel disables")
	assert.Equal(t, []types.EventName{types.EventButtonCancel}, out.Events.Names())
}

func TestInterceptorResumeNeedsHistory(t *testing.T) {
	d := newDriver(t, types.VariantPilot, types.FeatureFlags{GasInterceptor: true})
	d.next(buttons(4))
	out := d.next(buttons(0))
	assert.False(t, out.State.LongitudinalEnabled)
	assert.False(t, out.State.ResumeAvailable)
}

// Scenario C: brake hold while assisted.
func TestBrakeHold(t *testing.T) {
	d := newDriver(t, types.VariantPilot, types.FeatureFlags{})

	out := d.at(10*ms, setting(1))
	require.True(t, out.State.LateralEnabled)
	d.next(setting(0))

	out = d.at(1000*ms, cruise(true), hold(true))
	assert.Equal(t, []types.EventName{types.EventBrakeHold}, out.Events.Names())
	assert.True(t, out.State.DisengageByBrake)

	// releasing re-engages with a silent pulse
	out = d.at(2000*ms, hold(false))
	assert.Equal(t, []types.EventName{types.EventSilentButtonEnable}, out.Events.Names())
	assert.False(t, out.State.DisengageByBrake)
	assert.Equal(t, 2000*ms, out.State.LastEnableSent)
}

func TestSilentBrakeHoldWithoutCruise(t *testing.T) {
	d := newDriver(t, types.VariantPilot, types.FeatureFlags{})
	d.at(10*ms, setting(1))
	d.next(setting(0))

	out := d.at(1000*ms, hold(true))
	assert.Equal(t, []types.EventName{types.EventSilentBrakeHold}, out.Events.Names())
	assert.True(t, out.State.DisengageByBrake)
	assert.True(t, out.Events[0].Class.Has(types.ClassSilent))
}

func TestBrakeHoldIgnoredWithStockRadar(t *testing.T) {
	d := newDriver(t, types.VariantInsight, types.FeatureFlags{})
	out := d.next(hold(true))
	assert.Empty(t, out.Events)
}

func TestBrakeHoldWithoutLateral(t *testing.T) {
	d := newDriver(t, types.VariantPilot, types.FeatureFlags{})
	out := d.next(hold(true), cruise(true))
	assert.Equal(t, []types.EventName{types.EventBrakeHold}, out.Events.Names())
	assert.False(t, out.State.DisengageByBrake)
}

// Scenario E: two accel releases 0.1 s apart only enable once.
func TestEnablePulseRateLimit(t *testing.T) {
	d := newDriver(t, types.VariantCivic, types.FeatureFlags{})
	d.vs.Cruise.Enabled = true

	var outs []Output
	outs = append(outs, d.at(50*ms, buttons(4)))
	first := d.at(100*ms, buttons(0))
	outs = append(outs, first)
	outs = append(outs, d.at(150*ms, buttons(4)))
	second := d.at(200*ms, buttons(0))
	outs = append(outs, second)
	for d.now < 600*ms {
		outs = append(outs, d.next())
	}

	assert.Equal(t, []types.EventName{types.EventButtonEnable}, first.Events.Names())
	assert.Empty(t, second.Events)
	assert.Equal(t, 1, countEnables(outs...), "the suppressed request must not fire later")
	assert.Equal(t, 100*ms, second.State.LastEnableSent)
	assert.True(t, first.State.LongitudinalEnabled)
}

func TestEnablePulseWaitsForCruise(t *testing.T) {
	d := newDriver(t, types.VariantCivic, types.FeatureFlags{})

	d.at(10*ms, buttons(4))
	out := d.at(20*ms, buttons(0))
	assert.Empty(t, out.Events, "neither cruise nor lateral engaged yet")

	// stock cruise engages within the window
	out = d.at(120*ms, cruise(true))
	assert.Equal(t, []types.EventName{types.EventButtonEnable}, out.Events.Names())

	// outside the window nothing fires
	d2 := newDriver(t, types.VariantCivic, types.FeatureFlags{})
	d2.at(10*ms, buttons(4))
	d2.at(20*ms, buttons(0))
	out = d2.at(300*ms, cruise(true))
	assert.Empty(t, out.Events)
}

func TestEnablePulseWithNoEntry(t *testing.T) {
	d := newDriver(t, types.VariantCivic, types.FeatureFlags{})
	d.vs.ParkBrake = true

	d.at(10*ms, buttons(4))
	out := d.at(20*ms, buttons(0))
	// the press is forwarded so the no-entry alert is shown
	assert.Equal(t, []types.EventName{types.EventParkBrake, types.EventButtonEnable}, out.Events.Names())
	assert.False(t, out.State.LongitudinalEnabled, "the alert pulse must not engage")
	assert.False(t, out.State.LateralEnabled)

	for d.now < 500*ms {
		assert.False(t, d.next().State.LongitudinalEnabled)
	}
}

func TestEnablePulseWithNoEntryRateLimited(t *testing.T) {
	d := newDriver(t, types.VariantCivic, types.FeatureFlags{})
	d.vs.Cruise.Enabled = true
	d.vs.ParkBrake = true

	var outs []Output
	outs = append(outs, d.at(50*ms, buttons(4)))
	first := d.at(100*ms, buttons(0))
	outs = append(outs, first)
	outs = append(outs, d.at(150*ms, buttons(4)))
	second := d.at(200*ms, buttons(0))
	outs = append(outs, second)
	for d.now < 600*ms {
		outs = append(outs, d.next())
	}

	assert.Equal(t, []types.EventName{types.EventParkBrake, types.EventButtonEnable}, first.Events.Names())
	assert.Equal(t, []types.EventName{types.EventParkBrake}, second.Events.Names())
	assert.Equal(t, 1, countEnables(outs...))
	assert.Equal(t, 100*ms, second.State.LastEnableSent)
	assert.False(t, first.State.LongitudinalEnabled)
}

func TestEnablePulseWithNoEntryNonPCM(t *testing.T) {
	d := newDriver(t, types.VariantInsight, types.FeatureFlags{RadarDisabled: true})
	d.vs.ParkBrake = true

	d.at(10*ms, buttons(3))
	out := d.at(20*ms, buttons(0))
	assert.Equal(t, []types.EventName{types.EventParkBrake, types.EventButtonEnable}, out.Events.Names())
	assert.False(t, out.State.LongitudinalEnabled)

	d.at(30*ms, buttons(3))
	out = d.at(40*ms, buttons(0))
	assert.Equal(t, []types.EventName{types.EventParkBrake}, out.Events.Names(), "second press inside the window")
	assert.Equal(t, 20*ms, out.State.LastEnableSent)
}

func TestCancel(t *testing.T) {
	d := newDriver(t, types.VariantCivic, types.FeatureFlags{})
	d.vs.Cruise.Enabled = true

	d.at(10*ms, buttons(4))
	out := d.at(20*ms, buttons(0))
	require.True(t, out.State.LongitudinalEnabled)

	out = d.at(30*ms, buttons(2))
	assert.False(t, out.State.LongitudinalEnabled)
	assert.Equal(t, []types.EventName{types.EventButtonCancel}, out.Events.Names())
	d.next(buttons(0))

	// with lane keeping on the driver keeps steering assist
	d.at(1000*ms, setting(1))
	d.next(setting(0))
	out = d.at(2000*ms, buttons(2))
	assert.True(t, out.State.LateralEnabled)
	assert.Equal(t, []types.EventName{types.EventManualLongitudinalRequired}, out.Events.Names())
}

func TestButtonPrecedence(t *testing.T) {
	d := newDriver(t, types.VariantCivic, types.FeatureFlags{})

	// cancel beats the LKAS toggle
	out := d.next(buttons(2), setting(1))
	assert.Len(t, out.ButtonEvents, 2)
	assert.False(t, out.State.LateralEnabled)
	assert.Equal(t, []types.EventName{types.EventButtonCancel}, out.Events.Names())
	d.next(buttons(0), setting(0))

	// accel release beats the LKAS toggle
	d.at(1000*ms, cruise(true), buttons(4))
	out = d.at(1010*ms, buttons(0), setting(1))
	assert.False(t, out.State.LateralEnabled)
	assert.Equal(t, []types.EventName{types.EventButtonEnable}, out.Events.Names())
	d.next(setting(0))

	// distance beats accel release
	d.at(2000*ms, buttons(3))
	out = d.at(2010*ms, buttons(0), setting(3))
	assert.Empty(t, out.Events)
	assert.Equal(t, never, out.State.LastEnablePressed)
}

func TestConditionEventsEveryTick(t *testing.T) {
	d := newDriver(t, types.VariantCivic, types.FeatureFlags{})
	d.vs.ParkBrake = true
	d.vs.BrakeError = true

	for i := 0; i < 3; i++ {
		out := d.next()
		assert.Equal(t, []types.EventName{types.EventBrakeUnavailable, types.EventParkBrake}, out.Events.Names())
		assert.False(t, out.State.LongitudinalEnabled)
	}
}

func TestManualRestart(t *testing.T) {
	d := newDriver(t, types.VariantPilot, types.FeatureFlags{})
	out := d.next(speed(0))
	assert.Equal(t, []types.EventName{types.EventManualRestart}, out.Events.Names())
	assert.True(t, out.Events[0].Class.Has(types.ClassNoEntry))

	out = d.next(speed(5))
	assert.Empty(t, out.Events)

	// stop and go cars never need it
	d = newDriver(t, types.VariantCivic, types.FeatureFlags{})
	out = d.next(speed(0))
	assert.Empty(t, out.Events)
}

func TestCruisePassthrough(t *testing.T) {
	d := newDriver(t, types.VariantPilot, types.FeatureFlags{})

	assert.False(t, d.next().State.LongitudinalEnabled)
	assert.True(t, d.next(cruise(true)).State.LongitudinalEnabled, "rising edge engages")
	assert.True(t, d.next(gas(true)).State.LongitudinalEnabled, "gas override while engaged")
	d.next(gas(false))
	assert.False(t, d.next(brake(true)).State.LongitudinalEnabled)
	assert.False(t, d.next(brake(false)).State.LongitudinalEnabled, "no new edge")

	d.next(cruise(false))
	assert.True(t, d.next(cruise(true)).State.LongitudinalEnabled)
	assert.False(t, d.next(cruise(false), gas(true)).State.LongitudinalEnabled, "gas while cruise is off clears it")
}

func TestCruiseEngagesLateral(t *testing.T) {
	d := newDriver(t, types.VariantPilot, types.FeatureFlags{CruiseEngagesLateral: true})
	out := d.next(cruise(true))
	assert.True(t, out.State.LateralEnabled)

	d = newDriver(t, types.VariantPilot, types.FeatureFlags{})
	out = d.next(cruise(true))
	assert.False(t, out.State.LateralEnabled)
}

func TestAssistLongitudinalButtonPath(t *testing.T) {
	d := newDriver(t, types.VariantInsight, types.FeatureFlags{RadarDisabled: true})

	d.at(10*ms, buttons(3))
	out := d.at(20*ms, buttons(0))
	assert.Equal(t, []types.EventName{types.EventButtonEnable}, out.Events.Names())
	assert.True(t, out.State.LongitudinalEnabled)

	d.at(30*ms, buttons(3))
	out = d.at(40*ms, buttons(0))
	assert.Empty(t, out.Events, "second press inside the window")
}

func TestDistanceLinesPassThrough(t *testing.T) {
	d := newDriver(t, types.VariantCivic, types.FeatureFlags{})
	d.vs.DistanceLines = 3
	assert.Equal(t, 3, d.next().State.DistanceLines)
}

func TestIdenticalReplayNoDrift(t *testing.T) {
	d := newDriver(t, types.VariantCivic, types.FeatureFlags{})
	d.vs.Cruise.Enabled = true
	d.at(10*ms, setting(1))

	a := d.at(500*ms, setting(0))
	b := d.at(500 * ms)
	assert.Equal(t, a.State, b.State)
	assert.Empty(t, b.Events)
	assert.Empty(t, b.ButtonEvents)
}

func TestDeterministic(t *testing.T) {
	script := func(d *driver) []Output {
		var outs []Output
		outs = append(outs, d.at(10*ms, setting(1)), d.next(setting(0)))
		outs = append(outs, d.at(100*ms, cruise(true), buttons(4)), d.next(buttons(0)))
		outs = append(outs, d.at(400*ms, hold(true), brake(true)), d.next(hold(false)), d.next(brake(false)))
		outs = append(outs, d.at(900*ms, buttons(2)), d.next(buttons(0), setting(3)), d.next(setting(0)))
		outs = append(outs, d.next(mainSwitch(false)))
		return outs
	}
	a := script(newDriver(t, types.VariantPilot, types.FeatureFlags{}))
	b := script(newDriver(t, types.VariantPilot, types.FeatureFlags{}))
	if diff := cmp.Diff(a, b); diff != "" {
		t.Errorf("replay differs (-first +second):\n%s", diff)
	}
}
