package fusion

import (
	"gonum.org/v1/gonum/interp"
	"gonum.org/v1/gonum/mat"
)

const (
	kphToMS = 1 / 3.6
	mphToMS = 0.44704

	// laneChangeSpeed is the speed below which a turn signal holds off
	// assisted lane changes.
	laneChangeSpeed = 25 * mphToMS
)

// Below ~0.6 m/s the smoothed wheel speed snaps to zero, so the transmission
// speed is trusted at low speed and the wheels above 6 m/s.
var blendWeight = func() *interp.PiecewiseLinear {
	var pl interp.PiecewiseLinear
	if err := pl.Fit([]float64{1, 6}, []float64{0, 1}); err != nil {
		panic(err)
	}
	return &pl
}()

// BlendWeight is the weight of the wheel speed in the raw speed estimate.
// It is 0 at or below 1 m/s, 1 at or above 6 m/s and linear in between.
func BlendWeight(vWheel float64) float64 {
	return blendWeight.Predict(vWheel)
}

// BlendSpeed combines transmission and mean wheel speed, both in m/s.
func BlendSpeed(vXmission, vWheel float64) float64 {
	w := BlendWeight(vWheel)
	return (1-w)*vXmission + w*vWheel
}

// SpeedFilter turns a raw speed sample into a filtered speed and acceleration.
type SpeedFilter interface {
	Filter(raw float64) (speed, accel float64)
}

// Steady-state gain of a constant-acceleration model sampled at 100 Hz.
const (
	kalmanDT = 0.01
	kalmanK0 = 0.12287673
	kalmanK1 = 0.29666309
)

// KalmanSpeedFilter is a two-state (speed, acceleration) filter with a fixed
// gain. It is seeded by the first sample and only reset by constructing a
// new one. A constant input at rest is a fixed point: x stays bit-identical.
type KalmanSpeedFilter struct {
	x      *mat.VecDense
	a      *mat.Dense
	k      *mat.VecDense
	pred   *mat.VecDense
	seeded bool
}

func NewKalmanSpeedFilter() *KalmanSpeedFilter {
	return &KalmanSpeedFilter{
		x:    mat.NewVecDense(2, nil),
		a:    mat.NewDense(2, 2, []float64{1, kalmanDT, 0, 1}),
		k:    mat.NewVecDense(2, []float64{kalmanK0, kalmanK1}),
		pred: mat.NewVecDense(2, nil),
	}
}

func (f *KalmanSpeedFilter) Filter(raw float64) (float64, float64) {
	if !f.seeded {
		f.x.SetVec(0, raw)
		f.x.SetVec(1, 0)
		f.seeded = true
		return raw, 0
	}
	f.pred.MulVec(f.a, f.x)
	innovation := raw - f.pred.AtVec(0)
	f.x.AddScaledVec(f.pred, innovation, f.k)
	return f.x.AtVec(0), f.x.AtVec(1)
}
