package hardware

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"assist-service/internal/logger"
)

type fakeLine struct {
	writes []int
	closed bool
	err    error
}

func (f *fakeLine) SetValue(value int) error {
	if f.err != nil {
		return f.err
	}
	f.writes = append(f.writes, value)
	return nil
}

func (f *fakeLine) Close() error {
	f.closed = true
	return nil
}

func newTestIndicators() (*GpioIndicators, *fakeLine, *fakeLine) {
	g := NewGpioIndicators(nil, logger.Discard())
	lat, lon := &fakeLine{}, &fakeLine{}
	g.lines[IndicatorLateral] = lat
	g.lines[IndicatorLongitudinal] = lon
	return g, lat, lon
}

func TestIndicatorWritesOnlyOnChange(t *testing.T) {
	g, lat, lon := newTestIndicators()

	require.NoError(t, g.Set(IndicatorLateral, true))
	require.NoError(t, g.Set(IndicatorLateral, true))
	require.NoError(t, g.Set(IndicatorLateral, false))
	require.NoError(t, g.Set(IndicatorLongitudinal, false))

	assert.Equal(t, []int{1, 0}, lat.writes)
	assert.Empty(t, lon.writes, "already off")
}

func TestIndicatorUnknown(t *testing.T) {
	g, _, _ := newTestIndicators()
	assert.Error(t, g.Set("hazard", true))
}

func TestIndicatorWriteFailureRetries(t *testing.T) {
	g, lat, _ := newTestIndicators()
	lat.err = errors.New("EBUSY")
	assert.Error(t, g.Set(IndicatorLateral, true))

	// the failed write is not remembered
	lat.err = nil
	require.NoError(t, g.Set(IndicatorLateral, true))
	assert.Equal(t, []int{1}, lat.writes)
}

func TestIndicatorCleanupTurnsOff(t *testing.T) {
	g, lat, lon := newTestIndicators()
	require.NoError(t, g.Set(IndicatorLateral, true))
	g.Cleanup()

	assert.Equal(t, []int{1, 0}, lat.writes)
	assert.True(t, lat.closed)
	assert.True(t, lon.closed)
	assert.Error(t, g.Set(IndicatorLateral, false), "lines are released")
}

func TestDefaultMappings(t *testing.T) {
	g := NewGpioIndicators(nil, logger.Discard())
	assert.Equal(t, DefaultIndicatorMappings, g.mappings)
	assert.Contains(t, g.mappings, IndicatorLateral)
	assert.Contains(t, g.mappings, IndicatorLongitudinal)
}
