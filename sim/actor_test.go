package sim

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputingSystem_Power_SumsMetersNegative(t *testing.T) {
	// GIVEN a computing system over two meters drawing 2.194W and 7.6W
	m0, err := NewMockPowerMeter("mpm0", 2.194)
	require.NoError(t, err)
	m1, err := NewMockPowerMeter("mpm1", 7.6)
	require.NoError(t, err)
	cs, err := NewComputingSystem("server", []PowerMeter{m0, m1}, 1)
	require.NoError(t, err)

	// WHEN querying its power
	p, err := cs.Power(testStart)

	// THEN the result is the negated sum (consumption)
	require.NoError(t, err)
	assert.InDelta(t, -9.794, p, 1e-9)
}

func TestComputingSystem_Power_AppliesPUE(t *testing.T) {
	m0, err := NewMockPowerMeter("mpm0", 10)
	require.NoError(t, err)
	cs, err := NewComputingSystem("server", []PowerMeter{m0}, 1.5)
	require.NoError(t, err)

	p, err := cs.Power(testStart)
	require.NoError(t, err)
	assert.InDelta(t, -15, p, 1e-9)
}

func TestComputingSystem_Validation(t *testing.T) {
	m0, err := NewMockPowerMeter("mpm0", 1)
	require.NoError(t, err)

	_, err = NewComputingSystem("server", nil, 1)
	assert.Error(t, err, "no meters")

	_, err = NewComputingSystem("server", []PowerMeter{m0}, 0.9)
	assert.Error(t, err, "PUE below 1")
}

type failingMeter struct{}

func (failingMeter) Name() string { return "broken" }
func (failingMeter) Measure(time.Time) (float64, error) {
	return 0, errors.New("sensor unavailable")
}

func TestComputingSystem_Power_MeterFailurePropagates(t *testing.T) {
	cs, err := NewComputingSystem("server", []PowerMeter{failingMeter{}}, 1)
	require.NoError(t, err)

	_, err = cs.Power(testStart)
	assert.ErrorContains(t, err, "broken")
}

func TestMockPowerMeter_RejectsNegativePower(t *testing.T) {
	_, err := NewMockPowerMeter("m", -1)
	assert.Error(t, err)

	m, err := NewMockPowerMeter("m", 5)
	require.NoError(t, err)
	assert.Error(t, m.SetPower(-0.1))
	p, err := m.Measure(testStart)
	require.NoError(t, err)
	assert.Equal(t, 5.0, p)
}

func TestGenerator_Power_ReadsSignal(t *testing.T) {
	// GIVEN a generator over a historical irradiance series
	s, err := NewHistoricalSignal(
		[]time.Time{testStart, testStart.Add(time.Hour)},
		map[string][]float64{"solar": {100, 250}},
	)
	require.NoError(t, err)
	g, err := NewGenerator("solar", s, "solar")
	require.NoError(t, err)

	// WHEN querying at a time covered by the series
	p, err := g.Power(testStart.Add(30 * time.Minute))

	// THEN the signal value is reported as production (positive)
	require.NoError(t, err)
	assert.Equal(t, 100.0, p)
}

func TestGenerator_Power_NegativeSignalClampsToZero(t *testing.T) {
	g, err := NewGenerator("solar", NewMockSignal(-5), "")
	require.NoError(t, err)

	p, err := g.Power(testStart)
	require.NoError(t, err)
	assert.Equal(t, 0.0, p)
}

func TestGenerator_Power_SignalErrorPropagates(t *testing.T) {
	s, err := NewHistoricalSignal([]time.Time{testStart}, map[string][]float64{"solar": {100}})
	require.NoError(t, err)
	g, err := NewGenerator("solar", s, "solar")
	require.NoError(t, err)

	_, err = g.Power(testStart.Add(-time.Hour))
	assert.Error(t, err)
}
