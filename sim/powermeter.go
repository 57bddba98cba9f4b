package sim

import (
	"fmt"
	"time"
)

// PowerMeter provides the power demand of a physical or virtual node backing a
// ComputingSystem actor. Measure must return the most recently observed value
// without blocking; meters that poll remote endpoints do so out-of-band on
// their own schedule and cache the latest reading for the simulation thread.
type PowerMeter interface {
	Name() string
	// Measure returns the current power demand in watts (always >= 0).
	Measure(now time.Time) (float64, error)
}

// MockPowerMeter reports a fixed power demand, adjustable at runtime.
type MockPowerMeter struct {
	name string
	p    float64
}

// NewMockPowerMeter creates a meter reporting p watts. p must not be negative.
func NewMockPowerMeter(name string, p float64) (*MockPowerMeter, error) {
	if p < 0 {
		return nil, fmt.Errorf("power meter %q: power must not be negative, got %v", name, p)
	}
	return &MockPowerMeter{name: name, p: p}, nil
}

func (m *MockPowerMeter) Name() string {
	return m.name
}

// SetPower changes the reported demand. Must only be called from the
// simulation thread (e.g. a controller); external writers go through the
// Broker instead.
func (m *MockPowerMeter) SetPower(p float64) error {
	if p < 0 {
		return fmt.Errorf("power meter %q: power must not be negative, got %v", m.name, p)
	}
	m.p = p
	return nil
}

// Measure implements PowerMeter.
func (m *MockPowerMeter) Measure(now time.Time) (float64, error) {
	return m.p, nil
}
