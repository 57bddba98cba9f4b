package sim

import (
	"fmt"
	"time"
)

// Actor is an entity producing or consuming power at a simulated instant.
//
// Sign convention (applied consistently across the engine): positive power is
// production (a surplus feeding the microgrid), negative power is consumption.
// A net-positive sum across actors charges storage; a net-negative sum
// discharges it.
//
// Power must be a deterministic function of the clock and the actor's own
// state. Actors backed by live measurements are the exception — their inputs
// arrive out-of-band — which is exactly what the SiL path exists for. A failed
// query is fatal to the run: a missing power value cannot be defaulted without
// corrupting the energy balance.
type Actor interface {
	Name() string
	Power(now time.Time) (float64, error)
}

// ComputingSystem is a consumer actor aggregating the demand of one or more
// power meters, scaled by the data center's power usage effectiveness (PUE).
type ComputingSystem struct {
	name   string
	meters []PowerMeter
	pue    float64
}

// NewComputingSystem creates a consumer over the given meters. pue must be
// >= 1 (1 = no infrastructure overhead).
func NewComputingSystem(name string, meters []PowerMeter, pue float64) (*ComputingSystem, error) {
	if len(meters) == 0 {
		return nil, fmt.Errorf("computing system %q requires at least one power meter", name)
	}
	if pue < 1 {
		return nil, fmt.Errorf("computing system %q: PUE must be >= 1, got %v", name, pue)
	}
	return &ComputingSystem{name: name, meters: meters, pue: pue}, nil
}

func (c *ComputingSystem) Name() string {
	return c.name
}

// Power implements Actor. The reported value is negative (consumption).
func (c *ComputingSystem) Power(now time.Time) (float64, error) {
	var total float64
	for _, meter := range c.meters {
		p, err := meter.Measure(now)
		if err != nil {
			return 0, fmt.Errorf("meter %q: %w", meter.Name(), err)
		}
		total += p
	}
	return -total * c.pue, nil
}

// Meters returns the meters backing this system, e.g. for controllers that
// adjust node power modes.
func (c *ComputingSystem) Meters() []PowerMeter {
	return c.meters
}

// Generator is a producer actor driven by a Signal, e.g. a solar panel fed by
// an irradiance series.
type Generator struct {
	name   string
	signal Signal
	column string
}

// NewGenerator creates a producer reading the given signal column.
func NewGenerator(name string, signal Signal, column string) (*Generator, error) {
	if signal == nil {
		return nil, fmt.Errorf("generator %q requires a signal", name)
	}
	return &Generator{name: name, signal: signal, column: column}, nil
}

func (g *Generator) Name() string {
	return g.name
}

// Power implements Actor. The reported value is non-negative (production);
// negative signal values are treated as zero output.
func (g *Generator) Power(now time.Time) (float64, error) {
	v, err := g.signal.At(now, g.column)
	if err != nil {
		return 0, err
	}
	if v < 0 {
		v = 0
	}
	return v, nil
}
