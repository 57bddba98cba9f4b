package sim

import (
	"time"
)

// Controller observes or mutates simulation state once per microgrid step.
// Controllers run synchronously on the simulation thread, in registration
// order, after the step's physical update. A controller that mutates storage
// parameters affects the next step, never the current one.
type Controller interface {
	Name() string

	// Start is called once before the stepping loop begins. Controllers that
	// own background resources (e.g. the SiL API server) launch them here.
	Start(m *Microgrid) error

	// Step is called with the step's result and a mutable view of the
	// microgrid. Returning an error aborts the run.
	Step(now time.Time, res StepResult, m *Microgrid) error

	// Finalize is called once after the run ends, also on abort.
	Finalize()
}

// MonitorRecord is one step's snapshot captured by a Monitor.
type MonitorRecord struct {
	Result      StepResult
	ChargeLevel float64 // storage charge level after the step, Ws
	MinSoc      float64 // storage min SoC floor after the step, Ws
}

// Monitor is a Controller that records every step result in memory.
// Exporting records (e.g. to CSV) is left to the caller.
type Monitor struct {
	records []MonitorRecord
}

// NewMonitor creates an empty monitor.
func NewMonitor() *Monitor {
	return &Monitor{}
}

func (m *Monitor) Name() string {
	return "monitor"
}

// Start implements Controller.
func (m *Monitor) Start(grid *Microgrid) error {
	return nil
}

// Step implements Controller.
func (m *Monitor) Step(now time.Time, res StepResult, grid *Microgrid) error {
	rec := MonitorRecord{Result: res}
	if storage := grid.Storage(); storage != nil {
		rec.ChargeLevel = storage.ChargeLevel()
		rec.MinSoc = storage.MinSoc()
	}
	m.records = append(m.records, rec)
	return nil
}

// Finalize implements Controller.
func (m *Monitor) Finalize() {}

// Records returns the captured records in step order.
func (m *Monitor) Records() []MonitorRecord {
	return m.records
}
