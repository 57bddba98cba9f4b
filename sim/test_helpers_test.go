package sim

import (
	"time"
)

// stubActor is a test actor whose power function is supplied inline.
type stubActor struct {
	name string
	fn   func(now time.Time) (float64, error)
}

func (a *stubActor) Name() string {
	return a.name
}

func (a *stubActor) Power(now time.Time) (float64, error) {
	return a.fn(now)
}

// constantActor returns an actor reporting a fixed signed power.
func constantActor(name string, p float64) *stubActor {
	return &stubActor{name: name, fn: func(time.Time) (float64, error) { return p, nil }}
}

// recordingController captures the step results it observes.
type recordingController struct {
	name    string
	results []StepResult
	onStep  func(res StepResult, m *Microgrid) error
}

func (c *recordingController) Name() string             { return c.name }
func (c *recordingController) Start(m *Microgrid) error { return nil }
func (c *recordingController) Finalize()                {}
func (c *recordingController) Step(now time.Time, res StepResult, m *Microgrid) error {
	c.results = append(c.results, res)
	if c.onStep != nil {
		return c.onStep(res, m)
	}
	return nil
}

// mustBattery builds a battery for configurations known to be valid.
func mustBattery(cfg BatteryConfig) *SimpleBattery {
	b, err := NewSimpleBattery(cfg)
	if err != nil {
		panic(err)
	}
	return b
}

// testStart is an arbitrary fixed simulation start time.
var testStart = time.Date(2020, 6, 11, 0, 0, 0, 0, time.UTC)
