package sim

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// Environment is the top-level driver owning simulated wall-clock time. It
// advances one or more microgrids in lock-step: the base tick is the minimum
// step size across all registered microgrids, and a microgrid with a larger
// step size only executes on clock ticks that are multiples of its step size.
type Environment struct {
	simStart   time.Time
	microgrids []*Microgrid
	clock      int64
}

// NewEnvironment creates an environment whose simulated clock starts counting
// at simStart.
func NewEnvironment(simStart time.Time) *Environment {
	return &Environment{simStart: simStart}
}

// AddMicrogrid registers a microgrid to be advanced by Run.
func (e *Environment) AddMicrogrid(m *Microgrid) {
	e.microgrids = append(e.microgrids, m)
}

// Clock returns the current simulated time in seconds since simStart.
// Advanced only by the stepping loop.
func (e *Environment) Clock() int64 {
	return e.clock
}

// validate checks the run configuration before the loop starts so that no
// configuration error ever surfaces mid-run.
func (e *Environment) validate(until int64, rtFactor float64) (int64, error) {
	if until <= 0 {
		return 0, fmt.Errorf("run duration must be positive, got %d", until)
	}
	if rtFactor < 0 {
		return 0, fmt.Errorf("rt-factor must not be negative, got %v", rtFactor)
	}
	if len(e.microgrids) == 0 {
		return 0, fmt.Errorf("environment has no microgrids")
	}
	base := e.microgrids[0].StepSize()
	for _, m := range e.microgrids {
		if m.StepSize() <= 0 {
			return 0, fmt.Errorf("microgrid step size must be positive, got %d", m.StepSize())
		}
		if m.StepSize() < base {
			base = m.StepSize()
		}
	}
	for _, m := range e.microgrids {
		if m.StepSize()%base != 0 {
			return 0, fmt.Errorf("microgrid step size %d is not a multiple of the base tick %d",
				m.StepSize(), base)
		}
	}
	return base, nil
}

// Run advances the simulated clock from 0 to until (seconds) in base-tick
// increments, stepping every due microgrid on each tick.
//
// With rtFactor > 0 the loop blocks after each tick until wall-clock time has
// caught up to clock/rtFactor, pacing the simulation so that external SiL
// nodes can interact at real timescales (rtFactor 1 runs in real time,
// rtFactor 60 runs one simulated minute per wall second).
// With rtFactor 0 the loop runs as fast as possible. The loop never blocks
// waiting for external events; SiL events are best-effort and picked up by
// whichever drain follows their write.
//
// Configuration errors surface before the first step. A failing actor or
// controller aborts the run with the offending step in the error.
func (e *Environment) Run(until int64, rtFactor float64, printProgress bool) error {
	base, err := e.validate(until, rtFactor)
	if err != nil {
		return err
	}

	// Finalize is registered before Start so controllers that launched
	// background resources are torn down even when a later Start fails.
	defer func() {
		for _, m := range e.microgrids {
			for _, c := range m.Controllers() {
				c.Finalize()
			}
		}
	}()
	for _, m := range e.microgrids {
		for _, c := range m.Controllers() {
			if err := c.Start(m); err != nil {
				return fmt.Errorf("starting controller %q: %w", c.Name(), err)
			}
		}
	}

	logrus.Infof("Starting simulation: until=%ds, base tick=%ds, %d microgrid(s), rt-factor=%v",
		until, base, len(e.microgrids), rtFactor)
	wallStart := time.Now()

	for clock := base; clock <= until; clock += base {
		e.clock = clock
		now := e.simStart.Add(time.Duration(clock) * time.Second)
		for _, m := range e.microgrids {
			if clock%m.StepSize() != 0 {
				continue
			}
			if _, err := m.Step(clock, now, float64(m.StepSize())); err != nil {
				return fmt.Errorf("run aborted: %w", err)
			}
		}
		if printProgress {
			logrus.Infof("[clock %07d] %3.0f%% complete", clock, float64(clock)/float64(until)*100)
		}
		if rtFactor > 0 {
			target := time.Duration(float64(clock) / rtFactor * float64(time.Second))
			if sleep := target - time.Since(wallStart); sleep > 0 {
				time.Sleep(sleep)
			}
		}
	}

	logrus.Infof("[clock %07d] Simulation ended", e.clock)
	return nil
}
