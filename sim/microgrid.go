package sim

import (
	"fmt"
	"time"
)

// StepResult is the per-step aggregate computed by Microgrid.Step and handed
// to every controller.
type StepResult struct {
	Clock int64     // simulated seconds since simulation start
	Time  time.Time // absolute simulated time

	TotalPower  float64            // net actor power in W (positive = surplus)
	ActorPowers map[string]float64 // signed power per actor name

	StorageDelta float64 // energy applied to storage this step in Ws
	Curtailed    float64 // surplus power that could not be absorbed, in W
	Unserved     float64 // deficit power that could not be served, in W
}

// PolicyResult reports how a step's net power was met.
type PolicyResult struct {
	StorageDelta float64 // Ws applied to storage
	Curtailed    float64 // W of surplus not absorbed
	Unserved     float64 // W of deficit not served
}

// MicrogridPolicy decides how a step's net power interacts with storage.
type MicrogridPolicy interface {
	Apply(storage Storage, power float64, duration float64) (PolicyResult, error)
}

// DefaultMicrogridPolicy routes the net power into storage and reports the
// clamped remainder. When GridPower is non-zero the storage is instead
// (dis)charged at that fixed power — e.g. forced grid charging commanded over
// the SiL API — and the full net power becomes part of the reported remainder.
//
// The microgrid does not model grid import/export: curtailed and unserved
// power are reportable quantities for downstream analysis, nothing more.
type DefaultMicrogridPolicy struct {
	// GridPower forces storage (dis)charge at a fixed power in W when
	// non-zero. Mutable at runtime by controllers.
	GridPower float64
}

// Apply implements MicrogridPolicy.
func (p *DefaultMicrogridPolicy) Apply(storage Storage, power float64, duration float64) (PolicyResult, error) {
	if storage == nil {
		return splitResidual(PolicyResult{}, power), nil
	}
	target := power
	if p.GridPower != 0 {
		target = p.GridPower
	}
	applied, err := storage.Update(target, duration)
	if err != nil {
		return PolicyResult{}, err
	}
	res := PolicyResult{StorageDelta: applied}
	return splitResidual(res, power-applied/duration), nil
}

func splitResidual(res PolicyResult, residual float64) PolicyResult {
	if residual > 0 {
		res.Curtailed = residual
	} else {
		res.Unserved = -residual
	}
	return res
}

// MicrogridConfig groups Microgrid construction parameters.
type MicrogridConfig struct {
	Actors      []Actor
	Storage     Storage         // optional
	Policy      MicrogridPolicy // defaults to &DefaultMicrogridPolicy{}
	Controllers []Controller    // invoked in order after every step
	StepSize    int64           // step size in simulated seconds (must be > 0)
}

// Microgrid composes a set of actors, one storage unit, and an ordered list
// of controllers sharing a step size. All state behind a Microgrid is owned by
// the simulation thread; the SiL path is the only sanctioned crossing point
// for external writers.
type Microgrid struct {
	actors      []Actor
	storage     Storage
	policy      MicrogridPolicy
	controllers []Controller
	stepSize    int64
}

// NewMicrogrid validates the configuration and creates a microgrid.
// Actor names must be unique; the step size must be positive.
func NewMicrogrid(cfg MicrogridConfig) (*Microgrid, error) {
	if cfg.StepSize <= 0 {
		return nil, fmt.Errorf("microgrid step size must be positive, got %d", cfg.StepSize)
	}
	if len(cfg.Actors) == 0 {
		return nil, fmt.Errorf("microgrid requires at least one actor")
	}
	seen := make(map[string]bool, len(cfg.Actors))
	for _, a := range cfg.Actors {
		if seen[a.Name()] {
			return nil, fmt.Errorf("duplicate actor name %q", a.Name())
		}
		seen[a.Name()] = true
	}
	policy := cfg.Policy
	if policy == nil {
		policy = &DefaultMicrogridPolicy{}
	}
	return &Microgrid{
		actors:      cfg.Actors,
		storage:     cfg.Storage,
		policy:      policy,
		controllers: cfg.Controllers,
		stepSize:    cfg.StepSize,
	}, nil
}

// StepSize returns the microgrid's step size in simulated seconds.
func (m *Microgrid) StepSize() int64 {
	return m.stepSize
}

// Storage returns the microgrid's storage unit (nil when none is configured).
func (m *Microgrid) Storage() Storage {
	return m.storage
}

// Policy returns the microgrid's storage policy.
func (m *Microgrid) Policy() MicrogridPolicy {
	return m.policy
}

// Actors returns the actors in registration order.
func (m *Microgrid) Actors() []Actor {
	return m.actors
}

// Controllers returns the controllers in registration order.
func (m *Microgrid) Controllers() []Controller {
	return m.controllers
}

// Step advances the microgrid by duration seconds ending the step at the
// given clock: every actor is queried for its power, the signed powers are
// summed, the sum is applied to storage through the policy, and every
// controller is invoked in registration order with the result. Controller
// mutations (e.g. of the min SoC floor) take effect starting the next step.
//
// Any actor or controller error aborts the step; skipping a step would
// silently corrupt the storage trajectory's continuity.
func (m *Microgrid) Step(clock int64, now time.Time, duration float64) (StepResult, error) {
	res := StepResult{
		Clock:       clock,
		Time:        now,
		ActorPowers: make(map[string]float64, len(m.actors)),
	}
	for _, a := range m.actors {
		p, err := a.Power(now)
		if err != nil {
			return StepResult{}, fmt.Errorf("actor %q at clock %d: %w", a.Name(), clock, err)
		}
		res.ActorPowers[a.Name()] = p
		res.TotalPower += p
	}

	applied, err := m.policy.Apply(m.storage, res.TotalPower, duration)
	if err != nil {
		return StepResult{}, fmt.Errorf("storage policy at clock %d: %w", clock, err)
	}
	res.StorageDelta = applied.StorageDelta
	res.Curtailed = applied.Curtailed
	res.Unserved = applied.Unserved

	for _, c := range m.controllers {
		if err := c.Step(now, res, m); err != nil {
			return StepResult{}, fmt.Errorf("controller %q at clock %d: %w", c.Name(), clock, err)
		}
	}
	return res, nil
}
