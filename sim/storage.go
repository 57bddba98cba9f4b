package sim

import "fmt"

// Storage is a stateful energy buffer with charge/discharge semantics and
// capacity constraints. Charge level and min SoC are expressed in energy units
// (watt-seconds); capacity is fixed after construction while the min SoC floor
// may be raised or lowered at runtime by controllers.
type Storage interface {
	// Update (dis)charges the storage with the given power (watts, positive
	// charges, negative discharges) over the given duration (seconds). The
	// charge level is clamped to [min SoC, capacity] and the applied energy
	// delta (watt-seconds, new level minus old level) is returned. The applied
	// delta never exceeds power*duration in magnitude; the remainder is the
	// caller's curtailed or unserved energy. Duration must be positive.
	Update(power float64, duration float64) (float64, error)

	// ChargeLevel returns the current stored energy in watt-seconds.
	ChargeLevel() float64

	// Capacity returns the maximum stored energy in watt-seconds.
	Capacity() float64

	// MinSoc returns the discharge floor in watt-seconds.
	MinSoc() float64

	// SetMinSoc updates the discharge floor. The new floor must lie in
	// [0, capacity]. Raising the floor above the current charge level is
	// allowed; the level catches up through subsequent charging and is never
	// force-discharged below an already-reached value.
	SetMinSoc(v float64) error

	// Soc returns the state of charge as a fraction of capacity in [0, 1].
	Soc() float64
}

// BatteryConfig groups SimpleBattery construction parameters.
type BatteryConfig struct {
	Capacity      float64 // maximum stored energy in Ws (must be > 0)
	InitialCharge float64 // initial charge level in Ws (defaults to 0)
	MinSoc        float64 // discharge floor in Ws (default 0)
	CRate         float64 // max (dis)charge power in W (0 = unlimited)
}

// SimpleBattery is a linear battery model without efficiency losses. It clamps
// rather than errors on capacity violations: physical systems do not reject
// excess power, they curtail it, and the unapplied remainder is reported back
// to the caller as a measurable quantity.
type SimpleBattery struct {
	capacity    float64
	chargeLevel float64
	minSoc      float64
	cRate       float64
}

// NewSimpleBattery validates the configuration and creates a battery.
// Invalid configurations (non-positive capacity, min SoC outside
// [0, capacity], initial charge outside [min SoC, capacity], negative C-rate)
// fail here, never mid-run.
func NewSimpleBattery(cfg BatteryConfig) (*SimpleBattery, error) {
	if cfg.Capacity <= 0 {
		return nil, fmt.Errorf("battery capacity must be positive, got %v", cfg.Capacity)
	}
	if cfg.MinSoc < 0 || cfg.MinSoc > cfg.Capacity {
		return nil, fmt.Errorf("battery min SoC must be in [0, %v], got %v", cfg.Capacity, cfg.MinSoc)
	}
	if cfg.InitialCharge < cfg.MinSoc || cfg.InitialCharge > cfg.Capacity {
		return nil, fmt.Errorf("battery initial charge must be in [%v, %v], got %v",
			cfg.MinSoc, cfg.Capacity, cfg.InitialCharge)
	}
	if cfg.CRate < 0 {
		return nil, fmt.Errorf("battery C-rate must not be negative, got %v", cfg.CRate)
	}
	return &SimpleBattery{
		capacity:    cfg.Capacity,
		chargeLevel: cfg.InitialCharge,
		minSoc:      cfg.MinSoc,
		cRate:       cfg.CRate,
	}, nil
}

// Update implements Storage.
func (b *SimpleBattery) Update(power float64, duration float64) (float64, error) {
	if duration <= 0 {
		return 0, fmt.Errorf("battery update duration must be positive, got %v", duration)
	}
	if b.cRate > 0 {
		if power > b.cRate {
			power = b.cRate
		} else if power < -b.cRate {
			power = -b.cRate
		}
	}
	old := b.chargeLevel
	level := old + power*duration
	if level > b.capacity {
		level = b.capacity
	}
	floor := b.minSoc
	// A raised floor above the current level must not conjure energy: only
	// clamp discharges against the floor, never lift the level to it.
	if floor > old {
		floor = old
	}
	if level < floor {
		level = floor
	}
	b.chargeLevel = level
	return level - old, nil
}

func (b *SimpleBattery) ChargeLevel() float64 {
	return b.chargeLevel
}

func (b *SimpleBattery) Capacity() float64 {
	return b.capacity
}

func (b *SimpleBattery) MinSoc() float64 {
	return b.minSoc
}

// SetMinSoc implements Storage. Called by controllers, notably the SiL path
// via the battery_min_soc collector.
func (b *SimpleBattery) SetMinSoc(v float64) error {
	if v < 0 || v > b.capacity {
		return fmt.Errorf("battery min SoC must be in [0, %v], got %v", b.capacity, v)
	}
	b.minSoc = v
	return nil
}

// Soc implements Storage.
func (b *SimpleBattery) Soc() float64 {
	return b.chargeLevel / b.capacity
}
