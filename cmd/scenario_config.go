package cmd

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	sim "github.com/microgrid-sim/microgrid-sim/sim"
)

// ScenarioSpec is the top-level scenario configuration.
// Loaded from YAML via LoadScenarioSpec(path).
type ScenarioSpec struct {
	SimStart   string          `yaml:"sim_start"` // RFC 3339, e.g. "2020-06-11T00:00:00Z"
	Until      int64           `yaml:"until"`     // total simulated duration in seconds
	RTFactor   float64         `yaml:"rt_factor,omitempty"`
	Signals    []SignalSpec    `yaml:"signals,omitempty"`
	Microgrids []MicrogridSpec `yaml:"microgrids"`
}

// MicrogridSpec defines one microgrid's composition.
type MicrogridSpec struct {
	StepSize int64        `yaml:"step_size"` // seconds, must divide into the base tick grid
	Battery  *BatterySpec `yaml:"battery,omitempty"`
	Actors   []ActorSpec  `yaml:"actors"`
	Monitor  bool         `yaml:"monitor,omitempty"`
	Sil      *SilSpec     `yaml:"sil,omitempty"`
}

// BatterySpec parameterizes a SimpleBattery. All energies in watt-seconds.
type BatterySpec struct {
	Capacity      float64 `yaml:"capacity"`
	InitialCharge float64 `yaml:"initial_charge,omitempty"`
	MinSoc        float64 `yaml:"min_soc,omitempty"`
	CRate         float64 `yaml:"c_rate,omitempty"` // max (dis)charge power in W, 0 = unlimited
}

// ActorSpec defines a single actor. Kind selects the variant.
type ActorSpec struct {
	Name string `yaml:"name"`
	Kind string `yaml:"kind"` // "computing_system" or "generator"

	// computing_system fields
	PowerMeters []PowerMeterSpec `yaml:"power_meters,omitempty"`
	PUE         float64          `yaml:"pue,omitempty"` // defaults to 1

	// generator fields
	Signal string `yaml:"signal,omitempty"` // name of a signal in Signals
	Column string `yaml:"column,omitempty"`
}

// PowerMeterSpec defines a mock power meter with a fixed demand in watts.
type PowerMeterSpec struct {
	Name  string  `yaml:"name"`
	Power float64 `yaml:"power"`
}

// SignalSpec defines a named signal available to generators and SiL handlers.
type SignalSpec struct {
	Name string `yaml:"name"`
	Kind string `yaml:"kind"` // "mock" or "historical"

	// mock fields
	Value float64 `yaml:"value,omitempty"`

	// historical fields: one value per timestamp and column
	Times   []string             `yaml:"times,omitempty"` // RFC 3339
	Columns map[string][]float64 `yaml:"columns,omitempty"`
}

// SilSpec enables the software-in-the-loop API for a microgrid. The stock
// collectors (battery_min_soc, battery_grid_charge) and routes are installed;
// scenarios needing custom endpoints construct the SilController in code.
type SilSpec struct {
	APIHost string `yaml:"api_host,omitempty"` // default 127.0.0.1
	APIPort int    `yaml:"api_port,omitempty"` // default 8000
}

// LoadScenarioSpec reads and parses a scenario YAML file. Unknown fields are
// rejected so typos fail loudly instead of silently configuring nothing.
func LoadScenarioSpec(path string) (*ScenarioSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario spec: %w", err)
	}
	var spec ScenarioSpec
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&spec); err != nil {
		return nil, fmt.Errorf("parsing scenario spec: %w", err)
	}
	return &spec, nil
}

// buildSignals constructs the named signals shared by generators and the SiL
// API.
func buildSignals(specs []SignalSpec) (map[string]sim.Signal, error) {
	signals := make(map[string]sim.Signal, len(specs))
	for _, s := range specs {
		if s.Name == "" {
			return nil, fmt.Errorf("signal without a name")
		}
		if _, exists := signals[s.Name]; exists {
			return nil, fmt.Errorf("duplicate signal name %q", s.Name)
		}
		switch s.Kind {
		case "mock":
			signals[s.Name] = sim.NewMockSignal(s.Value)
		case "historical":
			times := make([]time.Time, len(s.Times))
			for i, raw := range s.Times {
				t, err := time.Parse(time.RFC3339, raw)
				if err != nil {
					return nil, fmt.Errorf("signal %q: bad timestamp %q: %w", s.Name, raw, err)
				}
				times[i] = t
			}
			signal, err := sim.NewHistoricalSignal(times, s.Columns)
			if err != nil {
				return nil, fmt.Errorf("signal %q: %w", s.Name, err)
			}
			signals[s.Name] = signal
		default:
			return nil, fmt.Errorf("signal %q: unknown kind %q", s.Name, s.Kind)
		}
	}
	return signals, nil
}

// buildActor constructs one actor from its spec.
func buildActor(spec ActorSpec, signals map[string]sim.Signal) (sim.Actor, error) {
	switch spec.Kind {
	case "computing_system":
		meters := make([]sim.PowerMeter, 0, len(spec.PowerMeters))
		for _, ms := range spec.PowerMeters {
			meter, err := sim.NewMockPowerMeter(ms.Name, ms.Power)
			if err != nil {
				return nil, err
			}
			meters = append(meters, meter)
		}
		pue := spec.PUE
		if pue == 0 {
			pue = 1
		}
		return sim.NewComputingSystem(spec.Name, meters, pue)
	case "generator":
		signal, ok := signals[spec.Signal]
		if !ok {
			return nil, fmt.Errorf("generator %q references unknown signal %q", spec.Name, spec.Signal)
		}
		return sim.NewGenerator(spec.Name, signal, spec.Column)
	default:
		return nil, fmt.Errorf("actor %q: unknown kind %q", spec.Name, spec.Kind)
	}
}

// Build assembles the environment described by the spec. The returned
// monitors correspond (in order) to the microgrids that enabled monitoring.
func (spec *ScenarioSpec) Build() (*sim.Environment, []*sim.Monitor, error) {
	simStart, err := time.Parse(time.RFC3339, spec.SimStart)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing sim_start: %w", err)
	}
	if len(spec.Microgrids) == 0 {
		return nil, nil, fmt.Errorf("scenario defines no microgrids")
	}
	signals, err := buildSignals(spec.Signals)
	if err != nil {
		return nil, nil, err
	}

	env := sim.NewEnvironment(simStart)
	var monitors []*sim.Monitor
	for i, ms := range spec.Microgrids {
		actors := make([]sim.Actor, 0, len(ms.Actors))
		for _, as := range ms.Actors {
			actor, err := buildActor(as, signals)
			if err != nil {
				return nil, nil, fmt.Errorf("microgrid %d: %w", i, err)
			}
			actors = append(actors, actor)
		}

		var storage sim.Storage
		if ms.Battery != nil {
			battery, err := sim.NewSimpleBattery(sim.BatteryConfig{
				Capacity:      ms.Battery.Capacity,
				InitialCharge: ms.Battery.InitialCharge,
				MinSoc:        ms.Battery.MinSoc,
				CRate:         ms.Battery.CRate,
			})
			if err != nil {
				return nil, nil, fmt.Errorf("microgrid %d: %w", i, err)
			}
			storage = battery
		}

		var controllers []sim.Controller
		if ms.Monitor {
			monitor := sim.NewMonitor()
			monitors = append(monitors, monitor)
			controllers = append(controllers, monitor)
		}
		if ms.Sil != nil {
			controllers = append(controllers, sim.NewSilController(sim.SilControllerConfig{
				APIHost: ms.Sil.APIHost,
				APIPort: ms.Sil.APIPort,
				Collectors: map[string]sim.Collector{
					"battery_min_soc":     sim.BatteryMinSocCollector,
					"battery_grid_charge": sim.GridChargeCollector,
				},
				GridSignals: signals,
			}))
		}

		grid, err := sim.NewMicrogrid(sim.MicrogridConfig{
			Actors:      actors,
			Storage:     storage,
			Controllers: controllers,
			StepSize:    ms.StepSize,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("microgrid %d: %w", i, err)
		}
		env.AddMicrogrid(grid)
	}
	return env, monitors, nil
}
