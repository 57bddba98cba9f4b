package sim

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMicrogrid_Validation(t *testing.T) {
	a := constantActor("a", 1)

	_, err := NewMicrogrid(MicrogridConfig{Actors: []Actor{a}, StepSize: 0})
	assert.Error(t, err, "zero step size")

	_, err = NewMicrogrid(MicrogridConfig{Actors: []Actor{a}, StepSize: -60})
	assert.Error(t, err, "negative step size")

	_, err = NewMicrogrid(MicrogridConfig{StepSize: 60})
	assert.Error(t, err, "no actors")

	_, err = NewMicrogrid(MicrogridConfig{
		Actors:   []Actor{constantActor("dup", 1), constantActor("dup", 2)},
		StepSize: 60,
	})
	assert.Error(t, err, "duplicate actor names")
}

func TestMicrogrid_Step_SurplusChargesAndCurtails(t *testing.T) {
	// GIVEN two actors at +10W and -3W and a nearly full battery (99/100)
	grid, err := NewMicrogrid(MicrogridConfig{
		Actors:   []Actor{constantActor("gen", 10), constantActor("load", -3)},
		Storage:  mustBattery(BatteryConfig{Capacity: 100, InitialCharge: 99}),
		StepSize: 1,
	})
	require.NoError(t, err)

	// WHEN stepping for one second
	res, err := grid.Step(1, testStart.Add(time.Second), 1)

	// THEN the net +7W charges the battery to capacity and the rest is curtailed
	require.NoError(t, err)
	assert.InDelta(t, 7, res.TotalPower, 1e-9)
	assert.InDelta(t, 1, res.StorageDelta, 1e-9)
	assert.InDelta(t, 6, res.Curtailed, 1e-9)
	assert.InDelta(t, 0, res.Unserved, 1e-9)
	assert.InDelta(t, 100, grid.Storage().ChargeLevel(), 1e-9)
}

func TestMicrogrid_Step_DeficitDischargesAndReportsUnserved(t *testing.T) {
	// GIVEN a 60W load against a battery holding 50Ws above its floor
	grid, err := NewMicrogrid(MicrogridConfig{
		Actors:   []Actor{constantActor("load", -60)},
		Storage:  mustBattery(BatteryConfig{Capacity: 100, InitialCharge: 50}),
		StepSize: 1,
	})
	require.NoError(t, err)

	// WHEN stepping for one second
	res, err := grid.Step(1, testStart.Add(time.Second), 1)

	// THEN the battery empties and the 10W shortfall is reported as unserved
	require.NoError(t, err)
	assert.InDelta(t, -50, res.StorageDelta, 1e-9)
	assert.InDelta(t, 10, res.Unserved, 1e-9)
	assert.InDelta(t, 0, res.Curtailed, 1e-9)
	assert.InDelta(t, 0, grid.Storage().ChargeLevel(), 1e-9)
}

func TestMicrogrid_Step_NoStorageReportsFullResidual(t *testing.T) {
	grid, err := NewMicrogrid(MicrogridConfig{
		Actors:   []Actor{constantActor("gen", 5)},
		StepSize: 1,
	})
	require.NoError(t, err)

	res, err := grid.Step(1, testStart.Add(time.Second), 1)
	require.NoError(t, err)
	assert.InDelta(t, 5, res.Curtailed, 1e-9)
	assert.InDelta(t, 0, res.StorageDelta, 1e-9)
}

func TestMicrogrid_Step_RecordsPerActorPowers(t *testing.T) {
	grid, err := NewMicrogrid(MicrogridConfig{
		Actors:   []Actor{constantActor("gen", 10), constantActor("load", -3)},
		StepSize: 1,
	})
	require.NoError(t, err)

	res, err := grid.Step(1, testStart.Add(time.Second), 1)
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"gen": 10, "load": -3}, res.ActorPowers)
}

func TestMicrogrid_Step_ControllersRunInRegistrationOrder(t *testing.T) {
	// GIVEN two controllers recording their invocation order
	var order []string
	first := &recordingController{name: "first", onStep: func(StepResult, *Microgrid) error {
		order = append(order, "first")
		return nil
	}}
	second := &recordingController{name: "second", onStep: func(StepResult, *Microgrid) error {
		order = append(order, "second")
		return nil
	}}
	grid, err := NewMicrogrid(MicrogridConfig{
		Actors:      []Actor{constantActor("a", 1)},
		Controllers: []Controller{first, second},
		StepSize:    1,
	})
	require.NoError(t, err)

	// WHEN stepping
	_, err = grid.Step(1, testStart.Add(time.Second), 1)

	// THEN controllers ran in registration order
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, order)
}

func TestMicrogrid_Step_ControllerMutationTakesEffectNextStep(t *testing.T) {
	// GIVEN a controller raising the min SoC floor on the first step
	battery := mustBattery(BatteryConfig{Capacity: 100, InitialCharge: 50})
	raise := &recordingController{name: "raise", onStep: func(res StepResult, m *Microgrid) error {
		return m.Storage().SetMinSoc(40)
	}}
	grid, err := NewMicrogrid(MicrogridConfig{
		Actors:      []Actor{constantActor("load", -20)},
		Storage:     battery,
		Controllers: []Controller{raise},
		StepSize:    1,
	})
	require.NoError(t, err)

	// WHEN stepping twice
	res1, err := grid.Step(1, testStart.Add(1*time.Second), 1)
	require.NoError(t, err)
	res2, err := grid.Step(2, testStart.Add(2*time.Second), 1)
	require.NoError(t, err)

	// THEN the first step discharged under the old floor (to 30Ws) and only
	// the second step was clamped by the raised floor
	assert.InDelta(t, -20, res1.StorageDelta, 1e-9)
	assert.InDelta(t, 30, battery.ChargeLevel(), 1e-9)
	assert.InDelta(t, 0, res2.StorageDelta, 1e-9)
	assert.InDelta(t, 20, res2.Unserved, 1e-9)
}

func TestMicrogrid_Step_ActorFailureAbortsStep(t *testing.T) {
	// GIVEN an actor whose power query fails
	failing := &stubActor{name: "meter-backed", fn: func(time.Time) (float64, error) {
		return 0, errors.New("measurement source unavailable")
	}}
	observer := &recordingController{name: "observer"}
	grid, err := NewMicrogrid(MicrogridConfig{
		Actors:      []Actor{failing},
		Storage:     mustBattery(BatteryConfig{Capacity: 100, InitialCharge: 50}),
		Controllers: []Controller{observer},
		StepSize:    1,
	})
	require.NoError(t, err)

	// WHEN stepping
	_, err = grid.Step(7, testStart, 1)

	// THEN the error names the actor and the clock, storage is untouched, and
	// no controller ran
	require.Error(t, err)
	assert.Contains(t, err.Error(), "meter-backed")
	assert.Contains(t, err.Error(), "clock 7")
	assert.InDelta(t, 50, grid.Storage().ChargeLevel(), 1e-9)
	assert.Empty(t, observer.results)
}

func TestMicrogrid_Step_ControllerFailureAborts(t *testing.T) {
	bad := &recordingController{name: "bad", onStep: func(StepResult, *Microgrid) error {
		return errors.New("boom")
	}}
	grid, err := NewMicrogrid(MicrogridConfig{
		Actors:      []Actor{constantActor("a", 1)},
		Controllers: []Controller{bad},
		StepSize:    1,
	})
	require.NoError(t, err)

	_, err = grid.Step(3, testStart, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `controller "bad"`)
}

func TestDefaultMicrogridPolicy_GridCharge(t *testing.T) {
	// Forced grid charging: the battery charges at GridPower regardless of the
	// net actor power; the net power plus whatever the battery could not take
	// shows up in the residual. Mirrors a remote "charge from grid" command.
	tests := []struct {
		name          string
		power         float64
		duration      float64
		gridPower     float64
		wantDelta     float64
		wantCurtailed float64
		wantUnserved  float64
		wantLevel     float64
	}{
		{"grid charge absorbs surplus budget", 0, 1, 10, 10, 0, 10, 90},
		{"grid charge with surplus", 5, 10, 10, 20, 3, 0, 100},
		{"grid discharge serves deficit", 0, 1, -10, -10, 10, 0, 70},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			battery := mustBattery(BatteryConfig{Capacity: 100, InitialCharge: 80, MinSoc: 10})
			policy := &DefaultMicrogridPolicy{GridPower: tt.gridPower}

			res, err := policy.Apply(battery, tt.power, tt.duration)
			require.NoError(t, err)
			assert.InDelta(t, tt.wantDelta, res.StorageDelta, 1e-9)
			assert.InDelta(t, tt.wantCurtailed, res.Curtailed, 1e-9)
			assert.InDelta(t, tt.wantUnserved, res.Unserved, 1e-9)
			assert.InDelta(t, tt.wantLevel, battery.ChargeLevel(), 1e-9)
		})
	}
}
