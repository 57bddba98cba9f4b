package sim

import (
	"fmt"
	"sort"
	"time"
)

// Signal is a read-only time-indexed data source, e.g. a solar irradiance or
// grid carbon-intensity series. Implementations must be deterministic and
// side-effect free: the engine may query a Signal any number of times for the
// same timestamp and expects the same value back. Signals are never mutated
// during a simulation run.
type Signal interface {
	// At returns the signal value at the given simulated time. The column
	// selects a named sub-series; the empty string selects the default column.
	At(now time.Time, column string) (float64, error)
}

// MockSignal is a Signal returning a fixed value for every query.
// Useful in tests and as a stand-in for a not-yet-available data source.
type MockSignal struct {
	value float64
}

// NewMockSignal creates a MockSignal returning v for every query.
func NewMockSignal(v float64) *MockSignal {
	return &MockSignal{value: v}
}

// SetValue changes the value returned by subsequent At calls.
// Must only be called from the simulation thread.
func (s *MockSignal) SetValue(v float64) {
	s.value = v
}

// At implements Signal. The column is ignored.
func (s *MockSignal) At(now time.Time, column string) (float64, error) {
	return s.value, nil
}

// HistoricalSignal serves a static, in-memory time series. Queries resolve to
// the most recent data point at or before the queried time ("last value holds"
// semantics). Loading series from files and interpolation between data points
// are the caller's concern; the signal only indexes what it is given.
type HistoricalSignal struct {
	times   []time.Time
	columns map[string][]float64
	// defaultColumn is used when At is called with an empty column name.
	defaultColumn string
}

// NewHistoricalSignal creates a HistoricalSignal over the given timestamps and
// per-column values. Timestamps must be strictly increasing and every column
// must have exactly one value per timestamp. When only a single column is
// present it becomes the default column.
func NewHistoricalSignal(times []time.Time, columns map[string][]float64) (*HistoricalSignal, error) {
	if len(times) == 0 {
		return nil, fmt.Errorf("historical signal requires at least one data point")
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("historical signal requires at least one column")
	}
	for i := 1; i < len(times); i++ {
		if !times[i].After(times[i-1]) {
			return nil, fmt.Errorf("timestamps must be strictly increasing: index %d (%v) does not follow %v",
				i, times[i], times[i-1])
		}
	}
	for name, values := range columns {
		if len(values) != len(times) {
			return nil, fmt.Errorf("column %q has %d values for %d timestamps", name, len(values), len(times))
		}
	}
	s := &HistoricalSignal{times: times, columns: columns}
	if len(columns) == 1 {
		for name := range columns {
			s.defaultColumn = name
		}
	}
	return s, nil
}

// At implements Signal. It returns the value of the most recent data point at
// or before now, or an error when now precedes all data points or the column
// is unknown.
func (s *HistoricalSignal) At(now time.Time, column string) (float64, error) {
	if column == "" {
		column = s.defaultColumn
	}
	values, ok := s.columns[column]
	if !ok {
		return 0, fmt.Errorf("unknown signal column %q", column)
	}
	// Index of the first timestamp strictly after now; the data point before
	// it is the latest one that applies.
	idx := sort.Search(len(s.times), func(i int) bool {
		return s.times[i].After(now)
	})
	if idx == 0 {
		return 0, fmt.Errorf("no signal data at or before %v (series starts at %v)", now, s.times[0])
	}
	return values[idx-1], nil
}
