// Package sim provides the core time-stepped co-simulation engine for microgrids.
//
// # Reading Guide
//
// Start with these three files to understand the simulation kernel:
//   - microgrid.go: Actor composition, per-step power balance, and StepResult
//   - storage.go: The battery model and its clamp-and-report update policy
//   - environment.go: The stepping loop, simulated clock, and real-time pacing
//
// # Architecture
//
// The engine is synchronous and single-threaded: within one step, actor queries,
// the storage update, and controller invocations run strictly in sequence. The
// only concurrency is between the stepping loop and external writers on the
// software-in-the-loop (SiL) side:
//   - broker.go: thread-safe event accumulation between steps
//   - sil.go: the SiL controller, its HTTP API hook, and collector resolution
//
// External writers never mutate microgrid state directly. They append events to
// the Broker; the SiL controller drains the Broker exactly once per step and
// resolves each key's accumulated events through a registered Collector.
//
// # Key Interfaces
//
// The extension points are small interfaces:
//   - Actor: signed power at a simulated instant (positive produces, negative consumes)
//   - Storage: charge/discharge with capacity clamping
//   - Controller: per-step observer/mutator invoked after the physical update
//   - Signal: read-only time-indexed data source
//   - PowerMeter: most-recent power reading backing a consumer actor
package sim
