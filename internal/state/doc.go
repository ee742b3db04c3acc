// Package state tracks printer and job state and broadcasts it.
//
// A Tracker holds the values the hub observes (fan, motor, job record,
// palette link, printer connection) and caches the last good readings from
// the printer API. The Broadcaster builds a Snapshot from both, publishes
// it on the device's state topic on a power-of-base cadence and watches
// for significant changes.
//
// # Change detection
//
// Snapshots are compared as JSON trees with go-cmp. Added or removed
// fields are significant. A changed field is significant unless its path
// has a tolerance and the change stays within it:
//
//	state.printer.data.temperature.nozzle.0.actual  ±1
//	state.printer.data.temperature.bed.actual       ±1
//	state.printer.job.progress                      ±0.1
//	state.printer.job.data.timeRemaining            ±30 (±5 below 60)
//	state.printer.job.data.totalTime                ±30
package state
