// Package control
// Author: momentics <momentics@gmail.com>
//
// Process-wide control plane for an NI daemon: environment-tunable
// configuration (spec §6), structured logging, Prometheus metrics, and
// debug introspection, plus hot-reload propagation for the subset of
// tunables that can change without restarting the progress engine.
//
// Provides concurrent-safe state handling primitives including:
//   - Immutable snapshot config reads and atomic updates
//   - Runtime observers for hot-reload
//   - Metrics telemetry contracts
//   - State export, debug hooks, and probe registration
//
// This package is cross-platform and build-tag-partitioned as needed.
package control
