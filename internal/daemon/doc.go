// Package daemon coordinates the long-running caseflow process.
//
// NewComponents wires storage, source clients, ingestion assets, the
// transformation worker, the health monitor, the sensor and replay around a
// single database handle and orchestrator. Daemon adds the lifecycle on top:
// flock-based single-instance locking, the background loops (transformation
// worker, new-case sensor, scheduled health job) and the HTTP API with its
// bearer-token middleware and signed blob downloads.
//
// Keep orchestration logic here: pipeline steps live in their own packages
// while the daemon focuses on startup, shutdown and high level coordination.
package daemon
