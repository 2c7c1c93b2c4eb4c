// Package daemon coordinates the long-running spool process.
//
// It wires configuration, queue storage, the scheduler, the stage
// clients, the authorization dialogue, and the HTTP API into a single
// lifecycle with flock-based locking to prevent multiple instances.
// Orchestration logic stays in the scheduler; the daemon focuses on
// startup, shutdown, and resource ownership.
package daemon
