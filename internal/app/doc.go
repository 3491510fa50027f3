// Package app provides the application service layer.
//
// Orchestrates the poll use cases: create, vote and read. Each mutation and the publish of its
// resulting snapshot run under a per-poll lock so live sessions see snapshots in mutation order.
// Depends on domain interfaces, not concrete implementations.
package app
