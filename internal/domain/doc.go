// Package domain defines the core domain types and interfaces.
//
// This package contains concept-oriented files (errors.go, poll.go, pubsub.go) with shared types
// and cross-cutting interfaces. No infrastructure code - just contracts and the poll value rules.
// Prevents circular imports by keeping interfaces on the consumer side.
package domain
