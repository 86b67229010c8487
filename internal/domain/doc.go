// Package domain defines the core domain types shared by the live
// subscription, the consumer views and the adapters.
//
// Concept-oriented files (message.go, poll.go, errors.go) with shared types
// only. No I/O lives here.
package domain
