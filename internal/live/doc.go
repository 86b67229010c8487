// Package live keeps a client-side subscription to a poll's real-time stream.
//
// A Subscription owns one transport at a time and runs as an actor: a single
// goroutine services consumer commands, transport events and timers, so no
// state is shared behind mutexes. Reconnection after an abnormal closure is
// bounded by exponential backoff; a keepalive probe is sent while open.
// Parsed frames are handed to the consumer verbatim; reconciling them into
// application state is the consumer's job (see package view).
package live
