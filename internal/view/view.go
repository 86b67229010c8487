package view

import "github.com/gadroo/poll-prediction/internal/domain"

// View is consumer state fed by live messages. Apply reports whether msg
// changed the view. Snapshot returns a copy suitable for JSON encoding.
type View interface {
	Apply(msg domain.Message) bool
	Snapshot() any
}
