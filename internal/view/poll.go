package view

import (
	"slices"
	"sync"

	"github.com/gadroo/poll-prediction/internal/domain"
)

// PollView is the detail view of one poll.
type PollView struct {
	pollID string

	mu     sync.RWMutex
	poll   domain.Poll
	seeded bool
}

func NewPollView(pollID string) *PollView {
	return &PollView{pollID: pollID}
}

// Seed replaces the view with p. Messages arriving before the first seed
// are ignored.
func (v *PollView) Seed(p domain.Poll) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.poll = p.Clone()
	v.seeded = true
}

// Poll returns a copy of the current poll and whether the view was seeded.
func (v *PollView) Poll() (domain.Poll, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.poll.Clone(), v.seeded
}

func (v *PollView) Snapshot() any {
	p, seeded := v.Poll()
	if !seeded {
		return nil
	}
	return p
}

func (v *PollView) Apply(msg domain.Message) bool {
	if msg.PollID() != v.pollID {
		return false
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.seeded {
		return false
	}

	switch m := msg.(type) {
	case domain.VoteUpdate:
		v.poll.Options = slices.Clone(m.Options)
		v.poll.TotalVotes = m.TotalVotes()
		return true
	case domain.BookmarkUpdate:
		v.poll.BookmarkCount = m.BookmarkCount
		return true
	case domain.PollDeleted:
		if v.poll.Deleted {
			return false
		}
		v.poll.Deleted = true
		return true
	case domain.CommentAdded:
		if slices.ContainsFunc(v.poll.Comments, func(c domain.Comment) bool { return c.ID == m.Comment.ID }) {
			return false
		}
		v.poll.Comments = append(v.poll.Comments, m.Comment)
		return true
	case domain.CommentDeleted:
		n := len(v.poll.Comments)
		v.poll.Comments = slices.DeleteFunc(v.poll.Comments, func(c domain.Comment) bool { return c.ID == m.CommentID })
		return len(v.poll.Comments) != n
	default:
		return false
	}
}
