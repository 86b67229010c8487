package view

import (
	"slices"
	"sync"

	"github.com/gadroo/poll-prediction/internal/domain"
)

// ListView is the poll list fed by the all-polls stream.
type ListView struct {
	mu    sync.RWMutex
	polls []domain.PollSummary
}

func NewListView() *ListView {
	return &ListView{}
}

func (v *ListView) Seed(polls []domain.PollSummary) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.polls = slices.Clone(polls)
}

// Polls returns a copy of the list in seed order.
func (v *ListView) Polls() []domain.PollSummary {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return slices.Clone(v.polls)
}

func (v *ListView) Snapshot() any {
	polls := v.Polls()
	if polls == nil {
		polls = []domain.PollSummary{}
	}
	return polls
}

func (v *ListView) Apply(msg domain.Message) bool {
	switch msg.Type() {
	case domain.TypePollDeleted, domain.TypeVoteUpdate, domain.TypeBookmarkUpdate:
	default:
		return false
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	i := slices.IndexFunc(v.polls, func(p domain.PollSummary) bool { return p.ID == msg.PollID() })
	if i < 0 {
		return false
	}

	switch m := msg.(type) {
	case domain.PollDeleted:
		v.polls = slices.Delete(v.polls, i, i+1)
	case domain.VoteUpdate:
		v.polls[i].TotalVotes = m.TotalVotes()
	case domain.BookmarkUpdate:
		v.polls[i].BookmarkCount = m.BookmarkCount
	}
	return true
}
