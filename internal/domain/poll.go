package domain

import "slices"

// Poll is the detail view of a poll as served by GET /api/polls/{id}.
type Poll struct {
	ID                string        `json:"id"`
	Title             string        `json:"title"`
	Description       string        `json:"description,omitempty"`
	CreatedAt         string        `json:"created_at,omitempty"`
	ExpiresAt         string        `json:"expires_at,omitempty"`
	Options           []OptionTally `json:"options"`
	BookmarkCount     int           `json:"bookmark_count"`
	TotalVotes        int           `json:"total_votes"`
	UserHasVoted      bool          `json:"user_has_voted"`
	UserHasBookmarked bool          `json:"user_has_bookmarked"`
	Comments          []Comment     `json:"comments,omitempty"`
	Deleted           bool          `json:"deleted,omitempty"`
}

// PollSummary is one entry of GET /api/polls.
type PollSummary struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	Description   string `json:"description,omitempty"`
	CreatedAt     string `json:"created_at,omitempty"`
	TotalVotes    int    `json:"total_votes"`
	BookmarkCount int    `json:"bookmark_count"`
	OptionCount   int    `json:"option_count"`
}

// Clone returns a copy of p that shares no slices with it.
func (p Poll) Clone() Poll {
	p.Options = slices.Clone(p.Options)
	p.Comments = slices.Clone(p.Comments)
	return p
}
