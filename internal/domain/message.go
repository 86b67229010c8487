package domain

import (
	"encoding/json"
	"fmt"
)

// MessageType is the discriminant of an inbound frame.
type MessageType string

const (
	TypeVoteUpdate     MessageType = "vote_update"
	TypeBookmarkUpdate MessageType = "bookmark_update"
	TypePollDeleted    MessageType = "poll_deleted"
	TypeCommentAdded   MessageType = "comment_added"
	TypeCommentDeleted MessageType = "comment_deleted"
	TypePong           MessageType = "pong"
)

// AllPolls is the identifier of the stream that carries every poll's broadcasts.
const AllPolls = "all"

// Message is an inbound frame from the live stream. The set of variants is
// closed: VoteUpdate, BookmarkUpdate, PollDeleted, CommentAdded,
// CommentDeleted, Pong and Unknown.
type Message interface {
	Type() MessageType
	PollID() string
	isMessage()
}

type baseMessage struct{}

func (baseMessage) isMessage() {}

// OptionTally is the vote count of one option, in server order.
type OptionTally struct {
	ID        string `json:"id"`
	Text      string `json:"text,omitempty"`
	VoteCount int    `json:"vote_count"`
}

type VoteUpdate struct {
	baseMessage
	Poll    string
	Options []OptionTally
}

func (m VoteUpdate) Type() MessageType { return TypeVoteUpdate }
func (m VoteUpdate) PollID() string    { return m.Poll }

// TotalVotes sums the vote counts of all options.
func (m VoteUpdate) TotalVotes() int {
	total := 0
	for _, o := range m.Options {
		total += o.VoteCount
	}
	return total
}

type BookmarkUpdate struct {
	baseMessage
	Poll          string
	BookmarkCount int
}

func (m BookmarkUpdate) Type() MessageType { return TypeBookmarkUpdate }
func (m BookmarkUpdate) PollID() string    { return m.Poll }

type PollDeleted struct {
	baseMessage
	Poll string
}

func (m PollDeleted) Type() MessageType { return TypePollDeleted }
func (m PollDeleted) PollID() string    { return m.Poll }

type CommentAdded struct {
	baseMessage
	Poll    string
	Comment Comment
}

func (m CommentAdded) Type() MessageType { return TypeCommentAdded }
func (m CommentAdded) PollID() string    { return m.Poll }

type CommentDeleted struct {
	baseMessage
	Poll      string
	CommentID string
}

func (m CommentDeleted) Type() MessageType { return TypeCommentDeleted }
func (m CommentDeleted) PollID() string    { return m.Poll }

// Pong is the server's reply to a liveness probe. It carries no poll id.
type Pong struct {
	baseMessage
	Message string
}

func (m Pong) Type() MessageType { return TypePong }
func (m Pong) PollID() string    { return "" }

// Unknown carries a well-formed frame whose type this client does not model.
type Unknown struct {
	baseMessage
	Kind MessageType
	Poll string
	Raw  json.RawMessage
}

func (m Unknown) Type() MessageType { return m.Kind }
func (m Unknown) PollID() string    { return m.Poll }

type envelope struct {
	Type   MessageType `json:"type"`
	PollID string      `json:"poll_id"`
}

type voteUpdateWire struct {
	Options *[]OptionTally `json:"options"`
}

type bookmarkUpdateWire struct {
	BookmarkCount *int `json:"bookmark_count"`
}

type commentAddedWire struct {
	Comment *Comment `json:"comment"`
}

type commentDeletedWire struct {
	CommentID string `json:"comment_id"`
}

type pongWire struct {
	Message string `json:"message"`
}

// ParseMessage decodes one text frame. It returns an error wrapping
// ErrMalformedFrame if the frame is not a JSON object with a string type, or
// if the payload of a known type does not match its shape.
func ParseMessage(data []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrMalformedFrame)
	}

	switch env.Type {
	case TypeVoteUpdate:
		var w voteUpdateWire
		if err := decodePayload(data, env, &w); err != nil {
			return nil, err
		}
		if w.Options == nil {
			return nil, fmt.Errorf("%w: %s without options", ErrMalformedFrame, env.Type)
		}
		return VoteUpdate{Poll: env.PollID, Options: *w.Options}, nil

	case TypeBookmarkUpdate:
		var w bookmarkUpdateWire
		if err := decodePayload(data, env, &w); err != nil {
			return nil, err
		}
		if w.BookmarkCount == nil {
			return nil, fmt.Errorf("%w: %s without bookmark_count", ErrMalformedFrame, env.Type)
		}
		return BookmarkUpdate{Poll: env.PollID, BookmarkCount: *w.BookmarkCount}, nil

	case TypePollDeleted:
		if env.PollID == "" {
			return nil, fmt.Errorf("%w: %s without poll_id", ErrMalformedFrame, env.Type)
		}
		return PollDeleted{Poll: env.PollID}, nil

	case TypeCommentAdded:
		var w commentAddedWire
		if err := decodePayload(data, env, &w); err != nil {
			return nil, err
		}
		if w.Comment == nil || w.Comment.ID == "" {
			return nil, fmt.Errorf("%w: %s without comment", ErrMalformedFrame, env.Type)
		}
		return CommentAdded{Poll: env.PollID, Comment: *w.Comment}, nil

	case TypeCommentDeleted:
		var w commentDeletedWire
		if err := decodePayload(data, env, &w); err != nil {
			return nil, err
		}
		if w.CommentID == "" {
			return nil, fmt.Errorf("%w: %s without comment_id", ErrMalformedFrame, env.Type)
		}
		return CommentDeleted{Poll: env.PollID, CommentID: w.CommentID}, nil

	case TypePong:
		var w pongWire
		if err := json.Unmarshal(data, &w); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
		}
		return Pong{Message: w.Message}, nil

	default:
		raw := make(json.RawMessage, len(data))
		copy(raw, data)
		return Unknown{Kind: env.Type, Poll: env.PollID, Raw: raw}, nil
	}
}

// decodePayload decodes the type-specific fields of a poll-scoped frame.
func decodePayload(data []byte, env envelope, dst any) error {
	if env.PollID == "" {
		return fmt.Errorf("%w: %s without poll_id", ErrMalformedFrame, env.Type)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformedFrame, env.Type, err)
	}
	return nil
}

// Comment is a comment as broadcast by comment_added. CreatedAt is kept as
// the server's ISO 8601 text, which may lack a zone offset.
type Comment struct {
	ID        string `json:"id"`
	Content   string `json:"content"`
	UserEmail string `json:"user_email,omitempty"`
	Username  string `json:"username,omitempty"`
	CreatedAt string `json:"created_at"`
}
