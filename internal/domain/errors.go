package domain

import "errors"

var (
	ErrMalformedFrame = errors.New("malformed frame")
	ErrPollNotFound   = errors.New("poll not found")
)
