package domain

import "errors"

var (
	ErrPollNotFound       = errors.New("poll not found")
	ErrInvalidOption      = errors.New("invalid option")
	ErrInvalidPoll        = errors.New("invalid poll")
	ErrBroadcasterStopped = errors.New("broadcaster stopped")
)
