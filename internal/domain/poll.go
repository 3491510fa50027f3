package domain

import (
	"context"
	"fmt"
	"maps"
	"strings"
	"time"
)

const (
	MaxQuestionLength = 500
	MaxOptionLength   = 100
	MinOptions        = 2
	MaxOptions        = 20
)

// PollSnapshot is the complete state of a poll at one instant. Options maps each label to its
// current vote count. Version increases by one with every vote and orders snapshots of the
// same poll.
type PollSnapshot struct {
	ID        string         `json:"id"`
	Question  string         `json:"question"`
	Options   map[string]int `json:"options"`
	Version   int64          `json:"version"`
	CreatedAt time.Time      `json:"-"`
}

// Clone returns a deep copy so callers can hand snapshots across goroutines.
func (s PollSnapshot) Clone() PollSnapshot {
	s.Options = maps.Clone(s.Options)
	return s
}

// NewPoll is a validated poll creation request.
type NewPoll struct {
	Question string
	Options  []string
}

// NormalizeNewPoll trims and validates a creation request.
func NormalizeNewPoll(question string, options []string) (NewPoll, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return NewPoll{}, fmt.Errorf("%w: question cannot be empty", ErrInvalidPoll)
	}
	if len(question) > MaxQuestionLength {
		return NewPoll{}, fmt.Errorf("%w: question exceeds %d characters", ErrInvalidPoll, MaxQuestionLength)
	}
	if len(options) < MinOptions || len(options) > MaxOptions {
		return NewPoll{}, fmt.Errorf("%w: poll needs between %d and %d options", ErrInvalidPoll, MinOptions, MaxOptions)
	}

	seen := make(map[string]struct{}, len(options))
	labels := make([]string, 0, len(options))
	for _, option := range options {
		option = strings.TrimSpace(option)
		if option == "" {
			return NewPoll{}, fmt.Errorf("%w: option cannot be empty", ErrInvalidPoll)
		}
		if len(option) > MaxOptionLength {
			return NewPoll{}, fmt.Errorf("%w: option exceeds %d characters", ErrInvalidPoll, MaxOptionLength)
		}
		if _, dup := seen[option]; dup {
			return NewPoll{}, fmt.Errorf("%w: duplicate option %q", ErrInvalidPoll, option)
		}
		seen[option] = struct{}{}
		labels = append(labels, option)
	}

	return NewPoll{Question: question, Options: labels}, nil
}

// PollRepository owns durable poll records. CastVote increments exactly one option and the
// poll version atomically, returning ErrPollNotFound or ErrInvalidOption without mutating
// anything on failure.
type PollRepository interface {
	Create(ctx context.Context, id string, poll NewPoll) (*PollSnapshot, error)
	Get(ctx context.Context, id string) (*PollSnapshot, error)
	CastVote(ctx context.Context, id, option string) (*PollSnapshot, error)
	Ping(ctx context.Context) error
}
