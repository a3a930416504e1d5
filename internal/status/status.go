// Package status defines the post record consumed by the index build and the
// stream contract its sources satisfy.
package status

import (
	"context"
	"io"
)

// Status is one social-media post as produced by a record source. Values are
// immutable once produced.
type Status struct {
	// ID is the corpus-wide unique post identifier.
	ID int64

	// ScreenName is the author handle.
	ScreenName string

	// CreatedAt is the creation timestamp exactly as the source encoded it.
	CreatedAt string

	// Text is the post body.
	Text string
}

// Stream yields statuses one at a time. Next returns io.EOF once the stream
// is exhausted; any other error is a read failure.
type Stream interface {
	Next(ctx context.Context) (Status, error)
}

// SliceStream replays a fixed set of statuses. It is useful for tests and
// for callers that already hold records in memory.
type SliceStream struct {
	statuses []Status
	pos      int
}

// NewSliceStream returns a stream over statuses.
func NewSliceStream(statuses ...Status) *SliceStream {
	return &SliceStream{statuses: statuses}
}

func (s *SliceStream) Next(ctx context.Context) (Status, error) {
	if err := ctx.Err(); err != nil {
		return Status{}, err
	}
	if s.pos >= len(s.statuses) {
		return Status{}, io.EOF
	}
	st := s.statuses[s.pos]
	s.pos++
	return st, nil
}
