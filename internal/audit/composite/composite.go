package composite

import (
	"context"

	"github.com/applockd/applockd/internal/audit"
	"github.com/applockd/applockd/pkg/types"
)

// Sink fans records out to several sinks. The primary serves queries;
// write errors are collected but the first one wins, so every sink still
// sees every record.
type Sink struct {
	primary audit.Sink
	others  []audit.Sink
}

func New(primary audit.Sink, others ...audit.Sink) *Sink {
	return &Sink{primary: primary, others: others}
}

func (s *Sink) Record(ctx context.Context, rec types.AttemptRecord) error {
	var firstErr error
	if err := s.primary.Record(ctx, rec); err != nil {
		firstErr = err
	}
	for _, o := range s.others {
		if err := o.Record(ctx, rec); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (s *Sink) Query(ctx context.Context, q types.RecordQuery) ([]types.AttemptRecord, error) {
	return s.primary.Query(ctx, q)
}

func (s *Sink) Close() error {
	var firstErr error
	if err := s.primary.Close(); err != nil {
		firstErr = err
	}
	for _, o := range s.others {
		if err := o.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
