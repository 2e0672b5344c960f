// Package audit defines the durable log of authorization attempts. The
// engine treats sinks as fire-and-forget: a failing sink is logged, never
// allowed to abort a challenge or an enforcement action.
package audit

import (
	"context"

	"github.com/applockd/applockd/pkg/types"
)

// Sink accepts append-only attempt records.
type Sink interface {
	Record(ctx context.Context, rec types.AttemptRecord) error
	Query(ctx context.Context, q types.RecordQuery) ([]types.AttemptRecord, error)
	Close() error
}
