// Package snapshot enumerates running processes on a fixed cadence. It is
// the only component that touches OS process tables; everything downstream
// works on immutable Observation slices. Platform backends live behind the
// Source interface so polling can later be replaced with OS-native process
// creation notifications without touching the detector or the gate.
package snapshot

import (
	"context"

	"github.com/applockd/applockd/pkg/types"
)

// Source produces a point-in-time view of running processes.
//
// Processes that exit between enumeration and metadata lookup are dropped,
// not reported as errors. Processes whose executable path cannot be read
// (permission denied, protected system process) are omitted: an observation
// without an identity can never match and must not be surfaced.
type Source interface {
	Snapshot(ctx context.Context) ([]types.Observation, error)
}

// New returns the enumerator for the current platform.
func New() Source {
	return newPlatformSource()
}
