//go:build !linux && !windows

package snapshot

import (
	"context"
	"fmt"
	"runtime"

	"github.com/applockd/applockd/pkg/types"
)

type unsupportedSource struct{}

func newPlatformSource() Source {
	return unsupportedSource{}
}

func (unsupportedSource) Snapshot(ctx context.Context) ([]types.Observation, error) {
	return nil, fmt.Errorf("process enumeration not supported on %s", runtime.GOOS)
}
