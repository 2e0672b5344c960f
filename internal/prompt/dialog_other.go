//go:build !linux && !darwin && !windows

package prompt

import "context"

func hasDialogBackend() bool { return false }

func askNative(_ context.Context, _ Request) (Response, error) {
	return Response{}, ErrNoBackend
}
