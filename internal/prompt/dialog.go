package prompt

import (
	"context"
	"errors"
	"time"
)

// ErrNoBackend is returned when no dialog backend is available.
var ErrNoBackend = errors.New("no dialog backend available")

// Request describes one credential dialog.
type Request struct {
	// Title is the dialog window title.
	Title string

	// Message is the main dialog text.
	Message string

	// Timeout is how long to wait for the user. Zero waits indefinitely.
	Timeout time.Duration
}

// Response carries the user's answer.
type Response struct {
	// Credential is the entered secret. Empty when Cancelled or TimedOut.
	Credential string

	// Cancelled is true if the user dismissed the dialog.
	Cancelled bool

	// TimedOut is true if the dialog timed out without a response.
	TimedOut bool
}

// Ask displays a native hidden-input dialog and returns the entered
// credential. Returns ErrNoBackend when no dialog tool is available.
func Ask(ctx context.Context, req Request) (Response, error) {
	if !CanPrompt() {
		return Response{}, ErrNoBackend
	}

	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	resp, err := askNative(ctx, req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return Response{TimedOut: true}, nil
		}
		return resp, err
	}
	return resp, nil
}
