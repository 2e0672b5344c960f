//go:build darwin

package prompt

import (
	"context"
	"os/exec"
	"strings"
)

// hasDialogBackend returns true - macOS always has osascript.
func hasDialogBackend() bool {
	_, err := exec.LookPath("osascript")
	return err == nil
}

// askNative shows a hidden-answer dialog using osascript (AppleScript).
func askNative(ctx context.Context, req Request) (Response, error) {
	path, err := exec.LookPath("osascript")
	if err != nil {
		return Response{}, ErrNoBackend
	}

	message := escapeAppleScript(req.Message)
	title := escapeAppleScript(req.Title)

	script := `display dialog "` + message + `" ` +
		`with title "` + title + `" ` +
		`default answer "" with hidden answer ` +
		`buttons {"Cancel", "Unlock"} default button "Unlock"`

	cmd := exec.CommandContext(ctx, path, "-e", script)
	output, err := cmd.Output()

	if ctx.Err() != nil {
		return Response{TimedOut: true}, ctx.Err()
	}
	if err != nil {
		// User clicked Cancel or closed the dialog.
		return Response{Cancelled: true}, nil
	}

	// Output ends with "text returned:<answer>".
	result := strings.TrimRight(string(output), "\n")
	if i := strings.LastIndex(result, "text returned:"); i >= 0 {
		return Response{Credential: result[i+len("text returned:"):]}, nil
	}
	return Response{Cancelled: true}, nil
}

// escapeAppleScript escapes special characters for AppleScript strings.
func escapeAppleScript(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	s = strings.ReplaceAll(s, "\n", `\n`)
	return s
}
