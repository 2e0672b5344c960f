//go:build linux

package prompt

import (
	"context"
	"os/exec"
	"strings"
)

// hasDialogBackend returns true if zenity or kdialog is available.
func hasDialogBackend() bool {
	if _, err := exec.LookPath("zenity"); err == nil {
		return true
	}
	if _, err := exec.LookPath("kdialog"); err == nil {
		return true
	}
	if IsWSL() {
		if _, err := exec.LookPath("powershell.exe"); err == nil {
			return true
		}
	}
	return false
}

func askNative(ctx context.Context, req Request) (Response, error) {
	if path, err := exec.LookPath("zenity"); err == nil {
		return askZenity(ctx, path, req)
	}
	if path, err := exec.LookPath("kdialog"); err == nil {
		return askKDialog(ctx, path, req)
	}
	if IsWSL() {
		if path, err := exec.LookPath("powershell.exe"); err == nil {
			return askPowerShell(ctx, path, req)
		}
	}
	return Response{}, ErrNoBackend
}

func askZenity(ctx context.Context, path string, req Request) (Response, error) {
	args := []string{
		"--entry",
		"--hide-text",
		"--title=" + req.Title,
		"--text=" + req.Message,
	}

	cmd := exec.CommandContext(ctx, path, args...)
	output, err := cmd.Output()

	if ctx.Err() != nil {
		return Response{TimedOut: true}, ctx.Err()
	}

	// Exit code 0 = OK, anything else = Cancel or closed.
	if err != nil {
		return Response{Cancelled: true}, nil
	}
	return Response{Credential: strings.TrimSuffix(string(output), "\n")}, nil
}

func askKDialog(ctx context.Context, path string, req Request) (Response, error) {
	args := []string{
		"--title", req.Title,
		"--password", req.Message,
	}

	cmd := exec.CommandContext(ctx, path, args...)
	output, err := cmd.Output()

	if ctx.Err() != nil {
		return Response{TimedOut: true}, ctx.Err()
	}

	if err != nil {
		return Response{Cancelled: true}, nil
	}
	return Response{Credential: strings.TrimSuffix(string(output), "\n")}, nil
}

// askPowerShell prompts via PowerShell for WSL sessions.
func askPowerShell(ctx context.Context, path string, req Request) (Response, error) {
	message := escapePowerShell(req.Message)
	title := escapePowerShell(req.Title)

	script := `Add-Type -AssemblyName Microsoft.VisualBasic; ` +
		`[Microsoft.VisualBasic.Interaction]::InputBox("` + message + `", "` + title + `")`

	cmd := exec.CommandContext(ctx, path, "-NoProfile", "-Command", script)
	output, err := cmd.Output()

	if ctx.Err() != nil {
		return Response{TimedOut: true}, ctx.Err()
	}
	if err != nil {
		return Response{}, err
	}

	entered := strings.TrimSpace(string(output))
	if entered == "" {
		return Response{Cancelled: true}, nil
	}
	return Response{Credential: entered}, nil
}

// escapePowerShell escapes special characters for PowerShell strings.
// This prevents command injection via $variable or $(subexpression) syntax.
func escapePowerShell(s string) string {
	s = strings.ReplaceAll(s, "`", "``")
	s = strings.ReplaceAll(s, "$", "`$")
	s = strings.ReplaceAll(s, `"`, "`\"")
	s = strings.ReplaceAll(s, "\n", "`n")
	return s
}
