//go:build windows

package prompt

import (
	"context"
	"os/exec"
	"strings"
)

// hasDialogBackend returns true - Windows always has PowerShell.
func hasDialogBackend() bool {
	_, err := exec.LookPath("powershell.exe")
	return err == nil
}

// askNative shows a credential prompt using PowerShell.
func askNative(ctx context.Context, req Request) (Response, error) {
	path, err := exec.LookPath("powershell.exe")
	if err != nil {
		return Response{}, ErrNoBackend
	}

	message := escapePowerShell(req.Message)
	title := escapePowerShell(req.Title)

	script := `$c = Get-Credential -UserName " " -Message "` + title + `: ` + message + `"; ` +
		`if ($c) { $c.GetNetworkCredential().Password }`

	cmd := exec.CommandContext(ctx, path, "-NoProfile", "-Command", script)
	output, err := cmd.Output()

	if ctx.Err() != nil {
		return Response{TimedOut: true}, ctx.Err()
	}
	if err != nil {
		return Response{Cancelled: true}, nil
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
