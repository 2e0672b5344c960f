package prompt

import (
	"os"
	"runtime"
	"strings"
)

// ciEnvVars indicate a CI environment, where dialogs must never appear.
var ciEnvVars = []string{
	"CI",
	"GITHUB_ACTIONS",
	"GITLAB_CI",
	"CIRCLECI",
	"TRAVIS",
	"JENKINS_URL",
	"BUILDKITE",
	"TEAMCITY_VERSION",
	"TF_BUILD",
}

// IsCI returns true if running in a CI environment.
func IsCI() bool {
	for _, env := range ciEnvVars {
		if os.Getenv(env) != "" {
			return true
		}
	}
	return false
}

// HasDisplay returns true if a display is available for showing dialogs.
func HasDisplay() bool {
	switch runtime.GOOS {
	case "linux":
		return os.Getenv("DISPLAY") != "" || os.Getenv("WAYLAND_DISPLAY") != ""
	case "darwin", "windows":
		return true
	default:
		return false
	}
}

// IsWSL returns true if running in Windows Subsystem for Linux.
func IsWSL() bool {
	if runtime.GOOS != "linux" {
		return false
	}
	data, err := os.ReadFile("/proc/version")
	if err != nil {
		return false
	}
	lower := strings.ToLower(string(data))
	return strings.Contains(lower, "microsoft") || strings.Contains(lower, "wsl")
}

// Enabled reports whether the dialog should be shown for the given mode.
// Valid modes: "auto" (default), "enabled", "disabled".
func Enabled(mode string) bool {
	switch mode {
	case "disabled":
		return false
	case "enabled":
		return true
	case "auto", "":
		if IsCI() {
			return false
		}
		return HasDisplay() || IsWSL()
	default:
		return Enabled("auto")
	}
}

// CanPrompt returns true if a dialog backend is available on this platform.
func CanPrompt() bool {
	if !HasDisplay() && !IsWSL() {
		return false
	}
	return hasDialogBackend()
}
