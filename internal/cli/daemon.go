package cli

import (
	"fmt"
	"os"
	"os/exec"
	"os/user"
	"path/filepath"
	"runtime"

	"github.com/spf13/cobra"
)

func newDaemonCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Manage the applockd background service",
		Long: `Manage the applockd background service.

On Linux this installs a systemd user service so the monitor starts on
login. On macOS it uses a launchd agent.`,
	}

	cmd.AddCommand(newDaemonInstallCmd())
	cmd.AddCommand(newDaemonUninstallCmd())
	cmd.AddCommand(newDaemonStatusCmd())
	cmd.AddCommand(newDaemonRestartCmd())

	return cmd
}

func newDaemonStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show whether the background service is installed and running",
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			switch runtime.GOOS {
			case "linux":
				currentUser, err := user.Current()
				if err != nil {
					return fmt.Errorf("get current user: %w", err)
				}
				servicePath := filepath.Join(currentUser.HomeDir, ".config", "systemd", "user", "applockd.service")
				if _, err := os.Stat(servicePath); os.IsNotExist(err) {
					fmt.Fprintln(w, "service: not installed")
					return nil
				}
				fmt.Fprintf(w, "service: installed (%s)\n", servicePath)
				if err := exec.Command("systemctl", "--user", "is-active", "--quiet", "applockd").Run(); err != nil {
					fmt.Fprintln(w, "state: not running")
				} else {
					fmt.Fprintln(w, "state: running")
				}
				return nil
			case "darwin":
				plistPath := launchdPlistPath()
				if _, err := os.Stat(plistPath); os.IsNotExist(err) {
					fmt.Fprintln(w, "service: not installed")
					return nil
				}
				fmt.Fprintf(w, "service: installed (%s)\n", plistPath)
				out, err := exec.Command("launchctl", "list", "io.applockd.daemon").Output()
				if err != nil || len(out) == 0 {
					fmt.Fprintln(w, "state: not running")
				} else {
					fmt.Fprintln(w, "state: running")
				}
				return nil
			default:
				fmt.Fprintf(w, "service status not supported on %s\n", runtime.GOOS)
				return nil
			}
		},
	}
}

func newDaemonInstallCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "install",
		Short: "Install startup integration for the current OS",
		RunE: func(cmd *cobra.Command, args []string) error {
			switch runtime.GOOS {
			case "linux":
				return installSystemdService(cmd, force)
			case "darwin":
				return installLaunchdService(cmd, force)
			default:
				fmt.Fprintf(cmd.OutOrStdout(), "service installation not supported on %s\n", runtime.GOOS)
				fmt.Fprintln(cmd.OutOrStdout(), "run 'applockd run' manually instead")
				return nil
			}
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing service file")
	return cmd
}

func newDaemonUninstallCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "uninstall",
		Short: "Remove startup integration",
		RunE: func(cmd *cobra.Command, args []string) error {
			switch runtime.GOOS {
			case "linux":
				return uninstallSystemdService(cmd)
			case "darwin":
				return uninstallLaunchdService(cmd)
			default:
				fmt.Fprintf(cmd.OutOrStdout(), "service uninstall not supported on %s\n", runtime.GOOS)
				return nil
			}
		},
	}
}

func newDaemonRestartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restart",
		Short: "Restart the background service",
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			switch runtime.GOOS {
			case "linux":
				if err := runSystemctl("restart", "applockd"); err != nil {
					return fmt.Errorf("restart failed: %w", err)
				}
				fmt.Fprintln(w, "daemon restarted")
				return nil
			case "darwin":
				plistPath := launchdPlistPath()
				_ = exec.Command("launchctl", "unload", plistPath).Run()
				if err := exec.Command("launchctl", "load", plistPath).Run(); err != nil {
					return fmt.Errorf("restart failed: %w", err)
				}
				fmt.Fprintln(w, "daemon restarted")
				return nil
			default:
				fmt.Fprintf(w, "daemon restart not supported on %s\n", runtime.GOOS)
				return nil
			}
		},
	}
}

const systemdServiceTemplate = `[Unit]
Description=applockd - application launch authorization daemon
After=network.target

[Service]
Type=simple
ExecStart=%s run
Restart=on-failure
RestartSec=5
Environment=HOME=%s

NoNewPrivileges=true
PrivateTmp=true
ReadWritePaths=%s

[Install]
WantedBy=default.target
`

func installSystemdService(cmd *cobra.Command, force bool) error {
	w := cmd.OutOrStdout()

	currentUser, err := user.Current()
	if err != nil {
		return fmt.Errorf("get current user: %w", err)
	}

	exePath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("get executable path: %w", err)
	}
	exePath, err = filepath.EvalSymlinks(exePath)
	if err != nil {
		return fmt.Errorf("resolve executable path: %w", err)
	}

	systemdDir := filepath.Join(currentUser.HomeDir, ".config", "systemd", "user")
	if err := os.MkdirAll(systemdDir, 0o755); err != nil {
		return fmt.Errorf("create systemd directory: %w", err)
	}

	servicePath := filepath.Join(systemdDir, "applockd.service")
	if _, err := os.Stat(servicePath); err == nil && !force {
		fmt.Fprintf(w, "service file already exists at %s\n", servicePath)
		fmt.Fprintln(w, "use --force to overwrite")
		return nil
	}

	dataDir := filepath.Join(currentUser.HomeDir, ".local", "share", "applockd")
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	content := fmt.Sprintf(systemdServiceTemplate, exePath, currentUser.HomeDir, dataDir)
	if err := os.WriteFile(servicePath, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write service file: %w", err)
	}

	fmt.Fprintf(w, "service installed: %s\n", servicePath)

	if err := runSystemctl("daemon-reload", ""); err != nil {
		fmt.Fprintf(w, "warning: failed to reload systemd: %v\n", err)
	}
	if err := runSystemctl("enable", "applockd"); err != nil {
		fmt.Fprintf(w, "warning: failed to enable service: %v\n", err)
	} else {
		fmt.Fprintln(w, "service enabled for automatic start on login")
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "to start the daemon now:")
	fmt.Fprintln(w, "  systemctl --user start applockd")

	return nil
}

func uninstallSystemdService(cmd *cobra.Command) error {
	w := cmd.OutOrStdout()

	currentUser, err := user.Current()
	if err != nil {
		return fmt.Errorf("get current user: %w", err)
	}

	servicePath := filepath.Join(currentUser.HomeDir, ".config", "systemd", "user", "applockd.service")

	_ = runSystemctl("stop", "applockd")
	_ = runSystemctl("disable", "applockd")

	if err := os.Remove(servicePath); err != nil {
		if os.IsNotExist(err) {
			fmt.Fprintln(w, "service file not found, nothing to uninstall")
			return nil
		}
		return fmt.Errorf("remove service file: %w", err)
	}

	_ = runSystemctl("daemon-reload", "")

	fmt.Fprintln(w, "service uninstalled")
	return nil
}

func runSystemctl(action, service string) error {
	args := []string{"--user", action}
	if service != "" {
		args = append(args, service)
	}
	c := exec.Command("systemctl", args...)
	c.Stdout = os.Stdout
	c.Stderr = os.Stderr
	return c.Run()
}

const launchdPlistTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
    <key>Label</key>
    <string>io.applockd.daemon</string>
    <key>ProgramArguments</key>
    <array>
        <string>%s</string>
        <string>run</string>
    </array>
    <key>RunAtLoad</key>
    <true/>
    <key>KeepAlive</key>
    <dict>
        <key>SuccessfulExit</key>
        <false/>
    </dict>
    <key>StandardOutPath</key>
    <string>%s/applockd.log</string>
    <key>StandardErrorPath</key>
    <string>%s/applockd.err</string>
</dict>
</plist>
`

func launchdPlistPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, "Library", "LaunchAgents", "io.applockd.daemon.plist")
}

func installLaunchdService(cmd *cobra.Command, force bool) error {
	w := cmd.OutOrStdout()

	currentUser, err := user.Current()
	if err != nil {
		return fmt.Errorf("get current user: %w", err)
	}

	exePath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("get executable path: %w", err)
	}
	exePath, err = filepath.EvalSymlinks(exePath)
	if err != nil {
		return fmt.Errorf("resolve executable path: %w", err)
	}

	launchAgentsDir := filepath.Join(currentUser.HomeDir, "Library", "LaunchAgents")
	if err := os.MkdirAll(launchAgentsDir, 0o755); err != nil {
		return fmt.Errorf("create LaunchAgents directory: %w", err)
	}

	plistPath := launchdPlistPath()
	if _, err := os.Stat(plistPath); err == nil && !force {
		fmt.Fprintf(w, "plist already exists at %s\n", plistPath)
		fmt.Fprintln(w, "use --force to overwrite")
		return nil
	}

	logDir := filepath.Join(currentUser.HomeDir, "Library", "Logs", "applockd")
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return fmt.Errorf("create log directory: %w", err)
	}

	content := fmt.Sprintf(launchdPlistTemplate, exePath, logDir, logDir)
	if err := os.WriteFile(plistPath, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write plist file: %w", err)
	}

	fmt.Fprintf(w, "service installed: %s\n", plistPath)

	if err := exec.Command("launchctl", "load", plistPath).Run(); err != nil {
		fmt.Fprintf(w, "warning: failed to load service: %v\n", err)
	} else {
		fmt.Fprintln(w, "service loaded and started")
	}

	return nil
}

func uninstallLaunchdService(cmd *cobra.Command) error {
	w := cmd.OutOrStdout()

	plistPath := launchdPlistPath()
	_ = exec.Command("launchctl", "unload", plistPath).Run()

	if err := os.Remove(plistPath); err != nil {
		if os.IsNotExist(err) {
			fmt.Fprintln(w, "plist not found, nothing to uninstall")
			return nil
		}
		return fmt.Errorf("remove plist file: %w", err)
	}

	fmt.Fprintln(w, "service uninstalled")
	return nil
}
