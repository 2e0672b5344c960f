package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/applockd/applockd/internal/config"
)

func NewRoot(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "applockd",
		Short:         "applockd: application launch authorization daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.Version = version
	cmd.SetVersionTemplate("applockd {{.Version}}\n")

	cmd.PersistentFlags().String("config", getenvDefault("APPLOCKD_CONFIG", config.DefaultPath()), "config file path")
	cmd.PersistentFlags().String("server", getenvDefault("APPLOCKD_SERVER", "http://127.0.0.1:7832"), "running daemon API base URL")

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newDaemonCmd())
	cmd.AddCommand(newAppsCmd())
	cmd.AddCommand(newPasswdCmd())
	cmd.AddCommand(newProtectionCmd())
	cmd.AddCommand(newChallengesCmd())
	cmd.AddCommand(newApproveCmd())
	cmd.AddCommand(newAuditCmd())
	cmd.AddCommand(newStatusCmd())

	return cmd
}

func configPath(cmd *cobra.Command) string {
	p, _ := cmd.Root().PersistentFlags().GetString("config")
	if p == "" {
		p = config.DefaultPath()
	}
	return p
}

func serverAddr(cmd *cobra.Command) string {
	s, _ := cmd.Root().PersistentFlags().GetString("server")
	if s == "" {
		s = "http://127.0.0.1:7832"
	}
	return s
}

// loadConfig falls back to built-in defaults when no file exists yet.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path := configPath(cmd)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return config.Default(), nil
	}
	return config.Load(path)
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
