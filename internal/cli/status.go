package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/applockd/applockd/pkg/types"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show whether the daemon is running and what protection is doing",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newAPIClient(serverAddr(cmd))

			if err := client.get(cmd.Context(), "/healthz", nil); err != nil {
				fmt.Fprintln(cmd.OutOrStdout(), "daemon: not running")
				return Exitf(1, "%v", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "daemon: running")

			var prot struct {
				Enabled bool `json:"enabled"`
			}
			if err := client.get(cmd.Context(), "/api/v1/protection", &prot); err != nil {
				return err
			}
			if prot.Enabled {
				fmt.Fprintln(cmd.OutOrStdout(), "protection: enabled")
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "protection: disabled")
			}

			var ch struct {
				Challenges []types.Challenge `json:"challenges"`
			}
			if err := client.get(cmd.Context(), "/api/v1/challenges", &ch); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "pending challenges: %d\n", len(ch.Challenges))
			return nil
		},
	}
}
