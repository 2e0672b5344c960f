package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/applockd/applockd/internal/policy"
)

func newProtectionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "protection",
		Short: "Toggle or inspect the global protection flag",
	}
	cmd.AddCommand(newProtectionSetCmd(true))
	cmd.AddCommand(newProtectionSetCmd(false))
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show whether protection is globally enabled",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(store *policy.Store) error {
				enabled, err := store.ProtectionEnabled(cmd.Context())
				if err != nil {
					return err
				}
				state := "disabled"
				if enabled {
					state = "enabled"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Protection is %s.\n", state)
				return nil
			})
		},
	})
	return cmd
}

func newProtectionSetCmd(enable bool) *cobra.Command {
	use, short := "on", "Enable protection globally"
	if !enable {
		use, short = "off", "Disable protection globally"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(store *policy.Store) error {
				if err := store.SetProtection(cmd.Context(), enable); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Protection %s. The running engine picks this up on its next cycle.\n", use)
				return nil
			})
		},
	}
}
