package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/applockd/applockd/internal/policy"
	"github.com/applockd/applockd/pkg/types"
)

func newAppsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apps",
		Short: "Manage protected applications",
	}
	cmd.AddCommand(newAppsListCmd())
	cmd.AddCommand(newAppsAddCmd())
	cmd.AddCommand(newAppsRemoveCmd())
	cmd.AddCommand(newAppsEnableCmd(true))
	cmd.AddCommand(newAppsEnableCmd(false))
	return cmd
}

func withStore(cmd *cobra.Command, fn func(*policy.Store) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	store, err := policy.Open(cfg.Store.SQLitePath)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(store)
}

func newAppsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List protected applications",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(store *policy.Store) error {
				entries, err := store.ListEntries(cmd.Context())
				if err != nil {
					return err
				}
				if len(entries) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No protected applications configured.")
					return nil
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 2, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "IDENTITY\tNAME\tKIND\tENABLED")
				for _, e := range entries {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%v\n", e.Identity, e.DisplayName, e.Kind, e.Enabled)
				}
				return tw.Flush()
			})
		},
	}
}

func newAppsAddCmd() *cobra.Command {
	var name string
	var pkg bool
	cmd := &cobra.Command{
		Use:   "add <path-or-package-identity>",
		Short: "Protect an application",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(store *policy.Store) error {
				kind := types.EntryKindExecutable
				if pkg {
					kind = types.EntryKindPackage
				}
				e := types.ProtectedEntry{
					Identity:    args[0],
					DisplayName: name,
					Kind:        kind,
					Enabled:     true,
				}
				if err := store.AddEntry(cmd.Context(), e); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Protected: %s\n", args[0])
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Display name (defaults to the file name)")
	cmd.Flags().BoolVar(&pkg, "package", false, "Treat the argument as a package identity")
	return cmd
}

func newAppsRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <identity>",
		Short: "Stop protecting an application",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(store *policy.Store) error {
				if err := store.RemoveEntry(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed: %s\n", args[0])
				return nil
			})
		},
	}
}

func newAppsEnableCmd(enable bool) *cobra.Command {
	use, short := "enable <identity>", "Enable protection for an entry"
	if !enable {
		use, short = "disable <identity>", "Disable protection for an entry without removing it"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(store *policy.Store) error {
				if err := store.SetEntryEnabled(cmd.Context(), args[0], enable); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Updated: %s\n", args[0])
				return nil
			})
		},
	}
}
