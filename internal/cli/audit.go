package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	auditsqlite "github.com/applockd/applockd/internal/audit/sqlite"
	"github.com/applockd/applockd/pkg/types"
)

func newAuditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect the access log",
	}
	cmd.AddCommand(newAuditQueryCmd())
	cmd.AddCommand(newAuditPruneCmd())
	return cmd
}

func newAuditQueryCmd() *cobra.Command {
	var (
		identity string
		outcome  string
		since    string
		limit    int
	)

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Query recorded authorization attempts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			sink, err := auditsqlite.Open(cfg.Audit.SQLitePath)
			if err != nil {
				return err
			}
			defer sink.Close()

			q := types.RecordQuery{Identity: identity, Limit: limit}
			if outcome != "" {
				o := types.Outcome(outcome)
				q.Outcome = &o
			}
			if since != "" {
				t, err := parseSince(since)
				if err != nil {
					return fmt.Errorf("invalid --since %q: %w", since, err)
				}
				q.Since = &t
			}

			records, err := sink.Query(cmd.Context(), q)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no records")
				return nil
			}
			for _, rec := range records {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%-18s\tpid %d\t%s",
					rec.Timestamp.Local().Format(time.RFC3339), rec.Outcome, rec.PID, rec.Identity)
				if rec.Actor != "" {
					fmt.Fprintf(cmd.OutOrStdout(), "\tby %s", rec.Actor)
				}
				fmt.Fprintln(cmd.OutOrStdout())
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&identity, "identity", "", "filter by normalized identity")
	cmd.Flags().StringVar(&outcome, "outcome", "", "filter by outcome (authorized, denied, timed_out, enforcement_failed)")
	cmd.Flags().StringVar(&since, "since", "", "only records newer than this (RFC3339 or an age like 24h)")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum records to print")
	return cmd
}

func newAuditPruneCmd() *cobra.Command {
	var olderThan string

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete access log records older than a cutoff",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := time.ParseDuration(olderThan)
			if err != nil {
				return fmt.Errorf("invalid --older-than %q: %w", olderThan, err)
			}
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			sink, err := auditsqlite.Open(cfg.Audit.SQLitePath)
			if err != nil {
				return err
			}
			defer sink.Close()

			n, err := sink.PruneBefore(cmd.Context(), time.Now().UTC().Add(-d))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "pruned %d record(s)\n", n)
			return nil
		},
	}

	cmd.Flags().StringVar(&olderThan, "older-than", "720h", "age cutoff, e.g. 168h")
	return cmd
}

func parseSince(s string) (time.Time, error) {
	if d, err := time.ParseDuration(s); err == nil {
		return time.Now().UTC().Add(-d), nil
	}
	return time.Parse(time.RFC3339, s)
}
