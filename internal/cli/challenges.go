package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/applockd/applockd/pkg/types"
)

func newChallengesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "challenges",
		Short: "List pending authorization challenges",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newAPIClient(serverAddr(cmd))
			var resp struct {
				Challenges []types.Challenge `json:"challenges"`
			}
			if err := client.get(cmd.Context(), "/api/v1/challenges", &resp); err != nil {
				return err
			}
			if len(resp.Challenges) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no pending challenges")
				return nil
			}
			now := time.Now()
			for _, ch := range resp.Challenges {
				remaining := ch.Deadline.Sub(now).Round(time.Second)
				if remaining < 0 {
					remaining = 0
				}
				fmt.Fprintf(cmd.OutOrStdout(), "pid %d\t%s\t%ds left\tattempts %d\n",
					ch.PID, ch.Entry.Identity, int(remaining.Seconds()), ch.AttemptsUsed)
			}
			return nil
		},
	}
}
