package cli

import (
	"fmt"
	"os/user"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/applockd/applockd/pkg/types"
)

func newApproveCmd() *cobra.Command {
	var credential string

	cmd := &cobra.Command{
		Use:   "approve <pid>",
		Short: "Submit a credential for a pending challenge",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pid, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid pid %q", args[0])
			}
			if credential == "" {
				credential, err = promptPassword("Credential: ")
				if err != nil {
					return err
				}
			}

			actor := "cli"
			if u, err := user.Current(); err == nil && u.Username != "" {
				actor = u.Username
			}

			client := newAPIClient(serverAddr(cmd))
			var resp struct {
				Challenge types.Challenge `json:"challenge"`
			}
			body := map[string]string{"credential": credential, "actor": actor}
			if err := client.post(cmd.Context(), "/api/v1/challenges/"+args[0], body, &resp); err != nil {
				return err
			}

			switch resp.Challenge.State {
			case types.ChallengeAuthorized:
				fmt.Fprintf(cmd.OutOrStdout(), "pid %d authorized\n", pid)
				return nil
			case types.ChallengeDenied:
				return Exitf(1, "pid %d denied: attempts exhausted", pid)
			default:
				return Exitf(1, "credential rejected, %d attempt(s) used", resp.Challenge.AttemptsUsed)
			}
		},
	}

	cmd.Flags().StringVar(&credential, "credential", "", "credential to submit (prompts when omitted)")
	return cmd
}
