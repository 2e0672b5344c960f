package cli

import (
	"fmt"
	"os"
	"strings"

	qrcode "github.com/skip2/go-qrcode"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/applockd/applockd/internal/credential"
	"github.com/applockd/applockd/internal/logging"
	"github.com/applockd/applockd/internal/policy"
)

func newPasswdCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "passwd",
		Short: "Manage the master credential",
	}
	cmd.AddCommand(newPasswdSetCmd())
	cmd.AddCommand(newPasswdTOTPCmd())
	return cmd
}

func newPasswdSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set",
		Short: "Set the master password",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(store *policy.Store) error {
				pw, err := promptPassword("New master password: ")
				if err != nil {
					return err
				}
				confirm, err := promptPassword("Repeat: ")
				if err != nil {
					return err
				}
				if pw != confirm {
					return fmt.Errorf("passwords do not match")
				}
				v := credential.NewVerifier(store, logging.Discard())
				if err := v.SetPassword(cmd.Context(), pw); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Master password updated.")
				return nil
			})
		},
	}
}

func newPasswdTOTPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "totp",
		Short: "Enroll a TOTP second factor",
		Long: `Enroll a TOTP second factor.

After enrollment, credentials are submitted as "password:123456" with the
current six-digit code from the authenticator app.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(store *policy.Store) error {
				v := credential.NewVerifier(store, logging.Discard())
				secret, err := v.EnrollTOTP(cmd.Context())
				if err != nil {
					return err
				}
				uri := credential.TOTPURI(secret)
				qr, err := qrcode.New(uri, qrcode.Medium)
				if err != nil {
					return fmt.Errorf("generate QR code: %w", err)
				}
				w := cmd.OutOrStdout()
				fmt.Fprintln(w, "Scan with an authenticator app:")
				fmt.Fprintln(w, qr.ToSmallString(false))
				fmt.Fprintf(w, "Or enter the secret manually: %s\n", secret)
				return nil
			})
		},
	}
}

func promptPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}
