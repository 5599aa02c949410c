package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/songletters/internal/client/client"
	"github.com/spf13/cobra"
)

func newWhoamiCmd(a *app) *cobra.Command {
	var offline bool

	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Show the identity this machine writes letters as",
		Args:  cobra.NoArgs,
	}
	cmd.RunE = a.runE(func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()

		if !offline {
			res, err := a.service.Whoami(cmd.Context())
			if err == nil {
				if a.opts.asJSON {
					return writeJSON(out, res)
				}
				printIdentity(out, res)
				return nil
			}
			if !errors.Is(err, client.ErrUnavailable) {
				return err
			}
			fmt.Fprintln(cmd.ErrOrStderr(), "server unreachable, showing the local identity")
		}

		id := a.service.LocalIdentity(cmd.Context())
		if id == nil {
			fmt.Fprintln(out, "No identity yet. One is created with your first letter.")
			return nil
		}
		if a.opts.asJSON {
			return writeJSON(out, id)
		}
		fmt.Fprintf(out, "Anonymous ID: %s\n", id.AnonymousID)
		fmt.Fprintf(out, "First seen:   %s\n", id.CreatedAt.Local().Format("2006-01-02 15:04"))
		return nil
	})

	cmd.Flags().BoolVar(&offline, "offline", false, "do not contact the server")
	return cmd
}

func newMergeCmd(a *app) *cobra.Command {
	var token, accountID string

	cmd := &cobra.Command{
		Use:   "merge",
		Short: "Sign in and move this machine's letters to your account",
		Long: `merge signs in with a session token and moves every letter written
anonymously on this machine to the account. Without --token the token is
read from the terminal without echo.`,
		Args: cobra.NoArgs,
	}
	cmd.RunE = a.runE(func(cmd *cobra.Command, args []string) error {
		if strings.TrimSpace(token) == "" {
			raw, err := GetToken(cmd.ErrOrStderr())
			if err != nil {
				return fmt.Errorf("read token: %w", err)
			}
			token = string(raw)
		}

		rep, err := a.service.Merge(cmd.Context(), token, accountID)
		if err != nil {
			return err
		}
		if a.opts.asJSON {
			return writeJSON(cmd.OutOrStdout(), rep)
		}
		printMerge(cmd.OutOrStdout(), rep)
		return nil
	})

	cmd.Flags().StringVar(&token, "token", "", "session token (prompted when omitted)")
	cmd.Flags().StringVar(&accountID, "account", "", "expected account id")
	return cmd
}

func newResetCmd(a *app) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Forget the anonymous identity and session on this machine",
		Long: `reset drops the local identity and session token. Letters written
anonymously stay readable by link but can no longer be listed or merged
from this machine.`,
		Args: cobra.NoArgs,
	}
	cmd.RunE = a.runE(func(cmd *cobra.Command, args []string) error {
		if !yes {
			answer, err := GetSimpleText(a.input(cmd), "Forget this identity? Type 'yes' to confirm", cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if !strings.EqualFold(answer, "yes") {
				fmt.Fprintln(cmd.OutOrStdout(), "Aborted.")
				return nil
			}
		}

		if err := a.service.Reset(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Identity cleared.")
		return nil
	})

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}
