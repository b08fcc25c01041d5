package user

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittosmb/cmd/dittosmb/cmdutil"
	"github.com/marmos91/dittosmb/internal/cli/prompt"
	"github.com/marmos91/dittosmb/pkg/controlplane/store"
)

var deleteForce bool

var deleteCmd = &cobra.Command{
	Use:     "delete <username>",
	Aliases: []string{"rm"},
	Short:   "Delete an account",
	Long: `Delete an account from the credential store. Sessions it already holds
on a running server last until logoff.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(ctx context.Context, s *store.GORMStore) error {
			u, err := getManagedUser(ctx, s, args[0])
			if err != nil {
				return err
			}

			ok, err := prompt.ConfirmWithForce(fmt.Sprintf("Delete user '%s'?", u.Username), deleteForce)
			if err != nil {
				return cmdutil.HandleAbort(err)
			}
			if !ok {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Aborted.")
				return nil
			}

			if err := s.DeleteUser(ctx, u.Username); err != nil {
				return fmt.Errorf("failed to delete user: %w", err)
			}
			cmdutil.PrintSuccess(fmt.Sprintf("User '%s' deleted", u.Username))
			return nil
		})
	},
}

func init() {
	deleteCmd.Flags().BoolVarP(&deleteForce, "force", "f", false, "Skip confirmation")
}
