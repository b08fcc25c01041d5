package user

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittosmb/cmd/dittosmb/cmdutil"
	"github.com/marmos91/dittosmb/pkg/controlplane/store"
)

var enableCmd = &cobra.Command{
	Use:   "enable <username>",
	Short: "Allow an account to log on",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSetEnabled(cmd, args[0], true)
	},
}

var disableCmd = &cobra.Command{
	Use:   "disable <username>",
	Short: "Refuse logons for an account",
	Long: `Disable an account. Logons fail with STATUS_LOGON_FAILURE;
sessions the account already holds are not affected.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSetEnabled(cmd, args[0], false)
	},
}

func runSetEnabled(cmd *cobra.Command, username string, enabled bool) error {
	return withStore(cmd, func(ctx context.Context, s *store.GORMStore) error {
		u, err := getManagedUser(ctx, s, username)
		if err != nil {
			return err
		}
		if err := s.SetEnabled(ctx, u.Username, enabled); err != nil {
			return fmt.Errorf("failed to update user: %w", err)
		}
		state := map[bool]string{true: "enabled", false: "disabled"}[enabled]
		cmdutil.PrintSuccess(fmt.Sprintf("User '%s' %s", u.Username, state))
		return nil
	})
}
