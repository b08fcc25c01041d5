package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittosmb/internal/cli/credentials"
)

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the access token of the current context",
	Long: `Drop the stored access token of the current context. The server URL
and username stay, so 'dittosmb login' alone signs in again.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := credentials.NewStore()
		if err != nil {
			return fmt.Errorf("failed to open credential store: %w", err)
		}

		name := store.GetCurrentContextName()
		if err := store.ClearCurrentContext(); err != nil {
			if errors.Is(err, credentials.ErrNoCurrentContext) {
				return errors.New("not logged in")
			}
			return fmt.Errorf("failed to clear credentials: %w", err)
		}

		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Logged out from context %s\n", name)
		return nil
	},
}
