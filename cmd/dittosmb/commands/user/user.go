// Package user implements the local account management subcommands.
//
// They open the credential store named by the configuration file directly,
// so they work whether or not the server is running. A running server sees
// the change on the next logon.
package user

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittosmb/cmd/dittosmb/cmdutil"
	"github.com/marmos91/dittosmb/pkg/controlplane/models"
	"github.com/marmos91/dittosmb/pkg/controlplane/store"
)

var Cmd = &cobra.Command{
	Use:   "user",
	Short: "Manage SMB accounts in the credential store",
	Long: `Manage the accounts of the local credential store.

Accounts declared in the users section of the configuration file belong to
the file and are read-only here.`,
}

func init() {
	Cmd.AddCommand(addCmd, listCmd, deleteCmd, passwdCmd, enableCmd, disableCmd)
}

// withStore runs fn against the configured credential store and closes it.
func withStore(cmd *cobra.Command, fn func(ctx context.Context, s *store.GORMStore) error) error {
	s, _, err := cmdutil.OpenStore()
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()
	return fn(cmd.Context(), s)
}

// getManagedUser returns the named user, refusing accounts owned by the
// configuration file: the next reload would undo any change made here.
func getManagedUser(ctx context.Context, s store.Store, username string) (*models.User, error) {
	u, err := s.GetUser(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("user %q: %w", username, err)
	}
	if u.Source == string(models.SourceConfig) {
		return nil, fmt.Errorf("user %q is declared in the configuration file; edit the file instead", u.Username)
	}
	return u, nil
}
