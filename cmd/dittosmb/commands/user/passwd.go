package user

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittosmb/cmd/dittosmb/cmdutil"
	"github.com/marmos91/dittosmb/pkg/controlplane/models"
	"github.com/marmos91/dittosmb/pkg/controlplane/store"
)

var passwdStdin bool

var passwdCmd = &cobra.Command{
	Use:   "passwd <username>",
	Short: "Change an account's password",
	Long: `Replace the password of an account.

Examples:
  # Change interactively
  dittosmb user passwd alice

  # Change from a script
  echo "$PASSWORD" | dittosmb user passwd alice --password-stdin`,
	Args: cobra.ExactArgs(1),
	RunE: runPasswd,
}

func init() {
	passwdCmd.Flags().BoolVar(&passwdStdin, "password-stdin", false, "Read the password from stdin")
}

func runPasswd(cmd *cobra.Command, args []string) error {
	s, _, err := cmdutil.OpenStore()
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	ctx := cmd.Context()
	u, err := getManagedUser(ctx, s, args[0])
	if err != nil {
		return err
	}

	password, err := cmdutil.ReadPassword(os.Stdin, passwdStdin)
	if err != nil {
		return cmdutil.HandleAbort(err)
	}

	if err := setPassword(ctx, s, u.Username, password); err != nil {
		return err
	}

	cmdutil.PrintSuccess(fmt.Sprintf("Password of '%s' changed", u.Username))
	return nil
}

func setPassword(ctx context.Context, s store.Store, username, password string) error {
	passwordHash, ntHash, err := models.HashPasswordWithNT(password)
	if err != nil {
		return err
	}
	if err := s.UpdatePassword(ctx, username, passwordHash, ntHash); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	return nil
}
