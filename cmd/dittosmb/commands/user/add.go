package user

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittosmb/cmd/dittosmb/cmdutil"
	"github.com/marmos91/dittosmb/internal/cli/prompt"
	"github.com/marmos91/dittosmb/pkg/controlplane/models"
	"github.com/marmos91/dittosmb/pkg/controlplane/store"
)

var (
	addDomain        string
	addDisplayName   string
	addDisabled      bool
	addPasswordStdin bool
)

var addCmd = &cobra.Command{
	Use:   "add [username]",
	Short: "Create an account",
	Long: `Create an account in the credential store.

The password is asked for interactively unless --password-stdin is given.
It is stored as a bcrypt hash and as the NT hash NTLM needs.

Examples:
  # Create user interactively
  dittosmb user add alice

  # Create user from a script
  echo "$PASSWORD" | dittosmb user add alice --password-stdin

  # Create a disabled account with a display name
  dittosmb user add bob --display-name "Bob Smith" --disabled`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAdd,
}

func init() {
	addCmd.Flags().StringVar(&addDomain, "domain", "", "Domain recorded for the account")
	addCmd.Flags().StringVar(&addDisplayName, "display-name", "", "Display name")
	addCmd.Flags().BoolVar(&addDisabled, "disabled", false, "Create the account disabled")
	addCmd.Flags().BoolVar(&addPasswordStdin, "password-stdin", false, "Read the password from stdin")
}

func runAdd(cmd *cobra.Command, args []string) error {
	var username string
	if len(args) == 1 {
		username = args[0]
	} else {
		var err error
		username, err = prompt.Text("Username")
		if err != nil {
			return cmdutil.HandleAbort(err)
		}
	}

	s, _, err := cmdutil.OpenStore()
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	ctx := cmd.Context()
	if _, err := s.GetUser(ctx, username); err == nil {
		return fmt.Errorf("user %q: %w", models.NormalizeUsername(username), models.ErrDuplicateUser)
	}

	password, err := cmdutil.ReadPassword(os.Stdin, addPasswordStdin)
	if err != nil {
		return cmdutil.HandleAbort(err)
	}

	u, err := addUser(ctx, s, addOptions{
		Username:    username,
		Password:    password,
		Domain:      addDomain,
		DisplayName: addDisplayName,
		Disabled:    addDisabled,
	})
	if err != nil {
		return err
	}

	cmdutil.PrintSuccess(fmt.Sprintf("User '%s' created", u.Username))
	return nil
}

type addOptions struct {
	Username    string
	Password    string
	Domain      string
	DisplayName string
	Disabled    bool
}

// addUser creates a CLI-sourced account.
func addUser(ctx context.Context, s store.Store, opts addOptions) (*models.User, error) {
	passwordHash, ntHash, err := models.HashPasswordWithNT(opts.Password)
	if err != nil {
		return nil, err
	}

	u := &models.User{
		Username:     opts.Username,
		Domain:       opts.Domain,
		DisplayName:  opts.DisplayName,
		PasswordHash: passwordHash,
		NTHash:       ntHash,
		Enabled:      !opts.Disabled,
		Source:       string(models.SourceCLI),
	}
	if err := u.Validate(); err != nil {
		return nil, err
	}

	if _, err := s.CreateUser(ctx, u); err != nil {
		if errors.Is(err, models.ErrDuplicateUser) {
			return nil, fmt.Errorf("user %q: %w", models.NormalizeUsername(opts.Username), err)
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return u, nil
}
