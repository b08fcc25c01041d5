package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittosmb/cmd/dittosmb/cmdutil"
	"github.com/marmos91/dittosmb/pkg/apiclient"
)

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "List the accounts of a running server",
	Long: `List the accounts of a running server through its management API.

Use 'dittosmb user list' to read the local credential store instead.`,
	RunE: runUsers,
}

// RemoteUserList is a list of API users for table rendering.
type RemoteUserList []apiclient.User

// Headers implements TableRenderer.
func (ul RemoteUserList) Headers() []string {
	return []string{"USERNAME", "DOMAIN", "SOURCE", "ENABLED", "LAST LOGIN"}
}

// Rows implements TableRenderer.
func (ul RemoteUserList) Rows() [][]string {
	rows := make([][]string, 0, len(ul))
	for _, u := range ul {
		rows = append(rows, []string{
			u.Username,
			cmdutil.EmptyOr(u.Domain, "-"),
			u.Source,
			cmdutil.BoolToYesNo(u.Enabled),
			cmdutil.FormatTimePtr(u.LastLogin),
		})
	}
	return rows
}

func runUsers(cmd *cobra.Command, args []string) error {
	client, err := cmdutil.GetAuthenticatedClient()
	if err != nil {
		return err
	}

	users, err := client.ListUsers()
	if err != nil {
		return fmt.Errorf("failed to list users: %w", err)
	}

	return cmdutil.PrintOutput(os.Stdout, users, len(users) == 0, "No users found.", RemoteUserList(users))
}
