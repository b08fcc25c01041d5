package user

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittosmb/cmd/dittosmb/cmdutil"
	"github.com/marmos91/dittosmb/pkg/controlplane/models"
	"github.com/marmos91/dittosmb/pkg/controlplane/store"
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List accounts",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(ctx context.Context, s *store.GORMStore) error {
			users, err := s.ListUsers(ctx)
			if err != nil {
				return fmt.Errorf("failed to list users: %w", err)
			}
			return cmdutil.PrintOutput(cmd.OutOrStdout(), users, len(users) == 0, "No users found.", userTable(users))
		})
	},
}

type userTable []*models.User

func (userTable) Headers() []string {
	return []string{"USERNAME", "DISPLAY NAME", "DOMAIN", "SOURCE", "ENABLED", "LAST LOGIN"}
}

func (t userTable) Rows() [][]string {
	rows := make([][]string, len(t))
	for i, u := range t {
		rows[i] = []string{
			u.Username,
			cmdutil.EmptyOr(u.DisplayName, "-"),
			cmdutil.EmptyOr(u.Domain, "-"),
			u.Source,
			cmdutil.BoolToYesNo(u.Enabled),
			cmdutil.FormatTimePtr(u.LastLogin),
		}
	}
	return rows
}
