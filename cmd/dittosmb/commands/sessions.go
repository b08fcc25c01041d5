package commands

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittosmb/cmd/dittosmb/cmdutil"
	"github.com/marmos91/dittosmb/pkg/apiclient"
)

var (
	sessionsUser  string
	sessionsState string
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions [id]",
	Short: "List SMB sessions of a running server",
	Long: `List the SMB sessions of a running server, or show one by ID.

Session IDs may be given in decimal or as 0x-prefixed hex, as they appear
in packet captures.

Examples:
  # List all sessions
  dittosmb sessions

  # Only alice's established sessions
  dittosmb sessions --user alice --state valid

  # One session as JSON
  dittosmb sessions 0x0000040000000005 -o json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSessions,
}

func init() {
	sessionsCmd.Flags().StringVar(&sessionsUser, "user", "", "Only sessions of this user (case-insensitive)")
	sessionsCmd.Flags().StringVar(&sessionsState, "state", "", "Only sessions in this state (in-progress|valid|expired)")
}

// SessionList is a list of sessions for table rendering.
type SessionList []apiclient.Session

// Headers implements TableRenderer.
func (sl SessionList) Headers() []string {
	return []string{"ID", "STATE", "USER", "DOMAIN", "CLIENT", "GUEST", "CREATED", "LAST ACTIVITY"}
}

// Rows implements TableRenderer.
func (sl SessionList) Rows() [][]string {
	rows := make([][]string, 0, len(sl))
	for _, s := range sl {
		user := cmdutil.EmptyOr(s.Username, "-")
		if s.Anonymous {
			user = "(anonymous)"
		}
		rows = append(rows, []string{
			fmt.Sprintf("0x%016x", s.ID),
			s.State,
			user,
			cmdutil.EmptyOr(s.Domain, "-"),
			s.ClientAddr,
			cmdutil.BoolToYesNo(s.Guest),
			cmdutil.FormatTimePtr(&s.CreatedAt),
			cmdutil.FormatTimePtr(&s.LastActivity),
		})
	}
	return rows
}

func runSessions(cmd *cobra.Command, args []string) error {
	client, err := cmdutil.GetAuthenticatedClient()
	if err != nil {
		return err
	}

	if len(args) == 1 {
		id, err := strconv.ParseUint(args[0], 0, 64)
		if err != nil || id == 0 {
			return fmt.Errorf("invalid session ID %q", args[0])
		}
		s, err := client.GetSession(id)
		if err != nil {
			return fmt.Errorf("failed to get session: %w", err)
		}
		return cmdutil.PrintOutput(os.Stdout, s, false, "", SessionList{*s})
	}

	sessions, err := client.ListSessions(apiclient.SessionFilter{
		User:  sessionsUser,
		State: sessionsState,
	})
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}

	return cmdutil.PrintOutput(os.Stdout, sessions, len(sessions) == 0, "No sessions.", SessionList(sessions))
}
