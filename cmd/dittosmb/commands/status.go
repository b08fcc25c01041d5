package commands

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittosmb/cmd/dittosmb/cmdutil"
	"github.com/marmos91/dittosmb/internal/cli/credentials"
	"github.com/marmos91/dittosmb/internal/cli/output"
	"github.com/marmos91/dittosmb/pkg/apiclient"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show server status",
	Long: `Display the status of a dittosmb server.

This command queries the health endpoints and displays liveness,
readiness, uptime, version and the number of SMB sessions.

Examples:
  # Check status of the current context
  dittosmb status

  # Check another server
  dittosmb status --server http://10.0.0.5:8080 -o json`,
	RunE: runStatus,
}

// ServerStatus represents the server status for display.
type ServerStatus struct {
	Server    string `json:"server" yaml:"server"`
	Status    string `json:"status" yaml:"status"`
	Healthy   bool   `json:"healthy" yaml:"healthy"`
	Ready     bool   `json:"ready" yaml:"ready"`
	Service   string `json:"service,omitempty" yaml:"service,omitempty"`
	Version   string `json:"version,omitempty" yaml:"version,omitempty"`
	StartedAt string `json:"started_at,omitempty" yaml:"started_at,omitempty"`
	Uptime    string `json:"uptime,omitempty" yaml:"uptime,omitempty"`
	UptimeSec int64  `json:"uptime_sec,omitempty" yaml:"uptime_sec,omitempty"`
	Sessions  *int   `json:"sessions,omitempty" yaml:"sessions,omitempty"`
	User      string `json:"user,omitempty" yaml:"user,omitempty"`
	Error     string `json:"error,omitempty" yaml:"error,omitempty"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	store, err := credentials.NewStore()
	if err != nil {
		return fmt.Errorf("failed to initialize credential store: %w", err)
	}
	serverURL, err := resolveServerURL(store, cmdutil.Flags.ServerURL)
	if err != nil {
		return err
	}

	client := apiclient.New(serverURL)
	status := queryStatus(client)

	// Only the saved context for this server carries a token worth showing.
	if current, err := store.GetCurrentContext(); err == nil && current.ServerURL == serverURL {
		if token, err := current.Token(); err == nil {
			if me, err := client.WithToken(token).Me(); err == nil {
				status.User = me.Username
			}
		}
	}

	format, err := cmdutil.GetOutputFormatParsed()
	if err != nil {
		return err
	}
	return output.Print(os.Stdout, format, status, func(w io.Writer) error {
		return printStatusTable(w, status)
	})
}

// queryStatus never fails: an unreachable server is a status too.
func queryStatus(client *apiclient.Client) ServerStatus {
	status := ServerStatus{
		Server: client.BaseURL(),
		Status: "unreachable",
	}

	health, err := client.Health()
	if err != nil {
		status.Error = err.Error()
		return status
	}

	status.Status = health.Status
	status.Healthy = health.Status == "healthy"
	status.Service = health.Data.Service
	status.Version = health.Data.Version
	status.StartedAt = health.Data.StartedAt
	status.Uptime = health.Data.Uptime
	status.UptimeSec = health.Data.UptimeSec
	status.Sessions = health.Data.Sessions

	if err := client.Ready(); err != nil {
		status.Error = err.Error()
	} else {
		status.Ready = true
	}
	return status
}

func printStatusTable(w io.Writer, status ServerStatus) error {
	pairs := [][2]string{
		{"Server", status.Server},
		{"Status", status.Status},
		{"Ready", cmdutil.BoolToYesNo(status.Ready)},
	}
	if status.Version != "" {
		pairs = append(pairs, [2]string{"Version", status.Version})
	}
	if status.StartedAt != "" {
		pairs = append(pairs, [2]string{"Started", output.Timestamp(status.StartedAt)})
	}
	if status.UptimeSec > 0 {
		pairs = append(pairs, [2]string{"Uptime", output.Uptime(status.UptimeSec)})
	}
	if status.Sessions != nil {
		pairs = append(pairs, [2]string{"Sessions", strconv.Itoa(*status.Sessions)})
	}
	if status.User != "" {
		pairs = append(pairs, [2]string{"Logged in as", status.User})
	}
	if status.Error != "" {
		pairs = append(pairs, [2]string{"Error", status.Error})
	}

	_, _ = fmt.Fprintf(w, "\ndittosmb Server Status\n\n")
	return output.KeyValue(w, pairs)
}
