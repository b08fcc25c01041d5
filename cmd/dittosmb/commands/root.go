// Package commands implements the dittosmb command line.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/marmos91/dittosmb/cmd/dittosmb/cmdutil"
	configcmd "github.com/marmos91/dittosmb/cmd/dittosmb/commands/config"
	usercmd "github.com/marmos91/dittosmb/cmd/dittosmb/commands/user"
)

// Build metadata, set with -ldflags "-X .../commands.Version=...".
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "dittosmb",
	Short: "SMB2/3 session setup server",
	Long: `dittosmb accepts SMB2/3 connections, negotiates a dialect and
authenticates users with NTLMv2 inside SPNEGO against a local credential
store.

Local commands (start, user, config) read the configuration file and the
credential database directly. Remote commands (login, logout, status,
sessions, users) go through the management API of a running server.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cmdutil.Flags.ConfigFile, "config", "", "config file (default: $XDG_CONFIG_HOME/dittosmb/config.yaml)")
	pf.StringVar(&cmdutil.Flags.ServerURL, "server", "", "API server URL, overriding the stored context")
	pf.StringVar(&cmdutil.Flags.Token, "token", "", "bearer token, overriding the stored context")
	pf.StringVarP(&cmdutil.Flags.Output, "output", "o", "table", "output format: table, json or yaml")
	pf.BoolVar(&cmdutil.Flags.NoColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(
		startCmd,
		versionCmd,
		configcmd.Cmd,
		usercmd.Cmd,
		loginCmd,
		logoutCmd,
		statusCmd,
		sessionsCmd,
		usersCmd,
	)
}

// Execute runs the command line against os.Args.
func Execute() error {
	return rootCmd.Execute()
}
