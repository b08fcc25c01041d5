// Package config holds the "dittosmb config" subcommands.
package config

import (
	"github.com/spf13/cobra"

	"github.com/marmos91/dittosmb/cmd/dittosmb/cmdutil"
)

var Cmd = &cobra.Command{
	Use:   "config",
	Short: "Create, check and describe configuration files",
}

func init() {
	Cmd.AddCommand(initCmd, validateCmd, schemaCmd)
}

// configFile is the --config flag, empty for the default location.
func configFile() string {
	return cmdutil.Flags.ConfigFile
}
