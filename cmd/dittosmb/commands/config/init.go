package config

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittosmb/pkg/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter configuration file",
	Long: `Write a commented configuration file with a freshly generated JWT
secret, at --config or $XDG_CONFIG_HOME/dittosmb/config.yaml. An existing
file is left alone unless --force is given.`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing file")
}

func runInit(cmd *cobra.Command, args []string) error {
	path := configFile()
	var err error
	if path == "" {
		path, err = config.InitConfig(initForce)
	} else {
		err = config.InitConfigToPath(path, initForce)
	}
	if err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), `Configuration written to %s

Add accounts under "users" or with 'dittosmb user add <name>', then run
'dittosmb start --config %s'.
`, path, path)
	return nil
}
