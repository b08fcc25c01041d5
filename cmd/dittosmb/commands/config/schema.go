package config

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittosmb/pkg/config"
)

var schemaFile string

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the JSON schema of the configuration file",
	Long: `Print the JSON schema of the configuration file, for editor completion
and validation. Point yaml-language-server at it with

  # yaml-language-server: $schema=./config.schema.json`,
	Args: cobra.NoArgs,
	RunE: runSchema,
}

func init() {
	schemaCmd.Flags().StringVarP(&schemaFile, "file", "f", "", "Write to this file instead of stdout")
}

func runSchema(cmd *cobra.Command, args []string) error {
	doc, err := config.Schema()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if schemaFile == "" {
		_, err := fmt.Fprintln(out, string(doc))
		return err
	}
	if err := os.WriteFile(schemaFile, append(doc, '\n'), 0644); err != nil {
		return fmt.Errorf("failed to write schema file: %w", err)
	}
	_, _ = fmt.Fprintf(out, "JSON schema written to %s\n", schemaFile)
	return nil
}
