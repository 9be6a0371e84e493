// Package main provides the entry point for the importer CLI.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/recordimport/cmd/importer/commands"
)

func main() {
	// A missing .env is normal; the environment alone is enough.
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "importer",
		Short: "Import delimited, JSON and XLSX files into the record store",
		Long: `importer loads files into a schemaless record store.

Each group (line, object or row) becomes one record, or is merged into the
records that already hold its resolve key value.

Commands:
  import    Import a file or a directory of files
  formats   List supported formats
  reset     Delete every record`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(commands.NewImportCommand())
	rootCmd.AddCommand(commands.NewFormatsCommand())
	rootCmd.AddCommand(commands.NewResetCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
