package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Set at build time with -ldflags "-X main.version=...".
var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "ingester",
	Short: "Load movie records into the catalog",
	Long: `ingester loads movie records into the PostgreSQL catalog.

Records come either from a bulk walk of a Google Drive folder tree (or a local
directory) or from a Kafka topic / SQS queue of movie events.`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the ingester version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "ingester %s\n", version)
	},
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.Version = version
	rootCmd.SetVersionTemplate("ingester {{.Version}}\n")
	rootCmd.AddCommand(versionCmd)
}
