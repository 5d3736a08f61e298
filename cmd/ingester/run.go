package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/movie-explorer/catalog-ingest/internal/config"
	"github.com/movie-explorer/catalog-ingest/internal/credentials"
	"github.com/movie-explorer/catalog-ingest/internal/etl"
	"github.com/movie-explorer/catalog-ingest/internal/metrics"
	"github.com/movie-explorer/catalog-ingest/internal/traversal"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Walk the folder tree once and load every record file",
	Long: `Walk the configured root folder depth-first and load every record file
into the catalog. Records already in the catalog are skipped.

Settings come from the run profile (INGEST_CONFIG_PATH, default .movie-ingest.yaml)
and the environment. Flags override both.`,
	Args: cobra.NoArgs,
	RunE: runRunCmd,
}

func init() {
	rootCmd.AddCommand(runCmd)
	registerRunFlags(runCmd)
}

func registerRunFlags(cmd *cobra.Command) {
	cmd.Flags().String("root", "", "Root folder id (a directory path with --source dir)")
	cmd.Flags().String("source", "", "Folder tree source: drive or dir")
	cmd.Flags().String("suffix", "", "Record file suffix")
	cmd.Flags().Int("max-depth", 0, "Maximum folder depth below the root (0 = unlimited)")
	cmd.Flags().Bool("json", false, "Print the run summary as JSON")
}

// runSummary is the --json form of the run summary.
type runSummary struct {
	Processed      int    `json:"processed"`
	Inserted       int    `json:"inserted"`
	Skipped        int    `json:"skipped"`
	Failed         int    `json:"failed"`
	FoldersVisited int    `json:"foldersVisited"`
	FoldersFailed  int    `json:"foldersFailed"`
	Error          string `json:"error,omitempty"`
}

func runRunCmd(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	asJSON, err := jsonOutput(cmd)
	if err != nil {
		return err
	}

	logger := config.NewLogger()

	cfg := etl.LoadConfig()
	if err := applyRunFlags(cmd, cfg); err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	provider, err := credentials.NewProvider(ctx, cfg.Credentials, logger)
	if err != nil {
		return err
	}

	job := etl.NewJob(cfg, provider,
		etl.WithRecorder(metrics.NewRecorder()),
		etl.WithLogger(logger))

	stats, runErr := job.Run(ctx)

	if err := printSummary(cmd.OutOrStdout(), stats, runErr, asJSON); err != nil {
		return err
	}

	return runErr
}

func jsonOutput(cmd *cobra.Command) (bool, error) {
	asJSON, err := cmd.Flags().GetBool("json")
	if err != nil {
		return false, fmt.Errorf("reading --json: %w", err)
	}

	return asJSON, nil
}

func applyRunFlags(cmd *cobra.Command, cfg *etl.Config) error {
	flags := cmd.Flags()

	if flags.Changed("root") {
		root, err := flags.GetString("root")
		if err != nil {
			return err
		}

		cfg.RootFolderID = root
	}

	if flags.Changed("source") {
		source, err := flags.GetString("source")
		if err != nil {
			return err
		}

		cfg.RemoteSource = source
	}

	if flags.Changed("suffix") {
		suffix, err := flags.GetString("suffix")
		if err != nil {
			return err
		}

		cfg.RecordSuffix = suffix
	}

	if flags.Changed("max-depth") {
		depth, err := flags.GetInt("max-depth")
		if err != nil {
			return err
		}

		cfg.MaxDepth = depth
	}

	return nil
}

func printSummary(w io.Writer, stats traversal.RunStats, runErr error, asJSON bool) error {
	if asJSON {
		summary := runSummary{
			Processed:      stats.Processed,
			Inserted:       stats.Inserted,
			Skipped:        stats.Skipped,
			Failed:         stats.Failed,
			FoldersVisited: stats.FoldersVisited,
			FoldersFailed:  stats.FoldersFailed,
		}
		if runErr != nil {
			summary.Error = runErr.Error()
		}

		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")

		return enc.Encode(summary)
	}

	status := "completed"
	if runErr != nil {
		status = "failed: " + runErr.Error()
	}

	_, err := fmt.Fprintf(w, "Run %s\n  %s\n", status, stats)

	return err
}
