package main

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/doc-intake/internal/config"
	"github.com/sells-group/doc-intake/internal/document"
	"github.com/sells-group/doc-intake/internal/pipeline"
)

var (
	runFile   string
	runAlias  string
	runDryRun bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Process a single document",
	Long:  "Runs the intake pipeline for one .docx or .pdf file and prints the run summary as JSON.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		data, err := os.ReadFile(runFile)
		if err != nil {
			return eris.Wrap(err, "read document")
		}
		name := filepath.Base(runFile)
		if !document.Supported(name) {
			zap.L().Warn("unsupported document format, image extraction will be skipped", zap.String("document", name))
		}

		mode := config.ModeRun
		if runDryRun {
			mode = config.ModeDryRun
		}
		env, err := initPipeline(ctx, mode)
		if err != nil {
			return err
		}
		defer env.Close()

		summary, err := env.Pipeline.Run(ctx, pipeline.Input{Name: name, Data: data, Alias: runAlias})
		if err != nil {
			return eris.Wrap(err, "pipeline run")
		}

		zap.L().Info("intake complete",
			zap.String("run_id", summary.RunID),
			zap.Strings("verified_clients", summary.VerifiedClients),
			zap.Bool("email_sent", summary.EmailSent),
		)

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	},
}

func init() {
	runCmd.Flags().StringVar(&runFile, "file", "", "path to the .docx or .pdf document (required)")
	runCmd.Flags().StringVar(&runAlias, "alias", "", "sender display name (default from smtp.default_alias)")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "log emails instead of sending them")
	_ = runCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(runCmd)
}
