package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/doc-intake/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:           "doc-intake",
	Short:         "Document intake and client notification pipeline",
	Long:          "Extracts client names from the text and images of an uploaded DOCX or PDF, verifies them against the client registry and emails each client's contacts with the document attached.",
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		return setup(cmd)
	},
	PersistentPostRun: func(*cobra.Command, []string) {
		_ = zap.L().Sync()
	},
}

// setup loads settings and installs the global logger before any
// subcommand runs.
func setup(cmd *cobra.Command) error {
	c, err := config.Load()
	if err != nil {
		return eris.Wrap(err, "doc-intake: load config")
	}
	if err := config.InitLogger(c.Log); err != nil {
		return eris.Wrap(err, "doc-intake: init logger")
	}
	cfg = c

	zap.L().Debug("doc-intake: starting",
		zap.String("command", cmd.CommandPath()),
		zap.String("registry_source", c.Registry.Source),
		zap.String("store_driver", c.Store.Driver),
		zap.Bool("audit", c.Audit.Enabled),
	)
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		zap.L().Error("doc-intake: command failed", zap.Error(err))
		os.Exit(1)
	}
}
