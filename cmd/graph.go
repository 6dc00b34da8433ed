package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sells-group/doc-intake/internal/pipeline"
)

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Print the intake workflow as a Mermaid flowchart",
	RunE: func(cmd *cobra.Command, _ []string) error {
		_, err := fmt.Fprint(cmd.OutOrStdout(), pipeline.Mermaid())
		return err
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
}
