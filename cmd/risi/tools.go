package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"risi/internal/tools"
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "Print the tool declarations offered to the model",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		specs := tools.NewRegistry(tools.Builtin()...).Specs()

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(specs)
	},
}
