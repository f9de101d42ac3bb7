package cli

import (
	"fmt"

	"github.com/helix-datasets/blind-helix/internal/dataset"
	"github.com/helix-datasets/blind-helix/internal/parser"
	"github.com/spf13/cobra"
)

// parsersCmd represents the parsers command
var parsersCmd = &cobra.Command{
	Use:   "parsers",
	Short: "List the available library parsers",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		for _, name := range parser.Names() {
			fmt.Fprintln(cmd.OutOrStdout(), name)
		}
	},
}

// strategiesCmd represents the strategies command
var strategiesCmd = &cobra.Command{
	Use:   "strategies",
	Short: "List the available dataset strategies",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		for _, name := range dataset.Strategies() {
			fmt.Fprintln(cmd.OutOrStdout(), name)
		}
	},
}

func init() {
	rootCmd.AddCommand(parsersCmd)
	rootCmd.AddCommand(strategiesCmd)
}
