package cli

import (
	"fmt"
	"os"

	"github.com/helix-datasets/blind-helix/internal/parser"
	"github.com/spf13/cobra"
)

var parsePath string

// parseCmd represents the parse command
var parseCmd = &cobra.Command{
	Use:   "parse <parser> <name> <output>",
	Short: "Parse a single library into a set of components",
	Long: `Parse locates a static library, renames its exported symbols so they
cannot collide with the C runtime, and tests every exported function by
building it in isolation. Functions that link are written to the output
file as components.

The name must match the library exactly when the parser locates it (for
example through vcpkg). Parsers that cannot locate libraries need --path.

Examples:
  # Parse a vcpkg package
  blind-helix parse vcpkg-linux-library zlib zlib.bhlx

  # Parse a library file directly
  blind-helix parse generic-linux-library z zlib.bhlx --path /usr/lib/libz.a
`,
	Args: cobra.ExactArgs(3),
	RunE: runParse,
}

func init() {
	rootCmd.AddCommand(parseCmd)
	parseCmd.Flags().StringVarP(&parsePath, "path", "p", "", "path to the target library (optional if it can be inferred from the library name)")
}

func runParse(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	kind, name, output := args[0], args[1], args[2]

	if err := checkParser(kind); err != nil {
		return err
	}

	env, err := newEnvironment()
	if err != nil {
		return err
	}
	defer env.Close()

	p, err := parser.New(kind, name, parsePath, env.deps)
	if err != nil {
		return err
	}

	fmt.Printf("parsing %s\n", name)

	lib, err := p.Build(ctx)
	if err != nil {
		return err
	}

	progress := &testProgress{out: os.Stdout, name: name, quiet: quiet}
	tested, err := p.Test(ctx, lib, progress)
	progress.finish()
	if err != nil {
		return err
	}

	if err := tested.SaveFile(output); err != nil {
		return err
	}

	fmt.Printf("saved %d Components to %s\n", len(tested.Functions), output)
	return nil
}
