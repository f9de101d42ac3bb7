package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/helix-datasets/blind-helix/internal/batch"
	"github.com/helix-datasets/blind-helix/internal/catalog"
	"github.com/helix-datasets/blind-helix/internal/dataset"
	"github.com/spf13/cobra"
)

var parseManyWorkers int

// parseManyCmd represents the parse-many command
var parseManyCmd = &cobra.Command{
	Use:   "parse-many <parser> <output> <library>...",
	Short: "Parse many libraries into sets of components",
	Long: `Parse-many runs the parse pipeline for every named library with a pool
of workers. Each library gets a directory under output holding its log,
its export (<library>.bhlx) and a succeeded or failed marker. Libraries
with a marker from a previous run are skipped, so an interrupted run can
be resumed by running the same command again.

Only parsers that locate libraries by name are useful here.

Examples:
  blind-helix parse-many vcpkg-linux-library exports/ zlib libpng openssl -n 8
`,
	Args: cobra.MinimumNArgs(3),
	RunE: runParseMany,
}

func init() {
	rootCmd.AddCommand(parseManyCmd)
	parseManyCmd.Flags().IntVarP(&parseManyWorkers, "number-workers", "n", 0, "number of parallel workers to use (default: <count(CPUs)/2>)")
}

func runParseMany(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	kind, output, libraries := args[0], args[1], args[2:]

	if err := checkParser(kind); err != nil {
		return err
	}

	env, err := newEnvironment()
	if err != nil {
		return err
	}
	defer env.Close()

	workers := parseManyWorkers
	if workers <= 0 {
		workers = dataset.DefaultWorkers()
	}

	progress := &batchProgress{out: os.Stdout, quiet: quiet, verbose: verbose}
	runner := &batch.Runner{
		Kind:     kind,
		Output:   output,
		Workers:  workers,
		Verbose:  verbose,
		Deps:     env.deps,
		Reporter: progress,
	}

	summary, err := runner.Run(ctx, libraries)
	progress.finish()
	if err != nil {
		return err
	}

	printBatchSummary(os.Stdout, summary, verbose)
	return nil
}

// printBatchSummary reports this run, then the catalog totals across every
// run into the same output directory.
func printBatchSummary(w io.Writer, summary batch.Summary, verbose bool) {
	succeeded := 0
	for _, o := range summary.Outcomes {
		if o.Status == catalog.StatusSucceeded {
			succeeded++
		}
	}
	fmt.Fprintf(w, "parsed %d/%d libraries successfully (%s), %d parsed previously\n",
		succeeded, summary.Total, percent(succeeded, summary.Total), summary.Skipped)

	c := summary.Catalog
	fmt.Fprintf(w, "catalog: %d/%d libraries succeeded (%s), %d/%d functions working (%s)\n",
		c.Succeeded, c.Total, percent(c.Succeeded, c.Total), c.Working, c.Found, percent(c.Working, c.Found))

	if verbose {
		for _, e := range summary.Failures {
			fmt.Fprintf(w, "  %s %s %s\n", e.Name, markFailure, e.Error)
		}
	}
}
