package cli

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"

	"github.com/helix-datasets/blind-helix/internal/dataset"
	"github.com/spf13/cobra"
)

// countCmd represents the count command
var countCmd = &cobra.Command{
	Use:   "count <export>...",
	Short: "Count the components and libraries in one or more exports",
	Long: `Count loads export files and reports how many components they hold
across how many libraries. With --verbose it also prints the median number
of components per library.

Examples:
  blind-helix count exports/*/*.bhlx -v
`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCount,
}

func init() {
	rootCmd.AddCommand(countCmd)
}

func runCount(cmd *cobra.Command, args []string) error {
	collection, err := dataset.LoadExports(args, "")
	if err != nil {
		return err
	}
	printCount(os.Stdout, collection, verbose)
	return nil
}

func printCount(w io.Writer, collection dataset.Collection, verbose bool) {
	fmt.Fprintf(w, "found %d components in %d libraries\n", collection.Count(), len(collection))

	if verbose && len(collection) > 0 {
		counts := make([]int, 0, len(collection))
		for _, components := range collection {
			counts = append(counts, len(components))
		}
		fmt.Fprintf(w, "  median number of components per library: %s\n",
			strconv.FormatFloat(median(counts), 'f', -1, 64))
	}
}

// median of a non-empty slice. Even lengths average the middle pair.
func median(values []int) float64 {
	sorted := append([]int(nil), values...)
	sort.Ints(sorted)

	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return float64(sorted[mid])
	}
	return float64(sorted[mid-1]+sorted[mid]) / 2
}
