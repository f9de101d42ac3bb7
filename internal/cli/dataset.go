package cli

import (
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"

	"github.com/helix-datasets/blind-helix/internal/dataset"
	"github.com/helix-datasets/blind-helix/internal/transform"
	"github.com/spf13/cobra"
)

var (
	datasetTransforms     []string
	datasetSamples        int
	datasetMaximumSamples int
	datasetComponents     int
	datasetWorkers        int
)

// datasetCmd represents the dataset command
var datasetCmd = &cobra.Command{
	Use:   "dataset <strategy> <output> <export>...",
	Short: "Generate a dataset from a collection of components",
	Long: `Dataset combines components from one or more exports into samples
according to a strategy, builds one binary per sample and writes the
binaries plus labels.json (sample id to component tags) into output.

Strategies:
  simple             one component per sample
  random             components drawn independently, duplicates allowed
  stratified-random  at most one component per library, no duplicate samples
  stratified-walk    each sample differs from the previous by a few components

Transforms are applied to every built binary and are given as a name or
name:key=value,... (for example strip:flags=--strip-all).

Examples:
  blind-helix dataset stratified-random out/ exports/*/*.bhlx -s 1000 -c 10
  blind-helix dataset simple out/ zlib.bhlx -t strip
`,
	Args: cobra.MinimumNArgs(3),
	RunE: runDataset,
}

func init() {
	rootCmd.AddCommand(datasetCmd)
	datasetCmd.Flags().StringArrayVarP(&datasetTransforms, "transforms", "t", nil, "transform to apply to every sample (repeatable)")
	datasetCmd.Flags().IntVarP(&datasetSamples, "samples", "s", 0, "number of samples to generate")
	datasetCmd.Flags().IntVar(&datasetMaximumSamples, "maximum-samples", 0, "maximum number of samples to keep")
	datasetCmd.Flags().IntVarP(&datasetComponents, "components", "c", 0, "number of components per sample (if applicable for the strategy)")
	datasetCmd.Flags().IntVarP(&datasetWorkers, "number-workers", "n", 0, "number of parallel workers to use (default: <count(CPUs)/2>)")
}

func runDataset(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	name, output, exports := args[0], args[1], args[2:]

	if _, err := os.Stat(output); err == nil {
		return fmt.Errorf("output directory %s already exists", output)
	}

	strategy, err := dataset.LookupStrategy(name)
	if err != nil {
		return err
	}

	env, err := newEnvironment()
	if err != nil {
		return err
	}
	defer env.Close()
	cfg := env.cfg

	transforms, err := transform.Default(transform.Tools{Strip: cfg.Tools.Strip}).Load(datasetTransforms)
	if err != nil {
		return err
	}

	extractDir, err := os.MkdirTemp(cfg.Build.ScratchDir, "blind-helix-exports-")
	if err != nil {
		return fmt.Errorf("failed to create scratch directory: %w", err)
	}
	if !cfg.Build.KeepScratch {
		defer os.RemoveAll(extractDir)
	}

	collection, err := dataset.LoadExports(exports, extractDir)
	if err != nil {
		return err
	}

	params := dataset.Params{
		Samples:        firstPositive(datasetSamples, cfg.Dataset.Samples),
		Components:     firstPositive(datasetComponents, cfg.Dataset.Components),
		Retries:        cfg.Dataset.StratifiedRetries,
		ChangeFraction: cfg.Dataset.WalkChangeFraction,
	}
	if seed := cfg.Dataset.Seed; seed != 0 {
		params.Rand = rand.New(rand.NewPCG(seed, seed))
	}

	samples, err := strategy(collection, params)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(output, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	progress := &datasetProgress{out: os.Stdout, quiet: quiet}
	engine := &dataset.Engine{
		Builder:    env.builder,
		Transforms: transforms,
		Workers:    firstPositive(datasetWorkers, cfg.Dataset.Workers),
		ScratchDir: cfg.Build.ScratchDir,
		Keep:       cfg.Build.KeepScratch,
		MaxSamples: datasetMaximumSamples,
		Verbose:    verbose,
		Reporter:   progress,
		Logger:     env.logger,
	}

	labels, err := engine.Run(ctx, samples, output)
	progress.finish()
	if err != nil {
		return err
	}

	if err := dataset.WriteLabels(filepath.Join(output, dataset.LabelsFile), labels); err != nil {
		return err
	}

	fmt.Printf("built %d samples in %s\n", len(labels), output)
	return nil
}

func firstPositive(values ...int) int {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}
