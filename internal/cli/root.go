package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/helix-datasets/blind-helix/internal/harness"
	"github.com/spf13/cobra"
)

var (
	cfgFile string
	verbose bool
	quiet   bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "blind-helix",
	Short: "Blind HELIX - automatic static-only component extraction",
	Long: `Blind HELIX slices compiled static libraries into single-function
components, tests which of them link in isolation, and assembles labeled
datasets of binaries built from combinations of working components.

Typical workflow:
  blind-helix parse-many vcpkg-linux-library exports/ zlib libpng openssl
  blind-helix count exports/*/*.bhlx
  blind-helix dataset stratified-random dataset/ exports/*/*.bhlx -s 1000 -c 10`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	if err != nil {
		printError(os.Stderr, err)
		os.Exit(1)
	}
}

// printError writes "error: <msg>", followed by the raw compiler output when
// a build failed in a way no matcher recognized.
func printError(w io.Writer, err error) {
	fmt.Fprintf(w, "error: %v\n", err)

	var unexpected *harness.UnexpectedBuildFailure
	if errors.As(err, &unexpected) && unexpected.Stderr != "" {
		fmt.Fprintln(w, unexpected.Stderr)
	}
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .blind-helix/config.yml, then ~/.blind-helix/config.yml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "disable progress bars")
}
