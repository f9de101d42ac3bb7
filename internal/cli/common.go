package cli

import (
	"fmt"
	"slices"
	"strings"

	"github.com/helix-datasets/blind-helix/internal/builder"
	"github.com/helix-datasets/blind-helix/internal/config"
	"github.com/helix-datasets/blind-helix/internal/harness"
	"github.com/helix-datasets/blind-helix/internal/parser"
	"github.com/helix-datasets/blind-helix/internal/symbols"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// loadConfig reads --config when given, otherwise searches the working
// directory and the home directory.
func loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if cfgFile != "" {
		cfg, err = config.NewFileLoader(cfgFile).Load()
	} else {
		cfg, err = config.LoadConfig()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// newLogger builds the console logger. Without verbose only warnings and
// errors are shown.
func newLogger(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	cfg.DisableCaller = true
	cfg.DisableStacktrace = true
	cfg.EncoderConfig.TimeKey = ""
	cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	return cfg.Build()
}

// environment holds the collaborators shared by the parsing and dataset
// commands.
type environment struct {
	cfg     *config.Config
	logger  *zap.Logger
	symbols *symbols.CachedSource
	builder *builder.CC
	harness *harness.Harness
	deps    parser.Deps
}

func newEnvironment() (*environment, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	logger, err := newLogger(verbose)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	filter, err := symbols.NewFilter(cfg.Parse.Exclude)
	if err != nil {
		return nil, err
	}

	source, err := symbols.NewCachedSource(symbols.NewELFSource(cfg.Tools.Ar, logger), cfg.Parse.SymbolCacheSize)
	if err != nil {
		return nil, err
	}

	cc := builder.NewCC(cfg.Build.Compiler, logger)
	cc.CFlags = cfg.Build.CFlags
	cc.LDFlags = cfg.Build.LDFlags
	cc.Timeout = cfg.Build.Timeout

	h := harness.New(cc, logger)
	h.ScratchDir = cfg.Build.ScratchDir
	h.Keep = cfg.Build.KeepScratch

	return &environment{
		cfg:     cfg,
		logger:  logger,
		symbols: source,
		builder: cc,
		harness: h,
		deps: parser.Deps{
			Symbols: source,
			Filter:  filter,
			Harness: h,
			Tools: parser.Tools{
				Objcopy: cfg.Tools.Objcopy,
				Vcpkg:   cfg.Tools.Vcpkg,
			},
			Version:    cfg.Parse.Version,
			ScratchDir: cfg.Build.ScratchDir,
			Logger:     logger,
		},
	}, nil
}

func (e *environment) Close() {
	e.symbols.Close()
	_ = e.logger.Sync()
}

// checkParser rejects unregistered parser names before any work starts.
func checkParser(kind string) error {
	if !slices.Contains(parser.Names(), kind) {
		return fmt.Errorf("%w: %s (available: %s)", parser.ErrUnknownParser, kind, strings.Join(parser.Names(), ", "))
	}
	return nil
}

// percent formats part/total as a percentage with two decimals.
func percent(part, total int) string {
	if total == 0 {
		return "0.00%"
	}
	return fmt.Sprintf("%.2f%%", float64(part)/float64(total)*100)
}
