package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gobwas/glob"
)

var (
	// ErrEmptyCompiler indicates a missing compiler driver
	ErrEmptyCompiler = errors.New("empty compiler")

	// ErrInvalidTimeout indicates a negative build timeout
	ErrInvalidTimeout = errors.New("invalid build timeout")

	// ErrEmptyTool indicates a missing external tool name
	ErrEmptyTool = errors.New("empty tool")

	// ErrInvalidPattern indicates an exclude pattern that does not compile
	ErrInvalidPattern = errors.New("invalid exclude pattern")

	// ErrInvalidCacheSize indicates a negative symbol cache size
	ErrInvalidCacheSize = errors.New("invalid symbol cache size")

	// ErrInvalidWorkers indicates a negative worker count
	ErrInvalidWorkers = errors.New("invalid worker count")

	// ErrInvalidSampling indicates invalid sampling parameters
	ErrInvalidSampling = errors.New("invalid sampling parameters")
)

// Validate checks that the configuration is valid and complete.
func Validate(cfg *Config) error {
	var errs []error

	if err := validateBuild(&cfg.Build); err != nil {
		errs = append(errs, err)
	}
	if err := validateTools(&cfg.Tools); err != nil {
		errs = append(errs, err)
	}
	if err := validateParse(&cfg.Parse); err != nil {
		errs = append(errs, err)
	}
	if err := validateDataset(&cfg.Dataset); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return joinErrors(errs)
	}

	return nil
}

func validateBuild(cfg *BuildConfig) error {
	var errs []error

	if strings.TrimSpace(cfg.Compiler) == "" {
		errs = append(errs, fmt.Errorf("%w: compiler is required", ErrEmptyCompiler))
	}

	// Zero means no deadline
	if cfg.Timeout < 0 {
		errs = append(errs, fmt.Errorf("%w: timeout cannot be negative, got %s", ErrInvalidTimeout, cfg.Timeout))
	}

	if len(errs) > 0 {
		return joinErrors(errs)
	}

	return nil
}

func validateTools(cfg *ToolsConfig) error {
	var errs []error

	// vcpkg is optional; it is searched for when needed
	tools := []struct {
		name  string
		value string
	}{
		{"ar", cfg.Ar},
		{"objcopy", cfg.Objcopy},
		{"strip", cfg.Strip},
	}
	for _, tool := range tools {
		if strings.TrimSpace(tool.value) == "" {
			errs = append(errs, fmt.Errorf("%w: %s is required", ErrEmptyTool, tool.name))
		}
	}

	if len(errs) > 0 {
		return joinErrors(errs)
	}

	return nil
}

func validateParse(cfg *ParseConfig) error {
	var errs []error

	for _, pattern := range cfg.Exclude {
		if _, err := glob.Compile(pattern); err != nil {
			errs = append(errs, fmt.Errorf("%w: %q: %v", ErrInvalidPattern, pattern, err))
		}
	}

	if cfg.SymbolCacheSize < 0 {
		errs = append(errs, fmt.Errorf("%w: symbol_cache_size cannot be negative, got %d", ErrInvalidCacheSize, cfg.SymbolCacheSize))
	}

	if len(errs) > 0 {
		return joinErrors(errs)
	}

	return nil
}

func validateDataset(cfg *DatasetConfig) error {
	var errs []error

	if cfg.Workers < 0 {
		errs = append(errs, fmt.Errorf("%w: workers cannot be negative, got %d", ErrInvalidWorkers, cfg.Workers))
	}

	if cfg.Samples < 0 {
		errs = append(errs, fmt.Errorf("%w: samples cannot be negative, got %d", ErrInvalidSampling, cfg.Samples))
	}

	if cfg.Components < 0 {
		errs = append(errs, fmt.Errorf("%w: components cannot be negative, got %d", ErrInvalidSampling, cfg.Components))
	}

	if cfg.StratifiedRetries <= 0 {
		errs = append(errs, fmt.Errorf("%w: stratified_retries must be positive, got %d", ErrInvalidSampling, cfg.StratifiedRetries))
	}

	if cfg.WalkChangeFraction <= 0 || cfg.WalkChangeFraction > 1 {
		errs = append(errs, fmt.Errorf("%w: walk_change_fraction must be in (0, 1], got %g", ErrInvalidSampling, cfg.WalkChangeFraction))
	}

	if len(errs) > 0 {
		return joinErrors(errs)
	}

	return nil
}

// joinErrors combines multiple errors into a single error with clear formatting.
func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}

	if len(errs) == 1 {
		return errs[0]
	}

	var msgs []string
	for _, err := range errs {
		msgs = append(msgs, err.Error())
	}

	return fmt.Errorf("validation failed:\n  - %s", strings.Join(msgs, "\n  - "))
}
