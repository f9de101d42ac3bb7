// Package config provides configuration loading for blind-helix.
//
// Configuration is read from .blind-helix/config.yml in the working
// directory, falling back to ~/.blind-helix/config.yml.
//
// Configuration Hierarchy (highest to lowest priority):
//  1. Command-line flags (applied by the CLI)
//  2. Environment variables (BLIND_HELIX_*)
//  3. Config file
//  4. Built-in defaults
//
// Environment Variable Convention:
//   - Prefix: BLIND_HELIX_
//   - Nested fields: Use underscores (BLIND_HELIX_BUILD_COMPILER)
//   - Automatic mapping via Viper's SetEnvKeyReplacer
package config

import (
	"time"

	"github.com/helix-datasets/blind-helix/internal/library"
)

// Config represents the complete blind-helix configuration.
type Config struct {
	Build   BuildConfig   `yaml:"build" mapstructure:"build"`
	Tools   ToolsConfig   `yaml:"tools" mapstructure:"tools"`
	Parse   ParseConfig   `yaml:"parse" mapstructure:"parse"`
	Dataset DatasetConfig `yaml:"dataset" mapstructure:"dataset"`
}

// BuildConfig configures the compiler used to test components and build
// samples.
type BuildConfig struct {
	Compiler    string        `yaml:"compiler" mapstructure:"compiler"`         // C compiler driver
	CFlags      []string      `yaml:"cflags" mapstructure:"cflags"`             // flags before the glue source
	LDFlags     []string      `yaml:"ldflags" mapstructure:"ldflags"`           // flags after the libraries
	Timeout     time.Duration `yaml:"timeout" mapstructure:"timeout"`           // per-build deadline, 0 = none
	KeepScratch bool          `yaml:"keep_scratch" mapstructure:"keep_scratch"` // leave working directories behind
	ScratchDir  string        `yaml:"scratch_dir" mapstructure:"scratch_dir"`   // parent of working directories, "" = system temp
}

// ToolsConfig names the external binaries. Empty Vcpkg means search
// VCPKG_PATH, PATH and /opt/vcpkg.
type ToolsConfig struct {
	Ar      string `yaml:"ar" mapstructure:"ar"`
	Objcopy string `yaml:"objcopy" mapstructure:"objcopy"`
	Strip   string `yaml:"strip" mapstructure:"strip"`
	Vcpkg   string `yaml:"vcpkg" mapstructure:"vcpkg"`
}

// ParseConfig configures library parsing.
type ParseConfig struct {
	Exclude         []string `yaml:"exclude" mapstructure:"exclude"`                     // glob patterns of symbol names to skip
	Version         string   `yaml:"version" mapstructure:"version"`                     // version recorded in exports
	SymbolCacheSize int      `yaml:"symbol_cache_size" mapstructure:"symbol_cache_size"` // memoized symbol extractions
}

// DatasetConfig configures dataset generation. Zero Samples and Components
// leave the choice to the strategy.
type DatasetConfig struct {
	Workers            int     `yaml:"workers" mapstructure:"workers"` // 0 = half the CPUs
	Samples            int     `yaml:"samples" mapstructure:"samples"`
	Components         int     `yaml:"components" mapstructure:"components"`
	StratifiedRetries  int     `yaml:"stratified_retries" mapstructure:"stratified_retries"`
	WalkChangeFraction float64 `yaml:"walk_change_fraction" mapstructure:"walk_change_fraction"`
	Seed               uint64  `yaml:"seed" mapstructure:"seed"` // 0 = random
}

// Default returns a configuration with sensible defaults.
func Default() *Config {
	return &Config{
		Build: BuildConfig{
			Compiler: "cc",
			CFlags:   []string{},
			LDFlags:  []string{},
		},
		Tools: ToolsConfig{
			Ar:      "ar",
			Objcopy: "objcopy",
			Strip:   "strip",
			Vcpkg:   "",
		},
		Parse: ParseConfig{
			// Leading-underscore names are compiler or libc internals.
			Exclude:         []string{"_*"},
			Version:         library.DefaultVersion,
			SymbolCacheSize: 4096,
		},
		Dataset: DatasetConfig{
			Workers:            0,
			StratifiedRetries:  25,
			WalkChangeFraction: 0.02,
		},
	}
}
