package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	// Dir is the configuration directory name.
	Dir = ".blind-helix"

	// EnvPrefix prefixes every environment override.
	EnvPrefix = "BLIND_HELIX"
)

// Loader provides configuration loading capabilities.
type Loader interface {
	// Load loads configuration from file and environment variables.
	// Priority: defaults → config file → environment variables (env wins)
	Load() (*Config, error)
}

type loader struct {
	rootDir  string
	homeDir  string
	explicit string
}

// NewLoader creates a loader searching rootDir/.blind-helix, then the
// user's home directory.
func NewLoader(rootDir string) Loader {
	home, _ := os.UserHomeDir()
	return &loader{rootDir: rootDir, homeDir: home}
}

// NewFileLoader creates a loader for an explicit config file. A missing
// file is an error.
func NewFileLoader(path string) Loader {
	return &loader{explicit: path}
}

// Load loads configuration with the following priority (highest to lowest):
// 1. Environment variables (BLIND_HELIX_*)
// 2. Config file (.blind-helix/config.yml or .blind-helix/config.yaml)
// 3. Default values
func (l *loader) Load() (*Config, error) {
	v := viper.New()

	if l.explicit != "" {
		v.SetConfigFile(l.explicit)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(filepath.Join(l.rootDir, Dir))
		if l.homeDir != "" {
			v.AddConfigPath(filepath.Join(l.homeDir, Dir))
		}
	}

	// Enable environment variable overrides
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	// Replace . with _ in env var names (e.g., BLIND_HELIX_BUILD_COMPILER)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	bindEnvVars(v)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// Config file not found is acceptable - we'll use defaults + env vars
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || l.explicit != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// bindEnvVars binds every key so AutomaticEnv sees it during Unmarshal.
func bindEnvVars(v *viper.Viper) {
	// Build configuration
	v.BindEnv("build.compiler")
	v.BindEnv("build.cflags")
	v.BindEnv("build.ldflags")
	v.BindEnv("build.timeout")
	v.BindEnv("build.keep_scratch")
	v.BindEnv("build.scratch_dir")

	// Tools configuration
	v.BindEnv("tools.ar")
	v.BindEnv("tools.objcopy")
	v.BindEnv("tools.strip")
	v.BindEnv("tools.vcpkg")

	// Parse configuration
	v.BindEnv("parse.exclude")
	v.BindEnv("parse.version")
	v.BindEnv("parse.symbol_cache_size")

	// Dataset configuration
	v.BindEnv("dataset.workers")
	v.BindEnv("dataset.samples")
	v.BindEnv("dataset.components")
	v.BindEnv("dataset.stratified_retries")
	v.BindEnv("dataset.walk_change_fraction")
	v.BindEnv("dataset.seed")
}

// setDefaults configures viper with default values.
func setDefaults(v *viper.Viper) {
	defaults := Default()

	v.SetDefault("build.compiler", defaults.Build.Compiler)
	v.SetDefault("build.cflags", defaults.Build.CFlags)
	v.SetDefault("build.ldflags", defaults.Build.LDFlags)
	v.SetDefault("build.timeout", defaults.Build.Timeout)
	v.SetDefault("build.keep_scratch", defaults.Build.KeepScratch)
	v.SetDefault("build.scratch_dir", defaults.Build.ScratchDir)

	v.SetDefault("tools.ar", defaults.Tools.Ar)
	v.SetDefault("tools.objcopy", defaults.Tools.Objcopy)
	v.SetDefault("tools.strip", defaults.Tools.Strip)
	v.SetDefault("tools.vcpkg", defaults.Tools.Vcpkg)

	v.SetDefault("parse.exclude", defaults.Parse.Exclude)
	v.SetDefault("parse.version", defaults.Parse.Version)
	v.SetDefault("parse.symbol_cache_size", defaults.Parse.SymbolCacheSize)

	v.SetDefault("dataset.workers", defaults.Dataset.Workers)
	v.SetDefault("dataset.samples", defaults.Dataset.Samples)
	v.SetDefault("dataset.components", defaults.Dataset.Components)
	v.SetDefault("dataset.stratified_retries", defaults.Dataset.StratifiedRetries)
	v.SetDefault("dataset.walk_change_fraction", defaults.Dataset.WalkChangeFraction)
	v.SetDefault("dataset.seed", defaults.Dataset.Seed)
}

// LoadConfig is a convenience function that creates a loader and loads config.
// It uses the current working directory as the root.
func LoadConfig() (*Config, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}
	return NewLoader(wd).Load()
}
