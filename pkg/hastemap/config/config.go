// Package config loads the settings that parameterize a HasteMapBuilder
// from a config file, environment variables, and explicit overrides, using
// viper the way the rest of this module's CLI-facing tooling does.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/resetmerlin/hastemap/pkg/filesystem"
	"github.com/resetmerlin/hastemap/pkg/hastemap/builder"
)

// File is the on-disk/environment-sourced shape of a builder configuration.
// It mirrors builder.Config but uses only types viper can unmarshal
// directly (no plugin references, which are always supplied by the
// embedding program rather than configuration).
type File struct {
	RootDir        string   `mapstructure:"root_dir"`
	Roots          []string `mapstructure:"roots"`
	Extensions     []string `mapstructure:"extensions"`
	Platforms      []string `mapstructure:"platforms"`
	MaxWorkers     int      `mapstructure:"max_workers"`
	ComputeSHA1    bool     `mapstructure:"compute_sha1"`
	ID             string   `mapstructure:"id"`
	CacheDirectory string   `mapstructure:"cache_directory"`
	ResetCache     bool     `mapstructure:"reset_cache"`
	RetainAllFiles bool     `mapstructure:"retain_all_files"`
	IgnorePattern  string   `mapstructure:"ignore_pattern"`
}

// envPrefix is the prefix applied to environment variable overrides, e.g.
// HASTEMAP_ROOT_DIR for root_dir.
const envPrefix = "hastemap"

// Load reads configuration from path and from any HASTEMAP_*-prefixed
// environment variables, returning the merged result. If path is empty, it
// falls back to filesystem.HasteMapConfigurationPath the same way mutagen's
// own CLI falls back to a global per-user config file; unlike an explicit
// path, that fallback file is allowed to not exist. An explicit path that
// doesn't exist is still an error.
func Load(path string) (*File, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Unmarshal only sees environment variables for keys viper already
	// knows, so every key is bound explicitly.
	for _, key := range []string{
		"root_dir", "roots", "extensions", "platforms", "max_workers", "compute_sha1",
		"id", "cache_directory", "reset_cache", "retain_all_files", "ignore_pattern",
	} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("unable to bind environment variable for %q: %w", key, err)
		}
	}

	v.SetDefault("max_workers", 0)
	v.SetDefault("compute_sha1", false)
	v.SetDefault("reset_cache", false)
	v.SetDefault("retain_all_files", false)

	explicit := path != ""
	if !explicit {
		path = filesystem.HasteMapConfigurationPath
	}

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		if explicit || !os.IsNotExist(err) {
			return nil, fmt.Errorf("unable to read config file %q: %w", path, err)
		}
	}

	var file File
	if err := v.Unmarshal(&file); err != nil {
		return nil, fmt.Errorf("unable to decode configuration: %w", err)
	}
	return &file, nil
}

// ToBuilderConfig converts f into a builder.Config, leaving the
// plugin-reference fields (HasteImpl, DependencyExtractor, DefaultExtract)
// for the caller to fill in, since those are capabilities, not data.
func (f *File) ToBuilderConfig() builder.Config {
	return builder.Config{
		RootDir:        f.RootDir,
		Roots:          f.Roots,
		Extensions:     f.Extensions,
		Platforms:      f.Platforms,
		MaxWorkers:     f.MaxWorkers,
		ComputeSHA1:    f.ComputeSHA1,
		ID:             f.ID,
		CacheDirectory: f.CacheDirectory,
		ResetCache:     f.ResetCache,
		RetainAllFiles: f.RetainAllFiles,
		IgnorePattern:  f.IgnorePattern,
	}
}
