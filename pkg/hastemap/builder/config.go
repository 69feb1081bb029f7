package builder

import (
	"fmt"
	"path/filepath"
	"regexp"

	"github.com/resetmerlin/hastemap/pkg/filesystem"
	"github.com/resetmerlin/hastemap/pkg/hastemap/pool"
	"github.com/resetmerlin/hastemap/pkg/hastemap/worker"
)

// defaultIgnorePattern excludes the VCS metadata directories of the source
// control systems this codebase has ever had to deal with.
const defaultIgnorePattern = `\.git/|\.hg/|\.sl/`

// Config configures a HasteMapBuilder. RootDir is the only required field.
type Config struct {
	// RootDir is the base path; every stored path is relative to it.
	// Accepts "~"-prefixed and relative paths, which are normalized to an
	// absolute path (see filesystem.Normalize).
	RootDir string
	// Roots are the subtrees to index, each of which must fall under
	// RootDir. Duplicates are removed, preserving first-occurrence order.
	Roots []string
	// Extensions lists the file extensions to index, without the leading
	// dot.
	Extensions []string
	// Platforms is reserved; it is accepted but not used, and the core treats
	// every module as the generic platform.
	Platforms []string
	// MaxWorkers upper-bounds parallel worker tasks; defaults to the
	// logical CPU count.
	MaxWorkers int
	// ComputeSHA1, if true, gives every tracked file a content digest.
	ComputeSHA1 bool
	// ID namespaces the cache path; sanitized by replacing non-word
	// characters with "-".
	ID string
	// CacheDirectory is where the cache file lives; defaults to a
	// per-user cache directory under the home directory (see
	// filesystem.HasteMapPath).
	CacheDirectory string
	// ResetCache, if true, ignores any existing cache file.
	ResetCache bool
	// HasteImpl and DependencyExtractor are the optional plugins injected
	// into every worker invocation.
	HasteImpl           worker.HasteImpl
	DependencyExtractor worker.DependencyExtractor
	DefaultExtract      worker.DefaultExtract
	// RetainAllFiles disables the node_modules processing shortcut.
	RetainAllFiles bool
	// IgnorePattern is applied to normalized paths; defaults to VCS
	// metadata directories.
	IgnorePattern string
	// ForceInBand runs the worker pool synchronously; used for
	// deterministic debugging and tests.
	ForceInBand bool
}

// normalized is the fully resolved, validated form of Config.
type normalized struct {
	rootDir        string
	roots          []string
	extensions     []string
	maxWorkers     int
	computeSHA1    bool
	id             string
	cacheDirectory string
	resetCache     bool
	flags          worker.Flags
	ignorePattern  *regexp.Regexp
	forceInBand    bool
}

func (c Config) normalize() (*normalized, error) {
	if c.RootDir == "" {
		return nil, fmt.Errorf("rootDir is required")
	}
	// Normalize expands a leading "~" and makes the result absolute, so a
	// CLI or config-file caller can pass rootDir the same way they'd type
	// it at a shell prompt.
	rootDir, err := filesystem.Normalize(c.RootDir)
	if err != nil {
		return nil, fmt.Errorf("unable to normalize rootDir %q: %w", c.RootDir, err)
	}

	roots := c.Roots
	if len(roots) == 0 {
		roots = []string{rootDir}
	}
	seen := make(map[string]bool, len(roots))
	dedupedRoots := make([]string, 0, len(roots))
	for _, r := range roots {
		normalizedRoot, err := filesystem.Normalize(r)
		if err != nil {
			return nil, fmt.Errorf("unable to normalize root %q: %w", r, err)
		}
		if seen[normalizedRoot] {
			continue
		}
		seen[normalizedRoot] = true
		if rel, err := filepath.Rel(rootDir, normalizedRoot); err != nil || len(rel) >= 2 && rel[:2] == ".." {
			return nil, fmt.Errorf("root %q is not under rootDir %q", r, rootDir)
		}
		dedupedRoots = append(dedupedRoots, normalizedRoot)
	}

	maxWorkers := c.MaxWorkers
	if maxWorkers <= 0 {
		maxWorkers = pool.DefaultConcurrency()
	}

	cacheDirectory := c.CacheDirectory
	if cacheDirectory == "" {
		// Default to a persistent per-user cache directory rather than the
		// OS temp directory, since a cache that doesn't survive past a
		// reboot defeats the point of incremental builds.
		cacheDirectory, err = filesystem.HasteMapPath(true, filesystem.HasteMapCachesDirectoryName)
		if err != nil {
			return nil, fmt.Errorf("unable to resolve default cache directory: %w", err)
		}
	} else {
		cacheDirectory, err = filesystem.Normalize(cacheDirectory)
		if err != nil {
			return nil, fmt.Errorf("unable to normalize cacheDirectory %q: %w", cacheDirectory, err)
		}
	}

	ignorePatternSrc := c.IgnorePattern
	if ignorePatternSrc == "" {
		ignorePatternSrc = defaultIgnorePattern
	}
	ignorePattern, err := regexp.Compile(ignorePatternSrc)
	if err != nil {
		return nil, fmt.Errorf("invalid ignore pattern %q: %w", ignorePatternSrc, err)
	}

	return &normalized{
		rootDir:        rootDir,
		roots:          dedupedRoots,
		extensions:     c.Extensions,
		maxWorkers:     maxWorkers,
		computeSHA1:    c.ComputeSHA1,
		id:             c.ID,
		cacheDirectory: cacheDirectory,
		resetCache:     c.ResetCache,
		ignorePattern:  ignorePattern,
		forceInBand:    c.ForceInBand,
		flags: worker.Flags{
			ComputeDependencies: c.DependencyExtractor != nil,
			ComputeSHA1:         c.ComputeSHA1,
			HasteImpl:           c.HasteImpl,
			DependencyExtractor: c.DependencyExtractor,
			RetainAllFiles:      c.RetainAllFiles,
			DefaultExtract:      c.DefaultExtract,
		},
	}, nil
}
