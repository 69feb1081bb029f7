// Package worker implements the pure, per-file processing step of the
// indexing pipeline: given a file's bytes, it determines a haste name (if
// any), extracts dependencies, and computes a content digest. It never
// touches shared state; every call is independent and safe to run
// concurrently across a pool.
package worker

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/resetmerlin/hastemap/pkg/hastemap/fingerprint"
	"github.com/resetmerlin/hastemap/pkg/hastemap/index"
	"github.com/resetmerlin/hastemap/pkg/hastemap/pathutil"
)

// packageJSONName is the one blacklisted-extension exception: despite being
// JSON, it's still parsed for its "name" field.
const packageJSONName = "package.json"

// blacklistedExtensions are file extensions that are tracked but never
// parsed for a haste name or dependencies.
var blacklistedExtensions = map[string]bool{
	"json": true,
	"bmp":  true, "gif": true, "ico": true, "jpeg": true, "jpg": true,
	"png": true, "svg": true, "tiff": true, "tif": true, "webp": true,
	"avi": true, "mp4": true, "mpeg": true, "mpg": true, "ogv": true,
	"webm": true, "3gp": true, "3g2": true,
	"aac": true, "midi": true, "mid": true, "mp3": true, "oga": true, "wav": true,
	"eot": true, "otf": true, "ttf": true, "woff": true, "woff2": true,
}

// IsBlacklisted reports whether the given (dot-less) extension is tracked
// but never parsed.
func IsBlacklisted(extension string) bool {
	return blacklistedExtensions[strings.ToLower(extension)]
}

// HasteImpl is the optional plugin that derives a haste name for a file from
// its path, independent of package.json handling. The core never loads this
// dynamically; it's injected as a capability at builder construction time.
type HasteImpl interface {
	GetHasteName(filePath string) (string, bool)
}

// DefaultExtract is the fallback dependency-extraction function passed to a
// DependencyExtractor, for extractors that only want to customize part of
// the default behavior.
type DefaultExtract func(sourceText string) ([]string, error)

// DependencyExtractor is the pluggable grammar that turns source text into a
// list of declared dependency module names. The core requires only this
// signature; the extraction grammar itself is out of scope.
type DependencyExtractor interface {
	Extract(sourceText, filePath string, defaultExtract DefaultExtract) ([]string, error)
}

// Flags configures how a single file is processed.
type Flags struct {
	ComputeDependencies    bool
	ComputeSHA1            bool
	HasteImpl              HasteImpl
	DependencyExtractor    DependencyExtractor
	RetainAllFiles         bool
	DefaultExtract         DefaultExtract
}

// Metadata is the result of processing one file.
type Metadata struct {
	ID           string
	HasModule    bool
	Module       index.ModuleEntry
	Dependencies []string
	SHA1         fingerprint.Fingerprint
	HasSHA1      bool
}

// InvalidPackageJSONError indicates package.json content that could not be
// parsed as JSON. It's a hard error: the build halts rather than silently
// dropping the file, since a broken package.json is almost certainly a
// mistake the caller wants surfaced.
type InvalidPackageJSONError struct {
	Path  string
	Cause error
}

func (e *InvalidPackageJSONError) Error() string {
	return fmt.Sprintf("invalid package.json at %q: %v", e.Path, e.Cause)
}

func (e *InvalidPackageJSONError) Unwrap() error {
	return e.Cause
}

// ExtractorFailureError wraps an error returned by the configured
// DependencyExtractor plugin while processing Path. The builder package
// classifies this as a plugin failure rather than a file I/O failure.
type ExtractorFailureError struct {
	Path  string
	Cause error
}

func (e *ExtractorFailureError) Error() string {
	return fmt.Sprintf("dependency extractor failed on %q: %v", e.Path, e.Cause)
}

func (e *ExtractorFailureError) Unwrap() error {
	return e.Cause
}

// Reader supplies file contents on demand. It exists so that content is only
// read when actually needed (a worker that bails out early on a blacklisted
// extension never touches disk), and so tests can substitute an in-memory
// reader.
type Reader interface {
	Read(filePath string) ([]byte, error)
}

// Process runs the pure per-file algorithm: determine a haste name (from
// package.json or the HasteImpl plugin), extract dependencies, and compute a
// digest, according to flags.
func Process(filePath, rootDir string, reader Reader, flags Flags, crawledSHA1 *fingerprint.Fingerprint) (Metadata, error) {
	var content []byte
	var contentLoaded bool
	load := func() ([]byte, error) {
		if contentLoaded {
			return content, nil
		}
		data, err := reader.Read(filePath)
		if err != nil {
			return nil, err
		}
		content = data
		contentLoaded = true
		return content, nil
	}

	base := filepath.Base(filePath)

	var result Metadata

	switch {
	case base == packageJSONName:
		data, err := load()
		if err != nil {
			return Metadata{}, err
		}
		name, ok, err := extractPackageName(data)
		if err != nil {
			return Metadata{}, &InvalidPackageJSONError{Path: filePath, Cause: err}
		}
		if ok {
			rel, relErr := pathutil.Relative(rootDir, filePath)
			if relErr != nil {
				return Metadata{}, relErr
			}
			result.ID = name
			result.HasModule = true
			result.Module = index.ModuleEntry{RelativePath: rel, Kind: index.KindPackage}
		}
	case IsBlacklisted(strings.TrimPrefix(filepath.Ext(filePath), ".")):
		// Tracked but never parsed.
	default:
		if flags.HasteImpl != nil {
			if name, ok := flags.HasteImpl.GetHasteName(filePath); ok {
				rel, relErr := pathutil.Relative(rootDir, filePath)
				if relErr != nil {
					return Metadata{}, relErr
				}
				result.ID = name
				result.HasModule = true
				result.Module = index.ModuleEntry{RelativePath: rel, Kind: index.KindModule}
			}
		}
		if flags.ComputeDependencies && flags.DependencyExtractor != nil {
			data, err := load()
			if err != nil {
				return Metadata{}, err
			}
			deps, err := flags.DependencyExtractor.Extract(string(data), filePath, flags.DefaultExtract)
			if err != nil {
				return Metadata{}, &ExtractorFailureError{Path: filePath, Cause: err}
			}
			result.Dependencies = dedupeOrdered(deps)
		}
	}

	if flags.ComputeSHA1 {
		if crawledSHA1 != nil {
			result.SHA1 = *crawledSHA1
			result.HasSHA1 = true
		} else {
			data, err := load()
			if err != nil {
				return Metadata{}, err
			}
			result.SHA1 = fingerprint.Compute(data)
			result.HasSHA1 = true
		}
	}

	return result, nil
}

// extractPackageName parses data as JSON and returns its top-level "name"
// field, if present and a string.
func extractPackageName(data []byte) (string, bool, error) {
	var parsed struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", false, err
	}
	if parsed.Name == "" {
		return "", false, nil
	}
	return parsed.Name, true, nil
}

// dedupeOrdered removes duplicate entries from deps while preserving the
// order of first occurrence.
func dedupeOrdered(deps []string) []string {
	if len(deps) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(deps))
	result := make([]string, 0, len(deps))
	for _, d := range deps {
		if seen[d] {
			continue
		}
		seen[d] = true
		result = append(result, d)
	}
	return result
}
