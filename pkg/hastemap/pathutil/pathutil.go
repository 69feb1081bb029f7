// Package pathutil normalizes filesystem paths the way the rest of the
// pipeline expects: separators converted to the host convention and paths
// made relative to a tracked root, so that the same relative path always
// identifies the same file regardless of how a watch source reported it.
package pathutil

import (
	"path/filepath"
	"strings"
)

// Normalize converts all forward slashes in name to the host path separator.
// Watch sources are free to report paths using either convention; the core
// always stores and compares host-separator paths.
func Normalize(name string) string {
	if filepath.Separator == '/' {
		return name
	}
	return strings.ReplaceAll(name, "/", string(filepath.Separator))
}

// Relative computes the path of target relative to root, after normalizing
// target's separators. Both root and target are assumed to already be
// absolute, cleaned paths.
func Relative(root, target string) (string, error) {
	return filepath.Rel(root, Normalize(target))
}

// Join joins a watch root and a (possibly nested) relative path using the
// host separator, mirroring how a file's absolute path is reconstructed from
// its tracked relative path.
func Join(root, relative string) string {
	return filepath.Join(root, Normalize(relative))
}

// ContainsComponent reports whether path contains the given path component
// as a distinct segment (e.g. "node_modules"), not merely as a substring.
func ContainsComponent(path, component string) bool {
	sep := string(filepath.Separator)
	padded := sep + path + sep
	return strings.Contains(padded, sep+component+sep)
}
