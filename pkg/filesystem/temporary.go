package filesystem

import "strings"

const (
	// TemporaryNamePrefix is the file name prefix used for all temporary
	// files and directories created by this package. Using this prefix
	// guarantees that any such files will be ignored by filesystem watching
	// and crawling. It may be suffixed with additional elements if desired.
	TemporaryNamePrefix = ".hastemap-temporary-"
)

// IsTemporaryFileName returns true if the given base name looks like one of
// this package's own temporary files or directories, and thus should be
// excluded from watching and crawling.
func IsTemporaryFileName(name string) bool {
	return strings.HasPrefix(name, TemporaryNamePrefix)
}
