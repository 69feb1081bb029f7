package filesystem

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

const (
	// hastemapConfigurationName is the name of the configuration file inside
	// the user's home directory.
	hastemapConfigurationName = ".hastemap.yaml"

	// HasteMapDataDirectoryName is the name of the data directory inside the
	// user's home directory, under which caches are stored.
	HasteMapDataDirectoryName = ".hastemap"

	// HasteMapCachesDirectoryName is the name of the caches subdirectory
	// within the data directory, where per-root cache files are persisted.
	HasteMapCachesDirectoryName = "caches"
)

// HomeDirectory is the cached path to the current user's home directory.
var HomeDirectory string

// HasteMapDataDirectoryPath is the path to the data directory. It can be
// overridden by init functions, but should not be changed afterward. It is
// used as the base path for all on-disk cache storage.
var HasteMapDataDirectoryPath string

// HasteMapConfigurationPath is the path to the global configuration file.
var HasteMapConfigurationPath string

// init performs global initialization.
func init() {
	// Grab the current user's home directory.
	if h, err := os.UserHomeDir(); err != nil {
		panic(errors.Wrap(err, "unable to query user's home directory"))
	} else if h == "" {
		panic(errors.New("home directory path empty"))
	} else {
		HomeDirectory = h
	}

	// Compute the path to the data directory.
	HasteMapDataDirectoryPath = filepath.Join(HomeDirectory, HasteMapDataDirectoryName)

	// Compute the path to the configuration file.
	HasteMapConfigurationPath = filepath.Join(HomeDirectory, hastemapConfigurationName)
}

// HasteMapPath computes (and optionally creates) subdirectories inside the
// data directory.
func HasteMapPath(create bool, pathComponents ...string) (string, error) {
	// Compute the target path.
	result := filepath.Join(HasteMapDataDirectoryPath, filepath.Join(pathComponents...))

	// If requested, attempt to create the data directory and the specified
	// subpath.
	if create {
		if err := os.MkdirAll(result, 0700); err != nil {
			return "", errors.Wrap(err, "unable to create subpath")
		}
	}

	// Success.
	return result, nil
}
