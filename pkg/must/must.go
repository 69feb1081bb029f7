// Package must provides helpers for performing best-effort cleanup operations
// (closing files, removing temporary paths) whose errors are worth logging
// but never worth propagating, since the caller is already unwinding from a
// more important error or has already produced its result.
package must

import (
	"io"
	"os"

	"github.com/resetmerlin/hastemap/pkg/logging"
)

// Close closes a closer, logging any error as a warning.
func Close(c io.Closer, logger *logging.Logger) {
	if err := c.Close(); err != nil {
		logger.Warnf("unable to close: %s", err.Error())
	}
}

// OSRemove removes a filesystem path, logging any error as a warning.
func OSRemove(name string, logger *logging.Logger) {
	if err := os.Remove(name); err != nil {
		logger.Warnf("unable to remove '%s': %s", name, err.Error())
	}
}
