// Package buildinfo exposes small process-wide toggles that the rest of the
// module reads at init time, mirroring the debug-flag pattern used throughout
// the codebase this was adapted from.
package buildinfo

import (
	"os"
)

// DebugEnabled controls whether or not verbose debug logging is enabled. It is
// set automatically based on the HASTEMAP_DEBUG environment variable.
var DebugEnabled bool

func init() {
	DebugEnabled = os.Getenv("HASTEMAP_DEBUG") == "1"
}
