// Package filesystem provides various filesystem utility methods either not
// provided by the Go standard library or requiring a more optimized
// implementation: path normalization, atomic writes, and tree walking. It
// does not itself watch for changes at runtime; pkg/hastemap/watch builds
// its one-shot queries on top of the Walk helper here.
package filesystem
