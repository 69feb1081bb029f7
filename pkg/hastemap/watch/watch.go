// Package watch defines the WatchSource capability that the crawler depends
// on: a source of "what roots exist" and "what changed since this clock"
// answers. The core never talks to a filesystem-watch daemon directly; it
// only ever calls through this interface, so a Watchman-speaking adapter (or,
// as here, a polling adapter) can be swapped in without touching the crawler.
package watch

import (
	"context"

	"github.com/resetmerlin/hastemap/pkg/hastemap/index"
)

// FileField identifies one piece of per-file metadata a query can request.
type FileField string

const (
	FieldName    FileField = "name"
	FieldExists  FileField = "exists"
	FieldModTime FileField = "mtime_ms"
	FieldSize    FileField = "size"
	FieldSHA1    FileField = "content.sha1hex"
)

// FileResult is one file entry returned by a query.
type FileResult struct {
	Name      string
	Exists    bool
	ModTimeMS int64
	Size      uint64
	// SHA1 is the hex-encoded digest, populated only when FieldSHA1 was
	// requested and the source was able to compute it.
	SHA1 string
}

// QueryResponse is the result of a single root's query.
type QueryResponse struct {
	Clock           index.ClockSpec
	IsFreshInstance bool
	Files           []FileResult
}

// Expression is an opaque query expression the core builds and the source
// interprets; the core treats it as a black box and only ever constructs it
// via NewExpression.
type Expression struct {
	// Kind distinguishes the two equivalent forms the core may build.
	Kind     ExpressionKind
	Suffixes []string
	// DirPrefixes, when non-empty, constrains the query to files under one
	// of these root-relative directories — the "anyof dirname" form a
	// source builds when a watchRoot is shared across multiple requested
	// roots and only specific subtrees of it were actually asked for. An
	// empty DirPrefixes means the whole watchRoot is in scope.
	DirPrefixes []string
}

// ExpressionKind enumerates the two semantically-identical expression forms
// the crawler may construct, depending on whether the source advertises the
// suffix-set capability.
type ExpressionKind int

const (
	// ExpressionSuffixSet uses a single "suffix" clause listing every
	// extension at once.
	ExpressionSuffixSet ExpressionKind = iota
	// ExpressionAnyOfSuffix uses an "anyof" clause with one "suffix" clause
	// per extension, for sources that don't support a combined suffix set.
	ExpressionAnyOfSuffix
)

// Source is the capability the crawler depends on. Implementations wrap a
// concrete watch mechanism (a daemon, a poller, a test double).
type Source interface {
	// SupportsSuffixSet reports whether the source can evaluate a single
	// "suffix" clause against a set of extensions in one pass, letting the
	// crawler skip building the less-efficient "anyof" form.
	SupportsSuffixSet() bool

	// SupportsContentSHA1 reports whether the source can populate
	// FieldSHA1 in query responses. The crawler only requests that field
	// when both the caller wants digests and the source advertises this.
	SupportsContentSHA1() bool

	// Roots resolves each requested root path to the watchRoot the source
	// actually watches plus whatever relative path remains. The crawler
	// accumulates relative paths per watchRoot; a watchRoot already
	// returned with an empty relative path is "watched whole" and further
	// relative paths under it are ignored (see design notes).
	Roots(ctx context.Context, rootPaths []string) (map[string][]string, error)

	// Query returns the files matching expression under watchRoot. If
	// since is nil, every matching file is returned and the response's
	// IsFreshInstance is unconditionally true. If since is non-nil, only
	// files changed since that clock are returned.
	Query(ctx context.Context, watchRoot string, since *index.ClockSpec, expression Expression, fields []FileField, includeDotfiles bool) (QueryResponse, error)
}

// NewExpression builds the expression the crawler sends for a given set of
// extensions, honoring whichever form the source advertises support for, and
// constrained to dirPrefixes if non-empty (see Expression.DirPrefixes).
func NewExpression(extensions []string, supportsSuffixSet bool, dirPrefixes []string) Expression {
	kind := ExpressionAnyOfSuffix
	if supportsSuffixSet {
		kind = ExpressionSuffixSet
	}
	return Expression{Kind: kind, Suffixes: extensions, DirPrefixes: dirPrefixes}
}
