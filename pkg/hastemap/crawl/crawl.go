// Package crawl merges a WatchSource's report of what changed since a
// persisted clock into the previous build's file map, producing the set of
// files that need (re)processing and the set that disappeared.
package crawl

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/resetmerlin/hastemap/pkg/hastemap/fingerprint"
	"github.com/resetmerlin/hastemap/pkg/hastemap/index"
	"github.com/resetmerlin/hastemap/pkg/hastemap/pathutil"
	"github.com/resetmerlin/hastemap/pkg/hastemap/watch"
)

// Failed wraps the underlying cause of a crawl failure. Per the design, a
// failure on any root fails the entire crawl — no partial merge is kept.
type Failed struct {
	Cause error
}

func (e *Failed) Error() string {
	return fmt.Sprintf("crawl failed: %v", e.Cause)
}

func (e *Failed) Unwrap() error {
	return e.Cause
}

// Result is the outcome of a single crawl.
type Result struct {
	// Index carries the new Files map and updated Clocks. Map and
	// Duplicates are untouched (reconciliation owns those).
	Index *index.HasteIndex
	// Changed is the set of files the crawl determined need processing.
	Changed index.Files
	// Removed is the set of files that were present before and are gone
	// now.
	Removed index.Files
	// IsFresh indicates that at least one non-SCM watch root treated its
	// response as a full snapshot rather than an incremental delta.
	IsFresh bool
}

// Options configures a single crawl.
type Options struct {
	Roots       []string
	RootDir     string
	Extensions  []string
	ComputeSHA1 bool
}

// Crawl resolves roots through source, merges the resulting file listings
// into previous, and returns the files that changed or disappeared.
func Crawl(ctx context.Context, previous *index.HasteIndex, source watch.Source, opts Options) (*Result, error) {
	resolvedRoots, err := source.Roots(ctx, opts.Roots)
	if err != nil {
		return nil, &Failed{Cause: err}
	}

	type rootResponse struct {
		watchRoot string
		response  watch.QueryResponse
		sinceSCM  bool
	}

	responses := make([]rootResponse, len(resolvedRoots))
	watchRoots := make([]string, 0, len(resolvedRoots))
	for watchRoot := range resolvedRoots {
		watchRoots = append(watchRoots, watchRoot)
	}

	group, groupCtx := errgroup.WithContext(ctx)
	for i, watchRoot := range watchRoots {
		i, watchRoot := i, watchRoot
		group.Go(func() error {
			relativeRoot, err := pathutil.Relative(opts.RootDir, watchRoot)
			if err != nil {
				return err
			}

			var since *index.ClockSpec
			if clock, ok := previous.Clocks[relativeRoot]; ok {
				since = &clock
			}

			expression := watch.NewExpression(opts.Extensions, source.SupportsSuffixSet(), dirPrefixesFor(resolvedRoots[watchRoot]))
			fields := []watch.FileField{watch.FieldName, watch.FieldExists, watch.FieldModTime, watch.FieldSize}
			if opts.ComputeSHA1 && source.SupportsContentSHA1() {
				fields = append(fields, watch.FieldSHA1)
			}
			includeDotfiles := since == nil

			response, err := source.Query(groupCtx, watchRoot, since, expression, fields, includeDotfiles)
			if err != nil {
				return err
			}

			responses[i] = rootResponse{
				watchRoot: watchRoot,
				response:  response,
				sinceSCM:  since != nil && since.Kind == index.ClockSCM,
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, &Failed{Cause: err}
	}

	isFresh := false
	for _, r := range responses {
		if !r.sinceSCM && r.response.IsFreshInstance {
			isFresh = true
		}
	}

	newIndex := previous.Clone()
	var files index.Files
	var removed index.Files
	if isFresh {
		files = make(index.Files)
		removed = make(index.Files, len(previous.Files))
		for path, meta := range previous.Files {
			removed[path] = meta
		}
	} else {
		files = make(index.Files, len(previous.Files))
		for path, meta := range previous.Files {
			files[path] = meta
		}
		removed = make(index.Files)
	}
	changed := make(index.Files)

	for _, r := range responses {
		relativeRoot, err := pathutil.Relative(opts.RootDir, r.watchRoot)
		if err != nil {
			return nil, &Failed{Cause: err}
		}

		for _, f := range r.response.Files {
			relPath, err := pathutil.Relative(opts.RootDir, pathutil.Join(r.watchRoot, f.Name))
			if err != nil {
				return nil, &Failed{Cause: err}
			}

			prev, hadPrev := previous.Files[relPath]

			if !f.Exists {
				if hadPrev {
					delete(files, relPath)
				}
				if !isFresh {
					removed[relPath] = prev
				}
				continue
			}

			var sha1 fingerprint.Fingerprint
			var hasSHA1 bool
			if f.SHA1 != "" {
				if parsed, ok := fingerprint.ParseLoose(f.SHA1); ok {
					sha1, hasSHA1 = parsed, true
				}
			}

			var entry index.FileMetaData
			switch {
			case hadPrev && prev.ModTimeMS == f.ModTimeMS:
				entry = prev
			case hadPrev && hasSHA1 && prev.HasSHA1 && prev.SHA1 == sha1:
				entry = prev
				entry.ModTimeMS = f.ModTimeMS
			default:
				entry = index.FileMetaData{
					HasteID:   "",
					ModTimeMS: f.ModTimeMS,
					Size:      f.Size,
					Visited:   false,
					SHA1:      sha1,
					HasSHA1:   hasSHA1,
				}
			}

			if isFresh {
				delete(removed, relPath)
			}

			files[relPath] = entry
			changed[relPath] = entry
		}

		newIndex.Clocks[relativeRoot] = localClockOf(r.response.Clock)
	}

	newIndex.Files = files

	return &Result{
		Index:   newIndex,
		Changed: changed,
		Removed: removed,
		IsFresh: isFresh,
	}, nil
}

// dirPrefixesFor turns a watchRoot's list of originally requested relative
// paths into the dirname constraint Expression.DirPrefixes carries. A
// watchRoot watched in full is represented by an empty relative path ("") in
// that list; per Source.Roots' contract, its presence means every other
// relative path under the same watchRoot was folded into the whole-root
// watch, so no constraint should be built.
func dirPrefixesFor(relPaths []string) []string {
	prefixes := make([]string, 0, len(relPaths))
	for _, p := range relPaths {
		if p == "" {
			return nil
		}
		prefixes = append(prefixes, p)
	}
	return prefixes
}

// localClockOf normalizes a response's clock into the persisted,
// always-local form: an SCM clock is reduced to its trailing local clock
// component, since only local clocks are ever stored.
func localClockOf(clock index.ClockSpec) index.ClockSpec {
	if clock.Kind == index.ClockLocal {
		return clock
	}
	return index.ClockSpec{Kind: index.ClockLocal, Clock: clock.Clock}
}
