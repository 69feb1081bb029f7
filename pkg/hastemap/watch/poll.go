package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/resetmerlin/hastemap/pkg/filesystem"
	"github.com/resetmerlin/hastemap/pkg/hastemap/fingerprint"
	"github.com/resetmerlin/hastemap/pkg/hastemap/index"
	"github.com/resetmerlin/hastemap/pkg/identifier"
)

// snapshotEntry is the per-file state a PollSource remembers between queries
// in order to compute a delta: a file whose modification time and size both
// match its previous entry is treated as unchanged.
type snapshotEntry struct {
	modTimeMS int64
	size      uint64
	isDir     bool
}

// snapshot is a full listing of a watch root at some point in time, along
// with the clock string that identifies it.
type snapshot struct {
	clock   string
	entries map[string]snapshotEntry
}

// PollSource is a Source implementation that polls the filesystem directly
// instead of speaking to an external watch daemon. It's the reference
// adapter for single-machine use where no daemon is available; it trades the
// daemon's push notifications for an explicit, synchronous full or
// incremental directory walk on every Query call.
type PollSource struct {
	mutex     sync.Mutex
	snapshots map[string]*snapshot
	// sessionID identifies this poller instance for diagnostic logging; it
	// has no bearing on watch correctness.
	sessionID string
}

// NewPollSource creates a new polling watch source.
func NewPollSource() *PollSource {
	sessionID, err := identifier.New(identifier.PrefixWatch)
	if err != nil {
		sessionID = ""
	}
	return &PollSource{
		snapshots: make(map[string]*snapshot),
		sessionID: sessionID,
	}
}

// SessionID returns the identifier generated for this poller instance, for
// callers that want to correlate log lines across a build with the source
// that produced them.
func (p *PollSource) SessionID() string {
	return p.sessionID
}

// SupportsSuffixSet always returns true: the poller evaluates extensions
// in-process, so there's no daemon-side capability to be missing.
func (p *PollSource) SupportsSuffixSet() bool {
	return true
}

// SupportsContentSHA1 always returns true: the poller can always read a
// file's bytes itself to compute a digest.
func (p *PollSource) SupportsContentSHA1() bool {
	return true
}

// Roots treats every requested root as its own watch root, watched in full
// (an empty relative path), since a local poller has no notion of a shared
// daemon root that might already cover a subtree.
func (p *PollSource) Roots(_ context.Context, rootPaths []string) (map[string][]string, error) {
	result := make(map[string][]string, len(rootPaths))
	for _, root := range rootPaths {
		result[root] = append(result[root], "")
	}
	return result, nil
}

// Query walks watchRoot, filters by expression, and computes a delta against
// the last snapshot taken for this watch root (if since matches it).
func (p *PollSource) Query(_ context.Context, watchRoot string, since *index.ClockSpec, expression Expression, fields []FileField, includeDotfiles bool) (QueryResponse, error) {
	extensions := expression.Suffixes

	wantSHA1 := false
	for _, f := range fields {
		if f == FieldSHA1 {
			wantSHA1 = true
		}
	}

	entries := make(map[string]snapshotEntry)
	var files []FileResult

	walkErr := filesystem.Walk(watchRoot, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if path == watchRoot {
			return nil
		}
		rel, relErr := filepath.Rel(watchRoot, path)
		if relErr != nil {
			return relErr
		}
		base := filepath.Base(path)
		if filesystem.IsTemporaryFileName(base) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !includeDotfiles && strings.HasPrefix(base, ".") {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if info.IsDir() {
			return nil
		}
		if !matchesExtension(rel, extensions) {
			return nil
		}
		if !matchesDirPrefixes(rel, expression.DirPrefixes) {
			return nil
		}

		modTimeMS := info.ModTime().UnixMilli()
		size := uint64(info.Size())
		entries[rel] = snapshotEntry{modTimeMS: modTimeMS, size: size}

		result := FileResult{
			Name:      rel,
			Exists:    true,
			ModTimeMS: modTimeMS,
			Size:      size,
		}
		if wantSHA1 {
			if digest, ok := computeFileDigest(path); ok {
				result.SHA1 = digest
			}
		}
		files = append(files, result)
		return nil
	})
	if walkErr != nil {
		return QueryResponse{}, fmt.Errorf("unable to walk watch root %q: %w", watchRoot, walkErr)
	}

	p.mutex.Lock()
	defer p.mutex.Unlock()

	previous := p.snapshots[watchRoot]
	isFresh := since == nil || previous == nil || previous.clock != since.Clock

	if !isFresh {
		// Keep only files that are new or whose modification time or size
		// differs from the previous snapshot.
		changed := files[:0]
		for _, f := range files {
			if prev, ok := previous.entries[f.Name]; ok && prev.modTimeMS == f.ModTimeMS && prev.size == f.Size {
				continue
			}
			changed = append(changed, f)
		}
		files = changed

		// Emit existence=false entries for files that vanished since the
		// previous snapshot.
		for rel := range previous.entries {
			if _, ok := entries[rel]; !ok {
				files = append(files, FileResult{Name: rel, Exists: false})
			}
		}
	}

	clock, err := identifier.New(identifier.PrefixClock)
	if err != nil {
		return QueryResponse{}, fmt.Errorf("unable to generate clock token: %w", err)
	}
	p.snapshots[watchRoot] = &snapshot{clock: clock, entries: entries}

	return QueryResponse{
		Clock:           index.ClockSpec{Kind: index.ClockLocal, Clock: clock},
		IsFreshInstance: isFresh,
		Files:           files,
	}, nil
}

func matchesExtension(relPath string, extensions []string) bool {
	if len(extensions) == 0 {
		return true
	}
	ext := strings.TrimPrefix(filepath.Ext(relPath), ".")
	for _, candidate := range extensions {
		if ext == candidate {
			return true
		}
	}
	return false
}

// matchesDirPrefixes reports whether relPath falls under one of dirPrefixes,
// equivalent to matching one of the "{p}/**/*.{ext}" globs the dirname
// constraint describes. An empty dirPrefixes means no constraint at all.
func matchesDirPrefixes(relPath string, dirPrefixes []string) bool {
	if len(dirPrefixes) == 0 {
		return true
	}
	for _, prefix := range dirPrefixes {
		if relPath == prefix || strings.HasPrefix(relPath, prefix+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

func computeFileDigest(path string) (string, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", false
	}
	return fingerprint.Compute(data).String(), true
}
