// Package cachestore persists a HasteIndex to a single file on disk between
// builds, so that a subsequent build can crawl only what changed instead of
// re-processing an entire tree. Persistence follows the same
// load-tolerantly/write-atomically discipline the rest of this module's
// ambient encoding helpers use.
package cachestore

import (
	"encoding/json"
	"path/filepath"
	"regexp"

	"github.com/resetmerlin/hastemap/pkg/encoding"
	"github.com/resetmerlin/hastemap/pkg/hastemap/fingerprint"
	"github.com/resetmerlin/hastemap/pkg/hastemap/index"
	"github.com/resetmerlin/hastemap/pkg/logging"
)

// cacheFormatVersion is bumped whenever the on-disk representation changes
// incompatibly. A version mismatch on load is treated the same as a corrupt
// cache: the caller gets a fresh, empty index.
const cacheFormatVersion = 1

// nonWordCharacter matches any character that sanitize must replace.
var nonWordCharacter = regexp.MustCompile(`\W`)

// Sanitize replaces every non-word character in value with "-", matching the
// scheme used to embed a caller-supplied id into a cache file name.
func Sanitize(value string) string {
	return nonWordCharacter.ReplaceAllString(value, "-")
}

// Path computes a deterministic absolute cache file path from a base
// directory, a sanitized id, and a set of extra components (typically the
// resolved rootDir and roots) that are hashed together so that two distinct
// indexing configurations never collide on the same file.
func Path(directory, id string, extra []string) string {
	var concatenated string
	for _, e := range extra {
		concatenated += e
	}
	digest := fingerprint.Compute([]byte(concatenated))
	name := Sanitize(id) + "-" + digest.String()[:32]
	return filepath.Join(directory, name)
}

// onDiskIndex is the JSON-serializable mirror of index.HasteIndex. It exists
// so that the wire format stays decoupled from in-memory map types (JSON
// object keys must be strings, which index's maps already satisfy, but
// keeping an explicit envelope lets the format evolve independently of the
// in-memory model).
type onDiskIndex struct {
	Version    int                                     `json:"version"`
	Clocks     map[string]onDiskClock                  `json:"clocks"`
	Files      map[string]onDiskFileMetaData            `json:"files"`
	Map        map[string]map[string]index.ModuleEntry  `json:"map"`
	Duplicates map[string]map[string]map[string]int     `json:"duplicates"`
	Mocks      map[string]string                        `json:"mocks"`
}

type onDiskClock struct {
	Kind          int    `json:"kind"`
	Clock         string `json:"clock"`
	MergebaseWith string `json:"mergebaseWith,omitempty"`
	Mergebase     string `json:"mergebase,omitempty"`
}

type onDiskFileMetaData struct {
	HasteID      string   `json:"hasteId"`
	ModTimeMS    int64    `json:"mtimeMs"`
	Size         uint64   `json:"size"`
	Visited      bool     `json:"visited"`
	Dependencies []string `json:"dependencies"`
	SHA1         string   `json:"sha1,omitempty"`
}

func toOnDisk(idx *index.HasteIndex) *onDiskIndex {
	out := &onDiskIndex{
		Version:    cacheFormatVersion,
		Clocks:     make(map[string]onDiskClock, len(idx.Clocks)),
		Files:      make(map[string]onDiskFileMetaData, len(idx.Files)),
		Map:        make(map[string]map[string]index.ModuleEntry, len(idx.Map)),
		Duplicates: make(map[string]map[string]map[string]int, len(idx.Duplicates)),
		Mocks:      idx.Mocks,
	}
	for root, clock := range idx.Clocks {
		out.Clocks[root] = onDiskClock{
			Kind:          int(clock.Kind),
			Clock:         clock.Clock,
			MergebaseWith: clock.MergebaseWith,
			Mergebase:     clock.Mergebase,
		}
	}
	for path, meta := range idx.Files {
		entry := onDiskFileMetaData{
			HasteID:      meta.HasteID,
			ModTimeMS:    meta.ModTimeMS,
			Size:         meta.Size,
			Visited:      meta.Visited,
			Dependencies: meta.Dependencies,
		}
		if meta.HasSHA1 {
			entry.SHA1 = meta.SHA1.String()
		}
		out.Files[path] = entry
	}
	for id, platforms := range idx.Map {
		cp := make(map[string]index.ModuleEntry, len(platforms))
		for plat, entry := range platforms {
			cp[plat] = entry
		}
		out.Map[id] = cp
	}
	for id, byPlatform := range idx.Duplicates {
		cp := make(map[string]map[string]int, len(byPlatform))
		for plat, dups := range byPlatform {
			entries := make(map[string]int, len(dups))
			for path, kind := range dups {
				entries[path] = int(kind)
			}
			cp[plat] = entries
		}
		out.Duplicates[id] = cp
	}
	return out
}

func fromOnDisk(in *onDiskIndex) (*index.HasteIndex, error) {
	idx := index.New()
	for root, clock := range in.Clocks {
		idx.Clocks[root] = index.ClockSpec{
			Kind:          index.ClockKind(clock.Kind),
			Clock:         clock.Clock,
			MergebaseWith: clock.MergebaseWith,
			Mergebase:     clock.Mergebase,
		}
	}
	for path, meta := range in.Files {
		entry := index.FileMetaData{
			HasteID:      meta.HasteID,
			ModTimeMS:    meta.ModTimeMS,
			Size:         meta.Size,
			Visited:      meta.Visited,
			Dependencies: meta.Dependencies,
		}
		if meta.SHA1 != "" {
			digest, err := fingerprint.Parse(meta.SHA1)
			if err != nil {
				return nil, err
			}
			entry.SHA1 = digest
			entry.HasSHA1 = true
		}
		idx.Files[path] = entry
	}
	for id, platforms := range in.Map {
		cp := make(index.PlatformMap, len(platforms))
		for plat, entry := range platforms {
			cp[plat] = entry
		}
		idx.Map[id] = cp
	}
	for id, byPlatform := range in.Duplicates {
		cp := make(map[string]index.DuplicatesEntry, len(byPlatform))
		for plat, dups := range byPlatform {
			entries := make(index.DuplicatesEntry, len(dups))
			for path, kind := range dups {
				entries[path] = index.Kind(kind)
			}
			cp[plat] = entries
		}
		idx.Duplicates[id] = cp
	}
	if in.Mocks != nil {
		idx.Mocks = in.Mocks
	}
	return idx, nil
}

// Load decodes a previously persisted index from path. On any failure
// (missing file, corrupt contents, version mismatch), it returns a freshly
// constructed empty index rather than an error — the cache is always
// recoverable. The cause of the failure is logged at debug level.
func Load(path string, logger *logging.Logger) *index.HasteIndex {
	var onDisk onDiskIndex
	err := encoding.LoadAndUnmarshal(path, func(data []byte) error {
		return json.Unmarshal(data, &onDisk)
	})
	if err != nil {
		logger.Debugf("cache unreadable at %s: %v", path, err)
		return index.New()
	}
	if onDisk.Version != cacheFormatVersion {
		logger.Debugf("cache at %s has version %d, expected %d", path, onDisk.Version, cacheFormatVersion)
		return index.New()
	}
	idx, err := fromOnDisk(&onDisk)
	if err != nil {
		logger.Debugf("cache at %s failed to decode: %v", path, err)
		return index.New()
	}
	return idx
}

// Store writes idx to path atomically (write-to-temp + rename), so a reader
// never observes a partially written cache file.
func Store(path string, idx *index.HasteIndex, logger *logging.Logger) error {
	onDisk := toOnDisk(idx)
	return encoding.MarshalAndSave(path, logger, func() ([]byte, error) {
		return json.Marshal(onDisk)
	})
}
