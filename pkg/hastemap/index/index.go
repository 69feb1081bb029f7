// Package index defines the persisted data model for a haste map: the
// per-file metadata, the module-name resolution table, and the duplicate-name
// side table that lets consumers refuse to resolve an ambiguous name instead
// of guessing.
package index

import (
	"sort"

	"github.com/resetmerlin/hastemap/pkg/hastemap/fingerprint"
)

// Kind identifies what sort of module a ModuleEntry's path resolves to.
type Kind int

const (
	// KindModule indicates a plain source module (claimed via a haste name
	// plugin or similar).
	KindModule Kind = 0
	// KindPackage indicates a package.json-backed package root.
	KindPackage Kind = 1
)

// Platform tags recognized by the core. The core only ever populates the
// generic platform; native is reserved for callers that want to pre-seed
// platform-specific entries without the reconciler rejecting them.
const (
	PlatformGeneric = "g"
	PlatformNative  = "native"
)

// DependencyDelimiter is the byte for joining an ordered dependency list into
// a single field. The cache in pkg/hastemap/cachestore does not use it: it
// stores each dependency list as a JSON array.
const DependencyDelimiter = 0x00

// FileMetaData is the per-file record tracked across builds. HasteID is the
// empty string when the file claims no haste name.
type FileMetaData struct {
	HasteID      string
	ModTimeMS    int64
	Size         uint64
	Visited      bool
	Dependencies []string
	SHA1         fingerprint.Fingerprint
	HasSHA1      bool
}

// Clone returns a deep copy of the metadata, since Dependencies is a slice
// and callers must not observe in-place mutation of a committed entry.
func (m FileMetaData) Clone() FileMetaData {
	clone := m
	if m.Dependencies != nil {
		clone.Dependencies = append([]string(nil), m.Dependencies...)
	}
	return clone
}

// ModuleEntry identifies the file (and kind) that a module name currently
// resolves to.
type ModuleEntry struct {
	RelativePath string
	Kind         Kind
}

// PlatformMap maps a platform tag to the single module entry claiming that
// name on that platform.
type PlatformMap map[string]ModuleEntry

// ModuleMap maps a haste ID to its per-platform resolution.
type ModuleMap map[string]PlatformMap

// DuplicatesEntry maps a relative path to the kind it claimed when it
// collided with another file over the same haste name.
type DuplicatesEntry map[string]Kind

// DuplicatesIndex maps a haste ID to the per-platform set of paths that are
// contending for it.
type DuplicatesIndex map[string]map[string]DuplicatesEntry

// ClockKind distinguishes a plain local clock string from one derived from an
// SCM mergebase query.
type ClockKind int

const (
	// ClockLocal is an opaque string clock from a watch source.
	ClockLocal ClockKind = iota
	// ClockSCM is a source-control mergebase query clock.
	ClockSCM
)

// ClockSpec is the heterogeneous clock value associated with a watched root:
// either a plain local clock string or an SCM mergebase query. Persisted
// clocks are always ClockLocal.
type ClockSpec struct {
	Kind ClockKind

	// Clock is the opaque local clock string. Populated when Kind ==
	// ClockLocal, and also holds the SCM variant's trailing clock component.
	Clock string

	// MergebaseWith and Mergebase are populated only when Kind == ClockSCM.
	MergebaseWith string
	Mergebase     string
}

// ClockMap maps a watched root (relative to rootDir) to its clock.
type ClockMap map[string]ClockSpec

// Files is the relative-path-keyed file metadata table.
type Files map[string]FileMetaData

// SortedPaths returns the keys of a Files map in sorted order, since map
// iteration order is not semantic but deterministic iteration is required
// for testing and for stable cache output.
func (f Files) SortedPaths() []string {
	paths := make([]string, 0, len(f))
	for p := range f {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// HasteIndex is the top-level persisted artifact produced by a build.
type HasteIndex struct {
	Clocks     ClockMap
	Files      Files
	Map        ModuleMap
	Duplicates DuplicatesIndex
	// Mocks is reserved; the core never populates it (see design notes on
	// __mocks__ resolution being out of scope).
	Mocks map[string]string
}

// New returns an empty HasteIndex with all maps initialized.
func New() *HasteIndex {
	return &HasteIndex{
		Clocks:     make(ClockMap),
		Files:      make(Files),
		Map:        make(ModuleMap),
		Duplicates: make(DuplicatesIndex),
		Mocks:      make(map[string]string),
	}
}

// Clone returns a deep copy of the index, used when a crawl or reconciliation
// step needs to produce a new snapshot without mutating the one a concurrent
// reader might still hold.
func (h *HasteIndex) Clone() *HasteIndex {
	clone := New()
	for root, clock := range h.Clocks {
		clone.Clocks[root] = clock
	}
	for path, meta := range h.Files {
		clone.Files[path] = meta.Clone()
	}
	for id, platforms := range h.Map {
		cp := make(PlatformMap, len(platforms))
		for plat, entry := range platforms {
			cp[plat] = entry
		}
		clone.Map[id] = cp
	}
	for id, byPlatform := range h.Duplicates {
		cp := make(map[string]DuplicatesEntry, len(byPlatform))
		for plat, dups := range byPlatform {
			entries := make(DuplicatesEntry, len(dups))
			for p, k := range dups {
				entries[p] = k
			}
			cp[plat] = entries
		}
		clone.Duplicates[id] = cp
	}
	for name, path := range h.Mocks {
		clone.Mocks[name] = path
	}
	return clone
}
