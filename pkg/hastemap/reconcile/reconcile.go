// Package reconcile applies crawl results and worker output to a HasteIndex,
// maintaining the module-name resolution table and its duplicate side table
// under insertions, removals, and name collisions. It's deliberately a set
// of pure, index-mutating functions rather than an object with its own
// goroutine: the orchestrator (builder) decides how results stream in, and
// the reconciler only needs to be commutative with respect to the order in
// which it's called.
package reconcile

import (
	"github.com/resetmerlin/hastemap/pkg/hastemap/index"
	"github.com/resetmerlin/hastemap/pkg/hastemap/pathutil"
	"github.com/resetmerlin/hastemap/pkg/hastemap/worker"
	"github.com/resetmerlin/hastemap/pkg/logging"
)

// nodeModulesComponent is the path fragment that triggers the node_modules
// shortcut: such files are retained in Files but never dispatched to a
// worker, since they're overwhelmingly unlikely to declare a haste name
// worth indexing and are numerous enough that skipping them matters.
const nodeModulesComponent = "node_modules"

// Selection is the outcome of deciding which files need (re)processing for
// this build.
type Selection struct {
	// ToProcess are files that must be dispatched to a worker.
	ToProcess []string
	// Skipped are files that fall under the node_modules shortcut: they
	// stay in Files, marked visited with no haste id, but are never
	// dispatched.
	Skipped []string
	// ResetMap indicates that Map and Mocks must be cleared before any
	// results are committed, because the changed set couldn't be trusted
	// to be complete on its own.
	ResetMap bool
}

// Select decides which files need processing. changedKnown is false when the
// caller has no precise delta for this build, in which case every tracked
// file is a candidate.
func Select(idx *index.HasteIndex, changed index.Files, changedKnown bool, removed index.Files, retainAllFiles bool) Selection {
	resetMap := !changedKnown || len(removed) > 0

	var candidates []string
	if resetMap {
		candidates = idx.Files.SortedPaths()
	} else {
		for path := range changed {
			candidates = append(candidates, path)
		}
	}

	selection := Selection{ResetMap: resetMap}
	for _, path := range candidates {
		if !retainAllFiles && pathutil.ContainsComponent(path, nodeModulesComponent) {
			selection.Skipped = append(selection.Skipped, path)
			continue
		}
		selection.ToProcess = append(selection.ToProcess, path)
	}
	return selection
}

// PrepareIndex clears Map and Mocks when the selection requires a full
// rebuild of the resolution table.
func PrepareIndex(idx *index.HasteIndex, resetMap bool) {
	if resetMap {
		idx.Map = make(index.ModuleMap)
		idx.Mocks = make(map[string]string)
	}
}

// MarkSkipped applies the node_modules shortcut: each skipped file is marked
// visited with no haste id, without ever having been handed to a worker.
func MarkSkipped(idx *index.HasteIndex, skipped []string) {
	for _, path := range skipped {
		meta := idx.Files[path]
		meta.Visited = true
		meta.HasteID = ""
		idx.Files[path] = meta
	}
}

// ApplyRemovals runs recoverDuplicates for every file that disappeared in
// this crawl, promoting a unique surviving contender back into Map where
// applicable.
func ApplyRemovals(idx *index.HasteIndex, removed index.Files) {
	for path, meta := range removed {
		if meta.HasteID != "" {
			recoverDuplicates(idx, meta.HasteID, path)
		}
		delete(idx.Files, path)
	}
}

// CommitResult applies one worker result to idx for the file at path.
func CommitResult(idx *index.HasteIndex, path string, result worker.Metadata, logger *logging.Logger) {
	meta := idx.Files[path]
	meta.Visited = true

	if result.HasModule {
		meta.HasteID = result.ID
		setModule(idx, result.ID, result.Module, logger)
	}

	meta.Dependencies = result.Dependencies

	if result.HasSHA1 {
		meta.SHA1 = result.SHA1
		meta.HasSHA1 = true
	}

	idx.Files[path] = meta
}

// setModule applies one worker's module claim to idx.Map, handling the
// four cases: a claim on a name already recorded as a duplicate, first
// claim, repeat claim by the same file, and a genuine collision with a
// different file.
func setModule(idx *index.HasteIndex, id string, entry index.ModuleEntry, logger *logging.Logger) {
	const platform = index.PlatformGeneric

	moduleMap, ok := idx.Map[id]
	if !ok {
		moduleMap = make(index.PlatformMap)
	}

	existing, hasExisting := moduleMap[platform]
	if !hasExisting {
		// A name that is already ambiguous stays ambiguous: the claimant joins
		// the recorded contenders instead of taking the map slot.
		if dups, ambiguous := idx.Duplicates[id][platform]; ambiguous {
			dupsByPlatform := copyDupsByPlatform(idx.Duplicates[id])
			dups = copyDupsEntry(dups)
			dups[entry.RelativePath] = entry.Kind
			dupsByPlatform[platform] = dups
			idx.Duplicates[id] = dupsByPlatform
			return
		}
		moduleMap[platform] = entry
		idx.Map[id] = moduleMap
		return
	}

	if existing.RelativePath == entry.RelativePath {
		moduleMap[platform] = entry
		idx.Map[id] = moduleMap
		return
	}

	// Genuine collision: two files claim the same haste name.
	logger.Warnf("haste module naming collision: %s and %s both claim %q", existing.RelativePath, entry.RelativePath, id)

	delete(moduleMap, platform)
	if len(moduleMap) == 0 {
		delete(idx.Map, id)
	} else {
		idx.Map[id] = moduleMap
	}

	dupsByPlatform := copyDupsByPlatform(idx.Duplicates[id])
	dups := copyDupsEntry(dupsByPlatform[platform])
	dups[existing.RelativePath] = existing.Kind
	dups[entry.RelativePath] = entry.Kind
	dupsByPlatform[platform] = dups
	idx.Duplicates[id] = dupsByPlatform
}

// recoverDuplicates removes removedRelPath from the duplicate contenders for
// moduleName and, if exactly one contender remains, promotes it back into
// Map. This is the essential reason duplicates are tracked as a set of
// contenders rather than a bare counter: restoring Map requires remembering
// every contender's path and kind.
func recoverDuplicates(idx *index.HasteIndex, moduleName, removedRelPath string) {
	const platform = index.PlatformGeneric

	dupsByPlatform, ok := idx.Duplicates[moduleName]
	if !ok {
		return
	}
	dups, ok := dupsByPlatform[platform]
	if !ok {
		return
	}

	dupsByPlatform = copyDupsByPlatform(dupsByPlatform)
	dups = copyDupsEntry(dups)
	delete(dups, removedRelPath)
	dupsByPlatform[platform] = dups

	if len(dups) != 1 {
		idx.Duplicates[moduleName] = dupsByPlatform
		return
	}

	var lastPath string
	var lastKind index.Kind
	for p, k := range dups {
		lastPath, lastKind = p, k
	}

	moduleMap, ok := idx.Map[moduleName]
	if !ok {
		moduleMap = make(index.PlatformMap)
	}
	moduleMap[platform] = index.ModuleEntry{RelativePath: lastPath, Kind: lastKind}
	idx.Map[moduleName] = moduleMap

	delete(dupsByPlatform, platform)
	if len(dupsByPlatform) == 0 {
		delete(idx.Duplicates, moduleName)
	} else {
		idx.Duplicates[moduleName] = dupsByPlatform
	}
}

func copyDupsByPlatform(in map[string]index.DuplicatesEntry) map[string]index.DuplicatesEntry {
	out := make(map[string]index.DuplicatesEntry, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func copyDupsEntry(in index.DuplicatesEntry) index.DuplicatesEntry {
	out := make(index.DuplicatesEntry, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
