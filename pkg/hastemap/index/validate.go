package index

import "fmt"

// EnsureValid validates that every map entry's claimed file agrees with it,
// and that every duplicates entry actually has multiple contenders. It's
// intended for use in tests and as a defensive check after reconciliation,
// mirroring the validation pass a synchronization cache runs over its own
// entries before trusting them.
func (h *HasteIndex) EnsureValid() error {
	if h == nil {
		return fmt.Errorf("nil index")
	}

	// Every map entry points at a file that claims the same haste ID.
	for id, platforms := range h.Map {
		for platform, entry := range platforms {
			meta, ok := h.Files[entry.RelativePath]
			if !ok {
				return fmt.Errorf("map entry (%s, %s) references unknown file %q", id, platform, entry.RelativePath)
			}
			if meta.HasteID != id {
				return fmt.Errorf("file %q claims haste ID %q but is mapped under %q", entry.RelativePath, meta.HasteID, id)
			}
		}
	}

	// Every id recorded in duplicates must have at least two total
	// contenders (the duplicates entries plus a surviving map entry, if
	// any), and an id with exactly one true survivor must live in Map, not
	// in Duplicates.
	for id, byPlatform := range h.Duplicates {
		for platform, dups := range byPlatform {
			total := len(dups)
			if platforms, ok := h.Map[id]; ok {
				if _, ok := platforms[platform]; ok {
					total++
				}
			}
			if total < 2 {
				return fmt.Errorf("duplicates entry (%s, %s) has fewer than 2 contenders", id, platform)
			}
		}
	}

	return nil
}

// Equal reports whether two indices are equivalent in (Files, Map,
// Duplicates, Mocks). Clocks are intentionally excluded, since two runs that
// converge on identical file-level state may still have observed distinct
// clock strings from the watch source.
func (h *HasteIndex) Equal(other *HasteIndex) bool {
	if h == nil || other == nil {
		return h == other
	}
	if !filesEqual(h.Files, other.Files) {
		return false
	}
	if !moduleMapEqual(h.Map, other.Map) {
		return false
	}
	if !duplicatesEqual(h.Duplicates, other.Duplicates) {
		return false
	}
	if len(h.Mocks) != len(other.Mocks) {
		return false
	}
	for name, path := range h.Mocks {
		if other.Mocks[name] != path {
			return false
		}
	}
	return true
}

func filesEqual(a, b Files) bool {
	if len(a) != len(b) {
		return false
	}
	for path, meta := range a {
		otherMeta, ok := b[path]
		if !ok || !metaEqual(meta, otherMeta) {
			return false
		}
	}
	return true
}

func metaEqual(a, b FileMetaData) bool {
	if a.HasteID != b.HasteID || a.ModTimeMS != b.ModTimeMS || a.Size != b.Size ||
		a.Visited != b.Visited || a.HasSHA1 != b.HasSHA1 || a.SHA1 != b.SHA1 {
		return false
	}
	if len(a.Dependencies) != len(b.Dependencies) {
		return false
	}
	for i := range a.Dependencies {
		if a.Dependencies[i] != b.Dependencies[i] {
			return false
		}
	}
	return true
}

func moduleMapEqual(a, b ModuleMap) bool {
	if len(a) != len(b) {
		return false
	}
	for id, platforms := range a {
		otherPlatforms, ok := b[id]
		if !ok || len(platforms) != len(otherPlatforms) {
			return false
		}
		for platform, entry := range platforms {
			otherEntry, ok := otherPlatforms[platform]
			if !ok || entry != otherEntry {
				return false
			}
		}
	}
	return true
}

func duplicatesEqual(a, b DuplicatesIndex) bool {
	if len(a) != len(b) {
		return false
	}
	for id, byPlatform := range a {
		otherByPlatform, ok := b[id]
		if !ok || len(byPlatform) != len(otherByPlatform) {
			return false
		}
		for platform, dups := range byPlatform {
			otherDups, ok := otherByPlatform[platform]
			if !ok || len(dups) != len(otherDups) {
				return false
			}
			for path, kind := range dups {
				if otherDups[path] != kind {
					return false
				}
			}
		}
	}
	return true
}
