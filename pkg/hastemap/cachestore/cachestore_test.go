package cachestore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/resetmerlin/hastemap/pkg/hastemap/fingerprint"
	"github.com/resetmerlin/hastemap/pkg/hastemap/index"
	"github.com/resetmerlin/hastemap/pkg/logging"
)

func TestSanitize(t *testing.T) {
	if got := Sanitize("my project!"); got != "my-project-" {
		t.Errorf("unexpected sanitized value: %q", got)
	}
}

func TestPathDeterministic(t *testing.T) {
	a := Path("/tmp", "proj", []string{"/r", "/r/src"})
	b := Path("/tmp", "proj", []string{"/r", "/r/src"})
	if a != b {
		t.Error("Path is not deterministic for identical inputs")
	}

	c := Path("/tmp", "proj", []string{"/r", "/r/other"})
	if a == c {
		t.Error("Path should differ when extras differ")
	}
}

func TestLoadMissingFileReturnsEmptyIndex(t *testing.T) {
	idx := Load(filepath.Join(t.TempDir(), "does-not-exist"), logging.RootLogger)
	if len(idx.Files) != 0 {
		t.Error("expected empty index for missing cache file")
	}
}

func TestLoadCorruptFileReturnsEmptyIndex(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cache")
	if err := Store(path, index.New(), logging.RootLogger); err != nil {
		t.Fatal("unable to seed cache:", err)
	}

	// Corrupt it directly.
	if err := os.WriteFile(path, []byte("not json"), 0600); err != nil {
		t.Fatal("unable to corrupt cache:", err)
	}

	idx := Load(path, logging.RootLogger)
	if len(idx.Files) != 0 {
		t.Error("expected empty index for corrupt cache file")
	}
}

func TestStoreLoadRoundTrip(t *testing.T) {
	idx := index.New()
	digest := fingerprint.Compute([]byte("hello"))
	idx.Files["a.js"] = index.FileMetaData{
		HasteID:      "Foo",
		ModTimeMS:    1234,
		Size:         5,
		Visited:      true,
		Dependencies: []string{"b", "c"},
		SHA1:         digest,
		HasSHA1:      true,
	}
	idx.Files["b.js"] = index.FileMetaData{Visited: true}
	idx.Map["Foo"] = index.PlatformMap{
		index.PlatformGeneric: {RelativePath: "a.js", Kind: index.KindModule},
	}
	idx.Duplicates["Bar"] = map[string]index.DuplicatesEntry{
		index.PlatformGeneric: {"x.js": index.KindModule, "y.js": index.KindModule},
	}

	path := filepath.Join(t.TempDir(), "cache")
	if err := Store(path, idx, logging.RootLogger); err != nil {
		t.Fatal("Store failed:", err)
	}

	loaded := Load(path, logging.RootLogger)
	if !idx.Equal(loaded) {
		t.Error("round-tripped index does not match original")
	}

	loadedMeta := loaded.Files["a.js"]
	if !loadedMeta.HasSHA1 || loadedMeta.SHA1 != digest {
		t.Error("sha1 digest was not preserved across round trip")
	}

	if loaded.Files["b.js"].HasSHA1 {
		t.Error("absent sha1 should remain absent across round trip")
	}
}
