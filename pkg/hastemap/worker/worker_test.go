package worker

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/resetmerlin/hastemap/pkg/hastemap/fingerprint"
	"github.com/resetmerlin/hastemap/pkg/hastemap/index"
)

type mapReader map[string][]byte

func (m mapReader) Read(filePath string) ([]byte, error) {
	data, ok := m[filePath]
	if !ok {
		return nil, errors.New("no such file")
	}
	return data, nil
}

type staticHasteImpl struct {
	names map[string]string
}

func (s staticHasteImpl) GetHasteName(filePath string) (string, bool) {
	name, ok := s.names[filePath]
	return name, ok
}

type staticExtractor struct {
	deps []string
}

func (s staticExtractor) Extract(string, string, DefaultExtract) ([]string, error) {
	return s.deps, nil
}

func TestProcessPackageJSONWithName(t *testing.T) {
	root := "/r"
	path := filepath.Join(root, "package.json")
	reader := mapReader{path: []byte(`{"name":"pkg"}`)}

	meta, err := Process(path, root, reader, Flags{}, nil)
	if err != nil {
		t.Fatal("Process failed:", err)
	}
	if meta.ID != "pkg" || !meta.HasModule || meta.Module.Kind != index.KindPackage {
		t.Errorf("unexpected metadata: %+v", meta)
	}
}

func TestProcessPackageJSONWithoutName(t *testing.T) {
	root := "/r"
	path := filepath.Join(root, "package.json")
	reader := mapReader{path: []byte(`{"version":"1.0.0"}`)}

	meta, err := Process(path, root, reader, Flags{}, nil)
	if err != nil {
		t.Fatal("Process failed:", err)
	}
	if meta.HasModule {
		t.Error("expected no module for nameless package.json")
	}
}

func TestProcessInvalidPackageJSON(t *testing.T) {
	root := "/r"
	path := filepath.Join(root, "package.json")
	reader := mapReader{path: []byte(`not json`)}

	_, err := Process(path, root, reader, Flags{}, nil)
	var invalid *InvalidPackageJSONError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidPackageJSONError, got %v", err)
	}
}

func TestProcessBlacklistedExtension(t *testing.T) {
	root := "/r"
	path := filepath.Join(root, "logo.png")
	reader := mapReader{path: []byte("binary-ish content")}

	flags := Flags{
		HasteImpl: staticHasteImpl{names: map[string]string{path: "ShouldNotApply"}},
	}
	meta, err := Process(path, root, reader, flags, nil)
	if err != nil {
		t.Fatal("Process failed:", err)
	}
	if meta.HasModule {
		t.Error("blacklisted extensions should never be parsed for a haste name")
	}
}

func TestProcessHasteImplAndDependencies(t *testing.T) {
	root := "/r"
	path := filepath.Join(root, "a.js")
	reader := mapReader{path: []byte(`require("b")`)}

	flags := Flags{
		ComputeDependencies: true,
		HasteImpl:           staticHasteImpl{names: map[string]string{path: "Foo"}},
		DependencyExtractor: staticExtractor{deps: []string{"b", "b", "c"}},
	}
	meta, err := Process(path, root, reader, flags, nil)
	if err != nil {
		t.Fatal("Process failed:", err)
	}
	if meta.ID != "Foo" || !meta.HasModule || meta.Module.Kind != index.KindModule {
		t.Errorf("unexpected metadata: %+v", meta)
	}
	if len(meta.Dependencies) != 2 || meta.Dependencies[0] != "b" || meta.Dependencies[1] != "c" {
		t.Errorf("unexpected dependencies: %v", meta.Dependencies)
	}
}

func TestProcessComputeSHA1FromCrawl(t *testing.T) {
	root := "/r"
	path := filepath.Join(root, "a.txt")
	reader := mapReader{path: []byte("should not be read")}

	digest := fingerprint.Compute([]byte("from-crawl"))
	meta, err := Process(path, root, reader, Flags{ComputeSHA1: true}, &digest)
	if err != nil {
		t.Fatal("Process failed:", err)
	}
	if !meta.HasSHA1 || meta.SHA1 != digest {
		t.Error("expected crawled sha1 to be reused without reading content")
	}
}

func TestProcessComputeSHA1FromContent(t *testing.T) {
	root := "/r"
	path := filepath.Join(root, "a.txt")
	reader := mapReader{path: []byte("hello world")}

	meta, err := Process(path, root, reader, Flags{ComputeSHA1: true}, nil)
	if err != nil {
		t.Fatal("Process failed:", err)
	}
	if !meta.HasSHA1 {
		t.Error("expected sha1 to be computed from content")
	}
}
