package crawl

import (
	"context"
	"reflect"
	"sync"
	"testing"

	"github.com/resetmerlin/hastemap/pkg/hastemap/index"
	"github.com/resetmerlin/hastemap/pkg/hastemap/watch"
)

// fakeSource is a scripted watch.Source used to exercise crawl scenarios
// without touching a real filesystem.
type fakeSource struct {
	rootMapping map[string][]string
	response    watch.QueryResponse
	queryErr    error

	mu              sync.Mutex
	seenExpressions map[string]watch.Expression
}

func (f *fakeSource) SupportsSuffixSet() bool    { return true }
func (f *fakeSource) SupportsContentSHA1() bool  { return false }
func (f *fakeSource) Roots(_ context.Context, rootPaths []string) (map[string][]string, error) {
	if f.rootMapping != nil {
		return f.rootMapping, nil
	}
	mapping := make(map[string][]string, len(rootPaths))
	for _, r := range rootPaths {
		mapping[r] = []string{""}
	}
	return mapping, nil
}

func (f *fakeSource) Query(_ context.Context, watchRoot string, _ *index.ClockSpec, expression watch.Expression, _ []watch.FileField, _ bool) (watch.QueryResponse, error) {
	f.mu.Lock()
	if f.seenExpressions == nil {
		f.seenExpressions = make(map[string]watch.Expression)
	}
	f.seenExpressions[watchRoot] = expression
	f.mu.Unlock()

	if f.queryErr != nil {
		return watch.QueryResponse{}, f.queryErr
	}
	return f.response, nil
}

func TestCrawlFirstBuildIsFresh(t *testing.T) {
	source := &fakeSource{
		response: watch.QueryResponse{
			IsFreshInstance: true,
			Clock:           index.ClockSpec{Kind: index.ClockLocal, Clock: "c1"},
			Files: []watch.FileResult{
				{Name: "a.js", Exists: true, ModTimeMS: 100, Size: 10},
				{Name: "b.js", Exists: true, ModTimeMS: 200, Size: 20},
			},
		},
	}

	result, err := Crawl(context.Background(), index.New(), source, Options{
		Roots:   []string{"/r"},
		RootDir: "/r",
	})
	if err != nil {
		t.Fatal("Crawl failed:", err)
	}
	if !result.IsFresh {
		t.Error("expected first build to be reported as fresh")
	}
	if len(result.Changed) != 2 {
		t.Errorf("expected 2 changed files, got %d", len(result.Changed))
	}
	if len(result.Removed) != 0 {
		t.Errorf("expected no removed files on first build, got %d", len(result.Removed))
	}
	if len(result.Index.Files) != 2 {
		t.Errorf("expected 2 files in resulting index, got %d", len(result.Index.Files))
	}
}

func TestCrawlReusesUnchangedEntry(t *testing.T) {
	previous := index.New()
	previous.Files["a.js"] = index.FileMetaData{HasteID: "Foo", ModTimeMS: 100, Size: 10, Visited: true}

	source := &fakeSource{
		response: watch.QueryResponse{
			IsFreshInstance: false,
			Clock:           index.ClockSpec{Kind: index.ClockLocal, Clock: "c2"},
			Files: []watch.FileResult{
				{Name: "a.js", Exists: true, ModTimeMS: 100, Size: 10},
			},
		},
	}

	result, err := Crawl(context.Background(), previous, source, Options{
		Roots:   []string{"/r"},
		RootDir: "/r",
	})
	if err != nil {
		t.Fatal("Crawl failed:", err)
	}
	entry := result.Index.Files["a.js"]
	if entry.HasteID != "Foo" {
		t.Error("expected unchanged file's haste id to be preserved by reuse")
	}
	if changedEntry, ok := result.Changed["a.js"]; !ok || changedEntry.HasteID != "Foo" {
		t.Error("expected the reused entry to be recorded in Changed as well")
	}
}

func TestCrawlDetectsRemoval(t *testing.T) {
	previous := index.New()
	previous.Files["a.js"] = index.FileMetaData{Visited: true}
	previous.Files["b.js"] = index.FileMetaData{Visited: true}

	source := &fakeSource{
		response: watch.QueryResponse{
			IsFreshInstance: false,
			Clock:           index.ClockSpec{Kind: index.ClockLocal, Clock: "c2"},
			Files: []watch.FileResult{
				{Name: "b.js", Exists: false},
			},
		},
	}

	result, err := Crawl(context.Background(), previous, source, Options{
		Roots:   []string{"/r"},
		RootDir: "/r",
	})
	if err != nil {
		t.Fatal("Crawl failed:", err)
	}
	if _, ok := result.Removed["b.js"]; !ok {
		t.Error("expected b.js to be reported removed")
	}
	if _, ok := result.Index.Files["b.js"]; ok {
		t.Error("expected b.js to be absent from resulting files")
	}
}

func TestCrawlFreshInstanceOmittedFileIsRemoved(t *testing.T) {
	previous := index.New()
	previous.Files["a.js"] = index.FileMetaData{HasteID: "X", Visited: true}
	previous.Files["b.js"] = index.FileMetaData{Visited: true}
	previous.Files["c.js"] = index.FileMetaData{Visited: true}

	source := &fakeSource{
		response: watch.QueryResponse{
			IsFreshInstance: true,
			Clock:           index.ClockSpec{Kind: index.ClockLocal, Clock: "c3"},
			Files: []watch.FileResult{
				{Name: "a.js", Exists: true, ModTimeMS: 1, Size: 1},
				{Name: "b.js", Exists: true, ModTimeMS: 1, Size: 1},
			},
		},
	}

	result, err := Crawl(context.Background(), previous, source, Options{
		Roots:   []string{"/r"},
		RootDir: "/r",
	})
	if err != nil {
		t.Fatal("Crawl failed:", err)
	}
	if _, ok := result.Removed["c.js"]; !ok {
		t.Error("expected omitted c.js to appear in removedFiles")
	}
	if _, ok := result.Removed["a.js"]; ok {
		t.Error("a.js was present in the response and should not be reported removed")
	}
}

func TestCrawlConstrainsExpressionToRequestedSubpaths(t *testing.T) {
	source := &fakeSource{
		rootMapping: map[string][]string{
			"/r": {"pkg-a", "pkg-b"},
		},
		response: watch.QueryResponse{
			IsFreshInstance: true,
			Clock:           index.ClockSpec{Kind: index.ClockLocal, Clock: "c1"},
		},
	}

	_, err := Crawl(context.Background(), index.New(), source, Options{
		Roots:   []string{"/r/pkg-a", "/r/pkg-b"},
		RootDir: "/r",
	})
	if err != nil {
		t.Fatal("Crawl failed:", err)
	}

	expression := source.seenExpressions["/r"]
	if !reflect.DeepEqual(expression.DirPrefixes, []string{"pkg-a", "pkg-b"}) {
		t.Errorf("expected DirPrefixes [pkg-a pkg-b], got %v", expression.DirPrefixes)
	}
}

func TestCrawlLeavesExpressionUnconstrainedForWholeRootWatch(t *testing.T) {
	source := &fakeSource{
		response: watch.QueryResponse{
			IsFreshInstance: true,
			Clock:           index.ClockSpec{Kind: index.ClockLocal, Clock: "c1"},
		},
	}

	_, err := Crawl(context.Background(), index.New(), source, Options{
		Roots:   []string{"/r"},
		RootDir: "/r",
	})
	if err != nil {
		t.Fatal("Crawl failed:", err)
	}

	expression := source.seenExpressions["/r"]
	if len(expression.DirPrefixes) != 0 {
		t.Errorf("expected no DirPrefixes constraint for a whole-root watch, got %v", expression.DirPrefixes)
	}
}

func TestCrawlFailurePropagates(t *testing.T) {
	source := &fakeSource{queryErr: context.Canceled}
	_, err := Crawl(context.Background(), index.New(), source, Options{
		Roots:   []string{"/r"},
		RootDir: "/r",
	})
	if err == nil {
		t.Error("expected crawl failure to propagate")
	}
}
