// Package builder orchestrates a single incremental build: load the prior
// cache, crawl for changes, dispatch per-file workers, reconcile the
// results into the module-name table, and persist the outcome. A Builder
// runs its build exactly once; repeated calls to Build return the same
// resolved index.
package builder

import (
	"context"
	"errors"
	"os"
	"regexp"
	"sync"

	"github.com/google/uuid"

	"github.com/resetmerlin/hastemap/pkg/hastemap/cachestore"
	"github.com/resetmerlin/hastemap/pkg/hastemap/crawl"
	"github.com/resetmerlin/hastemap/pkg/hastemap/fingerprint"
	"github.com/resetmerlin/hastemap/pkg/hastemap/index"
	"github.com/resetmerlin/hastemap/pkg/hastemap/pathutil"
	"github.com/resetmerlin/hastemap/pkg/hastemap/pool"
	"github.com/resetmerlin/hastemap/pkg/hastemap/reconcile"
	"github.com/resetmerlin/hastemap/pkg/hastemap/watch"
	"github.com/resetmerlin/hastemap/pkg/hastemap/worker"
	"github.com/resetmerlin/hastemap/pkg/identifier"
	"github.com/resetmerlin/hastemap/pkg/logging"
	"github.com/resetmerlin/hastemap/pkg/state"
)

// Builder is a single-shot haste map build. Construct with New, then call
// Build exactly as many times as convenient — only the first call does any
// work.
type Builder struct {
	cfg        *normalized
	source     watch.Source
	logger     *logging.Logger
	instanceID string
	cachePath  string
	reader     worker.Reader

	once   sync.Once
	lock   *state.TrackingLock
	result *index.HasteIndex
	err    error

	tracker *state.Tracker
	// baseline is the tracker's index as of construction, before any build
	// has completed; Wait blocks until the tracker advances past it.
	baseline uint64
}

// New validates config and constructs a Builder bound to source (the
// capability that answers "what changed").
func New(config Config, source watch.Source, logger *logging.Logger) (*Builder, error) {
	cfg, err := config.normalize()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.RootLogger.Sublogger("hastemap")
	}

	instanceID, err := identifier.New(identifier.PrefixBuilder)
	if err != nil {
		return nil, err
	}
	logger = logger.Sublogger(instanceID)

	extra := append([]string{cfg.rootDir}, cfg.roots...)
	cachePath := cachestore.Path(cfg.cacheDirectory, cfg.id, extra)

	tracker := state.NewTracker()
	baseline, _ := tracker.WaitForChange(context.Background(), 0)

	return &Builder{
		cfg:        cfg,
		source:     source,
		logger:     logger,
		instanceID: instanceID,
		cachePath:  cachePath,
		reader:     worker.OSReader{},
		lock:       state.NewTrackingLock(tracker),
		tracker:    tracker,
		baseline:   baseline,
	}, nil
}

// Build runs the build on its first call and memoizes the outcome; every
// subsequent call (from this or any other goroutine) returns the same
// resolved index or error without doing any further work.
func (b *Builder) Build(ctx context.Context) (*index.HasteIndex, error) {
	b.once.Do(func() {
		b.run(ctx)
	})
	b.lock.Lock()
	defer b.lock.UnlockWithoutNotify()
	return b.result, b.err
}

// Wait blocks until the build started by some call to Build (from this or
// another goroutine) completes, without itself triggering a build. It's the
// "ready"/"error" event surface: a caller that only wants to observe the
// outcome, not cause it, uses Wait instead of Build.
func (b *Builder) Wait(ctx context.Context) (*index.HasteIndex, error) {
	if _, err := b.tracker.WaitForChange(ctx, b.baseline); err != nil {
		return nil, err
	}
	b.lock.Lock()
	defer b.lock.UnlockWithoutNotify()
	return b.result, b.err
}

func (b *Builder) run(ctx context.Context) {
	// Each run gets its own ephemeral correlation id, distinct from the
	// Builder's stable instanceID, so log lines from concurrent rebuild
	// attempts against the same Builder (which can't happen today, since
	// Build is one-shot, but matters once a caller pools Builders) can be
	// told apart in an aggregator.
	runLogger := b.logger.Sublogger(uuid.NewString())

	if err := ctx.Err(); err != nil {
		b.setResult(nil, &CancelledError{Cause: err})
		return
	}

	previous := index.New()
	if !b.cfg.resetCache {
		previous = cachestore.Load(b.cachePath, runLogger)
	}

	crawlResult, err := crawl.Crawl(ctx, previous, b.source, crawl.Options{
		Roots:       b.cfg.roots,
		RootDir:     b.cfg.rootDir,
		Extensions:  b.cfg.extensions,
		ComputeSHA1: b.cfg.computeSHA1,
	})
	if err != nil {
		b.setResult(nil, &CrawlFailedError{Cause: err})
		return
	}

	filterIgnored(crawlResult, b.cfg.ignorePattern)

	if len(crawlResult.Changed) == 0 && len(crawlResult.Removed) == 0 {
		// The prior index is still authoritative; nothing to reconcile or
		// persist.
		b.setResult(crawlResult.Index, nil)
		return
	}

	idx := crawlResult.Index
	selection := reconcile.Select(idx, crawlResult.Changed, true, crawlResult.Removed, b.cfg.flags.RetainAllFiles)
	reconcile.PrepareIndex(idx, selection.ResetMap)
	reconcile.ApplyRemovals(idx, crawlResult.Removed)
	reconcile.MarkSkipped(idx, selection.Skipped)

	tasks := b.buildTasks(selection.ToProcess, crawlResult.Changed)

	var buildErr error
	for result := range pool.Run(ctx, tasks, b.cfg.maxWorkers, b.cfg.forceInBand) {
		if result.Err != nil {
			if fatal := classifyWorkerError(idx, result.Key, result.Err, runLogger); fatal != nil && buildErr == nil {
				buildErr = fatal
			}
			continue
		}
		if buildErr == nil {
			reconcile.CommitResult(idx, result.Key, result.Value, runLogger)
		}
	}
	if buildErr != nil {
		b.setResult(nil, buildErr)
		return
	}

	if err := cachestore.Store(b.cachePath, idx, runLogger); err != nil {
		b.setResult(nil, err)
		return
	}

	b.setResult(idx, nil)
}

func (b *Builder) buildTasks(paths []string, changed index.Files) []pool.Task[worker.Metadata] {
	tasks := make([]pool.Task[worker.Metadata], 0, len(paths))
	for _, relPath := range paths {
		relPath := relPath

		var crawledSHA1 *fingerprint.Fingerprint
		if meta, ok := changed[relPath]; ok && meta.HasSHA1 {
			sha := meta.SHA1
			crawledSHA1 = &sha
		}

		absPath := pathutil.Join(b.cfg.rootDir, relPath)
		flags := b.cfg.flags
		reader := b.reader
		rootDir := b.cfg.rootDir

		tasks = append(tasks, pool.Task[worker.Metadata]{
			Key: relPath,
			Run: func(ctx context.Context) (worker.Metadata, error) {
				return worker.Process(absPath, rootDir, reader, flags, crawledSHA1)
			},
		})
	}
	return tasks
}

// setResult commits the build outcome and, via the tracking lock's Unlock,
// notifies any goroutine blocked in Wait.
func (b *Builder) setResult(idx *index.HasteIndex, err error) {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.result = idx
	b.err = err
}

// classifyWorkerError decides what a single worker failure means for the
// build as a whole. A nil return means the file was silently dropped; a
// non-nil return is the error the whole build should fail with.
func classifyWorkerError(idx *index.HasteIndex, path string, cause error, logger *logging.Logger) error {
	if errors.Is(cause, context.Canceled) || errors.Is(cause, context.DeadlineExceeded) {
		return &CancelledError{Cause: cause}
	}

	var invalidJSON *worker.InvalidPackageJSONError
	if errors.As(cause, &invalidJSON) {
		return invalidJSON
	}

	var extractorFailure *worker.ExtractorFailureError
	if errors.As(cause, &extractorFailure) {
		return &PluginFailureError{Plugin: "DependencyExtractor", Path: extractorFailure.Path, Cause: extractorFailure.Cause}
	}

	if errors.Is(cause, os.ErrNotExist) || errors.Is(cause, os.ErrPermission) {
		delete(idx.Files, path)
		logger.Warnf("dropping unreadable file %q: %v", path, cause)
		return nil
	}

	return &FileUnreadableError{Path: path, Cause: cause}
}

// filterIgnored removes any path matching pattern from the crawl result, as
// if the watch source had never reported it.
func filterIgnored(result *crawl.Result, pattern *regexp.Regexp) {
	for path := range result.Index.Files {
		if pattern.MatchString(path) {
			delete(result.Index.Files, path)
		}
	}
	for path := range result.Changed {
		if pattern.MatchString(path) {
			delete(result.Changed, path)
		}
	}
	for path := range result.Removed {
		if pattern.MatchString(path) {
			delete(result.Removed, path)
		}
	}
}
