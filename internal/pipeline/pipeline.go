// internal/pipeline/pipeline.go
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"time"

	"github.com/google/uuid"

	"maven-indexer/internal/catalog"
	"maven-indexer/internal/events"
	"maven-indexer/internal/exporter"
	"maven-indexer/internal/maven"
	"maven-indexer/internal/metrics"
	"maven-indexer/internal/model"
)

// DefaultWorkRoot is the shared directory holding per-repository work directories.
const DefaultWorkRoot = "tmp/maven-indexes"

const stateWriteTimeout = 10 * time.Second

// Stage names reported to the metrics recorder.
const (
	StageFetch   = "fetch"
	StageConvert = "convert"
	StageParse   = "parse"
	StagePersist = "persist"
)

type IndexFetcher interface {
	FetchIndex(ctx context.Context, url, destPath string) (int64, error)
	FetchProperties(ctx context.Context, url string) (*maven.IndexProperties, error)
}

type CatalogPersister interface {
	Persist(ctx context.Context, repositoryID int64, records []maven.PackageRecord) (catalog.Stats, error)
}

// StateStore writes the repository status columns.
type StateStore interface {
	UpdateRepositoryState(ctx context.Context, repo *model.Repository) error
}

// Locker guards a repository against concurrent runs. The returned func releases the lock.
type Locker interface {
	Lock(ctx context.Context, repo *model.Repository) (func(), error)
}

type DirCleaner interface {
	CleanDir(dir string) (bool, error)
}

// Archiver keeps a copy of a downloaded index outside the work directory.
type Archiver interface {
	Archive(ctx context.Context, repository, localPath string) (string, error)
}

// Options is built once from the service configuration.
type Options struct {
	WorkRoot        string
	ReindexInterval time.Duration
	// KeepFiles skips the post-success cleanup of the work directory.
	KeepFiles bool
}

// Deps are the collaborators of a Pipeline. Locker, Archiver, Metrics and Events are optional.
type Deps struct {
	Fetcher   IndexFetcher
	Converter exporter.Converter
	Persister CatalogPersister
	State     StateStore
	Cleaner   DirCleaner
	Locker    Locker
	Archiver  Archiver
	Metrics   metrics.Recorder
	Events    events.Publisher
}

// Result summarises a successful run.
type Result struct {
	RunID          string
	PackageCount   int
	VersionCount   int
	IndexSizeBytes int64
}

// Pipeline runs the indexing sequence for one repository at a time per call.
type Pipeline struct {
	deps   Deps
	opts   Options
	logger *slog.Logger
	now    func() time.Time
}

func New(deps Deps, opts Options, logger *slog.Logger) *Pipeline {
	if opts.WorkRoot == "" {
		opts.WorkRoot = DefaultWorkRoot
	}
	if opts.ReindexInterval <= 0 {
		opts.ReindexInterval = model.DefaultReindexInterval
	}
	if deps.Locker == nil {
		deps.Locker = noLock{}
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NoopRecorder{}
	}
	if deps.Events == nil {
		deps.Events = events.NoopPublisher{}
	}
	return &Pipeline{deps: deps, opts: opts, logger: logger, now: time.Now}
}

// NeedsReindex reports whether repo was never indexed or is older than the reindex interval.
func (p *Pipeline) NeedsReindex(repo *model.Repository) bool {
	return repo.NeedsReindex(p.now(), p.opts.ReindexInterval)
}

// WorkDir returns the work directory used for repo.
func (p *Pipeline) WorkDir(repo *model.Repository) string {
	return filepath.Join(p.opts.WorkRoot, dirName(repo))
}

// Run indexes repo. On failure the repository is marked failed, the work directory is
// cleaned up and the original error is returned.
func (p *Pipeline) Run(ctx context.Context, repo *model.Repository) (Result, error) {
	result := Result{RunID: uuid.NewString()}
	logger := p.logger.With("repository", repo.Name, "run_id", result.RunID)
	started := p.now()

	unlock, err := p.deps.Locker.Lock(ctx, repo)
	if err != nil {
		logger.Warn("Skipping indexing run", "error", err)
		p.deps.Metrics.ObserveRun(metrics.OutcomeSkipped, p.now().Sub(started))
		return result, err
	}
	defer unlock()

	logger.Info("Starting indexing run", "url", repo.URL)

	repo.MarkIndexing()
	if err := p.deps.State.UpdateRepositoryState(ctx, repo); err != nil {
		return result, p.fail(ctx, logger, repo, result, "", fmt.Errorf("mark repository indexing: %w", err), started)
	}

	workDir := p.WorkDir(repo)
	if err := os.MkdirAll(workDir, 0o750); err != nil {
		return result, p.fail(ctx, logger, repo, result, "", fmt.Errorf("create work directory: %w", err), started)
	}

	var props *maven.IndexProperties
	err = p.stage(StageFetch, func() error {
		n, err := p.deps.Fetcher.FetchIndex(ctx, repo.IndexURL(), exporter.IndexPath(workDir))
		if err != nil {
			return err
		}
		result.IndexSizeBytes = n
		return nil
	})
	if err != nil {
		return result, p.fail(ctx, logger, repo, result, workDir, err, started)
	}
	logger.Info("Downloaded index", "bytes", result.IndexSizeBytes)

	props, err = p.deps.Fetcher.FetchProperties(ctx, repo.PropertiesURL())
	if err != nil {
		logger.Warn("Could not fetch index properties", "error", err)
	}
	p.archive(ctx, logger, repo, workDir)

	var dumpPath string
	err = p.stage(StageConvert, func() error {
		var err error
		dumpPath, err = p.deps.Converter.Convert(ctx, workDir)
		return err
	})
	if err != nil {
		return result, p.fail(ctx, logger, repo, result, workDir, err, started)
	}

	var records []maven.PackageRecord
	err = p.stage(StageParse, func() error {
		var err error
		records, err = maven.ParseDumpFile(dumpPath)
		return err
	})
	if err != nil {
		return result, p.fail(ctx, logger, repo, result, workDir, err, started)
	}
	result.PackageCount = len(records)
	logger.Info("Parsed index dump", "packages", result.PackageCount, "versions", maven.CountVersions(records))

	var stats catalog.Stats
	err = p.stage(StagePersist, func() error {
		var err error
		stats, err = p.deps.Persister.Persist(ctx, repo.ID, records)
		return err
	})
	if err != nil {
		return result, p.fail(ctx, logger, repo, result, workDir, err, started)
	}
	result.VersionCount = stats.Versions

	err = repo.MarkCompleted(p.now().UTC(), model.CompletionStats{
		PackageCount:   &result.PackageCount,
		IndexSizeBytes: &result.IndexSizeBytes,
		Provenance:     props.Provenance(),
	})
	if err == nil {
		err = p.deps.State.UpdateRepositoryState(ctx, repo)
	}
	if err != nil {
		return result, p.fail(ctx, logger, repo, result, workDir, fmt.Errorf("mark repository completed: %w", err), started)
	}

	if !p.opts.KeepFiles {
		p.cleanup(logger, workDir)
	}

	p.deps.Metrics.SetPackageCount(repo.Name, result.PackageCount)
	p.deps.Metrics.ObserveRun(metrics.OutcomeCompleted, p.now().Sub(started))
	indexed := events.RunEvent{
		Type:         events.TypeIndexed,
		RunID:        result.RunID,
		Repository:   repo.Name,
		Status:       string(repo.Status),
		PackageCount: result.PackageCount,
		VersionCount: result.VersionCount,
	}
	if props != nil {
		indexed.IncrementalChunks = props.IncrementalChunks
	}
	p.publish(ctx, logger, indexed)

	logger.Info("Successfully indexed repository",
		"packages", result.PackageCount,
		"versions", result.VersionCount,
		"duration", p.now().Sub(started).String(),
	)
	return result, nil
}

// fail records err on repo and returns it unchanged. State is written with a context that
// survives cancellation of the run.
func (p *Pipeline) fail(ctx context.Context, logger *slog.Logger, repo *model.Repository, result Result, workDir string, err error, started time.Time) error {
	logger.Error("Indexing run failed", "error", err)

	repo.MarkFailed(err)
	stateCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), stateWriteTimeout)
	defer cancel()
	if werr := p.deps.State.UpdateRepositoryState(stateCtx, repo); werr != nil {
		logger.Error("Failed to record repository failure", "error", werr)
	}

	if workDir != "" {
		p.cleanup(logger, workDir)
	}

	p.deps.Metrics.ObserveRun(metrics.OutcomeFailed, p.now().Sub(started))
	p.publish(stateCtx, logger, events.RunEvent{
		Type:       events.TypeFailed,
		RunID:      result.RunID,
		Repository: repo.Name,
		Status:     string(repo.Status),
		Error:      err.Error(),
	})
	return err
}

func (p *Pipeline) stage(name string, fn func() error) error {
	start := p.now()
	err := fn()
	p.deps.Metrics.ObserveStage(name, p.now().Sub(start), err)
	return err
}

func (p *Pipeline) archive(ctx context.Context, logger *slog.Logger, repo *model.Repository, workDir string) {
	if p.deps.Archiver == nil {
		return
	}
	key, err := p.deps.Archiver.Archive(ctx, repo.Name, exporter.IndexPath(workDir))
	if err != nil {
		logger.Warn("Could not archive index", "error", err)
		return
	}
	logger.Debug("Archived index", "key", key)
}

func (p *Pipeline) cleanup(logger *slog.Logger, workDir string) {
	if p.deps.Cleaner == nil {
		return
	}
	if _, err := p.deps.Cleaner.CleanDir(workDir); err != nil {
		logger.Warn("Failed to clean up work directory", "path", workDir, "error", err)
	}
}

func (p *Pipeline) publish(ctx context.Context, logger *slog.Logger, ev events.RunEvent) {
	ev.OccurredAt = p.now().UTC()
	if err := p.deps.Events.Publish(ctx, ev); err != nil {
		logger.Warn("Failed to publish run event", "type", ev.Type, "error", err)
	}
}

var unsafeDirChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// dirName is prefixed with the repository ID so that names differing only in
// unsafe characters never share a directory.
func dirName(repo *model.Repository) string {
	id := strconv.FormatInt(repo.ID, 10)
	name := unsafeDirChars.ReplaceAllString(repo.Name, "_")
	if name == "" {
		return id
	}
	return id + "-" + name
}

type noLock struct{}

func (noLock) Lock(context.Context, *model.Repository) (func(), error) {
	return func() {}, nil
}
