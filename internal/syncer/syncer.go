// internal/syncer/syncer.go
package syncer

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jackc/pgx/v5"
	"golang.org/x/sync/errgroup"

	"maven-indexer/internal/database"
	custom_errors "maven-indexer/internal/errors"
	"maven-indexer/internal/metrics"
	"maven-indexer/internal/model"
	"maven-indexer/internal/pipeline"
)

const (
	DefaultConcurrency   = 5
	DefaultIndexAttempts = 3
	DefaultSyncAttempts  = 2
	DefaultRetryInterval = 30 * time.Second
	defaultQueueSize     = 1024
)

// Runner executes one indexing run.
type Runner interface {
	Run(ctx context.Context, repo *model.Repository) (pipeline.Result, error)
	NeedsReindex(repo *model.Repository) bool
}

// Options configures the worker pool.
type Options struct {
	Concurrency   int
	IndexAttempts int
	SyncAttempts  int
	// RetryInterval is the first wait between attempts; later waits grow exponentially.
	RetryInterval   time.Duration
	ReindexInterval time.Duration
	QueueSize       int
}

// RepositoryInput describes a repository registered through a sync request.
type RepositoryInput struct {
	Name      string `json:"name"`
	URL       string `json:"url"`
	Ecosystem string `json:"ecosystem"`
}

// Syncer is the job queue in front of the pipeline. Index jobs are keyed by repository
// name; a name that is already queued or running is not queued twice.
type Syncer struct {
	q        database.Querier
	runner   Runner
	recorder metrics.Recorder
	logger   *slog.Logger
	opts     Options
	now      func() time.Time

	jobs    chan string
	mu      sync.Mutex
	pending map[string]struct{}
}

// NewSyncer creates a new Syncer instance.
func NewSyncer(q database.Querier, runner Runner, recorder metrics.Recorder, logger *slog.Logger, opts Options) *Syncer {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.IndexAttempts <= 0 {
		opts.IndexAttempts = DefaultIndexAttempts
	}
	if opts.SyncAttempts <= 0 {
		opts.SyncAttempts = DefaultSyncAttempts
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = DefaultRetryInterval
	}
	if opts.ReindexInterval <= 0 {
		opts.ReindexInterval = model.DefaultReindexInterval
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	return &Syncer{
		q:        q,
		runner:   runner,
		recorder: recorder,
		logger:   logger,
		opts:     opts,
		now:      time.Now,
		jobs:     make(chan string, opts.QueueSize),
		pending:  make(map[string]struct{}),
	}
}

// Start runs the workers until ctx is cancelled.
func (s *Syncer) Start(ctx context.Context) {
	s.logger.Info("Starting syncer", "concurrency", s.opts.Concurrency, "index_attempts", s.opts.IndexAttempts)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < s.opts.Concurrency; i++ {
		worker := i
		g.Go(func() error {
			s.work(gctx, worker)
			return nil
		})
	}
	_ = g.Wait()
	s.logger.Info("Syncer shutting down", "reason", ctx.Err())
}

// Enqueue queues an index job for the named repository. It reports false when the
// repository is already pending or the queue is full.
func (s *Syncer) Enqueue(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.pending[name]; ok {
		s.logger.Debug("Repository already queued", "repository", name)
		return false
	}
	select {
	case s.jobs <- name:
		s.pending[name] = struct{}{}
		return true
	default:
		s.logger.Warn("Job queue is full, dropping index job", "repository", name)
		return false
	}
}

// Pending returns the number of queued or running index jobs.
func (s *Syncer) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// RunSyncCycle queues every repository that was never indexed or is older than the
// reindex interval. It returns the number of jobs queued.
func (s *Syncer) RunSyncCycle(ctx context.Context) (int, error) {
	s.logger.Info("Starting new sync cycle")

	due, err := retry(ctx, s.opts.SyncAttempts, s.opts.RetryInterval, func() ([]model.Repository, error) {
		return s.q.ListRepositoriesDueForIndexing(ctx, database.ListRepositoriesDueForIndexingParams{
			IndexedBefore: s.now().Add(-s.opts.ReindexInterval),
		})
	}, func(attempt int, err error) {
		s.recorder.IncJobRetry("sync")
		s.logger.Warn("Listing due repositories failed, retrying", "attempt", attempt, "error", err)
	})
	if err != nil {
		s.logger.Error("Sync cycle failed", "error", err)
		return 0, err
	}

	queued := 0
	for _, repo := range due {
		if s.Enqueue(repo.Name) {
			queued++
		}
	}
	s.logger.Info("Sync cycle finished", "due", len(due), "queued", queued)
	return queued, nil
}

// SyncRepositories registers the given repositories and queues those that need indexing.
func (s *Syncer) SyncRepositories(ctx context.Context, inputs []RepositoryInput) ([]model.Repository, error) {
	repos := make([]model.Repository, 0, len(inputs))
	for _, in := range inputs {
		name := strings.TrimSpace(in.Name)
		url := strings.TrimSpace(in.URL)
		if name == "" || url == "" {
			return repos, &custom_errors.ErrInvalidRepository{Name: in.Name, URL: in.URL}
		}
		repo, err := s.q.UpsertRepository(ctx, database.UpsertRepositoryParams{
			Name:      name,
			URL:       url,
			Ecosystem: in.Ecosystem,
		})
		if err != nil {
			return repos, err
		}
		if s.runner.NeedsReindex(&repo) {
			s.Enqueue(repo.Name)
		}
		repos = append(repos, repo)
	}
	return repos, nil
}

func (s *Syncer) work(ctx context.Context, worker int) {
	for {
		select {
		case <-ctx.Done():
			return
		case name := <-s.jobs:
			s.process(ctx, worker, name)
		}
	}
}

func (s *Syncer) process(ctx context.Context, worker int, name string) {
	defer s.done(name)
	logger := s.logger.With("repository", name, "worker", worker)

	result, err := s.indexRepository(ctx, logger, name)
	switch {
	case err == nil:
		logger.Info("Index job finished", "run_id", result.RunID, "packages", result.PackageCount)
	case errors.Is(err, context.Canceled):
	default:
		logger.Error("Index job failed", "error", err)
	}
}

// indexRepository reloads the repository and runs the pipeline with the index job retry policy.
// Missing repositories and runs blocked by another holder of the lock are not retried.
func (s *Syncer) indexRepository(ctx context.Context, logger *slog.Logger, name string) (pipeline.Result, error) {
	return retry(ctx, s.opts.IndexAttempts, s.opts.RetryInterval, func() (pipeline.Result, error) {
		repo, err := s.q.GetRepositoryByName(ctx, name)
		if errors.Is(err, pgx.ErrNoRows) {
			return pipeline.Result{}, backoff.Permanent(&custom_errors.ErrRepositoryNotFound{Name: name})
		}
		if err != nil {
			return pipeline.Result{}, err
		}

		result, err := s.runner.Run(ctx, &repo)
		var inProgress *custom_errors.RunInProgressError
		if errors.As(err, &inProgress) {
			return result, backoff.Permanent(err)
		}
		return result, err
	}, func(attempt int, err error) {
		s.recorder.IncJobRetry("index")
		logger.Warn("Index job attempt failed, retrying", "attempt", attempt, "error", err)
	})
}

func (s *Syncer) done(name string) {
	s.mu.Lock()
	delete(s.pending, name)
	s.mu.Unlock()
}

// retry runs op up to attempts times with exponential backoff starting at interval.
// onRetry is called before every wait.
func retry[T any](ctx context.Context, attempts int, interval time.Duration, op func() (T, error), onRetry func(int, error)) (T, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = interval
	b.MaxInterval = 10 * interval
	b.Reset()

	attempt := 0
	v, err := backoff.Retry(ctx, func() (T, error) {
		attempt++
		return op()
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(attempts)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, _ time.Duration) { onRetry(attempt, err) }),
	)
	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		err = permanent.Unwrap()
	}
	return v, err
}
