//go:build integration

// cmd/service/integration_test.go
package main

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"maven-indexer/internal/catalog"
	"maven-indexer/internal/cleanup"
	"maven-indexer/internal/database"
	custom_errors "maven-indexer/internal/errors"
	"maven-indexer/internal/exporter"
	"maven-indexer/internal/fetcher"
	"maven-indexer/internal/maven"
	"maven-indexer/internal/model"
	"maven-indexer/internal/pipeline"
)

func setupTestDatabase(ctx context.Context, t *testing.T) (*pgxpool.Pool, func()) {
	// Start a postgres container
	pgContainer, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("test-db"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	require.NoError(t, database.Migrate(connStr))

	dbpool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)

	teardown := func() {
		dbpool.Close()
		require.NoError(t, pgContainer.Terminate(ctx))
	}
	return dbpool, teardown
}

// dumpConverter stands in for the exporter container and writes a fixed dump.
type dumpConverter struct {
	dump string
}

func (c dumpConverter) Convert(_ context.Context, workDir string) (string, error) {
	dir := exporter.ExportDir(workDir)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", err
	}
	path := filepath.Join(dir, "index.fld")
	return path, os.WriteFile(path, []byte(c.dump), 0o644)
}

func TestPipeline_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	dbpool, teardown := setupTestDatabase(ctx, t)
	defer teardown()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	q := database.New(dbpool)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/.index/"+model.IndexFileName {
			_, _ = w.Write([]byte("X"))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	workRoot := t.TempDir()
	pl := pipeline.New(pipeline.Deps{
		Fetcher:   fetcher.New(fetcher.Options{RetryInterval: time.Millisecond}, logger),
		Converter: dumpConverter{dump: "doc 0\nname u\nvalue org.test|lib|1.0|NA|jar\ndoc 1\nname u\nvalue org.test|lib|1.0|NA|jar\n"},
		Persister: catalog.NewPersister(dbpool, logger),
		State:     q,
		Cleaner:   cleanup.NewCleaner(workRoot, 0, logger),
		Locker:    database.NewAdvisoryLocker(dbpool, logger),
	}, pipeline.Options{WorkRoot: workRoot}, logger)

	repo, err := q.UpsertRepository(ctx, database.UpsertRepositoryParams{Name: "test-repo", URL: server.URL})
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, repo.Status)
	assert.True(t, pl.NeedsReindex(&repo))

	t.Run("a run persists the catalog and completes the repository", func(t *testing.T) {
		result, err := pl.Run(ctx, &repo)
		require.NoError(t, err)
		assert.Equal(t, 1, result.PackageCount)

		stored, err := q.GetRepositoryByName(ctx, "test-repo")
		require.NoError(t, err)
		assert.Equal(t, model.StatusCompleted, stored.Status)
		assert.Equal(t, 1, stored.PackageCount)
		assert.Equal(t, int64(1), stored.IndexSizeBytes)
		assert.True(t, stored.LastIndexedAt.Valid)
		assert.False(t, stored.ErrorMessage.Valid)
		assert.False(t, pl.NeedsReindex(&stored))

		names, err := q.ListPackageNames(ctx, stored.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{"org.test:lib"}, names)

		recent, err := q.ListRecentVersions(ctx, database.ListRecentVersionsParams{RepositoryID: stored.ID, Since: time.Now().Add(-time.Hour)})
		require.NoError(t, err)
		require.Len(t, recent, 1)
		assert.Equal(t, "1.0", recent[0].Version)
	})

	t.Run("a second run is idempotent", func(t *testing.T) {
		_, err := pl.Run(ctx, &repo)
		require.NoError(t, err)

		packages, err := q.CountPackages(ctx)
		require.NoError(t, err)
		versions, err := q.CountVersions(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), packages)
		assert.Equal(t, int64(1), versions)
	})

	t.Run("a failed row rolls back the whole batch", func(t *testing.T) {
		persister := catalog.NewPersister(dbpool, logger)
		_, err := persister.Persist(ctx, repo.ID, []maven.PackageRecord{
			{Coordinate: "org.new:first", GroupID: "org.new", ArtifactID: "first", Versions: []maven.VersionRecord{{Number: "1", Packaging: "jar"}}},
			{Coordinate: "org.new:bad\x00", GroupID: "org.new", ArtifactID: "bad\x00", Versions: []maven.VersionRecord{{Number: "1", Packaging: "jar"}}},
		})

		var pErr *custom_errors.PersistenceError
		require.ErrorAs(t, err, &pErr)
		packages, err := q.CountPackages(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), packages)
	})

	t.Run("the advisory lock rejects a concurrent run", func(t *testing.T) {
		locker := database.NewAdvisoryLocker(dbpool, logger)
		unlock, err := locker.Lock(ctx, &repo)
		require.NoError(t, err)

		_, err = pl.Run(ctx, &repo)
		var inProgress *custom_errors.RunInProgressError
		require.ErrorAs(t, err, &inProgress)

		stored, err := q.GetRepositoryByName(ctx, "test-repo")
		require.NoError(t, err)
		assert.Equal(t, model.StatusCompleted, stored.Status)

		// IDs that agree in their low 32 bits still take separate locks.
		distant := model.Repository{ID: repo.ID + 1<<32, Name: "distant"}
		unlockDistant, err := locker.Lock(ctx, &distant)
		require.NoError(t, err)
		unlockDistant()

		unlock()
		_, err = pl.Run(ctx, &repo)
		assert.NoError(t, err)
	})

	t.Run("a 404 marks the repository failed", func(t *testing.T) {
		missing, err := q.UpsertRepository(ctx, database.UpsertRepositoryParams{Name: "missing", URL: server.URL + "/missing"})
		require.NoError(t, err)

		_, err = pl.Run(ctx, &missing)
		require.Error(t, err)

		stored, err := q.GetRepositoryByName(ctx, "missing")
		require.NoError(t, err)
		assert.Equal(t, model.StatusFailed, stored.Status)
		assert.Contains(t, stored.ErrorMessage.String, "404")
	})
}
