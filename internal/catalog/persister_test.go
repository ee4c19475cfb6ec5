// internal/catalog/persister_test.go
package catalog

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"maven-indexer/internal/database"
	custom_errors "maven-indexer/internal/errors"
	"maven-indexer/internal/maven"
)

// MockWriter is a mock of the catalogWriter interface.
type MockWriter struct {
	mock.Mock
}

func (m *MockWriter) UpsertPackage(ctx context.Context, arg database.UpsertPackageParams) (int64, error) {
	args := m.Called(ctx, arg)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockWriter) UpsertVersion(ctx context.Context, arg database.UpsertVersionParams) error {
	args := m.Called(ctx, arg)
	return args.Error(0)
}

func TestPersister_Persist(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	ctx := context.Background()
	now := time.Date(2025, 11, 21, 10, 0, 0, 0, time.UTC)

	records := []maven.PackageRecord{
		{
			Coordinate: "org.test:lib",
			GroupID:    "org.test",
			ArtifactID: "lib",
			Versions: []maven.VersionRecord{
				{Number: "1.0", Packaging: "jar"},
				{Number: "1.1", Packaging: "jar"},
			},
		},
		{
			Coordinate: "org.test:bom",
			GroupID:    "org.test",
			ArtifactID: "bom",
			Versions:   []maven.VersionRecord{{Number: "1.0", Packaging: "pom"}},
		},
	}

	t.Run("upserts every package and version with the call time", func(t *testing.T) {
		mockW := new(MockWriter)
		p := &Persister{logger: logger, now: func() time.Time { return now }}

		mockW.On("UpsertPackage", ctx, database.UpsertPackageParams{
			RepositoryID: 7, Name: "org.test:lib", GroupID: "org.test", ArtifactID: "lib", LastModified: now,
		}).Return(int64(100), nil).Once()
		mockW.On("UpsertPackage", ctx, database.UpsertPackageParams{
			RepositoryID: 7, Name: "org.test:bom", GroupID: "org.test", ArtifactID: "bom", LastModified: now,
		}).Return(int64(101), nil).Once()
		mockW.On("UpsertVersion", ctx, database.UpsertVersionParams{PackageID: 100, Number: "1.0", Packaging: "jar", LastModified: now}).Return(nil).Once()
		mockW.On("UpsertVersion", ctx, database.UpsertVersionParams{PackageID: 100, Number: "1.1", Packaging: "jar", LastModified: now}).Return(nil).Once()
		mockW.On("UpsertVersion", ctx, database.UpsertVersionParams{PackageID: 101, Number: "1.0", Packaging: "pom", LastModified: now}).Return(nil).Once()

		stats, err := p.persist(ctx, mockW, 7, records)

		require.NoError(t, err)
		assert.Equal(t, Stats{Packages: 2, Versions: 3}, stats)
		mockW.AssertExpectations(t)
	})

	t.Run("a failed package write aborts the remaining writes", func(t *testing.T) {
		mockW := new(MockWriter)
		p := &Persister{logger: logger, now: func() time.Time { return now }}
		dbError := errors.New("unexpected database error")

		mockW.On("UpsertPackage", ctx, mock.Anything).Return(int64(0), dbError).Once()

		_, err := p.persist(ctx, mockW, 7, records)

		var persistErr *custom_errors.PersistenceError
		require.ErrorAs(t, err, &persistErr)
		assert.ErrorIs(t, err, dbError)
		assert.Contains(t, persistErr.Op, "org.test:lib")
		mockW.AssertExpectations(t)
		mockW.AssertNotCalled(t, "UpsertVersion", mock.Anything, mock.Anything)
	})

	t.Run("a failed version write aborts the remaining writes", func(t *testing.T) {
		mockW := new(MockWriter)
		p := &Persister{logger: logger, now: func() time.Time { return now }}
		dbError := errors.New("value too long")

		mockW.On("UpsertPackage", ctx, mock.Anything).Return(int64(100), nil).Once()
		mockW.On("UpsertVersion", ctx, mock.Anything).Return(dbError).Once()

		_, err := p.persist(ctx, mockW, 7, records)

		var persistErr *custom_errors.PersistenceError
		require.ErrorAs(t, err, &persistErr)
		assert.Equal(t, "upsert version org.test:lib:1.0", persistErr.Op)
		mockW.AssertNumberOfCalls(t, "UpsertPackage", 1)
		mockW.AssertNumberOfCalls(t, "UpsertVersion", 1)
	})

	t.Run("no records writes nothing", func(t *testing.T) {
		mockW := new(MockWriter)
		p := &Persister{logger: logger, now: func() time.Time { return now }}

		stats, err := p.persist(ctx, mockW, 7, nil)

		require.NoError(t, err)
		assert.Equal(t, Stats{}, stats)
		mockW.AssertNotCalled(t, "UpsertPackage", mock.Anything, mock.Anything)
	})
}
