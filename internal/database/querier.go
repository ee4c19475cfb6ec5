// internal/database/querier.go
package database

import (
	"context"

	"maven-indexer/internal/model"
)

// Querier is the catalog store used by the pipeline, the syncer and the API.
type Querier interface {
	GetRepositoryByName(ctx context.Context, name string) (model.Repository, error)
	ListRepositories(ctx context.Context) ([]model.Repository, error)
	ListRepositoriesDueForIndexing(ctx context.Context, arg ListRepositoriesDueForIndexingParams) ([]model.Repository, error)
	UpsertRepository(ctx context.Context, arg UpsertRepositoryParams) (model.Repository, error)
	UpdateRepositoryState(ctx context.Context, repo *model.Repository) error

	UpsertPackage(ctx context.Context, arg UpsertPackageParams) (int64, error)
	UpsertVersion(ctx context.Context, arg UpsertVersionParams) error
	ListPackageNames(ctx context.Context, repositoryID int64) ([]string, error)
	ListRecentVersions(ctx context.Context, arg ListRecentVersionsParams) ([]model.RecentVersion, error)

	CountRepositoriesByStatus(ctx context.Context) ([]StatusCount, error)
	CountPackages(ctx context.Context) (int64, error)
	CountVersions(ctx context.Context) (int64, error)
}
