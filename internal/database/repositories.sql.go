// internal/database/repositories.sql.go
package database

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"maven-indexer/internal/model"
)

const repositoryColumns = `id, name, url, ecosystem, status, last_indexed_at, error_message,
	package_count, index_size_bytes, index_timestamp, index_chain_id, last_incremental_chunk,
	created_at, updated_at`

func scanRepository(row pgx.Row) (model.Repository, error) {
	var r model.Repository
	err := row.Scan(
		&r.ID,
		&r.Name,
		&r.URL,
		&r.Ecosystem,
		&r.Status,
		&r.LastIndexedAt,
		&r.ErrorMessage,
		&r.PackageCount,
		&r.IndexSizeBytes,
		&r.IndexTimestamp,
		&r.IndexChainID,
		&r.LastIncrementalChunk,
		&r.DBCreatedAt,
		&r.DBUpdatedAt,
	)
	return r, err
}

func collectRepositories(rows pgx.Rows) ([]model.Repository, error) {
	defer rows.Close()
	var items []model.Repository
	for rows.Next() {
		r, err := scanRepository(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, r)
	}
	return items, rows.Err()
}

const getRepositoryByName = `SELECT ` + repositoryColumns + ` FROM repositories WHERE name = $1`

func (q *Queries) GetRepositoryByName(ctx context.Context, name string) (model.Repository, error) {
	return scanRepository(q.db.QueryRow(ctx, getRepositoryByName, name))
}

const listRepositories = `SELECT ` + repositoryColumns + ` FROM repositories ORDER BY name ASC`

func (q *Queries) ListRepositories(ctx context.Context) ([]model.Repository, error) {
	rows, err := q.db.Query(ctx, listRepositories)
	if err != nil {
		return nil, err
	}
	return collectRepositories(rows)
}

const listRepositoriesDueForIndexing = `SELECT ` + repositoryColumns + ` FROM repositories
WHERE last_indexed_at IS NULL OR last_indexed_at < $1
ORDER BY last_indexed_at ASC NULLS FIRST, name ASC`

type ListRepositoriesDueForIndexingParams struct {
	IndexedBefore time.Time
}

func (q *Queries) ListRepositoriesDueForIndexing(ctx context.Context, arg ListRepositoriesDueForIndexingParams) ([]model.Repository, error) {
	rows, err := q.db.Query(ctx, listRepositoriesDueForIndexing, arg.IndexedBefore)
	if err != nil {
		return nil, err
	}
	return collectRepositories(rows)
}

const upsertRepository = `INSERT INTO repositories (name, url, ecosystem, status)
VALUES ($1, $2, $3, 'pending')
ON CONFLICT (name) DO UPDATE SET
	url = EXCLUDED.url,
	ecosystem = EXCLUDED.ecosystem,
	updated_at = NOW()
RETURNING ` + repositoryColumns

type UpsertRepositoryParams struct {
	Name      string
	URL       string
	Ecosystem string
}

// UpsertRepository registers a repository. New rows start as pending; existing rows keep their status.
func (q *Queries) UpsertRepository(ctx context.Context, arg UpsertRepositoryParams) (model.Repository, error) {
	if arg.Ecosystem == "" {
		arg.Ecosystem = "maven"
	}
	return scanRepository(q.db.QueryRow(ctx, upsertRepository, arg.Name, arg.URL, arg.Ecosystem))
}

const updateRepositoryState = `UPDATE repositories SET
	status = $2,
	last_indexed_at = $3,
	error_message = $4,
	package_count = $5,
	index_size_bytes = $6,
	index_timestamp = $7,
	index_chain_id = $8,
	last_incremental_chunk = $9,
	updated_at = NOW()
WHERE id = $1
RETURNING updated_at`

// UpdateRepositoryState writes the lifecycle fields of repo and refreshes its DBUpdatedAt.
func (q *Queries) UpdateRepositoryState(ctx context.Context, repo *model.Repository) error {
	return q.db.QueryRow(ctx, updateRepositoryState,
		repo.ID,
		repo.Status,
		repo.LastIndexedAt,
		repo.ErrorMessage,
		repo.PackageCount,
		repo.IndexSizeBytes,
		repo.IndexTimestamp,
		repo.IndexChainID,
		repo.LastIncrementalChunk,
	).Scan(&repo.DBUpdatedAt)
}

const countRepositoriesByStatus = `SELECT status, COUNT(*) FROM repositories GROUP BY status ORDER BY status`

type StatusCount struct {
	Status model.Status
	Count  int64
}

func (q *Queries) CountRepositoriesByStatus(ctx context.Context) ([]StatusCount, error) {
	rows, err := q.db.Query(ctx, countRepositoriesByStatus)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []StatusCount
	for rows.Next() {
		var i StatusCount
		if err := rows.Scan(&i.Status, &i.Count); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}
