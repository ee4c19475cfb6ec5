// internal/database/catalog.sql.go
package database

import (
	"context"
	"time"

	"maven-indexer/internal/model"
)

const upsertPackage = `INSERT INTO packages (repository_id, name, group_id, artifact_id, last_modified)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (repository_id, name) DO UPDATE SET
	group_id = EXCLUDED.group_id,
	artifact_id = EXCLUDED.artifact_id,
	last_modified = EXCLUDED.last_modified,
	updated_at = NOW()
RETURNING id`

type UpsertPackageParams struct {
	RepositoryID int64
	Name         string
	GroupID      string
	ArtifactID   string
	LastModified time.Time
}

// UpsertPackage creates or refreshes the package named arg.Name and returns its id.
func (q *Queries) UpsertPackage(ctx context.Context, arg UpsertPackageParams) (int64, error) {
	if arg.Name == "" {
		arg.Name = model.PackageName(arg.GroupID, arg.ArtifactID)
	}
	var id int64
	err := q.db.QueryRow(ctx, upsertPackage,
		arg.RepositoryID,
		arg.Name,
		arg.GroupID,
		arg.ArtifactID,
		arg.LastModified,
	).Scan(&id)
	return id, err
}

const upsertVersion = `INSERT INTO versions (package_id, number, packaging, last_modified)
VALUES ($1, $2, $3, $4)
ON CONFLICT (package_id, number) DO UPDATE SET
	packaging = EXCLUDED.packaging,
	last_modified = EXCLUDED.last_modified,
	updated_at = NOW()`

type UpsertVersionParams struct {
	PackageID    int64
	Number       string
	Packaging    string
	LastModified time.Time
}

func (q *Queries) UpsertVersion(ctx context.Context, arg UpsertVersionParams) error {
	_, err := q.db.Exec(ctx, upsertVersion,
		arg.PackageID,
		arg.Number,
		arg.Packaging,
		arg.LastModified,
	)
	return err
}

const listPackageNames = `SELECT name FROM packages WHERE repository_id = $1 ORDER BY name ASC`

func (q *Queries) ListPackageNames(ctx context.Context, repositoryID int64) ([]string, error) {
	rows, err := q.db.Query(ctx, listPackageNames, repositoryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		items = append(items, name)
	}
	return items, rows.Err()
}

const listRecentVersions = `SELECT p.name, v.number, v.last_modified
FROM versions v
JOIN packages p ON p.id = v.package_id
WHERE p.repository_id = $1 AND v.last_modified >= $2
ORDER BY v.last_modified DESC, p.name ASC, v.number ASC`

type ListRecentVersionsParams struct {
	RepositoryID int64
	Since        time.Time
}

func (q *Queries) ListRecentVersions(ctx context.Context, arg ListRecentVersionsParams) ([]model.RecentVersion, error) {
	rows, err := q.db.Query(ctx, listRecentVersions, arg.RepositoryID, arg.Since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []model.RecentVersion
	for rows.Next() {
		var i model.RecentVersion
		if err := rows.Scan(&i.Package, &i.Version, &i.LastModified); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const countPackages = `SELECT COUNT(*) FROM packages`

func (q *Queries) CountPackages(ctx context.Context) (int64, error) {
	var n int64
	err := q.db.QueryRow(ctx, countPackages).Scan(&n)
	return n, err
}

const countVersions = `SELECT COUNT(*) FROM versions`

func (q *Queries) CountVersions(ctx context.Context) (int64, error) {
	var n int64
	err := q.db.QueryRow(ctx, countVersions).Scan(&n)
	return n, err
}
