// internal/catalog/persister.go
package catalog

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"maven-indexer/internal/database"
	custom_errors "maven-indexer/internal/errors"
	"maven-indexer/internal/maven"
)

// TxBeginner is satisfied by *pgxpool.Pool.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// catalogWriter is the part of database.Querier the persister writes through.
type catalogWriter interface {
	UpsertPackage(ctx context.Context, arg database.UpsertPackageParams) (int64, error)
	UpsertVersion(ctx context.Context, arg database.UpsertVersionParams) error
}

// Stats counts the rows written by one Persist call.
type Stats struct {
	Packages int
	Versions int
}

// Persister upserts parsed packages and versions into the catalog.
type Persister struct {
	db     TxBeginner
	logger *slog.Logger
	now    func() time.Time
}

func NewPersister(db TxBeginner, logger *slog.Logger) *Persister {
	return &Persister{db: db, logger: logger, now: time.Now}
}

// Persist writes records for repositoryID in a single transaction. Either the whole
// catalog for this run is applied or nothing is.
func (p *Persister) Persist(ctx context.Context, repositoryID int64, records []maven.PackageRecord) (Stats, error) {
	tx, err := p.db.Begin(ctx)
	if err != nil {
		return Stats{}, &custom_errors.PersistenceError{Op: "begin transaction", Err: err}
	}
	defer tx.Rollback(ctx) // Rollback is a no-op if the transaction is already committed.

	stats, err := p.persist(ctx, database.New(tx), repositoryID, records)
	if err != nil {
		return Stats{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Stats{}, &custom_errors.PersistenceError{Op: "commit", Err: err}
	}
	return stats, nil
}

// persist issues the upserts. Every row of this call shares one last_modified timestamp.
func (p *Persister) persist(ctx context.Context, q catalogWriter, repositoryID int64, records []maven.PackageRecord) (Stats, error) {
	logger := p.logger.With("repository_id", repositoryID)
	logger.Info("Saving packages", "count", len(records))

	now := p.now().UTC()
	var stats Stats

	for _, rec := range records {
		packageID, err := q.UpsertPackage(ctx, database.UpsertPackageParams{
			RepositoryID: repositoryID,
			Name:         rec.Coordinate,
			GroupID:      rec.GroupID,
			ArtifactID:   rec.ArtifactID,
			LastModified: now,
		})
		if err != nil {
			return Stats{}, &custom_errors.PersistenceError{Op: "upsert package " + rec.Coordinate, Err: err}
		}
		stats.Packages++

		for _, v := range rec.Versions {
			err := q.UpsertVersion(ctx, database.UpsertVersionParams{
				PackageID:    packageID,
				Number:       v.Number,
				Packaging:    v.Packaging,
				LastModified: now,
			})
			if err != nil {
				return Stats{}, &custom_errors.PersistenceError{Op: "upsert version " + rec.Coordinate + ":" + v.Number, Err: err}
			}
			stats.Versions++
		}
	}

	logger.Info("Packages saved", "packages", stats.Packages, "versions", stats.Versions)
	return stats, nil
}
