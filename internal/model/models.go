// internal/model/models.go
package model

import (
	"database/sql"
	"strings"
	"time"
)

const (
	// IndexFileName is the name of the compressed index below {url}/.index/.
	IndexFileName = "nexus-maven-repository-index.gz"
	// PropertiesFileName is the descriptor published next to the compressed index.
	PropertiesFileName = "nexus-maven-repository-index.properties"

	// DefaultReindexInterval is used when no interval is configured.
	DefaultReindexInterval = 24 * time.Hour
)

// Repository is one Maven repository whose index is mirrored into the catalog.
type Repository struct {
	ID                   int64
	Name                 string
	URL                  string
	Ecosystem            string
	Status               Status
	LastIndexedAt        sql.NullTime
	ErrorMessage         sql.NullString
	PackageCount         int
	IndexSizeBytes       int64
	IndexTimestamp       sql.NullString
	IndexChainID         sql.NullString
	LastIncrementalChunk sql.NullInt64
	DBCreatedAt          time.Time
	DBUpdatedAt          time.Time
}

// IndexURL returns the location of the compressed index for this repository.
func (r *Repository) IndexURL() string {
	return strings.TrimRight(r.URL, "/") + "/.index/" + IndexFileName
}

// PropertiesURL returns the location of the index properties descriptor.
func (r *Repository) PropertiesURL() string {
	return strings.TrimRight(r.URL, "/") + "/.index/" + PropertiesFileName
}

// NeedsReindex reports whether the repository was never indexed or was last indexed
// longer than interval ago. A non-positive interval falls back to DefaultReindexInterval.
func (r *Repository) NeedsReindex(now time.Time, interval time.Duration) bool {
	if interval <= 0 {
		interval = DefaultReindexInterval
	}
	if !r.LastIndexedAt.Valid {
		return true
	}
	return r.LastIndexedAt.Time.Before(now.Add(-interval))
}

// PackageName returns the coordinate used as the package name.
func PackageName(groupID, artifactID string) string {
	return groupID + ":" + artifactID
}

// RecentVersion is a version joined with its package name, used by the recent-changes listing.
type RecentVersion struct {
	Package      string    `json:"package"`
	Version      string    `json:"version"`
	LastModified time.Time `json:"updated_at"`
}
