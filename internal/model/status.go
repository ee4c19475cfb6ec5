// internal/model/status.go
package model

import (
	"database/sql"
	"fmt"
	"time"
)

// Status is the indexing lifecycle state of a Repository.
type Status string

const (
	StatusPending   Status = "pending"
	StatusIndexing  Status = "indexing"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Statuses lists every valid status in lifecycle order.
var Statuses = []Status{StatusPending, StatusIndexing, StatusCompleted, StatusFailed}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusIndexing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// ParseStatus converts a stored value into a Status.
func ParseStatus(v string) (Status, error) {
	s := Status(v)
	if !s.Valid() {
		return "", fmt.Errorf("unknown repository status %q", v)
	}
	return s, nil
}

// IllegalTransitionError is returned when a transition is not allowed from the current status.
type IllegalTransitionError struct {
	From Status
	To   Status
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("illegal repository status transition %s -> %s", e.From, e.To)
}

// CompletionStats carries the optional facts recorded when a run completes.
type CompletionStats struct {
	PackageCount   *int
	IndexSizeBytes *int64
	Provenance     *Provenance
}

// Provenance describes which published index a run consumed.
type Provenance struct {
	Timestamp            string
	ChainID              string
	LastIncrementalChunk *int
}

// MarkIndexing moves the repository into indexing from any status and clears the last error.
func (r *Repository) MarkIndexing() {
	r.Status = StatusIndexing
	r.ErrorMessage = sql.NullString{}
}

// MarkCompleted moves an indexing repository to completed.
func (r *Repository) MarkCompleted(now time.Time, stats CompletionStats) error {
	if r.Status != StatusIndexing {
		return &IllegalTransitionError{From: r.Status, To: StatusCompleted}
	}
	r.Status = StatusCompleted
	r.LastIndexedAt = sql.NullTime{Time: now, Valid: true}
	r.ErrorMessage = sql.NullString{}
	if stats.PackageCount != nil {
		r.PackageCount = *stats.PackageCount
	}
	if stats.IndexSizeBytes != nil {
		r.IndexSizeBytes = *stats.IndexSizeBytes
	}
	if p := stats.Provenance; p != nil {
		if p.Timestamp != "" {
			r.IndexTimestamp = sql.NullString{String: p.Timestamp, Valid: true}
		}
		if p.ChainID != "" {
			r.IndexChainID = sql.NullString{String: p.ChainID, Valid: true}
		}
		if p.LastIncrementalChunk != nil {
			r.LastIncrementalChunk = sql.NullInt64{Int64: int64(*p.LastIncrementalChunk), Valid: true}
		}
	}
	return nil
}

// MarkFailed moves the repository to failed from any status and records err.
// LastIndexedAt is left untouched.
func (r *Repository) MarkFailed(err error) {
	r.Status = StatusFailed
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	r.ErrorMessage = sql.NullString{String: msg, Valid: true}
}
