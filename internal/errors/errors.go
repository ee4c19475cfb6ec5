// internal/errors/errors.go
package errors

import "fmt"

// DownloadError is returned when the index server answers with a status other than 200.
type DownloadError struct {
	URL        string
	StatusCode int
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("failed to download index from %s: HTTP %d", e.URL, e.StatusCode)
}

// ConnectionError is returned when the index server could not be reached or the request timed out.
type ConnectionError struct {
	URL string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection to %s failed: %v", e.URL, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// ExportError is returned when the external conversion tool fails or produces no dump file.
type ExportError struct {
	ExitCode int64
	Stderr   string
	// Missing is set when the tool exited cleanly but left no .fld file behind.
	Missing bool
	Dir     string
	Err     error
}

func (e *ExportError) Error() string {
	switch {
	case e.Missing:
		return fmt.Sprintf("index export produced no .fld file in %s", e.Dir)
	case e.Err != nil:
		return fmt.Sprintf("index export failed: %v", e.Err)
	default:
		return fmt.Sprintf("index export failed with exit code %d: %s", e.ExitCode, e.Stderr)
	}
}

func (e *ExportError) Unwrap() error {
	return e.Err
}

// IOError is returned when a dump file cannot be opened or read.
type IOError struct {
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("failed to read %s: %v", e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// PersistenceError is returned when a catalog write fails.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("catalog write failed during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// RunInProgressError is returned when another run already holds the repository lock.
type RunInProgressError struct {
	Repository string
}

func (e *RunInProgressError) Error() string {
	return fmt.Sprintf("an indexing run for repository %q is already in progress", e.Repository)
}

// ErrInvalidRepository is returned when a repository registration lacks a name or URL.
type ErrInvalidRepository struct {
	Name string
	URL  string
}

func (e *ErrInvalidRepository) Error() string {
	return fmt.Sprintf("invalid repository: name %q and url %q are both required", e.Name, e.URL)
}

// ErrRepositoryNotFound is returned when a job or request names an unknown repository.
type ErrRepositoryNotFound struct {
	Name string
}

func (e *ErrRepositoryNotFound) Error() string {
	return fmt.Sprintf("repository %q not found", e.Name)
}
