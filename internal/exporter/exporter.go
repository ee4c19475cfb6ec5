// internal/exporter/exporter.go
package exporter

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	custom_errors "maven-indexer/internal/errors"
	"maven-indexer/internal/model"
)

const (
	// ExportDirName is the subdirectory the conversion tool writes its dumps into.
	ExportDirName = "export"
	// DumpExtension is the extension of the field dump files.
	DumpExtension = ".fld"
)

// Converter turns the compressed index inside workDir into a field dump and returns its path.
// Implementations expect workDir/nexus-maven-repository-index.gz to exist.
type Converter interface {
	Convert(ctx context.Context, workDir string) (string, error)
}

// IndexPath returns where the compressed index must be placed inside workDir.
func IndexPath(workDir string) string {
	return filepath.Join(workDir, model.IndexFileName)
}

// ExportDir returns the directory the tool writes .fld files into.
func ExportDir(workDir string) string {
	return filepath.Join(workDir, ExportDirName)
}

// FindDumpFile returns the lexicographically first .fld file in workDir/export.
func FindDumpFile(workDir string) (string, error) {
	dir := ExportDir(workDir)
	matches, err := filepath.Glob(filepath.Join(dir, "*"+DumpExtension))
	if err != nil {
		return "", fmt.Errorf("glob export directory: %w", err)
	}

	var files []string
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil || info.IsDir() {
			continue
		}
		files = append(files, m)
	}
	if len(files) == 0 {
		return "", &custom_errors.ExportError{Missing: true, Dir: dir}
	}

	sort.Strings(files)
	return files[0], nil
}

// prepare checks the input contract and removes a stale export directory.
func prepare(workDir string) error {
	if _, err := os.Stat(IndexPath(workDir)); err != nil {
		return &custom_errors.ExportError{Err: fmt.Errorf("compressed index not found: %w", err)}
	}
	// The tool skips conversion when export/ exists, which would hand back a previous run's dump.
	if err := os.RemoveAll(ExportDir(workDir)); err != nil {
		return &custom_errors.ExportError{Err: fmt.Errorf("remove stale export directory: %w", err)}
	}
	return nil
}
