// internal/maven/dump.go
package maven

import (
	"bufio"
	"errors"
	"io"
	"os"
	"strings"

	custom_errors "maven-indexer/internal/errors"
	"maven-indexer/internal/model"
)

const (
	docPrefix   = "doc "
	valuePrefix = "value "
	uinfoMarker = "name u"

	// uinfo is group|artifact|version|extension|packaging[|...]
	minUinfoFields = 5
)

// VersionRecord is one version entry extracted from a uinfo field.
type VersionRecord struct {
	Number    string
	Packaging string
}

// PackageRecord groups every version found for one group:artifact coordinate.
type PackageRecord struct {
	Coordinate string
	GroupID    string
	ArtifactID string
	Versions   []VersionRecord
}

// ParseDumpFile opens path and parses it with ParseDump.
func ParseDumpFile(path string) ([]PackageRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &custom_errors.IOError{Path: path, Err: err}
	}
	defer f.Close()

	records, err := ParseDump(f)
	if err != nil {
		return nil, &custom_errors.IOError{Path: path, Err: err}
	}
	return records, nil
}

// ParseDump reads a .fld field dump and returns the packages it describes, in the order
// their coordinates first appear. Malformed records are skipped; only read errors are returned.
func ParseDump(r io.Reader) ([]PackageRecord, error) {
	br := bufio.NewReader(r)

	var (
		records      []PackageRecord
		index        = make(map[string]int)
		readingUinfo bool
	)

	for {
		// Field values such as class name lists can be megabytes long.
		raw, err := br.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
		if raw == "" && err != nil {
			break
		}
		line := strings.TrimSpace(raw)

		switch {
		case strings.HasPrefix(line, docPrefix):
			readingUinfo = false
		case line == uinfoMarker:
			readingUinfo = true
		case readingUinfo && strings.HasPrefix(line, valuePrefix):
			// A short record leaves the flag set for the next value line.
			parts := strings.Split(strings.TrimPrefix(line, valuePrefix), "|")
			if len(parts) < minUinfoFields {
				continue
			}
			readingUinfo = false

			groupID, artifactID := parts[0], parts[1]
			coordinate := model.PackageName(groupID, artifactID)

			i, ok := index[coordinate]
			if !ok {
				i = len(records)
				index[coordinate] = i
				records = append(records, PackageRecord{
					Coordinate: coordinate,
					GroupID:    groupID,
					ArtifactID: artifactID,
				})
			}
			records[i].Versions = append(records[i].Versions, VersionRecord{
				Number:    parts[2],
				Packaging: parts[4],
			})
		}
	}

	return records, nil
}

// CountVersions returns the total number of version entries across records.
func CountVersions(records []PackageRecord) int {
	n := 0
	for _, r := range records {
		n += len(r.Versions)
	}
	return n
}
