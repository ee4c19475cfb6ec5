// internal/maven/properties.go
package maven

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"

	"github.com/magiconair/properties"

	"maven-indexer/internal/model"
)

const (
	keyTimestamp       = "nexus.index.timestamp"
	keyChainID         = "nexus.index.chain-id"
	keyLastIncremental = "nexus.index.last-incremental"
)

var incrementalKey = regexp.MustCompile(`^nexus\.index\.incremental-(\d+)$`)

// IndexProperties is the descriptor published next to a Maven repository index.
type IndexProperties struct {
	Timestamp         string
	ChainID           string
	LastIncremental   *int
	IncrementalChunks []int
}

// Provenance converts the descriptor into the fields recorded on a completed repository.
func (p *IndexProperties) Provenance() *model.Provenance {
	if p == nil {
		return nil
	}
	return &model.Provenance{
		Timestamp:            p.Timestamp,
		ChainID:              p.ChainID,
		LastIncrementalChunk: p.LastIncremental,
	}
}

// ParseProperties parses a nexus-maven-repository-index.properties document.
// Unknown keys are ignored; a non-numeric last-incremental value is left unset.
func ParseProperties(data []byte) (*IndexProperties, error) {
	loader := &properties.Loader{Encoding: properties.UTF8, DisableExpansion: true}
	p, err := loader.LoadBytes(data)
	if err != nil {
		return nil, fmt.Errorf("parse index properties: %w", err)
	}

	out := &IndexProperties{
		Timestamp: p.GetString(keyTimestamp, ""),
		ChainID:   p.GetString(keyChainID, ""),
	}
	if v, ok := p.Get(keyLastIncremental); ok {
		if n, err := strconv.Atoi(v); err == nil {
			out.LastIncremental = &n
		}
	}

	for _, key := range p.Keys() {
		if !incrementalKey.MatchString(key) {
			continue
		}
		v, _ := p.Get(key)
		n, err := strconv.Atoi(v)
		if err != nil {
			continue
		}
		out.IncrementalChunks = append(out.IncrementalChunks, n)
	}
	sort.Ints(out.IncrementalChunks)

	return out, nil
}
