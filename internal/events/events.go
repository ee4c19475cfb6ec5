// internal/events/events.go
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// Event types published after a run.
const (
	TypeIndexed = "indexed"
	TypeFailed  = "failed"
)

// RunEvent describes the outcome of one indexing run.
type RunEvent struct {
	Type              string    `json:"type"`
	RunID             string    `json:"run_id"`
	Repository        string    `json:"repository"`
	Status            string    `json:"status"`
	PackageCount      int       `json:"package_count,omitempty"`
	VersionCount      int       `json:"version_count,omitempty"`
	IncrementalChunks []int     `json:"incremental_chunks,omitempty"`
	Error             string    `json:"error,omitempty"`
	OccurredAt        time.Time `json:"occurred_at"`
}

// Publisher announces run outcomes to interested consumers.
type Publisher interface {
	Publish(ctx context.Context, ev RunEvent) error
}

// NoopPublisher drops every event.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, RunEvent) error { return nil }

// NATSPublisher publishes events as JSON on {prefix}.{type}.
type NATSPublisher struct {
	conn   *nats.Conn
	prefix string
	logger *slog.Logger
}

// NewNATSPublisher connects to url. The connection keeps retrying in the background if the
// server is not reachable yet.
func NewNATSPublisher(url, prefix string, logger *slog.Logger) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("maven-indexer"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("NATS reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	if prefix == "" {
		prefix = "maven.index"
	}
	return &NATSPublisher{conn: nc, prefix: prefix, logger: logger}, nil
}

// Subject returns the subject events of type evType are published on.
func (p *NATSPublisher) Subject(evType string) string {
	return p.prefix + "." + evType
}

func (p *NATSPublisher) Publish(ctx context.Context, ev RunEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := p.conn.Publish(p.Subject(ev.Type), data); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

// Close flushes pending messages and closes the connection.
func (p *NATSPublisher) Close() error {
	return p.conn.Drain()
}
