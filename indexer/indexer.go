// Package indexer persists emitted market events into SQLite so operators
// and clients can query history without replaying the ledger.
package indexer

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"nftmarket/core/events"
	"nftmarket/core/types"
)

// Indexer subscribes to the event bus and appends every event to an
// append-only table. Writes are serialized; the event bus delivers
// synchronously and SQLite allows a single writer.
type Indexer struct {
	mu     sync.Mutex
	db     *sql.DB
	logger *slog.Logger
}

// New opens (or creates) the index database at path.
func New(path string, logger *slog.Logger) (*Indexer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("indexer: open %s: %w", path, err)
	}
	idx := &Indexer{db: db, logger: logger}
	if err := idx.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return idx, nil
}

func (i *Indexer) init() error {
	schema := `CREATE TABLE IF NOT EXISTS market_events (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        recorded_at TIMESTAMP NOT NULL,
        type TEXT NOT NULL,
        attributes TEXT NOT NULL
    );
    CREATE INDEX IF NOT EXISTS market_events_type ON market_events(type);`
	if _, err := i.db.Exec(schema); err != nil {
		return fmt.Errorf("indexer: init schema: %w", err)
	}
	return nil
}

// Emit implements events.Emitter. Events without attributes are recorded
// with an empty object. Indexing failures are logged, not propagated: the
// index is a read model and must never block settlement.
func (i *Indexer) Emit(evt events.Event) {
	attributes := map[string]string{}
	switch v := evt.(type) {
	case interface{ Event() *types.Event }:
		if inner := v.Event(); inner != nil && inner.Attributes != nil {
			attributes = inner.Attributes
		}
	case *types.Event:
		if v != nil && v.Attributes != nil {
			attributes = v.Attributes
		}
	}
	encoded, err := json.Marshal(attributes)
	if err != nil {
		i.logger.Error("indexer: encode attributes", "error", err)
		return
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	_, err = i.db.Exec(
		`INSERT INTO market_events (recorded_at, type, attributes) VALUES (?, ?, ?)`,
		time.Now().UTC(), evt.EventType(), string(encoded),
	)
	if err != nil {
		i.logger.Error("indexer: insert event", "type", evt.EventType(), "error", err)
	}
}

// StoredEvent is one row of the event history.
type StoredEvent struct {
	ID         int64             `json:"id"`
	RecordedAt time.Time         `json:"recordedAt"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

// EventsByType returns the most recent events of one type, newest first.
func (i *Indexer) EventsByType(ctx context.Context, eventType string, limit int) ([]StoredEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := i.db.QueryContext(ctx,
		`SELECT id, recorded_at, type, attributes FROM market_events
         WHERE type = ? ORDER BY id DESC LIMIT ?`, eventType, limit)
	if err != nil {
		return nil, fmt.Errorf("indexer: query events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// RecentEvents returns the most recent events of any type, newest first.
func (i *Indexer) RecentEvents(ctx context.Context, limit int) ([]StoredEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := i.db.QueryContext(ctx,
		`SELECT id, recorded_at, type, attributes FROM market_events
         ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("indexer: query events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]StoredEvent, error) {
	var out []StoredEvent
	for rows.Next() {
		var evt StoredEvent
		var attributes string
		if err := rows.Scan(&evt.ID, &evt.RecordedAt, &evt.Type, &attributes); err != nil {
			return nil, fmt.Errorf("indexer: scan event: %w", err)
		}
		if err := json.Unmarshal([]byte(attributes), &evt.Attributes); err != nil {
			return nil, fmt.Errorf("indexer: decode attributes: %w", err)
		}
		out = append(out, evt)
	}
	return out, rows.Err()
}

// Close releases the underlying database handle.
func (i *Indexer) Close() error {
	return i.db.Close()
}
