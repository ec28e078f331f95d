package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/defistate/defistate-vault-go/engine"
	"github.com/defistate/defistate-vault-go/events"
	"github.com/defistate/defistate-vault-go/protocols/shareregistry"
	_ "github.com/glebarez/go-sqlite"
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// EventStore journals engine events and registry entries in SQLite.
type EventStore struct {
	db *sql.DB
}

// NewEventStore opens (or creates) the database at dbPath with WAL enabled.
func NewEventStore(dbPath string) (*EventStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	// single writer; keeps pragmas applied to the one connection in use
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA cache_size=-2000;",
		"PRAGMA foreign_keys=ON;",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma %s: %w", pragma, err)
		}
	}

	schema := []string{
		`CREATE TABLE IF NOT EXISTS events (
			id INTEGER PRIMARY KEY,
			kind TEXT NOT NULL,
			ts INTEGER NOT NULL,
			payload BLOB NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS registrations (
			asset INTEGER PRIMARY KEY,
			share_asset INTEGER NOT NULL UNIQUE,
			registered_at INTEGER NOT NULL
		);`,
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}

	return &EventStore{db: db}, nil
}

// SaveEvent appends rec to the journal. A Registered event also records the
// registry entry it announces.
func (s *EventStore) SaveEvent(ctx context.Context, rec events.Record) error {
	if rec.Event == nil {
		return errors.New("record has no event")
	}
	payload, err := json.Marshal(rec.Event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		"INSERT INTO events (id, kind, ts, payload) VALUES (?, ?, ?, ?)",
		rec.Seq, string(rec.Event.Kind()), rec.Timestamp, payload,
	)
	if err != nil {
		return fmt.Errorf("failed to insert event %d: %w", rec.Seq, err)
	}

	if reg, ok := rec.Event.(events.Registered); ok {
		if err := insertRegistration(ctx, tx, reg.Asset, reg.ShareAsset, rec.Timestamp); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// SaveRegistration records a registry entry. Saving an identical entry again is a no-op.
func (s *EventStore) SaveRegistration(ctx context.Context, entry shareregistry.Entry) error {
	return insertRegistration(ctx, s.db, entry.Asset, entry.ShareAsset, time.Now().UnixNano())
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertRegistration(ctx context.Context, db execer, asset, shareAsset engine.AssetID, ts int64) error {
	_, err := db.ExecContext(ctx,
		"INSERT INTO registrations (asset, share_asset, registered_at) VALUES (?, ?, ?) ON CONFLICT(asset) DO NOTHING",
		int64(asset), int64(shareAsset), ts,
	)
	if err != nil {
		return fmt.Errorf("failed to insert registration %d -> %d: %w", asset, shareAsset, err)
	}
	return nil
}

// LoadRegistrations returns every persisted registry entry ordered by asset.
func (s *EventStore) LoadRegistrations(ctx context.Context) ([]shareregistry.Entry, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT asset, share_asset FROM registrations ORDER BY asset ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to query registrations: %w", err)
	}
	defer rows.Close()

	entries := []shareregistry.Entry{}
	for rows.Next() {
		var asset, shareAsset int64
		if err := rows.Scan(&asset, &shareAsset); err != nil {
			return nil, fmt.Errorf("failed to scan registration: %w", err)
		}
		entries = append(entries, shareregistry.Entry{
			Asset:      engine.AssetID(asset),
			ShareAsset: engine.AssetID(shareAsset),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return entries, nil
}

// LastSeq returns the highest journaled sequence number, or 0 when empty.
func (s *EventStore) LastSeq(ctx context.Context) (uint64, error) {
	var lastSeq sql.NullInt64
	if err := s.db.QueryRowContext(ctx, "SELECT MAX(id) FROM events").Scan(&lastSeq); err != nil {
		return 0, fmt.Errorf("failed to get last seq: %w", err)
	}
	if !lastSeq.Valid {
		return 0, nil
	}
	return uint64(lastSeq.Int64), nil
}

// LoadEvents returns the journaled records with sequence >= fromSeq, in order.
func (s *EventStore) LoadEvents(ctx context.Context, fromSeq uint64) ([]events.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, kind, ts, payload FROM events WHERE id >= ? ORDER BY id ASC",
		fromSeq,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var records []events.Record
	for rows.Next() {
		var (
			id      int64
			kind    string
			ts      int64
			payload []byte
		)
		if err := rows.Scan(&id, &kind, &ts, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		ev, err := events.DecodeEvent(events.Kind(kind), payload)
		if err != nil {
			return nil, fmt.Errorf("failed to decode event %d: %w", id, err)
		}
		records = append(records, events.Record{Seq: uint64(id), Timestamp: ts, Event: ev})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return records, nil
}

// Handler returns an events.Handler that journals every record. Write failures
// are logged; the engine state has already committed by the time an event is seen.
func (s *EventStore) Handler(ctx context.Context, logger Logger) events.Handler {
	return func(rec events.Record) {
		if err := s.SaveEvent(ctx, rec); err != nil {
			logger.Error("failed to journal event", "seq", rec.Seq, "kind", rec.Event.Kind(), "error", err)
		}
	}
}

// Close closes the database connection.
func (s *EventStore) Close() error {
	return s.db.Close()
}
