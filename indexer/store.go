package indexer

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	_ "modernc.org/sqlite"

	"otoledger/core/events"
	"otoledger/rpc"
)

// Store is the append-only audit log of streamed events. Rows are never
// updated or deleted.
type Store struct {
	db *sql.DB
}

// Record is one stored event.
type Record struct {
	ID         int64
	RunID      string
	TxHash     string
	Op         string
	Type       string
	Attributes map[string]string
	ReceivedAt time.Time
}

// Settlement is a stored oto.proof.settled event.
type Settlement struct {
	ID                int64
	TxHash            string
	Proof             string
	Offer             string
	PurchaseRequest   string
	Provider          string
	ContentHash       string
	Price             uint64
	BudgetRemaining   uint64
	SignatureVerified bool
	ReceivedAt        time.Time
}

// OpenStore opens (creating if needed) the sqlite database at path.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One writer keeps sqlite from returning SQLITE_BUSY under the stream.
	db.SetMaxOpenConns(1)
	store := &Store{db: db}
	if err := store.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) init() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS events (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            run_id TEXT NOT NULL,
            tx_hash TEXT NOT NULL,
            op TEXT NOT NULL,
            type TEXT NOT NULL,
            attributes TEXT NOT NULL,
            received_at TIMESTAMP NOT NULL
        );`,
		`CREATE INDEX IF NOT EXISTS events_type_id ON events(type, id);`,
		`CREATE TABLE IF NOT EXISTS exports (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            run_id TEXT NOT NULL,
            path TEXT NOT NULL,
            first_event INTEGER NOT NULL,
            last_event INTEGER NOT NULL,
            rows INTEGER NOT NULL,
            created_at TIMESTAMP NOT NULL
        );`,
	}
	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("indexer: init schema: %w", err)
		}
	}
	return nil
}

func (s *Store) Close() error { return s.db.Close() }

// Append stores msg and returns its row id.
func (s *Store) Append(ctx context.Context, runID string, msg rpc.StreamMessage, at time.Time) (int64, error) {
	attrs, err := json.Marshal(msg.Attributes)
	if err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO events (run_id, tx_hash, op, type, attributes, received_at) VALUES (?, ?, ?, ?, ?, ?)`,
		runID, msg.TxHash, msg.Op, msg.Type, string(attrs), at.UTC())
	if err != nil {
		return 0, fmt.Errorf("indexer: append event: %w", err)
	}
	return res.LastInsertId()
}

// Events returns stored events with id greater than after, oldest first.
func (s *Store) Events(ctx context.Context, after int64, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, tx_hash, op, type, attributes, received_at FROM events WHERE id > ? ORDER BY id LIMIT ?`,
		after, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			rec   Record
			attrs string
		)
		if err := rows.Scan(&rec.ID, &rec.RunID, &rec.TxHash, &rec.Op, &rec.Type, &attrs, &rec.ReceivedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(attrs), &rec.Attributes); err != nil {
			return nil, fmt.Errorf("indexer: event %d attributes: %w", rec.ID, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Settlements returns settled proofs with id greater than after.
func (s *Store) Settlements(ctx context.Context, after int64) ([]Settlement, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, tx_hash, attributes, received_at FROM events WHERE type = ? AND id > ? ORDER BY id`,
		events.TypeProofSettled, after)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Settlement
	for rows.Next() {
		var (
			id     int64
			txHash string
			raw    string
			at     time.Time
		)
		if err := rows.Scan(&id, &txHash, &raw, &at); err != nil {
			return nil, err
		}
		var attrs map[string]string
		if err := json.Unmarshal([]byte(raw), &attrs); err != nil {
			return nil, fmt.Errorf("indexer: event %d attributes: %w", id, err)
		}
		settlement, err := settlementFrom(id, txHash, attrs, at)
		if err != nil {
			return nil, err
		}
		out = append(out, settlement)
	}
	return out, rows.Err()
}

func settlementFrom(id int64, txHash string, attrs map[string]string, at time.Time) (Settlement, error) {
	price, err := strconv.ParseUint(attrs["price"], 10, 64)
	if err != nil {
		return Settlement{}, fmt.Errorf("indexer: event %d price: %w", id, err)
	}
	remaining, err := strconv.ParseUint(attrs["budgetRemaining"], 10, 64)
	if err != nil {
		return Settlement{}, fmt.Errorf("indexer: event %d budgetRemaining: %w", id, err)
	}
	verified, _ := strconv.ParseBool(attrs["signatureVerified"])
	return Settlement{
		ID:                id,
		TxHash:            txHash,
		Proof:             attrs["proof"],
		Offer:             attrs["offer"],
		PurchaseRequest:   attrs["purchaseRequest"],
		Provider:          attrs["provider"],
		ContentHash:       attrs["contentHash"],
		Price:             price,
		BudgetRemaining:   remaining,
		SignatureVerified: verified,
		ReceivedAt:        at,
	}, nil
}

// CountByType reports how many events of each type are stored.
func (s *Store) CountByType(ctx context.Context) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT type, COUNT(*) FROM events GROUP BY type`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]int64)
	for rows.Next() {
		var (
			typ   string
			count int64
		)
		if err := rows.Scan(&typ, &count); err != nil {
			return nil, err
		}
		out[typ] = count
	}
	return out, rows.Err()
}

// LastExported returns the highest event id covered by a previous export.
func (s *Store) LastExported(ctx context.Context) (int64, error) {
	var last sql.NullInt64
	err := s.db.QueryRowContext(ctx, `SELECT MAX(last_event) FROM exports`).Scan(&last)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, err
	}
	return last.Int64, nil
}

func (s *Store) recordExport(ctx context.Context, runID, path string, first, last int64, count int, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO exports (run_id, path, first_event, last_event, rows, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		runID, path, first, last, count, at.UTC())
	if err != nil {
		return fmt.Errorf("indexer: record export: %w", err)
	}
	return nil
}
