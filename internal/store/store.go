package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
)

// Logger defines the logging interface used by the Store.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Store is a SQLite-backed document store with an in-process change feed.
//
// All public methods are thread-safe.
type Store struct {
	db *sql.DB

	// writeMu serialises writes so observers see changes in commit order.
	writeMu sync.Mutex

	observers   map[string]map[uint64]*observer
	observersMu sync.RWMutex
	nextID      uint64

	now    func() time.Time
	logger Logger
}

// New creates a store on an open database that has the documents table.
func New(db *sql.DB) *Store {
	return &Store{
		db:        db,
		observers: make(map[string]map[uint64]*observer),
		now:       time.Now,
		logger:    noopLogger{},
	}
}

// SetLogger sets the logger for the store.
func (s *Store) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	s.logger = logger
}

// SetClock replaces the time source for createdAt and updatedAt.
func (s *Store) SetClock(now func() time.Time) {
	s.writeMu.Lock()
	s.now = now
	s.writeMu.Unlock()
}

const selectColumns = `SELECT id, data, created_at, updated_at FROM documents`

// Find returns every document in collection that matches q, oldest first.
func (s *Store) Find(ctx context.Context, collection string, q Query) ([]Record, error) {
	if err := checkArgs(collection, q); err != nil {
		return nil, err
	}

	// An exact string id narrows the scan to one row.
	if id, ok := q[FieldID].(string); ok {
		return s.queryRecords(ctx, q,
			selectColumns+` WHERE collection = ? AND id = ?`, collection, id)
	}
	return s.queryRecords(ctx, q,
		selectColumns+` WHERE collection = ? ORDER BY created_at, id`, collection)
}

// FindOne returns the first matching document or ErrNotFound.
func (s *Store) FindOne(ctx context.Context, collection string, q Query) (Record, error) {
	records, err := s.Find(ctx, collection, q)
	if err != nil {
		return Record{}, err
	}
	if len(records) == 0 {
		return Record{}, ErrNotFound
	}
	return records[0], nil
}

// FindSince returns matching documents with updatedAt >= since, in update
// order, using one bounded query.
func (s *Store) FindSince(ctx context.Context, collection string, q Query, since time.Time) ([]Record, error) {
	if err := checkArgs(collection, q); err != nil {
		return nil, err
	}
	return s.queryRecords(ctx, q,
		selectColumns+` WHERE collection = ? AND updated_at >= ? ORDER BY updated_at, id`,
		collection, FormatTime(since))
}

// Insert stores a new document. The id is taken from doc when it is a
// non-empty string and generated otherwise; createdAt and updatedAt in doc
// are ignored.
func (s *Store) Insert(ctx context.Context, collection string, doc map[string]any) (Record, error) {
	if collection == "" {
		return Record{}, ErrInvalidCollection
	}

	id, _ := doc[FieldID].(string)
	if id == "" {
		id = uuid.NewString()
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	now := s.now().UTC()
	rec := Record{ID: id, CreatedAt: now, UpdatedAt: now, Data: stripReserved(doc)}

	data, err := json.Marshal(rec.Data)
	if err != nil {
		return Record{}, fmt.Errorf("encoding document: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO documents (collection, id, data, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		collection, rec.ID, string(data), FormatTime(now), FormatTime(now),
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey {
			return Record{}, fmt.Errorf("%w: %s/%s", ErrExists, collection, id)
		}
		return Record{}, fmt.Errorf("inserting document: %w", err)
	}

	s.notify(Change{Kind: Created, Collection: collection, Record: rec})
	return rec, nil
}

// Update merges patch into the stored document. A nil value removes the
// field; reserved fields in patch are ignored.
func (s *Store) Update(ctx context.Context, collection, id string, patch map[string]any) (Record, error) {
	if collection == "" {
		return Record{}, ErrInvalidCollection
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Record{}, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	prev, err := scanRecord(tx.QueryRowContext(ctx, selectColumns+` WHERE collection = ? AND id = ?`, collection, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("loading document: %w", err)
	}

	next := prev
	next.Data = maps.Clone(prev.Data)
	for k, v := range stripReserved(patch) {
		if v == nil {
			delete(next.Data, k)
			continue
		}
		next.Data[k] = v
	}
	next.UpdatedAt = s.now().UTC()

	data, err := json.Marshal(next.Data)
	if err != nil {
		return Record{}, fmt.Errorf("encoding document: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE documents SET data = ?, updated_at = ? WHERE collection = ? AND id = ?`,
		string(data), FormatTime(next.UpdatedAt), collection, id,
	); err != nil {
		return Record{}, fmt.Errorf("updating document: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Record{}, fmt.Errorf("committing update: %w", err)
	}

	s.notify(Change{Kind: Updated, Collection: collection, Record: next, Previous: prev})
	return next, nil
}

// Delete removes a document and returns its last version.
func (s *Store) Delete(ctx context.Context, collection, id string) (Record, error) {
	if collection == "" {
		return Record{}, ErrInvalidCollection
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Record{}, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	prev, err := scanRecord(tx.QueryRowContext(ctx, selectColumns+` WHERE collection = ? AND id = ?`, collection, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("loading document: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM documents WHERE collection = ? AND id = ?`, collection, id,
	); err != nil {
		return Record{}, fmt.Errorf("deleting document: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Record{}, fmt.Errorf("committing delete: %w", err)
	}

	s.notify(Change{Kind: Destroyed, Collection: collection, Record: prev})
	return prev, nil
}

// HealthCheck verifies the documents table is readable.
func (s *Store) HealthCheck(ctx context.Context) error {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents WHERE 0`).Scan(&n); err != nil {
		return fmt.Errorf("store health check failed: %w", err)
	}
	return nil
}

func checkArgs(collection string, q Query) error {
	if collection == "" {
		return ErrInvalidCollection
	}
	return q.Validate()
}

func (s *Store) queryRecords(ctx context.Context, q Query, query string, args ...any) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		if Match(rec.Document(), q) {
			records = append(records, rec)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating documents: %w", err)
	}
	return records, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (Record, error) {
	var rec Record
	var data, createdAt, updatedAt string
	if err := row.Scan(&rec.ID, &data, &createdAt, &updatedAt); err != nil {
		return Record{}, err
	}
	if err := json.Unmarshal([]byte(data), &rec.Data); err != nil {
		return Record{}, fmt.Errorf("decoding document %s: %w", rec.ID, err)
	}
	if rec.Data == nil {
		rec.Data = map[string]any{}
	}

	var err error
	if rec.CreatedAt, err = time.Parse(TimeLayout, createdAt); err != nil {
		return Record{}, fmt.Errorf("parsing created_at of %s: %w", rec.ID, err)
	}
	if rec.UpdatedAt, err = time.Parse(TimeLayout, updatedAt); err != nil {
		return Record{}, fmt.Errorf("parsing updated_at of %s: %w", rec.ID, err)
	}
	return rec, nil
}
