package record

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	_ "modernc.org/sqlite" // registers the "sqlite" database/sql driver

	"github.com/aetheris-os/aetheris/internal/domain"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS systems (
	id           TEXT PRIMARY KEY,
	name         TEXT NOT NULL,
	description  TEXT NOT NULL,
	capabilities TEXT NOT NULL DEFAULT '[]',
	capacity     REAL NOT NULL DEFAULT 0,
	created_at   INTEGER NOT NULL,
	updated_at   INTEGER NOT NULL
);
`

// SQLiteStore implements Store over a local SQLite file. Pairs with the
// chromem vector store to form the "embedded" driver.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens (or creates) the SQLite metadata store at path.
func NewSQLite(path string) (*SQLiteStore, error) {
	sdb, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	if _, err := sdb.Exec(sqliteSchema); err != nil {
		return nil, fmt.Errorf("create systems table: %w", err)
	}
	return &SQLiteStore{db: sdb}, nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close sqlite: %w", err)
	}
	return nil
}

// Ping checks the database file is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping sqlite: %w", err)
	}
	return nil
}

// Put stores a record.
func (s *SQLiteStore) Put(ctx context.Context, rec Document) error {
	caps, err := json.Marshal(rec.Capabilities)
	if err != nil {
		return fmt.Errorf("marshal capabilities %s: %w", rec.ID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO systems (id, name, description, capabilities, capacity, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			capabilities = excluded.capabilities,
			capacity = excluded.capacity,
			updated_at = excluded.updated_at`,
		rec.ID, rec.Name, rec.Description, string(caps), rec.Capacity, rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("put record %s: %w: %w", rec.ID, domain.ErrStoreWrite, err)
	}
	return nil
}

// Get returns a record by id.
func (s *SQLiteStore) Get(ctx context.Context, id string) (Document, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, description, capabilities, capacity, created_at, updated_at
		FROM systems WHERE id = ?`, id)
	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Document{}, domain.ErrNotFound
		}
		return Document{}, fmt.Errorf("get record %s: %w: %w", id, domain.ErrStoreRead, err)
	}
	return doc, nil
}

// GetMany returns records for the given ids, skipping missing ones.
func (s *SQLiteStore) GetMany(ctx context.Context, ids []string) ([]Document, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, description, capabilities, capacity, created_at, updated_at
		FROM systems WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("get records: %w: %w", domain.ErrStoreRead, err)
	}
	defer rows.Close()

	return collectDocuments(rows)
}

// List returns all stored records.
func (s *SQLiteStore) List(ctx context.Context) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, description, capabilities, capacity, created_at, updated_at
		FROM systems ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list records: %w: %w", domain.ErrStoreRead, err)
	}
	defer rows.Close()

	return collectDocuments(rows)
}

// Delete removes a record.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM systems WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete record %s: %w: %w", id, domain.ErrStoreWrite, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (Document, error) {
	var doc Document
	var caps string
	if err := row.Scan(
		&doc.ID, &doc.Name, &doc.Description, &caps,
		&doc.Capacity, &doc.CreatedAt, &doc.UpdatedAt,
	); err != nil {
		return Document{}, err
	}
	if err := json.Unmarshal([]byte(caps), &doc.Capabilities); err != nil {
		return Document{}, fmt.Errorf("unmarshal capabilities: %w", err)
	}
	return doc, nil
}

func collectDocuments(rows *sql.Rows) ([]Document, error) {
	var docs []Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w: %w", domain.ErrStoreRead, err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w: %w", domain.ErrStoreRead, err)
	}
	return docs, nil
}

var _ Store = (*SQLiteStore)(nil)
