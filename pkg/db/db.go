// Package db pkg/db/db.go provides the document store used by the tracker.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"go.uber.org/multierr"
)

const (
	dbOperationTimeout = 5 * time.Second

	// SQL statements for database initialization.
	createTablesSQL = `
	CREATE TABLE IF NOT EXISTS documents (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		collection TEXT NOT NULL,
		id TEXT NOT NULL,
		data TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (collection, id)
	);

	CREATE INDEX IF NOT EXISTS idx_documents_collection
		ON documents(collection, seq);
	`
)

// DB is a SQLite-backed document store. Documents are kept as JSON blobs and
// addressed by collection and id.
type DB struct {
	*sql.DB
}

// New opens (or creates) the SQLite database at dbPath and initializes the
// schema.
func New(dbPath string) (*DB, error) {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_txlock=immediate", dbPath)

	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errFailedOpenDB, err)
	}

	// One connection serialises writers and keeps in-memory databases shared.
	sqlDB.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrent access
	if _, err := sqlDB.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = sqlDB.Close()

		return nil, fmt.Errorf("%w: %w", errFailedToEnableWAL, err)
	}

	db := &DB{sqlDB}
	if err := db.initSchema(); err != nil {
		_ = sqlDB.Close()

		return nil, fmt.Errorf("%w: %w", errFailedToInit, err)
	}

	return db, nil
}

// initSchema creates the database tables if they don't exist.
func (db *DB) initSchema() error {
	_, err := db.Exec(createTablesSQL)

	return err
}

// Find returns all documents of a collection in insertion order.
func (db *DB) Find(ctx context.Context, collection string) (docs []Document, err error) {
	ctx, cancel := context.WithTimeout(ctx, dbOperationTimeout)
	defer cancel()

	rows, err := db.QueryContext(ctx,
		`SELECT data FROM documents WHERE collection = ? ORDER BY seq`, collection)
	if err != nil {
		return nil, fmt.Errorf("%w %s: %w", errFailedToQuery, collection, err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			err = multierr.Append(err, fmt.Errorf("%w: %w", errFailedToClose, closeErr))
		}
	}()

	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("%w document row: %w", errFailedToScan, err)
		}

		doc, err := decodeDocument(data)
		if err != nil {
			return nil, err
		}

		docs = append(docs, doc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w %s: %w", errFailedToQuery, collection, err)
	}

	return docs, nil
}

// FindOne returns the first document in the collection whose top-level field
// equals value.
func (db *DB) FindOne(ctx context.Context, collection, field string, value interface{}) (Document, error) {
	if err := validateField(field); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, dbOperationTimeout)
	defer cancel()

	const query = `
		SELECT data FROM documents
		WHERE collection = ? AND json_extract(data, ?) = ?
		ORDER BY seq
		LIMIT 1
	`

	var data []byte

	err := db.QueryRowContext(ctx, query, collection, "$."+field, value).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("%w %s.%s: %w", errFailedToQuery, collection, field, err)
	}

	return decodeDocument(data)
}

// UpdateFields replaces the named top-level fields of one document inside a
// single transaction.
func (db *DB) UpdateFields(ctx context.Context, collection, id string, fields map[string]interface{}) (err error) {
	for field := range fields {
		if err := validateField(field); err != nil {
			return err
		}

		if field == idField {
			return fmt.Errorf("%w: %q is immutable", ErrInvalidField, field)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, dbOperationTimeout)
	defer cancel()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %w", errFailedToBeginTx, err)
	}
	defer rollbackOnError(tx, &err)

	var data []byte

	err = tx.QueryRowContext(ctx,
		`SELECT data FROM documents WHERE collection = ? AND id = ?`, collection, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		err = ErrNotFound

		return err
	}

	if err != nil {
		return fmt.Errorf("%w %s/%s: %w", errFailedToQuery, collection, id, err)
	}

	doc, err := decodeDocument(data)
	if err != nil {
		return err
	}

	for k, v := range fields {
		doc[k] = v
	}

	data, err = encodeDocument(doc)
	if err != nil {
		return err
	}

	if _, err = tx.ExecContext(ctx, `
		UPDATE documents
		SET data = ?, updated_at = CURRENT_TIMESTAMP
		WHERE collection = ? AND id = ?
	`, string(data), collection, id); err != nil {
		return fmt.Errorf("%w %s/%s: %w", errFailedToUpdate, collection, id, err)
	}

	return tx.Commit()
}

// Insert stores a new document.
func (db *DB) Insert(ctx context.Context, collection string, doc Document) (string, error) {
	doc, err := prepareInsert(doc)
	if err != nil {
		return "", err
	}

	data, err := encodeDocument(doc)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, dbOperationTimeout)
	defer cancel()

	id := doc.ID()

	res, err := db.ExecContext(ctx, `
		INSERT INTO documents (collection, id, data)
		VALUES (?, ?, ?)
		ON CONFLICT(collection, id) DO NOTHING
	`, collection, id, string(data))
	if err != nil {
		return "", fmt.Errorf("%w %s: %w", errFailedToInsert, collection, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return "", fmt.Errorf("%w %s: %w", errFailedToInsert, collection, err)
	}

	if n == 0 {
		return "", fmt.Errorf("%w: %s/%s", ErrDuplicateID, collection, id)
	}

	return id, nil
}

// prepareInsert copies doc and makes sure it carries a string id.
func prepareInsert(doc Document) (Document, error) {
	out := make(Document, len(doc)+1)
	for k, v := range doc {
		out[k] = v
	}

	if out.ID() == "" {
		out[idField] = uuid.NewString()
	}

	return normalize(out)
}

// rollbackOnError rolls tx back when *err is set and folds a failed rollback
// into *err.
func rollbackOnError(tx *sql.Tx, err *error) {
	if *err == nil {
		return
	}

	if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
		*err = multierr.Append(*err, fmt.Errorf("%w: %w", errFailedToRollback, rbErr))
	}
}
