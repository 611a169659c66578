package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tyemirov/autoflow/internal/capabilities"
)

const (
	contextTimestampLayoutConstant              = time.RFC3339Nano
	contextMetadataEncodeErrorTemplateConstant  = "unable to encode metadata for context %s: %w"
	contextMetadataDecodeErrorTemplateConstant  = "unable to decode metadata for context %s: %w"
	contextTimestampDecodeErrorTemplateConstant = "unable to decode timestamp for context %s: %w"
)

// SQLiteContextStore is a capabilities.ContextStore backed by SQLite.
type SQLiteContextStore struct {
	database *sql.DB
}

var _ capabilities.ContextStore = (*SQLiteContextStore)(nil)

// NewSQLiteContextStore initializes the schema and returns the store.
func NewSQLiteContextStore(database *sql.DB) (*SQLiteContextStore, error) {
	store := &SQLiteContextStore{database: database}
	if schemaError := store.initSchema(); schemaError != nil {
		return nil, schemaError
	}
	return store, nil
}

func (store *SQLiteContextStore) initSchema() error {
	_, execError := store.database.Exec(`
		CREATE TABLE IF NOT EXISTS contexts (
			name TEXT PRIMARY KEY,
			content TEXT NOT NULL,
			metadata TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
	)
	return execError
}

// SaveContext implements capabilities.ContextStore.
func (store *SQLiteContextStore) SaveContext(executionContext context.Context, record capabilities.ContextRecord) error {
	metadata := record.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	encodedMetadata, encodeError := json.Marshal(metadata)
	if encodeError != nil {
		return fmt.Errorf(contextMetadataEncodeErrorTemplateConstant, record.Name, encodeError)
	}

	_, execError := store.database.ExecContext(executionContext, `
		INSERT INTO contexts (name, content, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			content = excluded.content,
			metadata = excluded.metadata,
			updated_at = excluded.updated_at`,
		record.Name,
		record.Content,
		string(encodedMetadata),
		record.CreatedAt.UTC().Format(contextTimestampLayoutConstant),
		record.UpdatedAt.UTC().Format(contextTimestampLayoutConstant),
	)
	return execError
}

// LoadContext implements capabilities.ContextStore.
func (store *SQLiteContextStore) LoadContext(executionContext context.Context, name string) (capabilities.ContextRecord, bool, error) {
	row := store.database.QueryRowContext(executionContext, `
		SELECT name, content, metadata, created_at, updated_at
		FROM contexts
		WHERE name = ?`,
		name,
	)
	record, scanError := scanContext(row)
	if scanError != nil {
		if errors.Is(scanError, sql.ErrNoRows) {
			return capabilities.ContextRecord{}, false, nil
		}
		return capabilities.ContextRecord{}, false, scanError
	}
	return record, true, nil
}

// DeleteContext implements capabilities.ContextStore.
func (store *SQLiteContextStore) DeleteContext(executionContext context.Context, name string) (bool, error) {
	result, execError := store.database.ExecContext(executionContext, `DELETE FROM contexts WHERE name = ?`, name)
	if execError != nil {
		return false, execError
	}
	affected, affectedError := result.RowsAffected()
	if affectedError != nil {
		return false, affectedError
	}
	return affected > 0, nil
}

// ListContexts implements capabilities.ContextStore. Records are ordered by name.
func (store *SQLiteContextStore) ListContexts(executionContext context.Context) ([]capabilities.ContextRecord, error) {
	rows, queryError := store.database.QueryContext(executionContext, `
		SELECT name, content, metadata, created_at, updated_at
		FROM contexts
		ORDER BY name`,
	)
	if queryError != nil {
		return nil, queryError
	}
	defer rows.Close()

	records := make([]capabilities.ContextRecord, 0)
	for rows.Next() {
		record, scanError := scanContext(rows)
		if scanError != nil {
			return nil, scanError
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

type rowScanner interface {
	Scan(destinations ...any) error
}

func scanContext(row rowScanner) (capabilities.ContextRecord, error) {
	var record capabilities.ContextRecord
	var encodedMetadata string
	var createdAt string
	var updatedAt string
	if scanError := row.Scan(&record.Name, &record.Content, &encodedMetadata, &createdAt, &updatedAt); scanError != nil {
		return capabilities.ContextRecord{}, scanError
	}

	if decodeError := json.Unmarshal([]byte(encodedMetadata), &record.Metadata); decodeError != nil {
		return capabilities.ContextRecord{}, fmt.Errorf(contextMetadataDecodeErrorTemplateConstant, record.Name, decodeError)
	}

	var parseError error
	if record.CreatedAt, parseError = time.Parse(contextTimestampLayoutConstant, createdAt); parseError != nil {
		return capabilities.ContextRecord{}, fmt.Errorf(contextTimestampDecodeErrorTemplateConstant, record.Name, parseError)
	}
	if record.UpdatedAt, parseError = time.Parse(contextTimestampLayoutConstant, updatedAt); parseError != nil {
		return capabilities.ContextRecord{}, fmt.Errorf(contextTimestampDecodeErrorTemplateConstant, record.Name, parseError)
	}
	return record, nil
}
