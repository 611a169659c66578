package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/tyemirov/autoflow/internal/automation"
)

const (
	memoryEncodeErrorTemplateConstant = "unable to encode shared memory key %s: %w"
	memoryDecodeErrorTemplateConstant = "unable to decode shared memory key %s: %w"
)

// SQLiteSharedMemoryStore persists shared memory as one JSON document per key.
type SQLiteSharedMemoryStore struct {
	database *sql.DB
}

var _ automation.SharedMemoryPersister = (*SQLiteSharedMemoryStore)(nil)

// NewSQLiteSharedMemoryStore initializes the schema and returns the store.
func NewSQLiteSharedMemoryStore(database *sql.DB) (*SQLiteSharedMemoryStore, error) {
	store := &SQLiteSharedMemoryStore{database: database}
	if schemaError := store.initSchema(); schemaError != nil {
		return nil, schemaError
	}
	return store, nil
}

func (store *SQLiteSharedMemoryStore) initSchema() error {
	_, execError := store.database.Exec(`
		CREATE TABLE IF NOT EXISTS shared_memory (
			memory_key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
	)
	return execError
}

// LoadSharedMemory implements automation.SharedMemoryPersister.
func (store *SQLiteSharedMemoryStore) LoadSharedMemory(executionContext context.Context) (map[string]any, error) {
	rows, queryError := store.database.QueryContext(executionContext, `SELECT memory_key, value FROM shared_memory`)
	if queryError != nil {
		return nil, queryError
	}
	defer rows.Close()

	values := make(map[string]any)
	for rows.Next() {
		var key string
		var encoded string
		if scanError := rows.Scan(&key, &encoded); scanError != nil {
			return nil, scanError
		}
		var value any
		if decodeError := json.Unmarshal([]byte(encoded), &value); decodeError != nil {
			return nil, fmt.Errorf(memoryDecodeErrorTemplateConstant, key, decodeError)
		}
		values[key] = value
	}
	return values, rows.Err()
}

// MergeSharedMemory implements automation.SharedMemoryPersister. Keys are written in one transaction.
func (store *SQLiteSharedMemoryStore) MergeSharedMemory(executionContext context.Context, update map[string]any) error {
	if len(update) == 0 {
		return nil
	}

	transaction, beginError := store.database.BeginTx(executionContext, nil)
	if beginError != nil {
		return beginError
	}
	defer func() {
		_ = transaction.Rollback()
	}()

	for key, value := range update {
		encoded, encodeError := json.Marshal(value)
		if encodeError != nil {
			return fmt.Errorf(memoryEncodeErrorTemplateConstant, key, encodeError)
		}
		if _, execError := transaction.ExecContext(executionContext, `
			INSERT INTO shared_memory (memory_key, value)
			VALUES (?, ?)
			ON CONFLICT(memory_key) DO UPDATE SET value = excluded.value`,
			key,
			string(encoded),
		); execError != nil {
			return execError
		}
	}
	return transaction.Commit()
}

// ClearSharedMemory implements automation.SharedMemoryPersister.
func (store *SQLiteSharedMemoryStore) ClearSharedMemory(executionContext context.Context) error {
	_, execError := store.database.ExecContext(executionContext, `DELETE FROM shared_memory`)
	return execError
}
