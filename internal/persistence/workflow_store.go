package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tyemirov/autoflow/internal/automation"
)

const (
	workflowEncodeErrorTemplateConstant = "unable to encode workflow %s: %w"
	workflowDecodeErrorTemplateConstant = "unable to decode workflow %s: %w"
)

// SQLiteWorkflowStore is an automation.WorkflowStore backed by SQLite.
type SQLiteWorkflowStore struct {
	database *sql.DB
}

var _ automation.WorkflowStore = (*SQLiteWorkflowStore)(nil)

// NewSQLiteWorkflowStore initializes the schema and returns the store.
func NewSQLiteWorkflowStore(database *sql.DB) (*SQLiteWorkflowStore, error) {
	store := &SQLiteWorkflowStore{database: database}
	if schemaError := store.initSchema(); schemaError != nil {
		return nil, schemaError
	}
	return store, nil
}

func (store *SQLiteWorkflowStore) initSchema() error {
	_, execError := store.database.Exec(`
		CREATE TABLE IF NOT EXISTS workflows (
			id TEXT PRIMARY KEY,
			position INTEGER NOT NULL,
			definition TEXT NOT NULL
		);`,
	)
	return execError
}

// SaveWorkflow implements automation.WorkflowStore. An existing id keeps its listing position.
func (store *SQLiteWorkflowStore) SaveWorkflow(executionContext context.Context, definition automation.WorkflowDefinition) error {
	encoded, encodeError := json.Marshal(definition)
	if encodeError != nil {
		return fmt.Errorf(workflowEncodeErrorTemplateConstant, definition.ID, encodeError)
	}

	_, execError := store.database.ExecContext(executionContext, `
		INSERT INTO workflows (id, position, definition)
		VALUES (?, (SELECT COALESCE(MAX(position), 0) + 1 FROM workflows), ?)
		ON CONFLICT(id) DO UPDATE SET definition = excluded.definition`,
		definition.ID,
		string(encoded),
	)
	return execError
}

// LoadWorkflow implements automation.WorkflowStore.
func (store *SQLiteWorkflowStore) LoadWorkflow(executionContext context.Context, workflowID string) (automation.WorkflowDefinition, bool, error) {
	row := store.database.QueryRowContext(executionContext, `
		SELECT definition
		FROM workflows
		WHERE id = ?`,
		workflowID,
	)

	var encoded string
	if scanError := row.Scan(&encoded); scanError != nil {
		if errors.Is(scanError, sql.ErrNoRows) {
			return automation.WorkflowDefinition{}, false, nil
		}
		return automation.WorkflowDefinition{}, false, scanError
	}

	definition, decodeError := decodeWorkflow(workflowID, encoded)
	if decodeError != nil {
		return automation.WorkflowDefinition{}, false, decodeError
	}
	return definition, true, nil
}

// ListWorkflows implements automation.WorkflowStore.
func (store *SQLiteWorkflowStore) ListWorkflows(executionContext context.Context) ([]automation.WorkflowDefinition, error) {
	rows, queryError := store.database.QueryContext(executionContext, `
		SELECT id, definition
		FROM workflows
		ORDER BY position`,
	)
	if queryError != nil {
		return nil, queryError
	}
	defer rows.Close()

	definitions := make([]automation.WorkflowDefinition, 0)
	for rows.Next() {
		var workflowID string
		var encoded string
		if scanError := rows.Scan(&workflowID, &encoded); scanError != nil {
			return nil, scanError
		}
		definition, decodeError := decodeWorkflow(workflowID, encoded)
		if decodeError != nil {
			return nil, decodeError
		}
		definitions = append(definitions, definition)
	}
	return definitions, rows.Err()
}

func decodeWorkflow(workflowID string, encoded string) (automation.WorkflowDefinition, error) {
	var definition automation.WorkflowDefinition
	if decodeError := json.Unmarshal([]byte(encoded), &definition); decodeError != nil {
		return automation.WorkflowDefinition{}, fmt.Errorf(workflowDecodeErrorTemplateConstant, workflowID, decodeError)
	}
	return definition, nil
}
