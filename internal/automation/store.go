package automation

import (
	"context"
	"sync"
)

// WorkflowStore persists workflow definitions. SaveWorkflow overwrites an existing id in place,
// so listings keep first-registration order.
type WorkflowStore interface {
	SaveWorkflow(executionContext context.Context, definition WorkflowDefinition) error
	LoadWorkflow(executionContext context.Context, workflowID string) (WorkflowDefinition, bool, error)
	ListWorkflows(executionContext context.Context) ([]WorkflowDefinition, error)
}

// MemoryWorkflowStore keeps workflow definitions for the lifetime of the process.
type MemoryWorkflowStore struct {
	mutex       sync.RWMutex
	order       []string
	definitions map[string]WorkflowDefinition
}

// NewMemoryWorkflowStore constructs an empty in-process store.
func NewMemoryWorkflowStore() *MemoryWorkflowStore {
	return &MemoryWorkflowStore{definitions: make(map[string]WorkflowDefinition)}
}

// SaveWorkflow implements WorkflowStore.
func (store *MemoryWorkflowStore) SaveWorkflow(executionContext context.Context, definition WorkflowDefinition) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	if _, exists := store.definitions[definition.ID]; !exists {
		store.order = append(store.order, definition.ID)
	}
	store.definitions[definition.ID] = definition.Clone()
	return nil
}

// LoadWorkflow implements WorkflowStore.
func (store *MemoryWorkflowStore) LoadWorkflow(executionContext context.Context, workflowID string) (WorkflowDefinition, bool, error) {
	store.mutex.RLock()
	defer store.mutex.RUnlock()
	definition, exists := store.definitions[workflowID]
	if !exists {
		return WorkflowDefinition{}, false, nil
	}
	return definition.Clone(), true, nil
}

// ListWorkflows implements WorkflowStore.
func (store *MemoryWorkflowStore) ListWorkflows(executionContext context.Context) ([]WorkflowDefinition, error) {
	store.mutex.RLock()
	defer store.mutex.RUnlock()
	definitions := make([]WorkflowDefinition, 0, len(store.order))
	for _, workflowID := range store.order {
		definitions = append(definitions, store.definitions[workflowID].Clone())
	}
	return definitions, nil
}
