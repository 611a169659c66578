package automation

import (
	"context"
	"fmt"
	"sync"
)

const (
	sharedMemoryLoadErrorTemplateConstant    = "unable to load shared memory: %w"
	sharedMemoryPersistErrorTemplateConstant = "unable to persist shared memory: %w"
)

// SharedMemoryPersister stores the shared memory between processes.
type SharedMemoryPersister interface {
	LoadSharedMemory(executionContext context.Context) (map[string]any, error)
	MergeSharedMemory(executionContext context.Context, update map[string]any) error
	ClearSharedMemory(executionContext context.Context) error
}

// SharedMemory is the process-wide key/value store tasks use to exchange state.
// Callers only ever observe deep-copied snapshots.
type SharedMemory struct {
	mutex     sync.RWMutex
	values    map[string]any
	persister SharedMemoryPersister
}

// NewSharedMemory constructs an in-process shared memory seeded with the provided values.
func NewSharedMemory(initial map[string]any) *SharedMemory {
	values := cloneMap(initial)
	if values == nil {
		values = make(map[string]any)
	}
	return &SharedMemory{values: values}
}

// NewPersistentSharedMemory loads the stored values and writes every later mutation through the persister.
// Other processes sharing the persister become visible after Refresh.
func NewPersistentSharedMemory(executionContext context.Context, persister SharedMemoryPersister) (*SharedMemory, error) {
	if persister == nil {
		return NewSharedMemory(nil), nil
	}
	stored, loadError := persister.LoadSharedMemory(executionContext)
	if loadError != nil {
		return nil, fmt.Errorf(sharedMemoryLoadErrorTemplateConstant, loadError)
	}
	memory := NewSharedMemory(stored)
	memory.persister = persister
	return memory, nil
}

// Snapshot returns a deep copy of the current values.
func (memory *SharedMemory) Snapshot() map[string]any {
	if memory == nil {
		return map[string]any{}
	}
	memory.mutex.RLock()
	defer memory.mutex.RUnlock()
	snapshot := cloneMap(memory.values)
	if snapshot == nil {
		snapshot = map[string]any{}
	}
	return snapshot
}

// Get looks up a single key.
func (memory *SharedMemory) Get(key string) (any, bool) {
	if memory == nil {
		return nil, false
	}
	memory.mutex.RLock()
	defer memory.mutex.RUnlock()
	value, exists := memory.values[key]
	return cloneValue(value), exists
}

// Refresh replaces the local values with the persisted ones. Without a persister it is a no-op.
func (memory *SharedMemory) Refresh(executionContext context.Context) error {
	if memory == nil || memory.persister == nil {
		return nil
	}
	memory.mutex.Lock()
	defer memory.mutex.Unlock()
	stored, loadError := memory.persister.LoadSharedMemory(executionContext)
	if loadError != nil {
		return fmt.Errorf(sharedMemoryLoadErrorTemplateConstant, loadError)
	}
	memory.values = cloneMap(stored)
	if memory.values == nil {
		memory.values = make(map[string]any)
	}
	return nil
}

// Merge applies the update key by key, overwriting existing keys. A persister failure leaves the values unchanged.
func (memory *SharedMemory) Merge(executionContext context.Context, update map[string]any) error {
	if memory == nil || len(update) == 0 {
		return nil
	}
	memory.mutex.Lock()
	defer memory.mutex.Unlock()
	if memory.persister != nil {
		if persistError := memory.persister.MergeSharedMemory(executionContext, cloneMap(update)); persistError != nil {
			return fmt.Errorf(sharedMemoryPersistErrorTemplateConstant, persistError)
		}
	}
	memory.values = mergeInto(memory.values, update)
	return nil
}

// Clear removes every key. A persister failure leaves the values unchanged.
func (memory *SharedMemory) Clear(executionContext context.Context) error {
	if memory == nil {
		return nil
	}
	memory.mutex.Lock()
	defer memory.mutex.Unlock()
	if memory.persister != nil {
		if persistError := memory.persister.ClearSharedMemory(executionContext); persistError != nil {
			return fmt.Errorf(sharedMemoryPersistErrorTemplateConstant, persistError)
		}
	}
	memory.values = make(map[string]any)
	return nil
}
