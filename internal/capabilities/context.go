package capabilities

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tyemirov/autoflow/internal/automation"
)

const (
	contextActionCreateConstant              = "create"
	contextActionGetConstant                 = "get"
	contextActionSearchConstant              = "search"
	contextActionUpdateConstant              = "update"
	contextActionDeleteConstant              = "delete"
	contextActionListConstant                = "list"
	contextDefaultSearchLimitConstant        = 10
	contextNameMissingMessageConstant        = "context action requires a name"
	contextQueryMissingMessageConstant       = "context search requires a query"
	contextUnsupportedActionTemplateConstant = "unsupported context action %q"
	contextAlreadyExistsTemplateConstant     = "context %q already exists"
	contextNotFoundTemplateConstant          = "context %q not found"
	contextResultContextsFieldConstant       = "contexts"
	contextResultCountFieldConstant          = "count"
	contextResultDeletedFieldConstant        = "deleted"
	contextResultNameFieldConstant           = "name"
	contextResultContentFieldConstant        = "content"
	contextResultMetadataFieldConstant       = "metadata"
	contextResultCreatedAtFieldConstant      = "created_at"
	contextResultUpdatedAtFieldConstant      = "updated_at"
	contextTimestampLayoutConstant           = time.RFC3339Nano
)

// ContextRecord is a named document kept for later tasks.
type ContextRecord struct {
	Name      string
	Content   string
	Metadata  map[string]any
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ContextStore persists context records keyed by name.
type ContextStore interface {
	SaveContext(executionContext context.Context, record ContextRecord) error
	LoadContext(executionContext context.Context, name string) (ContextRecord, bool, error)
	DeleteContext(executionContext context.Context, name string) (bool, error)
	ListContexts(executionContext context.Context) ([]ContextRecord, error)
}

// MemoryContextStore keeps context records for the lifetime of the process.
type MemoryContextStore struct {
	mutex   sync.RWMutex
	records map[string]ContextRecord
}

// NewMemoryContextStore constructs an empty store.
func NewMemoryContextStore() *MemoryContextStore {
	return &MemoryContextStore{records: make(map[string]ContextRecord)}
}

// SaveContext implements ContextStore.
func (store *MemoryContextStore) SaveContext(executionContext context.Context, record ContextRecord) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	store.records[record.Name] = cloneRecord(record)
	return nil
}

// LoadContext implements ContextStore.
func (store *MemoryContextStore) LoadContext(executionContext context.Context, name string) (ContextRecord, bool, error) {
	store.mutex.RLock()
	defer store.mutex.RUnlock()
	record, exists := store.records[name]
	if !exists {
		return ContextRecord{}, false, nil
	}
	return cloneRecord(record), true, nil
}

// DeleteContext implements ContextStore.
func (store *MemoryContextStore) DeleteContext(executionContext context.Context, name string) (bool, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	if _, exists := store.records[name]; !exists {
		return false, nil
	}
	delete(store.records, name)
	return true, nil
}

// ListContexts implements ContextStore. Records are ordered by name.
func (store *MemoryContextStore) ListContexts(executionContext context.Context) ([]ContextRecord, error) {
	store.mutex.RLock()
	defer store.mutex.RUnlock()
	records := make([]ContextRecord, 0, len(store.records))
	for _, record := range store.records {
		records = append(records, cloneRecord(record))
	}
	sort.Slice(records, func(left int, right int) bool {
		return records[left].Name < records[right].Name
	})
	return records, nil
}

type contextParameters struct {
	Name     string         `mapstructure:"name"`
	Content  *string        `mapstructure:"content"`
	Metadata map[string]any `mapstructure:"metadata"`
	Query    string         `mapstructure:"query"`
	Limit    int            `mapstructure:"limit"`
}

// ContextService manages named context documents for capability tasks.
type ContextService struct {
	store ContextStore
	clock func() time.Time
}

// NewContextService constructs a ContextService backed by the store.
func NewContextService(store ContextStore) *ContextService {
	if store == nil {
		store = NewMemoryContextStore()
	}
	return &ContextService{store: store, clock: time.Now}
}

// Invoke implements automation.CapabilityService.
func (service *ContextService) Invoke(executionContext context.Context, invocation automation.CapabilityInvocation) (any, error) {
	var parameters contextParameters
	if decodeError := automation.DecodeParameters(invocation.TaskID, invocation.Parameters, &parameters); decodeError != nil {
		return nil, decodeError
	}
	parameters.Name = strings.TrimSpace(parameters.Name)

	action := strings.ToLower(strings.TrimSpace(invocation.Action))
	switch action {
	case contextActionListConstant:
		return service.list(executionContext)
	case contextActionSearchConstant:
		return service.search(executionContext, invocation.TaskID, parameters)
	case contextActionCreateConstant, contextActionGetConstant, contextActionUpdateConstant, contextActionDeleteConstant:
		if parameters.Name == "" {
			return nil, automation.ValidationError{TaskID: invocation.TaskID, Message: contextNameMissingMessageConstant}
		}
	default:
		return nil, automation.ValidationError{TaskID: invocation.TaskID, Message: fmt.Sprintf(contextUnsupportedActionTemplateConstant, invocation.Action)}
	}

	switch action {
	case contextActionCreateConstant:
		return service.create(executionContext, invocation.TaskID, parameters)
	case contextActionGetConstant:
		return service.get(executionContext, invocation.TaskID, parameters.Name)
	case contextActionUpdateConstant:
		return service.update(executionContext, invocation.TaskID, parameters)
	default:
		return service.delete(executionContext, invocation.TaskID, parameters.Name)
	}
}

func (service *ContextService) create(executionContext context.Context, taskID string, parameters contextParameters) (any, error) {
	_, exists, loadError := service.store.LoadContext(executionContext, parameters.Name)
	if loadError != nil {
		return nil, loadError
	}
	if exists {
		return nil, automation.ValidationError{TaskID: taskID, Message: fmt.Sprintf(contextAlreadyExistsTemplateConstant, parameters.Name)}
	}

	now := service.clock().UTC()
	record := ContextRecord{
		Name:      parameters.Name,
		Metadata:  parameters.Metadata,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if parameters.Content != nil {
		record.Content = *parameters.Content
	}
	if saveError := service.store.SaveContext(executionContext, record); saveError != nil {
		return nil, saveError
	}
	return recordView(record), nil
}

func (service *ContextService) get(executionContext context.Context, taskID string, name string) (any, error) {
	record, exists, loadError := service.store.LoadContext(executionContext, name)
	if loadError != nil {
		return nil, loadError
	}
	if !exists {
		return nil, automation.ValidationError{TaskID: taskID, Message: fmt.Sprintf(contextNotFoundTemplateConstant, name)}
	}
	return recordView(record), nil
}

func (service *ContextService) update(executionContext context.Context, taskID string, parameters contextParameters) (any, error) {
	record, exists, loadError := service.store.LoadContext(executionContext, parameters.Name)
	if loadError != nil {
		return nil, loadError
	}
	if !exists {
		return nil, automation.ValidationError{TaskID: taskID, Message: fmt.Sprintf(contextNotFoundTemplateConstant, parameters.Name)}
	}
	if parameters.Content != nil {
		record.Content = *parameters.Content
	}
	if len(parameters.Metadata) > 0 {
		if record.Metadata == nil {
			record.Metadata = make(map[string]any, len(parameters.Metadata))
		}
		for key, value := range parameters.Metadata {
			record.Metadata[key] = value
		}
	}
	record.UpdatedAt = service.clock().UTC()
	if saveError := service.store.SaveContext(executionContext, record); saveError != nil {
		return nil, saveError
	}
	return recordView(record), nil
}

func (service *ContextService) delete(executionContext context.Context, taskID string, name string) (any, error) {
	deleted, deleteError := service.store.DeleteContext(executionContext, name)
	if deleteError != nil {
		return nil, deleteError
	}
	if !deleted {
		return nil, automation.ValidationError{TaskID: taskID, Message: fmt.Sprintf(contextNotFoundTemplateConstant, name)}
	}
	return map[string]any{contextResultNameFieldConstant: name, contextResultDeletedFieldConstant: true}, nil
}

func (service *ContextService) list(executionContext context.Context) (any, error) {
	records, listError := service.store.ListContexts(executionContext)
	if listError != nil {
		return nil, listError
	}
	return recordListView(records), nil
}

// search matches the query case-insensitively against names, content, and string metadata values.
func (service *ContextService) search(executionContext context.Context, taskID string, parameters contextParameters) (any, error) {
	query := strings.ToLower(strings.TrimSpace(parameters.Query))
	if query == "" {
		return nil, automation.ValidationError{TaskID: taskID, Message: contextQueryMissingMessageConstant}
	}
	limit := parameters.Limit
	if limit <= 0 {
		limit = contextDefaultSearchLimitConstant
	}

	records, listError := service.store.ListContexts(executionContext)
	if listError != nil {
		return nil, listError
	}
	matches := make([]ContextRecord, 0, limit)
	for _, record := range records {
		if len(matches) == limit {
			break
		}
		if recordMatches(record, query) {
			matches = append(matches, record)
		}
	}
	return recordListView(matches), nil
}

func recordMatches(record ContextRecord, query string) bool {
	if strings.Contains(strings.ToLower(record.Name), query) || strings.Contains(strings.ToLower(record.Content), query) {
		return true
	}
	for _, value := range record.Metadata {
		if text, ok := value.(string); ok && strings.Contains(strings.ToLower(text), query) {
			return true
		}
	}
	return false
}

func recordListView(records []ContextRecord) map[string]any {
	views := make([]any, 0, len(records))
	for _, record := range records {
		views = append(views, recordView(record))
	}
	return map[string]any{
		contextResultContextsFieldConstant: views,
		contextResultCountFieldConstant:    len(views),
	}
}

func recordView(record ContextRecord) map[string]any {
	metadata := make(map[string]any, len(record.Metadata))
	for key, value := range record.Metadata {
		metadata[key] = value
	}
	return map[string]any{
		contextResultNameFieldConstant:      record.Name,
		contextResultContentFieldConstant:   record.Content,
		contextResultMetadataFieldConstant:  metadata,
		contextResultCreatedAtFieldConstant: record.CreatedAt.Format(contextTimestampLayoutConstant),
		contextResultUpdatedAtFieldConstant: record.UpdatedAt.Format(contextTimestampLayoutConstant),
	}
}

func cloneRecord(record ContextRecord) ContextRecord {
	cloned := record
	if record.Metadata != nil {
		cloned.Metadata = make(map[string]any, len(record.Metadata))
		for key, value := range record.Metadata {
			cloned.Metadata[key] = value
		}
	}
	return cloned
}
