package automation

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	workflowIdentifierPrefixConstant          = "workflow_"
	taskIdentifierTemplateConstant            = "task_%d"
	defaultTaskNameConstant                   = "Unnamed Task"
	defaultTaskTypeConstant                   = TaskTypeChat
	workflowNameMissingMessageConstant        = "workflow name is required"
	duplicateTaskIDMessageTemplateConstant    = "task id %q already exists in workflow %s"
	workflowStoreErrorTemplateConstant        = "workflow store failure: %w"
	workflowRegisteredMessageConstant         = "workflow_registered"
	workflowRegistrationFailedMessageConstant = "workflow_registration_failed"
	workflowTaskAddedMessageConstant          = "workflow_task_added"
	workflowTaskRejectedMessageConstant       = "workflow_task_rejected"
	workflowEnabledChangedMessageConstant     = "workflow_enabled_changed"
	logFieldWorkflowNameConstant              = "workflow_name"
	logFieldTaskCountConstant                 = "task_count"
	logFieldEnabledConstant                   = "enabled"
	taskStateNotFoundMessageTemplateConstant  = "task %s not found in workflow %s"
)

// Registry owns workflow definitions and their tasks.
type Registry struct {
	mutex               sync.Mutex
	store               WorkflowStore
	logger              *zap.Logger
	clock               func() time.Time
	identifierGenerator func() string
}

// NewRegistry constructs a registry over the provided store.
func NewRegistry(store WorkflowStore, logger *zap.Logger) *Registry {
	if store == nil {
		store = NewMemoryWorkflowStore()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		store:  store,
		logger: logger,
		clock:  time.Now,
		identifierGenerator: func() string {
			return workflowIdentifierPrefixConstant + uuid.NewString()
		},
	}
}

// Register stores the definition. An existing workflow with the same id is silently replaced.
func (registry *Registry) Register(executionContext context.Context, definition WorkflowDefinition) error {
	registry.mutex.Lock()
	defer registry.mutex.Unlock()
	return registry.registerLocked(executionContext, definition)
}

func (registry *Registry) registerLocked(executionContext context.Context, definition WorkflowDefinition) error {
	now := registry.clock()
	normalized := definition.Clone()
	if normalized.CreatedAt.IsZero() {
		normalized.CreatedAt = now
	}
	for taskIndex := range normalized.Tasks {
		normalized.Tasks[taskIndex] = normalizeTask(normalized.Tasks[taskIndex], now)
	}
	if identifierError := assignTaskIdentifiers(normalized.ID, normalized.Tasks); identifierError != nil {
		registry.logger.Warn(workflowRegistrationFailedMessageConstant,
			zap.String(logFieldWorkflowIDConstant, normalized.ID),
			zap.Error(identifierError),
		)
		return identifierError
	}

	if saveError := registry.store.SaveWorkflow(executionContext, normalized); saveError != nil {
		registry.logger.Error(workflowRegistrationFailedMessageConstant,
			zap.String(logFieldWorkflowIDConstant, normalized.ID),
			zap.Error(saveError),
		)
		return fmt.Errorf(workflowStoreErrorTemplateConstant, saveError)
	}

	registry.logger.Info(workflowRegisteredMessageConstant,
		zap.String(logFieldWorkflowIDConstant, normalized.ID),
		zap.String(logFieldWorkflowNameConstant, normalized.Name),
		zap.Int(logFieldTaskCountConstant, len(normalized.Tasks)),
	)
	return nil
}

// CreateWorkflow registers a new enabled workflow under a generated id and appends the draft tasks.
func (registry *Registry) CreateWorkflow(executionContext context.Context, draft WorkflowDraft) (WorkflowDefinition, error) {
	name := strings.TrimSpace(draft.Name)
	if len(name) == 0 {
		return WorkflowDefinition{}, ValidationError{Message: workflowNameMissingMessageConstant}
	}

	registry.mutex.Lock()
	defer registry.mutex.Unlock()

	definition := WorkflowDefinition{
		ID:          registry.identifierGenerator(),
		Name:        name,
		Description: strings.TrimSpace(draft.Description),
		Tasks:       make([]Task, 0, len(draft.Tasks)),
		Triggers:    draft.Triggers,
		Schedule:    strings.TrimSpace(draft.Schedule),
		Enabled:     true,
		CreatedAt:   registry.clock(),
	}
	for _, draftTask := range draft.Tasks {
		task, appendError := registry.appendTask(&definition, draftTask)
		if appendError != nil {
			return WorkflowDefinition{}, appendError
		}
		definition.Tasks = append(definition.Tasks, task)
	}

	if registerError := registry.registerLocked(executionContext, definition); registerError != nil {
		return WorkflowDefinition{}, registerError
	}
	return definition.Clone(), nil
}

// Get returns a copy of the workflow.
func (registry *Registry) Get(executionContext context.Context, workflowID string) (WorkflowDefinition, error) {
	definition, loadError := registry.load(executionContext, workflowID)
	if loadError != nil {
		return WorkflowDefinition{}, loadError
	}
	return definition, nil
}

// List summarizes every workflow in registration order.
func (registry *Registry) List(executionContext context.Context) ([]WorkflowSummary, error) {
	definitions, listError := registry.store.ListWorkflows(executionContext)
	if listError != nil {
		return nil, fmt.Errorf(workflowStoreErrorTemplateConstant, listError)
	}
	summaries := make([]WorkflowSummary, 0, len(definitions))
	for _, definition := range definitions {
		summaries = append(summaries, definition.Summary())
	}
	return summaries, nil
}

// AddTask appends a pending task. A blank id is replaced with a generated one; a duplicate id is rejected.
func (registry *Registry) AddTask(executionContext context.Context, workflowID string, task Task) (Task, error) {
	registry.mutex.Lock()
	defer registry.mutex.Unlock()

	definition, loadError := registry.load(executionContext, workflowID)
	if loadError != nil {
		registry.logger.Warn(workflowTaskRejectedMessageConstant,
			zap.String(logFieldWorkflowIDConstant, workflowID),
			zap.Error(loadError),
		)
		return Task{}, loadError
	}

	appended, appendError := registry.appendTask(&definition, task)
	if appendError != nil {
		registry.logger.Warn(workflowTaskRejectedMessageConstant,
			zap.String(logFieldWorkflowIDConstant, workflowID),
			zap.Error(appendError),
		)
		return Task{}, appendError
	}
	definition.Tasks = append(definition.Tasks, appended)

	if saveError := registry.store.SaveWorkflow(executionContext, definition); saveError != nil {
		return Task{}, fmt.Errorf(workflowStoreErrorTemplateConstant, saveError)
	}

	registry.logger.Info(workflowTaskAddedMessageConstant,
		zap.String(logFieldWorkflowIDConstant, workflowID),
		zap.String(logFieldTaskIDConstant, appended.ID),
		zap.String(logFieldTaskTypeConstant, string(appended.Type)),
	)
	return appended.Clone(), nil
}

// Status reports the workflow summary together with the state of every task.
func (registry *Registry) Status(executionContext context.Context, workflowID string) (WorkflowStatusReport, error) {
	definition, loadError := registry.load(executionContext, workflowID)
	if loadError != nil {
		return WorkflowStatusReport{}, loadError
	}
	return definition.StatusReport(), nil
}

// SetEnabled toggles whether the workflow may be executed.
func (registry *Registry) SetEnabled(executionContext context.Context, workflowID string, enabled bool) error {
	registry.mutex.Lock()
	defer registry.mutex.Unlock()

	definition, loadError := registry.load(executionContext, workflowID)
	if loadError != nil {
		return loadError
	}
	definition.Enabled = enabled
	if saveError := registry.store.SaveWorkflow(executionContext, definition); saveError != nil {
		return fmt.Errorf(workflowStoreErrorTemplateConstant, saveError)
	}
	registry.logger.Info(workflowEnabledChangedMessageConstant,
		zap.String(logFieldWorkflowIDConstant, workflowID),
		zap.Bool(logFieldEnabledConstant, enabled),
	)
	return nil
}

// recordTaskState stores the lifecycle fields of a task that is being executed.
func (registry *Registry) recordTaskState(executionContext context.Context, workflowID string, task Task) error {
	registry.mutex.Lock()
	defer registry.mutex.Unlock()

	definition, loadError := registry.load(executionContext, workflowID)
	if loadError != nil {
		return loadError
	}
	for taskIndex := range definition.Tasks {
		if definition.Tasks[taskIndex].ID != task.ID {
			continue
		}
		stored := &definition.Tasks[taskIndex]
		stored.Status = task.Status
		stored.Result = cloneValue(task.Result)
		stored.Error = task.Error
		stored.CompletedAt = task.CompletedAt
		if saveError := registry.store.SaveWorkflow(executionContext, definition); saveError != nil {
			return fmt.Errorf(workflowStoreErrorTemplateConstant, saveError)
		}
		return nil
	}
	return fmt.Errorf(taskStateNotFoundMessageTemplateConstant, task.ID, workflowID)
}

func (registry *Registry) load(executionContext context.Context, workflowID string) (WorkflowDefinition, error) {
	trimmedID := strings.TrimSpace(workflowID)
	definition, found, loadError := registry.store.LoadWorkflow(executionContext, trimmedID)
	if loadError != nil {
		return WorkflowDefinition{}, fmt.Errorf(workflowStoreErrorTemplateConstant, loadError)
	}
	if !found {
		return WorkflowDefinition{}, NotFoundError{WorkflowID: trimmedID}
	}
	return definition, nil
}

func (registry *Registry) appendTask(definition *WorkflowDefinition, task Task) (Task, error) {
	prepared := normalizeTask(task, registry.clock())
	prepared.Status = TaskStatusPending
	prepared.Result = nil
	prepared.Error = ""
	prepared.CompletedAt = nil

	existing := make(map[string]struct{}, len(definition.Tasks))
	for _, current := range definition.Tasks {
		existing[current.ID] = struct{}{}
	}

	if len(prepared.ID) == 0 {
		sequence := len(definition.Tasks) + 1
		for {
			candidate := fmt.Sprintf(taskIdentifierTemplateConstant, sequence)
			if _, taken := existing[candidate]; !taken {
				prepared.ID = candidate
				break
			}
			sequence++
		}
	}
	if _, duplicate := existing[prepared.ID]; duplicate {
		return Task{}, ValidationError{TaskID: prepared.ID, Message: fmt.Sprintf(duplicateTaskIDMessageTemplateConstant, prepared.ID, definition.ID)}
	}
	return prepared, nil
}

// assignTaskIdentifiers gives blank ids the next free task_<n> and rejects ids used twice.
func assignTaskIdentifiers(workflowID string, tasks []Task) error {
	taken := make(map[string]struct{}, len(tasks))
	for _, task := range tasks {
		if len(task.ID) == 0 {
			continue
		}
		if _, duplicate := taken[task.ID]; duplicate {
			return ValidationError{TaskID: task.ID, Message: fmt.Sprintf(duplicateTaskIDMessageTemplateConstant, task.ID, workflowID)}
		}
		taken[task.ID] = struct{}{}
	}

	sequence := 0
	for taskIndex := range tasks {
		if len(tasks[taskIndex].ID) > 0 {
			continue
		}
		for {
			sequence++
			candidate := fmt.Sprintf(taskIdentifierTemplateConstant, sequence)
			if _, exists := taken[candidate]; !exists {
				tasks[taskIndex].ID = candidate
				taken[candidate] = struct{}{}
				break
			}
		}
	}
	return nil
}

func normalizeTask(task Task, now time.Time) Task {
	normalized := task.Clone()
	normalized.ID = strings.TrimSpace(normalized.ID)
	normalized.Name = strings.TrimSpace(normalized.Name)
	if len(normalized.Name) == 0 {
		normalized.Name = defaultTaskNameConstant
	}
	normalized.Type = TaskType(strings.TrimSpace(string(normalized.Type)))
	if len(normalized.Type) == 0 {
		normalized.Type = defaultTaskTypeConstant
	}
	if normalized.Parameters == nil {
		normalized.Parameters = map[string]any{}
	}
	normalized.Dependencies = NormalizeDependencies(normalized.Dependencies)
	if len(normalized.Status) == 0 {
		normalized.Status = TaskStatusPending
	}
	if normalized.CreatedAt.IsZero() {
		normalized.CreatedAt = now
	}
	return normalized
}
