package automation

import (
	"context"

	"go.uber.org/zap"
)

// PlatformDependencies supplies the collaborators behind each task type.
type PlatformDependencies struct {
	Logger              *zap.Logger
	Store               WorkflowStore
	Memory              *SharedMemory
	Chat                ChatCollaborator
	Capabilities        map[string]CapabilityService
	RemoteInvoker       RemoteInvoker
	WebhookBaseURL      string
	BotBaseURL          string
	Parallelism         int
	AdditionalExecutors map[TaskType]TaskExecutor
}

// Platform is the application facade over the registry, dispatcher, executor, and shared memory.
type Platform struct {
	registry   *Registry
	dispatcher *Dispatcher
	executor   *Executor
	memory     *SharedMemory
	logger     *zap.Logger
}

// NewPlatform wires the five built-in executors and any additional ones supplied by the caller.
func NewPlatform(dependencies PlatformDependencies) *Platform {
	logger := dependencies.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	memory := dependencies.Memory
	if memory == nil {
		memory = NewSharedMemory(nil)
	}

	registry := NewRegistry(dependencies.Store, logger)
	dispatcher := NewDispatcher(logger)
	dispatcher.Register(TaskTypeChat, ChatExecutor{Collaborator: dependencies.Chat})
	dispatcher.Register(TaskTypeCapability, CapabilityExecutor{Services: dependencies.Capabilities})
	dispatcher.Register(TaskTypeExternalWebhook, WebhookExecutor{Invoker: dependencies.RemoteInvoker, BaseURL: dependencies.WebhookBaseURL})
	dispatcher.Register(TaskTypeExternalBot, BotExecutor{Invoker: dependencies.RemoteInvoker, BaseURL: dependencies.BotBaseURL})
	dispatcher.Register(TaskTypeComposite, CompositeExecutor{Dispatcher: dispatcher})
	for taskType, executor := range dependencies.AdditionalExecutors {
		dispatcher.Register(taskType, executor)
	}

	return &Platform{
		registry:   registry,
		dispatcher: dispatcher,
		executor:   NewExecutor(registry, dispatcher, memory, logger, ExecutorOptions{Parallelism: dependencies.Parallelism}),
		memory:     memory,
		logger:     logger,
	}
}

// Registry exposes the workflow registry.
func (platform *Platform) Registry() *Registry {
	return platform.registry
}

// Dispatcher exposes the task dispatcher.
func (platform *Platform) Dispatcher() *Dispatcher {
	return platform.dispatcher
}

// RegisterWorkflow stores a fully formed definition, replacing any workflow with the same id.
func (platform *Platform) RegisterWorkflow(executionContext context.Context, definition WorkflowDefinition) error {
	return platform.registry.Register(executionContext, definition)
}

// CreateWorkflow registers a new workflow from the draft.
func (platform *Platform) CreateWorkflow(executionContext context.Context, draft WorkflowDraft) (WorkflowDefinition, error) {
	return platform.registry.CreateWorkflow(executionContext, draft)
}

// AddTask appends a task to an existing workflow.
func (platform *Platform) AddTask(executionContext context.Context, workflowID string, task Task) (Task, error) {
	return platform.registry.AddTask(executionContext, workflowID, task)
}

// GetWorkflow returns a copy of the workflow definition.
func (platform *Platform) GetWorkflow(executionContext context.Context, workflowID string) (WorkflowDefinition, error) {
	return platform.registry.Get(executionContext, workflowID)
}

// ListWorkflows summarizes every registered workflow.
func (platform *Platform) ListWorkflows(executionContext context.Context) ([]WorkflowSummary, error) {
	return platform.registry.List(executionContext)
}

// WorkflowStatus reports per-task state for the workflow.
func (platform *Platform) WorkflowStatus(executionContext context.Context, workflowID string) (WorkflowStatusReport, error) {
	return platform.registry.Status(executionContext, workflowID)
}

// SetWorkflowEnabled toggles whether the workflow may run.
func (platform *Platform) SetWorkflowEnabled(executionContext context.Context, workflowID string, enabled bool) error {
	return platform.registry.SetEnabled(executionContext, workflowID, enabled)
}

// ExecuteWorkflow runs the workflow with the caller context.
func (platform *Platform) ExecuteWorkflow(executionContext context.Context, workflowID string, callerContext map[string]any) (ExecutionContext, error) {
	return platform.executor.Execute(executionContext, workflowID, callerContext)
}

// GetSharedMemory returns a snapshot of the shared memory, reloaded from the persister when one is
// configured. A failed reload falls back to the local values.
func (platform *Platform) GetSharedMemory() map[string]any {
	if refreshError := platform.memory.Refresh(context.Background()); refreshError != nil {
		platform.logger.Warn(sharedMemoryRefreshFailedMessageConstant, zap.Error(refreshError))
	}
	return platform.memory.Snapshot()
}

// UpdateSharedMemory merges the update into the shared memory.
func (platform *Platform) UpdateSharedMemory(executionContext context.Context, update map[string]any) error {
	return platform.memory.Merge(executionContext, update)
}

// ClearSharedMemory removes every key from the shared memory.
func (platform *Platform) ClearSharedMemory(executionContext context.Context) error {
	return platform.memory.Clear(executionContext)
}
