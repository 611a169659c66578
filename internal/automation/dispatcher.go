package automation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	unknownTaskTypeMessageTemplateConstant = "unsupported task type %q"
	memoryUpdateResultFieldConstant        = "memory_update"
	taskDispatchStartedMessageConstant     = "task_dispatch_started"
	taskDispatchCompletedMessageConstant   = "task_dispatch_completed"
	taskDispatchFailedMessageConstant      = "task_dispatch_failed"
	logFieldWorkflowIDConstant             = "workflow_id"
	logFieldTaskIDConstant                 = "task_id"
	logFieldTaskTypeConstant               = "task_type"
	logFieldDurationConstant               = "duration"
	logFieldErrorKindConstant              = "error_kind"
)

// TaskContext is the read-only view of the run handed to an executor.
type TaskContext struct {
	WorkflowID    string
	CallerContext map[string]any
	SharedMemory  map[string]any
}

// TaskOutput is what an executor produces on success.
type TaskOutput struct {
	Fields       map[string]any
	MemoryUpdate map[string]any
}

// TaskExecutor runs tasks of one type against its collaborator. Executors must not retry.
type TaskExecutor interface {
	Execute(executionContext context.Context, task Task, taskContext TaskContext) (TaskOutput, error)
}

// TaskExecutorFunc adapts a function to the TaskExecutor interface.
type TaskExecutorFunc func(executionContext context.Context, task Task, taskContext TaskContext) (TaskOutput, error)

// Execute calls the wrapped function.
func (executorFunc TaskExecutorFunc) Execute(executionContext context.Context, task Task, taskContext TaskContext) (TaskOutput, error) {
	return executorFunc(executionContext, task, taskContext)
}

// TaskDispatcher routes a task to its executor and folds any failure into the result.
type TaskDispatcher interface {
	Dispatch(executionContext context.Context, task Task, taskContext TaskContext) TaskResult
}

// TaskResult is the normalized outcome of one dispatch.
type TaskResult struct {
	Success      bool           `json:"success" yaml:"success"`
	Result       map[string]any `json:"result,omitempty" yaml:"result,omitempty"`
	Error        string         `json:"error,omitempty" yaml:"error,omitempty"`
	ErrorKind    ErrorKind      `json:"error_kind,omitempty" yaml:"error_kind,omitempty"`
	Duration     time.Duration  `json:"duration" yaml:"duration"`
	MemoryUpdate map[string]any `json:"memory_update,omitempty" yaml:"memory_update,omitempty"`
}

// Dispatcher routes tasks to the executor registered for their type.
type Dispatcher struct {
	mutex     sync.RWMutex
	executors map[TaskType]TaskExecutor
	logger    *zap.Logger
	clock     func() time.Time
}

// NewDispatcher constructs an empty dispatcher.
func NewDispatcher(logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		executors: make(map[TaskType]TaskExecutor),
		logger:    logger,
		clock:     time.Now,
	}
}

// Register binds an executor to a task type, replacing any previous binding.
func (dispatcher *Dispatcher) Register(taskType TaskType, executor TaskExecutor) {
	if executor == nil {
		return
	}
	dispatcher.mutex.Lock()
	defer dispatcher.mutex.Unlock()
	dispatcher.executors[normalizeTaskType(taskType)] = executor
}

// RegisteredTypes lists the task types with a bound executor.
func (dispatcher *Dispatcher) RegisteredTypes() []TaskType {
	dispatcher.mutex.RLock()
	defer dispatcher.mutex.RUnlock()
	types := make([]TaskType, 0, len(dispatcher.executors))
	for taskType := range dispatcher.executors {
		types = append(types, taskType)
	}
	return types
}

// Dispatch runs the task and folds any failure into the returned result.
func (dispatcher *Dispatcher) Dispatch(executionContext context.Context, task Task, taskContext TaskContext) TaskResult {
	startTime := dispatcher.clock()
	taskType := normalizeTaskType(task.Type)

	dispatcher.logger.Debug(taskDispatchStartedMessageConstant,
		zap.String(logFieldWorkflowIDConstant, taskContext.WorkflowID),
		zap.String(logFieldTaskIDConstant, task.ID),
		zap.String(logFieldTaskTypeConstant, string(taskType)),
	)

	dispatcher.mutex.RLock()
	executor, registered := dispatcher.executors[taskType]
	dispatcher.mutex.RUnlock()

	var output TaskOutput
	var executionError error
	if !registered {
		executionError = ValidationError{TaskID: task.ID, Message: fmt.Sprintf(unknownTaskTypeMessageTemplateConstant, task.Type)}
	} else {
		output, executionError = executor.Execute(executionContext, task, taskContext)
	}
	duration := dispatcher.clock().Sub(startTime)

	if executionError != nil {
		classified := classifyExecutorError(task, taskType, executionError)
		errorKind := ClassifyError(classified)
		dispatcher.logger.Warn(taskDispatchFailedMessageConstant,
			zap.String(logFieldWorkflowIDConstant, taskContext.WorkflowID),
			zap.String(logFieldTaskIDConstant, task.ID),
			zap.String(logFieldTaskTypeConstant, string(taskType)),
			zap.String(logFieldErrorKindConstant, string(errorKind)),
			zap.Duration(logFieldDurationConstant, duration),
			zap.Error(classified),
		)
		return TaskResult{
			Success:   false,
			Error:     classified.Error(),
			ErrorKind: errorKind,
			Duration:  duration,
		}
	}

	fields := cloneMap(output.Fields)
	if fields == nil {
		fields = make(map[string]any)
	}
	memoryUpdate := cloneMap(output.MemoryUpdate)
	if memoryUpdate == nil {
		memoryUpdate = make(map[string]any)
	}
	fields[memoryUpdateResultFieldConstant] = cloneMap(memoryUpdate)

	dispatcher.logger.Debug(taskDispatchCompletedMessageConstant,
		zap.String(logFieldWorkflowIDConstant, taskContext.WorkflowID),
		zap.String(logFieldTaskIDConstant, task.ID),
		zap.String(logFieldTaskTypeConstant, string(taskType)),
		zap.Duration(logFieldDurationConstant, duration),
	)

	return TaskResult{
		Success:      true,
		Result:       fields,
		Duration:     duration,
		MemoryUpdate: memoryUpdate,
	}
}

func classifyExecutorError(task Task, taskType TaskType, executionError error) error {
	var validationError ValidationError
	if errors.As(executionError, &validationError) {
		return executionError
	}
	var collaboratorError CollaboratorError
	if errors.As(executionError, &collaboratorError) {
		return executionError
	}
	return CollaboratorError{Collaborator: string(taskType), TaskID: task.ID, Cause: executionError}
}

func normalizeTaskType(taskType TaskType) TaskType {
	return TaskType(strings.ToLower(strings.TrimSpace(string(taskType))))
}
