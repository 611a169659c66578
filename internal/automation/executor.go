package automation

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	defaultParallelismConstant                = 1
	workflowExecutionStartedMessageConstant   = "workflow_execution_started"
	workflowExecutionCompletedMessageConstant = "workflow_execution_completed"
	workflowExecutionRejectedMessageConstant  = "workflow_execution_rejected"
	workflowExecutionFailedMessageConstant    = "workflow_execution_failed"
	workflowRoundCompleteMessageConstant      = "workflow_round_complete"
	taskStateRecordFailedMessageConstant      = "task_state_record_failed"
	taskTransitionFailedMessageConstant       = "task_transition_failed"
	sharedMemoryMergeFailedMessageConstant    = "shared_memory_merge_failed"
	sharedMemoryRefreshFailedMessageConstant  = "shared_memory_refresh_failed"
	logFieldRoundIndexConstant                = "round_index"
	logFieldRoundTasksConstant                = "round_tasks"
	logFieldFailedTasksConstant               = "failed_tasks"
	logFieldParallelismConstant               = "parallelism"
)

// ExecutorOptions tunes workflow execution.
type ExecutorOptions struct {
	// Parallelism bounds how many members of one resolution round run at once. Values below two run sequentially.
	Parallelism int
}

// Executor runs registered workflows.
type Executor struct {
	registry    *Registry
	dispatcher  TaskDispatcher
	memory      *SharedMemory
	logger      *zap.Logger
	clock       func() time.Time
	parallelism int
}

// NewExecutor wires an executor over the registry, dispatcher, and shared memory.
func NewExecutor(registry *Registry, dispatcher TaskDispatcher, memory *SharedMemory, logger *zap.Logger, options ExecutorOptions) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if memory == nil {
		memory = NewSharedMemory(nil)
	}
	parallelism := options.Parallelism
	if parallelism < defaultParallelismConstant {
		parallelism = defaultParallelismConstant
	}
	return &Executor{
		registry:    registry,
		dispatcher:  dispatcher,
		memory:      memory,
		logger:      logger,
		clock:       time.Now,
		parallelism: parallelism,
	}
}

// Execute runs every task of the workflow in dependency order. Unknown and disabled workflows are
// rejected with a zero ExecutionContext. A dependency failure marks the run failed before any task
// starts. Per-task failures are recorded in the results and never stop the run.
func (executor *Executor) Execute(executionContext context.Context, workflowID string, callerContext map[string]any) (ExecutionContext, error) {
	definition, lookupError := executor.registry.Get(executionContext, workflowID)
	if lookupError != nil {
		executor.logger.Warn(workflowExecutionRejectedMessageConstant,
			zap.String(logFieldWorkflowIDConstant, workflowID),
			zap.Error(lookupError),
		)
		return ExecutionContext{}, lookupError
	}
	if !definition.Enabled {
		disabledError := WorkflowDisabledError{WorkflowID: definition.ID}
		executor.logger.Warn(workflowExecutionRejectedMessageConstant,
			zap.String(logFieldWorkflowIDConstant, definition.ID),
			zap.Error(disabledError),
		)
		return ExecutionContext{}, disabledError
	}

	if refreshError := executor.memory.Refresh(executionContext); refreshError != nil {
		executor.logger.Warn(sharedMemoryRefreshFailedMessageConstant,
			zap.String(logFieldWorkflowIDConstant, definition.ID),
			zap.Error(refreshError),
		)
	}

	run := ExecutionContext{
		WorkflowID:   definition.ID,
		StartTime:    executor.clock(),
		Context:      nonNilMap(callerContext),
		Order:        make([]string, 0, len(definition.Tasks)),
		Rounds:       make([]RoundOutcome, 0),
		Results:      make(map[string]TaskResult, len(definition.Tasks)),
		SharedMemory: executor.memory.Snapshot(),
		Status:       RunStatusRunning,
	}

	executor.logger.Info(workflowExecutionStartedMessageConstant,
		zap.String(logFieldWorkflowIDConstant, definition.ID),
		zap.String(logFieldWorkflowNameConstant, definition.Name),
		zap.Int(logFieldTaskCountConstant, len(definition.Tasks)),
		zap.Int(logFieldParallelismConstant, executor.parallelism),
	)

	rounds, resolutionError := ResolveExecutionRounds(definition.Tasks)
	if resolutionError != nil {
		var dependencyError DependencyError
		if errors.As(resolutionError, &dependencyError) {
			dependencyError.WorkflowID = definition.ID
			resolutionError = dependencyError
		}
		run.Error = resolutionError.Error()
		run.finish(RunStatusFailed, executor.clock())
		executor.logger.Error(workflowExecutionFailedMessageConstant,
			zap.String(logFieldWorkflowIDConstant, definition.ID),
			zap.Error(resolutionError),
		)
		return run, resolutionError
	}

	for _, round := range rounds {
		roundStart := executor.clock()
		if executor.parallelism > 1 && len(round.Tasks) > 1 {
			executor.executeRoundConcurrently(executionContext, round, &run)
		} else {
			for _, task := range round.Tasks {
				executor.executeTask(executionContext, task, &run)
			}
		}
		roundDuration := executor.clock().Sub(roundStart)
		run.Rounds = append(run.Rounds, RoundOutcome{Index: round.Index, TaskIDs: round.TaskIDs(), Duration: roundDuration})
		executor.logger.Info(workflowRoundCompleteMessageConstant,
			zap.String(logFieldWorkflowIDConstant, definition.ID),
			zap.Int(logFieldRoundIndexConstant, round.Index),
			zap.Strings(logFieldRoundTasksConstant, round.TaskIDs()),
			zap.Duration(logFieldDurationConstant, roundDuration),
		)
	}

	run.finish(RunStatusCompleted, executor.clock())
	executor.logger.Info(workflowExecutionCompletedMessageConstant,
		zap.String(logFieldWorkflowIDConstant, definition.ID),
		zap.Int(logFieldTaskCountConstant, len(run.Order)),
		zap.Strings(logFieldFailedTasksConstant, run.FailedTaskIDs()),
		zap.Duration(logFieldDurationConstant, run.Duration),
	)
	return run, nil
}

func (executor *Executor) executeTask(executionContext context.Context, task Task, run *ExecutionContext) {
	executor.beginTask(executionContext, &task, run.WorkflowID)
	result := executor.dispatcher.Dispatch(executionContext, task, executor.taskContext(run))
	executor.applyResult(executionContext, task, result, run)
}

// executeRoundConcurrently dispatches the round members through a bounded worker pool. Every member
// sees the shared memory as it stood when the round started; results are applied afterwards on this
// goroutine in round order, so shared memory has a single writer.
func (executor *Executor) executeRoundConcurrently(executionContext context.Context, round ExecutionRound, run *ExecutionContext) {
	type roundResult struct {
		index  int
		result TaskResult
	}

	tasks := make([]Task, len(round.Tasks))
	copy(tasks, round.Tasks)
	for taskIndex := range tasks {
		executor.beginTask(executionContext, &tasks[taskIndex], run.WorkflowID)
	}

	roundContext := executor.taskContext(run)
	resultChannel := make(chan roundResult, len(tasks))

	var group errgroup.Group
	group.SetLimit(executor.parallelism)
	for taskIndex := range tasks {
		group.Go(func() error {
			taskContext := TaskContext{
				WorkflowID:    roundContext.WorkflowID,
				CallerContext: cloneMap(roundContext.CallerContext),
				SharedMemory:  cloneMap(roundContext.SharedMemory),
			}
			resultChannel <- roundResult{index: taskIndex, result: executor.dispatcher.Dispatch(executionContext, tasks[taskIndex], taskContext)}
			return nil
		})
	}
	_ = group.Wait()
	close(resultChannel)

	results := make([]TaskResult, len(tasks))
	for received := range resultChannel {
		results[received.index] = received.result
	}
	for taskIndex := range tasks {
		executor.applyResult(executionContext, tasks[taskIndex], results[taskIndex], run)
	}
}

func (executor *Executor) taskContext(run *ExecutionContext) TaskContext {
	return TaskContext{
		WorkflowID:    run.WorkflowID,
		CallerContext: cloneMap(run.Context),
		SharedMemory:  cloneMap(run.SharedMemory),
	}
}

func (executor *Executor) beginTask(executionContext context.Context, task *Task, workflowID string) {
	task.beginAttempt()
	executor.persistTaskState(executionContext, workflowID, *task)
}

func (executor *Executor) applyResult(executionContext context.Context, task Task, result TaskResult, run *ExecutionContext) {
	run.Results[task.ID] = result
	run.Order = append(run.Order, task.ID)

	if transitionError := task.finishAttempt(result, executor.clock()); transitionError != nil {
		executor.logger.Warn(taskTransitionFailedMessageConstant,
			zap.String(logFieldWorkflowIDConstant, run.WorkflowID),
			zap.String(logFieldTaskIDConstant, task.ID),
			zap.Error(transitionError),
		)
	}
	executor.persistTaskState(executionContext, run.WorkflowID, task)

	if len(result.MemoryUpdate) == 0 {
		return
	}
	if mergeError := executor.memory.Merge(executionContext, result.MemoryUpdate); mergeError != nil {
		executor.logger.Warn(sharedMemoryMergeFailedMessageConstant,
			zap.String(logFieldWorkflowIDConstant, run.WorkflowID),
			zap.String(logFieldTaskIDConstant, task.ID),
			zap.Error(mergeError),
		)
	}
	run.SharedMemory = executor.memory.Snapshot()
}

func (executor *Executor) persistTaskState(executionContext context.Context, workflowID string, task Task) {
	if recordError := executor.registry.recordTaskState(executionContext, workflowID, task); recordError != nil {
		executor.logger.Warn(taskStateRecordFailedMessageConstant,
			zap.String(logFieldWorkflowIDConstant, workflowID),
			zap.String(logFieldTaskIDConstant, task.ID),
			zap.Error(recordError),
		)
	}
}
