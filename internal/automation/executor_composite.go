package automation

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

const (
	compositeSubTasksCountFieldConstant       = "sub_tasks_count"
	compositeResultsFieldConstant             = "results"
	compositeCompletedMemoryKeyConstant       = "composite_task_completed"
	compositeSubTaskIDTemplateConstant        = "%s_sub_%d"
	compositeDispatcherMissingMessageConstant = "composite dispatcher not configured"
	compositeSubTaskDefaultNameConstant       = "Unnamed Task"
	compositeCollaboratorNameConstant         = "composite"
	compositeSubTaskDefaultTypeConstant       = TaskTypeChat
)

// SubTaskResult records the outcome of one nested task.
type SubTaskResult struct {
	TaskID     string `json:"task_id" yaml:"task_id"`
	TaskResult `yaml:",inline"`
}

type compositeParameters struct {
	SubTasks []Task `mapstructure:"sub_tasks"`
}

// CompositeExecutor runs nested tasks sequentially, feeding each sub-task's memory update to the next.
type CompositeExecutor struct {
	Dispatcher TaskDispatcher
}

// Execute implements TaskExecutor.
func (executor CompositeExecutor) Execute(executionContext context.Context, task Task, taskContext TaskContext) (TaskOutput, error) {
	if executor.Dispatcher == nil {
		return TaskOutput{}, CollaboratorError{Collaborator: compositeCollaboratorNameConstant, TaskID: task.ID, Cause: errors.New(compositeDispatcherMissingMessageConstant)}
	}

	var parameters compositeParameters
	if decodeError := DecodeParameters(task.ID, task.Parameters, &parameters); decodeError != nil {
		return TaskOutput{}, decodeError
	}

	localContext := TaskContext{
		WorkflowID:    taskContext.WorkflowID,
		CallerContext: cloneMap(taskContext.CallerContext),
		SharedMemory:  nonNilMap(taskContext.SharedMemory),
	}
	accumulatedUpdate := make(map[string]any)
	results := make([]SubTaskResult, 0, len(parameters.SubTasks))

	for subTaskIndex, subTask := range parameters.SubTasks {
		prepared := prepareSubTask(task.ID, subTaskIndex, subTask)
		subResult := executor.Dispatcher.Dispatch(executionContext, prepared, localContext)
		results = append(results, SubTaskResult{TaskID: prepared.ID, TaskResult: subResult})
		if len(subResult.MemoryUpdate) > 0 {
			localContext.SharedMemory = mergeInto(localContext.SharedMemory, subResult.MemoryUpdate)
			accumulatedUpdate = mergeInto(accumulatedUpdate, subResult.MemoryUpdate)
		}
	}

	accumulatedUpdate[compositeCompletedMemoryKeyConstant] = true

	return TaskOutput{
		Fields: map[string]any{
			compositeSubTasksCountFieldConstant: len(parameters.SubTasks),
			compositeResultsFieldConstant:       results,
		},
		MemoryUpdate: accumulatedUpdate,
	}, nil
}

func prepareSubTask(parentID string, subTaskIndex int, subTask Task) Task {
	prepared := subTask.Clone()
	prepared.ID = strings.TrimSpace(prepared.ID)
	if len(prepared.ID) == 0 {
		prepared.ID = fmt.Sprintf(compositeSubTaskIDTemplateConstant, parentID, subTaskIndex+1)
	}
	if len(strings.TrimSpace(prepared.Name)) == 0 {
		prepared.Name = compositeSubTaskDefaultNameConstant
	}
	if len(strings.TrimSpace(string(prepared.Type))) == 0 {
		prepared.Type = compositeSubTaskDefaultTypeConstant
	}
	prepared.Dependencies = NormalizeDependencies(prepared.Dependencies)
	prepared.Status = TaskStatusRunning
	return prepared
}
