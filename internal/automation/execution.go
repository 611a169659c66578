package automation

import (
	"time"
)

// RunStatus tracks the lifecycle of one workflow execution.
type RunStatus string

// Run lifecycle states.
const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// RoundOutcome describes the tasks executed within one resolution round.
type RoundOutcome struct {
	Index    int           `json:"index" yaml:"index"`
	TaskIDs  []string      `json:"task_ids" yaml:"task_ids"`
	Duration time.Duration `json:"duration" yaml:"duration"`
}

// ExecutionContext is the per-run state returned to callers.
type ExecutionContext struct {
	WorkflowID   string                `json:"workflow_id" yaml:"workflow_id"`
	StartTime    time.Time             `json:"start_time" yaml:"start_time"`
	EndTime      time.Time             `json:"end_time" yaml:"end_time"`
	Duration     time.Duration         `json:"duration" yaml:"duration"`
	Context      map[string]any        `json:"context" yaml:"context"`
	Order        []string              `json:"order" yaml:"order"`
	Rounds       []RoundOutcome        `json:"rounds" yaml:"rounds"`
	Results      map[string]TaskResult `json:"results" yaml:"results"`
	SharedMemory map[string]any        `json:"shared_memory" yaml:"shared_memory"`
	Status       RunStatus             `json:"status" yaml:"status"`
	Error        string                `json:"error,omitempty" yaml:"error,omitempty"`
}

// FailedTaskIDs lists the tasks whose result reports a failure, in execution order.
func (execution ExecutionContext) FailedTaskIDs() []string {
	failed := make([]string, 0)
	for _, taskID := range execution.Order {
		if result, exists := execution.Results[taskID]; exists && !result.Success {
			failed = append(failed, taskID)
		}
	}
	return failed
}

func (execution *ExecutionContext) finish(status RunStatus, endTime time.Time) {
	execution.Status = status
	execution.EndTime = endTime
	execution.Duration = endTime.Sub(execution.StartTime)
}
