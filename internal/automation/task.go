package automation

import (
	"fmt"
	"strings"
	"time"
)

const (
	taskTransitionErrorTemplateConstant = "task %s cannot transition from %s to %s"
)

// TaskType selects the executor responsible for a task.
type TaskType string

// Supported task types.
const (
	TaskTypeChat            TaskType = "chat"
	TaskTypeCapability      TaskType = "capability"
	TaskTypeExternalWebhook TaskType = "external-webhook"
	TaskTypeExternalBot     TaskType = "external-bot"
	TaskTypeComposite       TaskType = "composite"
)

// TaskStatus tracks the lifecycle of a task within one execution attempt.
type TaskStatus string

// Task lifecycle states.
const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
)

// Terminal reports whether the status ends an execution attempt.
func (status TaskStatus) Terminal() bool {
	return status == TaskStatusCompleted || status == TaskStatusFailed
}

// Task describes one unit of automation work.
type Task struct {
	ID           string         `json:"id" yaml:"id" mapstructure:"id"`
	Name         string         `json:"name" yaml:"name" mapstructure:"name"`
	Type         TaskType       `json:"type" yaml:"type" mapstructure:"type"`
	Parameters   map[string]any `json:"parameters,omitempty" yaml:"parameters,omitempty" mapstructure:"parameters"`
	Dependencies []string       `json:"dependencies,omitempty" yaml:"dependencies,omitempty" mapstructure:"dependencies"`
	Status       TaskStatus     `json:"status" yaml:"status" mapstructure:"status"`
	Result       any            `json:"result,omitempty" yaml:"result,omitempty" mapstructure:"-"`
	Error        string         `json:"error,omitempty" yaml:"error,omitempty" mapstructure:"-"`
	CreatedAt    time.Time      `json:"created_at" yaml:"created_at" mapstructure:"-"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty" yaml:"completed_at,omitempty" mapstructure:"-"`
}

// NormalizeDependencies trims, drops blank entries, and removes duplicates while keeping declaration order.
func NormalizeDependencies(dependencies []string) []string {
	if len(dependencies) == 0 {
		return nil
	}
	normalized := make([]string, 0, len(dependencies))
	seen := make(map[string]struct{}, len(dependencies))
	for _, dependency := range dependencies {
		trimmed := strings.TrimSpace(dependency)
		if len(trimmed) == 0 {
			continue
		}
		if _, duplicate := seen[trimmed]; duplicate {
			continue
		}
		seen[trimmed] = struct{}{}
		normalized = append(normalized, trimmed)
	}
	if len(normalized) == 0 {
		return nil
	}
	return normalized
}

// beginAttempt starts a new execution attempt, discarding the outcome of any previous attempt.
func (task *Task) beginAttempt() {
	task.Status = TaskStatusRunning
	task.Result = nil
	task.Error = ""
	task.CompletedAt = nil
}

// finishAttempt records the terminal state for the current attempt.
func (task *Task) finishAttempt(result TaskResult, completedAt time.Time) error {
	target := TaskStatusFailed
	if result.Success {
		target = TaskStatusCompleted
	}
	if task.Status != TaskStatusRunning {
		return fmt.Errorf(taskTransitionErrorTemplateConstant, task.ID, task.Status, target)
	}
	task.Status = target
	if result.Success {
		task.Result = cloneMap(result.Result)
	} else {
		task.Error = result.Error
	}
	completed := completedAt
	task.CompletedAt = &completed
	return nil
}

// Clone returns a deep copy of the task.
func (task Task) Clone() Task {
	cloned := task
	cloned.Parameters = cloneMap(task.Parameters)
	if task.Dependencies != nil {
		cloned.Dependencies = append([]string(nil), task.Dependencies...)
	}
	cloned.Result = cloneValue(task.Result)
	if task.CompletedAt != nil {
		completed := *task.CompletedAt
		cloned.CompletedAt = &completed
	}
	return cloned
}
