package automation

import (
	"time"
)

// WorkflowDefinition is a named, ordered collection of tasks.
type WorkflowDefinition struct {
	ID          string           `json:"id" yaml:"id" mapstructure:"id"`
	Name        string           `json:"name" yaml:"name" mapstructure:"name"`
	Description string           `json:"description" yaml:"description" mapstructure:"description"`
	Tasks       []Task           `json:"tasks" yaml:"tasks" mapstructure:"tasks"`
	Triggers    []map[string]any `json:"triggers,omitempty" yaml:"triggers,omitempty" mapstructure:"triggers"`
	Schedule    string           `json:"schedule,omitempty" yaml:"schedule,omitempty" mapstructure:"schedule"`
	Enabled     bool             `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	CreatedAt   time.Time        `json:"created_at" yaml:"created_at" mapstructure:"-"`
}

// Clone returns a deep copy of the definition.
func (definition WorkflowDefinition) Clone() WorkflowDefinition {
	cloned := definition
	if definition.Tasks != nil {
		cloned.Tasks = make([]Task, len(definition.Tasks))
		for taskIndex := range definition.Tasks {
			cloned.Tasks[taskIndex] = definition.Tasks[taskIndex].Clone()
		}
	}
	if definition.Triggers != nil {
		cloned.Triggers = make([]map[string]any, len(definition.Triggers))
		for triggerIndex := range definition.Triggers {
			cloned.Triggers[triggerIndex] = cloneMap(definition.Triggers[triggerIndex])
		}
	}
	return cloned
}

// Summary condenses the definition for listings.
func (definition WorkflowDefinition) Summary() WorkflowSummary {
	return WorkflowSummary{
		ID:          definition.ID,
		Name:        definition.Name,
		Description: definition.Description,
		Enabled:     definition.Enabled,
		TaskCount:   len(definition.Tasks),
	}
}

// WorkflowSummary is the listing view of a workflow.
type WorkflowSummary struct {
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
	Enabled     bool   `json:"enabled" yaml:"enabled"`
	TaskCount   int    `json:"task_count" yaml:"task_count"`
}

// TaskStatusReport is the per-task view included in a workflow status report.
type TaskStatusReport struct {
	ID           string     `json:"id" yaml:"id"`
	Name         string     `json:"name" yaml:"name"`
	Type         TaskType   `json:"type" yaml:"type"`
	Status       TaskStatus `json:"status" yaml:"status"`
	Dependencies []string   `json:"dependencies" yaml:"dependencies"`
	Error        string     `json:"error,omitempty" yaml:"error,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty" yaml:"completed_at,omitempty"`
}

// WorkflowStatusReport describes a workflow and the current state of its tasks.
type WorkflowStatusReport struct {
	WorkflowSummary `yaml:",inline"`
	Tasks           []TaskStatusReport `json:"tasks" yaml:"tasks"`
}

// StatusReport builds the status view of the definition.
func (definition WorkflowDefinition) StatusReport() WorkflowStatusReport {
	report := WorkflowStatusReport{
		WorkflowSummary: definition.Summary(),
		Tasks:           make([]TaskStatusReport, 0, len(definition.Tasks)),
	}
	for _, task := range definition.Tasks {
		dependencies := make([]string, len(task.Dependencies))
		copy(dependencies, task.Dependencies)
		report.Tasks = append(report.Tasks, TaskStatusReport{
			ID:           task.ID,
			Name:         task.Name,
			Type:         task.Type,
			Status:       task.Status,
			Dependencies: dependencies,
			Error:        task.Error,
			CompletedAt:  task.CompletedAt,
		})
	}
	return report
}

// WorkflowDraft carries the caller-supplied fields for a new workflow.
type WorkflowDraft struct {
	Name        string           `json:"name" yaml:"name" mapstructure:"name"`
	Description string           `json:"description" yaml:"description" mapstructure:"description"`
	Tasks       []Task           `json:"tasks" yaml:"tasks" mapstructure:"tasks"`
	Triggers    []map[string]any `json:"triggers,omitempty" yaml:"triggers,omitempty" mapstructure:"triggers"`
	Schedule    string           `json:"schedule,omitempty" yaml:"schedule,omitempty" mapstructure:"schedule"`
}
