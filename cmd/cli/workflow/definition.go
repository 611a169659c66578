package workflow

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/tyemirov/autoflow/internal/automation"
)

const (
	definitionReadErrorTemplateConstant  = "unable to read workflow definition %q: %w"
	definitionParseErrorTemplateConstant = "unable to parse workflow definition %q: %w"
	taskReadErrorTemplateConstant        = "unable to read task definition %q: %w"
	taskParseErrorTemplateConstant       = "unable to parse task definition %q: %w"
	definitionIDMissingTemplateConstant  = "workflow definition %q has no id"
)

type enablementOverride struct {
	Enabled *bool `yaml:"enabled"`
}

// loadWorkflowDraft reads a YAML or JSON workflow definition with name, description, and tasks.
func loadWorkflowDraft(path string) (automation.WorkflowDraft, error) {
	trimmedPath := strings.TrimSpace(path)
	content, readError := os.ReadFile(trimmedPath)
	if readError != nil {
		return automation.WorkflowDraft{}, fmt.Errorf(definitionReadErrorTemplateConstant, trimmedPath, readError)
	}

	var draft automation.WorkflowDraft
	if unmarshalError := yaml.Unmarshal(content, &draft); unmarshalError != nil {
		return automation.WorkflowDraft{}, fmt.Errorf(definitionParseErrorTemplateConstant, trimmedPath, unmarshalError)
	}
	return draft, nil
}

// loadTaskDefinition reads a single YAML or JSON task.
func loadTaskDefinition(path string) (automation.Task, error) {
	trimmedPath := strings.TrimSpace(path)
	content, readError := os.ReadFile(trimmedPath)
	if readError != nil {
		return automation.Task{}, fmt.Errorf(taskReadErrorTemplateConstant, trimmedPath, readError)
	}

	var task automation.Task
	if unmarshalError := yaml.Unmarshal(content, &task); unmarshalError != nil {
		return automation.Task{}, fmt.Errorf(taskParseErrorTemplateConstant, trimmedPath, unmarshalError)
	}
	return task, nil
}

// loadWorkflowDefinition reads a complete YAML or JSON workflow including its id. Workflows without an
// enabled key are imported enabled.
func loadWorkflowDefinition(path string) (automation.WorkflowDefinition, error) {
	trimmedPath := strings.TrimSpace(path)
	content, readError := os.ReadFile(trimmedPath)
	if readError != nil {
		return automation.WorkflowDefinition{}, fmt.Errorf(definitionReadErrorTemplateConstant, trimmedPath, readError)
	}

	var definition automation.WorkflowDefinition
	if unmarshalError := yaml.Unmarshal(content, &definition); unmarshalError != nil {
		return automation.WorkflowDefinition{}, fmt.Errorf(definitionParseErrorTemplateConstant, trimmedPath, unmarshalError)
	}
	var override enablementOverride
	if unmarshalError := yaml.Unmarshal(content, &override); unmarshalError != nil {
		return automation.WorkflowDefinition{}, fmt.Errorf(definitionParseErrorTemplateConstant, trimmedPath, unmarshalError)
	}

	definition.ID = strings.TrimSpace(definition.ID)
	if len(definition.ID) == 0 {
		return automation.WorkflowDefinition{}, fmt.Errorf(definitionIDMissingTemplateConstant, trimmedPath)
	}
	definition.Enabled = override.Enabled == nil || *override.Enabled
	return definition, nil
}
