package automation

import (
	"errors"
	"fmt"
	"strings"
)

const (
	validationErrorTemplateConstant            = "task %s validation failed: %s"
	validationErrorWithoutTaskTemplateConstant = "validation failed: %s"
	dependencyErrorTemplateConstant            = "circular or missing dependency detected; unresolved tasks: %s"
	collaboratorErrorTemplateConstant          = "%s collaborator failed for task %s: %v"
	notFoundErrorTemplateConstant              = "workflow %s not found"
	workflowDisabledErrorTemplateConstant      = "workflow %s is disabled"
	unresolvedTaskSeparatorConstant            = ", "
)

// ErrorKind classifies failures surfaced by the engine.
type ErrorKind string

// Supported error kinds.
const (
	ErrorKindValidation   ErrorKind = "validation"
	ErrorKindDependency   ErrorKind = "dependency"
	ErrorKindCollaborator ErrorKind = "collaborator"
	ErrorKindNotFound     ErrorKind = "not_found"
	ErrorKindDisabled     ErrorKind = "disabled"
	ErrorKindInternal     ErrorKind = "internal"
)

// ValidationError reports an unknown task type, an unknown capability service, or malformed parameters.
type ValidationError struct {
	TaskID  string
	Message string
	Cause   error
}

// Error implements the error interface.
func (validationError ValidationError) Error() string {
	message := validationError.Message
	if validationError.Cause != nil {
		message = fmt.Sprintf("%s: %v", message, validationError.Cause)
	}
	if len(validationError.TaskID) == 0 {
		return fmt.Sprintf(validationErrorWithoutTaskTemplateConstant, message)
	}
	return fmt.Sprintf(validationErrorTemplateConstant, validationError.TaskID, message)
}

// Unwrap exposes the underlying cause.
func (validationError ValidationError) Unwrap() error {
	return validationError.Cause
}

// DependencyError reports that dependency resolution could not order the remaining tasks.
// Cycles and references to unknown task ids are reported identically.
type DependencyError struct {
	WorkflowID string
	Unresolved []string
}

// Error implements the error interface.
func (dependencyError DependencyError) Error() string {
	return fmt.Sprintf(dependencyErrorTemplateConstant, strings.Join(dependencyError.Unresolved, unresolvedTaskSeparatorConstant))
}

// CollaboratorError wraps a failure returned by an external backend.
type CollaboratorError struct {
	Collaborator string
	TaskID       string
	Cause        error
}

// Error implements the error interface.
func (collaboratorError CollaboratorError) Error() string {
	return fmt.Sprintf(collaboratorErrorTemplateConstant, collaboratorError.Collaborator, collaboratorError.TaskID, collaboratorError.Cause)
}

// Unwrap exposes the underlying cause.
func (collaboratorError CollaboratorError) Unwrap() error {
	return collaboratorError.Cause
}

// NotFoundError reports an unknown workflow identifier.
type NotFoundError struct {
	WorkflowID string
}

// Error implements the error interface.
func (notFoundError NotFoundError) Error() string {
	return fmt.Sprintf(notFoundErrorTemplateConstant, notFoundError.WorkflowID)
}

// WorkflowDisabledError reports an execution request for a disabled workflow.
type WorkflowDisabledError struct {
	WorkflowID string
}

// Error implements the error interface.
func (disabledError WorkflowDisabledError) Error() string {
	return fmt.Sprintf(workflowDisabledErrorTemplateConstant, disabledError.WorkflowID)
}

// ClassifyError maps an error onto its ErrorKind.
func ClassifyError(err error) ErrorKind {
	if err == nil {
		return ""
	}

	var validationError ValidationError
	var dependencyError DependencyError
	var collaboratorError CollaboratorError
	var notFoundError NotFoundError
	var disabledError WorkflowDisabledError

	switch {
	case errors.As(err, &validationError):
		return ErrorKindValidation
	case errors.As(err, &dependencyError):
		return ErrorKindDependency
	case errors.As(err, &collaboratorError):
		return ErrorKindCollaborator
	case errors.As(err, &notFoundError):
		return ErrorKindNotFound
	case errors.As(err, &disabledError):
		return ErrorKindDisabled
	default:
		return ErrorKindInternal
	}
}
