package automation

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

const (
	capabilityCollaboratorNameTemplateConstant = "capability/%s"
	capabilityUnknownServiceTemplateConstant   = "unknown capability service %q (available: %s)"
	capabilityServiceFieldConstant             = "service"
	capabilityActionFieldConstant              = "action"
	capabilityResultFieldConstant              = "result"
	capabilityMemoryKeyTemplateConstant        = "capability_%s_result"
	capabilityServiceSeparatorConstant         = ", "
)

// Capability service names.
const (
	CapabilityServiceCommand = "command"
	CapabilityServiceTool    = "tool"
	CapabilityServiceContext = "context"
)

// CapabilityInvocation is the request handed to a capability service.
type CapabilityInvocation struct {
	TaskID     string
	Action     string
	Parameters map[string]any
}

// CapabilityService performs one family of local capabilities. Services return ValidationError
// for malformed input and any other error for backend failures.
type CapabilityService interface {
	Invoke(executionContext context.Context, invocation CapabilityInvocation) (any, error)
}

type capabilityParameters struct {
	Service string `mapstructure:"service"`
	Action  string `mapstructure:"action"`
}

// CapabilityExecutor routes capability tasks to the service named by the service parameter.
type CapabilityExecutor struct {
	Services map[string]CapabilityService
}

// Execute implements TaskExecutor.
func (executor CapabilityExecutor) Execute(executionContext context.Context, task Task, taskContext TaskContext) (TaskOutput, error) {
	var parameters capabilityParameters
	if decodeError := DecodeParameters(task.ID, task.Parameters, &parameters); decodeError != nil {
		return TaskOutput{}, decodeError
	}
	serviceName := strings.ToLower(strings.TrimSpace(parameters.Service))
	service, exists := executor.Services[serviceName]
	if !exists || service == nil {
		return TaskOutput{}, ValidationError{
			TaskID:  task.ID,
			Message: fmt.Sprintf(capabilityUnknownServiceTemplateConstant, parameters.Service, strings.Join(executor.serviceNames(), capabilityServiceSeparatorConstant)),
		}
	}

	action := strings.TrimSpace(parameters.Action)
	result, invocationError := service.Invoke(executionContext, CapabilityInvocation{
		TaskID:     task.ID,
		Action:     action,
		Parameters: cloneMap(task.Parameters),
	})
	if invocationError != nil {
		return TaskOutput{}, classifyCapabilityError(task, serviceName, invocationError)
	}

	return TaskOutput{
		Fields: map[string]any{
			capabilityServiceFieldConstant: serviceName,
			capabilityActionFieldConstant:  action,
			capabilityResultFieldConstant:  result,
		},
		MemoryUpdate: map[string]any{
			fmt.Sprintf(capabilityMemoryKeyTemplateConstant, serviceName): result,
		},
	}, nil
}

func (executor CapabilityExecutor) serviceNames() []string {
	names := make([]string, 0, len(executor.Services))
	for name := range executor.Services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func classifyCapabilityError(task Task, serviceName string, invocationError error) error {
	if ClassifyError(invocationError) == ErrorKindValidation {
		return invocationError
	}
	return CollaboratorError{
		Collaborator: fmt.Sprintf(capabilityCollaboratorNameTemplateConstant, serviceName),
		TaskID:       task.ID,
		Cause:        invocationError,
	}
}
