package automation

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

const (
	webhookCollaboratorNameConstant          = "webhook"
	botCollaboratorNameConstant              = "bot"
	webhookTargetMissingMessageConstant      = "external-webhook task requires webhook_url or workflow_id"
	webhookBaseURLMissingMessageConstant     = "remote workflow base URL not configured"
	botBaseURLMissingMessageConstant         = "bot coordinator base URL not configured"
	botActionMissingMessageConstant          = "external-bot task requires an action"
	remoteWorkflowPathTemplateConstant       = "api/v1/workflows/%s/execute"
	botExecutePathConstant                   = "api/execute"
	remoteInvokerMissingMessageConstant      = "remote invoker not configured"
	webhookContextPayloadKeyConstant         = "context"
	webhookWorkflowContextPayloadKeyConstant = "workflow_context"
	webhookWorkflowIDFieldConstant           = "workflow_id"
	webhookResultFieldConstant               = "result"
	webhookResultMemoryKeyConstant           = "webhook_result"
	botActionFieldConstant                   = "action"
	botBotsFieldConstant                     = "bots"
	botCommandsFieldConstant                 = "commands"
	botContextFieldConstant                  = "context"
	botResultFieldConstant                   = "result"
	botResultMemoryKeyConstant               = "bot_result"
)

// ErrRemoteInvokerNotConfigured indicates that outbound calls cannot be made in this process.
var ErrRemoteInvokerNotConfigured = errors.New(remoteInvokerMissingMessageConstant)

// RemoteInvoker performs a blocking JSON POST and returns the decoded response body.
type RemoteInvoker interface {
	PostJSON(executionContext context.Context, endpoint string, payload any) (any, error)
}

type webhookParameters struct {
	WebhookURL string         `mapstructure:"webhook_url"`
	WorkflowID string         `mapstructure:"workflow_id"`
	Data       map[string]any `mapstructure:"data"`
}

// WebhookExecutor posts task data to a webhook or a named remote workflow.
type WebhookExecutor struct {
	Invoker RemoteInvoker
	BaseURL string
}

// Execute implements TaskExecutor.
func (executor WebhookExecutor) Execute(executionContext context.Context, task Task, taskContext TaskContext) (TaskOutput, error) {
	var parameters webhookParameters
	if decodeError := DecodeParameters(task.ID, task.Parameters, &parameters); decodeError != nil {
		return TaskOutput{}, decodeError
	}

	webhookURL := strings.TrimSpace(parameters.WebhookURL)
	workflowID := strings.TrimSpace(parameters.WorkflowID)
	endpoint := webhookURL
	if len(endpoint) == 0 {
		if len(workflowID) == 0 {
			return TaskOutput{}, ValidationError{TaskID: task.ID, Message: webhookTargetMissingMessageConstant}
		}
		if len(strings.TrimSpace(executor.BaseURL)) == 0 {
			return TaskOutput{}, ValidationError{TaskID: task.ID, Message: webhookBaseURLMissingMessageConstant}
		}
		endpoint = joinEndpoint(executor.BaseURL, fmt.Sprintf(remoteWorkflowPathTemplateConstant, url.PathEscape(workflowID)))
	}
	if executor.Invoker == nil {
		return TaskOutput{}, CollaboratorError{Collaborator: webhookCollaboratorNameConstant, TaskID: task.ID, Cause: ErrRemoteInvokerNotConfigured}
	}

	payload := cloneMap(parameters.Data)
	if payload == nil {
		payload = make(map[string]any)
	}
	payload[webhookContextPayloadKeyConstant] = nonNilMap(taskContext.SharedMemory)
	payload[webhookWorkflowContextPayloadKeyConstant] = nonNilMap(taskContext.CallerContext)

	result, invocationError := executor.Invoker.PostJSON(executionContext, endpoint, payload)
	if invocationError != nil {
		return TaskOutput{}, CollaboratorError{Collaborator: webhookCollaboratorNameConstant, TaskID: task.ID, Cause: invocationError}
	}

	return TaskOutput{
		Fields: map[string]any{
			webhookWorkflowIDFieldConstant: workflowID,
			webhookResultFieldConstant:     result,
		},
		MemoryUpdate: map[string]any{webhookResultMemoryKeyConstant: result},
	}, nil
}

type botParameters struct {
	Action   string `mapstructure:"action"`
	Bots     []any  `mapstructure:"bots"`
	Commands []any  `mapstructure:"commands"`
}

// BotExecutor sends coordination requests to the bot coordinator.
type BotExecutor struct {
	Invoker RemoteInvoker
	BaseURL string
}

// Execute implements TaskExecutor.
func (executor BotExecutor) Execute(executionContext context.Context, task Task, taskContext TaskContext) (TaskOutput, error) {
	var parameters botParameters
	if decodeError := DecodeParameters(task.ID, task.Parameters, &parameters); decodeError != nil {
		return TaskOutput{}, decodeError
	}
	action := strings.TrimSpace(parameters.Action)
	if len(action) == 0 {
		return TaskOutput{}, ValidationError{TaskID: task.ID, Message: botActionMissingMessageConstant}
	}
	if len(strings.TrimSpace(executor.BaseURL)) == 0 {
		return TaskOutput{}, ValidationError{TaskID: task.ID, Message: botBaseURLMissingMessageConstant}
	}
	if executor.Invoker == nil {
		return TaskOutput{}, CollaboratorError{Collaborator: botCollaboratorNameConstant, TaskID: task.ID, Cause: ErrRemoteInvokerNotConfigured}
	}

	bots := nonNilSlice(parameters.Bots)
	commands := nonNilSlice(parameters.Commands)
	payload := map[string]any{
		botActionFieldConstant:   action,
		botBotsFieldConstant:     bots,
		botCommandsFieldConstant: commands,
		botContextFieldConstant:  nonNilMap(taskContext.SharedMemory),
	}

	result, invocationError := executor.Invoker.PostJSON(executionContext, joinEndpoint(executor.BaseURL, botExecutePathConstant), payload)
	if invocationError != nil {
		return TaskOutput{}, CollaboratorError{Collaborator: botCollaboratorNameConstant, TaskID: task.ID, Cause: invocationError}
	}

	return TaskOutput{
		Fields: map[string]any{
			botActionFieldConstant: action,
			botBotsFieldConstant:   bots,
			botResultFieldConstant: result,
		},
		MemoryUpdate: map[string]any{botResultMemoryKeyConstant: result},
	}, nil
}

func joinEndpoint(baseURL string, path string) string {
	return strings.TrimRight(strings.TrimSpace(baseURL), "/") + "/" + strings.TrimLeft(path, "/")
}

func nonNilMap(values map[string]any) map[string]any {
	cloned := cloneMap(values)
	if cloned == nil {
		return map[string]any{}
	}
	return cloned
}

func nonNilSlice(values []any) []any {
	if values == nil {
		return []any{}
	}
	return values
}
