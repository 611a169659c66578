package automation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const (
	chatCollaboratorNameConstant           = "chat"
	chatMessageMissingMessageConstant      = "chat task requires a message"
	chatContextualMessageTemplateConstant  = "Context: %s\n\nTask: %s"
	chatResponseFieldConstant              = "response"
	chatModelUsedFieldConstant             = "model_used"
	chatLastResponseMemoryKeyConstant      = "last_response"
	chatCollaboratorMissingMessageConstant = "chat collaborator not configured"
)

// ErrChatCollaboratorNotConfigured indicates that chat tasks cannot run in this process.
var ErrChatCollaboratorNotConfigured = errors.New(chatCollaboratorMissingMessageConstant)

// ChatRequest is a single prompt sent to the chat collaborator.
type ChatRequest struct {
	Message      string
	SystemPrompt string
	Model        string
}

// ChatResponse carries the collaborator reply and the model that produced it.
type ChatResponse struct {
	Text  string
	Model string
}

// ChatCollaborator answers prompts on behalf of chat tasks.
type ChatCollaborator interface {
	Complete(executionContext context.Context, request ChatRequest) (ChatResponse, error)
}

type chatParameters struct {
	Message      string `mapstructure:"message"`
	SystemPrompt string `mapstructure:"system_prompt"`
	Model        string `mapstructure:"model"`
	SaveToMemory *bool  `mapstructure:"save_to_memory"`
}

// ChatExecutor runs chat tasks.
type ChatExecutor struct {
	Collaborator ChatCollaborator
}

// Execute implements TaskExecutor.
func (executor ChatExecutor) Execute(executionContext context.Context, task Task, taskContext TaskContext) (TaskOutput, error) {
	var parameters chatParameters
	if decodeError := DecodeParameters(task.ID, task.Parameters, &parameters); decodeError != nil {
		return TaskOutput{}, decodeError
	}
	message := strings.TrimSpace(parameters.Message)
	if len(message) == 0 {
		return TaskOutput{}, ValidationError{TaskID: task.ID, Message: chatMessageMissingMessageConstant}
	}
	if executor.Collaborator == nil {
		return TaskOutput{}, CollaboratorError{Collaborator: chatCollaboratorNameConstant, TaskID: task.ID, Cause: ErrChatCollaboratorNotConfigured}
	}

	if len(taskContext.SharedMemory) > 0 {
		encodedMemory, encodeError := json.Marshal(taskContext.SharedMemory)
		if encodeError != nil {
			return TaskOutput{}, ValidationError{TaskID: task.ID, Message: encodeError.Error()}
		}
		message = fmt.Sprintf(chatContextualMessageTemplateConstant, string(encodedMemory), message)
	}

	response, chatError := executor.Collaborator.Complete(executionContext, ChatRequest{
		Message:      message,
		SystemPrompt: strings.TrimSpace(parameters.SystemPrompt),
		Model:        strings.TrimSpace(parameters.Model),
	})
	if chatError != nil {
		return TaskOutput{}, CollaboratorError{Collaborator: chatCollaboratorNameConstant, TaskID: task.ID, Cause: chatError}
	}

	modelUsed := strings.TrimSpace(parameters.Model)
	if len(modelUsed) == 0 {
		modelUsed = response.Model
	}

	saveToMemory := parameters.SaveToMemory == nil || *parameters.SaveToMemory
	memoryUpdate := map[string]any{}
	if saveToMemory {
		memoryUpdate[chatLastResponseMemoryKeyConstant] = response.Text
	}

	return TaskOutput{
		Fields: map[string]any{
			chatResponseFieldConstant:  response.Text,
			chatModelUsedFieldConstant: modelUsed,
		},
		MemoryUpdate: memoryUpdate,
	}, nil
}
