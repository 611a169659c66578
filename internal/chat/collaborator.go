package chat

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/tyemirov/utils/llm"
	"go.uber.org/zap"

	"github.com/tyemirov/autoflow/internal/automation"
)

const (
	systemRoleConstant                  = "system"
	userRoleConstant                    = "user"
	apiKeyMissingTemplateConstant       = "environment variable %s must be set with an API key"
	emptyResponseMessageConstant        = "chat backend returned an empty response"
	clientCreationErrorTemplateConstant = "unable to create chat client for model %s: %w"
	chatRequestStartedEventConstant     = "chat_request_started"
	chatRequestCompletedEventConstant   = "chat_request_completed"
	chatRequestFailedEventConstant      = "chat_request_failed"
	modelFieldConstant                  = "model"
	messageLengthFieldConstant          = "message_length"
	responseLengthFieldConstant         = "response_length"
)

// ErrEmptyResponse indicates that the backend answered without any text.
var ErrEmptyResponse = errors.New(emptyResponseMessageConstant)

// ClientFactory builds chat clients from configuration.
type ClientFactory func(config llm.Config) (llm.ChatClient, error)

// EnvironmentLookup resolves environment variables.
type EnvironmentLookup func(name string) (string, bool)

// Dependencies configures a Collaborator.
type Dependencies struct {
	Logger            *zap.Logger
	ClientFactory     ClientFactory
	EnvironmentLookup EnvironmentLookup
}

// Collaborator answers chat task prompts through an OpenAI-compatible backend.
// One client is created per model and reused.
type Collaborator struct {
	configuration     Configuration
	logger            *zap.Logger
	clientFactory     ClientFactory
	environmentLookup EnvironmentLookup
	mutex             sync.Mutex
	clients           map[string]llm.ChatClient
}

// NewCollaborator constructs a Collaborator. The API key is resolved on first use, so a process
// without credentials can still run workflows that contain no chat tasks.
func NewCollaborator(configuration Configuration, dependencies Dependencies) *Collaborator {
	logger := dependencies.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clientFactory := dependencies.ClientFactory
	if clientFactory == nil {
		clientFactory = func(config llm.Config) (llm.ChatClient, error) {
			return llm.NewFactory(config)
		}
	}
	environmentLookup := dependencies.EnvironmentLookup
	if environmentLookup == nil {
		environmentLookup = os.LookupEnv
	}
	return &Collaborator{
		configuration:     configuration.Sanitize(),
		logger:            logger,
		clientFactory:     clientFactory,
		environmentLookup: environmentLookup,
		clients:           make(map[string]llm.ChatClient),
	}
}

// Complete implements automation.ChatCollaborator.
func (collaborator *Collaborator) Complete(executionContext context.Context, request automation.ChatRequest) (automation.ChatResponse, error) {
	model := strings.TrimSpace(request.Model)
	if model == "" {
		model = collaborator.configuration.Model
	}

	client, clientError := collaborator.clientForModel(model)
	if clientError != nil {
		return automation.ChatResponse{}, clientError
	}

	messages := make([]llm.Message, 0, 2)
	if systemPrompt := strings.TrimSpace(request.SystemPrompt); systemPrompt != "" {
		messages = append(messages, llm.Message{Role: systemRoleConstant, Content: systemPrompt})
	}
	messages = append(messages, llm.Message{Role: userRoleConstant, Content: request.Message})

	chatRequest := llm.ChatRequest{
		Messages:  messages,
		MaxTokens: collaborator.configuration.MaxCompletionTokens,
	}
	if collaborator.configuration.Temperature > 0 {
		temperature := collaborator.configuration.Temperature
		chatRequest.Temperature = &temperature
	}

	collaborator.logger.Debug(chatRequestStartedEventConstant,
		zap.String(modelFieldConstant, model),
		zap.Int(messageLengthFieldConstant, len(request.Message)),
	)

	responseText, chatError := client.Chat(executionContext, chatRequest)
	if chatError != nil {
		collaborator.logger.Warn(chatRequestFailedEventConstant, zap.String(modelFieldConstant, model), zap.Error(chatError))
		return automation.ChatResponse{}, chatError
	}
	responseText = strings.TrimSpace(responseText)
	if responseText == "" {
		collaborator.logger.Warn(chatRequestFailedEventConstant, zap.String(modelFieldConstant, model), zap.Error(ErrEmptyResponse))
		return automation.ChatResponse{}, ErrEmptyResponse
	}

	collaborator.logger.Debug(chatRequestCompletedEventConstant,
		zap.String(modelFieldConstant, model),
		zap.Int(responseLengthFieldConstant, len(responseText)),
	)
	return automation.ChatResponse{Text: responseText, Model: model}, nil
}

func (collaborator *Collaborator) clientForModel(model string) (llm.ChatClient, error) {
	collaborator.mutex.Lock()
	defer collaborator.mutex.Unlock()

	if client, exists := collaborator.clients[model]; exists {
		return client, nil
	}

	apiKey, apiKeyPresent := collaborator.environmentLookup(collaborator.configuration.APIKeyEnv)
	if !apiKeyPresent || strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf(apiKeyMissingTemplateConstant, collaborator.configuration.APIKeyEnv)
	}

	client, clientError := collaborator.clientFactory(llm.Config{
		BaseURL:             collaborator.configuration.BaseURL,
		APIKey:              strings.TrimSpace(apiKey),
		Model:               model,
		MaxCompletionTokens: collaborator.configuration.MaxCompletionTokens,
		Temperature:         collaborator.configuration.Temperature,
		RequestTimeout:      time.Duration(collaborator.configuration.TimeoutSeconds) * time.Second,
	})
	if clientError != nil {
		return nil, fmt.Errorf(clientCreationErrorTemplateConstant, model, clientError)
	}
	collaborator.clients[model] = client
	return client, nil
}
