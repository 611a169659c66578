package cli

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/tyemirov/autoflow/internal/automation"
	"github.com/tyemirov/autoflow/internal/capabilities"
	"github.com/tyemirov/autoflow/internal/chat"
	"github.com/tyemirov/autoflow/internal/execshell"
	"github.com/tyemirov/autoflow/internal/persistence"
	"github.com/tyemirov/autoflow/internal/remote"
)

const (
	storageOpenErrorTemplateConstant      = "unable to open %s storage: %w"
	sharedMemoryLoadErrorTemplateConstant = "unable to load shared memory: %w"
	commandExecutorErrorTemplateConstant  = "unable to construct command executor: %w"
	platformReadyMessageConstant          = "platform_ready"
	platformCloseFailedMessageConstant    = "platform_close_failed"
	storageDriverLogFieldConstant         = "storage_driver"
	parallelismLogFieldConstant           = "parallelism"
	toolServerCountLogFieldConstant       = "tool_server_count"
)

// PlatformFactory builds the automation platform for the loaded configuration. The returned function
// releases storage handles and tool server processes.
type PlatformFactory func(executionContext context.Context, configuration ApplicationConfiguration, logger *zap.Logger, humanReadableLogging bool) (*automation.Platform, func() error, error)

// NewPlatform wires storage, shared memory, and every collaborator named in the configuration.
func NewPlatform(executionContext context.Context, configuration ApplicationConfiguration, logger *zap.Logger, humanReadableLogging bool) (*automation.Platform, func() error, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	backends, backendsError := persistence.OpenBackends(configuration.Storage)
	if backendsError != nil {
		return nil, nil, fmt.Errorf(storageOpenErrorTemplateConstant, configuration.Storage.Driver, backendsError)
	}

	memory := automation.NewSharedMemory(nil)
	if backends.SharedMemory != nil {
		persistentMemory, memoryError := automation.NewPersistentSharedMemory(executionContext, backends.SharedMemory)
		if memoryError != nil {
			_ = backends.Close()
			return nil, nil, fmt.Errorf(sharedMemoryLoadErrorTemplateConstant, memoryError)
		}
		memory = persistentMemory
	}

	shellExecutor, executorError := execshell.NewShellExecutor(logger, execshell.NewOSCommandRunner(), humanReadableLogging)
	if executorError != nil {
		_ = backends.Close()
		return nil, nil, fmt.Errorf(commandExecutorErrorTemplateConstant, executorError)
	}

	toolService := capabilities.NewToolService(configuration.Capabilities.Tool, nil, logger)
	capabilityServices := map[string]automation.CapabilityService{
		automation.CapabilityServiceCommand: capabilities.NewCommandService(shellExecutor, configuration.Capabilities.Command),
		automation.CapabilityServiceTool:    toolService,
		automation.CapabilityServiceContext: capabilities.NewContextService(backends.Contexts),
	}

	platform := automation.NewPlatform(automation.PlatformDependencies{
		Logger:         logger,
		Store:          backends.Workflows,
		Memory:         memory,
		Chat:           chat.NewCollaborator(configuration.Chat, chat.Dependencies{Logger: logger}),
		Capabilities:   capabilityServices,
		RemoteInvoker:  remote.NewJSONClient(logger, nil, configuration.Remote),
		WebhookBaseURL: configuration.Remote.WebhookBaseURL,
		BotBaseURL:     configuration.Remote.BotBaseURL,
		Parallelism:    configuration.Execution.Parallelism,
	})

	logger.Debug(platformReadyMessageConstant,
		zap.String(storageDriverLogFieldConstant, configuration.Storage.Driver),
		zap.Int(parallelismLogFieldConstant, configuration.Execution.Parallelism),
		zap.Int(toolServerCountLogFieldConstant, len(configuration.Capabilities.Tool.Servers)),
	)

	closer := func() error {
		return errors.Join(toolService.Close(), backends.Close())
	}
	return platform, closer, nil
}

func (application *Application) resolvePlatform(executionContext context.Context) (*automation.Platform, error) {
	application.platformMutex.Lock()
	defer application.platformMutex.Unlock()

	if application.platform != nil {
		return application.platform, nil
	}

	configuration := application.configuration
	if application.executionFlags.ParallelismSet && application.executionFlags.Parallelism > 0 {
		configuration.Execution.Parallelism = application.executionFlags.Parallelism
	}

	platform, closer, platformError := application.platformFactory(executionContext, configuration, application.logger, application.humanReadableLoggingEnabled())
	if platformError != nil {
		return nil, platformError
	}
	application.platform = platform
	application.platformCloser = closer
	return platform, nil
}

func (application *Application) closePlatform() error {
	application.platformMutex.Lock()
	defer application.platformMutex.Unlock()

	closer := application.platformCloser
	application.platform = nil
	application.platformCloser = nil
	if closer == nil {
		return nil
	}
	closeError := closer()
	if closeError != nil {
		application.logger.Warn(platformCloseFailedMessageConstant, zap.Error(closeError))
	}
	return closeError
}
