package serve

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tyemirov/autoflow/internal/server"
	flagutils "github.com/tyemirov/autoflow/internal/utils/flags"
)

const (
	useConstant                            = "serve"
	shortDescriptionConstant               = "Expose the workflow platform over HTTP"
	longDescriptionConstant                = "serve starts an HTTP listener exposing workflow registration, execution, status, and shared memory as JSON endpoints. It stops on SIGINT or SIGTERM."
	exampleConstant                        = "autoflow serve --address 0.0.0.0:8080"
	addressFlagNameConstant                = "address"
	addressFlagUsageConstant               = "Listen address (host:port); overrides server.address"
	platformProviderMissingMessageConstant = "serve command platform provider not configured"
)

// ErrPlatformProviderMissing indicates that the command was built without a platform provider.
var ErrPlatformProviderMissing = errors.New(platformProviderMissingMessageConstant)

// LoggerProvider yields a zap logger for command execution.
type LoggerProvider func() *zap.Logger

// PlatformProvider yields the platform, constructing it on first use.
type PlatformProvider func(executionContext context.Context) (server.Platform, error)

// ConfigurationProvider yields the configured server settings.
type ConfigurationProvider func() server.Configuration

// ServerRunner runs a constructed server until the context ends.
type ServerRunner func(executionContext context.Context, httpServer *server.Server) error

// CommandBuilder assembles the serve command.
type CommandBuilder struct {
	LoggerProvider        LoggerProvider
	PlatformProvider      PlatformProvider
	ConfigurationProvider ConfigurationProvider
	Runner                ServerRunner
}

// Build constructs the serve command.
func (builder *CommandBuilder) Build() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:     useConstant,
		Short:   shortDescriptionConstant,
		Long:    longDescriptionConstant,
		Example: exampleConstant,
		Args:    cobra.NoArgs,
		RunE:    builder.run,
	}
	command.Flags().String(addressFlagNameConstant, "", addressFlagUsageConstant)
	return command, nil
}

func (builder *CommandBuilder) run(command *cobra.Command, arguments []string) error {
	if builder.PlatformProvider == nil {
		return ErrPlatformProviderMissing
	}

	parentContext := command.Context()
	if parentContext == nil {
		parentContext = context.Background()
	}

	platform, platformError := builder.PlatformProvider(parentContext)
	if platformError != nil {
		return platformError
	}

	configuration := server.Configuration{}
	if builder.ConfigurationProvider != nil {
		configuration = builder.ConfigurationProvider()
	}
	if address, addressChanged, _ := flagutils.StringFlag(command, addressFlagNameConstant); addressChanged && len(strings.TrimSpace(address)) > 0 {
		configuration.Address = strings.TrimSpace(address)
	}

	logger := zap.NewNop()
	if builder.LoggerProvider != nil {
		if provided := builder.LoggerProvider(); provided != nil {
			logger = provided
		}
	}

	gin.SetMode(gin.ReleaseMode)
	httpServer, serverError := server.New(platform, logger, configuration)
	if serverError != nil {
		return serverError
	}

	signalContext, stop := signal.NotifyContext(parentContext, os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner := builder.Runner
	if runner == nil {
		runner = func(executionContext context.Context, httpServer *server.Server) error {
			return httpServer.Run(executionContext)
		}
	}
	return runner(signalContext, httpServer)
}
