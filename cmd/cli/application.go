package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	memorycmd "github.com/tyemirov/autoflow/cmd/cli/memory"
	servecmd "github.com/tyemirov/autoflow/cmd/cli/serve"
	workflowcmd "github.com/tyemirov/autoflow/cmd/cli/workflow"
	"github.com/tyemirov/autoflow/internal/automation"
	"github.com/tyemirov/autoflow/internal/server"
	"github.com/tyemirov/autoflow/internal/utils"
	flagutils "github.com/tyemirov/autoflow/internal/utils/flags"
	"github.com/tyemirov/autoflow/internal/version"
)

const (
	applicationNameConstant                            = "autoflow"
	applicationShortDescriptionConstant                = "Workflow automation platform"
	applicationLongDescriptionConstant                 = "autoflow registers workflows of dependent tasks, runs them in dependency order through chat, capability, webhook, bot, and composite executors, and serves the same operations over HTTP."
	configFileFlagNameConstant                         = "config"
	configFileFlagUsageConstant                        = "Optional path to a configuration file (YAML or JSON)."
	logLevelFlagNameConstant                           = "log-level"
	logLevelFlagUsageConstant                          = "Override the configured log level."
	logFormatFlagNameConstant                          = "log-format"
	logFormatFlagUsageConstant                         = "Override the configured log format (structured or console)."
	configurationInitializationFlagNameConstant        = "init"
	configurationInitializationFlagUsageConstant       = "Write the embedded default configuration to LOCAL (./config.yaml) or USER ($HOME/.autoflow/config.yaml)."
	configurationInitializationDefaultScopeConstant    = "local"
	configurationInitializationForceFlagNameConstant   = "force"
	configurationInitializationForceFlagUsageConstant  = "Overwrite an existing configuration file when initializing."
	environmentPrefixConstant                          = "AUTOFLOW"
	configurationNameConstant                          = "config"
	configurationTypeConstant                          = "yaml"
	configurationFileNameConstant                      = configurationNameConstant + "." + configurationTypeConstant
	configurationInitializedMessageConstant            = "configuration initialized"
	configurationLogLevelFieldConstant                 = "log_level"
	configurationLogFormatFieldConstant                = "log_format"
	configurationFileFieldConstant                     = "config_file"
	xdgConfigHomeEnvironmentVariableConstant           = "XDG_CONFIG_HOME"
	configurationLoadErrorTemplateConstant             = "unable to load configuration: %w"
	loggerCreationErrorTemplateConstant                = "unable to create logger: %w"
	loggerSyncErrorTemplateConstant                    = "unable to flush logger: %w"
	platformCloseErrorTemplateConstant                 = "unable to release platform resources: %w"
	configurationInitializedConsoleTemplateConstant    = "%s | log level=%s | log format=%s | config file=%s"
	rootCommandInfoMessageConstant                     = "autoflow CLI executed"
	rootCommandDebugMessageConstant                    = "autoflow CLI diagnostics"
	logFieldCommandNameConstant                        = "command_name"
	logFieldArgumentCountConstant                      = "argument_count"
	logFieldArgumentsConstant                          = "arguments"
	loggerNotInitializedMessageConstant                = "logger not initialized"
	defaultConfigurationSearchPathConstant             = "."
	userConfigurationDirectoryNameConstant             = ".autoflow"
	applicationConfigurationDirectoryNameConstant      = "autoflow"
	configurationSearchPathEnvironmentVariableConstant = "AUTOFLOW_CONFIG_SEARCH_PATH"
	versionFlagNameConstant                            = "version"
	versionFlagUsageConstant                           = "Print the application version and exit"
	versionOutputTemplateConstant                      = "autoflow version: %s\n"
	versionCommandUseNameConstant                      = "version"
	versionCommandShortDescriptionConstant             = "Print the autoflow version"
	versionCommandLongDescriptionConstant              = "version prints the current autoflow release identifier."
	workflowCommandAliasConstant                       = "w"
	memoryCommandAliasConstant                         = "m"
)

type loggerOutputsFactory interface {
	CreateLoggerOutputs(utils.LogLevel, utils.LogFormat) (utils.LoggerOutputs, error)
}

// Application wires the Cobra root command, configuration loader, structured logger, and automation platform.
type Application struct {
	rootCommand                       *cobra.Command
	configurationLoader               *utils.ConfigurationLoader
	loggerFactory                     loggerOutputsFactory
	logger                            *zap.Logger
	consoleLogger                     *zap.Logger
	configuration                     ApplicationConfiguration
	configurationMetadata             utils.LoadedConfiguration
	configurationFilePath             string
	logLevelFlagValue                 string
	logFormatFlagValue                string
	commandContextAccessor            utils.CommandContextAccessor
	executionFlags                    utils.ExecutionFlags
	configurationInitializationScope  string
	configurationInitializationForced bool
	versionFlag                       bool
	versionResolver                   func() string
	exitFunction                      func(int)
	platformFactory                   PlatformFactory
	platformMutex                     sync.Mutex
	platform                          *automation.Platform
	platformCloser                    func() error
}

// ApplicationOption customizes an Application during construction.
type ApplicationOption func(*Application)

// WithPlatformFactory replaces the factory used to build the automation platform.
func WithPlatformFactory(factory PlatformFactory) ApplicationOption {
	return func(application *Application) {
		if factory != nil {
			application.platformFactory = factory
		}
	}
}

// NewApplication assembles a fully wired CLI application instance.
func NewApplication(options ...ApplicationOption) *Application {
	application := &Application{
		loggerFactory:          utils.NewLoggerFactory(),
		logger:                 zap.NewNop(),
		consoleLogger:          zap.NewNop(),
		commandContextAccessor: utils.NewCommandContextAccessor(),
		versionResolver:        version.Detect,
		exitFunction:           os.Exit,
		platformFactory:        NewPlatform,
	}
	for _, option := range options {
		option(application)
	}

	application.configurationLoader = utils.NewConfigurationLoader(
		configurationNameConstant,
		configurationTypeConstant,
		environmentPrefixConstant,
		application.resolveConfigurationSearchPaths(),
	)

	embeddedConfigurationData, embeddedConfigurationType := EmbeddedDefaultConfiguration()
	application.configurationLoader.SetEmbeddedConfiguration(embeddedConfigurationData, embeddedConfigurationType)

	cobraCommand := &cobra.Command{
		Use:           applicationNameConstant,
		Short:         applicationShortDescriptionConstant,
		Long:          applicationLongDescriptionConstant,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(command *cobra.Command, arguments []string) error {
			if initializationError := application.initializeConfiguration(command); initializationError != nil {
				return initializationError
			}

			if application.versionFlag {
				application.printVersion(command.OutOrStdout())
				application.exitFunction(0)
			}

			return nil
		},
		RunE: func(command *cobra.Command, arguments []string) error {
			return application.runRootCommand(command, arguments)
		},
	}

	cobraCommand.SetContext(context.Background())
	cobraCommand.PersistentFlags().StringVar(&application.configurationFilePath, configFileFlagNameConstant, "", configFileFlagUsageConstant)
	cobraCommand.PersistentFlags().StringVar(&application.logLevelFlagValue, logLevelFlagNameConstant, "", logLevelFlagUsageConstant)
	cobraCommand.PersistentFlags().StringVar(&application.logFormatFlagValue, logFormatFlagNameConstant, "", logFormatFlagUsageConstant)
	cobraCommand.PersistentFlags().StringVar(
		&application.configurationInitializationScope,
		configurationInitializationFlagNameConstant,
		configurationInitializationDefaultScopeConstant,
		configurationInitializationFlagUsageConstant,
	)
	cobraCommand.PersistentFlags().BoolVar(
		&application.configurationInitializationForced,
		configurationInitializationForceFlagNameConstant,
		false,
		configurationInitializationForceFlagUsageConstant,
	)
	cobraCommand.PersistentFlags().BoolVar(&application.versionFlag, versionFlagNameConstant, false, versionFlagUsageConstant)

	flagutils.BindExecutionFlags(
		cobraCommand,
		flagutils.ExecutionDefaults{OutputFormat: string(utils.OutputFormatTable)},
		flagutils.DefaultExecutionFlagDefinitions(),
	)

	versionCommand := &cobra.Command{
		Use:           versionCommandUseNameConstant,
		Short:         versionCommandShortDescriptionConstant,
		Long:          versionCommandLongDescriptionConstant,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(command *cobra.Command, arguments []string) error {
			application.printVersion(command.OutOrStdout())
			return nil
		},
	}
	cobraCommand.AddCommand(versionCommand)

	application.registerCommands(cobraCommand)
	application.rootCommand = cobraCommand

	return application
}

func (application *Application) registerCommands(cobraCommand *cobra.Command) {
	loggerProvider := func() *zap.Logger {
		return application.logger
	}

	workflowBuilder := workflowcmd.CommandBuilder{
		LoggerProvider: loggerProvider,
		PlatformProvider: func(executionContext context.Context) (workflowcmd.Platform, error) {
			platform, platformError := application.resolvePlatform(executionContext)
			if platformError != nil {
				return nil, platformError
			}
			return platform, nil
		},
	}
	if workflowCommand, workflowBuildError := workflowBuilder.Build(); workflowBuildError == nil {
		workflowCommand.Aliases = append(workflowCommand.Aliases, workflowCommandAliasConstant)
		cobraCommand.AddCommand(workflowCommand)
	}

	memoryBuilder := memorycmd.CommandBuilder{
		LoggerProvider: loggerProvider,
		PlatformProvider: func(executionContext context.Context) (memorycmd.Platform, error) {
			platform, platformError := application.resolvePlatform(executionContext)
			if platformError != nil {
				return nil, platformError
			}
			return platform, nil
		},
	}
	if memoryCommand, memoryBuildError := memoryBuilder.Build(); memoryBuildError == nil {
		memoryCommand.Aliases = append(memoryCommand.Aliases, memoryCommandAliasConstant)
		cobraCommand.AddCommand(memoryCommand)
	}

	serveBuilder := servecmd.CommandBuilder{
		LoggerProvider: loggerProvider,
		PlatformProvider: func(executionContext context.Context) (server.Platform, error) {
			platform, platformError := application.resolvePlatform(executionContext)
			if platformError != nil {
				return nil, platformError
			}
			return platform, nil
		},
		ConfigurationProvider: func() server.Configuration {
			return application.configuration.Server
		},
	}
	if serveCommand, serveBuildError := serveBuilder.Build(); serveBuildError == nil {
		cobraCommand.AddCommand(serveCommand)
	}
}

// Execute runs the Cobra command hierarchy with the process arguments.
func (application *Application) Execute() error {
	return application.ExecuteWithArguments(os.Args[1:])
}

// ExecuteWithArguments runs the Cobra command hierarchy with the provided arguments, then releases the
// platform and flushes the loggers.
func (application *Application) ExecuteWithArguments(arguments []string) error {
	application.rootCommand.SetArgs(normalizeInitializationScopeArguments(arguments))

	executionError := application.rootCommand.Execute()
	if closeError := application.closePlatform(); closeError != nil && executionError == nil {
		executionError = fmt.Errorf(platformCloseErrorTemplateConstant, closeError)
	}
	if syncError := application.flushLogger(); syncError != nil {
		return fmt.Errorf(loggerSyncErrorTemplateConstant, syncError)
	}
	return executionError
}

// SetOutput redirects command output and errors to the writer.
func (application *Application) SetOutput(writer io.Writer) {
	application.rootCommand.SetOut(writer)
	application.rootCommand.SetErr(writer)
}

// Execute builds a fresh application instance and executes the root command hierarchy.
func Execute() error {
	return NewApplication().Execute()
}

func (application *Application) resolveConfigurationSearchPaths() []string {
	overrideValue := strings.TrimSpace(os.Getenv(configurationSearchPathEnvironmentVariableConstant))
	if len(overrideValue) == 0 {
		defaultSearchPaths := []string{defaultConfigurationSearchPathConstant}
		return append(defaultSearchPaths, application.resolveUserConfigurationDirectoryPaths()...)
	}

	overridePaths := strings.FieldsFunc(overrideValue, func(candidate rune) bool {
		return candidate == os.PathListSeparator
	})

	cleanedPaths := make([]string, 0, len(overridePaths))
	for _, pathCandidate := range overridePaths {
		trimmedCandidate := strings.TrimSpace(pathCandidate)
		if len(trimmedCandidate) == 0 {
			continue
		}
		cleanedPaths = append(cleanedPaths, trimmedCandidate)
	}

	if len(cleanedPaths) == 0 {
		return []string{defaultConfigurationSearchPathConstant}
	}

	return cleanedPaths
}

func (application *Application) resolveUserConfigurationDirectoryPaths() []string {
	userConfigurationDirectoryPaths := make([]string, 0, 2)

	appendConfigurationDirectory := func(candidateDirectoryPath string) {
		for _, existingDirectoryPath := range userConfigurationDirectoryPaths {
			if existingDirectoryPath == candidateDirectoryPath {
				return
			}
		}
		userConfigurationDirectoryPaths = append(userConfigurationDirectoryPaths, candidateDirectoryPath)
	}

	if xdgConfigHome := strings.TrimSpace(os.Getenv(xdgConfigHomeEnvironmentVariableConstant)); len(xdgConfigHome) > 0 {
		appendConfigurationDirectory(filepath.Join(xdgConfigHome, applicationConfigurationDirectoryNameConstant))
	}

	if userHomeDirectoryPath, userHomeDirectoryError := os.UserHomeDir(); userHomeDirectoryError == nil && len(strings.TrimSpace(userHomeDirectoryPath)) > 0 {
		appendConfigurationDirectory(filepath.Join(userHomeDirectoryPath, userConfigurationDirectoryNameConstant))
	}

	return userConfigurationDirectoryPaths
}

func (application *Application) initializeConfiguration(command *cobra.Command) error {
	var loadedConfiguration ApplicationConfiguration
	configurationMetadata, loadError := application.configurationLoader.LoadConfiguration(application.configurationFilePath, defaultConfigurationValues(), &loadedConfiguration)
	if loadError != nil {
		return fmt.Errorf(configurationLoadErrorTemplateConstant, loadError)
	}

	application.configurationMetadata = configurationMetadata
	application.configuration = loadedConfiguration

	if application.persistentFlagChanged(command, logLevelFlagNameConstant) {
		application.configuration.Common.LogLevel = application.logLevelFlagValue
	}

	if application.persistentFlagChanged(command, logFormatFlagNameConstant) {
		application.configuration.Common.LogFormat = application.logFormatFlagValue
	}
	application.configuration = application.configuration.Sanitize()

	loggerOutputs, loggerCreationError := application.loggerFactory.CreateLoggerOutputs(
		utils.LogLevel(application.configuration.Common.LogLevel),
		utils.LogFormat(application.configuration.Common.LogFormat),
	)
	if loggerCreationError != nil {
		return fmt.Errorf(loggerCreationErrorTemplateConstant, loggerCreationError)
	}

	application.logger = loggerOutputs.DiagnosticLogger
	if application.logger == nil {
		application.logger = zap.NewNop()
	}

	application.consoleLogger = loggerOutputs.ConsoleLogger
	if application.consoleLogger == nil {
		application.consoleLogger = zap.NewNop()
	}

	application.logConfigurationInitialization()

	application.executionFlags = flagutils.CollectExecutionFlags(command)

	if command != nil {
		updatedContext := application.commandContextAccessor.WithConfigurationFilePath(
			command.Context(),
			application.configurationMetadata.ConfigFileUsed,
		)
		updatedContext = application.commandContextAccessor.WithExecutionFlags(updatedContext, application.executionFlags)
		updatedContext = application.commandContextAccessor.WithLogLevel(updatedContext, application.configuration.Common.LogLevel)

		command.SetContext(updatedContext)
		if rootCommand := command.Root(); rootCommand != nil {
			rootCommand.SetContext(updatedContext)
		}
	}

	return nil
}

// InitializeForCommand prepares application state for the provided command name without executing command logic.
func (application *Application) InitializeForCommand(commandUse string) error {
	command := &cobra.Command{Use: commandUse}
	return application.initializeConfiguration(command)
}

// ConfigFileUsed returns the configuration file path used during initialization.
func (application *Application) ConfigFileUsed() string {
	return application.configurationMetadata.ConfigFileUsed
}

// Configuration returns the effective configuration after initialization.
func (application *Application) Configuration() ApplicationConfiguration {
	return application.configuration
}

func (application *Application) humanReadableLoggingEnabled() bool {
	logFormatValue := strings.TrimSpace(application.configuration.Common.LogFormat)
	return strings.EqualFold(logFormatValue, string(utils.LogFormatConsole))
}

func (application *Application) logConfigurationInitialization() {
	if !strings.EqualFold(strings.TrimSpace(application.configuration.Common.LogLevel), string(utils.LogLevelDebug)) {
		return
	}

	if application.humanReadableLoggingEnabled() {
		bannerMessage := fmt.Sprintf(
			configurationInitializedConsoleTemplateConstant,
			configurationInitializedMessageConstant,
			application.configuration.Common.LogLevel,
			application.configuration.Common.LogFormat,
			application.configurationMetadata.ConfigFileUsed,
		)
		application.consoleLogger.Debug(bannerMessage)
		return
	}

	application.logger.Debug(
		configurationInitializedMessageConstant,
		zap.String(configurationLogLevelFieldConstant, application.configuration.Common.LogLevel),
		zap.String(configurationLogFormatFieldConstant, application.configuration.Common.LogFormat),
		zap.String(configurationFileFieldConstant, application.configurationMetadata.ConfigFileUsed),
	)
}

func (application *Application) printVersion(writer io.Writer) {
	fmt.Fprintf(writer, versionOutputTemplateConstant, application.versionResolver())
}

func (application *Application) runRootCommand(command *cobra.Command, arguments []string) error {
	if application.logger == nil {
		return errors.New(loggerNotInitializedMessageConstant)
	}

	initializationHandled, initializationError := application.handleConfigurationInitialization(command)
	if initializationError != nil {
		return initializationError
	}
	if initializationHandled {
		return nil
	}

	application.logger.Info(
		rootCommandInfoMessageConstant,
		zap.String(logFieldCommandNameConstant, command.Name()),
		zap.Int(logFieldArgumentCountConstant, len(arguments)),
	)

	application.logger.Debug(
		rootCommandDebugMessageConstant,
		zap.Strings(logFieldArgumentsConstant, arguments),
	)

	return command.Help()
}

func (application *Application) flushLogger() error {
	if syncError := application.syncLoggerInstance(application.logger); syncError != nil {
		return syncError
	}

	if syncError := application.syncLoggerInstance(application.consoleLogger); syncError != nil {
		return syncError
	}

	return nil
}

func (application *Application) syncLoggerInstance(logger *zap.Logger) error {
	if logger == nil {
		return nil
	}

	syncError := logger.Sync()
	switch {
	case syncError == nil:
		return nil
	case errors.Is(syncError, syscall.ENOTSUP):
		return nil
	case errors.Is(syncError, syscall.EINVAL):
		return nil
	case errors.Is(syncError, syscall.EBADF):
		return nil
	case errors.Is(syncError, syscall.ENOTTY):
		return nil
	default:
		return syncError
	}
}

func (application *Application) persistentFlagChanged(command *cobra.Command, flagName string) bool {
	if command == nil {
		return false
	}

	flagSetsToInspect := []*pflag.FlagSet{
		command.PersistentFlags(),
		command.InheritedFlags(),
	}

	rootCommand := command.Root()
	if rootCommand != nil {
		flagSetsToInspect = append(flagSetsToInspect, rootCommand.PersistentFlags())
	}

	for _, flagSet := range flagSetsToInspect {
		if flagSet == nil {
			continue
		}

		if flagSet.Changed(flagName) {
			return true
		}
	}

	return false
}
