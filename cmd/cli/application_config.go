package cli

import (
	"strings"

	"github.com/tyemirov/autoflow/internal/capabilities"
	"github.com/tyemirov/autoflow/internal/chat"
	"github.com/tyemirov/autoflow/internal/persistence"
	"github.com/tyemirov/autoflow/internal/remote"
	"github.com/tyemirov/autoflow/internal/server"
	"github.com/tyemirov/autoflow/internal/utils"
)

const (
	commonConfigurationKeyConstant        = "common"
	commonLogLevelConfigKeyConstant       = commonConfigurationKeyConstant + ".log_level"
	commonLogFormatConfigKeyConstant      = commonConfigurationKeyConstant + ".log_format"
	storageDriverConfigKeyConstant        = "storage.driver"
	executionParallelismConfigKeyConstant = "execution.parallelism"
	serverAddressConfigKeyConstant        = "server.address"
	defaultParallelismConstant            = 1
	defaultServerAddressConstant          = "localhost:8080"
)

// ApplicationConfiguration describes the persisted configuration for the CLI entrypoint.
type ApplicationConfiguration struct {
	Common       ApplicationCommonConfiguration       `mapstructure:"common"`
	Storage      persistence.Configuration            `mapstructure:"storage"`
	Execution    ApplicationExecutionConfiguration    `mapstructure:"execution"`
	Chat         chat.Configuration                   `mapstructure:"chat"`
	Capabilities ApplicationCapabilitiesConfiguration `mapstructure:"capabilities"`
	Remote       remote.Configuration                 `mapstructure:"remote"`
	Server       server.Configuration                 `mapstructure:"server"`
}

// ApplicationCommonConfiguration stores logging defaults shared across commands.
type ApplicationCommonConfiguration struct {
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
}

// ApplicationExecutionConfiguration controls how workflow rounds are scheduled.
type ApplicationExecutionConfiguration struct {
	Parallelism int `mapstructure:"parallelism"`
}

// ApplicationCapabilitiesConfiguration groups the capability service settings.
type ApplicationCapabilitiesConfiguration struct {
	Command capabilities.CommandConfiguration `mapstructure:"command"`
	Tool    capabilities.ToolConfiguration    `mapstructure:"tool"`
}

func defaultConfigurationValues() map[string]any {
	return map[string]any{
		commonLogLevelConfigKeyConstant:       string(utils.LogLevelError),
		commonLogFormatConfigKeyConstant:      string(utils.LogFormatStructured),
		storageDriverConfigKeyConstant:        persistence.DriverMemory,
		executionParallelismConfigKeyConstant: defaultParallelismConstant,
		serverAddressConfigKeyConstant:        defaultServerAddressConstant,
	}
}

// Sanitize normalizes configuration values.
func (configuration ApplicationConfiguration) Sanitize() ApplicationConfiguration {
	sanitized := configuration
	sanitized.Common.LogLevel = strings.ToLower(strings.TrimSpace(configuration.Common.LogLevel))
	sanitized.Common.LogFormat = strings.ToLower(strings.TrimSpace(configuration.Common.LogFormat))
	sanitized.Storage.Driver = strings.ToLower(strings.TrimSpace(configuration.Storage.Driver))
	sanitized.Storage.Path = strings.TrimSpace(configuration.Storage.Path)
	if configuration.Execution.Parallelism < 1 {
		sanitized.Execution.Parallelism = defaultParallelismConstant
	}
	sanitized.Chat = configuration.Chat.Sanitize()
	sanitized.Remote.WebhookBaseURL = strings.TrimSpace(configuration.Remote.WebhookBaseURL)
	sanitized.Remote.BotBaseURL = strings.TrimSpace(configuration.Remote.BotBaseURL)
	sanitized.Server.Address = strings.TrimSpace(configuration.Server.Address)
	if len(sanitized.Server.Address) == 0 {
		sanitized.Server.Address = defaultServerAddressConstant
	}
	return sanitized
}
