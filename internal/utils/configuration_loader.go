package utils

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	environmentKeySeparatorConstant            = "."
	environmentVariableSeparatorConstant       = "_"
	configurationFileNameTemplateConstant      = "%s.%s"
	embeddedConfigurationErrorTemplateConstant = "unable to merge embedded configuration: %w"
	configurationFileErrorTemplateConstant     = "unable to read configuration file %s: %w"
	configurationDecodeErrorTemplateConstant   = "unable to decode configuration: %w"
	configurationTargetMissingMessageConstant  = "configuration target not provided"
)

// ErrConfigurationTargetMissing indicates that LoadConfiguration was called without a destination.
var ErrConfigurationTargetMissing = errors.New(configurationTargetMissingMessageConstant)

// LoadedConfiguration describes where the effective configuration came from.
type LoadedConfiguration struct {
	ConfigFileUsed string
}

// ConfigurationLoader layers defaults, embedded configuration, a configuration file, and environment variables.
type ConfigurationLoader struct {
	configurationName     string
	configurationType     string
	environmentPrefix     string
	searchPaths           []string
	embeddedConfiguration []byte
	embeddedType          string
}

// NewConfigurationLoader constructs a loader that searches the provided directories in order.
func NewConfigurationLoader(configurationName string, configurationType string, environmentPrefix string, searchPaths []string) *ConfigurationLoader {
	return &ConfigurationLoader{
		configurationName: configurationName,
		configurationType: configurationType,
		environmentPrefix: environmentPrefix,
		searchPaths:       append([]string{}, searchPaths...),
	}
}

// SetEmbeddedConfiguration registers configuration content compiled into the binary.
func (loader *ConfigurationLoader) SetEmbeddedConfiguration(configurationData []byte, configurationType string) {
	loader.embeddedConfiguration = append([]byte{}, configurationData...)
	loader.embeddedType = configurationType
}

// LoadConfiguration decodes the effective configuration into target. Precedence from lowest to highest is
// defaults, embedded configuration, configuration file, environment variables. An explicit file path
// replaces the search paths.
func (loader *ConfigurationLoader) LoadConfiguration(configurationFilePath string, defaultValues map[string]any, target any) (LoadedConfiguration, error) {
	if target == nil {
		return LoadedConfiguration{}, ErrConfigurationTargetMissing
	}

	configuration := viper.New()
	for key, value := range defaultValues {
		configuration.SetDefault(key, value)
	}

	if len(loader.embeddedConfiguration) > 0 {
		embeddedType := loader.embeddedType
		if len(embeddedType) == 0 {
			embeddedType = loader.configurationType
		}
		configuration.SetConfigType(embeddedType)
		if mergeError := configuration.MergeConfig(bytes.NewReader(loader.embeddedConfiguration)); mergeError != nil {
			return LoadedConfiguration{}, fmt.Errorf(embeddedConfigurationErrorTemplateConstant, mergeError)
		}
	}

	configFileUsed := strings.TrimSpace(configurationFilePath)
	if len(configFileUsed) == 0 {
		configFileUsed = loader.locateConfigurationFile()
	}
	if len(configFileUsed) > 0 {
		configuration.SetConfigFile(configFileUsed)
		if mergeError := configuration.MergeInConfig(); mergeError != nil {
			return LoadedConfiguration{}, fmt.Errorf(configurationFileErrorTemplateConstant, configFileUsed, mergeError)
		}
	}

	if len(loader.environmentPrefix) > 0 {
		configuration.SetEnvPrefix(loader.environmentPrefix)
	}
	configuration.SetEnvKeyReplacer(strings.NewReplacer(environmentKeySeparatorConstant, environmentVariableSeparatorConstant))
	configuration.AutomaticEnv()

	if decodeError := configuration.Unmarshal(target); decodeError != nil {
		return LoadedConfiguration{}, fmt.Errorf(configurationDecodeErrorTemplateConstant, decodeError)
	}

	return LoadedConfiguration{ConfigFileUsed: configFileUsed}, nil
}

func (loader *ConfigurationLoader) locateConfigurationFile() string {
	fileName := fmt.Sprintf(configurationFileNameTemplateConstant, loader.configurationName, loader.configurationType)
	for _, searchPath := range loader.searchPaths {
		trimmedPath := strings.TrimSpace(searchPath)
		if len(trimmedPath) == 0 {
			continue
		}
		candidatePath := filepath.Join(trimmedPath, fileName)
		fileInfo, statError := os.Stat(candidatePath)
		if statError != nil || fileInfo.IsDir() {
			continue
		}
		return candidatePath
	}
	return ""
}
