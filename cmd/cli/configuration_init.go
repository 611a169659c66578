package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const (
	initializationScopeLocalConstant                = "local"
	initializationScopeUserConstant                 = "user"
	initializationFlagPrefixConstant                = "--" + configurationInitializationFlagNameConstant
	initializationAssignmentTemplateConstant        = "%s=%s"
	initializationWorkingDirectoryLabelConstant     = "working directory"
	initializationHomeDirectoryLabelConstant        = "user home directory"
	initializationUnsupportedScopeTemplateConstant  = "unsupported initialization scope %q"
	initializationDirectoryLookupTemplateConstant   = "unable to determine %s: %w"
	initializationDirectoryEmptyTemplateConstant    = "unable to determine %s: path is empty"
	initializationContentMissingMessageConstant     = "embedded configuration content is unavailable"
	initializationDirectoryErrorTemplateConstant    = "unable to ensure configuration directory %s: %w"
	initializationExistingFileTemplateConstant      = "configuration file already exists at %s (use --force to overwrite)"
	initializationExistingDirectoryTemplateConstant = "configuration path %s is a directory"
	initializationWriteErrorTemplateConstant        = "unable to write configuration file %s: %w"
	initializationSucceededMessageConstant          = "configuration_file_created"
	initializationDirectoryPermissionConstant       = 0o755
	initializationFilePermissionConstant            = 0o600
)

type directoryResolver func() (string, error)

// initializationTarget is the directory and file written by --init.
type initializationTarget struct {
	directoryPath string
	filePath      string
}

// configurationInitializer writes the embedded defaults for the --init flag.
type configurationInitializer struct {
	workingDirectory directoryResolver
	homeDirectory    directoryResolver
	content          []byte
	overwrite        bool
}

func newConfigurationInitializer(overwrite bool) configurationInitializer {
	content, _ := EmbeddedDefaultConfiguration()
	return configurationInitializer{
		workingDirectory: os.Getwd,
		homeDirectory:    os.UserHomeDir,
		content:          content,
		overwrite:        overwrite,
	}
}

// target maps a scope onto ./config.yaml (local) or ~/.autoflow/config.yaml (user).
func (initializer configurationInitializer) target(scope string) (initializationTarget, error) {
	switch strings.ToLower(strings.TrimSpace(scope)) {
	case "", initializationScopeLocalConstant:
		workingDirectory, resolveError := resolveInitializationDirectory(initializer.workingDirectory, initializationWorkingDirectoryLabelConstant)
		if resolveError != nil {
			return initializationTarget{}, resolveError
		}
		return initializationTarget{
			directoryPath: workingDirectory,
			filePath:      filepath.Join(workingDirectory, configurationFileNameConstant),
		}, nil
	case initializationScopeUserConstant:
		homeDirectory, resolveError := resolveInitializationDirectory(initializer.homeDirectory, initializationHomeDirectoryLabelConstant)
		if resolveError != nil {
			return initializationTarget{}, resolveError
		}
		configurationDirectory := filepath.Join(homeDirectory, userConfigurationDirectoryNameConstant)
		return initializationTarget{
			directoryPath: configurationDirectory,
			filePath:      filepath.Join(configurationDirectory, configurationFileNameConstant),
		}, nil
	default:
		return initializationTarget{}, fmt.Errorf(initializationUnsupportedScopeTemplateConstant, strings.TrimSpace(scope))
	}
}

// write refuses to replace an existing file unless overwrite is set.
func (initializer configurationInitializer) write(target initializationTarget) error {
	if len(initializer.content) == 0 {
		return errors.New(initializationContentMissingMessageConstant)
	}
	if mkdirError := os.MkdirAll(target.directoryPath, initializationDirectoryPermissionConstant); mkdirError != nil {
		return fmt.Errorf(initializationDirectoryErrorTemplateConstant, target.directoryPath, mkdirError)
	}

	fileInfo, statError := os.Stat(target.filePath)
	switch {
	case statError == nil && fileInfo.IsDir():
		return fmt.Errorf(initializationExistingDirectoryTemplateConstant, target.filePath)
	case statError == nil && !initializer.overwrite:
		return fmt.Errorf(initializationExistingFileTemplateConstant, target.filePath)
	case statError != nil && !errors.Is(statError, os.ErrNotExist):
		return fmt.Errorf(initializationWriteErrorTemplateConstant, target.filePath, statError)
	}

	if writeError := os.WriteFile(target.filePath, initializer.content, initializationFilePermissionConstant); writeError != nil {
		return fmt.Errorf(initializationWriteErrorTemplateConstant, target.filePath, writeError)
	}
	return nil
}

func resolveInitializationDirectory(resolver directoryResolver, label string) (string, error) {
	directory, resolveError := resolver()
	if resolveError != nil {
		return "", fmt.Errorf(initializationDirectoryLookupTemplateConstant, label, resolveError)
	}
	trimmed := strings.TrimSpace(directory)
	if len(trimmed) == 0 {
		return "", fmt.Errorf(initializationDirectoryEmptyTemplateConstant, label)
	}
	return trimmed, nil
}

func (application *Application) handleConfigurationInitialization(command *cobra.Command) (bool, error) {
	if !application.persistentFlagChanged(command, configurationInitializationFlagNameConstant) {
		return false, nil
	}

	initializer := newConfigurationInitializer(application.configurationInitializationForced)
	target, targetError := initializer.target(application.configurationInitializationScope)
	if targetError != nil {
		return true, targetError
	}
	if writeError := initializer.write(target); writeError != nil {
		return true, writeError
	}

	application.logger.Info(initializationSucceededMessageConstant, zap.String(configurationFileFieldConstant, target.filePath))
	return true, nil
}

// normalizeInitializationScopeArguments gives a bare --init the local scope so that the following
// argument is never consumed as the scope value.
func normalizeInitializationScopeArguments(arguments []string) []string {
	if len(arguments) == 0 {
		return nil
	}

	localAssignment := fmt.Sprintf(initializationAssignmentTemplateConstant, initializationFlagPrefixConstant, configurationInitializationDefaultScopeConstant)
	normalized := make([]string, 0, len(arguments))
	for index, argument := range arguments {
		switch {
		case strings.HasPrefix(argument, initializationFlagPrefixConstant+"=") && len(strings.TrimSpace(strings.TrimPrefix(argument, initializationFlagPrefixConstant+"="))) == 0:
			normalized = append(normalized, localAssignment)
		case argument == initializationFlagPrefixConstant:
			nextIndex := index + 1
			if nextIndex >= len(arguments) || strings.HasPrefix(arguments[nextIndex], "-") {
				normalized = append(normalized, localAssignment)
				continue
			}
			normalized = append(normalized, argument)
		default:
			normalized = append(normalized, argument)
		}
	}
	return normalized
}
