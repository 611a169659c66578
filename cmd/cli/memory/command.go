package memory

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/tyemirov/autoflow/internal/utils"
	flagutils "github.com/tyemirov/autoflow/internal/utils/flags"
)

const (
	namespaceUseConstant                   = "memory"
	namespaceShortDescriptionConstant      = "Inspect and edit shared memory"
	namespaceLongDescriptionConstant       = "memory shows, merges, and clears the key/value store shared by every workflow task."
	showUseConstant                        = "show"
	showShortDescriptionConstant           = "Print the shared memory snapshot"
	setUseConstant                         = "set [key=value...]"
	setShortDescriptionConstant            = "Merge entries into shared memory"
	setExampleConstant                     = "autoflow memory set region=eu-west owner=ops\n  autoflow memory set --file ./seed.yaml"
	clearUseConstant                       = "clear"
	clearShortDescriptionConstant          = "Remove every shared memory entry"
	fileFlagNameConstant                   = "file"
	fileFlagUsageConstant                  = "YAML or JSON mapping merged into shared memory"
	assignmentSeparatorConstant            = "="
	entryLineTemplateConstant              = "%s=%v\n"
	updatedLineTemplateConstant            = "shared memory updated (%d keys)\n"
	clearedLineConstant                    = "shared memory cleared\n"
	assignmentFormatErrorTemplateConstant  = "memory entries must be in key=value format: %s"
	assignmentKeyErrorTemplateConstant     = "memory key cannot be empty (%s)"
	fileReadErrorTemplateConstant          = "failed to read memory file %q: %w"
	fileParseErrorTemplateConstant         = "failed to parse memory file %q: %w"
	emptyUpdateMessageConstant             = "memory set requires key=value arguments or --file"
	platformProviderMissingMessageConstant = "memory command platform provider not configured"
	memoryCommandFailedMessageConstant     = "memory_command_failed"
	commandLogFieldConstant                = "command"
)

var (
	// ErrPlatformProviderMissing indicates that the command was built without a platform provider.
	ErrPlatformProviderMissing = errors.New(platformProviderMissingMessageConstant)
	// ErrEmptyUpdate indicates that memory set received nothing to merge.
	ErrEmptyUpdate = errors.New(emptyUpdateMessageConstant)
)

// LoggerProvider yields a zap logger for command execution.
type LoggerProvider func() *zap.Logger

// Platform is the subset of the automation platform used by the memory commands.
type Platform interface {
	GetSharedMemory() map[string]any
	UpdateSharedMemory(executionContext context.Context, update map[string]any) error
	ClearSharedMemory(executionContext context.Context) error
}

// PlatformProvider yields the platform, constructing it on first use.
type PlatformProvider func(executionContext context.Context) (Platform, error)

// CommandBuilder assembles the memory command namespace.
type CommandBuilder struct {
	LoggerProvider   LoggerProvider
	PlatformProvider PlatformProvider
}

// Build constructs the memory command and its subcommands.
func (builder *CommandBuilder) Build() (*cobra.Command, error) {
	namespaceCommand := &cobra.Command{
		Use:   namespaceUseConstant,
		Short: namespaceShortDescriptionConstant,
		Long:  namespaceLongDescriptionConstant,
		RunE: func(command *cobra.Command, arguments []string) error {
			return command.Help()
		},
	}

	showCommand := &cobra.Command{
		Use:   showUseConstant,
		Short: showShortDescriptionConstant,
		Args:  cobra.NoArgs,
		RunE: func(command *cobra.Command, arguments []string) error {
			outputFormat, platform, setupError := builder.prepare(command)
			if setupError != nil {
				return setupError
			}
			return writeSnapshot(command.OutOrStdout(), outputFormat, platform.GetSharedMemory())
		},
	}

	setCommand := &cobra.Command{
		Use:     setUseConstant,
		Short:   setShortDescriptionConstant,
		Example: setExampleConstant,
	}
	setCommand.Flags().String(fileFlagNameConstant, "", fileFlagUsageConstant)
	setCommand.RunE = func(command *cobra.Command, arguments []string) error {
		filePath, _, _ := flagutils.StringFlag(command, fileFlagNameConstant)
		update, updateError := buildUpdate(filePath, arguments)
		if updateError != nil {
			return updateError
		}
		outputFormat, platform, setupError := builder.prepare(command)
		if setupError != nil {
			return setupError
		}
		if mergeError := platform.UpdateSharedMemory(commandContext(command), update); mergeError != nil {
			return builder.reportFailure(command, mergeError)
		}
		if outputFormat != utils.OutputFormatTable {
			return utils.WriteStructuredOutput(command.OutOrStdout(), outputFormat, platform.GetSharedMemory())
		}
		fmt.Fprintf(utils.NewFlushingWriter(command.OutOrStdout()), updatedLineTemplateConstant, len(update))
		return nil
	}

	clearCommand := &cobra.Command{
		Use:   clearUseConstant,
		Short: clearShortDescriptionConstant,
		Args:  cobra.NoArgs,
		RunE: func(command *cobra.Command, arguments []string) error {
			outputFormat, platform, setupError := builder.prepare(command)
			if setupError != nil {
				return setupError
			}
			if clearError := platform.ClearSharedMemory(commandContext(command)); clearError != nil {
				return builder.reportFailure(command, clearError)
			}
			if outputFormat != utils.OutputFormatTable {
				return utils.WriteStructuredOutput(command.OutOrStdout(), outputFormat, map[string]any{})
			}
			fmt.Fprint(utils.NewFlushingWriter(command.OutOrStdout()), clearedLineConstant)
			return nil
		},
	}

	namespaceCommand.AddCommand(showCommand, setCommand, clearCommand)
	return namespaceCommand, nil
}

func (builder *CommandBuilder) prepare(command *cobra.Command) (utils.OutputFormat, Platform, error) {
	executionFlags, _ := flagutils.ResolveExecutionFlags(command)
	outputFormat, formatError := utils.ParseOutputFormat(executionFlags.OutputFormat)
	if formatError != nil {
		return "", nil, formatError
	}
	if builder.PlatformProvider == nil {
		return "", nil, ErrPlatformProviderMissing
	}
	platform, platformError := builder.PlatformProvider(commandContext(command))
	if platformError != nil {
		return "", nil, platformError
	}
	return outputFormat, platform, nil
}

func (builder *CommandBuilder) reportFailure(command *cobra.Command, failure error) error {
	logger := zap.NewNop()
	if builder.LoggerProvider != nil {
		if provided := builder.LoggerProvider(); provided != nil {
			logger = provided
		}
	}
	logger.Debug(memoryCommandFailedMessageConstant, zap.String(commandLogFieldConstant, command.Name()), zap.Error(failure))
	return failure
}

// writeSnapshot prints one key=value line per entry in key order.
func writeSnapshot(writer io.Writer, outputFormat utils.OutputFormat, snapshot map[string]any) error {
	if snapshot == nil {
		snapshot = map[string]any{}
	}
	if outputFormat != utils.OutputFormatTable {
		return utils.WriteStructuredOutput(writer, outputFormat, snapshot)
	}

	keys := make([]string, 0, len(snapshot))
	for key := range snapshot {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	flushingWriter := utils.NewFlushingWriter(writer)
	for _, key := range keys {
		fmt.Fprintf(flushingWriter, entryLineTemplateConstant, key, snapshot[key])
	}
	return nil
}

// buildUpdate merges the file mapping with KEY=VALUE arguments; arguments win.
func buildUpdate(filePath string, assignments []string) (map[string]any, error) {
	update := make(map[string]any)

	trimmedPath := strings.TrimSpace(filePath)
	if len(trimmedPath) > 0 {
		content, readError := os.ReadFile(trimmedPath)
		if readError != nil {
			return nil, fmt.Errorf(fileReadErrorTemplateConstant, trimmedPath, readError)
		}
		fileValues := map[string]any{}
		if parseError := yaml.Unmarshal(content, &fileValues); parseError != nil {
			return nil, fmt.Errorf(fileParseErrorTemplateConstant, trimmedPath, parseError)
		}
		for key, value := range fileValues {
			update[key] = value
		}
	}

	for _, assignment := range assignments {
		trimmed := strings.TrimSpace(assignment)
		if len(trimmed) == 0 {
			continue
		}
		parts := strings.SplitN(trimmed, assignmentSeparatorConstant, 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf(assignmentFormatErrorTemplateConstant, assignment)
		}
		key := strings.TrimSpace(parts[0])
		if len(key) == 0 {
			return nil, fmt.Errorf(assignmentKeyErrorTemplateConstant, assignment)
		}
		update[key] = parts[1]
	}

	if len(update) == 0 {
		return nil, ErrEmptyUpdate
	}
	return update, nil
}

func commandContext(command *cobra.Command) context.Context {
	if command == nil || command.Context() == nil {
		return context.Background()
	}
	return command.Context()
}
