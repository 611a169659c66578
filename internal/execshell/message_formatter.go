package execshell

import (
	"fmt"
	"strings"
)

const (
	commandDescriptionWorkingDirectoryTemplateConstant = "%s (in %s)"
	commandStartedTemplateConstant                     = "Running %s"
	commandCompletedTemplateConstant                   = "Completed %s"
	commandFailedTemplateConstant                      = "%s failed with exit code %d"
	commandFailedDetailTemplateConstant                = "%s failed with exit code %d: %s"
	commandExecutionFailedTemplateConstant             = "%s failed: %v"
)

// CommandMessageFormatter renders human-readable command lifecycle messages.
type CommandMessageFormatter struct{}

// BuildStartedMessage describes a command about to run.
func (formatter CommandMessageFormatter) BuildStartedMessage(command ShellCommand) string {
	return fmt.Sprintf(commandStartedTemplateConstant, formatter.describe(command))
}

// BuildSuccessMessage describes a command that exited cleanly.
func (formatter CommandMessageFormatter) BuildSuccessMessage(command ShellCommand) string {
	return fmt.Sprintf(commandCompletedTemplateConstant, formatter.describe(command))
}

// BuildFailureMessage describes a command that exited with a non-zero code.
func (formatter CommandMessageFormatter) BuildFailureMessage(command ShellCommand, result ExecutionResult) string {
	detail := strings.TrimSpace(result.StandardError)
	if len(detail) == 0 {
		return fmt.Sprintf(commandFailedTemplateConstant, formatter.describe(command), result.ExitCode)
	}
	return fmt.Sprintf(commandFailedDetailTemplateConstant, formatter.describe(command), result.ExitCode, detail)
}

// BuildExecutionFailureMessage describes a command that could not be run.
func (formatter CommandMessageFormatter) BuildExecutionFailureMessage(command ShellCommand, executionError error) string {
	return fmt.Sprintf(commandExecutionFailedTemplateConstant, formatter.describe(command), executionError)
}

func (formatter CommandMessageFormatter) describe(command ShellCommand) string {
	parts := append([]string{string(command.Name)}, command.Details.Arguments...)
	description := strings.Join(parts, " ")
	workingDirectory := strings.TrimSpace(command.Details.WorkingDirectory)
	if len(workingDirectory) == 0 {
		return description
	}
	return fmt.Sprintf(commandDescriptionWorkingDirectoryTemplateConstant, description, workingDirectory)
}
