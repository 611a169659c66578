package capabilities

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tyemirov/autoflow/internal/automation"
	"github.com/tyemirov/autoflow/internal/execshell"
)

const (
	commandActionRunConstant                 = "run"
	commandMissingMessageConstant            = "command capability requires a command"
	commandNotAllowedTemplateConstant        = "command %q is not in the allowed command list"
	commandUnsupportedActionTemplateConstant = "unsupported command action %q"
	commandExecutorMissingMessageConstant    = "command executor not configured"
	commandResultCommandFieldConstant        = "command"
	commandResultArgumentsFieldConstant      = "args"
	commandResultExitCodeFieldConstant       = "exit_code"
	commandResultStandardOutputConstant      = "stdout"
	commandResultStandardErrorFieldConstant  = "stderr"
)

// ErrCommandExecutorNotConfigured indicates that command tasks cannot run in this process.
var ErrCommandExecutorNotConfigured = errors.New(commandExecutorMissingMessageConstant)

// CommandExecutor runs shell commands.
type CommandExecutor interface {
	Execute(executionContext context.Context, command execshell.ShellCommand) (execshell.ExecutionResult, error)
}

// CommandConfiguration restricts which executables command tasks may start.
type CommandConfiguration struct {
	AllowedCommands []string `mapstructure:"allowed_commands"`
}

type commandParameters struct {
	Command          string            `mapstructure:"command"`
	Arguments        []string          `mapstructure:"args"`
	WorkingDirectory string            `mapstructure:"working_directory"`
	Environment      map[string]string `mapstructure:"environment"`
	StandardInput    string            `mapstructure:"stdin"`
}

// CommandService executes local commands on behalf of capability tasks.
// An empty allow-list permits every command.
type CommandService struct {
	executor        CommandExecutor
	allowedCommands map[string]struct{}
}

// NewCommandService constructs a CommandService.
func NewCommandService(executor CommandExecutor, configuration CommandConfiguration) *CommandService {
	allowedCommands := make(map[string]struct{}, len(configuration.AllowedCommands))
	for _, allowedCommand := range configuration.AllowedCommands {
		trimmed := strings.TrimSpace(allowedCommand)
		if trimmed == "" {
			continue
		}
		allowedCommands[trimmed] = struct{}{}
	}
	return &CommandService{executor: executor, allowedCommands: allowedCommands}
}

// Invoke implements automation.CapabilityService.
func (service *CommandService) Invoke(executionContext context.Context, invocation automation.CapabilityInvocation) (any, error) {
	action := strings.ToLower(strings.TrimSpace(invocation.Action))
	if action != "" && action != commandActionRunConstant {
		return nil, automation.ValidationError{TaskID: invocation.TaskID, Message: fmt.Sprintf(commandUnsupportedActionTemplateConstant, invocation.Action)}
	}

	var parameters commandParameters
	if decodeError := automation.DecodeParameters(invocation.TaskID, invocation.Parameters, &parameters); decodeError != nil {
		return nil, decodeError
	}
	commandName := strings.TrimSpace(parameters.Command)
	if commandName == "" {
		return nil, automation.ValidationError{TaskID: invocation.TaskID, Message: commandMissingMessageConstant}
	}
	if !service.isAllowed(commandName) {
		return nil, automation.ValidationError{TaskID: invocation.TaskID, Message: fmt.Sprintf(commandNotAllowedTemplateConstant, commandName)}
	}
	if service.executor == nil {
		return nil, ErrCommandExecutorNotConfigured
	}

	executionResult, executionError := service.executor.Execute(executionContext, execshell.ShellCommand{
		Name: execshell.CommandName(commandName),
		Details: execshell.CommandDetails{
			Arguments:            parameters.Arguments,
			WorkingDirectory:     strings.TrimSpace(parameters.WorkingDirectory),
			EnvironmentVariables: parameters.Environment,
			StandardInput:        []byte(parameters.StandardInput),
		},
	})
	if executionError != nil {
		return nil, executionError
	}

	arguments := make([]any, 0, len(parameters.Arguments))
	for _, argument := range parameters.Arguments {
		arguments = append(arguments, argument)
	}
	return map[string]any{
		commandResultCommandFieldConstant:       commandName,
		commandResultArgumentsFieldConstant:     arguments,
		commandResultExitCodeFieldConstant:      executionResult.ExitCode,
		commandResultStandardOutputConstant:     executionResult.StandardOutput,
		commandResultStandardErrorFieldConstant: executionResult.StandardError,
	}, nil
}

func (service *CommandService) isAllowed(commandName string) bool {
	if len(service.allowedCommands) == 0 {
		return true
	}
	_, allowed := service.allowedCommands[commandName]
	return allowed
}
