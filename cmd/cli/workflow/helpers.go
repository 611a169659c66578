package workflow

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tyemirov/autoflow/internal/automation"
)

const platformProviderMissingMessageConstant = "workflow command platform provider not configured"

// ErrPlatformProviderMissing indicates that the command was built without a platform provider.
var ErrPlatformProviderMissing = errors.New(platformProviderMissingMessageConstant)

// LoggerProvider yields a zap logger for command execution.
type LoggerProvider func() *zap.Logger

// Platform is the subset of the automation platform used by the workflow commands.
type Platform interface {
	CreateWorkflow(executionContext context.Context, draft automation.WorkflowDraft) (automation.WorkflowDefinition, error)
	RegisterWorkflow(executionContext context.Context, definition automation.WorkflowDefinition) error
	AddTask(executionContext context.Context, workflowID string, task automation.Task) (automation.Task, error)
	ListWorkflows(executionContext context.Context) ([]automation.WorkflowSummary, error)
	WorkflowStatus(executionContext context.Context, workflowID string) (automation.WorkflowStatusReport, error)
	SetWorkflowEnabled(executionContext context.Context, workflowID string, enabled bool) error
	ExecuteWorkflow(executionContext context.Context, workflowID string, callerContext map[string]any) (automation.ExecutionContext, error)
}

// PlatformProvider yields the platform, constructing it on first use.
type PlatformProvider func(executionContext context.Context) (Platform, error)

func resolveLogger(provider LoggerProvider) *zap.Logger {
	if provider == nil {
		return zap.NewNop()
	}
	logger := provider()
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}

func resolvePlatform(provider PlatformProvider, command *cobra.Command) (Platform, error) {
	if provider == nil {
		return nil, ErrPlatformProviderMissing
	}
	return provider(commandContext(command))
}

func commandContext(command *cobra.Command) context.Context {
	if command == nil || command.Context() == nil {
		return context.Background()
	}
	return command.Context()
}

func displayCommandHelp(command *cobra.Command) error {
	if command == nil {
		return nil
	}
	return command.Help()
}
