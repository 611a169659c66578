package workflow

import (
	"errors"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tyemirov/autoflow/internal/automation"
	"github.com/tyemirov/autoflow/internal/utils"
	flagutils "github.com/tyemirov/autoflow/internal/utils/flags"
)

const (
	namespaceUseConstant                 = "workflow"
	namespaceShortDescriptionConstant    = "Manage and run workflows"
	namespaceLongDescriptionConstant     = "workflow registers workflows of dependent tasks, inspects their status, and executes them in dependency order."
	listUseConstant                      = "list"
	listShortDescriptionConstant         = "List registered workflows"
	listAliasConstant                    = "ls"
	createUseConstant                    = "create"
	createShortDescriptionConstant       = "Register a new workflow"
	createLongDescriptionConstant        = "workflow create registers an enabled workflow under a generated id. Tasks come from --file (YAML or JSON with name, description, and tasks); --name and --description override the file."
	createExampleConstant                = "autoflow workflow create --name nightly --description \"Nightly report\"\n  autoflow workflow create --file ./nightly.yaml"
	importUseConstant                    = "import <definition-file>"
	importShortDescriptionConstant       = "Register a workflow under the id in its definition"
	importLongDescriptionConstant        = "workflow import registers a YAML or JSON definition under its own id, replacing any workflow registered with that id. Task ids must be unique; blank ids are generated."
	importExampleConstant                = "autoflow workflow import ./nightly.yaml"
	definitionFileMissingMessageConstant = "definition file required; provide it as the first argument"
	addTaskUseConstant                   = "add-task <workflow-id>"
	addTaskShortDescriptionConstant      = "Append a task to a workflow"
	addTaskLongDescriptionConstant       = "workflow add-task appends a pending task. Provide the task as --file (YAML or JSON) or through --type, --id, --name, --depends-on, and --parameter flags."
	addTaskExampleConstant               = "autoflow workflow add-task 6f1c... --type chat --id summarize --parameter message=\"Summarize the report\""
	executeUseConstant                   = "execute <workflow-id>"
	executeShortDescriptionConstant      = "Run a workflow"
	executeLongDescriptionConstant       = "workflow execute runs every task in dependency order. Task failures are reported without stopping the run; a dependency cycle or unknown dependency fails the run before any task starts."
	executeAliasConstant                 = "run"
	statusUseConstant                    = "status <workflow-id>"
	statusShortDescriptionConstant       = "Show per-task workflow state"
	enableUseConstant                    = "enable <workflow-id>"
	enableShortDescriptionConstant       = "Allow a workflow to run"
	disableUseConstant                   = "disable <workflow-id>"
	disableShortDescriptionConstant      = "Prevent a workflow from running"
	nameFlagNameConstant                 = "name"
	nameFlagUsageConstant                = "Workflow name"
	descriptionFlagNameConstant          = "description"
	descriptionFlagUsageConstant         = "Workflow description"
	fileFlagNameConstant                 = "file"
	createFileFlagUsageConstant          = "YAML or JSON workflow definition"
	addTaskFileFlagUsageConstant         = "YAML or JSON task definition"
	taskIDFlagNameConstant               = "id"
	taskIDFlagUsageConstant              = "Task id (generated when omitted)"
	taskNameFlagUsageConstant            = "Task name"
	taskTypeFlagNameConstant             = "type"
	taskTypeFlagUsageConstant            = "Task type (chat, capability, external-webhook, external-bot, composite)"
	dependsOnFlagNameConstant            = "depends-on"
	dependsOnFlagUsageConstant           = "Id of a task that must run first (repeatable)"
	parameterFlagNameConstant            = "parameter"
	parameterFlagUsageConstant           = "Task parameter in key=value form (repeatable)"
	parameterAssignmentLabelConstant     = "parameter"
	workflowIDMissingMessageConstant     = "workflow id required; provide it as the first argument"
	workflowCommandFailedMessageConstant = "workflow_command_failed"
	commandLogFieldConstant              = "command"
	workflowIDLogFieldConstant           = "workflow_id"
	errorKindLogFieldConstant            = "error_kind"
)

var (
	// ErrWorkflowIDMissing indicates that a workflow command was invoked without a workflow id.
	ErrWorkflowIDMissing = errors.New(workflowIDMissingMessageConstant)
	// ErrDefinitionFileMissing indicates that workflow import was invoked without a definition file.
	ErrDefinitionFileMissing = errors.New(definitionFileMissingMessageConstant)
)

// CommandBuilder assembles the workflow command namespace.
type CommandBuilder struct {
	LoggerProvider   LoggerProvider
	PlatformProvider PlatformProvider
}

// Build constructs the workflow command and its subcommands.
func (builder *CommandBuilder) Build() (*cobra.Command, error) {
	namespaceCommand := &cobra.Command{
		Use:   namespaceUseConstant,
		Short: namespaceShortDescriptionConstant,
		Long:  namespaceLongDescriptionConstant,
		RunE: func(command *cobra.Command, arguments []string) error {
			return displayCommandHelp(command)
		},
	}

	namespaceCommand.AddCommand(
		builder.buildListCommand(),
		builder.buildCreateCommand(),
		builder.buildImportCommand(),
		builder.buildAddTaskCommand(),
		builder.buildExecuteCommand(),
		builder.buildStatusCommand(),
		builder.buildToggleCommand(enableUseConstant, enableShortDescriptionConstant, true),
		builder.buildToggleCommand(disableUseConstant, disableShortDescriptionConstant, false),
	)

	return namespaceCommand, nil
}

func (builder *CommandBuilder) buildListCommand() *cobra.Command {
	return &cobra.Command{
		Use:     listUseConstant,
		Short:   listShortDescriptionConstant,
		Aliases: []string{listAliasConstant},
		Args:    cobra.NoArgs,
		RunE: func(command *cobra.Command, arguments []string) error {
			renderer, platform, setupError := builder.prepare(command)
			if setupError != nil {
				return setupError
			}
			summaries, listError := platform.ListWorkflows(commandContext(command))
			if listError != nil {
				return builder.reportFailure(command, "", listError)
			}
			return renderer.renderSummaries(summaries)
		},
	}
}

func (builder *CommandBuilder) buildCreateCommand() *cobra.Command {
	command := &cobra.Command{
		Use:     createUseConstant,
		Short:   createShortDescriptionConstant,
		Long:    createLongDescriptionConstant,
		Example: createExampleConstant,
		Args:    cobra.NoArgs,
	}
	command.Flags().String(nameFlagNameConstant, "", nameFlagUsageConstant)
	command.Flags().String(descriptionFlagNameConstant, "", descriptionFlagUsageConstant)
	command.Flags().String(fileFlagNameConstant, "", createFileFlagUsageConstant)

	command.RunE = func(command *cobra.Command, arguments []string) error {
		draft := automation.WorkflowDraft{}
		if filePath, _, _ := flagutils.StringFlag(command, fileFlagNameConstant); len(strings.TrimSpace(filePath)) > 0 {
			loadedDraft, loadError := loadWorkflowDraft(filePath)
			if loadError != nil {
				return loadError
			}
			draft = loadedDraft
		}
		if name, nameChanged, _ := flagutils.StringFlag(command, nameFlagNameConstant); nameChanged {
			draft.Name = name
		}
		if description, descriptionChanged, _ := flagutils.StringFlag(command, descriptionFlagNameConstant); descriptionChanged {
			draft.Description = description
		}

		renderer, platform, setupError := builder.prepare(command)
		if setupError != nil {
			return setupError
		}
		definition, createError := platform.CreateWorkflow(commandContext(command), draft)
		if createError != nil {
			return builder.reportFailure(command, "", createError)
		}
		return renderer.renderCreated(definition)
	}
	return command
}

func (builder *CommandBuilder) buildImportCommand() *cobra.Command {
	return &cobra.Command{
		Use:     importUseConstant,
		Short:   importShortDescriptionConstant,
		Long:    importLongDescriptionConstant,
		Example: importExampleConstant,
		RunE: func(command *cobra.Command, arguments []string) error {
			if len(arguments) == 0 || len(strings.TrimSpace(arguments[0])) == 0 {
				return ErrDefinitionFileMissing
			}
			definition, loadError := loadWorkflowDefinition(arguments[0])
			if loadError != nil {
				return loadError
			}

			renderer, platform, setupError := builder.prepare(command)
			if setupError != nil {
				return setupError
			}
			if registerError := platform.RegisterWorkflow(commandContext(command), definition); registerError != nil {
				return builder.reportFailure(command, definition.ID, registerError)
			}
			return renderer.renderImported(definition)
		},
	}
}

func (builder *CommandBuilder) buildAddTaskCommand() *cobra.Command {
	command := &cobra.Command{
		Use:     addTaskUseConstant,
		Short:   addTaskShortDescriptionConstant,
		Long:    addTaskLongDescriptionConstant,
		Example: addTaskExampleConstant,
	}
	command.Flags().String(fileFlagNameConstant, "", addTaskFileFlagUsageConstant)
	command.Flags().String(taskIDFlagNameConstant, "", taskIDFlagUsageConstant)
	command.Flags().String(nameFlagNameConstant, "", taskNameFlagUsageConstant)
	command.Flags().String(taskTypeFlagNameConstant, "", taskTypeFlagUsageConstant)
	command.Flags().StringArray(dependsOnFlagNameConstant, nil, dependsOnFlagUsageConstant)
	command.Flags().StringArray(parameterFlagNameConstant, nil, parameterFlagUsageConstant)

	command.RunE = func(command *cobra.Command, arguments []string) error {
		workflowID, workflowIDError := requireWorkflowID(arguments)
		if workflowIDError != nil {
			return workflowIDError
		}
		task, taskError := taskFromFlags(command)
		if taskError != nil {
			return taskError
		}

		renderer, platform, setupError := builder.prepare(command)
		if setupError != nil {
			return setupError
		}
		addedTask, addError := platform.AddTask(commandContext(command), workflowID, task)
		if addError != nil {
			return builder.reportFailure(command, workflowID, addError)
		}
		return renderer.renderTaskAdded(workflowID, addedTask)
	}
	return command
}

func (builder *CommandBuilder) buildExecuteCommand() *cobra.Command {
	command := &cobra.Command{
		Use:     executeUseConstant,
		Short:   executeShortDescriptionConstant,
		Long:    executeLongDescriptionConstant,
		Aliases: []string{executeAliasConstant},
	}
	contextValues := flagutils.BindContextFlags(command)

	command.RunE = func(command *cobra.Command, arguments []string) error {
		workflowID, workflowIDError := requireWorkflowID(arguments)
		if workflowIDError != nil {
			return workflowIDError
		}
		callerContext, contextError := buildCallerContext(contextValues.Entries, contextValues.FilePaths)
		if contextError != nil {
			return contextError
		}

		renderer, platform, setupError := builder.prepare(command)
		if setupError != nil {
			return setupError
		}
		execution, executeError := platform.ExecuteWorkflow(commandContext(command), workflowID, callerContext)
		if executeError != nil {
			var dependencyError automation.DependencyError
			if errors.As(executeError, &dependencyError) {
				if renderError := renderer.renderExecution(execution); renderError != nil {
					return renderError
				}
			}
			return builder.reportFailure(command, workflowID, executeError)
		}
		return renderer.renderExecution(execution)
	}
	return command
}

func (builder *CommandBuilder) buildStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   statusUseConstant,
		Short: statusShortDescriptionConstant,
		RunE: func(command *cobra.Command, arguments []string) error {
			workflowID, workflowIDError := requireWorkflowID(arguments)
			if workflowIDError != nil {
				return workflowIDError
			}
			renderer, platform, setupError := builder.prepare(command)
			if setupError != nil {
				return setupError
			}
			report, statusError := platform.WorkflowStatus(commandContext(command), workflowID)
			if statusError != nil {
				return builder.reportFailure(command, workflowID, statusError)
			}
			return renderer.renderStatus(report)
		},
	}
}

func (builder *CommandBuilder) buildToggleCommand(use string, shortDescription string, enabled bool) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: shortDescription,
		RunE: func(command *cobra.Command, arguments []string) error {
			workflowID, workflowIDError := requireWorkflowID(arguments)
			if workflowIDError != nil {
				return workflowIDError
			}
			renderer, platform, setupError := builder.prepare(command)
			if setupError != nil {
				return setupError
			}
			if toggleError := platform.SetWorkflowEnabled(commandContext(command), workflowID, enabled); toggleError != nil {
				return builder.reportFailure(command, workflowID, toggleError)
			}
			report, statusError := platform.WorkflowStatus(commandContext(command), workflowID)
			if statusError != nil {
				return builder.reportFailure(command, workflowID, statusError)
			}
			return renderer.renderEnabled(report)
		},
	}
}

func (builder *CommandBuilder) prepare(command *cobra.Command) (outputRenderer, Platform, error) {
	executionFlags, _ := flagutils.ResolveExecutionFlags(command)
	outputFormat, formatError := utils.ParseOutputFormat(executionFlags.OutputFormat)
	if formatError != nil {
		return outputRenderer{}, nil, formatError
	}
	platform, platformError := resolvePlatform(builder.PlatformProvider, command)
	if platformError != nil {
		return outputRenderer{}, nil, platformError
	}
	return newOutputRenderer(command.OutOrStdout(), outputFormat), platform, nil
}

func (builder *CommandBuilder) reportFailure(command *cobra.Command, workflowID string, failure error) error {
	resolveLogger(builder.LoggerProvider).Debug(workflowCommandFailedMessageConstant,
		zap.String(commandLogFieldConstant, command.Name()),
		zap.String(workflowIDLogFieldConstant, workflowID),
		zap.String(errorKindLogFieldConstant, string(automation.ClassifyError(failure))),
		zap.Error(failure),
	)
	return failure
}

func requireWorkflowID(arguments []string) (string, error) {
	if len(arguments) == 0 {
		return "", ErrWorkflowIDMissing
	}
	workflowID := strings.TrimSpace(arguments[0])
	if len(workflowID) == 0 {
		return "", ErrWorkflowIDMissing
	}
	return workflowID, nil
}

func taskFromFlags(command *cobra.Command) (automation.Task, error) {
	task := automation.Task{}
	if filePath, _, _ := flagutils.StringFlag(command, fileFlagNameConstant); len(strings.TrimSpace(filePath)) > 0 {
		loadedTask, loadError := loadTaskDefinition(filePath)
		if loadError != nil {
			return automation.Task{}, loadError
		}
		task = loadedTask
	}

	if taskID, changed, _ := flagutils.StringFlag(command, taskIDFlagNameConstant); changed {
		task.ID = taskID
	}
	if taskName, changed, _ := flagutils.StringFlag(command, nameFlagNameConstant); changed {
		task.Name = taskName
	}
	if taskType, changed, _ := flagutils.StringFlag(command, taskTypeFlagNameConstant); changed {
		task.Type = automation.TaskType(strings.TrimSpace(taskType))
	}
	if dependencies, changed, _ := flagutils.StringArrayFlag(command, dependsOnFlagNameConstant); changed {
		task.Dependencies = append(task.Dependencies, dependencies...)
	}
	if assignments, changed, _ := flagutils.StringArrayFlag(command, parameterFlagNameConstant); changed {
		parameters, parameterError := parseAssignments(parameterAssignmentLabelConstant, assignments)
		if parameterError != nil {
			return automation.Task{}, parameterError
		}
		if task.Parameters == nil {
			task.Parameters = make(map[string]any, len(parameters))
		}
		for key, value := range parameters {
			task.Parameters[key] = value
		}
	}
	return task, nil
}
