package workflow

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tyemirov/autoflow/internal/automation"
)

const (
	commandSubtestNameTemplateConstant = "%d_%s"
	testWorkflowIDConstant             = "wf-1"
)

type stubPlatform struct {
	createdDrafts  []automation.WorkflowDraft
	registered     []automation.WorkflowDefinition
	registerError  error
	addedTasks     []automation.Task
	summaries      []automation.WorkflowSummary
	report         automation.WorkflowStatusReport
	execution      automation.ExecutionContext
	executeError   error
	callerContext  map[string]any
	enabledUpdates []bool
}

func (platform *stubPlatform) CreateWorkflow(_ context.Context, draft automation.WorkflowDraft) (automation.WorkflowDefinition, error) {
	platform.createdDrafts = append(platform.createdDrafts, draft)
	return automation.WorkflowDefinition{ID: testWorkflowIDConstant, Name: draft.Name, Description: draft.Description, Enabled: true, Tasks: draft.Tasks}, nil
}

func (platform *stubPlatform) RegisterWorkflow(_ context.Context, definition automation.WorkflowDefinition) error {
	if platform.registerError != nil {
		return platform.registerError
	}
	platform.registered = append(platform.registered, definition)
	return nil
}

func (platform *stubPlatform) AddTask(_ context.Context, workflowID string, task automation.Task) (automation.Task, error) {
	if workflowID != testWorkflowIDConstant {
		return automation.Task{}, automation.NotFoundError{WorkflowID: workflowID}
	}
	platform.addedTasks = append(platform.addedTasks, task)
	return task, nil
}

func (platform *stubPlatform) ListWorkflows(context.Context) ([]automation.WorkflowSummary, error) {
	return platform.summaries, nil
}

func (platform *stubPlatform) WorkflowStatus(context.Context, string) (automation.WorkflowStatusReport, error) {
	return platform.report, nil
}

func (platform *stubPlatform) SetWorkflowEnabled(_ context.Context, _ string, enabled bool) error {
	platform.enabledUpdates = append(platform.enabledUpdates, enabled)
	platform.report.Enabled = enabled
	return nil
}

func (platform *stubPlatform) ExecuteWorkflow(_ context.Context, _ string, callerContext map[string]any) (automation.ExecutionContext, error) {
	platform.callerContext = callerContext
	return platform.execution, platform.executeError
}

func runWorkflowCommand(testingInstance *testing.T, platform Platform, arguments ...string) (string, error) {
	testingInstance.Helper()

	builder := CommandBuilder{
		LoggerProvider: func() *zap.Logger { return zap.NewNop() },
		PlatformProvider: func(context.Context) (Platform, error) {
			return platform, nil
		},
	}
	command, buildError := builder.Build()
	require.NoError(testingInstance, buildError)

	output := &bytes.Buffer{}
	command.SetOut(output)
	command.SetErr(output)
	command.SetArgs(arguments)
	command.SetContext(context.Background())
	executionError := command.Execute()
	return output.String(), executionError
}

func TestWorkflowCommandCreateMergesFileAndFlags(testInstance *testing.T) {
	definitionPath := filepath.Join(testInstance.TempDir(), "workflow.yaml")
	require.NoError(testInstance, os.WriteFile(definitionPath, []byte("name: from-file\ndescription: nightly\ntasks:\n  - id: fetch\n    type: chat\n    parameters:\n      message: hi\n"), 0o600))

	platform := &stubPlatform{}
	output, executionError := runWorkflowCommand(testInstance, platform, "create", "--file", definitionPath, "--name", "override")
	require.NoError(testInstance, executionError)

	require.Len(testInstance, platform.createdDrafts, 1)
	draft := platform.createdDrafts[0]
	require.Equal(testInstance, "override", draft.Name)
	require.Equal(testInstance, "nightly", draft.Description)
	require.Len(testInstance, draft.Tasks, 1)
	require.Equal(testInstance, automation.TaskTypeChat, draft.Tasks[0].Type)
	require.Equal(testInstance, "workflow override created: wf-1 (1 tasks)\n", output)
}

func TestWorkflowCommandImportRegistersDefinition(testInstance *testing.T) {
	testCases := []struct {
		name            string
		content         string
		registerError   error
		expectedOutput  string
		expectedEnabled bool
		expectedTasks   []string
		errorFragment   string
		expectedKind    automation.ErrorKind
	}{
		{
			name:            "EnabledByDefault",
			content:         "id: nightly-report\nname: nightly\ntasks:\n  - id: fetch\n    type: chat\n  - id: publish\n    dependencies: [fetch]\n",
			expectedOutput:  "workflow nightly imported: nightly-report (2 tasks)\n",
			expectedEnabled: true,
			expectedTasks:   []string{"fetch", "publish"},
		},
		{
			name:            "ExplicitlyDisabled",
			content:         "{\"id\": \"paused\", \"name\": \"paused\", \"enabled\": false, \"tasks\": []}",
			expectedOutput:  "workflow paused imported: paused (0 tasks)\n",
			expectedEnabled: false,
			expectedTasks:   []string{},
		},
		{
			name:          "MissingIdentifier",
			content:       "name: anonymous\n",
			errorFragment: "has no id",
		},
		{
			name:          "DuplicateTaskRejected",
			content:       "id: twice\nname: twice\ntasks:\n  - id: a\n  - id: a\n",
			registerError: automation.ValidationError{TaskID: "a", Message: "task id \"a\" already exists in workflow twice"},
			errorFragment: "already exists",
			expectedKind:  automation.ErrorKindValidation,
		},
	}

	for testCaseIndex, testCase := range testCases {
		testInstance.Run(fmt.Sprintf(commandSubtestNameTemplateConstant, testCaseIndex, testCase.name), func(t *testing.T) {
			definitionPath := filepath.Join(t.TempDir(), "definition.yaml")
			require.NoError(t, os.WriteFile(definitionPath, []byte(testCase.content), 0o600))
			platform := &stubPlatform{registerError: testCase.registerError}

			output, executionError := runWorkflowCommand(t, platform, "import", definitionPath)
			if len(testCase.errorFragment) > 0 {
				require.ErrorContains(t, executionError, testCase.errorFragment)
				if len(testCase.expectedKind) > 0 {
					require.Equal(t, testCase.expectedKind, automation.ClassifyError(executionError))
				}
				require.Empty(t, platform.registered)
				return
			}

			require.NoError(t, executionError)
			require.Equal(t, testCase.expectedOutput, output)
			require.Len(t, platform.registered, 1)
			require.Equal(t, testCase.expectedEnabled, platform.registered[0].Enabled)
			taskIDs := make([]string, 0, len(platform.registered[0].Tasks))
			for _, task := range platform.registered[0].Tasks {
				taskIDs = append(taskIDs, task.ID)
			}
			require.Equal(t, testCase.expectedTasks, taskIDs)
		})
	}

	_, missingError := runWorkflowCommand(testInstance, &stubPlatform{}, "import")
	require.ErrorIs(testInstance, missingError, ErrDefinitionFileMissing)
}

func TestWorkflowCommandAddTaskFromFlags(testInstance *testing.T) {
	platform := &stubPlatform{}
	output, executionError := runWorkflowCommand(testInstance, platform,
		"add-task", testWorkflowIDConstant,
		"--type", "capability",
		"--id", "run",
		"--depends-on", "fetch",
		"--parameter", "service=command",
		"--parameter", "command=echo a=b",
	)
	require.NoError(testInstance, executionError)

	require.Len(testInstance, platform.addedTasks, 1)
	task := platform.addedTasks[0]
	require.Equal(testInstance, "run", task.ID)
	require.Equal(testInstance, automation.TaskTypeCapability, task.Type)
	require.Equal(testInstance, []string{"fetch"}, task.Dependencies)
	require.Equal(testInstance, map[string]any{"service": "command", "command": "echo a=b"}, task.Parameters)
	require.Equal(testInstance, "task run added to workflow wf-1\n", output)
}

func TestWorkflowCommandArgumentErrors(testInstance *testing.T) {
	testCases := []struct {
		name          string
		arguments     []string
		expectedError error
		expectedKind  automation.ErrorKind
		errorFragment string
	}{
		{
			name:          "ExecuteWithoutID",
			arguments:     []string{"execute"},
			expectedError: ErrWorkflowIDMissing,
		},
		{
			name:          "StatusBlankID",
			arguments:     []string{"status", "  "},
			expectedError: ErrWorkflowIDMissing,
		},
		{
			name:          "MalformedParameter",
			arguments:     []string{"add-task", testWorkflowIDConstant, "--parameter", "broken"},
			errorFragment: "key=value",
		},
		{
			name:          "MalformedContext",
			arguments:     []string{"execute", testWorkflowIDConstant, "--context", "=value"},
			errorFragment: "key cannot be empty",
		},
		{
			name:          "UnknownWorkflow",
			arguments:     []string{"add-task", "missing", "--type", "chat"},
			expectedKind:  automation.ErrorKindNotFound,
		},
	}

	for testCaseIndex, testCase := range testCases {
		testInstance.Run(fmt.Sprintf(commandSubtestNameTemplateConstant, testCaseIndex, testCase.name), func(t *testing.T) {
			_, executionError := runWorkflowCommand(t, &stubPlatform{}, testCase.arguments...)
			require.Error(t, executionError)
			if testCase.expectedError != nil {
				require.ErrorIs(t, executionError, testCase.expectedError)
			}
			if len(testCase.expectedKind) > 0 {
				require.Equal(t, testCase.expectedKind, automation.ClassifyError(executionError))
			}
			if len(testCase.errorFragment) > 0 {
				require.Contains(t, executionError.Error(), testCase.errorFragment)
			}
		})
	}
}

func TestWorkflowCommandExecuteRendersResults(testInstance *testing.T) {
	platform := &stubPlatform{
		execution: automation.ExecutionContext{
			WorkflowID: testWorkflowIDConstant,
			Duration:   1500 * time.Millisecond,
			Order:      []string{"fetch", "summarize"},
			Results: map[string]automation.TaskResult{
				"fetch":     {Success: true},
				"summarize": {Success: false, Error: "chat backend unavailable"},
			},
			Status: automation.RunStatusCompleted,
		},
	}

	output, executionError := runWorkflowCommand(testInstance, platform, "run", testWorkflowIDConstant, "--context", "region=eu", "--context", "owner=ops")
	require.NoError(testInstance, executionError)
	require.Equal(testInstance, map[string]any{"region": "eu", "owner": "ops"}, platform.callerContext)
	require.Equal(testInstance,
		"-- wf-1 --\n  ✓ fetch\n  ✖ summarize: chat backend unavailable\nstatus=completed duration=1.5s tasks=2 failed=1\n",
		output,
	)
}

func TestWorkflowCommandExecuteDependencyFailure(testInstance *testing.T) {
	dependencyError := automation.DependencyError{WorkflowID: testWorkflowIDConstant, Unresolved: []string{"a", "b"}}
	platform := &stubPlatform{
		execution: automation.ExecutionContext{
			WorkflowID: testWorkflowIDConstant,
			Status:     automation.RunStatusFailed,
			Error:      dependencyError.Error(),
		},
		executeError: dependencyError,
	}

	output, executionError := runWorkflowCommand(testInstance, platform, "execute", testWorkflowIDConstant)
	require.Error(testInstance, executionError)

	var observedDependencyError automation.DependencyError
	require.True(testInstance, errors.As(executionError, &observedDependencyError))
	require.Contains(testInstance, output, "status=failed")
	require.Contains(testInstance, output, "error="+dependencyError.Error())
}

func TestWorkflowCommandStatusAndToggle(testInstance *testing.T) {
	platform := &stubPlatform{
		report: automation.WorkflowStatusReport{
			WorkflowSummary: automation.WorkflowSummary{ID: testWorkflowIDConstant, Name: "nightly", Enabled: true},
			Tasks: []automation.TaskStatusReport{
				{ID: "fetch", Status: automation.TaskStatusCompleted},
				{ID: "summarize", Name: "Summarize", Status: automation.TaskStatusFailed},
				{ID: "publish", Status: automation.TaskStatusPending},
			},
		},
	}

	statusOutput, statusError := runWorkflowCommand(testInstance, platform, "status", testWorkflowIDConstant)
	require.NoError(testInstance, statusError)
	require.Equal(testInstance,
		"-- nightly (wf-1) --\n  ✓ fetch\n  ✖ Summarize (summarize): failed\n  • publish [pending]\n",
		statusOutput,
	)

	disableOutput, disableError := runWorkflowCommand(testInstance, platform, "disable", testWorkflowIDConstant)
	require.NoError(testInstance, disableError)
	require.Equal(testInstance, "workflow wf-1 disabled\n", disableOutput)

	enableOutput, enableError := runWorkflowCommand(testInstance, platform, "enable", testWorkflowIDConstant)
	require.NoError(testInstance, enableError)
	require.Equal(testInstance, "workflow wf-1 enabled\n", enableOutput)
	require.Equal(testInstance, []bool{false, true}, platform.enabledUpdates)
}

func TestWorkflowCommandMissingPlatformProvider(testInstance *testing.T) {
	builder := CommandBuilder{}
	command, buildError := builder.Build()
	require.NoError(testInstance, buildError)

	command.SetOut(&bytes.Buffer{})
	command.SetErr(&bytes.Buffer{})
	command.SetArgs([]string{"list"})
	require.ErrorIs(testInstance, command.Execute(), ErrPlatformProviderMissing)
}

func TestWorkflowNamespaceRegistersSubcommands(testInstance *testing.T) {
	builder := CommandBuilder{}
	command, buildError := builder.Build()
	require.NoError(testInstance, buildError)

	registered := map[string]*cobra.Command{}
	for _, subcommand := range command.Commands() {
		registered[subcommand.Name()] = subcommand
	}
	for _, expected := range []string{"list", "create", "import", "add-task", "execute", "status", "enable", "disable"} {
		require.Contains(testInstance, registered, expected)
	}
	require.Contains(testInstance, registered["execute"].Aliases, "run")
	require.Contains(testInstance, registered["list"].Aliases, "ls")
}
