package workflow

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/tyemirov/autoflow/internal/automation"
	"github.com/tyemirov/autoflow/internal/utils"
)

func TestRenderSummariesTable(testInstance *testing.T) {
	output := &bytes.Buffer{}
	renderer := newOutputRenderer(output, utils.OutputFormatTable)

	require.NoError(testInstance, renderer.renderSummaries([]automation.WorkflowSummary{
		{ID: "wf-1", Name: "nightly", Enabled: true, TaskCount: 2, Description: "Nightly, with comma"},
		{ID: "wf-2", Name: "adhoc", TaskCount: 0},
	}))
	require.Equal(testInstance,
		"id,name,enabled,task_count,description\nwf-1,nightly,true,2,\"Nightly, with comma\"\nwf-2,adhoc,false,0,\n",
		output.String(),
	)
}

func TestRenderSummariesStructured(testInstance *testing.T) {
	summaries := []automation.WorkflowSummary{{ID: "wf-1", Name: "nightly", Enabled: true, TaskCount: 1}}

	jsonOutput := &bytes.Buffer{}
	require.NoError(testInstance, newOutputRenderer(jsonOutput, utils.OutputFormatJSON).renderSummaries(summaries))
	var decodedJSON []automation.WorkflowSummary
	require.NoError(testInstance, json.Unmarshal(jsonOutput.Bytes(), &decodedJSON))
	require.Equal(testInstance, summaries, decodedJSON)

	yamlOutput := &bytes.Buffer{}
	require.NoError(testInstance, newOutputRenderer(yamlOutput, utils.OutputFormatYAML).renderSummaries(summaries))
	var decodedYAML []automation.WorkflowSummary
	require.NoError(testInstance, yaml.Unmarshal(yamlOutput.Bytes(), &decodedYAML))
	require.Equal(testInstance, summaries, decodedYAML)
}

func TestRenderStatusYAMLInlinesSummary(testInstance *testing.T) {
	report := automation.WorkflowStatusReport{
		WorkflowSummary: automation.WorkflowSummary{ID: "wf-1", Name: "nightly"},
		Tasks:           []automation.TaskStatusReport{{ID: "fetch", Status: automation.TaskStatusPending}},
	}

	output := &bytes.Buffer{}
	require.NoError(testInstance, newOutputRenderer(output, utils.OutputFormatYAML).renderStatus(report))

	var decoded map[string]any
	require.NoError(testInstance, yaml.Unmarshal(output.Bytes(), &decoded))
	require.Equal(testInstance, "wf-1", decoded["id"])
	require.Len(testInstance, decoded["tasks"], 1)
}

func TestRenderExecutionIncludesRunError(testInstance *testing.T) {
	output := &bytes.Buffer{}
	execution := automation.ExecutionContext{WorkflowID: "wf-1", Status: automation.RunStatusFailed, Error: "boom"}

	require.NoError(testInstance, newOutputRenderer(output, utils.OutputFormatTable).renderExecution(execution))
	require.Equal(testInstance, "-- wf-1 --\nstatus=failed duration=0s tasks=0 failed=0\nerror=boom\n", output.String())
}
