package workflow

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/tyemirov/autoflow/internal/automation"
	"github.com/tyemirov/autoflow/internal/utils"
)

const (
	listHeaderIDConstant             = "id"
	listHeaderNameConstant           = "name"
	listHeaderEnabledConstant        = "enabled"
	listHeaderTaskCountConstant      = "task_count"
	listHeaderDescriptionConstant    = "description"
	headerTemplateConstant           = "-- %s (%s) --\n"
	executionHeaderTemplateConstant  = "-- %s --\n"
	succeededLineTemplateConstant    = "  ✓ %s\n"
	failedLineTemplateConstant       = "  ✖ %s: %s\n"
	pendingLineTemplateConstant      = "  • %s [%s]\n"
	taskLabelTemplateConstant        = "%s (%s)"
	executionSummaryTemplateConstant = "status=%s duration=%s tasks=%d failed=%d\n"
	executionErrorTemplateConstant   = "error=%s\n"
	createdLineTemplateConstant      = "workflow %s created: %s (%d tasks)\n"
	importedLineTemplateConstant     = "workflow %s imported: %s (%d tasks)\n"
	taskAddedLineTemplateConstant    = "task %s added to workflow %s\n"
	enabledLineTemplateConstant      = "workflow %s enabled\n"
	disabledLineTemplateConstant     = "workflow %s disabled\n"
	emptyStatusErrorConstant         = "failed"
)

// outputRenderer writes command results in the requested format.
type outputRenderer struct {
	writer io.Writer
	format utils.OutputFormat
}

func newOutputRenderer(writer io.Writer, format utils.OutputFormat) outputRenderer {
	return outputRenderer{writer: utils.NewFlushingWriter(writer), format: format}
}

func (renderer outputRenderer) structured() bool {
	return renderer.format != utils.OutputFormatTable
}

func (renderer outputRenderer) renderSummaries(summaries []automation.WorkflowSummary) error {
	if renderer.structured() {
		return utils.WriteStructuredOutput(renderer.writer, renderer.format, summaries)
	}

	csvWriter := csv.NewWriter(renderer.writer)
	if writeError := csvWriter.Write([]string{
		listHeaderIDConstant,
		listHeaderNameConstant,
		listHeaderEnabledConstant,
		listHeaderTaskCountConstant,
		listHeaderDescriptionConstant,
	}); writeError != nil {
		return writeError
	}
	for _, summary := range summaries {
		if writeError := csvWriter.Write([]string{
			summary.ID,
			summary.Name,
			strconv.FormatBool(summary.Enabled),
			strconv.Itoa(summary.TaskCount),
			summary.Description,
		}); writeError != nil {
			return writeError
		}
	}
	csvWriter.Flush()
	return csvWriter.Error()
}

func (renderer outputRenderer) renderStatus(report automation.WorkflowStatusReport) error {
	if renderer.structured() {
		return utils.WriteStructuredOutput(renderer.writer, renderer.format, report)
	}

	fmt.Fprintf(renderer.writer, headerTemplateConstant, report.Name, report.ID)
	for _, task := range report.Tasks {
		label := taskLabel(task.ID, task.Name)
		switch task.Status {
		case automation.TaskStatusCompleted:
			fmt.Fprintf(renderer.writer, succeededLineTemplateConstant, label)
		case automation.TaskStatusFailed:
			fmt.Fprintf(renderer.writer, failedLineTemplateConstant, label, failureMessage(task.Error))
		default:
			fmt.Fprintf(renderer.writer, pendingLineTemplateConstant, label, task.Status)
		}
	}
	return nil
}

func (renderer outputRenderer) renderExecution(execution automation.ExecutionContext) error {
	if renderer.structured() {
		return utils.WriteStructuredOutput(renderer.writer, renderer.format, execution)
	}

	fmt.Fprintf(renderer.writer, executionHeaderTemplateConstant, execution.WorkflowID)
	for _, taskID := range execution.Order {
		result, exists := execution.Results[taskID]
		if !exists {
			continue
		}
		if result.Success {
			fmt.Fprintf(renderer.writer, succeededLineTemplateConstant, taskID)
			continue
		}
		fmt.Fprintf(renderer.writer, failedLineTemplateConstant, taskID, failureMessage(result.Error))
	}
	fmt.Fprintf(renderer.writer, executionSummaryTemplateConstant,
		execution.Status,
		execution.Duration,
		len(execution.Order),
		len(execution.FailedTaskIDs()),
	)
	if len(strings.TrimSpace(execution.Error)) > 0 {
		fmt.Fprintf(renderer.writer, executionErrorTemplateConstant, execution.Error)
	}
	return nil
}

func (renderer outputRenderer) renderCreated(definition automation.WorkflowDefinition) error {
	if renderer.structured() {
		return utils.WriteStructuredOutput(renderer.writer, renderer.format, definition.Summary())
	}
	fmt.Fprintf(renderer.writer, createdLineTemplateConstant, definition.Name, definition.ID, len(definition.Tasks))
	return nil
}

func (renderer outputRenderer) renderImported(definition automation.WorkflowDefinition) error {
	if renderer.structured() {
		return utils.WriteStructuredOutput(renderer.writer, renderer.format, definition.Summary())
	}
	fmt.Fprintf(renderer.writer, importedLineTemplateConstant, definition.Name, definition.ID, len(definition.Tasks))
	return nil
}

func (renderer outputRenderer) renderTaskAdded(workflowID string, task automation.Task) error {
	if renderer.structured() {
		return utils.WriteStructuredOutput(renderer.writer, renderer.format, task)
	}
	fmt.Fprintf(renderer.writer, taskAddedLineTemplateConstant, task.ID, workflowID)
	return nil
}

func (renderer outputRenderer) renderEnabled(report automation.WorkflowStatusReport) error {
	if renderer.structured() {
		return utils.WriteStructuredOutput(renderer.writer, renderer.format, report.WorkflowSummary)
	}
	if report.Enabled {
		fmt.Fprintf(renderer.writer, enabledLineTemplateConstant, report.ID)
		return nil
	}
	fmt.Fprintf(renderer.writer, disabledLineTemplateConstant, report.ID)
	return nil
}

func taskLabel(taskID string, taskName string) string {
	trimmedName := strings.TrimSpace(taskName)
	if len(trimmedName) == 0 || trimmedName == taskID {
		return taskID
	}
	return fmt.Sprintf(taskLabelTemplateConstant, trimmedName, taskID)
}

func failureMessage(message string) string {
	trimmed := strings.TrimSpace(message)
	if len(trimmed) == 0 {
		return emptyStatusErrorConstant
	}
	return trimmed
}
