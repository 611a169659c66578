package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tyemirov/autoflow/internal/automation"
	"github.com/tyemirov/autoflow/internal/utils"
)

const (
	statusPathConstant          = "/status"
	workflowGroupPathConstant   = "/workflow"
	workflowCreatePathConstant  = "/create"
	workflowAddTaskPathConstant = "/add-task"
	workflowExecutePathConstant = "/execute"
	workflowListPathConstant    = "/list"
	workflowStatusPathConstant  = "/status"
	workflowEnablePathConstant  = "/enable"
	workflowDisablePathConstant = "/disable"
	memoryGroupPathConstant     = "/automation/memory"
	memoryClearPathConstant     = "/clear"

	workflowIDQueryParameterConstant = "id"
	serviceStatusActiveConstant      = "active"
	invalidJSONTemplateConstant      = "invalid JSON body: %v"
	workflowIDMissingMessageConstant = "workflow_id is required"
	memoryClearedMessageConstant     = "shared memory cleared"
	memoryUpdatedMessageConstant     = "shared memory updated"
	requestFailedMessageConstant     = "http_request_failed"
	errorKindLogFieldNameConstant    = "error_kind"
	routeLogFieldNameConstant        = "route"
)

var endpointDescriptions = []string{
	"/status - GET: Service status",
	"/workflow/list - GET: List workflows",
	"/workflow/create - POST: Create workflow",
	"/workflow/add-task - POST: Add a task to a workflow",
	"/workflow/execute - POST: Execute workflow",
	"/workflow/status - GET: Get workflow status",
	"/workflow/enable - POST: Enable workflow",
	"/workflow/disable - POST: Disable workflow",
	"/automation/memory - GET: Get shared memory",
	"/automation/memory - POST: Merge into shared memory",
	"/automation/memory/clear - POST: Clear shared memory",
}

type errorResponse struct {
	Error     string `json:"error"`
	ErrorKind string `json:"error_kind,omitempty"`
}

type serviceStatusResponse struct {
	Status    string   `json:"status"`
	Endpoints []string `json:"endpoints"`
}

type createWorkflowResponse struct {
	Success     bool   `json:"success"`
	WorkflowID  string `json:"workflow_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	TasksAdded  int    `json:"tasks_added"`
}

type addTaskRequest struct {
	WorkflowID string          `json:"workflow_id"`
	Task       automation.Task `json:"task"`
}

type addTaskResponse struct {
	Success    bool            `json:"success"`
	WorkflowID string          `json:"workflow_id"`
	Task       automation.Task `json:"task"`
}

type executeWorkflowRequest struct {
	WorkflowID string         `json:"workflow_id"`
	Context    map[string]any `json:"context"`
}

type workflowReferenceRequest struct {
	WorkflowID string `json:"workflow_id"`
}

type successResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

func (server *Server) handleStatus(ginContext *gin.Context) {
	ginContext.JSON(http.StatusOK, serviceStatusResponse{Status: serviceStatusActiveConstant, Endpoints: endpointDescriptions})
}

func (server *Server) handleCreateWorkflow(ginContext *gin.Context) {
	var draft automation.WorkflowDraft
	if !server.bindJSON(ginContext, &draft) {
		return
	}
	definition, createError := server.platform.CreateWorkflow(ginContext.Request.Context(), draft)
	if createError != nil {
		server.respondError(ginContext, createError)
		return
	}
	ginContext.JSON(http.StatusOK, createWorkflowResponse{
		Success:     true,
		WorkflowID:  definition.ID,
		Name:        definition.Name,
		Description: definition.Description,
		TasksAdded:  len(definition.Tasks),
	})
}

func (server *Server) handleAddTask(ginContext *gin.Context) {
	var request addTaskRequest
	if !server.bindJSON(ginContext, &request) {
		return
	}
	workflowID, present := requireWorkflowID(ginContext, request.WorkflowID)
	if !present {
		return
	}
	task, addError := server.platform.AddTask(ginContext.Request.Context(), workflowID, request.Task)
	if addError != nil {
		server.respondError(ginContext, addError)
		return
	}
	ginContext.JSON(http.StatusOK, addTaskResponse{Success: true, WorkflowID: workflowID, Task: task})
}

// handleExecuteWorkflow answers 200 for every run that started, including runs that failed dependency resolution.
func (server *Server) handleExecuteWorkflow(ginContext *gin.Context) {
	var request executeWorkflowRequest
	if !server.bindJSON(ginContext, &request) {
		return
	}
	workflowID, present := requireWorkflowID(ginContext, request.WorkflowID)
	if !present {
		return
	}
	execution, executeError := server.platform.ExecuteWorkflow(ginContext.Request.Context(), workflowID, request.Context)
	if executeError != nil && automation.ClassifyError(executeError) != automation.ErrorKindDependency {
		server.respondError(ginContext, executeError)
		return
	}
	ginContext.JSON(http.StatusOK, execution)
}

func (server *Server) handleListWorkflows(ginContext *gin.Context) {
	summaries, listError := server.platform.ListWorkflows(ginContext.Request.Context())
	if listError != nil {
		server.respondError(ginContext, listError)
		return
	}
	ginContext.JSON(http.StatusOK, summaries)
}

func (server *Server) handleWorkflowStatus(ginContext *gin.Context) {
	workflowID, present := requireWorkflowID(ginContext, ginContext.Query(workflowIDQueryParameterConstant))
	if !present {
		return
	}
	report, statusError := server.platform.WorkflowStatus(ginContext.Request.Context(), workflowID)
	if statusError != nil {
		server.respondError(ginContext, statusError)
		return
	}
	ginContext.JSON(http.StatusOK, report)
}

func (server *Server) handleSetEnabled(enabled bool) gin.HandlerFunc {
	return func(ginContext *gin.Context) {
		var request workflowReferenceRequest
		if !server.bindJSON(ginContext, &request) {
			return
		}
		workflowID, present := requireWorkflowID(ginContext, request.WorkflowID)
		if !present {
			return
		}
		if setError := server.platform.SetWorkflowEnabled(ginContext.Request.Context(), workflowID, enabled); setError != nil {
			server.respondError(ginContext, setError)
			return
		}
		report, statusError := server.platform.WorkflowStatus(ginContext.Request.Context(), workflowID)
		if statusError != nil {
			server.respondError(ginContext, statusError)
			return
		}
		ginContext.JSON(http.StatusOK, report.WorkflowSummary)
	}
}

func (server *Server) handleGetMemory(ginContext *gin.Context) {
	ginContext.JSON(http.StatusOK, server.platform.GetSharedMemory())
}

func (server *Server) handleUpdateMemory(ginContext *gin.Context) {
	var update map[string]any
	if !server.bindJSON(ginContext, &update) {
		return
	}
	if updateError := server.platform.UpdateSharedMemory(ginContext.Request.Context(), update); updateError != nil {
		server.respondError(ginContext, updateError)
		return
	}
	ginContext.JSON(http.StatusOK, successResponse{Success: true, Message: memoryUpdatedMessageConstant})
}

func (server *Server) handleClearMemory(ginContext *gin.Context) {
	if clearError := server.platform.ClearSharedMemory(ginContext.Request.Context()); clearError != nil {
		server.respondError(ginContext, clearError)
		return
	}
	ginContext.JSON(http.StatusOK, successResponse{Success: true, Message: memoryClearedMessageConstant})
}

func (server *Server) bindJSON(ginContext *gin.Context, target any) bool {
	if bindError := ginContext.ShouldBindJSON(target); bindError != nil {
		ginContext.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{Error: fmt.Sprintf(invalidJSONTemplateConstant, bindError)})
		return false
	}
	return true
}

func requireWorkflowID(ginContext *gin.Context, workflowID string) (string, bool) {
	trimmed := strings.TrimSpace(workflowID)
	if len(trimmed) == 0 {
		ginContext.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{Error: workflowIDMissingMessageConstant, ErrorKind: string(automation.ErrorKindValidation)})
		return "", false
	}
	return trimmed, true
}

func (server *Server) respondError(ginContext *gin.Context, err error) {
	errorKind := automation.ClassifyError(err)
	statusCode := statusCodeForErrorKind(errorKind)
	if statusCode >= http.StatusInternalServerError {
		requestIdentifier, _ := utils.NewCommandContextAccessor().RequestIdentifier(ginContext.Request.Context())
		server.logger.Error(requestFailedMessageConstant,
			zap.String(requestIDLogFieldNameConstant, requestIdentifier),
			zap.String(routeLogFieldNameConstant, ginContext.FullPath()),
			zap.String(errorKindLogFieldNameConstant, string(errorKind)),
			zap.Error(err),
		)
	}
	ginContext.AbortWithStatusJSON(statusCode, errorResponse{Error: err.Error(), ErrorKind: string(errorKind)})
}

func statusCodeForErrorKind(errorKind automation.ErrorKind) int {
	switch errorKind {
	case automation.ErrorKindValidation:
		return http.StatusBadRequest
	case automation.ErrorKindNotFound:
		return http.StatusNotFound
	case automation.ErrorKindDisabled:
		return http.StatusConflict
	case automation.ErrorKindCollaborator:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
