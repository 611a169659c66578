package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/tyemirov/autoflow/internal/automation"
	"github.com/tyemirov/autoflow/internal/server"
)

type echoChatCollaborator struct{}

func (collaborator echoChatCollaborator) Complete(executionContext context.Context, request automation.ChatRequest) (automation.ChatResponse, error) {
	return automation.ChatResponse{Text: "echo", Model: "test-model"}, nil
}

type testHarness struct {
	handler  http.Handler
	platform *automation.Platform
	logs     *observer.ObservedLogs
}

func newTestHarness(testInstance *testing.T) testHarness {
	testInstance.Helper()
	gin.SetMode(gin.TestMode)
	observerCore, observedLogs := observer.New(zap.InfoLevel)
	platform := automation.NewPlatform(automation.PlatformDependencies{Chat: echoChatCollaborator{}})
	httpServer, serverError := server.New(platform, zap.New(observerCore), server.Configuration{})
	require.NoError(testInstance, serverError)
	return testHarness{handler: httpServer.Handler(), platform: platform, logs: observedLogs}
}

func (harness testHarness) perform(testInstance *testing.T, method string, path string, body any) *httptest.ResponseRecorder {
	testInstance.Helper()
	var requestBody bytes.Buffer
	if body != nil {
		if raw, isRaw := body.(string); isRaw {
			requestBody.WriteString(raw)
		} else {
			require.NoError(testInstance, json.NewEncoder(&requestBody).Encode(body))
		}
	}
	request := httptest.NewRequest(method, path, &requestBody)
	request.Header.Set("Content-Type", "application/json")
	recorder := httptest.NewRecorder()
	harness.handler.ServeHTTP(recorder, request)
	return recorder
}

func decodeBody[T any](testInstance *testing.T, recorder *httptest.ResponseRecorder) T {
	testInstance.Helper()
	var decoded T
	require.NoError(testInstance, json.Unmarshal(recorder.Body.Bytes(), &decoded))
	return decoded
}

func TestNewRequiresPlatform(testInstance *testing.T) {
	_, serverError := server.New(nil, zap.NewNop(), server.Configuration{})
	require.ErrorIs(testInstance, serverError, server.ErrPlatformNotConfigured)
}

func TestWorkflowLifecycleOverHTTP(testInstance *testing.T) {
	harness := newTestHarness(testInstance)

	createRecorder := harness.perform(testInstance, http.MethodPost, "/workflow/create", map[string]any{
		"name":        "digest",
		"description": "daily digest",
		"tasks": []map[string]any{
			{"id": "a", "name": "draft", "type": "chat", "parameters": map[string]any{"message": "write"}},
			{"id": "b", "name": "review", "type": "chat", "parameters": map[string]any{"message": "review"}, "dependencies": []string{"a"}},
		},
	})
	require.Equal(testInstance, http.StatusOK, createRecorder.Code)
	created := decodeBody[map[string]any](testInstance, createRecorder)
	require.Equal(testInstance, true, created["success"])
	require.Equal(testInstance, "digest", created["name"])
	require.Equal(testInstance, float64(2), created["tasks_added"])
	workflowID := created["workflow_id"].(string)
	require.NotEmpty(testInstance, workflowID)

	addRecorder := harness.perform(testInstance, http.MethodPost, "/workflow/add-task", map[string]any{
		"workflow_id": workflowID,
		"task":        map[string]any{"id": "c", "type": "chat", "parameters": map[string]any{"message": "publish"}, "dependencies": []string{"b"}},
	})
	require.Equal(testInstance, http.StatusOK, addRecorder.Code)

	listRecorder := harness.perform(testInstance, http.MethodGet, "/workflow/list", nil)
	require.Equal(testInstance, http.StatusOK, listRecorder.Code)
	summaries := decodeBody[[]automation.WorkflowSummary](testInstance, listRecorder)
	require.Len(testInstance, summaries, 1)
	require.Equal(testInstance, 3, summaries[0].TaskCount)
	require.True(testInstance, summaries[0].Enabled)

	executeRecorder := harness.perform(testInstance, http.MethodPost, "/workflow/execute", map[string]any{
		"workflow_id": workflowID,
		"context":     map[string]any{"user": "ada"},
	})
	require.Equal(testInstance, http.StatusOK, executeRecorder.Code)
	execution := decodeBody[automation.ExecutionContext](testInstance, executeRecorder)
	require.Equal(testInstance, automation.RunStatusCompleted, execution.Status)
	require.Equal(testInstance, []string{"a", "b", "c"}, execution.Order)
	require.Equal(testInstance, map[string]any{"user": "ada"}, execution.Context)

	statusRecorder := harness.perform(testInstance, http.MethodGet, "/workflow/status?id="+workflowID, nil)
	require.Equal(testInstance, http.StatusOK, statusRecorder.Code)
	report := decodeBody[automation.WorkflowStatusReport](testInstance, statusRecorder)
	require.Len(testInstance, report.Tasks, 3)
	for _, task := range report.Tasks {
		require.Equal(testInstance, automation.TaskStatusCompleted, task.Status)
		require.NotNil(testInstance, task.CompletedAt)
	}

	disableRecorder := harness.perform(testInstance, http.MethodPost, "/workflow/disable", map[string]any{"workflow_id": workflowID})
	require.Equal(testInstance, http.StatusOK, disableRecorder.Code)
	require.Equal(testInstance, false, decodeBody[map[string]any](testInstance, disableRecorder)["enabled"])

	disabledRecorder := harness.perform(testInstance, http.MethodPost, "/workflow/execute", map[string]any{"workflow_id": workflowID})
	require.Equal(testInstance, http.StatusConflict, disabledRecorder.Code)
	require.Equal(testInstance, "disabled", decodeBody[map[string]any](testInstance, disabledRecorder)["error_kind"])

	enableRecorder := harness.perform(testInstance, http.MethodPost, "/workflow/enable", map[string]any{"workflow_id": workflowID})
	require.Equal(testInstance, http.StatusOK, enableRecorder.Code)
}

func TestExecuteReportsDependencyFailureInBody(testInstance *testing.T) {
	harness := newTestHarness(testInstance)
	definition, createError := harness.platform.CreateWorkflow(context.Background(), automation.WorkflowDraft{
		Name: "broken",
		Tasks: []automation.Task{
			{ID: "a", Type: automation.TaskTypeChat, Parameters: map[string]any{"message": "x"}, Dependencies: []string{"ghost"}},
		},
	})
	require.NoError(testInstance, createError)

	recorder := harness.perform(testInstance, http.MethodPost, "/workflow/execute", map[string]any{"workflow_id": definition.ID})
	require.Equal(testInstance, http.StatusOK, recorder.Code)
	execution := decodeBody[automation.ExecutionContext](testInstance, recorder)
	require.Equal(testInstance, automation.RunStatusFailed, execution.Status)
	require.NotEmpty(testInstance, execution.Error)
	require.Empty(testInstance, execution.Results)
}

func TestRequestErrors(testInstance *testing.T) {
	testCases := []struct {
		name         string
		method       string
		path         string
		body         any
		expectedCode int
	}{
		{name: "create_missing_name", method: http.MethodPost, path: "/workflow/create", body: map[string]any{"description": "x"}, expectedCode: http.StatusBadRequest},
		{name: "create_invalid_json", method: http.MethodPost, path: "/workflow/create", body: "{not json", expectedCode: http.StatusBadRequest},
		{name: "execute_missing_id", method: http.MethodPost, path: "/workflow/execute", body: map[string]any{}, expectedCode: http.StatusBadRequest},
		{name: "execute_unknown", method: http.MethodPost, path: "/workflow/execute", body: map[string]any{"workflow_id": "nope"}, expectedCode: http.StatusNotFound},
		{name: "status_missing_id", method: http.MethodGet, path: "/workflow/status", expectedCode: http.StatusBadRequest},
		{name: "status_unknown", method: http.MethodGet, path: "/workflow/status?id=nope", expectedCode: http.StatusNotFound},
		{name: "add_task_unknown", method: http.MethodPost, path: "/workflow/add-task", body: map[string]any{"workflow_id": "nope", "task": map[string]any{"id": "a"}}, expectedCode: http.StatusNotFound},
		{name: "enable_unknown", method: http.MethodPost, path: "/workflow/enable", body: map[string]any{"workflow_id": "nope"}, expectedCode: http.StatusNotFound},
		{name: "unknown_route", method: http.MethodGet, path: "/nowhere", expectedCode: http.StatusNotFound},
	}

	for testCaseIndex, testCase := range testCases {
		testInstance.Run(fmt.Sprintf("%d_%s", testCaseIndex, testCase.name), func(testInstance *testing.T) {
			harness := newTestHarness(testInstance)
			recorder := harness.perform(testInstance, testCase.method, testCase.path, testCase.body)
			require.Equal(testInstance, testCase.expectedCode, recorder.Code)
		})
	}
}

func TestSharedMemoryEndpoints(testInstance *testing.T) {
	harness := newTestHarness(testInstance)

	updateRecorder := harness.perform(testInstance, http.MethodPost, "/automation/memory", map[string]any{"project": "autoflow"})
	require.Equal(testInstance, http.StatusOK, updateRecorder.Code)

	getRecorder := harness.perform(testInstance, http.MethodGet, "/automation/memory", nil)
	require.Equal(testInstance, http.StatusOK, getRecorder.Code)
	require.Equal(testInstance, map[string]any{"project": "autoflow"}, decodeBody[map[string]any](testInstance, getRecorder))

	clearRecorder := harness.perform(testInstance, http.MethodPost, "/automation/memory/clear", nil)
	require.Equal(testInstance, http.StatusOK, clearRecorder.Code)
	require.Empty(testInstance, harness.platform.GetSharedMemory())
}

func TestStatusEndpointAndRequestLogging(testInstance *testing.T) {
	harness := newTestHarness(testInstance)

	request := httptest.NewRequest(http.MethodGet, "/status", nil)
	request.Header.Set("X-Request-ID", "req-42")
	recorder := httptest.NewRecorder()
	harness.handler.ServeHTTP(recorder, request)

	require.Equal(testInstance, http.StatusOK, recorder.Code)
	require.Equal(testInstance, "req-42", recorder.Header().Get("X-Request-ID"))
	status := decodeBody[map[string]any](testInstance, recorder)
	require.Equal(testInstance, "active", status["status"])
	require.NotEmpty(testInstance, status["endpoints"])

	entries := harness.logs.FilterMessage("http_request_completed").All()
	require.Len(testInstance, entries, 1)
	fields := entries[0].ContextMap()
	require.Equal(testInstance, "req-42", fields["request_id"])
	require.Equal(testInstance, "/status", fields["path"])
	require.Equal(testInstance, int64(http.StatusOK), fields["status"])
}

type unavailableWorkflowStore struct {
	automation.WorkflowStore
}

func (store unavailableWorkflowStore) ListWorkflows(context.Context) ([]automation.WorkflowDefinition, error) {
	return nil, errors.New("database is locked")
}

func TestInternalFailuresAreLoggedWithRequestIdentifier(testInstance *testing.T) {
	gin.SetMode(gin.TestMode)
	observerCore, observedLogs := observer.New(zap.InfoLevel)
	platform := automation.NewPlatform(automation.PlatformDependencies{Store: unavailableWorkflowStore{}})
	httpServer, serverError := server.New(platform, zap.New(observerCore), server.Configuration{})
	require.NoError(testInstance, serverError)

	request := httptest.NewRequest(http.MethodGet, "/workflow/list", nil)
	request.Header.Set("X-Request-ID", "req-500")
	recorder := httptest.NewRecorder()
	httpServer.Handler().ServeHTTP(recorder, request)

	require.Equal(testInstance, http.StatusInternalServerError, recorder.Code)
	response := decodeBody[map[string]any](testInstance, recorder)
	require.Equal(testInstance, "internal", response["error_kind"])
	require.Contains(testInstance, response["error"], "database is locked")

	entries := observedLogs.FilterMessage("http_request_failed").All()
	require.Len(testInstance, entries, 1)
	fields := entries[0].ContextMap()
	require.Equal(testInstance, "req-500", fields["request_id"])
	require.Equal(testInstance, "/workflow/list", fields["route"])
	require.Equal(testInstance, "internal", fields["error_kind"])
}
