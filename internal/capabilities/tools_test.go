package capabilities_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tyemirov/autoflow/internal/automation"
	"github.com/tyemirov/autoflow/internal/capabilities"
)

type stubToolSession struct {
	tools     []mcp.Tool
	listError error
	result    *mcp.CallToolResult
	callError error
	requests  []mcp.CallToolRequest
	closed    bool
}

func (session *stubToolSession) ListTools(executionContext context.Context, request mcp.ListToolsRequest) (*mcp.ListToolsResult, error) {
	if session.listError != nil {
		return nil, session.listError
	}
	return &mcp.ListToolsResult{Tools: session.tools}, nil
}

func (session *stubToolSession) CallTool(executionContext context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	session.requests = append(session.requests, request)
	if session.callError != nil {
		return nil, session.callError
	}
	return session.result, nil
}

func (session *stubToolSession) Close() error {
	session.closed = true
	return nil
}

type stubSessionFactory struct {
	sessions map[string]*stubToolSession
	opened   []string
}

func (factory *stubSessionFactory) open(executionContext context.Context, server capabilities.ToolServerConfiguration) (capabilities.ToolSession, error) {
	factory.opened = append(factory.opened, server.Name)
	session, exists := factory.sessions[server.Name]
	if !exists {
		return nil, fmt.Errorf("server %s unavailable", server.Name)
	}
	return session, nil
}

func textResult(text string, isError bool) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.NewTextContent(text)},
		IsError: isError,
	}
}

func twoServerConfiguration() capabilities.ToolConfiguration {
	return capabilities.ToolConfiguration{Servers: []capabilities.ToolServerConfiguration{
		{Name: "files", Command: "files-server"},
		{Name: "search", Command: "search-server"},
	}}
}

func TestToolServiceCallRoutesByToolName(testInstance *testing.T) {
	filesSession := &stubToolSession{tools: []mcp.Tool{{Name: "read_file"}}}
	searchSession := &stubToolSession{tools: []mcp.Tool{{Name: "web_search"}}, result: textResult("three results", false)}
	factory := &stubSessionFactory{sessions: map[string]*stubToolSession{"files": filesSession, "search": searchSession}}
	service := capabilities.NewToolService(twoServerConfiguration(), factory.open, zap.NewNop())

	for attempt := 0; attempt < 2; attempt++ {
		result, invokeError := service.Invoke(context.Background(), automation.CapabilityInvocation{
			TaskID: "lookup",
			Action: "call",
			Parameters: map[string]any{
				"tool_name":  "web_search",
				"parameters": map[string]any{"query": "golang"},
			},
		})
		require.NoError(testInstance, invokeError)
		require.Equal(testInstance, map[string]any{"server": "search", "tool": "web_search", "output": "three results"}, result)
	}

	require.Equal(testInstance, []string{"files", "search"}, factory.opened)
	require.Empty(testInstance, filesSession.requests)
	require.Len(testInstance, searchSession.requests, 2)
	require.Equal(testInstance, "web_search", searchSession.requests[0].Params.Name)
	require.Equal(testInstance, map[string]any{"query": "golang"}, searchSession.requests[0].Params.Arguments)

	require.NoError(testInstance, service.Close())
	require.True(testInstance, filesSession.closed)
	require.True(testInstance, searchSession.closed)
}

func TestToolServiceList(testInstance *testing.T) {
	factory := &stubSessionFactory{sessions: map[string]*stubToolSession{
		"files":  {tools: []mcp.Tool{{Name: "read_file", Description: "Read a file"}}},
		"search": {tools: []mcp.Tool{{Name: "web_search", Description: "Search the web"}}},
	}}
	service := capabilities.NewToolService(twoServerConfiguration(), factory.open, nil)

	result, invokeError := service.Invoke(context.Background(), automation.CapabilityInvocation{TaskID: "tools", Action: "list"})
	require.NoError(testInstance, invokeError)
	require.Equal(testInstance, map[string]any{"tools": []any{
		map[string]any{"server": "files", "name": "read_file", "description": "Read a file"},
		map[string]any{"server": "search", "name": "web_search", "description": "Search the web"},
	}}, result)
}

func TestToolServiceFailures(testInstance *testing.T) {
	callFailure := errors.New("transport closed")
	testCases := []struct {
		name           string
		configuration  capabilities.ToolConfiguration
		sessions       map[string]*stubToolSession
		invocation     automation.CapabilityInvocation
		expectedKind   automation.ErrorKind
		expectedError  error
		expectedSubstr string
	}{
		{
			name:          "missing_tool_name",
			configuration: twoServerConfiguration(),
			invocation:    automation.CapabilityInvocation{TaskID: "t", Action: "call"},
			expectedKind:  automation.ErrorKindValidation,
		},
		{
			name:          "unsupported_action",
			configuration: twoServerConfiguration(),
			invocation:    automation.CapabilityInvocation{TaskID: "t", Action: "describe"},
			expectedKind:  automation.ErrorKindValidation,
		},
		{
			name:          "no_servers",
			configuration: capabilities.ToolConfiguration{},
			invocation:    automation.CapabilityInvocation{TaskID: "t", Parameters: map[string]any{"tool_name": "x"}},
			expectedKind:  automation.ErrorKindInternal,
			expectedError: capabilities.ErrNoToolServers,
		},
		{
			name:          "unknown_tool",
			configuration: twoServerConfiguration(),
			sessions: map[string]*stubToolSession{
				"files":  {tools: []mcp.Tool{{Name: "read_file"}}},
				"search": {},
			},
			invocation:     automation.CapabilityInvocation{TaskID: "t", Parameters: map[string]any{"tool_name": "missing"}},
			expectedKind:   automation.ErrorKindValidation,
			expectedSubstr: "missing",
		},
		{
			name:          "unknown_server",
			configuration: twoServerConfiguration(),
			sessions: map[string]*stubToolSession{
				"files":  {},
				"search": {},
			},
			invocation:     automation.CapabilityInvocation{TaskID: "t", Parameters: map[string]any{"tool_name": "x", "server": "nowhere"}},
			expectedKind:   automation.ErrorKindValidation,
			expectedSubstr: "nowhere",
		},
		{
			name:           "server_start_failure",
			configuration:  twoServerConfiguration(),
			sessions:       map[string]*stubToolSession{"files": {}},
			invocation:     automation.CapabilityInvocation{TaskID: "t", Parameters: map[string]any{"tool_name": "x"}},
			expectedKind:   automation.ErrorKindInternal,
			expectedSubstr: "search",
		},
		{
			name:          "call_failure",
			configuration: capabilities.ToolConfiguration{Servers: []capabilities.ToolServerConfiguration{{Name: "files"}}},
			sessions: map[string]*stubToolSession{
				"files": {tools: []mcp.Tool{{Name: "read_file"}}, callError: callFailure},
			},
			invocation:    automation.CapabilityInvocation{TaskID: "t", Parameters: map[string]any{"tool_name": "read_file"}},
			expectedKind:  automation.ErrorKindInternal,
			expectedError: callFailure,
		},
		{
			name:          "tool_reported_error",
			configuration: capabilities.ToolConfiguration{Servers: []capabilities.ToolServerConfiguration{{Name: "files"}}},
			sessions: map[string]*stubToolSession{
				"files": {tools: []mcp.Tool{{Name: "read_file"}}, result: textResult("permission denied", true)},
			},
			invocation:     automation.CapabilityInvocation{TaskID: "t", Parameters: map[string]any{"tool_name": "read_file"}},
			expectedKind:   automation.ErrorKindInternal,
			expectedSubstr: "permission denied",
		},
	}

	for testCaseIndex, testCase := range testCases {
		testInstance.Run(fmt.Sprintf("%d_%s", testCaseIndex, testCase.name), func(testInstance *testing.T) {
			factory := &stubSessionFactory{sessions: testCase.sessions}
			service := capabilities.NewToolService(testCase.configuration, factory.open, zap.NewNop())

			_, invokeError := service.Invoke(context.Background(), testCase.invocation)
			require.Error(testInstance, invokeError)
			require.Equal(testInstance, testCase.expectedKind, automation.ClassifyError(invokeError))
			if testCase.expectedError != nil {
				require.ErrorIs(testInstance, invokeError, testCase.expectedError)
			}
			if testCase.expectedSubstr != "" {
				require.Contains(testInstance, invokeError.Error(), testCase.expectedSubstr)
			}
		})
	}
}
