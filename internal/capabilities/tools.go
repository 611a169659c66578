package capabilities

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"github.com/tyemirov/autoflow/internal/automation"
)

const (
	toolActionCallConstant                = "call"
	toolActionListConstant                = "list"
	toolProtocolVersionConstant           = "2024-11-05"
	toolClientNameConstant                = "autoflow"
	toolClientVersionConstant             = "1.0.0"
	toolContentTypeFieldConstant          = "type"
	toolContentTextFieldConstant          = "text"
	toolContentTextTypeConstant           = "text"
	toolTextSeparatorConstant             = "\n"
	toolEnvironmentTemplateConstant       = "%s=%s"
	toolDefaultCallTimeoutSecondsConstant = 60
	toolListTimeoutConstant               = 5 * time.Second
	toolNameMissingMessageConstant        = "tool capability requires tool_name"
	toolUnsupportedActionTemplateConstant = "unsupported tool action %q"
	toolNotFoundTemplateConstant          = "tool %q is not provided by any configured server"
	toolServerNotFoundTemplateConstant    = "tool server %q is not configured"
	toolNoServersMessageConstant          = "no tool servers configured"
	toolConnectErrorTemplateConstant      = "unable to start tool server %s: %w"
	toolInitializeErrorTemplateConstant   = "unable to initialize tool server %s: %w"
	toolListErrorTemplateConstant         = "unable to list tools of server %s: %w"
	toolCallFailedTemplateConstant        = "tool %s reported an error: %s"
	toolServerConnectedEventConstant      = "tool_server_connected"
	toolServerFailedEventConstant         = "tool_server_connection_failed"
	toolServerCloseFailedEventConstant    = "tool_server_close_failed"
	toolServerFieldConstant               = "server"
	toolCountFieldConstant                = "tool_count"
	toolResultServerFieldConstant         = "server"
	toolResultToolFieldConstant           = "tool"
	toolResultOutputFieldConstant         = "output"
	toolResultToolsFieldConstant          = "tools"
	toolResultNameFieldConstant           = "name"
	toolResultDescriptionFieldConstant    = "description"
)

// ErrNoToolServers indicates that tool tasks were requested without any configured servers.
var ErrNoToolServers = errors.New(toolNoServersMessageConstant)

// ToolServerConfiguration describes one stdio MCP server.
type ToolServerConfiguration struct {
	Name        string            `mapstructure:"name"`
	Command     string            `mapstructure:"command"`
	Arguments   []string          `mapstructure:"args"`
	Environment map[string]string `mapstructure:"env"`
}

// ToolConfiguration lists the MCP servers available to tool tasks.
type ToolConfiguration struct {
	Servers            []ToolServerConfiguration `mapstructure:"servers"`
	CallTimeoutSeconds int                       `mapstructure:"call_timeout_seconds"`
}

// ToolSession is the subset of an MCP client used by ToolService.
type ToolSession interface {
	ListTools(executionContext context.Context, request mcp.ListToolsRequest) (*mcp.ListToolsResult, error)
	CallTool(executionContext context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)
	Close() error
}

// ToolSessionFactory opens a session with a configured server.
type ToolSessionFactory func(executionContext context.Context, server ToolServerConfiguration) (ToolSession, error)

type toolConnection struct {
	name    string
	session ToolSession
	tools   []mcp.Tool
}

type toolParameters struct {
	ToolName   string         `mapstructure:"tool_name"`
	Server     string         `mapstructure:"server"`
	Parameters map[string]any `mapstructure:"parameters"`
}

// ToolService invokes tools exposed by MCP servers. Servers are started on first use.
type ToolService struct {
	configuration  ToolConfiguration
	sessionFactory ToolSessionFactory
	logger         *zap.Logger
	mutex          sync.Mutex
	connected      bool
	connections    []*toolConnection
}

// NewToolService constructs a ToolService. A nil factory starts servers as stdio subprocesses.
func NewToolService(configuration ToolConfiguration, sessionFactory ToolSessionFactory, logger *zap.Logger) *ToolService {
	if sessionFactory == nil {
		sessionFactory = StartStdioToolSession
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if configuration.CallTimeoutSeconds <= 0 {
		configuration.CallTimeoutSeconds = toolDefaultCallTimeoutSecondsConstant
	}
	return &ToolService{configuration: configuration, sessionFactory: sessionFactory, logger: logger}
}

// StartStdioToolSession launches the server process and performs the MCP handshake.
func StartStdioToolSession(executionContext context.Context, server ToolServerConfiguration) (ToolSession, error) {
	environment := make([]string, 0, len(server.Environment))
	environmentKeys := make([]string, 0, len(server.Environment))
	for key := range server.Environment {
		environmentKeys = append(environmentKeys, key)
	}
	sort.Strings(environmentKeys)
	for _, key := range environmentKeys {
		environment = append(environment, fmt.Sprintf(toolEnvironmentTemplateConstant, key, server.Environment[key]))
	}

	mcpClient, clientError := client.NewStdioMCPClient(server.Command, environment, server.Arguments...)
	if clientError != nil {
		return nil, fmt.Errorf(toolConnectErrorTemplateConstant, server.Name, clientError)
	}

	initializeRequest := mcp.InitializeRequest{}
	initializeRequest.Params.ProtocolVersion = toolProtocolVersionConstant
	initializeRequest.Params.Capabilities = mcp.ClientCapabilities{}
	initializeRequest.Params.ClientInfo = mcp.Implementation{
		Name:    toolClientNameConstant,
		Version: toolClientVersionConstant,
	}
	if _, initializeError := mcpClient.Initialize(executionContext, initializeRequest); initializeError != nil {
		_ = mcpClient.Close()
		return nil, fmt.Errorf(toolInitializeErrorTemplateConstant, server.Name, initializeError)
	}
	return mcpClient, nil
}

// Invoke implements automation.CapabilityService.
func (service *ToolService) Invoke(executionContext context.Context, invocation automation.CapabilityInvocation) (any, error) {
	var parameters toolParameters
	if decodeError := automation.DecodeParameters(invocation.TaskID, invocation.Parameters, &parameters); decodeError != nil {
		return nil, decodeError
	}

	action := strings.ToLower(strings.TrimSpace(invocation.Action))
	switch action {
	case toolActionListConstant:
		return service.list(executionContext)
	case "", toolActionCallConstant:
		toolName := strings.TrimSpace(parameters.ToolName)
		if toolName == "" {
			return nil, automation.ValidationError{TaskID: invocation.TaskID, Message: toolNameMissingMessageConstant}
		}
		return service.call(executionContext, invocation.TaskID, strings.TrimSpace(parameters.Server), toolName, parameters.Parameters)
	default:
		return nil, automation.ValidationError{TaskID: invocation.TaskID, Message: fmt.Sprintf(toolUnsupportedActionTemplateConstant, invocation.Action)}
	}
}

// Close stops every started server.
func (service *ToolService) Close() error {
	service.mutex.Lock()
	defer service.mutex.Unlock()

	var closeErrors []error
	for _, connection := range service.connections {
		if closeError := connection.session.Close(); closeError != nil {
			service.logger.Warn(toolServerCloseFailedEventConstant, zap.String(toolServerFieldConstant, connection.name), zap.Error(closeError))
			closeErrors = append(closeErrors, closeError)
		}
	}
	service.connections = nil
	service.connected = false
	return errors.Join(closeErrors...)
}

func (service *ToolService) list(executionContext context.Context) (any, error) {
	connections, connectError := service.ensureConnected(executionContext)
	if connectError != nil {
		return nil, connectError
	}
	tools := make([]any, 0)
	for _, connection := range connections {
		for _, tool := range connection.tools {
			tools = append(tools, map[string]any{
				toolResultServerFieldConstant:      connection.name,
				toolResultNameFieldConstant:        tool.Name,
				toolResultDescriptionFieldConstant: tool.Description,
			})
		}
	}
	return map[string]any{toolResultToolsFieldConstant: tools}, nil
}

func (service *ToolService) call(executionContext context.Context, taskID string, serverName string, toolName string, arguments map[string]any) (any, error) {
	connections, connectError := service.ensureConnected(executionContext)
	if connectError != nil {
		return nil, connectError
	}

	target, lookupError := selectToolConnection(connections, serverName, toolName)
	if lookupError != nil {
		return nil, automation.ValidationError{TaskID: taskID, Message: lookupError.Error()}
	}

	callContext, cancel := context.WithTimeout(executionContext, time.Duration(service.configuration.CallTimeoutSeconds)*time.Second)
	defer cancel()

	request := mcp.CallToolRequest{}
	request.Params.Name = toolName
	request.Params.Arguments = arguments
	result, callError := target.session.CallTool(callContext, request)
	if callError != nil {
		return nil, callError
	}

	output := collectToolText(result)
	if result.IsError {
		return nil, fmt.Errorf(toolCallFailedTemplateConstant, toolName, output)
	}
	return map[string]any{
		toolResultServerFieldConstant: target.name,
		toolResultToolFieldConstant:   toolName,
		toolResultOutputFieldConstant: output,
	}, nil
}

func (service *ToolService) ensureConnected(executionContext context.Context) ([]*toolConnection, error) {
	service.mutex.Lock()
	defer service.mutex.Unlock()

	if service.connected {
		return service.connections, nil
	}
	if len(service.configuration.Servers) == 0 {
		return nil, ErrNoToolServers
	}

	connections := make([]*toolConnection, 0, len(service.configuration.Servers))
	for _, server := range service.configuration.Servers {
		connection, connectionError := service.connect(executionContext, server)
		if connectionError != nil {
			service.logger.Warn(toolServerFailedEventConstant, zap.String(toolServerFieldConstant, server.Name), zap.Error(connectionError))
			for _, opened := range connections {
				_ = opened.session.Close()
			}
			return nil, connectionError
		}
		service.logger.Info(toolServerConnectedEventConstant, zap.String(toolServerFieldConstant, server.Name), zap.Int(toolCountFieldConstant, len(connection.tools)))
		connections = append(connections, connection)
	}
	service.connections = connections
	service.connected = true
	return connections, nil
}

func (service *ToolService) connect(executionContext context.Context, server ToolServerConfiguration) (*toolConnection, error) {
	session, sessionError := service.sessionFactory(executionContext, server)
	if sessionError != nil {
		return nil, sessionError
	}

	listContext, cancel := context.WithTimeout(executionContext, toolListTimeoutConstant)
	defer cancel()
	listResult, listError := session.ListTools(listContext, mcp.ListToolsRequest{})
	if listError != nil {
		_ = session.Close()
		return nil, fmt.Errorf(toolListErrorTemplateConstant, server.Name, listError)
	}

	connection := &toolConnection{name: server.Name, session: session}
	if listResult != nil {
		connection.tools = listResult.Tools
	}
	return connection, nil
}

func selectToolConnection(connections []*toolConnection, serverName string, toolName string) (*toolConnection, error) {
	if serverName != "" {
		for _, connection := range connections {
			if connection.name == serverName {
				return connection, nil
			}
		}
		return nil, fmt.Errorf(toolServerNotFoundTemplateConstant, serverName)
	}
	for _, connection := range connections {
		for _, tool := range connection.tools {
			if tool.Name == toolName {
				return connection, nil
			}
		}
	}
	return nil, fmt.Errorf(toolNotFoundTemplateConstant, toolName)
}

func collectToolText(result *mcp.CallToolResult) string {
	if result == nil {
		return ""
	}
	encodedContent, encodeError := json.Marshal(result.Content)
	if encodeError != nil {
		return ""
	}
	var contentEntries []map[string]any
	if decodeError := json.Unmarshal(encodedContent, &contentEntries); decodeError != nil {
		return ""
	}

	fragments := make([]string, 0, len(contentEntries))
	for _, entry := range contentEntries {
		if entryType, _ := entry[toolContentTypeFieldConstant].(string); entryType != toolContentTextTypeConstant {
			continue
		}
		if text, ok := entry[toolContentTextFieldConstant].(string); ok {
			fragments = append(fragments, text)
		}
	}
	return strings.Join(fragments, toolTextSeparatorConstant)
}
