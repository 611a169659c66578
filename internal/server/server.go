package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tyemirov/autoflow/internal/automation"
)

const (
	defaultAddressConstant         = "localhost:8080"
	shutdownTimeoutConstant        = 10 * time.Second
	readHeaderTimeoutConstant      = 10 * time.Second
	serverStartedMessageConstant   = "http_server_started"
	serverStoppingMessageConstant  = "http_server_stopping"
	addressLogFieldNameConstant    = "address"
	platformMissingMessageConstant = "server platform not configured"
)

// ErrPlatformNotConfigured indicates that the server was built without a platform.
var ErrPlatformNotConfigured = errors.New(platformMissingMessageConstant)

// Platform is the subset of the automation platform exposed over HTTP.
type Platform interface {
	CreateWorkflow(executionContext context.Context, draft automation.WorkflowDraft) (automation.WorkflowDefinition, error)
	AddTask(executionContext context.Context, workflowID string, task automation.Task) (automation.Task, error)
	ListWorkflows(executionContext context.Context) ([]automation.WorkflowSummary, error)
	WorkflowStatus(executionContext context.Context, workflowID string) (automation.WorkflowStatusReport, error)
	SetWorkflowEnabled(executionContext context.Context, workflowID string, enabled bool) error
	ExecuteWorkflow(executionContext context.Context, workflowID string, callerContext map[string]any) (automation.ExecutionContext, error)
	GetSharedMemory() map[string]any
	UpdateSharedMemory(executionContext context.Context, update map[string]any) error
	ClearSharedMemory(executionContext context.Context) error
}

// Configuration controls the listener.
type Configuration struct {
	Address string `mapstructure:"address"`
}

// Server exposes the automation platform over HTTP.
type Server struct {
	platform      Platform
	logger        *zap.Logger
	configuration Configuration
	router        *gin.Engine
}

// New constructs a Server and its routes.
func New(platform Platform, logger *zap.Logger, configuration Configuration) (*Server, error) {
	if platform == nil {
		return nil, ErrPlatformNotConfigured
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(strings.TrimSpace(configuration.Address)) == 0 {
		configuration.Address = defaultAddressConstant
	}

	server := &Server{platform: platform, logger: logger, configuration: configuration}
	server.router = server.buildRouter()
	return server, nil
}

// Handler returns the HTTP handler serving every route.
func (server *Server) Handler() http.Handler {
	return server.router
}

// Run serves until the context is cancelled, then shuts down gracefully.
func (server *Server) Run(executionContext context.Context) error {
	httpServer := &http.Server{
		Addr:              server.configuration.Address,
		Handler:           server.router,
		ReadHeaderTimeout: readHeaderTimeoutConstant,
	}

	serveErrors := make(chan error, 1)
	go func() {
		serveErrors <- httpServer.ListenAndServe()
	}()
	server.logger.Info(serverStartedMessageConstant, zap.String(addressLogFieldNameConstant, server.configuration.Address))

	select {
	case serveError := <-serveErrors:
		if errors.Is(serveError, http.ErrServerClosed) {
			return nil
		}
		return serveError
	case <-executionContext.Done():
	}

	server.logger.Info(serverStoppingMessageConstant, zap.String(addressLogFieldNameConstant, server.configuration.Address))
	shutdownContext, cancel := context.WithTimeout(context.Background(), shutdownTimeoutConstant)
	defer cancel()
	return httpServer.Shutdown(shutdownContext)
}

func (server *Server) buildRouter() *gin.Engine {
	router := gin.New()
	router.Use(server.requestLogger(), gin.Recovery())

	router.GET(statusPathConstant, server.handleStatus)

	workflows := router.Group(workflowGroupPathConstant)
	workflows.POST(workflowCreatePathConstant, server.handleCreateWorkflow)
	workflows.POST(workflowAddTaskPathConstant, server.handleAddTask)
	workflows.POST(workflowExecutePathConstant, server.handleExecuteWorkflow)
	workflows.GET(workflowListPathConstant, server.handleListWorkflows)
	workflows.GET(workflowStatusPathConstant, server.handleWorkflowStatus)
	workflows.POST(workflowEnablePathConstant, server.handleSetEnabled(true))
	workflows.POST(workflowDisablePathConstant, server.handleSetEnabled(false))

	memory := router.Group(memoryGroupPathConstant)
	memory.GET("", server.handleGetMemory)
	memory.POST("", server.handleUpdateMemory)
	memory.POST(memoryClearPathConstant, server.handleClearMemory)

	return router
}
