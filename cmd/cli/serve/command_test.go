package serve

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tyemirov/autoflow/internal/automation"
	"github.com/tyemirov/autoflow/internal/server"
)

func TestServeCommandRunsServerWithPlatform(testInstance *testing.T) {
	platform := automation.NewPlatform(automation.PlatformDependencies{})

	var served *server.Server
	builder := CommandBuilder{
		LoggerProvider: func() *zap.Logger { return zap.NewNop() },
		PlatformProvider: func(context.Context) (server.Platform, error) {
			return platform, nil
		},
		ConfigurationProvider: func() server.Configuration {
			return server.Configuration{Address: "127.0.0.1:0"}
		},
		Runner: func(executionContext context.Context, httpServer *server.Server) error {
			served = httpServer
			require.NotNil(testInstance, executionContext)
			return nil
		},
	}
	command, buildError := builder.Build()
	require.NoError(testInstance, buildError)

	command.SetOut(&bytes.Buffer{})
	command.SetErr(&bytes.Buffer{})
	command.SetArgs([]string{"--address", "127.0.0.1:9090"})
	require.NoError(testInstance, command.Execute())
	require.NotNil(testInstance, served)

	recorder := httptest.NewRecorder()
	served.Handler().ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/status", nil))
	require.Equal(testInstance, http.StatusOK, recorder.Code)
}

func TestServeCommandPlatformErrors(testInstance *testing.T) {
	runnerCalled := false
	builder := CommandBuilder{
		PlatformProvider: func(context.Context) (server.Platform, error) {
			return nil, errors.New("storage offline")
		},
		Runner: func(context.Context, *server.Server) error {
			runnerCalled = true
			return nil
		},
	}
	command, buildError := builder.Build()
	require.NoError(testInstance, buildError)

	command.SetOut(&bytes.Buffer{})
	command.SetErr(&bytes.Buffer{})
	command.SetArgs([]string{})
	executionError := command.Execute()
	require.Error(testInstance, executionError)
	require.Contains(testInstance, executionError.Error(), "storage offline")
	require.False(testInstance, runnerCalled)

	missingBuilder := CommandBuilder{}
	missingCommand, missingBuildError := missingBuilder.Build()
	require.NoError(testInstance, missingBuildError)
	missingCommand.SetOut(&bytes.Buffer{})
	missingCommand.SetErr(&bytes.Buffer{})
	missingCommand.SetArgs([]string{})
	require.ErrorIs(testInstance, missingCommand.Execute(), ErrPlatformProviderMissing)
}
