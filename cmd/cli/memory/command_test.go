package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tyemirov/autoflow/internal/automation"
)

type failingPlatform struct {
	Platform
	failure error
}

func (platform failingPlatform) UpdateSharedMemory(context.Context, map[string]any) error {
	return platform.failure
}

func executeMemoryCommand(testingInstance *testing.T, platform Platform, arguments ...string) (string, error) {
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
	command.SetErr(&bytes.Buffer{})
	command.SetArgs(arguments)
	command.SetContext(context.Background())
	executionError := command.Execute()
	return output.String(), executionError
}

func TestMemoryCommandSetShowClear(testInstance *testing.T) {
	platform := automation.NewPlatform(automation.PlatformDependencies{})

	seedPath := filepath.Join(testInstance.TempDir(), "seed.yaml")
	require.NoError(testInstance, os.WriteFile(seedPath, []byte("owner: ops\nregion: us\n"), 0o600))

	setOutput, setError := executeMemoryCommand(testInstance, platform, "set", "--file", seedPath, "region=eu")
	require.NoError(testInstance, setError)
	require.Equal(testInstance, "shared memory updated (2 keys)\n", setOutput)
	require.Equal(testInstance, map[string]any{"owner": "ops", "region": "eu"}, platform.GetSharedMemory())

	showOutput, showError := executeMemoryCommand(testInstance, platform, "show")
	require.NoError(testInstance, showError)
	require.Equal(testInstance, "owner=ops\nregion=eu\n", showOutput)

	clearOutput, clearError := executeMemoryCommand(testInstance, platform, "clear")
	require.NoError(testInstance, clearError)
	require.Equal(testInstance, "shared memory cleared\n", clearOutput)
	require.Empty(testInstance, platform.GetSharedMemory())
}

func TestMemoryCommandSetErrors(testInstance *testing.T) {
	testCases := []struct {
		name          string
		platform      Platform
		arguments     []string
		expectedError error
		errorFragment string
	}{
		{
			name:          "NothingToMerge",
			platform:      automation.NewPlatform(automation.PlatformDependencies{}),
			arguments:     []string{"set"},
			expectedError: ErrEmptyUpdate,
		},
		{
			name:          "MalformedAssignment",
			platform:      automation.NewPlatform(automation.PlatformDependencies{}),
			arguments:     []string{"set", "region"},
			errorFragment: "key=value",
		},
		{
			name:          "BlankKey",
			platform:      automation.NewPlatform(automation.PlatformDependencies{}),
			arguments:     []string{"set", "=eu"},
			errorFragment: "key cannot be empty",
		},
		{
			name:          "PersistenceFailure",
			platform:      failingPlatform{failure: errors.New("disk full")},
			arguments:     []string{"set", "region=eu"},
			errorFragment: "disk full",
		},
	}

	for testCaseIndex, testCase := range testCases {
		testInstance.Run(fmt.Sprintf("%d_%s", testCaseIndex, testCase.name), func(t *testing.T) {
			_, executionError := executeMemoryCommand(t, testCase.platform, testCase.arguments...)
			require.Error(t, executionError)
			if testCase.expectedError != nil {
				require.ErrorIs(t, executionError, testCase.expectedError)
			}
			if len(testCase.errorFragment) > 0 {
				require.Contains(t, executionError.Error(), testCase.errorFragment)
			}
		})
	}
}

func TestWriteSnapshotStructured(testInstance *testing.T) {
	output := &bytes.Buffer{}
	require.NoError(testInstance, writeSnapshot(output, "json", map[string]any{"count": 2}))

	var decoded map[string]any
	require.NoError(testInstance, json.Unmarshal(output.Bytes(), &decoded))
	require.Equal(testInstance, map[string]any{"count": float64(2)}, decoded)
}

func TestMemoryCommandMissingPlatformProvider(testInstance *testing.T) {
	builder := CommandBuilder{}
	command, buildError := builder.Build()
	require.NoError(testInstance, buildError)

	command.SetOut(&bytes.Buffer{})
	command.SetErr(&bytes.Buffer{})
	command.SetArgs([]string{"show"})
	require.ErrorIs(testInstance, command.Execute(), ErrPlatformProviderMissing)
}
