package utils_test

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tyemirov/autoflow/internal/utils"
)

const (
	testEnvironmentPrefixConstant                  = "TESTAUTOFLOW"
	testConfigurationNameConstant                  = "config"
	testConfigurationTypeConstant                  = "yaml"
	testConfigFileNameConstant                     = "config.yaml"
	testStorageDriverKeyConstant                   = "storage.driver"
	testParallelismKeyConstant                     = "execution.parallelism"
	testStorageDriverEnvironmentNameConstant       = "TESTAUTOFLOW_STORAGE_DRIVER"
	testParallelismEnvironmentNameConstant         = "TESTAUTOFLOW_EXECUTION_PARALLELISM"
	testLayeredContentTemplateConstant             = "storage:\n  driver: %s\nexecution:\n  parallelism: %d\n"
	testDriverOnlyContentTemplateConstant          = "storage:\n  driver: %s\n"
	configurationLoaderSubtestNameTemplateConstant = "%d_%s"
)

type loaderFixture struct {
	Storage   loaderStorageFixture   `mapstructure:"storage"`
	Execution loaderExecutionFixture `mapstructure:"execution"`
}

type loaderStorageFixture struct {
	Driver string `mapstructure:"driver"`
}

type loaderExecutionFixture struct {
	Parallelism int `mapstructure:"parallelism"`
}

func TestConfigurationLoaderLayering(testInstance *testing.T) {
	testCases := []struct {
		name                string
		embeddedContent     string
		fileContent         string
		environmentDriver   string
		environmentParallel string
		expected            loaderFixture
	}{
		{
			name:     "DefaultsOnly",
			expected: loaderFixture{Storage: loaderStorageFixture{Driver: "memory"}, Execution: loaderExecutionFixture{Parallelism: 1}},
		},
		{
			name:            "EmbeddedOverridesDefaults",
			embeddedContent: fmt.Sprintf(testLayeredContentTemplateConstant, "sqlite", 2),
			expected:        loaderFixture{Storage: loaderStorageFixture{Driver: "sqlite"}, Execution: loaderExecutionFixture{Parallelism: 2}},
		},
		{
			name:            "FileOverridesOnlyItsKeys",
			embeddedContent: fmt.Sprintf(testLayeredContentTemplateConstant, "sqlite", 2),
			fileContent:     fmt.Sprintf(testDriverOnlyContentTemplateConstant, "memory"),
			expected:        loaderFixture{Storage: loaderStorageFixture{Driver: "memory"}, Execution: loaderExecutionFixture{Parallelism: 2}},
		},
		{
			name:                "EnvironmentOverridesFile",
			embeddedContent:     fmt.Sprintf(testLayeredContentTemplateConstant, "sqlite", 2),
			fileContent:         fmt.Sprintf(testLayeredContentTemplateConstant, "memory", 3),
			environmentDriver:   "sqlite",
			environmentParallel: "8",
			expected:            loaderFixture{Storage: loaderStorageFixture{Driver: "sqlite"}, Execution: loaderExecutionFixture{Parallelism: 8}},
		},
	}

	for testCaseIndex, testCase := range testCases {
		testInstance.Run(fmt.Sprintf(configurationLoaderSubtestNameTemplateConstant, testCaseIndex, testCase.name), func(t *testing.T) {
			searchDirectory := t.TempDir()
			configurationFilePath := ""
			if len(testCase.fileContent) > 0 {
				configurationFilePath = filepath.Join(searchDirectory, testConfigFileNameConstant)
				require.NoError(t, os.WriteFile(configurationFilePath, []byte(testCase.fileContent), 0o600))
			}
			if len(testCase.environmentDriver) > 0 {
				t.Setenv(testStorageDriverEnvironmentNameConstant, testCase.environmentDriver)
			}
			if len(testCase.environmentParallel) > 0 {
				t.Setenv(testParallelismEnvironmentNameConstant, testCase.environmentParallel)
			}

			loader := utils.NewConfigurationLoader(testConfigurationNameConstant, testConfigurationTypeConstant, testEnvironmentPrefixConstant, []string{searchDirectory})
			if len(testCase.embeddedContent) > 0 {
				loader.SetEmbeddedConfiguration([]byte(testCase.embeddedContent), testConfigurationTypeConstant)
			}

			var loaded loaderFixture
			metadata, loadError := loader.LoadConfiguration("", map[string]any{
				testStorageDriverKeyConstant: "memory",
				testParallelismKeyConstant:   1,
			}, &loaded)
			require.NoError(t, loadError)
			require.Equal(t, testCase.expected, loaded)
			require.Equal(t, configurationFilePath, metadata.ConfigFileUsed)
		})
	}
}

func TestConfigurationLoaderSearchOrder(testInstance *testing.T) {
	testCases := []struct {
		name               string
		populatedIndexes   []int
		expectedIndex      int
		expectNoFileLoaded bool
	}{
		{name: "FirstDirectoryWins", populatedIndexes: []int{0, 1, 2}, expectedIndex: 0},
		{name: "FallsThroughToSecond", populatedIndexes: []int{1, 2}, expectedIndex: 1},
		{name: "FallsThroughToLast", populatedIndexes: []int{2}, expectedIndex: 2},
		{name: "NoConfigurationFile", expectNoFileLoaded: true},
	}

	drivers := []string{"first", "second", "third"}

	for testCaseIndex, testCase := range testCases {
		testInstance.Run(fmt.Sprintf(configurationLoaderSubtestNameTemplateConstant, testCaseIndex, testCase.name), func(t *testing.T) {
			directories := []string{t.TempDir(), t.TempDir(), t.TempDir()}
			for _, populatedIndex := range testCase.populatedIndexes {
				content := fmt.Sprintf(testDriverOnlyContentTemplateConstant, drivers[populatedIndex])
				require.NoError(t, os.WriteFile(filepath.Join(directories[populatedIndex], testConfigFileNameConstant), []byte(content), 0o600))
			}
			if testCase.expectedIndex != 0 || testCase.expectNoFileLoaded {
				require.NoError(t, os.Mkdir(filepath.Join(directories[0], testConfigFileNameConstant), 0o755))
			}

			loader := utils.NewConfigurationLoader(testConfigurationNameConstant, testConfigurationTypeConstant, testEnvironmentPrefixConstant, append([]string{"  "}, directories...))

			var loaded loaderFixture
			metadata, loadError := loader.LoadConfiguration("", map[string]any{testStorageDriverKeyConstant: "memory"}, &loaded)
			require.NoError(t, loadError)

			if testCase.expectNoFileLoaded {
				require.Empty(t, metadata.ConfigFileUsed)
				require.Equal(t, "memory", loaded.Storage.Driver)
				return
			}
			require.Equal(t, filepath.Join(directories[testCase.expectedIndex], testConfigFileNameConstant), metadata.ConfigFileUsed)
			require.Equal(t, drivers[testCase.expectedIndex], loaded.Storage.Driver)
		})
	}
}

func TestConfigurationLoaderExplicitFileReplacesSearch(testInstance *testing.T) {
	searchDirectory := testInstance.TempDir()
	explicitPath := filepath.Join(testInstance.TempDir(), "custom.yaml")
	require.NoError(testInstance, os.WriteFile(filepath.Join(searchDirectory, testConfigFileNameConstant), []byte(fmt.Sprintf(testDriverOnlyContentTemplateConstant, "memory")), 0o600))
	require.NoError(testInstance, os.WriteFile(explicitPath, []byte(fmt.Sprintf(testDriverOnlyContentTemplateConstant, "sqlite")), 0o600))

	loader := utils.NewConfigurationLoader(testConfigurationNameConstant, testConfigurationTypeConstant, testEnvironmentPrefixConstant, []string{searchDirectory})

	var loaded loaderFixture
	metadata, loadError := loader.LoadConfiguration(explicitPath, nil, &loaded)
	require.NoError(testInstance, loadError)
	require.Equal(testInstance, "sqlite", loaded.Storage.Driver)
	require.Equal(testInstance, explicitPath, metadata.ConfigFileUsed)
}

func TestConfigurationLoaderFailures(testInstance *testing.T) {
	loader := utils.NewConfigurationLoader(testConfigurationNameConstant, testConfigurationTypeConstant, testEnvironmentPrefixConstant, nil)

	_, missingTargetError := loader.LoadConfiguration("", nil, nil)
	require.ErrorIs(testInstance, missingTargetError, utils.ErrConfigurationTargetMissing)

	malformedPath := filepath.Join(testInstance.TempDir(), testConfigFileNameConstant)
	require.NoError(testInstance, os.WriteFile(malformedPath, []byte("storage: [unterminated\n"), 0o600))
	var loaded loaderFixture
	_, malformedError := loader.LoadConfiguration(malformedPath, nil, &loaded)
	require.Error(testInstance, malformedError)
	require.Contains(testInstance, malformedError.Error(), malformedPath)

	loader.SetEmbeddedConfiguration([]byte("storage: [unterminated\n"), testConfigurationTypeConstant)
	_, embeddedError := loader.LoadConfiguration("", nil, &loaded)
	require.Error(testInstance, embeddedError)
	require.Contains(testInstance, embeddedError.Error(), "embedded")
}
