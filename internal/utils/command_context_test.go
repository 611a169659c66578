package utils

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWithExecutionFlagsStoresNormalizedValues(t *testing.T) {
	accessor := NewCommandContextAccessor()
	base := context.Background()
	flags := ExecutionFlags{Parallelism: 4, ParallelismSet: true, OutputFormat: " JSON ", OutputFormatSet: true}

	enriched := accessor.WithExecutionFlags(base, flags)

	retrieved, exists := accessor.ExecutionFlags(enriched)
	require.True(t, exists)
	require.Equal(t, ExecutionFlags{Parallelism: 4, ParallelismSet: true, OutputFormat: "json", OutputFormatSet: true}, retrieved)
}

func TestWithExecutionFlagsHandlesMissingContext(t *testing.T) {
	accessor := NewCommandContextAccessor()

	_, exists := accessor.ExecutionFlags(context.Background())
	require.False(t, exists)
}

func TestWithConfigurationFilePathRoundTrip(t *testing.T) {
	accessor := NewCommandContextAccessor()
	enriched := accessor.WithConfigurationFilePath(context.Background(), "/etc/autoflow/config.yaml")

	configurationFilePath, exists := accessor.ConfigurationFilePath(enriched)
	require.True(t, exists)
	require.Equal(t, "/etc/autoflow/config.yaml", configurationFilePath)
}

func TestWithLogLevelSkipsBlankValues(t *testing.T) {
	accessor := NewCommandContextAccessor()
	base := context.Background()

	_, exists := accessor.LogLevel(accessor.WithLogLevel(base, "  "))
	require.False(t, exists)

	logLevel, exists := accessor.LogLevel(accessor.WithLogLevel(base, " debug "))
	require.True(t, exists)
	require.Equal(t, "debug", logLevel)
}

func TestWithRequestIdentifierStoresTrimmedValue(t *testing.T) {
	accessor := NewCommandContextAccessor()
	base := context.Background()

	enriched := accessor.WithRequestIdentifier(base, " request-1 ")
	requestIdentifier, exists := accessor.RequestIdentifier(enriched)
	require.True(t, exists)
	require.Equal(t, "request-1", requestIdentifier)

	_, blankExists := accessor.RequestIdentifier(accessor.WithRequestIdentifier(base, ""))
	require.False(t, blankExists)
}
