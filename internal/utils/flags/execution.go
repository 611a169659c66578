// Package flags provides helpers for binding standardized execution flags to Cobra commands.
package flags

import (
	"github.com/spf13/cobra"
)

const (
	// ParallelismFlagName exposes the shared round parallelism flag name.
	ParallelismFlagName = "parallelism"
	// ParallelismFlagUsage describes the round parallelism flag purpose.
	ParallelismFlagUsage = "Maximum number of tasks from the same dependency round to run at once"
)

// ExecutionDefaults describes default flag values shared across commands.
type ExecutionDefaults struct {
	Parallelism  int
	OutputFormat string
}

// ExecutionFlagDefinition captures a single flag's configuration.
type ExecutionFlagDefinition struct {
	Name    string
	Usage   string
	Enabled bool
}

// ExecutionFlagDefinitions groups execution flag definitions.
type ExecutionFlagDefinitions struct {
	Parallelism ExecutionFlagDefinition
	Output      ExecutionFlagDefinition
}

// DefaultExecutionFlagDefinitions enables every shared execution flag under its standard name.
func DefaultExecutionFlagDefinitions() ExecutionFlagDefinitions {
	return ExecutionFlagDefinitions{
		Parallelism: ExecutionFlagDefinition{Name: ParallelismFlagName, Usage: ParallelismFlagUsage, Enabled: true},
		Output:      ExecutionFlagDefinition{Name: OutputFlagName, Usage: OutputFlagUsage, Enabled: true},
	}
}

// BindExecutionFlags attaches standardized execution flags to the provided command using persistent scope.
func BindExecutionFlags(command *cobra.Command, defaults ExecutionDefaults, definitions ExecutionFlagDefinitions) {
	if command == nil {
		return
	}

	persistentFlagSet := command.PersistentFlags()
	if definitions.Parallelism.Enabled && len(definitions.Parallelism.Name) > 0 && persistentFlagSet.Lookup(definitions.Parallelism.Name) == nil {
		persistentFlagSet.Int(definitions.Parallelism.Name, defaults.Parallelism, definitions.Parallelism.Usage)
	}
	if definitions.Output.Enabled {
		EnsureOutputFlag(command, defaults.OutputFormat)
	}
}
