package flags

import "github.com/spf13/cobra"

const (
	// OutputFlagName exposes the shared output format flag name.
	OutputFlagName = "output"
	// OutputFlagShorthand provides the shorthand for the output format flag.
	OutputFlagShorthand = "o"
	// OutputFlagUsage describes the shared output format flag purpose.
	OutputFlagUsage = "Output format (table, json, or yaml)"
	// ContextFlagName exposes the caller context flag name.
	ContextFlagName = "context"
	// ContextFlagUsage describes the caller context flag purpose.
	ContextFlagUsage = "Caller context entry passed to the workflow (KEY=VALUE, repeatable)"
	// ContextFileFlagName exposes the caller context file flag name.
	ContextFileFlagName = "context-file"
	// ContextFileFlagUsage describes the caller context file flag purpose.
	ContextFileFlagUsage = "YAML or JSON file providing caller context entries"
)

// ContextFlagValues stores caller context flag values.
type ContextFlagValues struct {
	Entries   []string
	FilePaths []string
}

// BindContextFlags attaches the caller context flags to the provided command.
func BindContextFlags(command *cobra.Command) *ContextFlagValues {
	values := &ContextFlagValues{}
	if command == nil {
		return values
	}
	flagSet := command.Flags()
	if flagSet.Lookup(ContextFlagName) == nil {
		flagSet.StringArrayVar(&values.Entries, ContextFlagName, nil, ContextFlagUsage)
	}
	if flagSet.Lookup(ContextFileFlagName) == nil {
		flagSet.StringArrayVar(&values.FilePaths, ContextFileFlagName, nil, ContextFileFlagUsage)
	}
	return values
}

// EnsureOutputFlag guarantees the shared output flag is available on the command.
func EnsureOutputFlag(command *cobra.Command, defaultValue string) {
	if command == nil {
		return
	}

	persistentSet := command.PersistentFlags()
	if persistentSet.Lookup(OutputFlagName) == nil {
		persistentSet.StringP(OutputFlagName, OutputFlagShorthand, defaultValue, OutputFlagUsage)
	}

	if command.Flags().Lookup(OutputFlagName) == nil {
		if outputFlag := persistentSet.Lookup(OutputFlagName); outputFlag != nil {
			command.Flags().AddFlag(outputFlag)
		}
	}
}
