package flags

import (
	"errors"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/tyemirov/autoflow/internal/utils"
)

const flagNotDefinedMessageConstant = "flag not defined"

// ErrFlagNotDefined indicates that the requested flag is not present on the command.
var ErrFlagNotDefined = errors.New(flagNotDefinedMessageConstant)

// StringFlag returns the flag value and whether the user changed it.
func StringFlag(command *cobra.Command, name string) (string, bool, error) {
	flagSet, flag := locateFlag(command, name)
	if flag == nil {
		return "", false, ErrFlagNotDefined
	}
	value, err := flagSet.GetString(name)
	if err != nil {
		return "", false, err
	}
	return value, flag.Changed, nil
}

// IntFlag returns the flag value and whether the user changed it.
func IntFlag(command *cobra.Command, name string) (int, bool, error) {
	flagSet, flag := locateFlag(command, name)
	if flag == nil {
		return 0, false, ErrFlagNotDefined
	}
	value, err := flagSet.GetInt(name)
	if err != nil {
		return 0, false, err
	}
	return value, flag.Changed, nil
}

// StringArrayFlag returns the flag values and whether the user changed them.
func StringArrayFlag(command *cobra.Command, name string) ([]string, bool, error) {
	flagSet, flag := locateFlag(command, name)
	if flag == nil {
		return nil, false, ErrFlagNotDefined
	}
	values, err := flagSet.GetStringArray(name)
	if err != nil {
		return nil, false, err
	}
	return values, flag.Changed, nil
}

func locateFlag(command *cobra.Command, name string) (*pflag.FlagSet, *pflag.Flag) {
	if command == nil {
		return nil, nil
	}

	candidateSets := []*pflag.FlagSet{
		command.Flags(),
		command.PersistentFlags(),
		command.InheritedFlags(),
	}

	if root := command.Root(); root != nil {
		candidateSets = append(candidateSets, root.PersistentFlags())
	}

	for _, set := range candidateSets {
		if set == nil {
			continue
		}
		if flag := set.Lookup(name); flag != nil {
			return set, flag
		}
	}

	return nil, nil
}

// CollectExecutionFlags inspects the command's flags to produce execution flag values.
func CollectExecutionFlags(command *cobra.Command) utils.ExecutionFlags {
	executionFlags := utils.ExecutionFlags{}
	if command == nil {
		return executionFlags
	}

	if parallelismValue, parallelismChanged, parallelismError := IntFlag(command, ParallelismFlagName); parallelismError == nil {
		executionFlags.Parallelism = parallelismValue
		executionFlags.ParallelismSet = parallelismChanged
	}

	if outputValue, outputChanged, outputError := StringFlag(command, OutputFlagName); outputError == nil {
		executionFlags.OutputFormat = strings.ToLower(strings.TrimSpace(outputValue))
		executionFlags.OutputFormatSet = outputChanged
	}

	return executionFlags
}

// ResolveExecutionFlags returns execution flags from context or flag values, indicating whether any overrides are provided.
func ResolveExecutionFlags(command *cobra.Command) (utils.ExecutionFlags, bool) {
	contextAccessor := utils.NewCommandContextAccessor()
	if command != nil {
		if flags, available := contextAccessor.ExecutionFlags(command.Context()); available {
			return flags, true
		}
	}

	executionFlags := CollectExecutionFlags(command)
	available := executionFlags.ParallelismSet || executionFlags.OutputFormatSet
	return executionFlags, available
}
