package automation

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func buildResolverTask(identifier string, dependencies ...string) Task {
	return Task{ID: identifier, Name: identifier, Type: TaskTypeChat, Dependencies: dependencies}
}

func roundTaskIDs(rounds []ExecutionRound) [][]string {
	identifiers := make([][]string, 0, len(rounds))
	for _, round := range rounds {
		identifiers = append(identifiers, round.TaskIDs())
	}
	return identifiers
}

func TestResolveExecutionRounds(testInstance *testing.T) {
	testCases := []struct {
		name           string
		tasks          []Task
		expectedRounds [][]string
	}{
		{
			name:           "empty",
			tasks:          nil,
			expectedRounds: [][]string{},
		},
		{
			name:           "independent_tasks_share_a_round",
			tasks:          []Task{buildResolverTask("a"), buildResolverTask("b"), buildResolverTask("c")},
			expectedRounds: [][]string{{"a", "b", "c"}},
		},
		{
			name:           "chain",
			tasks:          []Task{buildResolverTask("b", "a"), buildResolverTask("a")},
			expectedRounds: [][]string{{"a"}, {"b"}},
		},
		{
			name: "diamond",
			tasks: []Task{
				buildResolverTask("prepare"),
				buildResolverTask("fetch", "prepare"),
				buildResolverTask("summarize", "prepare"),
				buildResolverTask("publish", "summarize", "fetch"),
			},
			expectedRounds: [][]string{{"prepare"}, {"fetch", "summarize"}, {"publish"}},
		},
		{
			name:           "duplicate_and_blank_dependencies",
			tasks:          []Task{buildResolverTask("a"), buildResolverTask("b", " a ", "a", "")},
			expectedRounds: [][]string{{"a"}, {"b"}},
		},
	}

	for testCaseIndex, testCase := range testCases {
		testInstance.Run(fmt.Sprintf("%d_%s", testCaseIndex, testCase.name), func(testInstance *testing.T) {
			rounds, resolutionError := ResolveExecutionRounds(testCase.tasks)
			require.NoError(testInstance, resolutionError)
			require.Equal(testInstance, testCase.expectedRounds, roundTaskIDs(rounds))
			for roundIndex, round := range rounds {
				require.Equal(testInstance, roundIndex, round.Index)
			}
		})
	}
}

func TestResolveExecutionRoundsRejectsUnresolvableDependencies(testInstance *testing.T) {
	testCases := []struct {
		name               string
		tasks              []Task
		expectedUnresolved []string
	}{
		{
			name:               "cycle",
			tasks:              []Task{buildResolverTask("a", "b"), buildResolverTask("b", "a")},
			expectedUnresolved: []string{"a", "b"},
		},
		{
			name:               "self_reference",
			tasks:              []Task{buildResolverTask("solo", "solo")},
			expectedUnresolved: []string{"solo"},
		},
		{
			name:               "missing_dependency",
			tasks:              []Task{buildResolverTask("a"), buildResolverTask("b", "ghost"), buildResolverTask("c", "b")},
			expectedUnresolved: []string{"b", "c"},
		},
	}

	for testCaseIndex, testCase := range testCases {
		testInstance.Run(fmt.Sprintf("%d_%s", testCaseIndex, testCase.name), func(testInstance *testing.T) {
			rounds, resolutionError := ResolveExecutionRounds(testCase.tasks)
			require.Nil(testInstance, rounds)
			require.Error(testInstance, resolutionError)

			var dependencyError DependencyError
			require.True(testInstance, errors.As(resolutionError, &dependencyError))
			require.Equal(testInstance, testCase.expectedUnresolved, dependencyError.Unresolved)
			require.Equal(testInstance, ErrorKindDependency, ClassifyError(resolutionError))
		})
	}
}

func TestResolveExecutionOrderFlattensRounds(testInstance *testing.T) {
	tasks := []Task{
		buildResolverTask("report", "collect"),
		buildResolverTask("collect"),
		buildResolverTask("notify", "report"),
		buildResolverTask("audit"),
	}

	ordered, resolutionError := ResolveExecutionOrder(tasks)
	require.NoError(testInstance, resolutionError)

	identifiers := make([]string, 0, len(ordered))
	for _, task := range ordered {
		identifiers = append(identifiers, task.ID)
	}
	require.Equal(testInstance, []string{"collect", "audit", "report", "notify"}, identifiers)
}
