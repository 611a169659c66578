package automation

// ExecutionRound groups tasks whose dependencies were all resolved before the round began.
type ExecutionRound struct {
	Index int
	Tasks []Task
}

// TaskIDs lists the identifiers of the round members in execution order.
func (round ExecutionRound) TaskIDs() []string {
	identifiers := make([]string, 0, len(round.Tasks))
	for _, task := range round.Tasks {
		identifiers = append(identifiers, task.ID)
	}
	return identifiers
}

// ResolveExecutionRounds orders tasks into rounds. Each round holds every remaining task whose
// dependencies were resolved before the round started, in input order. A scan that finds no ready
// task while tasks remain yields a DependencyError naming the unresolved tasks.
func ResolveExecutionRounds(tasks []Task) ([]ExecutionRound, error) {
	if len(tasks) == 0 {
		return nil, nil
	}

	remaining := make([]Task, len(tasks))
	copy(remaining, tasks)
	resolved := make(map[string]struct{}, len(tasks))
	rounds := make([]ExecutionRound, 0)

	for len(remaining) > 0 {
		ready := make([]Task, 0, len(remaining))
		pending := make([]Task, 0, len(remaining))
		for _, task := range remaining {
			if dependenciesResolved(task, resolved) {
				ready = append(ready, task)
				continue
			}
			pending = append(pending, task)
		}

		if len(ready) == 0 {
			unresolved := make([]string, 0, len(pending))
			for _, task := range pending {
				unresolved = append(unresolved, task.ID)
			}
			return nil, DependencyError{Unresolved: unresolved}
		}

		for _, task := range ready {
			resolved[task.ID] = struct{}{}
		}
		rounds = append(rounds, ExecutionRound{Index: len(rounds), Tasks: ready})
		remaining = pending
	}

	return rounds, nil
}

// ResolveExecutionOrder flattens the resolution rounds into a single sequential order.
func ResolveExecutionOrder(tasks []Task) ([]Task, error) {
	rounds, resolutionError := ResolveExecutionRounds(tasks)
	if resolutionError != nil {
		return nil, resolutionError
	}
	ordered := make([]Task, 0, len(tasks))
	for _, round := range rounds {
		ordered = append(ordered, round.Tasks...)
	}
	return ordered, nil
}

func dependenciesResolved(task Task, resolved map[string]struct{}) bool {
	for _, dependency := range NormalizeDependencies(task.Dependencies) {
		if _, available := resolved[dependency]; !available {
			return false
		}
	}
	return true
}
