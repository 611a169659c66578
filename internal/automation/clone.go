package automation

func cloneMap(source map[string]any) map[string]any {
	if source == nil {
		return nil
	}
	cloned := make(map[string]any, len(source))
	for key, value := range source {
		cloned[key] = cloneValue(value)
	}
	return cloned
}

func cloneValue(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		return cloneMap(typed)
	case []any:
		cloned := make([]any, len(typed))
		for index := range typed {
			cloned[index] = cloneValue(typed[index])
		}
		return cloned
	case []map[string]any:
		cloned := make([]map[string]any, len(typed))
		for index := range typed {
			cloned[index] = cloneMap(typed[index])
		}
		return cloned
	case []string:
		return append([]string(nil), typed...)
	default:
		return value
	}
}

func mergeInto(target map[string]any, update map[string]any) map[string]any {
	if target == nil {
		target = make(map[string]any, len(update))
	}
	for key, value := range update {
		target[key] = cloneValue(value)
	}
	return target
}
