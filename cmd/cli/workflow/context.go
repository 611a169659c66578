package workflow

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	assignmentSeparatorConstant           = "="
	assignmentFormatErrorTemplateConstant = "%s entries must be in key=value format: %s"
	assignmentKeyErrorTemplateConstant    = "%s key cannot be empty (%s)"
	contextFileReadErrorTemplateConstant  = "failed to read context file %q: %w"
	contextFileParseErrorTemplateConstant = "failed to parse context file %q: %w"
	contextAssignmentLabelConstant        = "context"
)

// parseAssignments turns KEY=VALUE entries into a map. Values keep surrounding whitespace.
func parseAssignments(label string, assignments []string) (map[string]any, error) {
	if len(assignments) == 0 {
		return nil, nil
	}

	result := make(map[string]any, len(assignments))
	for _, assignment := range assignments {
		trimmed := strings.TrimSpace(assignment)
		if len(trimmed) == 0 {
			continue
		}
		parts := strings.SplitN(trimmed, assignmentSeparatorConstant, 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf(assignmentFormatErrorTemplateConstant, label, assignment)
		}
		key := strings.TrimSpace(parts[0])
		if len(key) == 0 {
			return nil, fmt.Errorf(assignmentKeyErrorTemplateConstant, label, assignment)
		}
		result[key] = parts[1]
	}

	if len(result) == 0 {
		return nil, nil
	}
	return result, nil
}

// loadContextFromFiles merges YAML or JSON mappings; later files win.
func loadContextFromFiles(paths []string) (map[string]any, error) {
	if len(paths) == 0 {
		return nil, nil
	}

	combined := make(map[string]any)
	for _, rawPath := range paths {
		trimmed := strings.TrimSpace(rawPath)
		if len(trimmed) == 0 {
			continue
		}
		content, readError := os.ReadFile(trimmed)
		if readError != nil {
			return nil, fmt.Errorf(contextFileReadErrorTemplateConstant, trimmed, readError)
		}
		var parsed map[string]any
		if unmarshalError := yaml.Unmarshal(content, &parsed); unmarshalError != nil {
			return nil, fmt.Errorf(contextFileParseErrorTemplateConstant, trimmed, unmarshalError)
		}
		for key, value := range parsed {
			combined[key] = value
		}
	}

	if len(combined) == 0 {
		return nil, nil
	}
	return combined, nil
}

// buildCallerContext layers --context entries over --context-file values.
func buildCallerContext(entries []string, filePaths []string) (map[string]any, error) {
	fileContext, fileError := loadContextFromFiles(filePaths)
	if fileError != nil {
		return nil, fileError
	}
	entryContext, entryError := parseAssignments(contextAssignmentLabelConstant, entries)
	if entryError != nil {
		return nil, entryError
	}

	callerContext := make(map[string]any, len(fileContext)+len(entryContext))
	for key, value := range fileContext {
		callerContext[key] = value
	}
	for key, value := range entryContext {
		callerContext[key] = value
	}
	return callerContext, nil
}
