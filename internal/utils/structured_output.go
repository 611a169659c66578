package utils

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

// OutputFormat selects how command results are rendered.
type OutputFormat string

// Supported output formats.
const (
	OutputFormatTable OutputFormat = "table"
	OutputFormatJSON  OutputFormat = "json"
	OutputFormatYAML  OutputFormat = "yaml"
)

const (
	jsonIndentConstant                      = "  "
	yamlIndentConstant                      = 2
	unsupportedOutputFormatTemplateConstant = "unsupported output format %q (expected table, json, or yaml)"
)

// ParseOutputFormat normalizes the raw flag value. Blank values select the table format.
func ParseOutputFormat(raw string) (OutputFormat, error) {
	normalized := OutputFormat(strings.ToLower(strings.TrimSpace(raw)))
	switch normalized {
	case "":
		return OutputFormatTable, nil
	case OutputFormatTable, OutputFormatJSON, OutputFormatYAML:
		return normalized, nil
	default:
		return "", fmt.Errorf(unsupportedOutputFormatTemplateConstant, raw)
	}
}

// WriteStructuredOutput encodes value as indented JSON or YAML.
func WriteStructuredOutput(writer io.Writer, format OutputFormat, value any) error {
	switch format {
	case OutputFormatJSON:
		encoder := json.NewEncoder(writer)
		encoder.SetIndent("", jsonIndentConstant)
		return encoder.Encode(value)
	case OutputFormatYAML:
		encoder := yaml.NewEncoder(writer)
		encoder.SetIndent(yamlIndentConstant)
		if encodeError := encoder.Encode(value); encodeError != nil {
			return encodeError
		}
		return encoder.Close()
	default:
		return fmt.Errorf(unsupportedOutputFormatTemplateConstant, format)
	}
}
