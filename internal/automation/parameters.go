package automation

import (
	mapstructure "github.com/go-viper/mapstructure/v2"
)

const (
	parameterDecodeFailureMessageConstant = "malformed parameters"
	parameterTagNameConstant              = "mapstructure"
)

// DecodeParameters decodes task parameters into the provided structure. Scalar values are
// converted weakly so "true", 1 and true all populate a bool field.
func DecodeParameters(taskID string, parameters map[string]any, target any) error {
	if target == nil || len(parameters) == 0 {
		return nil
	}

	decoder, decoderError := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          parameterTagNameConstant,
		Result:           target,
		WeaklyTypedInput: true,
	})
	if decoderError != nil {
		return ValidationError{TaskID: taskID, Message: parameterDecodeFailureMessageConstant, Cause: decoderError}
	}

	if decodeError := decoder.Decode(parameters); decodeError != nil {
		return ValidationError{TaskID: taskID, Message: parameterDecodeFailureMessageConstant, Cause: decodeError}
	}
	return nil
}
