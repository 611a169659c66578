package cli

import (
	_ "embed"
)

const embeddedConfigurationTypeConstant = "yaml"

//go:embed default_config.yaml
var embeddedDefaultConfiguration []byte

// EmbeddedDefaultConfiguration returns the configuration compiled into the binary and its format.
func EmbeddedDefaultConfiguration() ([]byte, string) {
	return append([]byte{}, embeddedDefaultConfiguration...), embeddedConfigurationTypeConstant
}
