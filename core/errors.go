package core

import (
	"errors"
	"fmt"
)

// ConfigError is a configuration problem with an instruction for fixing it.
type ConfigError struct {
	Code    string
	Message string
	Action  string
}

func (e *ConfigError) Error() string {
	if e.Action != "" {
		return fmt.Sprintf("%s. %s", e.Message, e.Action)
	}
	return e.Message
}

const (
	ErrCodeConfigFile     = "CONFIG_FILE"
	ErrCodeInvalidBackend = "INVALID_BACKEND"
	ErrCodeInvalidURL     = "INVALID_URL"
	ErrCodeInvalidValue   = "INVALID_VALUE"
	ErrCodeMissingAuth    = "MISSING_AUTH"
	ErrCodeMissingConfig  = "MISSING_CONFIG"
)

func ErrConfigFile(path string, cause error) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeConfigFile,
		Message: fmt.Sprintf("Cannot read config file %s: %v", path, cause),
		Action:  "Check the --config path or GALLERY_CONFIG and that the file is valid YAML",
	}
}

func ErrInvalidBackend(kind, value string, allowed []string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeInvalidBackend,
		Message: fmt.Sprintf("Unknown %s backend %q", kind, value),
		Action:  fmt.Sprintf("Use one of %v", allowed),
	}
}

func ErrInvalidURL(name, value, reason string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeInvalidURL,
		Message: fmt.Sprintf("Invalid %s %q: %s", name, value, reason),
		Action:  fmt.Sprintf("Set %s to an absolute http(s) URL, e.g. http://127.0.0.1:7860", name),
	}
}

func ErrInvalidValue(name string, value interface{}, reason string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeInvalidValue,
		Message: fmt.Sprintf("Invalid %s %v: %s", name, value, reason),
	}
}

func ErrMissingAuth(service string) *ConfigError {
	action := fmt.Sprintf("Provide credentials for %s", service)
	switch service {
	case "openai":
		action = "Set OPENAI_API_KEY in the environment or .env file"
	case "sagemaker":
		action = "Configure AWS credentials (AWS_PROFILE, AWS_ACCESS_KEY_ID/AWS_SECRET_ACCESS_KEY, or an instance role)"
	}
	return &ConfigError{
		Code:    ErrCodeMissingAuth,
		Message: fmt.Sprintf("Missing credentials for %s", service),
		Action:  action,
	}
}

func ErrMissingConfig(name string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeMissingConfig,
		Message: fmt.Sprintf("Missing required setting: %s", name),
		Action:  fmt.Sprintf("Set %s via flag, environment or config file", name),
	}
}

// IsConfigError unwraps err looking for a *ConfigError.
func IsConfigError(err error) (*ConfigError, bool) {
	var cfgErr *ConfigError
	if errors.As(err, &cfgErr) {
		return cfgErr, true
	}
	return nil, false
}

func GetErrorCode(err error) string {
	if cfgErr, ok := IsConfigError(err); ok {
		return cfgErr.Code
	}
	return ""
}
