package config

import "errors"

var (
	// ErrConfigNotFound indicates the configuration file does not exist.
	ErrConfigNotFound = errors.New("configuration file not found")

	// ErrInvalidFormat indicates a file that does not decode.
	ErrInvalidFormat = errors.New("invalid configuration format")

	// ErrUnsupportedFormat indicates an extension other than .yaml, .yml or .json.
	ErrUnsupportedFormat = errors.New("unsupported configuration format")

	// ErrValidationFailed is wrapped by every ValidationErrors.
	ErrValidationFailed = errors.New("configuration validation failed")

	// ErrMissingEnvVar indicates a ${VAR} reference to an unset variable
	// while strict expansion is on.
	ErrMissingEnvVar = errors.New("required environment variable not set")
)
