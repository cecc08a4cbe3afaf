package config

import "github.com/joomcode/errorx"

// Error namespaces for classified configuration failures.
func portmonNamespace() *errorx.Namespace {
	return errorx.NewNamespace("portmon")
}

func configNamespace() *errorx.Namespace {
	return portmonNamespace().NewSubNamespace("config")
}

// Typed configuration errors with automatic stack traces.
var (
	// FileError covers unreadable or missing configuration files.
	FileError = configNamespace().NewType("file_error")

	// ParseError covers files that read fine but do not decode.
	ParseError = configNamespace().NewType("parse_error")

	// InvalidError covers configurations that decode but fail
	// validation.
	InvalidError = configNamespace().NewType("invalid_error")
)

// Properties attached to configuration errors for programmatic
// handling.
var (
	// PropertyFile identifies the configuration file involved.
	PropertyFile = errorx.RegisterProperty("file")

	// PropertyField identifies which field failed validation.
	PropertyField = errorx.RegisterProperty("field")

	// PropertyCode provides a stable error code.
	PropertyCode = errorx.RegisterPrintableProperty("code")
)

// IsConfigError reports whether err is any classified configuration
// failure.
func IsConfigError(err error) bool {
	return errorx.IsOfType(err, FileError) ||
		errorx.IsOfType(err, ParseError) ||
		errorx.IsOfType(err, InvalidError)
}

// ErrorField extracts the failing field name from a validation error,
// or "" when the error carries none.
func ErrorField(err error) string {
	if prop, ok := errorx.ExtractProperty(err, PropertyField); ok {
		if field, ok := prop.(string); ok {
			return field
		}
	}
	return ""
}
