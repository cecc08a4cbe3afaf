package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validator wraps go-playground/validator with port-domain custom
// validators.
type Validator struct {
	validator *validator.Validate
}

// NewValidator creates a validation instance with the custom
// validators registered.
func NewValidator() *Validator {
	validate := validator.New()

	_ = validate.RegisterValidation("port_name", validatePortName)
	_ = validate.RegisterValidation("baud_rate", validateBaudRate)
	_ = validate.RegisterValidation("listen_addr", validateListenAddr)

	return &Validator{validator: validate}
}

// Validate validates a struct against its validate tags.
func (v *Validator) Validate(s interface{}) error {
	return v.validator.Struct(s)
}

// Port names become log labels and MQTT topic segments, so they stay
// restricted to alphanumerics, hyphens and underscores.
func validatePortName(fl validator.FieldLevel) bool {
	name := strings.TrimSpace(fl.Field().String())
	if name == "" {
		return true // empty handled by required tags
	}
	for _, char := range name {
		if !((char >= 'a' && char <= 'z') || (char >= 'A' && char <= 'Z') ||
			(char >= '0' && char <= '9') || char == '-' || char == '_') {
			return false
		}
	}
	return true
}

// Baud rate validator accepting the range real UART bridges handle.
func validateBaudRate(fl validator.FieldLevel) bool {
	rate := fl.Field().Int()
	return rate >= 50 && rate <= 4_000_000
}

// Listen address validator for host:port strings, empty host allowed.
func validateListenAddr(fl validator.FieldLevel) bool {
	addr := fl.Field().String()
	if addr == "" {
		return true
	}
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return false
	}
	return port >= 1 && port <= 65535
}

// ValidationError carries one field failure in a form suitable for
// both logs and JSON output.
type ValidationError struct {
	Field   string      `json:"field"`
	Tag     string      `json:"tag"`
	Value   interface{} `json:"value"`
	Message string      `json:"message"`
}

// Error implements the error interface.
func (ve *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for field '%s': %s", ve.Field, ve.Message)
}

// ConvertValidationErrors converts go-playground validation errors to
// the custom format.
func ConvertValidationErrors(err error) []ValidationError {
	var out []ValidationError

	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		for _, validationErr := range validationErrors {
			out = append(out, ValidationError{
				Field:   validationErr.Field(),
				Tag:     validationErr.Tag(),
				Value:   validationErr.Value(),
				Message: getCustomErrorMessage(validationErr),
			})
		}
	}

	return out
}

// getCustomErrorMessage provides human-readable messages for
// validation failures.
func getCustomErrorMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "field is required"
	case "required_if":
		return fmt.Sprintf("field is required when %s", fe.Param())
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	case "uri":
		return "must be a valid URI (e.g., tcp://broker.local:1883)"
	case "port_name":
		return "must contain only alphanumeric characters, hyphens, and underscores"
	case "baud_rate":
		return "must be a baud rate between 50 and 4000000"
	case "listen_addr":
		return "must be a host:port address (e.g., :9109)"
	default:
		return fmt.Sprintf("validation failed for tag '%s'", fe.Tag())
	}
}

// GlobalValidator is the package-wide validator instance.
var GlobalValidator = NewValidator()

// ValidateStruct is a convenience function using the global validator.
func ValidateStruct(s interface{}) error {
	return GlobalValidator.Validate(s)
}
