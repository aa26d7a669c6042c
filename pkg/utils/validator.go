package utils

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/turtacn/keyvault/pkg/errors"
)

var (
	// defaultValidator holds the singleton instance of the validator.
	defaultValidator *validator.Validate

	fingerprintPattern = regexp.MustCompile(`^[0-9A-F]{40}$|^[0-9A-F]{64}$`)
)

func init() {
	defaultValidator = validator.New()
	// Register custom validation functions
	_ = defaultValidator.RegisterValidation("fingerprint", validateFingerprint)
}

// ValidateStruct validates a struct using the default validator.
// It returns an invalid_request error listing every failed field.
func ValidateStruct(s interface{}) error {
	err := defaultValidator.Struct(s)
	if err == nil {
		return nil
	}
	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return errors.ErrInvalidRequest(err.Error())
	}

	messages := make([]string, 0, len(validationErrors))
	fields := make(map[string]string, len(validationErrors))
	for _, fe := range validationErrors {
		field := ToSnakeCase(fe.Field())
		fields[field] = formatValidationError(fe)
		messages = append(messages, field+" "+fields[field])
	}

	kvErr := errors.ErrInvalidRequest(strings.Join(messages, "; "))
	for field, msg := range fields {
		kvErr = kvErr.WithMetadata(field, msg)
	}
	return kvErr
}

// ValidateFingerprint reports whether s is an upper-case v4 or v5 fingerprint.
func ValidateFingerprint(s string) bool {
	return fingerprintPattern.MatchString(s)
}

// ValidateNotEmpty checks if a string is not empty.
func ValidateNotEmpty(s string) bool {
	return strings.TrimSpace(s) != ""
}

// validateFingerprint is a custom validation function for key fingerprints.
func validateFingerprint(fl validator.FieldLevel) bool {
	return ValidateFingerprint(fl.Field().String())
}

// formatValidationError creates a user-friendly error message for a validation error.
func formatValidationError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "fingerprint":
		return "must be a hex key fingerprint"
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	default:
		return fmt.Sprintf("failed on the '%s' tag", fe.Tag())
	}
}
