package utils

import (
	"fmt"
	"os/exec"
	"strings"
)

// ExecLookPath allows us to mock exec.LookPath in tests
var ExecLookPath = exec.LookPath

// ValidationError represents a validation error with context
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Field, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// ValidateRequiredDependency checks if a required command is available
func ValidateRequiredDependency(cmd string) error {
	if _, err := ExecLookPath(cmd); err != nil {
		return &ValidationError{
			Field:   cmd,
			Message: fmt.Sprintf("%s not found in PATH", cmd),
			Err:     err,
		}
	}
	return nil
}

// ExpandPlaceholders replaces every {Key} token in text with its value
func ExpandPlaceholders(text string, values map[string]string) string {
	if len(values) == 0 || !strings.Contains(text, "{") {
		return text
	}
	pairs := make([]string, 0, len(values)*2)
	for k, v := range values {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(text)
}
