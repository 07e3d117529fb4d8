// Package validation provides common validation utilities for the gotask library.
package validation

import (
	"time"

	gterrors "github.com/vnykmshr/gotask/pkg/common/errors"
)

// ValidatePositive validates that an integer value is positive (> 0).
// Returns a ValidationError if the value is not positive.
func ValidatePositive(module, field string, value int) error {
	if value <= 0 {
		return gterrors.NewValidationError(module, field, value, "must be positive").
			WithHint("value must be greater than 0")
	}
	return nil
}

// ValidateNonNegativeDuration validates that a duration is not negative.
// Zero is accepted and usually selects a default.
func ValidateNonNegativeDuration(module, field string, value time.Duration) error {
	if value < 0 {
		return gterrors.NewValidationError(module, field, value, "cannot be negative").
			WithHint("use 0 for the default or a positive duration")
	}
	return nil
}

// ValidateNotNil validates that an interface value is not nil.
// Returns a ValidationError if the value is nil.
func ValidateNotNil(module, field string, value interface{}) error {
	if value == nil {
		return gterrors.NewValidationError(module, field, nil, "cannot be nil").
			WithHint("provide a valid " + field)
	}
	return nil
}

// ValidateNotEmpty validates that a string value is not empty.
// Returns a ValidationError if the string is empty.
func ValidateNotEmpty(module, field string, value string) error {
	if value == "" {
		return gterrors.NewValidationError(module, field, value, "cannot be empty").
			WithHint("provide a non-empty " + field)
	}
	return nil
}
