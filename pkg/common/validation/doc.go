// Package validation provides common validation utilities for configuration
// parameters across the gotask library.
//
// The helpers return *errors.ValidationError values so constructors report
// bad settings with the same message shape everywhere.
package validation
