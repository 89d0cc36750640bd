// Package config parses Klipper-style profile files with access tracking
// and validation, and turns them into speed change instances.
package config

import (
	"fmt"

	"klipper-layerspeed/pkg/errors"
)

// ErrMissingOption returns an error for a required but missing option.
func ErrMissingOption(section, option string) *errors.ProcessError {
	return errors.ConfigOptionError(section, option, "must be specified")
}

// ErrUnknownOption returns an error for an option no reader accepts.
func ErrUnknownOption(section, option string) *errors.ProcessError {
	return errors.ConfigOptionError(section, option, "unknown option")
}

// ErrInvalidValue returns an error for a value of the wrong type.
func ErrInvalidValue(section, option, value, expected string, cause error) *errors.ProcessError {
	return errors.ConfigTypeError(section, option, value, expected, cause)
}

// ErrOutOfRange returns an error for a value outside the allowed range.
func ErrOutOfRange(section, option string, value int, constraint string) *errors.ProcessError {
	return errors.ConfigValidationError(section, option, fmt.Sprintf("value %d %s", value, constraint)).
		SetContext("value", value)
}
