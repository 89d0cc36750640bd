// Unified error handling for the layer speed post-processor
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents the category of error
type ErrorCode string

const (
	// Configuration errors
	ErrConfigSection    ErrorCode = "CONFIG_SECTION"
	ErrConfigOption     ErrorCode = "CONFIG_OPTION"
	ErrConfigValidation ErrorCode = "CONFIG_VALIDATION"
	ErrConfigType       ErrorCode = "CONFIG_TYPE"

	// Stream errors
	ErrStreamRead  ErrorCode = "STREAM_READ"
	ErrStreamWrite ErrorCode = "STREAM_WRITE"
)

// ProcessError is the unified error type for the post-processor
type ProcessError struct {
	// Code is the error category
	Code ErrorCode

	// Message is a human-readable error description
	Message string

	// Section is the config section or instance name
	Section string

	// Option is the config option name (if applicable)
	Option string

	// Line is the 1-based stream line number (if applicable)
	Line int

	// Err wraps the underlying error
	Err error

	// Context provides additional context
	Context map[string]interface{}
}

// Error implements the error interface
func (e *ProcessError) Error() string {
	msg := e.Message
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	if e.Option != "" {
		return fmt.Sprintf("[%s:%s] %s", e.Code, e.Option, msg)
	}
	if e.Section != "" {
		return fmt.Sprintf("[%s:%s] %s", e.Code, e.Section, msg)
	}
	return fmt.Sprintf("[%s] %s", e.Code, msg)
}

// Unwrap returns the underlying error
func (e *ProcessError) Unwrap() error {
	return e.Err
}

// Is reports whether target is a ProcessError carrying the same code.
func (e *ProcessError) Is(target error) bool {
	t, ok := target.(*ProcessError)
	if !ok {
		return false
	}
	return t.Code == e.Code && t.Message == ""
}

// SetSection sets the context section
func (e *ProcessError) SetSection(section string) *ProcessError {
	e.Section = section
	return e
}

// SetOption sets the config option
func (e *ProcessError) SetOption(option string) *ProcessError {
	e.Option = option
	return e
}

// SetLine sets the stream line number
func (e *ProcessError) SetLine(line int) *ProcessError {
	e.Line = line
	return e
}

// SetContext adds additional context
func (e *ProcessError) SetContext(key string, value interface{}) *ProcessError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// Wrap wraps an existing error with additional context
func Wrap(err error, code ErrorCode, message string) *ProcessError {
	return &ProcessError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// New creates a new ProcessError
func New(code ErrorCode, message string) *ProcessError {
	return &ProcessError{
		Code:    code,
		Message: message,
	}
}

// Code returns a sentinel usable with errors.Is to match any error of
// the given category.
func Code(code ErrorCode) error {
	return &ProcessError{Code: code}
}

// HasCode reports whether err, or any error it wraps, is a ProcessError
// with the given code.
func HasCode(err error, code ErrorCode) bool {
	return stderrors.Is(err, Code(code))
}

// Config errors

// ConfigSectionError creates an error for a missing or malformed section
func ConfigSectionError(section, reason string) *ProcessError {
	return New(ErrConfigSection, fmt.Sprintf("section '%s': %s", section, reason)).
		SetSection(section)
}

// ConfigOptionError creates an error for a missing or unknown option
func ConfigOptionError(section, option, reason string) *ProcessError {
	return New(ErrConfigOption, fmt.Sprintf("option '%s' in section '%s': %s", option, section, reason)).
		SetSection(section).
		SetOption(option)
}

// ConfigValidationError creates an error for config validation failure
func ConfigValidationError(section, option string, reason string) *ProcessError {
	return New(ErrConfigValidation, fmt.Sprintf("option '%s' in section '%s': %s", option, section, reason)).
		SetSection(section).
		SetOption(option)
}

// ConfigTypeError creates an error for config type conversion failure
func ConfigTypeError(section, option, value string, targetType string, err error) *ProcessError {
	return Wrap(err, ErrConfigType, fmt.Sprintf("option '%s' in section '%s': failed to parse '%s' as %s", option, section, value, targetType)).
		SetSection(section).
		SetOption(option)
}

// Stream errors

// StreamReadError wraps a failure reading the input stream
func StreamReadError(line int, err error) *ProcessError {
	return Wrap(err, ErrStreamRead, fmt.Sprintf("read failed after line %d", line)).
		SetLine(line)
}

// StreamWriteError wraps a failure writing the output stream
func StreamWriteError(line int, err error) *ProcessError {
	return Wrap(err, ErrStreamWrite, fmt.Sprintf("write failed at line %d", line)).
		SetLine(line)
}
