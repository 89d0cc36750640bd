// Structured logging tests
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package log

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func newTestLogger(prefix string) (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := New(prefix)
	logger.SetWriter(&buf)
	logger.SetLevel(DEBUG)
	logger.SetColorize(false)
	return logger, &buf
}

func TestLoggerBasic(t *testing.T) {
	logger, buf := newTestLogger("test")

	logger.Info("hello %s", "world")

	output := buf.String()
	if !strings.Contains(output, "[INFO ]") {
		t.Errorf("expected INFO level, got: %s", output)
	}
	if !strings.Contains(output, "test: hello world") {
		t.Errorf("expected prefixed message, got: %s", output)
	}
}

func TestLoggerLevels(t *testing.T) {
	logger, buf := newTestLogger("test")
	logger.SetLevel(WARN)

	logger.Debug("debug message")
	logger.Info("info message")
	if buf.Len() != 0 {
		t.Errorf("expected DEBUG and INFO to be filtered, got: %s", buf.String())
	}

	logger.Warn("warn message")
	logger.Error("error message")
	output := buf.String()
	if !strings.Contains(output, "warn message") || !strings.Contains(output, "error message") {
		t.Errorf("expected WARN and ERROR to pass, got: %s", output)
	}
}

func TestLoggerJSON(t *testing.T) {
	logger, buf := newTestLogger("test")
	logger.SetFormat(FormatJSON)

	logger.WithField("layer", 3).WithError(errors.New("boom")).Warn("json test")

	var entry jsonLine
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse JSON: %v, output: %s", err, buf.String())
	}
	if entry.Level != "WARN" || entry.Logger != "test" || entry.Message != "json test" {
		t.Errorf("unexpected entry: %+v", entry)
	}
	if entry.Fields["layer"] != float64(3) || entry.Fields["error"] != "boom" {
		t.Errorf("unexpected fields: %v", entry.Fields)
	}
}

func TestLoggerTextFieldsSorted(t *testing.T) {
	logger, buf := newTestLogger("test")

	logger.WithFields(Fields{"b": 2, "a": 1}).Info("fields")

	if !strings.Contains(buf.String(), "{a=1, b=2}") {
		t.Errorf("expected sorted fields, got: %s", buf.String())
	}
}

func TestLoggerWithPersistentField(t *testing.T) {
	logger, buf := newTestLogger("parent")

	child := logger.With("run", "abc").WithPrefix("child")
	child.WithField("x", 1).Info("child message")

	output := buf.String()
	if !strings.Contains(output, "child: child message") {
		t.Errorf("expected child prefix, got: %s", output)
	}
	if !strings.Contains(output, "run=abc") || !strings.Contains(output, "x=1") {
		t.Errorf("expected persistent and entry fields, got: %s", output)
	}
}

func TestChildSharesLevel(t *testing.T) {
	logger, buf := newTestLogger("parent")
	child := logger.WithPrefix("child")

	logger.SetLevel(ERROR)
	child.Info("filtered")
	if buf.Len() != 0 {
		t.Errorf("expected child to follow parent level, got: %s", buf.String())
	}
}

func TestLoggerCaller(t *testing.T) {
	logger, buf := newTestLogger("test")
	logger.SetCaller(true)

	logger.Info("caller test")
	logger.WithField("k", "v").Info("entry caller test")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	for _, line := range lines {
		if !strings.Contains(line, "logger_test.go:") {
			t.Errorf("expected caller info 'logger_test.go:', got: %s", line)
		}
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected LogLevel
	}{
		{"DEBUG", DEBUG},
		{"debug", DEBUG},
		{"INFO", INFO},
		{"WARNING", WARN},
		{" warn ", WARN},
		{"error", ERROR},
		{"invalid", INFO},
		{"", INFO},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.input); got != tt.expected {
			t.Errorf("ParseLevel(%q) = %v, expected %v", tt.input, got, tt.expected)
		}
	}
}

func TestOptionsFromEnv(t *testing.T) {
	t.Setenv("LAYERSPEED_LOG_LEVEL", "debug")
	t.Setenv("LAYERSPEED_LOG_FORMAT", "json")
	t.Setenv("LAYERSPEED_LOG_CALLER", "true")

	opts, err := OptionsFromEnv()
	if err != nil {
		t.Fatalf("OptionsFromEnv failed: %v", err)
	}

	logger := New("env")
	opts.Apply(logger)
	if logger.GetLevel() != DEBUG {
		t.Errorf("expected DEBUG, got %v", logger.GetLevel())
	}
	if logger.out.format != FormatJSON || !logger.out.caller {
		t.Errorf("expected JSON with caller, got format=%v caller=%v", logger.out.format, logger.out.caller)
	}
}

func TestOptionsFromEnvRejectsBadBool(t *testing.T) {
	t.Setenv("LAYERSPEED_LOG_CALLER", "sometimes")
	if _, err := OptionsFromEnv(); err == nil {
		t.Error("expected error for invalid boolean")
	}
}

func TestGetLogger(t *testing.T) {
	logger := GetLogger("mycomponent")
	if logger == nil {
		t.Fatal("expected logger, got nil")
	}
	if logger.prefix != "mycomponent" {
		t.Errorf("expected prefix 'mycomponent', got %q", logger.prefix)
	}
}
