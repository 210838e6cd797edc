// Copyright 2026 DealGate
// SPDX-License-Identifier: BUSL-1.1

package logger

import (
	"bytes"
	"encoding/json"
	"log"
	"os"
	"strings"
	"testing"
	"time"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name           string
		component      string
		instanceID     string
		expectedInstID string
	}{
		{
			name:           "with instance ID set",
			component:      "ai-gateway",
			instanceID:     "instance-123",
			expectedInstID: "instance-123",
		},
		{
			name:           "without instance ID",
			component:      "ai-gateway",
			instanceID:     "",
			expectedInstID: "unknown",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.instanceID != "" {
				t.Setenv("INSTANCE_ID", tt.instanceID)
			} else {
				if err := os.Unsetenv("INSTANCE_ID"); err != nil {
					t.Fatalf("Failed to unset INSTANCE_ID: %v", err)
				}
			}

			logger := New(tt.component)

			if logger.Component != tt.component {
				t.Errorf("Expected component %s, got %s", tt.component, logger.Component)
			}
			if logger.InstanceID != tt.expectedInstID {
				t.Errorf("Expected instance ID %s, got %s", tt.expectedInstID, logger.InstanceID)
			}
			if logger.Container == "" {
				t.Error("Expected container to be set from hostname")
			}
		})
	}
}

// captureEntry runs fn with log output redirected and decodes the single
// JSON entry it writes.
func captureEntry(t *testing.T, fn func()) LogEntry {
	t.Helper()

	var buf bytes.Buffer
	log.SetOutput(&buf)
	defer log.SetOutput(os.Stderr)

	fn()

	output := buf.String()
	jsonStart := strings.Index(output, "{")
	if jsonStart == -1 {
		t.Fatalf("No JSON found in log output: %s", output)
	}

	var entry LogEntry
	if err := json.Unmarshal([]byte(strings.TrimSpace(output[jsonStart:])), &entry); err != nil {
		t.Fatalf("Failed to parse JSON log: %v\nOutput: %s", err, output)
	}
	return entry
}

func TestLogLevels(t *testing.T) {
	tests := []struct {
		name    string
		logFunc func(*Logger, string, string, string, map[string]interface{})
		level   LogLevel
		fields  map[string]interface{}
	}{
		{name: "Info log", logFunc: (*Logger).Info, level: INFO, fields: map[string]interface{}{"key": "value"}},
		{name: "Error log", logFunc: (*Logger).Error, level: ERROR, fields: map[string]interface{}{"error": "boom"}},
		{name: "Warn log", logFunc: (*Logger).Warn, level: WARN, fields: nil},
		{name: "Debug log", logFunc: (*Logger).Debug, level: DEBUG, fields: map[string]interface{}{"debug_info": true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := New("ai-gateway")
			entry := captureEntry(t, func() {
				tt.logFunc(logger, "user-123", "req-456", "test message", tt.fields)
			})

			if entry.Level != tt.level {
				t.Errorf("Expected level %s, got %s", tt.level, entry.Level)
			}
			if entry.Message != "test message" {
				t.Errorf("Expected message 'test message', got '%s'", entry.Message)
			}
			if entry.UserID != "user-123" {
				t.Errorf("Expected user ID 'user-123', got '%s'", entry.UserID)
			}
			if entry.RequestID != "req-456" {
				t.Errorf("Expected request ID 'req-456', got '%s'", entry.RequestID)
			}
			if entry.Component != "ai-gateway" {
				t.Errorf("Expected component 'ai-gateway', got '%s'", entry.Component)
			}
			if _, err := time.Parse(time.RFC3339Nano, entry.Timestamp); err != nil {
				t.Errorf("Invalid timestamp format: %s", entry.Timestamp)
			}

			for key, expected := range tt.fields {
				actual, ok := entry.Fields[key]
				if !ok {
					t.Errorf("Expected field '%s' not found", key)
					continue
				}
				if actual != expected {
					t.Errorf("Field '%s': expected %v, got %v", key, expected, actual)
				}
			}
		})
	}
}

func TestInfoWithDuration(t *testing.T) {
	logger := New("ai-gateway")
	entry := captureEntry(t, func() {
		logger.InfoWithDuration("user-123", "req-456", "request completed", 123.45, map[string]interface{}{
			"endpoint": "chat",
		})
	})

	durationMS, ok := entry.Fields["duration_ms"]
	if !ok {
		t.Fatal("Expected duration_ms field not found")
	}
	if durationMS != 123.45 {
		t.Errorf("Expected duration 123.45, got %v", durationMS)
	}
	if entry.Fields["endpoint"] != "chat" {
		t.Errorf("Expected endpoint 'chat', got %v", entry.Fields["endpoint"])
	}
}

func TestErrorWithCode(t *testing.T) {
	logger := New("ai-gateway")
	entry := captureEntry(t, func() {
		logger.ErrorWithCode("user-123", "req-456", "upstream failed", 502, os.ErrDeadlineExceeded, nil)
	})

	if entry.Level != ERROR {
		t.Errorf("Expected level ERROR, got %s", entry.Level)
	}
	if code, ok := entry.Fields["status_code"]; !ok || code != float64(502) {
		t.Errorf("Expected status_code 502, got %v", code)
	}
	if msg, ok := entry.Fields["error"]; !ok || msg != os.ErrDeadlineExceeded.Error() {
		t.Errorf("Expected error field, got %v", msg)
	}
}
