package logger

import (
	"bytes"
	"encoding/json"
	"testing"
)

func newBufferLogger(t *testing.T) (Logger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	l, err := New(Config{Level: "info", Format: "json", Output: &buf})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return l, &buf
}

func decodeEntry(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var logEntry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &logEntry); err != nil {
		t.Fatalf("Failed to parse JSON log: %v", err)
	}
	return logEntry
}

func TestRedactSensitive_EncodedKeyMaterial(t *testing.T) {
	l, buf := newBufferLogger(t)

	material := "base64:QUJDREVGR0hJSktMTU5PUFFSU1RVVldYWVo="
	l.Info("security loaded", "material", material)

	got, ok := decodeEntry(t, buf)["material"].(string)
	if !ok {
		t.Fatal("Expected material field in log")
	}
	if got == material {
		t.Fatal("material should be masked, got original value")
	}
	if got != "base64:QUJ...Vo=" {
		t.Errorf("mask format incorrect, got: %s", got)
	}
}

func TestRedactSensitive_SensitiveKeyName(t *testing.T) {
	l, buf := newBufferLogger(t)

	tests := []struct {
		key      string
		value    string
		expected string
	}{
		{"password", "mysecret123", "***REDACTED***"},
		{"passphrase", "correct horse", "***REDACTED***"},
		{"encryption_key", "0011223344", "***REDACTED***"},
		{"auth_token", "bearer-xyz", "***REDACTED***"},
		{"credential", "cred123", "***REDACTED***"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			buf.Reset()
			l.Info("test", tt.key, tt.value)

			val, ok := decodeEntry(t, buf)[tt.key].(string)
			if !ok {
				t.Fatalf("Expected %s field in log", tt.key)
			}
			if val != tt.expected {
				t.Errorf("Key %q should be redacted to %q, got %q", tt.key, tt.expected, val)
			}
		})
	}
}

func TestRedactSensitive_NormalValues(t *testing.T) {
	l, buf := newBufferLogger(t)

	l.Info("commit", "table", "users", "key", "alice", "version", 3)

	entry := decodeEntry(t, buf)
	if v, ok := entry["table"].(string); !ok || v != "users" {
		t.Errorf("table should not be redacted, got: %v", entry["table"])
	}
	if v, ok := entry["key"].(string); !ok || v != "alice" {
		t.Errorf("row key should not be redacted, got: %v", entry["key"])
	}
}

func TestRedactString(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "hex material",
			input:    "hex:00112233445566778899aabbccddeeff",
			expected: "hex:001...eff",
		},
		{
			name:     "short material",
			input:    "hex:0011",
			expected: "hex:***",
		},
		{
			name:     "normal value",
			input:    "normalvalue123",
			expected: "normalvalue123",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := RedactString(tt.input)
			if result != tt.expected {
				t.Errorf("RedactString(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestIsSensitiveKey(t *testing.T) {
	tests := []struct {
		key       string
		sensitive bool
	}{
		{"password", true},
		{"user_password", true},
		{"PASSWORD", true},
		{"passphrase", true},
		{"secret", true},
		{"token", true},
		{"api_key", true},
		{"encryption_key", true},
		{"credential", true},
		{"bearer", true},
		{"key", false},
		{"table", false},
		{"request_id", false},
		{"data", false},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			result := IsSensitiveKey(tt.key)
			if result != tt.sensitive {
				t.Errorf("IsSensitiveKey(%q) = %v, want %v", tt.key, result, tt.sensitive)
			}
		})
	}
}

func TestIsSensitiveValue(t *testing.T) {
	tests := []struct {
		value     string
		sensitive bool
	}{
		{"base64:abc", true},
		{"hex:00ff", true},
		{"normal_value", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			result := IsSensitiveValue(tt.value)
			if result != tt.sensitive {
				t.Errorf("IsSensitiveValue(%q) = %v, want %v", tt.value, result, tt.sensitive)
			}
		})
	}
}

func TestMaskValue(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		prefix   string
		expected string
	}{
		{"long value", "hex:ABCDEFGHIJKLM", "hex:", "hex:ABC...KLM"},
		{"six chars", "hex:ABCDEF", "hex:", "hex:***"},
		{"minimal value", "hex:AB", "hex:", "hex:***"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := maskValue(tt.value, tt.prefix)
			if result != tt.expected {
				t.Errorf("maskValue(%q, %q) = %q, want %q", tt.value, tt.prefix, result, tt.expected)
			}
		})
	}
}
