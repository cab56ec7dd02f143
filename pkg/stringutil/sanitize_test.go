//go:build !integration

package stringutil

import (
	"strings"
	"testing"
)

func TestSanitizeErrorMessage(t *testing.T) {
	tests := []struct {
		name     string
		message  string
		expected string
	}{
		{
			name:     "empty message",
			message:  "",
			expected: "",
		},
		{
			name:     "message with no secrets",
			message:  "This is a regular error message",
			expected: "This is a regular error message",
		},
		{
			name:     "message with snake_case secret",
			message:  "Error accessing MY_SECRET_KEY",
			expected: "Error accessing [REDACTED]",
		},
		{
			name:     "message with multiple secrets",
			message:  "Failed to use API_TOKEN and DATABASE_PASSWORD",
			expected: "Failed to use [REDACTED] and [REDACTED]",
		},
		{
			name:     "message with PascalCase secret",
			message:  "Invalid GitHubToken provided",
			expected: "Invalid [REDACTED] provided",
		},
		{
			name:     "message with GITVAN keyword (not redacted)",
			message:  "GITVAN is not responding",
			expected: "GITVAN is not responding",
		},
		{
			name:     "message with PATH keyword (not redacted)",
			message:  "PATH variable is not set",
			expected: "PATH variable is not set",
		},
		{
			name:     "message with GITVAN_ prefixed config var (not redacted)",
			message:  "Set GITVAN_VERBOSE to enable debug logging",
			expected: "Set GITVAN_VERBOSE to enable debug logging",
		},
		{
			name:     "complex message with mixed secrets",
			message:  "Failed to authenticate with DEPLOY_KEY and ApiSecret",
			expected: "Failed to authenticate with [REDACTED] and [REDACTED]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := SanitizeErrorMessage(tt.message)
			if result != tt.expected {
				t.Errorf("SanitizeErrorMessage(%q) = %q; want %q", tt.message, result, tt.expected)
			}
		})
	}
}

func BenchmarkSanitizeErrorMessage(b *testing.B) {
	message := "Failed to use API_TOKEN and DATABASE_PASSWORD with GitHubToken"
	for i := 0; i < b.N; i++ {
		SanitizeErrorMessage(message)
	}
}

func TestSanitizeErrorMessage_AllCommonKeywords(t *testing.T) {
	keywords := []string{"GITVAN", "GIT", "JOB", "CRON", "ENV", "PATH", "HOME", "SHELL", "INPUTS", "OUTPUTS"}

	for _, keyword := range keywords {
		message := "Error with " + keyword + " configuration"
		result := SanitizeErrorMessage(message)
		if !strings.Contains(result, keyword) {
			t.Errorf("common keyword %q should not be redacted, got: %q", keyword, result)
		}
	}
}

func TestSanitizeErrorMessage_MultipleOccurrences(t *testing.T) {
	message := "Leaked API_KEY appears twice: API_KEY"
	result := SanitizeErrorMessage(message)
	if strings.Contains(result, "API_KEY") {
		t.Errorf("expected all occurrences redacted, got: %q", result)
	}
}

func TestSanitizeErrorMessage_Idempotent(t *testing.T) {
	message := "Invalid DEPLOY_TOKEN and DatabasePassword"
	once := SanitizeErrorMessage(message)
	twice := SanitizeErrorMessage(once)
	if once != twice {
		t.Errorf("sanitizing an already-sanitized message changed it: %q -> %q", once, twice)
	}
}
