package stringutil

import (
	"regexp"
	"strings"

	"github.com/seanchatmangpt/gitvan/internal/gitvanlog"
)

var sanitizeLog = gitvanlog.New("stringutil:sanitize")

// Regex patterns for detecting potential secret key names
var (
	// Match uppercase snake_case identifiers that look like secret names (e.g., MY_SECRET_KEY, API_TOKEN)
	secretNamePattern = regexp.MustCompile(`\b([A-Z][A-Z0-9]*_[A-Z0-9_]+)\b`)

	// Match PascalCase identifiers ending with security-related suffixes (e.g., GitHubToken, ApiKey, DeploySecret)
	pascalCaseSecretPattern = regexp.MustCompile(`\b([A-Z][a-z0-9]*(?:[A-Z][a-z0-9]*)*(?:Token|Key|Secret|Password|Credential|Auth))\b`)

	// Common non-sensitive identifiers to exclude from redaction
	commonKeywords = map[string]bool{
		"GITVAN":      true,
		"GIT":         true,
		"JOB":         true,
		"CRON":        true,
		"ENV":         true,
		"PATH":        true,
		"HOME":        true,
		"SHELL":       true,
		"INPUTS":      true,
		"OUTPUTS":     true,
	}
)

// SanitizeErrorMessage redacts identifiers that look like secret key names
// from error messages before they reach a log line or a receipt's Error
// field, since pack inputs (spec §4.7) may carry secret-shaped values that
// should never be persisted verbatim.
func SanitizeErrorMessage(message string) string {
	if message == "" {
		return message
	}

	sanitized := secretNamePattern.ReplaceAllStringFunc(message, func(match string) string {
		if commonKeywords[match] {
			return match
		}
		if strings.HasPrefix(match, "GITVAN_") {
			return match
		}
		sanitizeLog.Printf("redacted snake_case secret pattern: %s", match)
		return "[REDACTED]"
	})

	sanitized = pascalCaseSecretPattern.ReplaceAllString(sanitized, "[REDACTED]")

	if sanitized != message {
		sanitizeLog.Print("error message sanitization applied redactions")
	}

	return sanitized
}
