package log

import "strings"

// RedactMark replaces secrets removed by Redact.
const RedactMark = "..."

// Redact returns message with every occurrence of each non-empty secret
// replaced by RedactMark.
func Redact(message string, secrets ...string) string {
	for _, s := range secrets {
		if s == "" {
			continue
		}
		message = strings.ReplaceAll(message, s, RedactMark)
	}
	return message
}
