// Package redact scrubs sensitive values from user-facing text. It is the
// last gate before an answer leaves the pipeline.
package redact

import (
	"fmt"
	"regexp"
	"strings"
)

type pattern struct {
	re          *regexp.Regexp
	replacement string
	finding     string
}

var patterns = []pattern{
	{regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`), "[SSN REDACTED]", "possible SSN"},
	{regexp.MustCompile(`\b\d{16}\b`), "[CARD REDACTED]", "possible card number"},
	{regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Z|a-z]{2,}\b`), "[EMAIL REDACTED]", "email address"},
}

// sensitiveKeywords are flagged but not rewritten; they usually indicate a
// prompt leak rather than data in need of masking.
var sensitiveKeywords = []string{"password", "secret", "api_key", "token"}

// Apply replaces every sensitive value with its redaction marker.
func Apply(text string) string {
	for _, p := range patterns {
		text = p.re.ReplaceAllString(text, p.replacement)
	}
	return text
}

// Findings reports what Apply would redact plus any sensitive keywords, in
// pattern order. An empty slice means the text is clean.
func Findings(text string) []string {
	var found []string
	for _, p := range patterns {
		if p.re.MatchString(text) {
			found = append(found, p.finding)
		}
	}
	lower := strings.ToLower(text)
	for _, kw := range sensitiveKeywords {
		if strings.Contains(lower, kw) {
			found = append(found, fmt.Sprintf("sensitive keyword '%s'", kw))
		}
	}
	return found
}
