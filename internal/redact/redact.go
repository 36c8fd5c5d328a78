// Package redact scrubs credentials out of text before it is logged or
// returned to a caller.
package redact

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const minSecretLength = 8

type Redactor struct {
	rules []redactionRule
}

type redactionRule struct {
	re    *regexp.Regexp
	label string
}

// New builds a redactor with the built-in credential patterns plus one
// literal rule per configured secret. Secrets shorter than eight characters
// are ignored.
func New(secrets ...string) *Redactor {
	rules := []redactionRule{
		{re: regexp.MustCompile(`(?is)-----BEGIN [A-Z ]*PRIVATE KEY-----.*?-----END [A-Z ]*PRIVATE KEY-----`), label: "[REDACTED_PRIVATE_KEY]"},
		{re: regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9\-._~+/]+=*`), label: "Bearer [REDACTED]"},
		{re: regexp.MustCompile(`AKIA[0-9A-Z]{16}`), label: "[REDACTED_AWS_KEY]"},
		{re: regexp.MustCompile(`(?i)(api[_-]?key|token|secret|password)("?\s*[:=]\s*)("[^"]*"|'[^']*'|[^\s,}]+)`), label: "$1$2[REDACTED]"},
	}
	for _, secret := range secrets {
		secret = strings.TrimSpace(secret)
		if len(secret) < minSecretLength {
			continue
		}
		rules = append(rules, redactionRule{re: regexp.MustCompile(regexp.QuoteMeta(secret)), label: "[REDACTED_SECRET]"})
	}
	return &Redactor{rules: rules}
}

func (r *Redactor) Apply(input string) string {
	if r == nil || input == "" {
		return input
	}
	out := input
	for _, rule := range r.rules {
		out = rule.re.ReplaceAllString(out, rule.label)
	}
	return out
}

// Snippet redacts input and truncates the result to at most limit runes.
func (r *Redactor) Snippet(input string, limit int) string {
	out := strings.TrimSpace(r.Apply(input))
	if limit <= 0 || utf8.RuneCountInString(out) <= limit {
		return out
	}
	runes := []rune(out)
	return string(runes[:limit]) + "..."
}
