package logger

import "strings"

// RedactEmail masks the local part of an address for safe logging.
// "john.doe@example.com" → "jo***@example.com"; local parts of two characters
// or fewer are fully masked. Anything that is not a single-@ address becomes "***@***".
func RedactEmail(email string) string {
	name, domain, ok := strings.Cut(email, "@")
	if !ok || domain == "" || strings.Contains(domain, "@") {
		return "***@***"
	}
	if len(name) > 2 {
		return name[:2] + "***@" + domain
	}
	return "***@" + domain
}
