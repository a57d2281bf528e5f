package fetch

import "strings"

// RedactURL hides the path and query of a URL for logging. Feed URLs often
// embed private tokens.
//
//	https://example.com/path/to/private.ics?token=abcd
//	-> https://example.com/...(redacted)
func RedactURL(u string) string {
	const redactedSuffix = "/...(redacted)"

	i := strings.Index(u, "://")
	if i == -1 {
		return "url://...(redacted)"
	}
	i += len("://")

	// Find next slash after host.
	j := strings.IndexAny(u[i:], "/?#")
	if j == -1 {
		return u + redactedSuffix
	}
	return u[:i+j] + redactedSuffix
}
