package metadata

import (
	"strings"
)

// Collection name rules: 3-63 chars, [a-z0-9_.-], starts and ends with [a-z0-9].
const (
	minNameLength = 3
	maxNameLength = 63
)

// NameFromURL derives a repository name from the URL path tail.
// "https://github.com/acme/My-Repo.git" becomes "my-repo".
func NameFromURL(url string) string {
	tail := url
	if idx := strings.LastIndexAny(tail, "/:"); idx >= 0 {
		tail = tail[idx+1:]
	}
	tail = strings.TrimSuffix(tail, ".git")
	return SanitizeName(tail)
}

// SanitizeName converts an arbitrary string into a valid collection name.
// The transformation is idempotent: SanitizeName(SanitizeName(x)) == SanitizeName(x).
func SanitizeName(name string) string {
	lower := strings.ToLower(name)

	var b strings.Builder
	for _, r := range lower {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '.', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	s := b.String()

	// Must start and end with [a-z0-9]
	s = strings.TrimLeft(s, "_.-")
	s = strings.TrimRight(s, "_.-")

	if len(s) > maxNameLength {
		s = s[:maxNameLength]
		s = strings.TrimRight(s, "_.-")
	}

	// Minimum-pad to length 3. Padding with a stable suffix keeps the
	// result deterministic and inside the character set.
	for len(s) < minNameLength {
		s += "0"
	}

	return s
}
