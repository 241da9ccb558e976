package metadata

import (
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

var validName = regexp.MustCompile(`^[a-z0-9][a-z0-9_.-]{1,61}[a-z0-9]$`)

func TestSanitizeName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"lowercase passthrough", "my-repo", "my-repo"},
		{"uppercase folded", "My-Repo", "my-repo"},
		{"invalid chars replaced", "repo name!", "repo-name"},
		{"leading punctuation trimmed", "--repo", "repo"},
		{"trailing punctuation trimmed", "repo..", "repo"},
		{"short names padded", "ab", "ab0"},
		{"single char padded", "x", "x00"},
		{"long names clamped", strings.Repeat("a", 100), strings.Repeat("a", 63)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := SanitizeName(tt.input)
			assert.Equal(t, tt.want, got)
			assert.Regexp(t, validName, got)
		})
	}
}

func TestSanitizeName_Idempotent(t *testing.T) {
	t.Parallel()

	inputs := []string{"My Repo!", "x", "--weird--", strings.Repeat("Z", 80), "a.b_c-d"}
	for _, input := range inputs {
		once := SanitizeName(input)
		twice := SanitizeName(once)
		assert.Equal(t, once, twice, "sanitize must be idempotent for %q", input)
	}
}

func TestNameFromURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		url  string
		want string
	}{
		{"https://github.com/acme/My-Repo.git", "my-repo"},
		{"https://github.com/acme/my-repo", "my-repo"},
		{"git@github.com:acme/Tools.git", "tools"},
		{"https://gitlab.com/group/ab", "ab0"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, NameFromURL(tt.url), "url %s", tt.url)
	}
}
