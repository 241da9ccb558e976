package forge

import (
	"fmt"
	"regexp"
	"strings"
)

// RepoRef identifies a repository on a forge.
type RepoRef struct {
	Host  string
	Owner string
	Name  string
}

// Exactly two URL shapes are recognized:
//
//	https://<host>/<owner>/<repo>[.git]
//	git@<host>:<owner>/<repo>[.git]
var (
	httpsURLPattern = regexp.MustCompile(`^https://([^/]+)/([^/]+)/([^/]+?)(\.git)?$`)
	sshURLPattern   = regexp.MustCompile(`^git@([^:]+):([^/]+)/([^/]+?)(\.git)?$`)
)

// ParseRepoURL extracts host, owner and repository name from a remote URL.
func ParseRepoURL(url string) (*RepoRef, error) {
	url = strings.TrimSpace(url)

	for _, pattern := range []*regexp.Regexp{httpsURLPattern, sshURLPattern} {
		if m := pattern.FindStringSubmatch(url); m != nil {
			return &RepoRef{
				Host:  m[1],
				Owner: m[2],
				Name:  m[3],
			}, nil
		}
	}

	return nil, fmt.Errorf("unsupported repository URL %q: expected https://host/owner/repo or git@host:owner/repo", url)
}
