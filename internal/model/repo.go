package model

import (
	"strings"

	"github.com/maxbolgarin/errm"
)

// RepoRef identifies a remote repository
type RepoRef struct {
	Owner string
	Name  string
}

func (r RepoRef) String() string {
	return r.Owner + "/" + r.Name
}

// IsZero reports whether the reference is empty
func (r RepoRef) IsZero() bool {
	return r.Owner == "" || r.Name == ""
}

// ParseRepo parses "owner/name"
func ParseRepo(s string) (RepoRef, error) {
	parts := strings.Split(strings.Trim(strings.TrimSpace(s), "/"), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return RepoRef{}, errm.New("invalid repository %q, expected 'owner/repo'", s)
	}
	return RepoRef{Owner: parts[0], Name: parts[1]}, nil
}

// ParseProjectID maps a historical project identifier onto a repository.
//
//	org.apache:maven -> apache/maven
//	com.acme:tool    -> acme/tool
//	owner/name       -> owner/name
func ParseProjectID(projectID string) (RepoRef, bool) {
	projectID = strings.TrimSpace(projectID)
	switch {
	case strings.HasPrefix(projectID, "org.apache:"):
		name := strings.TrimPrefix(projectID, "org.apache:")
		return RepoRef{Owner: "apache", Name: name}, name != ""

	case strings.Contains(projectID, ":"):
		parts := strings.SplitN(projectID, ":", 3)
		owner := strings.TrimPrefix(strings.TrimPrefix(parts[0], "org."), "com.")
		ref := RepoRef{Owner: owner, Name: parts[1]}
		return ref, !ref.IsZero()

	case strings.Contains(projectID, "/"):
		ref, err := ParseRepo(projectID)
		return ref, err == nil
	}
	return RepoRef{}, false
}
