package git

import (
	"fmt"
	"regexp"
	"strings"
)

// RemoteDetail describes a parsed remote URL.
type RemoteDetail struct {
	// Protocol is "https" or "ssh".
	Protocol string

	// Hostname is the git host (e.g. "github.com").
	Hostname string

	// Repository is the "owner/name" slug without the .git suffix.
	Repository string
}

var (
	httpsRemotePattern = regexp.MustCompile(`^https?://(?:.+@)?(.+?)/(.+?)(?:\.git)?/?$`)
	sshRemotePattern   = regexp.MustCompile(`^git@(.+?):(.+?)(?:\.git)?$`)
	gitRemotePattern   = regexp.MustCompile(`^git://(.+?)/(.+?)(?:\.git)?$`)
)

// ParseRemoteURL parses an https, ssh, or git protocol remote URL into
// its host and repository slug.
func ParseRemoteURL(url string) (*RemoteDetail, error) {
	url = strings.TrimSpace(url)

	if m := httpsRemotePattern.FindStringSubmatch(url); m != nil {
		return &RemoteDetail{Protocol: "https", Hostname: m[1], Repository: m[2]}, nil
	}
	if m := sshRemotePattern.FindStringSubmatch(url); m != nil {
		return &RemoteDetail{Protocol: "ssh", Hostname: m[1], Repository: m[2]}, nil
	}
	if m := gitRemotePattern.FindStringSubmatch(url); m != nil {
		return &RemoteDetail{Protocol: "git", Hostname: m[1], Repository: m[2]}, nil
	}
	return nil, fmt.Errorf("remote URL %q is not a valid git, ssh, or https URL", url)
}

// BuildRemoteURL constructs an https remote URL for a repository slug.
func BuildRemoteURL(hostname, repository string) string {
	return fmt.Sprintf("https://%s/%s", hostname, repository)
}

// BuildSSHRemoteURL constructs an ssh remote URL for a repository slug.
func BuildSSHRemoteURL(hostname, repository string) string {
	return fmt.Sprintf("git@%s:%s.git", hostname, repository)
}
