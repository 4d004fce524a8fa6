package github

import "time"

// PRInfo contains basic pull request information
type PRInfo struct {
	Number    int       `json:"number"`
	NodeID    string    `json:"node_id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	State     string    `json:"state"`
	URL       string    `json:"url"`
	BaseRef   string    `json:"base_ref"`
	HeadRef   string    `json:"head_ref"`
	BaseSHA   string    `json:"base_sha"`
	HeadSHA   string    `json:"head_sha"`
	Author    string    `json:"author"`
	Draft     bool      `json:"draft"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Created   bool      `json:"-"` // true when this call created the PR
}

// NewPullRequest contains information for creating a new pull request
type NewPullRequest struct {
	Title               string `json:"title"`
	Head                string `json:"head"`
	HeadRepo            string `json:"head_repo,omitempty"`
	Base                string `json:"base"`
	Body                string `json:"body"`
	Draft               bool   `json:"draft"`
	MaintainerCanModify bool   `json:"maintainer_can_modify"`
}

// PullRequestMetadata holds the assignable attributes applied after a
// pull request is created or updated
type PullRequestMetadata struct {
	Labels        []string `json:"labels,omitempty"`
	Assignees     []string `json:"assignees,omitempty"`
	Reviewers     []string `json:"reviewers,omitempty"`
	TeamReviewers []string `json:"team_reviewers,omitempty"`
	Milestone     int      `json:"milestone,omitempty"`
}

// RepoInfo contains basic repository information
type RepoInfo struct {
	FullName      string    `json:"full_name"`
	Owner         string    `json:"owner"`
	Name          string    `json:"name"`
	DefaultBranch string    `json:"default_branch"`
	Fork          bool      `json:"fork"`
	Parent        *RepoInfo `json:"parent,omitempty"`
}

// ActorInfo represents the authenticated GitHub user or app
type ActorInfo struct {
	Login   string `json:"login"`              // Username or app name
	Type    string `json:"type"`               // "User" or "App"
	Source  string `json:"source,omitempty"`   // "token" or "app"
	AppSlug string `json:"app_slug,omitempty"` // App slug if type is "App"
}
