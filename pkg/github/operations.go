package github

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/go-github/v68/github"
)

// GetRepository fetches repository information, including the parent
// repository when the target is a fork
func (c *Client) GetRepository(ctx context.Context, owner, repo string) (*RepoInfo, error) {
	r, _, err := c.GitHubClient().Repositories.Get(ctx, owner, repo)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch repository: %w", err)
	}
	return convertFromGitHubRepo(r), nil
}

// convertFromGitHubRepo converts a github.Repository to our RepoInfo type
func convertFromGitHubRepo(r *github.Repository) *RepoInfo {
	info := &RepoInfo{
		FullName:      r.GetFullName(),
		Name:          r.GetName(),
		DefaultBranch: r.GetDefaultBranch(),
		Fork:          r.GetFork(),
	}
	if owner := r.GetOwner(); owner != nil {
		info.Owner = owner.GetLogin()
	}
	if parent := r.GetParent(); parent != nil {
		info.Parent = convertFromGitHubRepo(parent)
	}
	return info
}

// FetchPRInfo fetches basic pull request information
func (c *Client) FetchPRInfo(ctx context.Context, owner, repo string, prNumber int) (*PRInfo, error) {
	pr, _, err := c.GitHubClient().PullRequests.Get(ctx, owner, repo, prNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch PR: %w", err)
	}

	return convertFromGitHubPR(pr), nil
}

// convertFromGitHubPR converts a github.PullRequest to our PRInfo type
func convertFromGitHubPR(pr *github.PullRequest) *PRInfo {
	var baseRef, headRef, baseSHA, headSHA string

	if base := pr.GetBase(); base != nil {
		baseRef = base.GetRef()
		baseSHA = base.GetSHA()
	}

	if head := pr.GetHead(); head != nil {
		headRef = head.GetRef()
		headSHA = head.GetSHA()
	}

	author := ""
	if user := pr.GetUser(); user != nil {
		author = user.GetLogin()
	}

	return &PRInfo{
		Number:    pr.GetNumber(),
		NodeID:    pr.GetNodeID(),
		Title:     pr.GetTitle(),
		Body:      pr.GetBody(),
		State:     pr.GetState(),
		URL:       pr.GetHTMLURL(),
		BaseRef:   baseRef,
		HeadRef:   headRef,
		BaseSHA:   baseSHA,
		HeadSHA:   headSHA,
		Author:    author,
		Draft:     pr.GetDraft(),
		CreatedAt: pr.GetCreatedAt().Time,
		UpdatedAt: pr.GetUpdatedAt().Time,
	}
}

// FindPullRequest looks up the open pull request for a head branch and
// base. The head filter is "owner:branch" where owner is the head
// repository owner, so fork-sourced pull requests resolve correctly.
// Returns nil without error when no open pull request matches.
func (c *Client) FindPullRequest(ctx context.Context, owner, repo, headOwner, headBranch, base string) (*PRInfo, error) {
	opts := &github.PullRequestListOptions{
		State:       "open",
		Head:        headOwner + ":" + headBranch,
		Base:        base,
		ListOptions: github.ListOptions{PerPage: 10},
	}

	prs, _, err := c.GitHubClient().PullRequests.List(ctx, owner, repo, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list pull requests: %w", err)
	}
	if len(prs) == 0 {
		return nil, nil
	}
	return convertFromGitHubPR(prs[0]), nil
}

// CreatePullRequest creates a new pull request
func (c *Client) CreatePullRequest(ctx context.Context, owner, repo string, newPR *NewPullRequest) (*PRInfo, error) {
	head := newPR.Head
	if newPR.HeadRepo != "" {
		// Cross-repository head from a fork
		if headOwner, _, ok := strings.Cut(newPR.HeadRepo, "/"); ok {
			head = headOwner + ":" + newPR.Head
		}
	}

	pr, _, err := c.GitHubClient().PullRequests.Create(ctx, owner, repo, &github.NewPullRequest{
		Title:               &newPR.Title,
		Head:                &head,
		Base:                &newPR.Base,
		Body:                &newPR.Body,
		Draft:               github.Ptr(newPR.Draft),
		MaintainerCanModify: github.Ptr(newPR.MaintainerCanModify),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create pull request: %w", err)
	}

	info := convertFromGitHubPR(pr)
	info.Created = true
	return info, nil
}

// UpdatePullRequest updates the title and body of an existing pull request
func (c *Client) UpdatePullRequest(ctx context.Context, owner, repo string, prNumber int, title, body string) (*PRInfo, error) {
	pr, _, err := c.GitHubClient().PullRequests.Edit(ctx, owner, repo, prNumber, &github.PullRequest{
		Title: &title,
		Body:  &body,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update pull request: %w", err)
	}
	return convertFromGitHubPR(pr), nil
}

// CreateOrUpdatePullRequest creates a pull request for the head branch,
// or updates the existing open one when the API reports a pull request
// already exists for the head/base pair
func (c *Client) CreateOrUpdatePullRequest(ctx context.Context, owner, repo string, newPR *NewPullRequest) (*PRInfo, error) {
	pr, err := c.CreatePullRequest(ctx, owner, repo, newPR)
	if err == nil {
		return pr, nil
	}
	if !IsPullRequestExistsError(err) {
		return nil, err
	}

	headOwner := owner
	if newPR.HeadRepo != "" {
		if o, _, ok := strings.Cut(newPR.HeadRepo, "/"); ok {
			headOwner = o
		}
	}
	existing, findErr := c.FindPullRequest(ctx, owner, repo, headOwner, newPR.Head, newPR.Base)
	if findErr != nil {
		return nil, findErr
	}
	if existing == nil {
		return nil, err
	}
	return c.UpdatePullRequest(ctx, owner, repo, existing.Number, newPR.Title, newPR.Body)
}

// ClosePullRequest closes an open pull request
func (c *Client) ClosePullRequest(ctx context.Context, owner, repo string, prNumber int) error {
	state := "closed"
	_, _, err := c.GitHubClient().PullRequests.Edit(ctx, owner, repo, prNumber, &github.PullRequest{
		State: &state,
	})
	if err != nil {
		return fmt.Errorf("failed to close pull request: %w", err)
	}
	return nil
}

// DeleteBranchRef deletes a branch ref from the repository. A missing
// ref is not an error since the branch may already be gone.
func (c *Client) DeleteBranchRef(ctx context.Context, owner, repo, branch string) error {
	_, err := c.GitHubClient().Git.DeleteRef(ctx, owner, repo, "heads/"+branch)
	if err != nil {
		var ghErr *github.ErrorResponse
		if errors.As(err, &ghErr) && ghErr.Response != nil && ghErr.Response.StatusCode == 404 {
			return nil
		}
		return fmt.Errorf("failed to delete branch ref: %w", err)
	}
	return nil
}

// AddLabels adds labels to a pull request
func (c *Client) AddLabels(ctx context.Context, owner, repo string, prNumber int, labels []string) error {
	if len(labels) == 0 {
		return nil
	}
	_, _, err := c.GitHubClient().Issues.AddLabelsToIssue(ctx, owner, repo, prNumber, labels)
	if err != nil {
		return fmt.Errorf("failed to add labels: %w", err)
	}
	return nil
}

// AddAssignees adds assignees to a pull request
func (c *Client) AddAssignees(ctx context.Context, owner, repo string, prNumber int, assignees []string) error {
	if len(assignees) == 0 {
		return nil
	}
	_, _, err := c.GitHubClient().Issues.AddAssignees(ctx, owner, repo, prNumber, assignees)
	if err != nil {
		return fmt.Errorf("failed to add assignees: %w", err)
	}
	return nil
}

// RequestReviewers requests reviews from users and teams
func (c *Client) RequestReviewers(ctx context.Context, owner, repo string, prNumber int, reviewers, teamReviewers []string) error {
	if len(reviewers) == 0 && len(teamReviewers) == 0 {
		return nil
	}
	_, _, err := c.GitHubClient().PullRequests.RequestReviewers(ctx, owner, repo, prNumber, github.ReviewersRequest{
		Reviewers:     reviewers,
		TeamReviewers: teamReviewers,
	})
	if err != nil {
		return fmt.Errorf("failed to request reviewers: %w", err)
	}
	return nil
}

// SetMilestone assigns a milestone to a pull request
func (c *Client) SetMilestone(ctx context.Context, owner, repo string, prNumber, milestone int) error {
	if milestone == 0 {
		return nil
	}
	_, _, err := c.GitHubClient().Issues.Edit(ctx, owner, repo, prNumber, &github.IssueRequest{
		Milestone: &milestone,
	})
	if err != nil {
		return fmt.Errorf("failed to set milestone: %w", err)
	}
	return nil
}

// ApplyMetadata applies labels, assignees, reviewers and milestone to a
// pull request. Attributes are applied independently so a failure on
// one does not block the rest.
func (c *Client) ApplyMetadata(ctx context.Context, owner, repo string, prNumber int, meta *PullRequestMetadata) []error {
	var errs []error
	if err := c.AddLabels(ctx, owner, repo, prNumber, meta.Labels); err != nil {
		errs = append(errs, err)
	}
	if err := c.AddAssignees(ctx, owner, repo, prNumber, meta.Assignees); err != nil {
		errs = append(errs, err)
	}
	if err := c.RequestReviewers(ctx, owner, repo, prNumber, meta.Reviewers, meta.TeamReviewers); err != nil {
		errs = append(errs, err)
	}
	if err := c.SetMilestone(ctx, owner, repo, prNumber, meta.Milestone); err != nil {
		errs = append(errs, err)
	}
	return errs
}

// ConvertToDraft converts an open pull request back to draft state.
// The REST API cannot flip an open pull request to draft, only the
// GraphQL mutation can.
func (c *Client) ConvertToDraft(ctx context.Context, nodeID string) error {
	payload := map[string]any{
		"query": `mutation($id: ID!) { convertPullRequestToDraft(input: {pullRequestId: $id}) { pullRequest { isDraft } } }`,
		"variables": map[string]string{
			"id": nodeID,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode graphql request: %w", err)
	}

	req, err := c.NewRequest(ctx, "POST", c.GraphQLURL(), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	var result struct {
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	resp, err := c.Do(req, &result)
	if err != nil {
		return fmt.Errorf("failed to convert pull request to draft: %w", err)
	}
	defer resp.Close()

	if len(result.Errors) > 0 {
		return fmt.Errorf("failed to convert pull request to draft: %s", result.Errors[0].Message)
	}
	return nil
}

// CommitVerified reports whether a commit carries a verified signature
func (c *Client) CommitVerified(ctx context.Context, owner, repo, sha string) (bool, error) {
	commit, _, err := c.GitHubClient().Repositories.GetCommit(ctx, owner, repo, sha, nil)
	if err != nil {
		return false, fmt.Errorf("failed to fetch commit: %w", err)
	}
	if inner := commit.GetCommit(); inner != nil {
		if v := inner.GetVerification(); v != nil {
			return v.GetVerified(), nil
		}
	}
	return false, nil
}

// GetCurrentUser retrieves the authenticated user's identity information
// Returns ActorInfo with login and type (User or App)
func (c *Client) GetCurrentUser(ctx context.Context) (*ActorInfo, error) {
	user, _, err := c.GitHubClient().Users.Get(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("failed to get current user: %w", err)
	}

	info := &ActorInfo{
		Login:  user.GetLogin(),
		Type:   user.GetType(),
		Source: "token",
	}

	// Bot usernames end with "[bot]", extract the app slug
	// e.g., "github-actions[bot]" -> "github-actions"
	if user.GetType() == "Bot" && info.Login != "" {
		if idx := strings.Index(info.Login, "[bot]"); idx > 0 {
			info.AppSlug = info.Login[:idx]
			info.Type = "App"
		}
	}

	return info, nil
}
