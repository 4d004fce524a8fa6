// Package workflow sequences a full synchronization run: git state
// guarding, change capture, branch synchronization, push, the pull
// request call, metadata application and workflow outputs.
package workflow

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/prsync/prsync/pkg/config"
	"github.com/prsync/prsync/pkg/git"
	"github.com/prsync/prsync/pkg/gitconfig"
	"github.com/prsync/prsync/pkg/github"
	"github.com/prsync/prsync/pkg/log"
	"github.com/prsync/prsync/pkg/sync"
)

// DefaultServerURL is the hosting service URL when GITHUB_SERVER_URL
// is not set
const DefaultServerURL = "https://github.com"

// forkRemoteName is the remote installed for push-to-fork runs
const forkRemoteName = "fork"

// Orchestrator runs the end-to-end synchronization workflow
type Orchestrator struct {
	inputs *config.Inputs
	git    *git.Client
	github *github.Client
}

// New creates an orchestrator. The GitHub client may be nil for
// dry-run invocations, which never touch the API.
func New(inputs *config.Inputs, gitClient *git.Client, ghClient *github.Client) *Orchestrator {
	return &Orchestrator{inputs: inputs, git: gitClient, github: ghClient}
}

// ServerURL returns the hosting service URL for the run
func ServerURL() string {
	if u := os.Getenv("GITHUB_SERVER_URL"); u != "" {
		return u
	}
	return DefaultServerURL
}

// Run executes the workflow and returns the outputs to publish.
// Git configuration mutated during the run is restored on every exit
// path; a restore failure is logged but never masks the primary error.
func (o *Orchestrator) Run(ctx context.Context) (*Outputs, error) {
	in := o.inputs

	if !o.git.IsRepo(ctx) {
		return nil, fmt.Errorf("%s is not a git repository", o.git.Dir)
	}

	branch, err := o.applySuffix(ctx)
	if err != nil {
		return nil, err
	}

	guard := gitconfig.NewGuard(o.git)
	defer func() {
		if err := guard.Restore(ctx); err != nil {
			log.Warn("failed to restore git configuration", "error", err)
		}
	}()
	if err := o.configureGit(ctx, guard); err != nil {
		return nil, err
	}

	base, err := sync.ResolveBase(ctx, o.git, in.Base)
	if err != nil {
		return nil, err
	}
	if branch == base.Name {
		return nil, fmt.Errorf("branch %q must differ from base %q", branch, base.Name)
	}

	cs, err := o.buildChangeSet(ctx)
	if err != nil {
		return nil, err
	}

	synchronizer := sync.NewSynchronizer(o.git, "origin")
	synchronizer.DeleteBranch = in.DeleteBranch
	result, err := synchronizer.Sync(ctx, cs, base, branch)
	if err != nil {
		return nil, err
	}

	outputs := &Outputs{
		Operation: string(result.Outcome),
		HeadSHA:   result.HeadSHA,
		Branch:    result.Branch,
	}

	if in.DryRun {
		o.reportDryRun(result)
		return outputs, nil
	}

	headRepo, err := o.push(ctx, result)
	if err != nil {
		return nil, err
	}

	if err := o.finish(ctx, result, base, headRepo, outputs); err != nil {
		return nil, err
	}
	return outputs, nil
}

// applySuffix resolves the configured suffix strategy against the
// branch input
func (o *Orchestrator) applySuffix(ctx context.Context) (string, error) {
	strategy := sync.SuffixStrategy(o.inputs.BranchSuffix)
	if o.inputs.BranchSuffix == "none" {
		strategy = sync.SuffixNone
	}

	branch, err := sync.Suffixer{Strategy: strategy}.Apply(ctx, o.git, o.inputs.Branch)
	if err != nil {
		return "", err
	}
	if branch != o.inputs.Branch {
		log.Info("applied branch suffix", "branch", branch)
	}
	return branch, nil
}

// configureGit snapshots and sets the git configuration the run needs:
// commit identity, token auth for the hosting service, and the
// workspace as a safe directory
func (o *Orchestrator) configureGit(ctx context.Context, guard *gitconfig.Guard) error {
	committer, err := sync.ResolveIdentity(o.inputs.Committer)
	if err != nil {
		return err
	}
	if err := guard.ConfigureIdentity(ctx, committer); err != nil {
		return err
	}
	if err := guard.ConfigureSafeDirectory(ctx, o.git.Dir); err != nil {
		return err
	}
	if o.inputs.Token != "" && !o.inputs.DryRun {
		if err := guard.ConfigureAuth(ctx, ServerURL(), o.inputs.Token); err != nil {
			return err
		}
	}
	return nil
}

// buildChangeSet resolves identities and captures the working tree
func (o *Orchestrator) buildChangeSet(ctx context.Context) (*sync.ChangeSet, error) {
	author, err := sync.ResolveIdentity(o.inputs.Author)
	if err != nil {
		return nil, fmt.Errorf("invalid author: %w", err)
	}
	committer, err := sync.ResolveIdentity(o.inputs.Committer)
	if err != nil {
		return nil, fmt.Errorf("invalid committer: %w", err)
	}

	cs := &sync.ChangeSet{
		Paths:     o.inputs.AddPaths,
		Message:   o.inputs.CommitMessage,
		Author:    author,
		Committer: committer,
		Signoff:   o.inputs.Signoff,
		Sign:      o.inputs.SignCommits,
	}
	if err := sync.Capture(ctx, o.git, cs); err != nil {
		return nil, err
	}
	if cs.Empty {
		log.Info("no changes to synchronize")
	}
	return cs, nil
}

// push publishes the branch, via a fork remote when configured, and
// returns the head repository full name for the pull request call
func (o *Orchestrator) push(ctx context.Context, result *sync.Result) (string, error) {
	submitter := sync.NewSubmitter(o.git, "origin")
	headRepo := o.inputs.Repository

	if o.inputs.PushToFork != "" && result.NeedsPush() {
		fork, err := o.verifyFork(ctx)
		if err != nil {
			return "", err
		}
		host := strings.TrimPrefix(strings.TrimPrefix(ServerURL(), "https://"), "http://")
		if err := submitter.ConfigureForkRemote(ctx, forkRemoteName, git.BuildRemoteURL(host, fork.FullName)); err != nil {
			return "", err
		}
		headRepo = fork.FullName
	}

	remoteSHA, err := submitter.Push(ctx, result)
	if err != nil {
		return "", err
	}
	if remoteSHA != "" {
		result.HeadSHA = remoteSHA
	}
	return headRepo, nil
}

// verifyFork checks via the API that the configured fork's parent is
// the target repository
func (o *Orchestrator) verifyFork(ctx context.Context) (*github.RepoInfo, error) {
	owner, repo, ok := strings.Cut(o.inputs.PushToFork, "/")
	if !ok {
		return nil, fmt.Errorf("push-to-fork must be in owner/repo form, got %q", o.inputs.PushToFork)
	}

	fork, err := o.github.GetRepository(ctx, owner, repo)
	if err != nil {
		return nil, fmt.Errorf("failed to look up fork %s: %w", o.inputs.PushToFork, err)
	}
	if fork.Parent == nil || fork.Parent.FullName != o.inputs.Repository {
		return nil, fmt.Errorf("%s is not a fork of %s", o.inputs.PushToFork, o.inputs.Repository)
	}
	return fork, nil
}

// finish performs the pull request phase: create-or-update when the
// branch differs from base, close when the run retired the branch
func (o *Orchestrator) finish(ctx context.Context, result *sync.Result, base sync.BaseRef, headRepo string, outputs *Outputs) error {
	in := o.inputs
	owner, repo := in.Owner(), in.Repo()

	switch {
	case result.DiffWithBase:
		newPR := &github.NewPullRequest{
			Title:               in.Title,
			Head:                result.Branch,
			Base:                base.Name,
			Body:                in.Body,
			Draft:               in.Draft,
			MaintainerCanModify: in.MaintainerCanModify,
		}
		if headRepo != in.Repository {
			newPR.HeadRepo = headRepo
		}

		pr, err := o.github.CreateOrUpdatePullRequest(ctx, owner, repo, newPR)
		if err != nil {
			return err
		}
		log.Info("pull request ready", "number", pr.Number, "url", pr.URL, "created", pr.Created)

		outputs.PullRequestNumber = pr.Number
		outputs.PullRequestURL = pr.URL
		if pr.Created {
			outputs.Operation = "created"
		} else {
			outputs.Operation = "updated"
		}

		if in.Draft && !pr.Created && !pr.Draft && pr.NodeID != "" {
			if err := o.github.ConvertToDraft(ctx, pr.NodeID); err != nil {
				log.Warn("failed to convert pull request to draft", "number", pr.Number, "error", err)
			}
		}

		meta := &github.PullRequestMetadata{
			Labels:        in.Labels,
			Assignees:     in.Assignees,
			Reviewers:     in.Reviewers,
			TeamReviewers: in.TeamReviewers,
			Milestone:     in.Milestone,
		}
		for _, err := range o.github.ApplyMetadata(ctx, owner, repo, pr.Number, meta) {
			log.Warn("failed to apply pull request metadata", "number", pr.Number, "error", err)
		}

	case result.Outcome == sync.OutcomeClosed:
		if err := o.github.DeleteBranchRef(ctx, owner, repo, result.Branch); err != nil {
			return err
		}
		log.Info("deleted branch, closing its pull request", "branch", result.Branch)
		outputs.Operation = "closed"

	default:
		log.Info("branch does not differ from base, no pull request needed", "branch", result.Branch)
	}

	if result.HeadSHA != "" && result.NeedsPush() {
		verified, err := o.github.CommitVerified(ctx, owner, repo, result.HeadSHA)
		if err != nil {
			log.Warn("failed to check commit verification", "sha", result.HeadSHA, "error", err)
		} else {
			outputs.CommitsVerified = verified
		}
	}
	outputs.HeadSHA = result.HeadSHA

	return nil
}

// reportDryRun logs what a real run would have done
func (o *Orchestrator) reportDryRun(result *sync.Result) {
	log.Info("dry-run: skipping push and API calls",
		"outcome", string(result.Outcome),
		"branch", result.Branch,
		"head", result.HeadSHA,
		"diff_with_base", result.DiffWithBase,
		"rewritten_history", result.RewrittenHistory,
	)
}
