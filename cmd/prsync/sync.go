package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/prsync/prsync/pkg/config"
	"github.com/prsync/prsync/pkg/git"
	"github.com/prsync/prsync/pkg/github"
	"github.com/prsync/prsync/pkg/log"
	"github.com/prsync/prsync/pkg/workflow"
)

var syncFlags struct {
	token      string
	repository string
	path       string

	addPaths      []string
	commitMessage string
	committer     string
	author        string
	signoff       bool
	signCommits   bool

	branch       string
	branchSuffix string
	base         string
	deleteBranch bool
	pushToFork   string

	title               string
	body                string
	bodyPath            string
	labels              []string
	assignees           []string
	reviewers           []string
	teamReviewers       []string
	milestone           int
	draft               bool
	maintainerCanModify bool

	dryRun   bool
	logLevel string
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one synchronization pass",
	Long: `Capture working-tree changes, synchronize them onto the configured
branch, push, and create or update the pull request.

All flags can also be provided as INPUT_* environment variables
(e.g. INPUT_BRANCH, INPUT_COMMIT-MESSAGE) or via .prsync/config.yaml,
with flags taking precedence.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		inputs, err := buildInputs(cmd)
		if err != nil {
			return err
		}

		log.Init(inputs.LogLevel)
		defer log.Sync()

		gitClient := git.NewClient(inputs.Path)

		var ghClient *github.Client
		if !inputs.DryRun {
			opts := []github.ClientOption{
				github.WithRateLimitTracking(true),
				github.WithRetryConfig(github.DefaultRetryConfig()),
			}
			if apiURL := os.Getenv("GITHUB_API_URL"); apiURL != "" {
				opts = append(opts, github.WithBaseURL(apiURL))
			}
			ghClient = github.NewClient(inputs.Token, opts...)
		}

		outputs, err := workflow.New(inputs, gitClient, ghClient).Run(cmd.Context())
		if err != nil {
			return err
		}
		return outputs.Write(os.Stdout)
	},
}

// buildInputs layers flags over environment and project config
func buildInputs(cmd *cobra.Command) (*config.Inputs, error) {
	inputs, err := config.FromEnv(syncFlags.path)
	if err != nil {
		return nil, err
	}

	f := cmd.Flags()
	setString := func(name string, dst *string, v string) {
		if f.Changed(name) {
			*dst = v
		}
	}
	setBool := func(name string, dst *bool, v bool) {
		if f.Changed(name) {
			*dst = v
		}
	}
	setList := func(name string, dst *[]string, v []string) {
		if f.Changed(name) {
			*dst = v
		}
	}

	setString("token", &inputs.Token, syncFlags.token)
	setString("repository", &inputs.Repository, syncFlags.repository)
	setList("add-paths", &inputs.AddPaths, syncFlags.addPaths)
	setString("commit-message", &inputs.CommitMessage, syncFlags.commitMessage)
	setString("committer", &inputs.Committer, syncFlags.committer)
	setString("author", &inputs.Author, syncFlags.author)
	setBool("signoff", &inputs.Signoff, syncFlags.signoff)
	setBool("sign-commits", &inputs.SignCommits, syncFlags.signCommits)
	setString("branch", &inputs.Branch, syncFlags.branch)
	setString("branch-suffix", &inputs.BranchSuffix, syncFlags.branchSuffix)
	setString("base", &inputs.Base, syncFlags.base)
	setBool("delete-branch", &inputs.DeleteBranch, syncFlags.deleteBranch)
	setString("push-to-fork", &inputs.PushToFork, syncFlags.pushToFork)
	setString("title", &inputs.Title, syncFlags.title)
	setString("body", &inputs.Body, syncFlags.body)
	setString("body-path", &inputs.BodyPath, syncFlags.bodyPath)
	setList("labels", &inputs.Labels, syncFlags.labels)
	setList("assignees", &inputs.Assignees, syncFlags.assignees)
	setList("reviewers", &inputs.Reviewers, syncFlags.reviewers)
	if f.Changed("team-reviewers") {
		inputs.TeamReviewers = config.StripTeamOrgPrefix(syncFlags.teamReviewers)
	}
	if f.Changed("milestone") {
		inputs.Milestone = syncFlags.milestone
	}
	setBool("draft", &inputs.Draft, syncFlags.draft)
	setBool("maintainer-can-modify", &inputs.MaintainerCanModify, syncFlags.maintainerCanModify)
	setBool("dry-run", &inputs.DryRun, syncFlags.dryRun)
	setString("log-level", &inputs.LogLevel, syncFlags.logLevel)

	if inputs.DryRun {
		// No API calls will be made; a token is not required
		if inputs.Token == "" {
			inputs.Token = "unused"
		}
		if inputs.Repository == "" {
			inputs.Repository = "local/local"
		}
	}

	if err := inputs.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return inputs, nil
}

func init() {
	f := syncCmd.Flags()

	f.StringVar(&syncFlags.token, "token", "", "GitHub token (defaults to INPUT_TOKEN or GITHUB_TOKEN)")
	f.StringVar(&syncFlags.repository, "repository", "", "target repository in owner/repo form (defaults to GITHUB_REPOSITORY)")
	f.StringVar(&syncFlags.path, "path", ".", "repository working directory")

	f.StringSliceVar(&syncFlags.addPaths, "add-paths", nil, "pathspecs restricting which changes are captured")
	f.StringVar(&syncFlags.commitMessage, "commit-message", "", "commit message for the synchronized changes")
	f.StringVar(&syncFlags.committer, "committer", "", "committer identity as 'Name <email>'")
	f.StringVar(&syncFlags.author, "author", "", "author identity as 'Name <email>'")
	f.BoolVar(&syncFlags.signoff, "signoff", false, "add a Signed-off-by trailer to the commit")
	f.BoolVar(&syncFlags.signCommits, "sign-commits", false, "GPG-sign the commit")

	f.StringVar(&syncFlags.branch, "branch", "", "head branch name")
	f.StringVar(&syncFlags.branchSuffix, "branch-suffix", "", "branch suffix strategy: none, timestamp, random or short-commit-hash")
	f.StringVar(&syncFlags.base, "base", "", "base branch (defaults to the checked-out branch)")
	f.BoolVar(&syncFlags.deleteBranch, "delete-branch", false, "delete the branch when the change set is empty")
	f.StringVar(&syncFlags.pushToFork, "push-to-fork", "", "fork in owner/repo form to push the branch to")

	f.StringVar(&syncFlags.title, "title", "", "pull request title")
	f.StringVar(&syncFlags.body, "body", "", "pull request body")
	f.StringVar(&syncFlags.bodyPath, "body-path", "", "file containing the pull request body")
	f.StringSliceVar(&syncFlags.labels, "labels", nil, "labels to add to the pull request")
	f.StringSliceVar(&syncFlags.assignees, "assignees", nil, "assignees to add to the pull request")
	f.StringSliceVar(&syncFlags.reviewers, "reviewers", nil, "reviewers to request")
	f.StringSliceVar(&syncFlags.teamReviewers, "team-reviewers", nil, "team reviewers to request")
	f.IntVar(&syncFlags.milestone, "milestone", 0, "milestone number to assign")
	f.BoolVar(&syncFlags.draft, "draft", false, "create the pull request as a draft")
	f.BoolVar(&syncFlags.maintainerCanModify, "maintainer-can-modify", true, "allow maintainers to modify the pull request")

	f.BoolVar(&syncFlags.dryRun, "dry-run", false, "run the local engine without pushing or calling the API")
	f.StringVar(&syncFlags.logLevel, "log-level", "", "log level: debug, info, warn or error")

	rootCmd.AddCommand(syncCmd)
}
