// Package git provides the version-control primitive layer for prsync.
// It wraps system git commands, providing a consistent API for the
// branch synchronization engine and its surrounding components. Every
// call is blocking and scoped to a single working tree; callers must
// not issue concurrent calls against the same repository.
package git

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Client represents a git client for operations on a repository.
type Client struct {
	// Dir is the working directory of the git repository.
	Dir string

	// Options provides optional git behavior configuration.
	Options *ClientOptions
}

// ClientOptions holds configuration for git operations.
type ClientOptions struct {
	// Quiet suppresses output from git commands that support --quiet.
	Quiet bool
}

// DefaultClientOptions returns the default client options.
func DefaultClientOptions() *ClientOptions {
	return &ClientOptions{Quiet: true}
}

// NewClient creates a new git client for the given directory.
func NewClient(dir string) *Client {
	return &Client{
		Dir:     dir,
		Options: DefaultClientOptions(),
	}
}

// Identity is a git author or committer identity.
type Identity struct {
	Name  string
	Email string
}

// String formats the identity in the "Name <email>" form git expects.
func (i Identity) String() string {
	return fmt.Sprintf("%s <%s>", i.Name, i.Email)
}

// execCommand executes a git command with combined output capture.
func (c *Client) execCommand(ctx context.Context, args ...string) (string, error) {
	return c.execCommandEnv(ctx, nil, args...)
}

// execCommandEnv executes a git command with extra environment
// variables layered over the process environment.
func (c *Client) execCommandEnv(ctx context.Context, env map[string]string, args ...string) (string, error) {
	cmdArgs := []string{"-C", c.Dir}
	cmdArgs = append(cmdArgs, args...)

	cmd := exec.CommandContext(ctx, "git", cmdArgs...)
	if len(env) > 0 {
		cmd.Env = os.Environ()
		for k, v := range env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
	}

	output, err := cmd.CombinedOutput()
	if err != nil {
		code := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		}
		return string(output), &CommandError{
			Args:     args,
			ExitCode: code,
			Output:   string(output),
		}
	}

	return string(output), nil
}

// ExecCommand runs an arbitrary git command against the client's
// repository. Intended for callers needing primitives the typed
// methods do not cover.
func (c *Client) ExecCommand(ctx context.Context, args ...string) (string, error) {
	return c.execCommand(ctx, args...)
}

// quietFlag returns the --quiet flag if enabled.
func (c *Client) quietFlag() string {
	if c.Options != nil && c.Options.Quiet {
		return "--quiet"
	}
	return ""
}

// IsRepo checks if the directory is a git repository.
func (c *Client) IsRepo(ctx context.Context) bool {
	_, err := c.execCommand(ctx, "rev-parse", "--git-dir")
	return err == nil
}

// CurrentRef returns the current checkout: the short branch name when a
// branch is checked out, or the HEAD commit SHA with detached=true.
func (c *Client) CurrentRef(ctx context.Context) (ref string, detached bool, err error) {
	out, err := c.execCommand(ctx, "symbolic-ref", "--short", "HEAD")
	if err == nil {
		return strings.TrimSpace(out), false, nil
	}

	out, err = c.execCommand(ctx, "rev-parse", "HEAD")
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve HEAD: %w", err)
	}
	return strings.TrimSpace(out), true, nil
}

// RevParse resolves a ref to its full SHA.
func (c *Client) RevParse(ctx context.Context, ref string) (string, error) {
	out, err := c.execCommand(ctx, "rev-parse", ref)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", ref, err)
	}
	return strings.TrimSpace(out), nil
}

// RevParseShort resolves a ref to its abbreviated SHA.
func (c *Client) RevParseShort(ctx context.Context, ref string) (string, error) {
	out, err := c.execCommand(ctx, "rev-parse", "--short", ref)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", ref, err)
	}
	return strings.TrimSpace(out), nil
}

// TreeHash returns the tree object hash for a ref. Two commits with the
// same tree hash have byte-identical content regardless of commit
// metadata.
func (c *Client) TreeHash(ctx context.Context, ref string) (string, error) {
	return c.RevParse(ctx, ref+"^{tree}")
}

// RevList lists commit SHAs matching the given range expression
// (e.g. "main..feature"). Extra options such as "--reverse" may be
// passed. A range that resolves to nothing returns an empty slice.
func (c *Client) RevList(ctx context.Context, expression string, options ...string) ([]string, error) {
	args := append([]string{"rev-list"}, options...)
	args = append(args, expression)

	out, err := c.execCommand(ctx, args...)
	if err != nil {
		return nil, fmt.Errorf("rev-list %s failed: %w", expression, err)
	}

	var shas []string
	for _, line := range strings.Split(out, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			shas = append(shas, line)
		}
	}
	return shas, nil
}

// BranchExistsLocal reports whether a local branch exists.
func (c *Client) BranchExistsLocal(ctx context.Context, name string) bool {
	_, err := c.execCommand(ctx, "rev-parse", "--verify", "refs/heads/"+name)
	return err == nil
}

// BranchExistsRemote reports whether a branch exists on the remote,
// by querying the remote's advertised refs.
func (c *Client) BranchExistsRemote(ctx context.Context, remote, name string) (bool, error) {
	sha, err := c.RemoteHeadSHA(ctx, remote, name)
	if err != nil {
		return false, err
	}
	return sha != "", nil
}

// RemoteHeadSHA returns the remote tip SHA of a branch, or empty string
// when the branch does not exist on the remote.
func (c *Client) RemoteHeadSHA(ctx context.Context, remote, branch string) (string, error) {
	out, err := c.execCommand(ctx, "ls-remote", "--heads", remote, "refs/heads/"+branch)
	if err != nil {
		return "", fmt.Errorf("ls-remote %s failed: %w", remote, err)
	}

	fields := strings.Fields(out)
	if len(fields) == 0 {
		return "", nil
	}
	return fields[0], nil
}

// Fetch fetches the given refspecs from a remote. Options such as
// "--force" or "--depth=1" may be passed.
func (c *Client) Fetch(ctx context.Context, remote string, refspecs []string, options ...string) error {
	args := []string{"fetch"}
	args = append(args, options...)
	args = append(args, remote)
	args = append(args, refspecs...)

	if _, err := c.execCommand(ctx, args...); err != nil {
		return fmt.Errorf("fetch from %s failed: %w", remote, err)
	}
	return nil
}

// Checkout checks out an existing branch, tag, or commit.
func (c *Client) Checkout(ctx context.Context, ref string) error {
	args := []string{"checkout"}
	if q := c.quietFlag(); q != "" {
		args = append(args, q)
	}
	args = append(args, ref)

	_, err := c.execCommand(ctx, args...)
	return err
}

// CheckoutBranch creates or resets a branch at the given start point
// and checks it out (git checkout -B).
func (c *Client) CheckoutBranch(ctx context.Context, name, startPoint string) error {
	args := []string{"checkout"}
	if q := c.quietFlag(); q != "" {
		args = append(args, q)
	}
	args = append(args, "-B", name)
	if startPoint != "" {
		args = append(args, startPoint)
	}

	_, err := c.execCommand(ctx, args...)
	return err
}

// CheckoutDetach checks out the given ref as a detached HEAD.
func (c *Client) CheckoutDetach(ctx context.Context, ref string) error {
	args := []string{"checkout"}
	if q := c.quietFlag(); q != "" {
		args = append(args, q)
	}
	args = append(args, "--detach", ref)

	_, err := c.execCommand(ctx, args...)
	return err
}

// CreateBranch creates a branch at the given start point without
// checking it out.
func (c *Client) CreateBranch(ctx context.Context, name, startPoint string) error {
	args := []string{"branch", name}
	if startPoint != "" {
		args = append(args, startPoint)
	}
	_, err := c.execCommand(ctx, args...)
	return err
}

// DeleteBranch deletes a local branch.
func (c *Client) DeleteBranch(ctx context.Context, name string, force bool) error {
	flag := "-d"
	if force {
		flag = "-D"
	}
	_, err := c.execCommand(ctx, "branch", flag, name)
	return err
}

// ResetHard resets the current branch and working tree to the given ref.
func (c *Client) ResetHard(ctx context.Context, ref string) error {
	_, err := c.execCommand(ctx, "reset", "--hard", ref)
	return err
}

// IsDirty reports whether the working tree differs from HEAD,
// including untracked files. When pathspecs are given only those paths
// are considered.
func (c *Client) IsDirty(ctx context.Context, pathspecs []string) (bool, error) {
	args := []string{"status", "--porcelain", "--untracked-files=normal"}
	if len(pathspecs) > 0 {
		args = append(args, "--")
		args = append(args, pathspecs...)
	}

	out, err := c.execCommand(ctx, args...)
	if err != nil {
		return false, fmt.Errorf("status failed: %w", err)
	}
	return strings.TrimSpace(out) != "", nil
}

// ChangedPaths lists the paths reported dirty by git status, scoped to
// the given pathspecs when present. Rename entries report the new name.
func (c *Client) ChangedPaths(ctx context.Context, pathspecs []string) ([]string, error) {
	args := []string{"status", "--porcelain", "--untracked-files=normal"}
	if len(pathspecs) > 0 {
		args = append(args, "--")
		args = append(args, pathspecs...)
	}

	out, err := c.execCommand(ctx, args...)
	if err != nil {
		return nil, fmt.Errorf("status failed: %w", err)
	}

	var paths []string
	for _, line := range strings.Split(out, "\n") {
		if len(line) < 4 {
			continue
		}
		p := line[3:]
		if idx := strings.Index(p, " -> "); idx >= 0 {
			p = p[idx+4:]
		}
		paths = append(paths, strings.Trim(p, `"`))
	}
	return paths, nil
}

// HasDiff reports whether two refs differ in content.
func (c *Client) HasDiff(ctx context.Context, ref1, ref2 string) (bool, error) {
	_, err := c.execCommand(ctx, "diff", "--quiet", ref1, ref2)
	if err == nil {
		return false, nil
	}

	var cmdErr *CommandError
	if errors.As(err, &cmdErr) && cmdErr.ExitCode == 1 {
		return true, nil
	}
	return false, fmt.Errorf("diff %s %s failed: %w", ref1, ref2, err)
}

// Add stages the given pathspecs. A pathspec matching nothing is
// tolerated so scoped captures can name paths that may not exist.
func (c *Client) Add(ctx context.Context, pathspecs []string) error {
	args := []string{"add", "--no-ignore-removal", "--"}
	args = append(args, pathspecs...)

	if _, err := c.execCommand(ctx, args...); err != nil {
		var cmdErr *CommandError
		if errors.As(err, &cmdErr) && cmdErr.OutputContains("did not match any files") {
			return nil
		}
		return fmt.Errorf("add failed: %w", err)
	}
	return nil
}

// AddAll stages all tracked and untracked changes.
func (c *Client) AddAll(ctx context.Context) error {
	if _, err := c.execCommand(ctx, "add", "-A"); err != nil {
		return fmt.Errorf("add -A failed: %w", err)
	}
	return nil
}

// CommitOptions specifies options for creating a commit from the
// staged index.
type CommitOptions struct {
	// Message is the commit message.
	Message string

	// Author is the commit author identity.
	Author Identity

	// Committer is the commit committer identity.
	Committer Identity

	// Signoff adds a Signed-off-by trailer.
	Signoff bool

	// Sign GPG-signs the commit.
	Sign bool

	// AllowEmpty allows creating a commit with no changes.
	AllowEmpty bool
}

// Commit creates a commit from the staged index and returns its SHA.
// Identities are passed through the environment so no repository
// configuration is mutated.
func (c *Client) Commit(ctx context.Context, opts CommitOptions) (string, error) {
	args := []string{"commit", "-m", opts.Message}
	if opts.Signoff {
		args = append(args, "--signoff")
	}
	if opts.Sign {
		args = append(args, "--gpg-sign")
	} else {
		args = append(args, "--no-gpg-sign")
	}
	if opts.AllowEmpty {
		args = append(args, "--allow-empty")
	}

	env := map[string]string{
		"GIT_AUTHOR_NAME":     opts.Author.Name,
		"GIT_AUTHOR_EMAIL":    opts.Author.Email,
		"GIT_COMMITTER_NAME":  opts.Committer.Name,
		"GIT_COMMITTER_EMAIL": opts.Committer.Email,
	}

	if _, err := c.execCommandEnv(ctx, env, args...); err != nil {
		return "", fmt.Errorf("commit failed: %w", err)
	}

	return c.RevParse(ctx, "HEAD")
}

// RebaseResult describes the outcome of a rebase attempt.
type RebaseResult int

const (
	// RebaseOK means the rebase completed cleanly.
	RebaseOK RebaseResult = iota

	// RebaseConflict means the rebase stopped on conflicts and is
	// still in progress; callers must AbortRebase or resolve.
	RebaseConflict
)

// Rebase rebases the current branch onto the given ref. A conflicted
// rebase is reported as RebaseConflict, not an error; any other
// failure is returned as an error.
func (c *Client) Rebase(ctx context.Context, onto string) (RebaseResult, error) {
	_, err := c.execCommand(ctx, "rebase", onto)
	if err == nil {
		return RebaseOK, nil
	}

	var cmdErr *CommandError
	if errors.As(err, &cmdErr) && isConflictOutput(cmdErr.Output) {
		return RebaseConflict, nil
	}
	return RebaseOK, fmt.Errorf("rebase onto %s failed: %w", onto, err)
}

// AbortRebase aborts an in-progress rebase, restoring the pre-rebase
// branch state.
func (c *Client) AbortRebase(ctx context.Context) error {
	_, err := c.execCommand(ctx, "rebase", "--abort")
	return err
}

// CherryPickResult describes the outcome of a cherry-pick attempt.
type CherryPickResult int

const (
	// CherryPickOK means the commit applied cleanly.
	CherryPickOK CherryPickResult = iota

	// CherryPickConflict means the pick stopped on conflicts and is
	// still in progress; callers must AbortCherryPick or resolve.
	CherryPickConflict

	// CherryPickEmpty means the commit's changes are already present.
	CherryPickEmpty
)

// CherryPickOptions specifies options for a cherry-pick.
type CherryPickOptions struct {
	// KeepRedundant records an empty commit when the picked change is
	// already contained in the current tip, instead of failing.
	KeepRedundant bool

	// Strategy is the merge strategy (e.g. "recursive").
	Strategy string

	// StrategyOption is the strategy option (e.g. "theirs").
	StrategyOption string
}

// CherryPick applies a single commit onto the current HEAD. Conflicts
// and empty picks are reported as results, not errors.
func (c *Client) CherryPick(ctx context.Context, commit string, opts CherryPickOptions) (CherryPickResult, error) {
	args := []string{"cherry-pick"}
	if opts.KeepRedundant {
		args = append(args, "--keep-redundant-commits")
	}
	if opts.Strategy != "" {
		args = append(args, "--strategy", opts.Strategy)
	}
	if opts.StrategyOption != "" {
		args = append(args, "--strategy-option", opts.StrategyOption)
	}
	args = append(args, commit)

	_, err := c.execCommand(ctx, args...)
	if err == nil {
		return CherryPickOK, nil
	}

	var cmdErr *CommandError
	if errors.As(err, &cmdErr) {
		if cmdErr.OutputContains("The previous cherry-pick is now empty") {
			return CherryPickEmpty, nil
		}
		if isConflictOutput(cmdErr.Output) {
			return CherryPickConflict, nil
		}
	}
	return CherryPickOK, fmt.Errorf("cherry-pick %s failed: %w", commit, err)
}

// AbortCherryPick aborts an in-progress cherry-pick.
func (c *Client) AbortCherryPick(ctx context.Context) error {
	_, err := c.execCommand(ctx, "cherry-pick", "--abort")
	return err
}

// StashPush stashes working tree changes. Returns false when there was
// nothing to stash.
func (c *Client) StashPush(ctx context.Context, includeUntracked bool) (bool, error) {
	args := []string{"stash", "push"}
	if includeUntracked {
		args = append(args, "--include-untracked")
	}

	out, err := c.execCommand(ctx, args...)
	if err != nil {
		return false, fmt.Errorf("stash push failed: %w", err)
	}
	return !strings.Contains(out, "No local changes to save"), nil
}

// StashPop restores the most recently stashed changes.
func (c *Client) StashPop(ctx context.Context) error {
	if _, err := c.execCommand(ctx, "stash", "pop"); err != nil {
		return fmt.Errorf("stash pop failed: %w", err)
	}
	return nil
}

// PushOptions specifies options for pushing to a remote.
type PushOptions struct {
	// Remote is the remote name (default: "origin").
	Remote string

	// RefSpec is the refspec to push
	// (e.g. "refs/heads/topic:refs/heads/topic").
	RefSpec string

	// ForceWithLease guards the push: it fails instead of overwriting
	// when the remote tip is not the expected one.
	ForceWithLease bool

	// Lease is the expected remote state in "ref:sha" form. Only used
	// with ForceWithLease; empty means lease against the tracking ref.
	Lease string

	// SetUpstream sets the upstream branch.
	SetUpstream bool
}

// Push pushes to a remote and returns git's combined output.
func (c *Client) Push(ctx context.Context, opts PushOptions) (string, error) {
	if opts.Remote == "" {
		opts.Remote = "origin"
	}
	if opts.RefSpec == "" {
		return "", fmt.Errorf("refspec is required for push")
	}

	args := []string{"push"}
	if opts.ForceWithLease {
		if opts.Lease != "" {
			args = append(args, "--force-with-lease="+opts.Lease)
		} else {
			args = append(args, "--force-with-lease")
		}
	}
	if opts.SetUpstream {
		args = append(args, "-u")
	}
	args = append(args, opts.Remote, opts.RefSpec)

	return c.execCommand(ctx, args...)
}

// PushDelete deletes a branch on the remote.
func (c *Client) PushDelete(ctx context.Context, remote, branch string) error {
	_, err := c.execCommand(ctx, "push", "--delete", remote, branch)
	return err
}

// ConfigGet returns a configuration value and whether it was set.
func (c *Client) ConfigGet(ctx context.Context, key string, global bool) (string, bool, error) {
	args := []string{"config"}
	if global {
		args = append(args, "--global")
	}
	args = append(args, "--get", key)

	out, err := c.execCommand(ctx, args...)
	if err != nil {
		var cmdErr *CommandError
		if errors.As(err, &cmdErr) && cmdErr.ExitCode == 1 {
			return "", false, nil
		}
		return "", false, fmt.Errorf("config --get %s failed: %w", key, err)
	}
	return strings.TrimSpace(out), true, nil
}

// ConfigSet sets a configuration value.
func (c *Client) ConfigSet(ctx context.Context, key, value string, global bool) error {
	args := []string{"config"}
	if global {
		args = append(args, "--global")
	}
	args = append(args, key, value)

	if _, err := c.execCommand(ctx, args...); err != nil {
		return fmt.Errorf("config %s failed: %w", key, err)
	}
	return nil
}

// ConfigUnset removes a configuration key. Returns true when the key
// existed and was removed.
func (c *Client) ConfigUnset(ctx context.Context, key string, global bool) (bool, error) {
	args := []string{"config"}
	if global {
		args = append(args, "--global")
	}
	args = append(args, "--unset", key)

	_, err := c.execCommand(ctx, args...)
	if err == nil {
		return true, nil
	}

	var cmdErr *CommandError
	if errors.As(err, &cmdErr) && (cmdErr.ExitCode == 5 || cmdErr.ExitCode == 1) {
		// git exits 5 when the key was not set.
		return false, nil
	}
	return false, fmt.Errorf("config --unset %s failed: %w", key, err)
}

// RemoteURL returns the fetch URL of a remote.
func (c *Client) RemoteURL(ctx context.Context, name string) (string, error) {
	out, err := c.execCommand(ctx, "remote", "get-url", name)
	if err != nil {
		return "", fmt.Errorf("failed to get URL of remote %s: %w", name, err)
	}
	return strings.TrimSpace(out), nil
}

// SetRemote ensures that a remote with the given name points to the
// provided URL, creating or updating it as needed.
func (c *Client) SetRemote(ctx context.Context, name, url string) error {
	out, err := c.execCommand(ctx, "remote")
	if err != nil {
		return fmt.Errorf("failed to list remotes: %w", err)
	}

	exists := false
	for _, remote := range strings.Fields(out) {
		if remote == name {
			exists = true
			break
		}
	}

	if exists {
		_, err = c.execCommand(ctx, "remote", "set-url", name, url)
	} else {
		_, err = c.execCommand(ctx, "remote", "add", name, url)
	}
	if err != nil {
		return fmt.Errorf("failed to configure remote %s: %w", name, err)
	}
	return nil
}

// RemoveRemote removes a remote. Removing a missing remote is not an
// error.
func (c *Client) RemoveRemote(ctx context.Context, name string) error {
	if _, err := c.execCommand(ctx, "remote", "remove", name); err != nil {
		var cmdErr *CommandError
		if errors.As(err, &cmdErr) && cmdErr.ExitCode == 2 {
			return nil
		}
		return fmt.Errorf("failed to remove remote %s: %w", name, err)
	}
	return nil
}

// isConflictOutput reports whether git output indicates a merge
// conflict rather than some other failure.
func isConflictOutput(output string) bool {
	for _, marker := range []string{
		"CONFLICT",
		"Merge conflict",
		"could not apply",
		"needs merge",
	} {
		if strings.Contains(output, marker) {
			return true
		}
	}
	return false
}
