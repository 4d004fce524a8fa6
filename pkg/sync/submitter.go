package sync

import (
	"context"
	"errors"
	"fmt"

	"github.com/prsync/prsync/pkg/git"
	"github.com/prsync/prsync/pkg/log"
)

// Submitter pushes a synchronized branch to its remote. It never force
// pushes the target branch unless the run rewrote history, and then
// only behind a lease on the tip observed at the start of the run, so
// a concurrent update is rejected instead of overwritten.
type Submitter struct {
	client *git.Client

	// Remote is the remote to push to: origin, or a fork remote
	// configured with ConfigureForkRemote.
	Remote string
}

// NewSubmitter creates a submitter pushing to the given remote.
func NewSubmitter(client *git.Client, remote string) *Submitter {
	return &Submitter{client: client, Remote: remote}
}

// ConfigureForkRemote installs a named remote for pushing to a fork,
// creating or updating it to the given URL.
func (s *Submitter) ConfigureForkRemote(ctx context.Context, name, url string) error {
	if err := s.client.SetRemote(ctx, name, url); err != nil {
		return err
	}
	s.Remote = name
	return nil
}

// Push publishes the branch from a sync result and returns the
// remote-verified tip. A lease rejection surfaces as
// ErrConcurrentUpdate, which callers may treat as retryable.
func (s *Submitter) Push(ctx context.Context, result *Result) (string, error) {
	if !result.NeedsPush() {
		return result.HeadSHA, nil
	}

	refspec := fmt.Sprintf("refs/heads/%s:refs/heads/%s", result.Branch, result.Branch)
	opts := git.PushOptions{
		Remote:  s.Remote,
		RefSpec: refspec,
	}
	if result.RewrittenHistory {
		opts.ForceWithLease = true
		if result.PriorRemoteSHA != "" {
			opts.Lease = fmt.Sprintf("refs/heads/%s:%s", result.Branch, result.PriorRemoteSHA)
		}
	}

	if _, err := s.client.Push(ctx, opts); err != nil {
		var cmdErr *git.CommandError
		if errors.As(err, &cmdErr) &&
			(cmdErr.OutputContains("[rejected]") || cmdErr.OutputContains("stale info")) {
			return "", fmt.Errorf("%w: %s", ErrConcurrentUpdate, result.Branch)
		}
		return "", fmt.Errorf("failed to push %s to %s: %w", result.Branch, s.Remote, err)
	}

	// Report the tip the remote actually holds; the hosting service
	// may rewrite commits server-side (e.g. signing), in which case it
	// differs from the local one.
	remoteSHA, err := s.client.RemoteHeadSHA(ctx, s.Remote, result.Branch)
	if err != nil {
		return "", fmt.Errorf("failed to verify remote tip of %s: %w", result.Branch, err)
	}
	if remoteSHA != result.HeadSHA {
		log.Debug("remote tip differs from local tip", "branch", result.Branch, "local", result.HeadSHA, "remote", remoteSHA)
	}

	log.Info("pushed branch", "branch", result.Branch, "remote", s.Remote, "head", remoteSHA, "force_with_lease", opts.ForceWithLease)
	return remoteSHA, nil
}

// DeleteRemoteBranch removes the branch ref on the remote, used for
// the close path.
func (s *Submitter) DeleteRemoteBranch(ctx context.Context, branch string) error {
	if err := s.client.PushDelete(ctx, s.Remote, branch); err != nil {
		return fmt.Errorf("failed to delete %s on %s: %w", branch, s.Remote, err)
	}
	log.Info("deleted remote branch", "branch", branch, "remote", s.Remote)
	return nil
}
