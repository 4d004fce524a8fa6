package sync

import (
	"context"
	"fmt"

	"github.com/prsync/prsync/pkg/git"
)

// Outcome is the terminal state of a synchronization run.
type Outcome string

const (
	// OutcomeCreated means the branch did not exist and was created.
	OutcomeCreated Outcome = "created"

	// OutcomeUpdated means the existing branch received a new tip.
	OutcomeUpdated Outcome = "updated"

	// OutcomeNotUpdated means the branch already reflects the change
	// set (or there was nothing to synchronize); no new commits were
	// created.
	OutcomeNotUpdated Outcome = "none"

	// OutcomeClosed means the change set was empty, the branch exists,
	// and branch deletion is configured; the caller should delete the
	// remote ref and close any open pull request.
	OutcomeClosed Outcome = "closed"
)

// Result reports what a synchronization run decided and produced.
type Result struct {
	// Outcome is the terminal state.
	Outcome Outcome

	// Branch is the target branch name, including any applied suffix.
	Branch string

	// HeadSHA is the branch tip after the run. Empty for
	// OutcomeNotUpdated when the branch does not exist.
	HeadSHA string

	// BaseSHA is the resolved base commit the branch targets.
	BaseSHA string

	// DiffWithBase reports whether the branch tip differs in content
	// from the base; it drives the pull request call.
	DiffWithBase bool

	// RewrittenHistory reports whether the run rewrote the published
	// branch history (the rebase path). It requires a guarded
	// force push.
	RewrittenHistory bool

	// PriorRemoteSHA is the remote tip observed at the start of the
	// run, used as the force-with-lease expectation. Empty when the
	// branch was not on the remote.
	PriorRemoteSHA string
}

// NeedsPush reports whether the outcome requires pushing the branch.
func (r *Result) NeedsPush() bool {
	return r.Outcome == OutcomeCreated || r.Outcome == OutcomeUpdated
}

// branchPresence describes where a branch currently exists.
type branchPresence int

const (
	presenceAbsent branchPresence = iota
	presenceLocal
	presenceRemote
	presenceBoth
)

// BranchRef is a branch name with its observed presence and tips.
type BranchRef struct {
	Name      string
	presence  branchPresence
	LocalSHA  string
	RemoteSHA string
}

// Exists reports whether the branch exists locally or on the remote.
func (b *BranchRef) Exists() bool {
	return b.presence != presenceAbsent
}

// OnRemote reports whether the branch exists on the remote.
func (b *BranchRef) OnRemote() bool {
	return b.presence == presenceRemote || b.presence == presenceBoth
}

// resolveBranch queries local and remote presence of a branch.
func resolveBranch(ctx context.Context, client *git.Client, remote, name string) (*BranchRef, error) {
	ref := &BranchRef{Name: name}

	if client.BranchExistsLocal(ctx, name) {
		ref.presence = presenceLocal
		sha, err := client.RevParse(ctx, "refs/heads/"+name)
		if err != nil {
			return nil, err
		}
		ref.LocalSHA = sha
	}

	remoteSHA, err := client.RemoteHeadSHA(ctx, remote, name)
	if err != nil {
		return nil, err
	}
	if remoteSHA != "" {
		ref.RemoteSHA = remoteSHA
		if ref.presence == presenceLocal {
			ref.presence = presenceBoth
		} else {
			ref.presence = presenceRemote
		}
	}

	return ref, nil
}

// BaseRef is the resolved base the branch targets.
type BaseRef struct {
	// Name is the base branch name.
	Name string

	// SHA is the resolved base commit.
	SHA string
}

// ResolveBase resolves the base reference once per run. With no
// explicit name the current branch is used; a detached HEAD cannot
// serve as an implicit base.
func ResolveBase(ctx context.Context, client *git.Client, explicit string) (BaseRef, error) {
	name := explicit
	if name == "" {
		ref, detached, err := client.CurrentRef(ctx)
		if err != nil {
			return BaseRef{}, fmt.Errorf("%w: %v", ErrInvalidBase, err)
		}
		if detached {
			return BaseRef{}, fmt.Errorf("%w: HEAD is detached and no base was given", ErrInvalidBase)
		}
		name = ref
	}

	sha, err := client.RevParse(ctx, "refs/heads/"+name)
	if err != nil {
		return BaseRef{}, fmt.Errorf("%w: %s", ErrInvalidBase, name)
	}
	return BaseRef{Name: name, SHA: sha}, nil
}
