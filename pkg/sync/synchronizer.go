package sync

import (
	"context"
	"fmt"

	"github.com/prsync/prsync/pkg/git"
	"github.com/prsync/prsync/pkg/log"
)

// Synchronizer drives a captured ChangeSet into the target branch. It
// is single-threaded per run: one working tree, one attempt, no
// internal parallelism, since a git working tree and its index cannot
// be shared across concurrent operations. It restores the caller's
// checkout and pending edits before returning, on success and on
// failure alike.
type Synchronizer struct {
	client *git.Client

	// Remote is the remote name the branch is resolved against.
	Remote string

	// DeleteBranch enables closing: an empty change set against an
	// existing branch reports OutcomeClosed so the caller deletes the
	// remote ref. Off by default.
	DeleteBranch bool
}

// NewSynchronizer creates a synchronizer for the given repository.
func NewSynchronizer(client *git.Client, remote string) *Synchronizer {
	return &Synchronizer{client: client, Remote: remote}
}

// changeSetPickOptions re-applies the change set commit onto another
// tip. The change set describes desired file content, so it wins over
// the tip on content conflicts; only structural conflicts such as
// modify/delete remain unresolvable. Redundant picks stay as empty
// commits so an already-applied change set is detected by tree
// equivalence instead of failing.
var changeSetPickOptions = git.CherryPickOptions{
	KeepRedundant:  true,
	Strategy:       "recursive",
	StrategyOption: "theirs",
}

// runState tracks what the run has touched, so any failure can be
// unwound to the pre-run repository state.
type runState struct {
	ephemeral    string
	stashed      bool
	origRef      string
	origDetached bool

	branch         string
	branchWasLocal bool
	priorLocalSHA  string
	branchTouched  bool

	inCherryPick bool
	inRebase     bool
}

// Sync runs the synchronization state machine for a captured change
// set against the given base and branch name (suffix already applied).
// The local branch ref is left at the new tip on success so the
// submitter can push it.
func (s *Synchronizer) Sync(ctx context.Context, cs *ChangeSet, base BaseRef, branch string) (*Result, error) {
	if !cs.Computed {
		return nil, fmt.Errorf("change set has not been captured")
	}

	ref, err := resolveBranch(ctx, s.client, s.Remote, branch)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve branch %s: %w", branch, err)
	}

	result := &Result{
		Branch:         branch,
		BaseSHA:        base.SHA,
		PriorRemoteSHA: ref.RemoteSHA,
	}

	if cs.Empty {
		return s.syncEmpty(ctx, result, base, ref)
	}

	st := &runState{
		branch:         branch,
		branchWasLocal: ref.LocalSHA != "",
		priorLocalSHA:  ref.LocalSHA,
	}

	if st.origRef, st.origDetached, err = s.client.CurrentRef(ctx); err != nil {
		return nil, err
	}

	token, err := randomHex(nil, 8)
	if err != nil {
		return nil, fmt.Errorf("failed to generate working branch name: %w", err)
	}
	st.ephemeral = "prsync-tmp-" + token

	err = s.execute(ctx, cs, base, ref, result, st)
	s.unwind(ctx, st, err != nil)
	if err != nil {
		return nil, err
	}

	log.Info("branch synchronized",
		"branch", branch,
		"outcome", string(result.Outcome),
		"head", result.HeadSHA,
		"rewritten", result.RewrittenHistory)
	return result, nil
}

// syncEmpty handles the empty change set terminal states: nothing to
// do when the branch is absent, close or leave alone when present.
func (s *Synchronizer) syncEmpty(ctx context.Context, result *Result, base BaseRef, ref *BranchRef) (*Result, error) {
	if !ref.Exists() {
		result.Outcome = OutcomeNotUpdated
		log.Info("no changes and no branch, nothing to do", "branch", ref.Name)
		return result, nil
	}

	tip := ref.RemoteSHA
	if tip == "" {
		tip = ref.LocalSHA
	}
	result.HeadSHA = tip

	// Fetch the tip so the content comparison against base has the
	// objects locally.
	if ref.OnRemote() {
		if err := s.client.Fetch(ctx, s.Remote, []string{"refs/heads/" + ref.Name}); err != nil {
			return nil, err
		}
	}
	diff, err := s.client.HasDiff(ctx, base.SHA, tip)
	if err != nil {
		return nil, err
	}
	result.DiffWithBase = diff

	if s.DeleteBranch {
		result.Outcome = OutcomeClosed
		log.Info("no changes, closing existing branch", "branch", ref.Name)
	} else {
		result.Outcome = OutcomeNotUpdated
		log.Info("no changes, leaving existing branch as is", "branch", ref.Name)
	}
	return result, nil
}

// execute performs the branch dance. Any error return is unwound by
// the caller.
func (s *Synchronizer) execute(ctx context.Context, cs *ChangeSet, base BaseRef, ref *BranchRef, result *Result, st *runState) error {
	// Isolate the change set on an ephemeral working branch so the
	// caller's checkout can be moved freely.
	if err := s.client.CheckoutBranch(ctx, st.ephemeral, ""); err != nil {
		return err
	}

	changeSHA, err := s.client.Commit(ctx, git.CommitOptions{
		Message:   cs.Message,
		Author:    cs.Author,
		Committer: cs.Committer,
		Signoff:   cs.Signoff,
		Sign:      cs.Sign,
	})
	if err != nil {
		return err
	}
	log.Debug("captured change set commit", "sha", changeSHA, "branch", st.ephemeral)

	// Out-of-scope pending edits stay in the working tree until now;
	// park them so branch checkouts cannot clobber them.
	stashed, err := s.client.StashPush(ctx, true)
	if err != nil {
		return err
	}
	st.stashed = stashed

	if !ref.Exists() {
		return s.createBranch(ctx, base, result, st, changeSHA)
	}
	return s.updateBranch(ctx, base, ref, result, st, changeSHA)
}

// createBranch handles the create path: a fresh branch from base with
// the change set applied on top.
func (s *Synchronizer) createBranch(ctx context.Context, base BaseRef, result *Result, st *runState, changeSHA string) error {
	st.branchTouched = true
	if err := s.client.CheckoutBranch(ctx, st.branch, base.SHA); err != nil {
		return err
	}

	st.inCherryPick = true
	pick, err := s.client.CherryPick(ctx, changeSHA, changeSetPickOptions)
	if err != nil {
		return err
	}
	if pick == git.CherryPickConflict {
		return fmt.Errorf("%w: change set does not apply to %s", ErrConflictUnresolved, base.Name)
	}
	st.inCherryPick = false

	head, err := s.client.RevParse(ctx, "HEAD")
	if err != nil {
		return err
	}
	diff, err := s.client.HasDiff(ctx, base.SHA, head)
	if err != nil {
		return err
	}

	result.Outcome = OutcomeCreated
	result.HeadSHA = head
	result.DiffWithBase = diff
	return nil
}

// updateBranch handles the update path: re-apply the change set onto
// the existing tip, check tree equivalence for idempotency, then
// integrate base commits by rebase with a cherry-pick-result fallback.
func (s *Synchronizer) updateBranch(ctx context.Context, base BaseRef, ref *BranchRef, result *Result, st *runState, changeSHA string) error {
	// The remote tip is authoritative when present.
	tip := ref.LocalSHA
	if ref.OnRemote() {
		if err := s.client.Fetch(ctx, s.Remote, []string{"refs/heads/" + ref.Name}); err != nil {
			return err
		}
		tip = ref.RemoteSHA
	}

	st.branchTouched = true
	if err := s.client.CheckoutBranch(ctx, st.branch, tip); err != nil {
		return err
	}

	priorTree, err := s.client.TreeHash(ctx, "HEAD")
	if err != nil {
		return err
	}

	// Keep redundant picks as empty commits: an already-applied change
	// then shows up as tree equivalence below instead of an error.
	st.inCherryPick = true
	pick, err := s.client.CherryPick(ctx, changeSHA, changeSetPickOptions)
	if err != nil {
		return err
	}
	if pick == git.CherryPickConflict {
		return fmt.Errorf("%w: change set conflicts with branch %s", ErrConflictUnresolved, st.branch)
	}
	st.inCherryPick = false

	newTree, err := s.client.TreeHash(ctx, "HEAD")
	if err != nil {
		return err
	}

	if newTree == priorTree {
		// Re-running against unchanged inputs must not create new
		// commits; discard the redundant one.
		if err := s.client.ResetHard(ctx, tip); err != nil {
			return err
		}
		diff, err := s.client.HasDiff(ctx, base.SHA, tip)
		if err != nil {
			return err
		}
		result.Outcome = OutcomeNotUpdated
		result.HeadSHA = tip
		result.DiffWithBase = diff
		log.Info("branch already reflects the change set", "branch", st.branch, "head", tip)
		return nil
	}

	// Integrate commits that landed on base since the branch diverged.
	st.inRebase = true
	rebase, err := s.client.Rebase(ctx, base.SHA)
	if err != nil {
		return err
	}

	rewritten := false
	if rebase == git.RebaseConflict {
		// Aborting restores the cherry-pick result from above, which
		// is the no-rewrite fallback: the change set lands without
		// integrating base.
		if err := s.client.AbortRebase(ctx); err != nil {
			return err
		}
		log.Warn("rebase onto base conflicted, keeping branch history", "branch", st.branch, "base", base.Name)
	} else {
		stale, err := s.client.RevList(ctx, "HEAD.."+tip)
		if err != nil {
			return err
		}
		rewritten = len(stale) > 0
	}
	st.inRebase = false

	head, err := s.client.RevParse(ctx, "HEAD")
	if err != nil {
		return err
	}
	diff, err := s.client.HasDiff(ctx, base.SHA, head)
	if err != nil {
		return err
	}

	result.Outcome = OutcomeUpdated
	result.HeadSHA = head
	result.DiffWithBase = diff
	result.RewrittenHistory = rewritten
	return nil
}

// unwind hands the repository back to the caller: abort anything in
// progress, restore the original checkout and pending edits, and drop
// the ephemeral branch. On failure the target branch ref is also put
// back to its pre-run state. Every step is best effort so a partial
// failure cannot strand the rest.
func (s *Synchronizer) unwind(ctx context.Context, st *runState, failed bool) {
	if failed {
		if st.inCherryPick {
			if err := s.client.AbortCherryPick(ctx); err != nil {
				log.Warn("failed to abort cherry-pick", "error", err)
			}
		}
		if st.inRebase {
			if err := s.client.AbortRebase(ctx); err != nil {
				log.Warn("failed to abort rebase", "error", err)
			}
		}
	}

	// Back to where the caller was.
	var err error
	if st.origDetached {
		err = s.client.CheckoutDetach(ctx, st.origRef)
	} else {
		err = s.client.Checkout(ctx, st.origRef)
	}
	if err != nil {
		log.Warn("failed to restore original checkout", "ref", st.origRef, "error", err)
	}

	if err := s.client.DeleteBranch(ctx, st.ephemeral, true); err != nil {
		log.Warn("failed to delete working branch", "branch", st.ephemeral, "error", err)
	}

	if failed && st.branchTouched {
		if st.branchWasLocal {
			if _, err := s.client.ExecCommand(ctx, "branch", "-f", st.branch, st.priorLocalSHA); err != nil {
				log.Warn("failed to restore branch ref", "branch", st.branch, "error", err)
			}
		} else if err := s.client.DeleteBranch(ctx, st.branch, true); err != nil {
			log.Warn("failed to delete branch created during run", "branch", st.branch, "error", err)
		}
	}

	if st.stashed {
		if err := s.client.StashPop(ctx); err != nil {
			log.Warn("failed to restore stashed changes", "error", err)
		}
	}
}
