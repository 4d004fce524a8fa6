package sync

import "errors"

// Sentinel errors for the terminal failure modes of a run. Version
// control failures propagate as wrapped *git.CommandError values and
// carry the failing command's output.
var (
	// ErrInvalidBase means the named base reference does not resolve,
	// or no base could be inferred from a detached HEAD.
	ErrInvalidBase = errors.New("base reference does not resolve")

	// ErrConflictUnresolved means both the rebase and its cherry-pick
	// fallback hit conflicts that cannot be resolved automatically.
	ErrConflictUnresolved = errors.New("conflicts could not be resolved automatically")

	// ErrConcurrentUpdate means a guarded push was rejected because
	// the remote branch tip moved since it was last observed. The run
	// can be retried from the start.
	ErrConcurrentUpdate = errors.New("remote branch was updated concurrently")
)
