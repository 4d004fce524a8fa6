package sync

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/prsync/prsync/pkg/git"
	"github.com/prsync/prsync/pkg/log"
)

// Default identity used when no author or committer is configured.
const (
	DefaultIdentityName  = "github-actions[bot]"
	DefaultIdentityEmail = "41898282+github-actions[bot]@users.noreply.github.com"
)

// ChangeSet describes the working-tree changes to synchronize and how
// to commit them. Empty and Computed are distinct: a zero ChangeSet
// has not been captured yet, while a captured one with Empty=true
// positively established that nothing differs from HEAD.
type ChangeSet struct {
	// Paths restricts the capture to the given pathspecs. Empty means
	// all tracked and untracked changes.
	Paths []string

	// Message is the commit message.
	Message string

	// Author and Committer are the commit identities, fully resolved
	// before capture.
	Author    git.Identity
	Committer git.Identity

	// Signoff adds a Signed-off-by trailer to the commit.
	Signoff bool

	// Sign GPG-signs the commit.
	Sign bool

	// Computed reports that Capture ran.
	Computed bool

	// Empty reports that the scoped working tree has no changes
	// relative to HEAD. Only meaningful when Computed is true.
	Empty bool
}

// identityPattern matches the "Display Name <email>" input form.
var identityPattern = regexp.MustCompile(`^([^<]+)\s*<([^>]+)>$`)

// ParseIdentity parses a "Name <email>" string into an Identity.
func ParseIdentity(s string) (git.Identity, error) {
	m := identityPattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return git.Identity{}, fmt.Errorf("identity %q is not in the format 'Display Name <email@address.com>'", s)
	}
	return git.Identity{Name: strings.TrimSpace(m[1]), Email: strings.TrimSpace(m[2])}, nil
}

// ResolveIdentity parses an identity input, falling back to the
// default bot identity when the input is empty.
func ResolveIdentity(s string) (git.Identity, error) {
	if strings.TrimSpace(s) == "" {
		return git.Identity{Name: DefaultIdentityName, Email: DefaultIdentityEmail}, nil
	}
	return ParseIdentity(s)
}

// Capture inspects the working tree and stages the change set's
// content. With a path scope only the allowed paths are staged;
// unrelated pending edits stay untouched in the working tree. After a
// successful call Computed is true and Empty reflects whether any
// scoped content differs from HEAD.
func Capture(ctx context.Context, client *git.Client, cs *ChangeSet) error {
	dirty, err := client.IsDirty(ctx, cs.Paths)
	if err != nil {
		return fmt.Errorf("failed to inspect working tree: %w", err)
	}

	if !dirty {
		cs.Computed = true
		cs.Empty = true
		log.Debug("no changes to capture", "paths", cs.Paths)
		return nil
	}

	if len(cs.Paths) > 0 {
		err = client.Add(ctx, cs.Paths)
	} else {
		err = client.AddAll(ctx)
	}
	if err != nil {
		return fmt.Errorf("failed to stage changes: %w", err)
	}

	cs.Computed = true
	cs.Empty = false
	return nil
}
