// Package gitconfig manages temporary git configuration for a sync
// run. A Guard snapshots every key before changing it and restores the
// prior state afterwards, so a run leaves no trace in the user's
// configuration even when it fails partway.
package gitconfig

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/prsync/prsync/pkg/git"
	"github.com/prsync/prsync/pkg/log"
)

// ErrRestore marks a failure to restore snapshotted configuration.
// Callers surface it separately from the primary run error.
var ErrRestore = errors.New("failed to restore git configuration")

// entry records the prior state of a single configuration key.
type entry struct {
	key     string
	global  bool
	value   string
	existed bool

	// multi marks values added with --add to a multi-valued key;
	// restore removes the added value instead of resetting the key.
	multi bool
}

// Guard snapshots and restores git configuration around a sync run.
// Keys are restored in reverse order of modification.
type Guard struct {
	client  *git.Client
	entries []entry
}

// NewGuard creates a guard for the given repository client.
func NewGuard(client *git.Client) *Guard {
	return &Guard{client: client}
}

// set snapshots a key and then sets it.
func (g *Guard) set(ctx context.Context, key, value string, global bool) error {
	prior, existed, err := g.client.ConfigGet(ctx, key, global)
	if err != nil {
		return err
	}
	g.entries = append(g.entries, entry{key: key, global: global, value: prior, existed: existed})

	return g.client.ConfigSet(ctx, key, value, global)
}

// ConfigureIdentity sets the committer identity used by this run.
func (g *Guard) ConfigureIdentity(ctx context.Context, identity git.Identity) error {
	if err := g.set(ctx, "user.name", identity.Name, false); err != nil {
		return fmt.Errorf("failed to set user.name: %w", err)
	}
	if err := g.set(ctx, "user.email", identity.Email, false); err != nil {
		return fmt.Errorf("failed to set user.email: %w", err)
	}
	return nil
}

// AuthHeaderKey returns the extraheader config key scoped to a server
// URL, so credentials attach only to that host.
func AuthHeaderKey(serverURL string) string {
	return fmt.Sprintf("http.%s/.extraheader", strings.TrimSuffix(serverURL, "/"))
}

// basicAuthHeader encodes a token in the basic auth form the remote
// expects.
func basicAuthHeader(token string) string {
	credentials := base64.StdEncoding.EncodeToString([]byte("x-access-token:" + token))
	return "AUTHORIZATION: basic " + credentials
}

// ConfigureAuth installs token authentication for HTTPS pushes to the
// given server. The token is stored base64-encoded in an extraheader,
// never in the remote URL.
func (g *Guard) ConfigureAuth(ctx context.Context, serverURL, token string) error {
	key := AuthHeaderKey(serverURL)
	if err := g.set(ctx, key, basicAuthHeader(token), false); err != nil {
		return fmt.Errorf("failed to set auth header: %w", err)
	}
	log.Debug("configured token authentication", "server", serverURL)
	return nil
}

// ConfigureSafeDirectory adds the working directory to the global
// safe.directory list, needed when the repository is owned by another
// user such as in container checkouts.
func (g *Guard) ConfigureSafeDirectory(ctx context.Context, dir string) error {
	g.entries = append(g.entries, entry{key: "safe.directory", global: true, value: dir, multi: true})

	if _, err := g.client.ExecCommand(ctx, "config", "--global", "--add", "safe.directory", dir); err != nil {
		return fmt.Errorf("failed to add safe.directory: %w", err)
	}
	return nil
}

// ConfigureSigning sets commit signing configuration for this run.
// An empty signingKey disables signing.
func (g *Guard) ConfigureSigning(ctx context.Context, signingKey string) error {
	enabled := "false"
	if signingKey != "" {
		enabled = "true"
		if err := g.set(ctx, "user.signingkey", signingKey, false); err != nil {
			return fmt.Errorf("failed to set user.signingkey: %w", err)
		}
	}
	if err := g.set(ctx, "commit.gpgsign", enabled, false); err != nil {
		return fmt.Errorf("failed to set commit.gpgsign: %w", err)
	}
	return nil
}

// Restore puts every modified key back to its snapshotted state, in
// reverse order of modification. All keys are attempted even when some
// fail; failures are collected and reported together under ErrRestore.
func (g *Guard) Restore(ctx context.Context) error {
	var errs []error

	for i := len(g.entries) - 1; i >= 0; i-- {
		e := g.entries[i]

		var err error
		switch {
		case e.multi:
			_, err = g.client.ExecCommand(ctx, "config", "--global", "--unset-all", e.key, regexpEscape(e.value))
		case e.existed:
			err = g.client.ConfigSet(ctx, e.key, e.value, e.global)
		default:
			_, err = g.client.ConfigUnset(ctx, e.key, e.global)
		}
		if err != nil {
			log.Warn("failed to restore config key", "key", e.key, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", e.key, err))
		}
	}
	g.entries = nil

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrRestore, errors.Join(errs...))
	}
	return nil
}

// regexpEscape escapes a literal value for git's value-pattern
// matching, which treats the argument as a regular expression.
func regexpEscape(s string) string {
	var b strings.Builder
	for _, r := range s {
		if strings.ContainsRune(`\.+*?()|[]{}^$`, r) {
			b.WriteRune('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
