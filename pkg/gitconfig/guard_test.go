package gitconfig

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prsync/prsync/pkg/git"
)

// setupTestRepo creates a temporary git repository with an isolated
// global config so Configure* calls cannot touch the host machine.
func setupTestRepo(t *testing.T) (string, *git.Client) {
	t.Helper()

	tmpDir := t.TempDir()

	cmd := exec.Command("git", "init", "-b", "main")
	cmd.Dir = tmpDir
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("git init failed: %v, output: %s", err, string(out))
	}

	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("GIT_CONFIG_GLOBAL", filepath.Join(home, ".gitconfig"))

	return tmpDir, git.NewClient(tmpDir)
}

func TestGuard_ConfigureIdentity(t *testing.T) {
	ctx := context.Background()
	_, client := setupTestRepo(t)

	// Pre-existing value that must survive restore.
	if err := client.ConfigSet(ctx, "user.name", "Original Name", false); err != nil {
		t.Fatalf("ConfigSet failed: %v", err)
	}

	guard := NewGuard(client)
	if err := guard.ConfigureIdentity(ctx, git.Identity{Name: "Sync Bot", Email: "bot@example.com"}); err != nil {
		t.Fatalf("ConfigureIdentity failed: %v", err)
	}

	name, _, err := client.ConfigGet(ctx, "user.name", false)
	if err != nil {
		t.Fatalf("ConfigGet failed: %v", err)
	}
	if name != "Sync Bot" {
		t.Errorf("expected user.name 'Sync Bot', got %q", name)
	}

	if err := guard.Restore(ctx); err != nil {
		t.Fatalf("Restore failed: %v", err)
	}

	name, ok, err := client.ConfigGet(ctx, "user.name", false)
	if err != nil {
		t.Fatalf("ConfigGet failed: %v", err)
	}
	if !ok || name != "Original Name" {
		t.Errorf("expected user.name restored to 'Original Name', got %q (set=%v)", name, ok)
	}

	// user.email did not exist before, so restore must remove it.
	_, ok, err = client.ConfigGet(ctx, "user.email", false)
	if err != nil {
		t.Fatalf("ConfigGet failed: %v", err)
	}
	if ok {
		t.Error("expected user.email removed after restore")
	}
}

func TestGuard_ConfigureAuth(t *testing.T) {
	ctx := context.Background()
	_, client := setupTestRepo(t)

	guard := NewGuard(client)
	if err := guard.ConfigureAuth(ctx, "https://github.com", "test-token"); err != nil {
		t.Fatalf("ConfigureAuth failed: %v", err)
	}

	key := AuthHeaderKey("https://github.com")
	value, ok, err := client.ConfigGet(ctx, key, false)
	if err != nil {
		t.Fatalf("ConfigGet failed: %v", err)
	}
	if !ok {
		t.Fatal("expected extraheader to be set")
	}
	if !strings.HasPrefix(value, "AUTHORIZATION: basic ") {
		t.Errorf("expected basic auth header, got %q", value)
	}
	if strings.Contains(value, "test-token") {
		t.Error("expected token to be encoded, not stored in plaintext")
	}

	if err := guard.Restore(ctx); err != nil {
		t.Fatalf("Restore failed: %v", err)
	}

	_, ok, err = client.ConfigGet(ctx, key, false)
	if err != nil {
		t.Fatalf("ConfigGet failed: %v", err)
	}
	if ok {
		t.Error("expected extraheader removed after restore")
	}
}

func TestAuthHeaderKey(t *testing.T) {
	if got := AuthHeaderKey("https://github.com"); got != "http.https://github.com/.extraheader" {
		t.Errorf("unexpected key %q", got)
	}
	if got := AuthHeaderKey("https://ghes.example.com/"); got != "http.https://ghes.example.com/.extraheader" {
		t.Errorf("unexpected key %q", got)
	}
}

func TestGuard_ConfigureSafeDirectory(t *testing.T) {
	ctx := context.Background()
	repoDir, client := setupTestRepo(t)

	guard := NewGuard(client)
	if err := guard.ConfigureSafeDirectory(ctx, repoDir); err != nil {
		t.Fatalf("ConfigureSafeDirectory failed: %v", err)
	}

	value, ok, err := client.ConfigGet(ctx, "safe.directory", true)
	if err != nil {
		t.Fatalf("ConfigGet failed: %v", err)
	}
	if !ok || value != repoDir {
		t.Errorf("expected safe.directory %q, got %q (set=%v)", repoDir, value, ok)
	}

	if err := guard.Restore(ctx); err != nil {
		t.Fatalf("Restore failed: %v", err)
	}

	_, ok, err = client.ConfigGet(ctx, "safe.directory", true)
	if err != nil {
		t.Fatalf("ConfigGet failed: %v", err)
	}
	if ok {
		t.Error("expected safe.directory removed after restore")
	}
}

func TestGuard_ConfigureSigning(t *testing.T) {
	ctx := context.Background()
	_, client := setupTestRepo(t)

	t.Run("signing disabled", func(t *testing.T) {
		guard := NewGuard(client)
		if err := guard.ConfigureSigning(ctx, ""); err != nil {
			t.Fatalf("ConfigureSigning failed: %v", err)
		}

		value, ok, err := client.ConfigGet(ctx, "commit.gpgsign", false)
		if err != nil {
			t.Fatalf("ConfigGet failed: %v", err)
		}
		if !ok || value != "false" {
			t.Errorf("expected commit.gpgsign=false, got %q", value)
		}

		if err := guard.Restore(ctx); err != nil {
			t.Fatalf("Restore failed: %v", err)
		}
	})

	t.Run("signing enabled with key", func(t *testing.T) {
		guard := NewGuard(client)
		if err := guard.ConfigureSigning(ctx, "ABC123"); err != nil {
			t.Fatalf("ConfigureSigning failed: %v", err)
		}

		value, _, err := client.ConfigGet(ctx, "commit.gpgsign", false)
		if err != nil {
			t.Fatalf("ConfigGet failed: %v", err)
		}
		if value != "true" {
			t.Errorf("expected commit.gpgsign=true, got %q", value)
		}

		key, _, err := client.ConfigGet(ctx, "user.signingkey", false)
		if err != nil {
			t.Fatalf("ConfigGet failed: %v", err)
		}
		if key != "ABC123" {
			t.Errorf("expected user.signingkey=ABC123, got %q", key)
		}

		if err := guard.Restore(ctx); err != nil {
			t.Fatalf("Restore failed: %v", err)
		}

		_, ok, err := client.ConfigGet(ctx, "user.signingkey", false)
		if err != nil {
			t.Fatalf("ConfigGet failed: %v", err)
		}
		if ok {
			t.Error("expected user.signingkey removed after restore")
		}
	})
}

func TestGuard_RestoreOrder(t *testing.T) {
	ctx := context.Background()
	_, client := setupTestRepo(t)

	guard := NewGuard(client)
	if err := guard.ConfigureIdentity(ctx, git.Identity{Name: "First", Email: "first@example.com"}); err != nil {
		t.Fatalf("ConfigureIdentity failed: %v", err)
	}
	// A second layer over the same keys must unwind through the first.
	if err := guard.ConfigureIdentity(ctx, git.Identity{Name: "Second", Email: "second@example.com"}); err != nil {
		t.Fatalf("ConfigureIdentity failed: %v", err)
	}

	if err := guard.Restore(ctx); err != nil {
		t.Fatalf("Restore failed: %v", err)
	}

	_, ok, err := client.ConfigGet(ctx, "user.name", false)
	if err != nil {
		t.Fatalf("ConfigGet failed: %v", err)
	}
	if ok {
		t.Error("expected user.name fully unwound after restore")
	}
}

func TestGuard_RestoreIdempotent(t *testing.T) {
	ctx := context.Background()
	_, client := setupTestRepo(t)

	guard := NewGuard(client)
	if err := guard.ConfigureIdentity(ctx, git.Identity{Name: "Bot", Email: "bot@example.com"}); err != nil {
		t.Fatalf("ConfigureIdentity failed: %v", err)
	}

	if err := guard.Restore(ctx); err != nil {
		t.Fatalf("first Restore failed: %v", err)
	}
	// A second restore has nothing to do and must not fail.
	if err := guard.Restore(ctx); err != nil {
		t.Fatalf("second Restore failed: %v", err)
	}
}

func TestGuard_RestoreAfterRepoGone(t *testing.T) {
	ctx := context.Background()
	repoDir, client := setupTestRepo(t)

	guard := NewGuard(client)
	if err := guard.ConfigureIdentity(ctx, git.Identity{Name: "Bot", Email: "bot@example.com"}); err != nil {
		t.Fatalf("ConfigureIdentity failed: %v", err)
	}

	// Removing the repository makes every restore step fail; all
	// failures must be collected under ErrRestore.
	if err := os.RemoveAll(filepath.Join(repoDir, ".git")); err != nil {
		t.Fatalf("failed to remove repo: %v", err)
	}

	err := guard.Restore(ctx)
	if err == nil {
		t.Fatal("expected Restore to fail")
	}
	if !errors.Is(err, ErrRestore) {
		t.Errorf("expected ErrRestore, got: %v", err)
	}
	if !strings.Contains(err.Error(), "user.name") || !strings.Contains(err.Error(), "user.email") {
		t.Errorf("expected all keys in error, got: %v", err)
	}
}
