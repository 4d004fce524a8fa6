package sync

import (
	"context"
	"errors"
	"os/exec"
	"testing"

	"github.com/prsync/prsync/pkg/git"
)

func TestSubmitter_Push(t *testing.T) {
	ctx := context.Background()
	client, _ := setupSyncRepo(t)

	writeFile(t, client, "feature.txt", "content\n")
	cs := captureChanges(t, client, nil)
	base, err := ResolveBase(ctx, client, "")
	if err != nil {
		t.Fatalf("ResolveBase failed: %v", err)
	}
	result, err := NewSynchronizer(client, "origin").Sync(ctx, cs, base, "topic")
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}

	tip, err := NewSubmitter(client, "origin").Push(ctx, result)
	if err != nil {
		t.Fatalf("Push failed: %v", err)
	}
	if tip != result.HeadSHA {
		t.Errorf("expected verified tip %s, got %s", result.HeadSHA, tip)
	}

	remoteSHA, err := client.RemoteHeadSHA(ctx, "origin", "topic")
	if err != nil {
		t.Fatalf("RemoteHeadSHA failed: %v", err)
	}
	if remoteSHA != result.HeadSHA {
		t.Errorf("expected remote tip %s, got %s", result.HeadSHA, remoteSHA)
	}
}

func TestSubmitter_PushSkipsWhenNotNeeded(t *testing.T) {
	ctx := context.Background()
	client, _ := setupSyncRepo(t)

	result := &Result{Outcome: OutcomeNotUpdated, Branch: "topic", HeadSHA: "abc"}
	tip, err := NewSubmitter(client, "origin").Push(ctx, result)
	if err != nil {
		t.Fatalf("Push failed: %v", err)
	}
	if tip != "abc" {
		t.Errorf("expected passthrough tip, got %s", tip)
	}

	exists, err := client.BranchExistsRemote(ctx, "origin", "topic")
	if err != nil {
		t.Fatalf("BranchExistsRemote failed: %v", err)
	}
	if exists {
		t.Error("expected no push for OutcomeNotUpdated")
	}
}

func TestSubmitter_ConcurrentUpdateRejected(t *testing.T) {
	ctx := context.Background()
	client, remoteDir := setupSyncRepo(t)

	writeFile(t, client, "feature.txt", "v1\n")
	first := syncOnce(t, client, "topic")

	// Another clone advances the branch behind our back.
	otherDir := t.TempDir()
	cmd := exec.Command("git", "clone", remoteDir, otherDir)
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("git clone failed: %v, output: %s", err, string(out))
	}
	other := git.NewClient(otherDir)
	for _, kv := range [][2]string{{"user.name", "Other"}, {"user.email", "other@example.com"}} {
		if err := other.ConfigSet(ctx, kv[0], kv[1], false); err != nil {
			t.Fatalf("ConfigSet failed: %v", err)
		}
	}
	if err := other.Checkout(ctx, "topic"); err != nil {
		t.Fatalf("Checkout failed: %v", err)
	}
	writeFile(t, other, "concurrent.txt", "c\n")
	if err := other.AddAll(ctx); err != nil {
		t.Fatalf("AddAll failed: %v", err)
	}
	if _, err := other.Commit(ctx, git.CommitOptions{
		Message:   "concurrent change",
		Author:    git.Identity{Name: "Other", Email: "other@example.com"},
		Committer: git.Identity{Name: "Other", Email: "other@example.com"},
	}); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if _, err := other.Push(ctx, git.PushOptions{Remote: "origin", RefSpec: "refs/heads/topic:refs/heads/topic"}); err != nil {
		t.Fatalf("concurrent Push failed: %v", err)
	}

	// A rewritten-history result leased on the stale tip must be
	// rejected, not overwrite the concurrent update.
	result := &Result{
		Outcome:          OutcomeUpdated,
		Branch:           "topic",
		HeadSHA:          first.HeadSHA,
		RewrittenHistory: true,
		PriorRemoteSHA:   first.HeadSHA,
	}

	_, err := NewSubmitter(client, "origin").Push(ctx, result)
	if !errors.Is(err, ErrConcurrentUpdate) {
		t.Fatalf("expected ErrConcurrentUpdate, got %v", err)
	}
}

func TestSubmitter_ConfigureForkRemote(t *testing.T) {
	ctx := context.Background()
	client, _ := setupSyncRepo(t)

	forkDir := t.TempDir()
	cmd := exec.Command("git", "init", "--bare", "-b", "main")
	cmd.Dir = forkDir
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("git init --bare failed: %v, output: %s", err, string(out))
	}

	sub := NewSubmitter(client, "origin")
	if err := sub.ConfigureForkRemote(ctx, "fork", forkDir); err != nil {
		t.Fatalf("ConfigureForkRemote failed: %v", err)
	}
	if sub.Remote != "fork" {
		t.Errorf("expected submitter to target fork, got %s", sub.Remote)
	}

	writeFile(t, client, "feature.txt", "content\n")
	cs := captureChanges(t, client, nil)
	base, err := ResolveBase(ctx, client, "")
	if err != nil {
		t.Fatalf("ResolveBase failed: %v", err)
	}
	result, err := NewSynchronizer(client, "origin").Sync(ctx, cs, base, "topic")
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}

	if _, err := sub.Push(ctx, result); err != nil {
		t.Fatalf("Push to fork failed: %v", err)
	}

	exists, err := client.BranchExistsRemote(ctx, "fork", "topic")
	if err != nil {
		t.Fatalf("BranchExistsRemote failed: %v", err)
	}
	if !exists {
		t.Error("expected branch on fork remote")
	}

	exists, err = client.BranchExistsRemote(ctx, "origin", "topic")
	if err != nil {
		t.Fatalf("BranchExistsRemote failed: %v", err)
	}
	if exists {
		t.Error("expected branch not pushed to origin")
	}
}

func TestSubmitter_DeleteRemoteBranch(t *testing.T) {
	ctx := context.Background()
	client, _ := setupSyncRepo(t)

	writeFile(t, client, "feature.txt", "content\n")
	syncOnce(t, client, "topic")

	if err := NewSubmitter(client, "origin").DeleteRemoteBranch(ctx, "topic"); err != nil {
		t.Fatalf("DeleteRemoteBranch failed: %v", err)
	}

	exists, err := client.BranchExistsRemote(ctx, "origin", "topic")
	if err != nil {
		t.Fatalf("BranchExistsRemote failed: %v", err)
	}
	if exists {
		t.Error("expected remote branch deleted")
	}
}
