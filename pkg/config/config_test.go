package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestLoad_NoConfigFile(t *testing.T) {
	tmpDir := t.TempDir()

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	// Should return zero config
	if cfg.Branch != "" {
		t.Errorf("Branch should be empty, got %q", cfg.Branch)
	}
	if cfg.LogLevel != "" {
		t.Errorf("LogLevel should be empty, got %q", cfg.LogLevel)
	}
}

func TestLoad_ValidConfigFile(t *testing.T) {
	tmpDir := t.TempDir()
	writeConfig(t, tmpDir, `
branch: "sync/updates"
base: "main"
branch_suffix: "timestamp"
commit_message: "chore: automated update"
title: "Automated update"
delete_branch: true
log_level: "debug"
git:
  author: "Sync Bot <bot@example.com>"
  committer: "Sync Bot <bot@example.com>"
`)

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Branch != "sync/updates" {
		t.Errorf("Branch = %q, want %q", cfg.Branch, "sync/updates")
	}
	if cfg.Base != "main" {
		t.Errorf("Base = %q, want %q", cfg.Base, "main")
	}
	if cfg.BranchSuffix != "timestamp" {
		t.Errorf("BranchSuffix = %q, want %q", cfg.BranchSuffix, "timestamp")
	}
	if !cfg.DeleteBranch {
		t.Error("DeleteBranch should be true")
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "debug")
	}
	if cfg.Git.Author != "Sync Bot <bot@example.com>" {
		t.Errorf("Git.Author = %q, want configured identity", cfg.Git.Author)
	}
}

func TestLoad_SearchParentDirectories(t *testing.T) {
	tmpDir := t.TempDir()
	writeConfig(t, tmpDir, `branch: "from-parent"`)

	nested := filepath.Join(tmpDir, "subdir", "nested")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(nested)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.Branch != "from-parent" {
		t.Errorf("Branch = %q, want %q", cfg.Branch, "from-parent")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	writeConfig(t, tmpDir, "branch: [unclosed")

	if _, err := Load(tmpDir); err == nil {
		t.Error("Load() expected error for invalid yaml")
	}
}

func TestResolveString(t *testing.T) {
	cfg := &ProjectConfig{}

	tests := []struct {
		name       string
		cli, env   string
		file, def  string
		want       string
		wantSource string
	}{
		{"cli wins", "a", "b", "c", "d", "a", "cli"},
		{"env beats file", "", "b", "c", "d", "b", "env"},
		{"file beats default", "", "", "c", "d", "c", "config"},
		{"default last", "", "", "", "d", "d", "default"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, source := cfg.ResolveString(tt.cli, tt.env, tt.file, tt.def)
			if got != tt.want || source != tt.wantSource {
				t.Errorf("ResolveString() = (%q, %q), want (%q, %q)", got, source, tt.want, tt.wantSource)
			}
		})
	}
}

func TestInputString(t *testing.T) {
	t.Setenv("INPUT_COMMIT-MESSAGE", "dashed form")
	if got := InputString("commit-message", ""); got != "dashed form" {
		t.Errorf("InputString() = %q, want dashed form", got)
	}

	t.Setenv("INPUT_COMMIT-MESSAGE", "")
	t.Setenv("INPUT_COMMIT_MESSAGE", "underscore form")
	if got := InputString("commit-message", ""); got != "underscore form" {
		t.Errorf("InputString() = %q, want underscore fallback", got)
	}

	t.Setenv("INPUT_COMMIT_MESSAGE", "")
	if got := InputString("commit-message", "fallback"); got != "fallback" {
		t.Errorf("InputString() = %q, want default", got)
	}
}

func TestInputBool(t *testing.T) {
	t.Setenv("INPUT_DRAFT", "True")
	if !InputBool("draft", false) {
		t.Error("InputBool() should accept any casing of true")
	}

	t.Setenv("INPUT_DRAFT", "yes")
	if InputBool("draft", true) {
		t.Error("InputBool() should treat non-true values as false")
	}

	t.Setenv("INPUT_DRAFT", "")
	if !InputBool("draft", true) {
		t.Error("InputBool() should return the default when unset")
	}
}

func TestInputInt(t *testing.T) {
	t.Setenv("INPUT_MILESTONE", "7")
	if got := InputInt("milestone", 0); got != 7 {
		t.Errorf("InputInt() = %d, want 7", got)
	}

	t.Setenv("INPUT_MILESTONE", "not-a-number")
	if got := InputInt("milestone", 3); got != 3 {
		t.Errorf("InputInt() = %d, want default on parse failure", got)
	}
}

func TestSplitList(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  []string
	}{
		{"empty", "", nil},
		{"commas", "a, b,c", []string{"a", "b", "c"}},
		{"newlines", "a\nb\n\nc", []string{"a", "b", "c"}},
		{"mixed with blanks", " a ,\n, b ", []string{"a", "b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SplitList(tt.value); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("SplitList(%q) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}

func TestStripTeamOrgPrefix(t *testing.T) {
	got := StripTeamOrgPrefix([]string{"acme/platform", "reviewers", "acme/infra"})
	want := []string{"platform", "reviewers", "infra"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("StripTeamOrgPrefix() = %v, want %v", got, want)
	}
}

func TestFromEnv(t *testing.T) {
	clearInputs(t)
	tmpDir := t.TempDir()
	writeConfig(t, tmpDir, `
branch: "file-branch"
delete_branch: true
`)

	t.Setenv("INPUT_TOKEN", "env-token")
	t.Setenv("GITHUB_REPOSITORY", "octo/widgets")
	t.Setenv("INPUT_TITLE", "Env title")
	t.Setenv("INPUT_LABELS", "automated, chore")
	t.Setenv("INPUT_TEAM-REVIEWERS", "acme/platform")
	t.Setenv("INPUT_DRAFT", "true")

	in, err := FromEnv(tmpDir)
	if err != nil {
		t.Fatalf("FromEnv() returned error: %v", err)
	}

	if in.Token != "env-token" {
		t.Errorf("Token = %q, want env-token", in.Token)
	}
	if in.Branch != "file-branch" {
		t.Errorf("Branch = %q, want the project config value", in.Branch)
	}
	if !in.DeleteBranch {
		t.Error("DeleteBranch should come from the project config")
	}
	if in.Title != "Env title" {
		t.Errorf("Title = %q, want the env value over the default", in.Title)
	}
	if !reflect.DeepEqual(in.Labels, []string{"automated", "chore"}) {
		t.Errorf("Labels = %v", in.Labels)
	}
	if !reflect.DeepEqual(in.TeamReviewers, []string{"platform"}) {
		t.Errorf("TeamReviewers = %v, want org prefix stripped", in.TeamReviewers)
	}
	if !in.Draft {
		t.Error("Draft should be true")
	}
	if !in.MaintainerCanModify {
		t.Error("MaintainerCanModify should default to true")
	}
}

func TestFromEnv_Defaults(t *testing.T) {
	clearInputs(t)
	t.Setenv("GITHUB_TOKEN", "fallback-token")

	in, err := FromEnv(t.TempDir())
	if err != nil {
		t.Fatalf("FromEnv() returned error: %v", err)
	}

	if in.Token != "fallback-token" {
		t.Errorf("Token = %q, want GITHUB_TOKEN fallback", in.Token)
	}
	if in.Branch != DefaultBranch {
		t.Errorf("Branch = %q, want %q", in.Branch, DefaultBranch)
	}
	if in.Title != DefaultTitle {
		t.Errorf("Title = %q, want %q", in.Title, DefaultTitle)
	}
	if in.CommitMessage != DefaultCommitMessage {
		t.Errorf("CommitMessage = %q, want %q", in.CommitMessage, DefaultCommitMessage)
	}
	if in.BranchSuffix != "none" {
		t.Errorf("BranchSuffix = %q, want none", in.BranchSuffix)
	}
	if in.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info", in.LogLevel)
	}
}

func TestValidate(t *testing.T) {
	base := func() *Inputs {
		return &Inputs{Token: "tok", Repository: "octo/widgets"}
	}

	t.Run("valid", func(t *testing.T) {
		if err := base().Validate(); err != nil {
			t.Errorf("Validate() error = %v", err)
		}
	})

	t.Run("missing token", func(t *testing.T) {
		in := base()
		in.Token = ""
		if err := in.Validate(); err == nil || !strings.Contains(err.Error(), "token") {
			t.Errorf("Validate() = %v, want token error", err)
		}
	})

	t.Run("malformed repository", func(t *testing.T) {
		in := base()
		in.Repository = "widgets"
		if err := in.Validate(); err == nil || !strings.Contains(err.Error(), "owner/repo") {
			t.Errorf("Validate() = %v, want repository error", err)
		}
	})

	t.Run("body from file", func(t *testing.T) {
		bodyPath := filepath.Join(t.TempDir(), "body.md")
		if err := os.WriteFile(bodyPath, []byte("PR body from file"), 0644); err != nil {
			t.Fatal(err)
		}
		in := base()
		in.BodyPath = bodyPath
		if err := in.Validate(); err != nil {
			t.Fatalf("Validate() error = %v", err)
		}
		if in.Body != "PR body from file" {
			t.Errorf("Body = %q, want file contents", in.Body)
		}
	})

	t.Run("missing body file", func(t *testing.T) {
		in := base()
		in.BodyPath = filepath.Join(t.TempDir(), "missing.md")
		if err := in.Validate(); err == nil {
			t.Error("Validate() expected error for missing body file")
		}
	})

	t.Run("body too long", func(t *testing.T) {
		in := base()
		in.Body = strings.Repeat("x", MaxBodyLength+1)
		if err := in.Validate(); err == nil || !strings.Contains(err.Error(), "maximum length") {
			t.Errorf("Validate() = %v, want length error", err)
		}
	})
}

func TestOwnerRepo(t *testing.T) {
	in := &Inputs{Repository: "octo/widgets"}
	if in.Owner() != "octo" {
		t.Errorf("Owner() = %q, want octo", in.Owner())
	}
	if in.Repo() != "widgets" {
		t.Errorf("Repo() = %q, want widgets", in.Repo())
	}
}

// writeConfig writes a .prsync/config.yaml under dir
func writeConfig(t *testing.T, dir, content string) {
	t.Helper()
	configDir := filepath.Join(dir, ConfigDir)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(configDir, ConfigFile), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

// clearInputs blanks the INPUT_* variables a CI environment may carry
func clearInputs(t *testing.T) {
	t.Helper()
	for _, env := range os.Environ() {
		if strings.HasPrefix(env, "INPUT_") {
			key, _, _ := strings.Cut(env, "=")
			t.Setenv(key, "")
		}
	}
	t.Setenv("GITHUB_TOKEN", "")
	t.Setenv("GITHUB_REPOSITORY", "")
	t.Setenv("PRSYNC_LOG_LEVEL", "")
}
