// Package config provides run configuration for prsync.
// Inputs are resolved from CLI flags, Actions-style INPUT_* environment
// variables and an optional .prsync/config.yaml project file, with
// precedence: CLI flags > environment > project config > defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// ConfigDir is the directory name for prsync configuration
	ConfigDir = ".prsync"
	// ConfigFile is the name of the configuration file
	ConfigFile = "config.yaml"
	// ConfigPath is the full path to the config file relative to project root
	ConfigPath = ConfigDir + "/" + ConfigFile

	// DefaultBranch is the head branch used when none is configured
	DefaultBranch = "prsync/patch"
	// DefaultTitle is the pull request title used when none is configured
	DefaultTitle = "Changes by prsync"
	// DefaultCommitMessage is the commit message used when none is configured
	DefaultCommitMessage = "[prsync] automated change"

	// MaxBodyLength is the GitHub pull request body size limit
	MaxBodyLength = 65536
)

// Inputs holds the fully resolved configuration for one run
type Inputs struct {
	Token      string
	Repository string // owner/repo of the target repository
	Path       string // repository working directory

	// Commit settings
	AddPaths      []string
	CommitMessage string
	Committer     string
	Author        string
	Signoff       bool
	SignCommits   bool

	// Branch settings
	Branch       string
	BranchSuffix string
	Base         string
	DeleteBranch bool
	PushToFork   string

	// Pull request settings
	Title               string
	Body                string
	BodyPath            string
	Labels              []string
	Assignees           []string
	Reviewers           []string
	TeamReviewers       []string
	Milestone           int
	Draft               bool
	MaintainerCanModify bool

	DryRun   bool
	LogLevel string
}

// ProjectConfig represents the optional .prsync/config.yaml file.
// It provides defaults that flags and environment override.
type ProjectConfig struct {
	Branch        string `yaml:"branch,omitempty"`
	Base          string `yaml:"base,omitempty"`
	BranchSuffix  string `yaml:"branch_suffix,omitempty"`
	CommitMessage string `yaml:"commit_message,omitempty"`
	Title         string `yaml:"title,omitempty"`
	DeleteBranch  bool   `yaml:"delete_branch,omitempty"`
	LogLevel      string `yaml:"log_level,omitempty"`

	// Git identity overrides
	Git GitConfig `yaml:"git,omitempty"`
}

// GitConfig contains commit identity overrides
type GitConfig struct {
	// Author in "Name <email>" form
	Author string `yaml:"author,omitempty"`
	// Committer in "Name <email>" form
	Committer string `yaml:"committer,omitempty"`
}

// Load loads the project configuration from the given directory.
// It searches for .prsync/config.yaml in the directory and its parents.
//
// If no config file is found, it returns a zero config and nil error.
// If a config file is found but cannot be parsed, it returns an error.
func Load(dir string) (*ProjectConfig, error) {
	configPath, err := findConfigPath(dir)
	if err != nil {
		return nil, err
	}
	if configPath == "" {
		return &ProjectConfig{}, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg ProjectConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &cfg, nil
}

// findConfigPath searches for .prsync/config.yaml in dir and its parent
// directories. Returns the full path, or empty string if not found.
func findConfigPath(dir string) (string, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve absolute path: %w", err)
	}

	for {
		configPath := filepath.Join(absDir, ConfigPath)
		if _, err := os.Stat(configPath); err == nil {
			return configPath, nil
		}

		parentDir := filepath.Dir(absDir)
		if parentDir == absDir {
			return "", nil
		}
		absDir = parentDir
	}
}

// ResolveString returns the effective value for a string field.
// Precedence: cliValue > envValue > configValue > defaultValue.
// Returns the effective value and its source ("cli", "env", "config"
// or "default").
func (c *ProjectConfig) ResolveString(cliValue, envValue, configValue, defaultValue string) (string, string) {
	if cliValue != "" {
		return cliValue, "cli"
	}
	if envValue != "" {
		return envValue, "env"
	}
	if configValue != "" {
		return configValue, "config"
	}
	return defaultValue, "default"
}

// ResolveBranch returns the effective head branch name and its source.
func (c *ProjectConfig) ResolveBranch(cliValue string) (string, string) {
	return c.ResolveString(cliValue, InputString("branch", ""), c.Branch, DefaultBranch)
}

// ResolveBase returns the effective base branch name and its source.
// Empty means "use the checked-out branch".
func (c *ProjectConfig) ResolveBase(cliValue string) (string, string) {
	return c.ResolveString(cliValue, InputString("base", ""), c.Base, "")
}

// ResolveTitle returns the effective pull request title and its source.
func (c *ProjectConfig) ResolveTitle(cliValue string) (string, string) {
	return c.ResolveString(cliValue, InputString("title", ""), c.Title, DefaultTitle)
}

// ResolveCommitMessage returns the effective commit message and its source.
func (c *ProjectConfig) ResolveCommitMessage(cliValue string) (string, string) {
	return c.ResolveString(cliValue, InputString("commit-message", ""), c.CommitMessage, DefaultCommitMessage)
}

// ResolveBranchSuffix returns the effective suffix strategy and its source.
func (c *ProjectConfig) ResolveBranchSuffix(cliValue string) (string, string) {
	return c.ResolveString(cliValue, InputString("branch-suffix", ""), c.BranchSuffix, "none")
}

// ResolveLogLevel returns the effective log level and its source.
func (c *ProjectConfig) ResolveLogLevel(cliValue, defaultValue string) (string, string) {
	return c.ResolveString(cliValue, os.Getenv("PRSYNC_LOG_LEVEL"), c.LogLevel, defaultValue)
}

// InputString reads an Actions-style input from the environment.
// The input name "commit-message" maps to INPUT_COMMIT-MESSAGE, with
// INPUT_COMMIT_MESSAGE accepted as a fallback spelling.
func InputString(name, defaultValue string) string {
	upper := strings.ToUpper(name)
	if v := os.Getenv("INPUT_" + upper); v != "" {
		return v
	}
	if v := os.Getenv("INPUT_" + strings.ReplaceAll(upper, "-", "_")); v != "" {
		return v
	}
	return defaultValue
}

// InputBool reads an Actions-style boolean input. Any casing of "true"
// is true, everything else (including unset) is the default.
func InputBool(name string, defaultValue bool) bool {
	v := InputString(name, "")
	if v == "" {
		return defaultValue
	}
	return strings.EqualFold(v, "true")
}

// InputInt reads an Actions-style integer input, returning the default
// on absence or parse failure
func InputInt(name string, defaultValue int) int {
	v := InputString(name, "")
	if v == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultValue
	}
	return n
}

var listSeparator = regexp.MustCompile(`[\n,]+`)

// InputList reads an Actions-style list input, split on commas or
// newlines with surrounding whitespace trimmed
func InputList(name string) []string {
	return SplitList(InputString(name, ""))
}

// SplitList splits a comma or newline separated string into trimmed
// non-empty items
func SplitList(value string) []string {
	if value == "" {
		return nil
	}
	var items []string
	for _, item := range listSeparator.Split(value, -1) {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

// StripTeamOrgPrefix strips the organization prefix from team
// reviewer identifiers, converting "org/team-name" to "team-name"
func StripTeamOrgPrefix(teams []string) []string {
	stripped := make([]string, len(teams))
	for i, team := range teams {
		if _, name, ok := strings.Cut(team, "/"); ok {
			stripped[i] = name
		} else {
			stripped[i] = team
		}
	}
	return stripped
}

// FromEnv builds run inputs from Actions-style environment variables
// layered over the project config found at path. CLI flags are applied
// by the command layer on top of the returned inputs.
func FromEnv(path string) (*Inputs, error) {
	if path == "" {
		path = "."
	}

	project, err := Load(path)
	if err != nil {
		return nil, err
	}

	in := &Inputs{
		Token:      InputString("token", os.Getenv("GITHUB_TOKEN")),
		Repository: os.Getenv("GITHUB_REPOSITORY"),
		Path:       path,

		AddPaths:      InputList("add-paths"),
		Committer:     InputString("committer", project.Git.Committer),
		Author:        InputString("author", project.Git.Author),
		Signoff:       InputBool("signoff", false),
		SignCommits:   InputBool("sign-commits", false),
		DeleteBranch:  InputBool("delete-branch", project.DeleteBranch),
		PushToFork:    InputString("push-to-fork", ""),
		Body:          InputString("body", ""),
		BodyPath:      InputString("body-path", ""),
		Labels:        InputList("labels"),
		Assignees:     InputList("assignees"),
		Reviewers:     InputList("reviewers"),
		TeamReviewers: StripTeamOrgPrefix(InputList("team-reviewers")),
		Milestone:     InputInt("milestone", 0),
		Draft:         InputBool("draft", false),

		MaintainerCanModify: InputBool("maintainer-can-modify", true),
		DryRun:              InputBool("dry-run", false),
	}

	in.Branch, _ = project.ResolveBranch("")
	in.Base, _ = project.ResolveBase("")
	in.Title, _ = project.ResolveTitle("")
	in.CommitMessage, _ = project.ResolveCommitMessage("")
	in.BranchSuffix, _ = project.ResolveBranchSuffix("")
	in.LogLevel, _ = project.ResolveLogLevel("", "info")

	return in, nil
}

// Validate resolves the body file and checks the invariants that must
// hold before a run starts
func (in *Inputs) Validate() error {
	if in.Token == "" {
		return fmt.Errorf("token is required: set --token, INPUT_TOKEN or GITHUB_TOKEN")
	}

	if in.BodyPath != "" {
		data, err := os.ReadFile(in.BodyPath)
		if err != nil {
			return fmt.Errorf("failed to read body file: %w", err)
		}
		in.Body = string(data)
	}

	if len(in.Body) > MaxBodyLength {
		return fmt.Errorf("body exceeds maximum length of %d characters", MaxBodyLength)
	}

	if in.Repository == "" {
		return fmt.Errorf("repository is required: set --repository or GITHUB_REPOSITORY")
	}
	if !strings.Contains(in.Repository, "/") {
		return fmt.Errorf("repository must be in owner/repo form, got %q", in.Repository)
	}

	return nil
}

// Owner returns the owner half of the target repository
func (in *Inputs) Owner() string {
	owner, _, _ := strings.Cut(in.Repository, "/")
	return owner
}

// Repo returns the name half of the target repository
func (in *Inputs) Repo() string {
	_, repo, _ := strings.Cut(in.Repository, "/")
	return repo
}
