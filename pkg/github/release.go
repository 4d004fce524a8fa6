package github

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	// ProjectRepoOwner is the GitHub repository owner for prsync
	ProjectRepoOwner = "prsync"
	// ProjectRepoName is the GitHub repository name for prsync
	ProjectRepoName = "prsync"
	// VersionCheckCacheFile is the filename for the version check cache
	VersionCheckCacheFile = "version_check_cache.json"
	// VersionCheckCacheTTL is the time-to-live for the version check cache
	VersionCheckCacheTTL = 24 * time.Hour
	// VersionCheckEnvVar is the environment variable to disable version checking
	VersionCheckEnvVar = "PRSYNC_NO_VERSION_CHECK"
)

// ReleaseInfo represents information about a GitHub release
type ReleaseInfo struct {
	TagName     string    `json:"tag_name"`
	Name        string    `json:"name"`
	Draft       bool      `json:"draft"`
	Prerelease  bool      `json:"prerelease"`
	PublishedAt time.Time `json:"published_at"`
	HTMLURL     string    `json:"html_url"`
}

// versionCacheData represents the cached version check data
type versionCacheData struct {
	LatestVersion string       `json:"latest_version"`
	CacheTime     time.Time    `json:"cache_time"`
	ReleaseInfo   *ReleaseInfo `json:"release_info,omitempty"`
}

// FetchLatestRelease fetches the latest stable release of a repository.
// Drafts and prereleases are skipped; tags must be vX.Y.Z form.
func (c *Client) FetchLatestRelease(ctx context.Context, owner, repo string) (*ReleaseInfo, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/releases", c.baseURL, owner, repo)

	req, err := c.NewRequest(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	var releases []ReleaseInfo
	resp, err := c.Do(req, &releases)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch releases: %w", err)
	}
	defer resp.Close()

	for _, r := range releases {
		if r.Draft || r.Prerelease {
			continue
		}
		if strings.HasPrefix(r.TagName, "v") {
			return &r, nil
		}
	}

	return nil, fmt.Errorf("no stable release found for %s/%s", owner, repo)
}

// CheckForUpdates checks whether a newer prsync release is available.
// Results are cached for VersionCheckCacheTTL; the check is disabled
// entirely when VersionCheckEnvVar is set.
func CheckForUpdates(ctx context.Context, currentVersion string) (*ReleaseInfo, bool, error) {
	if os.Getenv(VersionCheckEnvVar) != "" {
		return nil, false, fmt.Errorf("version check disabled via %s", VersionCheckEnvVar)
	}

	cacheDir, err := os.UserCacheDir()
	if err == nil {
		cached, err := readVersionCache(versionCachePath(cacheDir))
		if err == nil && time.Since(cached.CacheTime) < VersionCheckCacheTTL && cached.ReleaseInfo != nil {
			upToDate := compareVersions(currentVersion, cached.ReleaseInfo.TagName) >= 0
			return cached.ReleaseInfo, upToDate, nil
		}
	}

	// Anonymous client: public releases need no token
	client := NewClient("")
	release, err := client.FetchLatestRelease(ctx, ProjectRepoOwner, ProjectRepoName)
	if err != nil {
		return nil, false, fmt.Errorf("failed to fetch latest release: %w", err)
	}

	if cacheDir != "" {
		_ = writeVersionCache(versionCachePath(cacheDir), &versionCacheData{
			LatestVersion: release.TagName,
			CacheTime:     time.Now(),
			ReleaseInfo:   release,
		})
	}

	upToDate := compareVersions(currentVersion, release.TagName) >= 0
	return release, upToDate, nil
}

func versionCachePath(cacheDir string) string {
	return filepath.Join(cacheDir, "prsync", VersionCheckCacheFile)
}

// readVersionCache reads the version check cache from disk
func readVersionCache(cachePath string) (*versionCacheData, error) {
	data, err := os.ReadFile(cachePath)
	if err != nil {
		return nil, err
	}

	var cache versionCacheData
	if err := json.Unmarshal(data, &cache); err != nil {
		return nil, err
	}

	return &cache, nil
}

// writeVersionCache writes the version check cache to disk
func writeVersionCache(cachePath string, data *versionCacheData) error {
	if err := os.MkdirAll(filepath.Dir(cachePath), 0755); err != nil {
		return err
	}

	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	return os.WriteFile(cachePath, jsonData, 0644)
}

// compareVersions compares two dotted version strings numerically.
// Returns 1 if v1 > v2, -1 if v1 < v2, 0 if equal. A "dev" build
// always counts as newest.
func compareVersions(v1, v2 string) int {
	if v1 == "dev" {
		return 1
	}
	if v2 == "dev" {
		return -1
	}

	parts1 := strings.Split(strings.TrimPrefix(v1, "v"), ".")
	parts2 := strings.Split(strings.TrimPrefix(v2, "v"), ".")

	n := len(parts1)
	if len(parts2) > n {
		n = len(parts2)
	}

	for i := 0; i < n; i++ {
		p1, p2 := versionPart(parts1, i), versionPart(parts2, i)
		if p1 != p2 {
			if p1 > p2 {
				return 1
			}
			return -1
		}
	}
	return 0
}

// versionPart returns the numeric component at index i, with missing
// or non-numeric parts treated as 0
func versionPart(parts []string, i int) int {
	if i >= len(parts) {
		return 0
	}
	n, err := strconv.Atoi(parts[i])
	if err != nil {
		return 0
	}
	return n
}
