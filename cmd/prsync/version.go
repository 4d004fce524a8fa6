package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/prsync/prsync/pkg/github"
)

// These variables are set via ldflags during build
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

var versionCheck bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("prsync version %s\n", Version)
		if Commit != "" && Commit != "unknown" {
			fmt.Printf("commit: %s\n", Commit)
		}
		if BuildDate != "" && BuildDate != "unknown" {
			fmt.Printf("built at: %s\n", BuildDate)
		}

		if versionCheck {
			return checkForUpdates(cmd.Context())
		}
		return nil
	},
}

// checkForUpdates reports whether a newer release is available
func checkForUpdates(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	release, upToDate, err := github.CheckForUpdates(ctx, Version)
	if err != nil {
		if os.Getenv(github.VersionCheckEnvVar) != "" {
			return nil
		}
		// Best-effort feature, report but do not fail
		fmt.Fprintf(os.Stderr, "Warning: failed to check for updates: %v\n", err)
		return nil
	}

	if upToDate {
		fmt.Printf("You're running the latest version (%s)\n", release.TagName)
		return nil
	}

	fmt.Printf("\nA newer version is available: %s\n", release.TagName)
	fmt.Printf("Download: %s\n", release.HTMLURL)
	return nil
}

func init() {
	versionCmd.Flags().BoolVar(&versionCheck, "check", false, "Check for newer releases")
	rootCmd.AddCommand(versionCmd)
}
