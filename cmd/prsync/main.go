package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "prsync",
	Short: "Synchronize working-tree changes into a branch and pull request",
	Long: `prsync commits local working-tree changes to a dedicated branch,
pushes it, and creates or updates the matching pull request. Repeated
runs are idempotent: an unchanged working tree never produces new
commits or pushes.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
