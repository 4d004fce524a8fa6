package git

import (
	"fmt"
	"strings"
)

// CommandError is returned when a git subcommand exits non-zero. It
// carries the full argument list, the exit code, and the combined
// stdout/stderr output so callers can inspect what git reported.
type CommandError struct {
	// Args are the git arguments that were executed (without "git").
	Args []string

	// ExitCode is the process exit code, or -1 if the process could
	// not be started.
	ExitCode int

	// Output is the combined stdout and stderr output.
	Output string
}

// Error returns a single-line description of the failed command.
func (e *CommandError) Error() string {
	return fmt.Sprintf("git %s failed (exit %d): %s",
		strings.Join(e.Args, " "), e.ExitCode, strings.TrimSpace(e.Output))
}

// OutputContains reports whether the captured output contains s.
func (e *CommandError) OutputContains(s string) bool {
	return strings.Contains(e.Output, s)
}
