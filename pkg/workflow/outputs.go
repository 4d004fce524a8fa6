package workflow

import (
	"fmt"
	"io"
	"os"
	"strconv"
)

// Outputs are the run results surfaced to the calling workflow
type Outputs struct {
	PullRequestNumber int
	PullRequestURL    string
	Operation         string // created, updated, closed or none
	HeadSHA           string
	Branch            string
	CommitsVerified   bool
}

// pairs returns the outputs in their published order and spelling
func (o *Outputs) pairs() [][2]string {
	number := ""
	if o.PullRequestNumber > 0 {
		number = strconv.Itoa(o.PullRequestNumber)
	}
	return [][2]string{
		{"pull-request-number", number},
		{"pull-request-url", o.PullRequestURL},
		{"pull-request-operation", o.Operation},
		{"pull-request-head-sha", o.HeadSHA},
		{"pull-request-branch", o.Branch},
		{"pull-request-commits-verified", strconv.FormatBool(o.CommitsVerified)},
	}
}

// Write publishes the outputs. When GITHUB_OUTPUT names a file the
// heredoc format is appended to it; otherwise the legacy workflow
// command format goes to w.
func (o *Outputs) Write(w io.Writer) error {
	if path := os.Getenv("GITHUB_OUTPUT"); path != "" {
		return o.writeFile(path)
	}

	for _, kv := range o.pairs() {
		if kv[1] == "" {
			continue
		}
		if _, err := fmt.Fprintf(w, "::set-output name=%s::%s\n", kv[0], kv[1]); err != nil {
			return err
		}
	}
	return nil
}

func (o *Outputs) writeFile(path string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open output file: %w", err)
	}
	defer f.Close()

	for _, kv := range o.pairs() {
		if kv[1] == "" {
			continue
		}
		// Multiline-safe heredoc format
		if _, err := fmt.Fprintf(f, "%s<<EOF\n%s\nEOF\n", kv[0], kv[1]); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
	}
	return nil
}
