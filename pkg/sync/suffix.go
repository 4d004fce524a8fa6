package sync

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"time"

	"github.com/prsync/prsync/pkg/git"
)

// SuffixStrategy selects how a branch name is made unique per run.
type SuffixStrategy string

const (
	// SuffixNone uses the branch name as-is.
	SuffixNone SuffixStrategy = ""

	// SuffixTimestamp appends the current epoch seconds.
	SuffixTimestamp SuffixStrategy = "timestamp"

	// SuffixRandom appends a random hex token.
	SuffixRandom SuffixStrategy = "random"

	// SuffixShortCommitHash appends the abbreviated HEAD commit hash.
	SuffixShortCommitHash SuffixStrategy = "short-commit-hash"
)

// randomSuffixLength is the hex length of a random branch suffix.
const randomSuffixLength = 7

// Suffixer applies a suffix strategy to branch names. The clock and
// randomness source are injectable for tests; zero values use the
// real ones.
type Suffixer struct {
	Strategy SuffixStrategy
	Now      func() time.Time
	Rand     io.Reader
}

// Apply returns the branch name with the configured suffix. The suffix
// is computed once; callers must apply it before branch resolution.
func (s Suffixer) Apply(ctx context.Context, client *git.Client, branch string) (string, error) {
	switch s.Strategy {
	case SuffixNone:
		return branch, nil

	case SuffixTimestamp:
		now := s.Now
		if now == nil {
			now = time.Now
		}
		return fmt.Sprintf("%s-%d", branch, now().Unix()), nil

	case SuffixRandom:
		token, err := randomHex(s.Rand, randomSuffixLength)
		if err != nil {
			return "", fmt.Errorf("failed to generate branch suffix: %w", err)
		}
		return fmt.Sprintf("%s-%s", branch, token), nil

	case SuffixShortCommitHash:
		short, err := client.RevParseShort(ctx, "HEAD")
		if err != nil {
			return "", fmt.Errorf("failed to resolve HEAD for branch suffix: %w", err)
		}
		return fmt.Sprintf("%s-%s", branch, short), nil

	default:
		return "", fmt.Errorf("unknown branch suffix strategy %q", s.Strategy)
	}
}

// randomHex returns n hex characters from the given source, or
// crypto/rand when nil.
func randomHex(src io.Reader, n int) (string, error) {
	if src == nil {
		src = rand.Reader
	}
	buf := make([]byte, (n+1)/2)
	if _, err := io.ReadFull(src, buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf)[:n], nil
}
