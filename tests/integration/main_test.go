package integration

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/rogpeppe/go-internal/testscript"
)

var (
	repoRoot  string
	prsyncBin string
)

func TestMain(m *testing.M) {
	var err error
	repoRoot, err = findRepoRoot()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	binDir, err := os.MkdirTemp("", "prsync-bin-*")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	prsyncBin = filepath.Join(binDir, "prsync")
	if runtime.GOOS == "windows" {
		prsyncBin += ".exe"
	}

	cmd := exec.Command("go", "build", "-o", prsyncBin, "./cmd/prsync")
	cmd.Dir = repoRoot
	cmd.Env = append(os.Environ(), "CGO_ENABLED=0")
	if out, err := cmd.CombinedOutput(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to build prsync: %v\n%s\n", err, string(out))
		_ = os.RemoveAll(binDir)
		os.Exit(2)
	}

	exitCode := m.Run()
	_ = os.RemoveAll(binDir)
	os.Exit(exitCode)
}

func TestIntegration(t *testing.T) {
	testscript.Run(t, testscript.Params{
		Dir: filepath.Join(repoRoot, "tests", "integration", "testdata"),
		Setup: func(env *testscript.Env) error {
			home := filepath.Join(env.WorkDir, "home")
			tmp := filepath.Join(env.WorkDir, "tmp")
			if err := os.MkdirAll(home, 0o755); err != nil {
				return err
			}
			if err := os.MkdirAll(tmp, 0o755); err != nil {
				return err
			}

			env.Setenv("HOME", home)
			env.Setenv("TMPDIR", tmp)
			env.Setenv("TEMP", tmp)
			env.Setenv("TMP", tmp)

			// Keep the suite hermetic: no host git config, no output
			// file, no update checks
			env.Setenv("GIT_CONFIG_NOSYSTEM", "1")
			env.Setenv("GITHUB_OUTPUT", "")
			env.Setenv("PRSYNC_NO_VERSION_CHECK", "1")

			pathVar := os.Getenv("PATH")
			env.Setenv("PATH", filepath.Dir(prsyncBin)+string(os.PathListSeparator)+pathVar)
			env.Setenv("PRSYNC_BIN", prsyncBin)
			return nil
		},
	})
}

func findRepoRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", fmt.Errorf("unable to locate repo root (go.mod not found)")
}
