//go:build integration

package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

const (
	binaryName     = "fileflyer"
	workingCopy    = "work"
	defaultTimeout = 2 * time.Minute
)

// Harness builds the fileflyer binary and drives it against a scratch
// workspace holding a bare remote and a working copy, using the git binary.
type Harness struct {
	t         *testing.T
	workDir   string
	binary    string
	keepOnErr bool
}

// NewHarness creates a new test harness. The test is skipped when git is
// not installed.
func NewHarness(t *testing.T) *Harness {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git binary not available")
	}

	h := &Harness{
		t:         t,
		keepOnErr: os.Getenv("INTEGRATION_KEEP_WORKDIR") == "1",
	}

	dir, err := os.MkdirTemp("", "fileflyer-integration-*")
	if err != nil {
		t.Fatalf("create workdir: %v", err)
	}
	h.workDir = dir
	return h
}

// Path returns an absolute path inside the scratch workspace
func (h *Harness) Path(elem ...string) string {
	return filepath.Join(append([]string{h.workDir}, elem...)...)
}

// BuildBinary compiles cmd/fileflyer into the workspace
func (h *Harness) BuildBinary(ctx context.Context) error {
	h.t.Helper()

	projectRoot, err := findProjectRoot()
	if err != nil {
		return fmt.Errorf("get project root: %w", err)
	}

	h.binary = h.Path("bin", binaryName)
	h.t.Logf("Building %s", h.binary)

	cmd := exec.CommandContext(ctx, "go", "build", "-o", h.binary, "./cmd/fileflyer")
	cmd.Dir = projectRoot
	cmd.Stdout = &testWriter{t: h.t, prefix: "[build] "}
	cmd.Stderr = &testWriter{t: h.t, prefix: "[build] "}

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("go build: %w", err)
	}
	return nil
}

// Cleanup removes the workspace
func (h *Harness) Cleanup() {
	h.t.Helper()

	if h.keepOnErr && h.t.Failed() {
		h.t.Logf("Test failed and INTEGRATION_KEEP_WORKDIR=1, keeping %s", h.workDir)
		return
	}
	if err := os.RemoveAll(h.workDir); err != nil {
		h.t.Logf("Warning: failed to remove workdir: %v", err)
	}
}

// Exec runs a command inside the workspace
func (h *Harness) Exec(ctx context.Context, name string, args ...string) (string, string, int, error) {
	h.t.Helper()

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = h.workDir
	cmd.Env = append(os.Environ(),
		"GIT_CONFIG_NOSYSTEM=1",
		"HOME="+h.workDir,
		"NO_COLOR=1",
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			return "", "", 0, fmt.Errorf("exec failed: %w", err)
		}
	}

	return stdout.String(), stderr.String(), exitCode, nil
}

// MustExec runs a command and fails the test if it returns non-zero
func (h *Harness) MustExec(ctx context.Context, name string, args ...string) (string, string) {
	h.t.Helper()
	stdout, stderr, exitCode, err := h.Exec(ctx, name, args...)
	if err != nil {
		h.t.Fatalf("exec failed: %v", err)
	}
	if exitCode != 0 {
		h.t.Fatalf("command failed with exit code %d\nstdout: %s\nstderr: %s\ncmd: %s %v",
			exitCode, stdout, stderr, name, args)
	}
	return stdout, stderr
}

// Run executes the fileflyer binary
func (h *Harness) Run(ctx context.Context, args ...string) (string, string, int, error) {
	h.t.Helper()
	if h.binary == "" {
		return "", "", 0, fmt.Errorf("binary not built")
	}
	return h.Exec(ctx, h.binary, args...)
}

// MustRun executes the fileflyer binary and fails the test on a non-zero exit
func (h *Harness) MustRun(ctx context.Context, args ...string) (string, string) {
	h.t.Helper()
	return h.MustExec(ctx, h.binary, args...)
}

// Git runs git with the working copy as its directory
func (h *Harness) Git(ctx context.Context, args ...string) string {
	h.t.Helper()
	stdout, _ := h.MustExec(ctx, "git", append([]string{"-C", h.Path(workingCopy)}, args...)...)
	return strings.TrimSpace(stdout)
}

// WriteFile writes a file below the workspace
func (h *Harness) WriteFile(path, content string) {
	h.t.Helper()
	full := h.Path(path)
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		h.t.Fatalf("mkdir parent: %v", err)
	}
	if err := os.WriteFile(full, []byte(content), 0644); err != nil {
		h.t.Fatalf("write file: %v", err)
	}
}

// FileExists checks if a file exists below the workspace
func (h *Harness) FileExists(path string) bool {
	h.t.Helper()
	info, err := os.Stat(h.Path(path))
	return err == nil && !info.IsDir()
}

// testWriter wraps test logging for command output
type testWriter struct {
	t      *testing.T
	prefix string
}

func (w *testWriter) Write(p []byte) (n int, err error) {
	lines := strings.Split(string(p), "\n")
	for _, line := range lines {
		if line != "" {
			w.t.Log(w.prefix + line)
		}
	}
	return len(p), nil
}

var _ io.Writer = (*testWriter)(nil)

// findProjectRoot walks up the directory tree from the current file to find go.mod
func findProjectRoot() (string, error) {
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		return "", fmt.Errorf("failed to get caller information")
	}

	dir := filepath.Dir(filename)
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("go.mod not found in any parent directory")
		}
		dir = parent
	}
}
