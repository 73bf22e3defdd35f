package git

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"
)

// ShellClient implements Client by shelling out to the git command
type ShellClient struct {
	dir  string
	opts Options
}

// NewShellClient creates a new git client that uses the git command
func NewShellClient(dir string, opts Options) *ShellClient {
	return &ShellClient{dir: dir, opts: opts}
}

// ActiveBranch returns the branch HEAD points at
func (c *ShellClient) ActiveBranch(ctx context.Context) (string, error) {
	out, err := c.output(c.command(ctx, "symbolic-ref", "--quiet", "--short", "HEAD"))
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
			return "", ErrDetachedHead
		}
		return "", fmt.Errorf("git symbolic-ref failed: %w", err)
	}
	return strings.TrimSpace(out), nil
}

// IsDirty reports whether tracked files have staged or unstaged changes
func (c *ShellClient) IsDirty(ctx context.Context) (bool, error) {
	out, err := c.output(c.command(ctx, "status", "--porcelain", "--untracked-files=no"))
	if err != nil {
		return false, fmt.Errorf("git status failed: %w", err)
	}
	return strings.TrimSpace(out) != "", nil
}

// Remotes returns the sorted names of the configured remotes
func (c *ShellClient) Remotes(ctx context.Context) ([]string, error) {
	out, err := c.output(c.command(ctx, "remote"))
	if err != nil {
		return nil, fmt.Errorf("git remote failed: %w", err)
	}

	names := strings.Fields(out)
	sort.Strings(names)
	return names, nil
}

// Add stages path, which may be a directory
func (c *ShellClient) Add(ctx context.Context, path string) error {
	if err := c.runCommand(c.command(ctx, "add", "--", path)); err != nil {
		return fmt.Errorf("git add %s failed: %w", path, err)
	}
	return nil
}

// Commit records the index and returns the new HEAD
func (c *ShellClient) Commit(ctx context.Context, message string) (string, error) {
	cmd := c.command(ctx, "commit", "--quiet", "-m", message)
	if c.opts.AuthorName != "" {
		cmd.Args = insertGitFlags(cmd.Args,
			"-c", "user.name="+c.opts.AuthorName,
			"-c", "user.email="+c.opts.AuthorEmail,
		)
	}
	if err := c.runCommand(cmd); err != nil {
		return "", fmt.Errorf("git commit failed: %w", err)
	}

	out, err := c.output(c.command(ctx, "rev-parse", "HEAD"))
	if err != nil {
		return "", fmt.Errorf("git rev-parse failed: %w", err)
	}
	return strings.TrimSpace(out), nil
}

// Push pushes the active branch to remote
func (c *ShellClient) Push(ctx context.Context, remote string) error {
	url, err := c.output(c.command(ctx, "remote", "get-url", remote))
	if err != nil {
		return fmt.Errorf("git remote get-url %s failed: %w", remote, err)
	}

	cmd := c.command(ctx, "push", "--quiet", remote, "HEAD")
	c.configureAuth(cmd, strings.TrimSpace(url))

	if err := c.runCommand(cmd); err != nil {
		return fmt.Errorf("git push failed: %w", err)
	}
	return nil
}

func (c *ShellClient) command(ctx context.Context, args ...string) *exec.Cmd {
	return exec.CommandContext(ctx, "git", append([]string{"-C", c.dir}, args...)...)
}

// configureAuth sets up token authentication for HTTPS remotes
func (c *ShellClient) configureAuth(cmd *exec.Cmd, url string) {
	if c.opts.Token == "" || !isHTTPURL(url) {
		return
	}

	if cmd.Env == nil {
		cmd.Env = os.Environ()
	}

	// Pass the token via environment variable and configure a git
	// credential helper that reads it, so the token never appears in argv.
	cmd.Env = append(cmd.Env, "GIT_TERMINAL_PROMPT=0")
	cmd.Env = append(cmd.Env, "FILEFLYER_GIT_TOKEN="+c.opts.Token)
	cmd.Args = insertGitFlags(cmd.Args,
		"-c", fmt.Sprintf(`credential.helper=!f() { echo "username=%s"; echo "password=$FILEFLYER_GIT_TOKEN"; }; f`, tokenUsername),
	)
}

// insertGitFlags inserts flags immediately after the "git" command name,
// before the subcommand (e.g. "push", "commit").
func insertGitFlags(args []string, flags ...string) []string {
	if len(args) == 0 {
		return flags
	}
	result := make([]string, 0, len(args)+len(flags))
	result = append(result, args[0])
	result = append(result, flags...)
	result = append(result, args[1:]...)
	return result
}

// runCommand executes a command and returns an error with stderr on failure
func (c *ShellClient) runCommand(cmd *exec.Cmd) error {
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s", err, strings.TrimSpace(string(output)))
	}
	return nil
}

// output executes a command and returns its stdout
func (c *ShellClient) output(cmd *exec.Cmd) (string, error) {
	out, err := cmd.Output()
	if err != nil {
		return "", err
	}
	return string(out), nil
}
