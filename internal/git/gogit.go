package git

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
)

// GoGitClient implements Client in-process with go-git
type GoGitClient struct {
	repo *gogit.Repository
	opts Options
}

// OpenGoGit opens the working copy at dir
func OpenGoGit(dir string, opts Options) (*GoGitClient, error) {
	repo, err := gogit.PlainOpen(dir)
	if err != nil {
		if errors.Is(err, gogit.ErrRepositoryNotExists) {
			return nil, fmt.Errorf("%w: %s", ErrNotRepository, dir)
		}
		return nil, fmt.Errorf("failed to open repository %s: %w", dir, err)
	}
	return &GoGitClient{repo: repo, opts: opts}, nil
}

// ActiveBranch returns the branch HEAD points at, including an unborn branch
func (c *GoGitClient) ActiveBranch(_ context.Context) (string, error) {
	head, err := c.repo.Reference(plumbing.HEAD, false)
	if err != nil {
		return "", fmt.Errorf("failed to read HEAD: %w", err)
	}
	if head.Type() != plumbing.SymbolicReference || !head.Target().IsBranch() {
		return "", ErrDetachedHead
	}
	return head.Target().Short(), nil
}

// IsDirty reports whether tracked files have staged or unstaged changes
func (c *GoGitClient) IsDirty(_ context.Context) (bool, error) {
	wt, err := c.repo.Worktree()
	if err != nil {
		return false, fmt.Errorf("get worktree: %w", err)
	}

	status, err := wt.Status()
	if err != nil {
		return false, fmt.Errorf("git status: %w", err)
	}

	for _, s := range status {
		if s.Staging == gogit.Untracked && s.Worktree == gogit.Untracked {
			continue
		}
		if s.Staging != gogit.Unmodified || s.Worktree != gogit.Unmodified {
			return true, nil
		}
	}
	return false, nil
}

// Remotes returns the sorted names of the configured remotes
func (c *GoGitClient) Remotes(_ context.Context) ([]string, error) {
	remotes, err := c.repo.Remotes()
	if err != nil {
		return nil, fmt.Errorf("list remotes: %w", err)
	}

	names := make([]string, 0, len(remotes))
	for _, r := range remotes {
		names = append(names, r.Config().Name)
	}
	sort.Strings(names)
	return names, nil
}

// Add stages path, which may be a directory
func (c *GoGitClient) Add(_ context.Context, path string) error {
	wt, err := c.repo.Worktree()
	if err != nil {
		return fmt.Errorf("get worktree: %w", err)
	}
	if _, err := wt.Add(filepath.ToSlash(path)); err != nil {
		return fmt.Errorf("git add %s: %w", path, err)
	}
	return nil
}

// Commit records the index. Without a configured author go-git falls back
// to user.name and user.email from the git configuration.
func (c *GoGitClient) Commit(_ context.Context, message string) (string, error) {
	wt, err := c.repo.Worktree()
	if err != nil {
		return "", fmt.Errorf("get worktree: %w", err)
	}

	opts := &gogit.CommitOptions{}
	if c.opts.AuthorName != "" {
		opts.Author = &object.Signature{
			Name:  c.opts.AuthorName,
			Email: c.opts.AuthorEmail,
			When:  time.Now(),
		}
	}

	hash, err := wt.Commit(message, opts)
	if err != nil {
		return "", fmt.Errorf("git commit: %w", err)
	}
	return hash.String(), nil
}

// Push pushes the active branch to remote
func (c *GoGitClient) Push(ctx context.Context, remote string) error {
	branch, err := c.ActiveBranch(ctx)
	if err != nil {
		return err
	}

	r, err := c.repo.Remote(remote)
	if err != nil {
		return fmt.Errorf("remote %s: %w", remote, err)
	}

	ref := plumbing.NewBranchReferenceName(branch)
	pushOpts := &gogit.PushOptions{
		RemoteName: remote,
		RefSpecs:   []config.RefSpec{config.RefSpec(ref + ":" + ref)},
		Auth:       c.auth(r.Config().URLs),
	}

	if err := c.repo.PushContext(ctx, pushOpts); err != nil && !errors.Is(err, gogit.NoErrAlreadyUpToDate) {
		return fmt.Errorf("git push: %w", err)
	}
	return nil
}

// auth returns token credentials for HTTP remotes and nil otherwise, which
// lets go-git pick its default SSH agent authentication.
func (c *GoGitClient) auth(urls []string) transport.AuthMethod {
	if c.opts.Token == "" || len(urls) == 0 || !isHTTPURL(urls[0]) {
		return nil
	}
	return &http.BasicAuth{Username: tokenUsername, Password: c.opts.Token}
}
