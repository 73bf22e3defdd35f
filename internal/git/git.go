package git

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotRepository is returned when the working copy path is not a git repository
	ErrNotRepository = errors.New("not a git repository")

	// ErrDetachedHead is returned when HEAD does not point at a branch
	ErrDetachedHead = errors.New("HEAD is not on a branch")
)

// Client provides the git operations needed to publish files from a working copy
type Client interface {
	// ActiveBranch returns the short name of the checked out branch
	ActiveBranch(ctx context.Context) (string, error)
	// IsDirty reports uncommitted changes to tracked files; untracked files are ignored
	IsDirty(ctx context.Context) (bool, error)
	// Remotes lists the names of the configured remotes
	Remotes(ctx context.Context) ([]string, error)
	// Add stages a file or directory given relative to the repository root
	Add(ctx context.Context, path string) error
	// Commit records the index and returns the new commit hash
	Commit(ctx context.Context, message string) (string, error)
	// Push pushes the active branch to the named remote
	Push(ctx context.Context, remote string) error
}

// Backend names a Client implementation
type Backend string

const (
	BackendGoGit Backend = "go-git"
	BackendShell Backend = "shell"
)

// Options configures authentication and commit identity
type Options struct {
	// Token authenticates pushes to HTTPS remotes
	Token       string
	AuthorName  string
	AuthorEmail string
}

// New opens the working copy at dir with the requested backend
func New(backend Backend, dir string, opts Options) (Client, error) {
	switch backend {
	case BackendGoGit, "":
		c, err := OpenGoGit(dir, opts)
		if err != nil {
			return nil, err
		}
		return c, nil
	case BackendShell:
		return NewShellClient(dir, opts), nil
	default:
		return nil, fmt.Errorf("unknown git backend: %s", backend)
	}
}

// tokenUsername is accepted by GitHub for token authentication over HTTPS
const tokenUsername = "x-access-token"

func isHTTPURL(url string) bool {
	return strings.HasPrefix(url, "https://") || strings.HasPrefix(url, "http://")
}
