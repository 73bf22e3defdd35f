// Package testutil builds throwaway git repositories for tests.
package testutil

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// AuthorName and AuthorEmail sign every commit created by this package
const (
	AuthorName  = "fileflyer-test"
	AuthorEmail = "test@fileflyer.invalid"
)

// Repo is a working copy with a local bare repository configured as "origin"
type Repo struct {
	Dir       string
	RemoteDir string
	Branch    string
	Repo      *gogit.Repository
}

// NewRepo creates a bare remote and a working copy on branch holding one
// pushed commit.
func NewRepo(t *testing.T, branch string) *Repo {
	t.Helper()

	base := t.TempDir()
	remoteDir := filepath.Join(base, "remote.git")
	dir := filepath.Join(base, "work")

	initOpts := &gogit.PlainInitOptions{
		InitOptions: gogit.InitOptions{DefaultBranch: plumbing.NewBranchReferenceName(branch)},
	}

	if _, err := gogit.PlainInitWithOptions(remoteDir, &gogit.PlainInitOptions{
		InitOptions: initOpts.InitOptions,
		Bare:        true,
	}); err != nil {
		t.Fatalf("init bare remote: %v", err)
	}

	repo, err := gogit.PlainInitWithOptions(dir, initOpts)
	if err != nil {
		t.Fatalf("init working copy: %v", err)
	}

	if _, err := repo.CreateRemote(&config.RemoteConfig{Name: "origin", URLs: []string{remoteDir}}); err != nil {
		t.Fatalf("add remote: %v", err)
	}

	r := &Repo{Dir: dir, RemoteDir: remoteDir, Branch: branch, Repo: repo}
	r.CommitFile(t, "README.md", "hosted files\n")

	if err := repo.Push(&gogit.PushOptions{RemoteName: "origin"}); err != nil {
		t.Fatalf("initial push: %v", err)
	}
	return r
}

// WriteFile writes content to a path relative to the working copy
func (r *Repo) WriteFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(r.Dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

// CommitFile writes, stages and commits a file
func (r *Repo) CommitFile(t *testing.T, name, content string) {
	t.Helper()
	r.WriteFile(t, name, content)

	wt, err := r.Repo.Worktree()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := wt.Add(name); err != nil {
		t.Fatalf("add %s: %v", name, err)
	}
	if _, err := wt.Commit("add "+name, &gogit.CommitOptions{Author: Signature()}); err != nil {
		t.Fatalf("commit %s: %v", name, err)
	}
}

// Checkout switches the working copy to a new branch
func (r *Repo) Checkout(t *testing.T, branch string) {
	t.Helper()
	wt, err := r.Repo.Worktree()
	if err != nil {
		t.Fatal(err)
	}
	if err := wt.Checkout(&gogit.CheckoutOptions{
		Branch: plumbing.NewBranchReferenceName(branch),
		Create: true,
	}); err != nil {
		t.Fatalf("checkout %s: %v", branch, err)
	}
	r.Branch = branch
}

// Detach checks out the current commit directly, leaving HEAD off any branch
func (r *Repo) Detach(t *testing.T) {
	t.Helper()
	head, err := r.Repo.Head()
	if err != nil {
		t.Fatal(err)
	}
	wt, err := r.Repo.Worktree()
	if err != nil {
		t.Fatal(err)
	}
	if err := wt.Checkout(&gogit.CheckoutOptions{Hash: head.Hash()}); err != nil {
		t.Fatalf("detach HEAD: %v", err)
	}
	r.Branch = ""
}

// RemoteHead returns the hash of branch in the bare remote
func (r *Repo) RemoteHead(t *testing.T, branch string) string {
	t.Helper()
	remote, err := gogit.PlainOpen(r.RemoteDir)
	if err != nil {
		t.Fatalf("open remote: %v", err)
	}
	ref, err := remote.Reference(plumbing.NewBranchReferenceName(branch), true)
	if err != nil {
		t.Fatalf("remote ref %s: %v", branch, err)
	}
	return ref.Hash().String()
}

// HeadCommit returns the commit HEAD points at
func (r *Repo) HeadCommit(t *testing.T) *object.Commit {
	t.Helper()
	head, err := r.Repo.Head()
	if err != nil {
		t.Fatal(err)
	}
	commit, err := r.Repo.CommitObject(head.Hash())
	if err != nil {
		t.Fatal(err)
	}
	return commit
}

// Signature returns the author used for test commits
func Signature() *object.Signature {
	return &object.Signature{Name: AuthorName, Email: AuthorEmail, When: time.Now()}
}
