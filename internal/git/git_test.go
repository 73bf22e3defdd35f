package git

import (
	"context"
	"errors"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/schaermu/fileflyer/internal/testutil"
)

var testOpts = Options{AuthorName: testutil.AuthorName, AuthorEmail: testutil.AuthorEmail}

// backends returns a constructor per backend; the shell backend is skipped
// when no git binary is installed.
func backends(t *testing.T) map[string]func(t *testing.T, dir string) Client {
	t.Helper()
	out := map[string]func(t *testing.T, dir string) Client{
		"go-git": func(t *testing.T, dir string) Client {
			c, err := New(BackendGoGit, dir, testOpts)
			if err != nil {
				t.Fatalf("open go-git client: %v", err)
			}
			return c
		},
	}
	if _, err := exec.LookPath("git"); err == nil {
		out["shell"] = func(t *testing.T, dir string) Client {
			c, err := New(BackendShell, dir, testOpts)
			if err != nil {
				t.Fatalf("open shell client: %v", err)
			}
			return c
		}
	}
	return out
}

func TestClient_ReadOnlyQueries(t *testing.T) {
	ctx := context.Background()

	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			repo := testutil.NewRepo(t, "main")
			client := open(t, repo.Dir)

			branch, err := client.ActiveBranch(ctx)
			if err != nil {
				t.Fatalf("ActiveBranch: %v", err)
			}
			if branch != "main" {
				t.Errorf("expected branch main, got %s", branch)
			}

			dirty, err := client.IsDirty(ctx)
			if err != nil {
				t.Fatalf("IsDirty: %v", err)
			}
			if dirty {
				t.Error("fresh repository reported dirty")
			}

			remotes, err := client.Remotes(ctx)
			if err != nil {
				t.Fatalf("Remotes: %v", err)
			}
			if strings.Join(remotes, ",") != "origin" {
				t.Errorf("expected [origin], got %v", remotes)
			}
		})
	}
}

func TestClient_DirtyTracking(t *testing.T) {
	ctx := context.Background()

	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			repo := testutil.NewRepo(t, "main")
			client := open(t, repo.Dir)

			// Untracked files do not make the tree dirty
			repo.WriteFile(t, "untracked.txt", "new")
			if dirty, err := client.IsDirty(ctx); err != nil || dirty {
				t.Fatalf("untracked file: dirty=%v err=%v", dirty, err)
			}

			// Modified tracked files do
			repo.WriteFile(t, "README.md", "changed\n")
			if dirty, err := client.IsDirty(ctx); err != nil || !dirty {
				t.Fatalf("modified file: dirty=%v err=%v", dirty, err)
			}
		})
	}
}

func TestClient_AddCommitPush(t *testing.T) {
	ctx := context.Background()

	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			repo := testutil.NewRepo(t, "main")
			client := open(t, repo.Dir)

			repo.WriteFile(t, filepath.Join("files", "a.txt"), "a")
			repo.WriteFile(t, filepath.Join("files", "nested", "b.txt"), "b")

			if err := client.Add(ctx, "files"); err != nil {
				t.Fatalf("Add: %v", err)
			}

			hash, err := client.Commit(ctx, "add files")
			if err != nil {
				t.Fatalf("Commit: %v", err)
			}
			if len(hash) != 40 {
				t.Errorf("unexpected commit hash %q", hash)
			}

			commit := repo.HeadCommit(t)
			if commit.Hash.String() != hash {
				t.Errorf("HEAD %s does not match returned hash %s", commit.Hash, hash)
			}
			if commit.Author.Name != testutil.AuthorName {
				t.Errorf("expected author %s, got %s", testutil.AuthorName, commit.Author.Name)
			}
			if _, err := commit.File("files/nested/b.txt"); err != nil {
				t.Errorf("nested file missing from commit: %v", err)
			}

			if dirty, err := client.IsDirty(ctx); err != nil || dirty {
				t.Fatalf("after commit: dirty=%v err=%v", dirty, err)
			}

			if err := client.Push(ctx, "origin"); err != nil {
				t.Fatalf("Push: %v", err)
			}
			if got := repo.RemoteHead(t, "main"); got != hash {
				t.Errorf("remote main = %s, want %s", got, hash)
			}
		})
	}
}

func TestClient_PushUnknownRemote(t *testing.T) {
	ctx := context.Background()

	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			repo := testutil.NewRepo(t, "main")
			client := open(t, repo.Dir)

			if err := client.Push(ctx, "upstream"); err == nil {
				t.Error("expected push to unknown remote to fail")
			}
		})
	}
}

func TestClient_ActiveBranchAfterCheckout(t *testing.T) {
	ctx := context.Background()

	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			repo := testutil.NewRepo(t, "main")
			repo.Checkout(t, "uploads")
			client := open(t, repo.Dir)

			branch, err := client.ActiveBranch(ctx)
			if err != nil {
				t.Fatalf("ActiveBranch: %v", err)
			}
			if branch != "uploads" {
				t.Errorf("expected uploads, got %s", branch)
			}
		})
	}
}

func TestOpenGoGit_NotRepository(t *testing.T) {
	_, err := OpenGoGit(t.TempDir(), Options{})
	if !errors.Is(err, ErrNotRepository) {
		t.Errorf("expected ErrNotRepository, got %v", err)
	}
}

func TestNew_UnknownBackend(t *testing.T) {
	if _, err := New("svn", t.TempDir(), Options{}); err == nil {
		t.Error("expected error for unknown backend")
	}
}

func TestGoGitAuth(t *testing.T) {
	c := &GoGitClient{opts: Options{Token: "tok"}}

	if c.auth([]string{"https://github.com/org/repo.git"}) == nil {
		t.Error("expected token auth for https remote")
	}
	if c.auth([]string{"git@github.com:org/repo.git"}) != nil {
		t.Error("expected no auth for ssh remote")
	}
	if c.auth(nil) != nil {
		t.Error("expected no auth without urls")
	}

	noToken := &GoGitClient{}
	if noToken.auth([]string{"https://github.com/org/repo.git"}) != nil {
		t.Error("expected no auth without token")
	}
}

func TestShellConfigureAuth(t *testing.T) {
	c := NewShellClient("/repo", Options{Token: "s3cr3t-value"})

	cmd := c.command(context.Background(), "push", "origin", "HEAD")
	c.configureAuth(cmd, "https://github.com/org/repo.git")

	if cmd.Args[1] != "-c" || !strings.HasPrefix(cmd.Args[2], "credential.helper=") {
		t.Errorf("credential helper not inserted: %v", cmd.Args)
	}
	for _, arg := range cmd.Args {
		if strings.Contains(arg, "s3cr3t-value") {
			t.Errorf("token leaked into argv: %v", cmd.Args)
		}
	}

	found := false
	for _, env := range cmd.Env {
		if env == "FILEFLYER_GIT_TOKEN=s3cr3t-value" {
			found = true
		}
	}
	if !found {
		t.Error("token not passed through the environment")
	}

	ssh := c.command(context.Background(), "push", "origin", "HEAD")
	c.configureAuth(ssh, "git@github.com:org/repo.git")
	if len(ssh.Args) != len(cmd.Args)-2 {
		t.Errorf("auth configured for ssh remote: %v", ssh.Args)
	}
}

func TestInsertGitFlags(t *testing.T) {
	tests := []struct {
		name  string
		args  []string
		flags []string
		want  []string
	}{
		{
			name:  "insert before subcommand",
			args:  []string{"git", "commit", "-m", "msg"},
			flags: []string{"-c", "key=value"},
			want:  []string{"git", "-c", "key=value", "commit", "-m", "msg"},
		},
		{
			name:  "insert before -C",
			args:  []string{"git", "-C", "/dir", "push", "origin"},
			flags: []string{"-c", "cred=helper"},
			want:  []string{"git", "-c", "cred=helper", "-C", "/dir", "push", "origin"},
		},
		{
			name:  "empty args",
			args:  []string{},
			flags: []string{"-c", "key=value"},
			want:  []string{"-c", "key=value"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := insertGitFlags(tt.args, tt.flags...)
			if len(got) != len(tt.want) {
				t.Fatalf("insertGitFlags() length = %d, want %d\ngot:  %v\nwant: %v", len(got), len(tt.want), got, tt.want)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("insertGitFlags()[%d] = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}
