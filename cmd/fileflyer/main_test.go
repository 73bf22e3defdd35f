package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/schaermu/fileflyer/internal/config"
	"github.com/schaermu/fileflyer/internal/git"
	"github.com/schaermu/fileflyer/internal/testutil"
	"github.com/schaermu/fileflyer/internal/upload"
)

// resetFlags restores every flag to its default so commands can be executed
// repeatedly within one test binary.
func resetFlags(t *testing.T) {
	t.Helper()
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	for _, c := range []*cobra.Command{rootCmd, uploadCmd} {
		c.PersistentFlags().VisitAll(reset)
		c.Flags().VisitAll(reset)
	}
}

// execute runs the root command with args and returns stdout and stderr
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	resetFlags(t)
	t.Cleanup(func() { resetFlags(t) })

	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	err := rootCmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeConfig(t *testing.T, repoDir string) string {
	t.Helper()

	content := []byte(`github:
  url: "https://example.com/org/repo"
  remote: origin
  path: "` + repoDir + `"
  branch: main
  token: "s3cr3t"
commit:
  author_name: "` + testutil.AuthorName + `"
  author_email: "` + testutil.AuthorEmail + `"
folders:
  default:
    format: "files/{date}/{XXXXXXXX}"
  fixed:
    format: "uploads/fixed"
`)
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}
	return path
}

func TestSetupLogger(t *testing.T) {
	origDebug, origNoDebug, origFormat := debug, noDebug, logFormat
	t.Cleanup(func() {
		debug, noDebug, logFormat = origDebug, origNoDebug, origFormat
	})

	for _, tc := range []struct {
		name      string
		debug     bool
		noDebug   bool
		logFormat string
		wantDebug bool
	}{
		{name: "default/text", logFormat: "text"},
		{name: "debug/text", debug: true, logFormat: "text", wantDebug: true},
		{name: "debug/json", debug: true, logFormat: "json", wantDebug: true},
		{name: "no-debug/text", noDebug: true, logFormat: "text"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			debug, noDebug, logFormat = tc.debug, tc.noDebug, tc.logFormat

			var buf bytes.Buffer
			logger := setupLogger(&buf)
			if logger == nil {
				t.Fatal("setupLogger returned nil")
			}

			logger.Debug("debug line")
			if got := buf.Len() > 0; got != tc.wantDebug {
				t.Errorf("debug output = %v, want %v", got, tc.wantDebug)
			}
			if tc.wantDebug && tc.logFormat == "json" && !strings.HasPrefix(buf.String(), "{") {
				t.Errorf("expected JSON log line, got %q", buf.String())
			}
		})
	}
}

func TestSetupSignalHandler_Cancel(t *testing.T) {
	before := runtime.NumGoroutine()

	for i := 0; i < 20; i++ {
		ctx, cancel := setupSignalHandler()
		cancel()
		<-ctx.Done()
	}

	deadline := time.Now().Add(2 * time.Second)
	for runtime.NumGoroutine() > before && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if after := runtime.NumGoroutine(); after > before {
		t.Errorf("signal handler goroutines leaked: %d before, %d after", before, after)
	}
}

func TestLoadConfig_CreatesDefault(t *testing.T) {
	origCfgFile := cfgFile
	t.Cleanup(func() { cfgFile = origCfgFile })

	cfgFile = filepath.Join(t.TempDir(), "nested", "config.yaml")
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	cfg, err := loadConfig(logger)
	if err != nil {
		t.Fatalf("loadConfig returned error: %v", err)
	}
	if _, err := cfg.FolderFormat(config.DefaultFolder); err != nil {
		t.Errorf("expected default folder template: %v", err)
	}
	if _, err := os.Stat(cfgFile); err != nil {
		t.Errorf("expected config file to be written: %v", err)
	}
}

func TestLoadConfig_Malformed(t *testing.T) {
	origCfgFile := cfgFile
	t.Cleanup(func() { cfgFile = origCfgFile })

	cfgFile = filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(cfgFile, []byte("github: [unclosed"), 0o600); err != nil {
		t.Fatal(err)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	if _, err := loadConfig(logger); err == nil {
		t.Fatal("expected error for malformed config")
	}
}

func TestNewGitClient(t *testing.T) {
	r := testutil.NewRepo(t, "main")

	cfg := config.Default()
	cfg.GitHub.Path = r.Dir

	client, err := newGitClient(cfg)
	if err != nil {
		t.Fatalf("newGitClient failed: %v", err)
	}
	if _, ok := client.(*git.GoGitClient); !ok {
		t.Errorf("expected go-git client, got %T", client)
	}

	cfg.GitHub.Client = config.ClientShell
	client, err = newGitClient(cfg)
	if err != nil {
		t.Fatalf("newGitClient failed: %v", err)
	}
	if _, ok := client.(*git.ShellClient); !ok {
		t.Errorf("expected shell client, got %T", client)
	}
}

func TestOpenGit_NoWorkingCopy(t *testing.T) {
	cfg := config.Default()
	cfg.GitHub.Path = t.TempDir()

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	if client := openGit(cfg, logger); client != nil {
		t.Errorf("expected nil client, got %T", client)
	}
	if !strings.Contains(buf.String(), "failed to open working copy") {
		t.Errorf("expected error log, got %q", buf.String())
	}
}

func TestVersionCommand(t *testing.T) {
	stdout, _, err := execute(t, "version")
	if err != nil {
		t.Fatalf("version failed: %v", err)
	}
	if !strings.HasPrefix(stdout, "fileflyer dev\n") {
		t.Errorf("unexpected version output %q", stdout)
	}
}

func TestInitCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	stdout, _, err := execute(t, "--config", path, "init")
	if err != nil {
		t.Fatalf("init failed: %v", err)
	}
	if !strings.Contains(stdout, "Created configuration file") {
		t.Errorf("unexpected output %q", stdout)
	}

	stdout, _, err = execute(t, "--config", path, "init")
	if err != nil {
		t.Fatalf("second init failed: %v", err)
	}
	if !strings.Contains(stdout, "already exists") {
		t.Errorf("unexpected output %q", stdout)
	}
}

func TestConfigureCommand(t *testing.T) {
	r := testutil.NewRepo(t, "main")
	path := writeConfig(t, r.Dir)

	stdout, _, err := execute(t, "--config", path, "configure")
	if err != nil {
		t.Fatalf("configure failed: %v", err)
	}

	if !strings.Contains(stdout, "Configuration file: "+path) {
		t.Errorf("missing config path in %q", stdout)
	}
	if strings.Contains(stdout, "s3cr3t") {
		t.Error("token must be masked")
	}
	if !strings.Contains(stdout, "********") {
		t.Errorf("expected masked token in %q", stdout)
	}
	if !strings.Contains(stdout, "  fixed: uploads/fixed\n") {
		t.Errorf("expected folder preview in %q", stdout)
	}
}

func TestRepoCommand(t *testing.T) {
	r := testutil.NewRepo(t, "main")
	path := writeConfig(t, r.Dir)

	stdout, _, err := execute(t, "--config", path, "repo")
	if err != nil {
		t.Fatalf("repo failed: %v", err)
	}
	if !strings.Contains(stdout, "ready for upload") || strings.Contains(stdout, "not ready") {
		t.Errorf("unexpected verdict %q", stdout)
	}

	r.WriteFile(t, "README.md", "changed\n")

	stdout, stderr, err := execute(t, "--config", path, "repo")
	if !errors.Is(err, upload.ErrRepoNotReady) {
		t.Fatalf("expected ErrRepoNotReady, got %v", err)
	}
	if !strings.Contains(stdout, "not ready") {
		t.Errorf("unexpected verdict %q", stdout)
	}
	if !strings.Contains(stderr, "uncommitted changes") {
		t.Errorf("expected the failed check to be logged, got %q", stderr)
	}
}

func TestUploadCommand(t *testing.T) {
	r := testutil.NewRepo(t, "main")
	path := writeConfig(t, r.Dir)

	src := filepath.Join(t.TempDir(), "report.pdf")
	if err := os.WriteFile(src, []byte("%PDF-1.7"), 0o644); err != nil {
		t.Fatal(err)
	}

	stdout, stderr, err := execute(t, "--config", path, "upload", "--folder", "fixed", "--json", src)
	if err != nil {
		t.Fatalf("upload failed: %v\n%s", err, stderr)
	}

	var urls map[string]string
	if err := json.Unmarshal([]byte(stdout), &urls); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, stdout)
	}
	want := "https://example.com/org/repo/blob/main/uploads/fixed/report.pdf?raw=true"
	if urls["uploads/fixed/report.pdf"] != want {
		t.Errorf("unexpected URLs %v", urls)
	}

	if got := r.RemoteHead(t, "main"); got != r.HeadCommit(t).Hash.String() {
		t.Errorf("remote main %s does not match local head", got)
	}
}

func TestUploadCommand_PlainOrigin(t *testing.T) {
	r := testutil.NewRepo(t, "main")
	path := writeConfig(t, r.Dir)

	src := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(src, []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}

	stdout, _, err := execute(t, "--config", path, "upload", "--folder", "fixed", "--origin", "--dry-run", src)
	if err != nil {
		t.Fatalf("upload failed: %v", err)
	}

	want := "uploads/fixed/notes.txt:\n\thttps://example.com/org/repo/blob/main/uploads/fixed/notes.txt\n\n"
	if stdout != want {
		t.Errorf("output = %q, want %q", stdout, want)
	}
	if _, err := os.Stat(filepath.Join(r.Dir, "uploads")); !os.IsNotExist(err) {
		t.Error("dry-run must not copy files")
	}
}

func TestUploadCommand_NoPaths(t *testing.T) {
	r := testutil.NewRepo(t, "main")
	path := writeConfig(t, r.Dir)
	head := r.HeadCommit(t).Hash

	stdout, _, err := execute(t, "--config", path, "upload")
	if err != nil {
		t.Fatalf("upload failed: %v", err)
	}
	if stdout != "" {
		t.Errorf("expected no output, got %q", stdout)
	}
	if r.HeadCommit(t).Hash != head {
		t.Error("expected no commit")
	}
}

func TestUploadCommand_ExclusiveFlags(t *testing.T) {
	for _, args := range [][]string{
		{"upload", "--origin", "--raw", "x"},
		{"upload", "--plain", "--json", "x"},
		{"--debug", "--no-debug", "version"},
	} {
		t.Run(strings.Join(args, " "), func(t *testing.T) {
			if _, _, err := execute(t, args...); err == nil {
				t.Error("expected error for mutually exclusive flags")
			}
		})
	}
}
