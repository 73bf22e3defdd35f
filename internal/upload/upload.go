package upload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/schaermu/fileflyer/internal/config"
	"github.com/schaermu/fileflyer/internal/files"
	"github.com/schaermu/fileflyer/internal/folder"
	"github.com/schaermu/fileflyer/internal/git"
	"github.com/schaermu/fileflyer/internal/repo"
)

var (
	// ErrRepoNotReady is returned when the repository preconditions fail
	ErrRepoNotReady = errors.New("repository is not ready for upload")

	// ErrOutsideRepo is returned when a folder template resolves outside the working copy
	ErrOutsideRepo = errors.New("destination folder is outside the repository")

	// ErrDuplicateName is returned when two inputs would be copied to the same path
	ErrDuplicateName = errors.New("inputs share the same name")
)

// RawQuery is appended to share URLs unless the source view is requested
const RawQuery = "?raw=true"

// Engine orchestrates an upload
type Engine struct {
	cfg      *config.Config
	git      git.Client
	checker  *repo.Checker
	resolver *folder.Resolver
	logger   *slog.Logger
	progress Progress
}

// NewEngine creates a new upload engine
func NewEngine(cfg *config.Config, gitClient git.Client, resolver *folder.Resolver, logger *slog.Logger) *Engine {
	return &Engine{
		cfg:      cfg,
		git:      gitClient,
		checker:  repo.NewChecker(cfg, gitClient, logger),
		resolver: resolver,
		logger:   logger,
	}
}

// WithProgress reports copy progress to p
func (e *Engine) WithProgress(p Progress) *Engine {
	e.progress = p
	return e
}

// Run copies paths into a freshly resolved folder of the working copy,
// commits, pushes and returns the share URLs. A failure part way through
// leaves the copied and staged files in place.
func (e *Engine) Run(ctx context.Context, paths []string, opts Options) (*Result, error) {
	if len(paths) == 0 {
		e.logger.Info("no files to upload")
		return &Result{}, nil
	}

	if opts.Folder == "" {
		opts.Folder = config.DefaultFolder
	}

	sources, err := absSources(paths)
	if err != nil {
		return nil, err
	}

	total, err := countFiles(sources)
	if err != nil {
		return nil, err
	}
	if total == 0 {
		e.logger.Info("no files to upload, the given directories are empty", "paths", len(sources))
		return &Result{}, nil
	}

	report := e.checker.Inspect(ctx)
	if !report.OK() {
		e.logger.Error("aborting upload, resolve the repository status first")
		return nil, fmt.Errorf("%w: %w", ErrRepoNotReady, report.Err())
	}

	branch := e.shareBranch(report)
	if branch == "" {
		e.logger.Error("no branch to build share URLs from, configure github.branch or check out a branch")
		return nil, fmt.Errorf("%w: no branch for share URLs", git.ErrDetachedHead)
	}

	root, err := e.cfg.RepoPath()
	if err != nil {
		return nil, err
	}

	template, err := e.cfg.FolderFormat(opts.Folder)
	if err != nil {
		return nil, err
	}

	folderName := e.resolver.Resolve(template)
	destDir, err := destination(root, folderName)
	if err != nil {
		return nil, err
	}

	e.logger.Info("starting upload",
		"files", len(sources),
		"folder", folderName,
		"dry_run", opts.DryRun)

	result := &Result{Folder: folderName}

	if opts.DryRun {
		relPaths, err := e.plan(root, destDir, sources)
		if err != nil {
			return nil, err
		}
		result.Files = e.shareFiles(relPaths, branch, opts.Origin)
		e.logger.Info("dry-run complete, no changes applied")
		return result, nil
	}

	if err := os.MkdirAll(destDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create folder %s: %w", folderName, err)
	}
	e.logger.Debug("created folder", "folder", folderName)

	relPaths, err := e.copyAndStage(ctx, root, destDir, sources)
	if err != nil {
		return nil, err
	}

	commit, err := e.git.Commit(ctx, CommitMessage(relPaths))
	if err != nil {
		return nil, err
	}
	e.logger.Info("committed upload", "commit", commit, "files", len(relPaths))

	remote := e.cfg.RemoteName()
	e.logger.Info("pushing", "remote", remote)
	if err := e.git.Push(ctx, remote); err != nil {
		return nil, err
	}

	result.Commit = commit
	result.Files = e.shareFiles(relPaths, branch, opts.Origin)

	e.logger.Info("upload completed successfully", "files", len(result.Files))
	return result, nil
}

// copyAndStage copies every source into destDir and stages each copy right
// after it was written. It returns the repository relative paths of all
// written files.
func (e *Engine) copyAndStage(ctx context.Context, root, destDir string, sources []string) ([]string, error) {
	if e.progress != nil {
		e.progress.Start(len(sources))
		defer e.progress.Finish()
	}

	var relPaths []string
	for _, src := range sources {
		dest := filepath.Join(destDir, filepath.Base(src))

		info, err := os.Stat(src)
		if err != nil {
			return nil, err
		}

		var written []string
		if info.IsDir() {
			e.logger.Debug("copying directory", "source", src, "dest", dest)
			written, err = files.CopyTree(src, dest)
			if err != nil {
				return nil, fmt.Errorf("failed to copy directory %s: %w", src, err)
			}
		} else {
			e.logger.Debug("copying file", "source", src, "dest", dest)
			if err := files.CopyFile(src, dest); err != nil {
				return nil, fmt.Errorf("failed to copy file %s: %w", src, err)
			}
			written = []string{dest}
		}

		for _, w := range written {
			rel, err := files.RelativePath(root, w)
			if err != nil {
				return nil, err
			}
			relPaths = append(relPaths, rel)
		}

		rel, err := files.RelativePath(root, dest)
		if err != nil {
			return nil, err
		}
		if err := e.git.Add(ctx, rel); err != nil {
			return nil, err
		}

		if e.progress != nil {
			e.progress.Step(src)
		}
	}

	return relPaths, nil
}

// plan computes the relative paths an upload would produce without copying
func (e *Engine) plan(root, destDir string, sources []string) ([]string, error) {
	var relPaths []string
	for _, src := range sources {
		dest := filepath.Join(destDir, filepath.Base(src))

		info, err := os.Stat(src)
		if err != nil {
			return nil, err
		}

		targets := []string{dest}
		if info.IsDir() {
			found, err := files.Walk(src)
			if err != nil {
				return nil, fmt.Errorf("failed to list %s: %w", src, err)
			}
			targets = targets[:0]
			for _, f := range found {
				sub, err := filepath.Rel(src, f)
				if err != nil {
					return nil, err
				}
				targets = append(targets, filepath.Join(dest, sub))
			}
		}

		for _, target := range targets {
			rel, err := files.RelativePath(root, target)
			if err != nil {
				return nil, err
			}
			e.logger.Info("[dry-run] would add", "path", rel, "source", src)
			relPaths = append(relPaths, rel)
		}
	}
	return relPaths, nil
}

// shareBranch prefers the configured branch and falls back to the active one
func (e *Engine) shareBranch(report *repo.Report) string {
	if b := e.cfg.Branch(); b != "" {
		return b
	}
	return report.Status.Branch
}

func (e *Engine) shareFiles(relPaths []string, branch string, origin bool) []File {
	out := make([]File, 0, len(relPaths))
	for _, rel := range relPaths {
		out = append(out, File{
			Path: rel,
			URL:  ShareURL(e.cfg.RepoURL(), branch, rel, !origin),
		})
	}
	return out
}

// ShareURL builds the blob URL of a file. Each path segment is escaped.
func ShareURL(baseURL, branch, relPath string, raw bool) string {
	segments := strings.Split(relPath, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}

	u := strings.TrimRight(baseURL, "/") + "/blob/" + branch + "/" + strings.Join(segments, "/")
	if raw {
		u += RawQuery
	}
	return u
}

// CommitMessage describes an upload of relPaths
func CommitMessage(relPaths []string) string {
	return fmt.Sprintf("[FileFlyer] Add %d file(s).\n\n%s", len(relPaths), strings.Join(relPaths, "\n"))
}

// absSources resolves paths and rejects missing ones before anything is copied
func absSources(paths []string) ([]string, error) {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve %s: %w", p, err)
		}
		if _, err := os.Stat(abs); err != nil {
			return nil, fmt.Errorf("cannot upload %s: %w", p, err)
		}
		out = append(out, abs)
	}
	return out, nil
}

// countFiles returns the number of regular files the sources expand to. Two
// sources with the same base name would land on the same destination and
// are rejected.
func countFiles(sources []string) (int, error) {
	seen := make(map[string]string, len(sources))
	total := 0

	for _, src := range sources {
		name := filepath.Base(src)
		if prev, ok := seen[name]; ok {
			return 0, fmt.Errorf("%w: %s and %s", ErrDuplicateName, prev, src)
		}
		seen[name] = src

		info, err := os.Stat(src)
		if err != nil {
			return 0, err
		}
		if !info.IsDir() {
			total++
			continue
		}

		found, err := files.Walk(src)
		if err != nil {
			return 0, fmt.Errorf("failed to list %s: %w", src, err)
		}
		total += len(found)
	}
	return total, nil
}

// destination joins the resolved folder onto root and keeps it inside root
func destination(root, folderName string) (string, error) {
	dest := filepath.Join(root, filepath.FromSlash(folderName))
	rel, err := filepath.Rel(root, dest)
	if err != nil {
		return "", err
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrOutsideRepo, folderName)
	}
	return dest, nil
}
