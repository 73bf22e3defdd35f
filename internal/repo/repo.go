// Package repo validates that the hosting working copy can accept an upload.
package repo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/schaermu/fileflyer/internal/config"
	"github.com/schaermu/fileflyer/internal/git"
)

var (
	ErrNoURL         = errors.New("no repository base url configured")
	ErrWrongBranch   = errors.New("working copy is not on the target branch")
	ErrDirty         = errors.New("working copy has uncommitted changes")
	ErrNoRemote      = errors.New("no target remote configured")
	ErrRemoteMissing = errors.New("target remote does not exist")
	ErrUnavailable   = errors.New("working copy unavailable")
)

// Status is a snapshot of the working copy, taken fresh on every check
type Status struct {
	Branch  string
	Dirty   bool
	Remotes []string
}

// Report is the outcome of a check. Failures keep the order in which the
// checks ran.
type Report struct {
	Status   Status
	Failures []error
}

// OK reports whether every check passed
func (r *Report) OK() bool {
	return len(r.Failures) == 0
}

// Err returns the first failure, or nil
func (r *Report) Err() error {
	if r.OK() {
		return nil
	}
	return r.Failures[0]
}

// Checker runs the repository preconditions. It never modifies the working copy.
type Checker struct {
	cfg    *config.Config
	git    git.Client
	logger *slog.Logger
}

// NewChecker creates a checker. gitClient may be nil when the working copy
// could not be opened; the git based checks then fail.
func NewChecker(cfg *config.Config, gitClient git.Client, logger *slog.Logger) *Checker {
	return &Checker{
		cfg:    cfg,
		git:    gitClient,
		logger: logger,
	}
}

// Check runs every precondition and reports whether all of them passed
func (c *Checker) Check(ctx context.Context) bool {
	return c.Inspect(ctx).OK()
}

// Inspect runs the checks in order: base url, branch, clean tree, remote
// configured, remote present. Every failure is logged; later checks still run.
func (c *Checker) Inspect(ctx context.Context) *Report {
	report := &Report{}
	fail := func(err error, args ...any) {
		c.logger.Error(err.Error(), args...)
		report.Failures = append(report.Failures, err)
	}

	if c.cfg.RepoURL() == "" {
		fail(ErrNoURL)
	}

	c.checkBranch(ctx, report, fail)

	if c.git == nil {
		fail(fmt.Errorf("clean tree check: %w", ErrUnavailable))
	} else if dirty, err := c.git.IsDirty(ctx); err != nil {
		fail(fmt.Errorf("%w: %v", ErrDirty, err))
	} else {
		report.Status.Dirty = dirty
		if dirty {
			fail(ErrDirty)
		}
	}

	remote := c.cfg.RemoteName()
	if remote == "" {
		fail(ErrNoRemote)
	}

	if c.git == nil {
		fail(fmt.Errorf("remote check: %w", ErrUnavailable))
	} else if remotes, err := c.git.Remotes(ctx); err != nil {
		fail(fmt.Errorf("%w: %v", ErrRemoteMissing, err))
	} else {
		report.Status.Remotes = remotes
		if remote != "" && !slices.Contains(remotes, remote) {
			fail(ErrRemoteMissing, "remote", remote, "available", remotes)
		}
	}

	if report.OK() {
		c.logger.Debug("repository checks passed",
			"branch", report.Status.Branch,
			"remote", remote)
	}
	return report
}

func (c *Checker) checkBranch(ctx context.Context, report *Report, fail func(error, ...any)) {
	if c.git == nil {
		if c.cfg.Branch() != "" {
			fail(fmt.Errorf("branch check: %w", ErrUnavailable))
		}
		return
	}

	active, err := c.git.ActiveBranch(ctx)
	if err == nil {
		report.Status.Branch = active
	}

	want := c.cfg.Branch()
	if want == "" {
		c.logger.Warn("no target branch configured, skipping branch check")
		return
	}

	switch {
	case err != nil:
		fail(fmt.Errorf("%w: %v", ErrWrongBranch, err))
	case active != want:
		fail(ErrWrongBranch, "expected", want, "active", active)
	default:
		c.logger.Debug("working copy is on the expected branch", "branch", want)
	}
}
