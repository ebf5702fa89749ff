// Package publish records cache changes in the git repository that holds
// the state directory.
package publish

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// DefaultTimeout bounds every git invocation.
const DefaultTimeout = 30 * time.Second

// Config defines git publishing behaviour.
type Config struct {
	AuthorName  string        `yaml:"author_name" json:"author_name"`
	AuthorEmail string        `yaml:"author_email" json:"author_email"`
	Remote      string        `yaml:"remote" json:"remote"`
	Branch      string        `yaml:"branch" json:"branch"` // empty pushes the current branch
	Timeout     time.Duration `yaml:"timeout" json:"timeout"`
}

// GitPublisher stages, commits and pushes a working tree.
type GitPublisher struct {
	repoDir string
	config  Config

	// pathspecs limits staging; empty stages the whole work tree
	pathspecs []string
	excludes  []string
}

// NewGitPublisher creates a publisher for the repository at repoDir.
func NewGitPublisher(repoDir string, config Config) *GitPublisher {
	if config.Remote == "" {
		config.Remote = "origin"
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	return &GitPublisher{
		repoDir: repoDir,
		config:  config,
	}
}

// CheckRepository fails when repoDir is not inside a git work tree.
func (g *GitPublisher) CheckRepository(ctx context.Context) error {
	output, err := g.execGit(ctx, "rev-parse", "--is-inside-work-tree")
	if err != nil || strings.TrimSpace(output) != "true" {
		return fmt.Errorf("%s is not a git repository", g.repoDir)
	}
	return nil
}

// Restrict limits StageAll to paths, which must lie inside the repository.
func (g *GitPublisher) Restrict(paths ...string) error {
	scope, err := NewScope(g.repoDir)
	if err != nil {
		return err
	}
	specs := make([]string, 0, len(paths))
	for _, p := range paths {
		spec, err := scope.Pathspec(p)
		if err != nil {
			return err
		}
		specs = append(specs, spec)
	}
	g.pathspecs = specs
	return nil
}

// Exclude keeps paths out of StageAll even when they lie under a
// restricted path. Paths outside the repository are ignored.
func (g *GitPublisher) Exclude(paths ...string) error {
	scope, err := NewScope(g.repoDir)
	if err != nil {
		return err
	}
	specs := make([]string, 0, len(paths))
	for _, p := range paths {
		if p == "" || !scope.Contains(p) {
			continue
		}
		spec, err := scope.Pathspec(p)
		if err != nil {
			return err
		}
		if spec == "." {
			return fmt.Errorf("cannot exclude the whole repository")
		}
		specs = append(specs, ":(exclude)"+spec)
	}
	g.excludes = specs
	return nil
}

// StageAll stages every change under the restricted paths, or in the
// whole work tree when none were given, minus the excluded paths.
func (g *GitPublisher) StageAll(ctx context.Context) error {
	args := []string{"add", "-A"}
	if len(g.pathspecs) > 0 || len(g.excludes) > 0 {
		args = append(args, "--")
		args = append(args, g.pathspecs...)
		args = append(args, g.excludes...)
	}
	if _, err := g.execGit(ctx, args...); err != nil {
		return fmt.Errorf("failed to stage changes: %w", err)
	}
	return nil
}

// HasStagedChanges reports whether the index differs from HEAD.
func (g *GitPublisher) HasStagedChanges(ctx context.Context) (bool, error) {
	_, err := g.execGit(ctx, "diff", "--cached", "--quiet")
	if err == nil {
		return false, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
		return true, nil
	}
	return false, fmt.Errorf("failed to inspect index: %w", err)
}

// Commit commits the index with the configured author. An empty index is
// not an error; nothing is committed.
func (g *GitPublisher) Commit(ctx context.Context, message string) error {
	staged, err := g.HasStagedChanges(ctx)
	if err != nil {
		return err
	}
	if !staged {
		return nil
	}

	args := []string{"commit", "-m", message}
	if g.config.AuthorName != "" && g.config.AuthorEmail != "" {
		args = append(args,
			"--author", fmt.Sprintf("%s <%s>", g.config.AuthorName, g.config.AuthorEmail),
		)
	}

	if _, err := g.execGit(ctx, args...); err != nil {
		return fmt.Errorf("failed to create commit: %w", err)
	}
	return nil
}

// CurrentBranch returns the checked out branch.
func (g *GitPublisher) CurrentBranch(ctx context.Context) (string, error) {
	output, err := g.execGit(ctx, "branch", "--show-current")
	if err != nil {
		return "", fmt.Errorf("failed to get current branch: %w", err)
	}
	return strings.TrimSpace(output), nil
}

// Push pushes the configured branch, or the current one, to the remote.
func (g *GitPublisher) Push(ctx context.Context) error {
	branch := g.config.Branch
	if branch == "" {
		current, err := g.CurrentBranch(ctx)
		if err != nil {
			return err
		}
		branch = current
	}

	if _, err := g.execGit(ctx, "push", g.config.Remote, branch); err != nil {
		return fmt.Errorf("failed to push branch '%s': %w", branch, err)
	}
	return nil
}

// LastCommitMessage returns the subject of HEAD.
func (g *GitPublisher) LastCommitMessage(ctx context.Context) (string, error) {
	output, err := g.execGit(ctx, "log", "-1", "--format=%s")
	if err != nil {
		return "", fmt.Errorf("failed to read last commit: %w", err)
	}
	return strings.TrimSpace(output), nil
}

// execGit executes a git command and returns its output
func (g *GitPublisher) execGit(ctx context.Context, args ...string) (string, error) {
	execCtx, cancel := context.WithTimeout(ctx, g.config.Timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, "git", args...)
	cmd.Dir = g.repoDir

	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("git command failed: %w\nOutput: %s", err, string(output))
	}

	return string(output), nil
}
