package publish

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Scope limits staging to paths inside a repository work tree.
type Scope struct {
	repoDir string
}

// NewScope resolves repoDir to an absolute, symlink-free path.
func NewScope(repoDir string) (*Scope, error) {
	if repoDir == "" {
		return nil, fmt.Errorf("repository directory cannot be empty")
	}
	abs, err := filepath.Abs(repoDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve repository directory: %w", err)
	}
	eval, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate repository directory symlinks: %w", err)
	}
	return &Scope{repoDir: eval}, nil
}

// RepoDir returns the resolved repository directory.
func (s *Scope) RepoDir() string {
	return s.repoDir
}

// Contains reports whether path is the repository or lies inside it.
func (s *Scope) Contains(path string) bool {
	resolved := resolveSymlinks(absolute(path))
	return resolved == s.repoDir ||
		strings.HasPrefix(resolved+string(filepath.Separator), s.repoDir+string(filepath.Separator))
}

// Pathspec returns path relative to the repository, for use after "--" on
// a git command line. Relative paths are taken from the working directory.
func (s *Scope) Pathspec(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("path cannot be empty")
	}
	if !s.Contains(path) {
		return "", fmt.Errorf("%s is outside repository %s", path, s.repoDir)
	}
	rel, err := filepath.Rel(s.repoDir, resolveSymlinks(absolute(path)))
	if err != nil {
		return "", fmt.Errorf("failed to make path relative: %w", err)
	}
	return filepath.ToSlash(rel), nil
}

func absolute(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return filepath.Clean(path)
}

// resolveSymlinks resolves the longest existing prefix of path and joins
// the missing components back on, so paths not yet created compare
// correctly on systems where temp directories are symlinks.
func resolveSymlinks(path string) string {
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		return resolved
	}

	var missing []string
	current := path
	for {
		if resolved, err := filepath.EvalSymlinks(current); err == nil {
			for i := len(missing) - 1; i >= 0; i-- {
				resolved = filepath.Join(resolved, missing[i])
			}
			return resolved
		}
		parent := filepath.Dir(current)
		if parent == current {
			return path
		}
		missing = append(missing, filepath.Base(current))
		current = parent
	}
}
