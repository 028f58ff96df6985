// Package pathguard decides whether a filesystem path lies inside one of the
// folders the user has authorized.
package pathguard

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"openworker/internal/logging"
)

// FolderLister supplies the current allowed roots. It is consulted on every
// check so folder changes apply immediately.
type FolderLister interface {
	ListFolders() ([]string, error)
}

// StaticFolders is a fixed allow-list.
type StaticFolders []string

func (s StaticFolders) ListFolders() ([]string, error) { return s, nil }

type Guard struct {
	folders FolderLister
	logger  *slog.Logger
}

func New(folders FolderLister, logger *slog.Logger) *Guard {
	return &Guard{folders: folders, logger: logging.OrDiscard(logger)}
}

// Validate reports whether target resolves to an allowed root or a
// descendant of one. Resolution failures yield false.
func (g *Guard) Validate(target string) bool {
	resolved, err := Canonicalize(target)
	if err != nil {
		g.logger.Debug("pathguard.resolve_failed", "path", target, "error", err)
		return false
	}

	return g.allowed(resolved)
}

// Resolve returns the canonical form of target when it is allowed. Tools
// operate on the returned path, never the raw argument.
func (g *Guard) Resolve(target string) (string, error) {
	resolved, err := Canonicalize(target)
	if err != nil || !g.allowed(resolved) {
		return "", &DeniedError{Path: target}
	}
	return resolved, nil
}

// ResolveTarget is Resolve for a path that may not exist yet, such as a
// file about to be written.
func (g *Guard) ResolveTarget(target string) (string, error) {
	resolved, err := CanonicalizeTarget(target)
	if err != nil || !g.allowed(resolved) {
		return "", &DeniedError{Path: target}
	}
	return resolved, nil
}

var errEmptyPath = errors.New("empty path")

// DeniedError is returned for paths outside every allowed root.
type DeniedError struct {
	Path string
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("Error: Access denied. Path '%s' is not in an authorized folder.", e.Path)
}

// Canonicalize returns the absolute, symlink-resolved form of path. The path
// must exist.
func Canonicalize(path string) (string, error) {
	abs, err := absolute(path)
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(abs)
}

// CanonicalDir canonicalizes path and requires it to be a directory. Folders
// are stored in this form.
func CanonicalDir(path string) (string, error) {
	canonical, err := Canonicalize(path)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(canonical)
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%s is not a directory", canonical)
	}
	return canonical, nil
}

func absolute(path string) (string, error) {
	if path == "" {
		return "", errEmptyPath
	}
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		path = filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return filepath.Abs(path)
}

// CanonicalizeTarget resolves path like Canonicalize but tolerates a
// missing tail, resolving the deepest existing ancestor and re-appending the
// remaining components.
func CanonicalizeTarget(path string) (string, error) {
	abs, err := absolute(path)
	if err != nil {
		return "", err
	}
	var rest []string
	cur := abs
	for {
		resolved, err := filepath.EvalSymlinks(cur)
		if err == nil {
			parts := append([]string{resolved}, rest...)
			return filepath.Join(parts...), nil
		}
		if !os.IsNotExist(err) {
			return "", err
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return "", err
		}
		rest = append([]string{filepath.Base(cur)}, rest...)
		cur = parent
	}
}

// ValidateTarget is Validate for a path that may not exist yet.
func (g *Guard) ValidateTarget(target string) bool {
	resolved, err := CanonicalizeTarget(target)
	if err != nil {
		g.logger.Debug("pathguard.resolve_failed", "path", target, "error", err)
		return false
	}
	return g.allowed(resolved)
}

func (g *Guard) allowed(resolved string) bool {
	roots, err := g.folders.ListFolders()
	if err != nil {
		g.logger.Warn("pathguard.list_folders_failed", "error", err)
		return false
	}
	for _, root := range roots {
		rootResolved, err := Canonicalize(root)
		if err != nil {
			continue
		}
		if Within(rootResolved, resolved) {
			return true
		}
	}
	return false
}

// Within reports whether target is root or lies under it. It compares whole
// path components, so /data/ab is not inside /data/a.
func Within(root, target string) bool {
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
