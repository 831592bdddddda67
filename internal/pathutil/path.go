// Package pathutil provides helpers for the slash-separated relative paths
// used inside release packages.
package pathutil

import (
	"path/filepath"
	"strings"
)

// FirstComponent returns the first element of a slash-separated path.
func FirstComponent(rel string) string {
	if i := strings.Index(rel, "/"); i >= 0 {
		return rel[:i]
	}
	return rel
}

// IsManaged reports whether rel lies below the managed directory. The
// directory name is compared case-insensitively; a file named like the
// directory at the package root is not managed.
func IsManaged(rel, managedDir string) bool {
	if !strings.Contains(rel, "/") {
		return false
	}
	return strings.EqualFold(FirstComponent(rel), managedDir)
}

// Key returns the case-normalized form of rel used to match package
// entries across trees.
func Key(rel string) string {
	return strings.ToLower(rel)
}

// Rel returns the slash-separated path of p relative to root.
func Rel(root, p string) (string, error) {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(rel), nil
}

// Join resolves a slash-separated relative path under root.
func Join(root, rel string) string {
	return filepath.Join(root, filepath.FromSlash(rel))
}
