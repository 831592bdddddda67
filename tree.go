package deltapkg

import (
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/meigma/deltapkg/internal/pathutil"
)

// treeFile is a regular file found under an extracted package.
type treeFile struct {
	// Rel is the slash-separated path relative to the package root.
	Rel  string
	Path string
	Size int64
}

// listTree returns the regular files under root in lexical order.
func listTree(root string) ([]treeFile, error) {
	var files []treeFile
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := pathutil.Rel(root, p)
		if err != nil {
			return err
		}
		files = append(files, treeFile{Rel: rel, Path: p, Size: info.Size()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", root, err)
	}
	return files, nil
}
