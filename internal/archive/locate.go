package archive

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
)

var (
	// ErrTargetNotFound is returned when no directory with the requested name
	// exists anywhere in the tree.
	ErrTargetNotFound = errors.New("target directory not found")
)

// LocateDir walks the tree below root and returns the absolute path of the
// first directory whose base name equals name, case-sensitive. WalkDir visits
// entries in lexical order, so when several directories share the name the
// lexicographically first path wins deterministically.
func LocateDir(root, name string) (string, error) {
	var found string

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if !d.IsDir() || path == root || d.Name() != name {
			return nil
		}

		found = path

		return fs.SkipAll
	})
	if err != nil {
		return "", fmt.Errorf("search for %s: %w", name, err)
	}

	if found == "" {
		return "", fmt.Errorf("%s: %w", name, ErrTargetNotFound)
	}

	return filepath.Abs(found)
}
