package archive

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	securejoin "github.com/cyphar/filepath-securejoin"
)

var (
	// ErrInsecurePath is returned for archive entries that would resolve
	// outside the extraction directory.
	ErrInsecurePath = errors.New("archive entry path is not local")
)

const (
	// dirPermissions is used for directories created during extraction.
	dirPermissions os.FileMode = 0o755

	// defaultEntryPermissions is used for entries without a stored mode.
	defaultEntryPermissions os.FileMode = 0o644
)

// Extract unpacks a ZIP archive into destDir and returns the number of
// extracted files. Opening the archive validates its central directory, so a
// corrupt file fails before anything is written. Entries whose names are
// absolute or escape the destination are rejected with ErrInsecurePath, and
// every write target is additionally confined to destDir with SecureJoin.
func Extract(zipPath, destDir string) (int, error) {
	reader, err := zip.OpenReader(filepath.Clean(zipPath))
	if err != nil {
		return 0, fmt.Errorf("open archive: %w", err)
	}

	defer func() {
		_ = reader.Close()
	}()

	if err = os.MkdirAll(destDir, dirPermissions); err != nil {
		return 0, fmt.Errorf("create extraction directory: %w", err)
	}

	extracted := 0

	for _, entry := range reader.File {
		if err = extractEntry(entry, destDir); err != nil {
			return extracted, err
		}

		if !entry.FileInfo().IsDir() {
			extracted++
		}
	}

	return extracted, nil
}

// extractEntry writes a single archive entry under destDir.
func extractEntry(entry *zip.File, destDir string) error {
	name := filepath.FromSlash(entry.Name)
	if !filepath.IsLocal(name) {
		return fmt.Errorf("%s: %w", entry.Name, ErrInsecurePath)
	}

	target, err := securejoin.SecureJoin(destDir, name)
	if err != nil {
		return fmt.Errorf("%s: %w", entry.Name, ErrInsecurePath)
	}

	if entry.FileInfo().IsDir() {
		if err = os.MkdirAll(target, dirPermissions); err != nil {
			return fmt.Errorf("create directory %s: %w", entry.Name, err)
		}

		return nil
	}

	if err = os.MkdirAll(filepath.Dir(target), dirPermissions); err != nil {
		return fmt.Errorf("create parent directory for %s: %w", entry.Name, err)
	}

	mode := entry.Mode().Perm()
	if mode == 0 {
		mode = defaultEntryPermissions
	}

	contents, err := entry.Open()
	if err != nil {
		return fmt.Errorf("open entry %s: %w", entry.Name, err)
	}

	defer func() {
		_ = contents.Close()
	}()

	outputFile, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return fmt.Errorf("create file for %s: %w", entry.Name, err)
	}

	if _, err = io.Copy(outputFile, contents); err != nil {
		_ = outputFile.Close()

		return fmt.Errorf("extract %s: %w", entry.Name, err)
	}

	if err = outputFile.Close(); err != nil {
		return fmt.Errorf("close %s: %w", entry.Name, err)
	}

	return nil
}
