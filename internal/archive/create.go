package archive

import (
	"archive/zip"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// Create writes a deflate-compressed ZIP archive of every regular file under
// srcDir to destPath and returns the number of stored files. Entry names are
// prefixed with the base name of srcDir, so repackaging the SaltySD directory
// yields SaltySD/... entries, matching the layout consumers expect.
func Create(srcDir, destPath string) (int, error) {
	outputFile, err := os.Create(filepath.Clean(destPath))
	if err != nil {
		return 0, fmt.Errorf("create archive file: %w", err)
	}

	writer := zip.NewWriter(outputFile)
	prefix := filepath.Base(srcDir)
	stored := 0

	err = filepath.WalkDir(srcDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}

		relative, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}

		if err = storeFile(writer, path, filepath.ToSlash(filepath.Join(prefix, relative))); err != nil {
			return err
		}

		stored++

		return nil
	})
	if err != nil {
		_ = writer.Close()
		_ = outputFile.Close()

		return stored, fmt.Errorf("pack %s: %w", srcDir, err)
	}

	if err = writer.Close(); err != nil {
		_ = outputFile.Close()

		return stored, fmt.Errorf("finalize archive: %w", err)
	}

	if err = outputFile.Close(); err != nil {
		return stored, fmt.Errorf("close archive file: %w", err)
	}

	return stored, nil
}

// storeFile copies one file into the archive under the given entry name.
func storeFile(writer *zip.Writer, path, entryName string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}

	header.Name = entryName
	header.Method = zip.Deflate

	entry, err := writer.CreateHeader(header)
	if err != nil {
		return err
	}

	contents, err := os.Open(filepath.Clean(path))
	if err != nil {
		return err
	}

	defer func() {
		_ = contents.Close()
	}()

	if _, err = io.Copy(entry, contents); err != nil {
		return fmt.Errorf("store %s: %w", entryName, err)
	}

	return nil
}
