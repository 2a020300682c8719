package digest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/Sean-China/auto-update/internal/config"
)

// Repository defines persistence operations for the archive digest record.
type Repository interface {
	Load(ctx context.Context) (string, error)
	Save(ctx context.Context, digest string) error
}

// FileRepository persists the digest record as a single-line text file on
// disk. The record holds the SHA-256 hex digest of the archive processed by
// the previous successful run; it is overwritten, never appended.
type FileRepository struct {
	// path is the filesystem location of the digest file.
	path string
	// mu protects concurrent access to the digest file.
	mu sync.Mutex
}

var (
	// ErrNotFound is returned when the digest record does not exist yet.
	ErrNotFound = errors.New("digest record not found")

	// errEmptyDigest is returned when an empty digest is saved.
	errEmptyDigest = errors.New("digest is empty")
)

// NewFileRepository creates a repository that reads/writes the record at the provided path.
func NewFileRepository(path string) *FileRepository {
	return &FileRepository{
		path: filepath.Clean(path),
	}
}

// Load reads the recorded digest from disk.
func (r *FileRepository) Load(_ context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	contents, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrNotFound
		}

		return "", fmt.Errorf("read digest record: %w", err)
	}

	recorded := strings.TrimSpace(string(contents))
	if recorded == "" {
		return "", ErrNotFound
	}

	return recorded, nil
}

// Save overwrites the recorded digest on disk.
func (r *FileRepository) Save(_ context.Context, digest string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	digest = strings.TrimSpace(digest)
	if digest == "" {
		return errEmptyDigest
	}

	if err := os.WriteFile(r.path, []byte(digest+"\n"), config.DefaultFilePermissions); err != nil {
		return fmt.Errorf("write digest record: %w", err)
	}

	return nil
}
