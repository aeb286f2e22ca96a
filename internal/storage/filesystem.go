package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ErrEmptyArtifact reports a produced file with no content.
var ErrEmptyArtifact = errors.New("storage: artifact is empty")

// FileStore owns the directory where produced media artifacts live until they
// are retrieved or reaped.
type FileStore struct {
	basePath string
}

// NewFileStore initializes a FileStore rooted at basePath.
func NewFileStore(basePath string) (*FileStore, error) {
	basePath = strings.TrimSpace(basePath)
	if basePath == "" {
		return nil, errors.New("storage: base path is required")
	}
	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve base path: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("storage: ensure base path: %w", err)
	}
	return &FileStore{basePath: abs}, nil
}

// BasePath returns the configured root directory.
func (s *FileStore) BasePath() string {
	if s == nil {
		return ""
	}
	return s.basePath
}

// PathFor returns the artifact location for a job id and file extension.
func (s *FileStore) PathFor(id, ext string) (string, error) {
	if err := validateID(id); err != nil {
		return "", err
	}
	key, err := sanitizeKey(id + "." + strings.TrimPrefix(ext, "."))
	if err != nil {
		return "", err
	}
	return filepath.Join(s.basePath, key), nil
}

// Verify checks that path is a regular, non-empty file inside the store.
func (s *FileStore) Verify(path string) (fs.FileInfo, error) {
	if err := s.contains(path); err != nil {
		return nil, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("storage: stat artifact: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("storage: %s is not a regular file", filepath.Base(path))
	}
	if info.Size() == 0 {
		return nil, ErrEmptyArtifact
	}
	return info, nil
}

// Open opens an artifact for streaming. A missing file reports fs.ErrNotExist.
func (s *FileStore) Open(path string) (*os.File, fs.FileInfo, error) {
	if err := s.contains(path); err != nil {
		return nil, nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	return f, info, nil
}

// Remove deletes a single artifact. A file that is already gone is not an error.
func (s *FileStore) Remove(path string) error {
	if path == "" {
		return nil
	}
	if err := s.contains(path); err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("storage: remove artifact: %w", err)
	}
	return nil
}

// RemoveJobArtifacts deletes every file the external tool may have left for
// a job, including partial downloads such as <id>.mp4.part.
func (s *FileStore) RemoveJobArtifacts(_ context.Context, id string) error {
	if err := validateID(id); err != nil {
		return err
	}
	matches, err := filepath.Glob(filepath.Join(s.basePath, globEscape(id)+".*"))
	if err != nil {
		return fmt.Errorf("storage: glob artifacts: %w", err)
	}
	var errs []error
	for _, m := range matches {
		if err := s.Remove(m); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *FileStore) contains(path string) error {
	rel, err := filepath.Rel(s.basePath, filepath.Clean(path))
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("storage: %q is outside the artifact directory", path)
	}
	return nil
}

// validateID keeps job ids to a single path element.
func validateID(id string) error {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) {
		return fmt.Errorf("storage: invalid id %q", id)
	}
	return nil
}

func globEscape(s string) string {
	r := strings.NewReplacer(`*`, `\*`, `?`, `\?`, `[`, `\[`, `\`, `\\`)
	return r.Replace(s)
}

// sanitizeKey normalizes a key and prevents escaping the storage root.
func sanitizeKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", errors.New("storage: key is required")
	}
	key = strings.ReplaceAll(key, "\\", "/")
	key = strings.TrimPrefix(key, "./")
	key = strings.TrimLeft(key, "/")
	cleaned := filepath.Clean(key)
	cleaned = strings.ReplaceAll(cleaned, "\\", "/")
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", errors.New("storage: invalid key")
	}
	return cleaned, nil
}
