package images

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
)

// Storage writes image bytes to a directory tree, one file per stored image:
// {basePath}/{dir}/{imageID}{ext}. Used to export libraries to disk.
// Thread-safe for concurrent operations.
type Storage struct {
	basePath string
	mu       sync.RWMutex
}

// NewStorage creates the base directory if needed.
func NewStorage(basePath string) (*Storage, error) {
	if basePath == "" {
		return nil, fmt.Errorf("base path cannot be empty")
	}
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create export directory: %w", err)
	}
	return &Storage{basePath: basePath}, nil
}

// Save writes data under dir and returns the file path. The extension is
// chosen from the probed format.
func (s *Storage) Save(dir string, imageID int64, data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("image data cannot be empty")
	}

	format := ""
	if info, err := Probe(data); err == nil {
		format = info.Format
	}
	path := s.Path(dir, imageID, format)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write image file: %w", err)
	}
	return path, nil
}

// Get reads a previously saved image.
func (s *Storage) Get(dir string, imageID int64, format string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.Path(dir, imageID, format))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("image %d not found in %s: %w", imageID, dir, err)
		}
		return nil, fmt.Errorf("failed to read image file: %w", err)
	}
	return data, nil
}

// Exists checks whether an image file has been written.
func (s *Storage) Exists(dir string, imageID int64, format string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, err := os.Stat(s.Path(dir, imageID, format))
	return err == nil
}

// Path returns the file path for an image. dir may contain any characters a
// library name can; path separators are replaced.
func (s *Storage) Path(dir string, imageID int64, format string) string {
	return filepath.Join(s.basePath, safeSegment(dir), strconv.FormatInt(imageID, 10)+Extension(format))
}

func safeSegment(name string) string {
	name = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', 0:
			return '_'
		}
		return r
	}, name)
	if name == "" || name == "." || name == ".." {
		return "_"
	}
	return name
}
