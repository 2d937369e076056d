package storage

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

const defaultFileMode os.FileMode = 0o644

// FileSystem stores files below a local directory.
//
// Existing files are overwritten without notice. There is no locking, so two
// concurrent deploys to the same location race and the last write wins.
type FileSystem struct {
	root    string
	baseURL string
	perm    *os.FileMode
	logger  *slog.Logger
}

// NewFileSystem creates a filesystem backend rooted at root. perm, when not
// nil, is applied to every written file.
func NewFileSystem(root, baseURL string, perm *os.FileMode, logger *slog.Logger) *FileSystem {
	return &FileSystem{
		root:    filepath.Clean(root),
		baseURL: baseURL,
		perm:    perm,
		logger:  logger,
	}
}

// Save writes content to root/name, replacing any existing file
func (s *FileSystem) Save(ctx context.Context, name string, content io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	name, err := cleanName(name)
	if err != nil {
		return "", err
	}

	fullPath := s.Path(name)
	s.logger.Debug("writing file", "path", fullPath)

	dir := filepath.Dir(fullPath)
	if info, err := os.Stat(dir); err == nil {
		if !info.IsDir() {
			return "", fmt.Errorf("%s exists and is not a directory", dir)
		}
	} else if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}

	if err := s.writeFile(fullPath, content); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", fullPath, err)
	}

	return name, nil
}

// writeFile writes content to dst through a temp file and an atomic rename
func (s *FileSystem) writeFile(dst string, content io.Reader) error {
	tmpFile, err := os.CreateTemp(filepath.Dir(dst), ".deploystatic-tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmpFile.Name()
	defer func() {
		_ = os.Remove(tmpPath)
	}() // cleanup on error

	if _, err := io.Copy(tmpFile, content); err != nil {
		_ = tmpFile.Close()
		return err
	}

	mode := defaultFileMode
	if s.perm != nil {
		mode = *s.perm
	}
	if err := tmpFile.Chmod(mode); err != nil {
		_ = tmpFile.Close()
		return err
	}

	if err := tmpFile.Close(); err != nil {
		return err
	}

	return os.Rename(tmpPath, dst)
}

// Path returns the local path of name
func (s *FileSystem) Path(name string) string {
	return filepath.Join(s.root, filepath.FromSlash(name))
}

// URL returns base_url joined with name
func (s *FileSystem) URL(name string) string {
	base := s.baseURL
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return base + strings.TrimPrefix(filepath.ToSlash(name), "/")
}

// List returns the names of stored files starting with prefix
func (s *FileSystem) List(ctx context.Context, prefix string) ([]string, error) {
	var names []string
	err := filepath.WalkDir(s.root, func(p string, entry fs.DirEntry, err error) error {
		if err != nil {
			if p == s.root && os.IsNotExist(err) {
				return filepath.SkipDir
			}
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if strings.HasPrefix(rel, prefix) {
			names = append(names, rel)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", s.root, err)
	}
	return names, nil
}
