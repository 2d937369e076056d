package static

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/samber/lo"

	"github.com/schaermu/deploystatic/internal/config"
)

// File is a static file as seen by a finder
type File struct {
	RelPath string // slash-separated path relative to the static root
	AbsPath string
}

// Finder maps relative static paths to the files that provide them
type Finder interface {
	// Find returns every absolute path that provides rel
	Find(rel string) ([]string, error)
	// Locate returns the paths that would provide rel, whether or not they
	// exist
	Locate(rel string) []string
	// List returns every static file under the finder's authority,
	// skipping names matching an ignore pattern
	List(ignore []string) ([]File, error)
}

// location is a directory serving static files, optionally under a prefix
type location struct {
	prefix string
	root   string
}

// resolve maps a relative static path to a path under the location
func (l location) resolve(rel string) (string, bool) {
	if l.prefix != "" {
		p := l.prefix + "/"
		if !strings.HasPrefix(rel, p) {
			return "", false
		}
		rel = strings.TrimPrefix(rel, p)
	}
	local := filepath.FromSlash(rel)
	if !filepath.IsLocal(local) {
		return "", false
	}
	return filepath.Join(l.root, local), true
}

type locations []location

func (ls locations) find(rel string) ([]string, error) {
	var found []string
	for _, l := range ls {
		candidate, ok := l.resolve(rel)
		if !ok {
			continue
		}
		// Any stat failure is a miss: a parent replaced by a file gives
		// ENOTDIR rather than ENOENT
		info, err := os.Stat(candidate)
		if err != nil {
			continue
		}
		if !info.IsDir() {
			found = append(found, candidate)
		}
	}
	return found, nil
}

func (ls locations) locate(rel string) []string {
	var candidates []string
	for _, l := range ls {
		if candidate, ok := l.resolve(rel); ok {
			candidates = append(candidates, candidate)
		}
	}
	return candidates
}

func (ls locations) list(ignore []string) ([]File, error) {
	var files []File
	for _, l := range ls {
		err := filepath.WalkDir(l.root, func(p string, entry fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if p == l.root {
				return nil
			}

			rel, err := filepath.Rel(l.root, p)
			if err != nil {
				return err
			}
			rel = filepath.ToSlash(rel)

			if matchesPatterns(entry.Name(), ignore) || matchesPatterns(rel, ignore) {
				if entry.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}

			if !entry.IsDir() {
				if l.prefix != "" {
					rel = path.Join(l.prefix, rel)
				}
				files = append(files, File{RelPath: rel, AbsPath: p})
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list %s: %w", l.root, err)
		}
	}
	return files, nil
}

// matchesPatterns reports whether name matches any of the patterns
func matchesPatterns(name string, patterns []string) bool {
	return lo.SomeBy(patterns, func(pattern string) bool {
		ok, err := doublestar.Match(pattern, name)
		return err == nil && ok
	})
}

// FileSystemFinder finds static files in explicitly configured directories
type FileSystemFinder struct {
	locations locations
}

// NewFileSystemFinder creates a finder over dirs
func NewFileSystemFinder(dirs []config.StaticDir) *FileSystemFinder {
	f := &FileSystemFinder{}
	for _, d := range dirs {
		f.locations = append(f.locations, location{prefix: d.Prefix, root: filepath.Clean(d.Path)})
	}
	return f
}

func (f *FileSystemFinder) Find(rel string) ([]string, error) {
	return f.locations.find(rel)
}

func (f *FileSystemFinder) Locate(rel string) []string {
	return f.locations.locate(rel)
}

func (f *FileSystemFinder) List(ignore []string) ([]File, error) {
	return f.locations.list(ignore)
}

// AppDirectoriesFinder finds static files in the "static" subdirectory of
// every application directory matched by the configured globs
type AppDirectoriesFinder struct {
	locations locations
}

// NewAppDirectoriesFinder expands patterns and keeps every match that has a
// static subdirectory named segment. Relative patterns are expanded against
// the working directory and the roots stored absolute.
func NewAppDirectoriesFinder(patterns []string, segment string) (*AppDirectoriesFinder, error) {
	var roots []string
	for _, pattern := range patterns {
		matches, err := doublestar.FilepathGlob(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid app_dirs pattern %q: %w", pattern, err)
		}
		for _, m := range matches {
			root, err := filepath.Abs(filepath.Join(m, segment))
			if err != nil {
				return nil, fmt.Errorf("failed to resolve app dir %s: %w", m, err)
			}
			if info, err := os.Stat(root); err == nil && info.IsDir() {
				roots = append(roots, root)
			}
		}
	}
	roots = lo.Uniq(roots)
	sort.Strings(roots)

	f := &AppDirectoriesFinder{}
	for _, root := range roots {
		f.locations = append(f.locations, location{root: root})
	}
	return f, nil
}

func (f *AppDirectoriesFinder) Find(rel string) ([]string, error) {
	return f.locations.find(rel)
}

func (f *AppDirectoriesFinder) Locate(rel string) []string {
	return f.locations.locate(rel)
}

func (f *AppDirectoriesFinder) List(ignore []string) ([]File, error) {
	return f.locations.list(ignore)
}

// NewFinders builds the configured finders: explicit directories first,
// then application directories
func NewFinders(cfg *config.Config) ([]Finder, error) {
	apps, err := NewAppDirectoriesFinder(cfg.Static.AppDirs, cfg.Static.Segment)
	if err != nil {
		return nil, err
	}
	return []Finder{NewFileSystemFinder(cfg.Static.Dirs), apps}, nil
}

// ListAll lists the files of every finder. When several files provide the
// same relative path the first one found wins.
func ListAll(finders []Finder, ignore []string) ([]File, error) {
	var all []File
	for _, f := range finders {
		files, err := f.List(ignore)
		if err != nil {
			return nil, err
		}
		all = append(all, files...)
	}
	return lo.UniqBy(all, func(f File) string { return f.RelPath }), nil
}

// FindFirst returns the first file providing rel, or "" when none does
func FindFirst(finders []Finder, rel string) (string, error) {
	for _, f := range finders {
		found, err := f.Find(rel)
		if err != nil {
			return "", err
		}
		if len(found) > 0 {
			return found[0], nil
		}
	}
	return "", nil
}
