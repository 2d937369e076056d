package static

import (
	"path/filepath"
	"strings"
)

// Resolver decides whether an absolute path is a static file
type Resolver struct {
	segment string
	finders []Finder
}

// NewResolver creates a resolver looking for segment (e.g. "/static/") in
// paths and confirming candidates against finders
func NewResolver(segment string, finders ...Finder) *Resolver {
	return &Resolver{segment: segment, finders: finders}
}

// Resolve returns the slash-separated path of abs relative to its static
// root. ok is false when abs is not a static file.
//
// The segment may appear in directories that are not static roots, so every
// candidate must be confirmed by a finder returning abs for it. Occurrences
// are tried left to right.
func (r *Resolver) Resolve(abs string) (rel string, ok bool, err error) {
	abs = filepath.Clean(abs)

	start := 0
	for {
		idx := strings.Index(abs[start:], r.segment)
		if idx < 0 {
			return "", false, nil
		}
		i := start + idx

		candidate := filepath.ToSlash(abs[i+len(r.segment):])
		if candidate != "" {
			confirmed, err := r.confirm(abs, candidate)
			if err != nil {
				return "", false, err
			}
			if confirmed {
				return candidate, true, nil
			}
		}

		// Keep the trailing separator so "/static/static/" is seen twice
		start = i + len(r.segment) - 1
	}
}

// Covers reports whether abs lies where a finder would serve it from,
// regardless of whether the file exists. It tells a deleted static file
// apart from a path that merely contains the segment.
func (r *Resolver) Covers(abs string) bool {
	abs = filepath.Clean(abs)

	start := 0
	for {
		idx := strings.Index(abs[start:], r.segment)
		if idx < 0 {
			return false
		}
		i := start + idx

		if candidate := filepath.ToSlash(abs[i+len(r.segment):]); candidate != "" {
			for _, f := range r.finders {
				for _, p := range f.Locate(candidate) {
					if filepath.Clean(p) == abs {
						return true
					}
				}
			}
		}

		start = i + len(r.segment) - 1
	}
}

func (r *Resolver) confirm(abs, rel string) (bool, error) {
	for _, f := range r.finders {
		found, err := f.Find(rel)
		if err != nil {
			return false, err
		}
		for _, p := range found {
			if p, err := filepath.Abs(p); err == nil && p == abs {
				return true, nil
			}
		}
	}
	return false, nil
}
