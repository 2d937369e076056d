package vcs

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/samber/lo"

	"github.com/schaermu/deploystatic/internal/config"
)

// ErrUnavailable is returned when the version control tooling is missing
var ErrUnavailable = errors.New("version control binding not available")

// ChangeSet is the list of files touched by one revision
type ChangeSet struct {
	Commit  string
	Message string
	Files   []string
}

// Lister lists the files changed by a commit relative to its first parent
type Lister interface {
	Changes(ctx context.Context, commit, repoPath string) (*ChangeSet, error)
}

// New returns the Lister selected by cfg.VCS.Driver
func New(cfg *config.Config) (Lister, error) {
	switch cfg.VCS.Driver {
	case config.VCSGoGit, "":
		return NewGoGitLister(cfg.VCS.StripPrefix), nil
	case config.VCSShell:
		return NewShellLister(cfg.VCS.StripPrefix), nil
	default:
		return nil, fmt.Errorf("unknown vcs driver: %s", cfg.VCS.Driver)
	}
}

// LocalLister returns an explicit list of files as the change set
type LocalLister struct {
	files []string
}

// FromFiles creates a Lister for files supplied by the operator
func FromFiles(files []string) *LocalLister {
	return &LocalLister{files: files}
}

// Changes returns the files unchanged, in order, with an empty message.
// commit and repoPath are ignored.
func (l *LocalLister) Changes(_ context.Context, _, _ string) (*ChangeSet, error) {
	files := make([]string, len(l.files))
	copy(files, l.files)
	return &ChangeSet{Files: files}, nil
}

// stripPrefix removes prefix from every path that starts with it
func stripPrefix(files []string, prefix string) []string {
	if prefix == "" {
		return files
	}
	return lo.Map(files, func(f string, _ int) string {
		return strings.TrimPrefix(f, prefix)
	})
}
