package vcs

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// GoGitLister implements Lister on top of go-git, without a git binary
type GoGitLister struct {
	stripPrefix string
}

// NewGoGitLister creates a go-git backed lister
func NewGoGitLister(stripPrefix string) *GoGitLister {
	return &GoGitLister{stripPrefix: stripPrefix}
}

// Changes diffs commit against its first parent. A root commit is diffed
// against the empty tree.
func (l *GoGitLister) Changes(ctx context.Context, commit, repoPath string) (*ChangeSet, error) {
	repo, err := git.PlainOpenWithOptions(repoPath, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("failed to open repository %s: %w", repoPath, err)
	}

	hash, err := repo.ResolveRevision(plumbing.Revision(commit))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve revision %q: %w", commit, err)
	}

	gitCommit, err := repo.CommitObject(*hash)
	if err != nil {
		return nil, fmt.Errorf("failed to read commit %s: %w", hash, err)
	}

	commitTree, err := gitCommit.Tree()
	if err != nil {
		return nil, fmt.Errorf("failed to read tree of %s: %w", hash, err)
	}

	var parentTree *object.Tree
	if gitCommit.NumParents() > 0 {
		parent, err := gitCommit.Parent(0)
		if err != nil {
			return nil, fmt.Errorf("failed to read parent of %s: %w", hash, err)
		}
		parentTree, err = parent.Tree()
		if err != nil {
			return nil, fmt.Errorf("failed to read tree of %s: %w", parent.Hash, err)
		}
	}

	changes, err := parentTree.DiffContext(ctx, commitTree)
	if err != nil {
		return nil, fmt.Errorf("failed to diff %s: %w", hash, err)
	}

	files := make([]string, 0, len(changes))
	for _, change := range changes {
		// Deletions only carry the old name
		name := change.To.Name
		if name == "" {
			name = change.From.Name
		}
		files = append(files, name)
	}

	return &ChangeSet{
		Commit:  commit,
		Message: strings.TrimSpace(gitCommit.Message),
		Files:   stripPrefix(files, l.stripPrefix),
	}, nil
}
