package vcs

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// ShellLister implements Lister by shelling out to the git command
type ShellLister struct {
	stripPrefix string
}

// NewShellLister creates a lister that uses the git command
func NewShellLister(stripPrefix string) *ShellLister {
	return &ShellLister{stripPrefix: stripPrefix}
}

// Changes lists the files commit changed relative to its first parent
func (l *ShellLister) Changes(ctx context.Context, commit, repoPath string) (*ChangeSet, error) {
	if _, err := exec.LookPath("git"); err != nil {
		return nil, fmt.Errorf("unable to proceed as git is not installed: %w", ErrUnavailable)
	}

	out, err := l.git(ctx, repoPath, "rev-list", "--parents", "-n", "1", commit+"^{commit}")
	if err != nil {
		return nil, fmt.Errorf("failed to resolve revision %q: %w", commit, err)
	}
	// First field is the commit itself, the rest are its parents
	hashes := strings.Fields(string(out))
	if len(hashes) == 0 {
		return nil, fmt.Errorf("failed to resolve revision %q: no output", commit)
	}
	hash := hashes[0]

	message, err := l.git(ctx, repoPath, "log", "-1", "--format=%B", hash)
	if err != nil {
		return nil, fmt.Errorf("failed to read message of %s: %w", hash, err)
	}

	var diff []byte
	if len(hashes) > 1 {
		diff, err = l.git(ctx, repoPath, "diff", "--no-renames", "--name-only", "-z", hashes[1], hash)
	} else {
		diff, err = l.git(ctx, repoPath, "diff-tree", "-r", "--root", "--no-commit-id", "--name-only", "-z", hash)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to diff %s: %w", hash, err)
	}

	var files []string
	for _, name := range bytes.Split(diff, []byte{0}) {
		if len(name) > 0 {
			files = append(files, string(name))
		}
	}

	return &ChangeSet{
		Commit:  commit,
		Message: strings.TrimSpace(string(message)),
		Files:   stripPrefix(files, l.stripPrefix),
	}, nil
}

// git runs a git subcommand in repoPath and returns its stdout
func (l *ShellLister) git(ctx context.Context, repoPath string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "git", append([]string{"-C", repoPath}, args...)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return output, nil
}
