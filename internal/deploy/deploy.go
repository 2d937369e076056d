package deploy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/schaermu/deploystatic/internal/config"
	"github.com/schaermu/deploystatic/internal/console"
	"github.com/schaermu/deploystatic/internal/prompt"
	"github.com/schaermu/deploystatic/internal/storage"
	"github.com/schaermu/deploystatic/internal/vcs"
)

const notDeployableMessage = "Looks like you are not using S3 storage or pipeline for static files - " +
	"as such there is no need to deploy any static files."

// ErrCommitRequired is returned when no commit is given and the operator
// cannot be asked for one
var ErrCommitRequired = errors.New("a commit is required when running without input")

// Resolver maps absolute paths to paths relative to their static root
type Resolver interface {
	Resolve(abs string) (rel string, ok bool, err error)
	Covers(abs string) bool
}

// Engine orchestrates the deploy process
type Engine struct {
	cfg      *config.Config
	variant  storage.Variant
	lister   vcs.Lister
	resolver Resolver
	storage  storage.Backend
	prompter prompt.Prompter
	console  console.Console
	logger   *slog.Logger
}

// NewEngine creates a new deploy engine
func NewEngine(cfg *config.Config, variant storage.Variant, lister vcs.Lister, resolver Resolver, backend storage.Backend,
	prompter prompt.Prompter, out console.Console, logger *slog.Logger) *Engine {
	return &Engine{
		cfg:      cfg,
		variant:  variant,
		lister:   lister,
		resolver: resolver,
		storage:  backend,
		prompter: prompter,
		console:  out,
		logger:   logger,
	}
}

// Run executes the complete deploy process
func (e *Engine) Run(ctx context.Context, opts Options) (*Result, error) {
	result := &Result{}

	e.logger.Info("starting deploy",
		"backend", e.variant.Kind,
		"commit", opts.Commit,
		"files", len(opts.Files),
		"dry_run", opts.DryRun)

	// Check the storage actually deploys static files
	if !e.variant.Deployable {
		e.console.Printf(notDeployableMessage)
		result.NotDeployable = true
		return result, nil
	}

	path := opts.Path
	if path == "" {
		path = e.cfg.VCS.DefaultPath
	}
	if path == "" {
		path = ".."
	}

	useVCS := len(opts.Files) == 0
	changes, commit, err := e.changes(ctx, opts, path)
	if err != nil {
		return nil, err
	}
	result.Commit = changes.Commit

	if len(changes.Files) == 0 {
		if useVCS {
			e.console.Printf("No files were changed in revision %s \n\n COMMIT MESSAGE: '%s'", commit, changes.Message)
		} else {
			e.console.Printf("You must specify files to deploy")
		}
		result.NoChanges = true
		return result, nil
	}

	// Show the revision and ask to proceed
	if opts.Interactive {
		ok, err := e.prompter.Confirm(confirmMessage(useVCS, commit, changes), false)
		if err != nil {
			return nil, fmt.Errorf("failed to read confirmation: %w", err)
		}
		if !ok {
			e.console.Printf("Deployment aborted")
			result.Aborted = true
			return result, nil
		}
	}

	plan, err := e.buildPlan(path, changes.Files)
	if err != nil {
		return nil, fmt.Errorf("failed to build deploy plan: %w", err)
	}

	e.logger.Info("deploy plan",
		"deploy", plan.Count(ActionDeploy),
		"not_static", plan.Count(ActionNotStatic),
		"missing", plan.Count(ActionMissing))

	if err := e.applyPlan(ctx, plan, path, opts, result); err != nil {
		return result, fmt.Errorf("failed to apply deploy plan: %w", err)
	}

	if opts.DryRun {
		e.logger.Info("dry-run complete, no changes applied")
		return result, nil
	}

	e.logger.Info("deploy completed successfully",
		"copied", len(result.Copied),
		"processed", len(result.Processed),
		"skipped", len(result.Skipped))
	if len(result.Copied) > 0 {
		e.console.Successf("Deployed %d file(s), %s", len(result.Copied), humanize.Bytes(uint64(result.Bytes)))
	}
	return result, nil
}

// changes obtains the change list and the commit it was read from
func (e *Engine) changes(ctx context.Context, opts Options, path string) (*vcs.ChangeSet, string, error) {
	if len(opts.Files) > 0 {
		cs, err := vcs.FromFiles(opts.Files).Changes(ctx, "", "")
		return cs, "", err
	}

	commit := opts.Commit
	if commit == "" {
		if !opts.Interactive {
			return nil, "", ErrCommitRequired
		}
		answer, err := e.prompter.Ask("What commit do you want to deploy?", "")
		if err != nil {
			return nil, "", fmt.Errorf("failed to read commit: %w", err)
		}
		commit = answer
	}

	e.logger.Info("listing changed files", "commit", commit, "path", path)
	cs, err := e.lister.Changes(ctx, commit, path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to list changed files: %w", err)
	}
	return cs, commit, nil
}

func confirmMessage(useVCS bool, commit string, cs *vcs.ChangeSet) string {
	var b strings.Builder
	if useVCS {
		fmt.Fprintf(&b, "Are you sure you want to deploy commit %s\nCOMMIT MESSAGE: '%s' \nFILES CHANGED:", commit, cs.Message)
	} else {
		b.WriteString("Are you sure you want to deploy these files:")
	}
	for _, f := range cs.Files {
		b.WriteString("\n\t")
		b.WriteString(f)
	}
	b.WriteString("\n")
	return b.String()
}

// buildPlan resolves every changed file below path, keeping list order
func (e *Engine) buildPlan(path string, files []string) (*Plan, error) {
	root, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve working copy path: %w", err)
	}

	plan := &Plan{Ops: make([]FileOp, 0, len(files))}
	for _, file := range files {
		op := FileOp{
			Source:  file,
			AbsPath: filepath.Join(root, filepath.FromSlash(file)),
		}

		rel, ok, err := e.resolver.Resolve(op.AbsPath)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve %s: %w", op.AbsPath, err)
		}

		switch {
		case ok && isFile(op.AbsPath):
			op.RelPath = rel
			op.Action = ActionDeploy
		case ok:
			op.Action = ActionMissing
		case !exists(op.AbsPath) && e.resolver.Covers(op.AbsPath):
			// Finders only confirm files that exist, so a deleted static
			// file never resolves
			op.Action = ActionMissing
		default:
			op.Action = ActionNotStatic
		}

		plan.Ops = append(plan.Ops, op)
	}

	return plan, nil
}

// applyPlan copies and post-processes every deployable file in order. The
// first storage failure stops the run; files already written stay written.
func (e *Engine) applyPlan(ctx context.Context, plan *Plan, path string, opts Options, result *Result) error {
	processor, canProcess := e.storage.(storage.PostProcessor)

	for _, op := range plan.Ops {
		if err := ctx.Err(); err != nil {
			return err
		}

		if opts.Verbose {
			e.console.Printf("file_changed = %s ", op.Source)
			e.console.Printf("path = %s ", path)
			e.console.Printf("abs_path = %s ", op.AbsPath)
			e.console.Printf("relative_path = %s ", op.RelPath)
		}

		switch op.Action {
		case ActionNotStatic:
			e.console.Warnf("%s is _NOT_ a media/static file and will not be deployed", op.Source)
			result.Skipped = append(result.Skipped, op)
			continue
		case ActionMissing:
			e.console.Warnf("%s doesn't exist locally so can't be deployed", op.AbsPath)
			result.Skipped = append(result.Skipped, op)
			continue
		}

		pairs := []storage.SourcePair{{AbsPath: op.AbsPath, RelPath: op.RelPath}}

		if opts.DryRun {
			e.console.Printf("[dry-run] would copy %s", op.RelPath)
			e.logger.Info("[dry-run] would copy", "source", op.AbsPath, "dest", e.storage.URL(op.RelPath))
			if canProcess {
				if _, err := processor.PostProcess(ctx, pairs, true); err != nil {
					return fmt.Errorf("failed to post-process %s: %w", op.RelPath, err)
				}
			}
			continue
		}

		written, err := e.copyFile(ctx, op)
		if err != nil {
			return fmt.Errorf("failed to copy %s: %w", op.RelPath, err)
		}
		result.Copied = append(result.Copied, op.RelPath)
		result.Bytes += written
		e.console.Printf("\tcopied %s ", op.RelPath)

		if !canProcess {
			continue
		}

		processed, err := processor.PostProcess(ctx, pairs, false)
		if err != nil {
			return fmt.Errorf("failed to post-process %s: %w", op.RelPath, err)
		}
		for _, p := range processed {
			if p.Processed {
				e.logger.Debug("post-processed", "original", p.Original, "name", p.Name)
				result.Processed = append(result.Processed, p.Name)
			}
		}
		e.console.Printf("\tprocessed %s ", op.RelPath)
	}

	return nil
}

// copyFile saves the local file through the storage backend
func (e *Engine) copyFile(ctx context.Context, op FileOp) (int64, error) {
	f, err := os.Open(op.AbsPath)
	if err != nil {
		return 0, err
	}
	defer func() {
		_ = f.Close()
	}()

	info, err := f.Stat()
	if err != nil {
		return 0, err
	}

	name, err := e.storage.Save(ctx, op.RelPath, f)
	if err != nil {
		return 0, err
	}

	e.logger.Info("copied file",
		"source", op.AbsPath,
		"dest", e.storage.URL(name),
		"size", humanize.Bytes(uint64(info.Size())))
	return info.Size(), nil
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
