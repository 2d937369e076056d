package deploy

// Action is what the deploy does with one changed file
type Action string

const (
	ActionDeploy    Action = "deploy"
	ActionNotStatic Action = "not-static"
	ActionMissing   Action = "missing"
)

// Options controls a single deploy run
type Options struct {
	Commit      string   // revision to deploy, asked for when empty in VCS mode
	Path        string   // working copy, defaults to vcs.default_path
	Files       []string // explicit file list, disables VCS mode
	DryRun      bool
	Interactive bool
	Verbose     bool
}

// Plan is the ordered list of operations, one per changed file
type Plan struct {
	Ops []FileOp
}

// FileOp represents one changed file
type FileOp struct {
	Source  string // path as listed in the change set
	AbsPath string // absolute path in the working copy
	RelPath string // path relative to its static root, empty unless deployable
	Action  Action
}

// Count returns the number of operations with action a
func (p *Plan) Count(a Action) int {
	n := 0
	for _, op := range p.Ops {
		if op.Action == a {
			n++
		}
	}
	return n
}

// Result summarises a deploy run
type Result struct {
	Commit    string
	Copied    []string // relative paths written to storage
	Processed []string // names written by post-processing
	Skipped   []FileOp
	Bytes     int64

	Aborted       bool // operator declined the confirmation
	NotDeployable bool // storage backend does not deploy static files
	NoChanges     bool // change list was empty
}
