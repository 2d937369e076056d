package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/samber/lo"
	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/css"
	"github.com/tdewolff/minify/v2/js"

	"github.com/schaermu/deploystatic/internal/config"
	"github.com/schaermu/deploystatic/internal/static"
)

// Group is the asset type of a package
type Group string

const (
	GroupCSS Group = "css"
	GroupJS  Group = "js"
)

var mediaTypes = map[Group]string{
	GroupCSS: "text/css",
	GroupJS:  "application/javascript",
}

// Package is a bundle of static sources written to a single output
type Package struct {
	Name    string
	Group   Group
	Sources []string // doublestar patterns, relative to the static root
	Output  string
}

// Packager expands and concatenates packages
type Packager struct {
	finders  []static.Finder
	ignore   []string
	packages []Package
	packing  bool
	compress bool
	minifier *minify.M
	logger   *slog.Logger
}

// NewPackager builds the CSS then JS packages from the pipeline config
func NewPackager(cfg *config.Config, finders []static.Finder, logger *slog.Logger) *Packager {
	m := minify.New()
	m.AddFunc(mediaTypes[GroupCSS], css.Minify)
	m.AddFunc(mediaTypes[GroupJS], js.Minify)

	packages := append(packagesOf(GroupCSS, cfg.Pipeline.CSS), packagesOf(GroupJS, cfg.Pipeline.JS)...)

	return &Packager{
		finders:  finders,
		ignore:   cfg.IgnorePatterns(),
		packages: packages,
		packing:  cfg.Packing(),
		compress: cfg.Pipeline.Compress,
		minifier: m,
		logger:   logger,
	}
}

// packagesOf converts a config group into packages sorted by name
func packagesOf(group Group, defs map[string]config.Package) []Package {
	names := lo.Keys(defs)
	sort.Strings(names)

	return lo.Map(names, func(name string, _ int) Package {
		def := defs[name]
		return Package{
			Name:    name,
			Group:   group,
			Sources: def.SourceFilenames,
			Output:  def.OutputFilename,
		}
	})
}

// Packages returns every configured package, CSS first
func (p *Packager) Packages() []Package {
	return p.packages
}

// Packing reports whether packages are regenerated
func (p *Packager) Packing() bool {
	return p.packing
}

// Files lists every static file known to the finders
func (p *Packager) Files() ([]static.File, error) {
	return static.ListAll(p.finders, p.ignore)
}

// Paths expands the source patterns of pkg against files. Matches keep
// pattern order and appear once.
func (p *Packager) Paths(pkg Package, files []static.File) []string {
	var paths []string
	for _, pattern := range pkg.Sources {
		var matched []string
		for _, f := range files {
			if ok, _ := doublestar.Match(pattern, f.RelPath); ok {
				matched = append(matched, f.RelPath)
			}
		}
		sort.Strings(matched)
		paths = append(paths, matched...)
	}
	return lo.Uniq(paths)
}

// Existing reads the output of pkg as the finders provide it. It returns nil
// when no finder does.
func (p *Packager) Existing(pkg Package) ([]byte, error) {
	abs, err := static.FindFirst(p.finders, pkg.Output)
	if err != nil || abs == "" {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("package %s: failed to read %s: %w", pkg.Name, abs, err)
	}
	return data, nil
}

// Pack concatenates the sources of pkg, minifying the result when
// compression is enabled
func (p *Packager) Pack(ctx context.Context, pkg Package, paths []string) ([]byte, error) {
	var buf bytes.Buffer
	for i, rel := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		abs, err := static.FindFirst(p.finders, rel)
		if err != nil {
			return nil, err
		}
		if abs == "" {
			return nil, fmt.Errorf("package %s: source %s not found", pkg.Name, rel)
		}

		data, err := os.ReadFile(abs)
		if err != nil {
			return nil, fmt.Errorf("package %s: failed to read %s: %w", pkg.Name, abs, err)
		}
		if i > 0 {
			buf.WriteByte('\n')
		}
		buf.Write(data)
	}

	if !p.compress {
		return buf.Bytes(), nil
	}

	p.logger.Debug("compressing package", "package", pkg.Name, "output", pkg.Output)
	out, err := p.minifier.Bytes(mediaTypes[pkg.Group], buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("package %s: failed to compress: %w", pkg.Name, err)
	}
	return out, nil
}
