package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/samber/lo"

	"github.com/schaermu/deploystatic/internal/static"
	"github.com/schaermu/deploystatic/internal/storage"
)

// Storage adds post-processing to a storage backend: packages containing a
// deployed file are rebuilt and, for hashed variants, content-hashed copies
// are written next to the originals.
type Storage struct {
	storage.Backend
	variant  storage.Variant
	packager *Packager
	logger   *slog.Logger
}

var _ storage.PostProcessor = (*Storage)(nil)

// Wrap decorates backend according to variant. Variants that neither bundle
// nor hash are returned unchanged.
func Wrap(backend storage.Backend, variant storage.Variant, packager *Packager, logger *slog.Logger) storage.Backend {
	if !variant.Bundled && !variant.Hashed {
		return backend
	}
	return &Storage{
		Backend:  backend,
		variant:  variant,
		packager: packager,
		logger:   logger,
	}
}

// List forwards to the wrapped backend when it can list
func (s *Storage) List(ctx context.Context, prefix string) ([]string, error) {
	lister, ok := s.Backend.(storage.Lister)
	if !ok {
		return nil, fmt.Errorf("storage backend %s cannot list files", s.variant.Kind)
	}
	return lister.List(ctx, prefix)
}

// PostProcess rebuilds the packages that contain any of paths and writes
// hashed copies. Nothing is written on a dry run.
func (s *Storage) PostProcess(ctx context.Context, paths []storage.SourcePair, dryRun bool) ([]storage.Processed, error) {
	if dryRun || len(paths) == 0 {
		return nil, nil
	}

	var (
		results []storage.Processed
		files   = lazyFiles(s.packager)
		packed  = make(map[string]bool)
	)

	for _, pair := range paths {
		var outputs []packedOutput

		if s.variant.Bundled && s.packager != nil {
			all, err := files()
			if err != nil {
				return results, fmt.Errorf("failed to list static files: %w", err)
			}

			for _, pkg := range s.packager.Packages() {
				if packed[pkg.Output] {
					continue
				}
				sources := s.packager.Paths(pkg, all)
				if !lo.Contains(sources, pair.RelPath) {
					continue
				}
				packed[pkg.Output] = true

				out, err := s.output(ctx, pkg, sources)
				if err != nil {
					return results, err
				}
				if out.content != nil {
					outputs = append(outputs, out)
				}
				results = append(results, storage.Processed{Original: pkg.Output, Name: out.name, Processed: true})
			}
		}

		if !s.variant.Hashed {
			continue
		}

		data, err := os.ReadFile(pair.AbsPath)
		if err != nil {
			return results, fmt.Errorf("failed to read %s: %w", pair.AbsPath, err)
		}
		processed, err := s.saveHashed(ctx, pair.RelPath, data)
		if err != nil {
			return results, err
		}
		results = append(results, processed)

		for _, out := range outputs {
			processed, err := s.saveHashed(ctx, out.name, out.content)
			if err != nil {
				return results, err
			}
			results = append(results, processed)
		}
	}

	return results, nil
}

// output rebuilds pkg when packing is on. Otherwise the output already on
// disk is reported as is and only its content is read for hashing; content
// stays nil when no finder provides it.
func (s *Storage) output(ctx context.Context, pkg Package, sources []string) (packedOutput, error) {
	if !s.packager.Packing() {
		content, err := s.packager.Existing(pkg)
		if err != nil {
			return packedOutput{}, err
		}
		return packedOutput{name: pkg.Output, content: content}, nil
	}

	content, err := s.packager.Pack(ctx, pkg, sources)
	if err != nil {
		return packedOutput{}, err
	}
	name, err := s.Save(ctx, pkg.Output, bytes.NewReader(content))
	if err != nil {
		return packedOutput{}, fmt.Errorf("failed to save package %s: %w", pkg.Name, err)
	}

	s.logger.Debug("package rebuilt", "package", pkg.Name, "output", name, "sources", len(sources))
	return packedOutput{name: name, content: content}, nil
}

func (s *Storage) saveHashed(ctx context.Context, name string, content []byte) (storage.Processed, error) {
	hashed := storage.HashedName(name, content)
	saved, err := s.Save(ctx, hashed, bytes.NewReader(content))
	if err != nil {
		return storage.Processed{}, fmt.Errorf("failed to save hashed copy of %s: %w", name, err)
	}
	return storage.Processed{Original: name, Name: saved, Processed: true}, nil
}

type packedOutput struct {
	name    string
	content []byte
}

// lazyFiles lists the static files at most once per post-process run
func lazyFiles(p *Packager) func() ([]static.File, error) {
	var (
		cached []static.File
		done   bool
	)
	return func() ([]static.File, error) {
		if done {
			return cached, nil
		}
		all, err := p.Files()
		if err != nil {
			return nil, err
		}
		cached, done = all, true
		return cached, nil
	}
}
