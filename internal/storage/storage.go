package storage

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"path"
	"path/filepath"
	"strings"

	"github.com/schaermu/deploystatic/internal/config"
)

// Backend writes named files to a storage location
type Backend interface {
	// Save writes content under name, returning the name actually used
	Save(ctx context.Context, name string, content io.Reader) (string, error)
	// URL returns the public URL of name
	URL(name string) string
}

// Lister is implemented by backends that can enumerate stored files
type Lister interface {
	List(ctx context.Context, prefix string) ([]string, error)
}

// SourcePair links a local file to its name in storage
type SourcePair struct {
	AbsPath string
	RelPath string
}

// Processed reports one file written by post-processing
type Processed struct {
	Original  string
	Name      string
	Processed bool
}

// PostProcessor is implemented by storages that bundle or rewrite files
// after they have been saved
type PostProcessor interface {
	PostProcess(ctx context.Context, paths []SourcePair, dryRun bool) ([]Processed, error)
}

// Variant describes a configured storage backend
type Variant struct {
	Kind       config.Backend
	Remote     bool // object storage rather than local disk
	Bundled    bool // packages are rebuilt on post-processing
	Hashed     bool // content-hashed copies are written on post-processing
	Deployable bool // static files are deployed through this variant
}

var variants = map[config.Backend]Variant{
	config.BackendFileSystem:     {Kind: config.BackendFileSystem},
	config.BackendPipeline:       {Kind: config.BackendPipeline, Bundled: true, Deployable: true},
	config.BackendPipelineCached: {Kind: config.BackendPipelineCached, Bundled: true, Hashed: true, Deployable: true},
	config.BackendS3Static:       {Kind: config.BackendS3Static, Remote: true, Bundled: true, Hashed: true, Deployable: true},
	config.BackendS3Media:        {Kind: config.BackendS3Media, Remote: true, Bundled: true},
}

// Lookup returns the variant registered for kind
func Lookup(kind config.Backend) (Variant, bool) {
	v, ok := variants[kind]
	return v, ok
}

type constructor func(ctx context.Context, cfg *config.Config, logger *slog.Logger) (Backend, error)

var constructors = map[config.Backend]constructor{
	config.BackendFileSystem:     newFileSystemFromConfig,
	config.BackendPipeline:       newFileSystemFromConfig,
	config.BackendPipelineCached: newFileSystemFromConfig,
	config.BackendS3Static:       newS3Static,
	config.BackendS3Media:        newS3Media,
}

// Open builds the plain backend for the configured variant
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (Backend, Variant, error) {
	kind := cfg.Storage.Backend
	variant, ok := Lookup(kind)
	if !ok {
		return nil, Variant{}, fmt.Errorf("unknown storage backend: %s", kind)
	}

	backend, err := constructors[kind](ctx, cfg, logger)
	if err != nil {
		return nil, Variant{}, fmt.Errorf("failed to open %s storage: %w", kind, err)
	}

	return backend, variant, nil
}

func newFileSystemFromConfig(_ context.Context, cfg *config.Config, logger *slog.Logger) (Backend, error) {
	perm, err := cfg.FilePermissions()
	if err != nil {
		return nil, err
	}
	return NewFileSystem(cfg.Storage.Location, cfg.Storage.BaseURL, perm, logger), nil
}

func newS3Static(ctx context.Context, cfg *config.Config, logger *slog.Logger) (Backend, error) {
	opts := s3OptionsFromConfig(cfg, cfg.Storage.S3.StaticBucket)
	if cfg.CDN.Enabled {
		opts.CustomDomain = cfg.CDN.StaticDomain
	}
	return NewS3(ctx, opts, logger)
}

func newS3Media(ctx context.Context, cfg *config.Config, logger *slog.Logger) (Backend, error) {
	opts := s3OptionsFromConfig(cfg, cfg.Storage.S3.MediaBucket)
	if cfg.CDN.Enabled {
		opts.CustomDomain = cfg.CDN.MediaDomain
	}
	return NewS3(ctx, opts, logger)
}

// HashedName inserts a short content hash before the extension of name,
// e.g. css/site.css -> css/site.1d3e5c7a9b0f.css
func HashedName(name string, content []byte) string {
	sum := md5.Sum(content)
	hash := hex.EncodeToString(sum[:])[:12]

	ext := path.Ext(name)
	base := strings.TrimSuffix(name, ext)
	return base + "." + hash + ext
}

// cleanName normalises a storage name to a relative slash path
func cleanName(name string) (string, error) {
	clean := path.Clean(filepath.ToSlash(name))
	clean = strings.TrimPrefix(clean, "/")
	if clean == "" || clean == "." || !filepath.IsLocal(filepath.FromSlash(clean)) {
		return "", fmt.Errorf("invalid storage name: %q", name)
	}
	return clean, nil
}
