package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"
)

// Backend names the storage variant static files are deployed through
type Backend string

const (
	BackendFileSystem     Backend = "filesystem"
	BackendPipeline       Backend = "pipeline"
	BackendPipelineCached Backend = "pipeline-cached"
	BackendS3Static       Backend = "s3-static"
	BackendS3Media        Backend = "s3-media"
)

// VCSDriver selects how changed files are read from version control
type VCSDriver string

const (
	VCSGoGit VCSDriver = "go-git"
	VCSShell VCSDriver = "git"
)

// DefaultIgnorePatterns are skipped when finders list static files
var DefaultIgnorePatterns = []string{"CVS", ".*", "*~"}

// Config represents the complete deploystatic configuration
type Config struct {
	Storage  StorageConfig  `yaml:"storage"`
	CDN      CDNConfig      `yaml:"cdn"`
	Static   StaticConfig   `yaml:"static"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	VCS      VCSConfig      `yaml:"vcs"`
}

// StorageConfig selects and configures the storage backend
type StorageConfig struct {
	Backend         Backend  `yaml:"backend"`
	Location        string   `yaml:"location"`
	BaseURL         string   `yaml:"base_url"`
	FilePermissions string   `yaml:"file_permissions"`
	S3              S3Config `yaml:"s3"`
}

// S3Config configures the object storage connection
type S3Config struct {
	Region          string `yaml:"region"`
	StaticBucket    string `yaml:"static_bucket"`
	MediaBucket     string `yaml:"media_bucket"`
	Endpoint        string `yaml:"endpoint"`
	Proxy           bool   `yaml:"proxy"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

// CDNConfig configures custom domains used in public URLs
type CDNConfig struct {
	Enabled      bool   `yaml:"enabled"`
	StaticDomain string `yaml:"static_domain"`
	MediaDomain  string `yaml:"media_domain"`
}

// StaticDir is a static files directory with an optional URL prefix
type StaticDir struct {
	Path   string `yaml:"path"`
	Prefix string `yaml:"prefix"`
}

// StaticConfig configures where static files are found
type StaticConfig struct {
	Segment        string      `yaml:"segment"`
	Dirs           []StaticDir `yaml:"dirs"`
	AppDirs        []string    `yaml:"app_dirs"`
	IgnorePatterns []string    `yaml:"ignore_patterns"`
}

// Package is a named bundle of static sources
type Package struct {
	SourceFilenames []string `yaml:"source_filenames"`
	OutputFilename  string   `yaml:"output_filename"`
}

// PipelineConfig configures asset bundling
type PipelineConfig struct {
	Packing  *bool              `yaml:"packing"`
	Compress bool               `yaml:"compress"`
	CSS      map[string]Package `yaml:"css"`
	JS       map[string]Package `yaml:"js"`
}

// VCSConfig configures how changed files are listed
type VCSConfig struct {
	Driver      VCSDriver `yaml:"driver"`
	StripPrefix string    `yaml:"strip_prefix"`
	DefaultPath string    `yaml:"default_path"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	// Expand environment variables in path
	path = os.ExpandEnv(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.expandEnv()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// expandEnv expands environment variables in all string fields
func (c *Config) expandEnv() {
	c.Storage.Location = os.ExpandEnv(c.Storage.Location)
	c.Storage.BaseURL = os.ExpandEnv(c.Storage.BaseURL)
	c.Storage.S3.Region = os.ExpandEnv(c.Storage.S3.Region)
	c.Storage.S3.StaticBucket = os.ExpandEnv(c.Storage.S3.StaticBucket)
	c.Storage.S3.MediaBucket = os.ExpandEnv(c.Storage.S3.MediaBucket)
	c.Storage.S3.Endpoint = os.ExpandEnv(c.Storage.S3.Endpoint)
	c.Storage.S3.AccessKeyID = os.ExpandEnv(c.Storage.S3.AccessKeyID)
	c.Storage.S3.SecretAccessKey = os.ExpandEnv(c.Storage.S3.SecretAccessKey)
	c.CDN.StaticDomain = os.ExpandEnv(c.CDN.StaticDomain)
	c.CDN.MediaDomain = os.ExpandEnv(c.CDN.MediaDomain)
	for i := range c.Static.Dirs {
		c.Static.Dirs[i].Path = os.ExpandEnv(c.Static.Dirs[i].Path)
	}
	for i := range c.Static.AppDirs {
		c.Static.AppDirs[i] = os.ExpandEnv(c.Static.AppDirs[i])
	}
	c.VCS.DefaultPath = os.ExpandEnv(c.VCS.DefaultPath)
}

// applyDefaults fills in zero-value fields with sensible defaults.
func (c *Config) applyDefaults() {
	if c.Storage.Backend == "" {
		c.Storage.Backend = BackendFileSystem
	}
	if c.Storage.BaseURL == "" {
		c.Storage.BaseURL = "/static/"
	}
	if c.Static.Segment == "" {
		c.Static.Segment = "static"
	}
	if c.Static.IgnorePatterns == nil {
		c.Static.IgnorePatterns = append([]string(nil), DefaultIgnorePatterns...)
	}
	if c.Pipeline.Packing == nil {
		packing := true
		c.Pipeline.Packing = &packing
	}
	if c.VCS.Driver == "" {
		c.VCS.Driver = VCSGoGit
	}
	if c.VCS.DefaultPath == "" {
		c.VCS.DefaultPath = ".."
	}
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case BackendFileSystem, BackendPipeline, BackendPipelineCached:
		if c.Storage.Location == "" {
			return fmt.Errorf("storage.location is required for backend %s", c.Storage.Backend)
		}
		if !filepath.IsAbs(c.Storage.Location) {
			return fmt.Errorf("storage.location must be an absolute path: %s", c.Storage.Location)
		}
	case BackendS3Static:
		if c.Storage.S3.StaticBucket == "" {
			return fmt.Errorf("storage.s3.static_bucket is required for backend %s", c.Storage.Backend)
		}
	case BackendS3Media:
		if c.Storage.S3.MediaBucket == "" {
			return fmt.Errorf("storage.s3.media_bucket is required for backend %s", c.Storage.Backend)
		}
	default:
		return fmt.Errorf("invalid storage.backend: %s (must be filesystem, pipeline, pipeline-cached, s3-static or s3-media)", c.Storage.Backend)
	}

	if _, err := c.FilePermissions(); err != nil {
		return err
	}

	// Static keys are either both set or both empty
	if (c.Storage.S3.AccessKeyID == "") != (c.Storage.S3.SecretAccessKey == "") {
		return fmt.Errorf("storage.s3: access_key_id and secret_access_key must be set together")
	}

	if strings.ContainsRune(c.Static.Segment, filepath.Separator) {
		return fmt.Errorf("static.segment must be a single path element: %s", c.Static.Segment)
	}

	for _, dir := range c.Static.Dirs {
		if !filepath.IsAbs(dir.Path) {
			return fmt.Errorf("static.dirs path must be absolute: %s", dir.Path)
		}
		if strings.HasSuffix(dir.Prefix, "/") {
			return fmt.Errorf("static.dirs prefix must not end with a slash: %s", dir.Prefix)
		}
	}

	for _, pattern := range c.Static.IgnorePatterns {
		if !doublestar.ValidatePattern(pattern) {
			return fmt.Errorf("invalid static.ignore_patterns entry: %q", pattern)
		}
	}

	for name, pkg := range c.Pipeline.CSS {
		if err := pkg.validate("css", name); err != nil {
			return err
		}
	}
	for name, pkg := range c.Pipeline.JS {
		if err := pkg.validate("js", name); err != nil {
			return err
		}
	}

	switch c.VCS.Driver {
	case VCSGoGit, VCSShell:
		// valid
	default:
		return fmt.Errorf("invalid vcs.driver: %s (must be go-git or git)", c.VCS.Driver)
	}

	return nil
}

func (p Package) validate(group, name string) error {
	if len(p.SourceFilenames) == 0 {
		return fmt.Errorf("pipeline.%s.%s: source_filenames is required", group, name)
	}
	if p.OutputFilename == "" {
		return fmt.Errorf("pipeline.%s.%s: output_filename is required", group, name)
	}
	return nil
}

// FilePermissions returns the mode applied to written files, or nil when unset
func (c *Config) FilePermissions() (*os.FileMode, error) {
	if c.Storage.FilePermissions == "" {
		return nil, nil
	}
	v, err := strconv.ParseUint(c.Storage.FilePermissions, 8, 32)
	if err != nil || v > 0o777 {
		return nil, fmt.Errorf("invalid storage.file_permissions: %q (must be octal, e.g. 0644)", c.Storage.FilePermissions)
	}
	mode := os.FileMode(v)
	return &mode, nil
}

// StaticSegment returns the path segment marking a static root, e.g. "/static/"
func (c *Config) StaticSegment() string {
	sep := string(filepath.Separator)
	return sep + c.Static.Segment + sep
}

// Packing reports whether bundles are regenerated on post-processing
func (c *Config) Packing() bool {
	return c.Pipeline.Packing == nil || *c.Pipeline.Packing
}

// IgnorePatterns returns the patterns finders skip while listing
func (c *Config) IgnorePatterns() []string {
	return c.Static.IgnorePatterns
}
