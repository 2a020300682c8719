package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the parameters of one synchronization run.
type Config struct {
	// IndexURL is the page scraped to discover the configs download link.
	IndexURL string `yaml:"index_url"`
	// LinkMarker is the phrase next to the anchor that carries the download link.
	LinkMarker string `yaml:"link_marker"`
	// TargetDir is the directory name looked up inside the extracted archive.
	TargetDir string `yaml:"target_dir"`
	// OutputFile is the archive written to the working directory.
	OutputFile string `yaml:"output_file"`
	// DigestFile stores the SHA-256 of the archive from the previous run.
	DigestFile string `yaml:"digest_file"`
	// Timeout is the duration for HTTP requests, the download included.
	Timeout time.Duration `yaml:"timeout"`
	// SkipUnchanged stops the run after the digest check
	// when the downloaded archive matches the previous one.
	SkipUnchanged bool `yaml:"skip_unchanged"`
}

const (
	// DefaultConfigFilename is the default filename for run settings.
	DefaultConfigFilename = "fpslocker-sync-settings.yaml"

	// DefaultIndexURL is the warehouse page carrying the configs download link.
	DefaultIndexURL = "https://github.com/masagrator/FPSLocker-Warehouse"

	// DefaultLinkMarker is the phrase placed next to the download anchor on the page.
	DefaultLinkMarker = "To download all configs click here"

	// DefaultTargetDir is the directory extracted and repackaged from the archive.
	DefaultTargetDir = "SaltySD"

	// DefaultOutputFile is the archive produced in the working directory.
	DefaultOutputFile = "SaltySD.zip"

	// DefaultDigestFilename stores the digest of the last successfully processed archive.
	DefaultDigestFilename = "fpslocker_last_hash.txt"

	// DefaultTimeout is the default duration for HTTP operations.
	DefaultTimeout = 60 * time.Second

	// DefaultFilePermissions is the default file permission for config files.
	DefaultFilePermissions = 0o600
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
)

// Default returns a configuration prefilled with the stock warehouse settings.
func Default() *Config {
	return &Config{
		IndexURL:   DefaultIndexURL,
		LinkMarker: DefaultLinkMarker,
		TargetDir:  DefaultTargetDir,
		OutputFile: DefaultOutputFile,
		DigestFile: DefaultDigestFilename,
		Timeout:    DefaultTimeout,
	}
}

// Load reads configuration from the provided path and validates essential fields.
// A missing file is not an error: the stock defaults are returned instead,
// so the binary keeps working without any settings file at all.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}

		return nil, fmt.Errorf("read settings: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(contents, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes the configuration to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	// Restrict permissions.
	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate checks the provided settings for required fields
// and fills in defaults for the optional ones.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if cfg.IndexURL == "" {
		cfg.IndexURL = DefaultIndexURL
	}

	if _, err := url.ParseRequestURI(cfg.IndexURL); err != nil {
		return fmt.Errorf("invalid index URL: %w", err)
	}

	if cfg.LinkMarker == "" {
		cfg.LinkMarker = DefaultLinkMarker
	}

	if cfg.TargetDir == "" {
		cfg.TargetDir = DefaultTargetDir
	}

	if cfg.OutputFile == "" {
		cfg.OutputFile = DefaultOutputFile
	}

	if cfg.DigestFile == "" {
		cfg.DigestFile = DefaultDigestFilename
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	return nil
}
