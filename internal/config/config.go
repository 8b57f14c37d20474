// Package config loads and validates manifold's TOML configuration.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains data directory configuration. Every logical storage
// bucket is a directory under its configured root.
type Paths struct {
	DataDir         string `toml:"data_dir"`
	LogDir          string `toml:"log_dir"`
	IngestBucket    string `toml:"ingest_bucket"`
	AssetRepoBucket string `toml:"asset_repo_bucket"`
	WatermarkBucket string `toml:"watermark_bucket"`
	LicenseeBucket  string `toml:"licensee_bucket"`
}

// Queues names the message queues each worker polls.
type Queues struct {
	Validation string `toml:"validation"`
	Manifest   string `toml:"manifest"`
	Delivery   string `toml:"delivery"`
	Exception  string `toml:"exception"`
	DeadLetter string `toml:"dead_letter"`
}

// Workers contains poll-loop timing configuration, in seconds unless
// stated otherwise.
type Workers struct {
	PollWait              int `toml:"poll_wait"`
	VisibilityTimeout     int `toml:"visibility_timeout"`
	ErrorRetryInterval    int `toml:"error_retry_interval"`
	SchedulerTickInterval int `toml:"scheduler_tick_interval"`
	ValidationCutoffMin   int `toml:"validation_cutoff_minutes"`
}

// Delivery contains delivery-cycle defaults.
type Delivery struct {
	DefaultManifestFrequency int    `toml:"default_manifest_frequency"`
	DefaultStudioID          string `toml:"default_studio_id"`
	ChecksumEnforced         bool   `toml:"checksum_enforced"`
}

// Watermark contains configuration for the external watermarking API.
type Watermark struct {
	APIURL         string `toml:"api_url"`
	BearerToken    string `toml:"bearer_token"`
	PresetID       string `toml:"preset_id"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Mail contains configuration for the outbound mail relay.
type Mail struct {
	RelayURL          string   `toml:"relay_url"`
	Sender            string   `toml:"sender"`
	RequestTimeout    int      `toml:"request_timeout"`
	DefaultRecipients []string `toml:"default_recipients"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for manifold.
type Config struct {
	Paths     Paths     `toml:"paths"`
	Queues    Queues    `toml:"queues"`
	Workers   Workers   `toml:"workers"`
	Delivery  Delivery  `toml:"delivery"`
	Watermark Watermark `toml:"watermark"`
	Mail      Mail      `toml:"mail"`
	Logging   Logging   `toml:"logging"`
}

// DefaultConfigPath returns the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/manifold/config.toml")
}

// Load locates, parses, and validates a configuration file. The
// returned config has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	return defaultPath, false, nil
}

func (c *Config) normalize() error {
	var err error
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	for name, field := range map[string]*string{
		"paths.ingest_bucket":     &c.Paths.IngestBucket,
		"paths.asset_repo_bucket": &c.Paths.AssetRepoBucket,
		"paths.watermark_bucket":  &c.Paths.WatermarkBucket,
		"paths.licensee_bucket":   &c.Paths.LicenseeBucket,
	} {
		if *field, err = expandPath(*field); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	return nil
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if c.Paths.DataDir == "" {
		return errors.New("paths.data_dir must be set")
	}
	for name, value := range map[string]string{
		"queues.validation":  c.Queues.Validation,
		"queues.manifest":    c.Queues.Manifest,
		"queues.delivery":    c.Queues.Delivery,
		"queues.exception":   c.Queues.Exception,
		"queues.dead_letter": c.Queues.DeadLetter,
	} {
		if strings.TrimSpace(value) == "" {
			return fmt.Errorf("%s must be set", name)
		}
	}
	if c.Workers.PollWait <= 0 {
		return errors.New("workers.poll_wait must be positive")
	}
	if c.Workers.VisibilityTimeout <= 0 {
		return errors.New("workers.visibility_timeout must be positive")
	}
	if c.Delivery.DefaultManifestFrequency <= 0 {
		return errors.New("delivery.default_manifest_frequency must be positive")
	}
	if c.Watermark.APIURL != "" && c.Watermark.PresetID == "" {
		return errors.New("watermark.preset_id must be set when watermark.api_url is configured")
	}
	switch c.Logging.Format {
	case "", "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	return nil
}

// EnsureDirectories creates every configured directory that manifold
// writes to.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.Paths.DataDir,
		c.Paths.LogDir,
		c.Paths.IngestBucket,
		c.Paths.AssetRepoBucket,
		c.Paths.WatermarkBucket,
		c.Paths.LicenseeBucket,
	}
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the sqlite database location under the data dir.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "manifold.db")
}

// SampleConfig returns the embedded sample configuration text.
func SampleConfig() string {
	return sampleConfig
}

// CreateSample writes the embedded sample configuration to path.
func CreateSample(path string) error {
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// ExpandPath resolves ~ and relative segments in a user-supplied path.
func ExpandPath(path string) (string, error) {
	return expandPath(path)
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", nil
	}
	if trimmed == "~" || strings.HasPrefix(trimmed, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if trimmed == "~" {
			return home, nil
		}
		return filepath.Join(home, trimmed[2:]), nil
	}
	return filepath.Abs(trimmed)
}
