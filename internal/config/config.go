package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"tutcal/internal/atomicfile"
	appLog "tutcal/internal/log"
	"tutcal/internal/model"
	"tutcal/internal/tutorial"
)

// ErrCreated is returned by Load when no config existed and a default one
// was written. The default has no sources, so there is nothing to run yet.
var ErrCreated = errors.New("default config created")

const (
	defaultTimezone    = "Europe/Berlin"
	defaultOutputDir   = "./calendars"
	defaultOutputFile  = "timetable.ics"
	defaultTimeout     = 15
	defaultConcurrency = 4
	defaultRetries     = 2
)

// TutorialConfig is the assigned tutorial slot of one source.
type TutorialConfig struct {
	// ID is the tutorial group number; 0 or omitted means "no id".
	ID   int    `yaml:"id,omitempty" json:"id,omitempty"`
	Day  string `yaml:"day" json:"day"`
	Time string `yaml:"time" json:"time"`
}

// SourceConfig describes one course feed.
type SourceConfig struct {
	Name     string         `yaml:"name" json:"name"`
	URL      string         `yaml:"url" json:"url"`
	Tutorial TutorialConfig `yaml:"tutorial" json:"tutorial"`
}

// OutputConfig is where the merged calendar goes.
type OutputConfig struct {
	Dir  string `yaml:"dir" json:"dir"`
	File string `yaml:"file" json:"file"`
}

// FetchConfig tunes feed downloads.
type FetchConfig struct {
	TimeoutSeconds int `yaml:"timeout_seconds" json:"timeout_seconds"`
	Concurrency    int `yaml:"concurrency" json:"concurrency"`
	// Retries is the number of extra attempts on network errors, 429 and 5xx.
	// Use -1 to disable retries; 0 means the default.
	Retries int `yaml:"retries" json:"retries"`
}

// Config is the top-level application configuration.
type Config struct {
	// Timezone is the IANA zone in which tutorial day and time are compared.
	Timezone string `yaml:"timezone" json:"timezone"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	// TutorialKeyword marks an event summary as a tutorial session.
	TutorialKeyword string `yaml:"tutorial_keyword" json:"tutorial_keyword"`

	// Schedule is a standard 5-field cron expression used by -watch.
	Schedule string `yaml:"schedule,omitempty" json:"schedule,omitempty"`

	Output OutputConfig `yaml:"output" json:"output"`
	Fetch  FetchConfig  `yaml:"fetch" json:"fetch"`

	// Sources are processed and merged in this order.
	Sources []SourceConfig `yaml:"sources" json:"sources"`

	// ExtraFiles are local .ics files merged in without filtering.
	ExtraFiles []string `yaml:"extra_files,omitempty" json:"extra_files,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Timezone:        defaultTimezone,
		LogLevel:        "info",
		TutorialKeyword: tutorial.DefaultKeyword,
		Output: OutputConfig{
			Dir:  defaultOutputDir,
			File: defaultOutputFile,
		},
		Fetch: FetchConfig{
			TimeoutSeconds: defaultTimeout,
			Concurrency:    defaultConcurrency,
			Retries:        defaultRetries,
		},
		Sources: []SourceConfig{},
	}
}

// Normalize fills in missing/zero values with defaults.
func (c *Config) Normalize() {
	if c.Timezone == "" {
		c.Timezone = defaultTimezone
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.TutorialKeyword == "" {
		c.TutorialKeyword = tutorial.DefaultKeyword
	}
	if c.Output.File == "" {
		c.Output.File = defaultOutputFile
	}
	if c.Output.Dir == "" {
		c.Output.Dir = defaultOutputDir
	}
	if c.Fetch.TimeoutSeconds <= 0 {
		c.Fetch.TimeoutSeconds = defaultTimeout
	}
	if c.Fetch.Concurrency <= 0 {
		c.Fetch.Concurrency = defaultConcurrency
	}
	if c.Fetch.Retries == 0 {
		c.Fetch.Retries = defaultRetries
	}
	if c.Sources == nil {
		c.Sources = []SourceConfig{}
	}
	c.Schedule = strings.TrimSpace(c.Schedule)
}

// FetchRetries returns the effective retry count (never negative).
func (c *Config) FetchRetries() int {
	if c.Fetch.Retries < 0 {
		return 0
	}
	return c.Fetch.Retries
}

// FetchTimeout returns the per-request timeout.
func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.Fetch.TimeoutSeconds) * time.Second
}

// Location loads the reference timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Registry validates the configured sources and returns them in order.
// Any error here is a misconfiguration and should stop the program.
func (c *Config) Registry() ([]model.Entry, error) {
	entries := make([]model.Entry, 0, len(c.Sources))
	var errs []error

	for i, src := range c.Sources {
		name := src.Name
		if name == "" {
			name = fmt.Sprintf("source[%d]", i)
		}

		if err := validateFeedURL(src.URL); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		slot, err := model.NewSlot(src.Tutorial.ID, src.Tutorial.Day, src.Tutorial.Time)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: tutorial: %w", name, err))
			continue
		}
		entries = append(entries, model.Entry{Name: name, URL: src.URL, Slot: slot})
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return entries, nil
}

// Validate checks everything the run depends on at startup.
func (c *Config) Validate() error {
	var errs []error

	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}
	if _, err := appLog.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if c.Output.Dir == "" {
		errs = append(errs, errors.New("output.dir is empty"))
	}
	if c.Output.File == "" || c.Output.File != filepath.Base(c.Output.File) {
		errs = append(errs, fmt.Errorf("output.file %q must be a plain file name", c.Output.File))
	}
	if c.Schedule != "" {
		if _, err := cron.ParseStandard(c.Schedule); err != nil {
			errs = append(errs, fmt.Errorf("schedule %q: %w", c.Schedule, err))
		}
	}
	for _, p := range c.ExtraFiles {
		if strings.TrimSpace(p) == "" {
			errs = append(errs, errors.New("extra_files contains an empty path"))
		}
	}
	if _, err := c.Registry(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

func validateFeedURL(raw string) error {
	if raw == "" {
		return errors.New("url is empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("url scheme %q is not http(s)", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("url has no host")
	}
	return nil
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - write a default config with 0600 perms
//   - return the default config together with ErrCreated
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				return cfg, err
			}
			return cfg, ErrCreated
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Marshals cfg to YAML.
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	return atomicfile.WriteFile(path, data, 0o600)
}

// LoadEnvFile loads KEY=VALUE pairs from path into the process environment.
// Variables that are already set win. A missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("env file %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides deployment-specific settings from TUTCAL_* variables.
// getenv is usually os.Getenv.
func (c *Config) ApplyEnv(getenv func(string) string) {
	set := func(dst *string, key string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	set(&c.Output.Dir, "TUTCAL_OUTPUT_DIR")
	set(&c.Output.File, "TUTCAL_OUTPUT_FILE")
	set(&c.Timezone, "TUTCAL_TIMEZONE")
	set(&c.LogLevel, "TUTCAL_LOG_LEVEL")
	set(&c.Schedule, "TUTCAL_SCHEDULE")
}
