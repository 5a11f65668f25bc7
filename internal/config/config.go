// Package config loads, validates and watches the tcime configuration.
//
// A configuration file may be TOML, YAML or JSON; the extension decides, and
// files without a known extension are sniffed. Values missing from the file
// keep their defaults, and TCIME_* environment variables override both.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/BurntSushi/toml"

	"tcime/internal/logging"
)

// Version is the current configuration schema version.
const Version = 1

// Config holds the complete engine configuration.
type Config struct {
	Version int `toml:"version" json:"version" yaml:"version"`

	Dictionary  DictionaryConfig `toml:"dictionary" json:"dictionary" yaml:"dictionary"`
	Schema      SchemaConfig     `toml:"schema" json:"schema" yaml:"schema"`
	Candidates  CandidatesConfig `toml:"candidates" json:"candidates" yaml:"candidates"`
	Preferences Preferences      `toml:"preferences" json:"preferences" yaml:"preferences"`
	Logging     LoggingConfig    `toml:"logging" json:"logging" yaml:"logging"`

	mu sync.RWMutex `toml:"-" json:"-" yaml:"-"`
}

// DictionaryConfig locates the dictionaries.
type DictionaryConfig struct {
	// Path is the sqlite database holding full-text dictionaries, schema
	// documents and per-schema preferences.
	Path string `toml:"path" json:"path" yaml:"path"`

	// TableDir holds the packed Cangjie, Zhuyin and phrase tables.
	TableDir string `toml:"table_dir" json:"table_dir" yaml:"table_dir"`

	// LoadTimeoutMs bounds how long a lookup waits for a table that is
	// still loading.
	LoadTimeoutMs int `toml:"load_timeout_ms" json:"load_timeout_ms" yaml:"load_timeout_ms"`
}

// SchemaConfig selects schema documents.
type SchemaConfig struct {
	// Dir holds <id>.schema.yaml files. Documents in the database win
	// over files with the same id.
	Dir string `toml:"dir" json:"dir" yaml:"dir"`

	// Default is the schema selected at start.
	Default string `toml:"default" json:"default" yaml:"default"`

	// Watch reloads the active schema when its file changes.
	Watch bool `toml:"watch" json:"watch" yaml:"watch"`
}

// CandidatesConfig bounds a candidate page.
type CandidatesConfig struct {
	// PageSize is the most candidates on a page.
	PageSize int `toml:"page_size" json:"page_size" yaml:"page_size"`

	// MaxWidth is the most display columns a page may take; 0 is no bound.
	MaxWidth int `toml:"max_width" json:"max_width" yaml:"max_width"`

	// FollowingCacheSec is how long following words stay cached.
	FollowingCacheSec int `toml:"following_cache_sec" json:"following_cache_sec" yaml:"following_cache_sec"`
}

// Preferences are the user toggles read by the engine.
type Preferences struct {
	// FullPinyin disables prefix matching for short keys.
	FullPinyin bool `toml:"full_pinyin" json:"full_pinyin" yaml:"full_pinyin"`

	// SingleChar keeps only one-character candidates.
	SingleChar bool `toml:"single_char" json:"single_char" yaml:"single_char"`

	// ShowComment shows romanization next to candidates.
	ShowComment bool `toml:"show_comment" json:"show_comment" yaml:"show_comment"`

	// CommitComment commits the romanization instead of the word.
	CommitComment bool `toml:"commit_comment" json:"commit_comment" yaml:"commit_comment"`

	// Association offers following words after a pick.
	Association bool `toml:"association" json:"association" yaml:"association"`

	// Simplified converts committed text to simplified characters.
	Simplified bool `toml:"simplified" json:"simplified" yaml:"simplified"`

	// FullShape commits literal keys as full-width characters.
	FullShape bool `toml:"full_shape" json:"full_shape" yaml:"full_shape"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is "debug", "info", "warn" or "error".
	Level string `toml:"level" json:"level" yaml:"level"`

	// Format is "text" or "json".
	Format string `toml:"format" json:"format" yaml:"format"`

	// Output is "stdout", "stderr", "file" or "both".
	Output string `toml:"output" json:"output" yaml:"output"`

	FilePath   string `toml:"file_path" json:"file_path" yaml:"file_path"`
	MaxSizeMB  int    `toml:"max_size_mb" json:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" json:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days" json:"max_age_days" yaml:"max_age_days"`
	Compress   bool   `toml:"compress" json:"compress" yaml:"compress"`

	// RedactInput keeps typed codes and committed text out of the logs.
	RedactInput bool `toml:"redact_input" json:"redact_input" yaml:"redact_input"`
}

// DefaultConfig returns a configuration with platform defaults.
func DefaultConfig() *Config {
	dir := DataDir()
	return &Config{
		Version: Version,
		Dictionary: DictionaryConfig{
			Path:          filepath.Join(dir, "tcime.db"),
			TableDir:      filepath.Join(dir, "tables"),
			LoadTimeoutMs: 2000,
		},
		Schema: SchemaConfig{
			Dir:     filepath.Join(PlatformConfigDir(), "schemas"),
			Default: "cangjie",
		},
		Candidates: CandidatesConfig{
			PageSize:          9,
			FollowingCacheSec: 600,
		},
		Preferences: Preferences{
			ShowComment: true,
			Association: true,
		},
		Logging: LoggingConfig{
			Level:       "info",
			Format:      "text",
			Output:      "stderr",
			FilePath:    logging.DefaultLogPath(),
			MaxSizeMB:   10,
			MaxBackups:  3,
			MaxAgeDays:  14,
			Compress:    true,
			RedactInput: true,
		},
	}
}

// ConfigPath returns the default configuration file path.
func ConfigPath() string {
	if p := FindConfigFile(); p != "" {
		return p
	}
	return filepath.Join(PlatformConfigDir(), "config.toml")
}

// Load reads a TOML configuration file. A missing file yields the defaults.
// Use a Loader for YAML or JSON files.
func Load(path string) (*Config, error) {
	if path == "" {
		path = ConfigPath()
	}
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.ApplyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	if _, err := toml.Decode(string(data), cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.ApplyEnvOverrides()
	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	return ValidateConfig(c)
}

// EnsureDirectories creates the directories the configuration points at.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		filepath.Dir(c.Dictionary.Path),
		c.Dictionary.TableDir,
		c.Schema.Dir,
	}
	if c.Logging.Output == "file" || c.Logging.Output == "both" {
		dirs = append(dirs, filepath.Dir(c.Logging.FilePath))
	}
	for _, dir := range dirs {
		if dir == "" || dir == "." {
			continue
		}
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// DataDir returns the tcime data directory. TCIME_DATA_DIR overrides the
// platform default.
func DataDir() string {
	if dir := os.Getenv("TCIME_DATA_DIR"); dir != "" {
		return dir
	}
	return PlatformDataDir()
}

// ApplyEnvOverrides applies TCIME_* environment variables.
func (c *Config) ApplyEnvOverrides() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if v := os.Getenv("TCIME_DB_PATH"); v != "" {
		c.Dictionary.Path = v
	}
	if v := os.Getenv("TCIME_TABLE_DIR"); v != "" {
		c.Dictionary.TableDir = v
	}
	if v := os.Getenv("TCIME_SCHEMA_DIR"); v != "" {
		c.Schema.Dir = v
	}
	if v := os.Getenv("TCIME_SCHEMA"); v != "" {
		c.Schema.Default = v
	}
	if v := os.Getenv("TCIME_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("TCIME_LOG_PATH"); v != "" {
		c.Logging.FilePath = v
	}
	if v := os.Getenv("TCIME_PAGE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Candidates.PageSize = n
		}
	}
}

// Clone returns a copy of the configuration.
func (c *Config) Clone() *Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return &Config{
		Version:     c.Version,
		Dictionary:  c.Dictionary,
		Schema:      c.Schema,
		Candidates:  c.Candidates,
		Preferences: c.Preferences,
		Logging:     c.Logging,
	}
}

// Prefs returns the preferences section.
func (c *Config) Prefs() Preferences {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Preferences
}

// LoadTimeout returns Dictionary.LoadTimeoutMs as a duration.
func (c *Config) LoadTimeout() time.Duration {
	return time.Duration(c.Dictionary.LoadTimeoutMs) * time.Millisecond
}

// FollowingTTL returns Candidates.FollowingCacheSec as a duration.
func (c *Config) FollowingTTL() time.Duration {
	return time.Duration(c.Candidates.FollowingCacheSec) * time.Second
}

// LogConfig converts the logging section for logging.New.
func (c *Config) LogConfig() (*logging.Config, error) {
	level, err := logging.ParseLevel(c.Logging.Level)
	if err != nil {
		return nil, err
	}
	format, err := logging.ParseFormat(c.Logging.Format)
	if err != nil {
		return nil, err
	}
	return &logging.Config{
		Level:       level,
		Format:      format,
		Output:      c.Logging.Output,
		FilePath:    c.Logging.FilePath,
		MaxSize:     int64(c.Logging.MaxSizeMB),
		MaxAge:      c.Logging.MaxAgeDays,
		MaxBackups:  c.Logging.MaxBackups,
		Compress:    c.Logging.Compress,
		RedactInput: c.Logging.RedactInput,
		Component:   "tcime",
	}, nil
}
