// Package config loads the YAML configuration and resolves credentials.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/TobiSchelling/keibareview/internal/contentbank"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

// Store backends.
const (
	BackendAirtable = "airtable"
	BackendSQLite   = "sqlite"
)

type Config struct {
	Store     Store     `yaml:"store"`
	Content   Content   `yaml:"content"`
	Posting   Posting   `yaml:"posting"`
	Discovery Discovery `yaml:"discovery"`
	Server    Server    `yaml:"server"`
	Logging   Logging   `yaml:"logging"`
	Output    Output    `yaml:"output"`
}

type Store struct {
	Backend   string `yaml:"backend"`
	APIKeyEnv string `yaml:"api_key_env"`
	BaseIDEnv string `yaml:"base_id_env"`
	APIURL    string `yaml:"api_url"`
}

type Content struct {
	Dir         string         `yaml:"dir"`
	Sources     map[int]string `yaml:"sources"`
	CuratedPath string         `yaml:"curated_path"`
}

type Posting struct {
	MaxSites    int           `yaml:"max_sites"`
	Pause       time.Duration `yaml:"pause"`
	AutoApprove bool          `yaml:"auto_approve"`
	MaxRedraws  int           `yaml:"max_redraws"`
}

type Discovery struct {
	SearchKeyEnv      string        `yaml:"search_key_env"`
	SearchURL         string        `yaml:"search_url"`
	Pause             time.Duration `yaml:"pause"`
	Queries           []string      `yaml:"queries"`
	Feeds             []Feed        `yaml:"feeds"`
	FetchDescriptions bool          `yaml:"fetch_descriptions"`
}

type Feed struct {
	URL  string `yaml:"url"`
	Name string `yaml:"name"`
}

type Server struct {
	Port int `yaml:"port"`
}

type Logging struct {
	Level string `yaml:"level"`
}

type Output struct {
	DataDir string `yaml:"data_dir"`
}

// Credentials are the hosted store secrets read from the environment.
type Credentials struct {
	APIKey string
	BaseID string
}

// ConfigDir returns the XDG config directory for keibareview.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "keibareview")
}

// DataDir returns the XDG data directory for keibareview.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "keibareview")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/keibareview/config.yaml > ./config.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", fmt.Errorf(
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'keibareview init' to create a default config",
		xdgConfig,
	)
}

// Load reads and parses a config YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return parse(data)
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		Store: Store{
			Backend:   BackendAirtable,
			APIKeyEnv: "AIRTABLE_API_KEY",
			BaseIDEnv: "AIRTABLE_BASE_ID",
		},
		Content: Content{
			Dir:         "reviews",
			CuratedPath: "data/curated.json",
		},
		Posting: Posting{
			MaxSites:   5,
			Pause:      time.Second,
			MaxRedraws: 5,
		},
		Discovery: Discovery{
			SearchKeyEnv: "BING_API_KEY",
			Pause:        time.Second,
		},
		Server:  Server{Port: 8000},
		Logging: Logging{Level: "INFO"},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}

// Validate checks that the selected backend can be used, including that
// the hosted store credentials are present in the environment.
func (c *Config) Validate() error {
	var errs []error
	switch c.Store.Backend {
	case BackendAirtable:
		if c.Store.APIKeyEnv == "" || os.Getenv(c.Store.APIKeyEnv) == "" {
			errs = append(errs, fmt.Errorf("missing API key: set %s", orDefault(c.Store.APIKeyEnv, "AIRTABLE_API_KEY")))
		}
		if c.Store.BaseIDEnv == "" || os.Getenv(c.Store.BaseIDEnv) == "" {
			errs = append(errs, fmt.Errorf("missing base ID: set %s", orDefault(c.Store.BaseIDEnv, "AIRTABLE_BASE_ID")))
		}
	case BackendSQLite:
	default:
		errs = append(errs, fmt.Errorf("unknown store backend %q", c.Store.Backend))
	}
	if c.Posting.MaxSites < 0 {
		errs = append(errs, errors.New("posting.max_sites must not be negative"))
	}
	return errors.Join(errs...)
}

// Credentials reads the hosted store secrets named by the config.
func (c *Config) Credentials() Credentials {
	return Credentials{
		APIKey: os.Getenv(c.Store.APIKeyEnv),
		BaseID: os.Getenv(c.Store.BaseIDEnv),
	}
}

// ContentSources returns the rating -> file map, falling back to the
// standard file names under content.dir for ratings not listed.
func (c *Config) ContentSources() map[int]string {
	sources := contentbank.DefaultSources(c.Content.Dir)
	for rating, path := range c.Content.Sources {
		if rating < 1 || rating > 5 || path == "" {
			continue
		}
		sources[rating] = path
	}
	return sources
}

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Output.DataDir != "" {
		return c.Output.DataDir
	}
	return DataDir()
}

// DatabasePath returns the local SQLite file.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.GetDataDir(), "keibareview.db")
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
