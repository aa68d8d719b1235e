/*
config.go - YAML configuration for the visit engine server

PURPOSE:
  Loads server configuration from a YAML file with sane defaults, so a
  bare `visit-engine` start works against a local sqlite file and a
  static member roster. Every field can be left out; absent values fall
  back to the defaults below.

FILE FORMAT (config.yaml):
  listen_addr: ":8080"
  db_path: "visits.db"
  member_source:
    mode: redis            # static | redis | caspio
    redis_addr: "localhost:6379"
    redis_db: 0
    key_prefix: "calaim:member:"
    caspio_base_url: "https://acct.caspio.com/rest/v2"
    caspio_token: ""
  scan:
    page_size: 200
    max_pages: 50

SEE ALSO:
  - cmd/server/main.go: Consumes this config at startup
*/
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Member source modes.
const (
	SourceStatic = "static"
	SourceRedis  = "redis"
	SourceCaspio = "caspio"
)

// MemberSourceConfig selects and parameterizes the member roster backend.
type MemberSourceConfig struct {
	Mode          string `yaml:"mode"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisDB       int    `yaml:"redis_db"`
	KeyPrefix     string `yaml:"key_prefix"`
	CaspioBaseURL string `yaml:"caspio_base_url"`
	CaspioToken   string `yaml:"caspio_token"`
}

// ScanConfig bounds the reconciliation page scans.
type ScanConfig struct {
	PageSize int `yaml:"page_size"`
	MaxPages int `yaml:"max_pages"`
}

// Config is the full server configuration.
type Config struct {
	ListenAddr   string             `yaml:"listen_addr"`
	DBPath       string             `yaml:"db_path"`
	MemberSource MemberSourceConfig `yaml:"member_source"`
	Scan         ScanConfig         `yaml:"scan"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		ListenAddr: ":8080",
		DBPath:     "visits.db",
		MemberSource: MemberSourceConfig{
			Mode:      SourceStatic,
			RedisAddr: "localhost:6379",
		},
		Scan: ScanConfig{
			PageSize: 200,
			MaxPages: 50,
		},
	}
}

// Load reads the config from path. A missing file yields the defaults;
// a present but unreadable or malformed file is an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.MemberSource.Mode {
	case SourceStatic, SourceRedis, SourceCaspio:
	default:
		return fmt.Errorf("unknown member_source.mode %q", c.MemberSource.Mode)
	}
	if c.MemberSource.Mode == SourceCaspio && c.MemberSource.CaspioBaseURL == "" {
		return fmt.Errorf("member_source.caspio_base_url is required for caspio mode")
	}
	if c.Scan.PageSize <= 0 {
		return fmt.Errorf("scan.page_size must be positive")
	}
	if c.Scan.MaxPages <= 0 {
		return fmt.Errorf("scan.max_pages must be positive")
	}
	return nil
}
