// Package config holds all rtmksync configuration. A single immutable
// Config is built once at startup from defaults, an optional YAML file, and
// environment variables (highest precedence), then passed explicitly to the
// components that need it.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Truthy is a boolean that accepts the loose values the original
// environment contract allows: "1", "true", "yes" (case-insensitive) are
// true, everything else is false.
type Truthy bool

// UnmarshalText implements encoding.TextUnmarshaler for env parsing.
func (t *Truthy) UnmarshalText(b []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(b))) {
	case "1", "true", "yes":
		*t = true
	default:
		*t = false
	}
	return nil
}

// UnmarshalYAML accepts the same loose values from a config file.
func (t *Truthy) UnmarshalYAML(value *yaml.Node) error {
	return t.UnmarshalText([]byte(value.Value))
}

// Config is the full process configuration.
type Config struct {
	// Remote FTP source
	Host string `yaml:"ftp_host" env:"FTP_HOST"`
	User string `yaml:"ftp_user" env:"FTP_USER"`
	Pass string `yaml:"ftp_pass" env:"FTP_PASS"`
	Dir  string `yaml:"ftp_dir" env:"FTP_DIR"`
	Port int    `yaml:"ftp_port" env:"FTP_PORT"`

	// Only files dated on or after this day (YYYY-MM-DD) are ingested.
	StartFromDate string `yaml:"start_from_date" env:"START_FROM_DATE"`

	// Rebuild mode: delete in-scope monthly files before merging.
	Rebuild Truthy `yaml:"rebuild_months" env:"REBUILD_MONTHS"`

	// Processed-file ledger path. Commit it alongside the data to keep
	// incremental runs working from clean checkouts.
	StateFile string `yaml:"state_file" env:"STATE_FILE"`

	// Timeouts and connection retry policy, in seconds.
	ConnectTimeoutSec  int     `yaml:"connect_timeout" env:"FTP_CONNECT_TIMEOUT"`
	TransferTimeoutSec int     `yaml:"transfer_timeout" env:"FTP_TRANSFER_TIMEOUT"`
	ConnectRetries     int     `yaml:"connect_retries" env:"FTP_CONNECT_RETRIES"`
	RetrySleepSec      float64 `yaml:"retry_sleep" env:"FTP_RETRY_SLEEP"`

	// Local layout
	DataDir string `yaml:"data_dir" env:"DATA_DIR"`
	RawDir  string `yaml:"raw_dir" env:"RAW_DIR"`
	LogDir  string `yaml:"log_dir" env:"LOG_DIR"`

	// Header consistency across merges into one month: "lenient" (legacy,
	// default) or "strict".
	HeaderPolicy string `yaml:"header_policy" env:"HEADER_POLICY"`

	start time.Time
}

// Default returns the built-in configuration values.
func Default() Config {
	return Config{
		Dir:                "/",
		Port:               21,
		StartFromDate:      "2025-11-01",
		StateFile:          "state/downloaded_files.json",
		ConnectTimeoutSec:  10,
		TransferTimeoutSec: 20,
		ConnectRetries:     3,
		RetrySleepSec:      2.0,
		DataDir:            "data",
		RawDir:             "raw",
		LogDir:             "log",
		HeaderPolicy:       "lenient",
	}
}

// Load builds the configuration: defaults, then the YAML file at path (if
// path is non-empty and the file exists), then environment variables.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return Config{}, fmt.Errorf("read config file: %w", err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	start, err := time.Parse("2006-01-02", cfg.StartFromDate)
	if err != nil {
		return Config{}, fmt.Errorf("invalid START_FROM_DATE %q: %w", cfg.StartFromDate, err)
	}
	cfg.start = start

	return cfg, nil
}

// StartDate returns the parsed scope lower bound.
func (c Config) StartDate() time.Time { return c.start }

// Addr returns the remote host:port dial address.
func (c Config) Addr() string { return fmt.Sprintf("%s:%d", c.Host, c.Port) }

// ConnectTimeout returns the session-establishment timeout.
func (c Config) ConnectTimeout() time.Duration {
	return time.Duration(c.ConnectTimeoutSec) * time.Second
}

// TransferTimeout returns the per-transfer deadline, distinct from the
// connection timeout.
func (c Config) TransferTimeout() time.Duration {
	return time.Duration(c.TransferTimeoutSec) * time.Second
}

// RetrySleep returns the fixed delay between connection attempts.
func (c Config) RetrySleep() time.Duration {
	return time.Duration(c.RetrySleepSec * float64(time.Second))
}
