// Package config loads saudedash settings in three layers: struct defaults,
// an optional YAML file, then environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/koustreak/saudedash/internal/auth"
	"github.com/koustreak/saudedash/internal/database"
	"github.com/koustreak/saudedash/internal/errs"
	"github.com/koustreak/saudedash/internal/filestore"
	"github.com/koustreak/saudedash/internal/identity"
	"github.com/koustreak/saudedash/internal/logger"
)

// PathEnvVar overrides the config file location.
const PathEnvVar = "CONFIG_PATH"

// DefaultPaths are searched in order when no path is given.
var DefaultPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/saudedash/config.yaml",
}

type Config struct {
	Server   ServerConfig     `koanf:"server"`
	Database database.Config  `koanf:"database"`
	Identity identity.Config  `koanf:"identity"`
	Auth     AuthConfig       `koanf:"auth"`
	Storage  filestore.Config `koanf:"storage"`
	Logging  LoggingConfig    `koanf:"logging"`
}

type ServerConfig struct {
	Addr              string        `koanf:"addr"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout"`
	WriteTimeout      time.Duration `koanf:"write_timeout"`
	ShutdownTimeout   time.Duration `koanf:"shutdown_timeout"`
	CORSOrigins       []string      `koanf:"cors_origins"`
	DebugEndpoints    bool          `koanf:"debug_endpoints"`

	// AuthRateLimit caps auth requests per client IP within AuthRateWindow.
	// Zero disables the limit.
	AuthRateLimit  int           `koanf:"auth_rate_limit"`
	AuthRateWindow time.Duration `koanf:"auth_rate_window"`
}

type AuthConfig struct {
	FrontendURL string `koanf:"frontend_url"`
}

type LoggingConfig struct {
	Level      string `koanf:"level"`
	Format     string `koanf:"format"`
	TimeFormat string `koanf:"time_format"`
}

// Default returns the built-in settings.
func Default() *Config {
	storage := filestore.DefaultConfig("", "", "")
	return &Config{
		Server: ServerConfig{
			Addr:              ":8000",
			ReadHeaderTimeout: 10 * time.Second,
			// reports may run up to the 600s statement timeout
			WriteTimeout:    11 * time.Minute,
			ShutdownTimeout: 30 * time.Second,
			CORSOrigins:     []string{"*"},
			AuthRateLimit:   20,
			AuthRateWindow:  time.Minute,
		},
		Database: *database.DefaultConfig(""),
		Identity: identity.Config{
			Timeout:        15 * time.Second,
			BreakerTimeout: 30 * time.Second,
		},
		Auth: AuthConfig{
			FrontendURL: auth.DefaultFrontendURL,
		},
		Storage: *storage,
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			TimeFormat: "rfc3339",
		},
	}
}

// Load builds the configuration. path names the YAML file; when empty,
// CONFIG_PATH and then DefaultPaths are tried. A missing file is not an
// error, and neither is a missing DATABASE_URL.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, errs.Wrap(errs.ErrKindConfig, "failed to load defaults", err)
	}

	if path == "" {
		path = findFile()
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, errs.Wrap(errs.ErrKindConfig, "failed to load config file "+path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envKey), nil); err != nil {
		return nil, errs.Wrap(errs.ErrKindConfig, "failed to load environment", err)
	}
	if err := splitList(k, "server.cors_origins"); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, errs.Wrap(errs.ErrKindConfig, "failed to decode configuration", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings that would otherwise fail at first use.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return errs.New(errs.ErrKindConfig, "server.addr is required")
	}
	switch c.Database.Mode {
	case "", database.ModePerRequest, database.ModePool:
	default:
		return errs.New(errs.ErrKindConfig, fmt.Sprintf("database.mode must be %q or %q, got %q",
			database.ModePerRequest, database.ModePool, c.Database.Mode))
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return errs.New(errs.ErrKindConfig, fmt.Sprintf("logging.format must be json or console, got %q", c.Logging.Format))
	}
	if c.Storage.Enabled() && c.Storage.Bucket == "" {
		return errs.New(errs.ErrKindConfig, "storage.bucket is required when storage.endpoint is set")
	}
	return nil
}

// LoggerConfig converts the logging section for logger.New.
func (c *Config) LoggerConfig() *logger.Config {
	lc := logger.DefaultConfig()
	lc.Level = c.Logging.Level
	lc.Format = c.Logging.Format
	lc.TimeFormat = c.Logging.TimeFormat
	return lc
}

func findFile() string {
	if p := os.Getenv(PathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// envKeys maps environment variables to config keys. Unlisted variables
// are ignored.
var envKeys = map[string]string{
	"http_addr":             "server.addr",
	"http_write_timeout":    "server.write_timeout",
	"http_shutdown_timeout": "server.shutdown_timeout",
	"cors_origins":          "server.cors_origins",
	"debug_endpoints":       "server.debug_endpoints",
	"auth_rate_limit":       "server.auth_rate_limit",
	"auth_rate_window":      "server.auth_rate_window",

	"database_url":               "database.url",
	"db_mode":                    "database.mode",
	"db_statement_timeout":       "database.statement_timeout",
	"db_heavy_statement_timeout": "database.heavy_statement_timeout",
	"db_work_mem":                "database.work_mem",
	"db_maintenance_work_mem":    "database.maintenance_work_mem",
	"db_connect_timeout":         "database.connect_timeout",
	"db_max_conns":               "database.max_conns",
	"db_min_conns":               "database.min_conns",

	"supabase_url":     "identity.url",
	"supabase_key":     "identity.key",
	"identity_timeout": "identity.timeout",
	"frontend_url":     "auth.frontend_url",

	"minio_endpoint":   "storage.endpoint",
	"minio_access_key": "storage.access_key",
	"minio_secret_key": "storage.secret_key",
	"minio_use_ssl":    "storage.use_ssl",
	"minio_region":     "storage.region",
	"minio_bucket":     "storage.bucket",
	"export_url_ttl":   "storage.presign_ttl",

	"log_level":       "logging.level",
	"log_format":      "logging.format",
	"log_time_format": "logging.time_format",
}

func envKey(name string) string {
	return envKeys[strings.ToLower(name)]
}

// splitList turns a comma separated env value into a list.
func splitList(k *koanf.Koanf, path string) error {
	s, ok := k.Get(path).(string)
	if !ok {
		return nil
	}
	var items []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			items = append(items, p)
		}
	}
	if err := k.Set(path, items); err != nil {
		return errs.Wrap(errs.ErrKindConfig, "failed to set "+path, err)
	}
	return nil
}
