package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures everything needed to talk to the reports endpoint and run
// the admin surfaces.
type Config struct {
	Endpoint EndpointConfig `yaml:"endpoint"`
	Gate     GateConfig     `yaml:"gate"`
	Admin    AdminConfig    `yaml:"admin"`
	Logging  LoggingConfig  `yaml:"logging"`
	Prefs    PrefsConfig    `yaml:"prefs"`
	Timezone string         `yaml:"timezone"`
}

// EndpointConfig points at the spreadsheet-backed reports script.
type EndpointConfig struct {
	URL         string        `yaml:"url"`
	Timeout     time.Duration `yaml:"timeout"`
	HTTPTimeout time.Duration `yaml:"httpTimeout"`
}

// GateConfig controls the submission cooldown.
type GateConfig struct {
	Cooldown time.Duration `yaml:"cooldown"`
}

// AdminConfig controls the HTTP, metrics and gRPC listeners.
type AdminConfig struct {
	Address         string        `yaml:"address"`
	AccessKey       string        `yaml:"accessKey"`
	MetricsAddress  string        `yaml:"metricsAddress"`
	GRPCAddress     string        `yaml:"grpcAddress"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Preference backends.
const (
	BackendNoop   = "noop"
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendValkey = "valkey"
)

// PrefsConfig selects where chart preferences are kept.
type PrefsConfig struct {
	Backend    string       `yaml:"backend"`
	SQLitePath string       `yaml:"sqlitePath"`
	Valkey     ValkeyConfig `yaml:"valkey"`
}

// ValkeyConfig configures the Valkey preference backend.
type ValkeyConfig struct {
	Addr         string        `yaml:"addr"`
	Username     string        `yaml:"username"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	DialTimeout  time.Duration `yaml:"dialTimeout"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	MaxRetries   int           `yaml:"maxRetries"`
	TLS          bool          `yaml:"tls"`
}

// Load initialises Config from a YAML file and optional environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("STINKMAP_CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func defaultConfig() Config {
	return Config{
		Endpoint: EndpointConfig{
			Timeout:     15 * time.Second,
			HTTPTimeout: 20 * time.Second,
		},
		Gate: GateConfig{Cooldown: 3 * time.Minute},
		Admin: AdminConfig{
			Address:         ":8080",
			MetricsAddress:  ":2112",
			GRPCAddress:     ":50051",
			GracefulTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{Level: "info", JSON: false},
		Prefs: PrefsConfig{
			Backend:    BackendMemory,
			SQLitePath: "stinkmap-prefs.db",
			Valkey: ValkeyConfig{
				DialTimeout:  2 * time.Second,
				ReadTimeout:  500 * time.Millisecond,
				WriteTimeout: 500 * time.Millisecond,
				MaxRetries:   2,
			},
		},
		Timezone: "UTC",
	}
}

func (c *Config) validate() error {
	switch c.Prefs.Backend {
	case BackendNoop, BackendMemory, BackendSQLite, BackendValkey:
	default:
		return fmt.Errorf("unknown prefs backend %q", c.Prefs.Backend)
	}
	if c.Endpoint.Timeout <= 0 {
		return errors.New("endpoint.timeout must be positive")
	}
	if c.Gate.Cooldown < 0 {
		return errors.New("gate.cooldown must not be negative")
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("STINKMAP_ENDPOINT_URL"); v != "" {
		cfg.Endpoint.URL = v
	}
	if v := os.Getenv("STINKMAP_ENDPOINT_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Endpoint.Timeout = d
		}
	}
	if v := os.Getenv("STINKMAP_GATE_COOLDOWN"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Gate.Cooldown = d
		}
	}
	if v := os.Getenv("STINKMAP_ADMIN_ADDRESS"); v != "" {
		cfg.Admin.Address = v
	}
	if v := os.Getenv("STINKMAP_ACCESS_KEY"); v != "" {
		cfg.Admin.AccessKey = v
	}
	if v := os.Getenv("STINKMAP_METRICS_ADDRESS"); v != "" {
		cfg.Admin.MetricsAddress = v
	}
	if v := os.Getenv("STINKMAP_GRPC_ADDRESS"); v != "" {
		cfg.Admin.GRPCAddress = v
	}
	if v := os.Getenv("STINKMAP_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("STINKMAP_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
	if v := os.Getenv("STINKMAP_TIMEZONE"); v != "" {
		cfg.Timezone = v
	}
	if v := os.Getenv("STINKMAP_PREFS_BACKEND"); v != "" {
		cfg.Prefs.Backend = strings.ToLower(v)
	}
	if v := os.Getenv("STINKMAP_PREFS_SQLITE_PATH"); v != "" {
		cfg.Prefs.SQLitePath = v
	}
	if v := os.Getenv("STINKMAP_VALKEY_ADDR"); v != "" {
		cfg.Prefs.Valkey.Addr = v
	}
	if v := os.Getenv("STINKMAP_VALKEY_USERNAME"); v != "" {
		cfg.Prefs.Valkey.Username = v
	}
	if v := os.Getenv("STINKMAP_VALKEY_PASSWORD"); v != "" {
		cfg.Prefs.Valkey.Password = v
	}
	if v := os.Getenv("STINKMAP_VALKEY_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Prefs.Valkey.DB = db
		}
	}
	if v := os.Getenv("STINKMAP_VALKEY_TLS"); strings.EqualFold(v, "true") || v == "1" {
		cfg.Prefs.Valkey.TLS = true
	}
}
