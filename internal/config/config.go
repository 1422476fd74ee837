package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// EngineConfig is the deployment description read from engine.yaml.
type EngineConfig struct {
	Version int `yaml:"version"`
	Engine  struct {
		Name  string `yaml:"name"`
		Seed  int64  `yaml:"seed" env:"NARRATIVE_SEED"`
		Graph string `yaml:"graph" env:"NARRATIVE_GRAPH"`
		Root  string `yaml:"root" env:"NARRATIVE_ROOT"`
	} `yaml:"engine"`
	Network struct {
		HTTPPort int `yaml:"http_port" env:"NARRATIVE_HTTP_PORT"`
	} `yaml:"network"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	SQLite    SQLiteConfig    `yaml:"sqlite"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

type MQTTConfig struct {
	Enabled        bool          `yaml:"enabled" env:"MQTT_ENABLED"`
	URL            string        `yaml:"url" env:"MQTT_URL"`
	ClientID       string        `yaml:"client_id" env:"MQTT_CLIENT_ID"`
	MediaPrefix    string        `yaml:"media_prefix"`
	VariablesTopic string        `yaml:"variables_topic"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

type PostgresConfig struct {
	Enabled  bool   `yaml:"enabled" env:"PG_ENABLED"`
	Host     string `yaml:"host" env:"PGHOST"`
	Port     int    `yaml:"port" env:"PGPORT"`
	User     string `yaml:"user" env:"PGUSER"`
	Database string `yaml:"database" env:"PGDATABASE"`
	SSLMode  string `yaml:"sslmode" env:"PGSSLMODE"`

	// Password is never read from the file.
	Password string `yaml:"-"`
}

type SQLiteConfig struct {
	Path string `yaml:"path" env:"NARRATIVE_SQLITE_PATH"`
}

type TelemetryConfig struct {
	Endpoint string `yaml:"endpoint" env:"NARRATIVE_OTEL_ENDPOINT"`
}

// Credentials are the API basic-auth accounts, resolved from the environment
// with the *_FILE convention.
type Credentials struct {
	AdminUser    string
	AdminPass    string
	OperatorUser string
	OperatorPass string
}

// HTTPPort returns the configured API port, defaulting to 8080 if not set.
func (c *EngineConfig) HTTPPort() int {
	if c.Network.HTTPPort == 0 {
		return 8080
	}
	return c.Network.HTTPPort
}

// Default returns a config with every default applied.
func Default() *EngineConfig {
	cfg := &EngineConfig{Version: 1}
	cfg.applyDefaults()
	return cfg
}

func (c *EngineConfig) applyDefaults() {
	if c.Engine.Name == "" {
		c.Engine.Name = "narrative"
	}
	if c.MQTT.URL == "" {
		c.MQTT.URL = "tcp://localhost:1883"
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = c.Engine.Name + "-sequencer"
	}
	if c.MQTT.MediaPrefix == "" {
		c.MQTT.MediaPrefix = "media"
	}
	if c.MQTT.VariablesTopic == "" {
		c.MQTT.VariablesTopic = "variables/set"
	}
	if c.MQTT.ConnectTimeout == 0 {
		c.MQTT.ConnectTimeout = 5 * time.Second
	}
	if c.Postgres.Host == "" {
		c.Postgres.Host = "127.0.0.1"
	}
	if c.Postgres.Port == 0 {
		c.Postgres.Port = 5432
	}
	if c.Postgres.User == "" {
		c.Postgres.User = "narrative"
	}
	if c.Postgres.Database == "" {
		c.Postgres.Database = "narrative"
	}
	if c.Postgres.SSLMode == "" {
		c.Postgres.SSLMode = "disable"
	}
}

// LoadEngineConfig reads path, overlays the environment and resolves the
// database password. Environment values win over the file.
func LoadEngineConfig(path string) (*EngineConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg EngineConfig
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	if cfg.Version != 1 {
		return nil, fmt.Errorf("unsupported engine.yaml version: %d", cfg.Version)
	}

	if err := Overlay(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Overlay applies environment variables and defaults to cfg.
func Overlay(cfg *EngineConfig) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	pass, err := ResolveSecret("PGPASSWORD")
	if err != nil {
		return err
	}
	cfg.Postgres.Password = pass
	cfg.applyDefaults()
	return nil
}

// LoadCredentials resolves the API accounts.
func LoadCredentials() (Credentials, error) {
	var c Credentials
	for _, f := range []struct {
		env string
		dst *string
	}{
		{"NARRATIVE_ADMIN_USER", &c.AdminUser},
		{"NARRATIVE_ADMIN_PASS", &c.AdminPass},
		{"NARRATIVE_OPERATOR_USER", &c.OperatorUser},
		{"NARRATIVE_OPERATOR_PASS", &c.OperatorPass},
	} {
		v, err := ResolveSecret(f.env)
		if err != nil {
			return Credentials{}, err
		}
		*f.dst = v
	}
	return c, nil
}
