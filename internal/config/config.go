package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	API      APIConfig      `yaml:"api"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	NATS     NATSConfig     `yaml:"nats"`
	JWT      JWTConfig      `yaml:"jwt"`
	Log      LogConfig      `yaml:"log"`
	WiFiDog  WiFiDogConfig  `yaml:"wifidog"`
}

// ServerConfig represents server identity
type ServerConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

// APIConfig represents the HTTP listener configuration
type APIConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DatabaseConfig represents database configuration. Driver is "postgres"
// or "memory" (development/testing).
type DatabaseConfig struct {
	Driver          string        `yaml:"driver"`
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// RedisConfig represents Redis configuration. An empty Addr disables the
// cache; lookups then go straight to the store.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// NATSConfig represents NATS configuration. An empty URL runs the server
// in standalone mode without event publishing.
type NATSConfig struct {
	URL               string        `yaml:"url"`
	Username          string        `yaml:"username"`
	Password          string        `yaml:"password"`
	MaxReconnects     int           `yaml:"max_reconnects"`
	ReconnectInterval time.Duration `yaml:"reconnect_interval"`
}

// JWTConfig represents JWT configuration
type JWTConfig struct {
	Secret          string        `yaml:"secret"`
	AccessTokenTTL  time.Duration `yaml:"access_token_ttl"`
	RefreshTokenTTL time.Duration `yaml:"refresh_token_ttl"`
}

// LogConfig represents logging configuration
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// WiFiDogConfig represents the captive-portal protocol configuration.
// Flags are read at request time so changes take effect on reload without
// draining in-flight sessions.
type WiFiDogConfig struct {
	// AllowUnknownPing lets /wifidog/ping heartbeats through without a
	// registered gw_id. Pings are low-risk telemetry.
	AllowUnknownPing bool `yaml:"allow_unknown_ping"`

	// EnforceSourceIP denies /auth and /ping callbacks whose source IP
	// differs from the gateway's registered mgmt_ip. Never applied to
	// /login, which originates from the client browser.
	EnforceSourceIP bool `yaml:"enforce_source_ip"`

	// EnforceGatewayMAC denies callbacks whose gw_mac differs from the
	// registered MAC (case-insensitive), when both sides supply one.
	EnforceGatewayMAC bool `yaml:"enforce_gateway_mac"`

	// Timezone anchors the daily/weekly/monthly quota windows.
	Timezone string `yaml:"timezone"`

	// PolicyCacheTTL bounds how stale a cached policy resolution may be.
	PolicyCacheTTL time.Duration `yaml:"policy_cache_ttl"`

	// RedirectURL is where the portal sends clients after provisioning
	// when the gateway did not supply its own redirect.
	RedirectURL string `yaml:"redirect_url"`
}

// Location resolves the configured quota timezone, defaulting to UTC.
func (c *WiFiDogConfig) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.Timezone)
}

// Load loads configuration from file
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.applyEnvOverrides()
	cfg.setDefaults()

	if _, err := cfg.WiFiDog.Location(); err != nil {
		return nil, fmt.Errorf("invalid wifidog timezone: %w", err)
	}

	return &cfg, nil
}

// applyEnvOverrides applies environment variable overrides
func (c *Config) applyEnvOverrides() {
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		c.Database.DSN = dsn
	}

	if redisAddr := os.Getenv("REDIS_ADDR"); redisAddr != "" {
		c.Redis.Addr = redisAddr
	}

	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		c.NATS.URL = natsURL
	}

	if jwtSecret := os.Getenv("JWT_SECRET"); jwtSecret != "" {
		c.JWT.Secret = jwtSecret
	}

	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		c.Log.Level = logLevel
	}
}

func (c *Config) setDefaults() {
	if c.Database.Driver == "" {
		c.Database.Driver = "postgres"
	}
	if c.API.Port == 0 {
		c.API.Port = 8080
	}
	if c.JWT.AccessTokenTTL == 0 {
		c.JWT.AccessTokenTTL = 15 * time.Minute
	}
	if c.JWT.RefreshTokenTTL == 0 {
		c.JWT.RefreshTokenTTL = 7 * 24 * time.Hour
	}
	if c.WiFiDog.PolicyCacheTTL == 0 {
		c.WiFiDog.PolicyCacheTTL = time.Minute
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}
