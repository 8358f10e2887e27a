package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Gateway  GatewayConfig  `toml:"gateway"`
	Upstream UpstreamConfig `toml:"upstream"`
	Store    StoreConfig    `toml:"store"`
	Log      LogConfig      `toml:"log"`
	Tracing  TracingConfig  `toml:"tracing"`
}

type GatewayConfig struct {
	Bind      string `toml:"bind"`
	Port      int    `toml:"port"`
	AuthToken string `toml:"auth_token"`

	// ExternalURL is what pairing QR codes advertise; defaults to the
	// bind address when empty.
	ExternalURL string `toml:"external_url"`
}

// UpstreamConfig points the monitor at the live event source, typically
// the RFID reader bridge or another gatewatch gateway.
type UpstreamConfig struct {
	Endpoint       string `toml:"endpoint"`
	Origin         string `toml:"origin"`
	Transport      string `toml:"transport"`
	ReconnectDelay string `toml:"reconnect_delay"`
	Reconnect      bool   `toml:"reconnect"`
	AuthToken      string `toml:"auth_token"`
}

// ReconnectInterval parses the configured delay, falling back to zero so
// the channel applies its own default.
func (u UpstreamConfig) ReconnectInterval() (time.Duration, error) {
	if u.ReconnectDelay == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(u.ReconnectDelay)
	if err != nil {
		return 0, fmt.Errorf("config: invalid reconnect_delay %q: %w", u.ReconnectDelay, err)
	}
	return d, nil
}

type StoreConfig struct {
	DSN           string `toml:"dsn"`
	RetentionDays int    `toml:"retention_days"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type TracingConfig struct {
	Enabled  bool   `toml:"enabled"`
	Endpoint string `toml:"endpoint"`
}

func Default() *Config {
	return &Config{
		Gateway: GatewayConfig{
			Bind: "loopback",
			Port: 8791,
		},
		Upstream: UpstreamConfig{
			Transport:      "websocket",
			ReconnectDelay: "3s",
			Reconnect:      true,
		},
		Store: StoreConfig{
			DSN:           filepath.Join(DataDir(), "gatewatch.db"),
			RetentionDays: 90,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

var (
	current *Config
	mu      sync.RWMutex
)

func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if cfg.Store.DSN == "" {
		cfg.Store.DSN = filepath.Join(DataDir(), "gatewatch.db")
	}

	mu.Lock()
	current = cfg
	mu.Unlock()

	return cfg, nil
}

func Current() *Config {
	mu.RLock()
	defer mu.RUnlock()
	if current == nil {
		return Default()
	}
	return current
}

func DataDir() string {
	if dir := os.Getenv("GATEWATCH_DATA_DIR"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".gatewatch"
	}
	return filepath.Join(home, ".gatewatch")
}

func DefaultConfigPath() string {
	return filepath.Join(DataDir(), "gatewatch.toml")
}

func EnsureDataDir() error {
	return os.MkdirAll(DataDir(), 0700)
}
