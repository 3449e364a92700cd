package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config is the wactl process configuration, loaded from TOML.
type Config struct {
	Name          string   `toml:"name"`
	Addr          string   `toml:"addr"`
	CorsOrigins   []string `toml:"cors_origins"`
	AccountDomain string   `toml:"account_domain"`
	StoreDir      string   `toml:"store_dir"`
	EngineName    string   `toml:"engine"`

	RegisterTimeoutSeconds int `toml:"register_timeout_seconds"`
}

func Default() Config {
	return Config{
		Name:                   "wactl",
		Addr:                   ":3000",
		CorsOrigins:            []string{"*"},
		AccountDomain:          "c.us",
		StoreDir:               "session",
		EngineName:             "loopback",
		RegisterTimeoutSeconds: 60,
	}
}

// Load reads and validates a TOML config file, filling defaults for any
// field left unset.
func Load(path string) (Config, error) {
	var cfg Config
	if err := loadToml(path, &cfg); err != nil {
		return Config{}, err
	}
	cfg = withDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadToml(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}

func withDefaults(cfg Config) Config {
	def := Default()
	if strings.TrimSpace(cfg.Name) == "" {
		cfg.Name = def.Name
	}
	if strings.TrimSpace(cfg.Addr) == "" {
		cfg.Addr = def.Addr
	}
	if len(cfg.CorsOrigins) == 0 {
		cfg.CorsOrigins = def.CorsOrigins
	}
	if strings.TrimSpace(cfg.AccountDomain) == "" {
		cfg.AccountDomain = def.AccountDomain
	}
	if strings.TrimSpace(cfg.StoreDir) == "" {
		cfg.StoreDir = def.StoreDir
	}
	if strings.TrimSpace(cfg.EngineName) == "" {
		cfg.EngineName = def.EngineName
	}
	if cfg.RegisterTimeoutSeconds <= 0 {
		cfg.RegisterTimeoutSeconds = def.RegisterTimeoutSeconds
	}
	return cfg
}

// Validate rejects configs that cannot produce a working server.
func Validate(cfg Config) error {
	if strings.TrimSpace(cfg.Name) == "" {
		return fmt.Errorf("config missing name")
	}
	if strings.TrimSpace(cfg.Addr) == "" {
		return fmt.Errorf("config missing addr")
	}
	if strings.TrimSpace(cfg.StoreDir) == "" {
		return fmt.Errorf("config missing store_dir")
	}
	if strings.TrimSpace(cfg.EngineName) == "" {
		return fmt.Errorf("config missing engine")
	}
	if cfg.RegisterTimeoutSeconds <= 0 {
		return fmt.Errorf("config register_timeout_seconds must be positive")
	}
	return nil
}

// RegisterTimeout returns the registration timeout as a duration.
func (c Config) RegisterTimeout() time.Duration {
	return time.Duration(c.RegisterTimeoutSeconds) * time.Second
}
