package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Authority struct {
		WSURL   string `yaml:"ws_url"`
		HTTPURL string `yaml:"http_url"`
		Timeout string `yaml:"timeout"`
	} `yaml:"authority"`
	Auth struct {
		UserID   string `yaml:"user_id"`
		Token    string `yaml:"token"`
		TokenKey string `yaml:"token_key"`
	} `yaml:"auth"`
	Match struct {
		Tick             string `yaml:"tick"`
		ReviewWindow     string `yaml:"review_window"`
		DefaultTimeLimit int    `yaml:"default_time_limit"`
	} `yaml:"match"`
	Cache struct {
		TTL string `yaml:"ttl"`
	} `yaml:"cache"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
		File   string `yaml:"file"`
	} `yaml:"log"`
}

// Load reads YAML config from path.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// TTLDuration parses a duration string or returns the fallback if empty or malformed.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
