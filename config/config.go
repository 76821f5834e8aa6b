// Package config loads relay settings from an optional YAML file with
// built-in defaults. Command line flags override file values.
package config

import (
	"errors"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration parses human-readable values like "500ms" or "30s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

type Config struct {
	APIListenAddr string `yaml:"api_listen_addr"`
	WSListenAddr  string `yaml:"ws_listen_addr"`
	LogLevel      string `yaml:"log_level"`

	Push   Push   `yaml:"push"`
	Viewer Viewer `yaml:"viewer"`
}

type Push struct {
	URL       string  `yaml:"url"`
	QueueSize int     `yaml:"queue_size"`
	Backoff   Backoff `yaml:"backoff"`
}

type Backoff struct {
	Base        Duration `yaml:"base"`
	Max         Duration `yaml:"max"`
	MaxAttempts int      `yaml:"max_attempts"`
}

type Viewer struct {
	RefreshInterval Duration `yaml:"refresh_interval"`
	ScaleMin        float64  `yaml:"scale_min"`
	ScaleMax        float64  `yaml:"scale_max"`
	StorePath       string   `yaml:"store_path"`
}

func Default() Config {
	return Config{
		APIListenAddr: ":8788",
		WSListenAddr:  ":8888",
		LogLevel:      "debug",
		Push: Push{
			URL:       "ws://127.0.0.1:8888/ws",
			QueueSize: 64,
			Backoff: Backoff{
				Base:        Duration(time.Second),
				Max:         Duration(30 * time.Second),
				MaxAttempts: 10,
			},
		},
		Viewer: Viewer{
			RefreshInterval: Duration(16 * time.Millisecond),
			ScaleMin:        0.1,
			ScaleMax:        32,
		},
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err = yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, errors.Join(errors.New("invalid config file"), err)
	}
	return cfg, nil
}
