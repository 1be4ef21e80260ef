// Package config resolves client settings from a YAML file and
// environment variables.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"

	"github.com/PyQuantSharp/timegpt"
	"github.com/PyQuantSharp/timegpt/transport"
)

// Config holds the settings the client needs. Values resolve in order
// of precedence: TIMEGPT_* environment variables, the config file,
// then defaults. NIXTLA_API_KEY and NIXTLA_BASE_URL are honored as
// fallbacks for compatibility with other clients of the service.
type Config struct {
	APIKey        string        `mapstructure:"api_key"`
	BaseURL       string        `mapstructure:"base_url"`
	Timeout       time.Duration `mapstructure:"timeout"`
	MaxRetries    int           `mapstructure:"max_retries"`
	RetryInterval time.Duration `mapstructure:"retry_interval"`
	MaxWaitTime   time.Duration `mapstructure:"max_wait_time"`
	NumPartitions int           `mapstructure:"num_partitions"`
}

const envPrefix = "TIMEGPT"

// Load reads the optional YAML file at path (pass "" for environment
// only) and overlays TIMEGPT_* environment variables.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	for _, key := range []string{
		"api_key", "base_url", "timeout",
		"max_retries", "retry_interval", "max_wait_time",
		"num_partitions",
	} {
		if err := v.BindEnv(key); err != nil {
			return nil, err
		}
	}

	v.SetDefault("base_url", transport.DefaultBaseURL)
	v.SetDefault("timeout", transport.DefaultTimeout)
	v.SetDefault("max_retries", transport.DefaultMaxRetries)
	v.SetDefault("retry_interval", transport.DefaultRetryInterval)
	v.SetDefault("max_wait_time", transport.DefaultMaxWaitTime)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("NIXTLA_API_KEY")
	}
	if cfg.BaseURL == transport.DefaultBaseURL {
		if u := os.Getenv("NIXTLA_BASE_URL"); u != "" {
			cfg.BaseURL = u
		}
	}
	return &cfg, nil
}

// ClientOptions converts the config into client options.
func (c *Config) ClientOptions() *timegpt.Options {
	return &timegpt.Options{
		APIKey:        c.APIKey,
		BaseURL:       c.BaseURL,
		Timeout:       c.Timeout,
		MaxRetries:    c.MaxRetries,
		RetryInterval: c.RetryInterval,
		MaxWaitTime:   c.MaxWaitTime,
		NumPartitions: c.NumPartitions,
	}
}
