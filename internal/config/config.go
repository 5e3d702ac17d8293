// Package config loads process configuration from the environment with an
// optional config file, via viper.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/relaycore/relay/internal/domain"
)

type Config struct {
	Addr        string `mapstructure:"addr"`
	LogLevel    string `mapstructure:"log_level"`
	DatabaseURL string `mapstructure:"database_url"`
	RedisURL    string `mapstructure:"redis_url"`

	KafkaBrokers []string `mapstructure:"kafka_brokers"`
	KafkaTopic   string   `mapstructure:"kafka_topic"`

	DeliveryTimeout time.Duration `mapstructure:"delivery_timeout"`

	// Default retry policy applied to webhooks without a stored one.
	RetryMaxRetries   int           `mapstructure:"retry_max_retries"`
	RetryInitialDelay time.Duration `mapstructure:"retry_initial_delay"`
	RetryMaxDelay     time.Duration `mapstructure:"retry_max_delay"`
	RetryMultiplier   float64       `mapstructure:"retry_multiplier"`
	RetryJitter       float64       `mapstructure:"retry_jitter"`

	AttemptRetentionDays int `mapstructure:"attempt_retention_days"`

	// WebhookTargets maps webhook ids to destination URLs for replays.
	// Usually supplied via the config file, not the environment.
	WebhookTargets map[string]string `mapstructure:"webhook_targets"`
}

// DefaultRetryPolicy builds the fallback policy from the retry knobs. It is
// applied to webhooks without a stored policy.
func (c *Config) DefaultRetryPolicy() domain.RetryPolicy {
	return domain.RetryPolicy{
		Enabled:           true,
		MaxRetries:        c.RetryMaxRetries,
		InitialDelay:      c.RetryInitialDelay,
		MaxDelay:          c.RetryMaxDelay,
		BackoffMultiplier: c.RetryMultiplier,
		JitterFactor:      c.RetryJitter,
	}
}

func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("addr", ":8080")
	v.SetDefault("log_level", "info")
	v.SetDefault("kafka_topic", "delivery.events")
	v.SetDefault("delivery_timeout", 30*time.Second)
	v.SetDefault("retry_max_retries", 5)
	v.SetDefault("retry_initial_delay", time.Second)
	v.SetDefault("retry_max_delay", time.Hour)
	v.SetDefault("retry_multiplier", 2.0)
	v.SetDefault("retry_jitter", 0.1)
	v.SetDefault("attempt_retention_days", 30)

	v.SetEnvPrefix("RELAY")
	v.AutomaticEnv()

	v.SetConfigName("relay")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/relay")
	if err := v.ReadInConfig(); err != nil {
		// A config file is optional; only real read failures are errors.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return &cfg, nil
}
