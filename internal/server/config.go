package server

import (
	"fmt"
	"net"
	"strconv"

	"github.com/HerbHall/guardian/internal/config"
	"github.com/spf13/viper"
)

// Config holds the HTTP listener settings.
type Config struct {
	Host           string  `mapstructure:"host"`
	Port           int     `mapstructure:"port"`
	RateLimitRPS   float64 `mapstructure:"rate_limit_rps"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
}

// Addr returns the listen address as host:port.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// LoadConfig reads defaults, an optional YAML file and GUARDIAN_*
// environment overrides. An empty configPath searches the usual places.
func LoadConfig(configPath string) (*viper.Viper, error) {
	v := viper.New()

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 5000)
	v.SetDefault("server.rate_limit_rps", 100)
	v.SetDefault("server.rate_limit_burst", 200)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("database.path", "./data/guardian.db")

	v.SetDefault("relay.shards", 32)
	v.SetDefault("relay.session_buffer", 256)
	v.SetDefault("relay.write_timeout", "5s")
	v.SetDefault("relay.shutdown_timeout", "10s")

	v.SetDefault("mqtt.broker_url", "")
	v.SetDefault("mqtt.client_id", "guardian")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.topic_prefix", "guardian")
	v.SetDefault("mqtt.qos", 1)
	v.SetDefault("mqtt.timeout", "10s")
	v.SetDefault("mqtt.workers", 8)
	v.SetDefault("mqtt.queue_size", 1024)

	v.SetDefault("webhook.url", "")
	v.SetDefault("webhook.timeout", "10s")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("guardian")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/guardian")
	}

	// GUARDIAN_SERVER_PORT=9090 overrides server.port.
	v.SetEnvPrefix("GUARDIAN")
	v.SetEnvKeyReplacer(config.EnvReplacer())
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}
	return v, nil
}

// ServerConfig decodes the server section.
func ServerConfig(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := config.New(v).Sub("server").Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode server config: %w", err)
	}
	if cfg.Port < 0 || cfg.Port > 65535 {
		return Config{}, fmt.Errorf("server.port %d out of range", cfg.Port)
	}
	return cfg, nil
}
