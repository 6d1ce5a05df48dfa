package relay

import "time"

// Config holds the relay's tuning knobs.
type Config struct {
	Shards          int           `mapstructure:"shards"`
	SessionBuffer   int           `mapstructure:"session_buffer"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DefaultConfig returns the relay defaults.
func DefaultConfig() Config {
	return Config{
		Shards:          DefaultShards,
		SessionBuffer:   DefaultSessionBuffer,
		WriteTimeout:    5 * time.Second,
		ShutdownTimeout: 10 * time.Second,
	}
}
