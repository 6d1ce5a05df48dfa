// Package config wraps Viper for component-level configuration sections
// and builds the process logger.
package config

import (
	"strings"

	"github.com/spf13/viper"
)

// ViperConfig is a view over one section of the process configuration.
type ViperConfig struct {
	v *viper.Viper
}

// New wraps v. A nil v yields an empty configuration.
func New(v *viper.Viper) *ViperConfig {
	if v == nil {
		v = viper.New()
	}
	return &ViperConfig{v: v}
}

// Sub returns the section under key. Values are resolved through the
// parent, so environment overrides such as GUARDIAN_MQTT_BROKER carry over;
// viper.Sub alone would drop them.
func (c *ViperConfig) Sub(key string) *ViperConfig {
	prefix := strings.ToLower(key) + "."
	sub := viper.New()
	for _, k := range c.v.AllKeys() {
		if rest, ok := strings.CutPrefix(k, prefix); ok {
			sub.Set(rest, c.v.Get(k))
		}
	}
	return New(sub)
}

// Unmarshal decodes the section into target using mapstructure tags.
func (c *ViperConfig) Unmarshal(target any) error {
	return c.v.Unmarshal(target)
}

// IsSet reports whether key has a value in this section.
func (c *ViperConfig) IsSet(key string) bool {
	return c.v.IsSet(key)
}

// Viper returns the underlying instance.
func (c *ViperConfig) Viper() *viper.Viper {
	return c.v
}

// EnvReplacer maps dotted keys to environment names: mqtt.broker becomes
// <PREFIX>_MQTT_BROKER.
func EnvReplacer() *strings.Replacer {
	return strings.NewReplacer(".", "_")
}
