package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"rutkit/internal/transform"
)

// PluginEnvPrefix selects environment overrides for the plugin, e.g.
// RUTKIT_PLUGIN_LISTEN or RUTKIT_PLUGIN_RUT__FIELD.
const PluginEnvPrefix = "RUTKIT_PLUGIN_"

type LogConfig struct {
	Level string `koanf:"level"`
	JSON  bool   `koanf:"json"`
}

type MemoConfig struct {
	RedisURL string        `koanf:"redis_url"` // empty keeps the memo in process
	Prefix   string        `koanf:"prefix"`
	TTL      time.Duration `koanf:"ttl"`
}

// Plugin configures the standalone RUT plugin.
type Plugin struct {
	Listen     string               `koanf:"listen"`      // gRPC
	HTTPListen string               `koanf:"http_listen"` // JSON API and /metrics; empty disables
	RUT        transform.RUTOptions `koanf:"rut"`
	Memo       MemoConfig           `koanf:"memo"`
	Log        LogConfig            `koanf:"log"`
}

// LoadPlugin merges the YAML file at path (optional) with environment
// overrides and applies defaults.
func LoadPlugin(path string) (Plugin, error) {
	k := koanf.New(".")
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil &&
			!errors.Is(err, fs.ErrNotExist) {
			return Plugin{}, fmt.Errorf("plugin config %s: %w", path, err)
		}
	}
	if err := k.Load(env.Provider(PluginEnvPrefix, ".", pluginEnvKey), nil); err != nil {
		return Plugin{}, fmt.Errorf("plugin env: %w", err)
	}

	var cfg Plugin
	if err := k.Unmarshal("", &cfg); err != nil {
		return cfg, fmt.Errorf("plugin config: %w", err)
	}
	if cfg.Listen == "" {
		cfg.Listen = ":50052"
	}
	if cfg.Memo.TTL == 0 {
		cfg.Memo.TTL = 24 * time.Hour
	}
	return cfg, nil
}

func pluginEnvKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, PluginEnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}
