package config

import (
	"path/filepath"
	"testing"
	"time"

	"rutkit/internal/transform"
)

func TestLoadPlugin_FileAndEnv(t *testing.T) {
	path := writeFile(t, t.TempDir(), "plugin.yml", `listen: ":6000"
http_listen: ":6001"
rut:
  field: rut
  output: formatted
  dedupe: true
memo:
  ttl: 1h
log:
  level: debug
`)
	t.Setenv("RUTKIT_PLUGIN_RUT__ON_INVALID", "drop")
	t.Setenv("RUTKIT_PLUGIN_MEMO__REDIS_URL", "redis://localhost:6379/0")

	cfg, err := LoadPlugin(path)
	if err != nil {
		t.Fatalf("LoadPlugin: %v", err)
	}
	if cfg.Listen != ":6000" || cfg.HTTPListen != ":6001" {
		t.Fatalf("listen: %+v", cfg)
	}
	if cfg.RUT.Field != "rut" || !cfg.RUT.Dedupe || cfg.RUT.OnInvalid != transform.InvalidDrop {
		t.Fatalf("rut options: %+v", cfg.RUT)
	}
	if cfg.Memo.RedisURL != "redis://localhost:6379/0" || cfg.Memo.TTL != time.Hour {
		t.Fatalf("memo: %+v", cfg.Memo)
	}
	if cfg.Log.Level != "debug" {
		t.Fatalf("log: %+v", cfg.Log)
	}
}

func TestLoadPlugin_Defaults(t *testing.T) {
	cfg, err := LoadPlugin(filepath.Join(t.TempDir(), "absent.yml"))
	if err != nil {
		t.Fatalf("LoadPlugin: %v", err)
	}
	if cfg.Listen != ":50052" || cfg.Memo.TTL != 24*time.Hour || cfg.HTTPListen != "" {
		t.Fatalf("defaults: %+v", cfg)
	}
}
