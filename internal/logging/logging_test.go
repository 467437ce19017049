package logging

import (
	"context"
	"log/slog"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestInitFromEnv_SwapsLogger(t *testing.T) {
	t.Setenv("RUTKIT_LOG_LEVEL", "debug")
	t.Setenv("RUTKIT_LOG_JSON", "true")
	before := L()
	InitFromEnv()
	t.Cleanup(func() { def.Store(before) })

	if L() == before {
		t.Fatal("expected a new logger")
	}
	if !L().Enabled(context.Background(), slog.LevelDebug) {
		t.Fatal("expected debug level enabled")
	}
}
