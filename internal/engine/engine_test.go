package engine

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"rutkit/internal/transport"
)

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func TestEngine_ServesControlAndStops(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "in.txt"), []byte("123456785\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	pipe := "source: { kind: lines, lines: { path: in.txt } }\ntransformers: [{ type: inproc }]\nsinks: [stdout]\n"
	if err := os.WriteFile(filepath.Join(dir, "pipeline.yml"), []byte(pipe), 0o644); err != nil {
		t.Fatal(err)
	}

	port := freePort(t)
	ctx, cancel := context.WithCancel(context.Background())
	e, err := Bootstrap(ctx, Config{GRPCPort: port, PipelineYml: filepath.Join(dir, "pipeline.yml")})
	if err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	cli, err := transport.Dial(port)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer cli.Close()

	callCtx, callCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer callCancel()
	res, err := cli.Evaluate(callCtx, "12345678-5")
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if res.Formatted != "12.345.678-5" || !res.Valid {
		t.Fatalf("unexpected result %+v", res)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("engine did not stop")
	}
}

func TestBootstrap_BadPipeline(t *testing.T) {
	_, err := Bootstrap(context.Background(), Config{GRPCPort: freePort(t), PipelineYml: filepath.Join(t.TempDir(), "missing.yml")})
	if err == nil {
		t.Fatal("expected error for missing pipeline file")
	}
}
