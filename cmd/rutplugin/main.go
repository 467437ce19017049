package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"

	"rutkit/internal/config"
	"rutkit/internal/httpapi"
	"rutkit/internal/logging"
	"rutkit/internal/transform"
)

func main() {
	cfgPath := flag.String("config", "plugin.yml", "plugin config file (optional)")
	flag.Parse()
	os.Exit(run(*cfgPath))
}

// run serves until SIGINT/SIGTERM and returns the process exit code.
func run(cfgPath string) int {
	cfg, err := config.LoadPlugin(cfgPath)
	if err != nil {
		logging.L().Error("rutplugin: config", "err", err)
		return 1
	}
	logging.Configure(logging.Options{Level: cfg.Log.Level, JSON: cfg.Log.JSON})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	memo, closeMemo, err := openMemo(ctx, cfg.Memo)
	if err != nil {
		logging.L().Error("rutplugin: memo", "err", err)
		return 1
	}
	defer closeMemo()

	field, err := transform.NewRUTField(cfg.RUT, memo)
	if err != nil {
		logging.L().Error("rutplugin: options", "err", err)
		return 1
	}

	lis, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		logging.L().Error("rutplugin: failed to listen", "addr", cfg.Listen, "err", err)
		return 1
	}
	s := grpc.NewServer()
	transform.RegisterServer(s, field)

	var api *http.Server
	if cfg.HTTPListen != "" {
		api = &http.Server{
			Addr:              cfg.HTTPListen,
			Handler:           httpapi.New(logging.L()).Router(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := api.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logging.L().Error("rutplugin: http api stopped", "err", err)
			}
		}()
	}

	go func() {
		<-ctx.Done()
		if api != nil {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			_ = api.Shutdown(sctx)
			cancel()
		}
		s.GracefulStop()
	}()

	logging.L().Info("rutplugin: listening", "addr", cfg.Listen, "http", cfg.HTTPListen,
		"field", cfg.RUT.Field, "dedupe", cfg.RUT.Dedupe, "shared_memo", cfg.Memo.RedisURL != "")
	if err := s.Serve(lis); err != nil {
		logging.L().Error("rutplugin: failed to serve", "err", err)
		return 1
	}
	return 0
}

// openMemo picks the Redis memo when a URL is configured, otherwise an
// in-process one.
func openMemo(ctx context.Context, cfg config.MemoConfig) (transform.Memo, func(), error) {
	if cfg.RedisURL == "" {
		return transform.NewMemoryMemo(), func() {}, nil
	}
	client, err := transform.DialRedis(ctx, cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	m := transform.NewRedisMemo(client, cfg.Prefix, cfg.TTL)
	return m, func() { _ = m.Close() }, nil
}
