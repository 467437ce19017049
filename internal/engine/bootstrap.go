package engine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"rutkit/internal/httpapi"
	"rutkit/internal/logging"
	"rutkit/internal/pipeline"
	"rutkit/internal/telemetry"
	"rutkit/internal/transport"
)

// Config selects what the engine serves. A zero port disables that listener.
type Config struct {
	GRPCPort    int
	HTTPPort    int
	MetricsPort int
	PipelineYml string // optional
}

func Bootstrap(ctx context.Context, cfg Config) (*Engine, error) {
	// 1. transport server
	srv, err := transport.StartServer(cfg.GRPCPort)
	if err != nil {
		return nil, fmt.Errorf("transport: %w", err)
	}
	e := &Engine{transport: srv}

	// 2. pipeline runner
	if cfg.PipelineYml != "" {
		e.runner, err = pipeline.Compile(cfg.PipelineYml)
		if err != nil {
			srv.Stop()
			return nil, fmt.Errorf("pipeline: %w", err)
		}
		if err := e.runner.Start(ctx); err != nil {
			srv.Stop()
			_ = e.runner.Close()
			return nil, err
		}
	}

	// 3. http api and metrics
	if cfg.HTTPPort > 0 {
		e.http = &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
			Handler:           httpapi.New(logging.L()).Router(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := e.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logging.L().Error("engine: http api stopped", "addr", e.http.Addr, "err", err)
			}
		}()
	}
	if cfg.MetricsPort > 0 {
		e.metrics = telemetry.Expose(cfg.MetricsPort)
	}

	logging.L().Info("engine: started",
		"grpc", srv.Addr().String(), "http_port", cfg.HTTPPort, "metrics_port", cfg.MetricsPort, "pipeline", cfg.PipelineYml)
	return e, nil
}
