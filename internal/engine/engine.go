// Package engine ties the control plane, the HTTP API and the pipeline runner
// into one process.
package engine

import (
	"context"
	"net/http"
	"time"

	"rutkit/internal/logging"
	"rutkit/internal/pipeline"
	"rutkit/internal/transport"
)

type Engine struct {
	transport *transport.Server
	runner    *pipeline.Runner
	http      *http.Server
	metrics   *http.Server
}

// Run serves the control plane until ctx is cancelled, then shuts every
// component down.
func (e *Engine) Run(ctx context.Context) error {
	if e.runner != nil {
		go func() {
			if err := e.runner.Wait(); err != nil {
				logging.L().Error("engine: pipeline failed", "err", err)
				return
			}
			logging.L().Info("engine: pipeline source drained")
		}()
	}

	go func() {
		<-ctx.Done()
		e.shutdown()
	}()

	return e.transport.Serve()
}

func (e *Engine) shutdown() {
	sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, s := range []*http.Server{e.http, e.metrics} {
		if s != nil {
			_ = s.Shutdown(sctx)
		}
	}
	e.transport.Stop()
	if e.runner != nil {
		if err := e.runner.Close(); err != nil {
			logging.L().Warn("engine: close pipeline", "err", err)
		}
	}
}
