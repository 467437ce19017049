package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"rutkit/internal/engine"
	"rutkit/internal/logging"
	_ "rutkit/sink/kafka"
	_ "rutkit/sink/stdout"
	_ "rutkit/source/kafka"
	_ "rutkit/source/lines"
)

func main() {
	var cfg engine.Config
	flag.IntVar(&cfg.GRPCPort, "grpc-port", 7070, "control plane port")
	flag.IntVar(&cfg.HTTPPort, "http-port", 8080, "JSON API port, 0 disables")
	flag.IntVar(&cfg.MetricsPort, "metrics-port", 9100, "metrics port, 0 disables")
	flag.StringVar(&cfg.PipelineYml, "pipeline", "pipeline.yml", "pipeline file, empty runs the control plane only")
	flag.Parse()

	logging.InitFromEnv()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	e, err := engine.Bootstrap(ctx, cfg)
	if err != nil {
		logging.L().Error("rutkit: bootstrap", "err", err)
		os.Exit(1)
	}

	if err := e.Run(ctx); err != nil {
		logging.L().Error("rutkit: engine", "err", err)
		os.Exit(1)
	}
}
