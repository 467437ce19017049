package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"rutkit/internal/transform"
	sinkkafka "rutkit/sink/kafka"
	"rutkit/source/lines"
)

const SupportedSchema = "v1"

type RetryPolicy struct {
	Attempts  int `yaml:"attempts"`
	BackoffMS int `yaml:"backoff_ms"`
}

type TransformerSpec struct {
	Name        string               `yaml:"name"`
	Type        string               `yaml:"type"`    // "inproc" or "grpc"
	Address     string               `yaml:"address"` // grpc only, e.g. "localhost:50052"
	TimeoutMS   int                  `yaml:"timeout_ms"`
	RetryPolicy RetryPolicy          `yaml:"retry_policy"`
	RUT         transform.RUTOptions `yaml:"rut"` // inproc only
}

type SourceSpec struct {
	Kind   string       `yaml:"kind"`   // kafka | lines
	Driver string       `yaml:"driver"` // kafka driver, e.g. sarama
	Config string       `yaml:"config"` // kafka config file, relative to the pipeline file
	Lines  lines.Config `yaml:"lines"`
}

type SinkConfigs struct {
	Kafka sinkkafka.Config `yaml:"kafka"`
}

type Debug struct {
	PerFrameDelayMS int  `yaml:"per_frame_delay_ms"`
	PrintCounter    bool `yaml:"print_counter"`
	AckBatchSize    int  `yaml:"ack_batch_size"`
	AckFlushMS      int  `yaml:"ack_flush_ms"`
	PrintValue      bool `yaml:"print_value"`
	ValueMaxBytes   int  `yaml:"value_max_bytes"`
}

// Pipeline is the parsed pipeline file.
type Pipeline struct {
	SchemaVersion string     `yaml:"schema_version"`
	Source        SourceSpec `yaml:"source"`

	// Ordered list of transformers applied between source and sinks.
	Transformers []TransformerSpec `yaml:"transformers"`

	Sinks       []string    `yaml:"sinks"`
	SinkConfigs SinkConfigs `yaml:"sink_configs"`
	Debug       Debug       `yaml:"debug"`
}

// SourceName is the registry name of the configured source driver.
func (p Pipeline) SourceName() string {
	if p.Source.Driver == "" {
		return p.Source.Kind
	}
	return p.Source.Kind + "/" + p.Source.Driver
}

// LoadPipeline parses a pipeline file, validates schema_version and returns
// the parsed pipeline with the source config path made absolute.
func LoadPipeline(path string) (Pipeline, error) {
	var cfg Pipeline
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("pipeline %s: %w", path, err)
	}
	if cfg.SchemaVersion == "" {
		cfg.SchemaVersion = SupportedSchema
	}
	if cfg.SchemaVersion != SupportedSchema {
		return cfg, fmt.Errorf("pipeline schema_version %q not supported (want %q)", cfg.SchemaVersion, SupportedSchema)
	}
	base := filepath.Dir(path)
	cfg.Source.Config = resolve(base, cfg.Source.Config)
	if p := cfg.Source.Lines.Path; p != "-" {
		cfg.Source.Lines.Path = resolve(base, p)
	}
	for i, t := range cfg.Transformers {
		if t.Name == "" {
			cfg.Transformers[i].Name = fmt.Sprintf("%s-%d", t.Type, i)
		}
	}
	return cfg, nil
}

func resolve(base, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}
