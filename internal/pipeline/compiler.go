package pipeline

import (
	"fmt"
	"io"
	"time"

	"rutkit/internal/config"
	"rutkit/internal/transform"
	"rutkit/sink"
	"rutkit/sink/stdout"
	"rutkit/source"
	"rutkit/source/kafka"
	_ "rutkit/source/lines"
)

// Option tweaks how a pipeline is compiled.
type Option func(*options)

type options struct {
	stdout io.Writer
	memo   transform.Memo
}

// WithStdout redirects the stdout sink.
func WithStdout(w io.Writer) Option { return func(o *options) { o.stdout = w } }

// WithMemo shares a change-detection store between in-process RUT stages.
func WithMemo(m transform.Memo) Option { return func(o *options) { o.memo = m } }

// Compile builds a runner from a pipeline file.
func Compile(path string, opts ...Option) (*Runner, error) {
	cfg, err := config.LoadPipeline(path)
	if err != nil {
		return nil, err
	}
	var o options
	for _, fn := range opts {
		fn(&o)
	}
	r := NewRunner()
	if err := build(cfg, r, o); err != nil {
		_ = r.Close()
		return nil, err
	}
	return r, nil
}

func build(cfg config.Pipeline, r *Runner, o options) error {
	src, err := newSource(cfg)
	if err != nil {
		return err
	}
	r.SetSource(src)
	if aw, ok := src.(source.AckAware); ok {
		r.SubscribeAck(aw.OnAck)
	}

	for _, t := range cfg.Transformers {
		cli, err := newTransformer(t, o)
		if err != nil {
			return fmt.Errorf("transform %s: %w", t.Name, err)
		}
		r.AddTransformer(t.Name, cli,
			time.Duration(t.TimeoutMS)*time.Millisecond,
			t.RetryPolicy.Attempts,
			time.Duration(t.RetryPolicy.BackoffMS)*time.Millisecond)
	}

	for _, name := range cfg.Sinks {
		s, err := newSink(name, cfg, o)
		if err != nil {
			return err
		}
		r.AddSink(name, s)
	}
	return nil
}

func newSource(cfg config.Pipeline) (source.Adapter, error) {
	var raw any
	switch cfg.Source.Kind {
	case "kafka":
		kc, err := kafka.LoadConfig(cfg.Source.Config)
		if err != nil {
			return nil, err
		}
		raw = kc
	case "lines":
		raw = cfg.Source.Lines
	default:
		return nil, fmt.Errorf("unsupported source %q", cfg.Source.Kind)
	}
	src, err := source.NewAdapter(cfg.SourceName())
	if err != nil {
		return nil, err
	}
	if err := src.Configure(raw); err != nil {
		return nil, err
	}
	return src, nil
}

func newTransformer(t config.TransformerSpec, o options) (transform.Client, error) {
	switch t.Type {
	case "inproc":
		memo := o.memo
		if t.RUT.Dedupe && memo == nil {
			memo = transform.NewMemoryMemo()
		}
		f, err := transform.NewRUTField(t.RUT, memo)
		if err != nil {
			return nil, err
		}
		return transform.NewInProcessClient(f), nil
	case "grpc":
		cli, err := transform.NewGRPCClient(t.Address)
		if err != nil {
			return nil, fmt.Errorf("dial %s: %w", t.Address, err)
		}
		return cli, nil
	default:
		return nil, fmt.Errorf("unsupported transformer type %q", t.Type)
	}
}

func newSink(name string, cfg config.Pipeline, o options) (sink.Adapter, error) {
	s, err := sink.NewAdapter(name)
	if err != nil {
		return nil, err
	}
	switch name {
	case "stdout":
		err = s.Configure(stdout.Config{
			DelayMS:       cfg.Debug.PerFrameDelayMS,
			PrintCounter:  cfg.Debug.PrintCounter,
			PrintValue:    cfg.Debug.PrintValue,
			ValueMaxBytes: cfg.Debug.ValueMaxBytes,
			BatchSize:     cfg.Debug.AckBatchSize,
			FlushMS:       cfg.Debug.AckFlushMS,
			Out:           o.stdout,
		})
	case "kafka":
		err = s.Configure(cfg.SinkConfigs.Kafka)
	default:
		err = fmt.Errorf("no config block for sink %q", name)
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}
