// Package lines is a source that turns every line of a file, or of stdin, into
// a frame. It is meant for batch runs and local testing of pipelines.
package lines

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"rutkit/internal/record"
	"rutkit/source"
)

func init() {
	source.Register("lines", func() source.Adapter { return &Driver{} })
}

// Config names the input. Path "-" or "" reads stdin.
type Config struct {
	Path      string `yaml:"path"`
	SkipBlank bool   `yaml:"skip_blank"`
}

// Driver reads one frame per line and returns at end of input.
type Driver struct {
	cfg    Config
	name   string
	r      io.Reader
	closer io.Closer
}

// NewReader builds a driver over an arbitrary reader.
func NewReader(name string, r io.Reader, skipBlank bool) *Driver {
	return &Driver{name: name, r: r, cfg: Config{SkipBlank: skipBlank}}
}

func (d *Driver) Configure(raw any) error {
	cfg, ok := raw.(Config)
	if !ok {
		return fmt.Errorf("lines-source: expected Config, got %T", raw)
	}
	d.cfg = cfg
	if cfg.Path == "" || cfg.Path == "-" {
		d.name, d.r = "stdin", os.Stdin
		return nil
	}
	f, err := os.Open(cfg.Path)
	if err != nil {
		return fmt.Errorf("lines-source: %w", err)
	}
	d.name, d.r, d.closer = cfg.Path, f, f
	return nil
}

func (d *Driver) Run(ctx context.Context, emit source.EmitFunc) error {
	if d.r == nil {
		return fmt.Errorf("lines-source: not configured")
	}
	sc := bufio.NewScanner(d.r)
	var n int64
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		n++
		line := strings.TrimRight(sc.Text(), "\r")
		if d.cfg.SkipBlank && strings.TrimSpace(line) == "" {
			continue
		}
		f := &record.Frame{
			Value:      []byte(line),
			Ts:         time.Now(),
			Checkpoint: record.Checkpoint{Topic: d.name, Offset: n},
		}
		if err := emit(f); err != nil {
			return err
		}
	}
	return sc.Err()
}

func (d *Driver) Close() error {
	if d.closer != nil {
		return d.closer.Close()
	}
	return nil
}
