// Package stdout prints frames and acks them in batches.
package stdout

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"rutkit/internal/record"
	"rutkit/sink"
)

type Config struct {
	DelayMS       int       `yaml:"delay_ms"`        // artificial per-frame delay
	PrintCounter  bool      `yaml:"print_counter"`   // prepend seq#
	PrintValue    bool      `yaml:"print_value"`     // print the frame value
	ValueMaxBytes int       `yaml:"value_max_bytes"` // 0 = no limit
	BatchSize     int       `yaml:"ack_batch_size"`  // 0 = ack on flush only
	FlushMS       int       `yaml:"ack_flush_ms"`    // 0 = no timer
	Out           io.Writer `yaml:"-"`               // defaults to os.Stdout
}

type driver struct {
	cfg Config
	out io.Writer
	ack sink.EmitFn

	seq atomic.Uint64

	mu      sync.Mutex // guards pending, timer and writes to out
	pending []record.Checkpoint
	timer   *time.Timer
}

func (d *driver) Configure(raw any) error {
	c, ok := raw.(Config)
	if !ok {
		return fmt.Errorf("stdout-sink: expected Config, got %T", raw)
	}
	d.cfg = c
	d.out = c.Out
	if d.out == nil {
		d.out = os.Stdout
	}
	return nil
}

func (d *driver) Push(f *record.Frame) error {
	if d.cfg.DelayMS > 0 {
		time.Sleep(time.Duration(d.cfg.DelayMS) * time.Millisecond)
	}

	line := "[sink] "
	if d.cfg.PrintCounter {
		line = fmt.Sprintf("[sink %06d] ", d.seq.Add(1))
	}
	line += f.Checkpoint.String()
	if d.cfg.PrintValue {
		v := f.Value
		if n := d.cfg.ValueMaxBytes; n > 0 && len(v) > n {
			v = v[:n]
		}
		line += " " + string(v)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, err := fmt.Fprintln(d.out, line); err != nil {
		return fmt.Errorf("stdout-sink: %w", err)
	}

	d.pending = append(d.pending, f.Checkpoint)
	if d.cfg.BatchSize > 0 && len(d.pending) >= d.cfg.BatchSize {
		d.flushLocked()
		return nil
	}
	if d.cfg.FlushMS > 0 && d.timer == nil {
		d.timer = time.AfterFunc(time.Duration(d.cfg.FlushMS)*time.Millisecond, d.timerFlush)
	}
	return nil
}

func (d *driver) Close() error {
	d.mu.Lock()
	d.flushLocked()
	d.mu.Unlock()
	return nil
}

func (d *driver) BindAck(fn sink.EmitFn) { d.ack = fn }

func (d *driver) timerFlush() {
	d.mu.Lock()
	d.flushLocked()
	d.mu.Unlock()
}

// must be called with d.mu held
func (d *driver) flushLocked() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	if d.ack != nil {
		for _, cp := range d.pending {
			d.ack(cp)
		}
	}
	d.pending = d.pending[:0]
}

func init() {
	sink.Register("stdout", func() sink.Adapter { return &driver{} })
}
