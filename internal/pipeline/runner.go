package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"rutkit/internal/logging"
	"rutkit/internal/record"
	"rutkit/internal/telemetry"
	"rutkit/internal/transform"
	"rutkit/sink"
	"rutkit/source"
)

// ErrStageFailed is returned when a stage keeps answering StatusError after
// its retries are spent.
var ErrStageFailed = errors.New("stage failed")

type stage struct {
	name     string
	client   transform.Client
	timeout  time.Duration
	attempts int // retries after the first call
	backoff  time.Duration
}

type namedSink struct {
	name string
	sink sink.Adapter
	acks bool // sink reports delivery through BindAck
}

// Runner moves frames from the source through every stage into every sink.
type Runner struct {
	source source.Adapter
	stages []stage
	sinks  []namedSink

	mu      sync.Mutex
	subs    []func(record.Ack)
	pending map[record.Checkpoint]int // sink acks still owed per checkpoint
	ackers  int

	done chan struct{}
	err  error
}

func NewRunner() *Runner { return &Runner{pending: make(map[record.Checkpoint]int)} }

func (r *Runner) SetSource(s source.Adapter) { r.source = s }

// AddSink appends a sink. Ack-aware sinks are bound to the runner; a
// checkpoint is acknowledged upstream only once every such sink acked every
// frame derived from it.
func (r *Runner) AddSink(name string, s sink.Adapter) {
	ns := namedSink{name: name, sink: s}
	if aw, ok := s.(sink.AckAware); ok {
		aw.BindAck(r.Ack)
		ns.acks = true
		r.ackers++
	}
	r.sinks = append(r.sinks, ns)
}

// AddTransformer appends a stage. Each call gets timeout (0 = none) and is
// retried up to attempts more times, backoff apart, on error.
func (r *Runner) AddTransformer(name string, c transform.Client, timeout time.Duration, attempts int, backoff time.Duration) {
	r.stages = append(r.stages, stage{name: name, client: c, timeout: timeout, attempts: max(attempts, 0), backoff: backoff})
}

func (r *Runner) SubscribeAck(fn func(record.Ack)) {
	r.mu.Lock()
	r.subs = append(r.subs, fn)
	r.mu.Unlock()
}

// Ack records one sink delivery for cp. Subscribers hear about cp when the
// last outstanding delivery is acked; acks for untracked checkpoints pass
// straight through.
func (r *Runner) Ack(cp record.Checkpoint) {
	r.mu.Lock()
	if n, ok := r.pending[cp]; ok {
		if n > 1 {
			r.pending[cp] = n - 1
			r.mu.Unlock()
			return
		}
		delete(r.pending, cp)
	}
	r.mu.Unlock()
	r.release(cp)
}

// release fans a processed checkpoint out to every subscriber.
func (r *Runner) release(cp record.Checkpoint) {
	ack := record.Ack{Checkpoint: cp}

	r.mu.Lock()
	handlers := append([]func(record.Ack){}, r.subs...)
	r.mu.Unlock()

	for _, fn := range handlers {
		fn(ack)
	}
}

func (r *Runner) pushFrame(ctx context.Context, f *record.Frame) error {
	frames := []*record.Frame{f}
	for _, st := range r.stages {
		var next []*record.Frame
		for _, in := range frames {
			out, err := r.callStage(ctx, st, in)
			if err != nil {
				return err
			}
			next = append(next, out...)
		}
		frames = next
		if len(frames) == 0 {
			// Nothing reaches a sink, so nothing else will ack this frame.
			r.release(f.Checkpoint)
			return nil
		}
	}

	if r.ackers == 0 {
		if err := r.push(frames); err != nil {
			return err
		}
		r.release(f.Checkpoint)
		return nil
	}

	// Sinks may ack from inside Push, so the count is in place first.
	r.mu.Lock()
	r.pending[f.Checkpoint] += len(frames) * r.ackers
	r.mu.Unlock()

	if err := r.push(frames); err != nil {
		r.mu.Lock()
		delete(r.pending, f.Checkpoint)
		r.mu.Unlock()
		return err
	}
	return nil
}

func (r *Runner) push(frames []*record.Frame) error {
	for _, out := range frames {
		for _, s := range r.sinks {
			if err := s.sink.Push(out); err != nil {
				return fmt.Errorf("sink %s: %w", s.name, err)
			}
			telemetry.ObservePush(s.name)
		}
	}
	return nil
}

func (r *Runner) callStage(ctx context.Context, st stage, f *record.Frame) ([]*record.Frame, error) {
	req := transform.Request{
		Key:     f.Key,
		Payload: f.Value,
		Metadata: transform.Metadata{
			SourceOffset: f.Checkpoint.String(),
			Attributes:   f.Attributes,
		},
	}

	start := time.Now()
	var (
		resp transform.Response
		err  error
	)
	for attempt := 0; attempt <= st.attempts; attempt++ {
		if attempt > 0 && st.backoff > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(st.backoff):
			}
		}
		resp, err = st.call(ctx, req)
		if err == nil && resp.Status != transform.StatusError {
			break
		}
		logging.L().Warn("pipeline: stage call failed",
			"stage", st.name, "attempt", attempt+1, "checkpoint", f.Checkpoint.String(), "err", err, "detail", resp.Detail)
	}

	status := resp.Status.String()
	if err != nil {
		status = transform.StatusError.String()
	}
	telemetry.ObserveStage(st.name, status, time.Since(start))

	switch {
	case err != nil:
		return nil, fmt.Errorf("stage %s: %w", st.name, err)
	case resp.Status == transform.StatusError:
		return nil, fmt.Errorf("stage %s: %w: %s", st.name, ErrStageFailed, resp.Detail)
	case resp.Status == transform.StatusDrop:
		return nil, nil
	}

	out := make([]*record.Frame, 0, len(resp.Events))
	for _, ev := range resp.Events {
		key := ev.Key
		if key == nil {
			key = f.Key
		}
		out = append(out, &record.Frame{
			Key:        key,
			Value:      ev.Value,
			Headers:    f.Headers,
			Attributes: ev.Metadata.Attributes,
			Ts:         f.Ts,
			Checkpoint: f.Checkpoint,
		})
	}
	return out, nil
}

func (st stage) call(ctx context.Context, req transform.Request) (transform.Response, error) {
	if st.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, st.timeout)
		defer cancel()
	}
	return st.client.Transform(ctx, req)
}

// Start runs the source in the background. Wait reports how it ended.
func (r *Runner) Start(ctx context.Context) error {
	if r.source == nil {
		return errors.New("runner: no source configured")
	}
	r.done = make(chan struct{})
	go func() {
		defer close(r.done)
		r.err = r.Run(ctx)
	}()
	return nil
}

// Run drives the source on the calling goroutine until it returns.
func (r *Runner) Run(ctx context.Context) error {
	if r.source == nil {
		return errors.New("runner: no source configured")
	}
	err := r.source.Run(ctx, func(f *record.Frame) error { return r.pushFrame(ctx, f) })
	if err != nil && !errors.Is(err, context.Canceled) {
		logging.L().Error("pipeline: source stopped", "err", err)
		return err
	}
	return nil
}

// Wait blocks until a started runner's source returns.
func (r *Runner) Wait() error {
	if r.done == nil {
		return nil
	}
	<-r.done
	return r.err
}

// Close releases the source, every stage client and every sink.
func (r *Runner) Close() error {
	var errs []error
	if r.source != nil {
		errs = append(errs, r.source.Close())
	}
	for _, st := range r.stages {
		errs = append(errs, st.client.Close())
	}
	for _, s := range r.sinks {
		errs = append(errs, s.sink.Close())
	}
	return errors.Join(errs...)
}
