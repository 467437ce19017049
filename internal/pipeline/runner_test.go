package pipeline

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"rutkit/internal/record"
	"rutkit/internal/transform"
	"rutkit/sink"
)

type fakeTransform struct {
	calls int32
	mode  string
}

func (f *fakeTransform) Metadata(context.Context) (transform.Info, error) {
	return transform.Info{Name: "fake"}, nil
}
func (f *fakeTransform) Health(context.Context) (transform.Health, error) {
	return transform.Health{OK: true}, nil
}
func (f *fakeTransform) Close() error { return nil }
func (f *fakeTransform) Transform(ctx context.Context, req transform.Request) (transform.Response, error) {
	c := atomic.AddInt32(&f.calls, 1)
	echo := transform.Event{Value: append([]byte{}, req.Payload...)}
	switch f.mode {
	case "drop":
		return transform.Response{Status: transform.StatusDrop}, nil
	case "errorThenOK":
		if c == 1 {
			return transform.Response{Status: transform.StatusError}, nil
		}
	case "alwaysError":
		return transform.Response{Status: transform.StatusError, Detail: "nope"}, nil
	case "transportError":
		return transform.Response{}, errors.New("unavailable")
	case "fanout2":
		return transform.Response{Status: transform.StatusOK, Events: []transform.Event{echo, echo}}, nil
	case "slow":
		<-ctx.Done()
		return transform.Response{}, ctx.Err()
	}
	return transform.Response{Status: transform.StatusOK, Events: []transform.Event{echo}}, nil
}

type captureSink struct {
	pushed []*record.Frame
	ackFn  sink.EmitFn
	hold   bool // keep acks until flush
	held   []record.Checkpoint
}

func (c *captureSink) Configure(any) error { return nil }
func (c *captureSink) Push(f *record.Frame) error {
	c.pushed = append(c.pushed, f)
	if c.hold {
		c.held = append(c.held, f.Checkpoint)
		return nil
	}
	if c.ackFn != nil {
		c.ackFn(f.Checkpoint)
	}
	return nil
}

func (c *captureSink) flush() {
	for _, cp := range c.held {
		c.ackFn(cp)
	}
	c.held = nil
}
func (c *captureSink) Close() error           { return nil }
func (c *captureSink) BindAck(fn sink.EmitFn) { c.ackFn = fn }

func makeFrame() *record.Frame {
	return &record.Frame{Key: []byte("k"), Value: []byte("hello"), Checkpoint: record.Checkpoint{Topic: "t", Partition: 1, Offset: 42}}
}

func newRunner(stages ...*fakeTransform) (*Runner, *captureSink, *[]record.Ack) {
	r := NewRunner()
	for i, st := range stages {
		r.AddTransformer(string(rune('a'+i)), st, 100*time.Millisecond, 0, 0)
	}
	cs := &captureSink{}
	r.AddSink("capture", cs)
	acks := &[]record.Ack{}
	r.SubscribeAck(func(a record.Ack) { *acks = append(*acks, a) })
	return r, cs, acks
}

func TestRunner_TransformerOK_ForwardsAndSinkAcks(t *testing.T) {
	r, cs, acks := newRunner(&fakeTransform{mode: "ok"})

	if err := r.pushFrame(context.Background(), makeFrame()); err != nil {
		t.Fatalf("pushFrame: %v", err)
	}
	if len(cs.pushed) != 1 {
		t.Fatalf("expected 1 pushed frame, got %d", len(cs.pushed))
	}
	if string(cs.pushed[0].Value) != "hello" || string(cs.pushed[0].Key) != "k" {
		t.Fatalf("unexpected frame: %+v", cs.pushed[0])
	}
	if len(*acks) != 1 || (*acks)[0].Checkpoint.Offset != 42 {
		t.Fatalf("expected sink ack, got %+v", *acks)
	}
}

func TestRunner_TransformerDrop_AcksNoPush(t *testing.T) {
	r, cs, acks := newRunner(&fakeTransform{mode: "drop"})

	if err := r.pushFrame(context.Background(), makeFrame()); err != nil {
		t.Fatalf("pushFrame: %v", err)
	}
	if len(cs.pushed) != 0 {
		t.Fatalf("expected 0 pushed frames on DROP, got %d", len(cs.pushed))
	}
	if len(*acks) != 1 {
		t.Fatalf("dropped frame must still be acked, got %d acks", len(*acks))
	}
}

func TestRunner_TransformerRetryThenOK(t *testing.T) {
	r := NewRunner()
	fake := &fakeTransform{mode: "errorThenOK"}
	r.AddTransformer("t1", fake, 100*time.Millisecond, 1, time.Millisecond)
	cs := &captureSink{}
	r.AddSink("capture", cs)

	if err := r.pushFrame(context.Background(), makeFrame()); err != nil {
		t.Fatalf("pushFrame: %v", err)
	}
	if len(cs.pushed) != 1 {
		t.Fatalf("expected 1 pushed frame after retry, got %d", len(cs.pushed))
	}
	if fake.calls != 2 {
		t.Fatalf("expected 2 calls, got %d", fake.calls)
	}
}

func TestRunner_RetriesExhausted(t *testing.T) {
	r := NewRunner()
	r.AddTransformer("t1", &fakeTransform{mode: "alwaysError"}, 0, 2, 0)
	err := r.pushFrame(context.Background(), makeFrame())
	if !errors.Is(err, ErrStageFailed) {
		t.Fatalf("want ErrStageFailed, got %v", err)
	}

	r = NewRunner()
	fake := &fakeTransform{mode: "transportError"}
	r.AddTransformer("t1", fake, 0, 1, 0)
	if err := r.pushFrame(context.Background(), makeFrame()); err == nil {
		t.Fatal("expected transport error")
	}
	if fake.calls != 2 {
		t.Fatalf("expected 2 calls, got %d", fake.calls)
	}
}

func TestRunner_StageTimeout(t *testing.T) {
	r := NewRunner()
	r.AddTransformer("slow", &fakeTransform{mode: "slow"}, 5*time.Millisecond, 0, 0)
	err := r.pushFrame(context.Background(), makeFrame())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("want deadline exceeded, got %v", err)
	}
}

func TestRunner_MultiStageFanout(t *testing.T) {
	r, cs, _ := newRunner(&fakeTransform{mode: "fanout2"}, &fakeTransform{mode: "ok"})

	if err := r.pushFrame(context.Background(), makeFrame()); err != nil {
		t.Fatalf("pushFrame: %v", err)
	}
	if len(cs.pushed) != 2 {
		t.Fatalf("expected 2 pushed frames after fanout, got %d", len(cs.pushed))
	}
}

func TestRunner_AcksOnlyWhenEverySinkAcked(t *testing.T) {
	r := NewRunner()
	r.AddTransformer("fan", &fakeTransform{mode: "fanout2"}, 0, 0, 0)
	fast := &captureSink{}
	slow := &captureSink{hold: true}
	r.AddSink("fast", fast)
	r.AddSink("slow", slow)
	var acks []record.Ack
	r.SubscribeAck(func(a record.Ack) { acks = append(acks, a) })

	if err := r.pushFrame(context.Background(), makeFrame()); err != nil {
		t.Fatalf("pushFrame: %v", err)
	}
	if len(fast.pushed) != 2 || len(slow.pushed) != 2 {
		t.Fatalf("pushed fast=%d slow=%d", len(fast.pushed), len(slow.pushed))
	}
	if len(acks) != 0 {
		t.Fatalf("acked before the slow sink delivered: %+v", acks)
	}

	slow.flush()
	if len(acks) != 1 || acks[0].Checkpoint.Offset != 42 {
		t.Fatalf("want one ack after every sink delivered, got %+v", acks)
	}
	if len(r.pending) != 0 {
		t.Fatalf("pending not cleared: %v", r.pending)
	}
}

type plainSink struct{ pushed int }

func (p *plainSink) Configure(any) error      { return nil }
func (p *plainSink) Push(*record.Frame) error { p.pushed++; return nil }
func (p *plainSink) Close() error             { return nil }

func TestRunner_AcksAfterPushWithoutAckAwareSinks(t *testing.T) {
	r := NewRunner()
	ps := &plainSink{}
	r.AddSink("plain", ps)
	var acks []record.Ack
	r.SubscribeAck(func(a record.Ack) { acks = append(acks, a) })

	if err := r.pushFrame(context.Background(), makeFrame()); err != nil {
		t.Fatalf("pushFrame: %v", err)
	}
	if ps.pushed != 1 || len(acks) != 1 {
		t.Fatalf("pushed=%d acks=%d", ps.pushed, len(acks))
	}
}

func TestRunner_StartWithoutSource(t *testing.T) {
	if err := NewRunner().Start(context.Background()); err == nil {
		t.Fatal("expected error without source")
	}
}
