package kafka

import (
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"

	"rutkit/internal/record"
)

func TestPush_AcksOnSuccess(t *testing.T) {
	cfg := mocks.NewTestConfig()
	cfg.Producer.Return.Successes = true
	mp := mocks.NewAsyncProducer(t, cfg)
	mp.ExpectInputWithCheckerFunctionAndSucceed(func(val []byte) error {
		if string(val) != "12.345.678-5" {
			t.Errorf("unexpected value %q", val)
		}
		return nil
	})

	acked := make(chan record.Checkpoint, 1)
	d := &driver{cfg: Config{Topic: "ruts"}}
	d.BindAck(func(cp record.Checkpoint) { acked <- cp })
	d.start(mp)

	cp := record.Checkpoint{Topic: "in", Partition: 1, Offset: 9}
	if err := d.Push(&record.Frame{Value: []byte("12.345.678-5"), Checkpoint: cp}); err != nil {
		t.Fatalf("Push: %v", err)
	}

	select {
	case got := <-acked:
		if got != cp {
			t.Fatalf("acked %+v, want %+v", got, cp)
		}
	case <-time.After(time.Second):
		t.Fatal("no ack after successful produce")
	}
	if err := d.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestPush_FailureIsNotAcked(t *testing.T) {
	cfg := mocks.NewTestConfig()
	cfg.Producer.Return.Successes = true
	mp := mocks.NewAsyncProducer(t, cfg)
	mp.ExpectInputAndFail(sarama.ErrOutOfBrokers)

	acked := 0
	d := &driver{cfg: Config{Topic: "ruts"}}
	d.BindAck(func(record.Checkpoint) { acked++ })
	d.start(mp)

	_ = d.Push(&record.Frame{Value: []byte("x")})
	if err := d.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if acked != 0 {
		t.Fatalf("failed produce was acked %d times", acked)
	}
}

func TestConfigure_RequiresTopic(t *testing.T) {
	if err := (&driver{}).Configure(Config{Brokers: []string{"localhost:9092"}}); err == nil {
		t.Fatal("expected error without topic")
	}
}
