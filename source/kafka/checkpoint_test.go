package kafka

import (
	"context"
	"testing"
	"time"
)

func TestPacer_CommitDueOnInterval(t *testing.T) {
	now := time.Unix(0, 0)
	p := NewPacer(10, time.Second)
	p.now = func() time.Time { return now }

	now = now.Add(2 * time.Second)
	r1, err := p.Track(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	r2, _ := p.Track(context.Background())
	if p.InFlight() != 2 {
		t.Fatalf("want 2 in flight, got %d", p.InFlight())
	}
	if !r1() {
		t.Fatal("first resolve after interval should be due")
	}
	if r2() {
		t.Fatal("second resolve inside interval should not be due")
	}
	if r1() {
		t.Fatal("resolve must be idempotent")
	}
	if p.InFlight() != 0 {
		t.Fatalf("want 0 in flight, got %d", p.InFlight())
	}
}

func TestPacer_BlocksAtLimit(t *testing.T) {
	p := NewPacer(1, time.Hour)
	r1, _ := p.Track(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := p.Track(ctx); err == nil {
		t.Fatal("expected Track to give up when the limit is reached")
	}

	r1()
	if _, err := p.Track(context.Background()); err != nil {
		t.Fatalf("Track after resolve: %v", err)
	}
}
