package kafka

import (
	"context"
	"sync"
	"time"
)

// Pacer bounds the frames tracked between consume and commit and decides
// when the consumer group should flush its marked offsets.
type Pacer struct {
	limit int64
	every time.Duration
	now   func() time.Time

	mu       sync.Mutex
	cond     *sync.Cond
	inflight int64
	last     time.Time
}

func NewPacer(limit int64, every time.Duration) *Pacer {
	p := &Pacer{limit: limit, every: every, now: time.Now}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Track reserves a slot, waiting while the limit is reached. The returned
// resolve func frees the slot and reports whether a commit is due; calling it
// more than once has no further effect.
func (p *Pacer) Track(ctx context.Context) (resolve func() (commit bool), err error) {
	stop := context.AfterFunc(ctx, func() {
		p.mu.Lock()
		p.cond.Broadcast()
		p.mu.Unlock()
	})
	defer stop()

	p.mu.Lock()
	for p.limit > 0 && p.inflight >= p.limit {
		if err := ctx.Err(); err != nil {
			p.mu.Unlock()
			return nil, err
		}
		p.cond.Wait()
	}
	if err := ctx.Err(); err != nil {
		p.mu.Unlock()
		return nil, err
	}
	p.inflight++
	p.mu.Unlock()

	var once sync.Once
	return func() bool {
		due := false
		once.Do(func() {
			p.mu.Lock()
			p.inflight--
			if now := p.now(); now.Sub(p.last) >= p.every {
				p.last = now
				due = true
			}
			p.mu.Unlock()
			p.cond.Broadcast()
		})
		return due
	}, nil
}

// InFlight reports the number of unresolved frames.
func (p *Pacer) InFlight() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inflight
}
