package kafka

import (
	"context"
	"fmt"
	"sync"

	"github.com/IBM/sarama"

	"rutkit/internal/logging"
	"rutkit/internal/record"
	"rutkit/source"
)

func init() {
	source.Register("kafka/sarama", func() source.Adapter { return &SaramaDriver{} })
}

type recordID struct {
	topic     string
	partition int32
	offset    int64
}

// SaramaDriver consumes topics through a sarama consumer group.
type SaramaDriver struct {
	cfg   Config
	cl    sarama.Client
	group sarama.ConsumerGroup
	bp    *Controller
	pace  *Pacer

	mu      sync.Mutex
	pending map[recordID]func()

	ackCh chan recordID
}

func (d *SaramaDriver) Configure(raw any) error {
	cfg, ok := raw.(Config)
	if !ok {
		return fmt.Errorf("kafka-source: expected Config, got %T", raw)
	}
	d.cfg = cfg
	d.pending = make(map[recordID]func())
	// In e2e mode only sink acks return tokens, so in-flight frames never
	// exceed capacity and the pacer below never blocks the claim loop.
	var refill int64
	if cfg.CommitMode == CommitAuto {
		refill = cfg.BackPressure.Capacity / 10
	}
	d.bp = NewController(cfg.BackPressure.Capacity, refill, cfg.BackPressure.CheckInt)
	d.pace = NewPacer(cfg.BackPressure.Capacity, cfg.Checkpoint.CommitInt)
	d.ackCh = make(chan recordID, int(cfg.BackPressure.Capacity))

	sc, err := saramaConfig(cfg)
	if err != nil {
		return err
	}
	if d.cl, err = sarama.NewClient(cfg.Brokers, sc); err != nil {
		return fmt.Errorf("kafka-source: client: %w", err)
	}
	if d.group, err = sarama.NewConsumerGroupFromClient(cfg.GroupID, d.cl); err != nil {
		_ = d.cl.Close()
		return fmt.Errorf("kafka-source: group %s: %w", cfg.GroupID, err)
	}
	return nil
}

func saramaConfig(cfg Config) (*sarama.Config, error) {
	ver, err := sarama.ParseKafkaVersion(cfg.Version)
	if err != nil {
		return nil, fmt.Errorf("kafka-source: version: %w", err)
	}
	sc := sarama.NewConfig()
	sc.Version = ver
	sc.Consumer.Return.Errors = true
	sc.Consumer.Offsets.AutoCommit.Enable = false
	sc.Net.TLS.Enable = cfg.TLSEn
	if cfg.SASLUser != "" {
		sc.Net.SASL.Enable = true
		sc.Net.SASL.User, sc.Net.SASL.Password = cfg.SASLUser, cfg.SASLPass
	}
	if cfg.StartFrom == "oldest" {
		sc.Consumer.Offsets.Initial = sarama.OffsetOldest
	} else {
		sc.Consumer.Offsets.Initial = sarama.OffsetNewest
	}
	return sc, nil
}

func (d *SaramaDriver) Run(ctx context.Context, emit source.EmitFunc) error {
	go func() {
		for err := range d.group.Errors() {
			logging.L().Warn("kafka-source: consumer error", "err", err)
		}
	}()
	h := &groupHandler{driver: d, emit: emit}
	for {
		if err := d.group.Consume(ctx, d.cfg.Topics, h); err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
}

func (d *SaramaDriver) Close() error {
	var first error
	if d.group != nil {
		first = d.group.Close()
	}
	if d.cl != nil && !d.cl.Closed() {
		if err := d.cl.Close(); err != nil && first == nil {
			first = err
		}
	}
	if d.bp != nil {
		d.bp.Close()
	}
	return first
}

// OnAck queues an end-to-end ack for the claim loop. When the queue is full
// the oldest queued ack is dropped in favour of the new one.
func (d *SaramaDriver) OnAck(ack record.Ack) {
	cp := ack.Checkpoint
	rec := recordID{cp.Topic, cp.Partition, cp.Offset}
	select {
	case d.ackCh <- rec:
		return
	default:
	}
	select {
	case <-d.ackCh:
	default:
	}
	select {
	case d.ackCh <- rec:
	default:
		logging.L().Warn("kafka-source: ack queue full; dropping ack", "checkpoint", cp.String())
	}
}

// resolve runs the pending commit callback for rec, if any.
func (d *SaramaDriver) resolve(rec recordID) bool {
	d.mu.Lock()
	cb, ok := d.pending[rec]
	if ok {
		delete(d.pending, rec)
	}
	d.mu.Unlock()
	if !ok {
		return false
	}
	cb()
	d.bp.Release(1)
	logging.L().Debug("kafka-source: ack released", "topic", rec.topic, "partition", rec.partition, "offset", rec.offset)
	return true
}

type groupHandler struct {
	driver *SaramaDriver
	emit   source.EmitFunc
}

func (*groupHandler) Setup(sarama.ConsumerGroupSession) error { return nil }

func (h *groupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	h.driver.mu.Lock()
	dropped := len(h.driver.pending)
	h.driver.pending = make(map[recordID]func())
	h.driver.mu.Unlock()
	if dropped > 0 {
		logging.L().Info("kafka-source: rebalance cleared pending acks", "count", dropped)
	}
	return nil
}

func (h *groupHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	d := h.driver
	ctx := sess.Context()
	for {
		// Wait for a token, draining acks since they are what frees tokens.
		for !d.bp.TryAcquire(1) {
			select {
			case rec := <-d.ackCh:
				d.resolve(rec)
			case <-ctx.Done():
				return nil
			}
		}

		select {
		case <-ctx.Done():
			d.bp.Release(1)
			return nil

		case rec := <-d.ackCh:
			d.bp.Release(1)
			d.resolve(rec)

		case msg, ok := <-claim.Messages():
			if !ok {
				d.bp.Release(1)
				return nil
			}
			if err := h.handle(sess, msg); err != nil {
				d.bp.Release(1)
				return err
			}
		}
	}
}

func (h *groupHandler) handle(sess sarama.ConsumerGroupSession, msg *sarama.ConsumerMessage) error {
	d := h.driver
	done, err := d.pace.Track(sess.Context())
	if err != nil {
		return err
	}
	commit := func() {
		sess.MarkMessage(msg, "")
		if done() {
			sess.Commit()
		}
	}

	if err := h.emit(toFrame(msg)); err != nil {
		done()
		return err
	}

	if d.cfg.CommitMode == CommitAuto {
		commit()
		d.bp.Release(1)
		return nil
	}
	rec := recordID{msg.Topic, msg.Partition, msg.Offset}
	d.mu.Lock()
	d.pending[rec] = commit
	d.mu.Unlock()
	return nil
}

func toFrame(msg *sarama.ConsumerMessage) *record.Frame {
	return &record.Frame{
		Key:     msg.Key,
		Value:   msg.Value,
		Headers: toHeaderMap(msg.Headers),
		Ts:      msg.Timestamp,
		Checkpoint: record.Checkpoint{
			Topic:     msg.Topic,
			Partition: msg.Partition,
			Offset:    msg.Offset,
		},
	}
}

func toHeaderMap(src []*sarama.RecordHeader) map[string][]byte {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string][]byte, len(src))
	for _, h := range src {
		out[string(h.Key)] = h.Value
	}
	return out
}
