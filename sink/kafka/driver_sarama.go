// Package kafka produces frames to a topic with a sarama async producer.
package kafka

import (
	"fmt"
	"sync"

	"github.com/IBM/sarama"

	"rutkit/internal/logging"
	"rutkit/internal/record"
	"rutkit/sink"
)

type Config struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
	Acks    int16    `yaml:"required_acks"` // 0, 1 or -1
}

type driver struct {
	cfg Config
	p   sarama.AsyncProducer
	ack sink.EmitFn

	wg   sync.WaitGroup
	once sync.Once
}

func (d *driver) Configure(c any) error {
	cfg, ok := c.(Config)
	if !ok {
		return fmt.Errorf("kafka-sink: expected Config, got %T", c)
	}
	if cfg.Topic == "" {
		return fmt.Errorf("kafka-sink: topic is required")
	}
	sc := sarama.NewConfig()
	sc.Producer.RequiredAcks = sarama.RequiredAcks(cfg.Acks)
	sc.Producer.Return.Successes = true
	p, err := sarama.NewAsyncProducer(cfg.Brokers, sc)
	if err != nil {
		return fmt.Errorf("kafka-sink: %w", err)
	}
	d.cfg = cfg
	d.start(p)
	return nil
}

// start wires the producer's result channels; the checkpoint travels as
// message metadata so successes can be acked.
func (d *driver) start(p sarama.AsyncProducer) {
	d.p = p
	d.wg.Add(2)
	go func() {
		defer d.wg.Done()
		for msg := range p.Successes() {
			if cp, ok := msg.Metadata.(record.Checkpoint); ok && d.ack != nil {
				d.ack(cp)
			}
		}
	}()
	go func() {
		defer d.wg.Done()
		for perr := range p.Errors() {
			logging.L().Error("kafka-sink: produce failed", "topic", d.cfg.Topic, "err", perr.Err)
		}
	}()
}

func (d *driver) Push(f *record.Frame) error {
	msg := &sarama.ProducerMessage{
		Topic:    d.cfg.Topic,
		Value:    sarama.ByteEncoder(f.Value),
		Metadata: f.Checkpoint,
	}
	if len(f.Key) > 0 {
		msg.Key = sarama.ByteEncoder(f.Key)
	}
	for k, v := range f.Attributes {
		msg.Headers = append(msg.Headers, sarama.RecordHeader{Key: []byte(k), Value: []byte(v)})
	}
	d.p.Input() <- msg
	return nil
}

func (d *driver) BindAck(fn sink.EmitFn) { d.ack = fn }

// Close drains in-flight messages, acking the ones that succeed.
func (d *driver) Close() error {
	d.once.Do(func() {
		d.p.AsyncClose()
		d.wg.Wait()
	})
	return nil
}

func init() { sink.Register("kafka", func() sink.Adapter { return &driver{} }) }
