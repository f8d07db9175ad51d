package notify

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/segmentio/kafka-go"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/xenking/ruxstar-pod/internal/domain/order"
)

// Default topic names.
const (
	DefaultCreatedTopic = "pod.order-created"
	DefaultReadyTopic   = "pod.order-ready"
)

// MessageWriter is the subset of *kafka.Writer used for publishing.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// MessageReader is the subset of *kafka.Reader used for consuming.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewWriter returns a writer for topic that waits for the leader ack only.
func NewWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.LeastBytes{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
}

// NewReader returns a consumer group reader for topic.
func NewReader(brokers []string, topic, group string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  group,
		MinBytes: 1,
		MaxBytes: 1 << 20,
	})
}

var _ order.Notifier = (*Kafka)(nil)

// Kafka publishes lifecycle events keyed by order ID, so every event of an
// order lands on the same partition.
type Kafka struct {
	created MessageWriter
	ready   MessageWriter
	now     func() time.Time
}

// NewKafka creates a publisher over one writer per topic.
func NewKafka(created, ready MessageWriter) *Kafka {
	return &Kafka{created: created, ready: ready, now: time.Now}
}

func (k *Kafka) OrderCreated(ctx context.Context, o *order.Order) error {
	return k.publish(ctx, k.created, NewEvent(KindCreated, o))
}

func (k *Kafka) OrderReady(ctx context.Context, o *order.Order) error {
	return k.publish(ctx, k.ready, NewEvent(KindReady, o))
}

func (k *Kafka) publish(ctx context.Context, w MessageWriter, e Event) error {
	var enc jx.Encoder
	e.Encode(&enc)

	if err := w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(e.OrderID),
		Value: enc.Bytes(),
		Time:  k.now(),
	}); err != nil {
		return errors.Wrapf(err, "publish %s", e.Kind)
	}
	return nil
}

// Close flushes and closes both writers.
func (k *Kafka) Close() error {
	return multierr.Combine(k.created.Close(), k.ready.Close())
}

// Consume reads events from r and hands each to deliver, committing the
// offset afterwards. Malformed messages are logged and committed so they do
// not block the partition. It returns when ctx is done.
func Consume(ctx context.Context, r MessageReader, deliver func(context.Context, Event) error) error {
	lg := zctx.From(ctx)
	for {
		msg, err := r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "fetch message")
		}

		var e Event
		if err := e.Decode(jx.DecodeBytes(msg.Value)); err != nil {
			lg.Warn("Skipping malformed event",
				zap.String("topic", msg.Topic),
				zap.Int64("offset", msg.Offset),
				zap.Error(err),
			)
		} else if err := deliver(ctx, e); err != nil {
			return errors.Wrapf(err, "deliver %s for order %s", e.Kind, e.OrderID)
		}

		if err := r.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "commit message")
		}
	}
}
