package orderevents

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const (
	producerName    = "banca-api"
	envelopeVersion = 1
	defaultInbox    = 256
)

var ErrKafkaBackpressure = errors.New("kafka_backpressure")

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher hands events to a background writer so request paths never
// wait on the broker.
type KafkaPublisher struct {
	w       messageWriter
	log     *zap.Logger
	inbox   chan kafka.Message
	closeCh chan struct{}
	once    sync.Once
}

func NewKafkaPublisher(brokers []string, topic string, log *zap.Logger) *KafkaPublisher {
	return newKafkaPublisher(&kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 50 * time.Millisecond,
	}, log, defaultInbox)
}

func newKafkaPublisher(w messageWriter, log *zap.Logger, buf int) *KafkaPublisher {
	return &KafkaPublisher{
		w:       w,
		log:     log.Named("orderevents.kafka"),
		inbox:   make(chan kafka.Message, buf),
		closeCh: make(chan struct{}),
	}
}

func (p *KafkaPublisher) Start() {
	go func() {
		defer close(p.closeCh)
		for m := range p.inbox {
			if err := p.w.WriteMessages(context.Background(), m); err != nil {
				p.log.Warn("kafka write failed", zap.ByteString("key", m.Key), zap.Error(err))
			}
		}
		if err := p.w.Close(); err != nil {
			p.log.Warn("kafka writer close failed", zap.Error(err))
		}
	}()
}

// Broadcast enqueues the event keyed by order id so one order's events stay ordered.
func (p *KafkaPublisher) Broadcast(_ context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	envelope, err := json.Marshal(Envelope{
		EventID:       uuid.NewString(),
		EventType:     event.Event,
		EventVersion:  envelopeVersion,
		OccurredAt:    time.Now().UTC(),
		Producer:      producerName,
		CorrelationID: event.ID,
		Payload:       payload,
	})
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Key:   []byte(event.ID),
		Value: envelope,
		Time:  time.Now(),
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Event)},
		},
	}
	select {
	case p.inbox <- msg:
		return nil
	default:
		return ErrKafkaBackpressure
	}
}

// Close flushes queued messages and waits for the writer to exit.
func (p *KafkaPublisher) Close(ctx context.Context) error {
	p.once.Do(func() { close(p.inbox) })
	select {
	case <-p.closeCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
