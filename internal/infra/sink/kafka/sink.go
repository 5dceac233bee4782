// Package kafka exports gateway events to a Kafka topic as JSON envelopes.
package kafka

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	json "github.com/goccy/go-json"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/sourcegraph/conc"

	"github.com/coachpo/ctpgate/internal/domain/schema"
	"github.com/coachpo/ctpgate/internal/infra/bus/eventbus"
	"github.com/coachpo/ctpgate/internal/infra/config"
	"github.com/coachpo/ctpgate/internal/observability"
)

const maxBatch = 256

// MessageWriter is the subset of *kafka.Writer the sink uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Envelope is the message value written for each event.
type Envelope struct {
	ID      string           `json:"id"`
	Gateway string           `json:"gateway"`
	Type    schema.EventType `json:"type"`
	Symbol  string           `json:"symbol,omitempty"`
	Seq     uint64           `json:"seq"`
	EmitTS  time.Time        `json:"emitTs"`
	Payload any              `json:"payload"`
}

// Options configures a Sink.
type Options struct {
	Bus          eventbus.Bus
	Brokers      []string
	Topic        string
	EventTypes   []schema.EventType
	BatchTimeout time.Duration
	WriteTimeout time.Duration
	Logger       observability.Logger
	// Writer replaces the kafka writer built from Brokers and Topic.
	Writer MessageWriter
}

// OptionsFromConfig maps the kafka config section. Unknown event type names
// are reported as an error.
func OptionsFromConfig(cfg config.KafkaConfig) (Options, error) {
	opts := Options{
		Brokers:      cfg.Brokers,
		Topic:        cfg.Topic,
		BatchTimeout: cfg.BatchTimeout,
	}
	for _, raw := range cfg.EventTypes {
		typ, ok := schema.ParseEventType(raw)
		if !ok {
			return Options{}, fmt.Errorf("kafka: unknown event type %q", raw)
		}
		opts.EventTypes = append(opts.EventTypes, typ)
	}
	return opts, nil
}

// Stats counts exported messages.
type Stats struct {
	Sent   uint64
	Failed uint64
}

// Sink forwards bus events to Kafka. Messages are keyed by symbol, or by
// gateway for events without one, so each instrument stays on one partition.
type Sink struct {
	opts   Options
	writer MessageWriter

	mu      sync.Mutex
	subs    []eventbus.SubscriptionID
	readers conc.WaitGroup
	closed  bool

	sent   atomic.Uint64
	failed atomic.Uint64
}

// New builds a sink. The kafka writer connects lazily on first write.
func New(opts Options) (*Sink, error) {
	if opts.Bus == nil {
		return nil, fmt.Errorf("kafka: event bus required")
	}
	if opts.Logger == nil {
		opts.Logger = observability.Log()
	}
	if len(opts.EventTypes) == 0 {
		opts.EventTypes = schema.EventTypes()
	}
	if opts.BatchTimeout <= 0 {
		opts.BatchTimeout = 50 * time.Millisecond
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}
	writer := opts.Writer
	if writer == nil {
		if len(opts.Brokers) == 0 {
			return nil, fmt.Errorf("kafka: at least one broker required")
		}
		if strings.TrimSpace(opts.Topic) == "" {
			return nil, fmt.Errorf("kafka: topic required")
		}
		writer = &kafkago.Writer{
			Addr:                   kafkago.TCP(opts.Brokers...),
			Topic:                  opts.Topic,
			Balancer:               &kafkago.Hash{},
			BatchTimeout:           opts.BatchTimeout,
			RequiredAcks:           kafkago.RequireOne,
			AllowAutoTopicCreation: true,
		}
	}
	return &Sink{opts: opts, writer: writer}, nil
}

// Start subscribes to the configured event types.
func (s *Sink) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("kafka: sink closed")
	}
	if len(s.subs) > 0 {
		return fmt.Errorf("kafka: already started")
	}
	for _, typ := range s.opts.EventTypes {
		id, ch, err := s.opts.Bus.Subscribe(ctx, typ)
		if err != nil {
			for _, sub := range s.subs {
				s.opts.Bus.Unsubscribe(sub)
			}
			s.subs = nil
			return fmt.Errorf("kafka: subscribe %s: %w", typ, err)
		}
		s.subs = append(s.subs, id)
		s.readers.Go(func() { s.forward(ch) })
	}
	s.opts.Logger.Info("kafka sink started",
		observability.Field{Key: "topic", Value: s.opts.Topic},
		observability.Field{Key: "types", Value: len(s.opts.EventTypes)})
	return nil
}

// forward writes whatever is already buffered as one batch.
func (s *Sink) forward(ch <-chan *schema.Event) {
	for evt := range ch {
		batch := []*schema.Event{evt}
	drain:
		for len(batch) < maxBatch {
			select {
			case next, ok := <-ch:
				if !ok {
					break drain
				}
				batch = append(batch, next)
			default:
				break drain
			}
		}
		s.write(batch)
	}
}

func (s *Sink) write(batch []*schema.Event) {
	msgs := make([]kafkago.Message, 0, len(batch))
	for _, evt := range batch {
		msg, err := Encode(evt)
		if err != nil {
			s.failed.Add(1)
			s.opts.Logger.Error("kafka encode failed",
				observability.Field{Key: "event_id", Value: evt.EventID},
				observability.Field{Key: "error", Value: err})
			continue
		}
		msgs = append(msgs, msg)
	}
	if len(msgs) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.WriteTimeout)
	defer cancel()
	if err := s.writer.WriteMessages(ctx, msgs...); err != nil {
		s.failed.Add(uint64(len(msgs)))
		s.opts.Logger.Error("kafka write failed",
			observability.Field{Key: "messages", Value: len(msgs)},
			observability.Field{Key: "error", Value: err})
		return
	}
	s.sent.Add(uint64(len(msgs)))
}

// Encode builds the kafka message for one event.
func Encode(evt *schema.Event) (kafkago.Message, error) {
	if evt == nil {
		return kafkago.Message{}, fmt.Errorf("kafka: nil event")
	}
	value, err := json.Marshal(Envelope{
		ID:      evt.EventID,
		Gateway: evt.Gateway,
		Type:    evt.Type,
		Symbol:  evt.Symbol,
		Seq:     evt.Seq,
		EmitTS:  evt.EmitTS,
		Payload: evt.Payload,
	})
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("kafka: encode %s: %w", evt.EventID, err)
	}
	key := evt.Symbol
	if key == "" {
		key = evt.Gateway
	}
	return kafkago.Message{
		Key:   []byte(key),
		Value: value,
		Time:  evt.EmitTS,
		Headers: []kafkago.Header{
			{Key: "event-type", Value: []byte(evt.Type)},
		},
	}, nil
}

// Stats reports export counters.
func (s *Sink) Stats() Stats {
	return Stats{Sent: s.sent.Load(), Failed: s.failed.Load()}
}

// Close unsubscribes, flushes pending batches and closes the writer.
func (s *Sink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	subs := s.subs
	s.subs = nil
	s.mu.Unlock()

	for _, id := range subs {
		s.opts.Bus.Unsubscribe(id)
	}
	s.readers.Wait()
	if err := s.writer.Close(); err != nil {
		return fmt.Errorf("kafka: close writer: %w", err)
	}
	return nil
}
