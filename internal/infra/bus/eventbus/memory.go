package eventbus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	concpool "github.com/sourcegraph/conc/pool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/coachpo/ctpgate/errs"
	"github.com/coachpo/ctpgate/internal/domain/schema"
	"github.com/coachpo/ctpgate/internal/infra/telemetry"
	"github.com/coachpo/ctpgate/internal/observability"
)

// MemoryBus is an in-memory implementation of the event bus. Slow subscribers
// lose their oldest buffered event rather than blocking the publisher.
type MemoryBus struct {
	cfg MemoryConfig

	ctx    context.Context
	cancel context.CancelFunc

	mu           sync.RWMutex
	subscribers  map[schema.EventType]map[SubscriptionID]*subscriber
	shutdownOnce sync.Once

	eventsPublishedCounter metric.Int64Counter
	subscriberGauge        metric.Int64UpDownCounter
	fanoutHistogram        metric.Int64Histogram
	publishDuration        metric.Float64Histogram
	deliveryDroppedCounter metric.Int64Counter
}

type subscriber struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	ch     chan *schema.Event
	closed bool
}

// NewMemoryBus constructs a memory-backed event bus.
func NewMemoryBus(cfg MemoryConfig) *MemoryBus {
	cfg = cfg.normalize()
	ctx, cancel := context.WithCancel(context.Background())
	bus := &MemoryBus{
		cfg:         cfg,
		ctx:         ctx,
		cancel:      cancel,
		subscribers: make(map[schema.EventType]map[SubscriptionID]*subscriber),
	}

	meter := otel.Meter("eventbus")
	bus.eventsPublishedCounter, _ = meter.Int64Counter("eventbus.events.published",
		metric.WithDescription("Number of events published to the bus"),
		metric.WithUnit("{event}"))
	bus.subscriberGauge, _ = meter.Int64UpDownCounter("eventbus.subscribers",
		metric.WithDescription("Number of active subscribers"),
		metric.WithUnit("{subscriber}"))
	bus.fanoutHistogram, _ = meter.Int64Histogram("eventbus.fanout.size",
		metric.WithDescription("Number of subscribers per fanout"),
		metric.WithUnit("{subscriber}"))
	bus.publishDuration, _ = meter.Float64Histogram("eventbus.publish.duration",
		metric.WithDescription("Latency of eventbus publish operations"),
		metric.WithUnit("ms"))
	bus.deliveryDroppedCounter, _ = meter.Int64Counter("eventbus.delivery.dropped",
		metric.WithDescription("Events discarded because a subscriber buffer was full"),
		metric.WithUnit("{event}"))

	return bus
}

// Publish fans the event out to every subscriber of its type. Each subscriber
// receives its own shallow copy.
func (b *MemoryBus) Publish(ctx context.Context, evt *schema.Event) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if evt == nil {
		return nil
	}
	if evt.Type == "" {
		return errs.New("eventbus/publish", errs.CodeInvalid, errs.WithMessage("event type required"))
	}
	if b.ctx.Err() != nil {
		return errs.New("eventbus/publish", errs.CodeUnavailable, errs.WithMessage("bus closed"))
	}

	start := time.Now()
	attrs := telemetry.GatewayAttributes(b.cfg.Environment, evt.Gateway)
	attrs = append(attrs, telemetry.AttrEventType.String(string(evt.Type)))
	defer func() {
		if b.publishDuration != nil {
			b.publishDuration.Record(ctx, float64(time.Since(start).Microseconds())/1000, metric.WithAttributes(attrs...))
		}
	}()

	b.mu.RLock()
	subMap := b.subscribers[evt.Type]
	subs := make([]*subscriber, 0, len(subMap))
	for _, sub := range subMap {
		subs = append(subs, sub)
	}
	b.mu.RUnlock()

	if b.fanoutHistogram != nil {
		b.fanoutHistogram.Record(ctx, int64(len(subs)), metric.WithAttributes(attrs...))
	}
	if len(subs) == 0 {
		return nil
	}

	if err := b.dispatch(ctx, subs, evt); err != nil {
		return err
	}
	if b.eventsPublishedCounter != nil {
		b.eventsPublishedCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
	return nil
}

// Subscribe registers for events of the given type. The channel closes when the
// subscription ends through Unsubscribe, ctx cancellation or Close.
func (b *MemoryBus) Subscribe(ctx context.Context, typ schema.EventType) (SubscriptionID, <-chan *schema.Event, error) {
	if typ == "" {
		return "", nil, errs.New("eventbus/subscribe", errs.CodeInvalid, errs.WithMessage("event type required"))
	}
	if b.ctx.Err() != nil {
		return "", nil, errs.New("eventbus/subscribe", errs.CodeUnavailable, errs.WithMessage("bus closed"))
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)

	sub := &subscriber{
		ctx:    ctx,
		cancel: cancel,
		ch:     make(chan *schema.Event, b.cfg.BufferSize),
	}
	id := SubscriptionID(uuid.NewString())

	b.mu.Lock()
	if _, ok := b.subscribers[typ]; !ok {
		b.subscribers[typ] = make(map[SubscriptionID]*subscriber)
	}
	b.subscribers[typ][id] = sub
	b.mu.Unlock()

	if b.subscriberGauge != nil {
		b.subscriberGauge.Add(ctx, 1, metric.WithAttributes(
			telemetry.AttrEnvironment.String(b.cfg.Environment),
			telemetry.AttrEventType.String(string(typ))))
	}

	go b.observe(typ, id, sub)
	return id, sub.ch, nil
}

// Unsubscribe removes the subscription and closes its channel.
func (b *MemoryBus) Unsubscribe(id SubscriptionID) {
	if id == "" {
		return
	}
	b.mu.RLock()
	var target *subscriber
	for _, subs := range b.subscribers {
		if sub, ok := subs[id]; ok {
			target = sub
			break
		}
	}
	b.mu.RUnlock()
	if target != nil {
		target.cancel()
	}
}

// Close shuts down the bus and all subscriptions.
func (b *MemoryBus) Close() {
	b.shutdownOnce.Do(func() {
		b.cancel()
		b.mu.Lock()
		for typ, subs := range b.subscribers {
			for id, sub := range subs {
				sub.close()
				delete(subs, id)
			}
			delete(b.subscribers, typ)
		}
		b.mu.Unlock()
	})
}

func (b *MemoryBus) observe(typ schema.EventType, id SubscriptionID, sub *subscriber) {
	select {
	case <-sub.ctx.Done():
	case <-b.ctx.Done():
	}
	b.mu.Lock()
	removed := false
	if subs := b.subscribers[typ]; subs != nil {
		if stored, ok := subs[id]; ok && stored == sub {
			delete(subs, id)
			removed = true
			if len(subs) == 0 {
				delete(b.subscribers, typ)
			}
		}
	}
	b.mu.Unlock()
	sub.close()

	if removed && b.subscriberGauge != nil {
		b.subscriberGauge.Add(context.Background(), -1, metric.WithAttributes(
			telemetry.AttrEnvironment.String(b.cfg.Environment),
			telemetry.AttrEventType.String(string(typ))))
	}
}

func (b *MemoryBus) dispatch(ctx context.Context, subs []*subscriber, evt *schema.Event) error {
	p := concpool.New().WithErrors().WithMaxGoroutines(b.cfg.FanoutWorkers)
	for _, sub := range subs {
		p.Go(func() error {
			return b.deliver(ctx, sub, evt.Clone())
		})
	}
	if err := p.Wait(); err != nil {
		return fmt.Errorf("eventbus/dispatch: %w", err)
	}
	return nil
}

// deliver enqueues without blocking. A full buffer drops its oldest event first.
func (b *MemoryBus) deliver(ctx context.Context, sub *subscriber, evt *schema.Event) error {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	if sub.closed {
		return nil
	}
	select {
	case sub.ch <- evt:
		return nil
	default:
	}

	select {
	case <-sub.ch:
	default:
	}
	observability.Log().Debug("eventbus: subscriber buffer full; dropped oldest event",
		observability.Field{Key: "type", Value: string(evt.Type)},
		observability.Field{Key: "gateway", Value: evt.Gateway},
		observability.Field{Key: "symbol", Value: evt.Symbol})
	if b.deliveryDroppedCounter != nil {
		attrs := telemetry.GatewayAttributes(b.cfg.Environment, evt.Gateway)
		b.deliveryDroppedCounter.Add(ctx, 1, metric.WithAttributes(append(attrs, telemetry.AttrEventType.String(string(evt.Type)))...))
	}

	select {
	case sub.ch <- evt:
		return nil
	default:
		return errs.New("eventbus/publish", errs.CodeUnavailable, errs.WithMessage("subscriber buffer full"))
	}
}

func (s *subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.cancel()
	close(s.ch)
}
