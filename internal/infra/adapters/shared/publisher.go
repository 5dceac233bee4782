// Package shared provides common utilities for gateway adapter implementations.
package shared

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/coachpo/ctpgate/internal/domain/schema"
	"github.com/coachpo/ctpgate/internal/observability"
)

// EventSink accepts normalized events. The event bus satisfies it.
type EventSink interface {
	Publish(ctx context.Context, evt *schema.Event) error
}

// EventRecorder observes published events, typically for metrics.
type EventRecorder interface {
	RecordEvent(ctx context.Context, gateway string, typ schema.EventType)
}

// Publisher wraps payloads in events tagged with the gateway name and a
// per-(type, symbol) sequence number.
type Publisher struct {
	gateway  string
	sink     EventSink
	clock    func() time.Time
	recorder EventRecorder

	seqMu sync.Mutex
	seq   map[string]uint64
}

// NewPublisher creates a publisher for one gateway.
func NewPublisher(gateway string, sink EventSink, clock func() time.Time, recorder EventRecorder) *Publisher {
	if clock == nil {
		clock = time.Now
	}
	return &Publisher{
		gateway:  gateway,
		sink:     sink,
		clock:    clock,
		recorder: recorder,
		seq:      make(map[string]uint64),
	}
}

// Gateway returns the gateway name stamped on every event.
func (p *Publisher) Gateway() string { return p.gateway }

func (p *Publisher) PublishTick(ctx context.Context, payload schema.Tick) {
	p.publish(ctx, schema.EventTypeTick, payload.Symbol, payload)
}

func (p *Publisher) PublishOrder(ctx context.Context, payload schema.Order) {
	p.publish(ctx, schema.EventTypeOrder, payload.Symbol, payload)
}

func (p *Publisher) PublishTrade(ctx context.Context, payload schema.Trade) {
	p.publish(ctx, schema.EventTypeTrade, payload.Symbol, payload)
}

func (p *Publisher) PublishPosition(ctx context.Context, payload schema.Position) {
	p.publish(ctx, schema.EventTypePosition, payload.Symbol, payload)
}

func (p *Publisher) PublishAccount(ctx context.Context, payload schema.Account) {
	p.publish(ctx, schema.EventTypeAccount, "", payload)
}

func (p *Publisher) PublishContract(ctx context.Context, payload schema.Contract) {
	p.publish(ctx, schema.EventTypeContract, payload.Symbol, payload)
}

func (p *Publisher) PublishLog(ctx context.Context, payload schema.LogEntry) {
	p.publish(ctx, schema.EventTypeLog, "", payload)
}

func (p *Publisher) PublishError(ctx context.Context, payload schema.ErrorEntry) {
	p.publish(ctx, schema.EventTypeError, "", payload)
}

func (p *Publisher) publish(ctx context.Context, typ schema.EventType, symbol string, payload any) {
	if p.sink == nil {
		return
	}
	seq := p.nextSeq(typ, symbol)
	evt := &schema.Event{
		EventID: schema.BuildEventKey(p.gateway, typ, symbol, seq),
		Gateway: p.gateway,
		Symbol:  symbol,
		Type:    typ,
		Seq:     seq,
		EmitTS:  p.clock().UTC(),
		Payload: payload,
	}
	if err := p.sink.Publish(ctx, evt); err != nil {
		observability.Log().Error("publish event failed",
			observability.Field{Key: "gateway", Value: p.gateway},
			observability.Field{Key: "type", Value: string(typ)},
			observability.Field{Key: "error", Value: err.Error()})
		return
	}
	if p.recorder != nil {
		p.recorder.RecordEvent(ctx, p.gateway, typ)
	}
}

func (p *Publisher) nextSeq(typ schema.EventType, symbol string) uint64 {
	key := fmt.Sprintf("%s|%s", typ, symbol)
	p.seqMu.Lock()
	defer p.seqMu.Unlock()
	p.seq[key]++
	return p.seq[key]
}
