// Package journal records order transitions, fills and account snapshots from
// the event bus into the execution journal store.
package journal

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/coachpo/ctpgate/internal/domain/orderstore"
	"github.com/coachpo/ctpgate/internal/domain/schema"
	"github.com/coachpo/ctpgate/internal/infra/bus/eventbus"
	"github.com/coachpo/ctpgate/internal/observability"
	"github.com/coachpo/ctpgate/lib/async"
)

var journaledTypes = []schema.EventType{
	schema.EventTypeOrder,
	schema.EventTypeTrade,
	schema.EventTypeAccount,
}

// Options configures a Journal.
type Options struct {
	Bus   eventbus.Bus
	Store orderstore.Tx
	// Lanes is the number of concurrent writers. Writes for the same order stay
	// in publish order.
	Lanes        int
	Queue        int
	WriteTimeout time.Duration
	Logger       observability.Logger
	Clock        func() time.Time
}

func (o *Options) applyDefaults() {
	if o.Lanes <= 0 {
		o.Lanes = 4
	}
	if o.Queue <= 0 {
		o.Queue = 256
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 5 * time.Second
	}
	if o.Logger == nil {
		o.Logger = observability.Log()
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
}

// Stats counts journal writes since start.
type Stats struct {
	Written uint64
	Failed  uint64
}

// Journal subscribes to execution events and writes them through a keyed pool.
type Journal struct {
	opts  Options
	lanes *async.KeyedPool

	mu      sync.Mutex
	started bool
	subs    []eventbus.SubscriptionID
	readers conc.WaitGroup

	written atomic.Uint64
	failed  atomic.Uint64
}

// New validates the options and builds an idle journal.
func New(opts Options) (*Journal, error) {
	if opts.Bus == nil {
		return nil, fmt.Errorf("journal: event bus required")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("journal: store required")
	}
	opts.applyDefaults()
	j := &Journal{opts: opts}
	lanes, err := async.NewKeyedPool(opts.Lanes, opts.Queue, async.WithErrorHandler(j.onWriteError))
	if err != nil {
		return nil, fmt.Errorf("journal: %w", err)
	}
	j.lanes = lanes
	return j, nil
}

// Start subscribes to order, trade and account events. Writes continue until
// Close or until ctx is cancelled.
func (j *Journal) Start(ctx context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.started {
		return fmt.Errorf("journal: already started")
	}
	for _, typ := range journaledTypes {
		id, ch, err := j.opts.Bus.Subscribe(ctx, typ)
		if err != nil {
			for _, sub := range j.subs {
				j.opts.Bus.Unsubscribe(sub)
			}
			j.subs = nil
			return fmt.Errorf("journal: subscribe %s: %w", typ, err)
		}
		j.subs = append(j.subs, id)
		j.readers.Go(func() { j.consume(ch) })
	}
	j.started = true
	j.opts.Logger.Info("journal started", observability.Field{Key: "lanes", Value: j.opts.Lanes})
	return nil
}

func (j *Journal) consume(ch <-chan *schema.Event) {
	for evt := range ch {
		key, task, ok := j.task(evt)
		if !ok {
			continue
		}
		if err := j.lanes.Enqueue(context.Background(), key, task); err != nil {
			j.onWriteError(fmt.Errorf("journal: enqueue %s %s: %w", evt.Type, evt.EventID, err))
		}
	}
}

func (j *Journal) task(evt *schema.Event) (string, async.Task, bool) {
	if evt == nil {
		return "", nil, false
	}
	write := func(fn func(context.Context) error) async.Task {
		return func(ctx context.Context) error {
			ctx, cancel := context.WithTimeout(ctx, j.opts.WriteTimeout)
			defer cancel()
			if err := fn(ctx); err != nil {
				return fmt.Errorf("journal: write %s %s: %w", evt.Type, evt.EventID, err)
			}
			j.written.Add(1)
			return nil
		}
	}
	switch payload := evt.Payload.(type) {
	case schema.Order:
		row := orderstore.OrderFromEvent(payload)
		key := orderKey(row)
		return key, write(func(ctx context.Context) error { return j.opts.Store.UpsertOrder(ctx, row) }), true
	case schema.Trade:
		row := orderstore.TradeFromEvent(payload)
		return row.Gateway + "|" + row.OrderID, write(func(ctx context.Context) error { return j.opts.Store.RecordTrade(ctx, row) }), true
	case schema.Account:
		at := evt.EmitTS
		if at.IsZero() {
			at = j.opts.Clock()
		}
		row := orderstore.AccountFromEvent(payload, at)
		return row.Gateway + "|" + row.AccountID, write(func(ctx context.Context) error { return j.opts.Store.AppendAccount(ctx, row) }), true
	default:
		j.opts.Logger.Debug("journal: unexpected payload",
			observability.Field{Key: "type", Value: string(evt.Type)},
			observability.Field{Key: "event_id", Value: evt.EventID})
		return "", nil, false
	}
}

func orderKey(o orderstore.Order) string {
	return o.OrderID + "|" + strconv.Itoa(o.FrontID) + "|" + strconv.Itoa(o.SessionID)
}

func (j *Journal) onWriteError(err error) {
	j.failed.Add(1)
	j.opts.Logger.Error("journal write failed", observability.Field{Key: "error", Value: err})
}

// Stats reports write counters.
func (j *Journal) Stats() Stats {
	return Stats{Written: j.written.Load(), Failed: j.failed.Load()}
}

// Close unsubscribes, then waits for queued writes until ctx expires.
func (j *Journal) Close(ctx context.Context) error {
	j.mu.Lock()
	subs := j.subs
	j.subs = nil
	j.mu.Unlock()

	for _, id := range subs {
		j.opts.Bus.Unsubscribe(id)
	}
	j.readers.Wait()
	if err := j.lanes.Shutdown(ctx); err != nil {
		return fmt.Errorf("journal: drain: %w", err)
	}
	return nil
}
