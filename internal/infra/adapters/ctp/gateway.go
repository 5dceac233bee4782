// Package ctp adapts the callback-driven CTP front API to normalized gateway events.
//
// A Gateway owns one market data session and one trading session. Each session
// drains its native callbacks on a dedicated goroutine, so the session state
// machine observes callbacks in delivery order while request methods stay safe
// to call from any goroutine.
package ctp

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/coachpo/ctpgate/errs"
	"github.com/coachpo/ctpgate/internal/domain/schema"
	"github.com/coachpo/ctpgate/internal/infra/adapters/ctp/native"
	"github.com/coachpo/ctpgate/internal/infra/adapters/shared"
	"github.com/coachpo/ctpgate/internal/infra/config"
	"github.com/coachpo/ctpgate/internal/infra/telemetry"
	"github.com/coachpo/ctpgate/internal/observability"
)

const defaultInboxSize = 1024

// Options configures a Gateway.
type Options struct {
	Name        string
	ConnectFile string
	Factory     native.Factory
	Sink        shared.EventSink
	Metrics     *telemetry.GatewayMetrics
	Logger      observability.Logger

	QueryTrigger  int
	QueryInterval time.Duration
	TextEncoding  string
	Location      *time.Location
	Clock         func() time.Time
	InboxSize     int
	FlowPath      string
}

// Status is a point-in-time view of a gateway.
type Status struct {
	Name          string       `json:"name"`
	MdState       SessionState `json:"mdState"`
	TdState       SessionState `json:"tdState"`
	QueryEnabled  bool         `json:"queryEnabled"`
	Subscriptions []string     `json:"subscriptions"`
}

// ContractInfo is the cached exchange and multiplier of an instrument.
type ContractInfo struct {
	Symbol   string          `json:"symbol"`
	Exchange schema.Exchange `json:"exchange"`
	Size     int64           `json:"size"`
}

// Gateway is the request surface of one CTP account.
type Gateway struct {
	name        string
	connectFile string
	out         *outlet
	md          *mdSession
	td          *tdSession

	scheduler *QueryScheduler
	interval  time.Duration

	ctx       context.Context
	cancel    context.CancelFunc
	loopOnce  sync.Once
	closeOnce sync.Once
	loops     conc.WaitGroup
}

// New builds a gateway. Nothing connects until Connect is called.
func New(opts Options) (*Gateway, error) {
	name := strings.TrimSpace(opts.Name)
	if name == "" {
		return nil, errs.New("ctp", errs.CodeConfig, errs.WithMessage("gateway name required"))
	}
	if opts.Factory == nil {
		return nil, errs.New(name, errs.CodeConfig, errs.WithMessage("native factory required"))
	}
	if opts.Sink == nil {
		return nil, errs.New(name, errs.CodeConfig, errs.WithMessage("event sink required"))
	}
	logger := opts.Logger
	if logger == nil {
		logger = observability.Log()
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	inbox := opts.InboxSize
	if inbox <= 0 {
		inbox = defaultInboxSize
	}

	out := &outlet{
		ctx:     context.Background(),
		name:    name,
		norm:    newNormalizer(name, clock, opts.Location, NewTextDecoder(opts.TextEncoding)),
		pub:     shared.NewPublisher(name, opts.Sink, clock, opts.Metrics),
		logger:  logger,
		metrics: opts.Metrics,
	}

	ctx, cancel := context.WithCancel(context.Background())
	g := &Gateway{
		name:        name,
		connectFile: opts.ConnectFile,
		out:         out,
		md:          newMdSession(out, opts.Factory, inbox, opts.FlowPath),
		td:          newTdSession(out, opts.Factory, inbox, opts.FlowPath),
		interval:    opts.QueryInterval,
		ctx:         ctx,
		cancel:      cancel,
	}
	// Polls while the trading session is down are skipped, not reported; the
	// rotation still advances.
	g.scheduler = NewQueryScheduler(opts.QueryTrigger,
		func() { g.pollWhenReady(g.td.QryAccount) },
		func() { g.pollWhenReady(g.td.QryPosition) },
	)
	return g, nil
}

func (g *Gateway) pollWhenReady(query func() error) {
	if g.td.State() != StateReady {
		return
	}
	_ = query()
}

// Name returns the gateway name stamped on every event.
func (g *Gateway) Name() string { return g.name }

// Connect loads the connection settings and connects both sessions. Settings
// problems are reported as Log events; nothing is returned.
func (g *Gateway) Connect() {
	if g.ctx.Err() != nil {
		return
	}
	settings, err := config.LoadConnectSettings(g.name, g.connectFile)
	if err == nil {
		err = settings.Validate(g.name)
	}
	if err != nil {
		g.out.log("connect settings unusable: "+err.Error(), observability.Field{Key: "file", Value: g.connectFile})
		return
	}

	g.md.Connect(settings)
	g.td.Connect(settings)

	g.loopOnce.Do(func() {
		g.loops.Go(func() { g.scheduler.Run(g.ctx, g.interval) })
	})
}

// Subscribe requests market data for one symbol. Requests made before the market
// data session is Ready are sent on login.
func (g *Gateway) Subscribe(req schema.SubscribeRequest) error {
	return g.md.Subscribe(req)
}

// SendOrder submits a new order and returns its gateway-qualified id.
func (g *Gateway) SendOrder(req schema.OrderRequest) (string, error) {
	return g.td.SendOrder(req)
}

// CancelOrder submits a cancel for an order placed through the trading front.
func (g *Gateway) CancelOrder(req schema.CancelRequest) error {
	return g.td.CancelOrder(req)
}

// QryAccount requests one account snapshot.
func (g *Gateway) QryAccount() error {
	return g.td.QryAccount()
}

// QryPosition requests one position snapshot.
func (g *Gateway) QryPosition() error {
	return g.td.QryPosition()
}

// Logout ends the logins of both sessions while keeping the fronts connected.
func (g *Gateway) Logout() error {
	return errors.Join(g.md.Logout(), g.td.Logout())
}

// SetQueryEnabled turns periodic account and position polling on or off.
func (g *Gateway) SetQueryEnabled(enabled bool) {
	g.scheduler.SetEnabled(enabled)
}

// State returns the current session states and subscription set.
func (g *Gateway) State() Status {
	return Status{
		Name:          g.name,
		MdState:       g.md.State(),
		TdState:       g.td.State(),
		QueryEnabled:  g.scheduler.Enabled(),
		Subscriptions: g.md.subs.Symbols(),
	}
}

// Order returns the latest snapshot of an open order by its native reference.
// Filled, cancelled and rejected orders are not kept.
func (g *Gateway) Order(orderRef string) (schema.Order, bool) {
	return g.td.Order(strings.TrimSpace(orderRef))
}

// Contract returns the cached instrument data loaded after the last trading login.
func (g *Gateway) Contract(symbol string) (ContractInfo, bool) {
	info, ok := g.td.Contract(symbol)
	if !ok {
		return ContractInfo{}, false
	}
	return ContractInfo{
		Symbol:   symbol,
		Exchange: exchangeTable.toDomain(info.exchange),
		Size:     info.size,
	}, true
}

// Close stops polling and releases both native handles. It is safe to call more than once.
func (g *Gateway) Close() {
	g.closeOnce.Do(func() {
		g.cancel()
		g.loops.Wait()
		g.md.Close()
		g.td.Close()
	})
}
