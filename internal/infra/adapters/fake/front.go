package fake

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/sourcegraph/conc"

	"github.com/coachpo/ctpgate/internal/infra/adapters/ctp/native"
)

const (
	kindMarketData = "md"
	kindTrading    = "td"
)

// mailbox is an unbounded callback queue. put never blocks, so the venue can
// queue callbacks while holding its lock.
type mailbox struct {
	mu    sync.Mutex
	items []native.Callback
	ready chan struct{}
}

func (m *mailbox) put(cbs ...native.Callback) {
	if len(cbs) == 0 {
		return
	}
	m.mu.Lock()
	m.items = append(m.items, cbs...)
	m.mu.Unlock()
	select {
	case m.ready <- struct{}{}:
	default:
	}
}

func (m *mailbox) take() []native.Callback {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := m.items
	m.items = nil
	return items
}

// front is the connection state shared by the market data and trading handles.
// Callbacks are delivered on the handle's own goroutine, in request order.
type front struct {
	venue *venue
	kind  string
	box   mailbox

	ctx    context.Context
	cancel context.CancelFunc
	wg     conc.WaitGroup

	mu        sync.Mutex
	spi       native.Spi
	started   bool
	connected bool
	loggedIn  bool
	released  bool
	userID    string
	brokerID  string
	sessionID int
	subs      map[string]struct{}
}

func newFront(v *venue, kind string) *front {
	ctx, cancel := context.WithCancel(context.Background())
	return &front{
		venue:  v,
		kind:   kind,
		box:    mailbox{ready: make(chan struct{}, 1)},
		ctx:    ctx,
		cancel: cancel,
		subs:   make(map[string]struct{}),
	}
}

func (f *front) init(opts native.InitOptions, spi native.Spi) error {
	if spi == nil {
		return errors.New("fake: callback sink required")
	}
	if strings.TrimSpace(opts.FrontAddress) == "" {
		return errors.New("fake: front address required")
	}
	f.mu.Lock()
	if f.started || f.released {
		f.mu.Unlock()
		return errors.New("fake: handle already initialised")
	}
	f.started = true
	f.connected = true
	f.spi = spi
	f.mu.Unlock()

	f.wg.Go(f.deliver)
	f.venue.attach(f)
	f.emit(native.FrontConnected{})
	return nil
}

func (f *front) deliver() {
	for {
		select {
		case <-f.ctx.Done():
			return
		case <-f.box.ready:
			for _, cb := range f.box.take() {
				if f.ctx.Err() != nil {
					return
				}
				f.spi(cb)
			}
		}
	}
}

func (f *front) emit(cbs ...native.Callback) {
	f.box.put(cbs...)
}

// ensureConnected mirrors the vendor return code for requests on a dead link.
func (f *front) ensureConnected(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected || f.released {
		return native.ResultError(op, native.ResultNetwork)
	}
	return nil
}

func (f *front) isLoggedIn() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loggedIn && f.connected
}

func (f *front) session() (brokerID, userID string, sessionID int, ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.brokerID, f.userID, f.sessionID, f.loggedIn && f.connected
}

func (f *front) login(req native.ReqUserLoginField, requestID int) error {
	if err := f.ensureConnected("ReqUserLogin"); err != nil {
		return err
	}
	if !f.venue.checkPassword(req.Password) {
		f.emit(native.RspUserLogin{
			Info:      f.venue.info(errInvalidLogin, "invalid login"),
			RequestID: requestID,
			Last:      true,
		})
		return nil
	}
	sessionID, maxRef := f.venue.openSession()
	now := f.venue.opts.Clock()

	f.mu.Lock()
	f.loggedIn = true
	f.userID = req.UserID
	f.brokerID = req.BrokerID
	f.sessionID = sessionID
	f.mu.Unlock()

	f.emit(native.RspUserLogin{
		Data: native.RspUserLoginField{
			TradingDay:  f.venue.tradingDay(now),
			LoginTime:   now.Format("15:04:05"),
			BrokerID:    req.BrokerID,
			UserID:      req.UserID,
			SystemName:  "ctpgate-sim",
			FrontID:     frontID,
			SessionID:   sessionID,
			MaxOrderRef: maxRef,
		},
		RequestID: requestID,
		Last:      true,
	})
	return nil
}

func (f *front) logout(req native.UserLogoutField, requestID int) error {
	if err := f.ensureConnected("ReqUserLogout"); err != nil {
		return err
	}
	f.mu.Lock()
	f.loggedIn = false
	f.mu.Unlock()
	f.emit(native.RspUserLogout{Data: req, RequestID: requestID, Last: true})
	return nil
}

// drop simulates a broken link. Logins and market data subscriptions are lost.
func (f *front) drop(reason int) {
	f.mu.Lock()
	if !f.connected || f.released {
		f.mu.Unlock()
		return
	}
	f.connected = false
	f.loggedIn = false
	clear(f.subs)
	f.mu.Unlock()
	f.emit(native.FrontDisconnected{Reason: reason})
}

// restore simulates the automatic reconnect of a vendor handle.
func (f *front) restore() {
	f.mu.Lock()
	if f.connected || f.released || !f.started {
		f.mu.Unlock()
		return
	}
	f.connected = true
	f.mu.Unlock()
	f.emit(native.FrontConnected{})
}

func (f *front) subscribe(symbol string) {
	f.mu.Lock()
	f.subs[symbol] = struct{}{}
	f.mu.Unlock()
}

func (f *front) subscribed(symbol string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.subs[symbol]
	return ok
}

func (f *front) symbols() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.subs))
	for symbol := range f.subs {
		out = append(out, symbol)
	}
	sort.Strings(out)
	return out
}

// Release stops delivery. No callbacks arrive after it returns.
func (f *front) Release() {
	f.mu.Lock()
	if f.released {
		f.mu.Unlock()
		return
	}
	f.released = true
	f.connected = false
	f.loggedIn = false
	f.mu.Unlock()

	f.venue.detach(f)
	f.cancel()
	f.wg.Wait()
}
