package ctp

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/coachpo/ctpgate/errs"
	"github.com/coachpo/ctpgate/internal/domain/schema"
	"github.com/coachpo/ctpgate/internal/infra/adapters/ctp/native"
	"github.com/coachpo/ctpgate/internal/observability"
)

// frontCalls records the requests made against a front double.
type frontCalls struct {
	mu       sync.Mutex
	spi      native.Spi
	opts     native.InitOptions
	calls    map[string]int
	released bool
}

func (f *frontCalls) init(opts native.InitOptions, spi native.Spi) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opts = opts
	f.spi = spi
}

func (f *frontCalls) record(op string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[op]++
}

func (f *frontCalls) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *frontCalls) isReleased() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.released
}

// push delivers a callback the way a binding thread would.
func (f *frontCalls) push(cbs ...native.Callback) {
	f.mu.Lock()
	spi := f.spi
	f.mu.Unlock()
	for _, cb := range cbs {
		spi(cb)
	}
}

func (f *frontCalls) Release() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released = true
}

type mdDouble struct {
	frontCalls
	subscribed [][]string
}

func (m *mdDouble) Init(opts native.InitOptions, spi native.Spi) error {
	m.init(opts, spi)
	return nil
}

func (m *mdDouble) ReqUserLogin(native.ReqUserLoginField, int) error {
	m.record("login")
	return nil
}

func (m *mdDouble) ReqUserLogout(native.UserLogoutField, int) error {
	m.record("logout")
	return nil
}

func (m *mdDouble) SubscribeMarketData(symbols ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribed = append(m.subscribed, append([]string(nil), symbols...))
	return nil
}

func (m *mdDouble) subscriptions() [][]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]string(nil), m.subscribed...)
}

type tdDouble struct {
	frontCalls
	insertErr error
	inserts   []native.InputOrderField
	actions   []native.InputOrderActionField
}

func (t *tdDouble) Init(opts native.InitOptions, spi native.Spi) error {
	t.init(opts, spi)
	return nil
}

func (t *tdDouble) ReqAuthenticate(native.ReqAuthenticateField, int) error {
	t.record("authenticate")
	return nil
}

func (t *tdDouble) ReqUserLogin(native.ReqUserLoginField, int) error {
	t.record("login")
	return nil
}

func (t *tdDouble) ReqUserLogout(native.UserLogoutField, int) error {
	t.record("logout")
	return nil
}

func (t *tdDouble) ReqSettlementInfoConfirm(native.SettlementInfoConfirmField, int) error {
	t.record("settlement_confirm")
	return nil
}

func (t *tdDouble) ReqQryInstrument(native.QryInstrumentField, int) error {
	t.record("qry_instrument")
	return nil
}

func (t *tdDouble) ReqQryTradingAccount(native.QryTradingAccountField, int) error {
	t.record("qry_account")
	return nil
}

func (t *tdDouble) ReqQryInvestorPosition(native.QryInvestorPositionField, int) error {
	t.record("qry_position")
	return nil
}

func (t *tdDouble) ReqOrderInsert(req native.InputOrderField, _ int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.insertErr != nil {
		return t.insertErr
	}
	t.inserts = append(t.inserts, req)
	return nil
}

func (t *tdDouble) ReqOrderAction(req native.InputOrderActionField, _ int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.actions = append(t.actions, req)
	return nil
}

func (t *tdDouble) lastInsert() native.InputOrderField {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.inserts[len(t.inserts)-1]
}

func (t *tdDouble) insertCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.inserts)
}

func (t *tdDouble) actionCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.actions)
}

func (t *tdDouble) lastAction() native.InputOrderActionField {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.actions[len(t.actions)-1]
}

// doubleFactory hands out a fresh double per connection and keeps them all.
type doubleFactory struct {
	mu  sync.Mutex
	mds []*mdDouble
	tds []*tdDouble
}

func (f *doubleFactory) NewMdAPI() native.MdAPI {
	f.mu.Lock()
	defer f.mu.Unlock()
	md := &mdDouble{}
	f.mds = append(f.mds, md)
	return md
}

func (f *doubleFactory) NewTdAPI() native.TdAPI {
	f.mu.Lock()
	defer f.mu.Unlock()
	td := &tdDouble{}
	f.tds = append(f.tds, td)
	return td
}

func (f *doubleFactory) md(i int) *mdDouble {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mds[i]
}

func (f *doubleFactory) td(i int) *tdDouble {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tds[i]
}

func (f *doubleFactory) handles() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.mds), len(f.tds)
}

// captureSink keeps every published event.
type captureSink struct {
	mu     sync.Mutex
	events []*schema.Event
}

func (s *captureSink) Publish(_ context.Context, evt *schema.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, evt)
	return nil
}

func (s *captureSink) ofType(typ schema.EventType) []*schema.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*schema.Event
	for _, evt := range s.events {
		if evt.Type == typ {
			out = append(out, evt)
		}
	}
	return out
}

func (s *captureSink) errors() []schema.ErrorEntry {
	var out []schema.ErrorEntry
	for _, evt := range s.ofType(schema.EventTypeError) {
		out = append(out, evt.Payload.(schema.ErrorEntry))
	}
	return out
}

func (s *captureSink) logs() []string {
	var out []string
	for _, evt := range s.ofType(schema.EventTypeLog) {
		out = append(out, evt.Payload.(schema.LogEntry).Content)
	}
	return out
}

func (s *captureSink) orders() []schema.Order {
	var out []schema.Order
	for _, evt := range s.ofType(schema.EventTypeOrder) {
		out = append(out, evt.Payload.(schema.Order))
	}
	return out
}

// captureLogger keeps the errs envelopes attached to Error level lines.
type captureLogger struct {
	mu     sync.Mutex
	errors map[string]*errs.E
}

func (l *captureLogger) Debug(string, ...observability.Field) {}
func (l *captureLogger) Info(string, ...observability.Field)  {}

func (l *captureLogger) Error(msg string, fields ...observability.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, f := range fields {
		if e, ok := f.Value.(*errs.E); ok && f.Key == "error" {
			if l.errors == nil {
				l.errors = make(map[string]*errs.E)
			}
			l.errors[msg] = e
		}
	}
}

func (l *captureLogger) envelope(t *testing.T, msg string) *errs.E {
	t.Helper()
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.errors[msg]
	require.True(t, ok, "no error envelope logged for %q", msg)
	return e
}
