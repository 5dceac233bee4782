package ctp

import (
	"strings"

	"github.com/coachpo/ctpgate/errs"
	"github.com/coachpo/ctpgate/internal/domain/schema"
	"github.com/coachpo/ctpgate/internal/infra/adapters/ctp/native"
	"github.com/coachpo/ctpgate/internal/infra/adapters/shared"
	"github.com/coachpo/ctpgate/internal/infra/config"
)

// mdSubscriber adapts a market data handle to the subscription manager.
type mdSubscriber struct {
	api native.MdAPI
}

func (s mdSubscriber) SubscribeSymbols(symbols ...string) error {
	return s.api.SubscribeMarketData(symbols...)
}

// mdSession drives the market data front.
type mdSession struct {
	session[native.MdAPI]
	subs *shared.SubscriptionManager
}

func newMdSession(out *outlet, factory native.Factory, inboxSize int, flowPath string) *mdSession {
	m := &mdSession{subs: shared.NewSubscriptionManager()}
	m.kind = "md"
	m.out = out
	m.inboxSize = inboxSize
	m.flowPath = flowPath
	m.newAPI = factory.NewMdAPI
	m.initAPI = func(api native.MdAPI, opts native.InitOptions, spi native.Spi) error {
		return api.Init(opts, spi)
	}
	m.address = func(s config.ConnectSettings) string { return s.MdAddress }
	m.handle = m.onCallback
	return m
}

func (m *mdSession) Connect(settings config.ConnectSettings) {
	m.connect(settings, m.login)
}

// Subscribe remembers the symbol. It is sent immediately when the session is
// Ready and replayed after every later login.
func (m *mdSession) Subscribe(req schema.SubscribeRequest) error {
	symbol := strings.TrimSpace(req.Symbol)
	if symbol == "" {
		return errs.New(m.out.name, errs.CodeInvalid, errs.WithMessage("subscribe: symbol required"),
			errs.WithCanonicalCode(errs.CanonicalInvalidSymbol))
	}
	if err := m.subs.Add(symbol); err != nil {
		return m.out.requestFailed("subscribe", err)
	}
	return nil
}

// Logout asks the front to end the login. The session returns to Connected on success.
func (m *mdSession) Logout() error {
	c, ok := m.live()
	if !ok {
		return m.out.notReady("md_logout")
	}
	m.mu.Lock()
	req := native.UserLogoutField{BrokerID: m.settings.BrokerID, UserID: m.settings.UserID}
	m.mu.Unlock()
	if err := c.api.ReqUserLogout(req, m.nextRequestID()); err != nil {
		return m.out.requestFailed("md_logout", err)
	}
	return nil
}

func (m *mdSession) Close() {
	m.subs.Suspend()
	m.close()
}

func (m *mdSession) login(c *conn[native.MdAPI]) {
	settings, ok := m.advance(c, StateLoggingIn, StateConnected)
	if !ok {
		return
	}
	req := native.ReqUserLoginField{
		BrokerID:        settings.BrokerID,
		UserID:          settings.UserID,
		Password:        settings.Password,
		UserProductInfo: settings.UserProductInfo,
	}
	if err := c.api.ReqUserLogin(req, m.nextRequestID()); err != nil {
		m.fallBack(c)
		_ = m.out.requestFailed("md_login", err)
	}
}

func (m *mdSession) onCallback(c *conn[native.MdAPI], cb native.Callback) {
	switch msg := cb.(type) {
	case native.FrontConnected:
		if _, ok := m.frontConnected(c); !ok {
			return
		}
		m.out.log("market data front connected")
		m.login(c)

	case native.FrontDisconnected:
		if !m.frontDisconnected(c) {
			return
		}
		m.subs.Suspend()
		m.out.logf("market data front disconnected, reason %d", msg.Reason)

	case native.HeartBeatWarning:
		m.out.logf("market data heartbeat warning, %ds since last message", msg.TimeLapse)

	case native.RspUserLogin:
		if msg.Info.Failed() {
			m.fallBack(c)
			m.out.rspError("market data login failed", msg.Info, errs.CodeAuth)
			return
		}
		if _, ok := m.advance(c, StateReady, StateLoggingIn, StateConnected); !ok {
			return
		}
		m.out.log("market data login succeeded")
		if err := m.subs.Activate(mdSubscriber{api: c.api}); err != nil {
			_ = m.out.requestFailed("subscribe", err)
		}

	case native.RspUserLogout:
		if msg.Info.Failed() {
			m.out.rspError("market data logout failed", msg.Info, errs.CodeAuth)
			return
		}
		if _, ok := m.advance(c, StateConnected, StateReady, StateLoggingIn); !ok {
			return
		}
		m.subs.Suspend()
		m.out.log("market data logout succeeded")

	case native.RspSubMarketData:
		if msg.Info.Failed() {
			m.out.rspError("subscribe "+msg.InstrumentID+" failed", msg.Info, errs.CodeExchange,
				errs.WithCanonicalCode(errs.CanonicalInvalidSymbol))
		}

	case native.RtnDepthMarketData:
		if tick, ok := m.out.norm.tick(msg.Data); ok {
			m.out.pub.PublishTick(m.out.ctx, tick)
		}

	case native.RspError:
		m.out.rspError("market data request error", msg.Info, errs.CodeExchange)
	}
}
