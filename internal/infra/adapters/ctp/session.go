package ctp

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/sourcegraph/conc"

	"github.com/coachpo/ctpgate/internal/infra/adapters/ctp/native"
	"github.com/coachpo/ctpgate/internal/infra/config"
)

// SessionState is the lifecycle position of one front session.
type SessionState int32

const (
	StateDisconnected SessionState = iota
	StateConnecting
	StateConnected
	StateAuthenticating
	StateLoggingIn
	StateReady
)

func (s SessionState) String() string {
	switch s {
	case StateDisconnected:
		return "Disconnected"
	case StateConnecting:
		return "Connecting"
	case StateConnected:
		return "Connected"
	case StateAuthenticating:
		return "Authenticating"
	case StateLoggingIn:
		return "LoggingIn"
	case StateReady:
		return "Ready"
	default:
		return "Unknown"
	}
}

// MarshalText renders the state name in JSON payloads.
func (s SessionState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

type nativeHandle interface {
	Release()
}

// conn is one native handle plus the goroutine draining its callbacks.
type conn[A nativeHandle] struct {
	api    A
	ctx    context.Context
	cancel context.CancelFunc
	inbox  chan native.Callback
	wg     conc.WaitGroup
}

func newConn[A nativeHandle](api A, inboxSize int) *conn[A] {
	ctx, cancel := context.WithCancel(context.Background())
	return &conn[A]{
		api:    api,
		ctx:    ctx,
		cancel: cancel,
		inbox:  make(chan native.Callback, inboxSize),
	}
}

// spi is handed to the binding. It blocks while the inbox is full and gives up
// once the connection is stopped.
func (c *conn[A]) spi(cb native.Callback) {
	select {
	case c.inbox <- cb:
	case <-c.ctx.Done():
	}
}

func (c *conn[A]) start(handle func(*conn[A], native.Callback)) {
	c.wg.Go(func() {
		for {
			select {
			case <-c.ctx.Done():
				return
			case cb := <-c.inbox:
				handle(c, cb)
			}
		}
	})
}

// stop ends the callback loop, then releases the handle.
func (c *conn[A]) stop() {
	c.cancel()
	c.wg.Wait()
	c.api.Release()
}

// session holds the state machine shared by the market data and trading sessions.
type session[A nativeHandle] struct {
	kind      string
	out       *outlet
	inboxSize int
	flowPath  string

	newAPI  func() A
	initAPI func(api A, opts native.InitOptions, spi native.Spi) error
	address func(config.ConnectSettings) string
	handle  func(*conn[A], native.Callback)

	mu       sync.Mutex
	state    SessionState
	conn     *conn[A]
	settings config.ConnectSettings

	reqID atomic.Int64
}

func (s *session[A]) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *session[A]) nextRequestID() int {
	return int(s.reqID.Add(1))
}

func (s *session[A]) setStateLocked(state SessionState) {
	if s.state == state {
		return
	}
	s.state = state
	s.out.transition(s.kind, state)
}

// lockCurrent locks the session when c is still its live connection. Callbacks
// from a replaced handle are ignored.
func (s *session[A]) lockCurrent(c *conn[A]) bool {
	s.mu.Lock()
	if s.conn != c {
		s.mu.Unlock()
		return false
	}
	return true
}

// live returns the current connection when the session is Ready.
func (s *session[A]) live() (*conn[A], bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateReady || s.conn == nil {
		return nil, false
	}
	return s.conn, true
}

// connect opens a fresh handle from Disconnected. From Connected it runs advance
// to push authentication or login forward. Other states ignore the call.
func (s *session[A]) connect(settings config.ConnectSettings, advance func(*conn[A])) {
	s.mu.Lock()
	switch s.state {
	case StateDisconnected:
	case StateConnected:
		s.settings = settings
		c := s.conn
		s.mu.Unlock()
		if c != nil {
			advance(c)
		}
		return
	default:
		s.mu.Unlock()
		return
	}
	s.settings = settings
	old := s.conn
	s.conn = nil
	s.setStateLocked(StateConnecting)
	s.mu.Unlock()

	if old != nil {
		old.stop()
	}

	api := s.newAPI()
	c := newConn(api, s.inboxSize)

	s.mu.Lock()
	if s.state != StateConnecting || s.conn != nil {
		// Closed while the previous handle was being released.
		s.mu.Unlock()
		api.Release()
		return
	}
	s.conn = c
	s.mu.Unlock()

	c.start(s.handle)
	opts := native.InitOptions{
		FrontAddress: s.address(settings),
		FlowPath:     s.flowPath,
		ResumeType:   native.ResumeQuick,
	}
	if err := s.initAPI(api, opts, c.spi); err != nil {
		s.out.logf("%s front init failed: %v", s.kind, err)
		s.mu.Lock()
		if s.conn == c {
			s.conn = nil
			s.setStateLocked(StateDisconnected)
		}
		s.mu.Unlock()
		c.stop()
	}
}

// frontConnected moves any state to Connected and returns the settings to log in with.
func (s *session[A]) frontConnected(c *conn[A]) (config.ConnectSettings, bool) {
	if !s.lockCurrent(c) {
		return config.ConnectSettings{}, false
	}
	defer s.mu.Unlock()
	s.setStateLocked(StateConnected)
	return s.settings, true
}

func (s *session[A]) frontDisconnected(c *conn[A]) bool {
	if !s.lockCurrent(c) {
		return false
	}
	defer s.mu.Unlock()
	s.setStateLocked(StateDisconnected)
	return true
}

// advance moves from one of the allowed states to next and returns the login settings.
func (s *session[A]) advance(c *conn[A], next SessionState, from ...SessionState) (config.ConnectSettings, bool) {
	if !s.lockCurrent(c) {
		return config.ConnectSettings{}, false
	}
	defer s.mu.Unlock()
	for _, allowed := range from {
		if s.state == allowed {
			s.setStateLocked(next)
			return s.settings, true
		}
	}
	return config.ConnectSettings{}, false
}

// fallBack returns to Connected after a refused request or a failed login.
func (s *session[A]) fallBack(c *conn[A]) {
	if !s.lockCurrent(c) {
		return
	}
	if s.state != StateDisconnected {
		s.setStateLocked(StateConnected)
	}
	s.mu.Unlock()
}

// close releases the current handle, if any, and returns to Disconnected.
func (s *session[A]) close() {
	s.mu.Lock()
	c := s.conn
	s.conn = nil
	s.setStateLocked(StateDisconnected)
	s.mu.Unlock()
	if c != nil {
		c.stop()
	}
}
