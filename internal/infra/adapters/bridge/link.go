// Package bridge implements the native front API over a websocket connection to a
// CTP bridge process. Requests and callbacks travel as JSON frames named after
// the vendor calls.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/coder/websocket"
	"github.com/sourcegraph/conc"
	"golang.org/x/time/rate"

	"github.com/coachpo/ctpgate/internal/infra/adapters/ctp/native"
	"github.com/coachpo/ctpgate/internal/observability"
)

const (
	readLimit = 4 * 1024 * 1024

	// Vendor disconnect reasons.
	reasonReadFailed  = 0x1001
	reasonWriteFailed = 0x1002
)

// link is one websocket connection and the goroutine reading callbacks from it.
// The bridge never redials; a new handle is needed after a disconnect.
type link struct {
	kind    string
	opts    Options
	logger  observability.Logger
	limiter *rate.Limiter

	ctx    context.Context
	cancel context.CancelFunc
	wg     conc.WaitGroup

	mu         sync.Mutex
	conn       *websocket.Conn
	spi        native.Spi
	started    bool
	released   bool
	lostReason int

	writeMu sync.Mutex
}

func newLink(kind string, opts Options) *link {
	ctx, cancel := context.WithCancel(context.Background())
	return &link{
		kind:    kind,
		opts:    opts,
		logger:  opts.Logger,
		limiter: rate.NewLimiter(rate.Limit(opts.QueryRate), opts.QueryBurst),
		ctx:     ctx,
		cancel:  cancel,
	}
}

func validateAddress(address string) error {
	u, err := url.Parse(strings.TrimSpace(address))
	if err != nil {
		return fmt.Errorf("bridge: front address %q: %w", address, err)
	}
	switch u.Scheme {
	case "ws", "wss":
		return nil
	default:
		return fmt.Errorf("bridge: front address %q must use ws or wss", address)
	}
}

// init starts dialing in the background. The outcome arrives as FrontConnected or
// FrontDisconnected.
func (l *link) init(opts native.InitOptions, spi native.Spi) error {
	if spi == nil {
		return errors.New("bridge: callback sink required")
	}
	if err := validateAddress(opts.FrontAddress); err != nil {
		return err
	}
	l.mu.Lock()
	if l.started || l.released {
		l.mu.Unlock()
		return errors.New("bridge: handle already initialised")
	}
	l.started = true
	l.spi = spi
	l.mu.Unlock()

	address := strings.TrimSpace(opts.FrontAddress)
	l.wg.Go(func() { l.run(address) })
	return nil
}

func (l *link) run(address string) {
	dialCtx, cancel := context.WithTimeout(l.ctx, l.opts.DialTimeout)
	conn, _, err := websocket.Dial(dialCtx, address, nil)
	cancel()
	if err != nil {
		if l.ctx.Err() != nil {
			return
		}
		l.logger.Error("bridge dial failed",
			observability.Field{Key: "front", Value: l.kind},
			observability.Field{Key: "address", Value: address},
			observability.Field{Key: "error", Value: err})
		l.deliver(native.FrontDisconnected{Reason: reasonReadFailed})
		return
	}
	conn.SetReadLimit(readLimit)

	l.mu.Lock()
	if l.released {
		l.mu.Unlock()
		_ = conn.Close(websocket.StatusNormalClosure, "released")
		return
	}
	l.conn = conn
	l.mu.Unlock()

	l.logger.Info("bridge connected",
		observability.Field{Key: "front", Value: l.kind},
		observability.Field{Key: "address", Value: address})
	l.deliver(native.FrontConnected{})

	err = l.readLoop(conn)
	reason := reasonReadFailed
	l.mu.Lock()
	if l.conn == conn {
		l.conn = nil
	}
	if l.lostReason != 0 {
		reason = l.lostReason
	}
	l.mu.Unlock()
	_ = conn.Close(websocket.StatusNormalClosure, "")

	if l.ctx.Err() != nil {
		return
	}
	l.logger.Error("bridge connection lost",
		observability.Field{Key: "front", Value: l.kind},
		observability.Field{Key: "error", Value: err})
	l.deliver(native.FrontDisconnected{Reason: reason})
}

func (l *link) readLoop(conn *websocket.Conn) error {
	for {
		_, data, err := conn.Read(l.ctx)
		if err != nil {
			return fmt.Errorf("read websocket: %w", err)
		}
		if len(strings.TrimSpace(string(data))) == 0 {
			continue
		}
		cb, err := decodeFrame(data)
		if err != nil {
			l.logger.Error("bridge frame dropped",
				observability.Field{Key: "front", Value: l.kind},
				observability.Field{Key: "error", Value: err})
			continue
		}
		l.deliver(cb)
	}
}

func (l *link) deliver(cb native.Callback) {
	if l.ctx.Err() != nil {
		return
	}
	l.mu.Lock()
	spi := l.spi
	l.mu.Unlock()
	spi(cb)
}

// send writes one request frame. A missing connection or a failed write is
// reported with the vendor network code.
func (l *link) send(op string, requestID int, data any) error {
	l.mu.Lock()
	conn := l.conn
	l.mu.Unlock()
	if conn == nil {
		return native.ResultError(op, native.ResultNetwork)
	}
	raw, err := encodeRequest(op, requestID, data)
	if err != nil {
		return err
	}

	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	writeCtx, cancel := context.WithTimeout(l.ctx, l.opts.WriteTimeout)
	defer cancel()
	if err := conn.Write(writeCtx, websocket.MessageText, raw); err != nil {
		l.logger.Error("bridge write failed",
			observability.Field{Key: "front", Value: l.kind},
			observability.Field{Key: "op", Value: op},
			observability.Field{Key: "error", Value: err})
		l.mu.Lock()
		if l.conn == conn {
			l.lostReason = reasonWriteFailed
		}
		l.mu.Unlock()
		_ = conn.Close(websocket.StatusInternalError, "write failed")
		return &native.CallError{Op: op, Code: native.ResultNetwork}
	}
	return nil
}

// query is send behind the query rate limit. Overflow fails at once with the
// vendor flow-control code.
func (l *link) query(op string, requestID int, data any) error {
	if !l.limiter.Allow() {
		return native.ResultError(op, native.ResultFlowControl)
	}
	return l.send(op, requestID, data)
}

// Release closes the connection and waits for the reader. No callbacks are
// delivered after it returns.
func (l *link) Release() {
	l.mu.Lock()
	if l.released {
		l.mu.Unlock()
		return
	}
	l.released = true
	conn := l.conn
	l.conn = nil
	l.mu.Unlock()

	l.cancel()
	if conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "released")
	}
	l.wg.Wait()
}
