package fake

import (
	"sync"
	"time"

	"github.com/coachpo/ctpgate/internal/infra/adapters/ctp/native"
)

// mdFront is a simulated market data handle. Subscribed symbols random-walk on
// a ticker while the handle is logged in.
type mdFront struct {
	*front
	interval time.Duration
	genOnce  sync.Once
}

func (m *mdFront) Init(opts native.InitOptions, spi native.Spi) error {
	return m.init(opts, spi)
}

func (m *mdFront) ReqUserLogin(req native.ReqUserLoginField, requestID int) error {
	return m.login(req, requestID)
}

func (m *mdFront) ReqUserLogout(req native.UserLogoutField, requestID int) error {
	return m.logout(req, requestID)
}

func (m *mdFront) SubscribeMarketData(symbols ...string) error {
	if err := m.ensureConnected("SubscribeMarketData"); err != nil {
		return err
	}
	for i, symbol := range symbols {
		last := i == len(symbols)-1
		if !m.venue.known(symbol) {
			m.emit(native.RspSubMarketData{
				InstrumentID: symbol,
				Info:         m.venue.info(errUnknownInstrument, "instrument not found"),
				Last:         last,
			})
			continue
		}
		m.subscribe(symbol)
		m.emit(native.RspSubMarketData{InstrumentID: symbol, Last: last})
		if depth, ok := m.venue.depth(symbol); ok {
			m.emit(native.RtnDepthMarketData{Data: depth})
		}
	}
	m.genOnce.Do(func() { m.wg.Go(m.generate) })
	return nil
}

func (m *mdFront) generate() {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			if !m.isLoggedIn() {
				continue
			}
			for _, symbol := range m.symbols() {
				if depth, ok := m.venue.step(symbol); ok {
					m.emit(native.RtnDepthMarketData{Data: depth})
				}
			}
		}
	}
}
