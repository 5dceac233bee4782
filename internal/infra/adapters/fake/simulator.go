package fake

import (
	"github.com/coachpo/ctpgate/internal/infra/adapters/ctp/native"
)

// Simulator is a native.Factory whose handles share one simulated counter.
type Simulator struct {
	venue *venue
}

var _ native.Factory = (*Simulator)(nil)

// New creates a simulator. Zero options select a default catalog and a
// time-seeded random walk.
func New(opts Options) *Simulator {
	return &Simulator{venue: newVenue(opts)}
}

func (s *Simulator) NewMdAPI() native.MdAPI {
	return &mdFront{front: newFront(s.venue, kindMarketData), interval: s.venue.opts.TickInterval}
}

func (s *Simulator) NewTdAPI() native.TdAPI {
	return &tdFront{front: newFront(s.venue, kindTrading)}
}

// Disconnect breaks every live handle's link with the given reason code.
func (s *Simulator) Disconnect(reason int) {
	for _, f := range s.venue.liveFronts() {
		f.drop(reason)
	}
}

// Reconnect restores the links broken by Disconnect.
func (s *Simulator) Reconnect() {
	for _, f := range s.venue.liveFronts() {
		f.restore()
	}
}

// MovePrice sets the last price of a symbol, fills resting orders it crosses and
// pushes the quote to subscribed handles.
func (s *Simulator) MovePrice(symbol string, price float64) error {
	depth, err := s.venue.movePrice(symbol, price)
	if err != nil {
		return err
	}
	for _, f := range s.venue.liveFronts() {
		if f.kind == kindMarketData && f.isLoggedIn() && f.subscribed(symbol) {
			f.emit(native.RtnDepthMarketData{Data: depth})
		}
	}
	return nil
}
