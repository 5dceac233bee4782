package shared

import (
	"fmt"
	"strings"
	"sync"
)

// SymbolSubscriber dispatches native market data subscriptions.
type SymbolSubscriber interface {
	SubscribeSymbols(symbols ...string) error
}

// SubscriptionManager remembers every requested symbol and replays the whole set
// each time the owning session becomes live. The subscriber is the live front
// handle and is only set between Activate and Suspend.
type SubscriptionManager struct {
	mu         sync.Mutex
	desired    map[string]struct{}
	order      []string
	subscriber SymbolSubscriber
}

// NewSubscriptionManager creates a new manager instance.
func NewSubscriptionManager() *SubscriptionManager {
	return &SubscriptionManager{
		mu:      sync.Mutex{},
		desired: make(map[string]struct{}),
	}
}

// Add records the symbol and dispatches it when the session is live. Symbols
// added while the session is down are sent by the next Activate.
func (m *SubscriptionManager) Add(symbol string) error {
	symbol = strings.TrimSpace(symbol)
	if symbol == "" {
		return fmt.Errorf("subscribe: symbol required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.desired[symbol]; ok {
		return nil
	}
	m.desired[symbol] = struct{}{}
	m.order = append(m.order, symbol)
	if m.subscriber == nil {
		return nil
	}
	if err := m.subscriber.SubscribeSymbols(symbol); err != nil {
		return fmt.Errorf("subscribe %s: %w", symbol, err)
	}
	return nil
}

// Activate marks the session live on the given handle and dispatches every
// remembered symbol once.
func (m *SubscriptionManager) Activate(subscriber SymbolSubscriber) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscriber = subscriber
	if len(m.order) == 0 || subscriber == nil {
		return nil
	}
	symbols := make([]string, len(m.order))
	copy(symbols, m.order)
	if err := subscriber.SubscribeSymbols(symbols...); err != nil {
		return fmt.Errorf("replay subscriptions: %w", err)
	}
	return nil
}

// Suspend marks the session down. Remembered symbols are kept for the next replay.
func (m *SubscriptionManager) Suspend() {
	m.mu.Lock()
	m.subscriber = nil
	m.mu.Unlock()
}

// Symbols returns the remembered symbols in request order.
func (m *SubscriptionManager) Symbols() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.order))
	copy(out, m.order)
	return out
}
