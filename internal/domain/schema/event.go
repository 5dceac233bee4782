// Package schema defines the normalized gateway events and payload types.
package schema

import (
	"fmt"
	"strings"
	"time"
)

// EventType enumerates the normalized event categories pushed by a gateway.
type EventType string

const (
	// EventTypeTick identifies market data updates.
	EventTypeTick EventType = "Tick"
	// EventTypeOrder identifies order status snapshots.
	EventTypeOrder EventType = "Order"
	// EventTypeTrade identifies fills.
	EventTypeTrade EventType = "Trade"
	// EventTypePosition identifies aggregated position snapshots.
	EventTypePosition EventType = "Position"
	// EventTypeAccount identifies account snapshots.
	EventTypeAccount EventType = "Account"
	// EventTypeContract identifies instrument catalogue entries.
	EventTypeContract EventType = "Contract"
	// EventTypeLog identifies informational gateway logs.
	EventTypeLog EventType = "Log"
	// EventTypeError identifies native error reports.
	EventTypeError EventType = "Error"
)

// EventTypes lists every event category in a stable order.
func EventTypes() []EventType {
	return []EventType{
		EventTypeTick,
		EventTypeOrder,
		EventTypeTrade,
		EventTypePosition,
		EventTypeAccount,
		EventTypeContract,
		EventTypeLog,
		EventTypeError,
	}
}

// ParseEventType resolves a case-insensitive event type name.
func ParseEventType(raw string) (EventType, bool) {
	trimmed := strings.TrimSpace(raw)
	for _, typ := range EventTypes() {
		if strings.EqualFold(trimmed, string(typ)) {
			return typ, true
		}
	}
	return "", false
}

// Event wraps a payload emitted by a gateway.
type Event struct {
	EventID string    `json:"event_id"`
	Gateway string    `json:"gateway"`
	Symbol  string    `json:"symbol,omitempty"`
	Type    EventType `json:"type"`
	Seq     uint64    `json:"seq"`
	EmitTS  time.Time `json:"emit_ts"`
	Payload any       `json:"payload"`
}

// BuildEventKey constructs the default idempotency key for an event.
func BuildEventKey(gateway string, typ EventType, symbol string, seq uint64) string {
	return fmt.Sprintf("%s:%s:%s:%d", strings.TrimSpace(gateway), typ, strings.TrimSpace(symbol), seq)
}

// Clone returns a shallow copy of the event. Payloads are value types and safe to share.
func (e *Event) Clone() *Event {
	if e == nil {
		return nil
	}
	out := *e
	return &out
}
