// Package orderstore defines persistence contracts for the execution journal:
// order status transitions, fills and account snapshots reported by gateways.
package orderstore

import (
	"context"
	"time"

	"github.com/coachpo/ctpgate/internal/domain/schema"
)

// Order is the latest known state of one order. Orders are identified by the
// gateway-qualified id together with the front and session that placed them,
// since order refs restart with each trading day.
type Order struct {
	OrderID      string
	Gateway      string
	OrderRef     string
	FrontID      int
	SessionID    int
	Symbol       string
	Exchange     string
	Direction    string
	Offset       string
	Status       string
	Price        string
	TotalVolume  int64
	TradedVolume int64
	StatusMsg    string
	InsertedAt   time.Time
	CancelledAt  time.Time
}

// Trade is one fill. The exchange trade id is unique per exchange and side.
type Trade struct {
	Gateway   string
	Exchange  string
	TradeID   string
	Direction string
	OrderID   string
	Symbol    string
	Offset    string
	Price     string
	Volume    int64
	TradedAt  time.Time
}

// AccountSnapshot is one account query result.
type AccountSnapshot struct {
	Gateway        string
	AccountID      string
	PreBalance     string
	Balance        string
	Available      string
	Commission     string
	Margin         string
	CloseProfit    string
	PositionProfit string
	SnapshotAt     time.Time
}

// OrderRecord is a persisted order row.
type OrderRecord struct {
	Order
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TradeRecord is a persisted fill.
type TradeRecord struct {
	Trade
	CreatedAt time.Time
}

// AccountRecord is a persisted account snapshot.
type AccountRecord struct {
	AccountSnapshot
	ID        int64
	CreatedAt time.Time
}

// OrderQuery filters journal orders.
type OrderQuery struct {
	Gateway  string
	Symbol   string
	Statuses []string
	Limit    int
}

// TradeQuery filters journal fills.
type TradeQuery struct {
	Gateway string
	OrderID string
	Symbol  string
	Limit   int
}

// AccountQuery filters account snapshots, newest first.
type AccountQuery struct {
	Gateway   string
	AccountID string
	Limit     int
}

// Tx exposes the journal writes that can run inside one transaction.
type Tx interface {
	UpsertOrder(ctx context.Context, order Order) error
	RecordTrade(ctx context.Context, trade Trade) error
	AppendAccount(ctx context.Context, snapshot AccountSnapshot) error
}

// Store is the execution journal.
type Store interface {
	Tx
	WithTransaction(ctx context.Context, fn func(context.Context, Tx) error) error
	ListOrders(ctx context.Context, query OrderQuery) ([]OrderRecord, error)
	ListTrades(ctx context.Context, query TradeQuery) ([]TradeRecord, error)
	ListAccounts(ctx context.Context, query AccountQuery) ([]AccountRecord, error)
}

// OrderFromEvent maps an order event payload to its journal row.
func OrderFromEvent(o schema.Order) Order {
	return Order{
		OrderID:      o.OrderID,
		Gateway:      o.Gateway,
		OrderRef:     o.OrderRef,
		FrontID:      o.FrontID,
		SessionID:    o.SessionID,
		Symbol:       o.Symbol,
		Exchange:     string(o.Exchange),
		Direction:    string(o.Direction),
		Offset:       string(o.Offset),
		Status:       string(o.Status),
		Price:        o.Price.String(),
		TotalVolume:  o.TotalVolume,
		TradedVolume: o.TradedVolume,
		StatusMsg:    o.StatusMsg,
		InsertedAt:   o.InsertTime,
		CancelledAt:  o.CancelTime,
	}
}

// TradeFromEvent maps a trade event payload to its journal row.
func TradeFromEvent(t schema.Trade) Trade {
	return Trade{
		Gateway:   t.Gateway,
		Exchange:  string(t.Exchange),
		TradeID:   t.TradeID,
		Direction: string(t.Direction),
		OrderID:   t.OrderID,
		Symbol:    t.Symbol,
		Offset:    string(t.Offset),
		Price:     t.Price.String(),
		Volume:    t.Volume,
		TradedAt:  t.TradeTime,
	}
}

// AccountFromEvent maps an account event payload to a snapshot taken at the
// given time.
func AccountFromEvent(a schema.Account, at time.Time) AccountSnapshot {
	return AccountSnapshot{
		Gateway:        a.Gateway,
		AccountID:      a.AccountID,
		PreBalance:     a.PreBalance.String(),
		Balance:        a.Balance.String(),
		Available:      a.Available.String(),
		Commission:     a.Commission.String(),
		Margin:         a.Margin.String(),
		CloseProfit:    a.CloseProfit.String(),
		PositionProfit: a.PositionProfit.String(),
		SnapshotAt:     at,
	}
}
