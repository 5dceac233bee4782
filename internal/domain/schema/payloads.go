package schema

import (
	"time"

	"github.com/shopspring/decimal"
)

// Tick is a single market data update for one symbol.
type Tick struct {
	Gateway      string          `json:"gateway"`
	Symbol       string          `json:"symbol"`
	Exchange     Exchange        `json:"exchange"`
	Timestamp    time.Time       `json:"timestamp"`
	LastPrice    decimal.Decimal `json:"last_price"`
	Volume       int64           `json:"volume"`
	OpenInterest decimal.Decimal `json:"open_interest"`
	OpenPrice    decimal.Decimal `json:"open_price"`
	HighPrice    decimal.Decimal `json:"high_price"`
	LowPrice     decimal.Decimal `json:"low_price"`
	PreClose     decimal.Decimal `json:"pre_close"`
	UpperLimit   decimal.Decimal `json:"upper_limit"`
	LowerLimit   decimal.Decimal `json:"lower_limit"`
	BidPrice1    decimal.Decimal `json:"bid_price_1"`
	BidVolume1   int64           `json:"bid_volume_1"`
	AskPrice1    decimal.Decimal `json:"ask_price_1"`
	AskVolume1   int64           `json:"ask_volume_1"`
}

// Order is the latest known snapshot of an order.
type Order struct {
	Gateway      string          `json:"gateway"`
	OrderID      string          `json:"order_id"`
	OrderRef     string          `json:"order_ref"`
	Symbol       string          `json:"symbol"`
	Exchange     Exchange        `json:"exchange"`
	Direction    Direction       `json:"direction"`
	Offset       Offset          `json:"offset"`
	Status       OrderStatus     `json:"status"`
	Price        decimal.Decimal `json:"price"`
	TotalVolume  int64           `json:"total_volume"`
	TradedVolume int64           `json:"traded_volume"`
	InsertTime   time.Time       `json:"insert_time"`
	CancelTime   time.Time       `json:"cancel_time"`
	FrontID      int             `json:"front_id"`
	SessionID    int             `json:"session_id"`
	StatusMsg    string          `json:"status_msg,omitempty"`
}

// Trade is a single fill.
type Trade struct {
	Gateway   string          `json:"gateway"`
	TradeID   string          `json:"trade_id"`
	OrderID   string          `json:"order_id"`
	Symbol    string          `json:"symbol"`
	Exchange  Exchange        `json:"exchange"`
	Direction Direction       `json:"direction"`
	Offset    Offset          `json:"offset"`
	Price     decimal.Decimal `json:"price"`
	Volume    int64           `json:"volume"`
	TradeTime time.Time       `json:"trade_time"`
}

// Position is the aggregated holding for one (symbol, direction) key.
type Position struct {
	Gateway        string          `json:"gateway"`
	Symbol         string          `json:"symbol"`
	Direction      Direction       `json:"direction"`
	Volume         int64           `json:"volume"`
	YdVolume       int64           `json:"yd_volume"`
	TodayVolume    int64           `json:"today_volume"`
	Frozen         int64           `json:"frozen"`
	Price          decimal.Decimal `json:"price"`
	PositionProfit decimal.Decimal `json:"position_profit"`
}

// PositionName returns the gateway-qualified position key.
func (p Position) PositionName() string {
	return p.Gateway + "." + p.Symbol + "." + string(p.Direction)
}

// Account is a funds snapshot.
type Account struct {
	Gateway        string          `json:"gateway"`
	AccountID      string          `json:"account_id"`
	PreBalance     decimal.Decimal `json:"pre_balance"`
	Balance        decimal.Decimal `json:"balance"`
	Available      decimal.Decimal `json:"available"`
	Commission     decimal.Decimal `json:"commission"`
	Margin         decimal.Decimal `json:"margin"`
	CloseProfit    decimal.Decimal `json:"close_profit"`
	PositionProfit decimal.Decimal `json:"position_profit"`
}

// Contract describes a tradable instrument.
type Contract struct {
	Gateway          string          `json:"gateway"`
	Symbol           string          `json:"symbol"`
	Exchange         Exchange        `json:"exchange"`
	Name             string          `json:"name"`
	Size             int64           `json:"size"`
	PriceTick        decimal.Decimal `json:"price_tick"`
	StrikePrice      decimal.Decimal `json:"strike_price"`
	UnderlyingSymbol string          `json:"underlying_symbol,omitempty"`
	ProductClass     ProductClass    `json:"product_class"`
	OptionType       OptionType      `json:"option_type"`
}

// LogEntry is an informational message emitted by a gateway.
type LogEntry struct {
	Gateway   string    `json:"gateway"`
	Timestamp time.Time `json:"timestamp"`
	Content   string    `json:"content"`
}

// ErrorEntry carries a native error code and its decoded message.
type ErrorEntry struct {
	Gateway   string    `json:"gateway"`
	Timestamp time.Time `json:"timestamp"`
	ErrorID   int       `json:"error_id"`
	ErrorMsg  string    `json:"error_msg"`
}
