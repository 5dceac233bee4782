package schema

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/coachpo/ctpgate/errs"
)

// SubscribeRequest asks for market data on one symbol.
type SubscribeRequest struct {
	Symbol   string   `json:"symbol"`
	Exchange Exchange `json:"exchange,omitempty"`
}

// OrderRequest describes a new order.
type OrderRequest struct {
	Symbol    string          `json:"symbol"`
	Exchange  Exchange        `json:"exchange,omitempty"`
	Price     decimal.Decimal `json:"price"`
	Volume    int64           `json:"volume"`
	Direction Direction       `json:"direction"`
	Offset    Offset          `json:"offset"`
	PriceType PriceType       `json:"price_type"`
}

// Validate reports malformed order requests before any native dispatch.
func (r OrderRequest) Validate() error {
	if strings.TrimSpace(r.Symbol) == "" {
		return errs.New("schema/order", errs.CodeInvalid, errs.WithMessage("symbol required"),
			errs.WithCanonicalCode(errs.CanonicalInvalidSymbol))
	}
	if r.Volume <= 0 {
		return errs.New("schema/order", errs.CodeInvalid, errs.WithMessage("volume must be positive"))
	}
	if r.Direction != DirectionLong && r.Direction != DirectionShort {
		return errs.New("schema/order", errs.CodeInvalid, errs.WithMessage("direction must be LONG or SHORT"))
	}
	switch r.Offset {
	case OffsetOpen, OffsetClose, OffsetCloseToday, OffsetCloseYesterday:
	default:
		return errs.New("schema/order", errs.CodeInvalid,
			errs.WithMessage("offset must be OPEN, CLOSE, CLOSE_TODAY or CLOSE_YESTERDAY, got "+strconv.Quote(string(r.Offset))))
	}
	switch r.PriceType {
	case PriceTypeLimit, PriceTypeMarket, PriceTypeFAK, PriceTypeFOK:
	default:
		return errs.New("schema/order", errs.CodeInvalid,
			errs.WithMessage("price type must be LIMIT, MARKET, FAK or FOK, got "+strconv.Quote(string(r.PriceType))))
	}
	if r.Price.IsNegative() {
		return errs.New("schema/order", errs.CodeInvalid, errs.WithMessage("price must not be negative"))
	}
	return nil
}

// CancelRequest addresses an order for cancellation. FrontID and SessionID identify
// the trading session that placed the order.
type CancelRequest struct {
	OrderRef  string   `json:"order_ref"`
	Symbol    string   `json:"symbol"`
	Exchange  Exchange `json:"exchange"`
	FrontID   int      `json:"front_id"`
	SessionID int      `json:"session_id"`
}
