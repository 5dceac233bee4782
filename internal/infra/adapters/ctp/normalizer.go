package ctp

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/encoding/simplifiedchinese"

	"github.com/coachpo/ctpgate/internal/domain/schema"
	"github.com/coachpo/ctpgate/internal/infra/adapters/ctp/native"
)

// Fronts report "no value" prices as DBL_MAX.
const invalidPriceThreshold = 1e300

const (
	dateLayout     = "20060102"
	timeLayout     = "15:04:05"
	dateTimeLayout = dateLayout + " " + timeLayout
)

// TextDecoder converts front text fields to UTF-8.
type TextDecoder func(string) string

// NewTextDecoder returns the decoder for a configured encoding name.
func NewTextDecoder(encoding string) TextDecoder {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "gbk", "gb2312", "gb18030":
		return func(s string) string {
			if s == "" {
				return s
			}
			// Decoders carry transform state and are not shared between sessions.
			out, err := simplifiedchinese.GBK.NewDecoder().String(s)
			if err != nil {
				return s
			}
			return out
		}
	default:
		return func(s string) string { return s }
	}
}

// normalizer converts native payloads into schema payloads. It holds no mutable state.
type normalizer struct {
	gateway string
	clock   func() time.Time
	loc     *time.Location
	decode  TextDecoder
}

func newNormalizer(gateway string, clock func() time.Time, loc *time.Location, decode TextDecoder) normalizer {
	if clock == nil {
		clock = time.Now
	}
	if loc == nil {
		loc = time.Local
	}
	if decode == nil {
		decode = NewTextDecoder("")
	}
	return normalizer{gateway: gateway, clock: clock, loc: loc, decode: decode}
}

// tick converts a depth update. Updates without traded volume are not ticks.
func (n normalizer) tick(d native.DepthMarketDataField) (schema.Tick, bool) {
	if d.Volume == 0 {
		return schema.Tick{}, false
	}
	ts := n.wallClockTime(d.UpdateTime).Add(time.Duration(d.UpdateMillisec) * time.Millisecond)
	return schema.Tick{
		Gateway:      n.gateway,
		Symbol:       d.InstrumentID,
		Exchange:     exchangeTable.toDomain(d.ExchangeID),
		Timestamp:    ts,
		LastPrice:    price(d.LastPrice),
		Volume:       int64(d.Volume),
		OpenInterest: decimal.NewFromFloat(d.OpenInterest),
		OpenPrice:    price(d.OpenPrice),
		HighPrice:    price(d.HighestPrice),
		LowPrice:     price(d.LowestPrice),
		PreClose:     price(d.PreClosePrice),
		UpperLimit:   price(d.UpperLimitPrice),
		LowerLimit:   price(d.LowerLimitPrice),
		BidPrice1:    price(d.BidPrice1),
		BidVolume1:   int64(d.BidVolume1),
		AskPrice1:    price(d.AskPrice1),
		AskVolume1:   int64(d.AskVolume1),
	}, true
}

// wallClockTime combines today's local date with an intraday time. The trading-day
// field is not used because night sessions report the next business day.
func (n normalizer) wallClockTime(clock string) time.Time {
	now := n.clock().In(n.loc)
	parsed, err := time.ParseInLocation(dateTimeLayout, now.Format(dateLayout)+" "+strings.TrimSpace(clock), n.loc)
	if err != nil {
		return now
	}
	return parsed
}

// dateTime combines a native date and time, falling back to the wall clock date.
func (n normalizer) dateTime(date, clock string) time.Time {
	clock = strings.TrimSpace(clock)
	if clock == "" {
		return time.Time{}
	}
	date = strings.TrimSpace(date)
	if date == "" {
		return n.wallClockTime(clock)
	}
	parsed, err := time.ParseInLocation(dateTimeLayout, date+" "+clock, n.loc)
	if err != nil {
		return n.wallClockTime(clock)
	}
	return parsed
}

func (n normalizer) orderID(ref string) string {
	return n.gateway + "." + strings.TrimSpace(ref)
}

func (n normalizer) order(d native.OrderField) schema.Order {
	return schema.Order{
		Gateway:      n.gateway,
		OrderID:      n.orderID(d.OrderRef),
		OrderRef:     strings.TrimSpace(d.OrderRef),
		Symbol:       d.InstrumentID,
		Exchange:     exchangeTable.toDomain(d.ExchangeID),
		Direction:    directionTable.toDomain(d.Direction),
		Offset:       offsetFromComb(d.CombOffsetFlag),
		Status:       orderStatusTable.toDomain(d.OrderStatus),
		Price:        price(d.LimitPrice),
		TotalVolume:  int64(d.VolumeTotalOriginal),
		TradedVolume: int64(d.VolumeTraded),
		InsertTime:   n.dateTime(d.InsertDate, d.InsertTime),
		CancelTime:   n.dateTime(d.InsertDate, d.CancelTime),
		FrontID:      d.FrontID,
		SessionID:    d.SessionID,
		StatusMsg:    n.decode(d.StatusMsg),
	}
}

// rejectedOrder builds the order snapshot for an insert request refused by the
// counter or the exchange.
func (n normalizer) rejectedOrder(d native.InputOrderField, frontID, sessionID int) schema.Order {
	return schema.Order{
		Gateway:     n.gateway,
		OrderID:     n.orderID(d.OrderRef),
		OrderRef:    strings.TrimSpace(d.OrderRef),
		Symbol:      d.InstrumentID,
		Exchange:    exchangeTable.toDomain(d.ExchangeID),
		Direction:   directionTable.toDomain(d.Direction),
		Offset:      offsetFromComb(d.CombOffsetFlag),
		Status:      schema.OrderStatusRejected,
		Price:       price(d.LimitPrice),
		TotalVolume: int64(d.VolumeTotalOriginal),
		FrontID:     frontID,
		SessionID:   sessionID,
	}
}

func (n normalizer) trade(d native.TradeField) schema.Trade {
	return schema.Trade{
		Gateway:   n.gateway,
		TradeID:   n.gateway + "." + strings.TrimSpace(d.TradeID),
		OrderID:   n.orderID(d.OrderRef),
		Symbol:    d.InstrumentID,
		Exchange:  exchangeTable.toDomain(d.ExchangeID),
		Direction: directionTable.toDomain(d.Direction),
		Offset:    offsetTable.toDomain(d.OffsetFlag),
		Price:     price(d.Price),
		Volume:    int64(d.Volume),
		TradeTime: n.dateTime(d.TradeDate, d.TradeTime),
	}
}

func (n normalizer) contract(d native.InstrumentField) schema.Contract {
	return schema.Contract{
		Gateway:          n.gateway,
		Symbol:           d.InstrumentID,
		Exchange:         exchangeTable.toDomain(d.ExchangeID),
		Name:             n.decode(d.InstrumentName),
		Size:             int64(d.VolumeMultiple),
		PriceTick:        decimal.NewFromFloat(d.PriceTick),
		StrikePrice:      price(d.StrikePrice),
		UnderlyingSymbol: d.UnderlyingInstrID,
		ProductClass:     productClassTable.toDomain(d.ProductClass),
		OptionType:       optionTypeTable.toDomain(d.OptionsType),
	}
}

// account derives the balance from the prior-day figures and today's movements.
func (n normalizer) account(d native.TradingAccountField) schema.Account {
	balance := decimal.NewFromFloat(d.PreBalance).
		Sub(decimal.NewFromFloat(d.PreCredit)).
		Sub(decimal.NewFromFloat(d.PreMortgage)).
		Add(decimal.NewFromFloat(d.Mortgage)).
		Sub(decimal.NewFromFloat(d.Withdraw)).
		Add(decimal.NewFromFloat(d.Deposit)).
		Add(decimal.NewFromFloat(d.CloseProfit)).
		Add(decimal.NewFromFloat(d.PositionProfit)).
		Add(decimal.NewFromFloat(d.CashIn)).
		Sub(decimal.NewFromFloat(d.Commission))

	return schema.Account{
		Gateway:        n.gateway,
		AccountID:      n.gateway + "." + d.AccountID,
		PreBalance:     decimal.NewFromFloat(d.PreBalance),
		Balance:        balance,
		Available:      decimal.NewFromFloat(d.Available),
		Commission:     decimal.NewFromFloat(d.Commission),
		Margin:         decimal.NewFromFloat(d.CurrMargin),
		CloseProfit:    decimal.NewFromFloat(d.CloseProfit),
		PositionProfit: decimal.NewFromFloat(d.PositionProfit),
	}
}

func (n normalizer) errorEntry(info native.RspInfo) schema.ErrorEntry {
	return schema.ErrorEntry{
		Gateway:   n.gateway,
		Timestamp: n.clock(),
		ErrorID:   info.ErrorID,
		ErrorMsg:  n.decode(info.ErrorMsg),
	}
}

func (n normalizer) logEntry(content string) schema.LogEntry {
	return schema.LogEntry{
		Gateway:   n.gateway,
		Timestamp: n.clock(),
		Content:   content,
	}
}

func price(v float64) decimal.Decimal {
	if v >= invalidPriceThreshold || v <= -invalidPriceThreshold {
		return decimal.Zero
	}
	return decimal.NewFromFloat(v)
}
