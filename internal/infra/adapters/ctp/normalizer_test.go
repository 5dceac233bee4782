package ctp

import (
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/simplifiedchinese"

	"github.com/coachpo/ctpgate/internal/domain/schema"
	"github.com/coachpo/ctpgate/internal/infra/adapters/ctp/native"
)

var testNow = time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)

func testNormalizer(encoding string) normalizer {
	return newNormalizer("ctp", func() time.Time { return testNow }, time.UTC, NewTextDecoder(encoding))
}

func TestNormalizerAccountBalance(t *testing.T) {
	acct := testNormalizer("").account(native.TradingAccountField{
		AccountID:      "8001",
		PreBalance:     100000,
		PreCredit:      0,
		PreMortgage:    0,
		Mortgage:       0,
		Withdraw:       0,
		Deposit:        0,
		CloseProfit:    200,
		PositionProfit: 100,
		CashIn:         0,
		Commission:     50,
		Available:      90000,
		CurrMargin:     10250,
	})

	require.True(t, decimal.RequireFromString("100250").Equal(acct.Balance), "balance %s", acct.Balance)
	require.Equal(t, "ctp.8001", acct.AccountID)
	require.True(t, decimal.NewFromInt(90000).Equal(acct.Available))
	require.True(t, decimal.NewFromInt(10250).Equal(acct.Margin))
}

func TestNormalizerAccountBalanceSubtractsWithdrawals(t *testing.T) {
	acct := testNormalizer("").account(native.TradingAccountField{
		PreBalance:  5000,
		PreCredit:   100,
		PreMortgage: 200,
		Mortgage:    300,
		Withdraw:    400,
		Deposit:     500,
		CashIn:      10,
		Commission:  5,
	})
	require.True(t, decimal.NewFromInt(5105).Equal(acct.Balance), "balance %s", acct.Balance)
}

func TestNormalizerTick(t *testing.T) {
	tick, ok := testNormalizer("").tick(native.DepthMarketDataField{
		TradingDay:      "20240306",
		InstrumentID:    "rb2410",
		ExchangeID:      "SHFE",
		LastPrice:       3650,
		Volume:          1200,
		OpenInterest:    88000,
		OpenPrice:       3640,
		HighestPrice:    3660,
		LowestPrice:     3630,
		PreClosePrice:   3645,
		UpperLimitPrice: 3900,
		LowerLimitPrice: 3400,
		UpdateTime:      "09:30:01",
		UpdateMillisec:  500,
		BidPrice1:       3649,
		BidVolume1:      12,
		AskPrice1:       math.MaxFloat64,
		AskVolume1:      0,
	})
	require.True(t, ok)
	require.Equal(t, "rb2410", tick.Symbol)
	require.Equal(t, schema.ExchangeSHFE, tick.Exchange)
	require.Equal(t, time.Date(2024, 3, 5, 9, 30, 1, 500_000_000, time.UTC), tick.Timestamp,
		"timestamp uses the local date, not the trading day")
	require.True(t, decimal.NewFromInt(3650).Equal(tick.LastPrice))
	require.True(t, tick.AskPrice1.IsZero(), "DBL_MAX prices normalize to zero")
	require.Equal(t, int64(12), tick.BidVolume1)
}

func TestNormalizerTickWithoutVolumeIsSuppressed(t *testing.T) {
	_, ok := testNormalizer("").tick(native.DepthMarketDataField{InstrumentID: "rb2410", LastPrice: 3650})
	require.False(t, ok)
}

func TestNormalizerPriceSentinel(t *testing.T) {
	require.True(t, price(math.MaxFloat64).IsZero())
	require.True(t, price(-math.MaxFloat64).IsZero())
	require.True(t, decimal.RequireFromString("3650.5").Equal(price(3650.5)))
}

func TestNormalizerDecodesGBK(t *testing.T) {
	encoded, err := simplifiedchinese.GBK.NewEncoder().String("螺纹钢")
	require.NoError(t, err)

	n := testNormalizer("gbk")
	contract := n.contract(native.InstrumentField{
		InstrumentID:   "rb2410",
		ExchangeID:     "SHFE",
		InstrumentName: encoded,
		ProductClass:   native.ProductFutures,
		VolumeMultiple: 10,
		PriceTick:      1,
	})
	require.Equal(t, "螺纹钢", contract.Name)
	require.Equal(t, schema.ProductFutures, contract.ProductClass)
	require.Equal(t, schema.OptionTypeUnknown, contract.OptionType)
	require.Equal(t, int64(10), contract.Size)

	entry := n.errorEntry(native.RspInfo{ErrorID: 3, ErrorMsg: encoded})
	require.Equal(t, "螺纹钢", entry.ErrorMsg)
	require.Equal(t, 3, entry.ErrorID)
}

func TestNormalizerOrder(t *testing.T) {
	order := testNormalizer("").order(native.OrderField{
		InstrumentID:        "rb2410",
		ExchangeID:          "SHFE",
		OrderRef:            "  12",
		Direction:           native.DirectionSell,
		CombOffsetFlag:      "3",
		OrderStatus:         native.OrderStatusPartTradedQueueing,
		LimitPrice:          3650,
		VolumeTotalOriginal: 5,
		VolumeTraded:        2,
		InsertDate:          "20240305",
		InsertTime:          "09:01:02",
		FrontID:             1,
		SessionID:           7,
	})
	require.Equal(t, "ctp.12", order.OrderID)
	require.Equal(t, "12", order.OrderRef)
	require.Equal(t, schema.DirectionShort, order.Direction)
	require.Equal(t, schema.OffsetCloseToday, order.Offset)
	require.Equal(t, schema.OrderStatusPartTraded, order.Status)
	require.Equal(t, time.Date(2024, 3, 5, 9, 1, 2, 0, time.UTC), order.InsertTime)
	require.True(t, order.CancelTime.IsZero())
}

func TestNormalizerTradeFallsBackToWallClockDate(t *testing.T) {
	trade := testNormalizer("").trade(native.TradeField{
		InstrumentID: "rb2410",
		OrderRef:     "12",
		TradeID:      "  778",
		Direction:    native.DirectionBuy,
		OffsetFlag:   native.OffsetOpen,
		Price:        3651,
		Volume:       2,
		TradeTime:    "09:05:00",
	})
	require.Equal(t, "ctp.12", trade.OrderID)
	require.Equal(t, "ctp.778", trade.TradeID)
	require.Equal(t, schema.OffsetOpen, trade.Offset)
	require.Equal(t, time.Date(2024, 3, 5, 9, 5, 0, 0, time.UTC), trade.TradeTime)
}
