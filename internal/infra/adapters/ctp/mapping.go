package ctp

import (
	"github.com/coachpo/ctpgate/internal/domain/schema"
	"github.com/coachpo/ctpgate/internal/infra/adapters/ctp/native"
)

// codeTable is a bidirectional mapping between a domain enum and a native code.
// The reverse side is built once from the forward side.
type codeTable[D comparable, N comparable] struct {
	forward map[D]N
	reverse map[N]D
	unknown D
}

func newCodeTable[D comparable, N comparable](unknown D, forward map[D]N) codeTable[D, N] {
	reverse := make(map[N]D, len(forward))
	for d, n := range forward {
		reverse[n] = d
	}
	return codeTable[D, N]{forward: forward, reverse: reverse, unknown: unknown}
}

// toNative returns the native code for a domain value.
func (t codeTable[D, N]) toNative(d D) (N, bool) {
	n, ok := t.forward[d]
	return n, ok
}

// toDomain returns the domain value for a native code, or the unknown variant.
func (t codeTable[D, N]) toDomain(n N) D {
	if d, ok := t.reverse[n]; ok {
		return d
	}
	return t.unknown
}

var (
	priceTypeTable = newCodeTable(schema.PriceTypeUnknown, map[schema.PriceType]native.Char{
		schema.PriceTypeLimit:  native.PriceTypeLimit,
		schema.PriceTypeMarket: native.PriceTypeAny,
	})

	directionTable = newCodeTable(schema.DirectionUnknown, map[schema.Direction]native.Char{
		schema.DirectionLong:  native.DirectionBuy,
		schema.DirectionShort: native.DirectionSell,
	})

	offsetTable = newCodeTable(schema.OffsetUnknown, map[schema.Offset]native.Char{
		schema.OffsetOpen:           native.OffsetOpen,
		schema.OffsetClose:          native.OffsetClose,
		schema.OffsetCloseToday:     native.OffsetCloseToday,
		schema.OffsetCloseYesterday: native.OffsetCloseYesterday,
	})

	exchangeTable = newCodeTable(schema.ExchangeUnknown, map[schema.Exchange]string{
		schema.ExchangeCFFEX: "CFFEX",
		schema.ExchangeSHFE:  "SHFE",
		schema.ExchangeCZCE:  "CZCE",
		schema.ExchangeDCE:   "DCE",
		schema.ExchangeINE:   "INE",
		schema.ExchangeSSE:   "SSE",
	})

	posiDirectionTable = newCodeTable(schema.DirectionUnknown, map[schema.Direction]native.Char{
		schema.DirectionNet:   native.PosiDirectionNet,
		schema.DirectionLong:  native.PosiDirectionLong,
		schema.DirectionShort: native.PosiDirectionShort,
	})

	productClassTable = newCodeTable(schema.ProductUnknown, map[schema.ProductClass]native.Char{
		schema.ProductFutures:     native.ProductFutures,
		schema.ProductOption:      native.ProductOptions,
		schema.ProductCombination: native.ProductCombination,
	})

	optionTypeTable = newCodeTable(schema.OptionTypeUnknown, map[schema.OptionType]native.Char{
		schema.OptionTypeCall: native.OptionsCall,
		schema.OptionTypePut:  native.OptionsPut,
	})

	orderStatusTable = newCodeTable(schema.OrderStatusUnknown, map[schema.OrderStatus]native.Char{
		schema.OrderStatusAllTraded:  native.OrderStatusAllTraded,
		schema.OrderStatusPartTraded: native.OrderStatusPartTradedQueueing,
		schema.OrderStatusSubmitted:  native.OrderStatusNoTradeQueueing,
		schema.OrderStatusCancelled:  native.OrderStatusCanceled,
	})
)

// offsetFromComb maps the first flag of a combined offset string.
func offsetFromComb(comb string) schema.Offset {
	if comb == "" {
		return schema.OffsetUnknown
	}
	return offsetTable.toDomain(native.Char(comb[0]))
}

// exchangeCode returns the native exchange id; unknown exchanges map to the empty id.
func exchangeCode(ex schema.Exchange) string {
	code, _ := exchangeTable.toNative(ex)
	return code
}
