package schema

// Direction captures the side of an order, trade or position.
type Direction string

const (
	DirectionUnknown Direction = "UNKNOWN"
	DirectionLong    Direction = "LONG"
	DirectionShort   Direction = "SHORT"
	DirectionNet     Direction = "NET"
)

// Offset captures whether an order opens or closes exposure.
type Offset string

const (
	OffsetUnknown        Offset = "UNKNOWN"
	OffsetOpen           Offset = "OPEN"
	OffsetClose          Offset = "CLOSE"
	OffsetCloseToday     Offset = "CLOSE_TODAY"
	OffsetCloseYesterday Offset = "CLOSE_YESTERDAY"
)

// Exchange identifies a listing venue.
type Exchange string

const (
	ExchangeUnknown Exchange = "UNKNOWN"
	ExchangeCFFEX   Exchange = "CFFEX"
	ExchangeSHFE    Exchange = "SHFE"
	ExchangeCZCE    Exchange = "CZCE"
	ExchangeDCE     Exchange = "DCE"
	ExchangeINE     Exchange = "INE"
	ExchangeSSE     Exchange = "SSE"
)

// PriceType captures the order pricing instruction.
type PriceType string

const (
	PriceTypeUnknown PriceType = "UNKNOWN"
	PriceTypeLimit   PriceType = "LIMIT"
	PriceTypeMarket  PriceType = "MARKET"
	// PriceTypeFAK fills what it can at the limit and cancels the rest.
	PriceTypeFAK PriceType = "FAK"
	// PriceTypeFOK fills completely at the limit or cancels.
	PriceTypeFOK PriceType = "FOK"
)

// ProductClass captures the contract category.
type ProductClass string

const (
	ProductUnknown     ProductClass = "UNKNOWN"
	ProductFutures     ProductClass = "FUTURES"
	ProductOption      ProductClass = "OPTION"
	ProductCombination ProductClass = "COMBINATION"
)

// OptionType distinguishes calls from puts.
type OptionType string

const (
	OptionTypeUnknown OptionType = "UNKNOWN"
	OptionTypeCall    OptionType = "CALL"
	OptionTypePut     OptionType = "PUT"
)

// OrderStatus captures the order lifecycle state.
type OrderStatus string

const (
	OrderStatusUnknown    OrderStatus = "UNKNOWN"
	OrderStatusSubmitted  OrderStatus = "SUBMITTED"
	OrderStatusPartTraded OrderStatus = "PARTIALLY_FILLED"
	OrderStatusAllTraded  OrderStatus = "FILLED"
	OrderStatusCancelled  OrderStatus = "CANCELLED"
	OrderStatusRejected   OrderStatus = "REJECTED"
)

// Terminal reports whether no further updates are expected for the order.
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderStatusAllTraded, OrderStatusCancelled, OrderStatusRejected:
		return true
	default:
		return false
	}
}
