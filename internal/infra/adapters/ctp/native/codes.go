package native

// Order price types.
const (
	PriceTypeAny   Char = '1'
	PriceTypeLimit Char = '2'
)

// Order and trade directions.
const (
	DirectionBuy  Char = '0'
	DirectionSell Char = '1'
)

// Offset flags. CombOffsetFlag carries these as the first byte of a string.
const (
	OffsetOpen           Char = '0'
	OffsetClose          Char = '1'
	OffsetForceClose     Char = '2'
	OffsetCloseToday     Char = '3'
	OffsetCloseYesterday Char = '4'
)

// Position directions.
const (
	PosiDirectionNet   Char = '1'
	PosiDirectionLong  Char = '2'
	PosiDirectionShort Char = '3'
)

// Product classes.
const (
	ProductFutures     Char = '1'
	ProductOptions     Char = '2'
	ProductCombination Char = '3'
)

// Option types.
const (
	OptionsCall Char = '1'
	OptionsPut  Char = '2'
)

// Order statuses.
const (
	OrderStatusAllTraded             Char = '0'
	OrderStatusPartTradedQueueing    Char = '1'
	OrderStatusPartTradedNotQueueing Char = '2'
	OrderStatusNoTradeQueueing       Char = '3'
	OrderStatusNoTradeNotQueueing    Char = '4'
	OrderStatusCanceled              Char = '5'
	OrderStatusUnknown               Char = 'a'
)

// Time conditions.
const (
	TimeConditionIOC Char = '1'
	TimeConditionGFD Char = '3'
)

// Volume conditions.
const (
	VolumeConditionAny      Char = '1'
	VolumeConditionMin      Char = '2'
	VolumeConditionComplete Char = '3'
)

const (
	HedgeSpeculation        Char = '1'
	ContingentImmediately   Char = '1'
	ForceCloseNotForceClose Char = '0'
	ActionFlagDelete        Char = '0'
)

// ResumeType selects how private and public flows are replayed on connect.
type ResumeType int

const (
	ResumeRestart ResumeType = 0
	ResumeResume  ResumeType = 1
	ResumeQuick   ResumeType = 2
)

// Request return codes reported by the front API.
const (
	ResultOK          = 0
	ResultNetwork     = -1
	ResultQueueFull   = -2
	ResultFlowControl = -3
)
