// Package native describes the callback-driven front API consumed by the CTP gateway.
//
// Field names follow the vendor structures so bindings can marshal them without a
// translation table. Text fields carry whatever encoding the front produces; the
// gateway decodes them at the normalization boundary.
package native

import (
	json "github.com/goccy/go-json"
)

// Char is a single-byte vendor enumeration value.
type Char byte

func (c Char) String() string {
	if c == 0 {
		return ""
	}
	return string(rune(c))
}

// MarshalJSON encodes the code as a one-character string.
func (c Char) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

// UnmarshalJSON accepts a one-character string; longer strings keep the first byte.
func (c *Char) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*c = 0
		return nil
	}
	*c = Char(s[0])
	return nil
}

// RspInfo is the error block attached to responses.
type RspInfo struct {
	ErrorID  int    `json:"ErrorID"`
	ErrorMsg string `json:"ErrorMsg"`
}

// Failed reports whether the response carries a nonzero error id.
func (r RspInfo) Failed() bool { return r.ErrorID != 0 }

type ReqAuthenticateField struct {
	BrokerID        string `json:"BrokerID"`
	UserID          string `json:"UserID"`
	UserProductInfo string `json:"UserProductInfo"`
	AuthCode        string `json:"AuthCode"`
	AppID           string `json:"AppID"`
}

type ReqUserLoginField struct {
	BrokerID        string `json:"BrokerID"`
	UserID          string `json:"UserID"`
	Password        string `json:"Password"`
	UserProductInfo string `json:"UserProductInfo"`
}

type RspUserLoginField struct {
	TradingDay  string `json:"TradingDay"`
	LoginTime   string `json:"LoginTime"`
	BrokerID    string `json:"BrokerID"`
	UserID      string `json:"UserID"`
	SystemName  string `json:"SystemName"`
	FrontID     int    `json:"FrontID"`
	SessionID   int    `json:"SessionID"`
	MaxOrderRef string `json:"MaxOrderRef"`
}

type UserLogoutField struct {
	BrokerID string `json:"BrokerID"`
	UserID   string `json:"UserID"`
}

type SettlementInfoConfirmField struct {
	BrokerID    string `json:"BrokerID"`
	InvestorID  string `json:"InvestorID"`
	ConfirmDate string `json:"ConfirmDate"`
	ConfirmTime string `json:"ConfirmTime"`
}

type QryInstrumentField struct {
	InstrumentID string `json:"InstrumentID"`
	ExchangeID   string `json:"ExchangeID"`
}

type QryTradingAccountField struct {
	BrokerID   string `json:"BrokerID"`
	InvestorID string `json:"InvestorID"`
}

type QryInvestorPositionField struct {
	BrokerID     string `json:"BrokerID"`
	InvestorID   string `json:"InvestorID"`
	InstrumentID string `json:"InstrumentID"`
}

type DepthMarketDataField struct {
	TradingDay         string  `json:"TradingDay"`
	ActionDay          string  `json:"ActionDay"`
	InstrumentID       string  `json:"InstrumentID"`
	ExchangeID         string  `json:"ExchangeID"`
	LastPrice          float64 `json:"LastPrice"`
	PreSettlementPrice float64 `json:"PreSettlementPrice"`
	PreClosePrice      float64 `json:"PreClosePrice"`
	PreOpenInterest    float64 `json:"PreOpenInterest"`
	OpenPrice          float64 `json:"OpenPrice"`
	HighestPrice       float64 `json:"HighestPrice"`
	LowestPrice        float64 `json:"LowestPrice"`
	Volume             int     `json:"Volume"`
	Turnover           float64 `json:"Turnover"`
	OpenInterest       float64 `json:"OpenInterest"`
	UpperLimitPrice    float64 `json:"UpperLimitPrice"`
	LowerLimitPrice    float64 `json:"LowerLimitPrice"`
	UpdateTime         string  `json:"UpdateTime"`
	UpdateMillisec     int     `json:"UpdateMillisec"`
	BidPrice1          float64 `json:"BidPrice1"`
	BidVolume1         int     `json:"BidVolume1"`
	AskPrice1          float64 `json:"AskPrice1"`
	AskVolume1         int     `json:"AskVolume1"`
}

type InputOrderField struct {
	BrokerID            string  `json:"BrokerID"`
	InvestorID          string  `json:"InvestorID"`
	UserID              string  `json:"UserID"`
	InstrumentID        string  `json:"InstrumentID"`
	ExchangeID          string  `json:"ExchangeID"`
	OrderRef            string  `json:"OrderRef"`
	OrderPriceType      Char    `json:"OrderPriceType"`
	Direction           Char    `json:"Direction"`
	CombOffsetFlag      string  `json:"CombOffsetFlag"`
	CombHedgeFlag       string  `json:"CombHedgeFlag"`
	LimitPrice          float64 `json:"LimitPrice"`
	VolumeTotalOriginal int     `json:"VolumeTotalOriginal"`
	TimeCondition       Char    `json:"TimeCondition"`
	VolumeCondition     Char    `json:"VolumeCondition"`
	MinVolume           int     `json:"MinVolume"`
	ContingentCondition Char    `json:"ContingentCondition"`
	ForceCloseReason    Char    `json:"ForceCloseReason"`
	IsAutoSuspend       int     `json:"IsAutoSuspend"`
	RequestID           int     `json:"RequestID"`
}

type InputOrderActionField struct {
	BrokerID       string `json:"BrokerID"`
	InvestorID     string `json:"InvestorID"`
	UserID         string `json:"UserID"`
	OrderActionRef int    `json:"OrderActionRef"`
	OrderRef       string `json:"OrderRef"`
	RequestID      int    `json:"RequestID"`
	FrontID        int    `json:"FrontID"`
	SessionID      int    `json:"SessionID"`
	ExchangeID     string `json:"ExchangeID"`
	OrderSysID     string `json:"OrderSysID"`
	ActionFlag     Char   `json:"ActionFlag"`
	InstrumentID   string `json:"InstrumentID"`
}

type OrderField struct {
	BrokerID            string  `json:"BrokerID"`
	InvestorID          string  `json:"InvestorID"`
	InstrumentID        string  `json:"InstrumentID"`
	ExchangeID          string  `json:"ExchangeID"`
	OrderRef            string  `json:"OrderRef"`
	OrderSysID          string  `json:"OrderSysID"`
	OrderPriceType      Char    `json:"OrderPriceType"`
	Direction           Char    `json:"Direction"`
	CombOffsetFlag      string  `json:"CombOffsetFlag"`
	LimitPrice          float64 `json:"LimitPrice"`
	VolumeTotalOriginal int     `json:"VolumeTotalOriginal"`
	VolumeTraded        int     `json:"VolumeTraded"`
	OrderStatus         Char    `json:"OrderStatus"`
	InsertDate          string  `json:"InsertDate"`
	InsertTime          string  `json:"InsertTime"`
	CancelTime          string  `json:"CancelTime"`
	FrontID             int     `json:"FrontID"`
	SessionID           int     `json:"SessionID"`
	StatusMsg           string  `json:"StatusMsg"`
}

type TradeField struct {
	BrokerID     string  `json:"BrokerID"`
	InvestorID   string  `json:"InvestorID"`
	InstrumentID string  `json:"InstrumentID"`
	ExchangeID   string  `json:"ExchangeID"`
	OrderRef     string  `json:"OrderRef"`
	OrderSysID   string  `json:"OrderSysID"`
	TradeID      string  `json:"TradeID"`
	Direction    Char    `json:"Direction"`
	OffsetFlag   Char    `json:"OffsetFlag"`
	Price        float64 `json:"Price"`
	Volume       int     `json:"Volume"`
	TradeDate    string  `json:"TradeDate"`
	TradeTime    string  `json:"TradeTime"`
}

type InstrumentField struct {
	InstrumentID      string  `json:"InstrumentID"`
	ExchangeID        string  `json:"ExchangeID"`
	InstrumentName    string  `json:"InstrumentName"`
	ProductClass      Char    `json:"ProductClass"`
	VolumeMultiple    int     `json:"VolumeMultiple"`
	PriceTick         float64 `json:"PriceTick"`
	StrikePrice       float64 `json:"StrikePrice"`
	UnderlyingInstrID string  `json:"UnderlyingInstrID"`
	OptionsType       Char    `json:"OptionsType"`
}

type InvestorPositionField struct {
	InstrumentID   string  `json:"InstrumentID"`
	BrokerID       string  `json:"BrokerID"`
	InvestorID     string  `json:"InvestorID"`
	ExchangeID     string  `json:"ExchangeID"`
	PosiDirection  Char    `json:"PosiDirection"`
	YdPosition     int     `json:"YdPosition"`
	Position       int     `json:"Position"`
	TodayPosition  int     `json:"TodayPosition"`
	LongFrozen     int     `json:"LongFrozen"`
	ShortFrozen    int     `json:"ShortFrozen"`
	PositionProfit float64 `json:"PositionProfit"`
	PositionCost   float64 `json:"PositionCost"`
}

type TradingAccountField struct {
	BrokerID       string  `json:"BrokerID"`
	AccountID      string  `json:"AccountID"`
	PreMortgage    float64 `json:"PreMortgage"`
	PreCredit      float64 `json:"PreCredit"`
	PreDeposit     float64 `json:"PreDeposit"`
	PreBalance     float64 `json:"PreBalance"`
	PreMargin      float64 `json:"PreMargin"`
	Deposit        float64 `json:"Deposit"`
	Withdraw       float64 `json:"Withdraw"`
	FrozenMargin   float64 `json:"FrozenMargin"`
	CurrMargin     float64 `json:"CurrMargin"`
	Commission     float64 `json:"Commission"`
	CloseProfit    float64 `json:"CloseProfit"`
	PositionProfit float64 `json:"PositionProfit"`
	Balance        float64 `json:"Balance"`
	Available      float64 `json:"Available"`
	Mortgage       float64 `json:"Mortgage"`
	CashIn         float64 `json:"CashIn"`
	TradingDay     string  `json:"TradingDay"`
}
