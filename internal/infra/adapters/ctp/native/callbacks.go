package native

// Callback is one message delivered by a front API handle.
type Callback interface {
	callbackName() string
}

// Name returns the vendor callback name for logging and frame routing.
func Name(cb Callback) string {
	if cb == nil {
		return ""
	}
	return cb.callbackName()
}

type FrontConnected struct{}

type FrontDisconnected struct {
	Reason int
}

type HeartBeatWarning struct {
	TimeLapse int
}

type RspError struct {
	Info      RspInfo
	RequestID int
	Last      bool
}

type RspAuthenticate struct {
	Info      RspInfo
	RequestID int
	Last      bool
}

type RspUserLogin struct {
	Data      RspUserLoginField
	Info      RspInfo
	RequestID int
	Last      bool
}

type RspUserLogout struct {
	Data      UserLogoutField
	Info      RspInfo
	RequestID int
	Last      bool
}

type RspSubMarketData struct {
	InstrumentID string
	Info         RspInfo
	Last         bool
}

type RtnDepthMarketData struct {
	Data DepthMarketDataField
}

type RspSettlementInfoConfirm struct {
	Data      SettlementInfoConfirmField
	Info      RspInfo
	RequestID int
	Last      bool
}

type RspQryInstrument struct {
	Data      InstrumentField
	Info      RspInfo
	RequestID int
	Last      bool
}

type RspQryInvestorPosition struct {
	Data      InvestorPositionField
	Info      RspInfo
	RequestID int
	Last      bool
}

type RspQryTradingAccount struct {
	Data      TradingAccountField
	Info      RspInfo
	RequestID int
	Last      bool
}

// RspOrderInsert is the counter's rejection of an insert request.
type RspOrderInsert struct {
	Data      InputOrderField
	Info      RspInfo
	RequestID int
	Last      bool
}

// ErrRtnOrderInsert is the exchange's rejection of an insert request.
type ErrRtnOrderInsert struct {
	Data InputOrderField
	Info RspInfo
}

type RspOrderAction struct {
	Data      InputOrderActionField
	Info      RspInfo
	RequestID int
	Last      bool
}

type ErrRtnOrderAction struct {
	Data InputOrderActionField
	Info RspInfo
}

type RtnOrder struct {
	Data OrderField
}

type RtnTrade struct {
	Data TradeField
}

func (FrontConnected) callbackName() string           { return "OnFrontConnected" }
func (FrontDisconnected) callbackName() string        { return "OnFrontDisconnected" }
func (HeartBeatWarning) callbackName() string         { return "OnHeartBeatWarning" }
func (RspError) callbackName() string                 { return "OnRspError" }
func (RspAuthenticate) callbackName() string          { return "OnRspAuthenticate" }
func (RspUserLogin) callbackName() string             { return "OnRspUserLogin" }
func (RspUserLogout) callbackName() string            { return "OnRspUserLogout" }
func (RspSubMarketData) callbackName() string         { return "OnRspSubMarketData" }
func (RtnDepthMarketData) callbackName() string       { return "OnRtnDepthMarketData" }
func (RspSettlementInfoConfirm) callbackName() string { return "OnRspSettlementInfoConfirm" }
func (RspQryInstrument) callbackName() string         { return "OnRspQryInstrument" }
func (RspQryInvestorPosition) callbackName() string   { return "OnRspQryInvestorPosition" }
func (RspQryTradingAccount) callbackName() string     { return "OnRspQryTradingAccount" }
func (RspOrderInsert) callbackName() string           { return "OnRspOrderInsert" }
func (ErrRtnOrderInsert) callbackName() string        { return "OnErrRtnOrderInsert" }
func (RspOrderAction) callbackName() string           { return "OnRspOrderAction" }
func (ErrRtnOrderAction) callbackName() string        { return "OnErrRtnOrderAction" }
func (RtnOrder) callbackName() string                 { return "OnRtnOrder" }
func (RtnTrade) callbackName() string                 { return "OnRtnTrade" }
