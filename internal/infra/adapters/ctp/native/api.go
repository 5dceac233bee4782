package native

import (
	"fmt"
)

// Spi receives callbacks from a front handle. Bindings call it from their own
// goroutine and expect it to return promptly.
type Spi func(Callback)

// InitOptions configures a front handle before it starts connecting.
type InitOptions struct {
	FrontAddress string
	FlowPath     string
	ResumeType   ResumeType
}

// MdAPI is the market data front handle.
type MdAPI interface {
	// Init registers the front address and starts connecting asynchronously.
	Init(opts InitOptions, spi Spi) error
	ReqUserLogin(req ReqUserLoginField, requestID int) error
	ReqUserLogout(req UserLogoutField, requestID int) error
	SubscribeMarketData(symbols ...string) error
	// Release tears the handle down. No callbacks are delivered afterwards.
	Release()
}

// TdAPI is the trading front handle.
type TdAPI interface {
	Init(opts InitOptions, spi Spi) error
	ReqAuthenticate(req ReqAuthenticateField, requestID int) error
	ReqUserLogin(req ReqUserLoginField, requestID int) error
	ReqUserLogout(req UserLogoutField, requestID int) error
	ReqSettlementInfoConfirm(req SettlementInfoConfirmField, requestID int) error
	ReqQryInstrument(req QryInstrumentField, requestID int) error
	ReqQryTradingAccount(req QryTradingAccountField, requestID int) error
	ReqQryInvestorPosition(req QryInvestorPositionField, requestID int) error
	ReqOrderInsert(req InputOrderField, requestID int) error
	ReqOrderAction(req InputOrderActionField, requestID int) error
	Release()
}

// Factory allocates fresh front handles. A handle is used for one connection only.
type Factory interface {
	NewMdAPI() MdAPI
	NewTdAPI() TdAPI
}

// CallError reports a request the front refused to queue.
type CallError struct {
	Op   string
	Code int
}

func (e *CallError) Error() string {
	return fmt.Sprintf("%s: front returned %d (%s)", e.Op, e.Code, describeResult(e.Code))
}

// ResultError converts a vendor return code into an error. Zero means success.
func ResultError(op string, code int) error {
	if code == ResultOK {
		return nil
	}
	return &CallError{Op: op, Code: code}
}

func describeResult(code int) string {
	switch code {
	case ResultNetwork:
		return "network failure"
	case ResultQueueFull:
		return "pending requests exceed limit"
	case ResultFlowControl:
		return "requests per second exceed limit"
	default:
		return "unknown"
	}
}
