package bridge

import (
	"github.com/coachpo/ctpgate/internal/infra/adapters/ctp/native"
)

type tdAPI struct {
	*link
}

func (t *tdAPI) Init(opts native.InitOptions, spi native.Spi) error {
	return t.init(opts, spi)
}

func (t *tdAPI) ReqAuthenticate(req native.ReqAuthenticateField, requestID int) error {
	return t.send("ReqAuthenticate", requestID, req)
}

func (t *tdAPI) ReqUserLogin(req native.ReqUserLoginField, requestID int) error {
	return t.send("ReqUserLogin", requestID, req)
}

func (t *tdAPI) ReqUserLogout(req native.UserLogoutField, requestID int) error {
	return t.send("ReqUserLogout", requestID, req)
}

func (t *tdAPI) ReqSettlementInfoConfirm(req native.SettlementInfoConfirmField, requestID int) error {
	return t.send("ReqSettlementInfoConfirm", requestID, req)
}

func (t *tdAPI) ReqQryInstrument(req native.QryInstrumentField, requestID int) error {
	return t.query("ReqQryInstrument", requestID, req)
}

func (t *tdAPI) ReqQryTradingAccount(req native.QryTradingAccountField, requestID int) error {
	return t.query("ReqQryTradingAccount", requestID, req)
}

func (t *tdAPI) ReqQryInvestorPosition(req native.QryInvestorPositionField, requestID int) error {
	return t.query("ReqQryInvestorPosition", requestID, req)
}

func (t *tdAPI) ReqOrderInsert(req native.InputOrderField, requestID int) error {
	return t.send("ReqOrderInsert", requestID, req)
}

func (t *tdAPI) ReqOrderAction(req native.InputOrderActionField, requestID int) error {
	return t.send("ReqOrderAction", requestID, req)
}
