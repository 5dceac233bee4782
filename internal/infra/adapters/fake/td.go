package fake

import (
	"github.com/coachpo/ctpgate/internal/infra/adapters/ctp/native"
)

// tdFront is a simulated trading handle.
type tdFront struct {
	*front
}

func (t *tdFront) Init(opts native.InitOptions, spi native.Spi) error {
	return t.init(opts, spi)
}

func (t *tdFront) ReqAuthenticate(req native.ReqAuthenticateField, requestID int) error {
	if err := t.ensureConnected("ReqAuthenticate"); err != nil {
		return err
	}
	rsp := native.RspAuthenticate{RequestID: requestID, Last: true}
	if !t.venue.checkAppID(req.AppID) {
		rsp.Info = t.venue.info(errAppNotAuthorized, "app id not authorized")
	}
	t.emit(rsp)
	return nil
}

func (t *tdFront) ReqUserLogin(req native.ReqUserLoginField, requestID int) error {
	return t.login(req, requestID)
}

func (t *tdFront) ReqUserLogout(req native.UserLogoutField, requestID int) error {
	return t.logout(req, requestID)
}

// requireLogin answers requests made before login with an error response.
func (t *tdFront) requireLogin(op string, requestID int) (bool, error) {
	if err := t.ensureConnected(op); err != nil {
		return false, err
	}
	if !t.isLoggedIn() {
		t.emit(native.RspError{Info: t.venue.info(errNotLoggedIn, "not logged in"), RequestID: requestID, Last: true})
		return false, nil
	}
	return true, nil
}

func (t *tdFront) ReqSettlementInfoConfirm(req native.SettlementInfoConfirmField, requestID int) error {
	if ok, err := t.requireLogin("ReqSettlementInfoConfirm", requestID); !ok {
		return err
	}
	now := t.venue.opts.Clock()
	req.ConfirmDate = now.Format("20060102")
	req.ConfirmTime = now.Format("15:04:05")
	t.emit(native.RspSettlementInfoConfirm{Data: req, RequestID: requestID, Last: true})
	return nil
}

func (t *tdFront) ReqQryInstrument(_ native.QryInstrumentField, requestID int) error {
	if ok, err := t.requireLogin("ReqQryInstrument", requestID); !ok {
		return err
	}
	records := t.venue.instrumentRecords()
	if len(records) == 0 {
		t.emit(native.RspQryInstrument{RequestID: requestID, Last: true})
		return nil
	}
	for i, rec := range records {
		t.emit(native.RspQryInstrument{Data: rec, RequestID: requestID, Last: i == len(records)-1})
	}
	return nil
}

func (t *tdFront) ReqQryTradingAccount(req native.QryTradingAccountField, requestID int) error {
	if ok, err := t.requireLogin("ReqQryTradingAccount", requestID); !ok {
		return err
	}
	t.emit(native.RspQryTradingAccount{
		Data:      t.venue.account(req.BrokerID, req.InvestorID),
		RequestID: requestID,
		Last:      true,
	})
	return nil
}

func (t *tdFront) ReqQryInvestorPosition(req native.QryInvestorPositionField, requestID int) error {
	if ok, err := t.requireLogin("ReqQryInvestorPosition", requestID); !ok {
		return err
	}
	records := t.venue.positionRecords(req.BrokerID, req.InvestorID)
	if len(records) == 0 {
		t.emit(native.RspQryInvestorPosition{RequestID: requestID, Last: true})
		return nil
	}
	for i, rec := range records {
		t.emit(native.RspQryInvestorPosition{Data: rec, RequestID: requestID, Last: i == len(records)-1})
	}
	return nil
}

func (t *tdFront) ReqOrderInsert(req native.InputOrderField, requestID int) error {
	if err := t.ensureConnected("ReqOrderInsert"); err != nil {
		return err
	}
	_, _, sessionID, ok := t.session()
	if !ok {
		t.emit(native.RspOrderInsert{Data: req, Info: t.venue.info(errNotLoggedIn, "not logged in"), RequestID: requestID, Last: true})
		return nil
	}
	t.venue.insert(t.front, req, sessionID, requestID)
	return nil
}

func (t *tdFront) ReqOrderAction(req native.InputOrderActionField, requestID int) error {
	if err := t.ensureConnected("ReqOrderAction"); err != nil {
		return err
	}
	if !t.isLoggedIn() {
		t.emit(native.RspOrderAction{Data: req, Info: t.venue.info(errNotLoggedIn, "not logged in"), RequestID: requestID, Last: true})
		return nil
	}
	t.venue.cancel(t.front, req, requestID)
	return nil
}
