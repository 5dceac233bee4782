package bridge

import (
	"github.com/coachpo/ctpgate/internal/infra/adapters/ctp/native"
)

type mdAPI struct {
	*link
}

func (m *mdAPI) Init(opts native.InitOptions, spi native.Spi) error {
	return m.init(opts, spi)
}

func (m *mdAPI) ReqUserLogin(req native.ReqUserLoginField, requestID int) error {
	return m.send("ReqUserLogin", requestID, req)
}

func (m *mdAPI) ReqUserLogout(req native.UserLogoutField, requestID int) error {
	return m.send("ReqUserLogout", requestID, req)
}

func (m *mdAPI) SubscribeMarketData(symbols ...string) error {
	if len(symbols) == 0 {
		return nil
	}
	return m.send("SubscribeMarketData", 0, subscribeData{InstrumentIDs: symbols})
}
