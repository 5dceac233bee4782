package ctp

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/coachpo/ctpgate/errs"
	"github.com/coachpo/ctpgate/internal/domain/schema"
	"github.com/coachpo/ctpgate/internal/infra/adapters/ctp/native"
	"github.com/coachpo/ctpgate/internal/infra/config"
)

const (
	waitFor = 2 * time.Second
	pollAt  = 2 * time.Millisecond
)

func testSettings() config.ConnectSettings {
	return config.ConnectSettings{
		UserID:    "8001",
		Password:  "secret",
		BrokerID:  "9999",
		TdAddress: "tcp://127.0.0.1:41205",
		MdAddress: "tcp://127.0.0.1:41213",
	}
}

type harness struct {
	gw      *Gateway
	factory *doubleFactory
	sink    *captureSink
	logger  *captureLogger
}

func newHarness(t *testing.T, settings config.ConnectSettings, mutate ...func(*Options)) *harness {
	t.Helper()
	raw, err := json.Marshal(settings)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "connect.json")
	require.NoError(t, os.WriteFile(path, raw, 0o600))

	h := &harness{factory: &doubleFactory{}, sink: &captureSink{}, logger: &captureLogger{}}
	opts := Options{
		Name:          "ctp",
		ConnectFile:   path,
		Factory:       h.factory,
		Sink:          h.sink,
		Logger:        h.logger,
		Location:      time.UTC,
		Clock:         func() time.Time { return testNow },
		InboxSize:     16,
		QueryInterval: time.Hour,
	}
	for _, fn := range mutate {
		fn(&opts)
	}
	h.gw, err = New(opts)
	require.NoError(t, err)
	t.Cleanup(h.gw.Close)
	return h
}

func (h *harness) loginMd(t *testing.T, md *mdDouble) {
	t.Helper()
	md.push(native.FrontConnected{}, native.RspUserLogin{Last: true})
	require.Eventually(t, func() bool { return h.gw.State().MdState == StateReady }, waitFor, pollAt)
}

func (h *harness) loginTd(t *testing.T, td *tdDouble, data native.RspUserLoginField) {
	t.Helper()
	td.push(native.FrontConnected{}, native.RspUserLogin{Data: data, Last: true})
	require.Eventually(t, func() bool { return h.gw.State().TdState == StateReady }, waitFor, pollAt)
}

// ready connects both sessions and logs them in.
func (h *harness) ready(t *testing.T) (*mdDouble, *tdDouble) {
	t.Helper()
	h.gw.Connect()
	md, td := h.factory.md(0), h.factory.td(0)
	h.loginMd(t, md)
	h.loginTd(t, td, native.RspUserLoginField{FrontID: 1, SessionID: 7, MaxOrderRef: "10"})
	return md, td
}

func limitOrder(symbol string) schema.OrderRequest {
	return schema.OrderRequest{
		Symbol:    symbol,
		Exchange:  schema.ExchangeSHFE,
		Price:     decimal.NewFromInt(3650),
		Volume:    1,
		Direction: schema.DirectionLong,
		Offset:    schema.OffsetOpen,
		PriceType: schema.PriceTypeLimit,
	}
}

func TestNewRequiresFactoryAndSink(t *testing.T) {
	_, err := New(Options{Name: "ctp", Sink: &captureSink{}})
	require.True(t, errs.Is(err, errs.CodeConfig))

	_, err = New(Options{Name: "ctp", Factory: &doubleFactory{}})
	require.True(t, errs.Is(err, errs.CodeConfig))

	_, err = New(Options{Factory: &doubleFactory{}, Sink: &captureSink{}})
	require.True(t, errs.Is(err, errs.CodeConfig))
}

func TestGatewayConnectPassesFrontAddresses(t *testing.T) {
	h := newHarness(t, testSettings(), func(o *Options) { o.FlowPath = "/tmp/flow" })
	h.gw.Connect()

	md, td := h.factory.md(0), h.factory.td(0)
	require.Equal(t, "tcp://127.0.0.1:41213", md.opts.FrontAddress)
	require.Equal(t, "tcp://127.0.0.1:41205", td.opts.FrontAddress)
	require.Equal(t, native.ResumeQuick, td.opts.ResumeType)
	require.Equal(t, "/tmp/flow", md.opts.FlowPath)
	require.Equal(t, StateConnecting, h.gw.State().MdState)
}

func TestGatewayConnectWithIncompleteSettingsLogs(t *testing.T) {
	settings := testSettings()
	settings.Password = ""
	h := newHarness(t, settings)

	h.gw.Connect()

	mds, tds := h.factory.handles()
	require.Zero(t, mds)
	require.Zero(t, tds)
	logs := h.sink.logs()
	require.Len(t, logs, 1)
	require.Contains(t, logs[0], "password")
	require.Empty(t, h.sink.errors())
}

func TestGatewayConnectWithMissingFileLogs(t *testing.T) {
	h := newHarness(t, testSettings(), func(o *Options) { o.ConnectFile = filepath.Join(t.TempDir(), "absent.json") })
	h.gw.Connect()

	mds, _ := h.factory.handles()
	require.Zero(t, mds)
	require.Len(t, h.sink.logs(), 1)
}

func TestGatewaySubscribeBeforeReadyReplaysOnLogin(t *testing.T) {
	h := newHarness(t, testSettings())
	h.gw.Connect()
	md := h.factory.md(0)

	require.NoError(t, h.gw.Subscribe(schema.SubscribeRequest{Symbol: "rb2410"}))
	require.Empty(t, md.subscriptions())

	h.loginMd(t, md)
	require.Eventually(t, func() bool { return len(md.subscriptions()) == 1 }, waitFor, pollAt)
	require.Equal(t, [][]string{{"rb2410"}}, md.subscriptions())

	require.NoError(t, h.gw.Subscribe(schema.SubscribeRequest{Symbol: "ag2412"}))
	require.NoError(t, h.gw.Subscribe(schema.SubscribeRequest{Symbol: "rb2410"}))
	require.Equal(t, [][]string{{"rb2410"}, {"ag2412"}}, md.subscriptions())

	md.push(native.FrontDisconnected{Reason: 0x1001})
	require.Eventually(t, func() bool { return h.gw.State().MdState == StateDisconnected }, waitFor, pollAt)

	h.loginMd(t, md)
	require.Eventually(t, func() bool { return len(md.subscriptions()) == 3 }, waitFor, pollAt)
	require.Equal(t, []string{"rb2410", "ag2412"}, md.subscriptions()[2])
	require.Equal(t, []string{"rb2410", "ag2412"}, h.gw.State().Subscriptions)
}

func TestGatewaySubscribeRejectsBlankSymbol(t *testing.T) {
	h := newHarness(t, testSettings())
	err := h.gw.Subscribe(schema.SubscribeRequest{Symbol: "  "})
	require.True(t, errs.Is(err, errs.CodeInvalid))
}

func TestGatewayTicksSkipZeroVolume(t *testing.T) {
	h := newHarness(t, testSettings())
	h.gw.Connect()
	md := h.factory.md(0)
	h.loginMd(t, md)

	md.push(
		native.RtnDepthMarketData{Data: native.DepthMarketDataField{InstrumentID: "rb2410", LastPrice: 3650, UpdateTime: "09:00:00"}},
		native.RtnDepthMarketData{Data: native.DepthMarketDataField{InstrumentID: "rb2410", LastPrice: 3651, Volume: 3, UpdateTime: "09:00:01"}},
	)
	require.Eventually(t, func() bool { return len(h.sink.ofType(schema.EventTypeTick)) == 1 }, waitFor, pollAt)

	md.push(native.RtnDepthMarketData{Data: native.DepthMarketDataField{InstrumentID: "rb2410", LastPrice: 3652, Volume: 4, UpdateTime: "09:00:02"}})
	require.Eventually(t, func() bool { return len(h.sink.ofType(schema.EventTypeTick)) == 2 }, waitFor, pollAt)

	ticks := h.sink.ofType(schema.EventTypeTick)
	require.Equal(t, "ctp:Tick:rb2410:1", ticks[0].EventID)
	require.Equal(t, uint64(2), ticks[1].Seq)
}

func TestGatewaySendOrderBeforeReadyIsRejected(t *testing.T) {
	h := newHarness(t, testSettings())
	h.gw.Connect()
	td := h.factory.td(0)

	_, err := h.gw.SendOrder(limitOrder("rb2410"))
	require.True(t, errs.Is(err, errs.CodeNotReady))
	require.Zero(t, td.insertCount())

	errors := h.sink.errors()
	require.Len(t, errors, 1)
	require.Equal(t, errorIDNotReady, errors[0].ErrorID)
}

func TestGatewaySendOrderAfterDisconnectIsRejected(t *testing.T) {
	h := newHarness(t, testSettings())
	_, td := h.ready(t)

	td.push(native.FrontDisconnected{Reason: 0x2001})
	require.Eventually(t, func() bool { return h.gw.State().TdState == StateDisconnected }, waitFor, pollAt)

	_, err := h.gw.SendOrder(limitOrder("rb2410"))
	require.True(t, errs.Is(err, errs.CodeNotReady))
	require.Zero(t, td.insertCount())
}

func TestGatewaySendOrderValidatesRequest(t *testing.T) {
	h := newHarness(t, testSettings())
	_, td := h.ready(t)

	req := limitOrder("rb2410")
	req.Volume = 0
	_, err := h.gw.SendOrder(req)
	require.True(t, errs.Is(err, errs.CodeInvalid))
	require.Zero(t, td.insertCount())
}

func TestGatewaySendOrderRejectsUnknownOffset(t *testing.T) {
	h := newHarness(t, testSettings())
	_, td := h.ready(t)

	for _, offset := range []schema.Offset{"open", "", schema.OffsetUnknown} {
		req := limitOrder("rb2410")
		req.Offset = offset
		_, err := h.gw.SendOrder(req)
		require.True(t, errs.Is(err, errs.CodeInvalid), "offset %q", offset)
	}
	req := limitOrder("rb2410")
	req.PriceType = "STOP"
	_, err := h.gw.SendOrder(req)
	require.True(t, errs.Is(err, errs.CodeInvalid))
	require.Zero(t, td.insertCount())

	id, err := h.gw.SendOrder(limitOrder("rb2410"))
	require.NoError(t, err)
	require.Equal(t, "ctp.11", id, "rejected requests do not consume order references")
}

func TestGatewayOrderRefsIncrease(t *testing.T) {
	h := newHarness(t, testSettings())
	_, td := h.ready(t)

	id, err := h.gw.SendOrder(limitOrder("rb2410"))
	require.NoError(t, err)
	require.Equal(t, "ctp.11", id, "login MaxOrderRef is the floor")

	id, err = h.gw.SendOrder(limitOrder("rb2410"))
	require.NoError(t, err)
	require.Equal(t, "ctp.12", id)

	td.push(native.RtnOrder{Data: native.OrderField{
		InstrumentID: "rb2410",
		ExchangeID:   "SHFE",
		OrderRef:     "40",
		OrderStatus:  native.OrderStatusNoTradeQueueing,
		FrontID:      2,
		SessionID:    9,
	}})
	require.Eventually(t, func() bool { return len(h.sink.orders()) == 1 }, waitFor, pollAt)

	id, err = h.gw.SendOrder(limitOrder("rb2410"))
	require.NoError(t, err)
	require.Equal(t, "ctp.41", id, "pushed orders raise the counter")
	require.Equal(t, "41", td.lastInsert().OrderRef)
}

func TestGatewaySendOrderPriceTypes(t *testing.T) {
	cases := []struct {
		name      string
		priceType schema.PriceType
		price     native.Char
		time      native.Char
		volume    native.Char
	}{
		{"limit", schema.PriceTypeLimit, native.PriceTypeLimit, native.TimeConditionGFD, native.VolumeConditionAny},
		{"market", schema.PriceTypeMarket, native.PriceTypeAny, native.TimeConditionGFD, native.VolumeConditionAny},
		{"fak", schema.PriceTypeFAK, native.PriceTypeLimit, native.TimeConditionIOC, native.VolumeConditionAny},
		{"fok", schema.PriceTypeFOK, native.PriceTypeLimit, native.TimeConditionIOC, native.VolumeConditionComplete},
	}

	h := newHarness(t, testSettings())
	_, td := h.ready(t)

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := limitOrder("rb2410")
			req.PriceType = tc.priceType
			_, err := h.gw.SendOrder(req)
			require.NoError(t, err)

			sent := td.lastInsert()
			require.Equal(t, tc.price, sent.OrderPriceType)
			require.Equal(t, tc.time, sent.TimeCondition)
			require.Equal(t, tc.volume, sent.VolumeCondition)
			require.Equal(t, "0", sent.CombOffsetFlag)
			require.Equal(t, native.DirectionBuy, sent.Direction)
			require.Equal(t, "9999", sent.BrokerID)
			require.Equal(t, "8001", sent.InvestorID)
		})
	}
}

func TestGatewaySendOrderFailureReportsFlowControl(t *testing.T) {
	h := newHarness(t, testSettings())
	_, td := h.ready(t)
	td.mu.Lock()
	td.insertErr = native.ResultError("ReqOrderInsert", native.ResultFlowControl)
	td.mu.Unlock()

	_, err := h.gw.SendOrder(limitOrder("rb2410"))
	require.True(t, errs.Is(err, errs.CodeExchange))
	var envelope *errs.E
	require.ErrorAs(t, err, &envelope)
	require.Equal(t, errs.CanonicalFlowControl, envelope.Canonical)

	errors := h.sink.errors()
	require.Len(t, errors, 1)
	require.Equal(t, errorIDRequest, errors[0].ErrorID)
	require.Contains(t, errors[0].ErrorMsg, "-3")
}

func TestGatewayLoadsContractCatalogAfterSettlement(t *testing.T) {
	h := newHarness(t, testSettings())
	_, td := h.ready(t)

	require.Eventually(t, func() bool { return td.count("settlement_confirm") == 1 }, waitFor, pollAt)
	require.Zero(t, td.count("qry_instrument"))

	td.push(native.RspSettlementInfoConfirm{Last: true})
	require.Eventually(t, func() bool { return td.count("qry_instrument") == 1 }, waitFor, pollAt)

	td.push(
		native.RspQryInstrument{Data: native.InstrumentField{InstrumentID: "rb2410", ExchangeID: "SHFE", VolumeMultiple: 10, PriceTick: 1, ProductClass: native.ProductFutures}},
		native.RspQryInstrument{Data: native.InstrumentField{InstrumentID: "IF2406", ExchangeID: "CFFEX", VolumeMultiple: 300, PriceTick: 0.2, ProductClass: native.ProductFutures}, Last: true},
	)
	require.Eventually(t, func() bool { return len(h.sink.ofType(schema.EventTypeContract)) == 2 }, waitFor, pollAt)
	require.Eventually(t, func() bool {
		for _, line := range h.sink.logs() {
			if line == "contract catalog loaded, 2 instruments" {
				return true
			}
		}
		return false
	}, waitFor, pollAt)

	info, ok := h.gw.Contract("IF2406")
	require.True(t, ok)
	require.Equal(t, ContractInfo{Symbol: "IF2406", Exchange: schema.ExchangeCFFEX, Size: 300}, info)

	req := limitOrder("IF2406")
	req.Exchange = ""
	_, err := h.gw.SendOrder(req)
	require.NoError(t, err)
	require.Equal(t, "CFFEX", td.lastInsert().ExchangeID, "exchange comes from the contract cache")
}

func TestGatewaySettlementFailureStillLoadsCatalog(t *testing.T) {
	h := newHarness(t, testSettings())
	_, td := h.ready(t)

	td.push(native.RspSettlementInfoConfirm{Info: native.RspInfo{ErrorID: 42, ErrorMsg: "confirm failed"}, Last: true})
	require.Eventually(t, func() bool { return td.count("qry_instrument") == 1 }, waitFor, pollAt)

	errors := h.sink.errors()
	require.Len(t, errors, 1)
	require.Equal(t, 42, errors[0].ErrorID)
}

func TestGatewayCancelFillsSessionIdentity(t *testing.T) {
	h := newHarness(t, testSettings())
	h.gw.Connect()
	md, td := h.factory.md(0), h.factory.td(0)
	h.loginMd(t, md)
	h.loginTd(t, td, native.RspUserLoginField{FrontID: 3, SessionID: 99})

	id, err := h.gw.SendOrder(limitOrder("rb2410"))
	require.NoError(t, err)
	ref := strings.TrimPrefix(id, "ctp.")

	require.NoError(t, h.gw.CancelOrder(schema.CancelRequest{OrderRef: ref}))
	action := td.lastAction()
	require.Equal(t, 3, action.FrontID)
	require.Equal(t, 99, action.SessionID)
	require.Equal(t, "rb2410", action.InstrumentID)
	require.Equal(t, "SHFE", action.ExchangeID)
	require.Equal(t, native.ActionFlagDelete, action.ActionFlag)

	err = h.gw.CancelOrder(schema.CancelRequest{OrderRef: "777"})
	require.True(t, errs.Is(err, errs.CodeInvalid), "unknown orders need explicit ids")

	require.NoError(t, h.gw.CancelOrder(schema.CancelRequest{
		OrderRef: "777", Symbol: "rb2410", Exchange: schema.ExchangeSHFE, FrontID: 5, SessionID: 6,
	}))
	require.Equal(t, 5, td.lastAction().FrontID)
}

func TestGatewayOrderCacheKeepsLatestSnapshotUntilTerminal(t *testing.T) {
	h := newHarness(t, testSettings())
	_, td := h.ready(t)

	id, err := h.gw.SendOrder(limitOrder("rb2410"))
	require.NoError(t, err)
	ref := strings.TrimPrefix(id, "ctp.")
	order, ok := h.gw.Order(ref)
	require.True(t, ok)
	require.Equal(t, id, order.OrderID)
	require.Equal(t, schema.OrderStatusSubmitted, order.Status)
	require.Equal(t, 1, order.FrontID)
	require.Equal(t, 7, order.SessionID)

	pushed := native.OrderField{
		InstrumentID:        "rb2410",
		ExchangeID:          "SHFE",
		OrderRef:            ref,
		Direction:           native.DirectionBuy,
		CombOffsetFlag:      "0",
		VolumeTotalOriginal: 2,
		VolumeTraded:        1,
		OrderStatus:         native.OrderStatusPartTradedQueueing,
		FrontID:             1,
		SessionID:           7,
	}
	td.push(native.RtnOrder{Data: pushed})
	require.Eventually(t, func() bool {
		o, ok := h.gw.Order(ref)
		return ok && o.TradedVolume == 1
	}, waitFor, pollAt)
	order, _ = h.gw.Order(ref)
	require.Equal(t, schema.OrderStatusPartTraded, order.Status)

	pushed.VolumeTraded = 2
	pushed.OrderStatus = native.OrderStatusAllTraded
	td.push(native.RtnOrder{Data: pushed})
	require.Eventually(t, func() bool {
		_, ok := h.gw.Order(ref)
		return !ok
	}, waitFor, pollAt)

	err = h.gw.CancelOrder(schema.CancelRequest{OrderRef: ref})
	require.True(t, errs.Is(err, errs.CodeInvalid), "filled orders leave the cache")
	require.Zero(t, td.actionCount())
}

func TestGatewayInsertRejectionPublishesOrderAndError(t *testing.T) {
	h := newHarness(t, testSettings())
	_, td := h.ready(t)
	_, err := h.gw.SendOrder(limitOrder("rb2410"))
	require.NoError(t, err)
	_, ok := h.gw.Order("11")
	require.True(t, ok)

	td.push(native.ErrRtnOrderInsert{
		Data: native.InputOrderField{InstrumentID: "rb2410", ExchangeID: "SHFE", OrderRef: "11", Direction: native.DirectionBuy, CombOffsetFlag: "0", VolumeTotalOriginal: 1},
		Info: native.RspInfo{ErrorID: 22, ErrorMsg: "insufficient funds"},
	})
	require.Eventually(t, func() bool { return len(h.sink.errors()) == 1 }, waitFor, pollAt)

	orders := h.sink.orders()
	require.Len(t, orders, 1)
	require.Equal(t, schema.OrderStatusRejected, orders[0].Status)
	require.Equal(t, "ctp.11", orders[0].OrderID)
	require.Equal(t, 1, orders[0].FrontID)
	require.Equal(t, 7, orders[0].SessionID)
	require.Equal(t, 22, h.sink.errors()[0].ErrorID)
	_, ok = h.gw.Order("11")
	require.False(t, ok, "rejected inserts leave the cache")

	envelope := h.logger.envelope(t, "order insert rejected")
	require.Equal(t, errs.CodeExchange, envelope.Code)
	require.Equal(t, errs.CanonicalOrderRejected, envelope.Canonical)
	require.Equal(t, "22", envelope.RawCode)
	require.Equal(t, "insufficient funds", envelope.RawMsg)
	require.Equal(t, "11", envelope.VenueMetadata["order_ref"])
}

func TestGatewayCancelRejectionPublishesError(t *testing.T) {
	h := newHarness(t, testSettings())
	_, td := h.ready(t)

	td.push(native.RspOrderAction{Info: native.RspInfo{ErrorID: 26, ErrorMsg: "already filled"}, Last: true})
	require.Eventually(t, func() bool { return len(h.sink.errors()) == 1 }, waitFor, pollAt)
	require.Empty(t, h.sink.orders())

	envelope := h.logger.envelope(t, "order cancel rejected")
	require.Equal(t, errs.CodeExchange, envelope.Code)
	require.Equal(t, errs.CanonicalCancelRejected, envelope.Canonical)
	require.Equal(t, "26", envelope.RawCode)
	require.Equal(t, "already filled", envelope.RawMsg)
}

func TestGatewayLoginFailureFallsBackToConnected(t *testing.T) {
	h := newHarness(t, testSettings())
	h.gw.Connect()
	td := h.factory.td(0)

	td.push(native.FrontConnected{}, native.RspUserLogin{Info: native.RspInfo{ErrorID: 3, ErrorMsg: "bad password"}, Last: true})
	require.Eventually(t, func() bool { return len(h.sink.errors()) == 1 }, waitFor, pollAt)
	require.Equal(t, StateConnected, h.gw.State().TdState)
	require.Equal(t, 3, h.sink.errors()[0].ErrorID)
	envelope := h.logger.envelope(t, "trading login failed")
	require.Equal(t, errs.CodeAuth, envelope.Code)
	require.Equal(t, "3", envelope.RawCode)
	require.Equal(t, "bad password", envelope.RawMsg)

	h.gw.Connect()
	require.Equal(t, 2, td.count("login"), "connect from Connected retries the login on the same handle")
	_, tds := h.factory.handles()
	require.Equal(t, 1, tds)
}

func TestGatewayAuthenticatesBeforeLogin(t *testing.T) {
	settings := testSettings()
	settings.AuthCode = "0000000000000000"
	settings.AppID = "client_ctpgate_1.0"
	h := newHarness(t, settings)
	h.gw.Connect()
	td := h.factory.td(0)

	td.push(native.FrontConnected{})
	require.Eventually(t, func() bool { return h.gw.State().TdState == StateAuthenticating }, waitFor, pollAt)
	require.Equal(t, 1, td.count("authenticate"))
	require.Zero(t, td.count("login"))

	td.push(native.RspAuthenticate{Last: true})
	require.Eventually(t, func() bool { return td.count("login") == 1 }, waitFor, pollAt)
	require.Equal(t, StateLoggingIn, h.gw.State().TdState)
}

func TestGatewayAuthenticationFailure(t *testing.T) {
	settings := testSettings()
	settings.AuthCode = "0000000000000000"
	h := newHarness(t, settings)
	h.gw.Connect()
	td := h.factory.td(0)

	td.push(native.FrontConnected{}, native.RspAuthenticate{Info: native.RspInfo{ErrorID: 63, ErrorMsg: "app id not authorized"}})
	require.Eventually(t, func() bool { return len(h.sink.errors()) == 1 }, waitFor, pollAt)
	require.Equal(t, StateConnected, h.gw.State().TdState)
	require.Zero(t, td.count("login"))
	require.Equal(t, errs.CodeAuth, h.logger.envelope(t, "trading authentication failed").Code)
}

func TestGatewayQueriesBeforeReadyAreRejected(t *testing.T) {
	h := newHarness(t, testSettings())
	h.gw.Connect()
	td := h.factory.td(0)

	require.True(t, errs.Is(h.gw.QryAccount(), errs.CodeNotReady))
	require.True(t, errs.Is(h.gw.QryPosition(), errs.CodeNotReady))
	require.Zero(t, td.count("qry_account"))
	require.Zero(t, td.count("qry_position"))

	errors := h.sink.errors()
	require.Len(t, errors, 2)
	require.Equal(t, errorIDNotReady, errors[0].ErrorID)
	require.Contains(t, errors[0].ErrorMsg, "qry_account")
	require.Contains(t, errors[1].ErrorMsg, "qry_position")
}

func TestGatewayPeriodicQueriesSkipWhileNotReady(t *testing.T) {
	h := newHarness(t, testSettings(), func(o *Options) {
		o.QueryTrigger = 1
		o.QueryInterval = time.Millisecond
	})
	h.gw.Connect()
	td := h.factory.td(0)
	h.gw.SetQueryEnabled(true)

	time.Sleep(30 * time.Millisecond)
	require.Empty(t, h.sink.errors(), "polling a session that is not Ready is silent")
	require.Zero(t, td.count("qry_account"))

	h.loginMd(t, h.factory.md(0))
	h.loginTd(t, td, native.RspUserLoginField{FrontID: 1, SessionID: 7})
	require.Eventually(t, func() bool {
		return td.count("qry_account") >= 1 && td.count("qry_position") >= 1
	}, waitFor, pollAt)
}

func TestGatewayAccountAndPositionSnapshots(t *testing.T) {
	h := newHarness(t, testSettings())
	_, td := h.ready(t)

	require.NoError(t, h.gw.QryAccount())
	require.NoError(t, h.gw.QryPosition())
	require.Equal(t, 1, td.count("qry_account"))
	require.Equal(t, 1, td.count("qry_position"))

	td.push(
		native.RspQryTradingAccount{Data: native.TradingAccountField{AccountID: "8001", PreBalance: 1000, Available: 900}, Last: true},
		native.RspQryInvestorPosition{Data: native.InvestorPositionField{InstrumentID: "rb2410", PosiDirection: native.PosiDirectionLong, YdPosition: 1, Position: 1}},
		native.RspQryInvestorPosition{Data: native.InvestorPositionField{InstrumentID: "rb2410", PosiDirection: native.PosiDirectionLong, Position: 2, TodayPosition: 2}, Last: true},
	)
	require.Eventually(t, func() bool { return len(h.sink.ofType(schema.EventTypePosition)) == 1 }, waitFor, pollAt)

	accounts := h.sink.ofType(schema.EventTypeAccount)
	require.Len(t, accounts, 1)
	require.Equal(t, "ctp.8001", accounts[0].Payload.(schema.Account).AccountID)

	pos := h.sink.ofType(schema.EventTypePosition)[0].Payload.(schema.Position)
	require.Equal(t, schema.DirectionLong, pos.Direction)
	require.Equal(t, int64(3), pos.Volume)
}

func TestGatewayPeriodicQueriesRotate(t *testing.T) {
	h := newHarness(t, testSettings(), func(o *Options) {
		o.QueryTrigger = 1
		o.QueryInterval = 2 * time.Millisecond
	})
	_, td := h.ready(t)
	require.Zero(t, td.count("qry_account"))

	h.gw.SetQueryEnabled(true)
	require.True(t, h.gw.State().QueryEnabled)
	require.Eventually(t, func() bool {
		return td.count("qry_account") >= 1 && td.count("qry_position") >= 1
	}, waitFor, pollAt)
}

func TestGatewayLogoutReturnsToConnected(t *testing.T) {
	h := newHarness(t, testSettings())
	md, td := h.ready(t)

	require.NoError(t, h.gw.Logout())
	require.Equal(t, 1, md.count("logout"))
	require.Equal(t, 1, td.count("logout"))

	md.push(native.RspUserLogout{Last: true})
	td.push(native.RspUserLogout{Last: true})
	require.Eventually(t, func() bool {
		st := h.gw.State()
		return st.MdState == StateConnected && st.TdState == StateConnected
	}, waitFor, pollAt)

	_, err := h.gw.SendOrder(limitOrder("rb2410"))
	require.True(t, errs.Is(err, errs.CodeNotReady))
}

func TestGatewayLogoutReportsBothSessions(t *testing.T) {
	h := newHarness(t, testSettings())
	h.gw.Connect()

	err := h.gw.Logout()
	require.True(t, errs.Is(err, errs.CodeNotReady))
	require.ErrorContains(t, err, "md_logout")
	require.ErrorContains(t, err, "td_logout")
	require.Len(t, h.sink.errors(), 2)
}

func TestGatewayCloseReleasesHandles(t *testing.T) {
	defer goleak.VerifyNone(t)

	h := newHarness(t, testSettings())
	md, td := h.ready(t)
	h.gw.SetQueryEnabled(true)

	h.gw.Close()
	h.gw.Close()

	require.True(t, md.isReleased())
	require.True(t, td.isReleased())
	st := h.gw.State()
	require.Equal(t, StateDisconnected, st.MdState)
	require.Equal(t, StateDisconnected, st.TdState)

	md.push(native.FrontConnected{})
	h.gw.Connect()
	mds, _ := h.factory.handles()
	require.Equal(t, 1, mds, "a closed gateway does not reconnect")
}
