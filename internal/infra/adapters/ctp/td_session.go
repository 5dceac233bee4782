package ctp

import (
	"strconv"
	"strings"

	"github.com/coachpo/ctpgate/errs"
	"github.com/coachpo/ctpgate/internal/domain/schema"
	"github.com/coachpo/ctpgate/internal/infra/adapters/ctp/native"
	"github.com/coachpo/ctpgate/internal/infra/config"
)

// liveOrder is the latest snapshot of an order that can still be cancelled,
// with the native exchange code the cancel request needs.
type liveOrder struct {
	snapshot schema.Order
	exchange string
}

// contractInfo is the cached subset of an instrument record.
type contractInfo struct {
	exchange string
	size     int64
}

// tdSession drives the trading front.
type tdSession struct {
	session[native.TdAPI]

	positions *positionAggregator

	// Guarded by session.mu.
	frontID   int
	sessionID int
	orderRef  int64
	orders    map[string]liveOrder
	contracts map[string]contractInfo
}

func newTdSession(out *outlet, factory native.Factory, inboxSize int, flowPath string) *tdSession {
	t := &tdSession{
		positions: newPositionAggregator(out.name),
		orders:    make(map[string]liveOrder),
		contracts: make(map[string]contractInfo),
	}
	t.kind = "td"
	t.out = out
	t.inboxSize = inboxSize
	t.flowPath = flowPath
	t.newAPI = factory.NewTdAPI
	t.initAPI = func(api native.TdAPI, opts native.InitOptions, spi native.Spi) error {
		return api.Init(opts, spi)
	}
	t.address = func(s config.ConnectSettings) string { return s.TdAddress }
	t.handle = t.onCallback
	return t
}

func (t *tdSession) Connect(settings config.ConnectSettings) {
	t.connect(settings, t.authenticateOrLogin)
}

func (t *tdSession) Close() {
	t.close()
	t.positions.reset()
}

// SendOrder assigns the next order reference and submits the insert request.
// The returned id is "<gateway>.<ref>" and is known before any acknowledgement.
func (t *tdSession) SendOrder(req schema.OrderRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}

	t.mu.Lock()
	c := t.conn
	if t.state != StateReady || c == nil {
		t.mu.Unlock()
		return "", t.out.notReady("send_order")
	}
	t.orderRef++
	ref := strconv.FormatInt(t.orderRef, 10)
	settings := t.settings
	exchange := exchangeCode(req.Exchange)
	if info, ok := t.contracts[req.Symbol]; ok {
		exchange = info.exchange
	}
	t.orders[ref] = liveOrder{
		snapshot: schema.Order{
			Gateway:     t.out.name,
			OrderID:     t.out.norm.orderID(ref),
			OrderRef:    ref,
			Symbol:      req.Symbol,
			Exchange:    exchangeTable.toDomain(exchange),
			Direction:   req.Direction,
			Offset:      req.Offset,
			Status:      schema.OrderStatusSubmitted,
			Price:       req.Price,
			TotalVolume: req.Volume,
			InsertTime:  t.out.norm.clock(),
			FrontID:     t.frontID,
			SessionID:   t.sessionID,
		},
		exchange: exchange,
	}
	t.mu.Unlock()

	direction, _ := directionTable.toNative(req.Direction)
	offset, _ := offsetTable.toNative(req.Offset)
	field := native.InputOrderField{
		BrokerID:            settings.BrokerID,
		InvestorID:          settings.UserID,
		UserID:              settings.UserID,
		InstrumentID:        req.Symbol,
		ExchangeID:          exchange,
		OrderRef:            ref,
		Direction:           direction,
		CombOffsetFlag:      offset.String(),
		CombHedgeFlag:       native.HedgeSpeculation.String(),
		LimitPrice:          req.Price.InexactFloat64(),
		VolumeTotalOriginal: int(req.Volume),
		OrderPriceType:      native.PriceTypeLimit,
		TimeCondition:       native.TimeConditionGFD,
		VolumeCondition:     native.VolumeConditionAny,
		MinVolume:           1,
		ContingentCondition: native.ContingentImmediately,
		ForceCloseReason:    native.ForceCloseNotForceClose,
		IsAutoSuspend:       0,
	}
	applyPriceType(&field, req.PriceType)
	field.RequestID = t.nextRequestID()

	if err := c.api.ReqOrderInsert(field, field.RequestID); err != nil {
		t.forget(ref)
		return "", t.out.requestFailed("send_order", err)
	}
	t.out.requestSent("send_order")
	return t.out.norm.orderID(ref), nil
}

// applyPriceType maps the requested price type. FAK and FOK are immediate limit
// orders that differ only in the volume condition.
func applyPriceType(field *native.InputOrderField, pt schema.PriceType) {
	switch pt {
	case schema.PriceTypeFAK:
		field.OrderPriceType = native.PriceTypeLimit
		field.TimeCondition = native.TimeConditionIOC
		field.VolumeCondition = native.VolumeConditionAny
	case schema.PriceTypeFOK:
		field.OrderPriceType = native.PriceTypeLimit
		field.TimeCondition = native.TimeConditionIOC
		field.VolumeCondition = native.VolumeConditionComplete
	default:
		if code, ok := priceTypeTable.toNative(pt); ok {
			field.OrderPriceType = code
		}
	}
}

// CancelOrder submits a delete action. Front and session ids missing from the
// request are filled from the orders placed by this session.
func (t *tdSession) CancelOrder(req schema.CancelRequest) error {
	ref := strings.TrimSpace(req.OrderRef)
	if ref == "" {
		return errs.New(t.out.name, errs.CodeInvalid, errs.WithMessage("cancel: order reference required"))
	}

	t.mu.Lock()
	c := t.conn
	if t.state != StateReady || c == nil {
		t.mu.Unlock()
		return t.out.notReady("cancel_order")
	}
	settings := t.settings
	symbol := req.Symbol
	exchange := exchangeCode(req.Exchange)
	frontID, sessionID := req.FrontID, req.SessionID
	if known, ok := t.orders[ref]; ok {
		if frontID == 0 && sessionID == 0 {
			frontID, sessionID = known.snapshot.FrontID, known.snapshot.SessionID
		}
		if symbol == "" {
			symbol = known.snapshot.Symbol
		}
		if exchange == "" {
			exchange = known.exchange
		}
	}
	if info, ok := t.contracts[symbol]; ok && exchange == "" {
		exchange = info.exchange
	}
	t.mu.Unlock()

	if symbol == "" || exchange == "" || frontID == 0 || sessionID == 0 {
		return errs.New(t.out.name, errs.CodeInvalid,
			errs.WithMessage("cancel: symbol, exchange, front id and session id required for order "+ref))
	}

	field := native.InputOrderActionField{
		BrokerID:     settings.BrokerID,
		InvestorID:   settings.UserID,
		UserID:       settings.UserID,
		OrderRef:     ref,
		FrontID:      frontID,
		SessionID:    sessionID,
		ExchangeID:   exchange,
		InstrumentID: symbol,
		ActionFlag:   native.ActionFlagDelete,
		RequestID:    t.nextRequestID(),
	}
	if err := c.api.ReqOrderAction(field, field.RequestID); err != nil {
		return t.out.requestFailed("cancel_order", err)
	}
	t.out.requestSent("cancel_order")
	return nil
}

// QryAccount requests one funds snapshot.
func (t *tdSession) QryAccount() error {
	c, settings, ok := t.liveSettings()
	if !ok {
		return t.out.notReady("qry_account")
	}
	req := native.QryTradingAccountField{BrokerID: settings.BrokerID, InvestorID: settings.UserID}
	if err := c.api.ReqQryTradingAccount(req, t.nextRequestID()); err != nil {
		return t.out.requestFailed("qry_account", err)
	}
	t.out.requestSent("qry_account")
	return nil
}

// QryPosition requests every position record. The aggregator emits the merged
// positions when the last page arrives.
func (t *tdSession) QryPosition() error {
	c, settings, ok := t.liveSettings()
	if !ok {
		return t.out.notReady("qry_position")
	}
	req := native.QryInvestorPositionField{BrokerID: settings.BrokerID, InvestorID: settings.UserID}
	if err := c.api.ReqQryInvestorPosition(req, t.nextRequestID()); err != nil {
		return t.out.requestFailed("qry_position", err)
	}
	t.out.requestSent("qry_position")
	return nil
}

// Logout asks the front to end the login. The session returns to Connected on success.
func (t *tdSession) Logout() error {
	c, settings, ok := t.liveSettings()
	if !ok {
		return t.out.notReady("td_logout")
	}
	req := native.UserLogoutField{BrokerID: settings.BrokerID, UserID: settings.UserID}
	if err := c.api.ReqUserLogout(req, t.nextRequestID()); err != nil {
		return t.out.requestFailed("td_logout", err)
	}
	return nil
}

// Order returns the latest snapshot of an order that is still open.
func (t *tdSession) Order(ref string) (schema.Order, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	o, ok := t.orders[ref]
	return o.snapshot, ok
}

func (t *tdSession) forget(ref string) {
	t.mu.Lock()
	delete(t.orders, ref)
	t.mu.Unlock()
}

// Contract returns the cached exchange and size for a symbol.
func (t *tdSession) Contract(symbol string) (contractInfo, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	info, ok := t.contracts[symbol]
	return info, ok
}

func (t *tdSession) liveSettings() (*conn[native.TdAPI], config.ConnectSettings, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != StateReady || t.conn == nil {
		return nil, config.ConnectSettings{}, false
	}
	return t.conn, t.settings, true
}

func (t *tdSession) authenticateOrLogin(c *conn[native.TdAPI]) {
	t.mu.Lock()
	needsAuth := t.settings.RequiresAuth()
	t.mu.Unlock()
	if needsAuth {
		t.authenticate(c)
		return
	}
	t.login(c)
}

func (t *tdSession) authenticate(c *conn[native.TdAPI]) {
	settings, ok := t.advance(c, StateAuthenticating, StateConnected)
	if !ok {
		return
	}
	req := native.ReqAuthenticateField{
		BrokerID:        settings.BrokerID,
		UserID:          settings.UserID,
		UserProductInfo: settings.UserProductInfo,
		AuthCode:        settings.AuthCode,
		AppID:           settings.AppID,
	}
	if err := c.api.ReqAuthenticate(req, t.nextRequestID()); err != nil {
		t.fallBack(c)
		_ = t.out.requestFailed("td_authenticate", err)
	}
}

func (t *tdSession) login(c *conn[native.TdAPI]) {
	settings, ok := t.advance(c, StateLoggingIn, StateConnected, StateAuthenticating)
	if !ok {
		return
	}
	req := native.ReqUserLoginField{
		BrokerID:        settings.BrokerID,
		UserID:          settings.UserID,
		Password:        settings.Password,
		UserProductInfo: settings.UserProductInfo,
	}
	if err := c.api.ReqUserLogin(req, t.nextRequestID()); err != nil {
		t.fallBack(c)
		_ = t.out.requestFailed("td_login", err)
	}
}

// onLogin records the session identity, raises the order reference floor and
// clears the contract cache before the catalog is reloaded.
func (t *tdSession) onLogin(c *conn[native.TdAPI], data native.RspUserLoginField) (config.ConnectSettings, bool) {
	if !t.lockCurrent(c) {
		return config.ConnectSettings{}, false
	}
	defer t.mu.Unlock()
	t.frontID = data.FrontID
	t.sessionID = data.SessionID
	if maxRef, err := strconv.ParseInt(strings.TrimSpace(data.MaxOrderRef), 10, 64); err == nil && maxRef > t.orderRef {
		t.orderRef = maxRef
	}
	clear(t.contracts)
	t.setStateLocked(StateReady)
	return t.settings, true
}

func (t *tdSession) confirmSettlement(c *conn[native.TdAPI], settings config.ConnectSettings) {
	req := native.SettlementInfoConfirmField{BrokerID: settings.BrokerID, InvestorID: settings.UserID}
	if err := c.api.ReqSettlementInfoConfirm(req, t.nextRequestID()); err != nil {
		_ = t.out.requestFailed("settlement_confirm", err)
	}
}

func (t *tdSession) queryInstruments(c *conn[native.TdAPI]) {
	if err := c.api.ReqQryInstrument(native.QryInstrumentField{}, t.nextRequestID()); err != nil {
		_ = t.out.requestFailed("qry_instrument", err)
	}
}

func (t *tdSession) onCallback(c *conn[native.TdAPI], cb native.Callback) {
	switch msg := cb.(type) {
	case native.FrontConnected:
		if _, ok := t.frontConnected(c); !ok {
			return
		}
		t.out.log("trading front connected")
		t.authenticateOrLogin(c)

	case native.FrontDisconnected:
		if !t.frontDisconnected(c) {
			return
		}
		t.positions.reset()
		t.out.logf("trading front disconnected, reason %d", msg.Reason)

	case native.HeartBeatWarning:
		t.out.logf("trading heartbeat warning, %ds since last message", msg.TimeLapse)

	case native.RspAuthenticate:
		if msg.Info.Failed() {
			t.fallBack(c)
			t.out.rspError("trading authentication failed", msg.Info, errs.CodeAuth)
			return
		}
		t.out.log("trading authentication succeeded")
		t.login(c)

	case native.RspUserLogin:
		if msg.Info.Failed() {
			t.fallBack(c)
			t.out.rspError("trading login failed", msg.Info, errs.CodeAuth)
			return
		}
		settings, ok := t.onLogin(c, msg.Data)
		if !ok {
			return
		}
		t.out.log("trading login succeeded")
		t.confirmSettlement(c, settings)

	case native.RspUserLogout:
		if msg.Info.Failed() {
			t.out.rspError("trading logout failed", msg.Info, errs.CodeAuth)
			return
		}
		if _, ok := t.advance(c, StateConnected, StateReady, StateLoggingIn); !ok {
			return
		}
		t.out.log("trading logout succeeded")

	case native.RspSettlementInfoConfirm:
		if msg.Info.Failed() {
			t.out.rspError("settlement confirmation failed", msg.Info, errs.CodeExchange)
		} else {
			t.out.log("settlement information confirmed")
		}
		t.queryInstruments(c)

	case native.RspQryInstrument:
		t.onInstrument(c, msg)

	case native.RspQryInvestorPosition:
		if msg.Info.Failed() {
			t.out.rspError("position query failed", msg.Info, errs.CodeExchange)
			if msg.Last {
				t.positions.reset()
			}
			return
		}
		for _, pos := range t.positions.add(msg.Data, msg.Last) {
			t.out.pub.PublishPosition(t.out.ctx, pos)
		}

	case native.RspQryTradingAccount:
		if msg.Info.Failed() {
			t.out.rspError("account query failed", msg.Info, errs.CodeExchange)
			return
		}
		t.out.pub.PublishAccount(t.out.ctx, t.out.norm.account(msg.Data))

	case native.RspOrderInsert:
		t.onInsertRejected(msg.Data, msg.Info)

	case native.ErrRtnOrderInsert:
		t.onInsertRejected(msg.Data, msg.Info)

	case native.RspOrderAction:
		t.out.rspError("order cancel rejected", msg.Info, errs.CodeExchange, errs.WithCanonicalCode(errs.CanonicalCancelRejected))

	case native.ErrRtnOrderAction:
		t.out.rspError("order cancel rejected", msg.Info, errs.CodeExchange, errs.WithCanonicalCode(errs.CanonicalCancelRejected))

	case native.RtnOrder:
		t.onOrder(c, msg.Data)

	case native.RtnTrade:
		t.out.pub.PublishTrade(t.out.ctx, t.out.norm.trade(msg.Data))

	case native.RspError:
		t.out.rspError("trading request error", msg.Info, errs.CodeExchange)
	}
}

func (t *tdSession) onInstrument(c *conn[native.TdAPI], msg native.RspQryInstrument) {
	if msg.Info.Failed() {
		t.out.rspError("instrument query failed", msg.Info, errs.CodeExchange)
		return
	}
	if msg.Data.InstrumentID != "" {
		contract := t.out.norm.contract(msg.Data)
		if !t.lockCurrent(c) {
			return
		}
		t.contracts[contract.Symbol] = contractInfo{exchange: msg.Data.ExchangeID, size: contract.Size}
		t.mu.Unlock()
		t.out.pub.PublishContract(t.out.ctx, contract)
	}
	if msg.Last {
		t.mu.Lock()
		n := len(t.contracts)
		t.mu.Unlock()
		t.out.logf("contract catalog loaded, %d instruments", n)
	}
}

func (t *tdSession) onInsertRejected(data native.InputOrderField, info native.RspInfo) {
	t.mu.Lock()
	frontID, sessionID := t.frontID, t.sessionID
	delete(t.orders, strings.TrimSpace(data.OrderRef))
	t.mu.Unlock()
	t.out.pub.PublishOrder(t.out.ctx, t.out.norm.rejectedOrder(data, frontID, sessionID))
	t.out.rspError("order insert rejected", info, errs.CodeExchange, errs.WithCanonicalCode(errs.CanonicalOrderRejected),
		errs.WithVenueField("order_ref", data.OrderRef))
}

// onOrder keeps the reference counter ahead of every pushed order, including
// ones placed by other sessions of the same account. Orders that reached a
// terminal status leave the cache.
func (t *tdSession) onOrder(c *conn[native.TdAPI], data native.OrderField) {
	order := t.out.norm.order(data)
	if t.lockCurrent(c) {
		if ref, err := strconv.ParseInt(order.OrderRef, 10, 64); err == nil && ref > t.orderRef {
			t.orderRef = ref
		}
		if order.Status.Terminal() {
			delete(t.orders, order.OrderRef)
		} else {
			t.orders[order.OrderRef] = liveOrder{snapshot: order, exchange: data.ExchangeID}
		}
		t.mu.Unlock()
	}
	t.out.pub.PublishOrder(t.out.ctx, order)
}
