package fake

import (
	"fmt"
	"math/rand/v2"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/coachpo/ctpgate/internal/infra/adapters/ctp/native"
)

// Simulated counter error ids.
const (
	errInvalidLogin      = 3
	errNotLoggedIn       = 9
	errInvalidVolume     = 15
	errUnknownInstrument = 16
	errDuplicateOrder    = 22
	errOrderNotFound     = 25
	errOrderClosed       = 26
	errInsufficientClose = 30
	errAppNotAuthorized  = 63
)

const frontID = 1

// limitBand is the daily price limit around the previous close.
const limitBand = 0.07

type orderKey struct {
	frontID   int
	sessionID int
	ref       string
}

type simOrder struct {
	key      orderKey
	sysID    string
	inst     Instrument
	input    native.InputOrderField
	status   native.Char
	traded   int
	insertAt time.Time
	cancelAt time.Time
}

func (o *simOrder) open() bool {
	return o.status == native.OrderStatusNoTradeQueueing || o.status == native.OrderStatusPartTradedQueueing
}

func (o *simOrder) offset() native.Char {
	if o.input.CombOffsetFlag == "" {
		return native.OffsetOpen
	}
	return native.Char(o.input.CombOffsetFlag[0])
}

type posKey struct {
	symbol string
	short  bool
}

// holding tracks one side of a position. cost is the money paid, price*volume*size.
type holding struct {
	yd    int
	today int
	cost  float64
}

func (h *holding) volume() int { return h.yd + h.today }

type quote struct {
	last         float64
	open         float64
	high         float64
	low          float64
	preClose     float64
	volume       int
	turnover     float64
	openInterest float64
	preOI        float64
	bidVolume    int
	askVolume    int
}

// venue is the state shared by every handle of one simulator: prices, the
// order book of resting orders and the account ledger.
type venue struct {
	opts   Options
	encode func(string) string

	mu          sync.Mutex
	rng         *rand.Rand
	instruments []Instrument
	bySymbol    map[string]Instrument
	quotes      map[string]*quote
	fronts      map[*front]struct{}
	sessions    int
	sysIDs      int
	tradeIDs    int
	maxRef      int64
	orders      map[orderKey]*simOrder
	holdings    map[posKey]*holding
	commission  float64
	closeProfit float64
}

func newVenue(opts Options) *venue {
	opts.applyDefaults()
	seed := uint64(opts.Seed)
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	v := &venue{
		opts:        opts,
		encode:      opts.encoder(),
		rng:         rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		instruments: append([]Instrument(nil), opts.Instruments...),
		bySymbol:    make(map[string]Instrument, len(opts.Instruments)),
		quotes:      make(map[string]*quote, len(opts.Instruments)),
		fronts:      make(map[*front]struct{}),
		orders:      make(map[orderKey]*simOrder),
		holdings:    make(map[posKey]*holding),
	}
	for _, inst := range v.instruments {
		v.bySymbol[inst.Symbol] = inst
		base := inst.roundPrice(inst.BasePrice)
		oi := float64(1000 + v.rng.IntN(100000))
		v.quotes[inst.Symbol] = &quote{
			last:         base,
			open:         base,
			high:         base,
			low:          base,
			preClose:     base,
			volume:       100 + v.rng.IntN(1000),
			openInterest: oi,
			preOI:        oi,
			bidVolume:    1 + v.rng.IntN(50),
			askVolume:    1 + v.rng.IntN(50),
		}
	}
	for _, seedPos := range opts.Holdings {
		inst, ok := v.bySymbol[seedPos.Symbol]
		if !ok || seedPos.Volume <= 0 {
			continue
		}
		v.holdings[posKey{symbol: seedPos.Symbol, short: seedPos.Short}] = &holding{
			yd:   seedPos.Volume,
			cost: seedPos.Price * float64(seedPos.Volume*inst.Size),
		}
	}
	return v
}

func (v *venue) attach(f *front) {
	v.mu.Lock()
	v.fronts[f] = struct{}{}
	v.mu.Unlock()
}

func (v *venue) detach(f *front) {
	v.mu.Lock()
	delete(v.fronts, f)
	v.mu.Unlock()
}

func (v *venue) liveFronts() []*front {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]*front, 0, len(v.fronts))
	for f := range v.fronts {
		out = append(out, f)
	}
	return out
}

func (v *venue) info(id int, msg string) native.RspInfo {
	return native.RspInfo{ErrorID: id, ErrorMsg: v.encode(msg)}
}

func (v *venue) known(symbol string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	_, ok := v.bySymbol[symbol]
	return ok
}

func (v *venue) checkPassword(password string) bool {
	return v.opts.Password == "" || password == v.opts.Password
}

func (v *venue) checkAppID(appID string) bool {
	return v.opts.AppID == "" || appID == v.opts.AppID
}

// openSession allocates a session id and reports the highest order reference seen.
func (v *venue) openSession() (int, string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.sessions++
	return v.sessions, strconv.FormatInt(v.maxRef, 10)
}

// tradingDay rolls evening sessions onto the next weekday.
func (v *venue) tradingDay(now time.Time) string {
	day := now
	if now.Hour() >= 20 {
		day = day.AddDate(0, 0, 1)
	}
	switch day.Weekday() {
	case time.Saturday:
		day = day.AddDate(0, 0, 2)
	case time.Sunday:
		day = day.AddDate(0, 0, 1)
	}
	return day.Format("20060102")
}

// broadcastTrading pushes private-flow messages to every logged-in trading handle.
func (v *venue) broadcastTrading(cbs ...native.Callback) {
	for f := range v.fronts {
		if f.kind == kindTrading && f.isLoggedIn() {
			f.emit(cbs...)
		}
	}
}

// bestPrices returns the best bid and ask one tick either side of the last price.
func bestPrices(inst Instrument, q *quote) (float64, float64) {
	t := inst.tickForPrice(q.last)
	return inst.priceForTick(t - 1), inst.priceForTick(t + 1)
}

func (v *venue) depthLocked(inst Instrument, q *quote) native.DepthMarketDataField {
	now := v.opts.Clock()
	bid, ask := bestPrices(inst, q)
	return native.DepthMarketDataField{
		TradingDay:         v.tradingDay(now),
		ActionDay:          now.Format("20060102"),
		InstrumentID:       inst.Symbol,
		ExchangeID:         inst.Exchange,
		LastPrice:          q.last,
		PreSettlementPrice: q.preClose,
		PreClosePrice:      q.preClose,
		PreOpenInterest:    q.preOI,
		OpenPrice:          q.open,
		HighestPrice:       q.high,
		LowestPrice:        q.low,
		Volume:             q.volume,
		Turnover:           q.turnover,
		OpenInterest:       q.openInterest,
		UpperLimitPrice:    inst.roundPrice(q.preClose * (1 + limitBand)),
		LowerLimitPrice:    inst.roundPrice(q.preClose * (1 - limitBand)),
		UpdateTime:         now.Format("15:04:05"),
		UpdateMillisec:     now.Nanosecond() / int(time.Millisecond),
		BidPrice1:          bid,
		BidVolume1:         q.bidVolume,
		AskPrice1:          ask,
		AskVolume1:         q.askVolume,
	}
}

// depth returns the current quote without moving it.
func (v *venue) depth(symbol string) (native.DepthMarketDataField, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	inst, ok := v.bySymbol[symbol]
	if !ok {
		return native.DepthMarketDataField{}, false
	}
	return v.depthLocked(inst, v.quotes[symbol]), true
}

// step moves the price one random tick, trades some volume and fills resting
// orders the new quote crosses.
func (v *venue) step(symbol string) (native.DepthMarketDataField, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	inst, ok := v.bySymbol[symbol]
	if !ok {
		return native.DepthMarketDataField{}, false
	}
	q := v.quotes[symbol]
	next := inst.tickForPrice(q.last) + priceTick(v.rng.IntN(3)-1)
	v.setLastLocked(inst, q, inst.priceForTick(next))

	traded := 1 + v.rng.IntN(5)
	q.volume += traded
	q.turnover += q.last * float64(traded*inst.Size)
	q.openInterest += float64(v.rng.IntN(3) - 1)
	q.bidVolume = 1 + v.rng.IntN(50)
	q.askVolume = 1 + v.rng.IntN(50)

	v.matchLocked(inst, q)
	return v.depthLocked(inst, q), true
}

func (v *venue) setLastLocked(inst Instrument, q *quote, price float64) {
	upper := inst.roundPrice(q.preClose * (1 + limitBand))
	lower := inst.roundPrice(q.preClose * (1 - limitBand))
	price = min(max(inst.roundPrice(price), lower), upper)
	q.last = price
	q.high = max(q.high, price)
	q.low = min(q.low, price)
}

// movePrice sets the last price and returns the resulting quote.
func (v *venue) movePrice(symbol string, price float64) (native.DepthMarketDataField, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	inst, ok := v.bySymbol[symbol]
	if !ok {
		return native.DepthMarketDataField{}, fmt.Errorf("fake: unknown instrument %q", symbol)
	}
	q := v.quotes[symbol]
	v.setLastLocked(inst, q, price)
	q.volume++
	v.matchLocked(inst, q)
	return v.depthLocked(inst, q), nil
}

// crossPriceLocked returns the fill price when the order is marketable against the quote.
func (v *venue) crossPriceLocked(o *simOrder, q *quote) (float64, bool) {
	bid, ask := bestPrices(o.inst, q)
	buy := o.input.Direction == native.DirectionBuy
	if o.input.OrderPriceType == native.PriceTypeAny {
		if buy {
			return ask, true
		}
		return bid, true
	}
	if buy && o.input.LimitPrice >= ask {
		return ask, true
	}
	if !buy && o.input.LimitPrice <= bid {
		return bid, true
	}
	return 0, false
}

func (v *venue) matchLocked(inst Instrument, q *quote) {
	resting := make([]*simOrder, 0)
	for _, o := range v.orders {
		if o.inst.Symbol == inst.Symbol && o.open() {
			resting = append(resting, o)
		}
	}
	sort.Slice(resting, func(i, j int) bool { return resting[i].sysID < resting[j].sysID })
	for _, o := range resting {
		if price, ok := v.crossPriceLocked(o, q); ok {
			v.fillLocked(o, price)
		}
	}
}

// insert runs an order through validation, the book and the ledger.
func (v *venue) insert(requester *front, in native.InputOrderField, sessionID int, requestID int) {
	v.mu.Lock()
	defer v.mu.Unlock()

	reject := func(id int, msg string) {
		requester.emit(native.RspOrderInsert{Data: in, Info: v.info(id, msg), RequestID: requestID, Last: true})
	}

	inst, ok := v.bySymbol[in.InstrumentID]
	if !ok {
		reject(errUnknownInstrument, "instrument not found")
		return
	}
	if in.VolumeTotalOriginal <= 0 {
		reject(errInvalidVolume, "invalid order volume")
		return
	}
	ref := strings.TrimSpace(in.OrderRef)
	key := orderKey{frontID: frontID, sessionID: sessionID, ref: ref}
	if _, dup := v.orders[key]; dup {
		reject(errDuplicateOrder, "duplicate order reference")
		return
	}
	o := &simOrder{
		key:      key,
		inst:     inst,
		input:    in,
		status:   native.OrderStatusNoTradeQueueing,
		insertAt: v.opts.Clock(),
	}
	if o.offset() != native.OffsetOpen {
		closing := posKey{symbol: inst.Symbol, short: in.Direction == native.DirectionBuy}
		if h := v.holdings[closing]; h == nil || h.volume()-v.pendingCloseLocked(closing) < in.VolumeTotalOriginal {
			reject(errInsufficientClose, "insufficient position to close")
			return
		}
	}
	if n, err := strconv.ParseInt(ref, 10, 64); err == nil && n > v.maxRef {
		v.maxRef = n
	}

	v.sysIDs++
	o.sysID = fmt.Sprintf("%12d", v.sysIDs)
	v.orders[key] = o
	v.broadcastTrading(native.RtnOrder{Data: v.orderFieldLocked(o)})

	if price, ok := v.crossPriceLocked(o, v.quotes[inst.Symbol]); ok {
		v.fillLocked(o, price)
		return
	}
	if in.TimeCondition == native.TimeConditionIOC {
		o.status = native.OrderStatusCanceled
		o.cancelAt = v.opts.Clock()
		v.broadcastTrading(native.RtnOrder{Data: v.orderFieldLocked(o)})
	}
}

// pendingCloseLocked is the volume already committed by resting close orders.
func (v *venue) pendingCloseLocked(key posKey) int {
	pending := 0
	for _, o := range v.orders {
		if !o.open() || o.offset() == native.OffsetOpen || o.inst.Symbol != key.symbol {
			continue
		}
		if (o.input.Direction == native.DirectionBuy) == key.short {
			pending += o.input.VolumeTotalOriginal - o.traded
		}
	}
	return pending
}

func (v *venue) cancel(requester *front, action native.InputOrderActionField, requestID int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	key := orderKey{frontID: action.FrontID, sessionID: action.SessionID, ref: strings.TrimSpace(action.OrderRef)}
	o, ok := v.orders[key]
	if !ok {
		requester.emit(native.RspOrderAction{Data: action, Info: v.info(errOrderNotFound, "order not found"), RequestID: requestID, Last: true})
		return
	}
	if !o.open() {
		requester.emit(native.ErrRtnOrderAction{Data: action, Info: v.info(errOrderClosed, "order already traded or cancelled")})
		return
	}
	o.status = native.OrderStatusCanceled
	o.cancelAt = v.opts.Clock()
	v.broadcastTrading(native.RtnOrder{Data: v.orderFieldLocked(o)})
}

func (v *venue) fillLocked(o *simOrder, price float64) {
	volume := o.input.VolumeTotalOriginal - o.traded
	o.traded += volume
	o.status = native.OrderStatusAllTraded
	v.applyTradeLocked(o.inst, o.input.Direction, o.offset(), volume, price)

	now := v.opts.Clock()
	v.tradeIDs++
	trade := native.TradeField{
		BrokerID:     o.input.BrokerID,
		InvestorID:   o.input.InvestorID,
		InstrumentID: o.inst.Symbol,
		ExchangeID:   o.inst.Exchange,
		OrderRef:     o.key.ref,
		OrderSysID:   o.sysID,
		TradeID:      fmt.Sprintf("%12d", v.tradeIDs),
		Direction:    o.input.Direction,
		OffsetFlag:   o.offset(),
		Price:        price,
		Volume:       volume,
		TradeDate:    now.Format("20060102"),
		TradeTime:    now.Format("15:04:05"),
	}
	v.broadcastTrading(native.RtnOrder{Data: v.orderFieldLocked(o)}, native.RtnTrade{Data: trade})
}

// applyTradeLocked books a fill. Closes consume today's lots first unless the
// order closes yesterday's explicitly.
func (v *venue) applyTradeLocked(inst Instrument, direction, offset native.Char, volume int, price float64) {
	size := float64(inst.Size)
	v.commission += price * float64(volume) * size * v.opts.CommissionRate

	if offset == native.OffsetOpen {
		key := posKey{symbol: inst.Symbol, short: direction == native.DirectionSell}
		h := v.holdings[key]
		if h == nil {
			h = &holding{}
			v.holdings[key] = h
		}
		h.today += volume
		h.cost += price * float64(volume) * size
		return
	}

	key := posKey{symbol: inst.Symbol, short: direction == native.DirectionBuy}
	h := v.holdings[key]
	if h == nil || h.volume() == 0 {
		return
	}
	avg := h.cost / float64(h.volume())
	fromToday := min(volume, h.today)
	if offset == native.OffsetCloseYesterday {
		fromToday = 0
	}
	h.today -= fromToday
	h.yd = max(h.yd-(volume-fromToday), 0)
	h.cost -= avg * float64(volume)

	pnl := (price*size - avg) * float64(volume)
	if key.short {
		pnl = -pnl
	}
	v.closeProfit += pnl
	if h.volume() == 0 {
		delete(v.holdings, key)
	}
}

func (v *venue) orderFieldLocked(o *simOrder) native.OrderField {
	field := native.OrderField{
		BrokerID:            o.input.BrokerID,
		InvestorID:          o.input.InvestorID,
		InstrumentID:        o.inst.Symbol,
		ExchangeID:          o.inst.Exchange,
		OrderRef:            o.key.ref,
		OrderSysID:          o.sysID,
		OrderPriceType:      o.input.OrderPriceType,
		Direction:           o.input.Direction,
		CombOffsetFlag:      o.input.CombOffsetFlag,
		LimitPrice:          o.input.LimitPrice,
		VolumeTotalOriginal: o.input.VolumeTotalOriginal,
		VolumeTraded:        o.traded,
		OrderStatus:         o.status,
		InsertDate:          o.insertAt.Format("20060102"),
		InsertTime:          o.insertAt.Format("15:04:05"),
		FrontID:             o.key.frontID,
		SessionID:           o.key.sessionID,
	}
	if !o.cancelAt.IsZero() {
		field.CancelTime = o.cancelAt.Format("15:04:05")
	}
	switch o.status {
	case native.OrderStatusAllTraded:
		field.StatusMsg = v.encode("all traded")
	case native.OrderStatusCanceled:
		field.StatusMsg = v.encode("cancelled")
	default:
		field.StatusMsg = v.encode("queueing")
	}
	return field
}

func (v *venue) instrumentRecords() []native.InstrumentField {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]native.InstrumentField, 0, len(v.instruments))
	for _, inst := range v.instruments {
		out = append(out, native.InstrumentField{
			InstrumentID:      inst.Symbol,
			ExchangeID:        inst.Exchange,
			InstrumentName:    v.encode(inst.Name),
			ProductClass:      inst.productClass(),
			VolumeMultiple:    inst.Size,
			PriceTick:         inst.increment(),
			StrikePrice:       inst.Strike,
			UnderlyingInstrID: inst.Underlying,
			OptionsType:       inst.optionsType(),
		})
	}
	return out
}

// positionRecords reports holdings the way the counter pages them. Venues that
// split positions send separate today and yesterday records.
func (v *venue) positionRecords(brokerID, investorID string) []native.InvestorPositionField {
	v.mu.Lock()
	defer v.mu.Unlock()

	keys := make([]posKey, 0, len(v.holdings))
	for key := range v.holdings {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].symbol != keys[j].symbol {
			return keys[i].symbol < keys[j].symbol
		}
		return !keys[i].short && keys[j].short
	})

	var out []native.InvestorPositionField
	for _, key := range keys {
		h := v.holdings[key]
		inst := v.bySymbol[key.symbol]
		q := v.quotes[key.symbol]
		total := h.volume()
		if total == 0 {
			continue
		}
		avg := h.cost / float64(total)
		direction := native.PosiDirectionLong
		sign := 1.0
		if key.short {
			direction = native.PosiDirectionShort
			sign = -1
		}
		frozen := v.pendingCloseLocked(key)
		record := func(yd, position, today int) native.InvestorPositionField {
			cost := avg * float64(position)
			rec := native.InvestorPositionField{
				InstrumentID:   key.symbol,
				BrokerID:       brokerID,
				InvestorID:     investorID,
				ExchangeID:     inst.Exchange,
				PosiDirection:  direction,
				YdPosition:     yd,
				Position:       position,
				TodayPosition:  today,
				PositionCost:   cost,
				PositionProfit: sign * (q.last*float64(position*inst.Size) - cost),
			}
			if key.short {
				rec.ShortFrozen = frozen
			} else {
				rec.LongFrozen = frozen
			}
			frozen = 0
			return rec
		}
		if inst.splitsPositions() {
			if h.yd > 0 {
				out = append(out, record(h.yd, h.yd, 0))
			}
			if h.today > 0 {
				out = append(out, record(0, h.today, h.today))
			}
			continue
		}
		out = append(out, record(h.yd, total, h.today))
	}
	return out
}

func (v *venue) account(brokerID, accountID string) native.TradingAccountField {
	v.mu.Lock()
	defer v.mu.Unlock()
	var positionProfit, margin float64
	for key, h := range v.holdings {
		inst := v.bySymbol[key.symbol]
		mark := v.quotes[key.symbol].last * float64(h.volume()*inst.Size)
		if key.short {
			positionProfit += h.cost - mark
		} else {
			positionProfit += mark - h.cost
		}
		margin += mark * v.opts.MarginRate
	}
	balance := v.opts.InitialBalance + v.closeProfit + positionProfit - v.commission
	return native.TradingAccountField{
		BrokerID:       brokerID,
		AccountID:      accountID,
		PreBalance:     v.opts.InitialBalance,
		CurrMargin:     margin,
		Commission:     v.commission,
		CloseProfit:    v.closeProfit,
		PositionProfit: positionProfit,
		Balance:        balance,
		Available:      balance - margin,
		TradingDay:     v.tradingDay(v.opts.Clock()),
	}
}
