package ctp

import (
	"sync"

	"github.com/shopspring/decimal"

	"github.com/coachpo/ctpgate/internal/domain/schema"
	"github.com/coachpo/ctpgate/internal/infra/adapters/ctp/native"
)

type positionKey struct {
	symbol    string
	direction schema.Direction
}

// positionAggregator rebuilds positions from one paginated query response.
// Fronts split a holding into at most a today record and a yesterday record.
type positionAggregator struct {
	gateway string

	mu      sync.Mutex
	entries map[positionKey]*schema.Position
	order   []positionKey
}

func newPositionAggregator(gateway string) *positionAggregator {
	return &positionAggregator{
		gateway: gateway,
		entries: make(map[positionKey]*schema.Position),
	}
}

// add folds one partial record into the running snapshot. It returns the completed
// snapshots when last is set, in first-seen order, and starts a fresh cycle.
func (a *positionAggregator) add(rec native.InvestorPositionField, last bool) []schema.Position {
	a.mu.Lock()
	defer a.mu.Unlock()

	if rec.InstrumentID != "" {
		a.accumulate(rec)
	}
	if !last {
		return nil
	}
	return a.drainLocked()
}

func (a *positionAggregator) accumulate(rec native.InvestorPositionField) {
	direction := posiDirectionTable.toDomain(rec.PosiDirection)
	key := positionKey{symbol: rec.InstrumentID, direction: direction}
	pos, ok := a.entries[key]
	if !ok {
		pos = &schema.Position{
			Gateway:        a.gateway,
			Symbol:         rec.InstrumentID,
			Direction:      direction,
			Price:          decimal.Zero,
			PositionProfit: decimal.Zero,
		}
		a.entries[key] = pos
		a.order = append(a.order, key)
	}

	// Cost must be taken before the volume changes.
	cost := pos.Price.Mul(decimal.NewFromInt(pos.Volume))

	pos.Volume += int64(rec.Position)
	pos.TodayVolume += int64(rec.TodayPosition)
	pos.PositionProfit = pos.PositionProfit.Add(decimal.NewFromFloat(rec.PositionProfit))

	if rec.YdPosition != 0 && rec.TodayPosition == 0 {
		pos.YdVolume = int64(rec.Position)
	}

	if pos.Volume != 0 {
		pos.Price = cost.Add(decimal.NewFromFloat(rec.PositionCost)).Div(decimal.NewFromInt(pos.Volume))
	}

	if direction == schema.DirectionLong {
		pos.Frozen += int64(rec.LongFrozen)
	} else {
		pos.Frozen += int64(rec.ShortFrozen)
	}
}

func (a *positionAggregator) drainLocked() []schema.Position {
	out := make([]schema.Position, 0, len(a.order))
	for _, key := range a.order {
		out = append(out, *a.entries[key])
	}
	a.entries = make(map[positionKey]*schema.Position)
	a.order = nil
	return out
}

// reset abandons a cycle whose terminal page will never arrive.
func (a *positionAggregator) reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = make(map[positionKey]*schema.Position)
	a.order = nil
}

func (a *positionAggregator) pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.entries)
}
