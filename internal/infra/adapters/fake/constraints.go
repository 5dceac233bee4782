// Package fake simulates a CTP counter in-process. It implements native.Factory so
// a gateway can run end to end without a vendor library.
package fake

import (
	"math"
	"strings"

	"github.com/coachpo/ctpgate/internal/infra/adapters/ctp/native"
)

type priceTick int64

// Instrument is one listed contract of the simulated venue.
type Instrument struct {
	Symbol    string
	Exchange  string
	Name      string
	Size      int
	PriceTick float64
	BasePrice float64
	// Options only.
	Underlying string
	Strike     float64
	Call       bool
}

func (i Instrument) productClass() native.Char {
	if i.Underlying != "" {
		return native.ProductOptions
	}
	return native.ProductFutures
}

func (i Instrument) optionsType() native.Char {
	if i.Underlying == "" {
		return 0
	}
	if i.Call {
		return native.OptionsCall
	}
	return native.OptionsPut
}

func (i Instrument) increment() float64 {
	if i.PriceTick <= 0 {
		return 1
	}
	return i.PriceTick
}

func (i Instrument) tickForPrice(price float64) priceTick {
	if price <= 0 {
		price = i.increment()
	}
	return priceTick(math.Round(price / i.increment()))
}

func (i Instrument) priceForTick(t priceTick) float64 {
	// Rounding keeps fractional increments such as 0.2 free of float noise.
	return math.Round(float64(t)*i.increment()*1e6) / 1e6
}

func (i Instrument) roundPrice(price float64) float64 {
	return i.priceForTick(i.tickForPrice(price))
}

// splitsPositions reports whether the venue reports today and yesterday holdings
// as separate position records.
func (i Instrument) splitsPositions() bool {
	switch strings.ToUpper(i.Exchange) {
	case "SHFE", "INE":
		return true
	default:
		return false
	}
}

// DefaultInstruments is the catalog served when none is configured.
func DefaultInstruments() []Instrument {
	return []Instrument{
		{Symbol: "rb2410", Exchange: "SHFE", Name: "螺纹钢2410", Size: 10, PriceTick: 1, BasePrice: 3650},
		{Symbol: "ag2412", Exchange: "SHFE", Name: "白银2412", Size: 15, PriceTick: 1, BasePrice: 7800},
		{Symbol: "sc2409", Exchange: "INE", Name: "原油2409", Size: 1000, PriceTick: 0.1, BasePrice: 600},
		{Symbol: "IF2406", Exchange: "CFFEX", Name: "沪深300指数2406", Size: 300, PriceTick: 0.2, BasePrice: 3550},
		{Symbol: "m2409", Exchange: "DCE", Name: "豆粕2409", Size: 10, PriceTick: 1, BasePrice: 3400},
		{Symbol: "SR409", Exchange: "CZCE", Name: "白糖409", Size: 10, PriceTick: 1, BasePrice: 6300},
		{Symbol: "m2409-C-3500", Exchange: "DCE", Name: "豆粕购3500", Size: 10, PriceTick: 0.5, BasePrice: 80,
			Underlying: "m2409", Strike: 3500, Call: true},
	}
}
