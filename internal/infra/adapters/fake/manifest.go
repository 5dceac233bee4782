package fake

import (
	"strings"
	"time"

	"golang.org/x/text/encoding/simplifiedchinese"

	"github.com/coachpo/ctpgate/internal/infra/config"
)

const (
	defaultTickInterval   = 500 * time.Millisecond
	defaultInitialBalance = 1_000_000
	defaultMarginRate     = 0.1
	defaultCommissionRate = 0.0001
)

// Holding seeds a position carried over from the previous trading day.
type Holding struct {
	Symbol string
	Short  bool
	Volume int
	Price  float64
}

// Options configures the simulated venue.
type Options struct {
	TickInterval time.Duration
	Seed         int64
	// Password and AppID are checked on login and authentication when set.
	Password string
	AppID    string
	// TextEncoding selects how text fields are encoded on the wire. Real fronts use gbk.
	TextEncoding   string
	Instruments    []Instrument
	Holdings       []Holding
	InitialBalance float64
	MarginRate     float64
	CommissionRate float64
	Clock          func() time.Time
}

// OptionsFromConfig derives simulator options from a gateway entry.
func OptionsFromConfig(cfg config.GatewayConfig) Options {
	return Options{
		TickInterval: cfg.Simulator.TickInterval,
		Seed:         cfg.Simulator.Seed,
		Password:     cfg.Simulator.Password,
		AppID:        cfg.Simulator.AppID,
		TextEncoding: cfg.TextEncoding,
	}
}

func (o *Options) applyDefaults() {
	if o.TickInterval <= 0 {
		o.TickInterval = defaultTickInterval
	}
	if len(o.Instruments) == 0 {
		o.Instruments = DefaultInstruments()
	}
	if o.InitialBalance <= 0 {
		o.InitialBalance = defaultInitialBalance
	}
	if o.MarginRate <= 0 {
		o.MarginRate = defaultMarginRate
	}
	if o.CommissionRate <= 0 {
		o.CommissionRate = defaultCommissionRate
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
}

// encoder returns the function applied to every outgoing text field.
func (o Options) encoder() func(string) string {
	switch strings.ToLower(strings.TrimSpace(o.TextEncoding)) {
	case "gbk", "gb2312", "gb18030":
		return func(s string) string {
			out, err := simplifiedchinese.GBK.NewEncoder().String(s)
			if err != nil {
				return s
			}
			return out
		}
	default:
		return func(s string) string { return s }
	}
}
