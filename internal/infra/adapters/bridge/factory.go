package bridge

import (
	"time"

	"github.com/coachpo/ctpgate/internal/infra/adapters/ctp/native"
	"github.com/coachpo/ctpgate/internal/infra/config"
	"github.com/coachpo/ctpgate/internal/observability"
)

// Options configures bridge handles.
type Options struct {
	DialTimeout  time.Duration
	WriteTimeout time.Duration
	// QueryRate and QueryBurst bound query requests per handle.
	QueryRate  float64
	QueryBurst int
	Logger     observability.Logger
}

// OptionsFromConfig derives handle options from a gateway's bridge settings.
func OptionsFromConfig(cfg config.BridgeConfig) Options {
	return Options{
		DialTimeout: cfg.DialTimeout,
		QueryRate:   cfg.QueryRate,
		QueryBurst:  cfg.QueryBurst,
	}
}

func (o *Options) applyDefaults() {
	if o.DialTimeout <= 0 {
		o.DialTimeout = 5 * time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 5 * time.Second
	}
	if o.QueryRate <= 0 {
		o.QueryRate = 1
	}
	if o.QueryBurst <= 0 {
		o.QueryBurst = 1
	}
	if o.Logger == nil {
		o.Logger = observability.Log()
	}
}

// Factory allocates bridge handles. Each handle owns its own websocket.
type Factory struct {
	opts Options
}

var _ native.Factory = (*Factory)(nil)

func NewFactory(opts Options) *Factory {
	opts.applyDefaults()
	return &Factory{opts: opts}
}

func (f *Factory) NewMdAPI() native.MdAPI {
	return &mdAPI{link: newLink("md", f.opts)}
}

func (f *Factory) NewTdAPI() native.TdAPI {
	return &tdAPI{link: newLink("td", f.opts)}
}
