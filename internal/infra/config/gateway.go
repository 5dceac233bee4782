package config

import (
	"fmt"
	"strings"
	"time"
)

// BridgeConfig configures the websocket bridge binding.
type BridgeConfig struct {
	DialTimeout time.Duration `yaml:"dialTimeout"`
	// QueryRate caps query requests per second. Fronts enforce roughly one per second.
	QueryRate  float64 `yaml:"queryRate"`
	QueryBurst int     `yaml:"queryBurst"`
}

// SimulatorConfig configures the in-process fake front.
type SimulatorConfig struct {
	TickInterval time.Duration `yaml:"tickInterval"`
	Seed         int64         `yaml:"seed"`
	// Password, when set, is the only password the simulated fronts accept.
	Password string `yaml:"password"`
	// AppID, when set, is the only app id the simulated trading front authenticates.
	AppID string `yaml:"appID"`
}

// GatewayConfig describes one named gateway instance.
type GatewayConfig struct {
	Name          string          `yaml:"name"`
	ConnectFile   string          `yaml:"connectFile"`
	Binding       Binding         `yaml:"binding"`
	Bridge        BridgeConfig    `yaml:"bridge"`
	Simulator     SimulatorConfig `yaml:"simulator"`
	TextEncoding  string          `yaml:"textEncoding"`
	TimeZone      string          `yaml:"timeZone"`
	QueryTrigger  int             `yaml:"queryTrigger"`
	QueryInterval time.Duration   `yaml:"queryInterval"`
	AutoQuery     bool            `yaml:"autoQuery"`
	InboxSize     int             `yaml:"inboxSize"`
	FlowPath      string          `yaml:"flowPath"`
}

func (g *GatewayConfig) applyDefaults() {
	g.Name = normalizeGatewayName(g.Name)
	g.ConnectFile = strings.TrimSpace(g.ConnectFile)
	g.Binding = Binding(strings.ToLower(strings.TrimSpace(string(g.Binding))))
	if g.Binding == "" {
		g.Binding = BindingFake
	}
	if strings.TrimSpace(g.TextEncoding) == "" {
		g.TextEncoding = "gbk"
	}
	if strings.TrimSpace(g.TimeZone) == "" {
		g.TimeZone = "Asia/Shanghai"
	}
	if g.QueryTrigger <= 0 {
		g.QueryTrigger = 2
	}
	if g.QueryInterval <= 0 {
		g.QueryInterval = time.Second
	}
	if g.InboxSize <= 0 {
		g.InboxSize = 1024
	}
	if g.Bridge.DialTimeout <= 0 {
		g.Bridge.DialTimeout = 5 * time.Second
	}
	if g.Bridge.QueryRate <= 0 {
		g.Bridge.QueryRate = 1
	}
	if g.Bridge.QueryBurst <= 0 {
		g.Bridge.QueryBurst = 1
	}
	if g.Simulator.TickInterval <= 0 {
		g.Simulator.TickInterval = 500 * time.Millisecond
	}
}

func (g GatewayConfig) validate() error {
	if g.Name == "" {
		return fmt.Errorf("name required")
	}
	if g.ConnectFile == "" {
		return fmt.Errorf("connectFile required")
	}
	switch g.Binding {
	case BindingFake, BindingBridge:
	default:
		return fmt.Errorf("binding must be fake or bridge, got %q", g.Binding)
	}
	if _, err := g.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves the time zone used to date ticks.
func (g GatewayConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(g.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("timeZone %q: %w", g.TimeZone, err)
	}
	return loc, nil
}
