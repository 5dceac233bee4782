// Package provider builds the configured gateways, keeps them addressable by
// name and supervises their front connections.
package provider

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sourcegraph/conc"

	"github.com/coachpo/ctpgate/errs"
	"github.com/coachpo/ctpgate/internal/infra/adapters/ctp"
	"github.com/coachpo/ctpgate/internal/infra/adapters/shared"
	"github.com/coachpo/ctpgate/internal/infra/config"
	"github.com/coachpo/ctpgate/internal/infra/telemetry"
	"github.com/coachpo/ctpgate/internal/observability"
)

// ErrGatewayNotFound is returned when a gateway name is not registered.
var ErrGatewayNotFound = errors.New("gateway not found")

// ErrGatewayExists is returned when a gateway name is registered twice.
var ErrGatewayExists = errors.New("gateway already exists")

// Options configures a Manager.
type Options struct {
	Registry   *Registry
	Sink       shared.EventSink
	Metrics    *telemetry.GatewayMetrics
	Logger     observability.Logger
	Supervisor config.SupervisorConfig
	Clock      func() time.Time
}

// Manager owns the gateways of one process.
type Manager struct {
	registry   *Registry
	sink       shared.EventSink
	metrics    *telemetry.GatewayMetrics
	logger     observability.Logger
	supervisor config.SupervisorConfig
	clock      func() time.Time

	mu       sync.RWMutex
	gateways map[string]*managed

	startOnce sync.Once
	closeOnce sync.Once
	ctx       context.Context
	cancel    context.CancelFunc
	loops     conc.WaitGroup
}

type managed struct {
	cfg config.GatewayConfig
	gw  Instance

	mu          sync.Mutex
	armed       bool
	autoQueried bool
	backoff     *backoff.ExponentialBackOff
	retryAt     time.Time
}

// Status is the control view of one gateway.
type Status struct {
	ctp.Status
	Binding   config.Binding `json:"binding"`
	AutoQuery bool           `json:"autoQuery"`
}

// NewManager validates options and returns an empty manager.
func NewManager(opts Options) (*Manager, error) {
	if opts.Sink == nil {
		return nil, errs.New("provider", errs.CodeConfig, errs.WithMessage("event sink required"))
	}
	registry := opts.Registry
	if registry == nil {
		registry = DefaultRegistry()
	}
	logger := opts.Logger
	if logger == nil {
		logger = observability.Log()
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	sup := opts.Supervisor
	if sup.CheckInterval <= 0 {
		sup.CheckInterval = time.Second
	}
	if sup.InitialInterval <= 0 {
		sup.InitialInterval = time.Second
	}
	if sup.MaxInterval < sup.InitialInterval {
		sup.MaxInterval = sup.InitialInterval
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		registry:   registry,
		sink:       opts.Sink,
		metrics:    opts.Metrics,
		logger:     logger,
		supervisor: sup,
		clock:      clock,
		gateways:   make(map[string]*managed),
		ctx:        ctx,
		cancel:     cancel,
	}, nil
}

// Create builds a gateway from its config entry without connecting it.
func (m *Manager) Create(cfg config.GatewayConfig) (Instance, error) {
	name := strings.TrimSpace(cfg.Name)
	if name == "" {
		return nil, errs.New("provider", errs.CodeConfig, errs.WithMessage("gateway name required"))
	}
	if m.ctx.Err() != nil {
		return nil, errs.New(name, errs.CodeUnavailable, errs.WithMessage("manager closed"))
	}

	m.mu.RLock()
	_, exists := m.gateways[name]
	m.mu.RUnlock()
	if exists {
		return nil, fmt.Errorf("%w: %s", ErrGatewayExists, name)
	}

	factory, err := m.registry.Create(cfg)
	if err != nil {
		return nil, errs.New(name, errs.CodeConfig, errs.WithMessage("native binding"), errs.WithCause(err))
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, errs.New(name, errs.CodeConfig, errs.WithCause(err))
	}
	gw, err := ctp.New(ctp.Options{
		Name:          name,
		ConnectFile:   cfg.ConnectFile,
		Factory:       factory,
		Sink:          m.sink,
		Metrics:       m.metrics,
		Logger:        m.logger,
		QueryTrigger:  cfg.QueryTrigger,
		QueryInterval: cfg.QueryInterval,
		TextEncoding:  cfg.TextEncoding,
		Location:      loc,
		Clock:         m.clock,
		InboxSize:     cfg.InboxSize,
		FlowPath:      cfg.FlowPath,
	})
	if err != nil {
		return nil, err
	}
	return m.add(cfg, gw)
}

func (m *Manager) add(cfg config.GatewayConfig, gw Instance) (Instance, error) {
	entry := &managed{cfg: cfg, gw: gw, backoff: m.newBackoff()}
	m.mu.Lock()
	if _, exists := m.gateways[gw.Name()]; exists {
		m.mu.Unlock()
		gw.Close()
		return nil, fmt.Errorf("%w: %s", ErrGatewayExists, gw.Name())
	}
	m.gateways[gw.Name()] = entry
	m.mu.Unlock()
	m.logger.Info("gateway created",
		observability.Field{Key: "gateway", Value: gw.Name()},
		observability.Field{Key: "binding", Value: string(cfg.Binding)})
	return gw, nil
}

func (m *Manager) newBackoff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = m.supervisor.InitialInterval
	b.MaxInterval = m.supervisor.MaxInterval
	b.Reset()
	return b
}

// Start creates every configured gateway, connects them and starts supervision.
// A gateway that cannot be built fails the whole start.
func (m *Manager) Start(cfgs []config.GatewayConfig) error {
	var created []Instance
	for _, cfg := range cfgs {
		gw, err := m.Create(cfg)
		if err != nil {
			return err
		}
		created = append(created, gw)
	}
	for _, gw := range created {
		if err := m.Connect(gw.Name()); err != nil {
			return err
		}
	}
	m.startSupervisor()
	return nil
}

func (m *Manager) startSupervisor() {
	if !m.supervisor.Enabled {
		return
	}
	m.startOnce.Do(func() {
		m.loops.Go(m.supervise)
	})
}

// Connect asks a gateway to connect both sessions and places it under supervision.
func (m *Manager) Connect(name string) error {
	entry, err := m.lookup(name)
	if err != nil {
		return err
	}
	entry.mu.Lock()
	entry.armed = true
	entry.retryAt = time.Time{}
	entry.mu.Unlock()
	entry.gw.Connect()
	return nil
}

// Gateway returns a registered gateway.
func (m *Manager) Gateway(name string) (Instance, error) {
	entry, err := m.lookup(name)
	if err != nil {
		return nil, err
	}
	return entry.gw, nil
}

func (m *Manager) lookup(name string) (*managed, error) {
	m.mu.RLock()
	entry, ok := m.gateways[strings.TrimSpace(name)]
	m.mu.RUnlock()
	if !ok {
		return nil, errs.New(name, errs.CodeNotFound, errs.WithMessage(ErrGatewayNotFound.Error()), errs.WithCause(ErrGatewayNotFound))
	}
	return entry, nil
}

// Status returns the control view of a gateway.
func (m *Manager) Status(name string) (Status, error) {
	entry, err := m.lookup(name)
	if err != nil {
		return Status{}, err
	}
	return entry.status(), nil
}

// Gateways lists every gateway sorted by name.
func (m *Manager) Gateways() []Status {
	m.mu.RLock()
	entries := make([]*managed, 0, len(m.gateways))
	for _, entry := range m.gateways {
		entries = append(entries, entry)
	}
	m.mu.RUnlock()
	out := make([]Status, 0, len(entries))
	for _, entry := range entries {
		out = append(out, entry.status())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (e *managed) status() Status {
	return Status{Status: e.gw.State(), Binding: e.cfg.Binding, AutoQuery: e.cfg.AutoQuery}
}

// Config returns the gateway entry with credentials removed.
func (m *Manager) Config(name string) (map[string]any, error) {
	entry, err := m.lookup(name)
	if err != nil {
		return nil, err
	}
	return SanitizeGatewayConfig(entry.cfg), nil
}

// Bindings lists the registered native bindings.
func (m *Manager) Bindings() []BindingMetadata {
	return m.registry.Bindings()
}

func (m *Manager) supervise() {
	ticker := time.NewTicker(m.supervisor.CheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.checkAll()
		}
	}
}

func (m *Manager) checkAll() {
	m.mu.RLock()
	entries := make([]*managed, 0, len(m.gateways))
	for _, entry := range m.gateways {
		entries = append(entries, entry)
	}
	m.mu.RUnlock()
	for _, entry := range entries {
		if m.ctx.Err() != nil {
			return
		}
		m.check(entry)
	}
}

// check reconnects an armed gateway with a disconnected session once its
// backoff delay has passed, and turns on polling when trading becomes Ready.
func (m *Manager) check(entry *managed) {
	st := entry.gw.State()
	now := m.clock()

	entry.mu.Lock()
	if !entry.armed {
		entry.mu.Unlock()
		return
	}
	if st.TdState == ctp.StateReady && entry.cfg.AutoQuery && !entry.autoQueried {
		entry.autoQueried = true
		entry.mu.Unlock()
		entry.gw.SetQueryEnabled(true)
		m.logger.Info("periodic queries enabled", observability.Field{Key: "gateway", Value: st.Name})
		entry.mu.Lock()
	}
	if st.MdState == ctp.StateReady && st.TdState == ctp.StateReady {
		entry.backoff.Reset()
		entry.retryAt = time.Time{}
		entry.mu.Unlock()
		return
	}
	if st.MdState != ctp.StateDisconnected && st.TdState != ctp.StateDisconnected {
		entry.mu.Unlock()
		return
	}
	if entry.retryAt.IsZero() {
		entry.retryAt = now.Add(entry.backoff.NextBackOff())
	}
	if now.Before(entry.retryAt) {
		entry.mu.Unlock()
		return
	}
	entry.retryAt = now.Add(entry.backoff.NextBackOff())
	entry.mu.Unlock()

	m.logger.Info("reconnecting gateway",
		observability.Field{Key: "gateway", Value: st.Name},
		observability.Field{Key: "md_state", Value: st.MdState.String()},
		observability.Field{Key: "td_state", Value: st.TdState.String()})
	m.metrics.RecordReconnect(m.ctx, st.Name)
	entry.gw.Connect()
}

// Close stops supervision and closes every gateway.
func (m *Manager) Close() error {
	var closeErr error
	m.closeOnce.Do(func() {
		m.cancel()
		m.loops.Wait()

		m.mu.Lock()
		entries := m.gateways
		m.gateways = make(map[string]*managed)
		m.mu.Unlock()

		var failures []error
		for name, entry := range entries {
			if err := closeGateway(entry.gw); err != nil {
				failures = append(failures, fmt.Errorf("%s: %w", name, err))
			}
		}
		closeErr = observability.AggregateErrors(m.logger, "close gateways", failures)
	})
	return closeErr
}

func closeGateway(gw Instance) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("close panicked: %v", r)
		}
	}()
	gw.Close()
	return nil
}
