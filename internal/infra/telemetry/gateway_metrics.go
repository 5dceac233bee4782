package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/metric"

	"github.com/coachpo/ctpgate/internal/domain/schema"
)

// GatewayMetrics records gateway activity. A nil receiver is a no-op.
type GatewayMetrics struct {
	environment string
	events      metric.Int64Counter
	requests    metric.Int64Counter
	transitions metric.Int64Counter
	reconnects  metric.Int64Counter
}

// NewGatewayMetrics creates the gateway instruments on the provider's meter.
func NewGatewayMetrics(p *Provider) *GatewayMetrics {
	meter := p.Meter("ctpgate/gateway")
	m := &GatewayMetrics{environment: p.Environment()}
	m.events, _ = meter.Int64Counter("gateway.events.published",
		metric.WithDescription("Normalized events published by gateways"),
		metric.WithUnit("{event}"))
	m.requests, _ = meter.Int64Counter("gateway.requests",
		metric.WithDescription("Order, cancel and query requests by outcome"),
		metric.WithUnit("{request}"))
	m.transitions, _ = meter.Int64Counter("gateway.session.transitions",
		metric.WithDescription("Session state transitions"),
		metric.WithUnit("{transition}"))
	m.reconnects, _ = meter.Int64Counter("gateway.reconnects",
		metric.WithDescription("Supervisor initiated reconnect attempts"),
		metric.WithUnit("{attempt}"))
	return m
}

// RecordEvent counts one published event.
func (m *GatewayMetrics) RecordEvent(ctx context.Context, gateway string, typ schema.EventType) {
	if m == nil || m.events == nil {
		return
	}
	attrs := append(GatewayAttributes(m.environment, gateway), AttrEventType.String(string(typ)))
	m.events.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordRequest counts one outbound request and its local outcome.
func (m *GatewayMetrics) RecordRequest(ctx context.Context, gateway, operation, result string) {
	if m == nil || m.requests == nil {
		return
	}
	m.requests.Add(ctx, 1, metric.WithAttributes(OperationAttributes(m.environment, gateway, operation, result)...))
}

// RecordTransition counts a session entering a state.
func (m *GatewayMetrics) RecordTransition(ctx context.Context, gateway, session, state string) {
	if m == nil || m.transitions == nil {
		return
	}
	attrs := append(GatewayAttributes(m.environment, gateway),
		AttrSession.String(session),
		AttrState.String(state),
	)
	m.transitions.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordReconnect counts a supervisor reconnect attempt.
func (m *GatewayMetrics) RecordReconnect(ctx context.Context, gateway string) {
	if m == nil || m.reconnects == nil {
		return
	}
	m.reconnects.Add(ctx, 1, metric.WithAttributes(GatewayAttributes(m.environment, gateway)...))
}
