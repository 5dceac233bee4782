package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys shared by gateway metrics.
const (
	AttrEnvironment = attribute.Key("environment")
	AttrGateway     = attribute.Key("gateway")
	// AttrSession distinguishes the market data session from the trading session.
	AttrSession   = attribute.Key("session")
	AttrEventType = attribute.Key("event.type")
	AttrState     = attribute.Key("session.state")
	AttrOperation = attribute.Key("operation")
	AttrResult    = attribute.Key("result")
	AttrTable     = attribute.Key("table")
	AttrTopic     = attribute.Key("topic")
)

// Result values recorded under AttrResult.
const (
	ResultSuccess  = "success"
	ResultRejected = "rejected"
	ResultError    = "error"
)

// GatewayAttributes returns the base attribute set for per-gateway metrics.
func GatewayAttributes(environment, gateway string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrEnvironment.String(environment),
		AttrGateway.String(gateway),
	}
}

// OperationAttributes labels a request-style operation with its outcome.
func OperationAttributes(environment, gateway, operation, result string) []attribute.KeyValue {
	return append(GatewayAttributes(environment, gateway),
		AttrOperation.String(operation),
		AttrResult.String(result),
	)
}
