package config

import (
	"strings"
)

// Environment identifies the runtime environment where the gateway operates.
type Environment string

const (
	// EnvDev marks the development environment.
	EnvDev Environment = "dev"
	// EnvStaging marks the staging environment.
	EnvStaging Environment = "staging"
	// EnvProd marks the production environment.
	EnvProd Environment = "prod"
)

// Binding selects the native front implementation behind a gateway.
type Binding string

const (
	// BindingFake runs the in-process simulator.
	BindingFake Binding = "fake"
	// BindingBridge speaks JSON frames to an external CTP bridge over websocket.
	BindingBridge Binding = "bridge"
)

func normalizeGatewayName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
