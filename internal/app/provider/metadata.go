package provider

// BindingMetadata describes a native binding and the settings it reads.
type BindingMetadata struct {
	Identifier  string           `json:"identifier"`
	DisplayName string           `json:"displayName,omitempty"`
	Description string           `json:"description,omitempty"`
	Settings    []BindingSetting `json:"settings"`
}

// BindingSetting details one configuration key of a binding.
type BindingSetting struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
	Default     any    `json:"default,omitempty"`
}

// Clone returns a deep copy of the metadata.
func (m BindingMetadata) Clone() BindingMetadata {
	clone := m
	if len(m.Settings) > 0 {
		clone.Settings = append([]BindingSetting(nil), m.Settings...)
	}
	return clone
}

var fakeMetadata = BindingMetadata{
	DisplayName: "Simulated front",
	Description: "In-process market data and matching for development and tests",
	Settings: []BindingSetting{
		{Name: "simulator.tickInterval", Type: "duration", Description: "Depth update period per subscribed symbol", Default: "500ms"},
		{Name: "simulator.seed", Type: "int", Description: "Random walk seed"},
		{Name: "simulator.password", Type: "string", Description: "Only accepted login password when set"},
		{Name: "simulator.appID", Type: "string", Description: "Only accepted app id when set"},
	},
}

var bridgeMetadata = BindingMetadata{
	DisplayName: "Websocket bridge",
	Description: "JSON frames to an external process hosting the vendor library",
	Settings: []BindingSetting{
		{Name: "bridge.dialTimeout", Type: "duration", Description: "Websocket dial timeout", Default: "5s"},
		{Name: "bridge.queryRate", Type: "float", Description: "Query requests per second", Default: 1},
		{Name: "bridge.queryBurst", Type: "int", Description: "Query burst size", Default: 1},
	},
}
