package models

// DiscoveredDevice is a TV that answered a broadcast probe.
// Discovery is a one-shot enumeration; nothing here is session state.
type DiscoveredDevice struct {
	Address   string            `json:"address"`
	Name      string            `json:"name,omitempty"`
	ModelName string            `json:"modelName,omitempty"`
	Location  string            `json:"location,omitempty"`
	Headers   map[string]string `json:"headers,omitempty"`
}
