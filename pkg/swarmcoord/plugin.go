package swarmcoord

import "context"

// Plugin extends a Swarm with optional behavior. Plugins are initialized in
// registration order on Start and shut down in reverse order on Stop.
type Plugin interface {
	Name() string
	Initialize(ctx context.Context, cfg PluginConfig) error
	Shutdown(ctx context.Context) error
}

// ProtocolReloader replaces the custom protocol set. Returns the number of
// protocols known after the reload.
type ProtocolReloader interface {
	Reload(custom map[string]Protocol) int
}

// PluginConfig is what a plugin gets at initialization.
type PluginConfig struct {
	DataDir            string
	ProtocolConfigPath string
	Logger             Logger
	Protocols          ProtocolReloader
}
