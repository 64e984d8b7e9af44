package protocolwatcher

import "github.com/bft-labs/swarmcoord/pkg/swarmcoord"

// WithProtocolWatcher returns a swarmcoord Option that hot-reloads custom
// protocols from Config.ProtocolConfigPath.
//
// Usage:
//
//	s, err := swarmcoord.New(cfg,
//	    protocolwatcher.WithProtocolWatcher(protocolwatcher.Config{
//	        DebounceDelay: 250 * time.Millisecond,
//	    }),
//	)
func WithProtocolWatcher(cfg Config) swarmcoord.Option {
	return swarmcoord.WithPlugin(New(cfg))
}

// WithDefaultProtocolWatcher enables the watcher with a 100ms debounce.
func WithDefaultProtocolWatcher() swarmcoord.Option {
	return WithProtocolWatcher(DefaultConfig())
}
