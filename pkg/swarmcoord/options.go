package swarmcoord

// Option configures optional behavior of a Swarm.
type Option func(*options)

type options struct {
	logger      Logger
	handlers    []EventHandler
	plugins     []Plugin
	strategy    Strategy
	transitions TransitionStore
}

// WithLogger sets the structured logger. Default: no output.
func WithLogger(logger Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithEventHandler adds an event handler. Several handlers are called in
// the order they were added.
func WithEventHandler(handler EventHandler) Option {
	return func(o *options) {
		if handler != nil {
			o.handlers = append(o.handlers, handler)
		}
	}
}

// WithPlugin registers a plugin to be initialized when the Swarm starts.
// A plugin that also implements EventHandler receives events after the
// handlers added with WithEventHandler; do not add it twice.
func WithPlugin(plugin Plugin) Option {
	return func(o *options) {
		o.plugins = append(o.plugins, plugin)
	}
}

// WithStrategy replaces the default transition strategy.
func WithStrategy(s Strategy) Option {
	return func(o *options) {
		o.strategy = s
	}
}

// WithTransitionStore sets the transition audit log, overriding
// Config.HistoryDB. The Swarm does not close a store it was given.
func WithTransitionStore(store TransitionStore) Option {
	return func(o *options) {
		o.transitions = store
	}
}
