package kafkasink

import "github.com/bft-labs/swarmcoord/pkg/swarmcoord"

// WithKafkaSink returns a swarmcoord Option that publishes swarm events to
// Kafka. The sink is registered as a plugin and, through that, as an event
// handler.
//
// Usage:
//
//	s, err := swarmcoord.New(cfg,
//	    kafkasink.WithKafkaSink(kafkasink.DefaultConfig([]string{"localhost:9092"})),
//	)
func WithKafkaSink(cfg Config) swarmcoord.Option {
	return swarmcoord.WithPlugin(New(cfg))
}
