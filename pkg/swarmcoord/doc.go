// Package swarmcoord provides an embeddable swarm coordinator: a lifecycle
// state machine for agents, majority-vote swarm decisions and emergency
// protocols.
//
// # Basic Usage
//
//	s, err := swarmcoord.New(swarmcoord.Config{DataDir: "data/swarm"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer s.Close()
//
//	if err := s.RegisterAgent(myAgent); err != nil {
//	    log.Fatal(err)
//	}
//	if err := s.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// Agents implement [SwarmAgent]. Every loop pass cycles each registered
// agent once: the method for its current phase runs, the result is stored
// in its context and the [Strategy] picks the next phase.
//
// # Decisions
//
// [Swarm.Decisions] creates decisions and records votes. A decision
// resolves once the number of ballots reaches Config.VoteThreshold. It is
// approved when yes votes outnumber no votes, rejected in the opposite case
// and tied otherwise. Every change is written to DataDir before the call
// returns.
//
// # Emergency Protocols
//
// [Swarm.Protocols] activates and executes emergency protocols. Two are
// built in (workflow_restoration, agent_recovery); more can be loaded
// from Config.ProtocolConfigPath and hot-reloaded with the protocolwatcher
// plugin.
//
// # Events and Plugins
//
// Implement [EventHandler] (embed [BaseEventHandler]) and pass it with
// [WithEventHandler]. Plugins passed with [WithPlugin] are initialized on
// Start in order and shut down on Stop in reverse order. A plugin that
// implements EventHandler is subscribed automatically:
//
//	import "github.com/bft-labs/swarmcoord/plugins/protocolwatcher"
//	import "github.com/bft-labs/swarmcoord/plugins/kafkasink"
//
//	s, err := swarmcoord.New(cfg,
//	    protocolwatcher.WithDefaultProtocolWatcher(),
//	    kafkasink.WithKafkaSink(kafkasink.DefaultConfig(brokers)),
//	)
package swarmcoord
