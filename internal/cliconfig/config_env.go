package cliconfig

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix is the prefix of every environment variable read by swarmcoord.
const EnvPrefix = "SWARMCOORD"

// EnvConfig is the environment view of Config. Scalars stay strings so that
// empty values can be told apart from zero.
type EnvConfig struct {
	DataDir         string   `envconfig:"DATA_DIR"`
	ProtocolConfig  string   `envconfig:"PROTOCOL_CONFIG"`
	HistoryDB       string   `envconfig:"HISTORY_DB"`
	CycleInterval   string   `envconfig:"CYCLE_INTERVAL"`
	BatchSize       string   `envconfig:"BATCH_SIZE"`
	BatchPause      string   `envconfig:"BATCH_PAUSE"`
	ShutdownTimeout string   `envconfig:"SHUTDOWN_TIMEOUT"`
	VoteThreshold   string   `envconfig:"VOTE_THRESHOLD"`
	SwarmSize       string   `envconfig:"SWARM_SIZE"`
	Roster          []string `envconfig:"ROSTER"`
	MinObservations string   `envconfig:"MIN_OBSERVATIONS"`
	MaxDebateRounds string   `envconfig:"MAX_DEBATE_ROUNDS"`
	MaxRecoveries   string   `envconfig:"MAX_RECOVERIES"`
	LogLevel        string   `envconfig:"LOG_LEVEL"`
	LogFormat       string   `envconfig:"LOG_FORMAT"`
	WatchProtocols  string   `envconfig:"WATCH_PROTOCOLS"`
	KafkaBrokers    []string `envconfig:"KAFKA_BROKERS"`
	KafkaTopic      string   `envconfig:"KAFKA_TOPIC"`
}

// LoadEnvConfig reads SWARMCOORD_* variables.
func LoadEnvConfig() (EnvConfig, error) {
	var ec EnvConfig
	if err := envconfig.Process(EnvPrefix, &ec); err != nil {
		return ec, fmt.Errorf("read environment: %w", err)
	}
	return ec, nil
}

// ApplyEnvConfig applies SWARMCOORD_* environment variables to cfg, skipping
// any value whose flag was set explicitly.
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	ec, err := LoadEnvConfig()
	if err != nil {
		return err
	}
	s := newConfigSetter(changed)

	s.setString("data-dir", ec.DataDir, &cfg.DataDir)
	s.setString("protocol-config", ec.ProtocolConfig, &cfg.ProtocolConfig)
	s.setString("history-db", ec.HistoryDB, &cfg.HistoryDB)
	s.setString("log-level", ec.LogLevel, &cfg.LogLevel)
	s.setString("log-format", ec.LogFormat, &cfg.LogFormat)
	s.setString("kafka-topic", ec.KafkaTopic, &cfg.KafkaTopic)

	durations := []struct {
		flag  string
		value string
		dst   *time.Duration
	}{
		{"cycle-interval", ec.CycleInterval, &cfg.CycleInterval},
		{"batch-pause", ec.BatchPause, &cfg.BatchPause},
		{"shutdown-timeout", ec.ShutdownTimeout, &cfg.ShutdownTimeout},
	}
	for _, d := range durations {
		if err := s.setDuration(d.flag, d.value, d.dst); err != nil {
			return err
		}
	}

	ints := []struct {
		flag  string
		value string
		dst   *int
	}{
		{"batch-size", ec.BatchSize, &cfg.BatchSize},
		{"vote-threshold", ec.VoteThreshold, &cfg.VoteThreshold},
		{"swarm-size", ec.SwarmSize, &cfg.SwarmSize},
		{"min-observations", ec.MinObservations, &cfg.MinObservations},
		{"max-debate-rounds", ec.MaxDebateRounds, &cfg.MaxDebateRounds},
		{"max-recoveries", ec.MaxRecoveries, &cfg.MaxRecoveries},
	}
	for _, i := range ints {
		if err := s.setIntFromString(i.flag, i.value, i.dst); err != nil {
			return err
		}
	}

	s.setStrings("roster", ec.Roster, &cfg.Roster)
	s.setStrings("kafka-brokers", ec.KafkaBrokers, &cfg.KafkaBrokers)
	s.setBoolFromString("watch-protocols", ec.WatchProtocols, &cfg.WatchProtocols)

	return nil
}
