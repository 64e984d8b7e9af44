package cliconfig

import (
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"
)

// FileConfig mirrors Config but uses strings for durations to make TOML friendly.
type FileConfig struct {
	DataDir         string   `toml:"data_dir"`
	ProtocolConfig  string   `toml:"protocol_config"`
	HistoryDB       string   `toml:"history_db"`
	CycleInterval   string   `toml:"cycle_interval"`
	BatchSize       int      `toml:"batch_size"`
	BatchPause      string   `toml:"batch_pause"`
	ShutdownTimeout string   `toml:"shutdown_timeout"`
	VoteThreshold   int      `toml:"vote_threshold"`
	SwarmSize       int      `toml:"swarm_size"`
	Roster          []string `toml:"roster"`
	MinObservations int      `toml:"min_observations"`
	MaxDebateRounds int      `toml:"max_debate_rounds"`
	MaxRecoveries   int      `toml:"max_recoveries"`
	LogLevel        string   `toml:"log_level"`
	LogFormat       string   `toml:"log_format"`
	WatchProtocols  *bool    `toml:"watch_protocols"`
	KafkaBrokers    []string `toml:"kafka_brokers"`
	KafkaTopic      string   `toml:"kafka_topic"`
}

// LoadFileConfig reads and parses a TOML config file from the given path.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := toml.Unmarshal(b, &fc); err != nil {
		return fc, err
	}
	return fc, nil
}

// DefaultConfigPath returns ~/.swarmcoord/config.toml, or "" when the home
// directory cannot be resolved.
func DefaultConfigPath() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".swarmcoord", "config.toml")
	}
	return ""
}

// ApplyFileConfig applies configuration from a file to the Config struct.
// It respects flags that have been explicitly set (changed map).
func ApplyFileConfig(cfg *Config, fc FileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("data-dir", fc.DataDir, &cfg.DataDir)
	s.setString("protocol-config", fc.ProtocolConfig, &cfg.ProtocolConfig)
	s.setString("history-db", fc.HistoryDB, &cfg.HistoryDB)
	s.setString("log-level", fc.LogLevel, &cfg.LogLevel)
	s.setString("log-format", fc.LogFormat, &cfg.LogFormat)
	s.setString("kafka-topic", fc.KafkaTopic, &cfg.KafkaTopic)

	if err := s.setDuration("cycle-interval", fc.CycleInterval, &cfg.CycleInterval); err != nil {
		return err
	}
	if err := s.setDuration("batch-pause", fc.BatchPause, &cfg.BatchPause); err != nil {
		return err
	}
	if err := s.setDuration("shutdown-timeout", fc.ShutdownTimeout, &cfg.ShutdownTimeout); err != nil {
		return err
	}

	s.setInt("batch-size", fc.BatchSize, &cfg.BatchSize)
	s.setInt("vote-threshold", fc.VoteThreshold, &cfg.VoteThreshold)
	s.setInt("swarm-size", fc.SwarmSize, &cfg.SwarmSize)
	s.setInt("min-observations", fc.MinObservations, &cfg.MinObservations)
	s.setInt("max-debate-rounds", fc.MaxDebateRounds, &cfg.MaxDebateRounds)
	s.setInt("max-recoveries", fc.MaxRecoveries, &cfg.MaxRecoveries)

	s.setStrings("roster", fc.Roster, &cfg.Roster)
	s.setStrings("kafka-brokers", fc.KafkaBrokers, &cfg.KafkaBrokers)

	s.setBool("watch-protocols", fc.WatchProtocols, &cfg.WatchProtocols)

	return nil
}

// FileExists checks if a file exists at the given path.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
