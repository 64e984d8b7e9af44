package cliconfig

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// DefaultKafkaTopic is the topic used by the kafka sink when none is configured.
const DefaultKafkaTopic = "swarmcoord.events"

// Config holds CLI configuration for swarmcoord.
type Config struct {
	DataDir        string
	ProtocolConfig string
	HistoryDB      string

	CycleInterval   time.Duration
	BatchSize       int
	BatchPause      time.Duration
	ShutdownTimeout time.Duration

	VoteThreshold int
	SwarmSize     int
	Roster        []string

	MinObservations int
	MaxDebateRounds int
	MaxRecoveries   int

	LogLevel  string
	LogFormat string

	WatchProtocols bool
	KafkaBrokers   []string
	KafkaTopic     string
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		DataDir:         filepath.Join("data", "swarm"),
		ProtocolConfig:  filepath.Join("config", "protocol_manager.json"),
		CycleInterval:   60 * time.Second,
		BatchSize:       50,
		BatchPause:      100 * time.Millisecond,
		ShutdownTimeout: 30 * time.Second,
		VoteThreshold:   5,
		SwarmSize:       8,
		MinObservations: 3,
		MaxDebateRounds: 3,
		MaxRecoveries:   3,
		LogLevel:        "info",
		LogFormat:       "console",
		KafkaTopic:      DefaultKafkaTopic,
	}
}

// Validate checks the configuration for errors and sets derived defaults.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data-dir is required")
	}
	if c.CycleInterval <= 0 {
		return fmt.Errorf("cycle interval must be positive")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive")
	}
	if c.VoteThreshold <= 0 {
		return fmt.Errorf("vote threshold must be positive")
	}
	if c.SwarmSize <= 0 {
		return fmt.Errorf("swarm size must be positive")
	}
	if c.VoteThreshold > c.SwarmSize {
		return fmt.Errorf("vote threshold %d exceeds swarm size %d", c.VoteThreshold, c.SwarmSize)
	}
	if len(c.Roster) > c.SwarmSize {
		return fmt.Errorf("roster has %d agents but swarm size is %d", len(c.Roster), c.SwarmSize)
	}

	c.LogFormat = strings.ToLower(c.LogFormat)
	switch c.LogFormat {
	case "":
		c.LogFormat = "console"
	case "console", "json":
	default:
		return fmt.Errorf("unknown log format %q (want console or json)", c.LogFormat)
	}

	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 30 * time.Second
	}
	if c.KafkaTopic == "" {
		c.KafkaTopic = DefaultKafkaTopic
	}
	return nil
}

// AgentIDs returns the roster, or generated IDs agent-1..agent-N when the
// roster is empty.
func (c *Config) AgentIDs() []string {
	if len(c.Roster) > 0 {
		return append([]string(nil), c.Roster...)
	}
	ids := make([]string, c.SwarmSize)
	for i := range ids {
		ids[i] = fmt.Sprintf("agent-%d", i+1)
	}
	return ids
}

// configSetter helps apply configuration values while respecting flag precedence.
// It only applies values if the corresponding flag hasn't been explicitly set.
type configSetter struct {
	changed map[string]bool
}

func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

// setStrings replaces a list when the source is non-empty.
func (s *configSetter) setStrings(flag string, value []string, dst *[]string) {
	if len(value) == 0 || s.changed[flag] {
		return
	}
	out := make([]string, 0, len(value))
	for _, v := range value {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	if len(out) > 0 {
		*dst = out
	}
}

func (s *configSetter) setInt(flag string, value int, dst *int) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

func (s *configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = d
	return nil
}

func (s *configSetter) setBool(flag string, value *bool, dst *bool) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

// setIntFromString parses a string to int and sets the destination if valid.
// Used for environment variables that come as strings.
func (s *configSetter) setIntFromString(flag, value string, dst *int) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	if i <= 0 {
		return nil
	}
	*dst = i
	return nil
}

// setBoolFromString accepts "true" and "1" as true, anything else as false.
func (s *configSetter) setBoolFromString(flag, value string, dst *bool) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value == "true" || value == "1"
}
