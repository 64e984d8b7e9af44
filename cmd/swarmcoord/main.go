package main

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"runtime/debug"
	"strings"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	"github.com/bft-labs/swarmcoord/internal/cliconfig"
	logpkg "github.com/bft-labs/swarmcoord/pkg/log"
	"github.com/bft-labs/swarmcoord/pkg/swarmcoord"
)

const helpBanner = `
 ___ _      ____ _ _ __ _ __ ___   ___ ___   ___  _ __ __| |
/ __| \ /\ / / _' | '__| '_ ' _ \ / __/ _ \ / _ \| '__/ _' |
\__ \\ V  V / (_| | |  | | | | | | (_| (_) | (_) | | | (_| |
|___/ \_/\_/ \__,_|_|  |_| |_| |_|\___\___/ \___/|_|  \__,_|
`

const helpDescription = `
Coordinate a swarm of agents: phase lifecycles, majority votes and
emergency protocols.

Highlights:
  - Decisions and agent statuses live as JSON under --data-dir.
  - Transition history can be kept in SQLite with --history-db.
  - Configure via file, env (SWARMCOORD_*) or flags.
`

var longHelp = color.CyanString(strings.Trim(helpBanner, "\n")) + "\n\n" + strings.TrimSpace(helpDescription)

var exampleUsage = strings.TrimSpace(`
  swarmcoord create-decision --title "Rotate keys" --proposer captain
  swarmcoord vote --decision <id> --agent agent-1 --vote yes
  swarmcoord run --roster agent-1,agent-2,agent-3 --once
  swarmcoord test
`)

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

func main() {
	if err := newRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", color.RedString("error:"), err)
		os.Exit(1)
	}
}

// cli carries the resolved configuration and logger into subcommands.
type cli struct {
	cfg     cliconfig.Config
	cfgPath string
	out     io.Writer
	errOut  io.Writer

	zl     zerolog.Logger
	logger logpkg.Logger
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	c := &cli{cfg: cliconfig.DefaultConfig(), out: out, errOut: errOut}

	root := &cobra.Command{
		Use:           "swarmcoord",
		Short:         "Coordinate agent lifecycles, swarm votes and emergency protocols",
		Long:          longHelp,
		Example:       exampleUsage,
		Version:       fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.loadConfig(cmd)
		},
	}
	root.SetOut(out)
	root.SetErr(errOut)

	f := root.PersistentFlags()
	f.StringVar(&c.cfgPath, "config", "", "path to config file (default: $HOME/.swarmcoord/config.toml)")
	f.StringVar(&c.cfg.DataDir, "data-dir", c.cfg.DataDir, "directory holding decisions.json and agent_status.json")
	f.StringVar(&c.cfg.ProtocolConfig, "protocol-config", c.cfg.ProtocolConfig, "JSON or YAML file with custom emergency protocols")
	f.StringVar(&c.cfg.HistoryDB, "history-db", c.cfg.HistoryDB, "SQLite file for the transition log (empty keeps it in memory)")

	f.DurationVar(&c.cfg.CycleInterval, "cycle-interval", c.cfg.CycleInterval, "pause between coordination passes")
	f.IntVar(&c.cfg.BatchSize, "batch-size", c.cfg.BatchSize, "agents cycled before a batch pause")
	f.DurationVar(&c.cfg.BatchPause, "batch-pause", c.cfg.BatchPause, "pause between batches within a pass")
	f.DurationVar(&c.cfg.ShutdownTimeout, "shutdown-timeout", c.cfg.ShutdownTimeout, "how long Stop waits for the loop")

	f.IntVar(&c.cfg.VoteThreshold, "vote-threshold", c.cfg.VoteThreshold, "votes needed to resolve a decision")
	f.IntVar(&c.cfg.SwarmSize, "swarm-size", c.cfg.SwarmSize, "nominal number of voting agents")
	f.StringSliceVar(&c.cfg.Roster, "roster", c.cfg.Roster, "agent IDs allowed to vote (default agent-1..agent-N)")

	f.IntVar(&c.cfg.MinObservations, "min-observations", c.cfg.MinObservations, "observations before analysis")
	f.IntVar(&c.cfg.MaxDebateRounds, "max-debate-rounds", c.cfg.MaxDebateRounds, "debate rounds before a forced decision")
	f.IntVar(&c.cfg.MaxRecoveries, "max-recoveries", c.cfg.MaxRecoveries, "recoveries before an agent is terminated")

	f.StringVar(&c.cfg.LogLevel, "log-level", c.cfg.LogLevel, "log level (debug, info, warn, error)")
	f.StringVar(&c.cfg.LogFormat, "log-format", c.cfg.LogFormat, "log format (console or json)")

	f.BoolVar(&c.cfg.WatchProtocols, "watch-protocols", c.cfg.WatchProtocols, "reload the protocol file when it changes (run only)")
	f.StringSliceVar(&c.cfg.KafkaBrokers, "kafka-brokers", c.cfg.KafkaBrokers, "publish swarm events to these Kafka brokers (run only)")
	f.StringVar(&c.cfg.KafkaTopic, "kafka-topic", c.cfg.KafkaTopic, "Kafka topic for swarm events")
	if err := root.PersistentFlags().MarkHidden("shutdown-timeout"); err != nil {
		fmt.Fprintf(errOut, "hide shutdown-timeout flag: %v\n", err)
	}

	root.AddCommand(
		c.createDecisionCmd(),
		c.voteCmd(),
		c.statusCmd(),
		c.listDecisionsCmd(),
		c.getDecisionCmd(),
		c.protocolCmd(),
		c.runCmd(),
		c.testCmd(),
	)
	return root
}

// loadConfig resolves configuration with precedence flags > env > file >
// defaults, validates it and builds the logger.
func (c *cli) loadConfig(cmd *cobra.Command) error {
	cfgFile := c.cfgPath
	if cfgFile == "" {
		cfgFile = cliconfig.DefaultConfigPath()
	}

	changed := map[string]bool{}
	cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })

	if cfgFile != "" && cliconfig.FileExists(cfgFile) {
		fc, err := cliconfig.LoadFileConfig(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if err := cliconfig.ApplyFileConfig(&c.cfg, fc, changed); err != nil {
			return err
		}
	}
	if err := cliconfig.ApplyEnvConfig(&c.cfg, changed); err != nil {
		return err
	}
	if err := c.cfg.Validate(); err != nil {
		return err
	}

	zl, err := cliconfig.NewZerolog(c.cfg, c.errOut)
	if err != nil {
		return err
	}
	c.zl = zl
	c.logger = logpkg.NewZerologAdapterWithLogger(zl)
	c.zl.Debug().Interface("config", c.cfg).Msg("configuration")
	return nil
}

func (c *cli) libConfig() swarmcoord.Config {
	return swarmcoord.Config{
		DataDir:            c.cfg.DataDir,
		ProtocolConfigPath: c.cfg.ProtocolConfig,
		HistoryDB:          c.cfg.HistoryDB,
		CycleInterval:      c.cfg.CycleInterval,
		BatchSize:          c.cfg.BatchSize,
		BatchPause:         c.cfg.BatchPause,
		ShutdownTimeout:    c.cfg.ShutdownTimeout,
		VoteThreshold:      c.cfg.VoteThreshold,
		SwarmSize:          c.cfg.SwarmSize,
		Roster:             c.cfg.Roster,
		MinObservations:    c.cfg.MinObservations,
		MaxDebateRounds:    c.cfg.MaxDebateRounds,
		MaxRecoveries:      c.cfg.MaxRecoveries,
	}
}

// openSwarm builds a Swarm for one-shot commands. Callers must Close it.
func (c *cli) openSwarm(opts ...swarmcoord.Option) (*swarmcoord.Swarm, error) {
	opts = append([]swarmcoord.Option{swarmcoord.WithLogger(c.logger)}, opts...)
	s, err := swarmcoord.New(c.libConfig(), opts...)
	if err != nil {
		return nil, fmt.Errorf("open swarm: %w", err)
	}
	return s, nil
}

// paint colors a status word by what it means for the operator.
func paint(word string) string {
	switch word {
	case "approved", "completed", "resolved", "active", "PASS":
		return color.GreenString(word)
	case "pending", "voting", "escalated", "simulated", "tied", "busy":
		return color.YellowString(word)
	case "rejected", "failed", "FAIL", "error":
		return color.RedString(word)
	default:
		return word
	}
}
