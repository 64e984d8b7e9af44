// Package kafkasink publishes swarm events to a Kafka topic.
//
// The sink is both a swarmcoord.Plugin and a swarmcoord.EventHandler.
// Events are JSON envelopes keyed by the agent, decision or protocol they
// concern, so each key stays ordered within its partition. Publishing is
// asynchronous; a slow or unavailable broker never blocks the swarm.
package kafkasink

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/bft-labs/swarmcoord/pkg/log"
	"github.com/bft-labs/swarmcoord/pkg/swarmcoord"
)

// Event types.
const (
	TypeLoopState          = "loop_state"
	TypePhaseTransition    = "phase_transition"
	TypeDecisionResolved   = "decision_resolved"
	TypeProtocolStatus     = "protocol_status"
	TypeSwarmNotification  = "swarm_notification"
	loopKey                = "loop"
	defaultTopic           = "swarmcoord.events"
	defaultBufferSize      = 256
	defaultMaxAttempts     = 3
	defaultBackoffInitial  = 200 * time.Millisecond
	defaultBackoffMax      = 2 * time.Second
	defaultWriteTimeout    = 5 * time.Second
	defaultShutdownTimeout = 10 * time.Second
)

// Config holds configuration options for the sink.
type Config struct {
	Brokers []string
	Topic   string

	// BufferSize bounds queued events. When full, new events are dropped.
	BufferSize int

	// MaxAttempts is how many times a message is written before giving up.
	MaxAttempts    int
	BackoffInitial time.Duration
	BackoffMax     time.Duration
	WriteTimeout   time.Duration
}

// DefaultConfig returns a Config for the given brokers.
func DefaultConfig(brokers []string) Config {
	return Config{
		Brokers:        brokers,
		Topic:          defaultTopic,
		BufferSize:     defaultBufferSize,
		MaxAttempts:    defaultMaxAttempts,
		BackoffInitial: defaultBackoffInitial,
		BackoffMax:     defaultBackoffMax,
		WriteTimeout:   defaultWriteTimeout,
	}
}

// Envelope is the JSON value of every published message.
type Envelope struct {
	Type    string      `json:"type"`
	Key     string      `json:"key"`
	At      time.Time   `json:"at"`
	Payload interface{} `json:"payload"`
}

// messageWriter is the subset of *kafka.Writer the sink uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Sink publishes swarm events to Kafka. It can be initialized again after
// Shutdown; each run gets a fresh writer and queue.
type Sink struct {
	cfg  Config
	now  func() time.Time
	dial func() messageWriter

	mu      sync.RWMutex
	writer  messageWriter
	logger  log.Logger
	queue   chan kafka.Message
	started bool
	done    chan struct{}

	statsMu   sync.Mutex
	published int
	dropped   int
	failed    int
}

// New creates a sink. The Kafka writer is created on Initialize.
func New(cfg Config) *Sink {
	def := DefaultConfig(cfg.Brokers)
	if cfg.Topic == "" {
		cfg.Topic = def.Topic
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = def.BufferSize
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.BackoffInitial <= 0 {
		cfg.BackoffInitial = def.BackoffInitial
	}
	if cfg.BackoffMax < cfg.BackoffInitial {
		cfg.BackoffMax = max(def.BackoffMax, cfg.BackoffInitial)
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	return &Sink{
		cfg:    cfg,
		now:    time.Now,
		logger: log.Discard,
	}
}

// Name returns the plugin identifier.
func (s *Sink) Name() string {
	return "kafkasink"
}

// Initialize creates the Kafka writer and starts the publishing goroutine.
// Without brokers the sink stays idle and events are discarded.
func (s *Sink) Initialize(ctx context.Context, cfg swarmcoord.PluginConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cfg.Logger != nil {
		s.logger = cfg.Logger
	}
	if s.started {
		return errors.New("kafkasink: already initialized")
	}
	if s.dial == nil && len(s.cfg.Brokers) == 0 {
		s.logger.Warn("kafka sink disabled: no brokers configured")
		return nil
	}

	s.writer = s.newWriter()
	s.queue = make(chan kafka.Message, s.cfg.BufferSize)
	s.done = make(chan struct{})
	s.started = true

	go s.run(s.writer, s.queue, s.done)

	s.logger.Info("kafka sink started",
		log.Strings("brokers", s.cfg.Brokers),
		log.String("topic", s.cfg.Topic))
	return nil
}

func (s *Sink) newWriter() messageWriter {
	if s.dial != nil {
		return s.dial()
	}
	return &kafka.Writer{
		Addr:         kafka.TCP(s.cfg.Brokers...),
		Topic:        s.cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		WriteTimeout: s.cfg.WriteTimeout,
		BatchTimeout: 50 * time.Millisecond,
	}
}

// Shutdown publishes what is queued, then closes the writer.
func (s *Sink) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	writer, done := s.writer, s.done
	close(s.queue)
	s.writer, s.queue = nil, nil
	s.mu.Unlock()

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultShutdownTimeout)
		defer cancel()
	}
	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn("kafka sink shutdown timed out with events queued")
	}
	return writer.Close()
}

// Stats returns how many events were published, dropped on a full queue
// and given up on after MaxAttempts.
func (s *Sink) Stats() (published, dropped, failed int) {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	return s.published, s.dropped, s.failed
}

func (s *Sink) run(writer messageWriter, queue <-chan kafka.Message, done chan<- struct{}) {
	defer close(done)
	ctx := context.Background()

	for msg := range queue {
		var err error
		for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
			wctx, cancel := context.WithTimeout(ctx, s.cfg.WriteTimeout)
			err = writer.WriteMessages(wctx, msg)
			cancel()
			if err == nil {
				break
			}
			if attempt < s.cfg.MaxAttempts {
				delay := s.retryDelay(attempt)
				s.logger.Debug("kafka write failed, retrying",
					log.Int("attempt", attempt),
					log.Duration("backoff", delay),
					log.Err(err))
				time.Sleep(delay)
			}
		}

		s.statsMu.Lock()
		if err != nil {
			s.failed++
		} else {
			s.published++
		}
		s.statsMu.Unlock()

		if err != nil {
			s.logger.Error("kafka publish failed",
				log.String("key", string(msg.Key)),
				log.Err(err))
		}
	}
}

// retryDelay doubles BackoffInitial per failed attempt, caps it at
// BackoffMax and spreads it by up to 20% either way.
func (s *Sink) retryDelay(attempt int) time.Duration {
	d := s.cfg.BackoffInitial
	for i := 1; i < attempt && d < s.cfg.BackoffMax; i++ {
		d *= 2
	}
	if d > s.cfg.BackoffMax {
		d = s.cfg.BackoffMax
	}
	return d + time.Duration(float64(d)*0.2*(rand.Float64()*2-1))
}

func (s *Sink) enqueue(eventType, key string, payload interface{}) {
	at := s.now().UTC()
	value, err := json.Marshal(Envelope{Type: eventType, Key: key, At: at, Payload: payload})
	if err != nil {
		s.logger.Error("kafka sink: encode event", log.String("type", eventType), log.Err(err))
		return
	}
	msg := kafka.Message{
		Key:     []byte(key),
		Value:   value,
		Time:    at,
		Headers: []kafka.Header{{Key: "event_type", Value: []byte(eventType)}},
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return
	}
	select {
	case s.queue <- msg:
	default:
		s.statsMu.Lock()
		s.dropped++
		s.statsMu.Unlock()
		s.logger.Warn("kafka sink queue full, event dropped", log.String("type", eventType))
	}
}

// OnStateChange publishes coordination loop state changes.
func (s *Sink) OnStateChange(e swarmcoord.StateChangeEvent) {
	s.enqueue(TypeLoopState, loopKey, map[string]string{
		"previous": e.Previous.String(),
		"current":  e.Current.String(),
		"reason":   e.Reason,
	})
}

// OnPhaseTransition publishes lifecycle transitions keyed by agent.
func (s *Sink) OnPhaseTransition(t swarmcoord.Transition) {
	s.enqueue(TypePhaseTransition, t.AgentID, t)
}

// OnDecisionResolved publishes resolved decisions keyed by decision ID.
func (s *Sink) OnDecisionResolved(d swarmcoord.Decision) {
	s.enqueue(TypeDecisionResolved, d.DecisionID, d)
}

// OnProtocolStatusChange publishes protocol status changes keyed by protocol.
func (s *Sink) OnProtocolStatusChange(e swarmcoord.ProtocolEvent) {
	s.enqueue(TypeProtocolStatus, e.Protocol, map[string]string{
		"previous":     string(e.Previous),
		"current":      string(e.Current),
		"execution_id": e.ExecutionID,
	})
}

// OnSwarmNotification publishes notify_swarm broadcasts keyed by protocol.
func (s *Sink) OnSwarmNotification(e swarmcoord.NotificationEvent) {
	s.enqueue(TypeSwarmNotification, e.Protocol, map[string]string{"message": e.Message})
}

var (
	_ swarmcoord.Plugin       = (*Sink)(nil)
	_ swarmcoord.EventHandler = (*Sink)(nil)
)
