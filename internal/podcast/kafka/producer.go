package kafka

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	kafkago "github.com/segmentio/kafka-go"
)

type ProducerConfig struct {
	Brokers      []string
	Topic        string
	MaxRetries   int
	RetryBackoff time.Duration
	WriteTimeout time.Duration
	BatchSize    int
	Async        bool
	Logger       zerolog.Logger
}

type Message struct {
	Key   string
	Value []byte
}

type producerMetrics struct {
	MessagesPublished atomic.Int64
	MessagesFailed    atomic.Int64
	RetriesTotal      atomic.Int64
	PublishDuration   atomic.Int64 // cumulative nanoseconds
}

type Metrics struct {
	MessagesPublished int64
	MessagesFailed    int64
	RetriesTotal      int64
	AvgPublishTime    time.Duration
}

// Producer publishes podcast pipeline events to Kafka with bounded retries
// for broker-side flakiness.
type Producer struct {
	config  ProducerConfig
	writer  *kafkago.Writer
	logger  zerolog.Logger
	metrics producerMetrics
	closed  atomic.Bool
}

func validateConfig(cfg *ProducerConfig) error {
	if len(cfg.Brokers) == 0 {
		return fmt.Errorf("brokers list is empty")
	}
	if cfg.Topic == "" {
		return fmt.Errorf("topic is empty")
	}
	if cfg.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative")
	}
	if cfg.RetryBackoff < 0 {
		return fmt.Errorf("retry_backoff cannot be negative")
	}
	if cfg.WriteTimeout < 0 {
		return fmt.Errorf("write_timeout cannot be negative")
	}
	return nil
}

func setDefaults(cfg *ProducerConfig) {
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryBackoff == 0 {
		cfg.RetryBackoff = 100 * time.Millisecond
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 100
	}
}

func NewProducer(cfg ProducerConfig) (*Producer, error) {
	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}
	setDefaults(&cfg)

	return &Producer{
		config: cfg,
		writer: &kafkago.Writer{
			Addr:  kafkago.TCP(cfg.Brokers...),
			Topic: cfg.Topic,
			// Hash routing keeps all messages with one key on one
			// partition, which is what gives consumers per-podcast
			// event ordering.
			Balancer:     &kafkago.Hash{},
			BatchSize:    cfg.BatchSize,
			WriteTimeout: cfg.WriteTimeout,
			Async:        cfg.Async,
		},
		logger: cfg.Logger.With().Str("component", "kafka_producer").Str("topic", cfg.Topic).Logger(),
	}, nil
}

// isRetriableError separates broker-side flakiness from errors that will
// never succeed no matter how often we retry. Unknown errors default to
// retriable, since dropping an event is worse than a duplicate attempt.
func isRetriableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	msg := strings.ToLower(err.Error())
	for _, permanent := range []string{
		"invalid message",
		"message too large",
		"authorization failed",
		"unknown topic",
	} {
		if strings.Contains(msg, permanent) {
			return false
		}
	}
	return true
}

func (p *Producer) Publish(ctx context.Context, key string, value []byte) error {
	return p.PublishBatch(ctx, []Message{{Key: key, Value: value}})
}

func (p *Producer) PublishBatch(ctx context.Context, messages []Message) error {
	if p.closed.Load() {
		return fmt.Errorf("producer is closed")
	}
	if len(messages) == 0 {
		return nil
	}

	kmsgs := make([]kafkago.Message, len(messages))
	for i, m := range messages {
		kmsgs[i] = kafkago.Message{Key: []byte(m.Key), Value: m.Value}
	}

	start := time.Now()
	var err error
	for attempt := 0; attempt <= p.config.MaxRetries; attempt++ {
		if attempt > 0 {
			p.metrics.RetriesTotal.Add(1)
			select {
			case <-ctx.Done():
				p.metrics.MessagesFailed.Add(int64(len(messages)))
				return ctx.Err()
			case <-time.After(p.config.RetryBackoff):
			}
		}

		err = p.writer.WriteMessages(ctx, kmsgs...)
		if err == nil {
			p.metrics.MessagesPublished.Add(int64(len(messages)))
			p.metrics.PublishDuration.Add(int64(time.Since(start)))
			return nil
		}
		if !isRetriableError(err) {
			break
		}
		p.logger.Warn().Err(err).Int("attempt", attempt+1).Msg("kafka publish failed, retrying")
	}

	p.metrics.MessagesFailed.Add(int64(len(messages)))
	return fmt.Errorf("kafka publish: %w", err)
}

func (p *Producer) HealthCheck(ctx context.Context) error {
	if p.closed.Load() {
		return fmt.Errorf("producer is closed")
	}
	conn, err := kafkago.DialContext(ctx, "tcp", p.config.Brokers[0])
	if err != nil {
		return fmt.Errorf("kafka dial: %w", err)
	}
	return conn.Close()
}

func (p *Producer) GetMetrics() Metrics {
	m := Metrics{
		MessagesPublished: p.metrics.MessagesPublished.Load(),
		MessagesFailed:    p.metrics.MessagesFailed.Load(),
		RetriesTotal:      p.metrics.RetriesTotal.Load(),
	}
	if m.MessagesPublished > 0 {
		m.AvgPublishTime = time.Duration(p.metrics.PublishDuration.Load() / m.MessagesPublished)
	}
	return m
}

func (p *Producer) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return fmt.Errorf("producer is already closed")
	}
	return p.writer.Close()
}
