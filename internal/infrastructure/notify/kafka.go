package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"

	"github.com/turtacn/keyvault/internal/config"
	"github.com/turtacn/keyvault/internal/domain/models"
	"github.com/turtacn/keyvault/internal/domain/service"
	"github.com/turtacn/keyvault/internal/infrastructure/monitoring"
	"github.com/turtacn/keyvault/pkg/logger"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

var _ service.ChangeNotifier = (*KafkaPublisher)(nil)

// headerCarrier adapts kafka message headers to a propagation.TextMapCarrier.
type headerCarrier struct {
	headers *[]kafka.Header
}

var _ propagation.TextMapCarrier = headerCarrier{}

func (c headerCarrier) Get(key string) string {
	for _, h := range *c.headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c headerCarrier) Set(key, value string) {
	for i, h := range *c.headers {
		if h.Key == key {
			(*c.headers)[i].Value = []byte(value)
			return
		}
	}
	*c.headers = append(*c.headers, kafka.Header{Key: key, Value: []byte(value)})
}

func (c headerCarrier) Keys() []string {
	keys := make([]string, 0, len(*c.headers))
	for _, h := range *c.headers {
		keys = append(keys, h.Key)
	}
	return keys
}

// KafkaPublisher publishes keys-changed events so other instances can relay
// them to their own observers. Messages are keyed by keyring id.
type KafkaPublisher struct {
	writer  messageWriter
	timeout time.Duration
	metrics *monitoring.Metrics
	tracing *monitoring.TracingManager
	logger  logger.Logger
}

// NewKafkaPublisher creates a KafkaPublisher writing to cfg.EventsTopic.
func NewKafkaPublisher(cfg config.KafkaConfig, metrics *monitoring.Metrics, tracing *monitoring.TracingManager, log logger.Logger) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.EventsTopic,
		Balancer:     &kafka.Hash{},
		WriteTimeout: cfg.WriteTimeout,
		RequiredAcks: kafka.RequiredAcks(cfg.RequiredAcks),
		BatchTimeout: cfg.BatchTimeout,
	}
	return newKafkaPublisher(writer, cfg.WriteTimeout, metrics, tracing, log)
}

func newKafkaPublisher(w messageWriter, timeout time.Duration, metrics *monitoring.Metrics, tracing *monitoring.TracingManager, log logger.Logger) *KafkaPublisher {
	if log == nil {
		log = logger.NewNoopLogger()
	}
	if tracing == nil {
		tracing = monitoring.NewNoopTracingManager()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &KafkaPublisher{
		writer:  w,
		timeout: timeout,
		metrics: metrics,
		tracing: tracing,
		logger:  log.WithComponent("KafkaPublisher"),
	}
}

// NotifyKeysChanged writes the event in the background; failures are logged
// and counted, never returned.
func (p *KafkaPublisher) NotifyKeysChanged(ctx context.Context, event models.KeysChangedEvent) {
	value, err := json.Marshal(event)
	if err != nil {
		p.logger.Error(ctx, "Failed to marshal keys-changed event", err)
		return
	}
	msg := kafka.Message{Key: []byte(event.KeyringID), Value: value}
	p.tracing.InjectTraceContext(ctx, headerCarrier{headers: &msg.Headers})

	// The caller's ctx ends with its request; the write must outlive it.
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	go func() {
		defer cancel()
		if err := p.writer.WriteMessages(writeCtx, msg); err != nil {
			p.metrics.RecordNotificationDropped("kafka")
			p.logger.Error(writeCtx, "Failed to publish keys-changed event", err,
				logger.String("event_id", event.EventID),
			)
		}
	}()
}

// Close flushes and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// KafkaConsumer relays keys-changed events published by other instances into
// a local notifier. Events carrying this instance's source are skipped since
// they were already delivered locally.
type KafkaConsumer struct {
	reader  messageReader
	target  service.ChangeNotifier
	source  string
	tracing *monitoring.TracingManager
	logger  logger.Logger
}

// NewKafkaConsumer creates a consumer for cfg.EventsTopic. Every instance
// needs its own group id to see every event.
func NewKafkaConsumer(cfg config.KafkaConfig, source string, target service.ChangeNotifier, tracing *monitoring.TracingManager, log logger.Logger) *KafkaConsumer {
	groupID := cfg.GroupID
	if groupID == "" {
		groupID = "keyvault-events-" + source
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.EventsTopic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       1e6, // 1MB
		CommitInterval: time.Second,
		StartOffset:    kafka.LastOffset,
	})
	return newKafkaConsumer(reader, source, target, tracing, log)
}

func newKafkaConsumer(r messageReader, source string, target service.ChangeNotifier, tracing *monitoring.TracingManager, log logger.Logger) *KafkaConsumer {
	if log == nil {
		log = logger.NewNoopLogger()
	}
	if tracing == nil {
		tracing = monitoring.NewNoopTracingManager()
	}
	return &KafkaConsumer{
		reader:  r,
		target:  target,
		source:  source,
		tracing: tracing,
		logger:  log.WithComponent("KafkaConsumer"),
	}
}

// Run consumes until ctx is done. It's a blocking call.
func (c *KafkaConsumer) Run(ctx context.Context) error {
	c.logger.Info(ctx, "Starting keys-changed consumer")
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info(context.Background(), "Stopping keys-changed consumer")
				return nil
			}
			c.logger.Error(ctx, "Failed to fetch message from kafka", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}

		c.relay(ctx, msg)

		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.Error(ctx, "Failed to commit kafka message", err)
		}
	}
}

// relay delivers one message under a span continuing the publisher's trace.
func (c *KafkaConsumer) relay(ctx context.Context, msg kafka.Message) {
	headers := msg.Headers
	spanCtx, span := c.tracing.StartSpan(
		c.tracing.ExtractTraceContext(ctx, headerCarrier{headers: &headers}),
		"notify.relay",
		attribute.Int64("kafka.offset", msg.Offset),
		attribute.Int("kafka.partition", msg.Partition),
	)

	var event models.KeysChangedEvent
	err := json.Unmarshal(msg.Value, &event)
	switch {
	case err != nil:
		// Commit poison messages so they are not redelivered.
		c.logger.Warn(ctx, "Skipping malformed keys-changed event", logger.Err(err))
	case event.Source != c.source:
		c.target.NotifyKeysChanged(spanCtx, event)
	}
	c.tracing.EndSpan(span, err)
}

// Close closes the reader.
func (c *KafkaConsumer) Close() error {
	return c.reader.Close()
}
