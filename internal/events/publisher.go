// Package events publishes session events to Kafka.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"ai-live-copilot-service/internal/observability/metrics"
)

// Publisher publishes transcript, enrichment and signal events to separate
// Kafka topics.
type Publisher struct {
	writerTranscript *kafka.Writer
	writerEnrichment *kafka.Writer
	writerSignal     *kafka.Writer
	principal        string
	topicTranscript  string
	topicEnrichment  string
	topicSignal      string
	enabled          bool
	metrics          *metrics.Metrics
}

// Config holds Kafka publisher configuration.
type Config struct {
	Brokers         []string
	TopicTranscript string
	TopicEnrichment string
	TopicSignal     string
	Principal       string
	Enabled         bool
}

// New creates a Kafka event publisher. With Kafka disabled events are only
// logged.
func New(cfg *Config) *Publisher {
	m := metrics.DefaultMetrics

	if cfg == nil {
		log.Info().Msg("Kafka disabled (nil config), using log-only mode")
		return &Publisher{
			enabled: false,
			metrics: m,
		}
	}

	p := &Publisher{
		principal:       cfg.Principal,
		topicTranscript: cfg.TopicTranscript,
		topicEnrichment: cfg.TopicEnrichment,
		topicSignal:     cfg.TopicSignal,
		metrics:         m,
	}

	if !cfg.Enabled || len(cfg.Brokers) == 0 {
		log.Info().Msg("Kafka disabled, using log-only mode")
		return p
	}

	// Longer dial timeout for DNS resolution in Kubernetes
	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}
	transport := &kafka.Transport{
		Dial: dialer.DialFunc,
	}

	newWriter := func(topic string) *kafka.Writer {
		return &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			BatchTimeout: 10 * time.Millisecond,
			WriteTimeout: 10 * time.Second,
			RequiredAcks: kafka.RequireOne,
			Transport:    transport,
		}
	}

	p.writerTranscript = newWriter(cfg.TopicTranscript)
	p.writerEnrichment = newWriter(cfg.TopicEnrichment)
	p.writerSignal = newWriter(cfg.TopicSignal)
	p.enabled = true

	log.Info().
		Strs("brokers", cfg.Brokers).
		Str("topicTranscript", cfg.TopicTranscript).
		Str("topicEnrichment", cfg.TopicEnrichment).
		Str("topicSignal", cfg.TopicSignal).
		Str("principal", cfg.Principal).
		Msg("Kafka publisher initialized")

	return p
}

// Enabled reports whether events reach Kafka.
func (p *Publisher) Enabled() bool { return p.enabled }

// PublishTranscript publishes a finalized utterance.
func (p *Publisher) PublishTranscript(ctx context.Context, key string, event any) error {
	return p.publish(ctx, p.writerTranscript, p.topicTranscript, "transcript", key, event)
}

// PublishEnrichment publishes an enrichment update.
func (p *Publisher) PublishEnrichment(ctx context.Context, key string, event any) error {
	return p.publish(ctx, p.writerEnrichment, p.topicEnrichment, "enrichment", key, event)
}

// PublishSignal publishes a one-shot session signal.
func (p *Publisher) PublishSignal(ctx context.Context, key string, event any) error {
	return p.publish(ctx, p.writerSignal, p.topicSignal, "signal", key, event)
}

func (p *Publisher) publish(ctx context.Context, writer *kafka.Writer, topic, eventType, key string, event any) error {
	start := time.Now()

	payload, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("topic", topic).Msg("Failed to marshal event")
		return err
	}

	log.Debug().
		Str("principal", p.principal).
		Str("topic", topic).
		Str("key", key).
		RawJSON("payload", payload).
		Msg("Publishing event")

	if !p.enabled || writer == nil {
		p.metrics.RecordKafkaPublish(topic, eventType, nil, time.Since(start).Seconds())
		return nil
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "eventType", Value: []byte(eventType)},
			{Key: "principal", Value: []byte(p.principal)},
		},
	}

	if err := writer.WriteMessages(ctx, msg); err != nil {
		log.Error().
			Err(err).
			Str("topic", topic).
			Str("key", key).
			Msg("Failed to write to Kafka")
		p.metrics.RecordKafkaPublish(topic, eventType, err, time.Since(start).Seconds())
		return err
	}

	p.metrics.RecordKafkaPublish(topic, eventType, nil, time.Since(start).Seconds())
	return nil
}

// Close closes all Kafka writers.
func (p *Publisher) Close() error {
	var errs []error
	for _, w := range []*kafka.Writer{p.writerTranscript, p.writerEnrichment, p.writerSignal} {
		if w == nil {
			continue
		}
		if err := w.Close(); err != nil {
			log.Error().Err(err).Str("topic", w.Topic).Msg("Error closing writer")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
