// Package config loads service configuration from environment variables.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Configuration is the full service configuration.
type Configuration struct {
	Service       ServiceConfig
	Observability ObservabilityConfig
	STT           STTConfig
	Enrichment    EnrichmentConfig
	Groq          GroqConfig
	Billing       BillingConfig
	Session       SessionConfig
	Store         StoreConfig
	Kafka         KafkaConfig
}

type ServiceConfig struct {
	Principal string
	HTTPPort  string
	GRPCPort  string
}

type ObservabilityConfig struct {
	LogLevel    string
	LogFormat   string
	MetricsAddr string
}

// STTConfig selects and tunes the recognition engine.
type STTConfig struct {
	// Provider is "mock" or "google".
	Provider       string
	LanguageCode   string
	SampleRateHz   int32
	InterimResults bool
	AudioEncoding  string
	// AudioSource is the audio input for the google engine: a .wav file, a
	// raw PCM file, or "-" for stdin.
	AudioSource  string
	RestartDelay time.Duration
	// MaxStartFailures bounds consecutive engine start errors.
	MaxStartFailures int
	// MockInterval paces the scripted engine.
	MockInterval time.Duration
}

// EnrichmentConfig selects the enrichment backend.
type EnrichmentConfig struct {
	// Backend is "http", "groq" or "none".
	Backend    string
	Endpoint   string
	Timeout    time.Duration
	Spacing    time.Duration
	RetryDelay time.Duration
}

type GroqConfig struct {
	APIKeys []string
	Model   string
	BaseURL string
}

type BillingConfig struct {
	DebitURL     string
	EnsureURL    string
	Timeout      time.Duration
	DebitEvery   int
	DebitAmount  int
	LowThreshold int
	DemoCeiling  int
}

type SessionConfig struct {
	DefaultMicPermission string
	QueueDepth           int
	PublishTimeout       time.Duration
	// Token signs the controller in at startup when set.
	Token string
}

type StoreConfig struct {
	Path string
}

type KafkaConfig struct {
	Enabled         bool
	Brokers         []string
	TopicTranscript string
	TopicEnrichment string
	TopicSignal     string
	Principal       string
}

// Load reads the configuration. Invalid values fall back to defaults.
func Load() *Configuration {
	principal := envOrDefault("SERVICE_PRINCIPAL", "svc-live-copilot")

	return &Configuration{
		Service: ServiceConfig{
			Principal: principal,
			HTTPPort:  envOrDefault("HTTP_PORT", "8080"),
			GRPCPort:  envOrDefault("GRPC_PORT", "50051"),
		},
		Observability: ObservabilityConfig{
			LogLevel:    envOrDefault("LOG_LEVEL", "info"),
			LogFormat:   envOrDefault("LOG_FORMAT", "json"),
			MetricsAddr: envOrDefault("METRICS_ADDR", ":9090"),
		},
		STT: STTConfig{
			Provider:         envOrDefault("STT_PROVIDER", "mock"),
			LanguageCode:     envOrDefault("STT_LANGUAGE_CODE", "en-US"),
			SampleRateHz:     int32(envOrDefaultInt("STT_SAMPLE_RATE_HZ", 8000)),
			InterimResults:   envOrDefaultBool("STT_INTERIM_RESULTS", true),
			AudioEncoding:    envOrDefault("STT_AUDIO_ENCODING", "LINEAR16"),
			AudioSource:      envOrDefault("STT_AUDIO_SOURCE", "-"),
			RestartDelay:     envOrDefaultDuration("STT_RESTART_DELAY", 250*time.Millisecond),
			MaxStartFailures: envOrDefaultInt("STT_MAX_START_FAILURES", 5),
			MockInterval:     envOrDefaultDuration("STT_MOCK_INTERVAL", 400*time.Millisecond),
		},
		Enrichment: EnrichmentConfig{
			Backend:    envOrDefault("ENRICHMENT_BACKEND", "http"),
			Endpoint:   envOrDefault("ENRICHMENT_ENDPOINT", "http://localhost:3000/api/copilot"),
			Timeout:    envOrDefaultDuration("ENRICHMENT_TIMEOUT", 20*time.Second),
			Spacing:    envOrDefaultDuration("ENRICHMENT_SPACING", 4*time.Second),
			RetryDelay: envOrDefaultDuration("ENRICHMENT_RETRY_DELAY", time.Second),
		},
		Groq: GroqConfig{
			APIKeys: envOrDefaultList("GROQ_API_KEYS", nil),
			Model:   envOrDefault("GROQ_MODEL", "llama-3.1-8b-instant"),
			BaseURL: envOrDefault("GROQ_BASE_URL", "https://api.groq.com/openai/v1"),
		},
		Billing: BillingConfig{
			DebitURL:     envOrDefault("BILLING_DEBIT_URL", "http://localhost:3000/api/credits/consume"),
			EnsureURL:    envOrDefault("BILLING_ENSURE_URL", "http://localhost:3000/api/credits/ensure"),
			Timeout:      envOrDefaultDuration("BILLING_TIMEOUT", 10*time.Second),
			DebitEvery:   envOrDefaultInt("BILLING_DEBIT_EVERY_SECONDS", 60),
			DebitAmount:  envOrDefaultInt("BILLING_DEBIT_AMOUNT", 1),
			LowThreshold: envOrDefaultInt("BILLING_LOW_THRESHOLD", 10),
			DemoCeiling:  envOrDefaultInt("BILLING_DEMO_CEILING_SECONDS", 180),
		},
		Session: SessionConfig{
			DefaultMicPermission: envOrDefault("SESSION_DEFAULT_MIC_PERMISSION", "prompt"),
			QueueDepth:           envOrDefaultInt("SESSION_QUEUE_DEPTH", 256),
			PublishTimeout:       envOrDefaultDuration("SESSION_PUBLISH_TIMEOUT", 5*time.Second),
			Token:                os.Getenv("SESSION_TOKEN"),
		},
		Store: StoreConfig{
			Path: envOrDefault("STORE_PATH", "data/copilot.db"),
		},
		Kafka: KafkaConfig{
			Enabled:         envOrDefaultBool("KAFKA_ENABLED", false),
			Brokers:         envOrDefaultList("KAFKA_BROKERS", []string{"localhost:9092"}),
			TopicTranscript: envOrDefault("KAFKA_TOPIC_TRANSCRIPT", "copilot.transcript.final"),
			TopicEnrichment: envOrDefault("KAFKA_TOPIC_ENRICHMENT", "copilot.enrichment.updated"),
			TopicSignal:     envOrDefault("KAFKA_TOPIC_SIGNAL", "copilot.session.signal"),
			Principal:       envOrDefault("KAFKA_PRINCIPAL", principal),
		},
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func envOrDefaultBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

// envOrDefaultList splits a comma-separated value, dropping empty items.
func envOrDefaultList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
