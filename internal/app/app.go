package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"ai-live-copilot-service/internal/config"
	"ai-live-copilot-service/internal/db"
	"ai-live-copilot-service/internal/events"
	"ai-live-copilot-service/internal/models"
	"ai-live-copilot-service/internal/observability/logging"
	"ai-live-copilot-service/internal/service/audio"
	"ai-live-copilot-service/internal/service/billing"
	"ai-live-copilot-service/internal/service/enrichment"
	"ai-live-copilot-service/internal/service/eventloop"
	"ai-live-copilot-service/internal/service/identity"
	"ai-live-copilot-service/internal/service/session"
	"ai-live-copilot-service/internal/service/speech"
	"ai-live-copilot-service/internal/service/stt"
	"ai-live-copilot-service/internal/service/stt/google"
	"ai-live-copilot-service/internal/service/stt/mock"
)

// Version is stamped at build time.
var Version = "dev"

// Application holds process-wide state for the service.
type Application struct {
	StartupTime time.Time
	Logger      zerolog.Logger
	Cfg         *config.Configuration

	Controller *session.Controller
	Publisher  *events.Publisher
	Store      *db.Store
	Identity   *identity.Identity

	loop    *eventloop.Loop
	cancel  context.CancelFunc
	closers []func() error
}

// New wires the live session components from cfg.
func New(ctx context.Context, cfg *config.Configuration) (*Application, error) {
	a := &Application{
		Cfg:      cfg,
		Identity: identity.New(),
	}
	a.setupLogger()

	appLogger := a.Logger.With().
		Str("method", "New").
		Logger()

	store, err := db.Open(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	a.Store = store
	a.closers = append(a.closers, store.Close)

	a.Publisher = events.New(&events.Config{
		Enabled:         cfg.Kafka.Enabled,
		Brokers:         cfg.Kafka.Brokers,
		TopicTranscript: cfg.Kafka.TopicTranscript,
		TopicEnrichment: cfg.Kafka.TopicEnrichment,
		TopicSignal:     cfg.Kafka.TopicSignal,
		Principal:       cfg.Kafka.Principal,
	})
	a.closers = append(a.closers, a.Publisher.Close)

	client, err := newEnrichmentClient(cfg, a.Identity.Token)
	if err != nil {
		a.close()
		return nil, err
	}

	a.loop = eventloop.New(cfg.Session.QueueDepth)

	ctrl, err := session.New(session.Deps{
		Executor:   a.loop,
		Clock:      eventloop.RealClock(),
		Engine:     a.newEngine(ctx),
		Enrichment: client,
		Ledger:     billing.NewHTTPLedger(cfg.Billing.DebitURL, cfg.Billing.EnsureURL, a.Identity.Token, cfg.Billing.Timeout),
		Counters:   store,
		Settings:   store,
		Identity:   a.Identity,
		Publisher:  a.Publisher,
		Config: session.Config{
			Speech: speech.Config{
				RestartDelay:     cfg.STT.RestartDelay,
				MaxStartFailures: cfg.STT.MaxStartFailures,
			},
			Enrichment: enrichment.Config{
				Spacing:    cfg.Enrichment.Spacing,
				RetryDelay: cfg.Enrichment.RetryDelay,
				Timeout:    cfg.Enrichment.Timeout,
			},
			Billing: billing.Config{
				Tick:         time.Second,
				DebitEvery:   cfg.Billing.DebitEvery,
				DebitAmount:  cfg.Billing.DebitAmount,
				LowThreshold: cfg.Billing.LowThreshold,
				DebitTimeout: cfg.Billing.Timeout,
			},
			DemoCeiling:          cfg.Billing.DemoCeiling,
			DefaultMicPermission: models.MicPermission(cfg.Session.DefaultMicPermission),
			PublishTimeout:       cfg.Session.PublishTimeout,
		},
	})
	if err != nil {
		a.close()
		return nil, fmt.Errorf("build session controller: %w", err)
	}
	a.Controller = ctrl

	appLogger.Info().
		Str("sttProvider", cfg.STT.Provider).
		Str("enrichmentBackend", cfg.Enrichment.Backend).
		Bool("kafka", a.Publisher.Enabled()).
		Msg("AI Live Copilot service application created")
	return a, nil
}

// setupLogger configures zerolog for the service.
func (a *Application) setupLogger() {
	lc := logging.DefaultConfig()
	lc.Level = a.Cfg.Observability.LogLevel
	lc.Format = a.Cfg.Observability.LogFormat
	if os.Getenv("ENV") == "dev" {
		lc.Format = "console"
	}
	logging.Init(lc)
	logging.WithService(a.Cfg.Service.Principal, Version)

	a.Logger = logging.WithComponent("application")
	a.Logger.Info().
		Str("logLevel", zerolog.GlobalLevel().String()).
		Str("environment", os.Getenv("ENV")).
		Msg("Logger setup completed")
}

// newEngine builds the configured recognition engine. A google engine that
// cannot be built is replaced by one that reports the capability as
// unavailable on first start.
func (a *Application) newEngine(ctx context.Context) stt.Engine {
	cfg := a.Cfg.STT
	switch cfg.Provider {
	case "google":
		src, err := audio.Open(cfg.AudioSource, audio.Format{
			AudioFormat:   1,
			Channels:      1,
			SampleRate:    uint32(cfg.SampleRateHz),
			BitsPerSample: 16,
		})
		if err != nil {
			a.Logger.Error().Err(err).Str("source", cfg.AudioSource).Msg("Audio source unavailable")
			return stt.Unavailable("google", err)
		}
		a.closers = append(a.closers, src.Close)

		sampleRate := cfg.SampleRateHz
		if src.Format.SampleRate != 0 {
			sampleRate = int32(src.Format.SampleRate)
		}
		engine, err := google.New(ctx, google.Config{
			LanguageCode:   cfg.LanguageCode,
			SampleRateHz:   sampleRate,
			InterimResults: cfg.InterimResults,
			AudioEncoding:  cfg.AudioEncoding,
		}, src)
		if err != nil {
			a.Logger.Error().Err(err).Msg("Google STT client unavailable")
			return stt.Unavailable("google", err)
		}
		a.closers = append(a.closers, engine.Close)
		return engine

	case "mock", "":
		mc := mock.DefaultConfig()
		if cfg.MockInterval > 0 {
			mc.Interval = cfg.MockInterval
		}
		return mock.New(mc)

	default:
		a.Logger.Error().Str("provider", cfg.Provider).Msg("Unknown STT provider")
		return stt.Unavailable(cfg.Provider, fmt.Errorf("unknown provider %q", cfg.Provider))
	}
}

func newEnrichmentClient(cfg *config.Configuration, token enrichment.TokenSource) (enrichment.Client, error) {
	switch cfg.Enrichment.Backend {
	case "groq":
		if len(cfg.Groq.APIKeys) == 0 {
			return nil, enrichment.ErrNoKeys
		}
		return enrichment.NewGroqClient(cfg.Groq.APIKeys, cfg.Groq.Model, cfg.Groq.BaseURL), nil
	case "http", "":
		return enrichment.NewHTTPClient(cfg.Enrichment.Endpoint, token, cfg.Enrichment.Timeout), nil
	default:
		return nil, fmt.Errorf("unknown enrichment backend %q", cfg.Enrichment.Backend)
	}
}

// Start runs the task queue and signs in the configured identity.
func (a *Application) Start(ctx context.Context) error {
	startLogger := a.Logger.With().
		Str("method", "Start").
		Logger()

	runCtx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	go a.loop.Run(runCtx)

	if token := a.Cfg.Session.Token; token != "" {
		if err := a.Controller.SignIn(ctx, token); err != nil {
			return fmt.Errorf("initial sign-in: %w", err)
		}
	}

	a.StartupTime = time.Now().UTC()
	startLogger.Info().
		Time("startupTime", a.StartupTime).
		Msg("AI Live Copilot service starting")

	return nil
}

// Ready reports whether the durable store is reachable.
func (a *Application) Ready() error {
	return a.Store.Ping()
}

// Shutdown stops an active session, drains off-loop work and releases
// resources.
func (a *Application) Shutdown(ctx context.Context) {
	shutdownLogger := a.Logger.With().
		Str("method", "Shutdown").
		Logger()

	if a.cancel != nil {
		if err := a.Controller.Shutdown(ctx); err != nil {
			shutdownLogger.Warn().Err(err).Msg("Session stop failed")
		}
		a.cancel()
	}
	a.loop.Close(5 * time.Second)

	if err := a.close(); err != nil {
		shutdownLogger.Warn().Err(err).Msg("Resource cleanup failed")
	}
	shutdownLogger.Info().Msg("AI Live Copilot service shutting down")
}

func (a *Application) close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if err := errors.Join(errs...); err != nil {
		log.Debug().Err(err).Msg("Close errors")
		return err
	}
	return nil
}
