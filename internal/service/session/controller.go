// Package session is the live session lifecycle controller. It owns the
// listening flag and wires the recognizer, transcript, enrichment and
// billing components together on a single task queue.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"ai-live-copilot-service/internal/models"
	"ai-live-copilot-service/internal/observability/logging"
	"ai-live-copilot-service/internal/observability/metrics"
	"ai-live-copilot-service/internal/service/billing"
	"ai-live-copilot-service/internal/service/enrichment"
	"ai-live-copilot-service/internal/service/eventloop"
	"ai-live-copilot-service/internal/service/identity"
	"ai-live-copilot-service/internal/service/keymoment"
	"ai-live-copilot-service/internal/service/speech"
	"ai-live-copilot-service/internal/service/stt"
	"ai-live-copilot-service/internal/service/transcript"
)

// Errors returned when a start request is refused.
var (
	ErrMicPermissionRequired = errors.New("session: microphone permission required")
	ErrMicPermissionDenied   = errors.New("session: microphone permission denied")
	ErrCapabilityUnavailable = errors.New("session: speech recognition unavailable")
	ErrOutOfCredits          = errors.New("session: out of credits")
	ErrTrialEnded            = errors.New("session: demo trial ended")
	ErrEntryNotFound         = errors.New("session: transcript entry not found")
	ErrInvalidPermission     = errors.New("session: invalid microphone permission")
)

// MicPermissionSetting is the durable settings key for the permission state.
const MicPermissionSetting = "mic_permission"

// Publisher sends session events to the event bus.
type Publisher interface {
	PublishTranscript(ctx context.Context, key string, event any) error
	PublishEnrichment(ctx context.Context, key string, event any) error
	PublishSignal(ctx context.Context, key string, event any) error
}

// SettingStore persists user settings.
type SettingStore interface {
	Setting(name string) (string, bool, error)
	SetSetting(name, value string) error
}

// Config holds controller tunables.
type Config struct {
	Speech     speech.Config
	Enrichment enrichment.Config
	Billing    billing.Config
	// DemoCeiling is the demo allowance in seconds.
	DemoCeiling int
	// DefaultMicPermission applies until a permission is stored.
	DefaultMicPermission models.MicPermission
	// PublishTimeout bounds each event bus write.
	PublishTimeout time.Duration
}

// Deps are the collaborators the controller wires together.
type Deps struct {
	Executor   eventloop.Executor
	Clock      eventloop.Clock
	Engine     stt.Engine
	Enrichment enrichment.Client
	Ledger     billing.Ledger
	Counters   billing.CounterStore
	Settings   SettingStore
	Identity   *identity.Identity
	Publisher  Publisher
	Config     Config
}

// Controller is the session lifecycle controller.
//
// Unexported methods run on the task queue. Exported methods are safe for
// concurrent use and hop onto the queue with eventloop.Call.
type Controller struct {
	ex        eventloop.Executor
	clock     eventloop.Clock
	cfg       Config
	identity  *identity.Identity
	ledger    billing.Ledger
	settings  SettingStore
	publisher Publisher
	events    *Broadcaster
	log       zerolog.Logger

	store   *transcript.Store
	stream  *speech.Stream
	coord   *enrichment.Coordinator
	billing *billing.Loop

	listening        bool
	sessionID        string
	mic              models.MicPermission
	unavailable      bool
	recognitionError string
	identityEpoch    uint64
}

// New builds a controller and restores durable state.
func New(d Deps) (*Controller, error) {
	if d.Clock == nil {
		d.Clock = eventloop.RealClock()
	}
	if d.Identity == nil {
		d.Identity = identity.New()
	}
	if d.Publisher == nil {
		d.Publisher = nopPublisher{}
	}
	if d.Config.PublishTimeout <= 0 {
		d.Config.PublishTimeout = 5 * time.Second
	}
	if !d.Config.DefaultMicPermission.Valid() {
		d.Config.DefaultMicPermission = models.MicPrompt
	}

	demo, err := billing.NewDemoCounter(d.Counters, d.Config.DemoCeiling)
	if err != nil {
		return nil, err
	}

	c := &Controller{
		ex:        d.Executor,
		clock:     d.Clock,
		cfg:       d.Config,
		identity:  d.Identity,
		ledger:    d.Ledger,
		settings:  d.Settings,
		publisher: d.Publisher,
		events:    NewBroadcaster(),
		log:       logging.WithComponent("session"),
		mic:       d.Config.DefaultMicPermission,
	}

	if v, ok, err := d.Settings.Setting(MicPermissionSetting); err != nil {
		return nil, fmt.Errorf("load microphone permission: %w", err)
	} else if ok && models.MicPermission(v).Valid() {
		c.mic = models.MicPermission(v)
	}

	c.store = transcript.New(d.Clock.Now)
	c.stream = speech.New(d.Engine, d.Executor, d.Clock, speechSink{c}, d.Config.Speech, logging.WithEngine(d.Engine.Name()))
	c.coord = enrichment.NewCoordinator(d.Enrichment, d.Executor, d.Clock, d.Config.Enrichment, logging.WithComponent("enrichment"))
	c.billing = billing.NewLoop(d.Ledger, demo, d.Executor, d.Clock, d.Config.Billing, billingListener{c}, logging.WithComponent("billing"))

	c.store.OnAppend(func(entries []models.TranscriptEntry, _ models.TranscriptEntry) {
		c.coord.Notify(entries)
	})
	c.coord.OnUpdate(c.enrichmentUpdated)

	return c, nil
}

// Listen turns listening on or off.
func (c *Controller) Listen(ctx context.Context, on bool) error {
	var err error
	if callErr := eventloop.Call(ctx, c.ex, func() { err = c.setListening(on) }); callErr != nil {
		return callErr
	}
	return err
}

// State returns the session snapshot.
func (c *Controller) State(ctx context.Context) (models.SessionState, error) {
	var st models.SessionState
	err := eventloop.Call(ctx, c.ex, func() { st = c.snapshot() })
	return st, err
}

// Transcript returns the filtered transcript with the interim text.
func (c *Controller) Transcript(ctx context.Context, f transcript.Filter) (models.TranscriptView, error) {
	var v models.TranscriptView
	err := eventloop.Call(ctx, c.ex, func() {
		v = models.TranscriptView{
			Entries:     c.store.Project(f),
			InterimText: c.store.Interim(),
			Total:       c.store.Len(),
		}
	})
	return v, err
}

// Speakers returns the distinct speaker labels.
func (c *Controller) Speakers(ctx context.Context) ([]string, error) {
	var out []string
	err := eventloop.Call(ctx, c.ex, func() { out = c.store.Speakers() })
	return out, err
}

// ToggleBookmark flips the bookmark flag of entry id.
func (c *Controller) ToggleBookmark(ctx context.Context, id int64) (models.TranscriptEntry, error) {
	var (
		entry models.TranscriptEntry
		ok    bool
	)
	if err := eventloop.Call(ctx, c.ex, func() { entry, ok = c.store.ToggleBookmark(id) }); err != nil {
		return entry, err
	}
	if !ok {
		return entry, ErrEntryNotFound
	}
	return entry, nil
}

// Clear empties the transcript and resets the enrichment result.
func (c *Controller) Clear(ctx context.Context) error {
	return eventloop.Call(ctx, c.ex, func() {
		c.store.Clear()
		c.coord.Clear()
		c.log.Info().Msg("Transcript cleared")
	})
}

// Enrichment returns the enrichment state.
func (c *Controller) Enrichment(ctx context.Context) (models.EnrichmentState, error) {
	var st models.EnrichmentState
	err := eventloop.Call(ctx, c.ex, func() { st = c.coord.State(c.clock.Now()) })
	return st, err
}

// SignIn switches to the identity behind token. An active session stops
// because the billing mode is fixed when listening starts.
func (c *Controller) SignIn(ctx context.Context, token string) error {
	if token == "" {
		return c.SignOut(ctx)
	}
	return eventloop.Call(ctx, c.ex, func() {
		if c.identity.Token() == token {
			return
		}
		c.identityChanged()
		c.identity.SignIn(token)
		c.ensureAccount(c.identityEpoch)
		c.log.Info().Msg("Signed in")
	})
}

// SignOut clears the identity and stops an active session.
func (c *Controller) SignOut(ctx context.Context) error {
	return eventloop.Call(ctx, c.ex, func() {
		if !c.identity.Authenticated() {
			return
		}
		c.identityChanged()
		c.identity.SignOut()
		c.log.Info().Msg("Signed out")
	})
}

// SetMicPermission records the microphone permission state. Denying it
// stops an active session.
func (c *Controller) SetMicPermission(ctx context.Context, p models.MicPermission) error {
	if !p.Valid() {
		return ErrInvalidPermission
	}
	var err error
	if callErr := eventloop.Call(ctx, c.ex, func() { err = c.setMic(p) }); callErr != nil {
		return callErr
	}
	return err
}

// ResetDemo zeroes the demo counter.
func (c *Controller) ResetDemo(ctx context.Context) error {
	var err error
	if callErr := eventloop.Call(ctx, c.ex, func() { err = c.billing.ResetDemo() }); callErr != nil {
		return callErr
	}
	return err
}

// Subscribe returns a stream of display-layer events.
func (c *Controller) Subscribe() (<-chan models.Event, func()) {
	return c.events.Subscribe()
}

// Shutdown stops an active session.
func (c *Controller) Shutdown(ctx context.Context) error {
	return c.Listen(ctx, false)
}

func (c *Controller) setListening(on bool) error {
	if !on {
		c.stopSession()
		return nil
	}
	if c.listening {
		return nil
	}

	if err := c.admit(); err != nil {
		metrics.DefaultMetrics.RecordRefusal(refusalReason(err))
		c.log.Info().Err(err).Msg("Start refused")
		switch {
		case errors.Is(err, ErrTrialEnded):
			c.raise(models.SignalTrialEnded)
		case errors.Is(err, ErrOutOfCredits):
			c.raise(models.SignalOutOfCredits)
		}
		return err
	}

	mode := billing.ModeDemo
	if c.identity.Authenticated() {
		mode = billing.ModeMetered
	}

	c.listening = true
	c.sessionID = uuid.NewString()
	c.recognitionError = ""
	c.log = logging.WithSession(c.sessionID).With().Str("component", "session").Logger()

	c.stream.Start()
	c.billing.Start(mode)

	metrics.DefaultMetrics.RecordSessionStart()
	c.log.Info().Str("mode", mode.String()).Msg("Listening started")
	c.broadcast(models.EventListeningChanged, c.snapshot())
	return nil
}

// admit runs the start guards in order.
func (c *Controller) admit() error {
	switch c.mic {
	case models.MicPrompt:
		return ErrMicPermissionRequired
	case models.MicDenied:
		return ErrMicPermissionDenied
	}
	if c.unavailable {
		return ErrCapabilityUnavailable
	}

	mode := billing.ModeDemo
	if c.identity.Authenticated() {
		mode = billing.ModeMetered
	}
	switch err := c.billing.Admit(mode); {
	case errors.Is(err, billing.ErrTrialEnded):
		return ErrTrialEnded
	case errors.Is(err, billing.ErrOutOfCredits):
		return ErrOutOfCredits
	default:
		return err
	}
}

func (c *Controller) stopSession() {
	if !c.listening {
		return
	}
	c.listening = false
	c.stream.Stop()
	c.billing.Stop()
	c.store.SetInterim("")

	metrics.DefaultMetrics.RecordSessionStop()
	c.log.Info().Int("listeningSeconds", c.billing.Seconds()).Msg("Listening stopped")
	c.broadcast(models.EventListeningChanged, c.snapshot())
}

func (c *Controller) identityChanged() {
	c.stopSession()
	c.identityEpoch++
	c.billing.ResetLatch()
	c.billing.ForgetCredits()
}

// ensureAccount seeds the cached balance for the identity active at epoch.
func (c *Controller) ensureAccount(epoch uint64) {
	if c.ledger == nil {
		return
	}
	c.ex.Go(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		credits, err := c.ledger.EnsureAccount(ctx)
		c.ex.Post(func() {
			if epoch != c.identityEpoch {
				return
			}
			if err != nil {
				c.log.Warn().Err(err).Msg("Account bootstrap failed")
				return
			}
			c.billing.SetCredits(credits)
			c.log.Debug().Int("credits", credits).Msg("Account ready")
		})
	})
}

func (c *Controller) setMic(p models.MicPermission) error {
	if err := c.settings.SetSetting(MicPermissionSetting, string(p)); err != nil {
		return err
	}
	c.mic = p
	if p == models.MicDenied {
		c.stopSession()
	}
	return nil
}

func (c *Controller) snapshot() models.SessionState {
	credits, _ := c.billing.Credits()
	return models.SessionState{
		SessionID:        c.sessionID,
		Listening:        c.listening,
		ListeningSeconds: c.billing.Seconds(),
		DemoSecondsUsed:  c.billing.DemoSeconds(),
		InterimText:      c.store.Interim(),
		Authenticated:    c.identity.Authenticated(),
		Credits:          credits,
		MicPermission:    c.mic,
		RecognitionError: c.recognitionError,
		RecognizerState:  c.stream.State().String(),
	}
}

func (c *Controller) appendFinal(text string) {
	if !c.listening {
		return
	}
	tag := keymoment.Classify(text)
	entry := c.store.Append(text, tag)
	metrics.DefaultMetrics.RecordFinal(string(tag))

	ev := models.TranscriptFinal{
		EventType: models.EventTranscriptFinal,
		SessionID: c.sessionID,
		Timestamp: c.clock.Now().UnixMilli(),
		Entry:     entry,
	}
	c.broadcast(models.EventTranscriptFinal, entry)
	c.publish(c.publisher.PublishTranscript, ev)
}

func (c *Controller) enrichmentUpdated(result models.EnrichmentResult, degraded bool) {
	ev := models.EnrichmentUpdated{
		EventType: models.EventEnrichmentUpdated,
		SessionID: c.sessionID,
		Timestamp: c.clock.Now().UnixMilli(),
		Degraded:  degraded,
		Result:    result,
	}
	c.broadcast(models.EventEnrichmentUpdated, c.coord.State(c.clock.Now()))
	c.publish(c.publisher.PublishEnrichment, ev)
}

func (c *Controller) raise(sig models.Signal) {
	credits, _ := c.billing.Credits()
	ev := models.SignalRaised{
		EventType: models.EventSignal,
		SessionID: c.sessionID,
		Timestamp: c.clock.Now().UnixMilli(),
		Signal:    sig,
		Credits:   credits,
	}
	c.events.Publish(models.Event{
		Type:      models.EventSignal,
		SessionID: c.sessionID,
		Timestamp: ev.Timestamp,
		Signal:    sig,
		Data:      ev,
	})
	c.publish(c.publisher.PublishSignal, ev)
}

func (c *Controller) broadcast(eventType string, data any) {
	c.events.Publish(models.Event{
		Type:      eventType,
		SessionID: c.sessionID,
		Timestamp: c.clock.Now().UnixMilli(),
		Data:      data,
	})
}

// publish writes ev to the event bus off the task queue.
func (c *Controller) publish(fn func(context.Context, string, any) error, ev any) {
	key := c.sessionID
	timeout := c.cfg.PublishTimeout
	c.ex.Go(func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		_ = fn(ctx, key, ev)
	})
}

func refusalReason(err error) string {
	switch {
	case errors.Is(err, ErrMicPermissionRequired):
		return "mic_prompt"
	case errors.Is(err, ErrMicPermissionDenied):
		return "mic_denied"
	case errors.Is(err, ErrCapabilityUnavailable):
		return "unavailable"
	case errors.Is(err, ErrOutOfCredits):
		return "out_of_credits"
	case errors.Is(err, ErrTrialEnded):
		return "trial_ended"
	default:
		return "other"
	}
}

// speechSink receives recognizer output on the task queue.
type speechSink struct{ c *Controller }

func (s speechSink) OnInterim(text string) {
	c := s.c
	if !c.listening || c.store.Interim() == text {
		return
	}
	c.store.SetInterim(text)
	metrics.DefaultMetrics.RecordInterim()
	c.broadcast(models.EventInterimUpdated, text)
}

func (s speechSink) OnFinal(text string) {
	s.c.appendFinal(text)
}

func (s speechSink) OnFault(err error) {
	c := s.c
	c.recognitionError = err.Error()
	c.broadcast(models.EventRecognitionFault, c.recognitionError)
}

func (s speechSink) OnFailure(err error) {
	c := s.c
	c.recognitionError = err.Error()
	switch {
	case errors.Is(err, stt.ErrUnsupported):
		c.unavailable = true
	case errors.Is(err, stt.ErrPermissionDenied):
		if setErr := c.setMic(models.MicDenied); setErr != nil {
			c.log.Warn().Err(setErr).Msg("Microphone permission not persisted")
			c.mic = models.MicDenied
		}
	}
	c.broadcast(models.EventRecognitionFault, c.recognitionError)
	c.stopSession()
}

// billingListener receives billing side effects on the task queue.
type billingListener struct{ c *Controller }

func (b billingListener) OnForcedStop(sig models.Signal) {
	b.c.stopSession()
	b.c.raise(sig)
}

func (b billingListener) OnLowCredits(int) {
	b.c.raise(models.SignalLowCredits)
}

type nopPublisher struct{}

func (nopPublisher) PublishTranscript(context.Context, string, any) error { return nil }
func (nopPublisher) PublishEnrichment(context.Context, string, any) error { return nil }
func (nopPublisher) PublishSignal(context.Context, string, any) error { return nil }
