package enrichment

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"ai-live-copilot-service/internal/models"
	"ai-live-copilot-service/internal/observability/metrics"
	"ai-live-copilot-service/internal/schema"
	"ai-live-copilot-service/internal/service/eventloop"
)

// Config controls call pacing.
type Config struct {
	// Spacing is the minimum interval between call starts.
	Spacing time.Duration
	// RetryDelay is the delay of the single deferred retry.
	RetryDelay time.Duration
	// Timeout bounds each call.
	Timeout time.Duration
}

// DefaultConfig returns the default pacing.
func DefaultConfig() Config {
	return Config{
		Spacing:    4 * time.Second,
		RetryDelay: time.Second,
		Timeout:    20 * time.Second,
	}
}

// UpdateListener is notified after each successful call.
type UpdateListener func(result models.EnrichmentResult, degraded bool)

// Coordinator owns the enrichment result and decides when to call the
// client. All methods must be called on the task queue.
type Coordinator struct {
	client  Client
	ex      eventloop.Executor
	clock   eventloop.Clock
	cfg     Config
	limiter *Limiter
	log     zerolog.Logger

	latest   []models.TranscriptEntry
	inFlight bool
	epoch    uint64
	retry    eventloop.Timer

	result    models.EnrichmentResult
	hasResult bool
	lastErr   string
	listener  UpdateListener
}

// NewCoordinator creates a coordinator with an empty result.
func NewCoordinator(client Client, ex eventloop.Executor, clock eventloop.Clock, cfg Config, logger zerolog.Logger) *Coordinator {
	def := DefaultConfig()
	if cfg.Spacing <= 0 {
		cfg.Spacing = def.Spacing
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = def.RetryDelay
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	return &Coordinator{
		client:  client,
		ex:      ex,
		clock:   clock,
		cfg:     cfg,
		limiter: NewLimiter(cfg.Spacing),
		log:     logger,
		result:  emptyResult(),
	}
}

// OnUpdate registers the success listener.
func (c *Coordinator) OnUpdate(l UpdateListener) { c.listener = l }

// Notify records the latest entry list and calls the client now, or defers
// a retry when the window is closed or a call is in flight.
func (c *Coordinator) Notify(entries []models.TranscriptEntry) {
	c.latest = entries
	c.attempt()
}

func (c *Coordinator) attempt() {
	if c.limiter.Admit(c.clock.Now(), c.inFlight) {
		c.call(c.latest)
		return
	}
	c.deferRetry()
}

// deferRetry arms the single pending retry. A retry that is still not
// admitted when it fires re-arms the same slot.
func (c *Coordinator) deferRetry() {
	if !c.limiter.Reserve() {
		return
	}
	metrics.DefaultMetrics.EnrichmentDeferred.Inc()
	c.retry = eventloop.AfterFunc(c.clock, c.ex, c.cfg.RetryDelay, func() {
		c.retry = nil
		c.limiter.Release()
		c.attempt()
	})
}

func (c *Coordinator) call(entries []models.TranscriptEntry) {
	c.inFlight = true
	epoch := c.epoch
	payload := BuildPayload(entries)
	started := c.clock.Now()

	c.ex.Go(func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.Timeout)
		defer cancel()
		raw, err := c.client.Enrich(ctx, payload)
		c.ex.Post(func() { c.complete(epoch, started, raw, err) })
	})
}

func (c *Coordinator) complete(epoch uint64, started time.Time, raw []byte, err error) {
	c.inFlight = false
	now := c.clock.Now()
	latency := now.Sub(started).Seconds()

	if epoch != c.epoch {
		metrics.DefaultMetrics.RecordEnrichment("discarded", latency)
		return
	}
	if err != nil {
		metrics.DefaultMetrics.RecordEnrichment("error", latency)
		c.lastErr = errorText(err)
		c.log.Warn().Err(err).Msg("Enrichment call failed")
		return
	}

	result, degraded := schema.DecodeEnrichment(raw)
	if degraded {
		metrics.DefaultMetrics.EnrichmentDegraded.Inc()
	}
	metrics.DefaultMetrics.RecordEnrichment("ok", latency)

	result.FetchedAt = now
	c.result = result
	c.hasResult = true
	c.lastErr = ""

	if c.listener != nil {
		c.listener(result, degraded)
	}
}

// Clear resets the result and error. Responses of calls started before the
// clear are discarded.
func (c *Coordinator) Clear() {
	c.epoch++
	c.latest = nil
	c.result = emptyResult()
	c.hasResult = false
	c.lastErr = ""
	if c.retry != nil {
		c.retry.Stop()
		c.retry = nil
		c.limiter.Release()
	}
}

// State returns the display snapshot at now.
func (c *Coordinator) State(now time.Time) models.EnrichmentState {
	st := models.EnrichmentState{
		EnrichmentResult: c.result,
		IsUpdating:       c.inFlight,
		Error:            c.lastErr,
	}
	if c.hasResult {
		ago := int64(now.Sub(c.result.FetchedAt) / time.Second)
		if ago < 0 {
			ago = 0
		}
		st.LastUpdateSecondsAgo = &ago
	}
	return st
}

// InFlight reports whether a call is outstanding.
func (c *Coordinator) InFlight() bool { return c.inFlight }

// RetryPending reports whether a deferred retry is armed.
func (c *Coordinator) RetryPending() bool { return c.limiter.Pending() }

func errorText(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "Enrichment request timed out"
	}
	return err.Error()
}

func emptyResult() models.EnrichmentResult {
	return models.EnrichmentResult{
		KnowledgeCards: []models.KnowledgeCard{},
		PredictedPaths: []models.PredictedPath{},
		TalkingPoints:  []models.TalkingPoint{},
		FollowUps:      []models.FollowUp{},
	}
}
