// Package mock provides a scripted recognition engine for running the
// service without cloud credentials. It emits progressive interim text and
// exactly one final per utterance, and ends its run on its own after a few
// utterances, the way browser engines do.
package mock

import (
	"context"
	"sync"
	"time"

	"ai-live-copilot-service/internal/service/stt"
)

// SimulatedUtterance is a scripted utterance with progressive interim text.
type SimulatedUtterance struct {
	Partials   []string
	Final      string
	Confidence float64
}

// DefaultUtterances is the script the engine cycles through.
var DefaultUtterances = []SimulatedUtterance{
	{
		Partials:   []string{"Let's", "Let's finalize", "Let's finalize the"},
		Final:      "Let's finalize the launch plan",
		Confidence: 0.94,
	},
	{
		Partials:   []string{"Revenue", "Revenue is up", "Revenue is up twelve"},
		Final:      "Revenue is up 12% this quarter",
		Confidence: 0.91,
	},
	{
		Partials:   []string{"There's a", "There's a rollback"},
		Final:      "There's a rollback risk with the migration",
		Confidence: 0.89,
	},
	{
		Partials:   []string{"Can you", "Can you walk me"},
		Final:      "Can you walk me through the onboarding flow",
		Confidence: 0.97,
	},
	{
		Partials:   []string{"We should", "We should agree"},
		Final:      "We should agree on owners before Friday",
		Confidence: 0.93,
	},
}

// Config controls the pacing of the script.
type Config struct {
	// Interval between successive interim/final emissions.
	Interval time.Duration
	// UtterancesPerRun is how many finals a run emits before the engine
	// ends on its own. Zero means the run never ends by itself.
	UtterancesPerRun int
	// Script overrides DefaultUtterances.
	Script []SimulatedUtterance
}

// DefaultConfig returns the pacing used by the service.
func DefaultConfig() Config {
	return Config{
		Interval:         400 * time.Millisecond,
		UtterancesPerRun: 3,
	}
}

// Adapter implements stt.Engine with scripted output.
type Adapter struct {
	cfg Config

	mu      sync.Mutex
	cancel  context.CancelFunc
	running bool
	next    int // index of the next utterance in the script
	runs    int
}

// New creates a mock engine.
func New(cfg Config) *Adapter {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	if len(cfg.Script) == 0 {
		cfg.Script = DefaultUtterances
	}
	return &Adapter{cfg: cfg}
}

func (a *Adapter) Name() string { return "mock" }

// Start begins a scripted run.
func (a *Adapter) Start(ctx context.Context, cb stt.Callback) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.cancel != nil {
		a.cancel()
	}
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.running = true
	a.runs++

	go a.run(runCtx, cb)
	return nil
}

// Stop ends the current run. Idempotent.
func (a *Adapter) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	a.running = false
	return nil
}

// Running reports whether a run is active.
func (a *Adapter) Running() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.running
}

// Runs is the number of times Start was called.
func (a *Adapter) Runs() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.runs
}

func (a *Adapter) run(ctx context.Context, cb stt.Callback) {
	ticker := time.NewTicker(a.cfg.Interval)
	defer ticker.Stop()

	finals := 0
	for {
		utt := a.nextUtterance()
		steps := append(append([]string{}, utt.Partials...), "")
		for i, partial := range steps {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			if i < len(utt.Partials) {
				cb.OnResult(stt.Result{Interim: partial})
				continue
			}
			cb.OnResult(stt.Result{Finals: []stt.Final{{Text: utt.Final, Confidence: utt.Confidence}}})
		}

		finals++
		if a.cfg.UtterancesPerRun > 0 && finals >= a.cfg.UtterancesPerRun {
			a.mu.Lock()
			ended := ctx.Err() == nil
			if ended {
				a.running = false
			}
			a.mu.Unlock()
			if ended {
				cb.OnEnd()
			}
			return
		}
	}
}

func (a *Adapter) nextUtterance() SimulatedUtterance {
	a.mu.Lock()
	defer a.mu.Unlock()
	utt := a.cfg.Script[a.next%len(a.cfg.Script)]
	a.next++
	return utt
}
