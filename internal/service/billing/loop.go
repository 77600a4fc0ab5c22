package billing

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"ai-live-copilot-service/internal/models"
	"ai-live-copilot-service/internal/observability/metrics"
	"ai-live-copilot-service/internal/service/eventloop"
)

// Mode is fixed when the loop starts.
type Mode int

const (
	// ModeDemo counts demo seconds for a signed-out user.
	ModeDemo Mode = iota
	// ModeMetered debits the remote ledger for a signed-in user.
	ModeMetered
)

func (m Mode) String() string {
	if m == ModeMetered {
		return "metered"
	}
	return "demo"
}

// Config controls metering.
type Config struct {
	Tick         time.Duration
	DebitEvery   int // ticks between debits
	DebitAmount  int
	LowThreshold int
	DebitTimeout time.Duration
}

// DefaultConfig returns one debit of 1 unit per 60 one-second ticks.
func DefaultConfig() Config {
	return Config{
		Tick:         time.Second,
		DebitEvery:   60,
		DebitAmount:  1,
		LowThreshold: 10,
		DebitTimeout: 10 * time.Second,
	}
}

// Listener receives billing side effects on the task queue.
type Listener interface {
	// OnForcedStop is called after the loop stopped itself.
	OnForcedStop(signal models.Signal)
	// OnLowCredits is called once per sign-in when the balance runs low.
	OnLowCredits(credits int)
}

// Loop is the per-second metering timer. All methods must be called on the
// task queue.
type Loop struct {
	ledger   Ledger
	demo     *DemoCounter
	ex       eventloop.Executor
	clock    eventloop.Clock
	cfg      Config
	listener Listener
	log      zerolog.Logger

	latch   Latch
	credits int
	known   bool

	running  bool
	mode     Mode
	gen      uint64
	seconds  int
	timer    eventloop.Timer
	debiting bool
}

// NewLoop creates a stopped loop.
func NewLoop(ledger Ledger, demo *DemoCounter, ex eventloop.Executor, clock eventloop.Clock, cfg Config, listener Listener, logger zerolog.Logger) *Loop {
	def := DefaultConfig()
	if cfg.Tick <= 0 {
		cfg.Tick = def.Tick
	}
	if cfg.DebitEvery <= 0 {
		cfg.DebitEvery = def.DebitEvery
	}
	if cfg.DebitAmount <= 0 {
		cfg.DebitAmount = def.DebitAmount
	}
	if cfg.LowThreshold < 0 {
		cfg.LowThreshold = def.LowThreshold
	}
	if cfg.DebitTimeout <= 0 {
		cfg.DebitTimeout = def.DebitTimeout
	}
	return &Loop{
		ledger:   ledger,
		demo:     demo,
		ex:       ex,
		clock:    clock,
		cfg:      cfg,
		listener: listener,
		log:      logger,
	}
}

// Admit reports whether a session may start in mode.
func (l *Loop) Admit(mode Mode) error {
	if mode == ModeDemo {
		if l.demo.Exhausted() {
			return ErrTrialEnded
		}
		return nil
	}
	if l.known && l.credits <= 0 {
		return ErrOutOfCredits
	}
	return nil
}

// Start begins ticking in mode and resets the per-session seconds.
func (l *Loop) Start(mode Mode) {
	if l.running {
		return
	}
	l.running = true
	l.mode = mode
	l.seconds = 0
	l.gen++
	l.arm()
}

// Stop cancels the tick timer. In-flight debits still update the cached
// balance when they resolve. Idempotent.
func (l *Loop) Stop() {
	if !l.running {
		return
	}
	l.running = false
	l.gen++
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
}

// Running reports whether the loop is ticking.
func (l *Loop) Running() bool { return l.running }

// Mode is the mode of the current or last session.
func (l *Loop) Mode() Mode { return l.mode }

// Seconds is the number of ticks in the current session.
func (l *Loop) Seconds() int { return l.seconds }

// DemoSeconds is the durable demo counter value.
func (l *Loop) DemoSeconds() int { return l.demo.Value() }

// ResetDemo zeroes the demo counter.
func (l *Loop) ResetDemo() error { return l.demo.Reset() }

// Credits is the cached balance and whether it is known.
func (l *Loop) Credits() (int, bool) { return l.credits, l.known }

// SetCredits seeds or overwrites the cached balance.
func (l *Loop) SetCredits(credits int) {
	l.credits = max(0, credits)
	l.known = true
	metrics.DefaultMetrics.CachedCredits.Set(float64(l.credits))
}

// ForgetCredits drops the cached balance.
func (l *Loop) ForgetCredits() {
	l.credits = 0
	l.known = false
}

// ResetLatch re-arms the low-credits signal.
func (l *Loop) ResetLatch() { l.latch.Reset() }

// DebitInFlight reports whether a debit is outstanding.
func (l *Loop) DebitInFlight() bool { return l.debiting }

func (l *Loop) arm() {
	gen := l.gen
	l.timer = eventloop.AfterFunc(l.clock, l.ex, l.cfg.Tick, func() { l.tick(gen) })
}

func (l *Loop) tick(gen uint64) {
	if !l.running || gen != l.gen {
		return
	}
	l.timer = nil
	l.seconds++
	metrics.DefaultMetrics.ListeningSeconds.Inc()

	if l.mode == ModeDemo {
		used, err := l.demo.Increment()
		if err != nil {
			l.log.Warn().Err(err).Msg("Demo counter not persisted")
		}
		metrics.DefaultMetrics.DemoSeconds.Inc()
		if used >= l.demo.Ceiling() {
			l.forceStop(models.SignalTrialEnded)
			return
		}
	} else if l.seconds%l.cfg.DebitEvery == 0 {
		if l.debiting {
			l.log.Debug().Int("seconds", l.seconds).Msg("Debit in flight, skipping boundary")
		} else {
			l.debit(gen)
		}
	}

	l.arm()
}

func (l *Loop) debit(gen uint64) {
	l.debiting = true
	amount := l.cfg.DebitAmount
	l.ex.Go(func() {
		ctx, cancel := context.WithTimeout(context.Background(), l.cfg.DebitTimeout)
		defer cancel()
		credits, err := l.ledger.Debit(ctx, amount)
		l.ex.Post(func() { l.resolveDebit(gen, credits, err) })
	})
}

// resolveDebit always updates the cached balance; stop and signal side
// effects only apply while the session that issued the debit is active.
func (l *Loop) resolveDebit(gen uint64, credits int, err error) {
	l.debiting = false
	active := l.running && gen == l.gen

	switch {
	case err == nil:
		l.SetCredits(credits)
		metrics.DefaultMetrics.RecordDebit("ok", l.credits)
		l.log.Debug().Int("credits", l.credits).Bool("active", active).Msg("Debit applied")
		if !active {
			return
		}
		if l.credits == 0 {
			l.forceStop(models.SignalOutOfCredits)
			return
		}
		if l.credits <= l.cfg.LowThreshold && l.latch.Fire() {
			metrics.DefaultMetrics.RecordSignal(string(models.SignalLowCredits))
			l.listener.OnLowCredits(l.credits)
		}

	case errors.Is(err, ErrInsufficientFunds):
		l.SetCredits(0)
		metrics.DefaultMetrics.RecordDebit("insufficient_funds", 0)
		if active {
			l.forceStop(models.SignalOutOfCredits)
		}

	default:
		metrics.DefaultMetrics.RecordDebit("error", -1)
		l.log.Warn().Err(err).Msg("Debit failed")
	}
}

func (l *Loop) forceStop(signal models.Signal) {
	l.Stop()
	metrics.DefaultMetrics.RecordSignal(string(signal))
	l.log.Info().Str("signal", string(signal)).Str("mode", l.mode.String()).Msg("Billing stopped session")
	l.listener.OnForcedStop(signal)
}
