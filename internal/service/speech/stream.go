// Package speech adapts a restart-prone recognition engine into a continuous
// stream of interim and finalized utterances.
package speech

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"ai-live-copilot-service/internal/observability/metrics"
	"ai-live-copilot-service/internal/service/eventloop"
	"ai-live-copilot-service/internal/service/stt"
)

// State is the recognizer state.
type State int

const (
	// StateIdle - not listening.
	StateIdle State = iota
	// StateListening - an engine run is active.
	StateListening
	// StateRestarting - the engine ended on its own and a restart is armed.
	StateRestarting
	// StateFailed - a terminal failure occurred. Only Stop or Start leave it.
	StateFailed
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateListening:
		return "LISTENING"
	case StateRestarting:
		return "RESTARTING"
	case StateFailed:
		return "FAILED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// ErrRestartLoop is reported when the engine fails to start too many times
// in a row.
var ErrRestartLoop = errors.New("speech: engine failed to start too many times in a row")

// Sink receives stream output on the task queue.
type Sink interface {
	// OnInterim replaces the current interim text.
	OnInterim(text string)
	// OnFinal delivers a finalized utterance exactly once.
	OnFinal(text string)
	// OnFault reports a non-fatal engine error. Listening continues.
	OnFault(err error)
	// OnFailure reports a terminal failure. The stream is in StateFailed.
	OnFailure(err error)
}

// Config controls restart behaviour.
//
// Engine runs that end on their own are restarted without limit. Only
// consecutive Start errors count toward MaxStartFailures.
type Config struct {
	RestartDelay     time.Duration
	MaxStartFailures int
}

// DefaultConfig returns the default restart policy.
func DefaultConfig() Config {
	return Config{
		RestartDelay:     250 * time.Millisecond,
		MaxStartFailures: 5,
	}
}

// Stream is the recognizer state machine.
//
// State transitions:
//
//	IDLE ──Start──→ LISTENING ──EngineEnded──→ RESTARTING ──Restarted──→ LISTENING
//	                    │                           │
//	                    └──────────Fail─────────────┴──→ FAILED
//
//	any ──Stop──→ IDLE
//
// Every transition bumps the generation; engine callbacks carrying an older
// generation are dropped. All methods must be called on the task queue.
type Stream struct {
	engine stt.Engine
	ex     eventloop.Executor
	clock  eventloop.Clock
	sink   Sink
	cfg    Config
	log    zerolog.Logger

	state         State
	gen           atomic.Uint64
	restarts      int
	startFailures int
	timer         eventloop.Timer

	// engineMu serializes engine Start/Stop calls issued from Go work.
	engineMu sync.Mutex
}

// New creates an idle stream.
func New(engine stt.Engine, ex eventloop.Executor, clock eventloop.Clock, sink Sink, cfg Config, logger zerolog.Logger) *Stream {
	if cfg.RestartDelay <= 0 {
		cfg.RestartDelay = DefaultConfig().RestartDelay
	}
	if cfg.MaxStartFailures <= 0 {
		cfg.MaxStartFailures = DefaultConfig().MaxStartFailures
	}
	return &Stream{
		engine: engine,
		ex:     ex,
		clock:  clock,
		sink:   sink,
		cfg:    cfg,
		log:    logger,
	}
}

// State returns the current state.
func (s *Stream) State() State { return s.state }

// Generation returns the current callback generation.
func (s *Stream) Generation() uint64 { return s.gen.Load() }

// Start begins continuous recognition. It is a no-op while already
// listening or restarting.
func (s *Stream) Start() {
	if s.state == StateListening || s.state == StateRestarting {
		return
	}
	s.state = StateListening
	s.restarts = 0
	s.startFailures = 0
	s.launch(s.gen.Add(1))
	s.log.Debug().Msg("Recognizer started")
}

// Stop ends recognition. Idempotent.
func (s *Stream) Stop() {
	if s.state == StateIdle {
		return
	}
	wasRunning := s.state != StateFailed
	s.state = StateIdle
	s.cancelTimer()
	gen := s.gen.Add(1)
	if wasRunning {
		s.halt(gen)
	}
	s.log.Debug().Msg("Recognizer stopped")
}

// launch starts the engine off-loop for generation gen.
func (s *Stream) launch(gen uint64) {
	cb := &generationCallback{s: s, gen: gen}
	s.ex.Go(func() {
		s.engineMu.Lock()
		defer s.engineMu.Unlock()
		if s.gen.Load() != gen {
			return
		}
		err := s.engine.Start(context.Background(), cb)
		if err != nil {
			s.ex.Post(func() { s.startFailed(gen, err) })
			return
		}
		s.ex.Post(func() { s.started(gen) })
	})
}

// halt stops the engine off-loop unless a newer generation has launched.
func (s *Stream) halt(gen uint64) {
	s.ex.Go(func() {
		s.engineMu.Lock()
		defer s.engineMu.Unlock()
		if s.gen.Load() != gen {
			return
		}
		if err := s.engine.Stop(); err != nil {
			s.log.Warn().Err(err).Msg("Engine stop failed")
		}
	})
}

func (s *Stream) started(gen uint64) {
	if s.gen.Load() != gen || s.state != StateListening {
		return
	}
	s.startFailures = 0
}

func (s *Stream) startFailed(gen uint64, err error) {
	if s.gen.Load() != gen || s.state != StateListening {
		return
	}
	if stt.IsTerminal(err) {
		s.fail(err)
		return
	}
	s.startFailures++
	if s.startFailures > s.cfg.MaxStartFailures {
		s.fail(fmt.Errorf("%w: %w", ErrRestartLoop, err))
		return
	}
	s.log.Warn().Err(err).Int("failures", s.startFailures).Msg("Engine start failed, retrying")
	s.engineEnded()
}

func (s *Stream) onResult(gen uint64, r stt.Result) {
	if s.gen.Load() != gen || s.state != StateListening {
		return
	}
	s.sink.OnInterim(r.Interim)
	for _, f := range r.Finals {
		text := strings.TrimSpace(f.Text)
		if text == "" {
			continue
		}
		s.sink.OnFinal(text)
	}
}

func (s *Stream) onError(gen uint64, err error) {
	if s.gen.Load() != gen || s.state != StateListening {
		return
	}
	switch {
	case stt.IsTransient(err):
		return
	case stt.IsTerminal(err):
		s.fail(err)
	default:
		s.log.Warn().Err(err).Msg("Engine fault")
		metrics.DefaultMetrics.RecordRecognizerError(s.engine.Name())
		s.sink.OnFault(err)
	}
}

func (s *Stream) onEnd(gen uint64) {
	if s.gen.Load() != gen || s.state != StateListening {
		return
	}
	s.engineEnded()
}

// engineEnded moves LISTENING → RESTARTING and arms the restart timer.
func (s *Stream) engineEnded() {
	s.restarts++
	s.state = StateRestarting
	gen := s.gen.Add(1)
	s.timer = eventloop.AfterFunc(s.clock, s.ex, s.cfg.RestartDelay, func() { s.restarted(gen) })
}

// restarted moves RESTARTING → LISTENING.
func (s *Stream) restarted(gen uint64) {
	if s.gen.Load() != gen || s.state != StateRestarting {
		return
	}
	s.timer = nil
	s.state = StateListening
	metrics.DefaultMetrics.RecognizerRestarts.Inc()
	s.log.Debug().Int("restarts", s.restarts).Msg("Recognizer restarted")
	s.launch(gen)
}

// fail moves to FAILED and stops the engine.
func (s *Stream) fail(err error) {
	s.state = StateFailed
	s.cancelTimer()
	s.halt(s.gen.Add(1))
	metrics.DefaultMetrics.RecordRecognizerFailure(failureReason(err))
	s.log.Error().Err(err).Msg("Recognizer failed")
	s.sink.OnFailure(err)
}

func (s *Stream) cancelTimer() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, stt.ErrPermissionDenied):
		return "permission_denied"
	case errors.Is(err, stt.ErrUnsupported):
		return "unsupported"
	case errors.Is(err, ErrRestartLoop):
		return "restart_loop"
	default:
		return "other"
	}
}

// generationCallback binds engine callbacks to the generation that launched
// the engine and posts them onto the task queue.
type generationCallback struct {
	s   *Stream
	gen uint64
}

func (c *generationCallback) OnResult(r stt.Result) {
	c.s.ex.Post(func() { c.s.onResult(c.gen, r) })
}

func (c *generationCallback) OnError(err error) {
	c.s.ex.Post(func() { c.s.onError(c.gen, err) })
}

func (c *generationCallback) OnEnd() {
	c.s.ex.Post(func() { c.s.onEnd(c.gen) })
}
