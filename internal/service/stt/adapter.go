// Package stt defines the interface for speech recognition engines.
//
// An engine is a continuous, self-terminating capability: once started it
// reports results until it stops on its own (OnEnd) or is stopped.
package stt

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNoSpeech is a transient "nothing recognized" condition.
	ErrNoSpeech = errors.New("stt: no speech detected")
	// ErrUnsupported means recognition is not available at all.
	ErrUnsupported = errors.New("stt: speech recognition unsupported")
	// ErrPermissionDenied means audio capture permission was revoked or refused.
	ErrPermissionDenied = errors.New("stt: audio capture permission denied")
)

// Final is one finalized utterance within a result batch.
type Final struct {
	Text       string
	Confidence float64
}

// Result is one recognition batch: the current interim text and zero or
// more finalized utterances.
type Result struct {
	Interim string
	Finals  []Final
}

// Callback receives engine output. Implementations must not block.
type Callback interface {
	// OnResult is called for every recognition batch.
	OnResult(r Result)

	// OnError is called when the engine reports an error. The engine may
	// still end afterwards via OnEnd.
	OnError(err error)

	// OnEnd is called when the engine stops on its own.
	OnEnd()
}

// Engine is a speech recognition capability (Google, mock, etc.).
type Engine interface {
	// Start begins a recognition run. It may be called again after the
	// previous run ended or was stopped.
	Start(ctx context.Context, cb Callback) error

	// Stop ends the current run. It is idempotent and must not block on
	// network round trips.
	Stop() error

	// Name identifies the provider for logs and metrics.
	Name() string
}

// IsTerminal reports whether err must not trigger an automatic restart.
func IsTerminal(err error) bool {
	return errors.Is(err, ErrUnsupported) || errors.Is(err, ErrPermissionDenied)
}

// IsTransient reports whether err should be ignored entirely.
func IsTransient(err error) bool {
	return errors.Is(err, ErrNoSpeech)
}

// Unavailable returns an engine whose every start fails with reason wrapped
// in ErrUnsupported. It stands in when the configured engine cannot be built.
func Unavailable(name string, reason error) Engine {
	return unavailable{name: name, reason: reason}
}

type unavailable struct {
	name   string
	reason error
}

func (u unavailable) Start(context.Context, Callback) error {
	if u.reason == nil {
		return ErrUnsupported
	}
	if errors.Is(u.reason, ErrUnsupported) {
		return u.reason
	}
	return fmt.Errorf("%w: %v", ErrUnsupported, u.reason)
}

func (unavailable) Stop() error { return nil }

func (u unavailable) Name() string { return u.name }
