// Package billing meters listening time: a durable demo counter for
// signed-out users and periodic debits against the remote credit ledger for
// signed-in users.
package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"ai-live-copilot-service/internal/schema"
)

var (
	// ErrInsufficientFunds is returned when the ledger refuses a debit (HTTP 402).
	ErrInsufficientFunds = errors.New("billing: insufficient funds")
	// ErrTrialEnded means the demo allowance is used up.
	ErrTrialEnded = errors.New("billing: demo trial ended")
	// ErrOutOfCredits means the cached balance is zero.
	ErrOutOfCredits = errors.New("billing: out of credits")
)

// Ledger is the remote credit ledger.
type Ledger interface {
	// Debit subtracts amount and returns the new balance.
	Debit(ctx context.Context, amount int) (int, error)
	// EnsureAccount creates the account if needed and returns its balance.
	EnsureAccount(ctx context.Context) (int, error)
}

// LedgerError is a non-2xx ledger response other than 402.
type LedgerError struct {
	Status  int
	Message string
}

func (e *LedgerError) Error() string {
	return fmt.Sprintf("billing: %s (status %d)", e.Message, e.Status)
}

// HTTPLedger talks to the ledger's JSON endpoints with the bearer credential.
type HTTPLedger struct {
	debitURL  string
	ensureURL string
	token     func() string
	http      *http.Client
}

// NewHTTPLedger creates a ledger client.
func NewHTTPLedger(debitURL, ensureURL string, token func() string, timeout time.Duration) *HTTPLedger {
	if token == nil {
		token = func() string { return "" }
	}
	return &HTTPLedger{
		debitURL:  debitURL,
		ensureURL: ensureURL,
		token:     token,
		http:      &http.Client{Timeout: timeout},
	}
}

type creditsResponse struct {
	Credits *int `json:"credits"`
}

// Debit clamps amount to 1..10 before sending it.
func (l *HTTPLedger) Debit(ctx context.Context, amount int) (int, error) {
	amount = max(1, min(10, amount))
	return l.post(ctx, l.debitURL, map[string]int{"amount": amount})
}

func (l *HTTPLedger) EnsureAccount(ctx context.Context) (int, error) {
	return l.post(ctx, l.ensureURL, struct{}{})
}

func (l *HTTPLedger) post(ctx context.Context, url string, payload any) (int, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("encode ledger request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("build ledger request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if tok := l.token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := l.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("ledger request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := schema.ReadReply(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("read ledger response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusPaymentRequired:
		return 0, fmt.Errorf("%w: %s", ErrInsufficientFunds, schema.ErrorMessage(raw, resp.StatusCode))
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return 0, &LedgerError{Status: resp.StatusCode, Message: schema.ErrorMessage(raw, resp.StatusCode)}
	}

	var out creditsResponse
	if err := json.Unmarshal(raw, &out); err != nil || out.Credits == nil {
		return 0, &LedgerError{Status: resp.StatusCode, Message: "response missing credits"}
	}
	return max(0, *out.Credits), nil
}
