package app

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"ai-live-copilot-service/internal/config"
	"ai-live-copilot-service/internal/models"
	"ai-live-copilot-service/internal/service/enrichment"
	"ai-live-copilot-service/internal/service/session"
)

func testConfig(t *testing.T) *config.Configuration {
	t.Helper()
	cfg := config.Load()
	cfg.Store.Path = filepath.Join(t.TempDir(), "copilot.db")
	cfg.Kafka.Enabled = false
	cfg.STT.Provider = "mock"
	cfg.STT.MockInterval = time.Hour
	cfg.Enrichment.Backend = "http"
	cfg.Session.Token = ""
	return cfg
}

func TestNewEnrichmentClient(t *testing.T) {
	tests := []struct {
		name    string
		backend string
		keys    []string
		wantErr error
		isGroq  bool
	}{
		{"http", "http", nil, nil, false},
		{"default", "", nil, nil, false},
		{"groq with keys", "groq", []string{"k1"}, nil, true},
		{"groq without keys", "groq", nil, enrichment.ErrNoKeys, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			cfg.Enrichment.Backend = tt.backend
			cfg.Groq.APIKeys = tt.keys

			client, err := newEnrichmentClient(cfg, func() string { return "" })
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			if err != nil {
				return
			}
			if _, ok := client.(*enrichment.GroqClient); ok != tt.isGroq {
				t.Errorf("groq client = %v, want %v", ok, tt.isGroq)
			}
		})
	}

	cfg := testConfig(t)
	cfg.Enrichment.Backend = "carrier-pigeon"
	if _, err := newEnrichmentClient(cfg, nil); err == nil {
		t.Error("expected error for unknown backend")
	}
}

func TestApplication_Lifecycle(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	a, err := New(ctx, testConfig(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := a.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer a.Shutdown(ctx)

	if err := a.Ready(); err != nil {
		t.Errorf("expected ready, got %v", err)
	}

	if err := a.Controller.Listen(ctx, true); !errors.Is(err, session.ErrMicPermissionRequired) {
		t.Fatalf("expected ErrMicPermissionRequired, got %v", err)
	}
	if err := a.Controller.SetMicPermission(ctx, models.MicGranted); err != nil {
		t.Fatal(err)
	}
	if err := a.Controller.Listen(ctx, true); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	st, err := a.Controller.State(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !st.Listening {
		t.Error("expected listening")
	}
}

func TestApplication_UnknownProviderReportsUnavailable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cfg := testConfig(t)
	cfg.STT.Provider = "whisper"
	a, err := New(ctx, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := a.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer a.Shutdown(ctx)

	if err := a.Controller.SetMicPermission(ctx, models.MicGranted); err != nil {
		t.Fatal(err)
	}
	if err := a.Controller.Listen(ctx, true); err != nil {
		t.Fatalf("Listen: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		st, err := a.Controller.State(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if !st.Listening {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("engine failure was not observed")
		}
		time.Sleep(10 * time.Millisecond)
	}

	if err := a.Controller.Listen(ctx, true); !errors.Is(err, session.ErrCapabilityUnavailable) {
		t.Errorf("expected ErrCapabilityUnavailable, got %v", err)
	}
}
