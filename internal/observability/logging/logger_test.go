package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func TestInitWriter_JSONFields(t *testing.T) {
	var buf bytes.Buffer
	InitWriter(Config{Level: "debug", Format: "json"}, &buf)
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	l := WithComponent("billing")
	l.Info().Str("sessionId", "s-1").Msg("debit ok")

	var got map[string]any
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("expected JSON log line, got %q: %v", buf.String(), err)
	}
	if got["component"] != "billing" {
		t.Errorf("expected component=billing, got %v", got["component"])
	}
	if got["message"] != "debit ok" {
		t.Errorf("expected message, got %v", got["message"])
	}
}

func TestInitWriter_InvalidLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	InitWriter(Config{Level: "loud", Format: "json"}, &buf)

	if zerolog.GlobalLevel() != zerolog.InfoLevel {
		t.Errorf("expected info level, got %v", zerolog.GlobalLevel())
	}
	log.Debug().Msg("hidden")
	if buf.Len() != 0 {
		t.Errorf("expected debug line to be filtered, got %q", buf.String())
	}
}

func TestWithEngine_TagsProvider(t *testing.T) {
	var buf bytes.Buffer
	InitWriter(Config{Level: "info", Format: "json"}, &buf)

	l := WithEngine("google")
	l.Info().Msg("Recognizer started")

	var got map[string]any
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("expected JSON log line, got %q: %v", buf.String(), err)
	}
	if got["component"] != "speech" {
		t.Errorf("expected component=speech, got %v", got["component"])
	}
	if got["sttProvider"] != "google" {
		t.Errorf("expected sttProvider=google, got %v", got["sttProvider"])
	}
}
