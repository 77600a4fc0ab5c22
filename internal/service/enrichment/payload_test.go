package enrichment

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"ai-live-copilot-service/internal/models"
)

func TestBuildPayload_KeepsLastEntries(t *testing.T) {
	var texts []string
	for i := 0; i < 45; i++ {
		texts = append(texts, fmt.Sprintf("u%d", i))
	}
	got := BuildPayload(entries(texts...))
	lines := strings.Split(got, "\n")

	if len(lines) != PayloadEntries {
		t.Fatalf("expected %d lines, got %d", PayloadEntries, len(lines))
	}
	if lines[0] != "Speaker: u15" || lines[29] != "Speaker: u44" {
		t.Errorf("unexpected window: first=%q last=%q", lines[0], lines[29])
	}
}

func TestBuildPayload_TruncatesRuneSafe(t *testing.T) {
	long := strings.Repeat("é", 200)
	var e []models.TranscriptEntry
	for i := 0; i < 30; i++ {
		e = append(e, models.TranscriptEntry{Speaker: "Speaker", Text: long})
	}
	e[29].Text = long + " end"

	got := BuildPayload(e)
	if n := utf8.RuneCountInString(got); n != PayloadChars {
		t.Errorf("expected %d characters, got %d", PayloadChars, n)
	}
	if !utf8.ValidString(got) {
		t.Error("payload split a multi-byte character")
	}
	if !strings.HasSuffix(got, " end") {
		t.Error("expected the tail of the transcript to be kept")
	}
}

func TestBuildPayload_Empty(t *testing.T) {
	if got := BuildPayload(nil); got != "" {
		t.Errorf("expected empty payload, got %q", got)
	}
}

func TestLimiter(t *testing.T) {
	start := testTime(0)
	l := NewLimiter(4e9)

	if !l.Admit(start, false) {
		t.Fatal("first call must be admitted")
	}
	if l.Admit(testTime(3999), false) {
		t.Error("call inside the window admitted")
	}
	if l.Admit(testTime(4000), true) {
		t.Error("call admitted while another is in flight")
	}
	if !l.Admit(testTime(4000), false) {
		t.Error("call at the window edge should be admitted")
	}

	if !l.Reserve() || l.Reserve() {
		t.Error("expected exactly one reservation")
	}
	l.Release()
	if l.Pending() {
		t.Error("expected slot released")
	}
}
