package transcript

import (
	"fmt"
	"testing"
	"time"

	"ai-live-copilot-service/internal/models"
)

func fixedNow(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestStore_IdentifiersStrictlyIncreasing(t *testing.T) {
	// Frozen clock forces every id through the bump path.
	s := New(fixedNow(time.Date(2026, 1, 2, 10, 30, 0, 0, time.UTC)))

	const n = 50
	for i := 0; i < n; i++ {
		s.Append(fmt.Sprintf("utterance %d", i), models.KeyMomentNone)
	}

	entries := s.Entries()
	if len(entries) != n {
		t.Fatalf("expected %d entries, got %d", n, len(entries))
	}
	for i := 1; i < len(entries); i++ {
		if entries[i].ID <= entries[i-1].ID {
			t.Errorf("id %d (%d) not greater than previous (%d)", i, entries[i].ID, entries[i-1].ID)
		}
	}
}

func TestStore_AppendAssignsFields(t *testing.T) {
	now := time.Date(2026, 1, 2, 9, 5, 7, 0, time.UTC)
	s := New(fixedNow(now))

	e := s.Append("hello", models.KeyMomentRisk)

	if e.ID != now.UnixMilli() {
		t.Errorf("expected id %d, got %d", now.UnixMilli(), e.ID)
	}
	if e.Time != "09:05:07" {
		t.Errorf("expected time label 09:05:07, got %s", e.Time)
	}
	if e.Speaker != models.DefaultSpeaker {
		t.Errorf("expected speaker %q, got %q", models.DefaultSpeaker, e.Speaker)
	}
	if e.KeyMoment != models.KeyMomentRisk {
		t.Errorf("expected risk tag, got %q", e.KeyMoment)
	}
	if e.Bookmarked {
		t.Error("new entries must not be bookmarked")
	}
}

func TestStore_AppendNotifiesWithFullList(t *testing.T) {
	s := New(nil)
	var calls int
	var lastLen int
	s.OnAppend(func(entries []models.TranscriptEntry, appended models.TranscriptEntry) {
		calls++
		lastLen = len(entries)
		if entries[len(entries)-1].ID != appended.ID {
			t.Error("appended entry should be the last element")
		}
	})

	s.Append("one", models.KeyMomentNone)
	s.Append("two", models.KeyMomentNone)
	s.Append("three", models.KeyMomentNone)

	if calls != 3 {
		t.Errorf("expected 3 notifications, got %d", calls)
	}
	if lastLen != 3 {
		t.Errorf("expected full list of 3, got %d", lastLen)
	}
}

func TestStore_NotifiedListIsACopy(t *testing.T) {
	s := New(nil)
	var captured []models.TranscriptEntry
	s.OnAppend(func(entries []models.TranscriptEntry, _ models.TranscriptEntry) {
		captured = entries
	})
	e := s.Append("one", models.KeyMomentNone)

	s.ToggleBookmark(e.ID)

	if captured[0].Bookmarked {
		t.Error("listener snapshot must not observe later mutations")
	}
}

func TestStore_ToggleBookmark(t *testing.T) {
	s := New(nil)
	e := s.Append("one", models.KeyMomentNone)

	got, ok := s.ToggleBookmark(e.ID)
	if !ok || !got.Bookmarked {
		t.Fatalf("expected bookmarked entry, got %+v ok=%v", got, ok)
	}
	got, _ = s.ToggleBookmark(e.ID)
	if got.Bookmarked {
		t.Error("expected second toggle to clear bookmark")
	}
	if _, ok := s.ToggleBookmark(12345); ok {
		t.Error("expected unknown id to report false")
	}
}

func TestStore_Project(t *testing.T) {
	s := New(nil)
	a := s.Append("The Budget is tight", models.KeyMomentNone)
	s.Append("we had a rollback", models.KeyMomentRisk)
	s.Append("nothing here", models.KeyMomentNone)
	s.ToggleBookmark(a.ID)

	tests := []struct {
		name   string
		filter Filter
		want   int
	}{
		{"no filter", Filter{}, 3},
		{"query case insensitive", Filter{Query: "budget"}, 1},
		{"query no match", Filter{Query: "zebra"}, 0},
		{"speaker exact", Filter{Speaker: "Speaker"}, 3},
		{"speaker mismatch", Filter{Speaker: "speaker"}, 0},
		{"bookmarked", Filter{Bookmarked: true}, 1},
		{"key moments", Filter{KeyMoments: true}, 1},
		{"combined", Filter{Query: "the", Bookmarked: true}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.Project(tt.filter); len(got) != tt.want {
				t.Errorf("Project(%+v) returned %d entries, want %d", tt.filter, len(got), tt.want)
			}
		})
	}

	if s.Len() != 3 {
		t.Errorf("projection must not mutate the store, len=%d", s.Len())
	}
}

func TestStore_ClearKeepsIdentifiersIncreasing(t *testing.T) {
	s := New(fixedNow(time.Unix(100, 0)))
	before := s.Append("one", models.KeyMomentNone)
	s.SetInterim("partial")

	s.Clear()

	if s.Len() != 0 {
		t.Errorf("expected empty store, got %d", s.Len())
	}
	if s.Interim() != "" {
		t.Errorf("expected interim cleared, got %q", s.Interim())
	}
	after := s.Append("two", models.KeyMomentNone)
	if after.ID <= before.ID {
		t.Errorf("id after clear (%d) must exceed id before (%d)", after.ID, before.ID)
	}
	if _, ok := s.ToggleBookmark(before.ID); ok {
		t.Error("cleared entries must not be addressable")
	}
}

func TestStore_Speakers(t *testing.T) {
	s := New(nil)
	if len(s.Speakers()) != 0 {
		t.Error("expected no speakers on empty store")
	}
	s.Append("one", models.KeyMomentNone)
	s.Append("two", models.KeyMomentNone)

	speakers := s.Speakers()
	if len(speakers) != 1 || speakers[0] != models.DefaultSpeaker {
		t.Errorf("unexpected speakers: %v", speakers)
	}
}
