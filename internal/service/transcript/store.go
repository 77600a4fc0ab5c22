// Package transcript holds the append-only ordered log of finalized
// utterances plus the current interim text.
//
// A Store is owned by the session task queue and is not safe for concurrent
// use.
package transcript

import (
	"strings"
	"time"

	"ai-live-copilot-service/internal/models"
)

// TimeLayout is the wall-clock label format for entries.
const TimeLayout = "15:04:05"

// AppendListener is notified with the full entry list after every append.
type AppendListener func(entries []models.TranscriptEntry, appended models.TranscriptEntry)

// Filter selects a projection of the transcript. Zero values match everything.
type Filter struct {
	Speaker    string
	Query      string
	Bookmarked bool
	KeyMoments bool
}

// Store is the transcript log.
type Store struct {
	now      func() time.Time
	entries  []models.TranscriptEntry
	index    map[int64]int
	interim  string
	lastID   int64
	listener AppendListener
}

// New creates an empty store using now for identifiers and time labels.
func New(now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{
		now:   now,
		index: make(map[int64]int),
	}
}

// OnAppend registers the listener notified after each append.
func (s *Store) OnAppend(l AppendListener) {
	s.listener = l
}

// Append records a finalized utterance and notifies the listener.
// Identifiers are wall-clock milliseconds, bumped so they strictly increase.
func (s *Store) Append(text string, tag models.KeyMoment) models.TranscriptEntry {
	now := s.now()
	id := now.UnixMilli()
	if id <= s.lastID {
		id = s.lastID + 1
	}
	s.lastID = id

	entry := models.TranscriptEntry{
		ID:        id,
		Time:      now.Format(TimeLayout),
		Speaker:   models.DefaultSpeaker,
		Text:      text,
		KeyMoment: tag,
	}
	s.index[id] = len(s.entries)
	s.entries = append(s.entries, entry)

	if s.listener != nil {
		s.listener(s.Entries(), entry)
	}
	return entry
}

// SetInterim replaces the interim text.
func (s *Store) SetInterim(text string) {
	s.interim = text
}

// Interim returns the current interim text.
func (s *Store) Interim() string {
	return s.interim
}

// ToggleBookmark flips the bookmark flag of entry id.
func (s *Store) ToggleBookmark(id int64) (models.TranscriptEntry, bool) {
	i, ok := s.index[id]
	if !ok {
		return models.TranscriptEntry{}, false
	}
	s.entries[i].Bookmarked = !s.entries[i].Bookmarked
	return s.entries[i], true
}

// Entries returns a copy of all entries in append order.
func (s *Store) Entries() []models.TranscriptEntry {
	out := make([]models.TranscriptEntry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Len is the number of entries.
func (s *Store) Len() int {
	return len(s.entries)
}

// Project returns the entries matching f in append order.
func (s *Store) Project(f Filter) []models.TranscriptEntry {
	query := strings.ToLower(f.Query)
	out := make([]models.TranscriptEntry, 0, len(s.entries))
	for _, e := range s.entries {
		if f.Speaker != "" && e.Speaker != f.Speaker {
			continue
		}
		if query != "" && !strings.Contains(strings.ToLower(e.Text), query) {
			continue
		}
		if f.Bookmarked && !e.Bookmarked {
			continue
		}
		if f.KeyMoments && !e.IsKeyMoment() {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Speakers returns the distinct speaker labels in first-seen order.
func (s *Store) Speakers() []string {
	seen := make(map[string]bool)
	out := []string{}
	for _, e := range s.entries {
		if !seen[e.Speaker] {
			seen[e.Speaker] = true
			out = append(out, e.Speaker)
		}
	}
	return out
}

// Clear removes every entry and the interim text. Identifiers keep
// increasing after a clear.
func (s *Store) Clear() {
	s.entries = nil
	s.index = make(map[int64]int)
	s.interim = ""
}
