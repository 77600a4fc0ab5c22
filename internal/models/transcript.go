// Package models defines the data structures shared by the live session
// components, the display API and the published events.
package models

// KeyMoment tags an utterance for display prioritization.
type KeyMoment string

const (
	KeyMomentNone     KeyMoment = ""
	KeyMomentDecision KeyMoment = "decision"
	KeyMomentNumber   KeyMoment = "number"
	KeyMomentRisk     KeyMoment = "risk"
)

// DefaultSpeaker is the only speaker label in this version.
const DefaultSpeaker = "Speaker"

// TranscriptEntry is one finalized utterance.
type TranscriptEntry struct {
	ID         int64     `json:"id"`
	Time       string    `json:"time"`
	Speaker    string    `json:"speaker"`
	Text       string    `json:"text"`
	Bookmarked bool      `json:"bookmarked"`
	KeyMoment  KeyMoment `json:"keyMoment,omitempty"`
}

// IsKeyMoment reports whether the entry carries a key-moment tag.
func (e TranscriptEntry) IsKeyMoment() bool {
	return e.KeyMoment != KeyMomentNone
}

// TranscriptView is a filtered projection plus the current interim text.
type TranscriptView struct {
	Entries     []TranscriptEntry `json:"entries"`
	InterimText string            `json:"interimText"`
	Total       int               `json:"total"`
}

// TranscriptFinal is the event published for each appended entry.
type TranscriptFinal struct {
	EventType string          `json:"eventType"`
	SessionID string          `json:"sessionId"`
	Timestamp int64           `json:"timestamp"`
	Entry     TranscriptEntry `json:"entry"`
}
