package models

// MicPermission mirrors the browser permission tri-state.
type MicPermission string

const (
	MicPrompt  MicPermission = "prompt"
	MicGranted MicPermission = "granted"
	MicDenied  MicPermission = "denied"
)

// Valid reports whether p is one of the known permission states.
func (p MicPermission) Valid() bool {
	return p == MicPrompt || p == MicGranted || p == MicDenied
}

// SessionState is the snapshot of the live session exposed to the display layer.
type SessionState struct {
	SessionID        string        `json:"sessionId,omitempty"`
	Listening        bool          `json:"listening"`
	ListeningSeconds int           `json:"listeningSeconds"`
	DemoSecondsUsed  int           `json:"demoSecondsUsed"`
	InterimText      string        `json:"interimText"`
	Authenticated    bool          `json:"authenticated"`
	Credits          int           `json:"credits"`
	MicPermission    MicPermission `json:"micPermission"`
	RecognitionError string        `json:"recognitionError,omitempty"`
	RecognizerState  string        `json:"recognizerState"`
}

// Signal is a discrete one-shot event for the surrounding UI.
type Signal string

const (
	SignalTrialEnded   Signal = "trial_ended"
	SignalLowCredits   Signal = "low_credits"
	SignalOutOfCredits Signal = "out_of_credits"
)

// Event types delivered to subscribers and published to Kafka.
const (
	EventTranscriptFinal   = "session.transcript.final"
	EventEnrichmentUpdated = "session.enrichment.updated"
	EventListeningChanged  = "session.listening.changed"
	EventInterimUpdated    = "session.interim.updated"
	EventRecognitionFault  = "session.recognition.fault"
	EventSignal            = "session.signal"
)

// Event is the envelope pushed to display-layer subscribers.
type Event struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId,omitempty"`
	Timestamp int64  `json:"timestamp"`
	Signal    Signal `json:"signal,omitempty"`
	Data      any    `json:"data,omitempty"`
}

// SignalRaised is the event published when a signal fires.
type SignalRaised struct {
	EventType string `json:"eventType"`
	SessionID string `json:"sessionId"`
	Timestamp int64  `json:"timestamp"`
	Signal    Signal `json:"signal"`
	Credits   int    `json:"credits,omitempty"`
}
