package models

import "time"

// KnowledgeCard is a unit of contextual background for the conversation.
type KnowledgeCard struct {
	ID         string   `json:"id"`
	Emoji      string   `json:"emoji"`
	Title      string   `json:"title"`
	Content    []string `json:"content"`
	Tags       []string `json:"tags,omitempty"`
	Sources    []string `json:"sources,omitempty"`
	Confidence float64  `json:"confidence,omitempty"`
}

// PredictedPath is a likely direction the conversation may take.
type PredictedPath struct {
	Text        string  `json:"text"`
	Probability float64 `json:"probability"`
	Why         string  `json:"why"`
}

// Tone of a suggested talking point.
type Tone string

const (
	ToneCurious   Tone = "curious"
	ToneConfident Tone = "confident"
	ToneNeutral   Tone = "neutral"
)

// TalkingPoint is something the user could say next.
type TalkingPoint struct {
	Text string `json:"text"`
	Tone Tone   `json:"tone"`
}

// FollowUp is a suggested follow-up question.
type FollowUp struct {
	Text string `json:"text"`
}

// EnrichmentResult is the latest successful enrichment response.
type EnrichmentResult struct {
	KnowledgeCards []KnowledgeCard `json:"knowledgeCards"`
	PredictedPaths []PredictedPath `json:"predictedPaths"`
	TalkingPoints  []TalkingPoint  `json:"talkingPoints"`
	FollowUps      []FollowUp      `json:"followUps"`
	FetchedAt      time.Time       `json:"fetchedAt"`
}

// EnrichmentState is the coordinator state exposed to the display layer.
type EnrichmentState struct {
	EnrichmentResult
	IsUpdating           bool   `json:"isUpdating"`
	LastUpdateSecondsAgo *int64 `json:"lastUpdateSecondsAgo"`
	Error                string `json:"error,omitempty"`
}

// EnrichmentUpdated is the event published after a successful enrichment.
type EnrichmentUpdated struct {
	EventType string           `json:"eventType"`
	SessionID string           `json:"sessionId"`
	Timestamp int64            `json:"timestamp"`
	Degraded  bool             `json:"degraded"`
	Result    EnrichmentResult `json:"result"`
}
