// Package schema decodes enrichment responses into strongly typed results.
// Untrusted fields are validated one by one; anything that does not fit the
// expected shape is dropped or replaced by a fallback, never passed through.
package schema

import (
	"bytes"
	"encoding/json"
	"strings"
	"unicode/utf8"

	"ai-live-copilot-service/internal/models"
)

// FallbackExcerptChars bounds the raw text kept in a degraded result.
const FallbackExcerptChars = 300

// DecodeEnrichment parses raw into a result. When raw is not a JSON object
// with the expected structure, it returns a degraded result holding a single
// informational card built from the raw text and reports degraded=true.
func DecodeEnrichment(raw []byte) (result models.EnrichmentResult, degraded bool) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(bytes.TrimSpace(raw), &doc); err != nil || doc == nil {
		return Fallback(string(raw)), true
	}

	_, hasCards := doc["knowledgeCards"]
	_, hasPaths := doc["predictedPaths"]
	_, hasPoints := doc["talkingPoints"]
	_, hasFollowUps := doc["followUps"]
	if !hasCards && !hasPaths && !hasPoints && !hasFollowUps {
		return Fallback(string(raw)), true
	}

	return models.EnrichmentResult{
		KnowledgeCards: decodeCards(doc["knowledgeCards"]),
		PredictedPaths: decodePaths(doc["predictedPaths"]),
		TalkingPoints:  decodePoints(doc["talkingPoints"]),
		FollowUps:      decodeFollowUps(doc["followUps"]),
	}, false
}

// Fallback builds the degraded result for unparseable content.
func Fallback(text string) models.EnrichmentResult {
	return models.EnrichmentResult{
		KnowledgeCards: []models.KnowledgeCard{{
			ID:         "topic",
			Emoji:      "📌",
			Title:      "Current Topic",
			Content:    []string{excerpt(strings.TrimSpace(text), FallbackExcerptChars)},
			Tags:       []string{},
			Sources:    []string{},
			Confidence: 50,
		}},
		PredictedPaths: []models.PredictedPath{},
		TalkingPoints:  []models.TalkingPoint{},
		FollowUps:      []models.FollowUp{},
	}
}

func excerpt(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// elements splits a JSON array into its raw elements. Non-arrays yield none.
func elements(raw json.RawMessage) []map[string]json.RawMessage {
	var items []json.RawMessage
	if len(raw) == 0 || json.Unmarshal(raw, &items) != nil {
		return nil
	}
	out := make([]map[string]json.RawMessage, 0, len(items))
	for _, item := range items {
		var obj map[string]json.RawMessage
		if json.Unmarshal(item, &obj) == nil && obj != nil {
			out = append(out, obj)
		}
	}
	return out
}

func str(obj map[string]json.RawMessage, key string) string {
	var s string
	if json.Unmarshal(obj[key], &s) != nil {
		return ""
	}
	return strings.TrimSpace(s)
}

func num(obj map[string]json.RawMessage, key string) float64 {
	var f float64
	if json.Unmarshal(obj[key], &f) != nil {
		return 0
	}
	return clamp(f, 0, 100)
}

func strs(obj map[string]json.RawMessage, key string) []string {
	var items []json.RawMessage
	if json.Unmarshal(obj[key], &items) != nil {
		return []string{}
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		var s string
		if json.Unmarshal(item, &s) == nil && strings.TrimSpace(s) != "" {
			out = append(out, strings.TrimSpace(s))
		}
	}
	return out
}

func clamp(f, lo, hi float64) float64 {
	if f < lo {
		return lo
	}
	if f > hi {
		return hi
	}
	return f
}

func decodeCards(raw json.RawMessage) []models.KnowledgeCard {
	out := []models.KnowledgeCard{}
	for _, obj := range elements(raw) {
		card := models.KnowledgeCard{
			ID:         str(obj, "id"),
			Emoji:      str(obj, "emoji"),
			Title:      str(obj, "title"),
			Content:    strs(obj, "content"),
			Tags:       strs(obj, "tags"),
			Sources:    strs(obj, "sources"),
			Confidence: num(obj, "confidence"),
		}
		// content is sometimes a bare string
		if len(card.Content) == 0 {
			if s := str(obj, "content"); s != "" {
				card.Content = []string{s}
			}
		}
		if card.Title == "" && len(card.Content) == 0 {
			continue
		}
		out = append(out, card)
	}
	return out
}

func decodePaths(raw json.RawMessage) []models.PredictedPath {
	out := []models.PredictedPath{}
	for _, obj := range elements(raw) {
		p := models.PredictedPath{
			Text:        str(obj, "text"),
			Probability: num(obj, "probability"),
			Why:         str(obj, "why"),
		}
		if p.Text == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

func decodePoints(raw json.RawMessage) []models.TalkingPoint {
	out := []models.TalkingPoint{}
	for _, obj := range elements(raw) {
		p := models.TalkingPoint{Text: str(obj, "text"), Tone: parseTone(str(obj, "tone"))}
		if p.Text == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

func decodeFollowUps(raw json.RawMessage) []models.FollowUp {
	out := []models.FollowUp{}
	for _, obj := range elements(raw) {
		f := models.FollowUp{Text: str(obj, "text")}
		if f.Text == "" {
			continue
		}
		out = append(out, f)
	}
	return out
}

func parseTone(s string) models.Tone {
	switch models.Tone(strings.ToLower(s)) {
	case models.ToneCurious:
		return models.ToneCurious
	case models.ToneConfident:
		return models.ToneConfident
	default:
		return models.ToneNeutral
	}
}
