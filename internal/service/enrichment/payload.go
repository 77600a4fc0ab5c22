package enrichment

import (
	"strings"

	"ai-live-copilot-service/internal/models"
)

const (
	// PayloadEntries is how many trailing entries are sent.
	PayloadEntries = 30
	// PayloadChars bounds the payload to its trailing characters.
	PayloadChars = 3500
)

// BuildPayload renders the trailing entries as "speaker: text" lines and
// keeps the last PayloadChars characters.
func BuildPayload(entries []models.TranscriptEntry) string {
	if len(entries) > PayloadEntries {
		entries = entries[len(entries)-PayloadEntries:]
	}
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		lines = append(lines, e.Speaker+": "+e.Text)
	}
	text := strings.Join(lines, "\n")

	runes := []rune(text)
	if len(runes) > PayloadChars {
		return string(runes[len(runes)-PayloadChars:])
	}
	return text
}
