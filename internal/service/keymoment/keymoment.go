// Package keymoment tags finalized utterances for display prioritization.
package keymoment

import (
	"regexp"
	"strings"
	"unicode"

	"ai-live-copilot-service/internal/models"
)

var numericToken = regexp.MustCompile(`\b\d+(\.\d+)?\b`)

var riskLexicon = []string{"risk", "issue", "problem", "rollback", "failure"}

var decisionLexicon = []string{"let's", "we should", "decide", "finalize", "agree"}

var apostrophes = strings.NewReplacer("’", "'", "‘", "'")

// Classify returns the key-moment tag for text. Rules apply in fixed
// precedence: number, then risk, then decision.
func Classify(text string) models.KeyMoment {
	t := strings.ToLower(apostrophes.Replace(text))

	if hasNumber(t) {
		return models.KeyMomentNumber
	}
	if containsAny(t, riskLexicon) {
		return models.KeyMomentRisk
	}
	if containsAny(t, decisionLexicon) {
		return models.KeyMomentDecision
	}
	return models.KeyMomentNone
}

func hasNumber(t string) bool {
	if numericToken.MatchString(t) {
		return true
	}
	for _, r := range t {
		if r == '%' || unicode.Is(unicode.Sc, r) {
			return true
		}
	}
	return false
}

func containsAny(t string, words []string) bool {
	for _, w := range words {
		if strings.Contains(t, w) {
			return true
		}
	}
	return false
}
