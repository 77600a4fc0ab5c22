package enrichment

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"
)

const (
	// GroqBaseURL is Groq's OpenAI-compatible endpoint.
	GroqBaseURL = "https://api.groq.com/openai/v1"
	// GroqDefaultModel is used when no model is configured.
	GroqDefaultModel = "llama-3.1-8b-instant"
)

const groqSystemPrompt = `Return STRICT JSON only (no markdown).
Schema:
{
 "knowledgeCards":[{"id":"topic|happening|glossary|background|tradeoffs","emoji":"", "title":"", "content":[...], "tags":[...], "sources":[...], "confidence": 0-100}],
 "predictedPaths":[{"text":"", "probability":0-100, "why":""}],
 "talkingPoints":[{"text":"", "tone":"curious|confident|neutral"}],
 "followUps":[{"text":""}]
}
Rules:
- Keep content concise and immediately usable.
- If unsure, lower confidence.`

var emptyEnrichment = []byte(`{"knowledgeCards":[],"predictedPaths":[],"talkingPoints":[],"followUps":[]}`)

// ErrNoKeys means the Groq client has no API keys configured.
var ErrNoKeys = errors.New("enrichment: no Groq API keys configured")

// GroqClient calls the chat completions API directly, rotating through API
// keys. A rate-limited or failing key moves on to the next one.
type GroqClient struct {
	clients []*openai.Client
	model   string
	start   func(n int) int
}

// NewGroqClient creates a client for keys. An empty baseURL uses Groq.
func NewGroqClient(keys []string, model, baseURL string) *GroqClient {
	if baseURL == "" {
		baseURL = GroqBaseURL
	}
	if model == "" {
		model = GroqDefaultModel
	}

	c := &GroqClient{model: model, start: rand.Intn}
	for _, k := range keys {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		cfg := openai.DefaultConfig(k)
		cfg.BaseURL = baseURL
		c.clients = append(c.clients, openai.NewClientWithConfig(cfg))
	}
	return c
}

// Enrich returns the model's message content as the raw response body.
func (c *GroqClient) Enrich(ctx context.Context, transcript string) ([]byte, error) {
	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		return emptyEnrichment, nil
	}
	if len(c.clients) == 0 {
		return nil, ErrNoKeys
	}

	req := openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: 0.2,
		MaxTokens:   800,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: groqSystemPrompt},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: "Transcript:\n" + transcript + "\n\nGenerate live context + next likely paths + what the user can say next.",
			},
		},
	}

	first := c.start(len(c.clients))
	var lastErr error
	for i := range c.clients {
		client := c.clients[(first+i)%len(c.clients)]

		resp, err := client.CreateChatCompletion(ctx, req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			status := statusOf(err)
			if status != 0 && status != http.StatusTooManyRequests && status < 500 {
				return nil, &APIError{Status: status, Message: err.Error()}
			}
			lastErr = err
			continue
		}
		if len(resp.Choices) == 0 {
			return []byte{}, nil
		}
		return []byte(resp.Choices[0].Message.Content), nil
	}

	return nil, &APIError{
		Status:  http.StatusTooManyRequests,
		Message: fmt.Sprintf("all Groq keys failed or rate-limited: %v", lastErr),
	}
}

func statusOf(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}
