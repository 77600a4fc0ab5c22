package enrichment

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"ai-live-copilot-service/internal/schema"
)

func testTime(ms int64) time.Time {
	return time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC).Add(time.Duration(ms) * time.Millisecond)
}

func TestHTTPClient_PostsTranscriptWithBearer(t *testing.T) {
	var gotAuth, gotTranscript string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		var body enrichRequest
		json.NewDecoder(r.Body).Decode(&body)
		gotTranscript = body.Transcript
		w.Write([]byte(validBody))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, func() string { return "tok-1" }, time.Second)
	raw, err := c.Enrich(context.Background(), "Speaker: hi")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(raw) != validBody {
		t.Errorf("expected raw body passthrough, got %q", raw)
	}
	if gotAuth != "Bearer tok-1" {
		t.Errorf("expected bearer header, got %q", gotAuth)
	}
	if gotTranscript != "Speaker: hi" {
		t.Errorf("expected transcript in body, got %q", gotTranscript)
	}
}

func TestHTTPClient_NoTokenNoHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "" {
			t.Errorf("unexpected Authorization header")
		}
		w.Write([]byte("{}"))
	}))
	defer srv.Close()

	if _, err := NewHTTPClient(srv.URL, nil, time.Second).Enrich(context.Background(), "x"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestHTTPClient_ErrorMessages(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"error field", 500, `{"error":"Missing GROQ_API_KEYS"}`, "Missing GROQ_API_KEYS"},
		{"message field", 403, `{"message":"forbidden"}`, "forbidden"},
		{"plain body", 502, `bad gateway`, "Request failed (502)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			_, err := NewHTTPClient(srv.URL, nil, time.Second).Enrich(context.Background(), "x")
			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("expected *APIError, got %v", err)
			}
			if apiErr.Status != tt.status || apiErr.Message != tt.want {
				t.Errorf("got %+v, want status %d message %q", apiErr, tt.status, tt.want)
			}
		})
	}
}

func TestHTTPClient_OversizedReplyRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, strings.Repeat("x", schema.MaxReplyBytes+10))
	}))
	defer srv.Close()

	_, err := NewHTTPClient(srv.URL, nil, time.Second).Enrich(context.Background(), "x")
	if !errors.Is(err, schema.ErrReplyTooLarge) {
		t.Errorf("expected ErrReplyTooLarge, got %v", err)
	}
}

func chatResponse(content string) string {
	b, _ := json.Marshal(map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 1,
		"model":   GroqDefaultModel,
		"choices": []map[string]any{{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]any{"role": "assistant", "content": content},
		}},
	})
	return string(b)
}

func TestGroqClient_RotatesOnRateLimit(t *testing.T) {
	var seen []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		seen = append(seen, key)
		if key == "k1" {
			w.WriteHeader(http.StatusTooManyRequests)
			io.WriteString(w, `{"error":{"message":"rate limited","type":"rate_limit"}}`)
			return
		}
		var req struct {
			Model       string  `json:"model"`
			Temperature float32 `json:"temperature"`
			MaxTokens   int     `json:"max_tokens"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		if req.Model != GroqDefaultModel || req.MaxTokens != 800 {
			t.Errorf("unexpected request: %+v", req)
		}
		io.WriteString(w, chatResponse(validBody))
	}))
	defer srv.Close()

	c := NewGroqClient([]string{"k0", "k1", "k2"}, "", srv.URL)
	c.start = func(int) int { return 1 }

	raw, err := c.Enrich(context.Background(), "Speaker: let's ship")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(raw) != validBody {
		t.Errorf("expected message content, got %q", raw)
	}
	if len(seen) != 2 || seen[0] != "k1" || seen[1] != "k2" {
		t.Errorf("expected k1 then k2, got %v", seen)
	}
}

func TestGroqClient_ClientErrorDoesNotRotate(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"error":{"message":"bad model","type":"invalid_request_error"}}`)
	}))
	defer srv.Close()

	c := NewGroqClient([]string{"a", "b"}, "nope", srv.URL)
	c.start = func(int) int { return 0 }

	_, err := c.Enrich(context.Background(), "x")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusBadRequest {
		t.Fatalf("expected 400 APIError, got %v", err)
	}
	if hits.Load() != 1 {
		t.Errorf("expected a single attempt, got %d", hits.Load())
	}
}

func TestGroqClient_AllKeysFail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		io.WriteString(w, `{"error":{"message":"overloaded","type":"server_error"}}`)
	}))
	defer srv.Close()

	c := NewGroqClient([]string{"a", "b"}, "", srv.URL)
	_, err := c.Enrich(context.Background(), "x")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusTooManyRequests {
		t.Fatalf("expected 429 APIError, got %v", err)
	}
	if !strings.Contains(apiErr.Message, "all Groq keys failed") {
		t.Errorf("unexpected message %q", apiErr.Message)
	}
}

func TestGroqClient_EmptyTranscriptShortCircuits(t *testing.T) {
	c := NewGroqClient(nil, "", "http://127.0.0.1:0")
	raw, err := c.Enrich(context.Background(), "   ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(raw) != string(emptyEnrichment) {
		t.Errorf("expected empty enrichment, got %q", raw)
	}

	if _, err := c.Enrich(context.Background(), "hello"); !errors.Is(err, ErrNoKeys) {
		t.Errorf("expected ErrNoKeys, got %v", err)
	}
}
