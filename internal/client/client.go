// Package client is a Go client for the display-layer API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"ai-live-copilot-service/internal/models"
)

// Error is a non-2xx API response.
type Error struct {
	Status  int
	Code    string `json:"code"`
	Message string `json:"error"`
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (%d %s)", e.Message, e.Status, e.Code)
	}
	return fmt.Sprintf("request failed (%d)", e.Status)
}

// TranscriptQuery filters GET /v1/transcript.
type TranscriptQuery struct {
	Speaker    string
	Query      string
	Bookmarked bool
	KeyMoments bool
}

// Client talks to one service instance.
type Client struct {
	base string
	http *http.Client
}

// New creates a client for baseURL, e.g. http://localhost:8080.
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		base: strings.TrimRight(baseURL, "/"),
		http: &http.Client{Timeout: timeout},
	}
}

func (c *Client) State(ctx context.Context) (models.SessionState, error) {
	var st models.SessionState
	err := c.do(ctx, http.MethodGet, "/v1/session", nil, &st)
	return st, err
}

func (c *Client) SetListening(ctx context.Context, on bool) (models.SessionState, error) {
	var st models.SessionState
	err := c.do(ctx, http.MethodPut, "/v1/session/listening", map[string]bool{"listening": on}, &st)
	return st, err
}

func (c *Client) SetMicPermission(ctx context.Context, p models.MicPermission) (models.SessionState, error) {
	var st models.SessionState
	err := c.do(ctx, http.MethodPut, "/v1/session/microphone", map[string]models.MicPermission{"permission": p}, &st)
	return st, err
}

func (c *Client) SignIn(ctx context.Context, token string) (models.SessionState, error) {
	var st models.SessionState
	err := c.do(ctx, http.MethodPut, "/v1/session/identity", map[string]string{"token": token}, &st)
	return st, err
}

func (c *Client) SignOut(ctx context.Context) (models.SessionState, error) {
	var st models.SessionState
	err := c.do(ctx, http.MethodDelete, "/v1/session/identity", nil, &st)
	return st, err
}

func (c *Client) ResetDemo(ctx context.Context) (models.SessionState, error) {
	var st models.SessionState
	err := c.do(ctx, http.MethodPost, "/v1/session/demo/reset", nil, &st)
	return st, err
}

func (c *Client) Transcript(ctx context.Context, q TranscriptQuery) (models.TranscriptView, error) {
	v := url.Values{}
	if q.Speaker != "" {
		v.Set("speaker", q.Speaker)
	}
	if q.Query != "" {
		v.Set("q", q.Query)
	}
	if q.Bookmarked {
		v.Set("bookmarked", "true")
	}
	if q.KeyMoments {
		v.Set("keyMoments", "true")
	}
	path := "/v1/transcript"
	if len(v) > 0 {
		path += "?" + v.Encode()
	}
	var view models.TranscriptView
	err := c.do(ctx, http.MethodGet, path, nil, &view)
	return view, err
}

func (c *Client) Speakers(ctx context.Context) ([]string, error) {
	var body struct {
		Speakers []string `json:"speakers"`
	}
	err := c.do(ctx, http.MethodGet, "/v1/transcript/speakers", nil, &body)
	return body.Speakers, err
}

func (c *Client) ToggleBookmark(ctx context.Context, id int64) (models.TranscriptEntry, error) {
	var e models.TranscriptEntry
	err := c.do(ctx, http.MethodPost, "/v1/transcript/"+strconv.FormatInt(id, 10)+"/bookmark", nil, &e)
	return e, err
}

func (c *Client) Clear(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "/v1/transcript", nil, nil)
}

func (c *Client) Enrichment(ctx context.Context) (models.EnrichmentState, error) {
	var st models.EnrichmentState
	err := c.do(ctx, http.MethodGet, "/v1/enrichment", nil, &st)
	return st, err
}

// Watch streams events to fn until ctx is cancelled, the server closes the
// stream or fn returns an error.
func (c *Client) Watch(ctx context.Context, fn func(models.Event) error) error {
	wsURL := "ws" + strings.TrimPrefix(c.base, "http") + "/v1/events"
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial events: %w", err)
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(2*time.Second))
		conn.Close()
	}()

	for {
		var ev models.Event
		if err := conn.ReadJSON(&ev); err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}
		if err := fn(ev); err != nil {
			return err
		}
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &Error{Status: resp.StatusCode}
		_ = json.Unmarshal(raw, apiErr)
		return apiErr
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, out)
}
