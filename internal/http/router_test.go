package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"ai-live-copilot-service/internal/models"
	"ai-live-copilot-service/internal/service/session"
	"ai-live-copilot-service/internal/service/transcript"
)

type fakeController struct {
	listenErr  error
	listening  bool
	mic        models.MicPermission
	token      string
	filter     transcript.Filter
	cleared    bool
	demoResets int
	events     chan models.Event
	entries    map[int64]models.TranscriptEntry
}

func newFakeController() *fakeController {
	return &fakeController{
		mic:     models.MicPrompt,
		events:  make(chan models.Event, 8),
		entries: map[int64]models.TranscriptEntry{7: {ID: 7, Text: "hello", Speaker: models.DefaultSpeaker}},
	}
}

func (f *fakeController) Listen(_ context.Context, on bool) error {
	if on && f.listenErr != nil {
		return f.listenErr
	}
	f.listening = on
	return nil
}

func (f *fakeController) State(context.Context) (models.SessionState, error) {
	return models.SessionState{
		Listening:     f.listening,
		MicPermission: f.mic,
		Authenticated: f.token != "",
	}, nil
}

func (f *fakeController) Transcript(_ context.Context, filter transcript.Filter) (models.TranscriptView, error) {
	f.filter = filter
	return models.TranscriptView{Entries: []models.TranscriptEntry{}, InterimText: "partial"}, nil
}

func (f *fakeController) Speakers(context.Context) ([]string, error) {
	return []string{models.DefaultSpeaker}, nil
}

func (f *fakeController) ToggleBookmark(_ context.Context, id int64) (models.TranscriptEntry, error) {
	e, ok := f.entries[id]
	if !ok {
		return e, session.ErrEntryNotFound
	}
	e.Bookmarked = !e.Bookmarked
	f.entries[id] = e
	return e, nil
}

func (f *fakeController) Clear(context.Context) error {
	f.cleared = true
	return nil
}

func (f *fakeController) Enrichment(context.Context) (models.EnrichmentState, error) {
	return models.EnrichmentState{IsUpdating: true}, nil
}

func (f *fakeController) SignIn(_ context.Context, token string) error {
	f.token = token
	return nil
}

func (f *fakeController) SignOut(context.Context) error {
	f.token = ""
	return nil
}

func (f *fakeController) SetMicPermission(_ context.Context, p models.MicPermission) error {
	if !p.Valid() {
		return session.ErrInvalidPermission
	}
	f.mic = p
	return nil
}

func (f *fakeController) ResetDemo(context.Context) error {
	f.demoResets++
	return nil
}

func (f *fakeController) Subscribe() (<-chan models.Event, func()) {
	return f.events, func() {}
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRouter_Health(t *testing.T) {
	h := NewRouter(newFakeController(), func() error { return errors.New("db down") })

	if rec := do(t, h, http.MethodGet, "/v1/liveness", ""); rec.Code != http.StatusOK {
		t.Errorf("liveness = %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/v1/readiness", ""); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("readiness = %d, want 503", rec.Code)
	}
}

func TestRouter_ListeningGuardErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code string
	}{
		{"prompt", session.ErrMicPermissionRequired, "mic_permission_required"},
		{"denied", session.ErrMicPermissionDenied, "mic_permission_denied"},
		{"unavailable", session.ErrCapabilityUnavailable, "capability_unavailable"},
		{"out of credits", session.ErrOutOfCredits, "out_of_credits"},
		{"trial ended", session.ErrTrialEnded, "trial_ended"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := newFakeController()
			ctrl.listenErr = tt.err
			rec := do(t, NewRouter(ctrl, nil), http.MethodPut, "/v1/session/listening", `{"listening":true}`)

			if rec.Code != http.StatusConflict {
				t.Fatalf("expected 409, got %d", rec.Code)
			}
			var body errorBody
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatal(err)
			}
			if body.Code != tt.code || body.Error == "" {
				t.Errorf("unexpected body %+v", body)
			}
		})
	}
}

func TestRouter_SessionMutations(t *testing.T) {
	ctrl := newFakeController()
	h := NewRouter(ctrl, nil)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"listening missing field", http.MethodPut, "/v1/session/listening", `{}`, http.StatusBadRequest},
		{"listening malformed", http.MethodPut, "/v1/session/listening", `{`, http.StatusBadRequest},
		{"listening on", http.MethodPut, "/v1/session/listening", `{"listening":true}`, http.StatusOK},
		{"mic invalid", http.MethodPut, "/v1/session/microphone", `{"permission":"maybe"}`, http.StatusBadRequest},
		{"mic granted", http.MethodPut, "/v1/session/microphone", `{"permission":"granted"}`, http.StatusOK},
		{"identity missing token", http.MethodPut, "/v1/session/identity", `{}`, http.StatusBadRequest},
		{"identity sign in", http.MethodPut, "/v1/session/identity", `{"token":"abc"}`, http.StatusOK},
		{"demo reset", http.MethodPost, "/v1/session/demo/reset", "", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := do(t, h, tt.method, tt.path, tt.body); rec.Code != tt.want {
				t.Errorf("%s %s = %d, want %d (%s)", tt.method, tt.path, rec.Code, tt.want, rec.Body.String())
			}
		})
	}

	if !ctrl.listening || ctrl.mic != models.MicGranted || ctrl.token != "abc" || ctrl.demoResets != 1 {
		t.Errorf("unexpected controller state %+v", ctrl)
	}

	rec := do(t, h, http.MethodDelete, "/v1/session/identity", "")
	var st models.SessionState
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatal(err)
	}
	if st.Authenticated {
		t.Error("expected signed out state")
	}
}

func TestRouter_Transcript(t *testing.T) {
	ctrl := newFakeController()
	h := NewRouter(ctrl, nil)

	rec := do(t, h, http.MethodGet, "/v1/transcript?speaker=Speaker&q=budget&bookmarked=true&keyMoments=1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("transcript = %d", rec.Code)
	}
	want := transcript.Filter{Speaker: "Speaker", Query: "budget", Bookmarked: true, KeyMoments: true}
	if ctrl.filter != want {
		t.Errorf("filter = %+v, want %+v", ctrl.filter, want)
	}

	if rec := do(t, h, http.MethodPost, "/v1/transcript/7/bookmark", ""); rec.Code != http.StatusOK {
		t.Errorf("bookmark = %d", rec.Code)
	}
	if !ctrl.entries[7].Bookmarked {
		t.Error("expected entry bookmarked")
	}
	if rec := do(t, h, http.MethodPost, "/v1/transcript/8/bookmark", ""); rec.Code != http.StatusNotFound {
		t.Errorf("unknown bookmark = %d, want 404", rec.Code)
	}
	if rec := do(t, h, http.MethodPost, "/v1/transcript/abc/bookmark", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("bad id = %d, want 400", rec.Code)
	}

	rec = do(t, h, http.MethodGet, "/v1/transcript/speakers", "")
	if !strings.Contains(rec.Body.String(), `"speakers":["Speaker"]`) {
		t.Errorf("unexpected speakers body %s", rec.Body.String())
	}

	if rec := do(t, h, http.MethodDelete, "/v1/transcript", ""); rec.Code != http.StatusNoContent || !ctrl.cleared {
		t.Errorf("clear = %d cleared=%v", rec.Code, ctrl.cleared)
	}
}

func TestRouter_Enrichment(t *testing.T) {
	rec := do(t, NewRouter(newFakeController(), nil), http.MethodGet, "/v1/enrichment", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("enrichment = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"isUpdating":true`) {
		t.Errorf("unexpected body %s", rec.Body.String())
	}
}

func TestRouter_EventsWebSocket(t *testing.T) {
	ctrl := newFakeController()
	srv := httptest.NewServer(NewRouter(ctrl, nil))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/events"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	ctrl.events <- models.Event{Type: models.EventSignal, Signal: models.SignalLowCredits}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev models.Event
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read: %v", err)
	}
	if ev.Type != models.EventSignal || ev.Signal != models.SignalLowCredits {
		t.Errorf("unexpected event %+v", ev)
	}
}
