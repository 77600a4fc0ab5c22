package client

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
)

func TestClient_SetListeningRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || r.URL.Path != "/v1/session/listening" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var body map[string]bool
		_ = json.NewDecoder(r.Body).Decode(&body)
		if !body["listening"] {
			t.Error("expected listening=true in body")
		}
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error":"session: demo trial ended","code":"trial_ended"}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL, time.Second).SetListening(context.Background(), true)

	var apiErr *Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if apiErr.Status != http.StatusConflict || apiErr.Code != "trial_ended" {
		t.Errorf("unexpected error %+v", apiErr)
	}
}

func TestClient_TranscriptQuery(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		_, _ = w.Write([]byte(`{"entries":[{"id":1,"text":"hi","speaker":"Speaker"}],"interimText":"par","total":1}`))
	}))
	defer srv.Close()

	view, err := New(srv.URL+"/", time.Second).Transcript(context.Background(), TranscriptQuery{Query: "hi", KeyMoments: true})
	if err != nil {
		t.Fatal(err)
	}
	if gotQuery != "keyMoments=true&q=hi" {
		t.Errorf("unexpected query %q", gotQuery)
	}
	if len(view.Entries) != 1 || view.InterimText != "par" {
		t.Errorf("unexpected view %+v", view)
	}
}

func TestClient_ClearNoContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	if err := New(srv.URL, time.Second).Clear(context.Background()); err != nil {
		t.Errorf("expected nil error, got %v", err)
	}
}

func TestClient_Watch(t *testing.T) {
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/events" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteJSON(models.Event{Type: models.EventSignal, Signal: models.SignalTrialEnded})
		_ = conn.WriteJSON(models.Event{Type: models.EventListeningChanged})
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var got []string
	err := New(srv.URL, time.Second).Watch(ctx, func(ev models.Event) error {
		got = append(got, ev.Type)
		return nil
	})
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	if strings.Join(got, ",") != models.EventSignal+","+models.EventListeningChanged {
		t.Errorf("unexpected events %v", got)
	}
}
