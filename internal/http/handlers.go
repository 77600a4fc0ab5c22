package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"ai-live-copilot-service/internal/models"
	"ai-live-copilot-service/internal/service/session"
	"ai-live-copilot-service/internal/service/transcript"
)

type handlers struct {
	ctrl Controller
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errBadRequest = errors.New("invalid request body")

type listeningRequest struct {
	Listening *bool `json:"listening"`
}

type microphoneRequest struct {
	Permission models.MicPermission `json:"permission"`
}

type identityRequest struct {
	Token string `json:"token"`
}

func (h *handlers) getSession(w http.ResponseWriter, r *http.Request) {
	st, err := h.ctrl.State(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *handlers) putListening(w http.ResponseWriter, r *http.Request) {
	var req listeningRequest
	if err := decode(w, r, &req); err != nil || req.Listening == nil {
		writeError(w, errBadRequest)
		return
	}
	if err := h.ctrl.Listen(r.Context(), *req.Listening); err != nil {
		writeError(w, err)
		return
	}
	h.getSession(w, r)
}

func (h *handlers) putMicrophone(w http.ResponseWriter, r *http.Request) {
	var req microphoneRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, errBadRequest)
		return
	}
	if err := h.ctrl.SetMicPermission(r.Context(), req.Permission); err != nil {
		writeError(w, err)
		return
	}
	h.getSession(w, r)
}

func (h *handlers) putIdentity(w http.ResponseWriter, r *http.Request) {
	var req identityRequest
	if err := decode(w, r, &req); err != nil || req.Token == "" {
		writeError(w, errBadRequest)
		return
	}
	if err := h.ctrl.SignIn(r.Context(), req.Token); err != nil {
		writeError(w, err)
		return
	}
	h.getSession(w, r)
}

func (h *handlers) deleteIdentity(w http.ResponseWriter, r *http.Request) {
	if err := h.ctrl.SignOut(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	h.getSession(w, r)
}

func (h *handlers) resetDemo(w http.ResponseWriter, r *http.Request) {
	if err := h.ctrl.ResetDemo(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	h.getSession(w, r)
}

func (h *handlers) getTranscript(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := transcript.Filter{
		Speaker:    q.Get("speaker"),
		Query:      q.Get("q"),
		Bookmarked: queryBool(q.Get("bookmarked")),
		KeyMoments: queryBool(q.Get("keyMoments")),
	}
	view, err := h.ctrl.Transcript(r.Context(), f)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *handlers) clearTranscript(w http.ResponseWriter, r *http.Request) {
	if err := h.ctrl.Clear(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) getSpeakers(w http.ResponseWriter, r *http.Request) {
	speakers, err := h.ctrl.Speakers(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"speakers": speakers})
}

func (h *handlers) toggleBookmark(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, errBadRequest)
		return
	}
	entry, err := h.ctrl.ToggleBookmark(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (h *handlers) getEnrichment(w http.ResponseWriter, r *http.Request) {
	st, err := h.ctrl.Enrichment(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func queryBool(v string) bool {
	b, _ := strconv.ParseBool(v)
	return b
}

// statusOf maps controller errors to a status code and a stable code string.
func statusOf(err error) (int, string) {
	switch {
	case errors.Is(err, session.ErrMicPermissionRequired):
		return http.StatusConflict, "mic_permission_required"
	case errors.Is(err, session.ErrMicPermissionDenied):
		return http.StatusConflict, "mic_permission_denied"
	case errors.Is(err, session.ErrCapabilityUnavailable):
		return http.StatusConflict, "capability_unavailable"
	case errors.Is(err, session.ErrOutOfCredits):
		return http.StatusConflict, "out_of_credits"
	case errors.Is(err, session.ErrTrialEnded):
		return http.StatusConflict, "trial_ended"
	case errors.Is(err, session.ErrEntryNotFound):
		return http.StatusNotFound, "entry_not_found"
	case errors.Is(err, session.ErrInvalidPermission):
		return http.StatusBadRequest, "invalid_permission"
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "unavailable"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func writeError(w http.ResponseWriter, err error) {
	status, code := statusOf(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("code", code).Msg("Request failed")
	}
	writeJSON(w, status, errorBody{Error: err.Error(), Code: code})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("Failed to write response")
	}
}
