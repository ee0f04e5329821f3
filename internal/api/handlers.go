// Package api provides HTTP handlers for therascent endpoints.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/therascent/therascent/internal/catalog"
	"github.com/therascent/therascent/internal/dialogue"
	"github.com/therascent/therascent/internal/models"
)

// sessionResult is the JSON shape returned by the session endpoints.
type sessionResult struct {
	SessionID string           `json:"session_id"`
	State     dialogue.State   `json:"state"`
	Locale    catalog.Locale   `json:"locale"`
	Messages  []models.Message `json:"messages"`
}

type createSessionRequest struct {
	Locale string `json:"locale"`
}

func (s *Server) createSessionHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	// An empty body means the default locale.
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		slog.Warn("Server.createSessionHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	loc := catalog.LocaleEnglish
	if req.Locale != "" {
		parsed, err := catalog.ParseLocale(req.Locale)
		if err != nil {
			slog.Warn("Server.createSessionHandler: unsupported locale", "locale", req.Locale)
			writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
			return
		}
		loc = parsed
	}

	sess, messages, err := s.engine.StartSession(r.Context(), loc)
	if err != nil {
		slog.Error("Server.createSessionHandler: failed to start session", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to start session"))
		return
	}
	writeJSONResponse(w, http.StatusCreated, models.Success(sessionResult{
		SessionID: sess.ID,
		State:     dialogue.StateMood,
		Locale:    loc,
		Messages:  messages,
	}))
}

func (s *Server) getSessionHandler(w http.ResponseWriter, r *http.Request) {
	view, err := s.engine.SessionSnapshot(r.PathValue("id"))
	if err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(sessionResult{
		SessionID: view.ID,
		State:     view.State,
		Locale:    view.Locale,
		Messages:  view.Transcript,
	}))
}

type postMessageRequest struct {
	Content string `json:"content"`
}

func (s *Server) postMessageHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	id := r.PathValue("id")
	var req postMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.postMessageHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}

	messages, err := s.engine.HandleUtterance(r.Context(), id, req.Content)
	if err != nil {
		writeSessionError(w, err)
		return
	}
	// The utterance may have reset the session under a new id; report the
	// identity and position the turn actually ended at.
	result := sessionResult{SessionID: id, Messages: messages}
	if view, snapErr := s.engine.SessionSnapshot(id); snapErr == nil {
		result.SessionID = view.ID
		result.State = view.State
		result.Locale = view.Locale
	}
	writeJSONResponse(w, http.StatusOK, models.Success(result))
}

type postRatingRequest struct {
	Rating int `json:"rating"`
}

func (s *Server) postRatingHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	id := r.PathValue("id")
	var req postRatingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.postRatingHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}

	messages, err := s.engine.SubmitRating(r.Context(), id, req.Rating)
	if err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(sessionResult{
		SessionID: id,
		State:     dialogue.StateComplete,
		Messages:  messages,
	}))
}

type putLocaleRequest struct {
	Locale string `json:"locale"`
}

func (s *Server) putLocaleHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	id := r.PathValue("id")
	var req putLocaleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.putLocaleHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	loc, err := catalog.ParseLocale(req.Locale)
	if err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	transcript, err := s.engine.SetLocale(id, loc)
	if err != nil {
		writeSessionError(w, err)
		return
	}
	result := sessionResult{SessionID: id, Locale: loc, Messages: transcript}
	if view, snapErr := s.engine.SessionSnapshot(id); snapErr == nil {
		result.SessionID = view.ID
		result.State = view.State
	}
	writeJSONResponse(w, http.StatusOK, models.Success(result))
}

func (s *Server) createLeadHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	var lead models.Lead
	if err := json.NewDecoder(r.Body).Decode(&lead); err != nil {
		slog.Warn("Server.createLeadHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	lead.ID = 0
	lead.Read = false

	if err := s.store.AddLead(&lead); err != nil {
		if errors.Is(err, models.ErrLeadIncomplete) {
			writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
			return
		}
		slog.Error("Server.createLeadHandler: failed to store lead", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to store lead"))
		return
	}
	slog.Info("Server.createLeadHandler: lead captured", "id", lead.ID)
	writeJSONResponse(w, http.StatusCreated, models.Success(lead))
}

func (s *Server) adminSessionsHandler(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.store.ListSessions()
	if err != nil {
		slog.Error("Server.adminSessionsHandler: failed to list sessions", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to list sessions"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(sessions))
}

func (s *Server) adminLeadsHandler(w http.ResponseWriter, r *http.Request) {
	leads, err := s.store.ListLeads()
	if err != nil {
		slog.Error("Server.adminLeadsHandler: failed to list leads", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to list leads"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(leads))
}

func (s *Server) markLeadReadHandler(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid lead id"))
		return
	}
	if err := s.store.MarkLeadRead(id); err != nil {
		if strings.Contains(err.Error(), "not found") {
			writeJSONResponse(w, http.StatusNotFound, models.Error(err.Error()))
			return
		}
		slog.Error("Server.markLeadReadHandler: failed to mark lead read", "error", err, "id", id)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to update lead"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Lead marked read", nil))
}

// writeSessionError maps dialogue-layer errors onto HTTP status codes.
func writeSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrSessionNotFound):
		writeJSONResponse(w, http.StatusNotFound, models.Error(err.Error()))
	case errors.Is(err, models.ErrUtteranceTooLong),
		errors.Is(err, models.ErrInvalidRating):
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
	case errors.Is(err, dialogue.ErrNotAwaitingRating):
		writeJSONResponse(w, http.StatusConflict, models.Error(err.Error()))
	default:
		slog.Error("Server: session operation failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Internal server error"))
	}
}
