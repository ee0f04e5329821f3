package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/therascent/therascent/internal/catalog"
	"github.com/therascent/therascent/internal/dialogue"
	"github.com/therascent/therascent/internal/models"
	"github.com/therascent/therascent/internal/store"
)

func newTestServer(t *testing.T) (*Server, *store.InMemoryStore) {
	t.Helper()
	cat, err := catalog.Load()
	if err != nil {
		t.Fatalf("catalog load failed: %v", err)
	}
	st := store.NewInMemoryStore()
	engine := dialogue.NewEngine(cat, st, dialogue.WithTypingDelay(0))
	return NewServer(engine, st), st
}

func doJSON(t *testing.T, h http.Handler, method, path string, body interface{}) (*httptest.ResponseRecorder, models.APIResponse) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var resp models.APIResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("%s %s: invalid JSON response: %v", method, path, err)
	}
	return rec, resp
}

func resultMap(t *testing.T, resp models.APIResponse) map[string]interface{} {
	t.Helper()
	m, ok := resp.Result.(map[string]interface{})
	if !ok {
		t.Fatalf("result is not an object: %T", resp.Result)
	}
	return m
}

func TestCreateSessionAndConverse(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	rec, resp := doJSON(t, h, http.MethodPost, "/api/sessions", map[string]string{"locale": "en"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create session status %d", rec.Code)
	}
	result := resultMap(t, resp)
	sessionID, _ := result["session_id"].(string)
	if sessionID == "" {
		t.Fatal("no session id returned")
	}
	if result["state"] != string(dialogue.StateMood) {
		t.Errorf("state = %v, want %s", result["state"], dialogue.StateMood)
	}
	messages, _ := result["messages"].([]interface{})
	if len(messages) != 3 {
		t.Errorf("expected 3 welcome messages, got %d", len(messages))
	}

	rec, resp = doJSON(t, h, http.MethodPost, "/api/sessions/"+sessionID+"/messages",
		map[string]string{"content": "Feeling great"})
	if rec.Code != http.StatusOK {
		t.Fatalf("post message status %d: %s", rec.Code, resp.Message)
	}
	result = resultMap(t, resp)
	if result["state"] != string(dialogue.StateResearchInterest) {
		t.Errorf("state after mood answer = %v", result["state"])
	}

	rec, _ = doJSON(t, h, http.MethodGet, "/api/sessions/"+sessionID, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("get session status %d", rec.Code)
	}
}

func TestCreateSessionDefaultsAndRejectsLocale(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	rec, resp := doJSON(t, h, http.MethodPost, "/api/sessions", nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("empty-body create status %d", rec.Code)
	}
	if result := resultMap(t, resp); result["locale"] != string(catalog.LocaleEnglish) {
		t.Errorf("default locale = %v", result["locale"])
	}

	rec, _ = doJSON(t, h, http.MethodPost, "/api/sessions", map[string]string{"locale": "fr"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unsupported locale status %d", rec.Code)
	}
}

func TestSessionNotFoundMapsTo404(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	rec, _ := doJSON(t, h, http.MethodPost, "/api/sessions/missing/messages", map[string]string{"content": "hi"})
	if rec.Code != http.StatusNotFound {
		t.Errorf("status %d, want 404", rec.Code)
	}
}

func TestRatingEndpoint(t *testing.T) {
	srv, st := newTestServer(t)
	h := srv.Handler()

	_, resp := doJSON(t, h, http.MethodPost, "/api/sessions", nil)
	sessionID := resultMap(t, resp)["session_id"].(string)

	// Rating before the dialogue reaches the rating step conflicts.
	rec, _ := doJSON(t, h, http.MethodPost, "/api/sessions/"+sessionID+"/rating", map[string]int{"rating": 7})
	if rec.Code != http.StatusConflict {
		t.Errorf("early rating status %d, want 409", rec.Code)
	}

	// Walk the shortest path to the rating step.
	doJSON(t, h, http.MethodPost, "/api/sessions/"+sessionID+"/messages", map[string]string{"content": "Fine"})
	doJSON(t, h, http.MethodPost, "/api/sessions/"+sessionID+"/messages", map[string]string{"content": "I am a therapist"})
	doJSON(t, h, http.MethodPost, "/api/sessions/"+sessionID+"/messages", map[string]string{"content": "@valid_handle"})

	rec, _ = doJSON(t, h, http.MethodPost, "/api/sessions/"+sessionID+"/rating", map[string]int{"rating": 42})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("out-of-range rating status %d, want 400", rec.Code)
	}

	rec, resp = doJSON(t, h, http.MethodPost, "/api/sessions/"+sessionID+"/rating", map[string]int{"rating": 7})
	if rec.Code != http.StatusOK {
		t.Fatalf("rating status %d: %s", rec.Code, resp.Message)
	}
	if result := resultMap(t, resp); result["state"] != string(dialogue.StateComplete) {
		t.Errorf("state after rating = %v", result["state"])
	}

	srv.engine.Flush()
	stored, err := st.GetSession(sessionID)
	if err != nil {
		t.Fatalf("session not persisted: %v", err)
	}
	if stored.ExperienceRating == nil || *stored.ExperienceRating != 7 {
		t.Errorf("stored rating %v", stored.ExperienceRating)
	}
}

func TestLocaleEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	_, resp := doJSON(t, h, http.MethodPost, "/api/sessions", nil)
	sessionID := resultMap(t, resp)["session_id"].(string)

	rec, resp := doJSON(t, h, http.MethodPut, "/api/sessions/"+sessionID+"/locale", map[string]string{"locale": "he"})
	if rec.Code != http.StatusOK {
		t.Fatalf("locale switch status %d: %s", rec.Code, resp.Message)
	}
	result := resultMap(t, resp)
	if result["locale"] != string(catalog.LocaleHebrew) {
		t.Errorf("locale = %v", result["locale"])
	}
	messages, _ := result["messages"].([]interface{})
	if len(messages) != 3 {
		t.Fatalf("expected rederived transcript, got %d messages", len(messages))
	}

	rec, _ = doJSON(t, h, http.MethodPut, "/api/sessions/"+sessionID+"/locale", map[string]string{"locale": "xx"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad locale status %d", rec.Code)
	}
}

func TestLeadEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	rec, _ := doJSON(t, h, http.MethodPost, "/api/leads", map[string]string{"name": "Dana"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("incomplete lead status %d, want 400", rec.Code)
	}

	rec, resp := doJSON(t, h, http.MethodPost, "/api/leads", map[string]string{
		"name":    "Dana",
		"email":   "dana@example.com",
		"phone":   "0501234567",
		"message": "Please call me back",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("lead status %d: %s", rec.Code, resp.Message)
	}
	leadID := int64(resultMap(t, resp)["id"].(float64))
	if leadID == 0 {
		t.Fatal("lead id not assigned")
	}

	rec, resp = doJSON(t, h, http.MethodGet, "/api/admin/leads", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("admin leads status %d", rec.Code)
	}
	leads, _ := resp.Result.([]interface{})
	if len(leads) != 1 {
		t.Errorf("expected 1 lead, got %d", len(leads))
	}

	rec, _ = doJSON(t, h, http.MethodPost, fmt.Sprintf("/api/admin/leads/%d/read", leadID), nil)
	if rec.Code != http.StatusOK {
		t.Errorf("mark read status %d", rec.Code)
	}
	rec, _ = doJSON(t, h, http.MethodPost, "/api/admin/leads/999/read", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("mark unknown read status %d, want 404", rec.Code)
	}
}

func TestAdminSessions(t *testing.T) {
	srv, st := newTestServer(t)
	h := srv.Handler()

	if err := st.UpsertSession(models.SessionRecord{SessionID: "s-1", Mood: "Calm"}); err != nil {
		t.Fatalf("UpsertSession failed: %v", err)
	}

	rec, resp := doJSON(t, h, http.MethodGet, "/api/admin/sessions", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("admin sessions status %d", rec.Code)
	}
	sessions, _ := resp.Result.([]interface{})
	if len(sessions) != 1 {
		t.Errorf("expected 1 session, got %d", len(sessions))
	}
}
