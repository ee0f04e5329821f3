package dialogue

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/therascent/therascent/internal/catalog"
	"github.com/therascent/therascent/internal/models"
	"github.com/therascent/therascent/internal/recommend"
	"github.com/therascent/therascent/internal/store"
)

func newTestEngine(t *testing.T) (*Engine, *store.InMemoryStore) {
	t.Helper()
	cat, err := catalog.Load()
	if err != nil {
		t.Fatalf("catalog load failed: %v", err)
	}
	st := store.NewInMemoryStore()
	e := NewEngine(cat, st,
		WithTypingDelay(0),
		WithRecommender(recommend.NewWithPick(func(n int) int { return 0 })))
	return e, st
}

func startSession(t *testing.T, e *Engine, loc catalog.Locale) (string, []models.Message) {
	t.Helper()
	s, msgs, err := e.StartSession(context.Background(), loc)
	if err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}
	return s.ID, msgs
}

func say(t *testing.T, e *Engine, id, text string) []models.Message {
	t.Helper()
	msgs, err := e.HandleUtterance(context.Background(), id, text)
	if err != nil {
		t.Fatalf("HandleUtterance(%q) failed: %v", text, err)
	}
	return msgs
}

func stateOf(t *testing.T, e *Engine, id string) State {
	t.Helper()
	view, err := e.SessionSnapshot(id)
	if err != nil {
		t.Fatalf("SessionSnapshot failed: %v", err)
	}
	return view.State
}

func keyText(t *testing.T, e *Engine, key string, loc catalog.Locale) string {
	t.Helper()
	text, err := e.catalog.Text(key, loc)
	if err != nil {
		t.Fatalf("catalog text %s failed: %v", key, err)
	}
	return text
}

func TestStartSessionEmitsWelcomeSequence(t *testing.T) {
	e, _ := newTestEngine(t)
	id, msgs := startSession(t, e, catalog.LocaleEnglish)

	if len(msgs) != 3 {
		t.Fatalf("expected 3 welcome messages, got %d", len(msgs))
	}
	wantKeys := []string{catalog.KeyWelcome, catalog.KeyIntroduction, catalog.KeyMoodQuestion}
	for i, key := range wantKeys {
		if msgs[i].ContentKey != key {
			t.Errorf("message %d: content key %s, want %s", i, msgs[i].ContentKey, key)
		}
		if msgs[i].Sender != models.SenderAssistant {
			t.Errorf("message %d: sender %s, want assistant", i, msgs[i].Sender)
		}
	}
	if got := stateOf(t, e, id); got != StateMood {
		t.Errorf("state after start = %s, want %s", got, StateMood)
	}
}

func TestFullMassageFlow(t *testing.T) {
	e, st := newTestEngine(t)
	id, _ := startSession(t, e, catalog.LocaleEnglish)

	steps := []struct {
		input     string
		wantState State
	}{
		{"Feeling great", StateResearchInterest},
		{"I prefer to explore different types of massage.", StateBringsHere},
		{"I would like to get a professional massage", StateTreatmentMatters},
		{"I need to relax and reset, I work out a lot and feel tension", StateTouchStyle},
		{"Gentle and soft", StateTherapistPref},
		{"Woman", StateLocation},
		{"My place", StateTime},
		{"Evening", StateLocationLive},
		{"Tel Aviv", StateAtmosphere},
		{"No music", StateAdditionalNotes},
		{"Nothing else", StateBudget},
		{"Around 300", StateScentInterest},
		{"Yes, please", StateScentPrefs},
		{"Citrus and vanilla", StateContactFinal},
	}
	for _, step := range steps {
		say(t, e, id, step.input)
		if got := stateOf(t, e, id); got != step.wantState {
			t.Fatalf("after %q: state %s, want %s", step.input, got, step.wantState)
		}
	}

	// Invalid contact info re-prompts without advancing.
	msgs := say(t, e, id, "abc")
	if got := stateOf(t, e, id); got != StateContactFinal {
		t.Fatalf("state advanced on invalid contact: %s", got)
	}
	if len(msgs) != 1 || msgs[0].ContentKey != catalog.KeyContactValidationError {
		t.Fatalf("expected validation error message, got %+v", msgs)
	}

	// Valid contact triggers the final summary and the agreement step.
	msgs = say(t, e, id, "+972501234567")
	if got := stateOf(t, e, id); got != StateAgreement {
		t.Fatalf("state after contact = %s, want %s", got, StateAgreement)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected summary plus agreement prompt, got %d messages", len(msgs))
	}
	if !strings.Contains(msgs[0].Content, "**") || !strings.Contains(msgs[0].Content, "Feeling great") {
		t.Errorf("final summary missing labeled fields: %q", msgs[0].Content)
	}

	// Agreement triggers the recommendation and parks at the rating step.
	msgs = say(t, e, id, "Looks good")
	if got := stateOf(t, e, id); got != StateRating {
		t.Fatalf("state after agreement = %s, want %s", got, StateRating)
	}
	var therapist *models.TherapistProfile
	for _, m := range msgs {
		if m.Therapist != nil {
			therapist = m.Therapist
		}
	}
	if therapist == nil {
		t.Fatal("no therapist profile attached to recommendation")
	}
	if therapist.Gender != models.GenderWoman {
		t.Errorf("recommended %s, want a woman per stated preference", therapist.Name)
	}
	last := msgs[len(msgs)-1]
	if last.ContentKey != catalog.KeyRatingQuestion {
		t.Errorf("final message key %s, want rating question", last.ContentKey)
	}

	// Rating completes the session and the record reaches the store.
	msgs, err := e.SubmitRating(context.Background(), id, 7)
	if err != nil {
		t.Fatalf("SubmitRating failed: %v", err)
	}
	if len(msgs) != 1 || msgs[0].ContentKey != catalog.KeyRatingThanks {
		t.Fatalf("expected rating thanks, got %+v", msgs)
	}
	if got := stateOf(t, e, id); got != StateComplete {
		t.Errorf("state after rating = %s, want %s", got, StateComplete)
	}

	e.Flush()
	rec, err := st.GetSession(id)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if rec.ExperienceRating == nil || *rec.ExperienceRating != 7 {
		t.Errorf("stored rating %v, want 7", rec.ExperienceRating)
	}
	if rec.ContactInfo != "+972501234567" {
		t.Errorf("stored contact %q", rec.ContactInfo)
	}
	if !rec.HasAgreed {
		t.Error("agreement not recorded")
	}
	if rec.Mood != "Feeling great" {
		t.Errorf("stored mood %q", rec.Mood)
	}
}

func TestCertifiedTherapistBranch(t *testing.T) {
	e, _ := newTestEngine(t)
	id, _ := startSession(t, e, catalog.LocaleEnglish)

	say(t, e, id, "Fine")
	say(t, e, id, "I prefer to explore different types of massage.")
	msgs := say(t, e, id, "I am a certified therapist")
	if got := stateOf(t, e, id); got != StateContactTherapist {
		t.Fatalf("state = %s, want %s", got, StateContactTherapist)
	}
	if msgs[0].ContentKey != catalog.KeyTherapistContact {
		t.Errorf("expected therapist contact prompt, got %s", msgs[0].ContentKey)
	}

	msgs = say(t, e, id, "@valid_handle")
	if got := stateOf(t, e, id); got != StateRating {
		t.Fatalf("state after contact = %s, want %s", got, StateRating)
	}
	if msgs[0].ContentKey != catalog.KeyContactRepresentative {
		t.Errorf("expected representative acknowledgment, got %s", msgs[0].ContentKey)
	}
}

func TestResearchProtocolBranch(t *testing.T) {
	e, _ := newTestEngine(t)
	id, _ := startSession(t, e, catalog.LocaleEnglish)

	say(t, e, id, "Curious")
	msgs := say(t, e, id, "I am interested in learning more about this enhanced approach.")
	if got := stateOf(t, e, id); got != StateExperienceInterest {
		t.Fatalf("state = %s, want %s", got, StateExperienceInterest)
	}
	if !msgs[0].ResearchSummary {
		t.Error("research summary message not flagged")
	}
	if len(msgs[1].Options) != 2 {
		t.Errorf("experience prompt options = %v", msgs[1].Options)
	}

	say(t, e, id, "Yes, it does")
	if got := stateOf(t, e, id); got != StateContactExperience {
		t.Fatalf("state = %s, want %s", got, StateContactExperience)
	}

	msgs = say(t, e, id, "050-123-4567")
	if got := stateOf(t, e, id); got != StateRating {
		t.Fatalf("state after contact = %s, want %s", got, StateRating)
	}
	if !strings.Contains(msgs[0].Content, "050-123-4567") {
		t.Errorf("acknowledgment does not echo contact: %q", msgs[0].Content)
	}
}

func TestGlobalTherapistIntentPreemptsAnyState(t *testing.T) {
	e, _ := newTestEngine(t)
	id, _ := startSession(t, e, catalog.LocaleEnglish)

	msgs := say(t, e, id, "By the way, I am a therapist myself")
	if got := stateOf(t, e, id); got != StateContactTherapist {
		t.Fatalf("state = %s, want %s", got, StateContactTherapist)
	}
	if msgs[0].ContentKey != catalog.KeyTherapistContact {
		t.Errorf("expected therapist contact prompt, got %s", msgs[0].ContentKey)
	}
}

func TestHumanHelpCompletesAndPersists(t *testing.T) {
	e, st := newTestEngine(t)
	id, _ := startSession(t, e, catalog.LocaleEnglish)

	say(t, e, id, "Tired")
	msgs := say(t, e, id, "Can I talk to a human please?")
	if len(msgs) != 1 || msgs[0].ContentKey != catalog.KeyHumanSupport {
		t.Fatalf("expected human support message, got %+v", msgs)
	}
	if got := stateOf(t, e, id); got != StateComplete {
		t.Errorf("state = %s, want %s", got, StateComplete)
	}

	e.Flush()
	rec, err := st.GetSession(id)
	if err != nil {
		t.Fatalf("session not persisted: %v", err)
	}
	if rec.Mood != "Tired" {
		t.Errorf("stored mood %q", rec.Mood)
	}
}

func TestStartOverResetsEverythingButLocale(t *testing.T) {
	e, _ := newTestEngine(t)
	id, _ := startSession(t, e, catalog.LocaleHebrew)

	say(t, e, id, "מצוין")
	msgs := say(t, e, id, "התחל מחדש")

	if len(msgs) != 3 {
		t.Fatalf("expected fresh welcome sequence, got %d messages", len(msgs))
	}
	if msgs[0].Content != keyText(t, e, catalog.KeyWelcome, catalog.LocaleHebrew) {
		t.Error("welcome not re-emitted in the surviving locale")
	}

	view, err := e.SessionSnapshot(id)
	if err != nil {
		t.Fatalf("old id no longer routes to the session: %v", err)
	}
	if view.ID == id {
		t.Error("session identity did not change on start over")
	}
	if view.State != StateMood {
		t.Errorf("state = %s, want %s", view.State, StateMood)
	}
	if len(view.Transcript) != 3 {
		t.Errorf("transcript not cleared: %d messages", len(view.Transcript))
	}
	if view.Locale != catalog.LocaleHebrew {
		t.Errorf("locale did not survive reset: %s", view.Locale)
	}
}

func TestDiscretionReemitsPriorPrompt(t *testing.T) {
	e, _ := newTestEngine(t)
	id, _ := startSession(t, e, catalog.LocaleEnglish)

	// Walk to the touch-style question so the last prompt carries options.
	say(t, e, id, "Fine")
	say(t, e, id, "I prefer to explore different types of massage.")
	say(t, e, id, "I would like to get a professional massage")
	prompt := say(t, e, id, "I need to relax and reset")

	msgs := say(t, e, id, "Is this discreet?")
	if len(msgs) != 3 {
		t.Fatalf("expected discretion response, bridge, and re-emitted prompt, got %d", len(msgs))
	}
	if msgs[0].ContentKey != catalog.KeyDiscretionResponse || msgs[1].ContentKey != catalog.KeyContinueConversation {
		t.Errorf("unexpected keys: %s, %s", msgs[0].ContentKey, msgs[1].ContentKey)
	}
	reemitted := msgs[2]
	original := prompt[len(prompt)-1]
	if reemitted.Content != original.Content {
		t.Errorf("re-emitted prompt differs: %q vs %q", reemitted.Content, original.Content)
	}
	if len(reemitted.Options) != len(original.Options) {
		t.Errorf("re-emitted options differ: %v vs %v", reemitted.Options, original.Options)
	}
	if reemitted.ID == original.ID {
		t.Error("re-emitted prompt shares the original message id")
	}
	if got := stateOf(t, e, id); got != StateTouchStyle {
		t.Errorf("discretion changed state to %s", got)
	}

	// A typo still triggers the rule.
	msgs = say(t, e, id, "is it descrete?")
	if msgs[0].ContentKey != catalog.KeyDiscretionResponse {
		t.Errorf("typo did not trigger discretion rule: %s", msgs[0].ContentKey)
	}
}

func TestShowSummaryMidFlow(t *testing.T) {
	e, _ := newTestEngine(t)
	id, _ := startSession(t, e, catalog.LocaleEnglish)

	// Before any answer there is nothing to summarize.
	msgs := say(t, e, id, "see my summary")
	if len(msgs) != 1 || msgs[0].ContentKey != catalog.KeySummaryEmpty {
		t.Fatalf("expected empty-summary fallback, got %+v", msgs)
	}

	say(t, e, id, "Feeling great")
	msgs = say(t, e, id, "Can I see my summary?")
	if len(msgs) != 1 {
		t.Fatalf("expected one summary message, got %d", len(msgs))
	}
	if !strings.Contains(msgs[0].Content, "Feeling great") {
		t.Errorf("summary missing mood: %q", msgs[0].Content)
	}
	if msgs[0].ContentKey != "" {
		t.Error("interpolated summary must not carry a catalog key")
	}
	if got := stateOf(t, e, id); got != StateResearchInterest {
		t.Errorf("summary changed state to %s", got)
	}
}

func TestEmptyInputGuard(t *testing.T) {
	e, _ := newTestEngine(t)
	id, _ := startSession(t, e, catalog.LocaleEnglish)

	msgs := say(t, e, id, "   ")
	if len(msgs) != 1 || msgs[0].ContentKey != catalog.KeyEmptyInputResponse {
		t.Fatalf("expected empty-input nudge, got %+v", msgs)
	}
	if got := stateOf(t, e, id); got != StateMood {
		t.Errorf("empty input advanced state to %s", got)
	}

	view, _ := e.SessionSnapshot(id)
	for _, m := range view.Transcript {
		if m.Sender == models.SenderUser {
			t.Errorf("blank input reached the transcript: %+v", m)
		}
	}
}

func TestUtteranceTooLong(t *testing.T) {
	e, _ := newTestEngine(t)
	id, _ := startSession(t, e, catalog.LocaleEnglish)

	_, err := e.HandleUtterance(context.Background(), id, strings.Repeat("a", models.MaxUtteranceLength+1))
	if !errors.Is(err, models.ErrUtteranceTooLong) {
		t.Errorf("expected ErrUtteranceTooLong, got %v", err)
	}
}

func TestTreatmentMattersSentinelExpansion(t *testing.T) {
	e, _ := newTestEngine(t)
	id, _ := startSession(t, e, catalog.LocaleEnglish)

	say(t, e, id, "Fine")
	say(t, e, id, "I prefer to explore different types of massage.")
	say(t, e, id, "I would like to get a professional massage")

	msgs := say(t, e, id, "I need to relax and reset, More")
	if got := stateOf(t, e, id); got != StateTreatmentMattersOther {
		t.Fatalf("state = %s, want %s", got, StateTreatmentMattersOther)
	}
	if msgs[0].ContentKey != catalog.KeyTreatmentMore {
		t.Errorf("expected sentinel follow-up prompt, got %s", msgs[0].ContentKey)
	}

	say(t, e, id, "Chronic back pain")
	if got := stateOf(t, e, id); got != StateTouchStyle {
		t.Fatalf("state = %s, want %s", got, StateTouchStyle)
	}

	s, err := e.Session(id)
	if err != nil {
		t.Fatalf("Session failed: %v", err)
	}
	s.mu.Lock()
	matters := s.snapshotRecord().TreatmentMatters
	s.mu.Unlock()
	if len(matters) != 2 || matters[1] != "Chronic back pain" {
		t.Errorf("sentinel not replaced with free text: %v", matters)
	}
}

func TestRatingValidationAndOverwrite(t *testing.T) {
	e, st := newTestEngine(t)
	id, _ := startSession(t, e, catalog.LocaleEnglish)

	if _, err := e.SubmitRating(context.Background(), id, 0); !errors.Is(err, models.ErrInvalidRating) {
		t.Errorf("expected ErrInvalidRating for 0, got %v", err)
	}
	if _, err := e.SubmitRating(context.Background(), id, 11); !errors.Is(err, models.ErrInvalidRating) {
		t.Errorf("expected ErrInvalidRating for 11, got %v", err)
	}
	if _, err := e.SubmitRating(context.Background(), id, 5); !errors.Is(err, ErrNotAwaitingRating) {
		t.Errorf("expected ErrNotAwaitingRating mid-flow, got %v", err)
	}

	// Fast-forward to the rating step through the therapist branch.
	say(t, e, id, "Fine")
	say(t, e, id, "I am a therapist")
	say(t, e, id, "@valid_handle")
	if got := stateOf(t, e, id); got != StateRating {
		t.Fatalf("state = %s, want %s", got, StateRating)
	}

	if _, err := e.SubmitRating(context.Background(), id, 5); err != nil {
		t.Fatalf("SubmitRating failed: %v", err)
	}
	if _, err := e.SubmitRating(context.Background(), id, 9); err != nil {
		t.Fatalf("repeated SubmitRating failed: %v", err)
	}

	e.Flush()
	rec, err := st.GetSession(id)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if rec.ExperienceRating == nil || *rec.ExperienceRating != 9 {
		t.Errorf("stored rating %v, want 9 after overwrite", rec.ExperienceRating)
	}

	all, _ := st.ListSessions()
	if len(all) != 1 {
		t.Errorf("expected a single upserted row, got %d", len(all))
	}

	// The transcript records the rating as a user entry.
	view, _ := e.SessionSnapshot(id)
	var found bool
	for _, m := range view.Transcript {
		if m.Sender == models.SenderUser && m.Content == "Rating: 9/10 stars" {
			found = true
		}
	}
	if !found {
		t.Error("rating entry missing from transcript")
	}
}

func TestSessionNotFound(t *testing.T) {
	e, _ := newTestEngine(t)
	if _, err := e.HandleUtterance(context.Background(), "missing", "hello"); !errors.Is(err, models.ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
}
