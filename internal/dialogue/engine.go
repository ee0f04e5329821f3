package dialogue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/therascent/therascent/internal/catalog"
	"github.com/therascent/therascent/internal/models"
	"github.com/therascent/therascent/internal/recommend"
	"github.com/therascent/therascent/internal/store"
	"github.com/therascent/therascent/internal/validate"
)

// DefaultTypingDelay is the pacing delay applied before each assistant
// message. Input for the session is disabled for its duration because the
// session lock is held across the whole turn.
const DefaultTypingDelay = 1500 * time.Millisecond

// ErrNotAwaitingRating is returned when a rating is submitted to a
// session that has not reached the rating step.
var ErrNotAwaitingRating = errors.New("session is not awaiting a rating")

// Engine drives the dialogue: it owns the live sessions and applies the
// transition function for each incoming utterance. Persistence writes are
// fired at checkpoints without blocking the dialogue.
type Engine struct {
	catalog     *catalog.Catalog
	store       store.Store
	recommender *recommend.Recommender
	sessions    *registry
	typingDelay time.Duration
	persistWG   sync.WaitGroup
}

// Option configures the Engine.
type Option func(*Engine)

// WithTypingDelay overrides the pacing delay before assistant messages.
// Zero disables pacing (used by tests).
func WithTypingDelay(d time.Duration) Option {
	return func(e *Engine) { e.typingDelay = d }
}

// WithRecommender overrides the therapist recommender.
func WithRecommender(r *recommend.Recommender) Option {
	return func(e *Engine) { e.recommender = r }
}

// NewEngine creates an Engine backed by the given catalog and store.
func NewEngine(cat *catalog.Catalog, st store.Store, opts ...Option) *Engine {
	e := &Engine{
		catalog:     cat,
		store:       st,
		recommender: recommend.New(),
		sessions:    newRegistry(),
		typingDelay: DefaultTypingDelay,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// turn collects the messages emitted while processing one input.
type turn struct {
	s       *Session
	emitted []models.Message
}

// StartSession creates a new session and runs the welcome auto-advance:
// the welcome, introduction, and mood prompts are emitted without user
// input and the session parks at the mood state.
func (e *Engine) StartSession(ctx context.Context, loc catalog.Locale) (*Session, []models.Message, error) {
	s := newSession(loc)
	e.sessions.add(s)

	s.mu.Lock()
	defer s.mu.Unlock()
	t := &turn{s: s}
	e.runWelcome(ctx, t)
	slog.Info("Engine session started", "session_id", s.ID, "locale", loc)
	return s, t.emitted, nil
}

// Session returns the live session for the given identifier.
func (e *Engine) Session(id string) (*Session, error) {
	s, ok := e.sessions.get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrSessionNotFound, id)
	}
	return s, nil
}

// SessionView is a consistent read of a session for callers outside the
// engine.
type SessionView struct {
	ID         string
	State      State
	Locale     catalog.Locale
	Transcript []models.Message
}

// SessionSnapshot returns the session's current identifier, state, locale,
// and a copy of its transcript. After a "start over" the identifier
// reported here is the session's new one, even when looked up by the old.
func (e *Engine) SessionSnapshot(id string) (SessionView, error) {
	s, err := e.Session(id)
	if err != nil {
		return SessionView{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return SessionView{
		ID:         s.ID,
		State:      s.State,
		Locale:     s.Locale,
		Transcript: s.snapshotTranscript(),
	}, nil
}

// HandleUtterance processes one user input for the session and returns
// the assistant messages emitted in response. Empty input is rejected
// locally and never reaches the state machine as a transition.
func (e *Engine) HandleUtterance(ctx context.Context, sessionID, text string) ([]models.Message, error) {
	s, err := e.Session(sessionID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	text = strings.TrimSpace(text)
	t := &turn{s: s}
	if text == "" {
		e.emitKey(ctx, t, catalog.KeyEmptyInputResponse)
		return t.emitted, nil
	}
	if len(text) > models.MaxUtteranceLength {
		return nil, models.ErrUtteranceTooLong
	}

	s.append(models.Message{Sender: models.SenderUser, Content: text})
	slog.Debug("Engine handling utterance", "session_id", s.ID, "state", s.State)

	if intent := matchGlobal(text); intent != intentNone {
		e.dispatchGlobal(ctx, t, intent)
		return t.emitted, nil
	}
	e.dispatch(ctx, t, text)
	return t.emitted, nil
}

// SubmitRating records the 1-10 experience rating captured by the rating
// widget, thanks the visitor, flushes persistence, and completes the
// session. A repeated submission overwrites the previous rating.
func (e *Engine) SubmitRating(ctx context.Context, sessionID string, rating int) ([]models.Message, error) {
	if rating < models.MinRating || rating > models.MaxRating {
		return nil, models.ErrInvalidRating
	}
	s, err := e.Session(sessionID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.State != StateRating && s.State != StateComplete {
		return nil, ErrNotAwaitingRating
	}

	t := &turn{s: s}
	s.append(models.Message{Sender: models.SenderUser, Content: fmt.Sprintf("Rating: %d/10 stars", rating)})
	s.Record.ExperienceRating = &rating
	e.emitKey(ctx, t, catalog.KeyRatingThanks)
	s.State = StateComplete
	e.persist(s)
	slog.Info("Engine rating recorded", "session_id", s.ID, "rating", rating)
	return t.emitted, nil
}

// SetLocale switches the display language and re-derives every
// catalog-backed message of the transcript in the new locale. The pass is
// atomic with respect to concurrent turns. It returns the re-derived
// transcript.
func (e *Engine) SetLocale(sessionID string, loc catalog.Locale) ([]models.Message, error) {
	s, err := e.Session(sessionID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.Locale = loc
	rederive(s, e.catalog, loc)
	slog.Info("Engine locale switched", "session_id", s.ID, "locale", loc)
	return s.snapshotTranscript(), nil
}

// Flush waits for all in-flight persistence writes. The dialogue never
// waits on these itself; callers that need durability call Flush.
func (e *Engine) Flush() {
	e.persistWG.Wait()
}

// runWelcome emits the session-start sequence. Caller must hold the
// session lock.
func (e *Engine) runWelcome(ctx context.Context, t *turn) {
	e.emitKey(ctx, t, catalog.KeyWelcome)
	e.emitKey(ctx, t, catalog.KeyIntroduction)
	e.emitKey(ctx, t, catalog.KeyMoodQuestion)
	t.s.State = StateMood
}

// dispatchGlobal applies a pre-empting keyword rule in place of normal
// state dispatch.
func (e *Engine) dispatchGlobal(ctx context.Context, t *turn, intent globalIntent) {
	s := t.s
	slog.Info("Engine global intent", "session_id", s.ID, "intent", intent, "state", s.State)
	switch intent {
	case intentStartOver:
		oldID := s.ID
		s.reset()
		e.sessions.rekey(oldID, s)
		e.runWelcome(ctx, t)

	case intentShowSummary:
		lines := summaryLines(s.Record, e.catalog, s.Locale)
		if len(lines) == 0 {
			e.emitKey(ctx, t, catalog.KeySummaryEmpty)
			return
		}
		intro := e.text(catalog.KeySummaryIntro, s.Locale)
		e.emitLiteral(ctx, t, intro+"\n\n"+strings.Join(lines, "\n"))

	case intentHumanHelp:
		e.emitKey(ctx, t, catalog.KeyHumanSupport)
		s.State = StateComplete
		e.persist(s)

	case intentIAmTherapist:
		s.Record.BringsHereToday = "therapist"
		e.emitKey(ctx, t, catalog.KeyTherapistContact)
		s.State = StateContactTherapist

	case intentDiscretion:
		prev := s.lastAssistantMessage()
		e.emitKey(ctx, t, catalog.KeyDiscretionResponse)
		e.emitKey(ctx, t, catalog.KeyContinueConversation)
		if prev != nil {
			e.emitCopy(ctx, t, *prev)
		}
	}
}

// dispatch applies the state-specific transition for a normal utterance.
func (e *Engine) dispatch(ctx context.Context, t *turn, text string) {
	s := t.s
	switch s.State {
	case StateMood:
		s.Record.Mood = text
		e.emitOptions(ctx, t, catalog.KeyResearchIntro, catalog.KeyResearchOptions)
		s.State = StateResearchInterest

	case StateResearchInterest:
		if indicatesResearchInterest(text) {
			s.Record.WantsResearchInfo = boolPtr(true)
			e.emitResearchSummary(ctx, t)
			e.emitOptions(ctx, t, catalog.KeyExperienceQuestion, catalog.KeyExperienceOptions)
			s.State = StateExperienceInterest
		} else {
			s.Record.WantsResearchInfo = boolPtr(false)
			e.emitOptions(ctx, t, catalog.KeyBringsHereQuestion, catalog.KeyBringsHereOptions)
			s.State = StateBringsHere
		}

	case StateExperienceInterest:
		if isAffirmative(text) {
			s.Record.WantsToExperience = boolPtr(true)
			s.Record.BringsHereToday = "research_protocol"
			e.emitKey(ctx, t, catalog.KeyExperienceYes)
			s.State = StateContactExperience
		} else {
			s.Record.WantsToExperience = boolPtr(false)
			e.emitOptions(ctx, t, catalog.KeyExperienceNo, catalog.KeyBringsHereOptions)
			s.State = StateBringsHere
		}

	case StateBringsHere:
		switch matchBringsHere(text) {
		case bringsHereMore:
			e.emitKey(ctx, t, catalog.KeyBringsHereMore)
			s.State = StateBringsHereOther
		case bringsHereTherapist:
			s.Record.BringsHereToday = "therapist"
			e.emitKey(ctx, t, catalog.KeyTherapistContact)
			s.State = StateContactTherapist
		case bringsHereTrainee:
			s.Record.BringsHereToday = "trainee"
			e.emitKey(ctx, t, catalog.KeyTherapistContact)
			s.State = StateContactTherapist
		case bringsHereConsult:
			s.Record.BringsHereToday = "consult"
			e.emitKey(ctx, t, catalog.KeyConsultContact)
			s.State = StateContactConsult
		default:
			s.Record.BringsHereToday = "massage"
			e.emitKey(ctx, t, catalog.KeyUniqueExperience)
			e.emitMulti(ctx, t, catalog.KeyTreatmentQuestion, catalog.KeyTreatmentOptions)
			s.State = StateTreatmentMatters
		}

	case StateBringsHereOther:
		s.Record.BringsHereToday = text
		e.emitKey(ctx, t, catalog.KeyBringsHereOther)
		e.emitMulti(ctx, t, catalog.KeyTreatmentQuestion, catalog.KeyTreatmentOptions)
		s.State = StateTreatmentMatters

	case StateTreatmentMatters:
		matters := strings.Split(text, ", ")
		s.Record.TreatmentMatters = matters
		if e.containsSentinel(matters) {
			e.emitKey(ctx, t, catalog.KeyTreatmentMore)
			s.State = StateTreatmentMattersOther
		} else {
			e.emitOptions(ctx, t, catalog.KeyTouchStyleQuestion, catalog.KeyTouchStyleOptions)
			s.State = StateTouchStyle
		}

	case StateTreatmentMattersOther:
		for i, matter := range s.Record.TreatmentMatters {
			if e.isSentinel(matter) {
				s.Record.TreatmentMatters[i] = text
			}
		}
		e.emitOptions(ctx, t, catalog.KeyTouchStyleQuestion, catalog.KeyTouchStyleOptions)
		s.State = StateTouchStyle

	case StateTouchStyle:
		s.Record.TouchStyle = text
		e.emitOptions(ctx, t, catalog.KeyTherapistPrefQuestion, catalog.KeyTherapistPrefOptions)
		s.State = StateTherapistPref

	case StateTherapistPref:
		s.Record.TherapistPreference = text
		e.emitOptions(ctx, t, catalog.KeyLocationQuestion, catalog.KeyLocationOptions)
		s.State = StateLocation

	case StateLocation:
		s.Record.SessionLocation = text
		e.emitOptions(ctx, t, catalog.KeyTimeQuestion, catalog.KeyTimeOptions)
		s.State = StateTime

	case StateTime:
		s.Record.PreferredTime = text
		e.emitKey(ctx, t, catalog.KeyLocationLiveQuestion)
		s.State = StateLocationLive

	case StateLocationLive:
		s.Record.LocationLive = text
		e.emitOptions(ctx, t, catalog.KeyAtmosphereQuestion, catalog.KeyAtmosphereOptions)
		s.State = StateAtmosphere

	case StateAtmosphere:
		s.Record.ConversationStyle = text
		e.emitKey(ctx, t, catalog.KeyAdditionalNotes)
		s.State = StateAdditionalNotes

	case StateAdditionalNotes:
		s.Record.AdditionalNotes = text
		e.emitKey(ctx, t, catalog.KeyBudgetQuestion)
		s.State = StateBudget

	case StateBudget:
		s.Record.Budget = text
		e.emitOptions(ctx, t, catalog.KeyScentIntroQuestion, catalog.KeyScentOptions)
		s.State = StateScentInterest

	case StateScentInterest:
		if isAffirmative(text) {
			s.Record.WantsScentInfo = boolPtr(true)
			e.emitKey(ctx, t, catalog.KeyScentPrefsQuestion)
			s.State = StateScentPrefs
		} else {
			s.Record.WantsScentInfo = boolPtr(false)
			e.emitKey(ctx, t, catalog.KeyContactQuestion)
			s.State = StateContactFinal
		}

	case StateScentPrefs:
		s.Record.ScentPreferences = text
		e.emitKey(ctx, t, catalog.KeyContactQuestion)
		s.State = StateContactFinal

	case StateContactExperience, StateContactTherapist, StateContactConsult, StateContactFinal:
		e.handleContact(ctx, t, text)

	case StateAgreement:
		s.Record.HasAgreed = true
		e.emitKey(ctx, t, catalog.KeyAgreementThanks)
		e.emitKey(ctx, t, catalog.KeyFindingTherapist)
		s.State = StateFinalRecommendation
		e.enterFinalRecommendation(ctx, t)

	case StateFinalRecommendation:
		// Entered automatically as a state-entry effect; an utterance
		// arriving here just re-runs the entry logic.
		e.enterFinalRecommendation(ctx, t)

	case StateRating:
		e.emitKey(ctx, t, catalog.KeyRatingQuestion)

	case StateComplete:
		e.emitKey(ctx, t, catalog.KeySessionComplete)

	default:
		e.recoverUnknownState(ctx, t)
	}
}

// handleContact validates a contact handle and, on success, records it,
// fires a persistence checkpoint, and advances per the collection origin.
// Invalid input re-prompts without advancing; the retry loop is unbounded.
func (e *Engine) handleContact(ctx context.Context, t *turn, text string) {
	s := t.s
	if !validate.IsContactInfo(text) {
		slog.Debug("Engine contact validation failed", "session_id", s.ID, "state", s.State)
		e.emitKey(ctx, t, catalog.KeyContactValidationError)
		return
	}

	s.Record.ContactInfo = strings.TrimSpace(text)
	e.persist(s)

	switch s.State {
	case StateContactExperience:
		e.emitLiteral(ctx, t, e.text(catalog.KeyContactThankYou, s.Locale)+" "+s.Record.ContactInfo)
		e.emitKey(ctx, t, catalog.KeyRatingQuestion)
		s.State = StateRating
	case StateContactTherapist:
		e.emitKey(ctx, t, catalog.KeyContactRepresentative)
		e.emitKey(ctx, t, catalog.KeyRatingQuestion)
		s.State = StateRating
	case StateContactConsult:
		e.emitLiteral(ctx, t, e.text(catalog.KeyContactThankYou, s.Locale)+" "+s.Record.ContactInfo)
		e.emitKey(ctx, t, catalog.KeyRatingQuestion)
		s.State = StateRating
	case StateContactFinal:
		header := e.text(catalog.KeyFinalSummaryHeader, s.Locale)
		lines := summaryLines(s.Record, e.catalog, s.Locale)
		e.emitLiteral(ctx, t, header+"\n\n"+strings.Join(lines, "\n"))
		e.emitKey(ctx, t, catalog.KeyFinalSummaryIntro)
		s.State = StateAgreement
	}
}

// enterFinalRecommendation runs the recommendation state-entry effect. If
// contact info is still missing the dialogue detours to the final contact
// collection instead of recommending.
func (e *Engine) enterFinalRecommendation(ctx context.Context, t *turn) {
	s := t.s
	if s.Record.ContactInfo == "" {
		e.emitKey(ctx, t, catalog.KeyContactQuestion)
		s.State = StateContactFinal
		return
	}

	profile := e.recommender.Recommend(s.Record)
	e.emitKey(ctx, t, catalog.KeyRecommendationIntro)
	e.emitTherapist(ctx, t, profile)
	e.emitKey(ctx, t, catalog.KeyCoordinateMessage)
	e.emitLiteral(ctx, t, e.text(catalog.KeyRepresentativeContact, s.Locale)+" "+s.Record.ContactInfo)
	e.emitKey(ctx, t, catalog.KeyRatingQuestion)
	s.State = StateRating
}

// recoverUnknownState is the defensive fallback for a state the dispatch
// table does not recognize: apologize, then restore context by re-asking
// the last optioned question, or the contact-format hint on contact steps.
func (e *Engine) recoverUnknownState(ctx context.Context, t *turn) {
	s := t.s
	slog.Error("Engine reached unknown state", "session_id", s.ID, "state", s.State)
	e.emitKey(ctx, t, catalog.KeyErrorGeneral)
	if strings.Contains(string(s.State), "contact") {
		e.emitKey(ctx, t, catalog.KeyContactValidationError)
		return
	}
	if prev := s.lastOptionedMessage(); prev != nil {
		e.emitCopy(ctx, t, *prev)
	}
}

// containsSentinel reports whether any multi-select entry is the sentinel
// "More" option.
func (e *Engine) containsSentinel(entries []string) bool {
	for _, entry := range entries {
		if e.isSentinel(entry) {
			return true
		}
	}
	return false
}

func (e *Engine) isSentinel(entry string) bool {
	lower := strings.ToLower(strings.TrimSpace(entry))
	if lower == "more" || lower == "other" {
		return true
	}
	return e.catalog.SentinelOption(catalog.KeyTreatmentOptions, strings.TrimSpace(entry))
}

// persist hands the current record snapshot to the persistence
// collaborator without blocking the dialogue. Failures are logged and
// never surface to the visitor. Caller must hold the session lock.
func (e *Engine) persist(s *Session) {
	rec := models.SessionRecordFromPreferences(s.snapshotRecord())
	e.persistWG.Add(1)
	go func() {
		defer e.persistWG.Done()
		if err := e.store.UpsertSession(rec); err != nil {
			slog.Error("Engine persistence upsert failed", "session_id", rec.SessionID, "error", err)
		}
	}()
}

// think applies the pacing delay before an assistant message.
func (e *Engine) think(ctx context.Context) {
	if e.typingDelay <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(e.typingDelay):
	}
}

// text resolves a catalog key, falling back to the key itself on a
// resolution failure (unreachable after a validated catalog load).
func (e *Engine) text(key string, loc catalog.Locale) string {
	content, err := e.catalog.Text(key, loc)
	if err != nil {
		slog.Error("Engine catalog resolution failed", "key", key, "locale", loc, "error", err)
		return key
	}
	return content
}

func (e *Engine) options(key string, loc catalog.Locale) []string {
	opts, err := e.catalog.Options(key, loc)
	if err != nil {
		slog.Error("Engine catalog option resolution failed", "key", key, "locale", loc, "error", err)
		return nil
	}
	return opts
}

// emitKey appends a catalog-backed assistant message.
func (e *Engine) emitKey(ctx context.Context, t *turn, key string) {
	e.think(ctx)
	msg := t.s.append(models.Message{
		Sender:     models.SenderAssistant,
		Content:    e.text(key, t.s.Locale),
		ContentKey: key,
	})
	t.emitted = append(t.emitted, msg)
}

// emitOptions appends a catalog-backed assistant message carrying a
// single-select choice set.
func (e *Engine) emitOptions(ctx context.Context, t *turn, contentKey, optionsKey string) {
	e.think(ctx)
	msg := t.s.append(models.Message{
		Sender:     models.SenderAssistant,
		Content:    e.text(contentKey, t.s.Locale),
		ContentKey: contentKey,
		Options:    e.options(optionsKey, t.s.Locale),
		OptionsKey: optionsKey,
	})
	t.emitted = append(t.emitted, msg)
}

// emitMulti appends a catalog-backed assistant message carrying a
// multi-select choice set.
func (e *Engine) emitMulti(ctx context.Context, t *turn, contentKey, multiKey string) {
	e.think(ctx)
	msg := t.s.append(models.Message{
		Sender:          models.SenderAssistant,
		Content:         e.text(contentKey, t.s.Locale),
		ContentKey:      contentKey,
		MultiOptions:    e.options(multiKey, t.s.Locale),
		MultiOptionsKey: multiKey,
	})
	t.emitted = append(t.emitted, msg)
}

// emitLiteral appends an assistant message composed from live field
// values. It carries no catalog key and is therefore not retranslatable.
func (e *Engine) emitLiteral(ctx context.Context, t *turn, content string) {
	e.think(ctx)
	msg := t.s.append(models.Message{
		Sender:  models.SenderAssistant,
		Content: content,
	})
	t.emitted = append(t.emitted, msg)
}

// emitResearchSummary appends the research summary, flagged so the
// embedding site can open its research panel.
func (e *Engine) emitResearchSummary(ctx context.Context, t *turn) {
	e.think(ctx)
	msg := t.s.append(models.Message{
		Sender:          models.SenderAssistant,
		Content:         e.text(catalog.KeyResearchSummary, t.s.Locale),
		ContentKey:      catalog.KeyResearchSummary,
		ResearchSummary: true,
	})
	t.emitted = append(t.emitted, msg)
}

// emitTherapist appends the recommended profile as an attached message.
func (e *Engine) emitTherapist(ctx context.Context, t *turn, profile models.TherapistProfile) {
	e.think(ctx)
	msg := t.s.append(models.Message{
		Sender:    models.SenderAssistant,
		Therapist: &profile,
	})
	t.emitted = append(t.emitted, msg)
}

// emitCopy re-emits an earlier assistant message verbatim, preserving its
// catalog keys so the copy stays retranslatable.
func (e *Engine) emitCopy(ctx context.Context, t *turn, src models.Message) {
	e.think(ctx)
	msg := t.s.append(models.Message{
		Sender:          models.SenderAssistant,
		Content:         src.Content,
		ContentKey:      src.ContentKey,
		Options:         src.Options,
		OptionsKey:      src.OptionsKey,
		MultiOptions:    src.MultiOptions,
		MultiOptionsKey: src.MultiOptionsKey,
	})
	t.emitted = append(t.emitted, msg)
}

func boolPtr(v bool) *bool { return &v }
