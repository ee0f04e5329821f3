package dialogue

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/therascent/therascent/internal/catalog"
	"github.com/therascent/therascent/internal/models"
)

// Session is the per-visitor dialogue state: current position, the
// accumulating preference record, and the ordered transcript. All
// mutation happens inside the engine while holding mu, so at most one
// transition per session is ever in flight and locale switches cannot
// race a turn.
type Session struct {
	mu sync.Mutex

	ID         string
	Locale     catalog.Locale
	State      State
	Record     models.PreferenceRecord
	Transcript []models.Message

	nextMessageID int
	CreatedAt     time.Time
}

// newSession creates a session with a freshly generated identifier. The
// identifier never changes for the lifetime of the session; it is the
// upsert key for persistence.
func newSession(loc catalog.Locale) *Session {
	id := uuid.NewString()
	return &Session{
		ID:        id,
		Locale:    loc,
		State:     StateWelcome,
		Record:    models.PreferenceRecord{SessionID: id},
		CreatedAt: time.Now(),
	}
}

// reset clears the session for a "start over": new identifier, empty
// record, empty transcript, back to the welcome state. The locale is the
// one piece of state that survives.
func (s *Session) reset() {
	old := s.ID
	s.ID = uuid.NewString()
	s.State = StateWelcome
	s.Record = models.PreferenceRecord{SessionID: s.ID}
	s.Transcript = nil
	s.nextMessageID = 0
	slog.Info("Session reset", "old_session_id", old, "session_id", s.ID)
}

// append adds a message to the transcript, assigning the next sequence id
// and timestamp. Caller must hold mu.
func (s *Session) append(msg models.Message) models.Message {
	s.nextMessageID++
	msg.ID = s.nextMessageID
	msg.Timestamp = time.Now()
	s.Transcript = append(s.Transcript, msg)
	return msg
}

// snapshotRecord returns a copy of the preference record safe to hand to
// the persistence collaborator. Caller must hold mu.
func (s *Session) snapshotRecord() models.PreferenceRecord {
	rec := s.Record
	if rec.TreatmentMatters != nil {
		matters := make([]string, len(rec.TreatmentMatters))
		copy(matters, rec.TreatmentMatters)
		rec.TreatmentMatters = matters
	}
	return rec
}

// snapshotTranscript returns a copy of the transcript. Caller must hold mu.
func (s *Session) snapshotTranscript() []models.Message {
	out := make([]models.Message, len(s.Transcript))
	copy(out, s.Transcript)
	return out
}

// lastAssistantMessage returns the most recent assistant message, or nil.
// Caller must hold mu.
func (s *Session) lastAssistantMessage() *models.Message {
	for i := len(s.Transcript) - 1; i >= 0; i-- {
		if s.Transcript[i].Sender == models.SenderAssistant {
			msg := s.Transcript[i]
			return &msg
		}
	}
	return nil
}

// lastOptionedMessage returns the most recent assistant message that
// carried a single-select or multi-select choice set, or nil. Caller must
// hold mu.
func (s *Session) lastOptionedMessage() *models.Message {
	for i := len(s.Transcript) - 1; i >= 0; i-- {
		m := s.Transcript[i]
		if m.Sender == models.SenderAssistant && (len(m.Options) > 0 || len(m.MultiOptions) > 0) {
			msg := m
			return &msg
		}
	}
	return nil
}

// registry tracks live sessions by identifier.
type registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func newRegistry() *registry {
	return &registry{sessions: make(map[string]*Session)}
}

func (r *registry) add(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = s
}

func (r *registry) get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// rekey registers a session under its new identifier after a reset. The
// old identifier stays as an alias so clients holding it keep routing to
// the same conversation; persistence only ever sees the new identifier.
func (r *registry) rekey(oldID string, s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[oldID] = s
	r.sessions[s.ID] = s
}
