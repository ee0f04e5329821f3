// Package models defines the core data structures for therascent.
//
// It includes the dialogue message and preference record types shared
// across the engine, the recommender, and the persistence layer.
package models

import (
	"errors"
	"time"
)

// Sender identifies who authored a transcript message.
type Sender string

const (
	// SenderUser marks a message authored by the visitor.
	SenderUser Sender = "user"
	// SenderAssistant marks a message authored by the assistant.
	SenderAssistant Sender = "assistant"
)

// Validation constants for dialogue input.
const (
	// MaxUtteranceLength caps the accepted length of a single user utterance.
	MaxUtteranceLength = 4096
	// MinRating is the lowest accepted experience rating.
	MinRating = 1
	// MaxRating is the highest accepted experience rating.
	MaxRating = 10
)

// Error variables shared across packages for better testability.
var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrUtteranceTooLong = errors.New("utterance exceeds maximum length")
	ErrInvalidRating    = errors.New("rating must be between 1 and 10")
	ErrUnknownLocale    = errors.New("unknown locale")
	ErrLeadIncomplete   = errors.New("lead requires name, email, and message")
)

// Message is one entry of the session transcript. Messages are immutable
// once appended except for the re-derivation pass, which recomputes
// Content and the option lists from the stored catalog keys while
// preserving ID, Sender, and sequence.
type Message struct {
	ID              int               `json:"id"`
	Sender          Sender            `json:"sender"`
	Content         string            `json:"content"`
	Options         []string          `json:"options,omitempty"`
	MultiOptions    []string          `json:"multi_options,omitempty"`
	ContentKey      string            `json:"content_key,omitempty"`
	OptionsKey      string            `json:"options_key,omitempty"`
	MultiOptionsKey string            `json:"multi_options_key,omitempty"`
	Therapist       *TherapistProfile `json:"therapist,omitempty"`
	ResearchSummary bool              `json:"research_summary,omitempty"`
	Timestamp       time.Time         `json:"timestamp"`
}

// PreferenceRecord accumulates everything learned about the visitor during
// one session. Fields are only ever added or overwritten, never deleted,
// until the session resets. SessionID is set once at session start and is
// the upsert key for persistence.
type PreferenceRecord struct {
	SessionID            string   `json:"session_id"`
	Mood                 string   `json:"mood,omitempty"`
	WantsResearchInfo    *bool    `json:"wants_research_info,omitempty"`
	WantsToExperience    *bool    `json:"wants_to_experience,omitempty"`
	BringsHereToday      string   `json:"brings_here_today,omitempty"`
	ContactInfo          string   `json:"contact_info,omitempty"`
	PreferredContactTime string   `json:"preferred_contact_time,omitempty"`
	TreatmentMatters     []string `json:"treatment_matters,omitempty"`
	TouchStyle           string   `json:"touch_style,omitempty"`
	TherapistPreference  string   `json:"therapist_preference,omitempty"`
	SessionLocation      string   `json:"session_location,omitempty"`
	LocationLive         string   `json:"location_live,omitempty"`
	PreferredTime        string   `json:"preferred_time,omitempty"`
	ConversationStyle    string   `json:"conversation_style,omitempty"`
	AdditionalNotes      string   `json:"additional_notes,omitempty"`
	Budget               string   `json:"budget,omitempty"`
	WantsScentInfo       *bool    `json:"wants_scent_info,omitempty"`
	ScentPreferences     string   `json:"scent_preferences,omitempty"`
	ExperienceRating     *int     `json:"experience_rating,omitempty"`
	HasAgreed            bool     `json:"has_agreed,omitempty"`
}

// SessionRecord is the persistence row for one session, upserted on
// conflict by SessionID at each checkpoint.
type SessionRecord struct {
	SessionID           string    `json:"session_id"`
	Mood                string    `json:"mood,omitempty"`
	BringsHereToday     string    `json:"brings_here_today,omitempty"`
	TreatmentMatters    []string  `json:"treatment_matters,omitempty"`
	TouchStyle          string    `json:"touch_style,omitempty"`
	TherapistPreference string    `json:"therapist_preference,omitempty"`
	SessionLocation     string    `json:"session_location,omitempty"`
	PreferredTime       string    `json:"preferred_time,omitempty"`
	ConversationStyle   string    `json:"conversation_style,omitempty"`
	AdditionalNotes     string    `json:"additional_notes,omitempty"`
	Budget              string    `json:"budget,omitempty"`
	ScentPreferences    string    `json:"scent_preferences,omitempty"`
	ContactInfo         string    `json:"contact_info,omitempty"`
	LocationLive        string    `json:"location_live,omitempty"`
	ExperienceRating    *int      `json:"experience_rating,omitempty"`
	WantsScentInfo      *bool     `json:"wants_scent_info,omitempty"`
	WantsResearchInfo   *bool     `json:"wants_research_info,omitempty"`
	WantsToExperience   *bool     `json:"wants_to_experience,omitempty"`
	HasAgreed           bool      `json:"has_agreed,omitempty"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// SessionRecordFromPreferences maps the accumulated preference record onto
// the persistence row shape.
func SessionRecordFromPreferences(p PreferenceRecord) SessionRecord {
	return SessionRecord{
		SessionID:           p.SessionID,
		Mood:                p.Mood,
		BringsHereToday:     p.BringsHereToday,
		TreatmentMatters:    p.TreatmentMatters,
		TouchStyle:          p.TouchStyle,
		TherapistPreference: p.TherapistPreference,
		SessionLocation:     p.SessionLocation,
		PreferredTime:       p.PreferredTime,
		ConversationStyle:   p.ConversationStyle,
		AdditionalNotes:     p.AdditionalNotes,
		Budget:              p.Budget,
		ScentPreferences:    p.ScentPreferences,
		ContactInfo:         p.ContactInfo,
		LocationLive:        p.LocationLive,
		ExperienceRating:    p.ExperienceRating,
		WantsScentInfo:      p.WantsScentInfo,
		WantsResearchInfo:   p.WantsResearchInfo,
		WantsToExperience:   p.WantsToExperience,
		HasAgreed:           p.HasAgreed,
	}
}

// TherapistGender tags a roster entry for preference filtering.
type TherapistGender string

const (
	// GenderWoman tags female therapists.
	GenderWoman TherapistGender = "woman"
	// GenderMan tags male therapists.
	GenderMan TherapistGender = "man"
)

// TherapistProfile is a static roster entry. Profiles are selected, never
// mutated, by the recommender.
type TherapistProfile struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Experience    string          `json:"experience"`
	Availability  string          `json:"availability"`
	Specialties   string          `json:"specialties"`
	Specialty     string          `json:"specialty"`
	Rating        float64         `json:"rating"`
	ReviewCount   int             `json:"review_count"`
	Gender        TherapistGender `json:"gender"`
	Price         string          `json:"price"`
	Location      string          `json:"location"`
	TimeAvailable []string        `json:"time_available"`
}

// Lead is one entry of the append-only lead-capture channel.
type Lead struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone,omitempty"`
	Message   string    `json:"message"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}

// Validate checks that the required lead fields are present.
func (l *Lead) Validate() error {
	if l.Name == "" || l.Email == "" || l.Message == "" {
		return ErrLeadIncomplete
	}
	return nil
}
