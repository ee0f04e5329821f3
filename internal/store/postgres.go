// This file implements the PostgreSQL-backed store. Treatment matters map
// onto a native TEXT[] column via pq.Array.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/lib/pq"

	"github.com/therascent/therascent/internal/models"
)

// Database connection pool configuration constants.
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database.
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool.
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused.
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewPostgresStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running Postgres migrations")
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) UpsertSession(rec models.SessionRecord) error {
	now := time.Now()
	_, err := s.db.Exec(`INSERT INTO sessions (
		session_id, mood, brings_here_today, treatment_matters, touch_style,
		therapist_preference, session_location, preferred_time, conversation_style,
		additional_notes, budget, scent_preferences, contact_info, location_live,
		experience_rating, wants_scent_info, wants_research_info, wants_to_experience,
		has_agreed, created_at, updated_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
	ON CONFLICT (session_id) DO UPDATE SET
		mood = EXCLUDED.mood,
		brings_here_today = EXCLUDED.brings_here_today,
		treatment_matters = EXCLUDED.treatment_matters,
		touch_style = EXCLUDED.touch_style,
		therapist_preference = EXCLUDED.therapist_preference,
		session_location = EXCLUDED.session_location,
		preferred_time = EXCLUDED.preferred_time,
		conversation_style = EXCLUDED.conversation_style,
		additional_notes = EXCLUDED.additional_notes,
		budget = EXCLUDED.budget,
		scent_preferences = EXCLUDED.scent_preferences,
		contact_info = EXCLUDED.contact_info,
		location_live = EXCLUDED.location_live,
		experience_rating = EXCLUDED.experience_rating,
		wants_scent_info = EXCLUDED.wants_scent_info,
		wants_research_info = EXCLUDED.wants_research_info,
		wants_to_experience = EXCLUDED.wants_to_experience,
		has_agreed = EXCLUDED.has_agreed,
		updated_at = EXCLUDED.updated_at`,
		rec.SessionID, rec.Mood, rec.BringsHereToday, pq.Array(rec.TreatmentMatters), rec.TouchStyle,
		rec.TherapistPreference, rec.SessionLocation, rec.PreferredTime, rec.ConversationStyle,
		rec.AdditionalNotes, rec.Budget, rec.ScentPreferences, rec.ContactInfo, rec.LocationLive,
		nullInt(rec.ExperienceRating), nullBool(rec.WantsScentInfo), nullBool(rec.WantsResearchInfo),
		nullBool(rec.WantsToExperience), rec.HasAgreed, now, now)
	if err != nil {
		slog.Error("PostgresStore UpsertSession failed", "error", err, "session_id", rec.SessionID)
		return fmt.Errorf("failed to upsert session %s: %w", rec.SessionID, err)
	}
	slog.Debug("PostgresStore UpsertSession succeeded", "session_id", rec.SessionID)
	return nil
}

func (s *PostgresStore) GetSession(sessionID string) (*models.SessionRecord, error) {
	row := s.db.QueryRow(sessionSelect+` WHERE session_id = $1`, sessionID)
	rec, err := scanPostgresSession(row.Scan)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", models.ErrSessionNotFound, sessionID)
	}
	if err != nil {
		slog.Error("PostgresStore GetSession failed", "error", err, "session_id", sessionID)
		return nil, fmt.Errorf("failed to query session %s: %w", sessionID, err)
	}
	return rec, nil
}

func (s *PostgresStore) ListSessions() ([]models.SessionRecord, error) {
	rows, err := s.db.Query(sessionSelect + ` ORDER BY created_at DESC`)
	if err != nil {
		slog.Error("PostgresStore ListSessions query failed", "error", err)
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var out []models.SessionRecord
	for rows.Next() {
		rec, err := scanPostgresSession(rows.Scan)
		if err != nil {
			slog.Error("PostgresStore ListSessions scan failed", "error", err)
			return nil, err
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate session rows: %w", err)
	}
	slog.Debug("PostgresStore ListSessions succeeded", "count", len(out))
	return out, nil
}

// scanPostgresSession scans a SessionRecord with the TEXT[] treatment
// matters column.
func scanPostgresSession(scan func(dest ...interface{}) error) (*models.SessionRecord, error) {
	var rec models.SessionRecord
	var rating sql.NullInt64
	var scent, research, experience sql.NullBool
	err := scan(
		&rec.SessionID, &rec.Mood, &rec.BringsHereToday, pq.Array(&rec.TreatmentMatters),
		&rec.TouchStyle, &rec.TherapistPreference, &rec.SessionLocation, &rec.PreferredTime,
		&rec.ConversationStyle, &rec.AdditionalNotes, &rec.Budget, &rec.ScentPreferences,
		&rec.ContactInfo, &rec.LocationLive, &rating, &scent, &research, &experience,
		&rec.HasAgreed, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.ExperienceRating = intFromNull(rating)
	rec.WantsScentInfo = boolFromNull(scent)
	rec.WantsResearchInfo = boolFromNull(research)
	rec.WantsToExperience = boolFromNull(experience)
	return &rec, nil
}

func (s *PostgresStore) AddLead(lead *models.Lead) error {
	if err := lead.Validate(); err != nil {
		return err
	}
	lead.CreatedAt = time.Now()
	err := s.db.QueryRow(`INSERT INTO contact_messages (name, email, phone, message, read, created_at)
		VALUES ($1, $2, $3, $4, FALSE, $5) RETURNING id`,
		lead.Name, lead.Email, nilIfEmpty(lead.Phone), lead.Message, lead.CreatedAt).Scan(&lead.ID)
	if err != nil {
		slog.Error("PostgresStore AddLead failed", "error", err, "email", lead.Email)
		return fmt.Errorf("failed to insert lead: %w", err)
	}
	slog.Debug("PostgresStore AddLead succeeded", "id", lead.ID)
	return nil
}

func (s *PostgresStore) ListLeads() ([]models.Lead, error) {
	rows, err := s.db.Query(`SELECT id, name, email, phone, message, read, created_at
		FROM contact_messages ORDER BY id DESC`)
	if err != nil {
		slog.Error("PostgresStore ListLeads query failed", "error", err)
		return nil, fmt.Errorf("failed to query leads: %w", err)
	}
	defer rows.Close()

	var out []models.Lead
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			slog.Error("PostgresStore ListLeads scan failed", "error", err)
			return nil, err
		}
		out = append(out, lead)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate lead rows: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) MarkLeadRead(id int64) error {
	res, err := s.db.Exec(`UPDATE contact_messages SET read = TRUE WHERE id = $1`, id)
	if err != nil {
		slog.Error("PostgresStore MarkLeadRead failed", "error", err, "id", id)
		return fmt.Errorf("failed to mark lead %d read: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("lead %d not found", id)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
