// Package store provides storage backends for therascent.
//
// This file implements the SQLite-backed store. Treatment matters are
// stored as a JSON-encoded array; nullable booleans map to nullable
// INTEGER columns.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	_ "github.com/mattn/go-sqlite3"

	"github.com/therascent/therascent/internal/models"
)

// DefaultDirPermissions defines the default permissions for database directories.
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN. The DSN is
// a file path to the SQLite database file; the directory is created when
// missing.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running SQLite migrations")
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) UpsertSession(rec models.SessionRecord) error {
	matters, err := json.Marshal(rec.TreatmentMatters)
	if err != nil {
		return fmt.Errorf("failed to encode treatment matters: %w", err)
	}
	now := time.Now()
	_, err = s.db.Exec(`INSERT INTO sessions (
		session_id, mood, brings_here_today, treatment_matters, touch_style,
		therapist_preference, session_location, preferred_time, conversation_style,
		additional_notes, budget, scent_preferences, contact_info, location_live,
		experience_rating, wants_scent_info, wants_research_info, wants_to_experience,
		has_agreed, created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(session_id) DO UPDATE SET
		mood = excluded.mood,
		brings_here_today = excluded.brings_here_today,
		treatment_matters = excluded.treatment_matters,
		touch_style = excluded.touch_style,
		therapist_preference = excluded.therapist_preference,
		session_location = excluded.session_location,
		preferred_time = excluded.preferred_time,
		conversation_style = excluded.conversation_style,
		additional_notes = excluded.additional_notes,
		budget = excluded.budget,
		scent_preferences = excluded.scent_preferences,
		contact_info = excluded.contact_info,
		location_live = excluded.location_live,
		experience_rating = excluded.experience_rating,
		wants_scent_info = excluded.wants_scent_info,
		wants_research_info = excluded.wants_research_info,
		wants_to_experience = excluded.wants_to_experience,
		has_agreed = excluded.has_agreed,
		updated_at = excluded.updated_at`,
		rec.SessionID, rec.Mood, rec.BringsHereToday, string(matters), rec.TouchStyle,
		rec.TherapistPreference, rec.SessionLocation, rec.PreferredTime, rec.ConversationStyle,
		rec.AdditionalNotes, rec.Budget, rec.ScentPreferences, rec.ContactInfo, rec.LocationLive,
		nullInt(rec.ExperienceRating), nullBool(rec.WantsScentInfo), nullBool(rec.WantsResearchInfo),
		nullBool(rec.WantsToExperience), rec.HasAgreed, now, now)
	if err != nil {
		slog.Error("SQLiteStore UpsertSession failed", "error", err, "session_id", rec.SessionID)
		return fmt.Errorf("failed to upsert session %s: %w", rec.SessionID, err)
	}
	slog.Debug("SQLiteStore UpsertSession succeeded", "session_id", rec.SessionID)
	return nil
}

func (s *SQLiteStore) GetSession(sessionID string) (*models.SessionRecord, error) {
	row := s.db.QueryRow(sessionSelect+` WHERE session_id = ?`, sessionID)
	rec, err := scanSessionRow(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", models.ErrSessionNotFound, sessionID)
	}
	if err != nil {
		slog.Error("SQLiteStore GetSession failed", "error", err, "session_id", sessionID)
		return nil, fmt.Errorf("failed to query session %s: %w", sessionID, err)
	}
	return rec, nil
}

func (s *SQLiteStore) ListSessions() ([]models.SessionRecord, error) {
	rows, err := s.db.Query(sessionSelect + ` ORDER BY created_at DESC`)
	if err != nil {
		slog.Error("SQLiteStore ListSessions query failed", "error", err)
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var out []models.SessionRecord
	for rows.Next() {
		rec, err := scanSession(rows)
		if err != nil {
			slog.Error("SQLiteStore ListSessions scan failed", "error", err)
			return nil, err
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate session rows: %w", err)
	}
	slog.Debug("SQLiteStore ListSessions succeeded", "count", len(out))
	return out, nil
}

func (s *SQLiteStore) AddLead(lead *models.Lead) error {
	if err := lead.Validate(); err != nil {
		return err
	}
	lead.CreatedAt = time.Now()
	res, err := s.db.Exec(`INSERT INTO contact_messages (name, email, phone, message, read, created_at)
		VALUES (?, ?, ?, ?, 0, ?)`,
		lead.Name, lead.Email, nilIfEmpty(lead.Phone), lead.Message, lead.CreatedAt)
	if err != nil {
		slog.Error("SQLiteStore AddLead failed", "error", err, "email", lead.Email)
		return fmt.Errorf("failed to insert lead: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read lead id: %w", err)
	}
	lead.ID = id
	slog.Debug("SQLiteStore AddLead succeeded", "id", id)
	return nil
}

func (s *SQLiteStore) ListLeads() ([]models.Lead, error) {
	rows, err := s.db.Query(`SELECT id, name, email, phone, message, read, created_at
		FROM contact_messages ORDER BY id DESC`)
	if err != nil {
		slog.Error("SQLiteStore ListLeads query failed", "error", err)
		return nil, fmt.Errorf("failed to query leads: %w", err)
	}
	defer rows.Close()

	var out []models.Lead
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			slog.Error("SQLiteStore ListLeads scan failed", "error", err)
			return nil, err
		}
		out = append(out, lead)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate lead rows: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) MarkLeadRead(id int64) error {
	res, err := s.db.Exec(`UPDATE contact_messages SET read = 1 WHERE id = ?`, id)
	if err != nil {
		slog.Error("SQLiteStore MarkLeadRead failed", "error", err, "id", id)
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

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
