package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/therascent/therascent/internal/models"
)

// DetectDSNType classifies a DSN as "postgres" or "sqlite". Anything that
// does not look like a Postgres connection string is treated as a SQLite
// file path.
func DetectDSNType(dsn string) string {
	if strings.Contains(dsn, "postgres://") || strings.Contains(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite"
}

// sessionSelect is the shared column list for session queries. The column
// order must match the scan helpers.
const sessionSelect = `SELECT session_id, mood, brings_here_today, treatment_matters,
	touch_style, therapist_preference, session_location, preferred_time,
	conversation_style, additional_notes, budget, scent_preferences, contact_info,
	location_live, experience_rating, wants_scent_info, wants_research_info,
	wants_to_experience, has_agreed, created_at, updated_at FROM sessions`

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// nullBool maps an optional boolean onto a nullable column value.
func nullBool(v *bool) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

// nullInt maps an optional integer onto a nullable column value.
func nullInt(v *int) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func boolFromNull(v sql.NullBool) *bool {
	if !v.Valid {
		return nil
	}
	b := v.Bool
	return &b
}

func intFromNull(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}

// scanSession scans a SessionRecord from sql.Rows, with treatment matters
// stored as a JSON-encoded array (SQLite layout).
func scanSession(rows *sql.Rows) (*models.SessionRecord, error) {
	return scanSessionFrom(rows.Scan)
}

// scanSessionRow scans a SessionRecord from a single sql.Row.
func scanSessionRow(row *sql.Row) (*models.SessionRecord, error) {
	return scanSessionFrom(row.Scan)
}

func scanSessionFrom(scan func(dest ...interface{}) error) (*models.SessionRecord, error) {
	var rec models.SessionRecord
	var matters sql.NullString
	var rating sql.NullInt64
	var scent, research, experience sql.NullBool
	err := scan(
		&rec.SessionID, &rec.Mood, &rec.BringsHereToday, &matters,
		&rec.TouchStyle, &rec.TherapistPreference, &rec.SessionLocation, &rec.PreferredTime,
		&rec.ConversationStyle, &rec.AdditionalNotes, &rec.Budget, &rec.ScentPreferences,
		&rec.ContactInfo, &rec.LocationLive, &rating, &scent, &research, &experience,
		&rec.HasAgreed, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if matters.Valid && matters.String != "" && matters.String != "null" {
		if err := json.Unmarshal([]byte(matters.String), &rec.TreatmentMatters); err != nil {
			return nil, fmt.Errorf("failed to decode treatment matters: %w", err)
		}
	}
	rec.ExperienceRating = intFromNull(rating)
	rec.WantsScentInfo = boolFromNull(scent)
	rec.WantsResearchInfo = boolFromNull(research)
	rec.WantsToExperience = boolFromNull(experience)
	return &rec, nil
}

// scanLead scans a Lead from sql.Rows.
func scanLead(rows *sql.Rows) (models.Lead, error) {
	var lead models.Lead
	var phone sql.NullString
	if err := rows.Scan(&lead.ID, &lead.Name, &lead.Email, &phone, &lead.Message, &lead.Read, &lead.CreatedAt); err != nil {
		return lead, fmt.Errorf("scan lead failed: %w", err)
	}
	lead.Phone = phone.String
	return lead, nil
}
