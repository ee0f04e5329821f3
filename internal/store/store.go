// Package store provides storage backends for therascent.
//
// It includes an in-memory store for tests and development plus
// SQLite-backed and PostgreSQL-backed persistent stores. Session rows are
// idempotently upserted by session id; leads are append-only.
package store

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/therascent/therascent/internal/models"
)

// Store is the persistence interface the dialogue engine and the API
// depend on.
type Store interface {
	// UpsertSession inserts or replaces the session row keyed by its
	// session id. Re-running the same checkpoint is a no-op.
	UpsertSession(rec models.SessionRecord) error
	// GetSession returns the stored row for a session id.
	GetSession(sessionID string) (*models.SessionRecord, error)
	// ListSessions returns all stored session rows, newest first.
	ListSessions() ([]models.SessionRecord, error)

	// AddLead appends a contact lead and assigns its id.
	AddLead(lead *models.Lead) error
	// ListLeads returns all leads, newest first.
	ListLeads() ([]models.Lead, error)
	// MarkLeadRead flags a lead as handled.
	MarkLeadRead(id int64) error

	// Close releases the backing resources.
	Close() error
}

// Opts holds configuration options for the persistent stores.
type Opts struct {
	DSN string // database connection string
}

// Option defines a configuration option for a store.
type Option func(*Opts)

// WithDSN sets the database connection string.
func WithDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// InMemoryStore keeps everything in process memory. It backs tests and
// DSN-less development runs.
type InMemoryStore struct {
	mu         sync.RWMutex
	sessions   map[string]models.SessionRecord
	leads      []models.Lead
	nextLeadID int64
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{sessions: make(map[string]models.SessionRecord)}
}

func (s *InMemoryStore) UpsertSession(rec models.SessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	if prev, ok := s.sessions[rec.SessionID]; ok {
		rec.CreatedAt = prev.CreatedAt
	} else {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	s.sessions[rec.SessionID] = rec
	return nil
}

func (s *InMemoryStore) GetSession(sessionID string) (*models.SessionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrSessionNotFound, sessionID)
	}
	return &rec, nil
}

func (s *InMemoryStore) ListSessions() ([]models.SessionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.SessionRecord, 0, len(s.sessions))
	for _, rec := range s.sessions {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *InMemoryStore) AddLead(lead *models.Lead) error {
	if err := lead.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextLeadID++
	lead.ID = s.nextLeadID
	lead.CreatedAt = time.Now()
	s.leads = append(s.leads, *lead)
	return nil
}

func (s *InMemoryStore) ListLeads() ([]models.Lead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Lead, len(s.leads))
	copy(out, s.leads)
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (s *InMemoryStore) MarkLeadRead(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.leads {
		if s.leads[i].ID == id {
			s.leads[i].Read = true
			return nil
		}
	}
	return fmt.Errorf("lead %d not found", id)
}

func (s *InMemoryStore) Close() error { return nil }
