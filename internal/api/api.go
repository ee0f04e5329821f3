// Package api provides the HTTP surface for therascent.
//
// It exposes RESTful endpoints for running dialogue sessions, capturing
// contact leads, and the read-only admin listings. The API integrates the
// dialogue engine with the store module.
package api

import (
	"log/slog"
	"net/http"

	"github.com/therascent/therascent/internal/dialogue"
	"github.com/therascent/therascent/internal/store"
)

// DefaultAddr is the default listen address for the API server.
const DefaultAddr = ":8080"

// Opts holds configuration options for the API server.
type Opts struct {
	Addr string // listen address, host:port
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) {
		o.Addr = addr
	}
}

// Server wires the dialogue engine and the store behind the HTTP routes.
type Server struct {
	engine *dialogue.Engine
	store  store.Store
	addr   string
}

// NewServer creates an API server for the given engine and store.
func NewServer(engine *dialogue.Engine, st store.Store, opts ...Option) *Server {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	addr := cfg.Addr
	if addr == "" {
		addr = DefaultAddr
	}
	return &Server{engine: engine, store: st, addr: addr}
}

// Handler returns the route table as an http.Handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/sessions", s.createSessionHandler)
	mux.HandleFunc("GET /api/sessions/{id}", s.getSessionHandler)
	mux.HandleFunc("POST /api/sessions/{id}/messages", s.postMessageHandler)
	mux.HandleFunc("POST /api/sessions/{id}/rating", s.postRatingHandler)
	mux.HandleFunc("PUT /api/sessions/{id}/locale", s.putLocaleHandler)
	mux.HandleFunc("POST /api/leads", s.createLeadHandler)
	mux.HandleFunc("GET /api/admin/sessions", s.adminSessionsHandler)
	mux.HandleFunc("GET /api/admin/leads", s.adminLeadsHandler)
	mux.HandleFunc("POST /api/admin/leads/{id}/read", s.markLeadReadHandler)
	return mux
}

// Run starts the HTTP server and blocks until it exits.
func (s *Server) Run() error {
	slog.Info("API server listening", "addr", s.addr)
	return http.ListenAndServe(s.addr, s.Handler())
}
