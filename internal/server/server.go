// Package server exposes the thin query HTTP surface over the search
// index. It owns no state beyond a small response cache; the engine is
// the store of record.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/conexa-labs/searchsync/internal/opensearch"
	"github.com/conexa-labs/searchsync/internal/segment"
)

// Searcher is the slice of the engine gateway the server needs.
type Searcher interface {
	Search(ctx context.Context, mode opensearch.SearchMode, query, modelID string, size int) ([]opensearch.Hit, error)
}

// Config configures the query server.
type Config struct {
	Addr string
	// DefaultMode applies when the request has no mode parameter.
	DefaultMode string
	// ResultSize is the number of hits returned per query.
	ResultSize int
	// CacheSize bounds the query-response cache. Zero disables caching.
	CacheSize int
	// CORSEnabled allows browser clients from other origins.
	CORSEnabled bool
}

// Result is one row of the search response. Text and name are escaped so
// the payload stays plain ASCII regardless of document content.
type Result struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Text string `json:"text"`
}

// Server serves search queries over HTTP.
type Server struct {
	cfg      Config
	searcher Searcher
	modelID  string
	logger   *slog.Logger

	cache *lru.Cache[string, []Result]
	http  *http.Server
}

// New creates a Server. modelID is the deployed embedding model used by
// neural and hybrid queries.
func New(cfg Config, searcher Searcher, modelID string, logger *slog.Logger) (*Server, error) {
	if cfg.Addr == "" {
		cfg.Addr = ":8081"
	}
	if cfg.DefaultMode == "" {
		cfg.DefaultMode = string(opensearch.ModeNeural)
	}
	if cfg.ResultSize <= 0 {
		cfg.ResultSize = 5
	}
	if _, err := opensearch.ParseSearchMode(cfg.DefaultMode); err != nil {
		return nil, fmt.Errorf("invalid default mode: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{cfg: cfg, searcher: searcher, modelID: modelID, logger: logger}
	if cfg.CacheSize > 0 {
		cache, err := lru.New[string, []Result](cfg.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("create query cache: %w", err)
		}
		s.cache = cache
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /search", s.handleSearch)
	mux.HandleFunc("GET /health", s.handleHealth)
	s.http = &http.Server{
		Addr:         cfg.Addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s, nil
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.http.Handler }

// ListenAndServe blocks serving queries until Shutdown.
func (s *Server) ListenAndServe() error {
	s.logger.Info("query server listening", slog.String("addr", s.cfg.Addr))
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if s.cfg.CORSEnabled {
		w.Header().Set("Access-Control-Allow-Origin", "*")
	}

	query := r.URL.Query().Get("query")
	if query == "" {
		writeError(w, http.StatusBadRequest, "query parameter is required")
		return
	}
	modeParam := r.URL.Query().Get("mode")
	if modeParam == "" {
		modeParam = s.cfg.DefaultMode
	}
	mode, err := opensearch.ParseSearchMode(modeParam)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	cacheKey := string(mode) + "\x00" + query
	if s.cache != nil {
		if cached, ok := s.cache.Get(cacheKey); ok {
			writeJSON(w, cached)
			return
		}
	}

	hits, err := s.searcher.Search(r.Context(), mode, query, s.modelID, s.cfg.ResultSize)
	if err != nil {
		s.logger.Error("search failed",
			slog.String("mode", string(mode)),
			slog.String("error", err.Error()))
		writeError(w, http.StatusBadGateway, "search engine unavailable")
		return
	}

	// Always an array, never null: empty result sets are not errors.
	results := make([]Result, 0, len(hits))
	for _, h := range hits {
		results = append(results, Result{
			ID:   h.ID,
			Name: segment.Escape(h.Name),
			Text: segment.Escape(h.Text),
		})
	}

	if s.cache != nil {
		s.cache.Add(cacheKey, results)
	}
	writeJSON(w, results)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
