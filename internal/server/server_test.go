package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conexa-labs/searchsync/internal/opensearch"
)

type stubSearcher struct {
	hits    []opensearch.Hit
	err     error
	calls   int
	lastMod opensearch.SearchMode
	lastQ   string
	lastID  string
}

func (s *stubSearcher) Search(ctx context.Context, mode opensearch.SearchMode, query, modelID string, size int) ([]opensearch.Hit, error) {
	s.calls++
	s.lastMod = mode
	s.lastQ = query
	s.lastID = modelID
	return s.hits, s.err
}

func newTestServer(t *testing.T, cfg Config, searcher Searcher) *Server {
	t.Helper()
	if cfg.DefaultMode == "" {
		cfg.DefaultMode = "neural"
	}
	srv, err := New(cfg, searcher, "model-1", nil)
	require.NoError(t, err)
	return srv
}

func get(t *testing.T, srv *Server, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestSearchReturnsEscapedResults(t *testing.T) {
	searcher := &stubSearcher{hits: []opensearch.Hit{
		{ID: "n1_0", Name: "café.txt", Text: "résumé body", Score: 1.0},
	}}
	srv := newTestServer(t, Config{}, searcher)

	rec := get(t, srv, "/search?query=resume")
	require.Equal(t, http.StatusOK, rec.Code)

	var results []Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &results))
	require.Len(t, results, 1)
	assert.Equal(t, "n1_0", results[0].ID)
	assert.Equal(t, `caf\u00e9.txt`, results[0].Name)
	assert.Equal(t, `r\u00e9sum\u00e9 body`, results[0].Text)

	assert.Equal(t, opensearch.ModeNeural, searcher.lastMod, "default mode applies")
	assert.Equal(t, "model-1", searcher.lastID)
}

func TestSearchEmptyResultIsEmptyArray(t *testing.T) {
	srv := newTestServer(t, Config{}, &stubSearcher{})

	rec := get(t, srv, "/search?query=nothing")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]\n", rec.Body.String())
}

func TestSearchModeParameter(t *testing.T) {
	searcher := &stubSearcher{}
	srv := newTestServer(t, Config{}, searcher)

	rec := get(t, srv, "/search?query=x&mode=hybrid")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, opensearch.ModeHybrid, searcher.lastMod)

	rec = get(t, srv, "/search?query=x&mode=bogus")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSearchRequiresQuery(t *testing.T) {
	srv := newTestServer(t, Config{}, &stubSearcher{})
	rec := get(t, srv, "/search")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSearchEngineErrorMapsToBadGateway(t *testing.T) {
	srv := newTestServer(t, Config{}, &stubSearcher{err: errors.New("boom")})
	rec := get(t, srv, "/search?query=x")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestSearchCacheHitSkipsEngine(t *testing.T) {
	searcher := &stubSearcher{hits: []opensearch.Hit{{ID: "a_0", Text: "t"}}}
	srv := newTestServer(t, Config{CacheSize: 8}, searcher)

	get(t, srv, "/search?query=repeated")
	get(t, srv, "/search?query=repeated")
	assert.Equal(t, 1, searcher.calls, "second request must come from cache")

	// Different mode is a different cache entry.
	get(t, srv, "/search?query=repeated&mode=keyword")
	assert.Equal(t, 2, searcher.calls)
}

func TestSearchCORSHeader(t *testing.T) {
	srv := newTestServer(t, Config{CORSEnabled: true}, &stubSearcher{})
	rec := get(t, srv, "/search?query=x")
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	srv = newTestServer(t, Config{}, &stubSearcher{})
	rec = get(t, srv, "/search?query=x")
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t, Config{}, &stubSearcher{})
	rec := get(t, srv, "/health")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status": "ok"}`, rec.Body.String())
}
