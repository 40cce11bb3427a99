package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newModifiedSource(t *testing.T, handler http.Handler, now time.Time) *ModifiedSource {
	t.Helper()
	src := NewModifiedSource(newTestRepoClient(t, handler), ModifiedConfig{
		RootPath:           "/app:company_home",
		PageSize:           2,
		RenditionPollDelay: 5 * time.Millisecond,
	}, nil)
	src.now = func() time.Time { return now }
	return src
}

func TestModifiedPollPagesThroughWindow(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	since := time.Date(2024, 4, 30, 12, 0, 0, 0, time.UTC)

	var queries []string
	var skips []int
	mux := http.NewServeMux()
	mux.HandleFunc("POST /alfresco/api/-default-/public/search/versions/1/search", func(w http.ResponseWriter, r *http.Request) {
		var req searchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		queries = append(queries, req.Query.Query)
		skips = append(skips, req.Paging.SkipCount)

		if req.Paging.SkipCount == 0 {
			w.Write([]byte(`{"list": {"pagination": {"hasMoreItems": true}, "entries": [
				{"entry": {"id": "n1", "name": "a.txt", "nodeType": "cm:content"}},
				{"entry": {"id": "n2", "name": "b.txt", "nodeType": "cm:content"}}
			]}}`))
			return
		}
		w.Write([]byte(`{"list": {"pagination": {"hasMoreItems": false}, "entries": [
			{"entry": {"id": "n3", "name": "c.txt", "nodeType": "cm:content"}}
		]}}`))
	})
	src := newModifiedSource(t, mux, now)

	batch, err := src.PollChanges(context.Background(), Cursor{SyncTime: since})
	require.NoError(t, err)

	require.Len(t, batch.Records, 3)
	for _, r := range batch.Records {
		assert.Equal(t, ChangeUpserted, r.Kind)
	}
	assert.Equal(t, []int{0, 2}, skips)
	assert.True(t, batch.NewCursor.SyncTime.Equal(now), "cursor advances to poll start")
	assert.False(t, batch.HasMore)

	require.Len(t, queries, 2)
	assert.Contains(t, queries[0], `PATH:"/app:company_home//*"`)
	assert.Contains(t, queries[0], "cm:modified:['2024-04-30T12:00:00.000Z' TO '2024-05-01T12:00:00.000Z'>")
}

func TestModifiedPollEmptyWindow(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	mux := http.NewServeMux()
	mux.HandleFunc("POST /alfresco/api/-default-/public/search/versions/1/search", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"list": {"pagination": {"hasMoreItems": false}, "entries": []}}`))
	})
	src := newModifiedSource(t, mux, now)

	batch, err := src.PollChanges(context.Background(), Cursor{})
	require.NoError(t, err)
	assert.Empty(t, batch.Records)
	assert.True(t, batch.NewCursor.SyncTime.Equal(now))
}

func TestModifiedFetchContentExistingRendition(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /alfresco/api/-default-/public/alfresco/versions/1/nodes/n1/renditions/text", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"entry": {"status": "CREATED"}}`))
	})
	mux.HandleFunc("GET /alfresco/api/-default-/public/alfresco/versions/1/nodes/n1/renditions/text/content", func(w http.ResponseWriter, r *http.Request) {
		user, pass, _ := r.BasicAuth()
		assert.Equal(t, "admin", user)
		assert.Equal(t, "admin", pass)
		w.Write([]byte("rendered text"))
	})
	src := newModifiedSource(t, mux, time.Now())

	content, err := src.FetchContent(context.Background(), ChangeRecord{EntityID: "n1", Name: "a.txt"})
	require.NoError(t, err)
	assert.Equal(t, "rendered text", content.Text)
	assert.Equal(t, "a.txt", content.Name)
}

func TestModifiedFetchContentCreatesAndPollsRendition(t *testing.T) {
	var statusCalls, createCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("GET /alfresco/api/-default-/public/alfresco/versions/1/nodes/n2/renditions/text", func(w http.ResponseWriter, r *http.Request) {
		if statusCalls.Add(1) < 3 {
			w.Write([]byte(`{"entry": {"status": "NOT_CREATED"}}`))
			return
		}
		w.Write([]byte(`{"entry": {"status": "CREATED"}}`))
	})
	mux.HandleFunc("POST /alfresco/api/-default-/public/alfresco/versions/1/nodes/n2/renditions", func(w http.ResponseWriter, r *http.Request) {
		createCalls.Add(1)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "text", body["id"])
		w.WriteHeader(http.StatusAccepted)
	})
	mux.HandleFunc("GET /alfresco/api/-default-/public/alfresco/versions/1/nodes/n2/renditions/text/content", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("late text"))
	})
	src := newModifiedSource(t, mux, time.Now())

	content, err := src.FetchContent(context.Background(), ChangeRecord{EntityID: "n2"})
	require.NoError(t, err)
	assert.Equal(t, "late text", content.Text)
	assert.Equal(t, int32(1), createCalls.Load(), "rendition requested exactly once")
	assert.GreaterOrEqual(t, statusCalls.Load(), int32(3))
}

func TestModifiedFetchContentHonorsCancellation(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /alfresco/api/-default-/public/alfresco/versions/1/nodes/n3/renditions/text", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"entry": {"status": "NOT_CREATED"}}`))
	})
	mux.HandleFunc("POST /alfresco/api/-default-/public/alfresco/versions/1/nodes/n3/renditions", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})
	src := newModifiedSource(t, mux, time.Now())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := src.FetchContent(ctx, ChangeRecord{EntityID: "n3"})
	require.Error(t, err)
}

func TestModifiedStrategyNames(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "{}")
	})
	assert.Equal(t, "modified", newModifiedSource(t, handler, time.Now()).Strategy())
	assert.Equal(t, "transactions", newTxnSource(t, handler).Strategy())
}
