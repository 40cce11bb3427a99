package opensearch

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleHits = `{
	"hits": {
		"total": {"value": 2},
		"hits": [
			{"_score": 1.8, "_source": {"id": "n1_0", "dbid": 5, "name": "a.txt", "text": "first"}},
			{"_score": 0.4, "_source": {"id": "n2_0", "dbid": 6, "name": "b.txt", "text": "second"}}
		]
	}
}`

func TestParseSearchMode(t *testing.T) {
	for _, valid := range []string{"keyword", "neural", "hybrid"} {
		mode, err := ParseSearchMode(valid)
		require.NoError(t, err)
		assert.Equal(t, SearchMode(valid), mode)
	}
	_, err := ParseSearchMode("fuzzy")
	assert.Error(t, err)
}

func TestSearchKeyword(t *testing.T) {
	var body map[string]any
	g := newTestGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/neural-index/_search", r.URL.Path)
		assert.Empty(t, r.URL.Query().Get("search_pipeline"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Write([]byte(sampleHits))
	}))

	hits, err := g.Search(context.Background(), ModeKeyword, "first", "", 10)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, Hit{ID: "n1_0", Name: "a.txt", Text: "first", Score: 1.8}, hits[0])

	excludes := body["_source"].(map[string]any)["excludes"].([]any)
	assert.Contains(t, excludes, "passage_embedding")
	match := body["query"].(map[string]any)["match"].(map[string]any)
	assert.Equal(t, "first", match["text"])
}

func TestSearchNeuralCarriesModelID(t *testing.T) {
	var body map[string]any
	g := newTestGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Write([]byte(sampleHits))
	}))

	_, err := g.Search(context.Background(), ModeNeural, "question", "model-7", 5)
	require.NoError(t, err)

	neural := body["query"].(map[string]any)["neural"].(map[string]any)["passage_embedding"].(map[string]any)
	assert.Equal(t, "question", neural["query_text"])
	assert.Equal(t, "model-7", neural["model_id"])
	assert.Equal(t, float64(5), neural["k"])
}

func TestSearchHybridUsesSearchPipeline(t *testing.T) {
	var body map[string]any
	var pipeline string
	g := newTestGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pipeline = r.URL.Query().Get("search_pipeline")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Write([]byte(sampleHits))
	}))

	_, err := g.Search(context.Background(), ModeHybrid, "question", "model-7", 10)
	require.NoError(t, err)

	assert.Equal(t, "nlp-pipeline-hybrid", pipeline)
	queries := body["query"].(map[string]any)["hybrid"].(map[string]any)["queries"].([]any)
	require.Len(t, queries, 2)
}

func TestSearchEmptyResult(t *testing.T) {
	g := newTestGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"hits": {"total": {"value": 0}, "hits": []}}`))
	}))

	hits, err := g.Search(context.Background(), ModeKeyword, "nothing", "", 10)
	require.NoError(t, err)
	assert.NotNil(t, hits)
	assert.Empty(t, hits)
}
