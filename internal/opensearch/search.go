package opensearch

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// SearchMode selects how a query is executed.
type SearchMode string

const (
	// ModeKeyword is a plain lexical match on the text field.
	ModeKeyword SearchMode = "keyword"
	// ModeNeural embeds the query and runs a KNN search.
	ModeNeural SearchMode = "neural"
	// ModeHybrid combines both, normalized through the search pipeline.
	ModeHybrid SearchMode = "hybrid"
)

// ParseSearchMode validates a user-supplied mode string.
func ParseSearchMode(s string) (SearchMode, error) {
	switch SearchMode(s) {
	case ModeKeyword, ModeNeural, ModeHybrid:
		return SearchMode(s), nil
	default:
		return "", fmt.Errorf("unknown search mode %q", s)
	}
}

// Hit is one search result. The embedding vector is excluded at the
// source level and never crosses the wire.
type Hit struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Text  string  `json:"text"`
	Score float64 `json:"score"`
}

// Search runs a query in the given mode and returns up to size hits.
// modelID is required for neural and hybrid modes.
func (g *Gateway) Search(ctx context.Context, mode SearchMode, query, modelID string, size int) ([]Hit, error) {
	if size <= 0 {
		size = 10
	}

	var body map[string]any
	path := "/" + g.indexName + "/_search"

	switch mode {
	case ModeKeyword:
		body = map[string]any{
			"_source": map[string]any{"excludes": []string{"passage_embedding"}},
			"size":    size,
			"query": map[string]any{
				"match": map[string]any{"text": query},
			},
		}
	case ModeNeural:
		body = map[string]any{
			"_source": map[string]any{"excludes": []string{"passage_embedding"}},
			"size":    size,
			"query": map[string]any{
				"neural": map[string]any{
					"passage_embedding": map[string]any{
						"query_text": query,
						"model_id":   modelID,
						"k":          size,
					},
				},
			},
		}
	case ModeHybrid:
		path += "?search_pipeline=" + url.QueryEscape(g.searchPipeline())
		body = map[string]any{
			"_source": map[string]any{"excludes": []string{"passage_embedding"}},
			"size":    size,
			"query": map[string]any{
				"hybrid": map[string]any{
					"queries": []any{
						map[string]any{
							"match": map[string]any{"text": query},
						},
						map[string]any{
							"neural": map[string]any{
								"passage_embedding": map[string]any{
									"query_text": query,
									"model_id":   modelID,
									"k":          size,
								},
							},
						},
					},
				},
			},
		}
	default:
		return nil, fmt.Errorf("unknown search mode %q", mode)
	}

	var resp searchResponse
	if err := g.client.getJSON(ctx, http.MethodGet, path, body, &resp); err != nil {
		return nil, fmt.Errorf("%s search: %w", mode, err)
	}

	hits := make([]Hit, 0, len(resp.Hits.Hits))
	for _, h := range resp.Hits.Hits {
		hits = append(hits, Hit{
			ID:    h.Source.ID,
			Name:  h.Source.Name,
			Text:  h.Source.Text,
			Score: h.Score,
		})
	}
	return hits, nil
}

// searchPipeline derives the hybrid search pipeline name from the ingest
// pipeline name so both are provisioned and addressed consistently.
func (g *Gateway) searchPipeline() string {
	return g.pipelineName + "-hybrid"
}
