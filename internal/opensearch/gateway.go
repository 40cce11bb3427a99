package opensearch

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/conexa-labs/searchsync/internal/segment"
)

// Gateway exposes the typed index operations the sync pipeline needs.
// Every write is idempotent: segments are upserted under deterministic
// ids and delete-by-query can be replayed freely.
type Gateway struct {
	client       *Client
	indexName    string
	controlIndex string
	pipelineName string
	logger       *slog.Logger
}

// NewGateway creates a gateway for the given index names.
func NewGateway(client *Client, indexName, controlIndex, pipelineName string, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		client:       client,
		indexName:    indexName,
		controlIndex: controlIndex,
		pipelineName: pipelineName,
		logger:       logger,
	}
}

// IndexName returns the content index name.
func (g *Gateway) IndexName() string { return g.indexName }

// IndexExists checks whether the content index exists.
func (g *Gateway) IndexExists(ctx context.Context) (bool, error) {
	_, err := g.client.do(ctx, http.MethodHead, "/"+g.indexName, nil)
	if err != nil {
		if IsStatus(err, http.StatusNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// CreateIndex creates the KNN content index bound to the ingest pipeline.
// Fails if the index already exists; callers check IndexExists first.
func (g *Gateway) CreateIndex(ctx context.Context) error {
	body := map[string]any{
		"settings": map[string]any{
			"index.knn":        true,
			"default_pipeline": g.pipelineName,
		},
		"mappings": map[string]any{
			"properties": map[string]any{
				"id": map[string]any{"type": "text"},
				"passage_embedding": map[string]any{
					"type":      "knn_vector",
					"dimension": 768,
					"method": map[string]any{
						"engine":     "lucene",
						"space_type": "l2",
						"name":       "hnsw",
						"parameters": map[string]any{},
					},
				},
				"text": map[string]any{"type": "text"},
			},
		},
	}
	if err := g.client.getJSON(ctx, http.MethodPut, "/"+g.indexName, body, nil); err != nil {
		return fmt.Errorf("create index %s: %w", g.indexName, err)
	}
	g.logger.Info("index created with knn configuration",
		slog.String("index", g.indexName),
		slog.String("pipeline", g.pipelineName))
	return nil
}

// CreateControlIndex creates the control index holding the sync cursor.
func (g *Gateway) CreateControlIndex(ctx context.Context) error {
	body := map[string]any{
		"mappings": map[string]any{
			"properties": map[string]any{
				"lastSyncTime":      map[string]any{"type": "text"},
				"lastTransactionId": map[string]any{"type": "long"},
			},
		},
	}
	if err := g.client.getJSON(ctx, http.MethodPut, "/"+g.controlIndex, body, nil); err != nil {
		return fmt.Errorf("create control index %s: %w", g.controlIndex, err)
	}
	g.logger.Info("control index created", slog.String("index", g.controlIndex))
	return nil
}

// UpsertSegment indexes one segment under its deterministic id. Transport
// and engine errors are logged, not returned: a single failing segment
// must not abort the batch it belongs to.
func (g *Gateway) UpsertSegment(ctx context.Context, seg segment.Segment, dbid int64, name string) {
	if seg.Text == "" {
		return
	}
	body := indexedDocument{
		ID:   seg.ID,
		DBID: dbid,
		Name: name,
		Text: seg.Text,
	}
	path := fmt.Sprintf("/%s/_doc/%s", g.indexName, url.PathEscape(seg.ID))
	if err := g.client.getJSON(ctx, http.MethodPut, path, body, nil); err != nil {
		g.logger.Warn("segment not indexed",
			slog.String("segment_id", seg.ID),
			slog.String("error", err.Error()))
		g.logger.Debug("rejected segment payload",
			slog.String("segment_id", seg.ID),
			slog.String("name", name),
			slog.String("text", seg.Text))
	}
}

// DeleteByEntityPrefix removes every segment belonging to the entity
// (ids "<entityID>_0", "<entityID>_1", ...). Returns the number of
// matching segments found before deletion; zero matches is not an error.
func (g *Gateway) DeleteByEntityPrefix(ctx context.Context, entityID string) (int, error) {
	return g.deleteByMatch(ctx, "id", entityID+"_*")
}

// DeleteByDBID removes every segment belonging to the node with the given
// repository-internal id. Deleted nodes no longer expose their UUID, so
// transaction-log deletes key on dbid.
func (g *Gateway) DeleteByDBID(ctx context.Context, dbid int64) (int, error) {
	return g.deleteByMatch(ctx, "dbid", fmt.Sprintf("%d", dbid))
}

// deleteByMatch searches for matching segments first and only issues the
// delete-by-query when something matched, mirroring the engine's
// preference for cheap reads over speculative deletes.
func (g *Gateway) deleteByMatch(ctx context.Context, field, value string) (int, error) {
	query := map[string]any{
		"query": map[string]any{
			"match": map[string]any{field: value},
		},
	}

	var result searchResponse
	if err := g.client.getJSON(ctx, http.MethodGet, "/"+g.indexName+"/_search", query, &result); err != nil {
		return 0, fmt.Errorf("search %s=%s: %w", field, value, err)
	}

	total := result.Hits.Total.Value
	if total == 0 {
		return 0, nil
	}

	if err := g.client.getJSON(ctx, http.MethodPost, "/"+g.indexName+"/_delete_by_query", query, nil); err != nil {
		return 0, fmt.Errorf("delete by query %s=%s: %w", field, value, err)
	}

	g.logger.Debug("segments deleted",
		slog.String("field", field),
		slog.String("value", value),
		slog.Int("matched", total))
	return total, nil
}

// VerifyProbe indexes a throwaway document and deletes it again. Used
// after model deployment to confirm the ingest pipeline is authorized to
// invoke the model; a 403 here means access control is still propagating.
func (g *Gateway) VerifyProbe(ctx context.Context) error {
	probe := indexedDocument{ID: "verify_0", DBID: 1, Name: "verify", Text: "verify"}
	path := fmt.Sprintf("/%s/_doc/%s", g.indexName, probe.ID)
	if err := g.client.getJSON(ctx, http.MethodPut, path, probe, nil); err != nil {
		return fmt.Errorf("verification write: %w", err)
	}

	query := map[string]any{
		"query": map[string]any{
			"match": map[string]any{"id": probe.ID},
		},
	}
	if err := g.client.getJSON(ctx, http.MethodPost, "/"+g.indexName+"/_delete_by_query", query, nil); err != nil {
		return fmt.Errorf("verification delete: %w", err)
	}
	return nil
}
