package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	errs "github.com/conexa-labs/searchsync/internal/errors"
)

// aftsTimeLayout is the timestamp form accepted in AFTS range clauses.
const aftsTimeLayout = "2006-01-02T15:04:05.000Z"

// ModifiedConfig configures the modified-date strategy.
type ModifiedConfig struct {
	// RootPath scopes the query to a folder subtree.
	RootPath string
	// PageSize is the search page size.
	PageSize int
	// RenditionPollDelay is the fixed delay between rendition polls.
	RenditionPollDelay time.Duration
}

// ModifiedSource detects changes by querying the repository's search API
// for documents modified since the cursor. It only sees creations and
// updates; deletions are invisible to this strategy. Content comes from
// the repository's text rendition, created on demand.
type ModifiedSource struct {
	client *Client
	cfg    ModifiedConfig
	logger *slog.Logger

	// now is swappable for tests.
	now func() time.Time
}

// NewModifiedSource creates a modified-date change source.
func NewModifiedSource(client *Client, cfg ModifiedConfig, logger *slog.Logger) *ModifiedSource {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 100
	}
	if cfg.RenditionPollDelay <= 0 {
		cfg.RenditionPollDelay = 5 * time.Second
	}
	if cfg.RootPath == "" {
		cfg.RootPath = "/app:company_home"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ModifiedSource{client: client, cfg: cfg, logger: logger, now: time.Now}
}

// Strategy implements ChangeSource.
func (s *ModifiedSource) Strategy() string { return "modified" }

type searchRequest struct {
	Query struct {
		Query    string `json:"query"`
		Language string `json:"language"`
	} `json:"query"`
	Paging struct {
		MaxItems  int `json:"maxItems"`
		SkipCount int `json:"skipCount"`
	} `json:"paging"`
	Sort []searchSort `json:"sort"`
}

type searchSort struct {
	Type      string `json:"type"`
	Field     string `json:"field"`
	Ascending bool   `json:"ascending"`
}

type repoSearchResponse struct {
	List struct {
		Pagination struct {
			HasMoreItems bool `json:"hasMoreItems"`
		} `json:"pagination"`
		Entries []struct {
			Entry struct {
				ID       string `json:"id"`
				Name     string `json:"name"`
				NodeType string `json:"nodeType"`
			} `json:"entry"`
		} `json:"entries"`
	} `json:"list"`
}

// PollChanges implements ChangeSource. It pages through every document
// under the root path modified in [cursor, poll start), sorted by id so
// paging is stable, and advances the cursor to the poll start only after
// the whole window has been returned.
func (s *ModifiedSource) PollChanges(ctx context.Context, cursor Cursor) (*ChangeBatch, error) {
	pollStart := s.now().UTC()
	from := cursor.SyncTime.UTC()

	query := fmt.Sprintf(`PATH:"%s//*" AND TYPE:"cm:content" AND cm:modified:['%s' TO '%s'>`,
		s.cfg.RootPath, from.Format(aftsTimeLayout), pollStart.Format(aftsTimeLayout))

	var records []ChangeRecord
	for skip := 0; ; skip += s.cfg.PageSize {
		page, hasMore, err := s.fetchPage(ctx, query, skip)
		if err != nil {
			return nil, err
		}
		records = append(records, page...)
		if !hasMore {
			break
		}
	}

	if len(records) > 0 {
		s.logger.Info("documents modified since last sync",
			slog.Int("count", len(records)),
			slog.Time("window_start", from),
			slog.Time("window_end", pollStart))
	}

	return &ChangeBatch{
		Records:   records,
		NewCursor: Cursor{TxnID: cursor.TxnID, SyncTime: pollStart},
		HasMore:   false,
	}, nil
}

func (s *ModifiedSource) fetchPage(ctx context.Context, query string, skip int) ([]ChangeRecord, bool, error) {
	var req searchRequest
	req.Query.Query = query
	req.Query.Language = "afts"
	req.Paging.MaxItems = s.cfg.PageSize
	req.Paging.SkipCount = skip
	req.Sort = []searchSort{{Type: "FIELD", Field: "id", Ascending: true}}

	data, err := s.client.searchPost(ctx, req)
	if err != nil {
		return nil, false, errs.Wrap(errs.ErrCodeRepoUnavailable, err)
	}
	var resp repoSearchResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, false, fmt.Errorf("decode search response: %w", err)
	}

	records := make([]ChangeRecord, 0, len(resp.List.Entries))
	for _, e := range resp.List.Entries {
		records = append(records, ChangeRecord{
			EntityID: e.Entry.ID,
			Kind:     ChangeUpserted,
			NodeType: e.Entry.NodeType,
			Name:     e.Entry.Name,
		})
	}
	return records, resp.List.Pagination.HasMoreItems, nil
}

type renditionResponse struct {
	Entry struct {
		Status string `json:"status"`
	} `json:"entry"`
}

// FetchContent implements ChangeSource. It ensures the text rendition
// exists, requesting its creation if needed and polling on a fixed delay
// until the repository has produced it, then downloads the rendered text.
// Rendering large documents can take a while; the wait is bounded only by
// the caller's context.
func (s *ModifiedSource) FetchContent(ctx context.Context, record ChangeRecord) (*DocumentContent, error) {
	created, err := s.renditionCreated(ctx, record.EntityID)
	if err != nil {
		return nil, err
	}
	if !created {
		s.requestRendition(ctx, record.EntityID)
		for !created {
			select {
			case <-ctx.Done():
				return nil, errs.Wrap(errs.ErrCodeRenditionPending, ctx.Err()).
					WithDetail("entity_id", record.EntityID)
			case <-time.After(s.cfg.RenditionPollDelay):
			}
			created, err = s.renditionCreated(ctx, record.EntityID)
			if err != nil {
				return nil, err
			}
		}
	}

	data, err := s.client.publicGet(ctx, fmt.Sprintf("/nodes/%s/renditions/text/content", record.EntityID))
	if err != nil {
		return nil, errs.Wrap(errs.ErrCodeContentUnavailable, err).
			WithDetail("entity_id", record.EntityID)
	}
	return &DocumentContent{
		EntityID: record.EntityID,
		Name:     record.Name,
		Text:     string(data),
	}, nil
}

func (s *ModifiedSource) renditionCreated(ctx context.Context, entityID string) (bool, error) {
	data, err := s.client.publicGet(ctx, fmt.Sprintf("/nodes/%s/renditions/text", entityID))
	if err != nil {
		return false, errs.Wrap(errs.ErrCodeRepoUnavailable, err)
	}
	var resp renditionResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return false, fmt.Errorf("decode rendition status: %w", err)
	}
	return resp.Entry.Status == "CREATED", nil
}

// requestRendition asks the repository to render the text rendition. A
// conflict means rendering is already underway, so failures here only log.
func (s *ModifiedSource) requestRendition(ctx context.Context, entityID string) {
	body := map[string]any{"id": "text"}
	if _, err := s.client.publicPost(ctx, fmt.Sprintf("/nodes/%s/renditions", entityID), body); err != nil {
		s.logger.Debug("rendition request not accepted",
			slog.String("entity_id", entityID),
			slog.String("error", err.Error()))
	}
}
