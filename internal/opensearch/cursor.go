package opensearch

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/conexa-labs/searchsync/internal/repo"
)

// cursorDocID: the control index holds exactly one document.
const cursorDocID = "1"

// syncTimeLayout matches the millisecond ISO-8601 form the engine stores.
const syncTimeLayout = "2006-01-02T15:04:05.000Z"

// epochSyncTime is the cursor default when nothing was ever synced.
var epochSyncTime = time.Unix(0, 0).UTC()

// ReadCursor loads the sync watermark from the control index. A missing
// document means no sync has ever completed and yields the epoch cursor,
// which makes the first poll pick up everything.
func (g *Gateway) ReadCursor(ctx context.Context) (repo.Cursor, error) {
	var doc getDocResponse
	path := fmt.Sprintf("/%s/_doc/%s", g.controlIndex, cursorDocID)
	if err := g.client.getJSON(ctx, http.MethodGet, path, nil, &doc); err != nil {
		if IsStatus(err, http.StatusNotFound) {
			g.logger.Debug("no cursor stored, starting from epoch")
			return repo.Cursor{SyncTime: epochSyncTime}, nil
		}
		return repo.Cursor{}, fmt.Errorf("read cursor: %w", err)
	}

	cursor := repo.Cursor{TxnID: doc.Source.LastTransactionID}
	if doc.Source.LastSyncTime != "" {
		t, err := time.Parse(syncTimeLayout, doc.Source.LastSyncTime)
		if err != nil {
			return repo.Cursor{}, fmt.Errorf("parse stored sync time %q: %w", doc.Source.LastSyncTime, err)
		}
		cursor.SyncTime = t
	} else {
		cursor.SyncTime = epochSyncTime
	}
	return cursor, nil
}

// WriteCursor persists the watermark after a fully indexed batch. Both
// fields are written so switching strategies later starts from a sane
// point instead of a partial document.
func (g *Gateway) WriteCursor(ctx context.Context, cursor repo.Cursor) error {
	syncTime := cursor.SyncTime
	if syncTime.IsZero() {
		syncTime = epochSyncTime
	}
	doc := cursorDocument{
		LastSyncTime:      syncTime.UTC().Format(syncTimeLayout),
		LastTransactionID: cursor.TxnID,
	}
	path := fmt.Sprintf("/%s/_doc/%s", g.controlIndex, cursorDocID)
	if err := g.client.getJSON(ctx, http.MethodPut, path, doc, nil); err != nil {
		return fmt.Errorf("write cursor: %w", err)
	}
	g.logger.Debug("cursor advanced",
		slog.Int64("txn_id", cursor.TxnID),
		slog.String("sync_time", doc.LastSyncTime))
	return nil
}
