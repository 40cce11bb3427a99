// Package repo talks to the content repository's change-tracking and
// content APIs. Two interchangeable change-detection strategies are
// provided: following the transaction log, or querying by modification
// date with on-demand text renditions.
package repo

import (
	"context"
	"time"
)

// ChangeKind classifies a repository mutation.
type ChangeKind string

const (
	// ChangeUpserted marks a created or updated document.
	ChangeUpserted ChangeKind = "upserted"
	// ChangeDeleted marks a removed document.
	ChangeDeleted ChangeKind = "deleted"
)

// ChangeRecord is one detected mutation since the last cursor.
type ChangeRecord struct {
	// EntityID identifies the document in the repository (node UUID).
	EntityID string
	// DBID is the repository-internal numeric id for the node.
	DBID int64
	// TxnID is the transaction that produced the change, when known.
	TxnID int64
	// Kind is the change classification.
	Kind ChangeKind
	// NodeType is the repository content type, used for allow-listing.
	NodeType string
	// Name is the display name, when the metadata carried one.
	Name string
}

// DocumentContent is the fetched text for an upserted record.
type DocumentContent struct {
	EntityID string
	Name     string
	Text     string
}

// Cursor is the sync watermark: how far change detection has progressed.
// Exactly one field is meaningful depending on the strategy. The zero
// value means "index everything".
type Cursor struct {
	// TxnID is the last fully processed transaction id.
	TxnID int64
	// SyncTime is the last fully processed modification instant.
	SyncTime time.Time
}

// IsZero reports whether the cursor still holds its epoch default.
func (c Cursor) IsZero() bool {
	return c.TxnID == 0 && c.SyncTime.IsZero()
}

// ChangeBatch is the result of one change poll.
type ChangeBatch struct {
	Records []ChangeRecord
	// NewCursor bounds the next poll. Only valid when the batch has been
	// fully indexed; callers must not persist it before that.
	NewCursor Cursor
	// HasMore hints that another poll right away would find more changes.
	HasMore bool
}

// ChangeSource detects repository changes past a cursor and fetches
// document content. Implementations must never skip a change (the cursor
// only moves past fully returned ranges) and must strictly bound the next
// query with the returned cursor.
type ChangeSource interface {
	// PollChanges returns the changes after cursor, up to one page.
	PollChanges(ctx context.Context, cursor Cursor) (*ChangeBatch, error)

	// FetchContent retrieves the text content for an upserted record.
	FetchContent(ctx context.Context, record ChangeRecord) (*DocumentContent, error)

	// Strategy names the change-detection strategy for logging.
	Strategy() string
}
