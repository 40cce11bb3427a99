package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	errs "github.com/conexa-labs/searchsync/internal/errors"
)

// Content model property names carried in node metadata.
const (
	propName            = "{http://www.alfresco.org/model/content/1.0}name"
	propStoreIdentifier = "{http://www.alfresco.org/model/system/1.0}store-identifier"

	// liveStore marks the store holding live content. Archived and
	// versioned copies live in other stores and are never indexed.
	liveStore = "SpacesStore"
)

// TxnLogConfig configures the transaction-log strategy.
type TxnLogConfig struct {
	// IndexableTypes is the node-type allow-list for upserts.
	IndexableTypes []string
	// MaxResults caps one transaction page.
	MaxResults int
}

// TxnLogSource detects changes by following the repository's transaction
// log through its tracking API, the same feed the repository's own index
// trackers consume.
type TxnLogSource struct {
	client *Client
	cfg    TxnLogConfig
	logger *slog.Logger
}

// NewTxnLogSource creates a transaction-log change source.
func NewTxnLogSource(client *Client, cfg TxnLogConfig, logger *slog.Logger) *TxnLogSource {
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 100
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TxnLogSource{client: client, cfg: cfg, logger: logger}
}

// Strategy implements ChangeSource.
func (s *TxnLogSource) Strategy() string { return "transactions" }

type transactionsResponse struct {
	Transactions []struct {
		ID int64 `json:"id"`
	} `json:"transactions"`
	MaxTxnID int64 `json:"maxTxnId"`
}

type nodesResponse struct {
	Nodes []trackedNode `json:"nodes"`
}

type trackedNode struct {
	ID      int64  `json:"id"`
	NodeRef string `json:"nodeRef"`
	TxnID   int64  `json:"txnId"`
	Status  string `json:"status"`
}

type metadataResponse struct {
	Nodes []nodeMetadata `json:"nodes"`
}

type nodeMetadata struct {
	ID         int64          `json:"id"`
	NodeRef    string         `json:"nodeRef"`
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties"`
}

// PollChanges implements ChangeSource. One poll covers one transaction
// page: it lists transactions past the cursor, fetches the touched nodes
// for the observed id range, classifies them, and filters upserts down to
// live, indexable nodes.
func (s *TxnLogSource) PollChanges(ctx context.Context, cursor Cursor) (*ChangeBatch, error) {
	fromTxnID := cursor.TxnID + 1

	endpoint := fmt.Sprintf("transactions?minTxnId=%d&maxResults=%d", fromTxnID, s.cfg.MaxResults)
	data, err := s.client.trackingGet(ctx, endpoint)
	if err != nil {
		return nil, errs.Wrap(errs.ErrCodeRepoUnavailable, err)
	}
	var txns transactionsResponse
	if err := json.Unmarshal(data, &txns); err != nil {
		return nil, fmt.Errorf("decode transactions: %w", err)
	}

	if len(txns.Transactions) == 0 {
		s.logger.Debug("transaction log fully indexed",
			slog.Int64("cursor_txn", cursor.TxnID),
			slog.Int64("repository_max_txn", txns.MaxTxnID))
		return &ChangeBatch{NewCursor: cursor}, nil
	}

	minTxn, maxTxn := txns.Transactions[0].ID, txns.Transactions[0].ID
	for _, t := range txns.Transactions[1:] {
		if t.ID < minTxn {
			minTxn = t.ID
		}
		if t.ID > maxTxn {
			maxTxn = t.ID
		}
	}
	s.logger.Info("processing transaction range",
		slog.Int64("from_txn", minTxn),
		slog.Int64("to_txn", maxTxn))

	nodes, err := s.fetchNodes(ctx, minTxn, maxTxn)
	if err != nil {
		return nil, err
	}

	records, err := s.classify(ctx, nodes)
	if err != nil {
		return nil, err
	}

	return &ChangeBatch{
		Records:   records,
		NewCursor: Cursor{TxnID: maxTxn, SyncTime: cursor.SyncTime},
		HasMore:   true,
	}, nil
}

func (s *TxnLogSource) fetchNodes(ctx context.Context, fromTxn, toTxn int64) ([]trackedNode, error) {
	body := map[string]any{"fromTxnId": fromTxn, "toTxnId": toTxn}
	data, err := s.client.trackingPost(ctx, "nodes", body)
	if err != nil {
		return nil, errs.Wrap(errs.ErrCodeRepoUnavailable, err)
	}
	var resp nodesResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("decode nodes: %w", err)
	}
	return resp.Nodes, nil
}

// classify turns tracked nodes into change records. Updated nodes need a
// metadata fetch for type filtering and naming; deleted nodes carry only
// their numeric id, their UUID is gone with them.
func (s *TxnLogSource) classify(ctx context.Context, nodes []trackedNode) ([]ChangeRecord, error) {
	var records []ChangeRecord
	var updatedIDs []int64
	updatedTxn := make(map[int64]int64, len(nodes))

	for _, node := range nodes {
		switch node.Status {
		case "u":
			updatedIDs = append(updatedIDs, node.ID)
			updatedTxn[node.ID] = node.TxnID
		case "d":
			records = append(records, ChangeRecord{
				DBID:  node.ID,
				TxnID: node.TxnID,
				Kind:  ChangeDeleted,
			})
		default:
			return nil, errs.New(errs.ErrCodeUnknownChangeKind,
				fmt.Sprintf("node %d has unknown status %q", node.ID, node.Status), nil)
		}
	}

	if len(updatedIDs) == 0 {
		return records, nil
	}

	metadata, err := s.fetchMetadata(ctx, updatedIDs)
	if err != nil {
		return nil, err
	}
	for _, meta := range metadata {
		if !s.indexable(meta.Type) {
			continue
		}
		if stringProp(meta.Properties, propStoreIdentifier) != liveStore {
			continue
		}
		uuid, err := uuidFromNodeRef(meta.NodeRef)
		if err != nil {
			return nil, errs.Wrap(errs.ErrCodeInvalidInput, err)
		}
		records = append(records, ChangeRecord{
			EntityID: uuid,
			DBID:     meta.ID,
			TxnID:    updatedTxn[meta.ID],
			Kind:     ChangeUpserted,
			NodeType: meta.Type,
			Name:     stringProp(meta.Properties, propName),
		})
	}
	return records, nil
}

func (s *TxnLogSource) fetchMetadata(ctx context.Context, nodeIDs []int64) ([]nodeMetadata, error) {
	body := map[string]any{
		"nodeIds":                   nodeIDs,
		"includeAclId":              false,
		"includeOwner":              false,
		"includePaths":              false,
		"includeParentAssociations": false,
		"includeChildIds":           false,
		"includeChildAssociations":  false,
	}
	data, err := s.client.trackingPost(ctx, "metadata", body)
	if err != nil {
		return nil, errs.Wrap(errs.ErrCodeRepoUnavailable, err)
	}
	var resp metadataResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	return resp.Nodes, nil
}

// FetchContent implements ChangeSource. Text extraction happens
// repository-side; the tracking API serves the extracted plain text.
func (s *TxnLogSource) FetchContent(ctx context.Context, record ChangeRecord) (*DocumentContent, error) {
	data, err := s.client.trackingGet(ctx, fmt.Sprintf("textContent?nodeId=%d", record.DBID))
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

func (s *TxnLogSource) indexable(nodeType string) bool {
	for _, t := range s.cfg.IndexableTypes {
		if t == nodeType {
			return true
		}
	}
	return false
}

// uuidFromNodeRef extracts the node UUID from a reference like
// "workspace://SpacesStore/<uuid>".
func uuidFromNodeRef(nodeRef string) (string, error) {
	idx := strings.LastIndex(nodeRef, "/")
	if idx < 0 || idx == len(nodeRef)-1 {
		return "", fmt.Errorf("invalid node reference %q", nodeRef)
	}
	return nodeRef[idx+1:], nil
}

func stringProp(props map[string]any, key string) string {
	if v, ok := props[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
		return fmt.Sprint(v)
	}
	return ""
}
