package repo

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "github.com/conexa-labs/searchsync/internal/errors"
)

const contentType = "{http://www.alfresco.org/model/content/1.0}content"

func newTestRepoClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewClient(ClientConfig{
		URL:          srv.URL,
		Username:     "admin",
		Password:     "admin",
		SecretHeader: "X-Alfresco-Search-Secret",
		Secret:       "topsecret",
		Timeout:      5 * time.Second,
	})
	t.Cleanup(c.Close)
	return c
}

func newTxnSource(t *testing.T, handler http.Handler) *TxnLogSource {
	t.Helper()
	return NewTxnLogSource(newTestRepoClient(t, handler), TxnLogConfig{
		IndexableTypes: []string{contentType},
		MaxResults:     100,
	}, nil)
}

func TestTxnLogSendsSecretHeader(t *testing.T) {
	var gotSecret string
	src := newTxnSource(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSecret = r.Header.Get("X-Alfresco-Search-Secret")
		w.Write([]byte(`{"transactions": [], "maxTxnId": 10}`))
	}))

	_, err := src.PollChanges(context.Background(), Cursor{TxnID: 10})
	require.NoError(t, err)
	assert.Equal(t, "topsecret", gotSecret)
}

func TestTxnLogEmptyPageKeepsCursor(t *testing.T) {
	var gotQuery string
	src := newTxnSource(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Write([]byte(`{"transactions": [], "maxTxnId": 42}`))
	}))

	batch, err := src.PollChanges(context.Background(), Cursor{TxnID: 42})
	require.NoError(t, err)
	assert.Empty(t, batch.Records)
	assert.Equal(t, int64(42), batch.NewCursor.TxnID)
	assert.False(t, batch.HasMore)
	assert.Equal(t, "minTxnId=43&maxResults=100", gotQuery)
}

func txnLogFixture(t *testing.T) http.Handler {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /alfresco/service/api/solr/transactions", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"transactions": [{"id": 7}, {"id": 5}, {"id": 6}], "maxTxnId": 7}`))
	})
	mux.HandleFunc("POST /alfresco/service/api/solr/nodes", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, float64(5), body["fromTxnId"])
		assert.Equal(t, float64(7), body["toTxnId"])
		w.Write([]byte(`{"nodes": [
			{"id": 101, "nodeRef": "workspace://SpacesStore/aaa-111", "txnId": 5, "status": "u"},
			{"id": 102, "nodeRef": "workspace://SpacesStore/bbb-222", "txnId": 6, "status": "u"},
			{"id": 103, "nodeRef": "workspace://SpacesStore/ccc-333", "txnId": 6, "status": "u"},
			{"id": 104, "nodeRef": "workspace://SpacesStore/ddd-444", "txnId": 7, "status": "u"},
			{"id": 105, "txnId": 7, "status": "d"}
		]}`))
	})
	mux.HandleFunc("POST /alfresco/service/api/solr/metadata", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Len(t, body["nodeIds"], 4)
		w.Write([]byte(`{"nodes": [
			{"id": 101, "nodeRef": "workspace://SpacesStore/aaa-111",
			 "type": "` + contentType + `",
			 "properties": {
			   "{http://www.alfresco.org/model/content/1.0}name": "report.pdf",
			   "{http://www.alfresco.org/model/system/1.0}store-identifier": "SpacesStore"}},
			{"id": 102, "nodeRef": "workspace://SpacesStore/bbb-222",
			 "type": "{http://www.alfresco.org/model/content/1.0}folder",
			 "properties": {
			   "{http://www.alfresco.org/model/content/1.0}name": "Folder",
			   "{http://www.alfresco.org/model/system/1.0}store-identifier": "SpacesStore"}},
			{"id": 103, "nodeRef": "archive://SpacesStore/ccc-333",
			 "type": "` + contentType + `",
			 "properties": {
			   "{http://www.alfresco.org/model/content/1.0}name": "old.pdf",
			   "{http://www.alfresco.org/model/system/1.0}store-identifier": "ArchiveStore"}},
			{"id": 104, "nodeRef": "workspace://SpacesStore/ddd-444",
			 "type": "` + contentType + `",
			 "properties": {
			   "{http://www.alfresco.org/model/content/1.0}name": "notes.txt",
			   "{http://www.alfresco.org/model/system/1.0}store-identifier": "SpacesStore"}}
		]}`))
	})
	return mux
}

func TestTxnLogClassifiesAndFilters(t *testing.T) {
	src := newTxnSource(t, txnLogFixture(t))

	batch, err := src.PollChanges(context.Background(), Cursor{TxnID: 4})
	require.NoError(t, err)

	assert.Equal(t, int64(7), batch.NewCursor.TxnID, "cursor moves to max txn seen")
	assert.True(t, batch.HasMore)

	var upserted, deleted []ChangeRecord
	for _, r := range batch.Records {
		switch r.Kind {
		case ChangeUpserted:
			upserted = append(upserted, r)
		case ChangeDeleted:
			deleted = append(deleted, r)
		}
	}

	// Folder type and archived copy are filtered out.
	require.Len(t, upserted, 2)
	assert.Equal(t, "aaa-111", upserted[0].EntityID)
	assert.Equal(t, "report.pdf", upserted[0].Name)
	assert.Equal(t, int64(101), upserted[0].DBID)
	assert.Equal(t, int64(5), upserted[0].TxnID)
	assert.Equal(t, "ddd-444", upserted[1].EntityID)

	require.Len(t, deleted, 1)
	assert.Equal(t, int64(105), deleted[0].DBID)
	assert.Empty(t, deleted[0].EntityID, "deleted nodes carry no UUID")
}

func TestTxnLogUnknownStatusAbortsBatch(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /alfresco/service/api/solr/transactions", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"transactions": [{"id": 3}], "maxTxnId": 3}`))
	})
	mux.HandleFunc("POST /alfresco/service/api/solr/nodes", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"nodes": [{"id": 9, "txnId": 3, "status": "x"}]}`))
	})
	src := newTxnSource(t, mux)

	_, err := src.PollChanges(context.Background(), Cursor{})
	require.Error(t, err)
	assert.Equal(t, errs.ErrCodeUnknownChangeKind, errs.GetCode(err))
}

func TestTxnLogFetchContent(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /alfresco/service/api/solr/textContent", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "314", r.URL.Query().Get("nodeId"))
		w.Write([]byte("extracted plain text"))
	})
	src := newTxnSource(t, mux)

	content, err := src.FetchContent(context.Background(), ChangeRecord{
		EntityID: "aaa-111", DBID: 314, Name: "report.pdf", Kind: ChangeUpserted,
	})
	require.NoError(t, err)
	assert.Equal(t, "aaa-111", content.EntityID)
	assert.Equal(t, "report.pdf", content.Name)
	assert.Equal(t, "extracted plain text", content.Text)
}

func TestUUIDFromNodeRef(t *testing.T) {
	uuid, err := uuidFromNodeRef("workspace://SpacesStore/abc-def-123")
	require.NoError(t, err)
	assert.Equal(t, "abc-def-123", uuid)

	_, err = uuidFromNodeRef("garbage")
	assert.Error(t, err)
	_, err = uuidFromNodeRef("workspace://SpacesStore/")
	assert.Error(t, err)
}
