package opensearch

// indexedDocument is the body stored for each segment. passage_embedding
// is added by the ingest pipeline, never sent by us.
type indexedDocument struct {
	ID   string `json:"id"`
	DBID int64  `json:"dbid"`
	Name string `json:"name"`
	Text string `json:"text"`
}

// cursorDocument is the single control-index document tracking sync
// progress. Exactly one field is populated depending on the strategy.
type cursorDocument struct {
	LastSyncTime      string `json:"lastSyncTime"`
	LastTransactionID int64  `json:"lastTransactionId"`
}

// searchResponse is the subset of the engine's search envelope we decode.
type searchResponse struct {
	Hits struct {
		Total struct {
			Value int `json:"value"`
		} `json:"total"`
		Hits []searchHit `json:"hits"`
	} `json:"hits"`
}

type searchHit struct {
	Score  float64         `json:"_score"`
	Source indexedDocument `json:"_source"`
}

// getDocResponse wraps a single-document GET.
type getDocResponse struct {
	Found  bool           `json:"found"`
	Source cursorDocument `json:"_source"`
}

// registerResponse covers model-group and model registration replies.
type registerResponse struct {
	ModelGroupID string `json:"model_group_id"`
	TaskID       string `json:"task_id"`
	Status       string `json:"status"`
}

// taskResponse is the ML task status envelope.
type taskResponse struct {
	ModelID string `json:"model_id"`
	State   string `json:"state"`
	Error   string `json:"error"`
}

// mlSearchResponse decodes _search over the ML plugin's model and
// model-group registries, used for the idempotent fast path.
type mlSearchResponse struct {
	Hits struct {
		Hits []struct {
			ID     string `json:"_id"`
			Source struct {
				Name       string `json:"name"`
				ModelState string `json:"model_state"`
			} `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}
