package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, StrategyTransactions, cfg.Repository.Strategy)
	assert.Equal(t, 512, cfg.Indexer.MaxSegmentChars)
	assert.Equal(t, 10, cfg.OpenSearch.TaskPollAttempts)
	assert.Equal(t, 10*time.Second, cfg.OpenSearch.TaskPollInterval.Std())
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "searchsync.yaml")
	content := `
opensearch:
  url: https://search.example.com:9200
  index_name: docs
repository:
  strategy: modified
  page_size: 25
indexer:
  interval: 1m
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://search.example.com:9200", cfg.OpenSearch.URL)
	assert.Equal(t, "docs", cfg.OpenSearch.IndexName)
	assert.Equal(t, StrategyModified, cfg.Repository.Strategy)
	assert.Equal(t, 25, cfg.Repository.PageSize)
	assert.Equal(t, time.Minute, cfg.Indexer.Interval.Std())

	// Untouched fields keep their defaults.
	assert.Equal(t, "nlp-pipeline", cfg.OpenSearch.PipelineName)
	assert.Equal(t, 100, cfg.Repository.MaxResults)
}

func TestLoadTLSVerificationToggle(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "searchsync.yaml")
	content := "opensearch:\n  insecure_skip_verify: false\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.False(t, cfg.OpenSearch.InsecureSkipVerify)

	// Self-signed dev clusters are the default deployment target.
	assert.True(t, DefaultConfig().OpenSearch.InsecureSkipVerify)
}

func TestLoadRejectsBadDuration(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "searchsync.yaml")
	require.NoError(t, os.WriteFile(path, []byte("indexer:\n  interval: fast\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse duration")
}

func TestLoadMissingExplicitFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SEARCHSYNC_OPENSEARCH_URL", "https://env-host:9200")
	t.Setenv("SEARCHSYNC_REPO_PASSWORD", "s3cret")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "https://env-host:9200", cfg.OpenSearch.URL)
	assert.Equal(t, "s3cret", cfg.Repository.Password)
}

func TestValidateRejectsBadStrategy(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Repository.Strategy = "polling"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "repository.strategy")
}

func TestValidateRejectsBadMode(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.DefaultMode = "fuzzy"
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsZeroSegmentBudget(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Indexer.MaxSegmentChars = 0
	require.Error(t, cfg.Validate())
}

func TestControlIndexNameDefault(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "neural-index-control", cfg.OpenSearch.ControlIndexName())

	cfg.OpenSearch.ControlIndex = "sync-control"
	assert.Equal(t, "sync-control", cfg.OpenSearch.ControlIndexName())
}

func TestRedactedMasksSecrets(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Repository.Secret = "topsecret"

	red := cfg.Redacted()
	assert.NotContains(t, red.Repository.Secret, "topsecret")
	assert.NotEqual(t, "", red.OpenSearch.Password)
	// Original untouched.
	assert.Equal(t, "topsecret", cfg.Repository.Secret)
}
