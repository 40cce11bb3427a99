// Package config loads and validates searchsync configuration.
//
// Configuration is resolved in three layers, later layers winning:
//  1. Built-in defaults (DefaultConfig)
//  2. YAML file (searchsync.yaml, or the --config flag)
//  3. Environment variables (SEARCHSYNC_*)
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML files can use readable values
// like "30s" or "5m". yaml.v3 only decodes integer nanoseconds into
// time.Duration natively.
type Duration time.Duration

// Std returns the standard library representation.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

// UnmarshalYAML decodes a duration string such as "10s" or "1h30m".
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	v, err := time.ParseDuration(node.Value)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", node.Value, err)
	}
	*d = Duration(v)
	return nil
}

// MarshalYAML renders the duration back as a string.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Strategy selects how changes are detected in the content repository.
type Strategy string

const (
	// StrategyTransactions follows the repository transaction log.
	StrategyTransactions Strategy = "transactions"
	// StrategyModified queries documents by modification date and uses
	// text renditions for content extraction.
	StrategyModified Strategy = "modified"
)

// Config is the complete searchsync configuration.
type Config struct {
	DataDir    string           `yaml:"data_dir"`
	OpenSearch OpenSearchConfig `yaml:"opensearch"`
	Repository RepositoryConfig `yaml:"repository"`
	Indexer    IndexerConfig    `yaml:"indexer"`
	Server     ServerConfig     `yaml:"server"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// OpenSearchConfig configures the search engine connection and the
// resources provisioned on it.
type OpenSearchConfig struct {
	URL      string `yaml:"url"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`

	// InsecureSkipVerify disables TLS certificate verification, for
	// clusters running on self-signed certificates.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`

	IndexName      string `yaml:"index_name"`
	ControlIndex   string `yaml:"control_index"`
	PipelineName   string `yaml:"pipeline_name"`
	ModelName      string `yaml:"model_name"`
	ModelGroupName string `yaml:"model_group_name"`

	RequestTimeout Duration `yaml:"request_timeout"`

	// Remote task polling for model registration and deployment.
	TaskPollInterval Duration `yaml:"task_poll_interval"`
	TaskPollAttempts int      `yaml:"task_poll_attempts"`

	// Verification probe after model deployment. The probe retries on
	// 403 while model access control propagates.
	VerifyAttempts int      `yaml:"verify_attempts"`
	VerifyDelay    Duration `yaml:"verify_delay"`

	// ProvisionTimeout bounds the whole provisioning run, including
	// readiness waiters.
	ProvisionTimeout Duration `yaml:"provision_timeout"`
}

// RepositoryConfig configures the content-repository connection and the
// change-detection strategy.
type RepositoryConfig struct {
	URL      string `yaml:"url"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`

	// SecretHeader and Secret authenticate calls to the repository's
	// tracking API.
	SecretHeader string `yaml:"secret_header"`
	Secret       string `yaml:"secret"`

	Strategy Strategy `yaml:"strategy"`

	// IndexableTypes is the allow-list of node types worth indexing.
	IndexableTypes []string `yaml:"indexable_types"`

	// MaxResults caps one transaction-log page.
	MaxResults int `yaml:"max_results"`

	// PageSize caps one modified-date query page.
	PageSize int `yaml:"page_size"`

	// RootPath scopes the modified-date strategy to a folder subtree.
	RootPath string `yaml:"root_path"`

	// RenditionPollDelay is the fixed delay between rendition-status polls.
	RenditionPollDelay Duration `yaml:"rendition_poll_delay"`

	RequestTimeout Duration `yaml:"request_timeout"`
}

// IndexerConfig configures the sync loop.
type IndexerConfig struct {
	// Interval is the scheduler cadence for sync runs.
	Interval Duration `yaml:"interval"`

	// MaxSegmentChars is the greedy segment budget. The embedding model
	// truncates past 512 tokens, so segments are bounded to 512
	// characters of whitespace-joined tokens.
	MaxSegmentChars int `yaml:"max_segment_chars"`

	// Workers bounds the segment-upsert worker pool.
	Workers int `yaml:"workers"`

	// DocumentWorkers bounds concurrent per-document processing.
	DocumentWorkers int `yaml:"document_workers"`

	// Background delete retries for eventual consistency.
	DeleteRetryAttempts int      `yaml:"delete_retry_attempts"`
	DeleteRetryDelay    Duration `yaml:"delete_retry_delay"`
}

// ServerConfig configures the query-facing HTTP API.
type ServerConfig struct {
	Addr        string `yaml:"addr"`
	DefaultMode string `yaml:"default_mode"`
	ResultSize  int    `yaml:"result_size"`
	CacheSize   int    `yaml:"cache_size"`
	CORSEnabled bool   `yaml:"cors_enabled"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level     string `yaml:"level"`
	FilePath  string `yaml:"file_path"`
	MaxSizeMB int    `yaml:"max_size_mb"`
	MaxFiles  int    `yaml:"max_files"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		DataDir: defaultDataDir(),
		OpenSearch: OpenSearchConfig{
			URL:                "https://localhost:9200",
			Username:           "admin",
			Password:           "admin",
			InsecureSkipVerify: true,
			IndexName:          "neural-index",
			PipelineName:       "nlp-pipeline",
			ModelName:          "huggingface/sentence-transformers/msmarco-distilbert-base-tas-b",
			ModelGroupName:     "NLP_model_group",
			RequestTimeout:     Duration(30 * time.Second),
			TaskPollInterval:   Duration(10 * time.Second),
			TaskPollAttempts:   10,
			VerifyAttempts:     5,
			VerifyDelay:        Duration(5 * time.Second),
			ProvisionTimeout:   Duration(15 * time.Minute),
		},
		Repository: RepositoryConfig{
			URL:                "http://localhost:8080",
			Username:           "admin",
			Password:           "admin",
			SecretHeader:       "X-Alfresco-Search-Secret",
			Strategy:           StrategyTransactions,
			IndexableTypes:     []string{"{http://www.alfresco.org/model/content/1.0}content"},
			MaxResults:         100,
			PageSize:           100,
			RootPath:           "/app:company_home",
			RenditionPollDelay: Duration(5 * time.Second),
			RequestTimeout:     Duration(30 * time.Second),
		},
		Indexer: IndexerConfig{
			Interval:            Duration(30 * time.Second),
			MaxSegmentChars:     512,
			Workers:             4,
			DocumentWorkers:     2,
			DeleteRetryAttempts: 3,
			DeleteRetryDelay:    Duration(10 * time.Second),
		},
		Server: ServerConfig{
			Addr:        ":8081",
			DefaultMode: "neural",
			ResultSize:  5,
			CacheSize:   128,
		},
		Logging: LoggingConfig{
			Level:     "info",
			MaxSizeMB: 10,
			MaxFiles:  5,
		},
	}
}

// Load reads configuration from the given YAML file, layered over defaults
// and finished with environment overrides. An empty path loads defaults and
// environment only; a missing explicit path is an error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides selected fields from SEARCHSYNC_* environment
// variables. Only connection settings are overridable; tuning knobs live in
// the file.
func (c *Config) applyEnv() {
	if v := os.Getenv("SEARCHSYNC_OPENSEARCH_URL"); v != "" {
		c.OpenSearch.URL = v
	}
	if v := os.Getenv("SEARCHSYNC_OPENSEARCH_USERNAME"); v != "" {
		c.OpenSearch.Username = v
	}
	if v := os.Getenv("SEARCHSYNC_OPENSEARCH_PASSWORD"); v != "" {
		c.OpenSearch.Password = v
	}
	if v := os.Getenv("SEARCHSYNC_REPO_URL"); v != "" {
		c.Repository.URL = v
	}
	if v := os.Getenv("SEARCHSYNC_REPO_USERNAME"); v != "" {
		c.Repository.Username = v
	}
	if v := os.Getenv("SEARCHSYNC_REPO_PASSWORD"); v != "" {
		c.Repository.Password = v
	}
	if v := os.Getenv("SEARCHSYNC_REPO_SECRET"); v != "" {
		c.Repository.Secret = v
	}
	if v := os.Getenv("SEARCHSYNC_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate checks the configuration for values that would break the
// pipeline at runtime.
func (c *Config) Validate() error {
	if c.OpenSearch.URL == "" {
		return fmt.Errorf("opensearch.url must not be empty")
	}
	if c.OpenSearch.IndexName == "" {
		return fmt.Errorf("opensearch.index_name must not be empty")
	}
	if c.OpenSearch.PipelineName == "" {
		return fmt.Errorf("opensearch.pipeline_name must not be empty")
	}
	if c.OpenSearch.TaskPollAttempts < 1 {
		return fmt.Errorf("opensearch.task_poll_attempts must be at least 1")
	}
	if c.Repository.URL == "" {
		return fmt.Errorf("repository.url must not be empty")
	}
	switch c.Repository.Strategy {
	case StrategyTransactions, StrategyModified:
	default:
		return fmt.Errorf("repository.strategy must be %q or %q, got %q",
			StrategyTransactions, StrategyModified, c.Repository.Strategy)
	}
	if c.Repository.MaxResults < 1 {
		return fmt.Errorf("repository.max_results must be at least 1")
	}
	if c.Repository.PageSize < 1 {
		return fmt.Errorf("repository.page_size must be at least 1")
	}
	if c.Indexer.MaxSegmentChars < 1 {
		return fmt.Errorf("indexer.max_segment_chars must be at least 1")
	}
	if c.Indexer.Workers < 1 {
		return fmt.Errorf("indexer.workers must be at least 1")
	}
	if c.Indexer.Interval.Std() < time.Second {
		return fmt.Errorf("indexer.interval must be at least 1s")
	}
	switch c.Server.DefaultMode {
	case "keyword", "neural", "hybrid":
	default:
		return fmt.Errorf("server.default_mode must be keyword, neural or hybrid")
	}
	return nil
}

// ControlIndexName returns the configured control index, defaulting to
// "<index_name>-control".
func (c *OpenSearchConfig) ControlIndexName() string {
	if c.ControlIndex != "" {
		return c.ControlIndex
	}
	return c.IndexName + "-control"
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".searchsync")
	}
	return filepath.Join(home, ".searchsync")
}

// FindConfigFile looks for searchsync.yaml in the working directory and the
// data directory. Returns empty string when no file exists.
func FindConfigFile() string {
	candidates := []string{
		"searchsync.yaml",
		filepath.Join(defaultDataDir(), "searchsync.yaml"),
	}
	for _, p := range candidates {
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p
		}
	}
	return ""
}

// Redacted returns a copy safe for logging, with secrets masked.
func (c *Config) Redacted() *Config {
	cp := *c
	cp.OpenSearch.Password = mask(c.OpenSearch.Password)
	cp.Repository.Password = mask(c.Repository.Password)
	cp.Repository.Secret = mask(c.Repository.Secret)
	return &cp
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return strings.Repeat("*", 8)
}
