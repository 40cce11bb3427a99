package opensearch

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	errs "github.com/conexa-labs/searchsync/internal/errors"
)

// ProvisionerConfig holds the knobs for one-time engine provisioning.
type ProvisionerConfig struct {
	// ModelName is the pretrained embedding model to register.
	ModelName string
	// ModelGroupName is the access-control group the model lives in.
	ModelGroupName string

	// TaskPollInterval is the delay between ML task status checks.
	TaskPollInterval time.Duration
	// TaskPollAttempts bounds how many status checks a task gets.
	TaskPollAttempts int

	// VerifyAttempts bounds the post-deploy verification probe retries.
	VerifyAttempts int
	// VerifyDelay is the fixed delay between verification attempts.
	VerifyDelay time.Duration
}

// Result carries the identifiers produced by provisioning. It is
// immutable once published; consumers receive copies, never pointers.
type Result struct {
	ModelID      string
	ModelGroupID string
}

// Provisioner drives the engine into a ready state: ML settings, model
// group, model registration and deployment, ingest and search pipelines,
// the KNN index, and the control index. Every step is idempotent, so a
// crashed run can simply be re-run.
//
// Readiness is a one-shot latch: once Provision succeeds the ready
// channel is closed and every AwaitReady call returns immediately,
// forever. Provisioning runs at most once per Provisioner.
type Provisioner struct {
	gateway *Gateway
	cfg     ProvisionerConfig
	logger  *slog.Logger

	once   sync.Once
	ready  chan struct{}
	result Result
	err    error
}

// NewProvisioner creates a provisioner over the gateway.
func NewProvisioner(gateway *Gateway, cfg ProvisionerConfig, logger *slog.Logger) *Provisioner {
	if cfg.TaskPollInterval <= 0 {
		cfg.TaskPollInterval = 10 * time.Second
	}
	if cfg.TaskPollAttempts <= 0 {
		cfg.TaskPollAttempts = 10
	}
	if cfg.VerifyAttempts <= 0 {
		cfg.VerifyAttempts = 5
	}
	if cfg.VerifyDelay <= 0 {
		cfg.VerifyDelay = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Provisioner{
		gateway: gateway,
		cfg:     cfg,
		logger:  logger,
		ready:   make(chan struct{}),
	}
}

// Provision runs the full provisioning chain. Safe to call from multiple
// goroutines; only the first call does work, later calls return the
// recorded outcome.
func (p *Provisioner) Provision(ctx context.Context) (Result, error) {
	p.once.Do(func() {
		p.result, p.err = p.provision(ctx)
		if p.err == nil {
			close(p.ready)
		}
	})
	return p.result, p.err
}

// AwaitReady blocks until provisioning has succeeded or ctx expires.
func (p *Provisioner) AwaitReady(ctx context.Context) error {
	select {
	case <-p.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Ready reports readiness without blocking.
func (p *Provisioner) Ready() bool {
	select {
	case <-p.ready:
		return true
	default:
		return false
	}
}

func (p *Provisioner) provision(ctx context.Context) (Result, error) {
	start := time.Now()
	p.logger.Info("provisioning started",
		slog.String("model", p.cfg.ModelName),
		slog.String("index", p.gateway.indexName))

	if err := p.applyClusterSettings(ctx); err != nil {
		return Result{}, errs.Wrap(errs.ErrCodeProvisioningFailed, err)
	}

	groupID, err := p.ensureModelGroup(ctx)
	if err != nil {
		return Result{}, errs.Wrap(errs.ErrCodeProvisioningFailed, err)
	}

	modelID, err := p.ensureModelDeployed(ctx, groupID)
	if err != nil {
		return Result{}, err
	}

	if err := p.ensureIngestPipeline(ctx, modelID); err != nil {
		return Result{}, errs.Wrap(errs.ErrCodeProvisioningFailed, err)
	}
	if err := p.ensureSearchPipeline(ctx); err != nil {
		return Result{}, errs.Wrap(errs.ErrCodeProvisioningFailed, err)
	}

	exists, err := p.gateway.IndexExists(ctx)
	if err != nil {
		return Result{}, errs.Wrap(errs.ErrCodeProvisioningFailed, err)
	}
	if !exists {
		if err := p.gateway.CreateIndex(ctx); err != nil {
			return Result{}, errs.Wrap(errs.ErrCodeProvisioningFailed, err)
		}
		if err := p.gateway.CreateControlIndex(ctx); err != nil {
			return Result{}, errs.Wrap(errs.ErrCodeProvisioningFailed, err)
		}
		if err := p.verifyDeployment(ctx); err != nil {
			return Result{}, err
		}
	}

	p.logger.Info("provisioning complete",
		slog.String("model_id", modelID),
		slog.String("model_group_id", groupID),
		slog.Duration("elapsed", time.Since(start)))
	return Result{ModelID: modelID, ModelGroupID: groupID}, nil
}

// applyClusterSettings relaxes the ML plugin so models run on data nodes.
// Development clusters rarely have dedicated ML nodes.
func (p *Provisioner) applyClusterSettings(ctx context.Context) error {
	body := map[string]any{
		"persistent": map[string]any{
			"plugins.ml_commons.only_run_on_ml_node":          false,
			"plugins.ml_commons.model_access_control_enabled": true,
			"plugins.ml_commons.native_memory_threshold":      99,
		},
	}
	if err := p.gateway.client.getJSON(ctx, http.MethodPut, "/_cluster/settings", body, nil); err != nil {
		return fmt.Errorf("apply cluster settings: %w", err)
	}
	p.logger.Debug("ml cluster settings applied")
	return nil
}

// ensureModelGroup finds or registers the model group by name.
func (p *Provisioner) ensureModelGroup(ctx context.Context) (string, error) {
	if id := p.findByName(ctx, "/_plugins/_ml/model_groups/_search", p.cfg.ModelGroupName); id != "" {
		p.logger.Debug("model group already registered", slog.String("model_group_id", id))
		return id, nil
	}

	body := map[string]any{
		"name":        p.cfg.ModelGroupName,
		"description": "A model group for NLP models",
		"access_mode": "public",
	}
	var resp registerResponse
	if err := p.gateway.client.getJSON(ctx, http.MethodPost, "/_plugins/_ml/model_groups/_register", body, &resp); err != nil {
		return "", fmt.Errorf("register model group: %w", err)
	}
	if resp.ModelGroupID == "" {
		return "", fmt.Errorf("register model group: empty model_group_id in response")
	}
	p.logger.Info("model group registered", slog.String("model_group_id", resp.ModelGroupID))
	return resp.ModelGroupID, nil
}

// ensureModelDeployed registers and deploys the embedding model, or reuses
// an already deployed one with the same name.
func (p *Provisioner) ensureModelDeployed(ctx context.Context, groupID string) (string, error) {
	if id := p.findDeployedModel(ctx); id != "" {
		p.logger.Debug("model already deployed", slog.String("model_id", id))
		return id, nil
	}

	body := map[string]any{
		"name":           p.cfg.ModelName,
		"version":        "1.0.1",
		"model_group_id": groupID,
		"model_format":   "TORCH_SCRIPT",
	}
	var resp registerResponse
	if err := p.gateway.client.getJSON(ctx, http.MethodPost, "/_plugins/_ml/models/_register", body, &resp); err != nil {
		return "", errs.Wrap(errs.ErrCodeProvisioningFailed, fmt.Errorf("register model: %w", err))
	}

	task, err := p.awaitTask(ctx, resp.TaskID)
	if err != nil {
		return "", err
	}
	modelID := task.ModelID
	if modelID == "" {
		return "", errs.New(errs.ErrCodeProvisioningFailed, "model registration task returned no model_id", nil)
	}
	p.logger.Info("model registered", slog.String("model_id", modelID))

	path := fmt.Sprintf("/_plugins/_ml/models/%s/_deploy", url.PathEscape(modelID))
	var deploy registerResponse
	if err := p.gateway.client.getJSON(ctx, http.MethodPost, path, nil, &deploy); err != nil {
		return "", errs.Wrap(errs.ErrCodeProvisioningFailed, fmt.Errorf("deploy model: %w", err))
	}
	if _, err := p.awaitTask(ctx, deploy.TaskID); err != nil {
		return "", err
	}
	p.logger.Info("model deployed", slog.String("model_id", modelID))
	return modelID, nil
}

// awaitTask polls the ML task until it leaves its pending states. A task
// still pending after the attempt budget is a timeout; any terminal state
// other than COMPLETED is a provisioning failure.
func (p *Provisioner) awaitTask(ctx context.Context, taskID string) (taskResponse, error) {
	if taskID == "" {
		return taskResponse{}, errs.New(errs.ErrCodeProvisioningFailed, "engine returned no task_id", nil)
	}
	path := "/_plugins/_ml/tasks/" + url.PathEscape(taskID)
	cfg := errs.FixedRetryConfig(p.cfg.TaskPollAttempts-1, p.cfg.TaskPollInterval)

	task, err := errs.RetryWithResult(ctx, cfg, func() (taskResponse, error) {
		var t taskResponse
		if err := p.gateway.client.getJSON(ctx, http.MethodGet, path, nil, &t); err != nil {
			return t, err
		}
		if t.State == "CREATED" || t.State == "RUNNING" {
			p.logger.Debug("task still pending",
				slog.String("task_id", taskID),
				slog.String("state", t.State))
			return t, fmt.Errorf("task %s still %s", taskID, t.State)
		}
		return t, nil
	})
	if err != nil {
		return taskResponse{}, errs.Wrap(errs.ErrCodeTaskTimeout, err).WithDetail("task_id", taskID)
	}
	if task.State != "COMPLETED" {
		return taskResponse{}, errs.New(errs.ErrCodeProvisioningFailed,
			fmt.Sprintf("task %s ended in state %s: %s", taskID, task.State, task.Error), nil)
	}
	return task, nil
}

// verifyDeployment probes the ingest pipeline end to end. A fresh model
// deployment can reject requests with 403 until access control settles,
// so forbidden responses are retried on a fixed delay.
func (p *Provisioner) verifyDeployment(ctx context.Context) error {
	cfg := errs.FixedRetryConfig(p.cfg.VerifyAttempts-1, p.cfg.VerifyDelay)
	err := errs.Retry(ctx, cfg, func() error {
		err := p.gateway.VerifyProbe(ctx)
		if err == nil {
			return nil
		}
		if IsStatus(err, http.StatusForbidden) {
			p.logger.Debug("verification forbidden, access control still propagating")
			return errs.Wrap(errs.ErrCodeEngineForbidden, err)
		}
		return err
	})
	if err != nil {
		return errs.Wrap(errs.ErrCodeProvisioningFailed, fmt.Errorf("deployment verification: %w", err))
	}
	p.logger.Info("deployment verified")
	return nil
}

// findByName searches an ML registry endpoint for an exact name match and
// returns its document id, or "" when absent or unreachable. Lookup
// failures fall through to registration, which reports the real error.
func (p *Provisioner) findByName(ctx context.Context, path, name string) string {
	body := map[string]any{
		"query": map[string]any{
			"term": map[string]any{"name.keyword": name},
		},
	}
	var resp mlSearchResponse
	if err := p.gateway.client.getJSON(ctx, http.MethodPost, path, body, &resp); err != nil {
		return ""
	}
	for _, hit := range resp.Hits.Hits {
		if hit.Source.Name == name {
			return hit.ID
		}
	}
	return ""
}

// findDeployedModel returns the id of an already deployed model with the
// configured name, or "".
func (p *Provisioner) findDeployedModel(ctx context.Context) string {
	body := map[string]any{
		"query": map[string]any{
			"bool": map[string]any{
				"must": []any{
					map[string]any{"term": map[string]any{"name.keyword": p.cfg.ModelName}},
					map[string]any{"term": map[string]any{"model_state": "DEPLOYED"}},
				},
			},
		},
	}
	var resp mlSearchResponse
	if err := p.gateway.client.getJSON(ctx, http.MethodPost, "/_plugins/_ml/models/_search", body, &resp); err != nil {
		return ""
	}
	if len(resp.Hits.Hits) == 0 {
		return ""
	}
	return resp.Hits.Hits[0].ID
}

// ensureIngestPipeline installs the text embedding pipeline the content
// index uses as its default.
func (p *Provisioner) ensureIngestPipeline(ctx context.Context, modelID string) error {
	body := map[string]any{
		"description": "Neural search ingest pipeline",
		"processors": []any{
			map[string]any{
				"text_embedding": map[string]any{
					"model_id": modelID,
					"field_map": map[string]any{
						"text": "passage_embedding",
					},
				},
			},
		},
	}
	path := "/_ingest/pipeline/" + url.PathEscape(p.gateway.pipelineName)
	if err := p.gateway.client.getJSON(ctx, http.MethodPut, path, body, nil); err != nil {
		return fmt.Errorf("create ingest pipeline: %w", err)
	}
	p.logger.Debug("ingest pipeline installed", slog.String("pipeline", p.gateway.pipelineName))
	return nil
}

// ensureSearchPipeline installs the hybrid normalization pipeline. The
// weights favor the neural clause over the lexical one.
func (p *Provisioner) ensureSearchPipeline(ctx context.Context) error {
	body := map[string]any{
		"description": "Post processor for hybrid search",
		"phase_results_processors": []any{
			map[string]any{
				"normalization-processor": map[string]any{
					"normalization": map[string]any{
						"technique": "min_max",
					},
					"combination": map[string]any{
						"technique": "arithmetic_mean",
						"parameters": map[string]any{
							"weights": []float64{0.3, 0.7},
						},
					},
				},
			},
		},
	}
	path := "/_search/pipeline/" + url.PathEscape(p.gateway.searchPipeline())
	if err := p.gateway.client.getJSON(ctx, http.MethodPut, path, body, nil); err != nil {
		return fmt.Errorf("create search pipeline: %w", err)
	}
	p.logger.Debug("search pipeline installed", slog.String("pipeline", p.gateway.searchPipeline()))
	return nil
}
