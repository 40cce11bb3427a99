// Package syncer runs the incremental synchronization loop: poll the
// content repository for changes past the cursor, mirror them into the
// search index, then advance the cursor. Runs never overlap.
package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"golang.org/x/sync/errgroup"

	errs "github.com/conexa-labs/searchsync/internal/errors"
	"github.com/conexa-labs/searchsync/internal/opensearch"
	"github.com/conexa-labs/searchsync/internal/repo"
	"github.com/conexa-labs/searchsync/internal/segment"
)

// Config tunes one sync run.
type Config struct {
	// MaxSegmentChars is the greedy segmentation budget.
	MaxSegmentChars int
	// Workers bounds concurrent segment upserts.
	Workers int
	// DocumentWorkers bounds concurrent per-document processing.
	DocumentWorkers int
	// DeleteRetryAttempts and DeleteRetryDelay govern the detached
	// background retries for failed deletions.
	DeleteRetryAttempts int
	DeleteRetryDelay    time.Duration
}

// ReadyWaiter gates sync runs on provisioning. Satisfied by
// *opensearch.Provisioner.
type ReadyWaiter interface {
	AwaitReady(ctx context.Context) error
}

// Syncer executes sync runs against one change source and one index.
type Syncer struct {
	gateway     *opensearch.Gateway
	provisioner ReadyWaiter
	source      repo.ChangeSource
	cfg         Config
	logger      *slog.Logger

	// mu is the single-flight guard: a run that finds it held skips
	// instead of queuing.
	mu sync.Mutex

	// segmentPool uploads segments; retryPool hosts detached delete
	// retries so they never block the main loop.
	segmentPool *ants.Pool
	retryPool   *ants.Pool
	retryWG     sync.WaitGroup
}

// New creates a Syncer. Callers must Close it to release the worker pools.
func New(gateway *opensearch.Gateway, provisioner ReadyWaiter, source repo.ChangeSource, cfg Config, logger *slog.Logger) (*Syncer, error) {
	if cfg.MaxSegmentChars <= 0 {
		cfg.MaxSegmentChars = segment.DefaultMaxChars
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.DocumentWorkers <= 0 {
		cfg.DocumentWorkers = 2
	}
	if cfg.DeleteRetryAttempts <= 0 {
		cfg.DeleteRetryAttempts = 3
	}
	if cfg.DeleteRetryDelay <= 0 {
		cfg.DeleteRetryDelay = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	segmentPool, err := ants.NewPool(cfg.Workers)
	if err != nil {
		return nil, fmt.Errorf("create segment pool: %w", err)
	}
	retryPool, err := ants.NewPool(cfg.DocumentWorkers)
	if err != nil {
		segmentPool.Release()
		return nil, fmt.Errorf("create retry pool: %w", err)
	}

	return &Syncer{
		gateway:     gateway,
		provisioner: provisioner,
		source:      source,
		cfg:         cfg,
		logger:      logger,
		segmentPool: segmentPool,
		retryPool:   retryPool,
	}, nil
}

// Close waits for outstanding background retries and releases the pools.
func (s *Syncer) Close() {
	s.retryWG.Wait()
	s.segmentPool.Release()
	s.retryPool.Release()
}

// RunOnce executes one sync attempt. If a previous run is still active it
// returns a busy error without blocking. The cursor advances only after
// the batch has been fully indexed. The returned bool reports whether the
// change source still has pending work past the new cursor, so catch-up
// callers can keep going without re-polling.
func (s *Syncer) RunOnce(ctx context.Context) (bool, error) {
	if err := s.provisioner.AwaitReady(ctx); err != nil {
		return false, fmt.Errorf("waiting for provisioning: %w", err)
	}

	if !s.mu.TryLock() {
		s.logger.Info("previous sync still running, skipping this tick")
		return false, errs.New(errs.ErrCodeSyncBusy, "sync already in progress", nil)
	}
	defer s.mu.Unlock()

	start := time.Now()
	cursor, err := s.gateway.ReadCursor(ctx)
	if err != nil {
		return false, err
	}

	batch, err := s.source.PollChanges(ctx, cursor)
	if err != nil {
		return false, fmt.Errorf("poll changes: %w", err)
	}

	if len(batch.Records) == 0 {
		s.logger.Debug("nothing to index",
			slog.String("strategy", s.source.Strategy()))
		return batch.HasMore, s.advanceCursor(ctx, cursor, batch.NewCursor)
	}

	deletes, upserts, err := partition(batch.Records)
	if err != nil {
		return false, err
	}

	for _, record := range deletes {
		s.deleteEntity(ctx, record)
	}

	if err := s.indexDocuments(ctx, upserts); err != nil {
		return false, err
	}

	if err := s.gateway.WriteCursor(ctx, batch.NewCursor); err != nil {
		return false, err
	}

	s.logger.Info("sync run complete",
		slog.String("strategy", s.source.Strategy()),
		slog.Int("upserted", len(upserts)),
		slog.Int("deleted", len(deletes)),
		slog.Bool("has_more", batch.HasMore),
		slog.Duration("elapsed", time.Since(start)))
	return batch.HasMore, nil
}

// partition splits a batch by change kind. A kind outside the known two
// is a contract violation and aborts the batch before any writes happen.
func partition(records []repo.ChangeRecord) (deletes, upserts []repo.ChangeRecord, err error) {
	for _, r := range records {
		switch r.Kind {
		case repo.ChangeDeleted:
			deletes = append(deletes, r)
		case repo.ChangeUpserted:
			upserts = append(upserts, r)
		default:
			return nil, nil, errs.New(errs.ErrCodeUnknownChangeKind,
				fmt.Sprintf("change record for entity %q has unknown kind %q", r.EntityID, r.Kind), nil)
		}
	}
	return deletes, upserts, nil
}

// advanceCursor persists the cursor when an empty batch still moved the
// watermark, as the modified-date strategy does with its time window.
func (s *Syncer) advanceCursor(ctx context.Context, old, next repo.Cursor) error {
	if next == old || next.IsZero() {
		return nil
	}
	return s.gateway.WriteCursor(ctx, next)
}

// deleteEntity removes an entity's segments. A failed delete is handed to
// the retry pool as a detached bounded retry; the run does not wait for
// it and its outcome is only logged. Deletions must win eventually, but
// they never hold up indexing.
func (s *Syncer) deleteEntity(ctx context.Context, record repo.ChangeRecord) {
	if err := s.deleteOnce(ctx, record); err == nil {
		return
	}

	rec := record
	s.retryWG.Add(1)
	submitErr := s.retryPool.Submit(func() {
		defer s.retryWG.Done()
		cfg := errs.FixedRetryConfig(s.cfg.DeleteRetryAttempts-1, s.cfg.DeleteRetryDelay)
		err := errs.Retry(context.Background(), cfg, func() error {
			return s.deleteOnce(context.Background(), rec)
		})
		if err != nil {
			s.logger.Warn("background deletion gave up",
				slog.String("entity_id", rec.EntityID),
				slog.Int64("dbid", rec.DBID),
				slog.String("error", err.Error()))
		}
	})
	if submitErr != nil {
		s.retryWG.Done()
		s.logger.Warn("could not schedule deletion retry",
			slog.String("entity_id", rec.EntityID),
			slog.String("error", submitErr.Error()))
	}
}

func (s *Syncer) deleteOnce(ctx context.Context, record repo.ChangeRecord) error {
	var err error
	if record.EntityID != "" {
		_, err = s.gateway.DeleteByEntityPrefix(ctx, record.EntityID)
	} else {
		_, err = s.gateway.DeleteByDBID(ctx, record.DBID)
	}
	return err
}

// indexDocuments processes upserted records, documents in parallel up to
// DocumentWorkers. A document failure aborts the run so the cursor stays
// put and the document is retried next tick.
func (s *Syncer) indexDocuments(ctx context.Context, records []repo.ChangeRecord) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.DocumentWorkers)

	for _, record := range records {
		rec := record
		g.Go(func() error {
			return s.indexDocument(gctx, rec)
		})
	}
	return g.Wait()
}

// indexDocument reindexes one document: drop whatever segments a previous
// version left behind, fetch the current text, and upsert its segments.
// The delete comes first so a shrinking document cannot leave stale tail
// segments.
func (s *Syncer) indexDocument(ctx context.Context, record repo.ChangeRecord) error {
	if _, err := s.gateway.DeleteByEntityPrefix(ctx, record.EntityID); err != nil {
		return fmt.Errorf("clear segments for %s: %w", record.EntityID, err)
	}

	content, err := s.source.FetchContent(ctx, record)
	if err != nil {
		return err
	}

	segments := segment.Split(record.EntityID, content.Text, s.cfg.MaxSegmentChars)
	s.logger.Debug("indexing document",
		slog.String("entity_id", record.EntityID),
		slog.String("name", content.Name),
		slog.Int("segments", len(segments)))

	var wg sync.WaitGroup
	for _, seg := range segments {
		sg := seg
		wg.Add(1)
		if err := s.segmentPool.Submit(func() {
			defer wg.Done()
			s.gateway.UpsertSegment(ctx, sg, record.DBID, content.Name)
		}); err != nil {
			// Pool rejected the task (released or overloaded); upsert
			// inline rather than dropping the segment.
			s.gateway.UpsertSegment(ctx, sg, record.DBID, content.Name)
			wg.Done()
		}
	}
	wg.Wait()
	return nil
}
