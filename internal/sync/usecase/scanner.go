package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	syncdomain "vectorsync-backend/internal/sync/domain"
	"vectorsync-backend/internal/sync/queue"
	"vectorsync-backend/internal/sync/repository"

	"golang.org/x/sync/errgroup"
)

// ScannerConfig controls the scan loop
type ScannerConfig struct {
	Interval    time.Duration // Time between passes
	UserTimeout time.Duration // Bound on listing one user's remote and indexed documents
}

// Scanner periodically reconciles every enabled user's remote documents against
// the vector index and enqueues the differences.
type Scanner struct {
	settingsRepo repository.SettingsRepository
	tokens       TokenProvider
	kinds        *syncdomain.KindRegistry
	store        VectorStore
	queue        *queue.Queue
	cfg          ScannerConfig
	trigger      chan struct{}
	now          func() time.Time
	logger       *slog.Logger
}

// NewScanner creates a new scanner
func NewScanner(
	settingsRepo repository.SettingsRepository,
	tokens TokenProvider,
	kinds *syncdomain.KindRegistry,
	store VectorStore,
	q *queue.Queue,
	cfg ScannerConfig,
	logger *slog.Logger,
) *Scanner {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	if cfg.UserTimeout <= 0 {
		cfg.UserTimeout = 5 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{
		settingsRepo: settingsRepo,
		tokens:       tokens,
		kinds:        kinds,
		store:        store,
		queue:        q,
		cfg:          cfg,
		trigger:      make(chan struct{}, 1),
		now:          time.Now,
		logger:       logger.With("component", "scanner"),
	}
}

// Run scans immediately, then once per interval or whenever TriggerScan is called,
// until ctx is cancelled.
func (s *Scanner) Run(ctx context.Context) error {
	s.logger.Info("starting scanner", "interval", s.cfg.Interval)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		if err := s.ScanAll(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("scan pass failed", "error", err)
		}

		select {
		case <-ctx.Done():
			s.logger.Info("scanner stopped")
			return nil
		case <-ticker.C:
		case <-s.trigger:
			s.logger.Debug("scan triggered")
		}
	}
}

// TriggerScan requests an immediate pass. Requests coalesce while one is pending.
func (s *Scanner) TriggerScan() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// ScanAll runs one pass over every enabled user. A failing user does not stop the pass.
func (s *Scanner) ScanAll(ctx context.Context) error {
	users, err := s.settingsRepo.ListEnabled()
	if err != nil {
		return fmt.Errorf("failed to list enabled users: %w", err)
	}

	start := s.now()
	queued, failed := 0, 0
	for _, settings := range users {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		n, err := s.ScanUser(ctx, settings.UserID)
		queued += n
		if err != nil {
			failed++
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Warn("scan failed for user", "user_id", settings.UserID, "error", err)
		}
	}

	s.logger.Info("scan pass complete",
		"users", len(users), "failed", failed, "queued", queued, "duration", s.now().Sub(start))
	return nil
}

// ScanUser diffs one user's documents against the index and enqueues the result.
// It returns the number of tasks enqueued.
func (s *Scanner) ScanUser(ctx context.Context, userID string) (int, error) {
	settings, err := s.settingsRepo.FindByUserID(userID)
	if err != nil {
		return 0, fmt.Errorf("failed to load settings: %w", err)
	}
	if settings == nil || !settings.Enabled {
		return 0, nil
	}

	if err := s.settingsRepo.UpdateStatus(userID, syncdomain.SyncStatusSyncing, ""); err != nil {
		s.logger.Warn("failed to update status", "user_id", userID, "error", err)
	}

	bootstrap := settings.LastScanAt == nil
	tasks, err := s.plan(ctx, userID, bootstrap)
	if err != nil {
		if ctx.Err() == nil {
			s.markError(userID, err)
		}
		return 0, err
	}

	for i, task := range tasks {
		// Blocking: the scanner absorbs backpressure by waiting
		if err := s.queue.Enqueue(ctx, task); err != nil {
			if !errors.Is(err, queue.ErrQueueClosed) && ctx.Err() == nil {
				s.markError(userID, err)
			}
			return i, fmt.Errorf("failed to enqueue task: %w", err)
		}
	}

	if err := s.settingsRepo.CompleteScan(userID, s.now()); err != nil {
		return len(tasks), fmt.Errorf("failed to record scan: %w", err)
	}

	s.logger.Info("scanned user", "user_id", userID, "tasks", len(tasks), "bootstrap", bootstrap)
	return len(tasks), nil
}

func (s *Scanner) markError(userID string, cause error) {
	if err := s.settingsRepo.UpdateStatus(userID, syncdomain.SyncStatusError, cause.Error()); err != nil {
		s.logger.Warn("failed to update status", "user_id", userID, "error", err)
	}
}

// plan lists every kind concurrently and computes the tasks for one user
func (s *Scanner) plan(ctx context.Context, userID string, bootstrap bool) ([]syncdomain.DocumentTask, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.UserTimeout)
	defer cancel()

	token, err := s.tokens.AccessToken(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get access token: %w", err)
	}

	kinds := s.kinds.Kinds()
	results := make([][]syncdomain.DocumentTask, len(kinds))

	g, gctx := errgroup.WithContext(ctx)
	for i, kind := range kinds {
		g.Go(func() error {
			handler, err := s.kinds.Get(kind)
			if err != nil {
				return err
			}
			remote, err := handler.List(gctx, token)
			if err != nil {
				return fmt.Errorf("failed to list %s documents: %w", kind, err)
			}

			var indexed map[string]syncdomain.IndexedDocument
			if !bootstrap {
				indexed, err = s.store.ListIndexed(gctx, userID, kind)
				if err != nil {
					return fmt.Errorf("failed to list indexed %s documents: %w", kind, err)
				}
			}

			results[i] = Diff(userID, kind, remote, indexed, bootstrap)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var tasks []syncdomain.DocumentTask
	for _, r := range results {
		tasks = append(tasks, r...)
	}
	return tasks, nil
}

// Diff compares a remote listing with the indexed documents of the same user and kind.
//
// A remote document is indexed when it is missing from the index, was modified after
// it was last indexed, or its modification time differs from the indexed one.
// Indexed documents missing remotely are deleted. A bootstrap diff indexes everything
// and deletes nothing.
func Diff(userID string, kind syncdomain.Kind, remote []syncdomain.RemoteDocument, indexed map[string]syncdomain.IndexedDocument, bootstrap bool) []syncdomain.DocumentTask {
	tasks := make([]syncdomain.DocumentTask, 0)
	seen := make(map[string]struct{}, len(remote))

	for _, doc := range remote {
		if doc.ID == "" {
			continue
		}
		if _, dup := seen[doc.ID]; dup {
			continue
		}
		seen[doc.ID] = struct{}{}

		if !bootstrap {
			if idx, ok := indexed[doc.ID]; ok && !isStale(doc, idx) {
				continue
			}
		}
		task := syncdomain.NewIndexTask(userID, kind, doc.ID, doc.ModifiedAt, syncdomain.SourceScanner)
		task.Path = doc.Path
		tasks = append(tasks, task)
	}

	if bootstrap {
		return tasks
	}

	orphans := make([]string, 0)
	for docID := range indexed {
		if _, ok := seen[docID]; !ok {
			orphans = append(orphans, docID)
		}
	}
	sort.Strings(orphans)
	for _, docID := range orphans {
		tasks = append(tasks, syncdomain.NewDeleteTask(userID, kind, docID, syncdomain.SourceScanner))
	}
	return tasks
}

// Timestamps are compared at second precision, the precision stored in metadata
func isStale(doc syncdomain.RemoteDocument, idx syncdomain.IndexedDocument) bool {
	remote := doc.ModifiedAt.Unix()
	if remote > idx.IndexedAt.Unix() {
		return true
	}
	return !idx.ModifiedAt.IsZero() && remote != idx.ModifiedAt.Unix()
}
