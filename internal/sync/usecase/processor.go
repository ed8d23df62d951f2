package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	syncdomain "vectorsync-backend/internal/sync/domain"
	"vectorsync-backend/internal/sync/queue"
	"vectorsync-backend/internal/sync/repository"
	"vectorsync-backend/pkg/chunker"

	"github.com/sethvargo/go-retry"
)

// ProcessorConfig controls the processor pool
type ProcessorConfig struct {
	Workers            int
	PollTimeout        time.Duration
	ContentTimeout     time.Duration
	EmbedTimeout       time.Duration
	VectorStoreTimeout time.Duration
	RetryBaseDelay     time.Duration
	MaxRetries         int
	MaxDocumentChars   int // 0 disables the limit
}

func (c *ProcessorConfig) applyDefaults() {
	if c.Workers <= 0 {
		c.Workers = 3 // Default to 3 workers
	}
	if c.PollTimeout <= 0 {
		c.PollTimeout = time.Second
	}
	if c.ContentTimeout <= 0 {
		c.ContentTimeout = 30 * time.Second
	}
	if c.EmbedTimeout <= 0 {
		c.EmbedTimeout = 60 * time.Second
	}
	if c.VectorStoreTimeout <= 0 {
		c.VectorStoreTimeout = 30 * time.Second
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = time.Second
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
}

// ProcessorStats are cumulative task counters
type ProcessorStats struct {
	Processed uint64 `json:"processed"`
	Failed    uint64 `json:"failed"`
	Retried   uint64 `json:"retried"`
}

// ProcessorPool drains the task queue with a fixed number of workers
type ProcessorPool struct {
	queue        *queue.Queue
	kinds        *syncdomain.KindRegistry
	tokens       TokenProvider
	embedder     Embedder
	store        VectorStore
	chunker      *chunker.Chunker
	settingsRepo repository.SettingsRepository
	cfg          ProcessorConfig
	now          func() time.Time
	logger       *slog.Logger
	docs         *docLocks

	processed atomic.Uint64
	failed    atomic.Uint64
	retried   atomic.Uint64
}

// NewProcessorPool creates a processor pool. settingsRepo may be nil, in which case
// tasks are processed without checking whether the user is still enabled.
func NewProcessorPool(
	q *queue.Queue,
	kinds *syncdomain.KindRegistry,
	tokens TokenProvider,
	embedder Embedder,
	store VectorStore,
	ch *chunker.Chunker,
	settingsRepo repository.SettingsRepository,
	cfg ProcessorConfig,
	logger *slog.Logger,
) *ProcessorPool {
	cfg.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &ProcessorPool{
		queue:        q,
		kinds:        kinds,
		tokens:       tokens,
		embedder:     embedder,
		store:        store,
		chunker:      ch,
		settingsRepo: settingsRepo,
		cfg:          cfg,
		now:          time.Now,
		logger:       logger.With("component", "processor"),
		docs:         newDocLocks(),
	}
}

// Run starts the workers and blocks until ctx is cancelled or the queue is closed.
// Tasks already dequeued are finished before Run returns.
func (p *ProcessorPool) Run(ctx context.Context) error {
	p.run(ctx, false)
	return nil
}

// Drain processes tasks until the queue stays empty for one poll timeout
func (p *ProcessorPool) Drain(ctx context.Context) error {
	p.run(ctx, true)
	return ctx.Err()
}

func (p *ProcessorPool) run(ctx context.Context, untilIdle bool) {
	var wg sync.WaitGroup
	for i := 0; i < p.cfg.Workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			p.worker(ctx, id, untilIdle)
		}(i)
	}
	p.logger.Info("started workers", "workers", p.cfg.Workers)
	wg.Wait()
	p.logger.Info("all workers stopped")
}

// worker processes tasks from the queue
func (p *ProcessorPool) worker(ctx context.Context, id int, untilIdle bool) {
	for ctx.Err() == nil && !p.queue.Closed() {
		task, ok := p.queue.Dequeue(ctx, p.cfg.PollTimeout)
		if !ok {
			if untilIdle && p.queue.Len() == 0 {
				break
			}
			continue
		}
		p.Handle(ctx, task)
	}
	p.logger.Debug("worker stopped", "worker", id)
}

// Handle processes one task. It never panics and never returns an error:
// failures are logged and the task is abandoned to the next scan.
func (p *ProcessorPool) Handle(ctx context.Context, task syncdomain.DocumentTask) {
	// In-flight work outlives shutdown; every outbound call has its own timeout
	ctx = context.WithoutCancel(ctx)
	log := p.logger.With(
		"user_id", task.UserID, "kind", task.Kind, "doc", task.Identifier(),
		"operation", task.Operation, "source", task.Source)

	defer func() {
		if r := recover(); r != nil {
			p.failed.Add(1)
			log.Error("panic while processing task", "panic", r)
		}
	}()

	start := p.now()
	err := p.process(ctx, task, log)
	if err != nil {
		p.failed.Add(1)
		log.Error("task abandoned", "error", err, "transient", syncdomain.IsTransient(err))
		return
	}
	p.processed.Add(1)
	log.Debug("task processed", "duration", p.now().Sub(start))
}

// Stats returns cumulative counters
func (p *ProcessorPool) Stats() ProcessorStats {
	return ProcessorStats{
		Processed: p.processed.Load(),
		Failed:    p.failed.Load(),
		Retried:   p.retried.Load(),
	}
}

func (p *ProcessorPool) process(ctx context.Context, task syncdomain.DocumentTask, log *slog.Logger) error {
	backoff := retry.WithMaxRetries(uint64(p.cfg.MaxRetries), retry.NewExponential(p.cfg.RetryBaseDelay))

	attempt := 0
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if attempt > 1 {
			p.retried.Add(1)
		}

		// Fetch through write holds the document lock, so stale-chunk cleanup
		// only ever sees the version this attempt wrote.
		unlock := p.docs.lock(docKey(task))
		defer unlock()

		var err error
		switch task.Operation {
		case syncdomain.OperationDelete:
			err = p.delete(ctx, task)
		case syncdomain.OperationIndex:
			err = p.index(ctx, task, log)
		default:
			err = fmt.Errorf("%w: unknown operation %q", syncdomain.ErrPermanent, task.Operation)
		}

		if syncdomain.IsTransient(err) {
			log.Warn("transient failure", "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}
		return err
	})
}

func docKey(task syncdomain.DocumentTask) string {
	return task.UserID + "/" + string(task.Kind) + "/" + task.Identifier()
}

func (p *ProcessorPool) delete(ctx context.Context, task syncdomain.DocumentTask) error {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.VectorStoreTimeout)
	defer cancel()

	switch {
	case task.DocID != "":
		if err := p.store.DeleteDocument(ctx, task.UserID, task.Kind, task.DocID); err != nil {
			return fmt.Errorf("failed to delete document: %w", err)
		}
	case task.Path != "":
		if err := p.store.DeleteByPath(ctx, task.UserID, task.Kind, task.Path); err != nil {
			return fmt.Errorf("failed to delete document by path: %w", err)
		}
	default:
		return fmt.Errorf("%w: delete task without id or path", syncdomain.ErrPermanent)
	}
	return nil
}

// index fetches, chunks, embeds and writes one document. A document the kind
// handler reports as not found is removed from the index instead, and the task
// succeeds without a retry.
func (p *ProcessorPool) index(ctx context.Context, task syncdomain.DocumentTask, log *slog.Logger) error {
	if task.DocID == "" {
		return fmt.Errorf("%w: index task without document id", syncdomain.ErrPermanent)
	}
	if !p.userEnabled(task.UserID) {
		log.Debug("sync disabled for user, dropping task")
		return nil
	}

	handler, err := p.kinds.Get(task.Kind)
	if err != nil {
		return err
	}

	token, err := p.tokens.AccessToken(ctx, task.UserID)
	if err != nil {
		return fmt.Errorf("failed to get access token: %w", err)
	}

	doc, err := p.fetch(ctx, handler, token, task)
	if err != nil {
		if errors.Is(err, syncdomain.ErrNotFound) {
			// Gone upstream: make sure nothing of it stays searchable
			log.Info("document not found upstream, removing from index")
			return p.delete(ctx, syncdomain.NewDeleteTask(task.UserID, task.Kind, task.DocID, task.Source))
		}
		if errors.Is(err, syncdomain.ErrNotAuthorized) {
			if inv, ok := p.tokens.(tokenInvalidator); ok {
				inv.Invalidate(task.UserID)
			}
		}
		return err
	}

	text := doc.Text()
	if p.cfg.MaxDocumentChars > 0 && utf8.RuneCountInString(text) > p.cfg.MaxDocumentChars {
		return fmt.Errorf("%w: %d chars exceeds limit of %d", syncdomain.ErrDocumentTooLarge, utf8.RuneCountInString(text), p.cfg.MaxDocumentChars)
	}

	fragments := p.chunker.Split(text)
	if len(fragments) == 0 {
		// Empty content: nothing to embed, drop whatever was indexed before
		return p.replaceChunks(ctx, task, nil)
	}

	vectors, err := p.embed(ctx, fragments)
	if err != nil {
		return err
	}

	modifiedAt := doc.ModifiedAt
	if modifiedAt.IsZero() {
		modifiedAt = task.ModifiedAt
	}
	indexedAt := p.now()

	records := make([]syncdomain.VectorRecord, len(fragments))
	for i, fragment := range fragments {
		records[i] = syncdomain.VectorRecord{
			ID:     syncdomain.ChunkID(task.UserID, task.Kind, task.DocID, i),
			Vector: vectors[i],
			Text:   fragment,
			Metadata: syncdomain.IndexedVectorMetadata{
				UserID:     task.UserID,
				DocID:      task.DocID,
				Kind:       task.Kind,
				ChunkIndex: i,
				ChunkTotal: len(fragments),
				IndexedAt:  indexedAt,
				ModifiedAt: modifiedAt,
				ETag:       doc.ETag,
				Excerpt:    syncdomain.Excerpt(fragment),
				Title:      doc.Title,
				Path:       doc.Path,
			},
		}
	}

	if err := p.replaceChunks(ctx, task, records); err != nil {
		return err
	}

	// Sync may have been disabled while this task was in flight
	if !p.userEnabled(task.UserID) {
		log.Info("sync disabled during indexing, removing document")
		return p.delete(ctx, syncdomain.NewDeleteTask(task.UserID, task.Kind, task.DocID, task.Source))
	}

	log.Info("indexed document", "chunks", len(records))
	return nil
}

func (p *ProcessorPool) fetch(ctx context.Context, handler syncdomain.KindHandler, token string, task syncdomain.DocumentTask) (*syncdomain.Document, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.ContentTimeout)
	defer cancel()

	doc, err := handler.Fetch(ctx, token, task.DocID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch document: %w", err)
	}
	if doc == nil {
		return nil, fmt.Errorf("failed to fetch document: %w", syncdomain.ErrNotFound)
	}
	return doc, nil
}

func (p *ProcessorPool) embed(ctx context.Context, fragments []string) ([][]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.EmbedTimeout)
	defer cancel()

	vectors, err := p.embedder.Embed(ctx, fragments)
	if err != nil {
		return nil, fmt.Errorf("failed to embed fragments: %w", err)
	}
	if len(vectors) != len(fragments) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d fragments", len(vectors), len(fragments))
	}
	return vectors, nil
}

// replaceChunks writes records and removes any chunk of the document not among them.
// The caller holds the document lock.
func (p *ProcessorPool) replaceChunks(ctx context.Context, task syncdomain.DocumentTask, records []syncdomain.VectorRecord) error {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.VectorStoreTimeout)
	defer cancel()

	keep := make([]string, len(records))
	for i, r := range records {
		keep[i] = r.ID
	}

	if len(records) > 0 {
		if err := p.store.Upsert(ctx, records); err != nil {
			return fmt.Errorf("failed to upsert chunks: %w", err)
		}
	}
	if err := p.store.DeleteStaleChunks(ctx, task.UserID, task.Kind, task.DocID, keep); err != nil {
		return fmt.Errorf("failed to delete stale chunks: %w", err)
	}
	return nil
}

func (p *ProcessorPool) userEnabled(userID string) bool {
	if p.settingsRepo == nil {
		return true
	}
	settings, err := p.settingsRepo.FindByUserID(userID)
	if err != nil {
		// Favour indexing; the next scan reconciles
		p.logger.Warn("failed to load settings", "user_id", userID, "error", err)
		return true
	}
	return settings != nil && settings.Enabled
}
