package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	syncdomain "vectorsync-backend/internal/sync/domain"
	"vectorsync-backend/internal/sync/queue"
	"vectorsync-backend/pkg/memstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type processorFixture struct {
	repo     *fakeSettingsRepo
	tokens   *fakeTokens
	notes    *fakeHandler
	embedder *fakeEmbedder
	store    *memstore.Store
	queue    *queue.Queue
	pool     *ProcessorPool
}

func newProcessorFixture(t *testing.T, cfg ProcessorConfig) *processorFixture {
	t.Helper()
	f := &processorFixture{
		repo:     newFakeSettingsRepo(),
		tokens:   newFakeTokens("alice"),
		notes:    newFakeHandler(syncdomain.KindNote),
		embedder: &fakeEmbedder{},
		store:    memstore.New(),
		queue:    queue.New(100),
	}
	f.repo.enable(t, "alice", nil)
	if cfg.RetryBaseDelay == 0 {
		cfg.RetryBaseDelay = time.Millisecond
	}
	if cfg.PollTimeout == 0 {
		cfg.PollTimeout = 10 * time.Millisecond
	}
	f.pool = NewProcessorPool(f.queue, syncdomain.NewKindRegistry(f.notes), f.tokens, f.embedder,
		f.store, newTestChunker(t), f.repo, cfg, nil)
	return f
}

func longText(sentences int) string {
	return strings.Repeat("The quick brown fox jumps over the lazy dog. ", sentences)
}

func indexTask(docID string) syncdomain.DocumentTask {
	return syncdomain.NewIndexTask("alice", syncdomain.KindNote, docID, time.Now(), syncdomain.SourceScanner)
}

func TestProcessor_IndexWritesChunksWithMetadata(t *testing.T) {
	f := newProcessorFixture(t, ProcessorConfig{})
	modified := time.Unix(70_000, 0)
	f.notes.put("alice", &syncdomain.Document{ID: "1", Title: "Groceries", Content: longText(5), Path: "Notes/g", ETag: "e1", ModifiedAt: modified})

	f.pool.Handle(context.Background(), indexTask("1"))

	records := f.store.Records("alice")
	require.Greater(t, len(records), 1)
	assert.Equal(t, 1, f.embedder.Calls(), "all fragments are embedded in one call")
	for _, r := range records {
		m := r.Metadata
		assert.Equal(t, syncdomain.ChunkID("alice", syncdomain.KindNote, "1", m.ChunkIndex), r.ID)
		assert.Equal(t, len(records), m.ChunkTotal)
		assert.Equal(t, "1", m.DocID)
		assert.Equal(t, "e1", m.ETag)
		assert.Equal(t, "Groceries", m.Title)
		assert.Equal(t, "Notes/g", m.Path)
		assert.True(t, modified.Equal(m.ModifiedAt))
		assert.False(t, m.IndexedAt.IsZero())
		assert.LessOrEqual(t, len([]rune(m.Excerpt)), syncdomain.ExcerptLength)
	}
	assert.Equal(t, ProcessorStats{Processed: 1}, f.pool.Stats())
}

func TestProcessor_ReindexIsIdempotent(t *testing.T) {
	f := newProcessorFixture(t, ProcessorConfig{})
	f.notes.put("alice", &syncdomain.Document{ID: "1", Content: longText(5), ModifiedAt: time.Now()})

	f.pool.Handle(context.Background(), indexTask("1"))
	first := f.store.Len()
	f.pool.Handle(context.Background(), indexTask("1"))

	assert.Equal(t, first, f.store.Len())
}

func TestProcessor_ShrinkingDocumentRemovesStaleChunks(t *testing.T) {
	f := newProcessorFixture(t, ProcessorConfig{})
	f.notes.put("alice", &syncdomain.Document{ID: "1", Content: longText(10), ModifiedAt: time.Now()})
	f.pool.Handle(context.Background(), indexTask("1"))
	require.Greater(t, f.store.Len(), 2)

	f.notes.put("alice", &syncdomain.Document{ID: "1", Content: "short now", ModifiedAt: time.Now()})
	f.pool.Handle(context.Background(), indexTask("1"))

	records := f.store.Records("alice")
	require.Len(t, records, 1)
	assert.Equal(t, 1, records[0].Metadata.ChunkTotal)
}

func TestProcessor_EmptyContentRemovesDocument(t *testing.T) {
	f := newProcessorFixture(t, ProcessorConfig{})
	f.notes.put("alice", &syncdomain.Document{ID: "1", Content: longText(3), ModifiedAt: time.Now()})
	f.pool.Handle(context.Background(), indexTask("1"))
	require.NotZero(t, f.store.Len())

	f.notes.put("alice", &syncdomain.Document{ID: "1", ModifiedAt: time.Now()})
	f.pool.Handle(context.Background(), indexTask("1"))

	assert.Zero(t, f.store.Len())
}

func TestProcessor_NotFoundLeavesNoVectors(t *testing.T) {
	f := newProcessorFixture(t, ProcessorConfig{})
	f.notes.put("alice", &syncdomain.Document{ID: "1", Content: longText(3), ModifiedAt: time.Now()})
	f.pool.Handle(context.Background(), indexTask("1"))
	f.notes.remove("alice", "1")

	assert.NotPanics(t, func() { f.pool.Handle(context.Background(), indexTask("1")) })

	assert.Zero(t, f.store.Len())
	assert.Equal(t, uint64(0), f.pool.Stats().Failed)
	// One fetch per task: not found is final, never retried
	assert.EqualValues(t, 2, f.notes.fetches.Load())
	assert.Zero(t, f.pool.Stats().Retried)
}

func TestProcessor_DeleteByIDAndByPath(t *testing.T) {
	f := newProcessorFixture(t, ProcessorConfig{})
	f.notes.put("alice", &syncdomain.Document{ID: "1", Content: "one", Path: "Notes/one", ModifiedAt: time.Now()})
	f.notes.put("alice", &syncdomain.Document{ID: "2", Content: "two", Path: "Notes/two", ModifiedAt: time.Now()})
	f.pool.Handle(context.Background(), indexTask("1"))
	f.pool.Handle(context.Background(), indexTask("2"))
	require.Equal(t, 2, f.store.Len())

	f.pool.Handle(context.Background(), syncdomain.NewDeleteTask("alice", syncdomain.KindNote, "1", syncdomain.SourceWebhook))
	assert.Equal(t, 1, f.store.Len())

	pathOnly := syncdomain.NewDeleteTask("alice", syncdomain.KindNote, "", syncdomain.SourceWebhook)
	pathOnly.Path = "Notes/two"
	f.pool.Handle(context.Background(), pathOnly)
	assert.Zero(t, f.store.Len())

	// Deleting again is harmless
	f.pool.Handle(context.Background(), pathOnly)
	assert.Equal(t, uint64(0), f.pool.Stats().Failed)
}

func TestProcessor_TransientErrorsAreRetried(t *testing.T) {
	f := newProcessorFixture(t, ProcessorConfig{MaxRetries: 3})
	f.embedder.failures = 2
	f.embedder.failErr = syncdomain.TransientError(errors.New("429 too many requests"))
	f.notes.put("alice", &syncdomain.Document{ID: "1", Content: "hello", ModifiedAt: time.Now()})

	f.pool.Handle(context.Background(), indexTask("1"))

	assert.Equal(t, 3, f.embedder.Calls())
	assert.Equal(t, 1, f.store.Len())
	assert.Equal(t, ProcessorStats{Processed: 1, Retried: 2}, f.pool.Stats())
}

func TestProcessor_TransientErrorsAreEventuallyAbandoned(t *testing.T) {
	f := newProcessorFixture(t, ProcessorConfig{MaxRetries: 3})
	f.embedder.failures = 100
	f.embedder.failErr = syncdomain.TransientError(errors.New("503"))
	f.notes.put("alice", &syncdomain.Document{ID: "1", Content: "hello", ModifiedAt: time.Now()})

	f.pool.Handle(context.Background(), indexTask("1"))

	assert.Equal(t, 4, f.embedder.Calls())
	assert.Zero(t, f.store.Len())
	assert.Equal(t, uint64(1), f.pool.Stats().Failed)
}

func TestProcessor_PermanentErrorsAreNotRetried(t *testing.T) {
	f := newProcessorFixture(t, ProcessorConfig{MaxRetries: 3})
	f.embedder.failures = 100
	f.embedder.failErr = errors.New("unsupported input")
	f.notes.put("alice", &syncdomain.Document{ID: "1", Content: "hello", ModifiedAt: time.Now()})

	f.pool.Handle(context.Background(), indexTask("1"))

	assert.Equal(t, 1, f.embedder.Calls())
	assert.Equal(t, uint64(1), f.pool.Stats().Failed)
}

func TestProcessor_OversizedDocumentIsDropped(t *testing.T) {
	f := newProcessorFixture(t, ProcessorConfig{MaxDocumentChars: 10})
	f.notes.put("alice", &syncdomain.Document{ID: "1", Content: longText(2), ModifiedAt: time.Now()})

	f.pool.Handle(context.Background(), indexTask("1"))

	assert.Zero(t, f.embedder.Calls())
	assert.Zero(t, f.store.Len())
}

func TestProcessor_NotAuthorizedInvalidatesToken(t *testing.T) {
	f := newProcessorFixture(t, ProcessorConfig{MaxRetries: 3})
	f.notes.fetchFn = func(docID string) (*syncdomain.Document, error) {
		return nil, syncdomain.ErrNotAuthorized
	}

	f.pool.Handle(context.Background(), indexTask("1"))

	assert.Equal(t, int32(1), f.notes.fetches.Load())
	assert.Equal(t, []string{"alice"}, f.tokens.invalidated)
}

func TestProcessor_UnknownKindIsPermanent(t *testing.T) {
	f := newProcessorFixture(t, ProcessorConfig{MaxRetries: 3})
	task := syncdomain.NewIndexTask("alice", "calendar", "1", time.Now(), syncdomain.SourceWebhook)

	f.pool.Handle(context.Background(), task)

	assert.Equal(t, uint64(1), f.pool.Stats().Failed)
	assert.Zero(t, f.embedder.Calls())
}

func TestProcessor_PanicIsRecovered(t *testing.T) {
	f := newProcessorFixture(t, ProcessorConfig{})
	f.embedder.panicMsg = "embedding backend exploded"
	f.notes.put("alice", &syncdomain.Document{ID: "1", Content: "hello", ModifiedAt: time.Now()})

	assert.NotPanics(t, func() { f.pool.Handle(context.Background(), indexTask("1")) })
	assert.Equal(t, uint64(1), f.pool.Stats().Failed)
}

func TestProcessor_DisabledUserIsSkipped(t *testing.T) {
	f := newProcessorFixture(t, ProcessorConfig{})
	_, err := f.repo.SetEnabled("alice", false)
	require.NoError(t, err)
	f.notes.put("alice", &syncdomain.Document{ID: "1", Content: "hello", ModifiedAt: time.Now()})

	f.pool.Handle(context.Background(), indexTask("1"))

	assert.Zero(t, f.store.Len())
	assert.Zero(t, f.notes.fetches.Load())
}

func TestProcessor_ConcurrentSameDocumentHasNoDuplicates(t *testing.T) {
	f := newProcessorFixture(t, ProcessorConfig{})
	f.notes.put("alice", &syncdomain.Document{ID: "1", Content: longText(8), ModifiedAt: time.Now()})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.pool.Handle(context.Background(), indexTask("1"))
		}()
	}
	wg.Wait()

	records := f.store.Records("alice")
	require.NotEmpty(t, records)
	seen := make(map[int]bool)
	for _, r := range records {
		assert.False(t, seen[r.Metadata.ChunkIndex], "duplicate chunk %d", r.Metadata.ChunkIndex)
		seen[r.Metadata.ChunkIndex] = true
	}
	assert.Len(t, records, records[0].Metadata.ChunkTotal)
}

func TestProcessor_RunDrainsQueueAndStops(t *testing.T) {
	f := newProcessorFixture(t, ProcessorConfig{Workers: 3})
	for _, id := range []string{"1", "2", "3", "4", "5"} {
		f.notes.put("alice", &syncdomain.Document{ID: id, Content: "doc " + id, ModifiedAt: time.Now()})
		require.NoError(t, f.queue.TryEnqueue(indexTask(id)))
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.pool.Run(ctx) }()

	require.Eventually(t, func() bool { return f.store.Len() == 5 }, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("processor pool did not stop")
	}
}

func TestProcessor_DrainReturnsWhenIdle(t *testing.T) {
	f := newProcessorFixture(t, ProcessorConfig{Workers: 2})
	for _, id := range []string{"1", "2", "3"} {
		f.notes.put("alice", &syncdomain.Document{ID: id, Content: "doc " + id, ModifiedAt: time.Now()})
		require.NoError(t, f.queue.TryEnqueue(indexTask(id)))
	}

	require.NoError(t, f.pool.Drain(context.Background()))

	assert.Equal(t, 3, f.store.Len())
	assert.Zero(t, f.queue.Len())
}

func TestProcessor_DisabledDuringIndexLeavesNoVectors(t *testing.T) {
	f := newProcessorFixture(t, ProcessorConfig{})
	f.notes.fetchFn = func(docID string) (*syncdomain.Document, error) {
		// Opt-out lands while the document is being fetched
		_, err := f.repo.SetEnabled("alice", false)
		require.NoError(t, err)
		return &syncdomain.Document{ID: docID, Kind: syncdomain.KindNote, Content: longText(4), ModifiedAt: time.Now()}, nil
	}

	f.pool.Handle(context.Background(), indexTask("1"))

	assert.Empty(t, f.store.Records("alice"))
}

// writeTrackingStore reports the end of every document write
type writeTrackingStore struct {
	*memstore.Store
	written func()
}

func (s *writeTrackingStore) DeleteStaleChunks(ctx context.Context, userID string, kind syncdomain.Kind, docID string, keep []string) error {
	defer s.written()
	return s.Store.DeleteStaleChunks(ctx, userID, kind, docID, keep)
}

func TestProcessor_ConcurrentVersionsOfOneDocumentDoNotInterleave(t *testing.T) {
	f := newProcessorFixture(t, ProcessorConfig{})
	var active, maxActive, calls atomic.Int32
	f.notes.fetchFn = func(docID string) (*syncdomain.Document, error) {
		n := active.Add(1)
		for {
			m := maxActive.Load()
			if n <= m || maxActive.CompareAndSwap(m, n) {
				break
			}
		}
		content := longText(3)
		if calls.Add(1) == 1 {
			// The older, longer version is slow to arrive
			content = longText(8)
			time.Sleep(50 * time.Millisecond)
		}
		return &syncdomain.Document{ID: docID, Kind: syncdomain.KindNote, Content: content, ModifiedAt: time.Now()}, nil
	}
	store := &writeTrackingStore{Store: f.store, written: func() { active.Add(-1) }}
	pool := NewProcessorPool(f.queue, syncdomain.NewKindRegistry(f.notes), f.tokens, f.embedder,
		store, newTestChunker(t), f.repo, ProcessorConfig{RetryBaseDelay: time.Millisecond}, nil)

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pool.Handle(context.Background(), indexTask("1"))
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 2, calls.Load())
	assert.EqualValues(t, 1, maxActive.Load(), "fetch and write of one document overlapped")

	want := newTestChunker(t).Split(longText(3))
	records := f.store.Records("alice")
	require.Len(t, records, len(want))
	for _, r := range records {
		assert.Equal(t, len(want), r.Metadata.ChunkTotal)
		assert.True(t, r.Metadata.IndexedAt.Equal(records[0].Metadata.IndexedAt))
	}
	assert.Zero(t, pool.docs.size())
}
