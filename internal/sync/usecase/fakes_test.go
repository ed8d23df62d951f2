package usecase

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	syncdomain "vectorsync-backend/internal/sync/domain"
	"vectorsync-backend/pkg/chunker"

	"github.com/stretchr/testify/require"
)

type fakeSettingsRepo struct {
	mu       sync.Mutex
	settings map[string]*syncdomain.SyncSettings
	listErr  error
}

func newFakeSettingsRepo() *fakeSettingsRepo {
	return &fakeSettingsRepo{settings: make(map[string]*syncdomain.SyncSettings)}
}

func (r *fakeSettingsRepo) FindByUserID(userID string) (*syncdomain.SyncSettings, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.settings[userID]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (r *fakeSettingsRepo) ListEnabled() ([]*syncdomain.SyncSettings, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listErr != nil {
		return nil, r.listErr
	}
	var out []*syncdomain.SyncSettings
	for _, s := range r.settings {
		if s.Enabled {
			cp := *s
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (r *fakeSettingsRepo) SetEnabled(userID string, enabled bool) (*syncdomain.SyncSettings, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.settings[userID]
	if !ok {
		s = &syncdomain.SyncSettings{ID: "id-" + userID, UserID: userID, LastStatus: syncdomain.SyncStatusIdle}
		r.settings[userID] = s
	}
	s.Enabled = enabled
	cp := *s
	return &cp, nil
}

func (r *fakeSettingsRepo) UpdateStatus(userID string, status syncdomain.SyncStatus, lastError string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.settings[userID]; ok {
		s.LastStatus = status
		s.LastError = lastError
	}
	return nil
}

func (r *fakeSettingsRepo) CompleteScan(userID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.settings[userID]; ok {
		s.LastStatus = syncdomain.SyncStatusIdle
		s.LastError = ""
		s.LastScanAt = &at
	}
	return nil
}

func (r *fakeSettingsRepo) enable(t *testing.T, userID string, lastScan *time.Time) {
	t.Helper()
	_, err := r.SetEnabled(userID, true)
	require.NoError(t, err)
	r.mu.Lock()
	r.settings[userID].LastScanAt = lastScan
	r.mu.Unlock()
}

type fakeTokens struct {
	mu          sync.Mutex
	tokens      map[string]string
	invalidated []string
}

func newFakeTokens(users ...string) *fakeTokens {
	f := &fakeTokens{tokens: make(map[string]string)}
	for _, u := range users {
		f.tokens[u] = "token-" + u
	}
	return f
}

func (f *fakeTokens) AccessToken(ctx context.Context, userID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tok, ok := f.tokens[userID]
	if !ok {
		return "", fmt.Errorf("no token for %s: %w", userID, syncdomain.ErrNotAuthorized)
	}
	return tok, nil
}

func (f *fakeTokens) Invalidate(userID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidated = append(f.invalidated, userID)
}

// fakeHandler serves documents per access token
type fakeHandler struct {
	kind    syncdomain.Kind
	mu      sync.Mutex
	docs    map[string]map[string]*syncdomain.Document // token -> id -> doc
	listErr map[string]error
	fetchFn func(docID string) (*syncdomain.Document, error)
	fetches atomic.Int32
}

func newFakeHandler(kind syncdomain.Kind) *fakeHandler {
	return &fakeHandler{
		kind:    kind,
		docs:    make(map[string]map[string]*syncdomain.Document),
		listErr: make(map[string]error),
	}
}

func (h *fakeHandler) put(userID string, doc *syncdomain.Document) {
	h.mu.Lock()
	defer h.mu.Unlock()
	token := "token-" + userID
	if h.docs[token] == nil {
		h.docs[token] = make(map[string]*syncdomain.Document)
	}
	doc.Kind = h.kind
	h.docs[token][doc.ID] = doc
}

func (h *fakeHandler) remove(userID, docID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.docs["token-"+userID], docID)
}

func (h *fakeHandler) Kind() syncdomain.Kind { return h.kind }

func (h *fakeHandler) List(ctx context.Context, accessToken string) ([]syncdomain.RemoteDocument, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.listErr[accessToken]; err != nil {
		return nil, err
	}
	var out []syncdomain.RemoteDocument
	for _, d := range h.docs[accessToken] {
		out = append(out, syncdomain.RemoteDocument{ID: d.ID, Kind: h.kind, ModifiedAt: d.ModifiedAt, ETag: d.ETag, Path: d.Path})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (h *fakeHandler) Fetch(ctx context.Context, accessToken, docID string) (*syncdomain.Document, error) {
	h.fetches.Add(1)
	if h.fetchFn != nil {
		return h.fetchFn(docID)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	d, ok := h.docs[accessToken][docID]
	if !ok {
		return nil, syncdomain.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

type fakeEmbedder struct {
	mu       sync.Mutex
	calls    int
	failures int
	failErr  error
	panicMsg string
}

func (e *fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.calls++
	calls := e.calls
	e.mu.Unlock()

	if e.panicMsg != "" {
		panic(e.panicMsg)
	}
	if calls <= e.failures {
		return nil, e.failErr
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1}
	}
	return out, nil
}

func (e *fakeEmbedder) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

func newTestChunker(t *testing.T) *chunker.Chunker {
	t.Helper()
	c, err := chunker.New(50, 10)
	require.NoError(t, err)
	return c
}
