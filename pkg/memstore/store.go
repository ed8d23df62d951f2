// Package memstore is an in-process vector store for development and tests.
package memstore

import (
	"context"
	"sync"

	syncdomain "vectorsync-backend/internal/sync/domain"
)

// Store keeps vector records in a map keyed by chunk id. It is safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	records map[string]syncdomain.VectorRecord
	upserts int
}

// New creates an empty store
func New() *Store {
	return &Store{records: make(map[string]syncdomain.VectorRecord)}
}

func (s *Store) ListIndexed(ctx context.Context, userID string, kind syncdomain.Kind) (map[string]syncdomain.IndexedDocument, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]syncdomain.IndexedDocument)
	for _, r := range s.records {
		m := r.Metadata
		if m.UserID != userID || m.Kind != kind {
			continue
		}
		doc, ok := out[m.DocID]
		if !ok {
			doc = syncdomain.IndexedDocument{DocID: m.DocID, IndexedAt: m.IndexedAt, ModifiedAt: m.ModifiedAt}
		}
		// The oldest chunk decides staleness
		if m.IndexedAt.Before(doc.IndexedAt) {
			doc.IndexedAt = m.IndexedAt
		}
		doc.Chunks++
		out[m.DocID] = doc
	}
	return out, nil
}

func (s *Store) Upsert(ctx context.Context, records []syncdomain.VectorRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		r.Vector = append([]float32(nil), r.Vector...)
		s.records[r.ID] = r
	}
	s.upserts++
	return nil
}

func (s *Store) DeleteDocument(ctx context.Context, userID string, kind syncdomain.Kind, docID string) error {
	return s.deleteWhere(ctx, func(m syncdomain.IndexedVectorMetadata) bool {
		return m.UserID == userID && m.Kind == kind && m.DocID == docID
	})
}

func (s *Store) DeleteByPath(ctx context.Context, userID string, kind syncdomain.Kind, path string) error {
	return s.deleteWhere(ctx, func(m syncdomain.IndexedVectorMetadata) bool {
		return m.UserID == userID && m.Kind == kind && m.Path == path
	})
}

func (s *Store) DeleteStaleChunks(ctx context.Context, userID string, kind syncdomain.Kind, docID string, keep []string) error {
	keepSet := make(map[string]struct{}, len(keep))
	for _, id := range keep {
		keepSet[id] = struct{}{}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, r := range s.records {
		m := r.Metadata
		if m.UserID != userID || m.Kind != kind || m.DocID != docID {
			continue
		}
		if _, ok := keepSet[id]; !ok {
			delete(s.records, id)
		}
	}
	return nil
}

func (s *Store) DeleteUser(ctx context.Context, userID string) error {
	return s.deleteWhere(ctx, func(m syncdomain.IndexedVectorMetadata) bool {
		return m.UserID == userID
	})
}

func (s *Store) CountDocuments(ctx context.Context, userID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	docs := make(map[string]struct{})
	for _, r := range s.records {
		if r.Metadata.UserID == userID {
			docs[string(r.Metadata.Kind)+"/"+r.Metadata.DocID] = struct{}{}
		}
	}
	return len(docs), nil
}

func (s *Store) deleteWhere(ctx context.Context, match func(syncdomain.IndexedVectorMetadata) bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, r := range s.records {
		if match(r.Metadata) {
			delete(s.records, id)
		}
	}
	return nil
}

// Records returns a snapshot of every record of a user
func (s *Store) Records(userID string) []syncdomain.VectorRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []syncdomain.VectorRecord
	for _, r := range s.records {
		if r.Metadata.UserID == userID {
			out = append(out, r)
		}
	}
	return out
}

// Len returns the total number of stored chunks
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Upserts returns how many Upsert calls succeeded
func (s *Store) Upserts() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.upserts
}
