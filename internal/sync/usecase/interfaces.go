package usecase

import (
	"context"

	syncdomain "vectorsync-backend/internal/sync/domain"
)

// TokenProvider resolves a user to a content-service access token.
// Missing or revoked grants are reported with syncdomain.ErrNotAuthorized.
type TokenProvider interface {
	AccessToken(ctx context.Context, userID string) (string, error)
}

// tokenInvalidator is implemented by providers that cache tokens
type tokenInvalidator interface {
	Invalidate(userID string)
}

// Embedder turns texts into vectors, one per input, in order
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorStore is the subset of a vector database the engine relies on.
// All deletes are idempotent.
type VectorStore interface {
	// ListIndexed returns what is indexed for a user and kind, keyed by doc id
	ListIndexed(ctx context.Context, userID string, kind syncdomain.Kind) (map[string]syncdomain.IndexedDocument, error)
	Upsert(ctx context.Context, records []syncdomain.VectorRecord) error
	DeleteDocument(ctx context.Context, userID string, kind syncdomain.Kind, docID string) error
	DeleteByPath(ctx context.Context, userID string, kind syncdomain.Kind, path string) error
	// DeleteStaleChunks removes chunks of the document whose ids are not in keep
	DeleteStaleChunks(ctx context.Context, userID string, kind syncdomain.Kind, docID string, keep []string) error
	DeleteUser(ctx context.Context, userID string) error
	// CountDocuments returns the number of distinct documents indexed for a user
	CountDocuments(ctx context.Context, userID string) (int, error)
}

// ScanTrigger requests an out-of-schedule scan pass
type ScanTrigger interface {
	TriggerScan()
}
