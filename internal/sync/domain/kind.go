package domain

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Kind identifies a content type. The set is open: new kinds register a KindHandler.
type Kind string

const (
	KindNote     Kind = "note"
	KindTableRow Kind = "table-row"
)

// KindHandler knows how to list and fetch one kind of document from the content service
type KindHandler interface {
	Kind() Kind
	// List returns every document of this kind visible with the given access token
	List(ctx context.Context, accessToken string) ([]RemoteDocument, error)
	// Fetch returns the current content of one document
	Fetch(ctx context.Context, accessToken, docID string) (*Document, error)
}

// KindRegistry maps kinds to their handlers
type KindRegistry struct {
	mu       sync.RWMutex
	handlers map[Kind]KindHandler
}

// NewKindRegistry creates a registry pre-populated with the given handlers
func NewKindRegistry(handlers ...KindHandler) *KindRegistry {
	r := &KindRegistry{handlers: make(map[Kind]KindHandler)}
	for _, h := range handlers {
		r.Register(h)
	}
	return r
}

// Register adds or replaces the handler for h.Kind()
func (r *KindRegistry) Register(h KindHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[h.Kind()] = h
}

// Get returns the handler for kind
func (r *KindRegistry) Get(kind Kind) (KindHandler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	return h, nil
}

// Kinds returns the registered kinds in a stable order
func (r *KindRegistry) Kinds() []Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]Kind, 0, len(r.handlers))
	for k := range r.handlers {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}
