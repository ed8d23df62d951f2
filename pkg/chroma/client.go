// Package chroma stores document chunks in a Chroma collection.
package chroma

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	syncdomain "vectorsync-backend/internal/sync/domain"

	chroma "github.com/amikos-tech/chroma-go/pkg/api/v2"
	"github.com/amikos-tech/chroma-go/pkg/embeddings"
)

const (
	DefaultCollection = "documents"
	defaultPageSize   = 500
)

// Options configures the Chroma connection
type Options struct {
	BaseURL    string // Empty uses Chroma Cloud
	APIKey     string
	Tenant     string
	Database   string
	Collection string
	PageSize   int
}

// ChromaClient implements the engine's vector store on one Chroma collection
type ChromaClient struct {
	client     chroma.Client
	collection chroma.Collection
	pageSize   int
	logger     *slog.Logger
}

// NewChromaClient connects and creates the collection once. ef must be the same
// embedding function used to produce vectors so the collection dimension matches.
func NewChromaClient(ctx context.Context, opts Options, ef embeddings.EmbeddingFunction, logger *slog.Logger) (*ChromaClient, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Collection == "" {
		opts.Collection = DefaultCollection
	}
	if opts.PageSize <= 0 {
		opts.PageSize = defaultPageSize
	}

	clientOpts := []chroma.ClientOption{}
	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, chroma.WithBaseURL(opts.BaseURL))
	} else {
		if opts.APIKey == "" {
			return nil, fmt.Errorf("CHROMA_API_KEY is required for Chroma Cloud")
		}
		clientOpts = append(clientOpts, chroma.WithBaseURL(chroma.ChromaCloudEndpoint))
	}
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, chroma.WithCloudAPIKey(opts.APIKey))
	}
	if opts.Database != "" && opts.Tenant != "" {
		clientOpts = append(clientOpts, chroma.WithDatabaseAndTenant(opts.Database, opts.Tenant))
	} else if opts.Tenant != "" {
		clientOpts = append(clientOpts, chroma.WithTenant(opts.Tenant))
	}

	client, err := chroma.NewHTTPClient(clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Chroma client: %w", err)
	}

	collection, err := client.GetOrCreateCollection(
		ctx,
		opts.Collection,
		chroma.WithEmbeddingFunctionCreate(ef),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create collection: %w", err)
	}

	logger.Info("initialized Chroma client", "component", "chroma", "collection", opts.Collection)

	return &ChromaClient{
		client:     client,
		collection: collection,
		pageSize:   opts.PageSize,
		logger:     logger.With("component", "chroma"),
	}, nil
}

func (c *ChromaClient) Upsert(ctx context.Context, records []syncdomain.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}

	ids := make([]chroma.DocumentID, len(records))
	texts := make([]string, len(records))
	metadatas := make([]chroma.DocumentMetadata, len(records))
	embs := make([]embeddings.Embedding, len(records))
	for i, r := range records {
		metadata, err := chroma.NewDocumentMetadataFromMap(r.Metadata.ToMap())
		if err != nil {
			return fmt.Errorf("failed to create metadata: %w", err)
		}
		ids[i] = chroma.DocumentID(r.ID)
		texts[i] = r.Text
		metadatas[i] = metadata
		embs[i] = embeddings.NewEmbeddingFromFloat32(r.Vector)
	}

	// Deterministic ids make this an overwrite for re-indexed chunks
	err := c.collection.Upsert(
		ctx,
		chroma.WithIDs(ids...),
		chroma.WithTexts(texts...),
		chroma.WithMetadatas(metadatas...),
		chroma.WithEmbeddings(embs...),
	)
	if err != nil {
		return storeError("upsert chunks", err)
	}
	return nil
}

func (c *ChromaClient) ListIndexed(ctx context.Context, userID string, kind syncdomain.Kind) (map[string]syncdomain.IndexedDocument, error) {
	where := chroma.And(
		chroma.EqString(syncdomain.MetaUserID, userID),
		chroma.EqString(syncdomain.MetaKind, string(kind)),
	)

	out := make(map[string]syncdomain.IndexedDocument)
	err := c.scan(ctx, where, func(_ string, md chroma.DocumentMetadata) {
		docID, ok := md.GetString(syncdomain.MetaDocID)
		if !ok || docID == "" {
			return
		}
		indexedAt := unixMeta(md, syncdomain.MetaIndexedAt)
		doc, seen := out[docID]
		if !seen {
			doc = syncdomain.IndexedDocument{
				DocID:      docID,
				IndexedAt:  indexedAt,
				ModifiedAt: unixMeta(md, syncdomain.MetaModifiedAt),
			}
		}
		// The oldest chunk decides staleness
		if indexedAt.Before(doc.IndexedAt) {
			doc.IndexedAt = indexedAt
		}
		doc.Chunks++
		out[docID] = doc
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ChromaClient) DeleteDocument(ctx context.Context, userID string, kind syncdomain.Kind, docID string) error {
	err := c.collection.Delete(ctx, chroma.WithWhereDelete(chroma.And(
		chroma.EqString(syncdomain.MetaUserID, userID),
		chroma.EqString(syncdomain.MetaKind, string(kind)),
		chroma.EqString(syncdomain.MetaDocID, docID),
	)))
	if err != nil {
		return storeError("delete document", err)
	}
	return nil
}

func (c *ChromaClient) DeleteByPath(ctx context.Context, userID string, kind syncdomain.Kind, path string) error {
	err := c.collection.Delete(ctx, chroma.WithWhereDelete(chroma.And(
		chroma.EqString(syncdomain.MetaUserID, userID),
		chroma.EqString(syncdomain.MetaKind, string(kind)),
		chroma.EqString(syncdomain.MetaPath, path),
	)))
	if err != nil {
		return storeError("delete document by path", err)
	}
	return nil
}

func (c *ChromaClient) DeleteStaleChunks(ctx context.Context, userID string, kind syncdomain.Kind, docID string, keep []string) error {
	keepSet := make(map[string]struct{}, len(keep))
	for _, id := range keep {
		keepSet[id] = struct{}{}
	}

	where := chroma.And(
		chroma.EqString(syncdomain.MetaUserID, userID),
		chroma.EqString(syncdomain.MetaKind, string(kind)),
		chroma.EqString(syncdomain.MetaDocID, docID),
	)
	var stale []chroma.DocumentID
	err := c.scan(ctx, where, func(id string, _ chroma.DocumentMetadata) {
		if _, ok := keepSet[id]; !ok {
			stale = append(stale, chroma.DocumentID(id))
		}
	})
	if err != nil {
		return err
	}
	if len(stale) == 0 {
		return nil
	}

	if err := c.collection.Delete(ctx, chroma.WithIDsDelete(stale...)); err != nil {
		return storeError("delete stale chunks", err)
	}
	c.logger.Debug("deleted stale chunks", "user_id", userID, "doc_id", docID, "count", len(stale))
	return nil
}

func (c *ChromaClient) DeleteUser(ctx context.Context, userID string) error {
	err := c.collection.Delete(ctx, chroma.WithWhereDelete(chroma.EqString(syncdomain.MetaUserID, userID)))
	if err != nil {
		return storeError("delete user documents", err)
	}
	return nil
}

func (c *ChromaClient) CountDocuments(ctx context.Context, userID string) (int, error) {
	docs := make(map[string]struct{})
	err := c.scan(ctx, chroma.EqString(syncdomain.MetaUserID, userID), func(_ string, md chroma.DocumentMetadata) {
		kind, _ := md.GetString(syncdomain.MetaKind)
		docID, _ := md.GetString(syncdomain.MetaDocID)
		docs[kind+"/"+docID] = struct{}{}
	})
	if err != nil {
		return 0, err
	}
	return len(docs), nil
}

// scan pages through every chunk matching where, metadata only
func (c *ChromaClient) scan(ctx context.Context, where chroma.WhereClause, fn func(id string, md chroma.DocumentMetadata)) error {
	for offset := 0; ; offset += c.pageSize {
		result, err := c.collection.Get(
			ctx,
			chroma.WithWhereGet(where),
			chroma.WithIncludeGet(chroma.IncludeMetadatas),
			chroma.WithLimitGet(c.pageSize),
			chroma.WithOffsetGet(offset),
		)
		if err != nil {
			return storeError("list chunks", err)
		}

		ids := result.GetIDs()
		metadatas := result.GetMetadatas()
		for i, id := range ids {
			if i >= len(metadatas) || metadatas[i] == nil {
				continue
			}
			fn(string(id), metadatas[i])
		}
		if len(ids) < c.pageSize {
			return nil
		}
	}
}

// unixMeta reads a unix-seconds metadata value; JSON numbers may come back as floats
func unixMeta(md chroma.DocumentMetadata, key string) time.Time {
	if v, ok := md.GetInt(key); ok && v > 0 {
		return time.Unix(v, 0)
	}
	if v, ok := md.GetFloat(key); ok && v > 0 {
		return time.Unix(int64(v), 0)
	}
	return time.Time{}
}

// Vector store failures are infrastructure failures and worth retrying
func storeError(op string, err error) error {
	return syncdomain.TransientError(fmt.Errorf("failed to %s: %w", op, err))
}
