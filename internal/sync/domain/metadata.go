package domain

import (
	"fmt"
	"path"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Metadata keys stored with every vector chunk
const (
	MetaUserID     = "user_id"
	MetaDocID      = "doc_id"
	MetaKind       = "kind"
	MetaChunkIndex = "chunk_index"
	MetaChunkTotal = "chunk_total"
	MetaIndexedAt  = "indexed_at"
	MetaModifiedAt = "modified_at"
	MetaETag       = "etag"
	MetaExcerpt    = "excerpt"
	MetaTitle      = "title"
	MetaPath       = "path"
)

// ExcerptLength is the maximum rune length of the stored excerpt
const ExcerptLength = 200

// chunkNamespace scopes the deterministic chunk ids
var chunkNamespace = uuid.MustParse("6f1c3d2e-5b7a-4c1e-9d0f-2a8b4e6c7d10")

// IndexedVectorMetadata is the payload written next to every chunk vector.
// A vector with (UserID, DocID, Kind) existing is the only record that the document is indexed.
type IndexedVectorMetadata struct {
	UserID     string
	DocID      string
	Kind       Kind
	ChunkIndex int
	ChunkTotal int
	IndexedAt  time.Time
	ModifiedAt time.Time
	ETag       string
	Excerpt    string
	Title      string
	Path       string
}

// ToMap flattens the metadata into vector store friendly scalars
func (m IndexedVectorMetadata) ToMap() map[string]interface{} {
	return map[string]interface{}{
		MetaUserID:     m.UserID,
		MetaDocID:      m.DocID,
		MetaKind:       string(m.Kind),
		MetaChunkIndex: int64(m.ChunkIndex),
		MetaChunkTotal: int64(m.ChunkTotal),
		MetaIndexedAt:  m.IndexedAt.Unix(),
		MetaModifiedAt: m.ModifiedAt.Unix(),
		MetaETag:       m.ETag,
		MetaExcerpt:    m.Excerpt,
		MetaTitle:      m.Title,
		MetaPath:       m.Path,
	}
}

// VectorRecord is one chunk ready to be written to the vector store
type VectorRecord struct {
	ID       string
	Vector   []float32
	Text     string
	Metadata IndexedVectorMetadata
}

// IndexedDocument summarizes what the vector store knows about one document
type IndexedDocument struct {
	DocID      string
	IndexedAt  time.Time
	ModifiedAt time.Time
	Chunks     int
}

// ChunkID returns the deterministic id of a chunk so that re-indexing overwrites instead of duplicating
func ChunkID(userID string, kind Kind, docID string, chunkIndex int) string {
	name := fmt.Sprintf("%s/%s/%s/%d", userID, kind, docID, chunkIndex)
	return uuid.NewSHA1(chunkNamespace, []byte(name)).String()
}

// Excerpt truncates text to ExcerptLength runes
func Excerpt(text string) string {
	if utf8.RuneCountInString(text) <= ExcerptLength {
		return text
	}
	runes := []rune(text)
	return string(runes[:ExcerptLength])
}

// NotePathKey is the stored form of a note file path: the path without its
// extension. The Notes app writes .txt or .md depending on a per-user setting.
func NotePathKey(p string) string {
	return strings.TrimSuffix(p, path.Ext(p))
}
