package chroma

import (
	"errors"
	"testing"
	"time"

	syncdomain "vectorsync-backend/internal/sync/domain"

	chroma "github.com/amikos-tech/chroma-go/pkg/api/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnixMeta(t *testing.T) {
	md, err := chroma.NewDocumentMetadataFromMap(map[string]interface{}{
		syncdomain.MetaIndexedAt:  int64(1700000000),
		syncdomain.MetaModifiedAt: float64(1600000000),
	})
	require.NoError(t, err)

	assert.Equal(t, time.Unix(1700000000, 0), unixMeta(md, syncdomain.MetaIndexedAt))
	assert.Equal(t, time.Unix(1600000000, 0), unixMeta(md, syncdomain.MetaModifiedAt))
	assert.True(t, unixMeta(md, syncdomain.MetaETag).IsZero())
}

func TestUnixMeta_ZeroModifiedTime(t *testing.T) {
	meta := syncdomain.IndexedVectorMetadata{UserID: "u1", DocID: "d1", Kind: syncdomain.KindNote, IndexedAt: time.Unix(1700000000, 0)}
	md, err := chroma.NewDocumentMetadataFromMap(meta.ToMap())
	require.NoError(t, err)

	assert.True(t, unixMeta(md, syncdomain.MetaModifiedAt).IsZero())
}

func TestStoreError(t *testing.T) {
	err := storeError("upsert chunks", errors.New("connection reset"))
	assert.True(t, syncdomain.IsTransient(err))
	assert.Contains(t, err.Error(), "failed to upsert chunks")
}

func TestNewChromaClient_CloudRequiresKey(t *testing.T) {
	_, err := NewChromaClient(t.Context(), Options{}, nil, nil)
	assert.Error(t, err)
}
