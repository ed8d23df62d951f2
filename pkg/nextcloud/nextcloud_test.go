package nextcloud

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"
	"time"

	syncdomain "vectorsync-backend/internal/sync/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testToken = "access-123"

// newTestServer serves fixed JSON bodies per path and rejects requests without the bearer token
func newTestServer(t *testing.T, routes map[string]interface{}) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+testToken {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		assert.Equal(t, "true", r.Header.Get("OCS-APIRequest"))

		body, ok := routes[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		if status, ok := body.(int); ok {
			w.WriteHeader(status)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNotesHandler_List(t *testing.T) {
	srv := newTestServer(t, map[string]interface{}{
		notesAPI: []map[string]interface{}{
			{"id": 12, "etag": "e1", "modified": 1700000000, "title": "Groceries", "category": ""},
			{"id": 13, "etag": "e2", "modified": 1700000100, "title": "Plan", "category": "Work"},
		},
	})
	h := NewNotesHandler(NewClient(srv.URL, time.Second, nil, nil), "")

	docs, err := h.List(context.Background(), testToken)
	require.NoError(t, err)
	require.Len(t, docs, 2)

	assert.Equal(t, "12", docs[0].ID)
	assert.Equal(t, syncdomain.KindNote, docs[0].Kind)
	assert.Equal(t, time.Unix(1700000000, 0), docs[0].ModifiedAt)
	assert.Equal(t, "Notes/Groceries", docs[0].Path)
	assert.Equal(t, "Notes/Work/Plan", docs[1].Path)
}

func TestNotesHandler_Fetch(t *testing.T) {
	srv := newTestServer(t, map[string]interface{}{
		notesAPI + "/12": map[string]interface{}{
			"id": 12, "etag": "e1", "modified": 1700000000, "title": "Groceries", "content": "milk\neggs",
		},
	})
	h := NewNotesHandler(NewClient(srv.URL, time.Second, nil, nil), "Notes")

	doc, err := h.Fetch(context.Background(), testToken, "12")
	require.NoError(t, err)
	assert.Equal(t, "Groceries", doc.Title)
	assert.Equal(t, "milk\neggs", doc.Content)
	assert.Equal(t, "e1", doc.ETag)
}

func TestNotesHandler_FetchErrors(t *testing.T) {
	srv := newTestServer(t, map[string]interface{}{
		notesAPI + "/500": http.StatusInternalServerError,
		notesAPI + "/429": http.StatusTooManyRequests,
		notesAPI + "/400": http.StatusBadRequest,
	})
	h := NewNotesHandler(NewClient(srv.URL, time.Second, nil, nil), "")
	ctx := context.Background()

	_, err := h.Fetch(ctx, testToken, "404")
	assert.ErrorIs(t, err, syncdomain.ErrNotFound)
	assert.False(t, syncdomain.IsTransient(err))

	_, err = h.Fetch(ctx, "wrong-token", "12")
	assert.ErrorIs(t, err, syncdomain.ErrNotAuthorized)

	_, err = h.Fetch(ctx, testToken, "500")
	assert.True(t, syncdomain.IsTransient(err))

	_, err = h.Fetch(ctx, testToken, "429")
	assert.True(t, syncdomain.IsTransient(err))

	_, err = h.Fetch(ctx, testToken, "400")
	assert.ErrorIs(t, err, syncdomain.ErrPermanent)

	_, err = h.Fetch(ctx, testToken, "../etc")
	assert.ErrorIs(t, err, syncdomain.ErrPermanent)
}

func TestClient_ServerDown(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	h := NewNotesHandler(NewClient(url, time.Second, nil, nil), "")
	_, err := h.List(context.Background(), testToken)
	require.Error(t, err)
	assert.True(t, syncdomain.IsTransient(err))
}

func TestTablesHandler_List(t *testing.T) {
	srv := newTestServer(t, map[string]interface{}{
		tablesAPI + "/tables": []map[string]interface{}{
			{"id": 1, "title": "Books"},
			{"id": 2, "title": "Films"},
		},
		tablesAPI + "/tables/1/rows": []map[string]interface{}{
			{"id": 10, "tableId": 1, "lastEditAt": "2024-01-02 03:04:05"},
			{"id": 11, "tableId": 1, "lastEditAt": "2024-01-03 03:04:05"},
		},
		tablesAPI + "/tables/2/rows": []map[string]interface{}{
			{"id": 20, "tableId": 2, "lastEditAt": ""},
		},
	})
	h := NewTablesHandler(NewClient(srv.URL, time.Second, nil, nil))

	docs, err := h.List(context.Background(), testToken)
	require.NoError(t, err)
	require.Len(t, docs, 3)

	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	assert.Equal(t, "10", docs[0].ID)
	assert.Equal(t, syncdomain.KindTableRow, docs[0].Kind)
	assert.Equal(t, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), docs[0].ModifiedAt)
	assert.Equal(t, "Tables/Books/10", docs[0].Path)
	assert.True(t, docs[2].ModifiedAt.IsZero())
}

func TestTablesHandler_ListFailsOnRowError(t *testing.T) {
	srv := newTestServer(t, map[string]interface{}{
		tablesAPI + "/tables":        []map[string]interface{}{{"id": 1, "title": "Books"}},
		tablesAPI + "/tables/1/rows": http.StatusBadGateway,
	})
	h := NewTablesHandler(NewClient(srv.URL, time.Second, nil, nil))

	_, err := h.List(context.Background(), testToken)
	require.Error(t, err)
	assert.True(t, syncdomain.IsTransient(err))
}

func TestTablesHandler_Fetch(t *testing.T) {
	srv := newTestServer(t, map[string]interface{}{
		tablesAPI + "/rows/10": map[string]interface{}{
			"id": 10, "tableId": 1, "lastEditAt": "2024-01-02 03:04:05",
			"data": []map[string]interface{}{
				{"columnId": 2, "value": 1965},
				{"columnId": 1, "value": "Dune"},
				{"columnId": 3, "value": nil},
			},
		},
		tablesAPI + "/tables/1": map[string]interface{}{"id": 1, "title": "Books"},
		tablesAPI + "/tables/1/columns": []map[string]interface{}{
			{"id": 1, "title": "Title"},
			{"id": 2, "title": "Year"},
			{"id": 3, "title": "Notes"},
		},
	})
	h := NewTablesHandler(NewClient(srv.URL, time.Second, nil, nil))

	doc, err := h.Fetch(context.Background(), testToken, "10")
	require.NoError(t, err)
	assert.Equal(t, "Books", doc.Title)
	assert.Equal(t, "Title: Dune\nYear: 1965", doc.Content)
	assert.Equal(t, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), doc.ModifiedAt)
}

func TestTablesHandler_FetchMissingRow(t *testing.T) {
	srv := newTestServer(t, map[string]interface{}{})
	h := NewTablesHandler(NewClient(srv.URL, time.Second, nil, nil))

	_, err := h.Fetch(context.Background(), testToken, "99")
	assert.ErrorIs(t, err, syncdomain.ErrNotFound)
}
