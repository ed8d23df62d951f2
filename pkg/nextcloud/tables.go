package nextcloud

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	syncdomain "vectorsync-backend/internal/sync/domain"

	"golang.org/x/sync/errgroup"
)

const (
	tablesAPI = "/index.php/apps/tables/api/1"

	// Tables reports timestamps in server time without a zone
	tablesTimeLayout = "2006-01-02 15:04:05"

	tableListConcurrency = 4
)

type table struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
}

type column struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
}

type cell struct {
	ColumnID int64           `json:"columnId"`
	Value    json.RawMessage `json:"value"`
}

type row struct {
	ID         int64  `json:"id"`
	TableID    int64  `json:"tableId"`
	LastEditAt string `json:"lastEditAt"`
	Data       []cell `json:"data"`
}

// TablesHandler serves the table-row kind; every row of every visible table is a document
type TablesHandler struct {
	client *Client
}

func NewTablesHandler(client *Client) *TablesHandler {
	return &TablesHandler{client: client}
}

func (h *TablesHandler) Kind() syncdomain.Kind {
	return syncdomain.KindTableRow
}

func (h *TablesHandler) List(ctx context.Context, accessToken string) ([]syncdomain.RemoteDocument, error) {
	var tables []table
	if err := h.client.getJSON(ctx, accessToken, tablesAPI+"/tables", nil, &tables); err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}

	var (
		mu   sync.Mutex
		docs []syncdomain.RemoteDocument
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(tableListConcurrency)
	for _, t := range tables {
		g.Go(func() error {
			var rows []row
			rowsPath := fmt.Sprintf("%s/tables/%d/rows", tablesAPI, t.ID)
			if err := h.client.getJSON(gctx, accessToken, rowsPath, nil, &rows); err != nil {
				return fmt.Errorf("failed to list rows of table %d: %w", t.ID, err)
			}

			mu.Lock()
			defer mu.Unlock()
			for _, r := range rows {
				docs = append(docs, syncdomain.RemoteDocument{
					ID:         strconv.FormatInt(r.ID, 10),
					Kind:       syncdomain.KindTableRow,
					ModifiedAt: parseTablesTime(r.LastEditAt),
					Path:       rowPath(t.Title, r.ID),
				})
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return docs, nil
}

func (h *TablesHandler) Fetch(ctx context.Context, accessToken, docID string) (*syncdomain.Document, error) {
	if _, err := strconv.ParseInt(docID, 10, 64); err != nil {
		return nil, fmt.Errorf("%w: invalid row id %q", syncdomain.ErrPermanent, docID)
	}

	var r row
	if err := h.client.getJSON(ctx, accessToken, tablesAPI+"/rows/"+docID, nil, &r); err != nil {
		return nil, fmt.Errorf("failed to fetch row %s: %w", docID, err)
	}

	var t table
	tablePath := fmt.Sprintf("%s/tables/%d", tablesAPI, r.TableID)
	if err := h.client.getJSON(ctx, accessToken, tablePath, nil, &t); err != nil {
		return nil, fmt.Errorf("failed to fetch table %d: %w", r.TableID, err)
	}

	var columns []column
	if err := h.client.getJSON(ctx, accessToken, tablePath+"/columns", nil, &columns); err != nil {
		return nil, fmt.Errorf("failed to fetch columns of table %d: %w", r.TableID, err)
	}

	modifiedAt := parseTablesTime(r.LastEditAt)
	return &syncdomain.Document{
		ID:         docID,
		Kind:       syncdomain.KindTableRow,
		Title:      t.Title,
		Content:    renderRow(r, columns),
		Path:       rowPath(t.Title, r.ID),
		ETag:       strconv.FormatInt(modifiedAt.Unix(), 10),
		ModifiedAt: modifiedAt,
	}, nil
}

// renderRow writes one "Column: value" line per non-empty cell, in column order
func renderRow(r row, columns []column) string {
	values := make(map[int64]string, len(r.Data))
	for _, c := range r.Data {
		if v := cellText(c.Value); v != "" {
			values[c.ColumnID] = v
		}
	}

	var b strings.Builder
	for _, col := range columns {
		v, ok := values[col.ID]
		if !ok {
			continue
		}
		b.WriteString(col.Title)
		b.WriteString(": ")
		b.WriteString(v)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func cellText(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	// Numbers, booleans and selection lists are kept in their JSON form
	return string(raw)
}

func rowPath(tableTitle string, rowID int64) string {
	return fmt.Sprintf("Tables/%s/%d", tableTitle, rowID)
}

func parseTablesTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.ParseInLocation(tablesTimeLayout, s, time.UTC)
	if err != nil {
		return time.Time{}
	}
	return t
}
