package nextcloud

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	syncdomain "vectorsync-backend/internal/sync/domain"
)

const notesAPI = "/index.php/apps/notes/api/v1/notes"

type note struct {
	ID       int64  `json:"id"`
	ETag     string `json:"etag"`
	Modified int64  `json:"modified"`
	Title    string `json:"title"`
	Category string `json:"category"`
	Content  string `json:"content"`
}

// NotesHandler serves the note kind from the Notes app
type NotesHandler struct {
	client      *Client
	notesFolder string
}

// NewNotesHandler creates the note handler. notesFolder is the user's Notes root, used
// to build paths that match file change notifications.
func NewNotesHandler(client *Client, notesFolder string) *NotesHandler {
	if notesFolder == "" {
		notesFolder = "Notes"
	}
	return &NotesHandler{client: client, notesFolder: strings.Trim(notesFolder, "/")}
}

func (h *NotesHandler) Kind() syncdomain.Kind {
	return syncdomain.KindNote
}

func (h *NotesHandler) List(ctx context.Context, accessToken string) ([]syncdomain.RemoteDocument, error) {
	var notes []note
	query := url.Values{"exclude": []string{"content"}}
	if err := h.client.getJSON(ctx, accessToken, notesAPI, query, &notes); err != nil {
		return nil, fmt.Errorf("failed to list notes: %w", err)
	}

	docs := make([]syncdomain.RemoteDocument, 0, len(notes))
	for _, n := range notes {
		docs = append(docs, syncdomain.RemoteDocument{
			ID:         strconv.FormatInt(n.ID, 10),
			Kind:       syncdomain.KindNote,
			ModifiedAt: unixTime(n.Modified),
			ETag:       n.ETag,
			Path:       h.notePath(n),
		})
	}
	return docs, nil
}

func (h *NotesHandler) Fetch(ctx context.Context, accessToken, docID string) (*syncdomain.Document, error) {
	if _, err := strconv.ParseInt(docID, 10, 64); err != nil {
		return nil, fmt.Errorf("%w: invalid note id %q", syncdomain.ErrPermanent, docID)
	}

	var n note
	if err := h.client.getJSON(ctx, accessToken, notesAPI+"/"+docID, nil, &n); err != nil {
		return nil, fmt.Errorf("failed to fetch note %s: %w", docID, err)
	}

	return &syncdomain.Document{
		ID:         docID,
		Kind:       syncdomain.KindNote,
		Title:      n.Title,
		Content:    n.Content,
		Path:       h.notePath(n),
		ETag:       n.ETag,
		ModifiedAt: unixTime(n.Modified),
	}, nil
}

// notePath is <folder>/<category>/<title> without the file suffix, matching the
// key file change events are reduced to.
func (h *NotesHandler) notePath(n note) string {
	return path.Join(h.notesFolder, n.Category, n.Title)
}

func unixTime(sec int64) time.Time {
	if sec <= 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0)
}
