package usecase

import (
	"fmt"
	"log/slog"
	"path"
	"strings"
	"sync"
	"time"

	syncdomain "vectorsync-backend/internal/sync/domain"
)

// Event classes emitted by the content service
const (
	ClassNodeCreated = `OCP\Files\Events\Node\NodeCreatedEvent`
	ClassNodeWritten = `OCP\Files\Events\Node\NodeWrittenEvent`
	ClassNodeDeleted = `OCP\Files\Events\Node\NodeDeletedEvent`
	ClassRowAdded    = `OCA\Tables\Event\RowAddedEvent`
	ClassRowUpdated  = `OCA\Tables\Event\RowUpdatedEvent`
	ClassRowDeleted  = `OCA\Tables\Event\RowDeletedEvent`
)

// DefaultNotesFolder is where the Notes app keeps its files
const DefaultNotesFolder = "Notes"

// MapperFunc turns one event into a task. A nil task with a nil error means
// the event is intentionally dropped.
type MapperFunc func(evt *syncdomain.WebhookEvent) (*syncdomain.DocumentTask, error)

// EventMapper maps event classes to tasks. Classes without a mapper are ignored.
type EventMapper struct {
	mu          sync.RWMutex
	mappers     map[string]MapperFunc
	notesFolder string
	logger      *slog.Logger
}

// NewEventMapper creates a mapper with the built-in note and table-row classes
func NewEventMapper(notesFolder string, logger *slog.Logger) *EventMapper {
	if notesFolder == "" {
		notesFolder = DefaultNotesFolder
	}
	if logger == nil {
		logger = slog.Default()
	}
	m := &EventMapper{
		mappers:     make(map[string]MapperFunc),
		notesFolder: strings.Trim(notesFolder, "/"),
		logger:      logger.With("component", "event_mapper"),
	}

	m.Register(ClassNodeCreated, m.mapNoteWritten)
	m.Register(ClassNodeWritten, m.mapNoteWritten)
	m.Register(ClassNodeDeleted, m.mapNoteDeleted)
	m.Register(ClassRowAdded, mapRowChanged)
	m.Register(ClassRowUpdated, mapRowChanged)
	m.Register(ClassRowDeleted, mapRowDeleted)
	return m
}

// Register adds or replaces the mapper for an event class
func (m *EventMapper) Register(class string, fn MapperFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mappers[class] = fn
}

// Map returns the task for evt, nil when the event is ignored, or an error
// wrapping ErrMalformedEvent.
func (m *EventMapper) Map(evt *syncdomain.WebhookEvent) (*syncdomain.DocumentTask, error) {
	m.mu.RLock()
	fn, ok := m.mappers[evt.Event.Class]
	m.mu.RUnlock()
	if !ok {
		m.logger.Debug("ignoring unsupported event class", "class", evt.Event.Class)
		return nil, nil
	}
	if evt.User.UID == "" {
		return nil, fmt.Errorf("%w: missing user uid", syncdomain.ErrMalformedEvent)
	}

	task, err := fn(evt)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", syncdomain.ErrMalformedEvent, evt.Event.Class, err)
	}
	return task, nil
}

func eventTime(evt *syncdomain.WebhookEvent) time.Time {
	if evt.Time > 0 {
		return time.Unix(evt.Time, 0)
	}
	return time.Now()
}

// NormalizePath strips the "/<uid>/files/" prefix of a node path
func NormalizePath(uid, nodePath string) string {
	p := strings.TrimPrefix(nodePath, "/")
	prefix := uid + "/files/"
	if strings.HasPrefix(p, prefix) {
		return strings.TrimPrefix(p, prefix)
	}
	return p
}

func (m *EventMapper) isNotePath(rel string) bool {
	if !strings.HasPrefix(rel, m.notesFolder+"/") {
		return false
	}
	switch strings.ToLower(path.Ext(rel)) {
	case ".md", ".txt":
		return true
	}
	return false
}

func (m *EventMapper) mapNoteWritten(evt *syncdomain.WebhookEvent) (*syncdomain.DocumentTask, error) {
	node := evt.Event.Node
	if node == nil {
		return nil, fmt.Errorf("missing node")
	}
	rel := NormalizePath(evt.User.UID, node.Path)
	if !m.isNotePath(rel) {
		return nil, nil
	}
	if node.ID == "" {
		return nil, fmt.Errorf("missing node id")
	}

	task := syncdomain.NewIndexTask(evt.User.UID, syncdomain.KindNote, node.ID.String(), eventTime(evt), syncdomain.SourceWebhook)
	task.Path = syncdomain.NotePathKey(rel)
	return &task, nil
}

func (m *EventMapper) mapNoteDeleted(evt *syncdomain.WebhookEvent) (*syncdomain.DocumentTask, error) {
	node := evt.Event.Node
	if node == nil {
		return nil, fmt.Errorf("missing node")
	}
	rel := ""
	if node.Path != "" {
		rel = NormalizePath(evt.User.UID, node.Path)
		if !m.isNotePath(rel) {
			return nil, nil
		}
		rel = syncdomain.NotePathKey(rel)
	}
	if node.ID == "" && rel == "" {
		return nil, fmt.Errorf("missing node id and path")
	}

	// Deleted nodes often arrive with a path only
	task := syncdomain.NewDeleteTask(evt.User.UID, syncdomain.KindNote, node.ID.String(), syncdomain.SourceWebhook)
	task.Path = rel
	task.ModifiedAt = eventTime(evt)
	return &task, nil
}

func mapRowChanged(evt *syncdomain.WebhookEvent) (*syncdomain.DocumentTask, error) {
	if evt.Event.RowID == "" {
		return nil, fmt.Errorf("missing row id")
	}
	task := syncdomain.NewIndexTask(evt.User.UID, syncdomain.KindTableRow, evt.Event.RowID.String(), eventTime(evt), syncdomain.SourceWebhook)
	return &task, nil
}

func mapRowDeleted(evt *syncdomain.WebhookEvent) (*syncdomain.DocumentTask, error) {
	if evt.Event.RowID == "" {
		return nil, fmt.Errorf("missing row id")
	}
	task := syncdomain.NewDeleteTask(evt.User.UID, syncdomain.KindTableRow, evt.Event.RowID.String(), syncdomain.SourceWebhook)
	task.ModifiedAt = eventTime(evt)
	return &task, nil
}
