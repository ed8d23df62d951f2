package domain

import "time"

// Operation is what a processor should do with a document
type Operation string

const (
	OperationIndex  Operation = "index"
	OperationDelete Operation = "delete"
)

// Task sources, used only for logging
const (
	SourceScanner = "scanner"
	SourceWebhook = "webhook"
	SourcePubSub  = "pubsub"
)

// DocumentTask is one unit of work flowing through the queue.
// It is passed by value and never mutated after creation.
type DocumentTask struct {
	UserID     string
	DocID      string // Empty when the producer only knows a path
	Path       string // Normalized path relative to the user's files root
	Kind       Kind
	Operation  Operation
	ModifiedAt time.Time
	Source     string
}

// Identifier returns the document id, or a path-derived identifier when no id is known
func (t DocumentTask) Identifier() string {
	if t.DocID != "" {
		return t.DocID
	}
	if t.Path != "" {
		return "path:" + t.Path
	}
	return ""
}

// NewIndexTask creates an index task
func NewIndexTask(userID string, kind Kind, docID string, modifiedAt time.Time, source string) DocumentTask {
	return DocumentTask{
		UserID:     userID,
		DocID:      docID,
		Kind:       kind,
		Operation:  OperationIndex,
		ModifiedAt: modifiedAt,
		Source:     source,
	}
}

// NewDeleteTask creates a delete task
func NewDeleteTask(userID string, kind Kind, docID string, source string) DocumentTask {
	return DocumentTask{
		UserID:    userID,
		DocID:     docID,
		Kind:      kind,
		Operation: OperationDelete,
		Source:    source,
	}
}
