package domain

import "time"

// RemoteDocument is one entry of a content service listing
type RemoteDocument struct {
	ID         string
	Kind       Kind
	ModifiedAt time.Time
	ETag       string
	Path       string
}

// Document is a fully fetched content item
type Document struct {
	ID         string
	Kind       Kind
	Title      string
	Content    string
	Path       string
	ETag       string
	ModifiedAt time.Time
}

// Text returns the text that gets chunked and embedded
func (d *Document) Text() string {
	if d.Title == "" {
		return d.Content
	}
	if d.Content == "" {
		return d.Title
	}
	return d.Title + "\n\n" + d.Content
}
