package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// FlexibleID accepts a JSON number or string. The content service is not
// consistent about which one it sends.
type FlexibleID string

func (f *FlexibleID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexibleID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	if _, err := strconv.ParseInt(n.String(), 10, 64); err != nil {
		return fmt.Errorf("id must be an integer: %w", err)
	}
	*f = FlexibleID(n.String())
	return nil
}

func (f FlexibleID) String() string { return string(f) }

// WebhookEvent is the change notification pushed by the content service
type WebhookEvent struct {
	User  EventUser    `json:"user"`
	Time  int64        `json:"time"`
	Event EventPayload `json:"event"`
}

type EventUser struct {
	UID         string `json:"uid"`
	DisplayName string `json:"displayName,omitempty"`
}

// EventPayload carries the fields of every supported event class; unused ones stay empty
type EventPayload struct {
	Class   string     `json:"class"`
	Node    *EventNode `json:"node,omitempty"`
	TableID FlexibleID `json:"tableId,omitempty"`
	RowID   FlexibleID `json:"rowId,omitempty"`
}

type EventNode struct {
	ID   FlexibleID `json:"id"`
	Path string     `json:"path"`
}
