package core

import (
	"context"
	"fmt"
	"time"
)

// EventType represents the kind of change applied to a node.
type EventType string

const (
	EventCreate   EventType = "CREATE"
	EventModify   EventType = "MODIFY"
	EventMove     EventType = "MOVE"
	EventTrash    EventType = "TRASH"
	EventRestore  EventType = "RESTORE"
	EventDelete   EventType = "DELETE"
	EventRollback EventType = "ROLLBACK"
)

// Event represents a change in the tree.
type Event struct {
	Type      EventType
	ID        string
	Owner     string
	Timestamp int64 // Unix timestamp
	Err       error
}

// String implements lifecycle.Event.
func (e Event) String() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s: %v", e.Type, e.ID, e.Err)
	}
	return fmt.Sprintf("%s %s", e.Type, e.ID)
}

// NewEvent stamps an event with the current time.
func NewEvent(t EventType, owner, id string) Event {
	return Event{Type: t, ID: id, Owner: owner, Timestamp: time.Now().Unix()}
}

type contextKey string

// OwnerKey is the context key carrying the authenticated owner of a request.
const OwnerKey contextKey = "owner"

// ChangeReasonKey is the context key for passing the commit message/change reason.
const ChangeReasonKey contextKey = "change_reason"

// WithOwner returns a context scoped to owner.
func WithOwner(ctx context.Context, owner string) context.Context {
	return context.WithValue(ctx, OwnerKey, owner)
}

// OwnerFrom extracts the owner from ctx or fails with KindUnauthorized.
func OwnerFrom(ctx context.Context) (string, error) {
	if owner, ok := ctx.Value(OwnerKey).(string); ok && owner != "" {
		return owner, nil
	}
	return "", Errorf(KindUnauthorized, "owner", "", "no authenticated owner")
}
