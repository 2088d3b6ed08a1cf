package notifications

import (
	"context"
	"errors"
	"time"
)

var (
	ErrInvalidEventType = errors.New("invalid user event type")
	ErrInvalidEvent     = errors.New("invalid user event")
)

const (
	UserCreated = "user.created"
	UserUpdated = "user.updated"
	UserDeleted = "user.deleted"
)

// UserEvent describes a committed change to a users row. Email is empty for deletes.
type UserEvent struct {
	Type       string    `json:"type"`
	UserID     int64     `json:"userId"`
	Email      string    `json:"email,omitempty"`
	RequestID  string    `json:"requestId,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

type Notifier interface {
	NotifyUser(ctx context.Context, ev UserEvent) error
}

// Validate rejects events no consumer knows how to handle.
func (e UserEvent) Validate() error {
	switch e.Type {
	case UserCreated, UserUpdated, UserDeleted:
	default:
		return ErrInvalidEventType
	}

	if e.UserID <= 0 {
		return ErrInvalidEvent
	}
	if e.Type != UserDeleted && e.Email == "" {
		return ErrInvalidEvent
	}

	return nil
}
