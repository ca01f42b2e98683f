// Package notification pushes recorder fault notifications to external
// services through shoutrrr URLs.
package notification

import (
	"time"

	"github.com/google/uuid"
)

// Type represents the category of a notification
type Type string

const (
	// TypeError indicates a fault that stopped or restarted recording
	TypeError Type = "error"
	// TypeWarning indicates a degraded condition, e.g. no storage
	TypeWarning Type = "warning"
	// TypeInfo indicates an informational notification
	TypeInfo Type = "info"
)

// Notification is one message to deliver.
type Notification struct {
	ID        string
	Type      Type
	Title     string
	Message   string
	Component string
	Timestamp time.Time
}

// NewNotification creates a notification with a fresh ID.
func NewNotification(t Type, title, message string) *Notification {
	return &Notification{
		ID:        uuid.NewString(),
		Type:      t,
		Title:     title,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// WithComponent sets the component that raised the notification.
func (n *Notification) WithComponent(component string) *Notification {
	n.Component = component
	return n
}

// dedupKey identifies notifications that carry the same information.
func (n *Notification) dedupKey() string {
	return string(n.Type) + "|" + n.Component + "|" + n.Title + "|" + n.Message
}
