// Package events publishes chat activity for consumers outside this process,
// such as a notification service. Live delivery to connected clients is
// package chat's job; events are the durable side channel.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/sakif/companion/internal/model"
)

// TypeMessageSent marks a MessageEvent.
const TypeMessageSent = "chat.message_sent"

// MessageEvent is published once per message appended to a group's history.
type MessageEvent struct {
	Type       string            `json:"type"`
	LocationID string            `json:"location_id"`
	GroupID    uuid.UUID         `json:"group_id"`
	Message    model.ChatMessage `json:"message"`
	Delivered  int               `json:"delivered"` // live subscribers reached
	OccurredAt time.Time         `json:"occurred_at"`
}

// NewMessageEvent builds the event for msg.
func NewMessageEvent(locationID string, msg model.ChatMessage, delivered int) MessageEvent {
	return MessageEvent{
		Type:       TypeMessageSent,
		LocationID: locationID,
		GroupID:    msg.GroupID,
		Message:    msg,
		Delivered:  delivered,
		OccurredAt: msg.Timestamp,
	}
}

// Publisher sends events downstream.
type Publisher interface {
	PublishMessage(ctx context.Context, ev MessageEvent) error
	Close() error
}

// Nop drops every event. Used when no broker is configured.
type Nop struct{}

func (Nop) PublishMessage(context.Context, MessageEvent) error { return nil }
func (Nop) Close() error { return nil }
