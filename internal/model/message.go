package model

import (
	"time"

	"github.com/google/uuid"
)

// ChatMessage is one entry of a group's append-only chat history.
// SenderName is captured at send time and never re-resolved; Timestamp is
// assigned by the directory, not by the caller.
type ChatMessage struct {
	SenderID   int64     `json:"sender_id"`
	SenderName string    `json:"sender_name"`
	GroupID    uuid.UUID `json:"group_id"`
	Content    string    `json:"content"`
	Timestamp  time.Time `json:"timestamp"`
}
