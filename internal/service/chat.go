package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/sakif/companion/internal/apperror"
	"github.com/sakif/companion/internal/directory"
	"github.com/sakif/companion/internal/events"
	"github.com/sakif/companion/internal/model"
)

const MaxMessageLength = 2000

// ChatDirectory is the part of the directory ChatService needs.
type ChatDirectory interface {
	SendMessage(ctx context.Context, locationID string, groupID uuid.UUID, user model.User, content string) (model.ChatMessage, error)
	ChatHistory(ctx context.Context, locationID string, groupID uuid.UUID, userID int64) ([]model.ChatMessage, error)
}

var _ ChatDirectory = (*directory.Directory)(nil)

// Broadcaster pushes a message to live subscribers and reports how many
// were reached. *chat.Registry satisfies it.
type Broadcaster interface {
	Broadcast(ctx context.Context, msg model.ChatMessage) int
}

// ChatService appends messages and fans them out.
type ChatService struct {
	dir       ChatDirectory
	fanout    Broadcaster
	publisher events.Publisher
	logger    *slog.Logger
}

// NewChatService creates a ChatService. A nil publisher drops events.
func NewChatService(dir ChatDirectory, fanout Broadcaster, publisher events.Publisher, logger *slog.Logger) *ChatService {
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &ChatService{
		dir:       dir,
		fanout:    fanout,
		publisher: publisher,
		logger:    logger,
	}
}

// Send appends a message to the group's history, then delivers it to live
// subscribers and publishes it downstream.
//
// ORDER MATTERS:
// dir.SendMessage returns only after the directory lock is released, so
// fanout never runs under it. Fanout and publishing are best effort: once the
// message is in the history the send has succeeded, whatever happens to the
// deliveries.
func (s *ChatService) Send(ctx context.Context, locationID string, groupID uuid.UUID, user model.User, content string) (model.ChatMessage, error) {
	locationID, err := validateLocationID(locationID)
	if err != nil {
		return model.ChatMessage{}, err
	}
	user, err = validateUser("user", user)
	if err != nil {
		return model.ChatMessage{}, err
	}

	content = strings.TrimSpace(content)
	if content == "" {
		return model.ChatMessage{}, apperror.ValidationFailed("content", "message content is required")
	}
	if len(content) > MaxMessageLength {
		return model.ChatMessage{}, apperror.ValidationFailed("content",
			fmt.Sprintf("message must be %d characters or less", MaxMessageLength))
	}

	msg, err := s.dir.SendMessage(ctx, locationID, groupID, user, content)
	if err != nil {
		return model.ChatMessage{}, fmt.Errorf("sending message: %w", err)
	}

	delivered := s.fanout.Broadcast(ctx, msg)

	if err := s.publisher.PublishMessage(ctx, events.NewMessageEvent(locationID, msg, delivered)); err != nil {
		s.logger.Warn("chat event not published",
			slog.String("location_id", locationID),
			slog.String("group_id", groupID.String()),
			slog.String("error", err.Error()),
		)
	}

	return msg, nil
}

// History returns the group's messages for a member. Non-members get an
// empty list and an apperror.ErrForbidden error.
func (s *ChatService) History(ctx context.Context, locationID string, groupID uuid.UUID, userID int64) ([]model.ChatMessage, error) {
	locationID, err := validateLocationID(locationID)
	if err != nil {
		return []model.ChatMessage{}, err
	}
	return s.dir.ChatHistory(ctx, locationID, groupID, userID)
}
