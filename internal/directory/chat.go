package directory

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/sakif/companion/internal/apperror"
	"github.com/sakif/companion/internal/model"
)

// SendMessage appends a message from user to the group's chat history and
// returns it. The sender must currently be a member (ErrForbidden
// otherwise). Name and timestamp are fixed here: the name comes from the
// supplied user, the timestamp from the directory clock.
//
// SendMessage does not deliver the message to live subscribers; the caller
// broadcasts the returned message once this call has released the lock.
func (d *Directory) SendMessage(ctx context.Context, locationID string, groupID uuid.UUID, user model.User, content string) (model.ChatMessage, error) {
	if err := d.acquire(ctx); err != nil {
		return model.ChatMessage{}, err
	}
	defer d.release()

	_, g, err := d.store.group(locationID, groupID)
	if err != nil {
		d.logger.Info("message rejected", slog.String("location_id", locationID),
			slog.String("group_id", groupID.String()), slog.String("reason", err.Error()))
		return model.ChatMessage{}, err
	}
	if !g.HasMember(user.ID) {
		d.logger.Warn("message rejected: sender is not a member",
			slog.String("group_id", groupID.String()),
			slog.Int64("user_id", user.ID),
		)
		return model.ChatMessage{}, apperror.Forbidden(
			fmt.Sprintf("user %d is not a member of group %s", user.ID, groupID))
	}

	msg := model.ChatMessage{
		SenderID:   user.ID,
		SenderName: user.Name,
		GroupID:    g.ID,
		Content:    content,
		Timestamp:  d.now(),
	}
	g.ChatHistory = append(g.ChatHistory, msg)
	d.metrics.ChatMessage()

	d.logger.Debug("message appended",
		slog.String("group_id", groupID.String()),
		slog.Int64("sender_id", user.ID),
		slog.Int("history_len", len(g.ChatHistory)),
	)
	return msg, nil
}

// ChatHistory returns the group's messages in send order if userID is a
// current member.
//
// The returned slice is never nil. When the history cannot be shown it is
// empty AND the error says why: ErrNotFound for a missing location or group,
// ErrForbidden for a non-member. "No messages yet" is an empty slice with a
// nil error.
func (d *Directory) ChatHistory(ctx context.Context, locationID string, groupID uuid.UUID, userID int64) ([]model.ChatMessage, error) {
	if err := d.acquire(ctx); err != nil {
		return []model.ChatMessage{}, err
	}
	defer d.release()

	_, g, err := d.store.group(locationID, groupID)
	if err != nil {
		return []model.ChatMessage{}, err
	}
	if !g.HasMember(userID) {
		d.logger.Info("chat history denied: not a member",
			slog.String("group_id", groupID.String()),
			slog.Int64("user_id", userID),
		)
		return []model.ChatMessage{}, apperror.Forbidden(
			fmt.Sprintf("user %d is not a member of group %s", userID, groupID))
	}

	return append(make([]model.ChatMessage, 0, len(g.ChatHistory)), g.ChatHistory...), nil
}
