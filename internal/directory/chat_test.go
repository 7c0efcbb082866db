package directory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/companion/internal/apperror"
	"github.com/sakif/companion/internal/model"
)

func TestSendMessage_MemberAppends(t *testing.T) {
	d := newTestDirectory(t)
	ctx := context.Background()
	host := model.User{ID: 1, Name: "Anna", Age: 25}
	g := createGroup(t, d, "loc-1", model.AgeRange{Min: 18, Max: 40}, today, host)

	msg, err := d.SendMessage(ctx, "loc-1", g.ID, host, "Servus!")
	require.NoError(t, err)

	assert.Equal(t, int64(1), msg.SenderID)
	assert.Equal(t, "Anna", msg.SenderName)
	assert.Equal(t, g.ID, msg.GroupID)
	assert.Equal(t, "Servus!", msg.Content)
	assert.Equal(t, fixedNow, msg.Timestamp, "timestamp comes from the directory clock")
}

func TestSendMessage_NonMemberForbidden(t *testing.T) {
	d := newTestDirectory(t)
	g := createGroup(t, d, "loc-1", model.AgeRange{Min: 18, Max: 40}, today, user(1, 25))

	_, err := d.SendMessage(context.Background(), "loc-1", g.ID, user(2, 25), "let me in")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperror.ErrForbidden))

	history, err := d.ChatHistory(context.Background(), "loc-1", g.ID, 1)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestSendMessage_NotFound(t *testing.T) {
	d := newTestDirectory(t)
	g := createGroup(t, d, "loc-1", model.AgeRange{Min: 18, Max: 40}, today, user(1, 25))

	_, err := d.SendMessage(context.Background(), "other", g.ID, user(1, 25), "hi")
	assert.True(t, errors.Is(err, apperror.ErrNotFound))

	_, err = d.SendMessage(context.Background(), "loc-1", uuid.New(), user(1, 25), "hi")
	assert.True(t, errors.Is(err, apperror.ErrNotFound))
}

// Scenario: a non-member sees an empty history even when messages exist; a
// member sees all of them in send order.
func TestChatHistory_MemberVersusNonMember(t *testing.T) {
	d := newTestDirectory(t)
	ctx := context.Background()
	u1 := model.User{ID: 1, Name: "Anna", Age: 25}
	g := createGroup(t, d, "loc-1", model.AgeRange{Min: 18, Max: 40}, today, u1)

	for i := 0; i < 3; i++ {
		_, err := d.SendMessage(ctx, "loc-1", g.ID, u1, fmt.Sprintf("msg %d", i))
		require.NoError(t, err)
	}

	denied, err := d.ChatHistory(ctx, "loc-1", g.ID, 2)
	assert.True(t, errors.Is(err, apperror.ErrForbidden))
	assert.NotNil(t, denied)
	assert.Empty(t, denied)

	history, err := d.ChatHistory(ctx, "loc-1", g.ID, 1)
	require.NoError(t, err)
	require.Len(t, history, 3)
	for i, m := range history {
		assert.Equal(t, fmt.Sprintf("msg %d", i), m.Content)
	}
}

func TestChatHistory_EmptyIsNotAnError(t *testing.T) {
	d := newTestDirectory(t)
	g := createGroup(t, d, "loc-1", model.AgeRange{Min: 18, Max: 40}, today, user(1, 25))

	history, err := d.ChatHistory(context.Background(), "loc-1", g.ID, 1)
	require.NoError(t, err)
	assert.NotNil(t, history)
	assert.Empty(t, history)
}

func TestChatHistory_MissingGroup(t *testing.T) {
	d := newTestDirectory(t)

	history, err := d.ChatHistory(context.Background(), "loc-1", uuid.New(), 1)
	assert.True(t, errors.Is(err, apperror.ErrNotFound))
	assert.Empty(t, history)
}

func TestChatHistory_SurvivesGroupDeletion(t *testing.T) {
	d := newTestDirectory(t)
	ctx := context.Background()
	u1 := user(1, 25)
	g := createGroup(t, d, "loc-1", model.AgeRange{Min: 18, Max: 40}, today, u1)
	_, err := d.SendMessage(ctx, "loc-1", g.ID, u1, "before delete")
	require.NoError(t, err)

	history, err := d.ChatHistory(ctx, "loc-1", g.ID, 1)
	require.NoError(t, err)
	require.NoError(t, d.DeleteGroup(ctx, "loc-1", g.ID))

	require.Len(t, history, 1)
	assert.Equal(t, "before delete", history[0].Content)
}

func TestSendMessage_SenderNameCapturedAtSendTime(t *testing.T) {
	d := newTestDirectory(t)
	ctx := context.Background()
	g := createGroup(t, d, "loc-1", model.AgeRange{Min: 18, Max: 40}, today, model.User{ID: 1, Name: "Anna", Age: 25})

	_, err := d.SendMessage(ctx, "loc-1", g.ID, model.User{ID: 1, Name: "Anni", Age: 25}, "renamed")
	require.NoError(t, err)

	history, err := d.ChatHistory(ctx, "loc-1", g.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, "Anni", history[0].SenderName)

	after, err := d.Group(ctx, "loc-1", g.ID)
	require.NoError(t, err)
	assert.Equal(t, "Anna", after.Members[0].Name, "member snapshot is not rewritten")
}

func TestSendMessage_ConcurrentSendersKeepEveryMessage(t *testing.T) {
	d := newTestDirectory(t)
	ctx := context.Background()
	g := createGroup(t, d, "loc-1", model.AgeRange{Min: 0, Max: 99}, today, user(1, 25))
	for id := int64(2); id <= 5; id++ {
		_, err := d.JoinGroup(ctx, "loc-1", g.ID, user(id, 25))
		require.NoError(t, err)
	}

	const perSender = 25
	var wg sync.WaitGroup
	for id := int64(1); id <= 5; id++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			for i := 0; i < perSender; i++ {
				_, err := d.SendMessage(ctx, "loc-1", g.ID, user(id, 25), "x")
				assert.NoError(t, err)
			}
		}(id)
	}
	wg.Wait()

	history, err := d.ChatHistory(ctx, "loc-1", g.ID, 1)
	require.NoError(t, err)
	assert.Len(t, history, 5*perSender)
}

func TestIsMember(t *testing.T) {
	d := newTestDirectory(t)
	g := createGroup(t, d, "loc-1", model.AgeRange{Min: 0, Max: 99}, today, user(1, 25))

	ok, err := d.IsMember(context.Background(), "loc-1", g.ID, 1)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = d.IsMember(context.Background(), "loc-1", g.ID, 2)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = d.IsMember(context.Background(), "loc-1", uuid.New(), 1)
	assert.True(t, errors.Is(err, apperror.ErrNotFound))
}
