package chat

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/xid"

	"github.com/sakif/companion/internal/model"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxFrameSize   = 4096
	sendBufferSize = 32
)

var (
	// ErrSlowConsumer is returned by Deliver when the client's outbound
	// queue is full.
	ErrSlowConsumer = errors.New("chat client send queue full")
	// ErrClosed is returned by Deliver after the connection has gone away.
	ErrClosed = errors.New("chat client closed")
)

// Frame types exchanged over the websocket.
const (
	FrameSubscribe    = "subscribe"
	FrameUnsubscribe  = "unsubscribe"
	FrameSubscribed   = "subscribed"
	FrameUnsubscribed = "unsubscribed"
	FrameMessage      = "message"
	FrameError        = "error"
)

// InboundFrame is what a browser sends to pick the group it listens to.
type InboundFrame struct {
	Type       string `json:"type"`
	LocationID string `json:"location_id,omitempty"`
	GroupID    string `json:"group_id,omitempty"`
	UserID     int64  `json:"user_id,omitempty"`
}

// OutboundFrame is everything the server pushes back.
type OutboundFrame struct {
	Type    string             `json:"type"`
	GroupID string             `json:"group_id,omitempty"`
	Message *model.ChatMessage `json:"message,omitempty"`
	Error   string             `json:"error,omitempty"`
}

// MembershipChecker answers whether a user may listen to a group.
// *directory.Directory satisfies it.
type MembershipChecker interface {
	IsMember(ctx context.Context, locationID string, groupID uuid.UUID, userID int64) (bool, error)
}

// Client is one websocket connection acting as a Sink.
//
// Writes happen on a single goroutine (writePump) fed by a buffered queue, as
// gorilla/websocket allows one concurrent writer. Deliver never blocks: when
// the queue is full the message is dropped for this client and the error is
// reported to the Registry.
type Client struct {
	id       string
	conn     *websocket.Conn
	registry *Registry
	members  MembershipChecker
	logger   *slog.Logger

	send      chan OutboundFrame
	done      chan struct{}
	closeOnce sync.Once
}

// NewClient wraps an upgraded connection. Call Serve to run it.
func NewClient(conn *websocket.Conn, registry *Registry, members MembershipChecker, logger *slog.Logger) *Client {
	id := xid.New().String()
	return &Client{
		id:       id,
		conn:     conn,
		registry: registry,
		members:  members,
		logger:   logger.With(slog.String("client_id", id)),
		send:     make(chan OutboundFrame, sendBufferSize),
		done:     make(chan struct{}),
	}
}

func (c *Client) ID() string { return c.id }

// Deliver queues msg for the write pump.
func (c *Client) Deliver(_ context.Context, msg model.ChatMessage) error {
	return c.enqueue(OutboundFrame{
		Type:    FrameMessage,
		GroupID: msg.GroupID.String(),
		Message: &msg,
	})
}

func (c *Client) enqueue(f OutboundFrame) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.send <- f:
		return nil
	default:
		return ErrSlowConsumer
	}
}

// Close stops the write pump, which closes the connection. Safe to call more
// than once.
func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// Serve runs the client until the peer disconnects or ctx is cancelled. On
// return the client is unsubscribed and the connection is closed.
func (c *Client) Serve(ctx context.Context) {
	c.logger.Info("chat client connected")

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		c.writePump()
	}()
	go func() {
		select {
		case <-ctx.Done():
			c.Close()
		case <-c.done:
		}
	}()

	c.readPump(ctx)

	c.registry.Unsubscribe(c.id)
	c.Close()
	<-writerDone
	c.logger.Info("chat client disconnected")
}

func (c *Client) readPump(ctx context.Context) {
	c.conn.SetReadLimit(maxFrameSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("chat client read failed", slog.String("error", err.Error()))
			}
			return
		}

		var in InboundFrame
		if err := json.Unmarshal(data, &in); err != nil {
			c.reply(OutboundFrame{Type: FrameError, Error: "malformed frame"})
			continue
		}
		c.handle(ctx, in)
	}
}

func (c *Client) handle(ctx context.Context, in InboundFrame) {
	switch in.Type {
	case FrameSubscribe:
		c.subscribe(ctx, in)
	case FrameUnsubscribe:
		c.registry.Unsubscribe(c.id)
		c.reply(OutboundFrame{Type: FrameUnsubscribed})
	default:
		c.reply(OutboundFrame{Type: FrameError, Error: "unknown frame type " + in.Type})
	}
}

// subscribe only lets current members listen. Leaving the group later does
// not evict an open subscription; the client re-subscribes on reconnect.
func (c *Client) subscribe(ctx context.Context, in InboundFrame) {
	groupID, err := uuid.Parse(in.GroupID)
	if err != nil {
		c.reply(OutboundFrame{Type: FrameError, Error: "invalid group_id"})
		return
	}

	ok, err := c.members.IsMember(ctx, in.LocationID, groupID, in.UserID)
	if err != nil {
		c.reply(OutboundFrame{Type: FrameError, GroupID: in.GroupID, Error: err.Error()})
		return
	}
	if !ok {
		c.logger.Info("chat subscribe refused",
			slog.String("location_id", in.LocationID),
			slog.String("group_id", in.GroupID),
			slog.Int64("user_id", in.UserID),
		)
		c.reply(OutboundFrame{Type: FrameError, GroupID: in.GroupID, Error: "user is not a member of this group"})
		return
	}

	c.registry.Subscribe(groupID, c)
	c.reply(OutboundFrame{Type: FrameSubscribed, GroupID: groupID.String()})
}

func (c *Client) reply(f OutboundFrame) {
	if err := c.enqueue(f); err != nil {
		c.logger.Warn("chat reply dropped", slog.String("type", f.Type), slog.String("error", err.Error()))
	}
}

// writePump owns every write to the connection and closes it on exit.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case f := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(f); err != nil {
				c.logger.Warn("chat write failed", slog.String("error", err.Error()))
				c.Close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}
