package handler

import (
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/sakif/companion/internal/chat"
)

// WSHandler upgrades browsers to a websocket and registers them as chat
// subscribers.
//
// PROTOCOL:
//
//	→ {"type":"subscribe","location_id":"...","group_id":"<uuid>","user_id":7}
//	← {"type":"subscribed","group_id":"<uuid>"}
//	← {"type":"message","group_id":"<uuid>","message":{...}}
//	→ {"type":"unsubscribe"}
//
// A connection listens to at most one group; subscribing again switches it.
type WSHandler struct {
	registry *chat.Registry
	members  chat.MembershipChecker
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewWSHandler creates a WSHandler. allowedOrigins lists the browser origins
// that may connect; "*" allows any.
func NewWSHandler(registry *chat.Registry, members chat.MembershipChecker, allowedOrigins []string, logger *slog.Logger) *WSHandler {
	return &WSHandler{
		registry: registry,
		members:  members,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		logger: logger,
	}
}

// HandleConnect runs one websocket client until it disconnects.
//
// HTTP: GET /ws
func (h *WSHandler) HandleConnect(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		h.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	chat.NewClient(conn, h.registry, h.members, h.logger).Serve(r.Context())
}

// originChecker allows requests without an Origin header (non-browser
// clients) and those whose origin is listed.
func originChecker(allowed []string) func(*http.Request) bool {
	if slices.Contains(allowed, "*") {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		return slices.ContainsFunc(allowed, func(o string) bool {
			return strings.EqualFold(o, origin)
		})
	}
}
