// Package chat fans out newly sent group messages to live subscribers.
//
// The directory stores chat history; this package only pushes messages to
// whoever is listening right now. A subscriber is anything that implements
// Sink. In production that is a websocket Client, in tests a fake.
//
// LOCKING:
// The Registry has its own RWMutex and never touches the directory. Broadcast
// copies the subscriber set under a read lock and delivers after releasing
// it, so a slow or dead connection never blocks Subscribe, and nothing here
// runs while the directory lock is held.
package chat

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/sakif/companion/internal/metrics"
	"github.com/sakif/companion/internal/model"
)

// Sink receives messages for the group it is subscribed to.
type Sink interface {
	ID() string
	Deliver(ctx context.Context, msg model.ChatMessage) error
}

// Registry tracks which sinks listen to which group. A sink listens to at
// most one group at a time.
type Registry struct {
	mu      sync.RWMutex
	groups  map[uuid.UUID]map[string]Sink
	members map[string]uuid.UUID // sink id -> group id

	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewRegistry returns an empty registry. m may be nil.
func NewRegistry(logger *slog.Logger, m *metrics.Metrics) *Registry {
	return &Registry{
		groups:  make(map[uuid.UUID]map[string]Sink),
		members: make(map[string]uuid.UUID),
		logger:  logger,
		metrics: m,
	}
}

// Subscribe adds sink to groupID, moving it out of any group it was
// listening to before.
func (r *Registry) Subscribe(groupID uuid.UUID, sink Sink) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := sink.ID()
	if prev, ok := r.members[id]; ok {
		if prev == groupID {
			r.groups[groupID][id] = sink
			return
		}
		r.removeLocked(prev, id)
	} else {
		r.metrics.SubscribersChanged(1)
	}

	set, ok := r.groups[groupID]
	if !ok {
		set = make(map[string]Sink)
		r.groups[groupID] = set
	}
	set[id] = sink
	r.members[id] = groupID

	r.logger.Debug("chat subscriber added",
		slog.String("sink_id", id),
		slog.String("group_id", groupID.String()),
	)
}

// Unsubscribe removes the sink with the given id from whatever group it is in.
// Unknown ids are ignored.
func (r *Registry) Unsubscribe(sinkID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	groupID, ok := r.members[sinkID]
	if !ok {
		return
	}
	r.removeLocked(groupID, sinkID)
	delete(r.members, sinkID)
	r.metrics.SubscribersChanged(-1)

	r.logger.Debug("chat subscriber removed",
		slog.String("sink_id", sinkID),
		slog.String("group_id", groupID.String()),
	)
}

func (r *Registry) removeLocked(groupID uuid.UUID, sinkID string) {
	set := r.groups[groupID]
	delete(set, sinkID)
	if len(set) == 0 {
		delete(r.groups, groupID)
	}
}

// Subscribers returns how many sinks listen to groupID.
func (r *Registry) Subscribers(groupID uuid.UUID) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.groups[groupID])
}

// Broadcast delivers msg to every sink subscribed to msg.GroupID and returns
// how many deliveries succeeded. A failing sink is logged and skipped; it
// stays subscribed until its owner unsubscribes it.
func (r *Registry) Broadcast(ctx context.Context, msg model.ChatMessage) int {
	r.mu.RLock()
	sinks := make([]Sink, 0, len(r.groups[msg.GroupID]))
	for _, s := range r.groups[msg.GroupID] {
		sinks = append(sinks, s)
	}
	r.mu.RUnlock()

	delivered := 0
	for _, s := range sinks {
		if err := s.Deliver(ctx, msg); err != nil {
			r.metrics.FanoutDelivery(metrics.ResultFailed)
			r.logger.Warn("chat delivery failed",
				slog.String("sink_id", s.ID()),
				slog.String("group_id", msg.GroupID.String()),
				slog.String("error", err.Error()),
			)
			continue
		}
		r.metrics.FanoutDelivery(metrics.ResultOK)
		delivered++
	}
	return delivered
}
