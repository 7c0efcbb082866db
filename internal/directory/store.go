package directory

import (
	"github.com/google/uuid"

	"github.com/sakif/companion/internal/apperror"
	"github.com/sakif/companion/internal/model"
)

// location is the mutable record behind model.Location.
// coords is only ever replaced as a whole pair.
type location struct {
	id     string
	coords model.Coordinates
	groups map[uuid.UUID]*model.Group
}

func (l *location) snapshot() model.Location {
	groups := make(map[uuid.UUID]model.Group, len(l.groups))
	for id, g := range l.groups {
		groups[id] = g.Clone()
	}
	return model.Location{
		ID:          l.id,
		Coordinates: l.coords,
		Groups:      groups,
	}
}

// store maps location ids to locations. It has no lock of its own: every
// method must be called while holding the Directory lock.
type store struct {
	locations map[string]*location
}

func newStore() *store {
	return &store{locations: make(map[string]*location)}
}

// getOrCreate returns the location for id, creating it with Unresolved
// coordinates and no groups when absent. Locations are never removed.
func (s *store) getOrCreate(id string) *location {
	if l, ok := s.locations[id]; ok {
		return l
	}
	l := &location{
		id:     id,
		coords: model.Unresolved,
		groups: make(map[uuid.UUID]*model.Group),
	}
	s.locations[id] = l
	return l
}

func (s *store) lookup(id string) (*location, bool) {
	l, ok := s.locations[id]
	return l, ok
}

// each calls fn for every location. fn must not add or remove locations.
func (s *store) each(fn func(*location)) {
	for _, l := range s.locations {
		fn(l)
	}
}

// group finds a group, reporting which of the two lookups failed.
func (s *store) group(locationID string, groupID uuid.UUID) (*location, *model.Group, error) {
	l, ok := s.locations[locationID]
	if !ok {
		return nil, nil, apperror.NotFound("location", locationID)
	}
	g, ok := l.groups[groupID]
	if !ok {
		return l, nil, apperror.NotFound("group", groupID.String())
	}
	return l, g, nil
}
