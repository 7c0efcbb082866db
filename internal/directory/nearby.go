package directory

import (
	"cmp"
	"context"
	"math"
	"slices"

	"github.com/sakif/companion/internal/model"
)

// Flat-Earth scale factors, calibrated for Munich (~48°N). They are not
// correct elsewhere; distances drift the further a point is from that
// latitude.
const (
	kmPerDegreeLat = 111.0
	kmPerDegreeLng = 74.0
)

// DefaultRadiusKm is the search radius used when a caller gives none.
const DefaultRadiusKm = 3.0

// ApproxDistanceKm is the planar distance between a and b using the fixed
// scale factors above. It is an approximation, not a geodesic.
func ApproxDistanceKm(a, b model.Coordinates) float64 {
	dLat := (a.Lat - b.Lat) * kmPerDegreeLat
	dLng := (a.Lng - b.Lng) * kmPerDegreeLng
	return math.Sqrt(dLat*dLat + dLng*dLng)
}

// NearbyGroups returns every group held at a location within radiusKm of
// center, each tagged with its location id. Locations whose coordinates are
// still Unresolved are never included.
//
// Results are ordered by distance, then location id, then group date.
func (d *Directory) NearbyGroups(ctx context.Context, center model.Coordinates, radiusKm float64) ([]model.NearbyGroup, error) {
	if err := d.acquire(ctx); err != nil {
		return nil, err
	}
	defer d.release()

	type hit struct {
		group model.NearbyGroup
		dist  float64
	}
	var hits []hit

	d.store.each(func(l *location) {
		if l.coords.IsUnresolved() {
			return
		}
		dist := ApproxDistanceKm(l.coords, center)
		if dist > radiusKm {
			return
		}
		for _, g := range l.groups {
			hits = append(hits, hit{
				group: model.NearbyGroup{Group: g.Clone(), LocationID: l.id},
				dist:  dist,
			})
		}
	})

	slices.SortFunc(hits, func(a, b hit) int {
		return cmp.Or(
			cmp.Compare(a.dist, b.dist),
			cmp.Compare(a.group.LocationID, b.group.LocationID),
			compareDates(a.group.Date, b.group.Date),
			cmp.Compare(a.group.ID.String(), b.group.ID.String()),
		)
	})

	out := make([]model.NearbyGroup, len(hits))
	for i, h := range hits {
		out[i] = h.group
	}
	return out, nil
}

func compareDates(a, b model.Date) int {
	switch {
	case a.Before(b):
		return -1
	case b.Before(a):
		return 1
	default:
		return 0
	}
}
