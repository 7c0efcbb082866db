package directory

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/sakif/companion/internal/apperror"
	"github.com/sakif/companion/internal/metrics"
	"github.com/sakif/companion/internal/model"
)

// NewGroup carries the fields of a group about to be created.
type NewGroup struct {
	LocationID  string
	Title       string
	Description string
	AgeRange    model.AgeRange
	Date        model.Date
	Host        model.User
}

// CreateGroup adds a group with the host as its sole member.
//
// If the location is unknown it is created, and its coordinates are resolved
// first. Resolution runs without the lock held:
//
//  1. under the lock: an existing, resolved location just gets the group
//  2. otherwise unlock and geocode (bounded by GeocodeTimeout, Fallback on
//     any failure)
//  3. lock again, get-or-create the location, set the coordinates if a
//     concurrent creator has not already done so, insert the group
//
// A group id collision yields apperror.ErrConflict; there is no retry.
func (d *Directory) CreateGroup(ctx context.Context, p NewGroup) (model.Group, error) {
	if !p.AgeRange.Valid() {
		return model.Group{}, apperror.ValidationFailed("age_range",
			fmt.Sprintf("invalid age range %s: min must be >= 0 and <= max", p.AgeRange))
	}

	group := &model.Group{
		ID:          d.newID(),
		Title:       p.Title,
		Description: p.Description,
		AgeRange:    p.AgeRange,
		Date:        p.Date,
		HostID:      p.Host.ID,
		Members:     []model.User{p.Host.Clone()},
		ChatHistory: []model.ChatMessage{},
	}

	if err := d.acquire(ctx); err != nil {
		return model.Group{}, err
	}
	if loc, ok := d.store.lookup(p.LocationID); ok && !loc.coords.IsUnresolved() {
		created, err := d.insertGroup(loc, group)
		d.release()
		return created, err
	}
	d.release()

	coords := d.resolve(ctx, p.LocationID)

	if err := d.acquire(ctx); err != nil {
		return model.Group{}, err
	}
	defer d.release()

	loc := d.store.getOrCreate(p.LocationID)
	if loc.coords.IsUnresolved() {
		loc.coords = coords
	}
	return d.insertGroup(loc, group)
}

// insertGroup must be called with the lock held.
func (d *Directory) insertGroup(loc *location, g *model.Group) (model.Group, error) {
	if _, exists := loc.groups[g.ID]; exists {
		d.logger.Warn("group id collision, group not created",
			slog.String("location_id", loc.id),
			slog.String("group_id", g.ID.String()),
		)
		return model.Group{}, apperror.Conflict("group", g.ID.String())
	}
	loc.groups[g.ID] = g
	d.metrics.GroupCreated()

	d.logger.Info("group created",
		slog.String("location_id", loc.id),
		slog.String("group_id", g.ID.String()),
		slog.Int64("host_id", g.HostID),
		slog.String("date", g.Date.String()),
	)
	return g.Clone(), nil
}

// resolve geocodes placeID, falling back to Fallback on any failure.
// It must be called WITHOUT the lock held.
func (d *Directory) resolve(ctx context.Context, placeID string) model.Coordinates {
	if d.resolver == nil {
		d.metrics.GeocodeLookup(metrics.ResultFallback)
		return Fallback
	}
	if d.config.GeocodeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.config.GeocodeTimeout)
		defer cancel()
	}

	coords, err := d.resolver.Resolve(ctx, placeID)
	switch {
	case err != nil:
		d.logger.Warn("geocoding failed, using fallback coordinates",
			slog.String("place_id", placeID),
			slog.String("error", err.Error()),
		)
	case coords.IsUnresolved():
		d.logger.Warn("geocoder returned no coordinates, using fallback",
			slog.String("place_id", placeID),
		)
	default:
		d.metrics.GeocodeLookup(metrics.ResultOK)
		return coords
	}
	d.metrics.GeocodeLookup(metrics.ResultFallback)
	return Fallback
}

// JoinGroup appends user to the group's members. It fails with
//   - ErrNotFound when the location or the group is absent
//   - ErrIneligible when user.Age is outside the inclusive age range
//   - ErrConflict when the user is already a member
//
// The checks and the append happen atomically.
func (d *Directory) JoinGroup(ctx context.Context, locationID string, groupID uuid.UUID, user model.User) (model.Group, error) {
	if err := d.acquire(ctx); err != nil {
		return model.Group{}, err
	}
	defer d.release()

	_, g, err := d.store.group(locationID, groupID)
	if err != nil {
		d.logger.Info("join rejected", slog.String("location_id", locationID),
			slog.String("group_id", groupID.String()), slog.String("reason", err.Error()))
		d.metrics.GroupJoin(metrics.ResultNotFound)
		return model.Group{}, err
	}

	if !g.AgeRange.Contains(user.Age) {
		d.logger.Info("join rejected: age outside range",
			slog.String("group_id", groupID.String()),
			slog.Int64("user_id", user.ID),
			slog.Int("age", user.Age),
			slog.String("age_range", g.AgeRange.String()),
		)
		d.metrics.GroupJoin(metrics.ResultIneligible)
		return model.Group{}, apperror.Ineligible(
			fmt.Sprintf("age %d is outside the group's age range %s", user.Age, g.AgeRange))
	}

	if g.HasMember(user.ID) {
		d.logger.Info("join rejected: already a member",
			slog.String("group_id", groupID.String()),
			slog.Int64("user_id", user.ID),
		)
		d.metrics.GroupJoin(metrics.ResultConflict)
		return model.Group{}, apperror.Conflict("member", fmt.Sprint(user.ID))
	}

	g.Members = append(g.Members, user.Clone())
	d.metrics.GroupJoin(metrics.ResultOK)
	d.logger.Info("user joined group",
		slog.String("group_id", groupID.String()),
		slog.Int64("user_id", user.ID),
		slog.Int("members", len(g.Members)),
	)
	return g.Clone(), nil
}

// DeleteGroup removes a group. The location itself stays, even when empty.
func (d *Directory) DeleteGroup(ctx context.Context, locationID string, groupID uuid.UUID) error {
	if err := d.acquire(ctx); err != nil {
		return err
	}
	defer d.release()

	loc, _, err := d.store.group(locationID, groupID)
	if err != nil {
		d.logger.Info("delete rejected", slog.String("location_id", locationID),
			slog.String("group_id", groupID.String()), slog.String("reason", err.Error()))
		return err
	}
	delete(loc.groups, groupID)

	d.logger.Info("group deleted",
		slog.String("location_id", locationID),
		slog.String("group_id", groupID.String()),
	)
	return nil
}

// Group returns a snapshot of one group.
func (d *Directory) Group(ctx context.Context, locationID string, groupID uuid.UUID) (model.Group, error) {
	if err := d.acquire(ctx); err != nil {
		return model.Group{}, err
	}
	defer d.release()

	_, g, err := d.store.group(locationID, groupID)
	if err != nil {
		return model.Group{}, err
	}
	return g.Clone(), nil
}

// IsMember reports whether userID currently belongs to the group.
func (d *Directory) IsMember(ctx context.Context, locationID string, groupID uuid.UUID, userID int64) (bool, error) {
	if err := d.acquire(ctx); err != nil {
		return false, err
	}
	defer d.release()

	_, g, err := d.store.group(locationID, groupID)
	if err != nil {
		return false, err
	}
	return g.HasMember(userID), nil
}
