// Package service contains the business logic layer of the application.
//
// THE THREE-LAYER ARCHITECTURE:
//
//	Handler (HTTP layer)     → parses requests, writes responses
//	Service (Business layer) → validates input, orchestrates
//	Directory (State layer)  → owns locations, groups and chat under one lock
//
// The directory enforces the invariants that need the lock (membership,
// eligibility, uniqueness). The services enforce everything that can be
// checked from the request alone (required fields, lengths, ranges) and run
// the steps that must happen after the lock is released: chat fanout and
// event publishing.
//
// Services depend on small interfaces rather than *directory.Directory so
// tests can substitute fakes where the real directory is inconvenient.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sakif/companion/internal/apperror"
	"github.com/sakif/companion/internal/directory"
	"github.com/sakif/companion/internal/model"
)

// Validation limits.
const (
	MaxLocationIDLength  = 256
	MaxTitleLength       = 100
	MaxDescriptionLength = 1000
	MaxNameLength        = 100
	MaxAge               = 150
	MaxNearbyRadiusKm    = 100.0
)

// GroupDirectory is the part of the directory GroupService needs.
type GroupDirectory interface {
	CreateGroup(ctx context.Context, req directory.NewGroup) (model.Group, error)
	JoinGroup(ctx context.Context, locationID string, groupID uuid.UUID, user model.User) (model.Group, error)
	DeleteGroup(ctx context.Context, locationID string, groupID uuid.UUID) error
	Location(ctx context.Context, id string) (model.Location, error)
	Locations(ctx context.Context, ids []string) ([]model.Location, error)
	NearbyGroups(ctx context.Context, center model.Coordinates, radiusKm float64) ([]model.NearbyGroup, error)
}

var _ GroupDirectory = (*directory.Directory)(nil)

// CreateGroupInput is what a caller supplies to open a group.
type CreateGroupInput struct {
	LocationID  string
	Title       string
	Description string
	AgeRange    model.AgeRange
	Date        model.Date
	Host        model.User
}

// GroupService validates group requests and hands them to the directory.
type GroupService struct {
	dir           GroupDirectory
	logger        *slog.Logger
	defaultRadius float64
	now           func() time.Time
}

// NewGroupService creates a GroupService. defaultRadiusKm is used by Nearby
// when the caller passes zero; a non-positive value means
// directory.DefaultRadiusKm.
func NewGroupService(dir GroupDirectory, defaultRadiusKm float64, logger *slog.Logger) *GroupService {
	if defaultRadiusKm <= 0 {
		defaultRadiusKm = directory.DefaultRadiusKm
	}
	return &GroupService{
		dir:           dir,
		logger:        logger,
		defaultRadius: defaultRadiusKm,
		now:           time.Now,
	}
}

// Create opens a new group with the host as its only member.
//
// A date before today is rejected here rather than accepted and left for
// the sweeper.
func (s *GroupService) Create(ctx context.Context, in CreateGroupInput) (model.Group, error) {
	locationID, err := validateLocationID(in.LocationID)
	if err != nil {
		return model.Group{}, err
	}

	title := strings.TrimSpace(in.Title)
	if title == "" {
		return model.Group{}, apperror.ValidationFailed("title", "title is required")
	}
	if len(title) > MaxTitleLength {
		return model.Group{}, apperror.ValidationFailed("title",
			fmt.Sprintf("title must be %d characters or less", MaxTitleLength))
	}

	description := strings.TrimSpace(in.Description)
	if len(description) > MaxDescriptionLength {
		return model.Group{}, apperror.ValidationFailed("description",
			fmt.Sprintf("description must be %d characters or less", MaxDescriptionLength))
	}

	if !in.AgeRange.Valid() || in.AgeRange.Max > MaxAge {
		return model.Group{}, apperror.ValidationFailed("age_range",
			fmt.Sprintf("age range must satisfy 0 <= min <= max <= %d", MaxAge))
	}

	if in.Date.IsZero() {
		return model.Group{}, apperror.ValidationFailed("date", "date is required")
	}
	if in.Date.Before(model.DateOf(s.now())) {
		return model.Group{}, apperror.ValidationFailed("date", "date must be today or later")
	}

	host, err := validateUser("host", in.Host)
	if err != nil {
		return model.Group{}, err
	}

	g, err := s.dir.CreateGroup(ctx, directory.NewGroup{
		LocationID:  locationID,
		Title:       title,
		Description: description,
		AgeRange:    in.AgeRange,
		Date:        in.Date,
		Host:        host,
	})
	if err != nil {
		return model.Group{}, fmt.Errorf("creating group: %w", err)
	}
	return g, nil
}

// Join adds user to a group.
func (s *GroupService) Join(ctx context.Context, locationID string, groupID uuid.UUID, user model.User) (model.Group, error) {
	locationID, err := validateLocationID(locationID)
	if err != nil {
		return model.Group{}, err
	}
	user, err = validateUser("user", user)
	if err != nil {
		return model.Group{}, err
	}

	g, err := s.dir.JoinGroup(ctx, locationID, groupID, user)
	if err != nil {
		return model.Group{}, fmt.Errorf("joining group: %w", err)
	}
	return g, nil
}

// Delete removes a group.
func (s *GroupService) Delete(ctx context.Context, locationID string, groupID uuid.UUID) error {
	locationID, err := validateLocationID(locationID)
	if err != nil {
		return err
	}
	if err := s.dir.DeleteGroup(ctx, locationID, groupID); err != nil {
		return fmt.Errorf("deleting group: %w", err)
	}
	return nil
}

// Location returns one location with all its groups.
func (s *GroupService) Location(ctx context.Context, id string) (model.Location, error) {
	id, err := validateLocationID(id)
	if err != nil {
		return model.Location{}, err
	}
	return s.dir.Location(ctx, id)
}

// Locations returns the known locations among ids, in request order.
func (s *GroupService) Locations(ctx context.Context, ids []string) ([]model.Location, error) {
	if len(ids) == 0 {
		return nil, apperror.ValidationFailed("id", "at least one location id is required")
	}
	for _, id := range ids {
		if _, err := validateLocationID(id); err != nil {
			return nil, err
		}
	}
	return s.dir.Locations(ctx, ids)
}

// DefaultRadiusKm is the radius Nearby callers should use when the request
// names none.
func (s *GroupService) DefaultRadiusKm() float64 {
	return s.defaultRadius
}

// Nearby lists groups within radiusKm of center. A zero radius matches only
// locations exactly at center.
func (s *GroupService) Nearby(ctx context.Context, center model.Coordinates, radiusKm float64) ([]model.NearbyGroup, error) {
	if err := validateCoordinates(center); err != nil {
		return nil, err
	}
	if radiusKm < 0 || radiusKm > MaxNearbyRadiusKm {
		return nil, apperror.ValidationFailed("radius",
			fmt.Sprintf("radius must be between 0 and %.0f km", MaxNearbyRadiusKm))
	}
	return s.dir.NearbyGroups(ctx, center, radiusKm)
}

func validateLocationID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", apperror.ValidationFailed("location_id", "location_id is required")
	}
	if len(id) > MaxLocationIDLength {
		return "", apperror.ValidationFailed("location_id",
			fmt.Sprintf("location_id must be %d characters or less", MaxLocationIDLength))
	}
	return id, nil
}

// validateUser checks the fields eligibility and chat rely on and returns
// the user with a trimmed name.
func validateUser(field string, u model.User) (model.User, error) {
	u.Name = strings.TrimSpace(u.Name)
	if u.Name == "" {
		return model.User{}, apperror.ValidationFailed(field, "name is required")
	}
	if len(u.Name) > MaxNameLength {
		return model.User{}, apperror.ValidationFailed(field,
			fmt.Sprintf("name must be %d characters or less", MaxNameLength))
	}
	if u.Age < 0 || u.Age > MaxAge {
		return model.User{}, apperror.ValidationFailed(field,
			fmt.Sprintf("age must be between 0 and %d", MaxAge))
	}
	return u, nil
}

func validateCoordinates(c model.Coordinates) error {
	if c.Lat < -90 || c.Lat > 90 {
		return apperror.ValidationFailed("lat", "lat must be between -90 and 90")
	}
	if c.Lng < -180 || c.Lng > 180 {
		return apperror.ValidationFailed("lng", "lng must be between -180 and 180")
	}
	return nil
}
