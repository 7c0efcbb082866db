package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/companion/internal/apperror"
	"github.com/sakif/companion/internal/geocode"
)

// PlaceService answers mood-based place searches.
type PlaceService struct {
	finder geocode.PlaceFinder
	logger *slog.Logger
}

// NewPlaceService creates a PlaceService. finder may be nil when no API key
// is configured; every search then fails with apperror.ErrUnavailable.
func NewPlaceService(finder geocode.PlaceFinder, logger *slog.Logger) *PlaceService {
	return &PlaceService{finder: finder, logger: logger}
}

// Find validates the query, fills in defaults and runs the search.
func (s *PlaceService) Find(ctx context.Context, q geocode.PlaceQuery) (*geocode.FeatureCollection, error) {
	if s.finder == nil {
		return nil, apperror.Unavailable("place search is not configured")
	}
	if err := validateCoordinates(q.Center); err != nil {
		return nil, err
	}
	if q.RadiusM == 0 {
		q.RadiusM = geocode.DefaultPlaceRadius
	}
	if q.RadiusM < 0 || q.RadiusM > geocode.MaxPlaceRadius {
		return nil, apperror.ValidationFailed("radius",
			fmt.Sprintf("radius must be between 1 and %d metres", geocode.MaxPlaceRadius))
	}
	q.Mood = strings.TrimSpace(q.Mood)
	if q.Mood == "" {
		q.Mood = geocode.DefaultMood
	}

	fc, err := s.finder.FindPlaces(ctx, q)
	if err != nil {
		s.logger.Error("place search failed",
			slog.String("mood", q.Mood),
			slog.String("error", err.Error()),
		)
		return nil, apperror.Unavailable("place search failed, try again later")
	}
	return fc, nil
}
