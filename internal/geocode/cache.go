package geocode

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sakif/companion/internal/apperror"
	"github.com/sakif/companion/internal/directory"
	"github.com/sakif/companion/internal/model"
	"github.com/sakif/companion/internal/repository"
)

// Cached answers from a PlaceRepository first and only asks next on a miss.
// Successful lookups are written back; failures are not, so a later request
// gets another chance.
type Cached struct {
	next   directory.Resolver
	repo   repository.PlaceRepository
	logger *slog.Logger
	now    func() time.Time
}

var _ directory.Resolver = (*Cached)(nil)

// NewCached wraps next with repo.
func NewCached(next directory.Resolver, repo repository.PlaceRepository, logger *slog.Logger) *Cached {
	return &Cached{
		next:   next,
		repo:   repo,
		logger: logger,
		now:    time.Now,
	}
}

func (c *Cached) Resolve(ctx context.Context, placeID string) (model.Coordinates, error) {
	place, err := c.repo.GetPlace(ctx, placeID)
	switch {
	case err == nil:
		return place.Coordinates, nil
	case errors.Is(err, apperror.ErrNotFound):
	default:
		// A broken cache must not block geocoding.
		c.logger.Warn("geocode cache read failed",
			slog.String("place_id", placeID),
			slog.String("error", err.Error()),
		)
	}

	coords, err := c.next.Resolve(ctx, placeID)
	if err != nil {
		return model.Coordinates{}, err
	}

	if err := c.repo.SavePlace(ctx, &model.Place{
		ID:          placeID,
		Coordinates: coords,
		ResolvedAt:  c.now().UTC(),
	}); err != nil {
		c.logger.Warn("geocode cache write failed",
			slog.String("place_id", placeID),
			slog.String("error", err.Error()),
		)
	}
	return coords, nil
}
