// Package repository declares the persistence interfaces. Implementations live
// in subpackages (sqlite).
package repository

import (
	"context"

	"github.com/sakif/companion/internal/model"
)

// PlaceRepository caches geocoding results by place id.
//
// GetPlace returns an apperror.ErrNotFound error when the id was never saved.
// SavePlace inserts or overwrites.
type PlaceRepository interface {
	GetPlace(ctx context.Context, placeID string) (*model.Place, error)
	SavePlace(ctx context.Context, place *model.Place) error
}
