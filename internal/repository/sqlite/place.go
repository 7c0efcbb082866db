package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sakif/companion/internal/apperror"
	"github.com/sakif/companion/internal/model"
	"github.com/sakif/companion/internal/repository"
)

// compile-time check that *DB implements repository.PlaceRepository
var _ repository.PlaceRepository = (*DB)(nil)

// GetPlace returns the cached coordinates for placeID.
// Returns apperror.ErrNotFound if the place was never saved.
func (db *DB) GetPlace(ctx context.Context, placeID string) (*model.Place, error) {
	var p model.Place

	err := db.conn.QueryRowContext(ctx,
		`SELECT place_id, lat, lng, resolved_at
		 FROM places
		 WHERE place_id = ?`,
		placeID,
	).Scan(
		&p.ID,
		&p.Coordinates.Lat,
		&p.Coordinates.Lng,
		&p.ResolvedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("place", placeID)
		}
		return nil, fmt.Errorf("sqlite: getting place %s: %w", placeID, err)
	}

	return &p, nil
}

// SavePlace inserts place, or overwrites the row with the same place id.
// A zero ResolvedAt is set to now.
//
// ON CONFLICT ... DO UPDATE keeps the row in place instead of the delete and
// re-insert that INSERT OR REPLACE performs.
func (db *DB) SavePlace(ctx context.Context, place *model.Place) error {
	if place.ID == "" {
		return apperror.ValidationFailed("place_id", "place id is required")
	}
	if place.ResolvedAt.IsZero() {
		place.ResolvedAt = time.Now().UTC()
	}

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO places (place_id, lat, lng, resolved_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(place_id) DO UPDATE SET
			lat = excluded.lat,
			lng = excluded.lng,
			resolved_at = excluded.resolved_at`,
		place.ID,
		place.Coordinates.Lat,
		place.Coordinates.Lng,
		place.ResolvedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: saving place %s: %w", place.ID, err)
	}

	return nil
}
