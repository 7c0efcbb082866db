package directory

import (
	"context"

	"github.com/sakif/companion/internal/apperror"
	"github.com/sakif/companion/internal/model"
)

// Location returns a snapshot of one location with all its groups, members
// and chat histories. Unknown ids yield apperror.ErrNotFound.
func (d *Directory) Location(ctx context.Context, id string) (model.Location, error) {
	if err := d.acquire(ctx); err != nil {
		return model.Location{}, err
	}
	defer d.release()

	l, ok := d.store.lookup(id)
	if !ok {
		return model.Location{}, apperror.NotFound("location", id)
	}
	return l.snapshot(), nil
}

// Locations returns snapshots for the given ids in request order, silently
// skipping ids that have never held a group.
func (d *Directory) Locations(ctx context.Context, ids []string) ([]model.Location, error) {
	if err := d.acquire(ctx); err != nil {
		return nil, err
	}
	defer d.release()

	out := make([]model.Location, 0, len(ids))
	for _, id := range ids {
		if l, ok := d.store.lookup(id); ok {
			out = append(out, l.snapshot())
		}
	}
	return out, nil
}
