// Package directory is the in-memory source of truth for locations, their
// groups and the groups' chat histories.
//
// CONCURRENCY MODEL:
// Every exported method enters the directory through one coarse lock and
// holds it for the whole composite operation ("find the group, check the
// member list, append"), so no reader ever observes a half-applied change.
// The lock is a semaphore.Weighted of size one, acquired with a context
// bounded by LockTimeout. A caller that cannot get in returns
// apperror.ErrUnavailable instead of hanging.
//
// Nothing outside this package can reach the underlying maps. Values handed
// out (groups, locations, histories) are deep copies taken under the lock.
//
// Two things deliberately run outside the lock:
//   - geocoding a brand-new location (CreateGroup), bounded by GeocodeTimeout
//   - chat fanout, which lives in package chat and is driven by the service
//     layer after SendMessage returns
package directory

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/sakif/companion/internal/apperror"
	"github.com/sakif/companion/internal/metrics"
	"github.com/sakif/companion/internal/model"
)

// Fallback is used whenever a place id cannot be geocoded: the city centre
// the flat-Earth distance factors are calibrated for (Munich).
var Fallback = model.Coordinates{Lat: 48.137, Lng: 11.575}

// Resolver turns an external place id into coordinates. It is only consulted
// the first time a group is created at an unseen location.
type Resolver interface {
	Resolve(ctx context.Context, placeID string) (model.Coordinates, error)
}

// Config bounds the time spent waiting on the lock and on the geocoder.
// A zero duration means "no extra bound beyond the caller's context".
type Config struct {
	LockTimeout    time.Duration
	GeocodeTimeout time.Duration
}

// DefaultConfig returns the timeouts used when none are configured.
func DefaultConfig() Config {
	return Config{
		LockTimeout:    5 * time.Second,
		GeocodeTimeout: 5 * time.Second,
	}
}

// Directory holds every location and group. Create it with New.
type Directory struct {
	sem      *semaphore.Weighted // weight 1: holding it means holding the lock
	store    *store
	resolver Resolver
	newID    func() uuid.UUID
	now      func() time.Time
	config   Config
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// Option customises a Directory at construction time.
type Option func(*Directory)

// WithResolver sets the geocoder. Without one every new location gets the
// Fallback coordinates.
func WithResolver(r Resolver) Option {
	return func(d *Directory) { d.resolver = r }
}

// WithConfig overrides DefaultConfig.
func WithConfig(cfg Config) Option {
	return func(d *Directory) { d.config = cfg }
}

// WithMetrics records directory activity on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Directory) { d.metrics = m }
}

// WithClock replaces time.Now, which stamps messages and decides "today".
func WithClock(now func() time.Time) Option {
	return func(d *Directory) { d.now = now }
}

// WithIDGenerator replaces uuid.New for group identifiers.
func WithIDGenerator(gen func() uuid.UUID) Option {
	return func(d *Directory) { d.newID = gen }
}

// New returns an empty directory.
func New(logger *slog.Logger, opts ...Option) *Directory {
	d := &Directory{
		sem:    semaphore.NewWeighted(1),
		store:  newStore(),
		newID:  uuid.New,
		now:    time.Now,
		config: DefaultConfig(),
		logger: logger,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// acquire takes the directory lock, giving up when ctx ends or LockTimeout
// elapses. Every successful acquire must be paired with release.
func (d *Directory) acquire(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return apperror.Unavailable("directory unavailable: " + err.Error())
	}
	if d.config.LockTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.config.LockTimeout)
		defer cancel()
	}

	if err := d.sem.Acquire(ctx, 1); err != nil {
		d.logger.Warn("directory lock not acquired", slog.String("error", err.Error()))
		return apperror.Unavailable("directory busy, try again")
	}
	return nil
}

func (d *Directory) release() {
	d.sem.Release(1)
}

// today is the calendar day used for expiry decisions.
func (d *Directory) today() model.Date {
	return model.DateOf(d.now())
}
