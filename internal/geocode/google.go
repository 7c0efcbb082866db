// Package geocode turns Google place ids into coordinates and finds places
// near a point.
//
// Both go through the googlemaps client. The directory only ever sees its
// own directory.Resolver interface; a failed lookup is its problem to fall
// back from, so nothing in here invents coordinates.
package geocode

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"googlemaps.github.io/maps"

	"github.com/sakif/companion/internal/directory"
	"github.com/sakif/companion/internal/model"
)

const tracerName = "github.com/sakif/companion/internal/geocode"

// ErrNoGeometry is returned when Google answers without a usable location.
var ErrNoGeometry = errors.New("geocode: place has no geometry")

// Google talks to the Places API.
type Google struct {
	client *maps.Client
	logger *slog.Logger
	tracer trace.Tracer
}

var _ directory.Resolver = (*Google)(nil)

// NewGoogle creates a client for apiKey. Extra options are passed to
// maps.NewClient (tests use maps.WithBaseURL).
func NewGoogle(apiKey string, logger *slog.Logger, opts ...maps.ClientOption) (*Google, error) {
	if apiKey == "" {
		return nil, errors.New("geocode: api key is required")
	}
	client, err := maps.NewClient(append([]maps.ClientOption{maps.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("geocode: creating maps client: %w", err)
	}
	return &Google{
		client: client,
		logger: logger,
		tracer: otel.Tracer(tracerName),
	}, nil
}

// Resolve fetches only the geometry field of the place details.
func (g *Google) Resolve(ctx context.Context, placeID string) (model.Coordinates, error) {
	ctx, span := g.tracer.Start(ctx, "geocode.Resolve",
		trace.WithAttributes(attribute.String("place_id", placeID)))
	defer span.End()

	mask, err := maps.ParsePlaceDetailsFieldMask("geometry")
	if err != nil {
		return model.Coordinates{}, fmt.Errorf("geocode: field mask: %w", err)
	}

	res, err := g.client.PlaceDetails(ctx, &maps.PlaceDetailsRequest{
		PlaceID: placeID,
		Fields:  []maps.PlaceDetailsFieldMask{mask},
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "place details failed")
		return model.Coordinates{}, fmt.Errorf("geocode: place details %s: %w", placeID, err)
	}

	coords := model.Coordinates{
		Lat: res.Geometry.Location.Lat,
		Lng: res.Geometry.Location.Lng,
	}
	if coords.IsUnresolved() {
		span.SetStatus(codes.Error, "no geometry")
		return model.Coordinates{}, fmt.Errorf("%w: %s", ErrNoGeometry, placeID)
	}

	g.logger.Debug("place resolved",
		slog.String("place_id", placeID),
		slog.Float64("lat", coords.Lat),
		slog.Float64("lng", coords.Lng),
	)
	return coords, nil
}
