package geocode

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"googlemaps.github.io/maps"

	"github.com/sakif/companion/internal/model"
)

const (
	DefaultPlaceRadius = 10000 // metres
	MaxPlaceRadius     = 50000 // Places API limit
	minutesPerPlace    = 45
)

// Mood is a kind of outing and the Places search it translates to.
type Mood struct {
	Slug         string
	Label        string
	Type         maps.PlaceType // empty: keyword-only search
	Keyword      string
	MarkerColor  string
	MarkerSymbol string
}

// Moods lists the searchable moods.
var Moods = []Mood{
	{"party", "🎉 Party / Pub Crawl", maps.PlaceTypeBar, "pub nightclub", "#FF6B6B", "bar"},
	{"art", "🎨 Art & Culture", maps.PlaceTypeMuseum, "art exhibition", "#4ECDC4", "art-gallery"},
	{"history", "🏛️ History", maps.PlaceTypeMuseum, "history museum", "#45B7D1", "museum"},
	{"nature", "🌿 Nature / Relax", maps.PlaceTypePark, "nature park", "#96CEB4", "park"},
	{"food", "🍽️ Food Tour", maps.PlaceTypeRestaurant, "food restaurant", "#FFEAA7", "restaurant"},
	{"sports", "⚽ Sports & Activities", maps.PlaceTypeStadium, "sports activity", "#DDA0DD", "stadium"},
	{"family", "👨‍👨‍👧 Family Friendly", maps.PlaceTypeAmusementPark, "family kids", "#98D8C8", "amusement-park"},
	{"hidden-gems", "💫 Hidden Gems", "", "unique local hidden", "#F7DC6F", "star"},
}

// DefaultMood is used when a query names no mood.
const DefaultMood = "art"

// LookupMood finds a mood by slug or label, ignoring case.
func LookupMood(name string) (Mood, bool) {
	for _, m := range Moods {
		if strings.EqualFold(name, m.Slug) || strings.EqualFold(name, m.Label) {
			return m, true
		}
	}
	return Mood{}, false
}

// PlaceQuery asks for places matching Mood within RadiusM metres of Center.
type PlaceQuery struct {
	Center  model.Coordinates
	Mood    string
	RadiusM int
}

// PlaceFinder searches real-world places.
type PlaceFinder interface {
	FindPlaces(ctx context.Context, q PlaceQuery) (*FeatureCollection, error)
}

var _ PlaceFinder = (*Google)(nil)

// FeatureCollection is a GeoJSON document ready for a map view.
type FeatureCollection struct {
	Type     string        `json:"type"`
	Metadata PlaceMetadata `json:"metadata"`
	Features []Feature     `json:"features"`
}

type PlaceMetadata struct {
	Mood               string            `json:"mood"`
	UserLocation       model.Coordinates `json:"user_location"`
	SearchRadiusMeters int               `json:"search_radius_meters"`
	PlacesFound        int               `json:"places_found"`
	TotalEstimatedTime int               `json:"total_estimated_time"` // minutes
	BudgetEstimate     Budget            `json:"budget_estimate"`
	GeneratedAt        time.Time         `json:"generated_at"`
}

type Budget struct {
	Low      int    `json:"low"`
	High     int    `json:"high"`
	Currency string `json:"currency"`
}

type Feature struct {
	Type       string         `json:"type"`
	Geometry   Point          `json:"geometry"`
	Properties map[string]any `json:"properties"`
}

// Point holds GeoJSON coordinates, which are [lng, lat].
type Point struct {
	Type        string     `json:"type"`
	Coordinates [2]float64 `json:"coordinates"`
}

func newPoint(c model.Coordinates) Point {
	return Point{Type: "Point", Coordinates: [2]float64{c.Lng, c.Lat}}
}

// FindPlaces runs a Places nearby search for the query's mood. Unknown moods
// search by their name as a keyword.
func (g *Google) FindPlaces(ctx context.Context, q PlaceQuery) (*FeatureCollection, error) {
	mood, ok := LookupMood(q.Mood)
	if !ok {
		mood = Mood{Label: q.Mood, Keyword: q.Mood, MarkerColor: "#586A6A", MarkerSymbol: "marker"}
	}

	ctx, span := g.tracer.Start(ctx, "geocode.FindPlaces", trace.WithAttributes(
		attribute.String("mood", mood.Label),
		attribute.Int("radius_m", q.RadiusM),
	))
	defer span.End()

	resp, err := g.client.NearbySearch(ctx, &maps.NearbySearchRequest{
		Location: &maps.LatLng{Lat: q.Center.Lat, Lng: q.Center.Lng},
		Radius:   uint(q.RadiusM),
		Keyword:  mood.Keyword,
		Type:     mood.Type,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "nearby search failed")
		return nil, fmt.Errorf("geocode: nearby search: %w", err)
	}

	g.logger.Info("places found",
		slog.String("mood", mood.Label),
		slog.Int("count", len(resp.Results)),
	)
	return buildFeatureCollection(resp.Results, mood, q, time.Now().UTC()), nil
}

// buildFeatureCollection puts the user's position first, then one feature
// per place.
func buildFeatureCollection(results []maps.PlacesSearchResult, mood Mood, q PlaceQuery, now time.Time) *FeatureCollection {
	features := make([]Feature, 0, len(results)+1)
	features = append(features, Feature{
		Type:     "Feature",
		Geometry: newPoint(q.Center),
		Properties: map[string]any{
			"id":            "user_location",
			"name":          "Your Location",
			"type":          "user",
			"mood":          mood.Label,
			"marker-color":  "#FF0000",
			"marker-symbol": "circle",
		},
	})

	for _, r := range results {
		openNow := false
		if r.OpeningHours != nil && r.OpeningHours.OpenNow != nil {
			openNow = *r.OpeningHours.OpenNow
		}
		features = append(features, Feature{
			Type: "Feature",
			Geometry: newPoint(model.Coordinates{
				Lat: r.Geometry.Location.Lat,
				Lng: r.Geometry.Location.Lng,
			}),
			Properties: map[string]any{
				"id":            r.PlaceID,
				"name":          r.Name,
				"mood":          mood.Label,
				"address":       r.Vicinity,
				"rating":        r.Rating,
				"price_level":   r.PriceLevel,
				"types":         r.Types,
				"total_ratings": r.UserRatingsTotal,
				"open_now":      openNow,
				"marker-color":  mood.MarkerColor,
				"marker-symbol": mood.MarkerSymbol,
			},
		})
	}

	return &FeatureCollection{
		Type: "FeatureCollection",
		Metadata: PlaceMetadata{
			Mood:               mood.Label,
			UserLocation:       q.Center,
			SearchRadiusMeters: q.RadiusM,
			PlacesFound:        len(results),
			TotalEstimatedTime: len(results) * minutesPerPlace,
			BudgetEstimate:     estimateBudget(results),
			GeneratedAt:        now,
		},
		Features: features,
	}
}

// estimateBudget scales the average price level by the number of places.
// A missing price level counts as 2.
func estimateBudget(results []maps.PlacesSearchResult) Budget {
	if len(results) == 0 {
		return Budget{Currency: "USD"}
	}
	total := 0
	for _, r := range results {
		level := r.PriceLevel
		if level == 0 {
			level = 2
		}
		total += level
	}
	avg := float64(total) / float64(len(results))
	n := float64(len(results))
	return Budget{
		Low:      int(n * avg * 5),
		High:     int(n * avg * 15),
		Currency: "USD",
	}
}
