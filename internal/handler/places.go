package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/sakif/companion/internal/apperror"
	"github.com/sakif/companion/internal/geocode"
	"github.com/sakif/companion/internal/model"
	"github.com/sakif/companion/internal/service"
)

// PlaceHandler serves the mood map.
type PlaceHandler struct {
	places *service.PlaceService
	logger *slog.Logger
}

// NewPlaceHandler creates a new PlaceHandler.
func NewPlaceHandler(places *service.PlaceService, logger *slog.Logger) *PlaceHandler {
	return &PlaceHandler{places: places, logger: logger}
}

// HandleNearby finds places matching a mood around a point.
//
// HTTP: GET /map/nearby?lat=48.13&lng=11.57&mood=art&radius=5000
//
// RESPONSE FORMAT: a GeoJSON FeatureCollection the frontend hands straight
// to the map. The first feature is always the user's own position.
func (h *PlaceHandler) HandleNearby(w http.ResponseWriter, r *http.Request) {
	lat, err := queryFloat(r, "lat", true, 0)
	if err != nil {
		writeError(w, err)
		return
	}
	lng, err := queryFloat(r, "lng", true, 0)
	if err != nil {
		writeError(w, err)
		return
	}

	radius := 0
	if raw := r.URL.Query().Get("radius"); raw != "" {
		radius, err = strconv.Atoi(raw)
		if err != nil {
			writeError(w, apperror.ValidationFailed("radius", "radius must be an integer number of metres"))
			return
		}
	}

	fc, err := h.places.Find(r.Context(), geocode.PlaceQuery{
		Center:  model.Coordinates{Lat: lat, Lng: lng},
		Mood:    r.URL.Query().Get("mood"),
		RadiusM: radius,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, fc)
}
