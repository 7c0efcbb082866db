package handler_test

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/companion/internal/geocode"
	"github.com/sakif/companion/internal/model"
)

func TestPlaceHandler_Nearby(t *testing.T) {
	api := newAPI(t, true)

	rr := api.do(t, http.MethodGet, "/map/nearby?lat=48.13&lng=11.57&mood=food&radius=2500", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "FeatureCollection", decode[geocode.FeatureCollection](t, rr).Type)

	q := api.finder.lastQuery()
	assert.Equal(t, model.Coordinates{Lat: 48.13, Lng: 11.57}, q.Center)
	assert.Equal(t, "food", q.Mood)
	assert.Equal(t, 2500, q.RadiusM)
}

func TestPlaceHandler_Defaults(t *testing.T) {
	api := newAPI(t, true)

	rr := api.do(t, http.MethodGet, "/map/nearby?lat=48.13&lng=11.57", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	q := api.finder.lastQuery()
	assert.Equal(t, geocode.DefaultMood, q.Mood)
	assert.Equal(t, geocode.DefaultPlaceRadius, q.RadiusM)
}

func TestPlaceHandler_BadQueries(t *testing.T) {
	api := newAPI(t, true)

	for _, path := range []string{
		"/map/nearby?lng=11.57",
		"/map/nearby?lat=48.13&lng=11.57&radius=far",
		"/map/nearby?lat=48.13&lng=11.57&radius=60000",
		"/map/nearby?lat=48.13&lng=11.57&radius=-5",
	} {
		rr := api.do(t, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusBadRequest, rr.Code, path)
	}
}

func TestPlaceHandler_Unavailable(t *testing.T) {
	t.Run("not configured", func(t *testing.T) {
		api := newAPI(t, false)

		rr := api.do(t, http.MethodGet, "/map/nearby?lat=48.13&lng=11.57", nil)
		assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
		assert.Equal(t, "1", rr.Header().Get("Retry-After"))
	})

	t.Run("search fails", func(t *testing.T) {
		api := newAPI(t, true)
		api.finder.err = errors.New("OVER_QUERY_LIMIT")

		rr := api.do(t, http.MethodGet, "/map/nearby?lat=48.13&lng=11.57", nil)
		assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
		assert.NotContains(t, rr.Body.String(), "OVER_QUERY_LIMIT")
	})
}
