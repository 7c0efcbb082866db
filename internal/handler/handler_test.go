package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/sakif/companion/internal/chat"
	"github.com/sakif/companion/internal/directory"
	"github.com/sakif/companion/internal/geocode"
	"github.com/sakif/companion/internal/handler"
	"github.com/sakif/companion/internal/model"
	"github.com/sakif/companion/internal/service"
)

// testAPI is the router under test plus the pieces tests poke directly.
type testAPI struct {
	router   *chi.Mux
	dir      *directory.Directory
	registry *chat.Registry
	finder   *fakeFinder
}

// fakeFinder records the last place query and returns a fixed collection.
type fakeFinder struct {
	mu   sync.Mutex
	last geocode.PlaceQuery
	fc   *geocode.FeatureCollection
	err  error
}

func (f *fakeFinder) FindPlaces(_ context.Context, q geocode.PlaceQuery) (*geocode.FeatureCollection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.last = q
	return f.fc, f.err
}

func (f *fakeFinder) lastQuery() geocode.PlaceQuery {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newAPI mounts every handler on a chi router the way the server does. The
// directory has no resolver, so new locations land on directory.Fallback.
func newAPI(t *testing.T, withFinder bool) *testAPI {
	t.Helper()
	logger := testLogger()

	api := &testAPI{
		dir:      directory.New(logger, directory.WithConfig(directory.Config{LockTimeout: time.Second})),
		registry: chat.NewRegistry(logger, nil),
		finder: &fakeFinder{fc: &geocode.FeatureCollection{
			Type:     "FeatureCollection",
			Features: []geocode.Feature{},
		}},
	}

	var finder geocode.PlaceFinder
	if withFinder {
		finder = api.finder
	}

	groups := handler.NewGroupHandler(service.NewGroupService(api.dir, 0, logger), logger)
	chats := handler.NewChatHandler(service.NewChatService(api.dir, api.registry, nil, logger), logger)
	places := handler.NewPlaceHandler(service.NewPlaceService(finder, logger), logger)
	ws := handler.NewWSHandler(api.registry, api.dir, []string{"*"}, logger)

	r := chi.NewRouter()
	r.Get("/healthz", handler.HandleHealth)
	r.Post("/groups/create", groups.HandleCreate)
	r.Post("/groups/join", groups.HandleJoin)
	r.Get("/groups/nearby", groups.HandleNearby)
	r.Get("/locations", groups.HandleLocations)
	r.Get("/locations/{locationID}/groups", groups.HandleLocationGroups)
	r.Delete("/locations/{locationID}/groups/{groupID}", groups.HandleDelete)
	r.Post("/chat/send", chats.HandleSend)
	r.Get("/chat/history", chats.HandleHistory)
	r.Get("/map/nearby", places.HandleNearby)
	r.Get("/ws", ws.HandleConnect)
	api.router = r

	return api
}

// do sends a request with an optional JSON body. A string body is sent as is.
func (api *testAPI) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	api.router.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&v), "body: %s", rr.Body.String())
	return v
}

func user(id int64, name string, age int) model.User {
	return model.User{ID: id, Name: name, Age: age, Gender: "x", Interests: []string{"hiking"}}
}

func futureDate() model.Date {
	return model.DateOf(time.Now()).AddDays(3)
}

// createGroup creates a 20-30 group hosted by user 1 and returns it.
func (api *testAPI) createGroup(t *testing.T, locationID, title string) model.Group {
	t.Helper()
	rr := api.do(t, http.MethodPost, "/groups/create", map[string]any{
		"location_id": locationID,
		"title":       title,
		"description": "after work",
		"age_range":   []int{20, 30},
		"date":        futureDate(),
		"host":        user(1, "Ana", 25),
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	return decode[model.Group](t, rr)
}
