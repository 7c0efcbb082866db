package handler

import (
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/sakif/companion/internal/apperror"
	"github.com/sakif/companion/internal/model"
	"github.com/sakif/companion/internal/service"
)

// GroupHandler serves group creation, membership and listings.
type GroupHandler struct {
	groups *service.GroupService
	logger *slog.Logger
}

// NewGroupHandler creates a new GroupHandler.
func NewGroupHandler(groups *service.GroupService, logger *slog.Logger) *GroupHandler {
	return &GroupHandler{groups: groups, logger: logger}
}

type createGroupRequest struct {
	LocationID  string         `json:"location_id"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	AgeRange    model.AgeRange `json:"age_range"`
	Date        model.Date     `json:"date"`
	Host        model.User     `json:"host"`
}

type joinGroupRequest struct {
	LocationID string     `json:"location_id"`
	GroupID    uuid.UUID  `json:"group_id"`
	User       model.User `json:"user"`
}

// HandleCreate opens a group at a location.
//
// HTTP: POST /groups/create
// REQUEST BODY:
//
//	{"location_id": "ChIJ...", "title": "Beer garden", "description": "",
//	 "age_range": [20, 30], "date": "2026-10-20",
//	 "host": {"user_id": 1, "name": "Ana", "age": 25, "gender": "f", "interests": []}}
//
// Responds 201 with the new group, host already a member.
func (h *GroupHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createGroupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	g, err := h.groups.Create(r.Context(), service.CreateGroupInput{
		LocationID:  req.LocationID,
		Title:       req.Title,
		Description: req.Description,
		AgeRange:    req.AgeRange,
		Date:        req.Date,
		Host:        req.Host,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, g)
}

// HandleJoin adds a user to an existing group.
//
// HTTP: POST /groups/join
// REQUEST BODY: {"location_id": "...", "group_id": "<uuid>", "user": {...}}
//
// An age outside the group's range is 422, a repeat join is 409.
func (h *GroupHandler) HandleJoin(w http.ResponseWriter, r *http.Request) {
	var req joinGroupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.GroupID == uuid.Nil {
		writeError(w, apperror.ValidationFailed("group_id", "group_id is required"))
		return
	}

	g, err := h.groups.Join(r.Context(), req.LocationID, req.GroupID, req.User)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

// HandleDelete removes a group and its chat.
//
// HTTP: DELETE /locations/{locationID}/groups/{groupID}
func (h *GroupHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	groupID, err := uuid.Parse(chi.URLParam(r, "groupID"))
	if err != nil {
		writeError(w, apperror.ValidationFailed("group_id", "group_id must be a UUID"))
		return
	}

	if err := h.groups.Delete(r.Context(), chi.URLParam(r, "locationID"), groupID); err != nil {
		writeError(w, err)
		return
	}
	h.logger.Info("group deleted via API", slog.String("group_id", groupID.String()))
	w.WriteHeader(http.StatusNoContent)
}

// HandleLocationGroups lists the groups at one location, soonest first.
//
// HTTP: GET /locations/{locationID}/groups
func (h *GroupHandler) HandleLocationGroups(w http.ResponseWriter, r *http.Request) {
	loc, err := h.groups.Location(r.Context(), chi.URLParam(r, "locationID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sortedGroups(loc))
}

// HandleLocations returns several locations at once. Unknown ids are left
// out of the response rather than failing the request.
//
// HTTP: GET /locations?id=a&id=b
func (h *GroupHandler) HandleLocations(w http.ResponseWriter, r *http.Request) {
	var ids []string
	for _, raw := range r.URL.Query()["id"] {
		for _, id := range strings.Split(raw, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
	}

	locs, err := h.groups.Locations(r.Context(), ids)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, locs)
}

// HandleNearby lists groups around a point.
//
// HTTP: GET /groups/nearby?lat=48.13&lng=11.57&radius=3
//
// radius is in km. When it is absent the service default applies; an
// explicit 0 matches only groups exactly at the point.
func (h *GroupHandler) HandleNearby(w http.ResponseWriter, r *http.Request) {
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
	radius, err := queryFloat(r, "radius", false, h.groups.DefaultRadiusKm())
	if err != nil {
		writeError(w, err)
		return
	}

	groups, err := h.groups.Nearby(r.Context(), model.Coordinates{Lat: lat, Lng: lng}, radius)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, groups)
}

// sortedGroups flattens a location's group map, ordered by date then title.
func sortedGroups(loc model.Location) []model.Group {
	out := make([]model.Group, 0, len(loc.Groups))
	for _, g := range loc.Groups {
		out = append(out, g)
	}
	slices.SortFunc(out, func(a, b model.Group) int {
		switch {
		case a.Date.Before(b.Date):
			return -1
		case b.Date.Before(a.Date):
			return 1
		}
		return strings.Compare(a.Title, b.Title)
	})
	return out
}
