package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/FooledKiwi/ridemap-api/internal/mapsession"
	"github.com/FooledKiwi/ridemap-api/internal/places"
	"github.com/FooledKiwi/ridemap-api/internal/provider"
	"github.com/FooledKiwi/ridemap-api/internal/service"
)

// viewError maps service errors to responses. op names the failed action in
// the generic 500 message.
func (h *Handler) viewError(c *gin.Context, err error, op string) {
	var kfe *provider.KeyFetchError
	var sle *provider.ScriptLoadError
	switch {
	case errors.Is(err, mapsession.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "view not found"})
	case errors.Is(err, service.ErrUnknownField):
		c.JSON(http.StatusBadRequest, gin.H{"error": "field must be origin or destination"})
	case errors.Is(err, service.ErrNoRoute):
		c.JSON(http.StatusNotFound, gin.H{"error": "no route found"})
	case errors.Is(err, places.ErrNotBound):
		c.JSON(http.StatusConflict, gin.H{"error": "input has no autocomplete attached"})
	case errors.As(err, &kfe), errors.As(err, &sle):
		h.logger.Warn("map provider unavailable", zap.String("op", op), zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "map provider unavailable"})
	default:
		h.logger.Error("view operation failed", zap.String("op", op), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to " + op})
	}
}

func validLatLng(lat, lng float64) bool {
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}

type latLngRequest struct {
	Lat *float64 `json:"lat" binding:"required"`
	Lng *float64 `json:"lng" binding:"required"`
}

func (r latLngRequest) point() mapsession.LatLng {
	return mapsession.LatLng{Lat: *r.Lat, Lng: *r.Lng}
}

func (r latLngRequest) points() []mapsession.LatLng {
	return []mapsession.LatLng{r.point()}
}

// pointsRequest is a request body carrying coordinates to range-check.
type pointsRequest interface {
	points() []mapsession.LatLng
}

// bindPoints binds a JSON body and validates every coordinate in it.
func bindPoints(c *gin.Context, req pointsRequest) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return false
	}
	for _, p := range req.points() {
		if !validLatLng(p.Lat, p.Lng) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "lat/lng out of range"})
			return false
		}
	}
	return true
}

// ---------------------------------------------------------------------------
// Views
// ---------------------------------------------------------------------------

type createViewRequest struct {
	Center *mapsession.LatLng `json:"center"`
	Zoom   int                `json:"zoom" binding:"gte=0,lte=22"`
}

// CreateView handles POST /api/v1/views
//
// Body (optional):
//
//	{"center":{"lat":-23.55,"lng":-46.63},"zoom":15}
//
// Response 201: the view state, including its id.
// Response 503: the map provider could not be loaded.
func (h *Handler) CreateView(c *gin.Context) {
	var req createViewRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	if req.Center != nil && !validLatLng(req.Center.Lat, req.Center.Lng) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "center out of range"})
		return
	}

	st, err := h.views.Create(c.Request.Context(), req.Center, req.Zoom)
	if err != nil {
		h.viewError(c, err, "create view")
		return
	}
	c.JSON(http.StatusCreated, st)
}

// GetView handles GET /api/v1/views/:id
func (h *Handler) GetView(c *gin.Context) {
	st, err := h.views.State(c.Param("id"))
	if err != nil {
		h.viewError(c, err, "get view")
		return
	}
	c.JSON(http.StatusOK, st)
}

// DeleteView handles DELETE /api/v1/views/:id
func (h *Handler) DeleteView(c *gin.Context) {
	if err := h.views.Close(c.Param("id")); err != nil {
		h.viewError(c, err, "close view")
		return
	}
	c.Status(http.StatusNoContent)
}

// Recenter handles POST /api/v1/views/:id/recenter
func (h *Handler) Recenter(c *gin.Context) {
	var req latLngRequest
	if !bindPoints(c, &req) {
		return
	}
	if err := h.views.Recenter(c.Param("id"), req.point()); err != nil {
		h.viewError(c, err, "recenter")
		return
	}
	c.Status(http.StatusNoContent)
}

// ---------------------------------------------------------------------------
// Markers
// ---------------------------------------------------------------------------

type markerRequest struct {
	latLngRequest
	Title    string  `json:"title"`
	Icon     string  `json:"icon"`
	Label    string  `json:"label"`
	Rotation float64 `json:"rotation"`
}

// UpsertMarker handles PUT /api/v1/views/:id/markers/:marker
//
// The marker is created on first use and moved in place afterwards.
func (h *Handler) UpsertMarker(c *gin.Context) {
	var req markerRequest
	if !bindPoints(c, &req) {
		return
	}
	opts := mapsession.MarkerOptions{Title: req.Title, Icon: req.Icon, Label: req.Label, Rotation: req.Rotation}
	if err := h.views.UpsertMarker(c.Param("id"), c.Param("marker"), req.point(), opts); err != nil {
		h.viewError(c, err, "upsert marker")
		return
	}
	c.Status(http.StatusNoContent)
}

// RemoveMarker handles DELETE /api/v1/views/:id/markers/:marker
//
// Removing an unknown marker succeeds.
func (h *Handler) RemoveMarker(c *gin.Context) {
	if err := h.views.RemoveMarker(c.Param("id"), c.Param("marker")); err != nil {
		h.viewError(c, err, "remove marker")
		return
	}
	c.Status(http.StatusNoContent)
}

// ClearMarkers handles DELETE /api/v1/views/:id/markers
func (h *Handler) ClearMarkers(c *gin.Context) {
	if err := h.views.ClearMarkers(c.Param("id")); err != nil {
		h.viewError(c, err, "clear markers")
		return
	}
	c.Status(http.StatusNoContent)
}

// ---------------------------------------------------------------------------
// Route
// ---------------------------------------------------------------------------

type routeRequest struct {
	Origin      latLngRequest `json:"origin"`
	Destination latLngRequest `json:"destination"`
}

func (r routeRequest) points() []mapsession.LatLng {
	return []mapsession.LatLng{r.Origin.point(), r.Destination.point()}
}

// RenderRoute handles POST /api/v1/views/:id/route
//
// Body:
//
//	{"origin":{"lat":-23.56,"lng":-46.65},"destination":{"lat":-23.55,"lng":-46.63}}
//
// Response 200: {"distance_km":2.6,"duration_min":9,...}
// Response 404: no route; the route previously drawn is kept.
func (h *Handler) RenderRoute(c *gin.Context) {
	var req routeRequest
	if !bindPoints(c, &req) {
		return
	}
	info, err := h.views.RenderRoute(c.Request.Context(), c.Param("id"), req.Origin.point(), req.Destination.point())
	if err != nil {
		h.viewError(c, err, "render route")
		return
	}
	c.JSON(http.StatusOK, info)
}

// ClearRoute handles DELETE /api/v1/views/:id/route
func (h *Handler) ClearRoute(c *gin.Context) {
	if err := h.views.ClearRoute(c.Param("id")); err != nil {
		h.viewError(c, err, "clear route")
		return
	}
	c.Status(http.StatusNoContent)
}

// ---------------------------------------------------------------------------
// Place inputs
// ---------------------------------------------------------------------------

type inputTextRequest struct {
	Text string `json:"text"`
}

// SetInputText handles PUT /api/v1/views/:id/inputs/:field
//
// field is origin or destination. An empty text clears the selection.
func (h *Handler) SetInputText(c *gin.Context) {
	var req inputTextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.views.SetInputText(c.Param("id"), c.Param("field"), req.Text); err != nil {
		h.viewError(c, err, "set input")
		return
	}
	c.Status(http.StatusNoContent)
}

// Suggest handles GET /api/v1/views/:id/inputs/:field/suggestions
//
// Response 200:
//
//	[{"place_id":"ChIJ...","description":"Av. Paulista, São Paulo"}]
func (h *Handler) Suggest(c *gin.Context) {
	preds, err := h.views.Suggest(c.Request.Context(), c.Param("id"), c.Param("field"))
	if err != nil {
		h.viewError(c, err, "fetch suggestions")
		return
	}
	if preds == nil {
		preds = []places.Prediction{}
	}
	c.JSON(http.StatusOK, preds)
}

type selectPlaceRequest struct {
	PlaceID string `json:"place_id" binding:"required"`
}

// SelectPlace handles POST /api/v1/views/:id/inputs/:field/select
//
// Response 200: {"place":{...},"route":{...}}. place is null when the
// provider returned no coordinates for the selection.
func (h *Handler) SelectPlace(c *gin.Context) {
	var req selectPlaceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res, err := h.views.Select(c.Request.Context(), c.Param("id"), c.Param("field"), req.PlaceID)
	if err != nil {
		h.viewError(c, err, "select place")
		return
	}
	c.JSON(http.StatusOK, res)
}

// ---------------------------------------------------------------------------
// Vehicle follow
// ---------------------------------------------------------------------------

// Follow handles POST /api/v1/views/:id/follow/:vehicle
func (h *Handler) Follow(c *gin.Context) {
	vehicleID, ok := parseID(c, "vehicle")
	if !ok {
		return
	}
	if err := h.views.Follow(c.Request.Context(), c.Param("id"), vehicleID); err != nil {
		h.viewError(c, err, "follow vehicle")
		return
	}
	c.Status(http.StatusNoContent)
}

// Unfollow handles DELETE /api/v1/views/:id/follow
func (h *Handler) Unfollow(c *gin.Context) {
	if err := h.views.Unfollow(c.Param("id")); err != nil {
		h.viewError(c, err, "unfollow")
		return
	}
	c.Status(http.StatusNoContent)
}
