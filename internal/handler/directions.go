package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/FooledKiwi/ridemap-api/internal/mapsession"
	"github.com/FooledKiwi/ridemap-api/internal/service"
)

// GetDirections handles GET /api/v1/directions
//
// Query params:
//   - origin_lat, origin_lng           (required) float64
//   - destination_lat, destination_lng (required) float64
//
// Response 200:
//
//	{"polyline":"...","distance_m":2600,"duration_s":540,"distance_text":"2.6 km","duration_text":"9 min"}
//
// Response 400: missing or invalid query parameters.
// Response 404: the provider found no route.
// Response 500: routing error.
//
// The polyline uses the Encoded Polyline Algorithm Format at 1e-5 precision,
// verbatim from the Routes API `routes.polyline.encodedPolyline` field.
func (h *Handler) GetDirections(c *gin.Context) {
	var o, d mapsession.LatLng
	var ok bool
	if o.Lat, ok = parseRequiredFloat(c, "origin_lat"); !ok {
		return
	}
	if o.Lng, ok = parseRequiredFloat(c, "origin_lng"); !ok {
		return
	}
	if d.Lat, ok = parseRequiredFloat(c, "destination_lat"); !ok {
		return
	}
	if d.Lng, ok = parseRequiredFloat(c, "destination_lng"); !ok {
		return
	}

	dir, err := h.directions.Route(c.Request.Context(), o, d)
	if err != nil {
		if errors.Is(err, service.ErrNoRoute) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no route found"})
			return
		}
		h.logger.Warn("directions", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to calculate route"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"polyline":      dir.Polyline,
		"distance_m":    dir.DistanceMeters,
		"duration_s":    dir.DurationSeconds,
		"distance_text": dir.DistanceText,
		"duration_text": dir.DurationText,
	})
}

// GetVehiclePosition handles GET /api/v1/vehicles/:id/position
func (h *Handler) GetVehiclePosition(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	pos, err := h.positions.Latest(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query vehicle position"})
		return
	}
	if pos == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no position recorded for this vehicle"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"lat":         pos.Lat,
		"lng":         pos.Lng,
		"heading":     pos.Heading,
		"accuracy":    pos.Accuracy,
		"recorded_at": pos.Timestamp,
	})
}
