// Package handler implements the gin HTTP handlers.
package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/FooledKiwi/ridemap-api/internal/broker"
	"github.com/FooledKiwi/ridemap-api/internal/location"
	"github.com/FooledKiwi/ridemap-api/internal/mapsession"
	"github.com/FooledKiwi/ridemap-api/internal/service"
)

// KeyResolver resolves the Maps API key handed to clients.
type KeyResolver interface {
	Resolve(ctx context.Context, region string) (string, error)
}

// Directions computes a route between two points.
type Directions interface {
	Route(ctx context.Context, origin, destination mapsession.LatLng) (*mapsession.Directions, error)
}

// PositionReader returns the latest known position of a vehicle.
type PositionReader interface {
	Latest(ctx context.Context, vehicleID int32) (*location.Sample, error)
}

// Handler holds the dependencies shared by the map endpoints.
// A single Handler is shared across all route groups; individual methods are
// registered as gin handler functions.
type Handler struct {
	keys       KeyResolver
	directions Directions
	positions  PositionReader
	views      *service.MapViewService
	events     *broker.Broker
	logger     *zap.Logger
}

// New creates a Handler with the given dependencies.
func New(
	keys KeyResolver,
	directions Directions,
	positions PositionReader,
	views *service.MapViewService,
	events *broker.Broker,
	logger *zap.Logger,
) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		keys:       keys,
		directions: directions,
		positions:  positions,
		views:      views,
		events:     events,
		logger:     logger,
	}
}

// Health handles GET /health
func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// parseRequiredFloat extracts a required float64 query parameter.
// On failure it writes a 400 response and returns (0, false).
func parseRequiredFloat(c *gin.Context, name string) (float64, bool) {
	raw := c.Query(name)
	if raw == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": name + " query parameter is required"})
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": name + " must be a valid number"})
		return 0, false
	}
	return v, true
}

// parseID extracts a positive int32 path parameter.
func parseID(c *gin.Context, name string) (int32, bool) {
	v, err := strconv.ParseInt(c.Param(name), 10, 32)
	if err != nil || v <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": name + " must be a positive integer"})
		return 0, false
	}
	return int32(v), true
}

// authUserID extracts the authenticated user's ID from the gin context.
// Returns 0 and sends a 401 if the value is missing.
func authUserID(c *gin.Context) (int32, bool) {
	uid, exists := c.Get("auth_user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return 0, false
	}
	id, ok := uid.(int32)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "invalid auth context"})
		return 0, false
	}
	return id, true
}
