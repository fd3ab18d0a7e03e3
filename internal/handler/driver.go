package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/FooledKiwi/ridemap-api/internal/location"
	"github.com/FooledKiwi/ridemap-api/internal/service"
	"github.com/FooledKiwi/ridemap-api/internal/storage"
)

// AssignmentFinder looks up the vehicle a driver is operating.
type AssignmentFinder interface {
	GetAssignmentByDriver(ctx context.Context, driverID int32) (*storage.DriverAssignment, error)
}

// PositionIngester accepts device fixes and device errors per vehicle.
type PositionIngester interface {
	Report(vehicleID int32, fix location.Fix) error
	ReportError(vehicleID int32, perr *location.PositionError)
}

// DriverHandler holds dependencies for driver-specific endpoints.
type DriverHandler struct {
	assignments AssignmentFinder
	positions   PositionIngester
}

// NewDriverHandler creates a DriverHandler.
func NewDriverHandler(assignments AssignmentFinder, positions PositionIngester) *DriverHandler {
	return &DriverHandler{assignments: assignments, positions: positions}
}

// assignedVehicle resolves the caller's active vehicle, writing the error
// response itself when there is none.
func (h *DriverHandler) assignedVehicle(c *gin.Context) (*storage.DriverAssignment, bool) {
	userID, ok := authUserID(c)
	if !ok {
		return nil, false
	}
	assignment, err := h.assignments.GetAssignmentByDriver(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query assignment"})
		return nil, false
	}
	if assignment == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "no active vehicle assignment"})
		return nil, false
	}
	return assignment, true
}

// ---------------------------------------------------------------------------
// GPS Position Reporting
// ---------------------------------------------------------------------------

type reportPositionRequest struct {
	Lat       *float64   `json:"lat" binding:"required"`
	Lng       *float64   `json:"lng" binding:"required"`
	Heading   *float64   `json:"heading"`
	Accuracy  float64    `json:"accuracy" binding:"gte=0"`
	Timestamp *time.Time `json:"timestamp"`
}

// ReportPosition handles POST /api/v1/driver/position
//
// Body:
//
//	{"lat":-23.55,"lng":-46.63,"heading":90,"accuracy":8,"timestamp":"2024-05-01T12:00:00Z"}
//
// heading and timestamp are optional. A missing heading is derived from the
// previous fix of the same vehicle.
func (h *DriverHandler) ReportPosition(c *gin.Context) {
	var req reportPositionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	assignment, ok := h.assignedVehicle(c)
	if !ok {
		return
	}

	fix := location.Fix{Lat: *req.Lat, Lng: *req.Lng, Heading: req.Heading, Accuracy: req.Accuracy}
	if req.Timestamp != nil {
		fix.Timestamp = *req.Timestamp
	}
	if err := h.positions.Report(assignment.VehicleID, fix); err != nil {
		if errors.Is(err, service.ErrInvalidPosition) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "lat/lng out of range"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update position"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok", "vehicle_id": assignment.VehicleID})
}

type reportPositionErrorRequest struct {
	Code    int    `json:"code" binding:"required,oneof=1 2 3"`
	Message string `json:"message"`
}

// ReportPositionError handles POST /api/v1/driver/position/error
//
// Body uses the W3C Geolocation error codes:
// 1 permission denied, 2 position unavailable, 3 timeout.
func (h *DriverHandler) ReportPositionError(c *gin.Context) {
	var req reportPositionErrorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	assignment, ok := h.assignedVehicle(c)
	if !ok {
		return
	}

	h.positions.ReportError(assignment.VehicleID, &location.PositionError{
		Code:    location.PositionErrorCode(req.Code),
		Message: req.Message,
	})
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ---------------------------------------------------------------------------
// Assignment
// ---------------------------------------------------------------------------

// GetAssignment handles GET /api/v1/driver/assignment
func (h *DriverHandler) GetAssignment(c *gin.Context) {
	userID, ok := authUserID(c)
	if !ok {
		return
	}

	assignment, err := h.assignments.GetAssignmentByDriver(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query assignment"})
		return
	}
	if assignment == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no active assignment"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"vehicle": gin.H{
			"id":    assignment.VehicleID,
			"plate": assignment.PlateNumber,
		},
		"assigned_at": assignment.AssignedAt,
	})
}
