package storage

import (
	"context"
	"time"
)

// DriverAssignment is the vehicle a driver is currently operating.
type DriverAssignment struct {
	VehicleID   int32
	PlateNumber string
	AssignedAt  time.Time
}

// VehiclePosition is the latest resolved position of a vehicle. Heading is
// always set, in degrees clockwise from north.
type VehiclePosition struct {
	VehicleID  int32
	Lat        float64
	Lng        float64
	Heading    float64
	Accuracy   float64
	RecordedAt time.Time
}

// DriverRepository defines driver and vehicle position operations.
type DriverRepository interface {
	// GetAssignmentByDriver returns the active assignment for a driver,
	// or (nil, nil) if none exists.
	GetAssignmentByDriver(ctx context.Context, driverID int32) (*DriverAssignment, error)

	// UpsertPosition stores p as the latest position of its vehicle.
	UpsertPosition(ctx context.Context, p VehiclePosition) error

	// GetPosition returns the latest position for a vehicle, or (nil, nil).
	GetPosition(ctx context.Context, vehicleID int32) (*VehiclePosition, error)
}
