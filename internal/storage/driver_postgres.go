package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type pgDriverRepository struct {
	pool *pgxpool.Pool
}

// NewDriverRepository creates a DriverRepository backed by the given pool.
func NewDriverRepository(pool *pgxpool.Pool) DriverRepository {
	return &pgDriverRepository{pool: pool}
}

func (r *pgDriverRepository) GetAssignmentByDriver(ctx context.Context, driverID int32) (*DriverAssignment, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	da := &DriverAssignment{}
	err := r.pool.QueryRow(ctx, `
		SELECT va.vehicle_id, v.plate_number, va.assigned_at
		FROM vehicle_assignments va
		JOIN vehicles v ON v.id = va.vehicle_id
		WHERE va.driver_id = $1 AND va.active = true`,
		driverID,
	).Scan(&da.VehicleID, &da.PlateNumber, &da.AssignedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage: GetAssignmentByDriver: %w", err)
	}
	return da, nil
}

func (r *pgDriverRepository) UpsertPosition(ctx context.Context, p VehiclePosition) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	_, err := r.pool.Exec(ctx, `
		INSERT INTO vehicle_positions (vehicle_id, geom, heading, accuracy_m, recorded_at)
		VALUES ($1, ST_SetSRID(ST_MakePoint($2, $3), 4326), $4, $5, $6)
		ON CONFLICT (vehicle_id)
		DO UPDATE SET
			geom        = EXCLUDED.geom,
			heading     = EXCLUDED.heading,
			accuracy_m  = EXCLUDED.accuracy_m,
			recorded_at = EXCLUDED.recorded_at
		WHERE vehicle_positions.recorded_at <= EXCLUDED.recorded_at`,
		p.VehicleID, p.Lng, p.Lat, p.Heading, p.Accuracy, p.RecordedAt)
	if err != nil {
		return fmt.Errorf("storage: UpsertPosition: %w", err)
	}
	return nil
}

func (r *pgDriverRepository) GetPosition(ctx context.Context, vehicleID int32) (*VehiclePosition, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var geomWKT string
	vp := &VehiclePosition{VehicleID: vehicleID}
	err := r.pool.QueryRow(ctx, `
		SELECT ST_AsText(geom), heading, accuracy_m, recorded_at
		FROM vehicle_positions
		WHERE vehicle_id = $1`, vehicleID,
	).Scan(&geomWKT, &vp.Heading, &vp.Accuracy, &vp.RecordedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage: GetPosition: %w", err)
	}

	vp.Lat, vp.Lng, err = parsePointWKT(geomWKT)
	if err != nil {
		return nil, fmt.Errorf("storage: GetPosition: parse geom: %w", err)
	}
	return vp, nil
}
