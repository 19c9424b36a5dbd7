package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/smarttransit/booking-core/internal/models"
)

// TripRepository reads trips together with their service, provider and vehicle
type TripRepository struct {
	db *sqlx.DB
}

// NewTripRepository creates a new TripRepository
func NewTripRepository(db *sqlx.DB) *TripRepository {
	return &TripRepository{db: db}
}

const tripDetailsQuery = `
	SELECT
		t.id, t.service_id, t.vehicle_id, t.departure_at, t.total_seats, t.available_seats,
		t.price_per_seat, t.seat_selection_mode, t.booking_mode, t.status,
		sv.name AS service_name, sv.origin, sv.destination, sv.requires_passenger_form,
		p.id AS provider_id, p.name AS provider_name, p.commission_rate,
		v.plate AS vehicle_plate, v.floors AS vehicle_floors
	FROM trips t
	JOIN services sv ON sv.id = t.service_id
	JOIN providers p ON p.id = sv.provider_id
	JOIN vehicles v ON v.id = t.vehicle_id`

// GetTripDetails returns nil when the trip does not exist
func (r *TripRepository) GetTripDetails(ctx context.Context, tripID string) (*models.TripDetails, error) {
	var trip models.TripDetails
	err := r.db.GetContext(ctx, &trip, tripDetailsQuery+` WHERE t.id = $1`, tripID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get trip: %w", err)
	}
	return &trip, nil
}
