package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/smarttransit/booking-core/internal/apperr"
	"github.com/smarttransit/booking-core/internal/models"
)

// PassengerFormRepository backs the public passenger form
type PassengerFormRepository struct {
	db *sqlx.DB
}

// NewPassengerFormRepository creates a new PassengerFormRepository
func NewPassengerFormRepository(db *sqlx.DB) *PassengerFormRepository {
	return &PassengerFormRepository{db: db}
}

// GetFormView returns nil when no reservation carries the token
func (r *PassengerFormRepository) GetFormView(ctx context.Context, token string) (*models.FormView, error) {
	var view models.FormView
	err := r.db.GetContext(ctx, &view, `
		SELECT r.id AS reservation_id, r.booking_reference, r.contact_name, r.seat_count,
		       r.form_expires_at, r.form_completed_at,
		       sv.name AS service_name, sv.origin, sv.destination, t.departure_at,
		       p.name AS provider_name
		FROM reservations r
		JOIN trips t ON t.id = r.trip_id
		JOIN services sv ON sv.id = t.service_id
		JOIN providers p ON p.id = r.provider_id
		WHERE r.form_token = $1 AND r.status <> 'CANCELLED'`, token)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get form: %w", err)
	}

	err = r.db.SelectContext(ctx, &view.Seats, `
		SELECT id, seat_number, floor
		FROM reservation_seats
		WHERE reservation_id = $1
		ORDER BY floor NULLS LAST, seat_number NULLS LAST, id`, view.ReservationID)
	if err != nil {
		return nil, fmt.Errorf("failed to get form seats: %w", err)
	}
	return &view, nil
}

// CompleteForm records passengers and stamps completion in one transaction.
// A second submission for the same reservation fails even when concurrent.
func (r *PassengerFormRepository) CompleteForm(ctx context.Context, reservationID string, passengers []models.Passenger, seatIDs []string, now time.Time) error {
	if len(passengers) != len(seatIDs) {
		return fmt.Errorf("passenger and seat counts differ: %d != %d", len(passengers), len(seatIDs))
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE reservations
		SET form_completed_at = $2, updated_at = NOW()
		WHERE id = $1 AND form_completed_at IS NULL`, reservationID, now)
	if err != nil {
		return fmt.Errorf("failed to stamp form completion: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return apperr.BadRequest("passenger form already completed")
	}

	for i := range passengers {
		p := &passengers[i]
		p.ReservationID = reservationID
		_, err := tx.ExecContext(ctx, `
			INSERT INTO passengers (id, reservation_id, full_name, document_type, document_number, phone, age, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			p.ID, p.ReservationID, p.FullName, p.DocumentType, p.DocumentNumber, p.Phone, p.Age, now)
		if err != nil {
			return fmt.Errorf("failed to create passenger: %w", err)
		}

		result, err := tx.ExecContext(ctx, `
			UPDATE reservation_seats SET passenger_id = $1
			WHERE id = $2 AND reservation_id = $3`, p.ID, seatIDs[i], reservationID)
		if err != nil {
			return fmt.Errorf("failed to link passenger to seat: %w", err)
		}
		if rows, _ := result.RowsAffected(); rows == 0 {
			return apperr.BadRequest("seat %s does not belong to this reservation", seatIDs[i])
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit passenger form: %w", err)
	}
	return nil
}
