package database

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/smarttransit/booking-core/internal/apperr"
	"github.com/smarttransit/booking-core/internal/models"
)

// InventoryRepository owns trip_seats.status and trips.available_seats.
// Every write to either column goes through this type.
type InventoryRepository struct {
	db *sqlx.DB
}

// NewInventoryRepository creates a new InventoryRepository
func NewInventoryRepository(db *sqlx.DB) *InventoryRepository {
	return &InventoryRepository{db: db}
}

const tripSeatColumns = `
	ts.id, ts.trip_id, ts.seat_id, s.number AS seat_number, s.floor,
	s.row_number, s.column_number, s.position, ts.status, ts.lock_id, ts.locked_until`

// ============================================================================
// READS
// ============================================================================

// GetTripSeats returns the requested seats of a trip joined with their seat attributes
func (r *InventoryRepository) GetTripSeats(ctx context.Context, tripID string, seatIDs []string) ([]models.TripSeat, error) {
	if len(seatIDs) == 0 {
		return []models.TripSeat{}, nil
	}

	query, args, err := sqlx.In(`
		SELECT `+tripSeatColumns+`
		FROM trip_seats ts
		JOIN seats s ON s.id = ts.seat_id
		WHERE ts.trip_id = ? AND ts.id IN (?)
		ORDER BY s.floor, s.row_number, s.column_number`, tripID, seatIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to build seat query: %w", err)
	}

	var seats []models.TripSeat
	if err := r.db.SelectContext(ctx, &seats, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to get trip seats: %w", err)
	}
	return seats, nil
}

// CountAvailable counts AVAILABLE seats on a trip, optionally on one floor
func (r *InventoryRepository) CountAvailable(ctx context.Context, tripID string, floor *int) (int, error) {
	return countAvailable(ctx, r.db, tripID, floor)
}

func countAvailable(ctx context.Context, q sqlx.QueryerContext, tripID string, floor *int) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM trip_seats ts
		JOIN seats s ON s.id = ts.seat_id
		WHERE ts.trip_id = $1 AND ts.status = 'AVAILABLE'`
	args := []interface{}{tripID}
	if floor != nil {
		query += ` AND s.floor = $2`
		args = append(args, *floor)
	}

	var count int
	if err := sqlx.GetContext(ctx, q, &count, query, args...); err != nil {
		return 0, fmt.Errorf("failed to count available seats: %w", err)
	}
	return count, nil
}

// ============================================================================
// LOCKING
// ============================================================================

// LockSeats moves every requested seat from AVAILABLE to LOCKED under lockID,
// or none of them. The trip counter is decremented by the locked count.
func (r *InventoryRepository) LockSeats(ctx context.Context, tripID string, seatIDs []string, lockID string, until time.Time) error {
	if len(seatIDs) == 0 {
		return apperr.BadRequest("no seats to lock")
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query, args, err := sqlx.In(`
		UPDATE trip_seats
		SET status = 'LOCKED', lock_id = ?, locked_until = ?, updated_at = NOW()
		WHERE trip_id = ? AND id IN (?) AND status = 'AVAILABLE'
		RETURNING id`,
		lockID, until, tripID, seatIDs)
	if err != nil {
		return fmt.Errorf("failed to build lock query: %w", err)
	}

	var locked []string
	if err := tx.SelectContext(ctx, &locked, tx.Rebind(query), args...); err != nil {
		return fmt.Errorf("failed to lock seats: %w", err)
	}

	if len(locked) != len(seatIDs) {
		return seatsNotAvailable(ctx, tx, tripID, missing(seatIDs, locked))
	}

	if err := adjustAvailable(ctx, tx, tripID, -len(locked)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit seat lock: %w", err)
	}
	return nil
}

// ConfirmLockTx moves the seats of lockID from LOCKED to CONFIRMED. When
// seatIDs is set, exactly those seats must belong to the lock. An expired
// lock fails with Gone even if the reclaimer has not swept it yet.
// Capacity was taken at lock time so the trip counter is not touched.
func (r *InventoryRepository) ConfirmLockTx(ctx context.Context, tx *sqlx.Tx, lockID string, seatIDs []string, now time.Time) ([]string, error) {
	query := `
		UPDATE trip_seats
		SET status = 'CONFIRMED', locked_until = NULL, updated_at = NOW()
		WHERE lock_id = ? AND status = 'LOCKED' AND locked_until >= ?`
	args := []interface{}{lockID, now}
	if len(seatIDs) > 0 {
		query += ` AND id IN (?)`
		args = append(args, seatIDs)
	}
	query += ` RETURNING id, trip_id`

	query, args, err := sqlx.In(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to build confirm query: %w", err)
	}

	type confirmedSeat struct {
		ID     string `db:"id"`
		TripID string `db:"trip_id"`
	}
	var confirmed []confirmedSeat
	if err := tx.SelectContext(ctx, &confirmed, tx.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to confirm lock: %w", err)
	}

	if len(confirmed) == 0 {
		return nil, lockFailure(ctx, tx, lockID, now)
	}

	ids := make([]string, len(confirmed))
	for i, s := range confirmed {
		ids[i] = s.ID
	}

	if len(seatIDs) > 0 && len(confirmed) != len(seatIDs) {
		return nil, seatsNotAvailable(ctx, tx, confirmed[0].TripID, missing(seatIDs, ids))
	}

	return ids, nil
}

// lockFailure classifies why a lock could not be confirmed
func lockFailure(ctx context.Context, tx *sqlx.Tx, lockID string, now time.Time) error {
	var counts struct {
		Total   int `db:"total"`
		Expired int `db:"expired"`
	}
	err := tx.GetContext(ctx, &counts, `
		SELECT COUNT(*) AS total,
		       COUNT(*) FILTER (WHERE status = 'LOCKED' AND locked_until < $2) AS expired
		FROM trip_seats
		WHERE lock_id = $1`, lockID, now)
	if err != nil {
		return fmt.Errorf("failed to inspect lock: %w", err)
	}

	switch {
	case counts.Total == 0:
		return apperr.NotFound("lock %s not found", lockID)
	case counts.Expired > 0:
		return apperr.Gone("lock %s has expired", lockID)
	default:
		return apperr.Conflict("lock %s is no longer held", lockID)
	}
}

// ============================================================================
// DIRECT CONFIRMATION AND RELEASE
// ============================================================================

// ConfirmSeatsTx moves seats straight from AVAILABLE to CONFIRMED and takes
// the capacity from the trip counter
func (r *InventoryRepository) ConfirmSeatsTx(ctx context.Context, tx *sqlx.Tx, tripID string, seatIDs []string) error {
	if len(seatIDs) == 0 {
		return apperr.BadRequest("no seats to confirm")
	}

	query, args, err := sqlx.In(`
		UPDATE trip_seats
		SET status = 'CONFIRMED', updated_at = NOW()
		WHERE trip_id = ? AND id IN (?) AND status = 'AVAILABLE'
		RETURNING id`, tripID, seatIDs)
	if err != nil {
		return fmt.Errorf("failed to build confirm query: %w", err)
	}

	var confirmed []string
	if err := tx.SelectContext(ctx, &confirmed, tx.Rebind(query), args...); err != nil {
		return fmt.Errorf("failed to confirm seats: %w", err)
	}

	if len(confirmed) != len(seatIDs) {
		return seatsNotAvailable(ctx, tx, tripID, missing(seatIDs, confirmed))
	}

	return adjustAvailable(ctx, tx, tripID, -len(confirmed))
}

// ReleaseSeats drops held seats back to AVAILABLE. Only LOCKED seats are
// touched: sold seats go back through reservation cancellation, and
// releasing already-available seats changes nothing.
func (r *InventoryRepository) ReleaseSeats(ctx context.Context, tripID string, seatIDs []string) (int, error) {
	return r.releaseInTx(ctx, tripID, seatIDs, models.TripSeatStatusLocked)
}

// ReleaseConfirmed returns CONFIRMED seats to AVAILABLE outside a
// reservation. It undoes a quantity reservation whose sale did not commit.
func (r *InventoryRepository) ReleaseConfirmed(ctx context.Context, tripID string, seatIDs []string) (int, error) {
	return r.releaseInTx(ctx, tripID, seatIDs, models.TripSeatStatusConfirmed)
}

// ReleaseConfirmedTx returns the CONFIRMED seats of a reservation being
// cancelled inside the caller's transaction
func (r *InventoryRepository) ReleaseConfirmedTx(ctx context.Context, tx *sqlx.Tx, tripID string, seatIDs []string) (int, error) {
	return releaseTx(ctx, tx, tripID, seatIDs, models.TripSeatStatusConfirmed)
}

func (r *InventoryRepository) releaseInTx(ctx context.Context, tripID string, seatIDs []string, from models.TripSeatStatus) (int, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	released, err := releaseTx(ctx, tx, tripID, seatIDs, from)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit seat release: %w", err)
	}
	return released, nil
}

// releaseTx moves seats in status from to AVAILABLE. The counter is
// incremented by the number of rows that actually changed.
func releaseTx(ctx context.Context, tx *sqlx.Tx, tripID string, seatIDs []string, from models.TripSeatStatus) (int, error) {
	if len(seatIDs) == 0 {
		return 0, nil
	}

	query, args, err := sqlx.In(`
		UPDATE trip_seats
		SET status = 'AVAILABLE', lock_id = NULL, locked_until = NULL, updated_at = NOW()
		WHERE trip_id = ? AND id IN (?) AND status = ?`, tripID, seatIDs, string(from))
	if err != nil {
		return 0, fmt.Errorf("failed to build release query: %w", err)
	}

	result, err := tx.ExecContext(ctx, tx.Rebind(query), args...)
	if err != nil {
		return 0, fmt.Errorf("failed to release seats: %w", err)
	}
	released, _ := result.RowsAffected()

	if released > 0 {
		if err := adjustAvailable(ctx, tx, tripID, int(released)); err != nil {
			return 0, err
		}
	}
	return int(released), nil
}

// ReleaseExpired releases up to limit seats whose lock passed its deadline.
// Only rows still LOCKED are touched, so a confirmation that commits first
// is never undone.
func (r *InventoryRepository) ReleaseExpired(ctx context.Context, now time.Time, limit int) (int, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var tripIDs []string
	err = tx.SelectContext(ctx, &tripIDs, `
		WITH expired AS (
			SELECT id FROM trip_seats
			WHERE status = 'LOCKED' AND locked_until < $1
			ORDER BY locked_until
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		UPDATE trip_seats ts
		SET status = 'AVAILABLE', lock_id = NULL, locked_until = NULL, updated_at = NOW()
		FROM expired
		WHERE ts.id = expired.id AND ts.status = 'LOCKED'
		RETURNING ts.trip_id`, now, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to release expired locks: %w", err)
	}

	if len(tripIDs) == 0 {
		return 0, nil
	}

	perTrip := make(map[string]int)
	for _, id := range tripIDs {
		perTrip[id]++
	}
	// stable order keeps row locks on trips acquired consistently
	trips := make([]string, 0, len(perTrip))
	for id := range perTrip {
		trips = append(trips, id)
	}
	sort.Strings(trips)

	for _, id := range trips {
		if err := adjustAvailable(ctx, tx, id, perTrip[id]); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit expired lock release: %w", err)
	}
	return len(tripIDs), nil
}

// ============================================================================
// QUANTITY RESERVATION
// ============================================================================

// ReserveQuantity confirms count unassigned seats in seat-map order, or fails
// with InsufficientSeats without touching anything
func (r *InventoryRepository) ReserveQuantity(ctx context.Context, tripID string, count int, floor *int) ([]models.TripSeat, error) {
	if count <= 0 {
		return nil, apperr.BadRequest("quantity must be positive")
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		SELECT ` + tripSeatColumns + `
		FROM trip_seats ts
		JOIN seats s ON s.id = ts.seat_id
		WHERE ts.trip_id = $1 AND ts.status = 'AVAILABLE'`
	args := []interface{}{tripID, count}
	if floor != nil {
		query += ` AND s.floor = $3`
		args = append(args, *floor)
	}
	query += `
		ORDER BY s.floor, s.row_number, s.column_number
		LIMIT $2
		FOR UPDATE OF ts SKIP LOCKED`

	var seats []models.TripSeat
	if err := tx.SelectContext(ctx, &seats, query, args...); err != nil {
		return nil, fmt.Errorf("failed to select seats: %w", err)
	}

	if len(seats) < count {
		available, err := countAvailable(ctx, tx, tripID, floor)
		if err != nil {
			return nil, err
		}
		return nil, apperr.InsufficientSeats(count, available)
	}

	ids := make([]string, len(seats))
	for i, s := range seats {
		ids[i] = s.ID
	}

	if err := r.ConfirmSeatsTx(ctx, tx, tripID, ids); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit quantity reservation: %w", err)
	}

	for i := range seats {
		seats[i].Status = models.TripSeatStatusConfirmed
	}
	return seats, nil
}

// ============================================================================
// HELPERS
// ============================================================================

// adjustAvailable moves the trip counter by delta. A decrement that would go
// below zero fails; an increment is capped at total_seats.
func adjustAvailable(ctx context.Context, tx *sqlx.Tx, tripID string, delta int) error {
	var (
		query string
		arg   int
	)
	if delta < 0 {
		arg = -delta
		query = `
			UPDATE trips
			SET available_seats = available_seats - $1, updated_at = NOW()
			WHERE id = $2 AND available_seats >= $1`
	} else {
		arg = delta
		query = `
			UPDATE trips
			SET available_seats = LEAST(total_seats, available_seats + $1), updated_at = NOW()
			WHERE id = $2`
	}

	result, err := tx.ExecContext(ctx, query, arg, tripID)
	if err != nil {
		return fmt.Errorf("failed to update available seats: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		if delta < 0 {
			return apperr.Conflict("trip %s does not have %d seats left", tripID, arg)
		}
		return apperr.NotFound("trip %s not found", tripID)
	}
	return nil
}

// seatsNotAvailable builds a SeatNotAvailable error naming the given seats by
// display number. Ids that do not exist on the trip are reported as-is.
func seatsNotAvailable(ctx context.Context, tx *sqlx.Tx, tripID string, seatIDs []string) error {
	query, args, err := sqlx.In(`
		SELECT ts.id, s.number
		FROM trip_seats ts
		JOIN seats s ON s.id = ts.seat_id
		WHERE ts.trip_id = ? AND ts.id IN (?)`, tripID, seatIDs)
	if err != nil {
		return fmt.Errorf("failed to build seat number query: %w", err)
	}

	type seatRow struct {
		ID     string `db:"id"`
		Number string `db:"number"`
	}
	var rows []seatRow
	if err := tx.SelectContext(ctx, &rows, tx.Rebind(query), args...); err != nil {
		return fmt.Errorf("failed to get seat numbers: %w", err)
	}

	numbers := make(map[string]string, len(rows))
	for _, row := range rows {
		numbers[row.ID] = row.Number
	}

	labels := make([]string, 0, len(seatIDs))
	for _, id := range seatIDs {
		if number, ok := numbers[id]; ok {
			labels = append(labels, number)
		} else {
			labels = append(labels, id)
		}
	}
	return apperr.SeatNotAvailable(labels)
}

// missing returns the requested ids absent from got, in request order
func missing(requested, got []string) []string {
	seen := make(map[string]struct{}, len(got))
	for _, id := range got {
		seen[id] = struct{}{}
	}
	out := make([]string, 0, len(requested))
	for _, id := range requested {
		if _, ok := seen[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}
