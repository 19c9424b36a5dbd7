package database

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/smarttransit/booking-core/internal/apperr"
	"github.com/smarttransit/booking-core/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetTripDetails(t *testing.T) {
	ctx := context.Background()
	departure := time.Date(2026, 10, 20, 8, 30, 0, 0, time.UTC)

	t.Run("Found", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewTripRepository(db)

		rows := sqlmock.NewRows([]string{
			"id", "service_id", "vehicle_id", "departure_at", "total_seats", "available_seats",
			"price_per_seat", "seat_selection_mode", "booking_mode", "status",
			"service_name", "origin", "destination", "requires_passenger_form",
			"provider_id", "provider_name", "commission_rate",
			"vehicle_plate", "vehicle_floors",
		}).AddRow(
			"trip-1", "svc-1", "veh-1", departure, 40, 12,
			"35.50", "REQUIRED", "SEATS", "SCHEDULED",
			"Lima - Ica", "Lima", "Ica", true,
			"prov-1", "Transportes Sur", "0.05",
			"ABC-123", 2,
		)
		mock.ExpectQuery(`(?s)FROM trips t\s+JOIN services sv.*WHERE t.id = \$1`).
			WithArgs("trip-1").
			WillReturnRows(rows)

		trip, err := repo.GetTripDetails(ctx, "trip-1")
		require.NoError(t, err)
		require.NotNil(t, trip)
		assert.Equal(t, "trip-1", trip.ID)
		assert.Equal(t, 12, trip.AvailableSeats)
		assert.True(t, decimal.RequireFromString("35.50").Equal(trip.PricePerSeat))
		assert.Equal(t, models.SeatSelectionRequired, trip.SeatSelectionMode)
		assert.Equal(t, "prov-1", trip.ProviderID)
		assert.True(t, trip.RequiresPassengerForm)
		assert.Equal(t, 2, trip.VehicleFloors)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Not Found", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewTripRepository(db)

		mock.ExpectQuery(`FROM trips t`).
			WithArgs("missing").
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		trip, err := repo.GetTripDetails(ctx, "missing")
		require.NoError(t, err)
		assert.Nil(t, trip)
	})

	t.Run("Query Error", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewTripRepository(db)

		mock.ExpectQuery(`FROM trips t`).
			WithArgs("trip-1").
			WillReturnError(fmt.Errorf("connection reset"))

		trip, err := repo.GetTripDetails(ctx, "trip-1")
		require.Error(t, err)
		assert.Nil(t, trip)
		assert.Contains(t, err.Error(), "failed to get trip")
	})
}

func TestGetFormView(t *testing.T) {
	ctx := context.Background()
	expires := time.Date(2026, 10, 19, 23, 59, 0, 0, time.UTC)
	departure := time.Date(2026, 10, 20, 8, 30, 0, 0, time.UTC)

	t.Run("Found With Seats", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewPassengerFormRepository(db)

		mock.ExpectQuery(`(?s)FROM reservations r.*WHERE r.form_token = \$1`).
			WithArgs("tok-1").
			WillReturnRows(sqlmock.NewRows([]string{
				"reservation_id", "booking_reference", "contact_name", "seat_count",
				"form_expires_at", "form_completed_at",
				"service_name", "origin", "destination", "departure_at", "provider_name",
			}).AddRow("res-1", "ST-7K2M9QX4", "Ana Torres", 2, expires, nil,
				"Lima - Ica", "Lima", "Ica", departure, "Transportes Sur"))
		mock.ExpectQuery(`FROM reservation_seats\s+WHERE reservation_id = \$1`).
			WithArgs("res-1").
			WillReturnRows(sqlmock.NewRows([]string{"id", "seat_number", "floor"}).
				AddRow("rs-1", "3", 1).
				AddRow("rs-2", nil, nil))

		view, err := repo.GetFormView(ctx, "tok-1")
		require.NoError(t, err)
		require.NotNil(t, view)
		assert.Equal(t, "res-1", view.ReservationID)
		assert.Equal(t, "ST-7K2M9QX4", view.BookingReference)
		assert.Nil(t, view.CompletedAt)
		require.Len(t, view.Seats, 2)
		require.NotNil(t, view.Seats[0].SeatNumber)
		assert.Equal(t, "3", *view.Seats[0].SeatNumber)
		assert.Nil(t, view.Seats[1].SeatNumber)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Unknown Token", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewPassengerFormRepository(db)

		mock.ExpectQuery(`FROM reservations r`).
			WithArgs("nope").
			WillReturnRows(sqlmock.NewRows([]string{"reservation_id"}))

		view, err := repo.GetFormView(ctx, "nope")
		require.NoError(t, err)
		assert.Nil(t, view)
	})
}

func TestCompleteForm(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 10, 18, 15, 0, 0, 0, time.UTC)

	passengers := func() []models.Passenger {
		return []models.Passenger{
			{ID: "p-1", FullName: "Ana Torres", DocumentType: models.DocumentTypeDNI, DocumentNumber: "45879612"},
			{ID: "p-2", FullName: "Luis Torres", DocumentType: models.DocumentTypeDNI, DocumentNumber: "45879613"},
		}
	}

	t.Run("Success", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewPassengerFormRepository(db)

		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE reservations\s+SET form_completed_at = \$2`).
			WithArgs("res-1", now).
			WillReturnResult(sqlmock.NewResult(0, 1))
		for i, seat := range []string{"rs-1", "rs-2"} {
			pid := fmt.Sprintf("p-%d", i+1)
			mock.ExpectExec(`INSERT INTO passengers`).
				WithArgs(pid, "res-1", sqlmock.AnyArg(), models.DocumentTypeDNI, sqlmock.AnyArg(), nil, nil, now).
				WillReturnResult(sqlmock.NewResult(0, 1))
			mock.ExpectExec(`UPDATE reservation_seats SET passenger_id = \$1`).
				WithArgs(pid, seat, "res-1").
				WillReturnResult(sqlmock.NewResult(0, 1))
		}
		mock.ExpectCommit()

		ps := passengers()
		err := repo.CompleteForm(ctx, "res-1", ps, []string{"rs-1", "rs-2"}, now)
		require.NoError(t, err)
		assert.Equal(t, "res-1", ps[0].ReservationID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Already Completed", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewPassengerFormRepository(db)

		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE reservations\s+SET form_completed_at`).
			WithArgs("res-1", now).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		err := repo.CompleteForm(ctx, "res-1", passengers(), []string{"rs-1", "rs-2"}, now)
		require.Error(t, err)
		assert.Equal(t, apperr.KindBadRequest, apperr.KindOf(err))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Foreign Seat Rolls Back", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewPassengerFormRepository(db)

		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE reservations\s+SET form_completed_at`).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`INSERT INTO passengers`).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`UPDATE reservation_seats SET passenger_id`).
			WithArgs("p-1", "rs-9", "res-1").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		err := repo.CompleteForm(ctx, "res-1", passengers()[:1], []string{"rs-9"}, now)
		require.Error(t, err)
		assert.Equal(t, apperr.KindBadRequest, apperr.KindOf(err))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Count Mismatch", func(t *testing.T) {
		db, _ := newMockDB(t)
		repo := NewPassengerFormRepository(db)

		err := repo.CompleteForm(ctx, "res-1", passengers(), []string{"rs-1"}, now)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "counts differ")
	})
}
