package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/booking-core/internal/apperr"
	"github.com/smarttransit/booking-core/internal/clock"
	"github.com/smarttransit/booking-core/internal/metrics"
	"github.com/smarttransit/booking-core/internal/models"
)

// TripStore loads trips together with their provider and vehicle
type TripStore interface {
	GetTripDetails(ctx context.Context, tripID string) (*models.TripDetails, error)
}

// InventoryStore is the seat inventory persistence used by the services
type InventoryStore interface {
	GetTripSeats(ctx context.Context, tripID string, seatIDs []string) ([]models.TripSeat, error)
	LockSeats(ctx context.Context, tripID string, seatIDs []string, lockID string, until time.Time) error
	ReleaseSeats(ctx context.Context, tripID string, seatIDs []string) (int, error)
	ReleaseConfirmed(ctx context.Context, tripID string, seatIDs []string) (int, error)
	ReserveQuantity(ctx context.Context, tripID string, count int, floor *int) ([]models.TripSeat, error)
}

// SeatInventoryService owns per-trip seat state and the available counter
type SeatInventoryService struct {
	store  InventoryStore
	trips  TripStore
	clock  clock.Clock
	hold   time.Duration
	logger *logrus.Logger
}

// NewSeatInventoryService creates a new seat inventory service
func NewSeatInventoryService(
	store InventoryStore,
	trips TripStore,
	clk clock.Clock,
	hold time.Duration,
	logger *logrus.Logger,
) *SeatInventoryService {
	return &SeatInventoryService{
		store:  store,
		trips:  trips,
		clock:  clk,
		hold:   hold,
		logger: logger,
	}
}

// ============================================================================
// LOCKING
// ============================================================================

// LockSeats places an all-or-nothing timed hold on the given seats
func (s *SeatInventoryService) LockSeats(ctx context.Context, caller models.Caller, tripID string, seatIDs []string) (*models.LockSeatsResponse, error) {
	if err := validateSeatIDs(seatIDs); err != nil {
		metrics.SeatLockAttempts.WithLabelValues("invalid").Inc()
		return nil, err
	}

	trip, err := s.authorizedTrip(ctx, caller, tripID)
	if err != nil {
		metrics.SeatLockAttempts.WithLabelValues("invalid").Inc()
		return nil, err
	}
	if trip.SeatSelectionMode == models.SeatSelectionNone {
		metrics.SeatLockAttempts.WithLabelValues("invalid").Inc()
		return nil, apperr.BadRequest("trip %s sells seats by quantity only", tripID)
	}

	lockID := uuid.New().String()
	expiresAt := s.clock.Now().Add(s.hold)

	if err := s.store.LockSeats(ctx, tripID, seatIDs, lockID, expiresAt); err != nil {
		if apperr.Is(err, apperr.KindConflict) {
			metrics.SeatLockAttempts.WithLabelValues("conflict").Inc()
			return nil, err
		}
		metrics.SeatLockAttempts.WithLabelValues("error").Inc()
		return nil, classify(err, "failed to lock seats")
	}

	metrics.SeatLockAttempts.WithLabelValues("locked").Inc()
	s.logger.WithFields(logrus.Fields{
		"trip_id":    tripID,
		"lock_id":    lockID,
		"seat_count": len(seatIDs),
		"expires_at": expiresAt,
	}).Info("Seats locked")

	return &models.LockSeatsResponse{
		LockID:    lockID,
		TripID:    tripID,
		SeatIDs:   seatIDs,
		ExpiresAt: expiresAt,
	}, nil
}

// ReleaseSeats drops held seats on behalf of a seller of the trip's
// provider. Only LOCKED seats change; sold seats stay sold until their
// reservation is cancelled, and available seats are a no-op.
func (s *SeatInventoryService) ReleaseSeats(ctx context.Context, caller models.Caller, tripID string, seatIDs []string) (int, error) {
	if err := validateSeatIDs(seatIDs); err != nil {
		return 0, err
	}
	if _, err := s.authorizedTrip(ctx, caller, tripID); err != nil {
		return 0, err
	}
	return s.release(ctx, tripID, seatIDs, s.store.ReleaseSeats)
}

// ============================================================================
// SALE SUPPORT
// ============================================================================

// SeatsForSale loads the requested trip seats, failing when any id does not
// belong to the trip
func (s *SeatInventoryService) SeatsForSale(ctx context.Context, tripID string, seatIDs []string) ([]models.TripSeat, error) {
	seats, err := s.store.GetTripSeats(ctx, tripID, seatIDs)
	if err != nil {
		return nil, classify(err, "failed to load trip seats")
	}

	found := make(map[string]bool, len(seats))
	for _, seat := range seats {
		found[seat.ID] = true
	}
	var unknown []string
	for _, id := range seatIDs {
		if !found[id] {
			unknown = append(unknown, id)
		}
	}
	if len(unknown) > 0 {
		return nil, apperr.BadRequest("seats not found on trip %s: %s", tripID, strings.Join(unknown, ", ")).
			WithDetail("seats", unknown)
	}
	return seats, nil
}

// ReserveQuantity takes count unassigned seats in one step
func (s *SeatInventoryService) ReserveQuantity(ctx context.Context, tripID string, sel models.ByQuantity) ([]models.TripSeat, error) {
	if sel.Count <= 0 {
		return nil, apperr.BadRequest("quantity must be positive")
	}
	seats, err := s.store.ReserveQuantity(ctx, tripID, sel.Count, sel.Floor)
	if err != nil {
		return nil, classify(err, "failed to reserve seats")
	}
	return seats, nil
}

// UndoQuantityReservation frees seats taken by ReserveQuantity whose sale
// did not commit. There is no caller check.
func (s *SeatInventoryService) UndoQuantityReservation(ctx context.Context, tripID string, seatIDs []string) (int, error) {
	return s.release(ctx, tripID, seatIDs, s.store.ReleaseConfirmed)
}

func (s *SeatInventoryService) release(
	ctx context.Context,
	tripID string,
	seatIDs []string,
	releaseFn func(ctx context.Context, tripID string, seatIDs []string) (int, error),
) (int, error) {
	released, err := releaseFn(ctx, tripID, seatIDs)
	if err != nil {
		return 0, classify(err, "failed to release seats")
	}
	if released > 0 {
		s.logger.WithFields(logrus.Fields{
			"trip_id": tripID,
			"count":   released,
		}).Info("Seats released")
	}
	return released, nil
}

func (s *SeatInventoryService) authorizedTrip(ctx context.Context, caller models.Caller, tripID string) (*models.TripDetails, error) {
	return loadAuthorizedTrip(ctx, s.trips, caller, tripID)
}

// ============================================================================
// HELPERS
// ============================================================================

func loadAuthorizedTrip(ctx context.Context, trips TripStore, caller models.Caller, tripID string) (*models.TripDetails, error) {
	trip, err := trips.GetTripDetails(ctx, tripID)
	if err != nil {
		return nil, classify(err, "failed to load trip")
	}
	if trip == nil {
		return nil, apperr.NotFound("trip %s not found", tripID)
	}
	if trip.ProviderID != caller.ProviderID {
		return nil, apperr.Forbidden("trip %s belongs to another provider", tripID)
	}
	return trip, nil
}

func validateSeatIDs(seatIDs []string) error {
	if len(seatIDs) == 0 {
		return apperr.BadRequest("at least one seat is required")
	}
	seen := make(map[string]bool, len(seatIDs))
	for _, id := range seatIDs {
		if id == "" {
			return apperr.BadRequest("seat id must not be empty")
		}
		if seen[id] {
			return apperr.BadRequest("seat %s requested more than once", id)
		}
		seen[id] = true
	}
	return nil
}

// classify keeps classified errors and wraps anything else as internal
func classify(err error, message string) error {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return err
	}
	return apperr.Internal(err, "%s", message)
}
