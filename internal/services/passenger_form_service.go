package services

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/booking-core/internal/apperr"
	"github.com/smarttransit/booking-core/internal/clock"
	"github.com/smarttransit/booking-core/internal/models"
)

// FormStore reads and completes passenger forms
type FormStore interface {
	GetFormView(ctx context.Context, token string) (*models.FormView, error)
	CompleteForm(ctx context.Context, reservationID string, passengers []models.Passenger, seatIDs []string, now time.Time) error
}

// PassengerFormService attaches passenger identities to an existing sale
type PassengerFormService struct {
	store  FormStore
	clock  clock.Clock
	logger *logrus.Logger
}

// NewPassengerFormService creates a new passenger form service
func NewPassengerFormService(store FormStore, clk clock.Clock, logger *logrus.Logger) *PassengerFormService {
	return &PassengerFormService{store: store, clock: clk, logger: logger}
}

// GetByToken returns the public view of a form
func (s *PassengerFormService) GetByToken(ctx context.Context, token string) (*models.FormView, error) {
	if _, err := uuid.Parse(token); err != nil {
		return nil, apperr.NotFound("passenger form not found")
	}

	view, err := s.store.GetFormView(ctx, token)
	if err != nil {
		return nil, classify(err, "failed to load passenger form")
	}
	if view == nil {
		return nil, apperr.NotFound("passenger form not found")
	}

	view.IsExpired = !s.clock.Now().Before(view.ExpiresAt)
	view.IsCompleted = view.CompletedAt != nil
	if view.Seats == nil {
		view.Seats = []models.FormSeat{}
	}
	return view, nil
}

// Complete records one passenger per reservation seat and returns the
// booking reference
func (s *PassengerFormService) Complete(ctx context.Context, token string, passengers []models.PassengerInput) (string, error) {
	view, err := s.GetByToken(ctx, token)
	if err != nil {
		return "", err
	}
	if view.IsCompleted {
		return "", apperr.BadRequest("passenger form already completed")
	}
	if view.IsExpired {
		return "", apperr.BadRequest("passenger form has expired")
	}
	if len(passengers) != view.SeatCount {
		return "", apperr.BadRequest("expected %d passengers, got %d", view.SeatCount, len(passengers))
	}

	ownSeats := make(map[string]bool, len(view.Seats))
	for _, seat := range view.Seats {
		ownSeats[seat.ReservationSeatID] = true
	}
	occurrences := make(map[string]int, len(passengers))
	for _, p := range passengers {
		occurrences[p.ReservationSeatID]++
	}

	rows := make([]models.Passenger, 0, len(passengers))
	seatIDs := make([]string, 0, len(passengers))
	for i, p := range passengers {
		if !ownSeats[p.ReservationSeatID] {
			return "", apperr.BadRequest("seat %s is not part of this reservation", p.ReservationSeatID)
		}
		if occurrences[p.ReservationSeatID] > 1 {
			return "", apperr.BadRequest("seat %s has more than one passenger", p.ReservationSeatID)
		}
		if strings.TrimSpace(p.FullName) == "" || strings.TrimSpace(p.DocumentNumber) == "" {
			return "", apperr.BadRequest("passenger %d needs a name and document number", i+1)
		}
		if !p.DocumentType.IsValid() {
			return "", apperr.BadRequest("passenger %d has unknown document type %q", i+1, p.DocumentType)
		}
		if p.Age != nil && (*p.Age < 0 || *p.Age > 120) {
			return "", apperr.BadRequest("passenger %d has an invalid age", i+1)
		}

		rows = append(rows, models.Passenger{
			ID:             uuid.New().String(),
			ReservationID:  view.ReservationID,
			FullName:       strings.TrimSpace(p.FullName),
			DocumentType:   p.DocumentType,
			DocumentNumber: strings.TrimSpace(p.DocumentNumber),
			Phone:          p.Phone,
			Age:            p.Age,
		})
		seatIDs = append(seatIDs, p.ReservationSeatID)
	}

	if err := s.store.CompleteForm(ctx, view.ReservationID, rows, seatIDs, s.clock.Now()); err != nil {
		return "", classify(err, "failed to complete passenger form")
	}

	s.logger.WithFields(logrus.Fields{
		"booking_reference": view.BookingReference,
		"passengers":        len(rows),
	}).Info("Passenger form completed")
	return view.BookingReference, nil
}
