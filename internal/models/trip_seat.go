package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TripSeatStatus represents the status of a seat on a specific trip
type TripSeatStatus string

const (
	TripSeatStatusAvailable TripSeatStatus = "AVAILABLE"
	TripSeatStatusLocked    TripSeatStatus = "LOCKED"
	TripSeatStatusConfirmed TripSeatStatus = "CONFIRMED"
)

// SeatSelectionMode controls whether a trip sells specific seats, quantities, or both
type SeatSelectionMode string

const (
	SeatSelectionNone     SeatSelectionMode = "NONE"
	SeatSelectionOptional SeatSelectionMode = "OPTIONAL"
	SeatSelectionRequired SeatSelectionMode = "REQUIRED"
)

// Trip represents a scheduled departure and its capacity counter
type Trip struct {
	ID                string            `json:"id" db:"id"`
	ServiceID         string            `json:"service_id" db:"service_id"`
	VehicleID         string            `json:"vehicle_id" db:"vehicle_id"`
	DepartureAt       time.Time         `json:"departure_at" db:"departure_at"`
	TotalSeats        int               `json:"total_seats" db:"total_seats"`
	AvailableSeats    int               `json:"available_seats" db:"available_seats"`
	PricePerSeat      decimal.Decimal   `json:"price_per_seat" db:"price_per_seat"`
	SeatSelectionMode SeatSelectionMode `json:"seat_selection_mode" db:"seat_selection_mode"`
	BookingMode       string            `json:"booking_mode" db:"booking_mode"`
	Status            string            `json:"status" db:"status"`
}

// TripDetails is a trip joined with its service, provider and vehicle
type TripDetails struct {
	Trip
	ServiceName           string          `json:"service_name" db:"service_name"`
	Origin                string          `json:"origin" db:"origin"`
	Destination           string          `json:"destination" db:"destination"`
	RequiresPassengerForm bool            `json:"requires_passenger_form" db:"requires_passenger_form"`
	ProviderID            string          `json:"provider_id" db:"provider_id"`
	ProviderName          string          `json:"provider_name" db:"provider_name"`
	CommissionRate        decimal.Decimal `json:"commission_rate" db:"commission_rate"`
	VehiclePlate          string          `json:"vehicle_plate" db:"vehicle_plate"`
	VehicleFloors         int             `json:"vehicle_floors" db:"vehicle_floors"`
}

// Summary renders a one-line description of the trip
func (t *TripDetails) Summary() string {
	return t.Origin + " - " + t.Destination + " " + t.DepartureAt.Format("2006-01-02 15:04")
}

// TripSeat is the per-trip instance of a physical seat, joined with the
// immutable seat attributes
type TripSeat struct {
	ID          string         `json:"id" db:"id"`
	TripID      string         `json:"trip_id" db:"trip_id"`
	SeatID      string         `json:"seat_id" db:"seat_id"`
	SeatNumber  string         `json:"seat_number" db:"seat_number"`
	Floor       int            `json:"floor" db:"floor"`
	RowNumber   int            `json:"row_number" db:"row_number"`
	Column      int            `json:"column" db:"column_number"`
	Position    string         `json:"position" db:"position"` // window, aisle
	Status      TripSeatStatus `json:"status" db:"status"`
	LockID      *string        `json:"lock_id,omitempty" db:"lock_id"`
	LockedUntil *time.Time     `json:"locked_until,omitempty" db:"locked_until"`
}

// IsLockedBy reports whether the seat is held by the given lock and the hold
// has not passed its expiry
func (s *TripSeat) IsLockedBy(lockID string, now time.Time) bool {
	return s.Status == TripSeatStatusLocked &&
		s.LockID != nil && *s.LockID == lockID &&
		s.LockedUntil != nil && !s.LockedUntil.Before(now)
}

// LockSeatsRequest is used to place a timed hold on seats
type LockSeatsRequest struct {
	SeatIDs []string `json:"seat_ids" binding:"required,min=1"`
}

// ReleaseSeatsRequest is used to release held seats
type ReleaseSeatsRequest struct {
	SeatIDs []string `json:"seat_ids" binding:"required,min=1"`
}

// LockSeatsResponse is returned after a successful hold
type LockSeatsResponse struct {
	LockID    string    `json:"lock_id"`
	TripID    string    `json:"trip_id"`
	SeatIDs   []string  `json:"seat_ids"`
	ExpiresAt time.Time `json:"expires_at"`
}
