package models

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// ReservationStatus represents the lifecycle of a sale
type ReservationStatus string

const (
	ReservationStatusPending   ReservationStatus = "PENDING"
	ReservationStatusConfirmed ReservationStatus = "CONFIRMED"
	ReservationStatusCancelled ReservationStatus = "CANCELLED"
)

// ReservationType distinguishes per-seat sales from whole-vehicle charters
type ReservationType string

const (
	ReservationTypeSeats       ReservationType = "SEATS"
	ReservationTypeFullVehicle ReservationType = "FULL_VEHICLE"
)

// SaleChannel identifies where a sale was made
type SaleChannel string

const (
	SaleChannelPOS    SaleChannel = "POS"
	SaleChannelWeb    SaleChannel = "WEB"
	SaleChannelMobile SaleChannel = "MOBILE"
)

// ExistsFunc reports whether a booking reference is already taken
type ExistsFunc func(ctx context.Context, reference string) (bool, error)

// Reservation is one sale on one trip
type Reservation struct {
	ID               string            `json:"id" db:"id"`
	BookingReference string            `json:"booking_reference" db:"booking_reference"`
	TripID           string            `json:"trip_id" db:"trip_id"`
	ProviderID       string            `json:"provider_id" db:"provider_id"`
	SellerID         string            `json:"seller_id" db:"seller_id"`
	CustomerID       string            `json:"customer_id" db:"customer_id"`
	Type             ReservationType   `json:"type" db:"type"`
	Status           ReservationStatus `json:"status" db:"status"`
	Channel          SaleChannel       `json:"channel" db:"channel"`
	SeatCount        int               `json:"seat_count" db:"seat_count"`
	Subtotal         decimal.Decimal   `json:"subtotal" db:"subtotal"`
	TotalAmount      decimal.Decimal   `json:"total_amount" db:"total_amount"`
	CommissionRate   decimal.Decimal   `json:"commission_rate" db:"commission_rate"`
	CommissionAmount decimal.Decimal   `json:"commission_amount" db:"commission_amount"`
	ProviderNet      decimal.Decimal   `json:"provider_net" db:"provider_net"`
	ContactName      string            `json:"contact_name" db:"contact_name"`
	ContactPhone     *string           `json:"contact_phone,omitempty" db:"contact_phone"`
	ContactEmail     *string           `json:"contact_email,omitempty" db:"contact_email"`
	Notes            *string           `json:"notes,omitempty" db:"notes"`
	FormToken        *string           `json:"-" db:"form_token"`
	FormExpiresAt    *time.Time        `json:"form_expires_at,omitempty" db:"form_expires_at"`
	FormCompletedAt  *time.Time        `json:"form_completed_at,omitempty" db:"form_completed_at"`
	CancelledAt      *time.Time        `json:"cancelled_at,omitempty" db:"cancelled_at"`
	CreatedAt        time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at" db:"updated_at"`
}

// HasOpenForm reports whether the passenger form can still be filled
func (r *Reservation) HasOpenForm(now time.Time) bool {
	return r.FormToken != nil && r.FormCompletedAt == nil &&
		r.FormExpiresAt != nil && now.Before(*r.FormExpiresAt)
}

// ReservationSeat links a reservation to a seat. TripSeatID is empty when the
// trip does not use a seat map.
type ReservationSeat struct {
	ID            string          `json:"id" db:"id"`
	ReservationID string          `json:"reservation_id" db:"reservation_id"`
	TripSeatID    *string         `json:"trip_seat_id,omitempty" db:"trip_seat_id"`
	SeatNumber    *string         `json:"seat_number,omitempty" db:"seat_number"`
	Floor         *int            `json:"floor,omitempty" db:"floor"`
	Price         decimal.Decimal `json:"price" db:"price"`
	PassengerID   *string         `json:"passenger_id,omitempty" db:"passenger_id"`
}
