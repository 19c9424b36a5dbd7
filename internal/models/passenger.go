package models

import (
	"time"
)

// DocumentType identifies the kind of identity document
type DocumentType string

const (
	DocumentTypeDNI      DocumentType = "DNI"
	DocumentTypePassport DocumentType = "PASSPORT"
	DocumentTypeCE       DocumentType = "CE"
)

// IsValid reports whether the document type is accepted
func (d DocumentType) IsValid() bool {
	switch d {
	case DocumentTypeDNI, DocumentTypePassport, DocumentTypeCE:
		return true
	}
	return false
}

// Customer is the buyer, unique on document type and number
type Customer struct {
	ID             string       `json:"id" db:"id"`
	DocumentType   DocumentType `json:"document_type" db:"document_type"`
	DocumentNumber string       `json:"document_number" db:"document_number"`
	FullName       string       `json:"full_name" db:"full_name"`
	Phone          *string      `json:"phone,omitempty" db:"phone"`
	Email          *string      `json:"email,omitempty" db:"email"`
	CreatedAt      time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at" db:"updated_at"`
}

// Passenger is a traveller recorded through the passenger form
type Passenger struct {
	ID             string       `json:"id" db:"id"`
	ReservationID  string       `json:"reservation_id" db:"reservation_id"`
	FullName       string       `json:"full_name" db:"full_name"`
	DocumentType   DocumentType `json:"document_type" db:"document_type"`
	DocumentNumber string       `json:"document_number" db:"document_number"`
	Phone          *string      `json:"phone,omitempty" db:"phone"`
	Age            *int         `json:"age,omitempty" db:"age"`
	CreatedAt      time.Time    `json:"created_at" db:"created_at"`
}

// PassengerInput is one entry of a completed passenger form
type PassengerInput struct {
	ReservationSeatID string       `json:"reservation_seat_id" binding:"required"`
	FullName          string       `json:"full_name" binding:"required"`
	DocumentType      DocumentType `json:"document_type" binding:"required"`
	DocumentNumber    string       `json:"document_number" binding:"required"`
	Phone             *string      `json:"phone,omitempty"`
	Age               *int         `json:"age,omitempty"`
}

// CompleteFormRequest is the body of a passenger form submission
type CompleteFormRequest struct {
	Passengers []PassengerInput `json:"passengers" binding:"required,min=1"`
}

// FormSeat is a seat shown on the public passenger form
type FormSeat struct {
	ReservationSeatID string  `json:"reservation_seat_id" db:"id"`
	SeatNumber        *string `json:"seat_number,omitempty" db:"seat_number"`
	Floor             *int    `json:"floor,omitempty" db:"floor"`
}

// FormView is the public read model behind a form token
type FormView struct {
	BookingReference string     `json:"booking_reference" db:"booking_reference"`
	ContactName      string     `json:"contact_name" db:"contact_name"`
	SeatCount        int        `json:"seat_count" db:"seat_count"`
	ExpiresAt        time.Time  `json:"expires_at" db:"form_expires_at"`
	CompletedAt      *time.Time `json:"completed_at,omitempty" db:"form_completed_at"`
	ServiceName      string     `json:"service_name" db:"service_name"`
	Origin           string     `json:"origin" db:"origin"`
	Destination      string     `json:"destination" db:"destination"`
	DepartureAt      time.Time  `json:"departure_at" db:"departure_at"`
	ProviderName     string     `json:"provider_name" db:"provider_name"`
	Seats            []FormSeat `json:"seats" db:"-"`
	IsExpired        bool       `json:"is_expired" db:"-"`
	IsCompleted      bool       `json:"is_completed" db:"-"`
	ReservationID    string     `json:"-" db:"reservation_id"`
}
