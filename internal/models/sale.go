package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Caller is the authenticated seller making a request
type Caller struct {
	SellerID   string
	ProviderID string
}

// ContactInput carries the buyer's identity
type ContactInput struct {
	FullName       string       `json:"full_name" binding:"required"`
	DocumentType   DocumentType `json:"document_type" binding:"required"`
	DocumentNumber string       `json:"document_number" binding:"required"`
	Phone          *string      `json:"phone,omitempty"`
	Email          *string      `json:"email,omitempty"`
}

// PaymentInput is the tendered payment for a sale
type PaymentInput struct {
	Amount  decimal.Decimal `json:"amount"`
	Method  PaymentMethod   `json:"method" binding:"required"`
	Gateway string          `json:"gateway,omitempty"`
}

// CreateSaleBody is the HTTP body for creating a sale. Exactly one of SeatIDs
// or Quantity is expected.
type CreateSaleBody struct {
	TripID   string       `json:"trip_id" binding:"required"`
	SeatIDs  []string     `json:"seat_ids,omitempty"`
	LockID   string       `json:"lock_id,omitempty"`
	Quantity int          `json:"quantity,omitempty"`
	Floor    *int         `json:"floor,omitempty"`
	Contact  ContactInput `json:"contact" binding:"required"`
	Payment  PaymentInput `json:"payment" binding:"required"`
	Notes    *string      `json:"notes,omitempty"`
	Channel  SaleChannel  `json:"channel,omitempty"`
	SendForm bool         `json:"send_form"`
}

// Selection converts the raw body fields into a SeatSelection
func (b *CreateSaleBody) Selection() SeatSelection {
	if len(b.SeatIDs) > 0 {
		return BySeatIDs{SeatIDs: b.SeatIDs, LockID: b.LockID}
	}
	return ByQuantity{Count: b.Quantity, Floor: b.Floor}
}

// ToRequest builds the service request from the HTTP body
func (b *CreateSaleBody) ToRequest() *CreateSaleRequest {
	channel := b.Channel
	if channel == "" {
		channel = SaleChannelPOS
	}
	return &CreateSaleRequest{
		TripID:    b.TripID,
		Selection: b.Selection(),
		Contact:   b.Contact,
		Payment:   b.Payment,
		Notes:     b.Notes,
		Channel:   channel,
		SendForm:  b.SendForm,
	}
}

// CreateSaleRequest is the orchestrator input
type CreateSaleRequest struct {
	TripID    string
	Selection SeatSelection
	Contact   ContactInput
	Payment   PaymentInput
	Notes     *string
	Channel   SaleChannel
	SendForm  bool
}

// SaleResult is returned after a sale is committed
type SaleResult struct {
	ReservationID    string            `json:"reservation_id"`
	BookingReference string            `json:"booking_reference"`
	Status           ReservationStatus `json:"status"`
	Total            decimal.Decimal   `json:"total"`
	AmountPaid       decimal.Decimal   `json:"amount_paid"`
	IsPartialPayment bool              `json:"is_partial_payment"`
	SeatNumbers      []string          `json:"seat_numbers,omitempty"`
	FormURL          *string           `json:"form_url,omitempty"`
	FormExpiresAt    *time.Time        `json:"form_expires_at,omitempty"`
	WhatsAppURL      *string           `json:"whatsapp_url,omitempty"`
	PaymentURL       *string           `json:"payment_url,omitempty"`
}

// SaleRecord is everything the atomic sale unit writes.
// Reservation.BookingReference and Reservation.CustomerID are filled inside the unit.
type SaleRecord struct {
	Reservation *Reservation
	Customer    *Customer
	Seats       []ReservationSeat
	Transaction *Transaction

	// Seat-based sales confirm inventory inside the unit. Quantity sales were
	// reserved beforehand and leave both empty.
	ConfirmSeatIDs []string
	ConfirmLockID  string
	Now            time.Time
}

// DateRange bounds a sales query, From inclusive and To exclusive
type DateRange struct {
	From time.Time
	To   time.Time
}

// SaleSummary is one row of a sales listing
type SaleSummary struct {
	ID               string            `json:"id" db:"id"`
	BookingReference string            `json:"booking_reference" db:"booking_reference"`
	TripID           string            `json:"trip_id" db:"trip_id"`
	DepartureAt      time.Time         `json:"departure_at" db:"departure_at"`
	Origin           string            `json:"origin" db:"origin"`
	Destination      string            `json:"destination" db:"destination"`
	SellerID         string            `json:"seller_id" db:"seller_id"`
	ContactName      string            `json:"contact_name" db:"contact_name"`
	SeatCount        int               `json:"seat_count" db:"seat_count"`
	TotalAmount      decimal.Decimal   `json:"total_amount" db:"total_amount"`
	AmountPaid       decimal.Decimal   `json:"amount_paid" db:"amount_paid"`
	CommissionAmount decimal.Decimal   `json:"commission_amount" db:"commission_amount"`
	Status           ReservationStatus `json:"status" db:"status"`
	Channel          SaleChannel       `json:"channel" db:"channel"`
	CreatedAt        time.Time         `json:"created_at" db:"created_at"`
}

// SalesReport is a listing with aggregated totals
type SalesReport struct {
	Sales           []SaleSummary   `json:"sales"`
	Count           int             `json:"count"`
	SeatsSold       int             `json:"seats_sold"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	TotalPaid       decimal.Decimal `json:"total_paid"`
	TotalCommission decimal.Decimal `json:"total_commission"`
}

// NewSalesReport aggregates totals over non-cancelled sales
func NewSalesReport(sales []SaleSummary) *SalesReport {
	report := &SalesReport{
		Sales:           sales,
		TotalAmount:     decimal.Zero,
		TotalPaid:       decimal.Zero,
		TotalCommission: decimal.Zero,
	}
	if report.Sales == nil {
		report.Sales = []SaleSummary{}
	}
	for _, s := range sales {
		if s.Status == ReservationStatusCancelled {
			continue
		}
		report.Count++
		report.SeatsSold += s.SeatCount
		report.TotalAmount = report.TotalAmount.Add(s.TotalAmount)
		report.TotalPaid = report.TotalPaid.Add(s.AmountPaid)
		report.TotalCommission = report.TotalCommission.Add(s.CommissionAmount)
	}
	return report
}

// PendingForm is a sale whose passenger form is still open
type PendingForm struct {
	ReservationID    string    `json:"reservation_id" db:"id"`
	BookingReference string    `json:"booking_reference" db:"booking_reference"`
	ContactName      string    `json:"contact_name" db:"contact_name"`
	ContactPhone     *string   `json:"contact_phone,omitempty" db:"contact_phone"`
	SeatCount        int       `json:"seat_count" db:"seat_count"`
	DepartureAt      time.Time `json:"departure_at" db:"departure_at"`
	FormExpiresAt    time.Time `json:"form_expires_at" db:"form_expires_at"`
}

// ResendFormRequest optionally overrides the destination phone
type ResendFormRequest struct {
	Phone *string `json:"phone,omitempty"`
}

// ResendFormResult is returned after re-dispatching a form link
type ResendFormResult struct {
	FormURL     string  `json:"form_url"`
	WhatsAppURL *string `json:"whatsapp_url,omitempty"`
}

// ReceiptData is what a printed receipt shows
type ReceiptData struct {
	Reservation Reservation
	Trip        TripDetails
	Seats       []ReservationSeat
	Payments    []Transaction
	Currency    string
	CompanyName string
}
