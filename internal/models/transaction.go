package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionStatus represents the state of a payment
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "PENDING"
	TransactionStatusCompleted TransactionStatus = "COMPLETED"
	TransactionStatusFailed    TransactionStatus = "FAILED"
)

// IsTerminal reports whether the status can no longer move back to PENDING
func (s TransactionStatus) IsTerminal() bool {
	return s == TransactionStatusCompleted || s == TransactionStatusFailed
}

// PaymentMethod is how the customer paid
type PaymentMethod string

const (
	PaymentMethodCash    PaymentMethod = "CASH"
	PaymentMethodPOS     PaymentMethod = "POS"
	PaymentMethodGateway PaymentMethod = "GATEWAY"
)

// IsValid reports whether the method is known
func (m PaymentMethod) IsValid() bool {
	switch m {
	case PaymentMethodCash, PaymentMethodPOS, PaymentMethodGateway:
		return true
	}
	return false
}

// Transaction is one payment against a reservation
type Transaction struct {
	ID                   string            `json:"id" db:"id"`
	ReservationID        string            `json:"reservation_id" db:"reservation_id"`
	Amount               decimal.Decimal   `json:"amount" db:"amount"`
	Currency             string            `json:"currency" db:"currency"`
	Method               PaymentMethod     `json:"method" db:"method"`
	Gateway              *string           `json:"gateway,omitempty" db:"gateway"`
	GatewayTransactionID *string           `json:"gateway_transaction_id,omitempty" db:"gateway_transaction_id"`
	PaymentURL           *string           `json:"payment_url,omitempty" db:"payment_url"`
	Status               TransactionStatus `json:"status" db:"status"`
	CreatedAt            time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt            time.Time         `json:"updated_at" db:"updated_at"`
}

// TransactionTransition is the result of a set-to-value status update
type TransactionTransition struct {
	Changed       bool
	TransactionID string
	ReservationID string
	Previous      TransactionStatus
	Current       TransactionStatus
}

// PaymentEvent is an append-only audit entry for a gateway interaction
type PaymentEvent struct {
	ID                   string    `json:"id" db:"id"`
	Gateway              string    `json:"gateway" db:"gateway"`
	EventType            string    `json:"event_type" db:"event_type"`
	GatewayTransactionID *string   `json:"gateway_transaction_id,omitempty" db:"gateway_transaction_id"`
	TransactionID        *string   `json:"transaction_id,omitempty" db:"transaction_id"`
	Status               *string   `json:"status,omitempty" db:"status"`
	Outcome              string    `json:"outcome" db:"outcome"`
	SignatureValid       bool      `json:"signature_valid" db:"signature_valid"`
	RawBody              *string   `json:"raw_body,omitempty" db:"raw_body"`
	ErrorMessage         *string   `json:"error_message,omitempty" db:"error_message"`
	CreatedAt            time.Time `json:"created_at" db:"created_at"`
}
