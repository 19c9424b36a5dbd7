package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/smarttransit/booking-core/internal/apperr"
	"github.com/smarttransit/booking-core/internal/models"
)

const uniqueViolation = "23505"

// SaleRepository persists reservations, their seats and payments
type SaleRepository struct {
	db        *sqlx.DB
	inventory *InventoryRepository
}

// NewSaleRepository creates a new SaleRepository. Seat status changes made
// while writing a sale are delegated to the inventory repository.
func NewSaleRepository(db *sqlx.DB, inventory *InventoryRepository) *SaleRepository {
	return &SaleRepository{db: db, inventory: inventory}
}

// ============================================================================
// SALE CREATION
// ============================================================================

// CreateSale writes a whole sale in one transaction: customer upsert, seat
// confirmation, booking reference, reservation, seats, payment and seller
// counters. Any failure rolls everything back.
func (r *SaleRepository) CreateSale(
	ctx context.Context,
	rec *models.SaleRecord,
	generate func(ctx context.Context, exists models.ExistsFunc) (string, error),
) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res := rec.Reservation

	// 1. Seats first so a lost race fails before anything else is written
	switch {
	case rec.ConfirmLockID != "":
		if _, err := r.inventory.ConfirmLockTx(ctx, tx, rec.ConfirmLockID, rec.ConfirmSeatIDs, rec.Now); err != nil {
			return err
		}
	case len(rec.ConfirmSeatIDs) > 0:
		if err := r.inventory.ConfirmSeatsTx(ctx, tx, res.TripID, rec.ConfirmSeatIDs); err != nil {
			return err
		}
	}

	// 2. Customer
	customerID, err := upsertCustomer(ctx, tx, rec.Customer)
	if err != nil {
		return err
	}
	rec.Customer.ID = customerID
	res.CustomerID = customerID

	// 3. Booking reference, checked against this transaction's view
	ref, err := generate(ctx, func(ctx context.Context, candidate string) (bool, error) {
		var exists bool
		err := tx.GetContext(ctx, &exists,
			`SELECT EXISTS(SELECT 1 FROM reservations WHERE booking_reference = $1)`, candidate)
		if err != nil {
			return false, fmt.Errorf("failed to check booking reference: %w", err)
		}
		return exists, nil
	})
	if err != nil {
		return err
	}
	res.BookingReference = ref

	// 4. Reservation
	err = tx.QueryRowxContext(ctx, `
		INSERT INTO reservations (
			id, booking_reference, trip_id, provider_id, seller_id, customer_id,
			type, status, channel, seat_count,
			subtotal, total_amount, commission_rate, commission_amount, provider_net,
			contact_name, contact_phone, contact_email, notes,
			form_token, form_expires_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
			$11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21
		) RETURNING created_at, updated_at`,
		res.ID, res.BookingReference, res.TripID, res.ProviderID, res.SellerID, res.CustomerID,
		res.Type, res.Status, res.Channel, res.SeatCount,
		res.Subtotal, res.TotalAmount, res.CommissionRate, res.CommissionAmount, res.ProviderNet,
		res.ContactName, res.ContactPhone, res.ContactEmail, res.Notes,
		res.FormToken, res.FormExpiresAt,
	).Scan(&res.CreatedAt, &res.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return apperr.Conflict("booking reference %s was taken concurrently, retry the sale", res.BookingReference)
		}
		return fmt.Errorf("failed to create reservation: %w", err)
	}

	// 5. Reservation seats
	for i := range rec.Seats {
		seat := &rec.Seats[i]
		seat.ReservationID = res.ID
		_, err := tx.ExecContext(ctx, `
			INSERT INTO reservation_seats (id, reservation_id, trip_seat_id, seat_number, floor, price)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			seat.ID, seat.ReservationID, seat.TripSeatID, seat.SeatNumber, seat.Floor, seat.Price)
		if err != nil {
			return fmt.Errorf("failed to create reservation seat: %w", err)
		}
	}

	// 6. Payment
	if txn := rec.Transaction; txn != nil {
		txn.ReservationID = res.ID
		err = tx.QueryRowxContext(ctx, `
			INSERT INTO transactions (id, reservation_id, amount, currency, method, gateway, status)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING created_at, updated_at`,
			txn.ID, txn.ReservationID, txn.Amount, txn.Currency, txn.Method, txn.Gateway, txn.Status,
		).Scan(&txn.CreatedAt, &txn.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to create transaction: %w", err)
		}
	}

	// 7. Seller counters
	_, err = tx.ExecContext(ctx, `
		UPDATE sellers
		SET total_sales_count = total_sales_count + 1,
		    total_sales_amount = total_sales_amount + $1,
		    updated_at = NOW()
		WHERE id = $2`, res.TotalAmount, res.SellerID)
	if err != nil {
		return fmt.Errorf("failed to update seller counters: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit sale: %w", err)
	}
	return nil
}

func upsertCustomer(ctx context.Context, tx *sqlx.Tx, c *models.Customer) (string, error) {
	var id string
	err := tx.GetContext(ctx, &id, `
		INSERT INTO customers (id, document_type, document_number, full_name, phone, email)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (document_type, document_number) DO UPDATE
		SET full_name = EXCLUDED.full_name,
		    phone = COALESCE(EXCLUDED.phone, customers.phone),
		    email = COALESCE(EXCLUDED.email, customers.email),
		    updated_at = NOW()
		RETURNING id`,
		c.ID, c.DocumentType, c.DocumentNumber, c.FullName, c.Phone, c.Email)
	if err != nil {
		return "", fmt.Errorf("failed to upsert customer: %w", err)
	}
	return id, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

// AttachGatewayTransaction stores the gateway's id and checkout link on a
// pending transaction once the payment link exists
func (r *SaleRepository) AttachGatewayTransaction(ctx context.Context, transactionID, gatewayTransactionID string, paymentURL *string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE transactions
		SET gateway_transaction_id = $1, payment_url = $2, updated_at = NOW()
		WHERE id = $3 AND gateway_transaction_id IS NULL`,
		gatewayTransactionID, paymentURL, transactionID)
	if err != nil {
		if isUniqueViolation(err) {
			return apperr.Conflict("gateway transaction %s already attached", gatewayTransactionID)
		}
		return fmt.Errorf("failed to attach gateway transaction: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return apperr.NotFound("pending transaction %s not found", transactionID)
	}
	return nil
}

// ============================================================================
// CANCELLATION
// ============================================================================

// CancelReservation marks a reservation CANCELLED and releases its seats in
// one transaction. It returns false when the reservation was already cancelled.
func (r *SaleRepository) CancelReservation(ctx context.Context, reservationID string, now time.Time) (bool, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var res struct {
		TripID      string `db:"trip_id"`
		SellerID    string `db:"seller_id"`
		TotalAmount string `db:"total_amount"`
	}
	err = tx.GetContext(ctx, &res, `
		UPDATE reservations
		SET status = 'CANCELLED', cancelled_at = $2, updated_at = NOW()
		WHERE id = $1 AND status <> 'CANCELLED'
		RETURNING trip_id, seller_id, total_amount`, reservationID, now)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to cancel reservation: %w", err)
	}

	var seatIDs []string
	err = tx.SelectContext(ctx, &seatIDs, `
		SELECT trip_seat_id FROM reservation_seats
		WHERE reservation_id = $1 AND trip_seat_id IS NOT NULL`, reservationID)
	if err != nil {
		return false, fmt.Errorf("failed to get reservation seats: %w", err)
	}

	if _, err := r.inventory.ReleaseConfirmedTx(ctx, tx, res.TripID, seatIDs); err != nil {
		return false, err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE sellers
		SET total_sales_count = GREATEST(total_sales_count - 1, 0),
		    total_sales_amount = GREATEST(total_sales_amount - $1::numeric, 0),
		    updated_at = NOW()
		WHERE id = $2`, res.TotalAmount, res.SellerID)
	if err != nil {
		return false, fmt.Errorf("failed to update seller counters: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit cancellation: %w", err)
	}
	return true, nil
}

// ============================================================================
// READS
// ============================================================================

const reservationColumns = `
	id, booking_reference, trip_id, provider_id, seller_id, customer_id,
	type, status, channel, seat_count,
	subtotal, total_amount, commission_rate, commission_amount, provider_net,
	contact_name, contact_phone, contact_email, notes,
	form_token, form_expires_at, form_completed_at, cancelled_at,
	created_at, updated_at`

// GetReservation returns nil when the reservation does not exist
func (r *SaleRepository) GetReservation(ctx context.Context, id string) (*models.Reservation, error) {
	var res models.Reservation
	err := r.db.GetContext(ctx, &res, `SELECT `+reservationColumns+` FROM reservations WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get reservation: %w", err)
	}
	return &res, nil
}

// GetReservationSeats lists the seats of a reservation
func (r *SaleRepository) GetReservationSeats(ctx context.Context, reservationID string) ([]models.ReservationSeat, error) {
	var seats []models.ReservationSeat
	err := r.db.SelectContext(ctx, &seats, `
		SELECT id, reservation_id, trip_seat_id, seat_number, floor, price, passenger_id
		FROM reservation_seats
		WHERE reservation_id = $1
		ORDER BY floor NULLS LAST, seat_number NULLS LAST, id`, reservationID)
	if err != nil {
		return nil, fmt.Errorf("failed to get reservation seats: %w", err)
	}
	return seats, nil
}

// GetTransactions lists the payments of a reservation, oldest first
func (r *SaleRepository) GetTransactions(ctx context.Context, reservationID string) ([]models.Transaction, error) {
	var txns []models.Transaction
	err := r.db.SelectContext(ctx, &txns, `
		SELECT id, reservation_id, amount, currency, method, gateway,
		       gateway_transaction_id, payment_url, status, created_at, updated_at
		FROM transactions
		WHERE reservation_id = $1
		ORDER BY created_at`, reservationID)
	if err != nil {
		return nil, fmt.Errorf("failed to get transactions: %w", err)
	}
	return txns, nil
}

const saleSummaryQuery = `
	SELECT
		r.id, r.booking_reference, r.trip_id, t.departure_at, sv.origin, sv.destination,
		r.seller_id, r.contact_name, r.seat_count, r.total_amount, r.commission_amount,
		r.status, r.channel, r.created_at,
		COALESCE((
			SELECT SUM(tx.amount) FROM transactions tx
			WHERE tx.reservation_id = r.id AND tx.status = 'COMPLETED'
		), 0) AS amount_paid
	FROM reservations r
	JOIN trips t ON t.id = r.trip_id
	JOIN services sv ON sv.id = t.service_id`

// ListSellerSales lists a seller's sales created within the range
func (r *SaleRepository) ListSellerSales(ctx context.Context, sellerID string, rng models.DateRange) ([]models.SaleSummary, error) {
	var sales []models.SaleSummary
	err := r.db.SelectContext(ctx, &sales, saleSummaryQuery+`
		WHERE r.seller_id = $1 AND r.created_at >= $2 AND r.created_at < $3
		ORDER BY r.created_at DESC`, sellerID, rng.From, rng.To)
	if err != nil {
		return nil, fmt.Errorf("failed to list seller sales: %w", err)
	}
	return sales, nil
}

// ListProviderSales lists every sale of a provider created within the range
func (r *SaleRepository) ListProviderSales(ctx context.Context, providerID string, rng models.DateRange) ([]models.SaleSummary, error) {
	var sales []models.SaleSummary
	err := r.db.SelectContext(ctx, &sales, saleSummaryQuery+`
		WHERE r.provider_id = $1 AND r.created_at >= $2 AND r.created_at < $3
		ORDER BY r.created_at DESC`, providerID, rng.From, rng.To)
	if err != nil {
		return nil, fmt.Errorf("failed to list provider sales: %w", err)
	}
	return sales, nil
}

// ListPendingForms lists reservations whose passenger form is open and not yet filled
func (r *SaleRepository) ListPendingForms(ctx context.Context, providerID string, now time.Time) ([]models.PendingForm, error) {
	var forms []models.PendingForm
	err := r.db.SelectContext(ctx, &forms, `
		SELECT r.id, r.booking_reference, r.contact_name, r.contact_phone, r.seat_count,
		       t.departure_at, r.form_expires_at
		FROM reservations r
		JOIN trips t ON t.id = r.trip_id
		WHERE r.provider_id = $1
		  AND r.status <> 'CANCELLED'
		  AND r.form_token IS NOT NULL
		  AND r.form_completed_at IS NULL
		  AND r.form_expires_at > $2
		ORDER BY r.form_expires_at`, providerID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending forms: %w", err)
	}
	return forms, nil
}
