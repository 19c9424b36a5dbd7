package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/booking-core/internal/models"
)

// PaymentRepository applies gateway notifications and keeps their audit trail
type PaymentRepository struct {
	db     *sqlx.DB
	logger *logrus.Logger
}

// NewPaymentRepository creates a new payment repository
func NewPaymentRepository(db *sqlx.DB, logger *logrus.Logger) *PaymentRepository {
	return &PaymentRepository{
		db:     db,
		logger: logger,
	}
}

// ApplyTransactionStatus sets a transaction's status to a canonical value.
// The row is locked first; equal statuses and terminal-to-PENDING moves are
// no-ops, so replays change nothing. When a row changes to
// COMPLETED and completed payments now cover the total, the reservation is
// confirmed in the same transaction. Returns nil when no transaction of
// gatewayName carries the gateway id.
func (r *PaymentRepository) ApplyTransactionStatus(ctx context.Context, gatewayName, gatewayTransactionID string, status models.TransactionStatus) (*models.TransactionTransition, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var current struct {
		ID            string                   `db:"id"`
		ReservationID string                   `db:"reservation_id"`
		Status        models.TransactionStatus `db:"status"`
	}
	err = tx.GetContext(ctx, &current, `
		SELECT id, reservation_id, status FROM transactions
		WHERE gateway_transaction_id = $1 AND gateway = $2
		FOR UPDATE`, gatewayTransactionID, gatewayName)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}

	transition := &models.TransactionTransition{
		TransactionID: current.ID,
		ReservationID: current.ReservationID,
		Previous:      current.Status,
		Current:       current.Status,
	}

	if current.Status == status || (current.Status.IsTerminal() && status == models.TransactionStatusPending) {
		return transition, nil
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE transactions
		SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3`,
		status, current.ID, current.Status)
	if err != nil {
		return nil, fmt.Errorf("failed to update transaction status: %w", err)
	}
	transition.Changed = true
	transition.Current = status

	if status == models.TransactionStatusCompleted {
		_, err = tx.ExecContext(ctx, `
			UPDATE reservations r
			SET status = 'CONFIRMED', updated_at = NOW()
			WHERE r.id = $1
			  AND r.status = 'PENDING'
			  AND (SELECT COALESCE(SUM(amount), 0) FROM transactions
			       WHERE reservation_id = r.id AND status = 'COMPLETED') >= r.total_amount`,
			current.ReservationID)
		if err != nil {
			return nil, fmt.Errorf("failed to confirm reservation: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction status: %w", err)
	}
	return transition, nil
}

// LogEvent appends a payment event. Audit failures are logged loudly and
// returned to the caller.
func (r *PaymentRepository) LogEvent(ctx context.Context, event *models.PaymentEvent) error {
	if event == nil {
		return fmt.Errorf("payment event cannot be nil")
	}
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO payment_events (
			id, gateway, event_type, gateway_transaction_id, transaction_id,
			status, outcome, signature_valid, raw_body, error_message, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		event.ID, event.Gateway, event.EventType, event.GatewayTransactionID, event.TransactionID,
		event.Status, event.Outcome, event.SignatureValid, event.RawBody, event.ErrorMessage, event.CreatedAt,
	)
	if err != nil {
		r.logger.WithError(err).WithFields(logrus.Fields{
			"gateway":    event.Gateway,
			"event_type": event.EventType,
			"outcome":    event.Outcome,
		}).Error("CRITICAL: Failed to log payment event")
		return fmt.Errorf("failed to log payment event: %w", err)
	}

	r.logger.WithFields(logrus.Fields{
		"event_id":   event.ID,
		"gateway":    event.Gateway,
		"event_type": event.EventType,
		"outcome":    event.Outcome,
	}).Debug("Payment event logged")

	return nil
}
