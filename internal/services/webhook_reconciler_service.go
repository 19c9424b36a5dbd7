package services

import (
	"context"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/booking-core/internal/apperr"
	"github.com/smarttransit/booking-core/internal/metrics"
	"github.com/smarttransit/booking-core/internal/models"
	"github.com/smarttransit/booking-core/pkg/payment"
)

// WebhookOutcome is what a gateway notification resulted in
type WebhookOutcome string

const (
	WebhookApplied            WebhookOutcome = "applied"
	WebhookDuplicate          WebhookOutcome = "duplicate"
	WebhookRejected           WebhookOutcome = "rejected"
	WebhookUnknownTransaction WebhookOutcome = "unknown_transaction"
)

// maxStoredBody bounds the raw payload kept in the audit log
const maxStoredBody = 16 * 1024

// PaymentStore applies gateway outcomes and records the audit trail
type PaymentStore interface {
	ApplyTransactionStatus(ctx context.Context, gatewayName, gatewayTransactionID string, status models.TransactionStatus) (*models.TransactionTransition, error)
	LogEvent(ctx context.Context, event *models.PaymentEvent) error
}

// ReplayGuard remembers payloads that were already applied
type ReplayGuard interface {
	Seen(ctx context.Context, gateway string, payload []byte) (bool, error)
	Remember(ctx context.Context, gateway string, payload []byte) error
}

// WebhookResult is returned to the gateway handler
type WebhookResult struct {
	Gateway       string                   `json:"gateway"`
	Outcome       WebhookOutcome           `json:"outcome"`
	TransactionID string                   `json:"transaction_id,omitempty"`
	Status        models.TransactionStatus `json:"status,omitempty"`
	Duplicate     bool                     `json:"duplicate"`
	Reason        string                   `json:"reason,omitempty"`
}

// WebhookReconcilerService turns gateway notifications into transaction state
type WebhookReconcilerService struct {
	gateways *payment.Registry
	store    PaymentStore
	guard    ReplayGuard
	logger   *logrus.Logger
}

// NewWebhookReconcilerService creates a new reconciler. guard may be nil.
func NewWebhookReconcilerService(
	gateways *payment.Registry,
	store PaymentStore,
	guard ReplayGuard,
	logger *logrus.Logger,
) *WebhookReconcilerService {
	return &WebhookReconcilerService{
		gateways: gateways,
		store:    store,
		guard:    guard,
		logger:   logger,
	}
}

// Handle processes one notification. A rejected notification is reported in
// the result with a nil error and changes nothing.
func (s *WebhookReconcilerService) Handle(ctx context.Context, gatewayName string, payload []byte, signature string) (*WebhookResult, error) {
	gw, ok := s.gateways.Get(gatewayName)
	if !ok {
		return nil, apperr.NotFound("unknown payment gateway %q", gatewayName)
	}

	log := s.logger.WithField("gateway", gatewayName)
	event := gw.ProcessWebhook(payload, signature)

	audit := &models.PaymentEvent{
		ID:             uuid.New().String(),
		Gateway:        gatewayName,
		EventType:      "webhook",
		SignatureValid: gw.VerifySignature(payload, signature),
		RawBody:        rawBody(payload),
	}
	if event.TransactionID != "" {
		id := event.TransactionID
		audit.GatewayTransactionID = &id
	}
	if event.RawStatus != "" {
		raw := event.RawStatus
		audit.Status = &raw
	}

	if !event.Success {
		log.WithField("reason", event.Error).Warn("Webhook rejected")
		reason := event.Error
		audit.ErrorMessage = &reason
		s.finish(ctx, audit, WebhookRejected)
		return &WebhookResult{
			Gateway: gatewayName,
			Outcome: WebhookRejected,
			Reason:  event.Error,
		}, nil
	}

	result := &WebhookResult{
		Gateway:       gatewayName,
		TransactionID: event.TransactionID,
		Status:        models.TransactionStatus(event.Status),
	}

	if s.guard != nil {
		seen, err := s.guard.Seen(ctx, gatewayName, payload)
		if err != nil {
			log.WithError(err).Warn("Replay guard unavailable, applying notification")
		} else if seen {
			result.Outcome = WebhookDuplicate
			result.Duplicate = true
			s.finish(ctx, audit, WebhookDuplicate)
			return result, nil
		}
	}

	transition, err := s.store.ApplyTransactionStatus(ctx, gatewayName, event.TransactionID, result.Status)
	if err != nil {
		msg := err.Error()
		audit.ErrorMessage = &msg
		s.finish(ctx, audit, "error")
		return nil, classify(err, "failed to apply payment status")
	}

	if transition == nil {
		log.WithField("gateway_transaction_id", event.TransactionID).Warn("Webhook for unknown transaction")
		result.Outcome = WebhookUnknownTransaction
		s.finish(ctx, audit, WebhookUnknownTransaction)
		return result, nil
	}

	audit.TransactionID = &transition.TransactionID
	if transition.Changed {
		result.Outcome = WebhookApplied
		log.WithFields(logrus.Fields{
			"transaction_id": transition.TransactionID,
			"reservation_id": transition.ReservationID,
			"previous":       transition.Previous,
			"current":        transition.Current,
		}).Info("Payment status updated from webhook")
	} else {
		result.Outcome = WebhookDuplicate
		result.Duplicate = true
	}
	result.Status = transition.Current

	if s.guard != nil {
		if err := s.guard.Remember(ctx, gatewayName, payload); err != nil {
			log.WithError(err).Warn("Failed to remember webhook payload")
		}
	}
	s.finish(ctx, audit, result.Outcome)
	return result, nil
}

func (s *WebhookReconcilerService) finish(ctx context.Context, audit *models.PaymentEvent, outcome WebhookOutcome) {
	metrics.WebhooksProcessed.WithLabelValues(audit.Gateway, string(outcome)).Inc()
	audit.Outcome = string(outcome)
	if err := s.store.LogEvent(ctx, audit); err != nil {
		s.logger.WithError(err).WithField("gateway", audit.Gateway).Error("Failed to record payment event")
	}
}

func rawBody(payload []byte) *string {
	if len(payload) == 0 {
		return nil
	}
	if len(payload) > maxStoredBody {
		payload = payload[:maxStoredBody]
	}
	body := string(payload)
	return &body
}
