package services

import (
	"context"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/smarttransit/booking-core/internal/apperr"
	"github.com/smarttransit/booking-core/internal/models"
	"github.com/smarttransit/booking-core/pkg/payment"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const webhookSecret = "whsec_test"

func mercadoPagoPayload(preferenceID, status string) []byte {
	return []byte(fmt.Sprintf(`{"action":"payment.updated","data":{"id":"123","preference_id":%q,"status":%q}}`, preferenceID, status))
}

// seedGatewaySale creates a pending reservation with one gateway transaction
func seedGatewaySale(t *testing.T, store *memStore, gatewayTxID string) (string, string) {
	t.Helper()
	store.mu.Lock()
	defer store.mu.Unlock()

	res := &models.Reservation{
		ID:          "res-" + gatewayTxID,
		Status:      models.ReservationStatusPending,
		TotalAmount: decimal.NewFromInt(40),
		ProviderID:  testProviderID,
	}
	gw := payment.MercadoPagoName
	id := gatewayTxID
	txn := &models.Transaction{
		ID:                   "txn-" + gatewayTxID,
		ReservationID:        res.ID,
		Amount:               decimal.NewFromInt(40),
		Method:               models.PaymentMethodGateway,
		Gateway:              &gw,
		GatewayTransactionID: &id,
		Status:               models.TransactionStatusPending,
	}
	store.reservations[res.ID] = res
	store.txns[txn.ID] = txn
	return res.ID, txn.ID
}

func setupWebhookTest(t *testing.T, guard ReplayGuard) (*WebhookReconcilerService, *memStore) {
	t.Helper()
	logger := discardLogger()
	store := newMemStore()
	gateways := payment.NewRegistry(
		payment.NewMercadoPagoGateway(payment.Config{
			AccessToken:   "APP_USR-test",
			WebhookSecret: webhookSecret,
			APIBaseURL:    "http://127.0.0.1:0",
		}, logger),
		payment.NewIzipayGateway(payment.Config{}, logger),
	)
	return NewWebhookReconcilerService(gateways, store, guard, logger), store
}

func TestHandle_AppliesApprovedPayment(t *testing.T) {
	svc, store := setupWebhookTest(t, nil)
	resID, txnID := seedGatewaySale(t, store, "pref-1")
	payload := mercadoPagoPayload("pref-1", "approved")

	result, err := svc.Handle(context.Background(), payment.MercadoPagoName, payload, payment.SignHex(payload, webhookSecret))
	require.NoError(t, err)

	assert.Equal(t, WebhookApplied, result.Outcome)
	assert.False(t, result.Duplicate)
	assert.Equal(t, models.TransactionStatusCompleted, result.Status)
	assert.Equal(t, models.TransactionStatusCompleted, store.txns[txnID].Status)
	assert.Equal(t, models.ReservationStatusConfirmed, store.reservation(resID).Status)
	assert.Equal(t, []string{"applied"}, store.eventOutcomes())
}

func TestHandle_ReplayIsDuplicate(t *testing.T) {
	svc, store := setupWebhookTest(t, nil)
	resID, _ := seedGatewaySale(t, store, "pref-1")
	payload := mercadoPagoPayload("pref-1", "approved")
	sig := payment.SignHex(payload, webhookSecret)
	ctx := context.Background()

	_, err := svc.Handle(ctx, payment.MercadoPagoName, payload, sig)
	require.NoError(t, err)
	before := store.reservation(resID)

	for i := 0; i < 3; i++ {
		result, err := svc.Handle(ctx, payment.MercadoPagoName, payload, sig)
		require.NoError(t, err)
		assert.Equal(t, WebhookDuplicate, result.Outcome)
		assert.True(t, result.Duplicate)
	}
	assert.Equal(t, before, store.reservation(resID))
	assert.Equal(t, []string{"applied", "duplicate", "duplicate", "duplicate"}, store.eventOutcomes())
}

func TestHandle_ReplayGuardShortCircuits(t *testing.T) {
	guard := &memGuard{}
	svc, store := setupWebhookTest(t, guard)
	seedGatewaySale(t, store, "pref-1")
	payload := mercadoPagoPayload("pref-1", "approved")
	sig := payment.SignHex(payload, webhookSecret)
	ctx := context.Background()

	_, err := svc.Handle(ctx, payment.MercadoPagoName, payload, sig)
	require.NoError(t, err)

	seen, err := guard.Seen(ctx, payment.MercadoPagoName, payload)
	require.NoError(t, err)
	assert.True(t, seen)

	result, err := svc.Handle(ctx, payment.MercadoPagoName, payload, sig)
	require.NoError(t, err)
	assert.True(t, result.Duplicate)
}

func TestHandle_TamperedPayloadRejected(t *testing.T) {
	svc, store := setupWebhookTest(t, nil)
	resID, txnID := seedGatewaySale(t, store, "pref-1")

	signed := mercadoPagoPayload("pref-1", "rejected")
	sig := payment.SignHex(signed, webhookSecret)
	tampered := mercadoPagoPayload("pref-1", "approved")

	result, err := svc.Handle(context.Background(), payment.MercadoPagoName, tampered, sig)
	require.NoError(t, err)
	assert.Equal(t, WebhookRejected, result.Outcome)
	assert.NotEmpty(t, result.Reason)

	assert.Equal(t, models.TransactionStatusPending, store.txns[txnID].Status)
	assert.Equal(t, models.ReservationStatusPending, store.reservation(resID).Status)
	require.Len(t, store.events, 1)
	assert.False(t, store.events[0].SignatureValid)
	assert.Equal(t, "rejected", store.events[0].Outcome)
}

func TestHandle_FailedThenPendingStaysFailed(t *testing.T) {
	svc, store := setupWebhookTest(t, nil)
	_, txnID := seedGatewaySale(t, store, "pref-1")
	ctx := context.Background()

	failed := mercadoPagoPayload("pref-1", "rejected")
	result, err := svc.Handle(ctx, payment.MercadoPagoName, failed, payment.SignHex(failed, webhookSecret))
	require.NoError(t, err)
	assert.Equal(t, WebhookApplied, result.Outcome)

	pending := mercadoPagoPayload("pref-1", "in_process")
	result, err = svc.Handle(ctx, payment.MercadoPagoName, pending, payment.SignHex(pending, webhookSecret))
	require.NoError(t, err)
	assert.Equal(t, WebhookDuplicate, result.Outcome)
	assert.Equal(t, models.TransactionStatusFailed, store.txns[txnID].Status)
}

func TestHandle_UnknownTransaction(t *testing.T) {
	svc, store := setupWebhookTest(t, nil)
	payload := mercadoPagoPayload("pref-missing", "approved")

	result, err := svc.Handle(context.Background(), payment.MercadoPagoName, payload, payment.SignHex(payload, webhookSecret))
	require.NoError(t, err)
	assert.Equal(t, WebhookUnknownTransaction, result.Outcome)
	assert.Equal(t, []string{"unknown_transaction"}, store.eventOutcomes())
}

func TestHandle_UnknownGateway(t *testing.T) {
	svc, store := setupWebhookTest(t, nil)

	_, err := svc.Handle(context.Background(), "paypal", []byte(`{}`), "")
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	assert.Empty(t, store.events)
}

func TestHandle_MockGatewayCompletes(t *testing.T) {
	svc, store := setupWebhookTest(t, nil)
	store.mu.Lock()
	id := "po-1"
	gw := payment.IzipayName
	store.reservations["res-po"] = &models.Reservation{ID: "res-po", Status: models.ReservationStatusPending, TotalAmount: decimal.NewFromInt(10)}
	store.txns["txn-po"] = &models.Transaction{
		ID: "txn-po", ReservationID: "res-po", Amount: decimal.NewFromInt(10),
		Gateway: &gw, GatewayTransactionID: &id, Status: models.TransactionStatusPending,
	}
	store.mu.Unlock()

	payload := []byte(`{"paymentOrderId":"po-1","orderStatus":"RUNNING"}`)
	result, err := svc.Handle(context.Background(), payment.IzipayName, payload, "")
	require.NoError(t, err)
	assert.Equal(t, WebhookApplied, result.Outcome)
	assert.Equal(t, models.ReservationStatusConfirmed, store.reservation("res-po").Status)
}

func TestHandle_OtherGatewayCannotSettleTransaction(t *testing.T) {
	svc, store := setupWebhookTest(t, nil)
	resID, txnID := seedGatewaySale(t, store, "pref-1")

	payload := []byte(`{"paymentOrderId":"pref-1","orderStatus":"UNPAID"}`)
	result, err := svc.Handle(context.Background(), payment.IzipayName, payload, "")
	require.NoError(t, err)

	assert.Equal(t, WebhookUnknownTransaction, result.Outcome)
	assert.Equal(t, models.TransactionStatusPending, store.txns[txnID].Status)
	assert.Equal(t, models.ReservationStatusPending, store.reservation(resID).Status)
	assert.Equal(t, []string{"unknown_transaction"}, store.eventOutcomes())
}

func TestHandle_LiveRegistryHasNoMockGateway(t *testing.T) {
	logger := discardLogger()
	store := newMemStore()
	gateways := payment.NewRegistry(payment.WithoutMocks(
		payment.NewMercadoPagoGateway(payment.Config{
			AccessToken:   "APP_USR-test",
			WebhookSecret: webhookSecret,
			APIBaseURL:    "http://127.0.0.1:0",
		}, logger),
		payment.NewIzipayGateway(payment.Config{}, logger),
	)...)
	svc := NewWebhookReconcilerService(gateways, store, nil, logger)
	resID, txnID := seedGatewaySale(t, store, "pref-1")

	payload := []byte(`{"paymentOrderId":"pref-1","orderStatus":"PAID"}`)
	_, err := svc.Handle(context.Background(), payment.IzipayName, payload, "")
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	assert.Equal(t, models.TransactionStatusPending, store.txns[txnID].Status)
	assert.Equal(t, models.ReservationStatusPending, store.reservation(resID).Status)
	assert.Empty(t, store.events)
}
