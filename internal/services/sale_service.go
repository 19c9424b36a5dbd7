package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/booking-core/internal/apperr"
	"github.com/smarttransit/booking-core/internal/clock"
	"github.com/smarttransit/booking-core/internal/metrics"
	"github.com/smarttransit/booking-core/internal/models"
	"github.com/smarttransit/booking-core/pkg/notify"
	"github.com/smarttransit/booking-core/pkg/payment"
	"github.com/smarttransit/booking-core/pkg/receipt"
)

// SaleStore persists sales and their follow-up operations
type SaleStore interface {
	CreateSale(ctx context.Context, rec *models.SaleRecord, generate func(ctx context.Context, exists models.ExistsFunc) (string, error)) error
	AttachGatewayTransaction(ctx context.Context, transactionID, gatewayTransactionID string, paymentURL *string) error
	CancelReservation(ctx context.Context, reservationID string, now time.Time) (bool, error)
	GetReservation(ctx context.Context, id string) (*models.Reservation, error)
	GetReservationSeats(ctx context.Context, reservationID string) ([]models.ReservationSeat, error)
	GetTransactions(ctx context.Context, reservationID string) ([]models.Transaction, error)
	ListSellerSales(ctx context.Context, sellerID string, rng models.DateRange) ([]models.SaleSummary, error)
	ListProviderSales(ctx context.Context, providerID string, rng models.DateRange) ([]models.SaleSummary, error)
	ListPendingForms(ctx context.Context, providerID string, now time.Time) ([]models.PendingForm, error)
}

// SaleConfig carries the sale-level settings
type SaleConfig struct {
	FormTTL           time.Duration
	FormGrace         time.Duration
	PublicFormBaseURL string
	Currency          string
	CompanyName       string
}

// SaleService orchestrates the creation and follow-up of sales
type SaleService struct {
	trips     TripStore
	inventory *SeatInventoryService
	sales     SaleStore
	refs      *ReferenceGenerator
	gateways  *payment.Registry
	notifier  notify.Dispatcher
	clock     clock.Clock
	cfg       SaleConfig
	logger    *logrus.Logger
}

// NewSaleService creates a new sale service
func NewSaleService(
	trips TripStore,
	inventory *SeatInventoryService,
	sales SaleStore,
	refs *ReferenceGenerator,
	gateways *payment.Registry,
	notifier notify.Dispatcher,
	clk clock.Clock,
	cfg SaleConfig,
	logger *logrus.Logger,
) *SaleService {
	return &SaleService{
		trips:     trips,
		inventory: inventory,
		sales:     sales,
		refs:      refs,
		gateways:  gateways,
		notifier:  notifier,
		clock:     clk,
		cfg:       cfg,
		logger:    logger,
	}
}

// CalculateFormExpiration closes the passenger form after ttl, or grace after
// departure, whichever comes first
func CalculateFormExpiration(now, departure time.Time, ttl, grace time.Duration) time.Time {
	byTTL := now.Add(ttl)
	byDeparture := departure.Add(grace)
	if byDeparture.Before(byTTL) {
		return byDeparture
	}
	return byTTL
}

// ============================================================================
// CREATE SALE
// ============================================================================

// CreateSale commits a sale atomically. Notification and payment-link
// creation run after commit and never fail the sale.
func (s *SaleService) CreateSale(ctx context.Context, caller models.Caller, req *models.CreateSaleRequest) (*models.SaleResult, error) {
	start := time.Now()
	result, err := s.createSale(ctx, caller, req)
	outcome := "ok"
	if err != nil {
		outcome = string(apperr.KindOf(err))
	}
	metrics.SaleDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	return result, err
}

func (s *SaleService) createSale(ctx context.Context, caller models.Caller, req *models.CreateSaleRequest) (*models.SaleResult, error) {
	now := s.clock.Now()

	// 1. Trip and ownership
	trip, err := loadAuthorizedTrip(ctx, s.trips, caller, req.TripID)
	if err != nil {
		return nil, err
	}

	if err := validateContact(&req.Contact); err != nil {
		return nil, err
	}
	gateway, err := s.validatePayment(&req.Payment)
	if err != nil {
		return nil, err
	}

	// 2. Selection against the trip's seat mode
	if err := validateSelection(trip, req.Selection); err != nil {
		return nil, err
	}

	// 3. Seat-based sales: every seat must be free or held by the caller's lock
	var seats []models.TripSeat
	bySeats, seatMode := req.Selection.(models.BySeatIDs)
	if seatMode {
		seats, err = s.inventory.SeatsForSale(ctx, trip.ID, bySeats.SeatIDs)
		if err != nil {
			return nil, err
		}
		if err := checkSeatsSellable(seats, bySeats.LockID, now); err != nil {
			return nil, err
		}
	}

	// 4. Totals
	count := req.Selection.SeatCount()
	subtotal := trip.PricePerSeat.Mul(decimal.NewFromInt(int64(count)))
	total := subtotal
	amount := req.Payment.Amount
	if amount.GreaterThan(total) {
		return nil, apperr.BadRequest("payment amount %s exceeds total %s", amount.StringFixed(2), total.StringFixed(2)).
			WithDetail("total", total.StringFixed(2))
	}
	partial := amount.LessThan(total)

	// 5. Customer, upserted inside the unit
	customer := &models.Customer{
		ID:             uuid.New().String(),
		DocumentType:   req.Contact.DocumentType,
		DocumentNumber: strings.TrimSpace(req.Contact.DocumentNumber),
		FullName:       strings.TrimSpace(req.Contact.FullName),
		Phone:          req.Contact.Phone,
		Email:          req.Contact.Email,
	}

	// 7. Commission
	commission := subtotal.Mul(trip.CommissionRate).Div(decimal.NewFromInt(100)).Round(2)

	reservation := &models.Reservation{
		ID:               uuid.New().String(),
		TripID:           trip.ID,
		ProviderID:       trip.ProviderID,
		SellerID:         caller.SellerID,
		Type:             models.ReservationTypeSeats,
		Status:           models.ReservationStatusPending,
		Channel:          req.Channel,
		SeatCount:        count,
		Subtotal:         subtotal,
		TotalAmount:      total,
		CommissionRate:   trip.CommissionRate,
		CommissionAmount: commission,
		ProviderNet:      subtotal.Sub(commission),
		ContactName:      customer.FullName,
		ContactPhone:     req.Contact.Phone,
		ContactEmail:     req.Contact.Email,
		Notes:            req.Notes,
	}
	if reservation.Channel == "" {
		reservation.Channel = models.SaleChannelPOS
	}
	if count == trip.TotalSeats {
		reservation.Type = models.ReservationTypeFullVehicle
	}

	// 6. Passenger form
	if trip.RequiresPassengerForm {
		token := uuid.New().String()
		expiresAt := CalculateFormExpiration(now, trip.DepartureAt, s.cfg.FormTTL, s.cfg.FormGrace)
		reservation.FormToken = &token
		reservation.FormExpiresAt = &expiresAt
	}

	txn := s.buildTransaction(&req.Payment, gateway)
	if txn != nil && txn.Status == models.TransactionStatusCompleted && !partial {
		reservation.Status = models.ReservationStatusConfirmed
	}

	rec := &models.SaleRecord{
		Reservation: reservation,
		Customer:    customer,
		Transaction: txn,
		Now:         now,
	}

	// 8. Quantity sales take capacity before the unit
	var reserved []models.TripSeat
	if byQty, ok := req.Selection.(models.ByQuantity); ok {
		reserved, err = s.inventory.ReserveQuantity(ctx, trip.ID, byQty)
		if err != nil {
			return nil, err
		}
		rec.Seats = quantitySeats(reserved, trip.PricePerSeat)
	} else {
		rec.Seats = selectedSeats(seats, trip.PricePerSeat)
		rec.ConfirmLockID = bySeats.LockID
		rec.ConfirmSeatIDs = bySeats.SeatIDs
	}

	// 9. Atomic unit
	if err := s.sales.CreateSale(ctx, rec, s.refs.Generate); err != nil {
		if len(reserved) > 0 {
			s.compensate(trip.ID, reserved)
		}
		s.logger.WithFields(logrus.Fields{
			"trip_id":   trip.ID,
			"seller_id": caller.SellerID,
		}).WithError(err).Warn("Sale failed")
		return nil, classify(err, "failed to create sale")
	}

	mode := "seats"
	if !seatMode {
		mode = "quantity"
	}
	metrics.SalesCreated.WithLabelValues(mode, string(reservation.Channel)).Inc()
	s.logger.WithFields(logrus.Fields{
		"reservation_id":    reservation.ID,
		"booking_reference": reservation.BookingReference,
		"trip_id":           trip.ID,
		"seller_id":         caller.SellerID,
		"seat_count":        count,
		"total":             total.StringFixed(2),
		"status":            reservation.Status,
	}).Info("✅ Sale created")

	result := &models.SaleResult{
		ReservationID:    reservation.ID,
		BookingReference: reservation.BookingReference,
		Status:           reservation.Status,
		Total:            total,
		AmountPaid:       amount,
		IsPartialPayment: partial,
		FormExpiresAt:    reservation.FormExpiresAt,
	}
	if txn != nil && txn.Status != models.TransactionStatusCompleted {
		result.AmountPaid = decimal.Zero
	}
	for _, seat := range rec.Seats {
		if seat.SeatNumber != nil {
			result.SeatNumbers = append(result.SeatNumbers, *seat.SeatNumber)
		}
	}

	// 10. Best-effort follow-ups
	if gateway != nil && txn != nil {
		result.PaymentURL = s.openPaymentLink(ctx, gateway, reservation, customer, txn, trip)
	}
	if reservation.FormToken != nil {
		formURL := s.formURL(*reservation.FormToken)
		result.FormURL = &formURL
		if req.SendForm && reservation.ContactPhone != nil {
			result.WhatsAppURL = s.dispatchForm(ctx, *reservation.ContactPhone, reservation, formURL, trip)
		}
	}

	return result, nil
}

func (s *SaleService) validatePayment(p *models.PaymentInput) (payment.Gateway, error) {
	if !p.Method.IsValid() {
		return nil, apperr.BadRequest("unknown payment method %q", p.Method)
	}
	if p.Amount.IsNegative() {
		return nil, apperr.BadRequest("payment amount must not be negative")
	}
	if p.Method != models.PaymentMethodGateway {
		return nil, nil
	}
	if p.Gateway == "" {
		return nil, apperr.BadRequest("gateway is required for gateway payments")
	}
	gw, ok := s.gateways.Get(p.Gateway)
	if !ok {
		return nil, apperr.BadRequest("unknown payment gateway %q", p.Gateway)
	}
	if !p.Amount.IsPositive() {
		return nil, apperr.BadRequest("gateway payments need a positive amount")
	}
	return gw, nil
}

func validateContact(c *models.ContactInput) error {
	if strings.TrimSpace(c.FullName) == "" {
		return apperr.BadRequest("contact name is required")
	}
	if !c.DocumentType.IsValid() {
		return apperr.BadRequest("unknown document type %q", c.DocumentType)
	}
	if strings.TrimSpace(c.DocumentNumber) == "" {
		return apperr.BadRequest("document number is required")
	}
	return nil
}

func validateSelection(trip *models.TripDetails, sel models.SeatSelection) error {
	switch v := sel.(type) {
	case models.BySeatIDs:
		if trip.SeatSelectionMode == models.SeatSelectionNone {
			return apperr.BadRequest("trip sells seats by quantity, seat ids are not accepted")
		}
		return validateSeatIDs(v.SeatIDs)
	case models.ByQuantity:
		if trip.SeatSelectionMode == models.SeatSelectionRequired {
			return apperr.BadRequest("trip requires choosing specific seats")
		}
		if v.Count <= 0 {
			return apperr.BadRequest("quantity must be positive")
		}
		if trip.VehicleFloors > 1 && v.Floor == nil && trip.SeatSelectionMode == models.SeatSelectionNone {
			return apperr.BadRequest("floor is required on a %d-floor vehicle", trip.VehicleFloors)
		}
		if v.Floor != nil && (*v.Floor < 1 || *v.Floor > max(trip.VehicleFloors, 1)) {
			return apperr.BadRequest("floor %d does not exist on this vehicle", *v.Floor)
		}
		return nil
	default:
		return apperr.BadRequest("either seat ids or a quantity is required")
	}
}

// checkSeatsSellable accepts free seats for a direct sale, or seats held by
// lockID when the sale confirms a lock. A lock that has lapsed is gone.
func checkSeatsSellable(seats []models.TripSeat, lockID string, now time.Time) error {
	var unavailable []string
	lapsed := false
	for i := range seats {
		seat := &seats[i]
		switch {
		case lockID == "":
			if seat.Status != models.TripSeatStatusAvailable {
				unavailable = append(unavailable, seat.SeatNumber)
			}
		case seat.IsLockedBy(lockID, now):
		case seat.Status == models.TripSeatStatusAvailable,
			seat.LockID != nil && *seat.LockID == lockID:
			lapsed = true
		default:
			unavailable = append(unavailable, seat.SeatNumber)
		}
	}
	if len(unavailable) > 0 {
		return apperr.BadRequest("seats not available: %s", strings.Join(unavailable, ", ")).
			WithDetail("seats", unavailable)
	}
	if lapsed {
		return apperr.Gone("seat lock %s has expired", lockID)
	}
	return nil
}

func (s *SaleService) buildTransaction(p *models.PaymentInput, gw payment.Gateway) *models.Transaction {
	if p.Amount.IsZero() {
		return nil
	}
	txn := &models.Transaction{
		ID:       uuid.New().String(),
		Amount:   p.Amount,
		Currency: s.cfg.Currency,
		Method:   p.Method,
		Status:   models.TransactionStatusCompleted,
	}
	if gw != nil {
		name := gw.Name()
		txn.Gateway = &name
		txn.Status = models.TransactionStatusPending
	}
	return txn
}

func selectedSeats(seats []models.TripSeat, price decimal.Decimal) []models.ReservationSeat {
	rows := make([]models.ReservationSeat, 0, len(seats))
	for _, seat := range seats {
		tripSeatID := seat.ID
		number := seat.SeatNumber
		floor := seat.Floor
		rows = append(rows, models.ReservationSeat{
			ID:         uuid.New().String(),
			TripSeatID: &tripSeatID,
			SeatNumber: &number,
			Floor:      &floor,
			Price:      price,
		})
	}
	return rows
}

// quantitySeats records floor-only rows. The trip seat is linked so that a
// cancellation can return it, but no seat number is promised to the buyer.
func quantitySeats(seats []models.TripSeat, price decimal.Decimal) []models.ReservationSeat {
	rows := make([]models.ReservationSeat, 0, len(seats))
	for _, seat := range seats {
		tripSeatID := seat.ID
		floor := seat.Floor
		rows = append(rows, models.ReservationSeat{
			ID:         uuid.New().String(),
			TripSeatID: &tripSeatID,
			Floor:      &floor,
			Price:      price,
		})
	}
	return rows
}

func (s *SaleService) compensate(tripID string, reserved []models.TripSeat) {
	ids := make([]string, 0, len(reserved))
	for _, seat := range reserved {
		ids = append(ids, seat.ID)
	}
	// The request context may already be cancelled
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := s.inventory.UndoQuantityReservation(ctx, tripID, ids); err != nil {
		s.logger.WithFields(logrus.Fields{
			"trip_id":  tripID,
			"seat_ids": ids,
		}).WithError(err).Error("Failed to release reserved seats after failed sale")
	}
}

func (s *SaleService) openPaymentLink(
	ctx context.Context,
	gw payment.Gateway,
	res *models.Reservation,
	customer *models.Customer,
	txn *models.Transaction,
	trip *models.TripDetails,
) *string {
	req := &payment.LinkRequest{
		TransactionID:    txn.ID,
		ReservationID:    res.ID,
		BookingReference: res.BookingReference,
		Amount:           txn.Amount,
		Currency:         txn.Currency,
		CustomerName:     customer.FullName,
		Description:      fmt.Sprintf("%s %s", res.BookingReference, trip.Summary()),
		Metadata: map[string]string{
			"reservation_id": res.ID,
			"transaction_id": txn.ID,
		},
	}
	if customer.Email != nil {
		req.CustomerEmail = *customer.Email
	}
	if customer.Phone != nil {
		req.CustomerPhone = *customer.Phone
	}

	log := s.logger.WithFields(logrus.Fields{
		"reservation_id": res.ID,
		"transaction_id": txn.ID,
		"gateway":        gw.Name(),
	})

	link, err := gw.CreatePaymentLink(ctx, req)
	if err != nil {
		log.WithError(err).Error("Failed to create payment link")
		return nil
	}
	if err := s.sales.AttachGatewayTransaction(ctx, txn.ID, link.TransactionID, &link.PaymentURL); err != nil {
		log.WithError(err).Error("Failed to store gateway transaction id")
		return nil
	}
	log.WithField("gateway_transaction_id", link.TransactionID).Info("Payment link created")
	return &link.PaymentURL
}

func (s *SaleService) formURL(token string) string {
	return strings.TrimRight(s.cfg.PublicFormBaseURL, "/") + "/" + token
}

func (s *SaleService) dispatchForm(ctx context.Context, phone string, res *models.Reservation, formURL string, trip *models.TripDetails) *string {
	out := s.notifier.SendPassengerForm(ctx, notify.FormMessage{
		Phone:            phone,
		Name:             res.ContactName,
		BookingReference: res.BookingReference,
		FormURL:          formURL,
		TripSummary:      trip.Summary(),
		Status:           res.Status,
	})
	if !out.Success || out.ShareableURL == "" {
		return nil
	}
	return &out.ShareableURL
}

// ============================================================================
// FOLLOW-UP OPERATIONS
// ============================================================================

// CancelSale cancels a reservation and returns its seats. Cancelling an
// already cancelled reservation succeeds without side effects.
func (s *SaleService) CancelSale(ctx context.Context, caller models.Caller, reservationID string) error {
	res, err := s.ownedReservation(ctx, caller, reservationID)
	if err != nil {
		return err
	}
	if res.Status == models.ReservationStatusCancelled {
		return nil
	}

	changed, err := s.sales.CancelReservation(ctx, res.ID, s.clock.Now())
	if err != nil {
		return classify(err, "failed to cancel sale")
	}
	if changed {
		s.logger.WithFields(logrus.Fields{
			"reservation_id":    res.ID,
			"booking_reference": res.BookingReference,
			"seller_id":         caller.SellerID,
		}).Info("Sale cancelled")
	}
	return nil
}

// GetMySales lists the caller's own sales in the range
func (s *SaleService) GetMySales(ctx context.Context, caller models.Caller, rng models.DateRange) (*models.SalesReport, error) {
	if err := validateRange(rng); err != nil {
		return nil, err
	}
	sales, err := s.sales.ListSellerSales(ctx, caller.SellerID, rng)
	if err != nil {
		return nil, classify(err, "failed to list sales")
	}
	return models.NewSalesReport(sales), nil
}

// GetProviderSales lists every sale of the caller's provider in the range
func (s *SaleService) GetProviderSales(ctx context.Context, caller models.Caller, rng models.DateRange) (*models.SalesReport, error) {
	if err := validateRange(rng); err != nil {
		return nil, err
	}
	sales, err := s.sales.ListProviderSales(ctx, caller.ProviderID, rng)
	if err != nil {
		return nil, classify(err, "failed to list sales")
	}
	return models.NewSalesReport(sales), nil
}

// GetPendingForms lists the provider's sales whose passenger form is still open
func (s *SaleService) GetPendingForms(ctx context.Context, caller models.Caller) ([]models.PendingForm, error) {
	forms, err := s.sales.ListPendingForms(ctx, caller.ProviderID, s.clock.Now())
	if err != nil {
		return nil, classify(err, "failed to list pending forms")
	}
	if forms == nil {
		forms = []models.PendingForm{}
	}
	return forms, nil
}

// ResendForm dispatches the passenger-form link again, optionally to a new phone
func (s *SaleService) ResendForm(ctx context.Context, caller models.Caller, reservationID string, phone *string) (*models.ResendFormResult, error) {
	res, err := s.ownedReservation(ctx, caller, reservationID)
	if err != nil {
		return nil, err
	}
	if res.Status == models.ReservationStatusCancelled {
		return nil, apperr.BadRequest("reservation %s is cancelled", res.BookingReference)
	}
	if res.FormToken == nil {
		return nil, apperr.BadRequest("reservation %s has no passenger form", res.BookingReference)
	}
	if res.FormCompletedAt != nil {
		return nil, apperr.BadRequest("passenger form already completed")
	}
	if res.FormExpiresAt != nil && !s.clock.Now().Before(*res.FormExpiresAt) {
		return nil, apperr.Gone("passenger form expired at %s", res.FormExpiresAt.Format(time.RFC3339))
	}

	target := res.ContactPhone
	if phone != nil && strings.TrimSpace(*phone) != "" {
		target = phone
	}
	if target == nil {
		return nil, apperr.BadRequest("no phone number to send the form to")
	}

	trip, err := s.trips.GetTripDetails(ctx, res.TripID)
	if err != nil {
		return nil, classify(err, "failed to load trip")
	}
	if trip == nil {
		return nil, apperr.NotFound("trip %s not found", res.TripID)
	}

	formURL := s.formURL(*res.FormToken)
	result := &models.ResendFormResult{FormURL: formURL}
	result.WhatsAppURL = s.dispatchForm(ctx, *target, res, formURL, trip)

	s.logger.WithFields(logrus.Fields{
		"reservation_id": res.ID,
		"dispatched":     result.WhatsAppURL != nil,
	}).Info("Passenger form resent")
	return result, nil
}

// Receipt renders the PDF receipt of a sale and returns it with a file name
func (s *SaleService) Receipt(ctx context.Context, caller models.Caller, reservationID string) ([]byte, string, error) {
	res, err := s.ownedReservation(ctx, caller, reservationID)
	if err != nil {
		return nil, "", err
	}

	trip, err := s.trips.GetTripDetails(ctx, res.TripID)
	if err != nil {
		return nil, "", classify(err, "failed to load trip")
	}
	if trip == nil {
		return nil, "", apperr.NotFound("trip %s not found", res.TripID)
	}
	seats, err := s.sales.GetReservationSeats(ctx, res.ID)
	if err != nil {
		return nil, "", classify(err, "failed to load reservation seats")
	}
	payments, err := s.sales.GetTransactions(ctx, res.ID)
	if err != nil {
		return nil, "", classify(err, "failed to load transactions")
	}

	pdf, err := receipt.Render(&models.ReceiptData{
		Reservation: *res,
		Trip:        *trip,
		Seats:       seats,
		Payments:    payments,
		Currency:    s.cfg.Currency,
		CompanyName: s.cfg.CompanyName,
	})
	if err != nil {
		return nil, "", apperr.Internal(err, "failed to render receipt")
	}
	return pdf, fmt.Sprintf("receipt-%s.pdf", res.BookingReference), nil
}

func (s *SaleService) ownedReservation(ctx context.Context, caller models.Caller, reservationID string) (*models.Reservation, error) {
	if _, err := uuid.Parse(reservationID); err != nil {
		return nil, apperr.NotFound("reservation %s not found", reservationID)
	}
	res, err := s.sales.GetReservation(ctx, reservationID)
	if err != nil {
		return nil, classify(err, "failed to load reservation")
	}
	if res == nil {
		return nil, apperr.NotFound("reservation %s not found", reservationID)
	}
	if res.ProviderID != caller.ProviderID {
		return nil, apperr.Forbidden("reservation %s belongs to another provider", reservationID)
	}
	return res, nil
}

func validateRange(rng models.DateRange) error {
	if !rng.To.After(rng.From) {
		return apperr.BadRequest("invalid date range: to must be after from")
	}
	return nil
}
