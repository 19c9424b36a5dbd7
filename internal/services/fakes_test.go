package services

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/booking-core/internal/apperr"
	"github.com/smarttransit/booking-core/internal/models"
	"github.com/smarttransit/booking-core/pkg/notify"
)

// memStore is an in-memory stand-in for the Postgres repositories. A single
// mutex plays the role of the database transaction.
type memStore struct {
	mu sync.Mutex

	trips        map[string]*models.TripDetails
	seats        map[string]*models.TripSeat
	seatOrder    []string
	reservations map[string]*models.Reservation
	resSeats     map[string][]models.ReservationSeat
	txns         map[string]*models.Transaction
	customers    map[string]string
	passengers   []models.Passenger
	events       []models.PaymentEvent
	sellerSales  map[string]int

	// failCreateSale makes the sale unit fail after its checks
	failCreateSale error
}

func newMemStore() *memStore {
	return &memStore{
		trips:        make(map[string]*models.TripDetails),
		seats:        make(map[string]*models.TripSeat),
		reservations: make(map[string]*models.Reservation),
		resSeats:     make(map[string][]models.ReservationSeat),
		txns:         make(map[string]*models.Transaction),
		customers:    make(map[string]string),
		sellerSales:  make(map[string]int),
	}
}

func discardLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// addTrip registers a trip with seatsPerFloor seats on each floor. Seat ids
// are "<trip>-s<n>" and seat numbers "<n>".
func (m *memStore) addTrip(trip models.TripDetails, floors, seatsPerFloor int) *models.TripDetails {
	m.mu.Lock()
	defer m.mu.Unlock()

	if floors < 1 {
		floors = 1
	}
	trip.VehicleFloors = floors
	trip.TotalSeats = floors * seatsPerFloor
	trip.AvailableSeats = trip.TotalSeats
	m.trips[trip.ID] = &trip

	n := 0
	for floor := 1; floor <= floors; floor++ {
		for i := 0; i < seatsPerFloor; i++ {
			n++
			id := fmt.Sprintf("%s-s%d", trip.ID, n)
			m.seats[id] = &models.TripSeat{
				ID:         id,
				TripID:     trip.ID,
				SeatID:     fmt.Sprintf("seat-%d", n),
				SeatNumber: fmt.Sprintf("%d", n),
				Floor:      floor,
				Status:     models.TripSeatStatusAvailable,
			}
			m.seatOrder = append(m.seatOrder, id)
		}
	}
	return &trip
}

func (m *memStore) seat(id string) models.TripSeat {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.seats[id]
}

func (m *memStore) available(tripID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.trips[tripID].AvailableSeats
}

func (m *memStore) countStatus(tripID string, status models.TripSeatStatus) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.seats {
		if s.TripID == tripID && s.Status == status {
			n++
		}
	}
	return n
}

// confirmedWithoutReservation lists CONFIRMED seats no live reservation owns
func (m *memStore) confirmedWithoutReservation() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	owned := make(map[string]bool)
	for id, seats := range m.resSeats {
		if m.reservations[id].Status == models.ReservationStatusCancelled {
			continue
		}
		for _, s := range seats {
			if s.TripSeatID != nil {
				owned[*s.TripSeatID] = true
			}
		}
	}
	var orphans []string
	for _, id := range m.seatOrder {
		if m.seats[id].Status == models.TripSeatStatusConfirmed && !owned[id] {
			orphans = append(orphans, id)
		}
	}
	return orphans
}

func (m *memStore) reservationCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.reservations)
}

func (m *memStore) reservation(id string) models.Reservation {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.reservations[id]
}

func (m *memStore) transactionsOf(reservationID string) []models.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Transaction
	for _, t := range m.txns {
		if t.ReservationID == reservationID {
			out = append(out, *t)
		}
	}
	return out
}

// ============================================================================
// TripStore / InventoryStore / ReclaimStore
// ============================================================================

func (m *memStore) GetTripDetails(ctx context.Context, tripID string) (*models.TripDetails, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.trips[tripID]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (m *memStore) GetTripSeats(ctx context.Context, tripID string, seatIDs []string) ([]models.TripSeat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.TripSeat
	for _, id := range seatIDs {
		if s, ok := m.seats[id]; ok && s.TripID == tripID {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (m *memStore) LockSeats(ctx context.Context, tripID string, seatIDs []string, lockID string, until time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.requireAvailable(tripID, seatIDs); err != nil {
		return err
	}
	for _, id := range seatIDs {
		s := m.seats[id]
		s.Status = models.TripSeatStatusLocked
		lock := lockID
		exp := until
		s.LockID = &lock
		s.LockedUntil = &exp
	}
	m.trips[tripID].AvailableSeats -= len(seatIDs)
	return nil
}

func (m *memStore) ReleaseSeats(ctx context.Context, tripID string, seatIDs []string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.release(tripID, seatIDs, models.TripSeatStatusLocked), nil
}

func (m *memStore) ReleaseConfirmed(ctx context.Context, tripID string, seatIDs []string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.release(tripID, seatIDs, models.TripSeatStatusConfirmed), nil
}

func (m *memStore) ReserveQuantity(ctx context.Context, tripID string, count int, floor *int) ([]models.TripSeat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if count <= 0 {
		return nil, apperr.BadRequest("quantity must be positive")
	}
	var picked []*models.TripSeat
	available := 0
	for _, id := range m.seatOrder {
		s := m.seats[id]
		if s.TripID != tripID || s.Status != models.TripSeatStatusAvailable {
			continue
		}
		if floor != nil && s.Floor != *floor {
			continue
		}
		available++
		if len(picked) < count {
			picked = append(picked, s)
		}
	}
	if len(picked) < count {
		return nil, apperr.InsufficientSeats(count, available)
	}

	out := make([]models.TripSeat, 0, len(picked))
	for _, s := range picked {
		s.Status = models.TripSeatStatusConfirmed
		out = append(out, *s)
	}
	m.trips[tripID].AvailableSeats -= len(picked)
	return out, nil
}

func (m *memStore) ReleaseExpired(ctx context.Context, now time.Time, limit int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	released := 0
	for _, id := range m.seatOrder {
		if released >= limit {
			break
		}
		s := m.seats[id]
		if s.Status != models.TripSeatStatusLocked || s.LockedUntil == nil || !s.LockedUntil.Before(now) {
			continue
		}
		released += m.release(s.TripID, []string{id}, models.TripSeatStatusLocked)
	}
	return released, nil
}

func (m *memStore) requireAvailable(tripID string, seatIDs []string) error {
	var taken []string
	for _, id := range seatIDs {
		s, ok := m.seats[id]
		if !ok || s.TripID != tripID {
			taken = append(taken, id)
			continue
		}
		if s.Status != models.TripSeatStatusAvailable {
			taken = append(taken, s.SeatNumber)
		}
	}
	if len(taken) > 0 {
		return apperr.SeatNotAvailable(taken)
	}
	return nil
}

func (m *memStore) checkLock(lockID string, seatIDs []string, now time.Time) error {
	held, expired := 0, 0
	for _, s := range m.seats {
		if s.Status != models.TripSeatStatusLocked || s.LockID == nil || *s.LockID != lockID {
			continue
		}
		held++
		if s.LockedUntil.Before(now) {
			expired++
		}
	}
	switch {
	case held == 0:
		return apperr.NotFound("lock %s not found", lockID)
	case expired > 0:
		return apperr.Gone("lock %s has expired", lockID)
	}
	var missing []string
	for _, id := range seatIDs {
		s, ok := m.seats[id]
		if !ok || s.LockID == nil || *s.LockID != lockID || s.Status != models.TripSeatStatusLocked {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return apperr.SeatNotAvailable(missing)
	}
	return nil
}

func (m *memStore) confirmLock(lockID string, seatIDs []string) []string {
	want := make(map[string]bool, len(seatIDs))
	for _, id := range seatIDs {
		want[id] = true
	}
	var confirmed []string
	for _, id := range m.seatOrder {
		s := m.seats[id]
		if s.Status != models.TripSeatStatusLocked || s.LockID == nil || *s.LockID != lockID {
			continue
		}
		if len(want) > 0 && !want[id] {
			continue
		}
		s.Status = models.TripSeatStatusConfirmed
		confirmed = append(confirmed, id)
	}
	return confirmed
}

func (m *memStore) release(tripID string, seatIDs []string, from models.TripSeatStatus) int {
	n := 0
	for _, id := range seatIDs {
		s, ok := m.seats[id]
		if !ok || s.TripID != tripID || s.Status != from {
			continue
		}
		s.Status = models.TripSeatStatusAvailable
		s.LockID = nil
		s.LockedUntil = nil
		n++
	}
	if trip, ok := m.trips[tripID]; ok && n > 0 {
		trip.AvailableSeats += n
		if trip.AvailableSeats > trip.TotalSeats {
			trip.AvailableSeats = trip.TotalSeats
		}
	}
	return n
}

// ============================================================================
// SaleStore
// ============================================================================

func (m *memStore) CreateSale(ctx context.Context, rec *models.SaleRecord, generate func(ctx context.Context, exists models.ExistsFunc) (string, error)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	res := rec.Reservation

	// Checks first; nothing below mutates until they all pass
	switch {
	case rec.ConfirmLockID != "":
		if err := m.checkLock(rec.ConfirmLockID, rec.ConfirmSeatIDs, rec.Now); err != nil {
			return err
		}
	case len(rec.ConfirmSeatIDs) > 0:
		if err := m.requireAvailable(res.TripID, rec.ConfirmSeatIDs); err != nil {
			return err
		}
	}

	ref, err := generate(ctx, func(ctx context.Context, candidate string) (bool, error) {
		for _, r := range m.reservations {
			if r.BookingReference == candidate {
				return true, nil
			}
		}
		return false, nil
	})
	if err != nil {
		return err
	}
	if m.failCreateSale != nil {
		return m.failCreateSale
	}

	switch {
	case rec.ConfirmLockID != "":
		m.confirmLock(rec.ConfirmLockID, rec.ConfirmSeatIDs)
	case len(rec.ConfirmSeatIDs) > 0:
		for _, id := range rec.ConfirmSeatIDs {
			m.seats[id].Status = models.TripSeatStatusConfirmed
		}
		m.trips[res.TripID].AvailableSeats -= len(rec.ConfirmSeatIDs)
	}

	key := string(rec.Customer.DocumentType) + ":" + rec.Customer.DocumentNumber
	customerID, ok := m.customers[key]
	if !ok {
		customerID = rec.Customer.ID
		m.customers[key] = customerID
	}
	rec.Customer.ID = customerID
	res.CustomerID = customerID
	res.BookingReference = ref
	res.CreatedAt = rec.Now
	res.UpdatedAt = rec.Now

	stored := *res
	m.reservations[res.ID] = &stored
	for i := range rec.Seats {
		rec.Seats[i].ReservationID = res.ID
	}
	m.resSeats[res.ID] = append([]models.ReservationSeat(nil), rec.Seats...)
	if rec.Transaction != nil {
		rec.Transaction.ReservationID = res.ID
		txn := *rec.Transaction
		m.txns[txn.ID] = &txn
	}
	m.sellerSales[res.SellerID]++
	return nil
}

func (m *memStore) AttachGatewayTransaction(ctx context.Context, transactionID, gatewayTransactionID string, paymentURL *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.txns[transactionID]
	if !ok {
		return apperr.NotFound("transaction %s not found", transactionID)
	}
	gwID := gatewayTransactionID
	t.GatewayTransactionID = &gwID
	t.PaymentURL = paymentURL
	return nil
}

func (m *memStore) CancelReservation(ctx context.Context, reservationID string, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reservations[reservationID]
	if !ok || r.Status == models.ReservationStatusCancelled {
		return false, nil
	}
	r.Status = models.ReservationStatusCancelled
	r.CancelledAt = &now

	var ids []string
	for _, s := range m.resSeats[reservationID] {
		if s.TripSeatID != nil {
			ids = append(ids, *s.TripSeatID)
		}
	}
	m.release(r.TripID, ids, models.TripSeatStatusConfirmed)
	m.sellerSales[r.SellerID]--
	return true, nil
}

func (m *memStore) GetReservation(ctx context.Context, id string) (*models.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reservations[id]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (m *memStore) GetReservationSeats(ctx context.Context, reservationID string) ([]models.ReservationSeat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.ReservationSeat(nil), m.resSeats[reservationID]...), nil
}

func (m *memStore) GetTransactions(ctx context.Context, reservationID string) ([]models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Transaction
	for _, t := range m.txns {
		if t.ReservationID == reservationID {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (m *memStore) ListSellerSales(ctx context.Context, sellerID string, rng models.DateRange) ([]models.SaleSummary, error) {
	return m.listSales(func(r *models.Reservation) bool { return r.SellerID == sellerID }, rng), nil
}

func (m *memStore) ListProviderSales(ctx context.Context, providerID string, rng models.DateRange) ([]models.SaleSummary, error) {
	return m.listSales(func(r *models.Reservation) bool { return r.ProviderID == providerID }, rng), nil
}

func (m *memStore) listSales(match func(*models.Reservation) bool, rng models.DateRange) []models.SaleSummary {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.SaleSummary
	for _, r := range m.reservations {
		if !match(r) || r.CreatedAt.Before(rng.From) || !r.CreatedAt.Before(rng.To) {
			continue
		}
		paid := decimal.Zero
		for _, t := range m.txns {
			if t.ReservationID == r.ID && t.Status == models.TransactionStatusCompleted {
				paid = paid.Add(t.Amount)
			}
		}
		out = append(out, models.SaleSummary{
			ID:               r.ID,
			BookingReference: r.BookingReference,
			TripID:           r.TripID,
			SellerID:         r.SellerID,
			ContactName:      r.ContactName,
			SeatCount:        r.SeatCount,
			TotalAmount:      r.TotalAmount,
			AmountPaid:       paid,
			CommissionAmount: r.CommissionAmount,
			Status:           r.Status,
			Channel:          r.Channel,
			CreatedAt:        r.CreatedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BookingReference < out[j].BookingReference })
	return out
}

func (m *memStore) ListPendingForms(ctx context.Context, providerID string, now time.Time) ([]models.PendingForm, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.PendingForm
	for _, r := range m.reservations {
		if r.ProviderID != providerID || r.Status == models.ReservationStatusCancelled || !r.HasOpenForm(now) {
			continue
		}
		out = append(out, models.PendingForm{
			ReservationID:    r.ID,
			BookingReference: r.BookingReference,
			ContactName:      r.ContactName,
			ContactPhone:     r.ContactPhone,
			SeatCount:        r.SeatCount,
			FormExpiresAt:    *r.FormExpiresAt,
		})
	}
	return out, nil
}

// ============================================================================
// FormStore
// ============================================================================

func (m *memStore) GetFormView(ctx context.Context, token string) (*models.FormView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.reservations {
		if r.FormToken == nil || *r.FormToken != token || r.Status == models.ReservationStatusCancelled {
			continue
		}
		trip := m.trips[r.TripID]
		view := &models.FormView{
			BookingReference: r.BookingReference,
			ContactName:      r.ContactName,
			SeatCount:        r.SeatCount,
			ExpiresAt:        *r.FormExpiresAt,
			CompletedAt:      r.FormCompletedAt,
			Origin:           trip.Origin,
			Destination:      trip.Destination,
			DepartureAt:      trip.DepartureAt,
			ProviderName:     trip.ProviderName,
			ReservationID:    r.ID,
		}
		for _, s := range m.resSeats[r.ID] {
			view.Seats = append(view.Seats, models.FormSeat{
				ReservationSeatID: s.ID,
				SeatNumber:        s.SeatNumber,
				Floor:             s.Floor,
			})
		}
		return view, nil
	}
	return nil, nil
}

func (m *memStore) CompleteForm(ctx context.Context, reservationID string, passengers []models.Passenger, seatIDs []string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.reservations[reservationID]
	if r.FormCompletedAt != nil {
		return apperr.BadRequest("passenger form already completed")
	}
	r.FormCompletedAt = &now
	seats := m.resSeats[reservationID]
	for i, p := range passengers {
		m.passengers = append(m.passengers, p)
		for j := range seats {
			if seats[j].ID == seatIDs[i] {
				pid := p.ID
				seats[j].PassengerID = &pid
			}
		}
	}
	return nil
}

// ============================================================================
// PaymentStore
// ============================================================================

func (m *memStore) ApplyTransactionStatus(ctx context.Context, gatewayName, gatewayTransactionID string, status models.TransactionStatus) (*models.TransactionTransition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var txn *models.Transaction
	for _, t := range m.txns {
		if t.Gateway == nil || *t.Gateway != gatewayName {
			continue
		}
		if t.GatewayTransactionID != nil && *t.GatewayTransactionID == gatewayTransactionID {
			txn = t
		}
	}
	if txn == nil {
		return nil, nil
	}

	tr := &models.TransactionTransition{
		TransactionID: txn.ID,
		ReservationID: txn.ReservationID,
		Previous:      txn.Status,
		Current:       txn.Status,
	}
	if txn.Status == status || (txn.Status.IsTerminal() && status == models.TransactionStatusPending) {
		return tr, nil
	}
	txn.Status = status
	tr.Current = status
	tr.Changed = true

	if status == models.TransactionStatusCompleted {
		r := m.reservations[txn.ReservationID]
		paid := decimal.Zero
		for _, t := range m.txns {
			if t.ReservationID == r.ID && t.Status == models.TransactionStatusCompleted {
				paid = paid.Add(t.Amount)
			}
		}
		if r.Status == models.ReservationStatusPending && paid.GreaterThanOrEqual(r.TotalAmount) {
			r.Status = models.ReservationStatusConfirmed
		}
	}
	return tr, nil
}

func (m *memStore) LogEvent(ctx context.Context, event *models.PaymentEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, *event)
	return nil
}

func (m *memStore) eventOutcomes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.events))
	for _, e := range m.events {
		out = append(out, e.Outcome)
	}
	return out
}

// ============================================================================
// Dispatcher / ReplayGuard
// ============================================================================

type fakeDispatcher struct {
	mu       sync.Mutex
	fail     bool
	messages []notify.FormMessage
}

func (d *fakeDispatcher) SendPassengerForm(ctx context.Context, msg notify.FormMessage) notify.Result {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.messages = append(d.messages, msg)
	if d.fail {
		return notify.Result{Success: false, Error: "invalid phone"}
	}
	return notify.Result{Success: true, ShareableURL: "https://wa.me/51" + msg.Phone}
}

type memGuard struct {
	mu   sync.Mutex
	seen map[string]bool
}

func (g *memGuard) Seen(ctx context.Context, gateway string, payload []byte) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.seen[gateway+string(payload)], nil
}

func (g *memGuard) Remember(ctx context.Context, gateway string, payload []byte) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.seen == nil {
		g.seen = make(map[string]bool)
	}
	g.seen[gateway+string(payload)] = true
	return nil
}
