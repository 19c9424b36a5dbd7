package receipt

import (
	"bytes"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smarttransit/booking-core/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender(t *testing.T) {
	seatNumber := "12"
	floor := 1
	data := &models.ReceiptData{
		Reservation: models.Reservation{
			BookingReference: "ABC23456",
			ContactName:      "José Pérez",
			Status:           models.ReservationStatusPending,
			TotalAmount:      decimal.RequireFromString("60.00"),
			CreatedAt:        time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC),
		},
		Trip: models.TripDetails{
			Trip:         models.Trip{DepartureAt: time.Date(2026, 10, 20, 8, 0, 0, 0, time.UTC)},
			Origin:       "Lima",
			Destination:  "Ica",
			ProviderName: "Transportes Sur",
			VehiclePlate: "ABC-123",
		},
		Seats: []models.ReservationSeat{
			{SeatNumber: &seatNumber, Floor: &floor, Price: decimal.RequireFromString("30.00")},
			{Price: decimal.RequireFromString("30.00")},
		},
		Payments: []models.Transaction{
			{Method: models.PaymentMethodCash, Status: models.TransactionStatusCompleted, Amount: decimal.RequireFromString("40.00")},
		},
		Currency:    "PEN",
		CompanyName: "SmartTransit",
	}

	out, err := Render(data)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF-")))
}

func TestSeatLabel(t *testing.T) {
	number := "3A"
	floor := 2

	assert.Equal(t, "Asiento 3A / Piso 2", seatLabel(models.ReservationSeat{SeatNumber: &number, Floor: &floor}))
	assert.Equal(t, "Piso 2", seatLabel(models.ReservationSeat{Floor: &floor}))
	assert.Equal(t, "Sin asignar", seatLabel(models.ReservationSeat{}))
}
