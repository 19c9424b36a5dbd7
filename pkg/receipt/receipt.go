package receipt

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/phpdave11/gofpdf"
	"github.com/shopspring/decimal"
	"github.com/smarttransit/booking-core/internal/models"
)

// Render builds a one-page A4 sale receipt
func Render(d *models.ReceiptData) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle("Receipt "+d.Reservation.BookingReference, false)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 10, tr(d.CompanyName))
	pdf.Ln(10)
	pdf.SetFont("Helvetica", "", 11)
	pdf.Cell(0, 6, tr(d.Trip.ProviderName))
	pdf.Ln(10)

	pdf.SetFont("Helvetica", "B", 14)
	pdf.Cell(0, 8, "Reserva "+d.Reservation.BookingReference)
	pdf.Ln(10)

	pdf.SetFont("Helvetica", "", 11)
	lines := []string{
		"Ruta       : " + d.Trip.Origin + " - " + d.Trip.Destination,
		"Salida     : " + d.Trip.DepartureAt.Format("2006-01-02 15:04"),
		"Vehículo   : " + d.Trip.VehiclePlate,
		"Cliente    : " + d.Reservation.ContactName,
		"Estado     : " + string(d.Reservation.Status),
		"Emitido    : " + d.Reservation.CreatedAt.Format("2006-01-02 15:04"),
	}
	for _, line := range lines {
		pdf.Cell(0, 7, tr(line))
		pdf.Ln(7)
	}
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 7, "Asientos")
	pdf.Ln(8)
	pdf.SetFont("Helvetica", "", 11)
	for i, seat := range d.Seats {
		pdf.Cell(0, 6, fmt.Sprintf("%d) %s  %s", i+1, seatLabel(seat), money(seat.Price, d.Currency)))
		pdf.Ln(6)
	}
	pdf.Ln(4)

	paid := decimal.Zero
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 7, "Pagos")
	pdf.Ln(8)
	pdf.SetFont("Helvetica", "", 11)
	for _, p := range d.Payments {
		pdf.Cell(0, 6, fmt.Sprintf("%s  %s  %s", p.Method, p.Status, money(p.Amount, d.Currency)))
		pdf.Ln(6)
		if p.Status == models.TransactionStatusCompleted {
			paid = paid.Add(p.Amount)
		}
	}
	pdf.Ln(6)

	pdf.SetFont("Helvetica", "B", 13)
	pdf.Cell(0, 8, "Total: "+money(d.Reservation.TotalAmount, d.Currency))
	pdf.Ln(8)
	pdf.SetFont("Helvetica", "", 11)
	pdf.Cell(0, 7, "Pagado: "+money(paid, d.Currency))
	pdf.Ln(7)
	if balance := d.Reservation.TotalAmount.Sub(paid); balance.IsPositive() {
		pdf.Cell(0, 7, "Saldo pendiente: "+money(balance, d.Currency))
		pdf.Ln(7)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to render receipt: %w", err)
	}
	return buf.Bytes(), nil
}

func seatLabel(seat models.ReservationSeat) string {
	parts := make([]string, 0, 2)
	if seat.SeatNumber != nil {
		parts = append(parts, "Asiento "+*seat.SeatNumber)
	}
	if seat.Floor != nil {
		parts = append(parts, fmt.Sprintf("Piso %d", *seat.Floor))
	}
	if len(parts) == 0 {
		return "Sin asignar"
	}
	return strings.Join(parts, " / ")
}

func money(amount decimal.Decimal, currency string) string {
	return currency + " " + amount.StringFixed(2)
}
