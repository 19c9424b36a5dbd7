package notify

import (
	"context"
	"fmt"
	"net/url"

	"github.com/sirupsen/logrus"
	"github.com/smarttransit/booking-core/internal/models"
	"github.com/smarttransit/booking-core/pkg/validator"
)

// FormMessage is what a passenger-form dispatch needs to know
type FormMessage struct {
	Phone            string
	Name             string
	BookingReference string
	FormURL          string
	TripSummary      string
	Status           models.ReservationStatus
}

// Result reports the outcome of a dispatch. ShareableURL is set when the
// channel produces a link the seller can open.
type Result struct {
	Success      bool
	ShareableURL string
	Error        string
}

// Dispatcher sends the passenger-form link to a customer
type Dispatcher interface {
	SendPassengerForm(ctx context.Context, msg FormMessage) Result
}

// WhatsAppLinkDispatcher builds a wa.me share link carrying the form URL.
// The seller opens the link to hand the message to WhatsApp.
type WhatsAppLinkDispatcher struct {
	phones *validator.PhoneValidator
	logger *logrus.Logger
}

// NewWhatsAppLinkDispatcher creates a new dispatcher
func NewWhatsAppLinkDispatcher(logger *logrus.Logger) *WhatsAppLinkDispatcher {
	return &WhatsAppLinkDispatcher{
		phones: validator.NewPhoneValidator(),
		logger: logger,
	}
}

// SendPassengerForm never returns an error; failures are reported in the result
func (d *WhatsAppLinkDispatcher) SendPassengerForm(ctx context.Context, msg FormMessage) Result {
	phone, err := d.phones.International(msg.Phone)
	if err != nil {
		d.logger.WithFields(logrus.Fields{
			"booking_reference": msg.BookingReference,
			"error":             err.Error(),
		}).Warn("Cannot build WhatsApp link for passenger form")
		return Result{Success: false, Error: err.Error()}
	}

	text := fmt.Sprintf(
		"Hola %s, tu reserva %s (%s) %s.\nCompleta los datos de los pasajeros aquí: %s",
		msg.Name, msg.BookingReference, msg.TripSummary, statusPhrase(msg.Status), msg.FormURL,
	)
	link := fmt.Sprintf("https://wa.me/%s?text=%s", phone, url.QueryEscape(text))

	d.logger.WithFields(logrus.Fields{
		"booking_reference": msg.BookingReference,
		"channel":           "whatsapp",
	}).Info("Passenger form link prepared")

	return Result{Success: true, ShareableURL: link}
}

// statusPhrase only promises a confirmed seat once the sale is fully paid
func statusPhrase(status models.ReservationStatus) string {
	if status == models.ReservationStatusConfirmed {
		return "está confirmada"
	}
	return "está registrada y pendiente de pago"
}
