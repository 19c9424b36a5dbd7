package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/booking-core/internal/apperr"
	"github.com/smarttransit/booking-core/internal/clock"
	"github.com/smarttransit/booking-core/internal/models"
)

const dateLayout = "2006-01-02"

// Sales is the part of the sale service exposed over HTTP
type Sales interface {
	CreateSale(ctx context.Context, caller models.Caller, req *models.CreateSaleRequest) (*models.SaleResult, error)
	CancelSale(ctx context.Context, caller models.Caller, reservationID string) error
	GetMySales(ctx context.Context, caller models.Caller, rng models.DateRange) (*models.SalesReport, error)
	GetProviderSales(ctx context.Context, caller models.Caller, rng models.DateRange) (*models.SalesReport, error)
	GetPendingForms(ctx context.Context, caller models.Caller) ([]models.PendingForm, error)
	ResendForm(ctx context.Context, caller models.Caller, reservationID string, phone *string) (*models.ResendFormResult, error)
	Receipt(ctx context.Context, caller models.Caller, reservationID string) ([]byte, string, error)
}

// SaleHandler handles point-of-sale endpoints
type SaleHandler struct {
	sales    Sales
	clock    clock.Clock
	location *time.Location
	logger   *logrus.Logger
}

// NewSaleHandler creates a new SaleHandler. Report dates are interpreted in loc.
func NewSaleHandler(sales Sales, clk clock.Clock, loc *time.Location, logger *logrus.Logger) *SaleHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &SaleHandler{sales: sales, clock: clk, location: loc, logger: logger}
}

// ===========================================================================
// SALES
// ===========================================================================

// CreateSale sells seats on a trip
// POST /api/v1/sales
func (h *SaleHandler) CreateSale(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}

	var body models.CreateSaleBody
	if err := c.ShouldBindJSON(&body); err != nil {
		bindError(c, err)
		return
	}
	if len(body.SeatIDs) > 0 && body.Quantity > 0 {
		respondError(c, h.logger, apperr.BadRequest("send either seat_ids or quantity, not both"))
		return
	}

	result, err := h.sales.CreateSale(c.Request.Context(), caller, body.ToRequest())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, result)
}

// CancelSale cancels a sale and frees its seats
// POST /api/v1/sales/:id/cancel
func (h *SaleHandler) CancelSale(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}
	id, ok := requiredParam(c, "id")
	if !ok {
		return
	}

	if err := h.sales.CancelSale(c.Request.Context(), caller, id); err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":        "Sale cancelled successfully",
		"reservation_id": id,
	})
}

// ===========================================================================
// REPORTS
// ===========================================================================

// GetMySales lists the caller's own sales
// GET /api/v1/sales/mine?from=YYYY-MM-DD&to=YYYY-MM-DD
func (h *SaleHandler) GetMySales(c *gin.Context) {
	h.report(c, h.sales.GetMySales)
}

// GetProviderSales lists every sale of the caller's provider
// GET /api/v1/sales/provider?from=YYYY-MM-DD&to=YYYY-MM-DD
func (h *SaleHandler) GetProviderSales(c *gin.Context) {
	h.report(c, h.sales.GetProviderSales)
}

func (h *SaleHandler) report(c *gin.Context, list func(context.Context, models.Caller, models.DateRange) (*models.SalesReport, error)) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}

	rng, err := h.parseRange(c.Query("from"), c.Query("to"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	report, err := list(c.Request.Context(), caller, rng)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, report)
}

// parseRange reads inclusive calendar dates. Missing bounds default to today.
func (h *SaleHandler) parseRange(from, to string) (models.DateRange, error) {
	now := h.clock.Now().In(h.location)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, h.location)

	start := today
	if from != "" {
		parsed, err := time.ParseInLocation(dateLayout, from, h.location)
		if err != nil {
			return models.DateRange{}, apperr.BadRequest("invalid from date %q, expected YYYY-MM-DD", from)
		}
		start = parsed
	}

	end := today
	if to != "" {
		parsed, err := time.ParseInLocation(dateLayout, to, h.location)
		if err != nil {
			return models.DateRange{}, apperr.BadRequest("invalid to date %q, expected YYYY-MM-DD", to)
		}
		end = parsed
	} else if from != "" && start.After(today) {
		end = start
	}

	return models.DateRange{From: start, To: end.AddDate(0, 0, 1)}, nil
}

// ===========================================================================
// PASSENGER FORMS
// ===========================================================================

// GetPendingForms lists the provider's sales still waiting on passenger data
// GET /api/v1/sales/pending-forms
func (h *SaleHandler) GetPendingForms(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}

	forms, err := h.sales.GetPendingForms(c.Request.Context(), caller)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"forms": forms,
		"count": len(forms),
	})
}

// ResendForm sends the passenger form link again
// POST /api/v1/sales/:id/resend-form
func (h *SaleHandler) ResendForm(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}
	id, ok := requiredParam(c, "id")
	if !ok {
		return
	}

	var req models.ResendFormRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			bindError(c, err)
			return
		}
	}

	result, err := h.sales.ResendForm(c.Request.Context(), caller, id, req.Phone)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// Receipt renders the sale receipt as PDF
// GET /api/v1/sales/:id/receipt
func (h *SaleHandler) Receipt(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}
	id, ok := requiredParam(c, "id")
	if !ok {
		return
	}

	pdf, filename, err := h.sales.Receipt(c.Request.Context(), caller, id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`inline; filename="%s"`, filename))
	c.Data(http.StatusOK, "application/pdf", pdf)
}
