package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/booking-core/internal/models"
)

// PassengerForms is the public passenger form surface
type PassengerForms interface {
	GetByToken(ctx context.Context, token string) (*models.FormView, error)
	Complete(ctx context.Context, token string, passengers []models.PassengerInput) (string, error)
}

// FormHandler serves the public passenger form. No authentication, the
// token is the credential.
type FormHandler struct {
	forms  PassengerForms
	logger *logrus.Logger
}

// NewFormHandler creates a new FormHandler
func NewFormHandler(forms PassengerForms, logger *logrus.Logger) *FormHandler {
	return &FormHandler{forms: forms, logger: logger}
}

// GetForm returns what the passenger form needs to render
// GET /api/v1/forms/:token
func (h *FormHandler) GetForm(c *gin.Context) {
	token, ok := requiredParam(c, "token")
	if !ok {
		return
	}

	view, err := h.forms.GetByToken(c.Request.Context(), token)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, view)
}

// CompleteForm records one passenger per seat
// POST /api/v1/forms/:token
func (h *FormHandler) CompleteForm(c *gin.Context) {
	token, ok := requiredParam(c, "token")
	if !ok {
		return
	}

	var req models.CompleteFormRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	ref, err := h.forms.Complete(c.Request.Context(), token, req.Passengers)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":           "Passenger details saved",
		"booking_reference": ref,
	})
}
